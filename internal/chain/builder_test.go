package chain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drsaint1/TradeGPT/internal/domain"
)

const testContract = "0x1111111111111111111111111111111111111111"

func testPosition() domain.Position {
	stop := 100.0
	return domain.Position{
		ID:            "pos-1",
		Symbol:        "ETH",
		Side:          domain.SideLong,
		EntryPrice:    110,
		Size:          2.5,
		StopLossPrice: &stop,
		Status:        domain.PositionStatusTriggered,
		OpenedAt:      time.Now().UTC(),
	}
}

func TestNewBuilderRejectsBadAddress(t *testing.T) {
	_, err := NewBuilder("not-an-address", 0)
	assert.Error(t, err)
}

func TestBuildCloseDeterministic(t *testing.T) {
	b, err := NewBuilder(testContract, 250000)
	require.NoError(t, err)

	pos := testPosition()
	first, err := b.BuildClose(pos)
	require.NoError(t, err)
	second, err := b.BuildClose(pos)
	require.NoError(t, err)

	assert.Equal(t, first.Data, second.Data)
	assert.Equal(t, testContract, first.Contract)
	assert.Equal(t, uint64(250000), first.GasLimit)
	assert.Equal(t, "pos-1", first.PositionID)

	// selector + bytes32 id + uint256 size
	assert.Len(t, first.Data, 4+32+32)
	assert.Equal(t, closePositionSelector, first.Data[:4])
}

func TestBuildCloseDistinctPositionsDiffer(t *testing.T) {
	b, err := NewBuilder(testContract, 0)
	require.NoError(t, err)

	a := testPosition()
	other := testPosition()
	other.ID = "pos-2"

	pa, err := b.BuildClose(a)
	require.NoError(t, err)
	pb, err := b.BuildClose(other)
	require.NoError(t, err)

	assert.NotEqual(t, pa.Data, pb.Data)
}

func TestBuildCloseValidation(t *testing.T) {
	b, err := NewBuilder(testContract, 0)
	require.NoError(t, err)

	cases := []struct {
		name   string
		mutate func(*domain.Position)
	}{
		{"empty id", func(p *domain.Position) { p.ID = "" }},
		{"empty symbol", func(p *domain.Position) { p.Symbol = " " }},
		{"bad side", func(p *domain.Position) { p.Side = "sideways" }},
		{"zero size", func(p *domain.Position) { p.Size = 0 }},
		{"negative size", func(p *domain.Position) { p.Size = -1 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			pos := testPosition()
			tc.mutate(&pos)
			_, err := b.BuildClose(pos)
			assert.ErrorIs(t, err, domain.ErrInvalidPosition)
		})
	}
}

func TestSizeWad(t *testing.T) {
	assert.Equal(t, "2500000000000000000", sizeWad(2.5).String())
	assert.Equal(t, "1000000000000000000", sizeWad(1).String())
}
