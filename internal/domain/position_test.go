package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStopLossBreached(t *testing.T) {
	stop := 100.0

	tests := []struct {
		name  string
		side  Side
		stop  *float64
		price float64
		want  bool
	}{
		{"long above stop", SideLong, &stop, 101, false},
		{"long at stop", SideLong, &stop, 100, true},
		{"long below stop", SideLong, &stop, 99.99, true},
		{"short below stop", SideShort, &stop, 99, false},
		{"short at stop", SideShort, &stop, 100, true},
		{"short above stop", SideShort, &stop, 100.01, true},
		{"no stop set", SideLong, nil, 0, false},
		{"unknown side", Side("sideways"), &stop, 10, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := Position{Side: tt.side, StopLossPrice: tt.stop}
			assert.Equal(t, tt.want, p.StopLossBreached(tt.price))
		})
	}
}

func TestPositionStatusTerminal(t *testing.T) {
	assert.False(t, PositionStatusOpen.Terminal())
	assert.False(t, PositionStatusTriggered.Terminal())
	assert.True(t, PositionStatusClosed.Terminal())
	assert.True(t, PositionStatusFailed.Terminal())
}

func TestCloneIsDeep(t *testing.T) {
	stop := 50.0
	p := Position{ID: "pos-1", Side: SideShort, StopLossPrice: &stop}

	c := p.Clone()
	*c.StopLossPrice = 75

	assert.Equal(t, 50.0, *p.StopLossPrice)
}
