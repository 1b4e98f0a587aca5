// Package chain builds and submits the transactions that close positions on
// the position manager contract.
package chain

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"github.com/drsaint1/TradeGPT/internal/domain"
)

// closePositionSelector is the 4-byte selector of
// closePosition(bytes32 positionId, uint256 sizeWad).
var closePositionSelector = ethcrypto.Keccak256(
	[]byte("closePosition(bytes32,uint256)"),
)[:4]

// wad is the 1e18 fixed-point scale used by the position manager contract.
var wad = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)

// Builder implements domain.TxBuilder. It is stateless: the same position
// snapshot always yields the same payload.
type Builder struct {
	positionManager common.Address
	gasLimit        uint64
}

// NewBuilder creates a Builder targeting the given position manager contract.
func NewBuilder(positionManager string, gasLimit uint64) (*Builder, error) {
	if !common.IsHexAddress(positionManager) {
		return nil, fmt.Errorf("chain: invalid position manager address %q", positionManager)
	}
	if gasLimit == 0 {
		gasLimit = 300000
	}
	return &Builder{
		positionManager: common.HexToAddress(positionManager),
		gasLimit:        gasLimit,
	}, nil
}

// BuildClose constructs the closing payload for a position. It returns a
// wrapped domain.ErrInvalidPosition when the snapshot is missing anything the
// contract call needs.
func (b *Builder) BuildClose(pos domain.Position) (domain.ClosePayload, error) {
	if strings.TrimSpace(pos.ID) == "" {
		return domain.ClosePayload{}, fmt.Errorf("chain: %w: empty position id", domain.ErrInvalidPosition)
	}
	if strings.TrimSpace(pos.Symbol) == "" {
		return domain.ClosePayload{}, fmt.Errorf("chain: position %s: %w: empty symbol", pos.ID, domain.ErrInvalidPosition)
	}
	if !pos.Side.Valid() {
		return domain.ClosePayload{}, fmt.Errorf("chain: position %s: %w: bad side %q", pos.ID, domain.ErrInvalidPosition, pos.Side)
	}
	if pos.Size <= 0 {
		return domain.ClosePayload{}, fmt.Errorf("chain: position %s: %w: non-positive size %f", pos.ID, domain.ErrInvalidPosition, pos.Size)
	}

	data := make([]byte, 0, 4+32+32)
	data = append(data, closePositionSelector...)
	data = append(data, positionKey(pos.ID)...)
	data = append(data, common.LeftPadBytes(sizeWad(pos.Size).Bytes(), 32)...)

	return domain.ClosePayload{
		PositionID: pos.ID,
		Contract:   b.positionManager.Hex(),
		Data:       data,
		Value:      big.NewInt(0),
		GasLimit:   b.gasLimit,
	}, nil
}

// positionKey derives the bytes32 key the contract uses for a position id.
func positionKey(id string) []byte {
	return ethcrypto.Keccak256([]byte(id))
}

// sizeWad converts a float size to the contract's 1e18 fixed-point scale.
// Sizes are truncated, not rounded, so the builder stays deterministic across
// platforms.
func sizeWad(size float64) *big.Int {
	f := new(big.Float).SetPrec(128).SetFloat64(size)
	f.Mul(f, new(big.Float).SetPrec(128).SetInt(wad))
	i, _ := f.Int(nil)
	return i
}

// Compile-time interface check.
var _ domain.TxBuilder = (*Builder)(nil)
