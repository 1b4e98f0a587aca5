package chain

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"log/slog"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/drsaint1/TradeGPT/internal/domain"
)

// Submitter implements domain.TxSubmitter. It signs closing payloads with the
// backend's key and submits them to the chain RPC endpoint. Every failure is
// reported as a wrapped domain.ErrSubmission; the monitor does not distinguish
// between rejection causes.
type Submitter struct {
	client  *ethclient.Client
	key     *ecdsa.PrivateKey
	from    common.Address
	chainID *big.Int
	logger  *slog.Logger
}

// NewSubmitter dials the RPC endpoint and prepares the signer.
// privateKeyHex may carry an optional 0x prefix.
func NewSubmitter(rpcURL, privateKeyHex string, chainID int64, logger *slog.Logger) (*Submitter, error) {
	key, err := ethcrypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("chain: invalid private key: %w", err)
	}

	client, err := ethclient.Dial(rpcURL)
	if err != nil {
		return nil, fmt.Errorf("chain: dial %s: %w", rpcURL, err)
	}

	return &Submitter{
		client:  client,
		key:     key,
		from:    ethcrypto.PubkeyToAddress(key.PublicKey),
		chainID: big.NewInt(chainID),
		logger:  logger.With(slog.String("component", "chain_submitter")),
	}, nil
}

// From returns the submitting account address.
func (s *Submitter) From() common.Address {
	return s.from
}

// Close releases the underlying RPC connection.
func (s *Submitter) Close() {
	s.client.Close()
}

// Submit signs the payload and sends it to the chain. It returns the
// transaction hash on success.
func (s *Submitter) Submit(ctx context.Context, payload domain.ClosePayload) (string, error) {
	nonce, err := s.client.PendingNonceAt(ctx, s.from)
	if err != nil {
		return "", fmt.Errorf("chain: position %s: %w: nonce: %v", payload.PositionID, domain.ErrSubmission, err)
	}

	gasPrice, err := s.client.SuggestGasPrice(ctx)
	if err != nil {
		return "", fmt.Errorf("chain: position %s: %w: gas price: %v", payload.PositionID, domain.ErrSubmission, err)
	}

	to := common.HexToAddress(payload.Contract)
	value := payload.Value
	if value == nil {
		value = big.NewInt(0)
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &to,
		Value:    value,
		Gas:      payload.GasLimit,
		GasPrice: gasPrice,
		Data:     payload.Data,
	})

	signed, err := types.SignTx(tx, types.NewEIP155Signer(s.chainID), s.key)
	if err != nil {
		return "", fmt.Errorf("chain: position %s: %w: sign: %v", payload.PositionID, domain.ErrSubmission, err)
	}

	if err := s.client.SendTransaction(ctx, signed); err != nil {
		return "", fmt.Errorf("chain: position %s: %w: send: %v", payload.PositionID, domain.ErrSubmission, err)
	}

	hash := signed.Hash().Hex()
	s.logger.InfoContext(ctx, "close transaction submitted",
		slog.String("position_id", payload.PositionID),
		slog.String("tx_hash", hash),
		slog.Uint64("nonce", nonce),
	)
	return hash, nil
}

// Compile-time interface check.
var _ domain.TxSubmitter = (*Submitter)(nil)
