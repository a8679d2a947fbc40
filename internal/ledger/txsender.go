package ledger

import (
	"context"
	"crypto/ecdsa"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	dErrors "batterypass/pkg/domain-errors"
)

// txBackend is the slice of an EVM node a KeyedSender needs to assemble and
// broadcast a transaction. *ethclient.Client satisfies it.
type txBackend interface {
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, call ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
}

// KeyedSender signs and broadcasts transactions with a local private key.
// Used by the CLI; the dashboard's writes go through the user's wallet
// instead.
type KeyedSender struct {
	backend txBackend
	key     *ecdsa.PrivateKey
	from    common.Address
	chainID *big.Int
}

// NewKeyedSender builds a sender for the given key and chain.
func NewKeyedSender(backend txBackend, key *ecdsa.PrivateKey, chainID uint64) *KeyedSender {
	return &KeyedSender{
		backend: backend,
		key:     key,
		from:    crypto.PubkeyToAddress(key.PublicKey),
		chainID: new(big.Int).SetUint64(chainID),
	}
}

// From returns the sender's address.
func (s *KeyedSender) From() common.Address {
	return s.from
}

// SendTransaction assembles, signs, and broadcasts a transaction carrying
// calldata to the contract at to.
func (s *KeyedSender) SendTransaction(ctx context.Context, to common.Address, calldata []byte) (common.Hash, error) {
	nonce, err := s.backend.PendingNonceAt(ctx, s.from)
	if err != nil {
		return common.Hash{}, dErrors.Wrap(err, dErrors.CodeTransport, "read pending nonce")
	}
	gasPrice, err := s.backend.SuggestGasPrice(ctx)
	if err != nil {
		return common.Hash{}, dErrors.Wrap(err, dErrors.CodeTransport, "suggest gas price")
	}
	gas, err := s.backend.EstimateGas(ctx, ethereum.CallMsg{
		From: s.from,
		To:   &to,
		Data: calldata,
	})
	if err != nil {
		// Estimation executes the call, so a revert surfaces here.
		return common.Hash{}, wrapCallError(err, "estimate gas")
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &to,
		Gas:      gas,
		GasPrice: gasPrice,
		Data:     calldata,
	})
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(s.chainID), s.key)
	if err != nil {
		return common.Hash{}, dErrors.Wrap(err, dErrors.CodeInternal, "sign transaction")
	}
	if err := s.backend.SendTransaction(ctx, signed); err != nil {
		return common.Hash{}, wrapCallError(err, "send transaction")
	}
	return signed.Hash(), nil
}

var _ TxSender = (*KeyedSender)(nil)
