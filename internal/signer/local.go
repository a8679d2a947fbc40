package signer

import (
	"context"
	"crypto/ecdsa"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"

	dErrors "batterypass/pkg/domain-errors"
)

// LocalSigner signs with an in-process secp256k1 key. It produces the same
// 65-byte wallet-style signatures (v in {27, 28}) a browser wallet would, so
// everything downstream treats the two interchangeably.
type LocalSigner struct {
	key     *ecdsa.PrivateKey
	address common.Address
}

// NewLocal wraps an existing private key.
func NewLocal(key *ecdsa.PrivateKey) *LocalSigner {
	return &LocalSigner{
		key:     key,
		address: crypto.PubkeyToAddress(key.PublicKey),
	}
}

// NewLocalFromHex parses a hex-encoded private key.
func NewLocalFromHex(hexKey string) (*LocalSigner, error) {
	key, err := crypto.HexToECDSA(hexKey)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInvalidConfig, "invalid signing key")
	}
	return NewLocal(key), nil
}

// Address returns the signing address.
func (s *LocalSigner) Address() common.Address {
	return s.address
}

// SignTypedData signs the EIP-712 digest of data.
func (s *LocalSigner) SignTypedData(_ context.Context, data apitypes.TypedData) ([]byte, error) {
	digest, err := Digest(data)
	if err != nil {
		return nil, err
	}
	return s.sign(digest)
}

// SignPersonalMessage signs message under the personal-message prefix.
func (s *LocalSigner) SignPersonalMessage(_ context.Context, message []byte) ([]byte, error) {
	return s.sign(accounts.TextHash(message))
}

func (s *LocalSigner) sign(digest []byte) ([]byte, error) {
	sig, err := crypto.Sign(digest, s.key)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "sign digest")
	}
	// crypto.Sign yields v in {0, 1}; wallets report {27, 28}.
	sig[64] += 27
	return sig, nil
}

var _ Signer = (*LocalSigner)(nil)
