package signer

import (
	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"

	dErrors "batterypass/pkg/domain-errors"
)

// Domain builds the EIP-712 domain separator. Name and version are fixed per
// deployment; the chain id is always the live one and the verifying contract
// is the contract that will recompute the struct hash. Any divergence here
// silently produces a non-matching signature on-chain, not a client error.
func Domain(name, version string, chainID uint64, verifyingContract common.Address) apitypes.TypedDataDomain {
	return apitypes.TypedDataDomain{
		Name:              name,
		Version:           version,
		ChainId:           math.NewHexOrDecimal256(int64(chainID)),
		VerifyingContract: verifyingContract.Hex(),
	}
}

// NewTypedData assembles a complete typed-data payload for one primary type.
// Field order in fields is significant: it must match the contract's struct
// declaration exactly.
func NewTypedData(domain apitypes.TypedDataDomain, primaryType string, fields []apitypes.Type, message apitypes.TypedDataMessage) apitypes.TypedData {
	return apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain": {
				{Name: "name", Type: "string"},
				{Name: "version", Type: "string"},
				{Name: "chainId", Type: "uint256"},
				{Name: "verifyingContract", Type: "address"},
			},
			primaryType: fields,
		},
		PrimaryType: primaryType,
		Domain:      domain,
		Message:     message,
	}
}

// Digest computes the final EIP-712 digest for a typed-data payload.
func Digest(data apitypes.TypedData) ([]byte, error) {
	digest, _, err := apitypes.TypedDataAndHash(data)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeBadRequest, "hash typed data")
	}
	return digest, nil
}

// Recover returns the address whose key produced sig over data. Signatures
// with the wallet-style recovery id (27/28) are normalized before recovery.
func Recover(data apitypes.TypedData, sig []byte) (common.Address, error) {
	if err := CheckLength(sig); err != nil {
		return common.Address{}, err
	}
	digest, err := Digest(data)
	if err != nil {
		return common.Address{}, err
	}
	return recoverDigest(digest, sig)
}

// RecoverPersonal returns the address that signed message under the
// personal-message prefix.
func RecoverPersonal(message, sig []byte) (common.Address, error) {
	if err := CheckLength(sig); err != nil {
		return common.Address{}, err
	}
	return recoverDigest(personalDigest(message), sig)
}

func recoverDigest(digest, sig []byte) (common.Address, error) {
	normalized := make([]byte, SignatureLength)
	copy(normalized, sig)
	if normalized[64] >= 27 {
		normalized[64] -= 27
	}
	pub, err := crypto.SigToPub(digest, normalized)
	if err != nil {
		return common.Address{}, dErrors.Wrap(err, dErrors.CodeSignatureMalformed, "recover signer")
	}
	return crypto.PubkeyToAddress(*pub), nil
}

func personalDigest(message []byte) []byte {
	return accounts.TextHash(message)
}
