package domain

import (
	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/crypto/sha3"
)

// ContentID is the content-addressed storage key for a payload, as returned
// by the pinning service (a CID-shaped string). It is the first leg of the
// content hash triple; the other two are the directory index record and the
// on-chain commitment.
type ContentID string

// Commitment returns the on-chain form of the content id: the keccak-256
// digest of the raw CID string. Contracts store this bytes32 rather than the
// variable-length CID itself.
func (c ContentID) Commitment() common.Hash {
	return Keccak([]byte(c))
}

// Keccak computes the keccak-256 digest of data.
func Keccak(data []byte) common.Hash {
	h := sha3.NewLegacyKeccak256()
	h.Write(data)
	var out common.Hash
	h.Sum(out[:0])
	return out
}

// ParseAddress parses a 0x-prefixed hex address, rejecting malformed input.
// common.HexToAddress silently truncates, so length is checked first.
func ParseAddress(s string) (common.Address, error) {
	if !common.IsHexAddress(s) {
		return common.Address{}, &InvalidAddressError{Input: s}
	}
	return common.HexToAddress(s), nil
}

// InvalidAddressError reports a string that is not a valid hex address.
type InvalidAddressError struct {
	Input string
}

func (e *InvalidAddressError) Error() string {
	return "invalid hex address: " + e.Input
}
