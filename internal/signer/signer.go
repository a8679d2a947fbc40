// Package signer wraps the wallet's typed-data and plain-message signing
// capability behind a port the rest of the pipeline depends on. A production
// deployment backs this with a wallet provider; tests and the CLI use the
// deterministic LocalSigner.
package signer

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"

	dErrors "batterypass/pkg/domain-errors"
)

// SignatureLength is the expected byte length of every signature produced
// here: 65 bytes (r, s, v), i.e. a 132-character 0x-hex string. Anything else
// indicates wallet or provider incompatibility and is a hard stop.
const SignatureLength = 65

// ErrDenied is returned when the user declines a signing request. It is a
// distinct, non-retryable outcome from a wallet or provider failure, so the
// caller can offer "try again" rather than "contact support".
var ErrDenied = dErrors.New(dErrors.CodeSignatureDenied, "signing request denied")

// Signer produces domain-separated typed-data signatures and plain personal
// message signatures for one address.
type Signer interface {
	// Address returns the signing address.
	Address() common.Address

	// SignTypedData signs an EIP-712 typed-data payload.
	SignTypedData(ctx context.Context, data apitypes.TypedData) ([]byte, error)

	// SignPersonalMessage signs a plain message under the personal-message
	// prefix, keeping it distinguishable from typed-data signatures.
	SignPersonalMessage(ctx context.Context, message []byte) ([]byte, error)
}

// CheckLength validates the signature length invariant. Violations are
// surfaced as SignatureMalformed and must never be retried.
func CheckLength(sig []byte) error {
	if len(sig) != SignatureLength {
		return dErrors.New(dErrors.CodeSignatureMalformed, "signature is not 65 bytes")
	}
	return nil
}
