package domain

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// DID is a parsed decentralized identifier of the form
// did:<method>:<namespace>#<discriminator>. The discriminator ties the
// identifier to a specific registration event (typically an action tag plus
// the owning address), so one organization can hold several DIDs.
type DID struct {
	Method        string
	Namespace     string
	Discriminator string
}

// ParseDID parses and validates a DID string. All three segments are required.
func ParseDID(s string) (DID, error) {
	rest, ok := strings.CutPrefix(s, "did:")
	if !ok {
		return DID{}, fmt.Errorf("did %q: missing did: prefix", s)
	}
	method, rest, ok := strings.Cut(rest, ":")
	if !ok || method == "" {
		return DID{}, fmt.Errorf("did %q: missing method", s)
	}
	namespace, discriminator, ok := strings.Cut(rest, "#")
	if !ok || namespace == "" || discriminator == "" {
		return DID{}, fmt.Errorf("did %q: missing namespace or discriminator", s)
	}
	return DID{Method: method, Namespace: namespace, Discriminator: discriminator}, nil
}

// String reassembles the canonical DID form.
func (d DID) String() string {
	return fmt.Sprintf("did:%s:%s#%s", d.Method, d.Namespace, d.Discriminator)
}

// Hash returns the keccak-256 of the canonical DID string. The identity
// registry keys records by this hash, not by the raw name.
func (d DID) Hash() common.Hash {
	return Keccak([]byte(d.String()))
}

// DIDRecord mirrors the identity registry's stored record for one DID.
// The owner address never changes after registration; the verified flag and
// trust level are only ever raised, never silently mutated.
type DIDRecord struct {
	Name         string
	Owner        common.Address
	TrustLevel   uint8
	Roles        []Role
	Verified     bool
	RegisteredAt int64
}

// HasRole reports whether the record's role set contains r.
func (r DIDRecord) HasRole(role Role) bool {
	for _, have := range r.Roles {
		if have == role {
			return true
		}
	}
	return false
}

// OwnedBy compares the record's owner with addr. Address comparison is
// case-insensitive by construction: both sides normalize through
// common.Address before comparing bytes.
func (r DIDRecord) OwnedBy(addr common.Address) bool {
	return r.Owner == addr
}
