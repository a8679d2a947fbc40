package domain

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// Role is one of the closed set of supply-chain participant roles. Roles map
// to on-chain role identifiers and to a minimum trust level; both mappings
// are fixed here rather than derived from strings at call time.
type Role string

const (
	RoleManufacturer Role = "MANUFACTURER"
	RoleSupplier     Role = "SUPPLIER"
	RoleMiner        Role = "MINER"
	RoleRecycler     Role = "RECYCLER"
	RoleTenantAdmin  Role = "TENANT_ADMIN"
	RoleGovernment   Role = "GOVERNMENT"
)

// AllRoles lists every member of the closed role set.
var AllRoles = []Role{
	RoleManufacturer,
	RoleSupplier,
	RoleMiner,
	RoleRecycler,
	RoleTenantAdmin,
	RoleGovernment,
}

// minTrustByRole is the method-specific minimum trust level a DID must carry
// to exercise each role. This is configuration, not derived data.
var minTrustByRole = map[Role]uint8{
	RoleManufacturer: 4,
	RoleSupplier:     3,
	RoleMiner:        2,
	RoleRecycler:     3,
	RoleTenantAdmin:  5,
	RoleGovernment:   5,
}

// ParseRole validates a role tag against the closed set.
func ParseRole(s string) (Role, error) {
	r := Role(s)
	if _, ok := minTrustByRole[r]; !ok {
		return "", fmt.Errorf("unknown role %q", s)
	}
	return r, nil
}

// MinTrust returns the minimum trust level required for the role.
func (r Role) MinTrust() uint8 {
	return minTrustByRole[r]
}

// OnChainID returns the bytes32 role identifier used by the contracts,
// keccak-256 of "<ROLE>_ROLE" per the access-control convention.
func (r Role) OnChainID() common.Hash {
	return Keccak([]byte(string(r) + "_ROLE"))
}

// Valid reports membership in the closed role set.
func (r Role) Valid() bool {
	_, ok := minTrustByRole[r]
	return ok
}
