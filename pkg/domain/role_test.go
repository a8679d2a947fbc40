package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRole(t *testing.T) {
	r, err := ParseRole("SUPPLIER")
	require.NoError(t, err)
	assert.Equal(t, RoleSupplier, r)
	assert.Equal(t, uint8(3), r.MinTrust())

	_, err = ParseRole("AUDITOR")
	require.Error(t, err)
}

func TestRoleTrustTable(t *testing.T) {
	// Every member of the closed set has a configured minimum.
	for _, r := range AllRoles {
		assert.True(t, r.Valid(), "role %s", r)
		assert.NotZero(t, r.MinTrust(), "role %s", r)
	}
	assert.Equal(t, uint8(4), RoleManufacturer.MinTrust())
	assert.Equal(t, uint8(2), RoleMiner.MinTrust())
	assert.Equal(t, uint8(5), RoleTenantAdmin.MinTrust())
}

func TestRoleOnChainID(t *testing.T) {
	// The contract convention is keccak256("<ROLE>_ROLE").
	assert.Equal(t, Keccak([]byte("SUPPLIER_ROLE")), RoleSupplier.OnChainID())
	assert.NotEqual(t, RoleSupplier.OnChainID(), RoleMiner.OnChainID())
}
