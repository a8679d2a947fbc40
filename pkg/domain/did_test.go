package domain

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDID(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    DID
		wantErr bool
	}{
		{
			name:  "full form",
			input: "did:web:org.example#create-0xabc",
			want:  DID{Method: "web", Namespace: "org.example", Discriminator: "create-0xabc"},
		},
		{
			name:    "missing prefix",
			input:   "web:org.example#x",
			wantErr: true,
		},
		{
			name:    "missing discriminator",
			input:   "did:web:org.example",
			wantErr: true,
		},
		{
			name:    "empty namespace",
			input:   "did:web:#x",
			wantErr: true,
		},
		{
			name:    "empty method",
			input:   "did::org.example#x",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseDID(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.input, got.String())
		})
	}
}

func TestDIDHashDeterministic(t *testing.T) {
	d, err := ParseDID("did:web:org.example#create-0xabc")
	require.NoError(t, err)
	assert.Equal(t, d.Hash(), d.Hash())
	assert.NotEqual(t, common.Hash{}, d.Hash())

	other, err := ParseDID("did:web:org.example#create-0xdef")
	require.NoError(t, err)
	assert.NotEqual(t, d.Hash(), other.Hash())
}

func TestDIDRecordOwnership(t *testing.T) {
	owner := common.HexToAddress("0xAbC0000000000000000000000000000000000001")
	rec := DIDRecord{Owner: owner, Roles: []Role{RoleSupplier}}

	// Mixed-case input normalizes through common.Address.
	sameMixedCase := common.HexToAddress("0xabc0000000000000000000000000000000000001")
	assert.True(t, rec.OwnedBy(sameMixedCase))
	assert.False(t, rec.OwnedBy(common.HexToAddress("0x02")))

	assert.True(t, rec.HasRole(RoleSupplier))
	assert.False(t, rec.HasRole(RoleManufacturer))
}
