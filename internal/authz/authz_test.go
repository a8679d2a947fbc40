package authz

import (
	"math"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"batterypass/internal/signer"
	"batterypass/pkg/domain"
)

var testDomain = SigningDomain{Name: "BatteryPassport", Version: "1", ChainID: 31337}

func TestUpdateDigestChangesWithEveryField(t *testing.T) {
	verifying := common.HexToAddress("0x1000")
	base := UpdateParams{
		Action:        domain.ActionOwnershipTransfer,
		TokenID:       7,
		ContentHashes: []common.Hash{common.HexToHash("0xaa")},
		Caller:        common.HexToAddress("0x01"),
		NewOwner:      common.HexToAddress("0x02"),
		Nonce:         3,
	}

	digestOf := func(p UpdateParams, contract common.Address) []byte {
		td, err := Update(testDomain, contract, p)
		require.NoError(t, err)
		d, err := signer.Digest(td)
		require.NoError(t, err)
		return d
	}

	ref := digestOf(base, verifying)
	assert.Equal(t, ref, digestOf(base, verifying), "identical input must hash identically")

	changedHash := base
	changedHash.ContentHashes = []common.Hash{common.HexToHash("0xab")}
	assert.NotEqual(t, ref, digestOf(changedHash, verifying))

	changedNonce := base
	changedNonce.Nonce = 4
	assert.NotEqual(t, ref, digestOf(changedNonce, verifying))

	assert.NotEqual(t, ref, digestOf(base, common.HexToAddress("0x2000")))
}

func TestUpdatePayloadCount(t *testing.T) {
	_, err := Update(testDomain, common.HexToAddress("0x1000"), UpdateParams{
		Action:        domain.ActionMaterialComposition,
		TokenID:       1,
		ContentHashes: []common.Hash{common.HexToHash("0xaa")},
		Caller:        common.HexToAddress("0x01"),
	})
	require.Error(t, err, "material composition commits two documents")

	_, err = Update(testDomain, common.HexToAddress("0x1000"), UpdateParams{
		Action:        domain.ActionDueDiligence,
		TokenID:       1,
		ContentHashes: []common.Hash{common.HexToHash("0xaa"), common.HexToHash("0xbb")},
		Caller:        common.HexToAddress("0x01"),
	})
	require.Error(t, err)
}

func TestEveryActionBuilds(t *testing.T) {
	for _, action := range domain.AllActions {
		hashes := []common.Hash{common.HexToHash("0xaa")}
		if action == domain.ActionMaterialComposition {
			hashes = append(hashes, common.HexToHash("0xbb"))
		}
		td, err := Update(testDomain, common.HexToAddress("0x1000"), UpdateParams{
			Action:        action,
			TokenID:       1,
			ContentHashes: hashes,
			Caller:        common.HexToAddress("0x01"),
			NewOwner:      common.HexToAddress("0x02"),
			Status:        "IN_USE",
			Nonce:         1,
		})
		require.NoError(t, err, "action %s", action)
		_, err = signer.Digest(td)
		require.NoError(t, err, "action %s", action)
	}
}

func TestUpdateFullRangeTokenAndNonce(t *testing.T) {
	td, err := Update(testDomain, common.HexToAddress("0x1000"), UpdateParams{
		Action:        domain.ActionOwnershipTransfer,
		TokenID:       math.MaxUint64,
		ContentHashes: []common.Hash{common.HexToHash("0xaa")},
		Caller:        common.HexToAddress("0x01"),
		NewOwner:      common.HexToAddress("0x02"),
		Nonce:         math.MaxUint64,
	})
	require.NoError(t, err)
	assert.Equal(t, "18446744073709551615", td.Message["tokenId"])
	assert.Equal(t, "18446744073709551615", td.Message["nonce"])
	_, err = signer.Digest(td)
	require.NoError(t, err)

	read := ContentRead(testDomain, common.HexToAddress("0x1000"),
		domain.ActionDueDiligence, math.MaxUint64, common.HexToAddress("0x01"))
	assert.Equal(t, "18446744073709551615", read.Message["tokenId"])
	_, err = signer.Digest(read)
	require.NoError(t, err)
}

func TestCredentialClaimDeterministic(t *testing.T) {
	p := CredentialClaimParams{
		ID:         "cred-1",
		Issuer:     common.HexToAddress("0x01"),
		Subject:    "did:web:org.example#create-0xabc",
		ClaimsHash: common.HexToHash("0xcc"),
		IssuedAt:   1700000000,
		ExpiresAt:  1800000000,
	}
	a, err := signer.Digest(CredentialClaim(testDomain, common.HexToAddress("0x1000"), p))
	require.NoError(t, err)
	b, err := signer.Digest(CredentialClaim(testDomain, common.HexToAddress("0x1000"), p))
	require.NoError(t, err)
	assert.Equal(t, a, b)

	p.IssuedAt++
	c, err := signer.Digest(CredentialClaim(testDomain, common.HexToAddress("0x1000"), p))
	require.NoError(t, err)
	assert.NotEqual(t, a, c)
}
