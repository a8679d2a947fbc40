// Package authz builds the typed-data payloads that authorize protocol
// operations: credential claims, content updates, and content reads.
//
// Field names, field order, and field types here must exactly match the
// struct declarations the verifying contracts recompute. A mismatch does not
// fail client-side; it silently produces a signature the contract will not
// accept. Treat every edit to a struct definition below as a contract change.
package authz

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"

	"batterypass/internal/signer"
	"batterypass/pkg/domain"
	dErrors "batterypass/pkg/domain-errors"
)

// SigningDomain carries the fixed EIP-712 domain parameters. The verifying
// contract address varies per intent and is supplied at build time.
type SigningDomain struct {
	Name    string
	Version string
	ChainID uint64
}

// CredentialClaimParams describes the struct signed by a credential issuer.
// IssuedAt is always the ledger's own timestamp, read back after issuance.
type CredentialClaimParams struct {
	ID         string
	Issuer     common.Address
	Subject    string
	ClaimsHash common.Hash
	IssuedAt   int64
	ExpiresAt  int64
}

// CredentialClaim builds the typed data an issuer signs over a credential.
func CredentialClaim(sd SigningDomain, verifying common.Address, p CredentialClaimParams) apitypes.TypedData {
	return signer.NewTypedData(
		signer.Domain(sd.Name, sd.Version, sd.ChainID, verifying),
		"CredentialClaim",
		[]apitypes.Type{
			{Name: "id", Type: "string"},
			{Name: "issuer", Type: "address"},
			{Name: "subject", Type: "string"},
			{Name: "claims", Type: "bytes32"},
			{Name: "issuedAt", Type: "uint256"},
			{Name: "expiresAt", Type: "uint256"},
		},
		apitypes.TypedDataMessage{
			"id":        p.ID,
			"issuer":    p.Issuer.Hex(),
			"subject":   p.Subject,
			"claims":    p.ClaimsHash.Hex(),
			"issuedAt":  uint256(p.IssuedAt),
			"expiresAt": uint256(p.ExpiresAt),
		},
	)
}

// UpdateParams describes one authorized content update. ContentHashes holds
// the on-chain commitment per published payload, in action-defined order.
type UpdateParams struct {
	Action        domain.Action
	TokenID       uint64
	ContentHashes []common.Hash
	Caller        common.Address
	Nonce         uint64         // nonce-bearing actions only
	NewOwner      common.Address // ownership transfer only
	Status        string         // lifecycle and status change only
}

// Update builds the action-specific typed data authorizing a content update.
func Update(sd SigningDomain, verifying common.Address, p UpdateParams) (apitypes.TypedData, error) {
	dom := signer.Domain(sd.Name, sd.Version, sd.ChainID, verifying)

	switch p.Action {
	case domain.ActionMaterialComposition:
		// Composition and due diligence documents are committed together.
		if err := wantHashes(p, 2); err != nil {
			return apitypes.TypedData{}, err
		}
		return signer.NewTypedData(dom, "MaterialCompositionUpdate",
			[]apitypes.Type{
				{Name: "tokenId", Type: "uint256"},
				{Name: "compositionHash", Type: "bytes32"},
				{Name: "dueDiligenceHash", Type: "bytes32"},
				{Name: "caller", Type: "address"},
			},
			apitypes.TypedDataMessage{
				"tokenId":          uint256u(p.TokenID),
				"compositionHash":  p.ContentHashes[0].Hex(),
				"dueDiligenceHash": p.ContentHashes[1].Hex(),
				"caller":           p.Caller.Hex(),
			}), nil

	case domain.ActionDueDiligence:
		if err := wantHashes(p, 1); err != nil {
			return apitypes.TypedData{}, err
		}
		return signer.NewTypedData(dom, "DueDiligenceUpdate",
			[]apitypes.Type{
				{Name: "tokenId", Type: "uint256"},
				{Name: "contentHash", Type: "bytes32"},
				{Name: "caller", Type: "address"},
			},
			apitypes.TypedDataMessage{
				"tokenId":     uint256u(p.TokenID),
				"contentHash": p.ContentHashes[0].Hex(),
				"caller":      p.Caller.Hex(),
			}), nil

	case domain.ActionLifecycleStatus:
		if err := wantHashes(p, 1); err != nil {
			return apitypes.TypedData{}, err
		}
		return signer.NewTypedData(dom, "LifecycleStatusUpdate",
			[]apitypes.Type{
				{Name: "tokenId", Type: "uint256"},
				{Name: "contentHash", Type: "bytes32"},
				{Name: "status", Type: "string"},
				{Name: "caller", Type: "address"},
				{Name: "nonce", Type: "uint256"},
			},
			apitypes.TypedDataMessage{
				"tokenId":     uint256u(p.TokenID),
				"contentHash": p.ContentHashes[0].Hex(),
				"status":      p.Status,
				"caller":      p.Caller.Hex(),
				"nonce":       uint256u(p.Nonce),
			}), nil

	case domain.ActionOwnershipTransfer:
		if err := wantHashes(p, 1); err != nil {
			return apitypes.TypedData{}, err
		}
		return signer.NewTypedData(dom, "OwnershipTransfer",
			[]apitypes.Type{
				{Name: "tokenId", Type: "uint256"},
				{Name: "contentHash", Type: "bytes32"},
				{Name: "newOwner", Type: "address"},
				{Name: "caller", Type: "address"},
				{Name: "nonce", Type: "uint256"},
			},
			apitypes.TypedDataMessage{
				"tokenId":     uint256u(p.TokenID),
				"contentHash": p.ContentHashes[0].Hex(),
				"newOwner":    p.NewOwner.Hex(),
				"caller":      p.Caller.Hex(),
				"nonce":       uint256u(p.Nonce),
			}), nil

	case domain.ActionStatusChange:
		if err := wantHashes(p, 1); err != nil {
			return apitypes.TypedData{}, err
		}
		return signer.NewTypedData(dom, "StatusChange",
			[]apitypes.Type{
				{Name: "tokenId", Type: "uint256"},
				{Name: "contentHash", Type: "bytes32"},
				{Name: "status", Type: "string"},
				{Name: "caller", Type: "address"},
			},
			apitypes.TypedDataMessage{
				"tokenId":     uint256u(p.TokenID),
				"contentHash": p.ContentHashes[0].Hex(),
				"status":      p.Status,
				"caller":      p.Caller.Hex(),
			}), nil

	case domain.ActionDiscrepancyReport:
		if err := wantHashes(p, 1); err != nil {
			return apitypes.TypedData{}, err
		}
		return signer.NewTypedData(dom, "DiscrepancyReport",
			[]apitypes.Type{
				{Name: "tokenId", Type: "uint256"},
				{Name: "contentHash", Type: "bytes32"},
				{Name: "caller", Type: "address"},
			},
			apitypes.TypedDataMessage{
				"tokenId":     uint256u(p.TokenID),
				"contentHash": p.ContentHashes[0].Hex(),
				"caller":      p.Caller.Hex(),
			}), nil
	}

	return apitypes.TypedData{}, dErrors.New(dErrors.CodeBadRequest, "unknown action "+string(p.Action))
}

// ContentRead builds the typed data authorizing a read of the committed hash
// for one token and action. Read authorizations carry no nonce; they change
// no state and are naturally replayable.
func ContentRead(sd SigningDomain, verifying common.Address, action domain.Action, tokenID uint64, caller common.Address) apitypes.TypedData {
	return signer.NewTypedData(
		signer.Domain(sd.Name, sd.Version, sd.ChainID, verifying),
		"ContentRead",
		[]apitypes.Type{
			{Name: "tokenId", Type: "uint256"},
			{Name: "action", Type: "string"},
			{Name: "caller", Type: "address"},
		},
		apitypes.TypedDataMessage{
			"tokenId": uint256u(tokenID),
			"action":  string(action),
			"caller":  caller.Hex(),
		},
	)
}

func wantHashes(p UpdateParams, n int) error {
	if len(p.ContentHashes) != n {
		return dErrors.New(dErrors.CodeBadRequest, "wrong content hash count for "+string(p.Action))
	}
	return nil
}

func uint256(v int64) string {
	return new(big.Int).SetInt64(v).String()
}

// uint256u encodes unsigned fields. Token ids and nonces are full-range
// uint64 values; a signed conversion would flip anything above MaxInt64.
func uint256u(v uint64) string {
	return new(big.Int).SetUint64(v).String()
}
