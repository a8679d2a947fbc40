// Package ledger is the stateless facade over the on-chain registries: the
// identity registry, the credential registry, and the battery passport
// contract. It carries typed call and response shapes only; sequencing and
// invariant checks live in the services built on top of it.
package ledger

import (
	"context"
	"encoding/json"

	"github.com/ethereum/go-ethereum/common"

	"batterypass/pkg/domain"
	dErrors "batterypass/pkg/domain-errors"
)

// Credential mirrors the credential registry's stored record.
type Credential struct {
	ID         string
	SubjectDID string
	Issuer     common.Address
	Claims     json.RawMessage
	IssuedAt   int64
	ExpiresAt  int64
	Signature  []byte // absent until signed
	Revoked    bool
}

// Passport mirrors the battery passport contract's per-token record.
type Passport struct {
	TokenID         uint64
	Owner           common.Address
	Organization    string
	LifecycleStatus string
	Status          string
}

// RegisterDIDParams are the arguments to the identity registry's registerDID.
// Caller must hold a privileged registrar role on-chain.
type RegisterDIDParams struct {
	DID        string
	Owner      common.Address
	TrustLevel uint8
	Roles      []domain.Role
	Caller     common.Address
}

// IssueParams are the arguments to issueVerifiableCredential. The credential
// is created unsigned; the issuer signs in a separate step against the
// issued-at timestamp the ledger assigned.
type IssueParams struct {
	ID         string
	SubjectDID string
	Claims     json.RawMessage
	ExpiresAt  int64
	Issuer     common.Address
}

// Update carries one authorized state-changing call to the passport contract.
// ContentHashes are on-chain commitments (keccak of the content id), in the
// action-defined order. Signature is the caller's typed-data authorization
// over exactly these fields.
type Update struct {
	Action        domain.Action
	TokenID       uint64
	DID           string
	CredentialID  string
	ContentHashes []common.Hash
	Caller        common.Address
	Nonce         uint64
	NewOwner      common.Address
	Status        string
	Signature     []byte
}

// ContentQuery asks for the committed content hash of one token and action.
// Reads are authorized by a domain-separated signature as well, so a leaked
// RPC endpoint alone cannot enumerate commitments.
type ContentQuery struct {
	TokenID   uint64
	Action    domain.Action
	Caller    common.Address
	Signature []byte
}

// IdentityRegistry is the identity registry contract facade.
type IdentityRegistry interface {
	RegisterDID(ctx context.Context, p RegisterDIDParams) error
	VerifyDID(ctx context.Context, did string, caller common.Address) error
	IsDIDRegistered(ctx context.Context, did string) (bool, error)
	GetDID(ctx context.Context, did string) (domain.DIDRecord, error)
	ValidateDIDRole(ctx context.Context, did string, role domain.Role) (bool, error)
}

// CredentialRegistry is the credential registry contract facade.
type CredentialRegistry interface {
	IssueVerifiableCredential(ctx context.Context, p IssueParams) error
	SignCredential(ctx context.Context, credentialID string, sig []byte) error
	ValidateVerifiableCredential(ctx context.Context, credentialID string) (bool, error)
	RevokeCredential(ctx context.Context, credentialID string, caller common.Address) error
	GetIssuedTimestamp(ctx context.Context, credentialID string) (int64, error)
	GetCredential(ctx context.Context, credentialID string) (Credential, error)
}

// PassportRegistry is the battery passport contract facade.
type PassportRegistry interface {
	Exists(ctx context.Context, tokenID uint64) (bool, error)
	GetBatteryPassport(ctx context.Context, tokenID uint64) (Passport, error)
	GetLifecycleStatus(ctx context.Context, tokenID uint64) (string, error)
	Nonce(ctx context.Context, addr common.Address) (uint64, error)
	GrantRole(ctx context.Context, role domain.Role, grantee, caller common.Address) error
	AssignOrganization(ctx context.Context, tokenID uint64, org string, caller common.Address) error
	SubmitUpdate(ctx context.Context, u Update) error
	GetContentCommitment(ctx context.Context, q ContentQuery) (common.Hash, error)
}

// Clients bundles the three facades an orchestrator works against.
type Clients struct {
	Identity   IdentityRegistry
	Credential CredentialRegistry
	Passport   PassportRegistry
}

// Shared rejection shapes. Implementations return these codes so callers can
// branch on errors.Is without knowing which backend produced them.
var (
	ErrAlreadyRegistered   = dErrors.New(dErrors.CodeAlreadyRegistered, "did already registered")
	ErrDuplicateCredential = dErrors.New(dErrors.CodeDuplicateCredential, "credential id already exists")
	ErrNotFound            = dErrors.New(dErrors.CodeNotFound, "record not found")
	ErrUnauthorized        = dErrors.New(dErrors.CodeUnauthorized, "caller lacks required on-chain role")
	ErrRejected            = dErrors.New(dErrors.CodeOnChainRejected, "execution rejected")
)
