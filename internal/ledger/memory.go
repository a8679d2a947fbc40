package ledger

import (
	"context"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"

	"batterypass/internal/authz"
	"batterypass/internal/signer"
	"batterypass/pkg/domain"
	dErrors "batterypass/pkg/domain-errors"
)

// Memory is an in-memory ledger implementing all three registry facades with
// the same rejection behavior the deployed contracts exhibit: duplicate
// registrations revert, stale nonces revert, and credential signatures are
// recovered rather than trusted. Used by tests and the dev server.
type Memory struct {
	mu sync.Mutex

	signingDomain  authz.SigningDomain
	credentialAddr common.Address
	passportAddr   common.Address
	now            func() time.Time

	registrars  map[common.Address]bool
	dids        map[string]domain.DIDRecord
	credentials map[string]Credential
	passports   map[uint64]Passport
	nonces      map[common.Address]uint64
	commitments map[uint64]map[domain.Action]common.Hash
	roleGrants  map[common.Address]map[domain.Role]bool
}

// MemoryOption configures the in-memory ledger.
type MemoryOption func(*Memory)

// WithClock overrides the ledger's block-time source.
func WithClock(now func() time.Time) MemoryOption {
	return func(m *Memory) {
		m.now = now
	}
}

// NewMemory constructs an empty in-memory ledger. The signing domain and the
// two verifying contract addresses must match what clients use to build
// authorization intents, since signatures are actually recovered here.
func NewMemory(sd authz.SigningDomain, credentialAddr, passportAddr common.Address, opts ...MemoryOption) *Memory {
	m := &Memory{
		signingDomain:  sd,
		credentialAddr: credentialAddr,
		passportAddr:   passportAddr,
		now:            time.Now,
		registrars:     make(map[common.Address]bool),
		dids:           make(map[string]domain.DIDRecord),
		credentials:    make(map[string]Credential),
		passports:      make(map[uint64]Passport),
		nonces:         make(map[common.Address]uint64),
		commitments:    make(map[uint64]map[domain.Action]common.Hash),
		roleGrants:     make(map[common.Address]map[domain.Role]bool),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// AddRegistrar grants the privileged registrar role to addr. Fixture helper,
// standing in for the contract deployer's initial grants.
func (m *Memory) AddRegistrar(addr common.Address) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.registrars[addr] = true
}

// CreatePassport mints a passport token. Fixture helper.
func (m *Memory) CreatePassport(p Passport) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.passports[p.TokenID] = p
}

// SetCommitment overwrites a committed content hash directly, bypassing
// authorization. Fixture helper for integrity-fault tests.
func (m *Memory) SetCommitment(tokenID uint64, action domain.Action, h common.Hash) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.commit(tokenID, action, h)
}

// --- IdentityRegistry ---

func (m *Memory) RegisterDID(_ context.Context, p RegisterDIDParams) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.registrars[p.Caller] {
		return ErrUnauthorized
	}
	if _, ok := m.dids[p.DID]; ok {
		return ErrAlreadyRegistered
	}
	if len(p.Roles) == 0 {
		return dErrors.New(dErrors.CodeOnChainRejected, "empty role set")
	}
	m.dids[p.DID] = domain.DIDRecord{
		Name:         p.DID,
		Owner:        p.Owner,
		TrustLevel:   p.TrustLevel,
		Roles:        append([]domain.Role(nil), p.Roles...),
		Verified:     false,
		RegisteredAt: m.now().Unix(),
	}
	return nil
}

func (m *Memory) VerifyDID(_ context.Context, did string, caller common.Address) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.registrars[caller] {
		return ErrUnauthorized
	}
	rec, ok := m.dids[did]
	if !ok {
		return ErrNotFound
	}
	// Idempotent: verifying a verified DID is a no-op.
	rec.Verified = true
	m.dids[did] = rec
	return nil
}

func (m *Memory) IsDIDRegistered(_ context.Context, did string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.dids[did]
	return ok, nil
}

func (m *Memory) GetDID(_ context.Context, did string) (domain.DIDRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.dids[did]
	if !ok {
		return domain.DIDRecord{}, ErrNotFound
	}
	return rec, nil
}

func (m *Memory) ValidateDIDRole(_ context.Context, did string, role domain.Role) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.dids[did]
	if !ok {
		return false, nil
	}
	return rec.Verified && rec.HasRole(role) && rec.TrustLevel >= role.MinTrust(), nil
}

// --- CredentialRegistry ---

func (m *Memory) IssueVerifiableCredential(_ context.Context, p IssueParams) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.credentials[p.ID]; ok {
		return ErrDuplicateCredential
	}
	rec, ok := m.dids[p.SubjectDID]
	if !ok || !rec.Verified {
		return dErrors.New(dErrors.CodeOnChainRejected, "subject did not verified")
	}
	m.credentials[p.ID] = Credential{
		ID:         p.ID,
		SubjectDID: p.SubjectDID,
		Issuer:     p.Issuer,
		Claims:     append([]byte(nil), p.Claims...),
		IssuedAt:   m.now().Unix(),
		ExpiresAt:  p.ExpiresAt,
	}
	return nil
}

func (m *Memory) SignCredential(_ context.Context, credentialID string, sig []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cred, ok := m.credentials[credentialID]
	if !ok {
		return ErrNotFound
	}
	recovered, err := signer.Recover(m.claimData(cred), sig)
	if err != nil || recovered != cred.Issuer {
		return dErrors.New(dErrors.CodeOnChainRejected, "signature does not recover to issuer")
	}
	cred.Signature = append([]byte(nil), sig...)
	m.credentials[credentialID] = cred
	return nil
}

func (m *Memory) ValidateVerifiableCredential(_ context.Context, credentialID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cred, ok := m.credentials[credentialID]
	if !ok {
		return false, nil
	}
	return m.credentialValid(cred), nil
}

func (m *Memory) RevokeCredential(_ context.Context, credentialID string, caller common.Address) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cred, ok := m.credentials[credentialID]
	if !ok {
		return ErrNotFound
	}
	if cred.Issuer != caller {
		return ErrUnauthorized
	}
	if cred.Revoked {
		// The deployed contract reverts here; callers translate this to
		// success since revocation is terminal either way.
		return dErrors.New(dErrors.CodeOnChainRejected, "credential already revoked")
	}
	cred.Revoked = true
	m.credentials[credentialID] = cred
	return nil
}

func (m *Memory) GetIssuedTimestamp(_ context.Context, credentialID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cred, ok := m.credentials[credentialID]
	if !ok {
		return 0, ErrNotFound
	}
	return cred.IssuedAt, nil
}

func (m *Memory) GetCredential(_ context.Context, credentialID string) (Credential, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cred, ok := m.credentials[credentialID]
	if !ok {
		return Credential{}, ErrNotFound
	}
	return cred, nil
}

// --- PassportRegistry ---

func (m *Memory) Exists(_ context.Context, tokenID uint64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.passports[tokenID]
	return ok, nil
}

func (m *Memory) GetBatteryPassport(_ context.Context, tokenID uint64) (Passport, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.passports[tokenID]
	if !ok {
		return Passport{}, ErrNotFound
	}
	return p, nil
}

func (m *Memory) GetLifecycleStatus(_ context.Context, tokenID uint64) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.passports[tokenID]
	if !ok {
		return "", ErrNotFound
	}
	return p.LifecycleStatus, nil
}

func (m *Memory) Nonce(_ context.Context, addr common.Address) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.nonces[addr], nil
}

func (m *Memory) GrantRole(_ context.Context, role domain.Role, grantee, caller common.Address) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.registrars[caller] {
		return ErrUnauthorized
	}
	if m.roleGrants[grantee] == nil {
		m.roleGrants[grantee] = make(map[domain.Role]bool)
	}
	m.roleGrants[grantee][role] = true
	return nil
}

func (m *Memory) AssignOrganization(_ context.Context, tokenID uint64, org string, caller common.Address) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.registrars[caller] {
		return ErrUnauthorized
	}
	p, ok := m.passports[tokenID]
	if !ok {
		return ErrNotFound
	}
	p.Organization = org
	m.passports[tokenID] = p
	return nil
}

func (m *Memory) SubmitUpdate(_ context.Context, u Update) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.passports[u.TokenID]
	if !ok {
		return dErrors.New(dErrors.CodeOnChainRejected, "token does not exist")
	}
	rec, ok := m.dids[u.DID]
	if !ok || !rec.Verified {
		return dErrors.New(dErrors.CodeOnChainRejected, "did not registered or not verified")
	}
	if !rec.OwnedBy(u.Caller) {
		return dErrors.New(dErrors.CodeOnChainRejected, "caller does not own did")
	}
	cred, ok := m.credentials[u.CredentialID]
	if !ok || cred.SubjectDID != u.DID || !m.credentialValid(cred) {
		return dErrors.New(dErrors.CodeOnChainRejected, "credential invalid for did")
	}

	data, err := authz.Update(m.signingDomain, m.passportAddr, authz.UpdateParams{
		Action:        u.Action,
		TokenID:       u.TokenID,
		ContentHashes: u.ContentHashes,
		Caller:        u.Caller,
		Nonce:         u.Nonce,
		NewOwner:      u.NewOwner,
		Status:        u.Status,
	})
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeOnChainRejected, "malformed update")
	}
	recovered, err := signer.Recover(data, u.Signature)
	if err != nil || recovered != u.Caller {
		return dErrors.New(dErrors.CodeOnChainRejected, "authorization signature does not recover to caller")
	}

	if u.Action.UsesNonce() {
		if u.Nonce != m.nonces[u.Caller] {
			return dErrors.New(dErrors.CodeOnChainRejected, "nonce already used")
		}
		m.nonces[u.Caller]++
	}

	switch u.Action {
	case domain.ActionMaterialComposition:
		m.commit(u.TokenID, domain.ActionMaterialComposition, u.ContentHashes[0])
		m.commit(u.TokenID, domain.ActionDueDiligence, u.ContentHashes[1])
	case domain.ActionOwnershipTransfer:
		p.Owner = u.NewOwner
		m.passports[u.TokenID] = p
		m.commit(u.TokenID, u.Action, u.ContentHashes[0])
	case domain.ActionLifecycleStatus:
		p.LifecycleStatus = u.Status
		m.passports[u.TokenID] = p
		m.commit(u.TokenID, u.Action, u.ContentHashes[0])
	case domain.ActionStatusChange:
		p.Status = u.Status
		m.passports[u.TokenID] = p
		m.commit(u.TokenID, u.Action, u.ContentHashes[0])
	default:
		m.commit(u.TokenID, u.Action, u.ContentHashes[0])
	}
	return nil
}

func (m *Memory) GetContentCommitment(_ context.Context, q ContentQuery) (common.Hash, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	data := authz.ContentRead(m.signingDomain, m.passportAddr, q.Action, q.TokenID, q.Caller)
	recovered, err := signer.Recover(data, q.Signature)
	if err != nil || recovered != q.Caller {
		return common.Hash{}, ErrUnauthorized
	}
	h, ok := m.commitments[q.TokenID][q.Action]
	if !ok {
		return common.Hash{}, ErrNotFound
	}
	return h, nil
}

func (m *Memory) commit(tokenID uint64, action domain.Action, h common.Hash) {
	if m.commitments[tokenID] == nil {
		m.commitments[tokenID] = make(map[domain.Action]common.Hash)
	}
	m.commitments[tokenID][action] = h
}

func (m *Memory) claimData(c Credential) apitypes.TypedData {
	return authz.CredentialClaim(m.signingDomain, m.credentialAddr, authz.CredentialClaimParams{
		ID:         c.ID,
		Issuer:     c.Issuer,
		Subject:    c.SubjectDID,
		ClaimsHash: domain.Keccak(c.Claims),
		IssuedAt:   c.IssuedAt,
		ExpiresAt:  c.ExpiresAt,
	})
}

func (m *Memory) credentialValid(c Credential) bool {
	if c.Revoked || len(c.Signature) == 0 {
		return false
	}
	if m.now().Unix() >= c.ExpiresAt {
		return false
	}
	recovered, err := signer.Recover(m.claimData(c), c.Signature)
	return err == nil && recovered == c.Issuer
}

var (
	_ IdentityRegistry   = (*Memory)(nil)
	_ CredentialRegistry = (*Memory)(nil)
	_ PassportRegistry   = (*Memory)(nil)
)
