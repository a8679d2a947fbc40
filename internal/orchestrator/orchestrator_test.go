package orchestrator_test

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"batterypass/internal/authz"
	"batterypass/internal/contentstore"
	"batterypass/internal/credential"
	"batterypass/internal/directory"
	"batterypass/internal/directory/directorytest"
	"batterypass/internal/identity"
	"batterypass/internal/ledger"
	"batterypass/internal/orchestrator"
	"batterypass/internal/session"
	"batterypass/internal/signer"
	"batterypass/pkg/domain"
	dErrors "batterypass/pkg/domain-errors"
)

const (
	issuerKeyHex = "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"
	holderKeyHex = "8f2a559490f71d2e9d1cf2f5c7b95fdc16b7f1d5cae358595e3c4cdf31d9f0a1"
	holderDID    = "did:web:acme.example#create-0xabc"
	credentialID = "cred-1"
	tokenID      = uint64(7)
)

var (
	testDomain     = authz.SigningDomain{Name: "BatteryPassport", Version: "1", ChainID: 31337}
	credentialAddr = common.HexToAddress("0x00000000000000000000000000000000000000c1")
	passportAddr   = common.HexToAddress("0x00000000000000000000000000000000000000c2")
	registrarAddr  = common.HexToAddress("0x00000000000000000000000000000000000000a1")
)

type fixture struct {
	mem    *ledger.Memory
	store  *contentstore.InMemoryStore
	fake   *directorytest.Server
	dir    *directory.Client
	issuer *credential.Issuer
	holder *signer.LocalSigner
	sess   *session.Session
	orch   *orchestrator.Orchestrator
	clock  *time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	now := time.Unix(1_700_000_000, 0)
	f := &fixture{clock: &now}

	f.mem = ledger.NewMemory(testDomain, credentialAddr, passportAddr,
		ledger.WithClock(func() time.Time { return *f.clock }))
	f.mem.AddRegistrar(registrarAddr)

	issuerSigner, err := signer.NewLocalFromHex(issuerKeyHex)
	require.NoError(t, err)
	f.holder, err = signer.NewLocalFromHex(holderKeyHex)
	require.NoError(t, err)

	require.NoError(t, f.mem.RegisterDID(ctx, ledger.RegisterDIDParams{
		DID:        holderDID,
		Owner:      f.holder.Address(),
		TrustLevel: 3,
		Roles:      []domain.Role{domain.RoleSupplier},
		Caller:     registrarAddr,
	}))
	require.NoError(t, f.mem.VerifyDID(ctx, holderDID, registrarAddr))

	f.issuer = credential.NewIssuer(f.mem, f.mem, issuerSigner, testDomain, credentialAddr)
	require.NoError(t, f.issuer.Issue(ctx, credential.IssueParams{
		ID:         credentialID,
		SubjectDID: holderDID,
		Claims:     json.RawMessage(`{"role":"SUPPLIER"}`),
		ExpiresAt:  now.Add(24 * time.Hour).Unix(),
	}))

	f.fake = directorytest.New()
	f.fake.AddMember(directory.MemberRecord{
		Address:      f.holder.Address().Hex(),
		Organization: "Acme Cells",
		DIDName:      holderDID,
		CredentialID: credentialID,
	})
	srv := httptest.NewServer(f.fake.Handler())
	t.Cleanup(srv.Close)
	f.dir = directory.NewClient(srv.URL)

	f.mem.CreatePassport(ledger.Passport{TokenID: tokenID, Owner: f.holder.Address()})

	f.store = contentstore.NewInMemoryStore()
	f.sess = session.New(f.holder, f.dir)

	f.orch = orchestrator.New(
		f.mem, f.store, f.dir,
		identity.NewService(f.mem, f.mem),
		f.issuer,
		testDomain, passportAddr,
	)
	return f
}

func TestUpdateHappyPath(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.orch.Update(ctx, f.sess, orchestrator.UpdateRequest{
		Action:   domain.ActionDueDiligence,
		TokenID:  tokenID,
		Role:     domain.RoleSupplier,
		Payloads: []any{map[string]string{"report": "cobalt sourcing"}},
		Detail:   "annual report",
	})
	require.NoError(t, err)
	require.Len(t, res.ContentIDs, 1)
	assert.True(t, res.Reconciled)
	assert.Equal(t, res.ContentIDs[0].Commitment(), res.Commitments[0])

	history := f.fake.History(tokenID)
	require.Len(t, history, 1)
	assert.Equal(t, res.ContentIDs[0], history[0].Hash)

	activities := f.fake.Activities()
	require.Len(t, activities, 1)
	assert.Equal(t, domain.ActionDueDiligence, activities[0].Action)
	assert.Equal(t, f.holder.Address().Hex(), activities[0].Actor)
}

func TestMaterialCompositionCommitsBothDocuments(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.orch.Update(ctx, f.sess, orchestrator.UpdateRequest{
		Action:  domain.ActionMaterialComposition,
		TokenID: tokenID,
		Role:    domain.RoleSupplier,
		Payloads: []any{
			map[string]string{"material": "NMC 811"},
			map[string]string{"audit": "smelter list"},
		},
	})
	require.NoError(t, err)
	require.Len(t, res.ContentIDs, 2)

	history := f.fake.History(tokenID)
	require.Len(t, history, 2)
	assert.Equal(t, domain.ActionMaterialComposition, history[0].Action)
	assert.Equal(t, domain.ActionDueDiligence, history[1].Action)

	// Both commitments are readable back, each under its own action.
	for i, action := range []domain.Action{domain.ActionMaterialComposition, domain.ActionDueDiligence} {
		got, err := f.mem.GetContentCommitment(ctx, signedQuery(t, f, action))
		require.NoError(t, err)
		assert.Equal(t, res.ContentIDs[i].Commitment(), got)
	}
}

func signedQuery(t *testing.T, f *fixture, action domain.Action) ledger.ContentQuery {
	t.Helper()
	data := authz.ContentRead(testDomain, passportAddr, action, tokenID, f.holder.Address())
	sig, err := f.holder.SignTypedData(context.Background(), data)
	require.NoError(t, err)
	return ledger.ContentQuery{TokenID: tokenID, Action: action, Caller: f.holder.Address(), Signature: sig}
}

func TestPartialPublishFailureStopsPipeline(t *testing.T) {
	f := newFixture(t)
	f.store.FailAfter = 1
	f.store.UploadErr = dErrors.New(dErrors.CodeTransport, "pinning service down")

	_, err := f.orch.Update(context.Background(), f.sess, orchestrator.UpdateRequest{
		Action:  domain.ActionMaterialComposition,
		TokenID: tokenID,
		Role:    domain.RoleSupplier,
		Payloads: []any{
			map[string]string{"material": "NMC 811"},
			map[string]string{"audit": "smelter list"},
		},
	})
	assert.True(t, dErrors.HasCode(err, dErrors.CodeContentPublishFailed))

	// Nothing reached the chain or the directory.
	_, err = f.mem.GetContentCommitment(context.Background(), signedQuery(t, f, domain.ActionMaterialComposition))
	assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
	assert.Empty(t, f.fake.History(tokenID))
}

func TestPreflightFailures(t *testing.T) {
	ctx := context.Background()
	payload := []any{map[string]string{"report": "x"}}

	t.Run("missing token", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.orch.Update(ctx, f.sess, orchestrator.UpdateRequest{
			Action: domain.ActionDueDiligence, TokenID: 99, Role: domain.RoleSupplier, Payloads: payload,
		})
		assert.True(t, dErrors.HasCode(err, dErrors.CodePreconditionFailed))
	})

	t.Run("revoked credential", func(t *testing.T) {
		f := newFixture(t)
		require.NoError(t, f.issuer.Revoke(ctx, credentialID))
		_, err := f.orch.Update(ctx, f.sess, orchestrator.UpdateRequest{
			Action: domain.ActionDueDiligence, TokenID: tokenID, Role: domain.RoleSupplier, Payloads: payload,
		})
		assert.True(t, dErrors.HasCode(err, dErrors.CodePreconditionFailed))
	})

	t.Run("role not held", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.orch.Update(ctx, f.sess, orchestrator.UpdateRequest{
			Action: domain.ActionDueDiligence, TokenID: tokenID, Role: domain.RoleManufacturer, Payloads: payload,
		})
		assert.True(t, dErrors.HasCode(err, dErrors.CodePreconditionFailed))
	})

	t.Run("transfer by non-owner", func(t *testing.T) {
		f := newFixture(t)
		f.mem.CreatePassport(ledger.Passport{TokenID: 8, Owner: registrarAddr})
		_, err := f.orch.Update(ctx, f.sess, orchestrator.UpdateRequest{
			Action: domain.ActionOwnershipTransfer, TokenID: 8, Role: domain.RoleSupplier,
			Payloads: payload, NewOwner: registrarAddr,
		})
		assert.True(t, dErrors.HasCode(err, dErrors.CodePreconditionFailed))
	})

	t.Run("wrong payload count", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.orch.Update(ctx, f.sess, orchestrator.UpdateRequest{
			Action: domain.ActionMaterialComposition, TokenID: tokenID, Role: domain.RoleSupplier, Payloads: payload,
		})
		assert.True(t, dErrors.HasCode(err, dErrors.CodeBadRequest))
	})
}

// stalePassport serves a fixed nonce regardless of chain state, simulating a
// lagging RPC node.
type stalePassport struct {
	ledger.PassportRegistry
	nonce uint64
}

func (s *stalePassport) Nonce(_ context.Context, _ common.Address) (uint64, error) {
	return s.nonce, nil
}

func TestStaleNonceRejectedWithoutRetry(t *testing.T) {
	f := newFixture(t)
	stale := &stalePassport{PassportRegistry: f.mem, nonce: 0}
	f.orch = orchestrator.New(stale, f.store, f.dir,
		identity.NewService(f.mem, f.mem), f.issuer, testDomain, passportAddr)
	ctx := context.Background()

	first := orchestrator.UpdateRequest{
		Action: domain.ActionLifecycleStatus, TokenID: tokenID, Role: domain.RoleSupplier,
		Payloads: []any{map[string]string{"event": "in service"}}, Status: "IN_SERVICE",
	}
	_, err := f.orch.Update(ctx, f.sess, first)
	require.NoError(t, err)

	// The chain is now at nonce 1 but the registry still reports 0. The
	// second submission is rejected and surfaces as-is; nothing re-signs or
	// resubmits behind the caller's back.
	_, err = f.orch.Update(ctx, f.sess, first)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeOnChainRejected))
	assert.Len(t, f.fake.History(tokenID), 1)
}

// denySigner rejects every typed-data prompt, like a user dismissing the
// wallet dialog.
type denySigner struct {
	signer.Signer
}

func (d *denySigner) SignTypedData(_ context.Context, _ apitypes.TypedData) ([]byte, error) {
	return nil, signer.ErrDenied
}

func TestSignerDenialAbortsBeforeSubmission(t *testing.T) {
	f := newFixture(t)
	sess := session.New(&denySigner{Signer: f.holder}, f.dir)

	_, err := f.orch.Update(context.Background(), sess, orchestrator.UpdateRequest{
		Action: domain.ActionDueDiligence, TokenID: tokenID, Role: domain.RoleSupplier,
		Payloads: []any{map[string]string{"report": "x"}},
	})
	assert.True(t, dErrors.HasCode(err, dErrors.CodeSignatureDenied))
	_, err = f.mem.GetContentCommitment(context.Background(), signedQuery(t, f, domain.ActionDueDiligence))
	assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
}

// truncatingSigner returns a structurally invalid signature.
type truncatingSigner struct {
	signer.Signer
}

func (s *truncatingSigner) SignTypedData(ctx context.Context, data apitypes.TypedData) ([]byte, error) {
	sig, err := s.Signer.SignTypedData(ctx, data)
	if err != nil {
		return nil, err
	}
	return sig[:10], nil
}

func TestMalformedSignatureIsHardStop(t *testing.T) {
	f := newFixture(t)
	sess := session.New(&truncatingSigner{Signer: f.holder}, f.dir)

	_, err := f.orch.Update(context.Background(), sess, orchestrator.UpdateRequest{
		Action: domain.ActionDueDiligence, TokenID: tokenID, Role: domain.RoleSupplier,
		Payloads: []any{map[string]string{"report": "x"}},
	})
	assert.True(t, dErrors.HasCode(err, dErrors.CodeSignatureMalformed))
}

// failingIndex accepts nothing, simulating a directory outage.
type failingIndex struct{}

func (failingIndex) AppendContentHash(context.Context, uint64, directory.HashEntry) error {
	return dErrors.New(dErrors.CodeTransport, "directory unavailable")
}

func (failingIndex) ContentHistory(context.Context, uint64) ([]directory.HashEntry, error) {
	return nil, dErrors.New(dErrors.CodeTransport, "directory unavailable")
}

func (failingIndex) RecordActivity(context.Context, directory.ActivityEntry) error {
	return dErrors.New(dErrors.CodeTransport, "directory unavailable")
}

func TestReconciliationFailureDoesNotFailUpdate(t *testing.T) {
	f := newFixture(t)
	orch := orchestrator.New(f.mem, f.store, failingIndex{},
		identity.NewService(f.mem, f.mem), f.issuer, testDomain, passportAddr)

	res, err := orch.Update(context.Background(), f.sess, orchestrator.UpdateRequest{
		Action: domain.ActionDueDiligence, TokenID: tokenID, Role: domain.RoleSupplier,
		Payloads: []any{map[string]string{"report": "x"}},
	})
	require.NoError(t, err)
	assert.False(t, res.Reconciled)

	// The commitment made it on-chain regardless.
	got, err := f.mem.GetContentCommitment(context.Background(), signedQuery(t, f, domain.ActionDueDiligence))
	require.NoError(t, err)
	assert.Equal(t, res.Commitments[0], got)
}

func TestOwnershipTransferMovesOwner(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	newOwner := common.HexToAddress("0x00000000000000000000000000000000000000d1")

	_, err := f.orch.Update(ctx, f.sess, orchestrator.UpdateRequest{
		Action: domain.ActionOwnershipTransfer, TokenID: tokenID, Role: domain.RoleSupplier,
		Payloads: []any{map[string]string{"handover": "sold"}}, NewOwner: newOwner,
	})
	require.NoError(t, err)

	p, err := f.mem.GetBatteryPassport(ctx, tokenID)
	require.NoError(t, err)
	assert.Equal(t, newOwner, p.Owner)

	// The previous owner can no longer transfer.
	_, err = f.orch.Update(ctx, f.sess, orchestrator.UpdateRequest{
		Action: domain.ActionOwnershipTransfer, TokenID: tokenID, Role: domain.RoleSupplier,
		Payloads: []any{map[string]string{"handover": "again"}}, NewOwner: f.holder.Address(),
	})
	assert.True(t, dErrors.HasCode(err, dErrors.CodePreconditionFailed))
}
