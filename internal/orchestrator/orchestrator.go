// Package orchestrator sequences an authorized content update across the
// content store, the signer, the passport contract, and the directory.
//
// The pipeline is: resolve the caller's identity, preflight every
// precondition, publish the payloads, collect one typed-data signature, submit
// on-chain, then reconcile the off-chain indexes. Everything up to submission
// must fail before any state changes; after submission nothing is rolled
// back, and reconciliation is best effort.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"batterypass/internal/authz"
	"batterypass/internal/contentstore"
	"batterypass/internal/directory"
	"batterypass/internal/ledger"
	"batterypass/internal/orchestrator/metrics"
	"batterypass/internal/platform/tracer"
	"batterypass/internal/session"
	"batterypass/internal/signer"
	"batterypass/pkg/domain"
	dErrors "batterypass/pkg/domain-errors"
)

// RoleChecker answers whether a DID may act in a role for a caller.
type RoleChecker interface {
	CheckRole(ctx context.Context, did string, role domain.Role, caller common.Address) error
}

// CredentialValidator reports whether a credential is currently valid.
type CredentialValidator interface {
	Validate(ctx context.Context, credentialID string) (bool, error)
}

// DirectoryIndex is the off-chain index the orchestrator reconciles into and
// reads back during integrity checks.
type DirectoryIndex interface {
	AppendContentHash(ctx context.Context, tokenID uint64, entry directory.HashEntry) error
	ContentHistory(ctx context.Context, tokenID uint64) ([]directory.HashEntry, error)
	RecordActivity(ctx context.Context, entry directory.ActivityEntry) error
}

// Orchestrator drives authorized updates and verified reads.
type Orchestrator struct {
	passport    ledger.PassportRegistry
	content     contentstore.Store
	dir         DirectoryIndex
	roles       RoleChecker
	credentials CredentialValidator

	signingDomain authz.SigningDomain
	passportAddr  common.Address

	log     *slog.Logger
	tracer  tracer.Tracer
	metrics *metrics.Metrics
	now     func() time.Time
}

// Option configures the orchestrator.
type Option func(*Orchestrator)

// WithLogger overrides the default logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) {
		o.log = l
	}
}

// WithTracer overrides the default no-op tracer.
func WithTracer(t tracer.Tracer) Option {
	return func(o *Orchestrator) {
		o.tracer = t
	}
}

// WithMetrics overrides the default unregistered metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *Orchestrator) {
		o.metrics = m
	}
}

// New builds an orchestrator over the given dependencies. The signing domain
// and passport address must match what the contract verifies against.
func New(
	passport ledger.PassportRegistry,
	content contentstore.Store,
	dir DirectoryIndex,
	roles RoleChecker,
	credentials CredentialValidator,
	sd authz.SigningDomain,
	passportAddr common.Address,
	opts ...Option,
) *Orchestrator {
	o := &Orchestrator{
		passport:      passport,
		content:       content,
		dir:           dir,
		roles:         roles,
		credentials:   credentials,
		signingDomain: sd,
		passportAddr:  passportAddr,
		log:           slog.Default(),
		tracer:        tracer.NewNoop(),
		metrics:       metrics.NewNoop(),
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// UpdateRequest describes one authorized content update. Payloads are the
// documents to publish, in the action-defined order; material composition
// takes two (composition, then due diligence), every other action takes one.
type UpdateRequest struct {
	Action   domain.Action
	TokenID  uint64
	Role     domain.Role
	Payloads []any
	NewOwner common.Address // ownership transfer only
	Status   string         // lifecycle and status change only
	Detail   string         // free-form note for the activity log
}

// UpdateResult reports what a successful update produced.
type UpdateResult struct {
	ContentIDs  []domain.ContentID
	Commitments []common.Hash
	Nonce       uint64
	Reconciled  bool
}

// Update runs the full pipeline for one request under the given session.
// Once the transaction is accepted the update reports success even if
// reconciliation fails; the directory converges from chain state, the chain
// never converges from the directory.
func (o *Orchestrator) Update(ctx context.Context, sess *session.Session, req UpdateRequest) (UpdateResult, error) {
	start := o.now()
	ctx, span := o.tracer.Start(ctx, "orchestrator.update",
		tracer.String("action", string(req.Action)),
		tracer.Int64("token_id", int64(req.TokenID)),
	)
	var err error
	defer func() {
		span.End(err)
		outcome := "ok"
		if err != nil {
			outcome = "error"
		}
		o.metrics.UpdatesTotal.WithLabelValues(string(req.Action), outcome).Inc()
		o.metrics.UpdateDuration.WithLabelValues(string(req.Action)).Observe(o.now().Sub(start).Seconds())
	}()

	if !req.Action.Valid() {
		err = dErrors.New(dErrors.CodeBadRequest, fmt.Sprintf("unknown action %q", req.Action))
		return UpdateResult{}, err
	}

	creds, err := o.resolve(ctx, sess)
	if err != nil {
		return UpdateResult{}, err
	}
	if err = o.preflight(ctx, sess, creds, req); err != nil {
		return UpdateResult{}, err
	}
	ids, err := o.publish(ctx, req)
	if err != nil {
		return UpdateResult{}, err
	}

	update, err := o.sign(ctx, sess, creds, req, ids)
	if err != nil {
		return UpdateResult{}, err
	}

	if err = o.passport.SubmitUpdate(ctx, update); err != nil {
		o.metrics.StepFailures.WithLabelValues("submit").Inc()
		return UpdateResult{}, err
	}
	o.log.InfoContext(ctx, "update accepted",
		"action", req.Action,
		"token_id", req.TokenID,
		"caller", sess.Address().Hex(),
	)

	reconciled := o.reconcile(ctx, sess, req, ids)
	return UpdateResult{
		ContentIDs:  ids,
		Commitments: update.ContentHashes,
		Nonce:       update.Nonce,
		Reconciled:  reconciled,
	}, nil
}

func (o *Orchestrator) resolve(ctx context.Context, sess *session.Session) (session.Credentials, error) {
	ctx, span := o.tracer.Start(ctx, "orchestrator.resolve")
	creds, err := sess.Credentials(ctx)
	span.End(err)
	if err != nil {
		o.metrics.StepFailures.WithLabelValues("resolve").Inc()
	}
	return creds, err
}

// preflight re-checks every precondition the contract will enforce, so a
// doomed update fails before the user is asked to sign anything. Each failure
// carries its own message; the dashboard surfaces them verbatim.
func (o *Orchestrator) preflight(ctx context.Context, sess *session.Session, creds session.Credentials, req UpdateRequest) error {
	ctx, span := o.tracer.Start(ctx, "orchestrator.preflight")
	var err error
	defer func() {
		span.End(err)
		if err != nil {
			o.metrics.StepFailures.WithLabelValues("preflight").Inc()
		}
	}()

	if len(req.Payloads) != payloadCount(req.Action) {
		err = dErrors.New(dErrors.CodeBadRequest,
			fmt.Sprintf("action %s takes %d payloads, got %d", req.Action, payloadCount(req.Action), len(req.Payloads)))
		return err
	}

	exists, err := o.passport.Exists(ctx, req.TokenID)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeTransport, "check token existence")
	}
	if !exists {
		err = dErrors.New(dErrors.CodePreconditionFailed, fmt.Sprintf("passport %d does not exist", req.TokenID))
		return err
	}

	valid, err := o.credentials.Validate(ctx, creds.CredentialID)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeTransport, "validate credential")
	}
	if !valid {
		err = dErrors.New(dErrors.CodePreconditionFailed, "credential "+creds.CredentialID+" is not valid")
		return err
	}

	if err = o.roles.CheckRole(ctx, creds.DIDName, req.Role, sess.Address()); err != nil {
		return err
	}

	// Nonce-bearing actions mutate ownership or lifecycle; only the current
	// owner may perform them.
	if req.Action.UsesNonce() {
		passport, perr := o.passport.GetBatteryPassport(ctx, req.TokenID)
		if perr != nil {
			err = dErrors.Wrap(perr, dErrors.CodeTransport, "load passport")
			return err
		}
		if passport.Owner != sess.Address() {
			err = dErrors.New(dErrors.CodePreconditionFailed,
				fmt.Sprintf("caller is not the owner of passport %d", req.TokenID))
			return err
		}
	}
	return nil
}

// publish pins each payload independently. A failure reports which payload
// failed; already pinned payloads stay pinned, content addressing makes the
// retry idempotent.
func (o *Orchestrator) publish(ctx context.Context, req UpdateRequest) ([]domain.ContentID, error) {
	ctx, span := o.tracer.Start(ctx, "orchestrator.publish")
	var err error
	defer func() {
		span.End(err)
		if err != nil {
			o.metrics.StepFailures.WithLabelValues("publish").Inc()
		}
	}()

	ids := make([]domain.ContentID, 0, len(req.Payloads))
	for i, payload := range req.Payloads {
		id, uerr := o.content.Upload(ctx, payload)
		if uerr != nil {
			err = dErrors.Wrap(uerr, dErrors.CodeContentPublishFailed,
				fmt.Sprintf("publish payload %d of %d", i+1, len(req.Payloads)))
			return nil, err
		}
		o.metrics.PublishedPayloads.Inc()
		ids = append(ids, id)
	}
	return ids, nil
}

// sign reads the caller's nonce immediately before building the intent, so
// the signature matches what the contract expects at submission time, then
// collects exactly one typed-data signature.
func (o *Orchestrator) sign(ctx context.Context, sess *session.Session, creds session.Credentials, req UpdateRequest, ids []domain.ContentID) (ledger.Update, error) {
	ctx, span := o.tracer.Start(ctx, "orchestrator.sign")
	var err error
	defer func() {
		span.End(err)
		if err != nil {
			o.metrics.StepFailures.WithLabelValues("sign").Inc()
		}
	}()

	var nonce uint64
	if req.Action.UsesNonce() {
		nonce, err = o.passport.Nonce(ctx, sess.Address())
		if err != nil {
			return ledger.Update{}, dErrors.Wrap(err, dErrors.CodeTransport, "read nonce")
		}
	}

	commitments := make([]common.Hash, len(ids))
	for i, id := range ids {
		commitments[i] = id.Commitment()
	}

	data, err := authz.Update(o.signingDomain, o.passportAddr, authz.UpdateParams{
		Action:        req.Action,
		TokenID:       req.TokenID,
		ContentHashes: commitments,
		Caller:        sess.Address(),
		Nonce:         nonce,
		NewOwner:      req.NewOwner,
		Status:        req.Status,
	})
	if err != nil {
		return ledger.Update{}, err
	}

	sig, err := sess.Signer().SignTypedData(ctx, data)
	if err != nil {
		return ledger.Update{}, err
	}
	if err = signer.CheckLength(sig); err != nil {
		return ledger.Update{}, err
	}

	return ledger.Update{
		Action:        req.Action,
		TokenID:       req.TokenID,
		DID:           creds.DIDName,
		CredentialID:  creds.CredentialID,
		ContentHashes: commitments,
		Caller:        sess.Address(),
		Nonce:         nonce,
		NewOwner:      req.NewOwner,
		Status:        req.Status,
		Signature:     sig,
	}, nil
}

// reconcile appends the published content ids to the directory's hash history
// and records the activity. Failures are logged and counted, never returned:
// the chain already accepted the update.
func (o *Orchestrator) reconcile(ctx context.Context, sess *session.Session, req UpdateRequest, ids []domain.ContentID) bool {
	ctx, span := o.tracer.Start(ctx, "orchestrator.reconcile")
	defer span.End(nil)

	ok := true
	for i, id := range ids {
		entry := directory.HashEntry{
			Action:     entryAction(req.Action, i),
			Hash:       id,
			RecordedAt: o.now().UTC(),
		}
		if err := o.dir.AppendContentHash(ctx, req.TokenID, entry); err != nil {
			o.metrics.ReconciliationFailures.Inc()
			o.log.WarnContext(ctx, "directory reconciliation failed",
				"token_id", req.TokenID,
				"content_id", string(id),
				"error", dErrors.Wrap(err, dErrors.CodeReconciliationFailed, "append content hash").Error(),
			)
			ok = false
		}
	}

	activity := directory.NewActivityEntry(req.Action, sess.Address().Hex(), req.TokenID, req.Detail).
		WithUserAgent(sess.UserAgent())
	if err := o.dir.RecordActivity(ctx, activity); err != nil {
		o.metrics.ReconciliationFailures.Inc()
		o.log.WarnContext(ctx, "activity record failed",
			"token_id", req.TokenID,
			"error", err.Error(),
		)
		ok = false
	}
	return ok
}

// payloadCount is the number of documents each action publishes.
func payloadCount(action domain.Action) int {
	if action == domain.ActionMaterialComposition {
		return 2
	}
	return 1
}

// entryAction maps a published payload position to the action its hash is
// indexed under. Material composition publishes the composition document and
// the due diligence document together.
func entryAction(action domain.Action, i int) domain.Action {
	if action == domain.ActionMaterialComposition && i == 1 {
		return domain.ActionDueDiligence
	}
	return action
}
