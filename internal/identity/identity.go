// Package identity implements the registrar workflow over the identity
// registry: registering DIDs, verifying them, and answering role checks for
// the authorization pipeline. Registration is privileged; role checks are
// pure reads any caller may perform.
package identity

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"

	"batterypass/internal/directory"
	"batterypass/internal/ledger"
	"batterypass/internal/platform/tracer"
	"batterypass/pkg/domain"
	dErrors "batterypass/pkg/domain-errors"
)

// PendingQueue is the directory-side approval queue for DID requests that
// need a tenant admin's sign-off before they hit the chain.
type PendingQueue interface {
	CreatePendingDID(ctx context.Context, req directory.PendingDIDRequest) (string, error)
	ApprovePendingDID(ctx context.Context, id string) error
}

// Service is the identity registrar.
type Service struct {
	identity ledger.IdentityRegistry
	passport ledger.PassportRegistry
	queue    PendingQueue
	log      *slog.Logger
	tracer   tracer.Tracer
}

// Option configures the service.
type Option func(*Service)

// WithLogger overrides the default logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		s.log = l
	}
}

// WithTracer overrides the default no-op tracer.
func WithTracer(t tracer.Tracer) Option {
	return func(s *Service) {
		s.tracer = t
	}
}

// WithPendingQueue wires the directory approval queue. Without it,
// RequestRegistration and Approve return CodeBadRequest.
func WithPendingQueue(q PendingQueue) Option {
	return func(s *Service) {
		s.queue = q
	}
}

// NewService builds the registrar over the given registry facades.
func NewService(identity ledger.IdentityRegistry, passport ledger.PassportRegistry, opts ...Option) *Service {
	s := &Service{
		identity: identity,
		passport: passport,
		log:      slog.Default(),
		tracer:   tracer.NewNoop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register registers a DID on-chain. The registry is checked first so a
// duplicate fails before any transaction is attempted; the race where another
// registrar wins in between is caught by the contract and surfaces as the
// same error.
func (s *Service) Register(ctx context.Context, p ledger.RegisterDIDParams) error {
	ctx, span := s.tracer.Start(ctx, "identity.register", tracer.String("did", p.DID))
	var err error
	defer func() { span.End(err) }()

	if err = validateRegistration(p); err != nil {
		return err
	}

	registered, err := s.identity.IsDIDRegistered(ctx, p.DID)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeTransport, "check did registration")
	}
	if registered {
		err = ledger.ErrAlreadyRegistered
		return err
	}

	if err = s.identity.RegisterDID(ctx, p); err != nil {
		return err
	}
	s.log.InfoContext(ctx, "did registered",
		"did", p.DID,
		"owner", p.Owner.Hex(),
		"trust", p.TrustLevel,
	)
	return nil
}

func validateRegistration(p ledger.RegisterDIDParams) error {
	if _, err := domain.ParseDID(p.DID); err != nil {
		return dErrors.Wrap(err, dErrors.CodeBadRequest, "invalid did")
	}
	if len(p.Roles) == 0 {
		return dErrors.New(dErrors.CodeBadRequest, "at least one role required")
	}
	for _, role := range p.Roles {
		if !role.Valid() {
			return dErrors.New(dErrors.CodeBadRequest, fmt.Sprintf("unknown role %q", role))
		}
		if p.TrustLevel < role.MinTrust() {
			return dErrors.New(dErrors.CodeBadRequest,
				fmt.Sprintf("trust level %d below minimum %d for role %s", p.TrustLevel, role.MinTrust(), role))
		}
	}
	return nil
}

// Verify marks a registered DID as verified. Verifying twice is a no-op.
func (s *Service) Verify(ctx context.Context, did string, caller common.Address) error {
	ctx, span := s.tracer.Start(ctx, "identity.verify", tracer.String("did", did))
	var err error
	defer func() { span.End(err) }()

	if err = s.identity.VerifyDID(ctx, did, caller); err != nil {
		return err
	}
	s.log.InfoContext(ctx, "did verified", "did", did)
	return nil
}

// CheckRole answers whether the DID may act in the given role on behalf of
// caller. All four conditions are read off the registry: the DID is verified,
// carries the role, meets the role's trust floor, and is owned by caller.
// Each failure is reported distinctly so the dashboard can explain the
// rejection.
func (s *Service) CheckRole(ctx context.Context, did string, role domain.Role, caller common.Address) error {
	ctx, span := s.tracer.Start(ctx, "identity.check_role",
		tracer.String("did", did),
		tracer.String("role", string(role)),
	)
	var err error
	defer func() { span.End(err) }()

	if !role.Valid() {
		err = dErrors.New(dErrors.CodeBadRequest, fmt.Sprintf("unknown role %q", role))
		return err
	}
	rec, err := s.identity.GetDID(ctx, did)
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeNotFound) {
			err = dErrors.New(dErrors.CodePreconditionFailed, "did not registered")
		}
		return err
	}
	switch {
	case !rec.Verified:
		err = dErrors.New(dErrors.CodePreconditionFailed, "did not verified")
	case !rec.OwnedBy(caller):
		err = dErrors.New(dErrors.CodePreconditionFailed, "caller does not own did")
	case !rec.HasRole(role):
		err = dErrors.New(dErrors.CodePreconditionFailed, fmt.Sprintf("did lacks role %s", role))
	case rec.TrustLevel < role.MinTrust():
		err = dErrors.New(dErrors.CodePreconditionFailed,
			fmt.Sprintf("trust level %d below minimum %d for role %s", rec.TrustLevel, role.MinTrust(), role))
	}
	return err
}

// RequestRegistration files a pending DID request in the directory for a
// tenant admin to approve. Nothing touches the chain until Approve.
func (s *Service) RequestRegistration(ctx context.Context, req directory.PendingDIDRequest) (string, error) {
	if s.queue == nil {
		return "", dErrors.New(dErrors.CodeBadRequest, "no approval queue configured")
	}
	id, err := s.queue.CreatePendingDID(ctx, req)
	if err != nil {
		return "", err
	}
	s.log.InfoContext(ctx, "pending did filed", "request_id", id, "did", req.DID)
	return id, nil
}

// Approve marks a pending request approved in the directory and registers the
// DID on-chain in one go.
func (s *Service) Approve(ctx context.Context, requestID string, p ledger.RegisterDIDParams) error {
	if s.queue == nil {
		return dErrors.New(dErrors.CodeBadRequest, "no approval queue configured")
	}
	if err := s.queue.ApprovePendingDID(ctx, requestID); err != nil {
		return err
	}
	return s.Register(ctx, p)
}

// GrantRole grants an on-chain passport role to an address. Caller must be a
// registrar.
func (s *Service) GrantRole(ctx context.Context, role domain.Role, grantee, caller common.Address) error {
	if !role.Valid() {
		return dErrors.New(dErrors.CodeBadRequest, fmt.Sprintf("unknown role %q", role))
	}
	return s.passport.GrantRole(ctx, role, grantee, caller)
}

// AssignOrganization binds a passport token to an organization name.
func (s *Service) AssignOrganization(ctx context.Context, tokenID uint64, org string, caller common.Address) error {
	if org == "" {
		return dErrors.New(dErrors.CodeBadRequest, "organization name required")
	}
	return s.passport.AssignOrganization(ctx, tokenID, org, caller)
}
