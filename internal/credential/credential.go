// Package credential implements the verifiable-credential lifecycle against
// the credential registry: issue, sign, validate, revoke. Issuance and
// signing are two ledger calls because the registry assigns the issued-at
// timestamp; the issuer signature must cover the timestamp the chain stored,
// not the one the client guessed.
package credential

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"

	"batterypass/internal/authz"
	"batterypass/internal/ledger"
	"batterypass/internal/platform/tracer"
	"batterypass/internal/signer"
	"batterypass/pkg/domain"
	dErrors "batterypass/pkg/domain-errors"
)

// Issuer drives the credential lifecycle for one signing identity.
type Issuer struct {
	registry ledger.CredentialRegistry
	identity ledger.IdentityRegistry
	signer   signer.Signer
	domain   authz.SigningDomain
	contract common.Address
	log      *slog.Logger
	tracer   tracer.Tracer
}

// Option configures the issuer.
type Option func(*Issuer)

// WithLogger overrides the default logger.
func WithLogger(l *slog.Logger) Option {
	return func(i *Issuer) {
		i.log = l
	}
}

// WithTracer overrides the default no-op tracer.
func WithTracer(t tracer.Tracer) Option {
	return func(i *Issuer) {
		i.tracer = t
	}
}

// NewIssuer builds an issuer. The signing domain and contract address must
// match what the credential registry verifies against.
func NewIssuer(
	registry ledger.CredentialRegistry,
	identity ledger.IdentityRegistry,
	sig signer.Signer,
	sd authz.SigningDomain,
	contract common.Address,
	opts ...Option,
) *Issuer {
	i := &Issuer{
		registry: registry,
		identity: identity,
		signer:   sig,
		domain:   sd,
		contract: contract,
		log:      slog.Default(),
		tracer:   tracer.NewNoop(),
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// IssueParams describe a credential to issue and sign.
type IssueParams struct {
	ID         string
	SubjectDID string
	Claims     json.RawMessage
	ExpiresAt  int64
}

// Issue creates an unsigned credential for a verified subject DID and then
// signs it. The subject is checked before anything is written or signed so an
// unverified DID never reaches the wallet prompt.
func (i *Issuer) Issue(ctx context.Context, p IssueParams) error {
	ctx, span := i.tracer.Start(ctx, "credential.issue",
		tracer.String("credential_id", p.ID),
		tracer.String("subject", p.SubjectDID),
	)
	var err error
	defer func() { span.End(err) }()

	rec, err := i.identity.GetDID(ctx, p.SubjectDID)
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeNotFound) {
			err = dErrors.New(dErrors.CodePreconditionFailed, "subject did not registered")
		}
		return err
	}
	if !rec.Verified {
		err = dErrors.New(dErrors.CodePreconditionFailed, "subject did not verified")
		return err
	}

	if err = i.registry.IssueVerifiableCredential(ctx, ledger.IssueParams{
		ID:         p.ID,
		SubjectDID: p.SubjectDID,
		Claims:     p.Claims,
		ExpiresAt:  p.ExpiresAt,
		Issuer:     i.signer.Address(),
	}); err != nil {
		return err
	}
	i.log.InfoContext(ctx, "credential issued", "credential_id", p.ID, "subject", p.SubjectDID)

	err = i.Sign(ctx, p.ID)
	return err
}

// Sign produces the issuer's typed-data signature over the stored credential
// and anchors it in the registry. The credential and its issued-at timestamp
// are re-read first so the signature covers what the chain assigned.
func (i *Issuer) Sign(ctx context.Context, credentialID string) error {
	ctx, span := i.tracer.Start(ctx, "credential.sign", tracer.String("credential_id", credentialID))
	var err error
	defer func() { span.End(err) }()

	cred, err := i.registry.GetCredential(ctx, credentialID)
	if err != nil {
		return err
	}
	issuedAt, err := i.registry.GetIssuedTimestamp(ctx, credentialID)
	if err != nil {
		return err
	}

	data := authz.CredentialClaim(i.domain, i.contract, authz.CredentialClaimParams{
		ID:         cred.ID,
		Issuer:     cred.Issuer,
		Subject:    cred.SubjectDID,
		ClaimsHash: domain.Keccak(cred.Claims),
		IssuedAt:   issuedAt,
		ExpiresAt:  cred.ExpiresAt,
	})
	sig, err := i.signer.SignTypedData(ctx, data)
	if err != nil {
		return err
	}
	// A malformed signature is a hard stop. Anchoring it would brick the
	// credential, so nothing is submitted.
	if err = signer.CheckLength(sig); err != nil {
		return err
	}

	if err = i.registry.SignCredential(ctx, credentialID, sig); err != nil {
		return err
	}
	i.log.InfoContext(ctx, "credential signed", "credential_id", credentialID)
	return nil
}

// Validate reports whether the credential is currently valid: signed,
// unrevoked, unexpired, and recovering to its issuer.
func (i *Issuer) Validate(ctx context.Context, credentialID string) (bool, error) {
	return i.registry.ValidateVerifiableCredential(ctx, credentialID)
}

// Revoke revokes a credential. Revocation is terminal, so a chain rejection
// against an already-revoked credential is reported as success.
func (i *Issuer) Revoke(ctx context.Context, credentialID string) error {
	ctx, span := i.tracer.Start(ctx, "credential.revoke", tracer.String("credential_id", credentialID))
	var err error
	defer func() { span.End(err) }()

	err = i.registry.RevokeCredential(ctx, credentialID, i.signer.Address())
	if err != nil && dErrors.HasCode(err, dErrors.CodeOnChainRejected) {
		cred, getErr := i.registry.GetCredential(ctx, credentialID)
		if getErr == nil && cred.Revoked {
			i.log.WarnContext(ctx, "credential already revoked", "credential_id", credentialID)
			err = nil
		}
	}
	if err == nil {
		i.log.InfoContext(ctx, "credential revoked", "credential_id", credentialID)
	}
	return err
}
