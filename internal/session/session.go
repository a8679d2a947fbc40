// Package session holds the per-connection state the dashboard used to keep
// in module-level globals: the connected address, its signer, and a local
// cache of the address's DID name and credential id. A Session is created on
// wallet connect and torn down on disconnect or account switch; nothing here
// survives it.
package session

import (
	"context"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/sync/singleflight"

	"batterypass/internal/directory"
	"batterypass/internal/signer"
	dErrors "batterypass/pkg/domain-errors"
)

// Credentials is the cached identity binding for the connected address.
// The cache is a convenience to skip a directory round-trip; it is never
// authoritative.
type Credentials struct {
	DIDName      string
	CredentialID string
}

// MemberLookup is the directory dependency used on cache miss.
type MemberLookup interface {
	Member(ctx context.Context, addr common.Address) (directory.MemberRecord, error)
}

// Session is the explicit context object every orchestrator call runs under.
type Session struct {
	signer    signer.Signer
	dir       MemberLookup
	userAgent string

	mu     sync.RWMutex
	cached *Credentials
	group  singleflight.Group
}

// Option configures a session.
type Option func(*Session)

// WithUserAgent records the browser user agent for activity-log entries.
func WithUserAgent(ua string) Option {
	return func(s *Session) {
		s.userAgent = ua
	}
}

// New creates a session for a connected signer.
func New(sig signer.Signer, dir MemberLookup, opts ...Option) *Session {
	s := &Session{signer: sig, dir: dir}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Address returns the connected address.
func (s *Session) Address() common.Address {
	return s.signer.Address()
}

// Signer returns the connected signer.
func (s *Session) Signer() signer.Signer {
	return s.signer
}

// UserAgent returns the recorded user agent, possibly empty.
func (s *Session) UserAgent() string {
	return s.userAgent
}

// Seed pre-populates the credential cache, e.g. from local storage.
func (s *Session) Seed(creds Credentials) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cached = &creds
}

// Credentials resolves the DID name and credential id for the connected
// address: cache first, then the directory. Concurrent updates share one
// in-flight lookup. A miss in both sources is NoCredentialFound and fatal;
// there is no default identity to fall back to.
func (s *Session) Credentials(ctx context.Context) (Credentials, error) {
	s.mu.RLock()
	cached := s.cached
	s.mu.RUnlock()
	if cached != nil {
		return *cached, nil
	}

	addr := s.Address()
	v, err, _ := s.group.Do(addr.Hex(), func() (any, error) {
		rec, err := s.dir.Member(ctx, addr)
		if err != nil {
			if dErrors.HasCode(err, dErrors.CodeNotFound) {
				return nil, dErrors.New(dErrors.CodeNoCredentialFound, "no credential record for "+addr.Hex())
			}
			return nil, err
		}
		if rec.DIDName == "" || rec.CredentialID == "" {
			return nil, dErrors.New(dErrors.CodeNoCredentialFound, "directory record for "+addr.Hex()+" has no did binding")
		}
		creds := Credentials{DIDName: rec.DIDName, CredentialID: rec.CredentialID}
		s.mu.Lock()
		s.cached = &creds
		s.mu.Unlock()
		return creds, nil
	})
	if err != nil {
		return Credentials{}, err
	}
	return v.(Credentials), nil
}

// Close tears the session down, dropping cached credentials.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cached = nil
}
