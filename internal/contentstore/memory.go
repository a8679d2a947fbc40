package contentstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/mr-tron/base58"

	"batterypass/pkg/domain"
	dErrors "batterypass/pkg/domain-errors"
)

// InMemoryStore is an in-memory Store for tests and the dev server. Content
// ids are CID-shaped: base58 of the payload's keccak digest under a "Qm"
// prefix, so identical payloads address identically like the real service.
type InMemoryStore struct {
	mu       sync.RWMutex
	payloads map[domain.ContentID]json.RawMessage

	// UploadErr, when set, fails every upload after the first FailAfter
	// successes. Lets tests exercise partial multi-payload publishes.
	UploadErr error
	FailAfter int
	uploads   int
}

// NewInMemoryStore constructs an empty in-memory content store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{payloads: make(map[domain.ContentID]json.RawMessage)}
}

// Upload stores the JSON encoding of payload under its content id.
func (s *InMemoryStore) Upload(_ context.Context, payload any) (domain.ContentID, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeBadRequest, "encode payload")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.UploadErr != nil && s.uploads >= s.FailAfter {
		return "", s.UploadErr
	}
	s.uploads++

	id := ContentIDFor(body)
	s.payloads[id] = body
	return id, nil
}

// Fetch retrieves the payload stored under id.
func (s *InMemoryStore) Fetch(_ context.Context, id domain.ContentID) (json.RawMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	raw, ok := s.payloads[id]
	if !ok {
		return nil, dErrors.New(dErrors.CodeNotFound, "content not found: "+string(id))
	}
	return raw, nil
}

// Verify recomputes the fake's id scheme over payload and compares it to id.
func (s *InMemoryStore) Verify(_ context.Context, id domain.ContentID, payload []byte) error {
	if assigned := ContentIDFor(payload); assigned != id {
		return dErrors.New(dErrors.CodeHashMismatch,
			fmt.Sprintf("content addresses to %s, not %s", assigned, id))
	}
	return nil
}

// Tamper replaces the payload stored under id without changing the id,
// simulating a corrupted storage backend for integrity tests.
func (s *InMemoryStore) Tamper(id domain.ContentID, payload json.RawMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.payloads[id] = payload
}

// ContentIDFor computes the CID-shaped id the fake assigns to raw content.
func ContentIDFor(body []byte) domain.ContentID {
	digest := domain.Keccak(body)
	return domain.ContentID("Qm" + base58.Encode(digest[:]))
}

var _ Store = (*InMemoryStore)(nil)
