// Package directorytest provides an in-memory directory backend speaking the
// real REST surface. Tests and the dev server mount it behind plain HTTP so
// the client under test exercises its actual wire path.
package directorytest

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"batterypass/internal/directory"
	"batterypass/pkg/domain"
)

// Server holds the fake directory's state. Safe for concurrent use.
type Server struct {
	mu         sync.Mutex
	jwtKey     []byte
	members    map[string]directory.MemberRecord
	users      map[string]directory.User
	histories  map[uint64][]directory.HashEntry
	activities []directory.ActivityEntry
	pending    map[string]directory.PendingDIDRequest
	approved   map[string]bool
}

// Option configures the fake server.
type Option func(*Server)

// WithJWTKey makes the server require a valid bearer token on every request.
func WithJWTKey(key []byte) Option {
	return func(s *Server) {
		s.jwtKey = key
	}
}

// New constructs an empty fake directory.
func New(opts ...Option) *Server {
	s := &Server{
		members:   make(map[string]directory.MemberRecord),
		users:     make(map[string]directory.User),
		histories: make(map[uint64][]directory.HashEntry),
		pending:   make(map[string]directory.PendingDIDRequest),
		approved:  make(map[string]bool),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AddMember seeds a member record, keyed case-insensitively by address.
func (s *Server) AddMember(rec directory.MemberRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.members[strings.ToLower(rec.Address)] = rec
}

// AddUser seeds a user record.
func (s *Server) AddUser(u directory.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[strings.ToLower(u.Address)] = u
}

// TamperLatestHash rewrites the newest history entry for a token, simulating
// a corrupted or lagging index for integrity tests.
func (s *Server) TamperLatestHash(tokenID uint64, hash string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	history := s.histories[tokenID]
	if len(history) == 0 {
		return
	}
	history[len(history)-1].Hash = domain.ContentID(hash)
}

// Activities returns a copy of the recorded activity log.
func (s *Server) Activities() []directory.ActivityEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]directory.ActivityEntry(nil), s.activities...)
}

// History returns a copy of the hash history for a token.
func (s *Server) History(tokenID uint64) []directory.HashEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]directory.HashEntry(nil), s.histories[tokenID]...)
}

// Approved reports whether a pending DID request has been approved.
func (s *Server) Approved(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.approved[id]
}

// Handler returns the REST surface as an http.Handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	if s.jwtKey != nil {
		r.Use(s.requireToken)
	}

	r.Get("/organization/member/{address}", s.getMember)
	r.Get("/user/byEthereumAddress", s.getUser)
	r.Put("/offchain/updateDataOffChain/{tokenID}", s.appendHash)
	r.Get("/offchain/getDataOffChain/{tokenID}", s.getHistory)
	r.Post("/role-activity", s.postActivity)
	r.Post("/pending-did", s.postPendingDID)
	r.Patch("/pending-did/{id}/approve", s.approvePendingDID)
	return r
}

func (s *Server) requireToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if _, err := directory.VerifyToken(s.jwtKey, raw); err != nil {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) getMember(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.members[strings.ToLower(chi.URLParam(r, "address"))]
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	writeJSON(w, rec)
}

func (s *Server) getUser(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[strings.ToLower(r.URL.Query().Get("address"))]
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	writeJSON(w, u)
}

func (s *Server) appendHash(w http.ResponseWriter, r *http.Request) {
	tokenID, err := strconv.ParseUint(chi.URLParam(r, "tokenID"), 10, 64)
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	var entry directory.HashEntry
	if err := json.NewDecoder(r.Body).Decode(&entry); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	// Append-only: earlier entries are never rewritten.
	s.histories[tokenID] = append(s.histories[tokenID], entry)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) getHistory(w http.ResponseWriter, r *http.Request) {
	tokenID, err := strconv.ParseUint(chi.URLParam(r, "tokenID"), 10, 64)
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	writeJSON(w, map[string]any{"hashes": s.histories[tokenID]})
}

func (s *Server) postActivity(w http.ResponseWriter, r *http.Request) {
	var entry directory.ActivityEntry
	if err := json.NewDecoder(r.Body).Decode(&entry); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.activities = append(s.activities, entry)
	w.WriteHeader(http.StatusCreated)
}

func (s *Server) postPendingDID(w http.ResponseWriter, r *http.Request) {
	var req directory.PendingDIDRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	id := uuid.NewString()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending[id] = req
	writeJSON(w, map[string]string{"id": id})
}

func (s *Server) approvePendingDID(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.pending[id]; !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	s.approved[id] = true
	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}
