// Package directory is the stateless facade over the backend member,
// organization, and off-chain index REST API. The directory is never
// authoritative: its hash records are an index over what the chain already
// committed, and callers treat divergence as an integrity fault.
package directory

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"batterypass/pkg/domain"
	dErrors "batterypass/pkg/domain-errors"
)

// MemberRecord is the directory's view of one onboarded wallet address.
type MemberRecord struct {
	Address      string `json:"address"`
	Organization string `json:"organization"`
	DIDName      string `json:"didName"`
	CredentialID string `json:"credentialId"`
}

// User is the directory's account record for a wallet address.
type User struct {
	Address      string `json:"address"`
	Email        string `json:"email"`
	Organization string `json:"organization"`
	Role         string `json:"role"`
}

// HashEntry is one element of a token's append-only off-chain hash history.
type HashEntry struct {
	Action     domain.Action    `json:"action"`
	Hash       domain.ContentID `json:"hash"`
	RecordedAt time.Time        `json:"recordedAt"`
}

// PendingDIDRequest asks an admin to register a DID for an address.
type PendingDIDRequest struct {
	DID        string   `json:"did"`
	Address    string   `json:"address"`
	Role       string   `json:"role"`
	TrustLevel uint8    `json:"trustLevel"`
	Claims     []string `json:"claims,omitempty"`
}

// Directory is the REST backend port.
type Directory interface {
	Member(ctx context.Context, addr common.Address) (MemberRecord, error)
	UserByAddress(ctx context.Context, addr common.Address) (User, error)
	AppendContentHash(ctx context.Context, tokenID uint64, entry HashEntry) error
	ContentHistory(ctx context.Context, tokenID uint64) ([]HashEntry, error)
	RecordActivity(ctx context.Context, entry ActivityEntry) error
	CreatePendingDID(ctx context.Context, req PendingDIDRequest) (string, error)
	ApprovePendingDID(ctx context.Context, id string) error
}

// Client is the HTTP implementation of Directory.
type Client struct {
	baseURL    string
	httpClient *http.Client
	tokens     *TokenMinter
}

// ClientOption configures the directory client.
type ClientOption func(*Client)

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(c *http.Client) ClientOption {
	return func(cl *Client) {
		cl.httpClient = c
	}
}

// WithTokenMinter enables bearer-token authentication on every request.
func WithTokenMinter(m *TokenMinter) ClientOption {
	return func(cl *Client) {
		cl.tokens = m
	}
}

// NewClient builds a directory client for baseURL.
func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:    baseURL,
		httpClient: http.DefaultClient,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Member looks up the member record for addr, including its cached DID name
// and credential id. Returns NotFound when the address is not onboarded.
func (c *Client) Member(ctx context.Context, addr common.Address) (MemberRecord, error) {
	var rec MemberRecord
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("/organization/member/%s", addr.Hex()), nil, &rec)
	return rec, err
}

// UserByAddress looks up the directory account for addr.
func (c *Client) UserByAddress(ctx context.Context, addr common.Address) (User, error) {
	var u User
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("/user/byEthereumAddress?address=%s", addr.Hex()), nil, &u)
	return u, err
}

// AppendContentHash appends entry to the token's hash history. The history
// is append-only; the backend never overwrites earlier entries.
func (c *Client) AppendContentHash(ctx context.Context, tokenID uint64, entry HashEntry) error {
	return c.do(ctx, http.MethodPut, fmt.Sprintf("/offchain/updateDataOffChain/%d", tokenID), entry, nil)
}

// ContentHistory returns the token's full hash history, oldest first.
func (c *Client) ContentHistory(ctx context.Context, tokenID uint64) ([]HashEntry, error) {
	var out struct {
		Hashes []HashEntry `json:"hashes"`
	}
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("/offchain/getDataOffChain/%d", tokenID), nil, &out)
	return out.Hashes, err
}

// RecordActivity posts an activity-log entry.
func (c *Client) RecordActivity(ctx context.Context, entry ActivityEntry) error {
	return c.do(ctx, http.MethodPost, "/role-activity", entry, nil)
}

// CreatePendingDID files a registration request for admin approval and
// returns its id.
func (c *Client) CreatePendingDID(ctx context.Context, req PendingDIDRequest) (string, error) {
	var out struct {
		ID string `json:"id"`
	}
	err := c.do(ctx, http.MethodPost, "/pending-did", req, &out)
	return out.ID, err
}

// ApprovePendingDID marks a pending registration approved.
func (c *Client) ApprovePendingDID(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodPatch, fmt.Sprintf("/pending-did/%s/approve", id), nil, nil)
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeBadRequest, "encode request body")
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "build directory request")
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.tokens != nil {
		token, err := c.tokens.Mint()
		if err != nil {
			return err
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeTransport, "directory request failed")
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return dErrors.New(dErrors.CodeNotFound, method+" "+path+" not found")
	case resp.StatusCode >= 400:
		raw, _ := io.ReadAll(resp.Body)
		return dErrors.New(dErrors.CodeTransport, fmt.Sprintf("directory returned %d: %s", resp.StatusCode, raw))
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return dErrors.Wrap(err, dErrors.CodeTransport, "decode directory response")
		}
	}
	return nil
}

var _ Directory = (*Client)(nil)
