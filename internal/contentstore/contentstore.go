// Package contentstore is the stateless facade over the content-addressed
// storage service: upload a JSON payload to the pinning endpoint, fetch a
// payload back through the gateway by its content id.
package contentstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"batterypass/pkg/domain"
	dErrors "batterypass/pkg/domain-errors"
)

// Store uploads and retrieves content-addressed payloads.
type Store interface {
	// Upload pins the JSON encoding of payload and returns its content id.
	Upload(ctx context.Context, payload any) (domain.ContentID, error)

	// Fetch retrieves the payload stored under id.
	Fetch(ctx context.Context, id domain.ContentID) (json.RawMessage, error)

	// Verify checks that payload addresses to id under the store's own
	// id scheme. A mismatch returns CodeHashMismatch.
	Verify(ctx context.Context, id domain.ContentID, payload []byte) error
}

// Client talks to a pinning service and its public gateway.
type Client struct {
	pinningURL string
	gatewayURL string // must contain one %s for the content id
	httpClient *http.Client
}

// ClientOption configures the content store client.
type ClientOption func(*Client)

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(c *http.Client) ClientOption {
	return func(cl *Client) {
		cl.httpClient = c
	}
}

// NewClient builds a content store client. gatewayURL is templated on the
// content id, e.g. "https://gw.example/ipfs/%s".
func NewClient(pinningURL, gatewayURL string, opts ...ClientOption) *Client {
	c := &Client{
		pinningURL: pinningURL,
		gatewayURL: gatewayURL,
		httpClient: http.DefaultClient,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type pinResponse struct {
	Hash string `json:"hash"`
}

// Upload pins payload and returns the service-assigned content id.
func (c *Client) Upload(ctx context.Context, payload any) (domain.ContentID, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeBadRequest, "encode payload")
	}
	return c.pin(ctx, body)
}

func (c *Client) pin(ctx context.Context, body []byte) (domain.ContentID, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.pinningURL, bytes.NewReader(body))
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "build pin request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeTransport, "pin payload")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", dErrors.New(dErrors.CodeTransport, fmt.Sprintf("pinning service returned %d", resp.StatusCode))
	}

	var pinned pinResponse
	if err := json.NewDecoder(resp.Body).Decode(&pinned); err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeTransport, "decode pin response")
	}
	if pinned.Hash == "" {
		return "", dErrors.New(dErrors.CodeTransport, "pinning service returned empty hash")
	}
	return domain.ContentID(pinned.Hash), nil
}

// Fetch retrieves the payload behind id through the gateway.
func (c *Client) Fetch(ctx context.Context, id domain.ContentID) (json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf(c.gatewayURL, id), nil)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "build gateway request")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeTransport, "fetch content")
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return nil, dErrors.New(dErrors.CodeNotFound, "content not found: "+string(id))
	default:
		return nil, dErrors.New(dErrors.CodeTransport, fmt.Sprintf("gateway returned %d", resp.StatusCode))
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeTransport, "read content body")
	}
	return raw, nil
}

// Verify re-pins payload and compares the id the service assigns against id.
// The id scheme is the pinning service's own, so the service is the only
// party that can re-derive it; pinning is idempotent for content it already
// holds, which makes the round trip a pure comparison.
func (c *Client) Verify(ctx context.Context, id domain.ContentID, payload []byte) error {
	assigned, err := c.pin(ctx, payload)
	if err != nil {
		return err
	}
	if assigned != id {
		return dErrors.New(dErrors.CodeHashMismatch,
			fmt.Sprintf("content addresses to %s, not %s", assigned, id))
	}
	return nil
}

var _ Store = (*Client)(nil)
