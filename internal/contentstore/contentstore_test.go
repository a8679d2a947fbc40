package contentstore

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "batterypass/pkg/domain-errors"
)

func TestClientUploadAndFetch(t *testing.T) {
	stored := make(map[string][]byte)

	pin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body json.RawMessage
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		id := string(ContentIDFor(body))
		stored[id] = body
		json.NewEncoder(w).Encode(map[string]string{"hash": id})
	}))
	defer pin.Close()

	gw := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.URL.Path[len("/ipfs/"):]
		raw, ok := stored[id]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Write(raw)
	}))
	defer gw.Close()

	c := NewClient(pin.URL, gw.URL+"/ipfs/%s")
	ctx := context.Background()

	id, err := c.Upload(ctx, map[string]int{"a": 1})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	raw, err := c.Fetch(ctx, id)
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":1}`, string(raw))

	_, err = c.Fetch(ctx, "QmDoesNotExist")
	assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
}

func TestClientVerifyDelegatesToPinningService(t *testing.T) {
	// The service assigns ids under its own scheme; the client never
	// recomputes them, it re-pins and compares.
	pin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"hash": "bafyServiceAssigned"})
	}))
	defer pin.Close()

	c := NewClient(pin.URL, "http://unused/%s")
	ctx := context.Background()
	payload := []byte(`{"a":1}`)

	assert.NoError(t, c.Verify(ctx, "bafyServiceAssigned", payload))

	err := c.Verify(ctx, "bafySomethingElse", payload)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeHashMismatch))
}

func TestInMemoryStoreVerify(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()

	id, err := s.Upload(ctx, map[string]int{"a": 1})
	require.NoError(t, err)
	raw, err := s.Fetch(ctx, id)
	require.NoError(t, err)
	assert.NoError(t, s.Verify(ctx, id, raw))

	err = s.Verify(ctx, id, []byte(`{"a":2}`))
	assert.True(t, dErrors.HasCode(err, dErrors.CodeHashMismatch))
}

func TestInMemoryStoreAddressesByContent(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()

	id1, err := s.Upload(ctx, map[string]int{"a": 1})
	require.NoError(t, err)
	id2, err := s.Upload(ctx, map[string]int{"a": 1})
	require.NoError(t, err)
	assert.Equal(t, id1, id2, "identical payloads address identically")

	id3, err := s.Upload(ctx, map[string]int{"a": 2})
	require.NoError(t, err)
	assert.NotEqual(t, id1, id3)
}

func TestInMemoryStorePartialFailure(t *testing.T) {
	s := NewInMemoryStore()
	s.UploadErr = errors.New("pinning unavailable")
	s.FailAfter = 1
	ctx := context.Background()

	_, err := s.Upload(ctx, map[string]int{"first": 1})
	require.NoError(t, err)
	_, err = s.Upload(ctx, map[string]int{"second": 2})
	require.Error(t, err)
}
