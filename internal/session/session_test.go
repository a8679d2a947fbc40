package session_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"batterypass/internal/directory"
	"batterypass/internal/session"
	"batterypass/internal/signer"
	dErrors "batterypass/pkg/domain-errors"
)

const testKeyHex = "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"

type stubDirectory struct {
	calls   atomic.Int64
	release chan struct{}
	record  directory.MemberRecord
	err     error
}

func (d *stubDirectory) Member(_ context.Context, _ common.Address) (directory.MemberRecord, error) {
	d.calls.Add(1)
	if d.release != nil {
		<-d.release
	}
	return d.record, d.err
}

func newSession(t *testing.T, dir session.MemberLookup, opts ...session.Option) *session.Session {
	t.Helper()
	sig, err := signer.NewLocalFromHex(testKeyHex)
	require.NoError(t, err)
	return session.New(sig, dir, opts...)
}

func TestCredentialsFromDirectory(t *testing.T) {
	dir := &stubDirectory{record: directory.MemberRecord{
		DIDName:      "did:web:acme.example#create-0xabc",
		CredentialID: "cred-1",
	}}
	sess := newSession(t, dir)

	creds, err := sess.Credentials(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "cred-1", creds.CredentialID)

	// Second call hits the cache.
	_, err = sess.Credentials(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), dir.calls.Load())
}

func TestSeedSkipsDirectory(t *testing.T) {
	dir := &stubDirectory{err: dErrors.New(dErrors.CodeNotFound, "unseeded")}
	sess := newSession(t, dir)
	sess.Seed(session.Credentials{DIDName: "did:web:acme.example#create-0xabc", CredentialID: "cred-1"})

	creds, err := sess.Credentials(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "cred-1", creds.CredentialID)
	assert.Zero(t, dir.calls.Load())
}

func TestNoCredentialFound(t *testing.T) {
	dir := &stubDirectory{err: dErrors.New(dErrors.CodeNotFound, "no member")}
	sess := newSession(t, dir)

	_, err := sess.Credentials(context.Background())
	assert.True(t, dErrors.HasCode(err, dErrors.CodeNoCredentialFound))

	// Empty binding in the record is also a miss.
	dir2 := &stubDirectory{record: directory.MemberRecord{Organization: "Acme"}}
	sess2 := newSession(t, dir2)
	_, err = sess2.Credentials(context.Background())
	assert.True(t, dErrors.HasCode(err, dErrors.CodeNoCredentialFound))
}

func TestConcurrentResolutionIsDeduplicated(t *testing.T) {
	dir := &stubDirectory{
		release: make(chan struct{}),
		record:  directory.MemberRecord{DIDName: "did:web:acme.example#create-0xabc", CredentialID: "cred-1"},
	}
	sess := newSession(t, dir)

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			creds, err := sess.Credentials(context.Background())
			assert.NoError(t, err)
			assert.Equal(t, "cred-1", creds.CredentialID)
		}()
	}
	close(dir.release)
	wg.Wait()
	assert.Equal(t, int64(1), dir.calls.Load())
}

func TestCloseDropsCache(t *testing.T) {
	dir := &stubDirectory{record: directory.MemberRecord{
		DIDName:      "did:web:acme.example#create-0xabc",
		CredentialID: "cred-1",
	}}
	sess := newSession(t, dir)

	_, err := sess.Credentials(context.Background())
	require.NoError(t, err)
	sess.Close()
	_, err = sess.Credentials(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), dir.calls.Load())
}
