package domainerrors

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/suite"
)

// DomainErrorsSuite tests the domain error primitives.
//
// Justification: These are core error primitives used at every trust boundary.
// Unit tests ensure invariants like "wrapped domain errors preserve original code"
// and "errors.Is matches by code" are maintained.
type DomainErrorsSuite struct {
	suite.Suite
}

func TestDomainErrorsSuite(t *testing.T) {
	suite.Run(t, new(DomainErrorsSuite))
}

func (s *DomainErrorsSuite) TestErrorInterface() {
	s.Run("returns message when present", func() {
		err := &Error{Code: CodeNotFound, Message: "passport not found"}
		s.Equal("passport not found", err.Error())
	})

	s.Run("returns code when message is empty", func() {
		err := &Error{Code: CodeHashMismatch}
		s.Equal("hash_mismatch", err.Error())
	})
}

func (s *DomainErrorsSuite) TestUnwrap() {
	s.Run("returns wrapped error", func() {
		inner := errors.New("rpc connection refused")
		err := &Error{Code: CodeTransport, Message: "ledger call failed", Err: inner}
		s.Equal(inner, err.Unwrap())
	})

	s.Run("returns nil when no wrapped error", func() {
		err := &Error{Code: CodeNotFound, Message: "not found"}
		s.Nil(err.Unwrap())
	})
}

func (s *DomainErrorsSuite) TestIsMatching() {
	s.Run("matches by code only", func() {
		err1 := &Error{Code: CodeOnChainRejected, Message: "nonce already used"}
		err2 := &Error{Code: CodeOnChainRejected, Message: "execution reverted"}
		s.True(err1.Is(err2))
	})

	s.Run("does not match different codes", func() {
		err1 := &Error{Code: CodeSignatureDenied}
		err2 := &Error{Code: CodeSignatureMalformed}
		s.False(err1.Is(err2))
	})

	s.Run("works with errors.Is through wrapping", func() {
		inner := New(CodePreconditionFailed, "credential expired")
		wrapped := Wrap(inner, CodeInternal, "update aborted")
		s.True(errors.Is(wrapped, &Error{Code: CodePreconditionFailed}))
	})
}

func (s *DomainErrorsSuite) TestWrapPreservesCode() {
	inner := New(CodeHashMismatch, "directory hash diverges from chain")
	wrapped := Wrap(inner, CodeInternal, "read aborted")

	var e *Error
	s.Require().True(errors.As(wrapped, &e))
	s.Equal(CodeHashMismatch, e.Code)
	s.Equal("read aborted", e.Message)
}

func (s *DomainErrorsSuite) TestHasCode() {
	s.True(HasCode(New(CodeNoCredentialFound, "no record for address"), CodeNoCredentialFound))
	s.False(HasCode(New(CodeNoCredentialFound, ""), CodeNotFound))
	s.False(HasCode(errors.New("plain"), CodeNotFound))
}
