package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"batterypass/internal/authz"
	"batterypass/internal/directory"
	"batterypass/internal/ledger"
	"batterypass/internal/platform/tracer"
	"batterypass/internal/session"
	"batterypass/pkg/domain"
	dErrors "batterypass/pkg/domain-errors"
)

// VerifyResult is a payload that passed the three-way integrity check.
type VerifyResult struct {
	ContentID  domain.ContentID
	Commitment common.Hash
	Payload    json.RawMessage
}

// VerifyContent reads the latest document for one token and action, checking
// all three hash legs against each other: the on-chain commitment, the
// directory's newest indexed content id, and the bytes actually served by the
// content store. Any disagreement returns CodeHashMismatch and no payload;
// a document that cannot be proven consistent is treated as nonexistent.
func (o *Orchestrator) VerifyContent(ctx context.Context, sess *session.Session, tokenID uint64, action domain.Action) (VerifyResult, error) {
	ctx, span := o.tracer.Start(ctx, "orchestrator.verify_content",
		tracer.String("action", string(action)),
		tracer.Int64("token_id", int64(tokenID)),
	)
	var err error
	defer func() {
		span.End(err)
		if err != nil && dErrors.HasCode(err, dErrors.CodeHashMismatch) {
			o.metrics.HashMismatches.Inc()
		}
	}()

	if !action.Valid() {
		err = dErrors.New(dErrors.CodeBadRequest, fmt.Sprintf("unknown action %q", action))
		return VerifyResult{}, err
	}

	// Leg one: the committed hash, behind a signed read.
	data := authz.ContentRead(o.signingDomain, o.passportAddr, action, tokenID, sess.Address())
	sig, err := sess.Signer().SignTypedData(ctx, data)
	if err != nil {
		return VerifyResult{}, err
	}
	commitment, err := o.passport.GetContentCommitment(ctx, ledger.ContentQuery{
		TokenID:   tokenID,
		Action:    action,
		Caller:    sess.Address(),
		Signature: sig,
	})
	if err != nil {
		return VerifyResult{}, err
	}

	// Leg two: the directory's newest content id for this action.
	history, err := o.dir.ContentHistory(ctx, tokenID)
	if err != nil {
		return VerifyResult{}, dErrors.Wrap(err, dErrors.CodeTransport, "read content history")
	}
	entry, ok := latestFor(history, action)
	if !ok {
		err = dErrors.New(dErrors.CodeHashMismatch,
			fmt.Sprintf("chain commits %s for token %d but the directory has no %s entry", commitment.Hex(), tokenID, action))
		return VerifyResult{}, err
	}
	if entry.Hash.Commitment() != commitment {
		err = dErrors.New(dErrors.CodeHashMismatch,
			fmt.Sprintf("directory content id %s does not match on-chain commitment for token %d", entry.Hash, tokenID))
		o.reportMismatch(ctx, sess, tokenID, action, string(entry.Hash))
		return VerifyResult{}, err
	}

	// Leg three: the stored bytes must address to the id they were served
	// under. The store owns the id scheme, so it does the recomputation.
	payload, err := o.content.Fetch(ctx, entry.Hash)
	if err != nil {
		return VerifyResult{}, err
	}
	if err = o.content.Verify(ctx, entry.Hash, payload); err != nil {
		if dErrors.HasCode(err, dErrors.CodeHashMismatch) {
			o.reportMismatch(ctx, sess, tokenID, action, string(entry.Hash))
		}
		return VerifyResult{}, err
	}

	return VerifyResult{
		ContentID:  entry.Hash,
		Commitment: commitment,
		Payload:    payload,
	}, nil
}

// reportMismatch leaves an audit trail for a failed integrity check. Best
// effort, like all directory writes.
func (o *Orchestrator) reportMismatch(ctx context.Context, sess *session.Session, tokenID uint64, action domain.Action, contentID string) {
	entry := directory.NewActivityEntry(domain.ActionDiscrepancyReport, sess.Address().Hex(), tokenID,
		fmt.Sprintf("integrity check failed for %s content %s", action, contentID)).
		WithUserAgent(sess.UserAgent())
	if err := o.dir.RecordActivity(ctx, entry); err != nil {
		o.log.WarnContext(ctx, "mismatch report failed", "token_id", tokenID, "error", err.Error())
	}
}

func latestFor(history []directory.HashEntry, action domain.Action) (directory.HashEntry, bool) {
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Action == action {
			return history[i], true
		}
	}
	return directory.HashEntry{}, false
}
