package app

import (
	"context"
	"log/slog"

	"github.com/MrWong99/interviewcoach/internal/aggregate"
	"github.com/MrWong99/interviewcoach/internal/journal"
	"github.com/MrWong99/interviewcoach/pkg/types"
)

// journalingSubmitter records every submission attempt in a local journal
// before reporting the backend result. Journal failures are logged only.
type journalingSubmitter struct {
	next      aggregate.Submitter
	store     *journal.FileStore
	sessionID func() string
}

func (j *journalingSubmitter) SubmitSession(ctx context.Context, s types.SessionSubmission) error {
	err := j.next.SubmitSession(ctx, s)
	status := journal.StatusSubmitted
	if err != nil {
		status = journal.StatusPending
	}
	id := j.sessionID()
	if jerr := j.store.Append(id, status, s, err); jerr != nil {
		slog.Warn("journal append failed", "session_id", id, "err", jerr)
	}
	return err
}

// ResendPending resubmits every journaled session still marked pending and
// returns how many the backend accepted.
func ResendPending(ctx context.Context, store *journal.FileStore, sub aggregate.Submitter) (int, error) {
	records, err := store.Records()
	if err != nil {
		return 0, err
	}
	sent := 0
	for _, r := range journal.Pending(records) {
		if err := ctx.Err(); err != nil {
			return sent, err
		}
		err := sub.SubmitSession(ctx, r.Submission)
		status := journal.StatusSubmitted
		if err != nil {
			status = journal.StatusPending
			slog.Warn("resend failed", "session_id", r.SessionID, "err", err)
		} else {
			sent++
		}
		if jerr := store.Append(r.SessionID, status, r.Submission, err); jerr != nil {
			return sent, jerr
		}
	}
	return sent, nil
}
