package workers

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/vigil/internal/interfaces"
	"github.com/ternarybob/vigil/internal/models"
)

// IssueWorker forwards issue candidates to the notification
// collaborator. The collaborator owns the policy (threshold, debounce,
// channel); this worker's only responsibility is at-least-once
// delivery of (issue, isNew) and recording a positive decision back
// onto the stored issue.
type IssueWorker struct {
	storage  interfaces.StorageManager
	notifier interfaces.Notifier
	logger   arbor.ILogger
}

// NewIssueWorker creates an issue processor
func NewIssueWorker(storage interfaces.StorageManager, notifier interfaces.Notifier, logger arbor.ILogger) *IssueWorker {
	return &IssueWorker{
		storage:  storage,
		notifier: notifier,
		logger:   logger,
	}
}

// Handle processes one issue job
func (w *IssueWorker) Handle(ctx context.Context, msg *models.QueueMessage) error {
	var job models.IssueJob
	if err := json.Unmarshal(msg.Payload, &job); err != nil {
		return fmt.Errorf("failed to decode issue job payload: %w", err)
	}

	issue := job.Issue

	// Prefer the stored record: the count may have advanced since this
	// job was enqueued, and the notifier decides on current state
	if stored, err := w.storage.IssueStorage().GetIssue(ctx, issue.RunID, issue.Fingerprint); err == nil && stored != nil {
		issue = *stored
	}

	notified, err := w.notifier.ProcessIssue(ctx, issue, job.IsNew)
	if err != nil {
		return fmt.Errorf("notification delivery failed for %s: %w", issue.Fingerprint, err)
	}

	if notified && !issue.Notified {
		if err := w.storage.IssueStorage().MarkNotified(ctx, issue.RunID, issue.Fingerprint); err != nil {
			// The alert went out; a bookkeeping failure should not
			// trigger a redelivery that alerts again
			w.logger.Warn().
				Err(err).
				Str("fingerprint", issue.Fingerprint).
				Msg("Failed to mark issue notified")
		}
	}

	w.logger.Debug().
		Str("job_id", msg.JobID).
		Str("fingerprint", issue.Fingerprint).
		Bool("is_new", job.IsNew).
		Bool("notified", notified).
		Msg("Issue processed")

	return nil
}
