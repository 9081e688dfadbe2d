package workers

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/vigil/internal/common"
	"github.com/ternarybob/vigil/internal/interfaces"
	"github.com/ternarybob/vigil/internal/models"
	"github.com/ternarybob/vigil/internal/patterns"
	"github.com/ternarybob/vigil/internal/queue"
)

// BatchWorker processes log-batch jobs: persist the entries, refresh
// the latest-run pointer, classify every entry against the pattern
// library and hand matches to the issue queue.
//
// A storage failure fails the whole job so the queue retries it;
// appends are safe to repeat, so duplicates on retry are the accepted
// at-least-once trade-off.
type BatchWorker struct {
	storage    interfaces.StorageManager
	engine     *patterns.Engine
	issueQueue *queue.Manager
	logger     arbor.ILogger
}

// NewBatchWorker creates a batch processor
func NewBatchWorker(storage interfaces.StorageManager, engine *patterns.Engine, issueQueue *queue.Manager, logger arbor.ILogger) *BatchWorker {
	return &BatchWorker{
		storage:    storage,
		engine:     engine,
		issueQueue: issueQueue,
		logger:     logger,
	}
}

// Handle processes one log-batch job
func (w *BatchWorker) Handle(ctx context.Context, msg *models.QueueMessage) error {
	var batch models.LogBatch
	if err := json.Unmarshal(msg.Payload, &batch); err != nil {
		return fmt.Errorf("failed to decode log batch payload: %w", err)
	}

	if len(batch.Entries) == 0 {
		w.logger.Debug().Str("job_id", msg.JobID).Msg("Empty batch, nothing to do")
		return nil
	}

	count, err := w.storage.LogStorage().AppendLogs(ctx, batch.RunID, batch.Source, batch.Entries)
	if err != nil {
		return fmt.Errorf("failed to store batch: %w", err)
	}

	if err := w.storage.RunStorage().SetLatestRun(ctx, batch.RunID); err != nil {
		return fmt.Errorf("failed to update latest run: %w", err)
	}

	matched := 0
	for i := range batch.Entries {
		entry := batch.Entries[i]
		entry.RunID = batch.RunID
		entry.Source = batch.Source
		entry.Level = models.NormalizeLevel(entry.Level)

		candidate, ok := w.engine.Match(entry)
		if !ok {
			continue
		}

		result, err := w.storage.IssueStorage().UpsertIssue(ctx, candidate)
		if err != nil {
			return fmt.Errorf("failed to upsert issue %s: %w", candidate.Fingerprint, err)
		}
		candidate.Count = result.Count
		matched++

		if err := w.enqueueIssue(ctx, candidate, result.IsNew); err != nil {
			return fmt.Errorf("failed to enqueue issue job: %w", err)
		}
	}

	w.logger.Info().
		Str("job_id", msg.JobID).
		Str("run_id", batch.RunID).
		Str("source", batch.Source).
		Int("entries", count).
		Int("issues", matched).
		Msg("Batch processed")

	return nil
}

func (w *BatchWorker) enqueueIssue(ctx context.Context, issue models.Issue, isNew bool) error {
	payload, err := json.Marshal(models.IssueJob{Issue: issue, IsNew: isNew})
	if err != nil {
		return fmt.Errorf("failed to marshal issue job: %w", err)
	}
	return w.issueQueue.Enqueue(ctx, models.QueueMessage{
		JobID:   common.NewJobID(),
		Type:    models.JobTypeIssue,
		Payload: payload,
	})
}
