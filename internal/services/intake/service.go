// Package intake validates incoming log batches and hands them to the
// processing queue. Validation happens synchronously so bad batches are
// rejected before acceptance; all heavy work runs in the workers.
package intake

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/vigil/internal/common"
	"github.com/ternarybob/vigil/internal/models"
	"github.com/ternarybob/vigil/internal/queue"
)

// ValidationError marks a rejected batch. Callers surface it as a
// client error and the batch can be retried after correction.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Reason
}

// IsValidationError reports whether err is a batch validation failure
func IsValidationError(err error) bool {
	_, ok := err.(*ValidationError)
	return ok
}

// Service accepts log batches and enqueues them for async processing
type Service struct {
	logsQueue *queue.Manager
	validate  *validator.Validate
	logger    arbor.ILogger
	maxLines  int
}

// NewService creates the batch intake service
func NewService(config *common.Config, logsQueue *queue.Manager, logger arbor.ILogger) *Service {
	return &Service{
		logsQueue: logsQueue,
		validate:  validator.New(),
		logger:    logger,
		maxLines:  config.Ingest.MaxLines,
	}
}

// Accept validates a batch and enqueues it, returning the queued job's
// id. Nothing is persisted until a worker picks the job up; rejection
// leaves no trace of the batch.
func (s *Service) Accept(ctx context.Context, batch *models.LogBatch) (string, error) {
	if err := s.validate.Struct(batch); err != nil {
		return "", &ValidationError{Reason: fmt.Sprintf("invalid batch: %v", err)}
	}

	if s.maxLines > 0 && len(batch.Entries) > s.maxLines {
		return "", &ValidationError{
			Reason: fmt.Sprintf("batch has %d entries, limit is %d", len(batch.Entries), s.maxLines),
		}
	}

	payload, err := json.Marshal(batch)
	if err != nil {
		return "", fmt.Errorf("failed to marshal batch: %w", err)
	}

	msg := models.QueueMessage{
		JobID:   common.NewJobID(),
		Type:    models.JobTypeLogBatch,
		Payload: payload,
	}

	if err := s.logsQueue.Enqueue(ctx, msg); err != nil {
		return "", fmt.Errorf("failed to enqueue batch: %w", err)
	}

	s.logger.Debug().
		Str("job_id", msg.JobID).
		Str("run_id", batch.RunID).
		Str("source", batch.Source).
		Int("entries", len(batch.Entries)).
		Msg("Log batch accepted")

	return msg.JobID, nil
}
