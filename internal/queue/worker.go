package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/vigil/internal/interfaces"
	"github.com/ternarybob/vigil/internal/models"
)

// JobHandler is a function that handles a specific job type
type JobHandler func(ctx context.Context, msg *models.QueueMessage) error

// WorkerPool manages a pool of workers polling one queue. Handlers are
// registered per job type. A handler error leaves the message to
// re-appear after its backed-off visibility window; once the retry
// budget is exhausted the message is parked as a failed job for
// inspection instead of being retried forever.
type WorkerPool struct {
	queueMgr     *Manager
	failed       interfaces.FailedJobStorage
	handlers     map[string]JobHandler
	logger       arbor.ILogger
	concurrency  int
	pollInterval time.Duration
	ctx          context.Context
	cancel       context.CancelFunc
}

// NewWorkerPool creates a new worker pool over the given queue
func NewWorkerPool(queueMgr *Manager, failed interfaces.FailedJobStorage, logger arbor.ILogger, concurrency int, pollInterval time.Duration) *WorkerPool {
	if concurrency <= 0 {
		concurrency = 1
	}
	if pollInterval <= 0 {
		pollInterval = 250 * time.Millisecond
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &WorkerPool{
		queueMgr:     queueMgr,
		failed:       failed,
		handlers:     make(map[string]JobHandler),
		logger:       logger,
		concurrency:  concurrency,
		pollInterval: pollInterval,
		ctx:          ctx,
		cancel:       cancel,
	}
}

// RegisterHandler registers a job type handler
func (wp *WorkerPool) RegisterHandler(jobType string, handler JobHandler) {
	wp.handlers[jobType] = handler
	wp.logger.Debug().
		Str("queue", wp.queueMgr.Name()).
		Str("job_type", jobType).
		Msg("Job handler registered")
}

// Start starts the worker pool
func (wp *WorkerPool) Start() {
	wp.logger.Info().
		Str("queue", wp.queueMgr.Name()).
		Int("concurrency", wp.concurrency).
		Msg("Starting worker pool")

	for i := 0; i < wp.concurrency; i++ {
		go wp.worker(i)
	}
}

// Stop gracefully stops the worker pool
func (wp *WorkerPool) Stop() {
	wp.logger.Info().
		Str("queue", wp.queueMgr.Name()).
		Msg("Stopping worker pool")
	wp.cancel()
}

// worker is the main worker loop that processes messages
func (wp *WorkerPool) worker(workerID int) {
	// Stagger worker starts to reduce receive contention
	staggerDelay := (wp.pollInterval / time.Duration(wp.concurrency)) * time.Duration(workerID)
	if staggerDelay > 0 {
		time.Sleep(staggerDelay)
	}

	ticker := time.NewTicker(wp.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-wp.ctx.Done():
			wp.logger.Debug().
				Str("queue", wp.queueMgr.Name()).
				Int("worker_id", workerID).
				Msg("Worker stopped")
			return

		case <-ticker.C:
			// Drain ready messages before sleeping again
			for {
				err := wp.processMessage(workerID)
				if err != nil {
					if err != ErrNoMessage {
						wp.logger.Warn().
							Err(err).
							Str("queue", wp.queueMgr.Name()).
							Int("worker_id", workerID).
							Msg("Error processing message")
					}
					break
				}
			}
		}
	}
}

// processMessage receives and processes a single message
func (wp *WorkerPool) processMessage(workerID int) error {
	delivery, ack, exhausted, err := wp.queueMgr.Receive(wp.ctx)

	// Park messages that ran out of retries regardless of whether a
	// live message was also claimed
	for _, ex := range exhausted {
		wp.parkFailed(ex, "retry budget exhausted")
	}

	if err != nil {
		return err
	}

	msg := delivery.Message

	handler, exists := wp.handlers[msg.Type]
	if !exists {
		wp.logger.Error().
			Str("queue", wp.queueMgr.Name()).
			Str("type", msg.Type).
			Str("job_id", msg.JobID).
			Msg("No handler registered for job type")
		wp.parkFailed(*delivery, fmt.Sprintf("no handler for job type: %s", msg.Type))
		if ackErr := ack(); ackErr != nil {
			wp.logger.Warn().Err(ackErr).Msg("Failed to delete unroutable message")
		}
		return fmt.Errorf("no handler for job type: %s", msg.Type)
	}

	startTime := time.Now()
	handlerErr := wp.safeHandle(handler, &msg)
	duration := time.Since(startTime)

	if handlerErr != nil {
		wp.logger.Error().
			Err(handlerErr).
			Str("queue", wp.queueMgr.Name()).
			Str("job_id", msg.JobID).
			Str("type", msg.Type).
			Int("attempt", delivery.Attempts).
			Dur("duration", duration).
			Int("worker_id", workerID).
			Msg("Job handler failed")

		if delivery.Attempts >= wp.queueMgr.MaxReceive() {
			// Final attempt: park with the real error and remove from queue
			wp.parkFailed(*delivery, handlerErr.Error())
			if ackErr := ack(); ackErr != nil {
				wp.logger.Warn().Err(ackErr).Str("job_id", msg.JobID).Msg("Failed to delete exhausted message")
			}
		}
		// Otherwise leave the message for backed-off redelivery
		return handlerErr
	}

	wp.logger.Debug().
		Str("queue", wp.queueMgr.Name()).
		Str("job_id", msg.JobID).
		Str("type", msg.Type).
		Dur("duration", duration).
		Int("worker_id", workerID).
		Msg("Job completed")

	if err := ack(); err != nil {
		wp.logger.Warn().
			Err(err).
			Str("job_id", msg.JobID).
			Msg("Failed to delete message after successful processing")
		return err
	}

	return nil
}

// safeHandle converts handler panics into errors so a defective job
// cannot take down the worker pool
func (wp *WorkerPool) safeHandle(handler JobHandler, msg *models.QueueMessage) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panicked: %v", r)
		}
	}()
	return handler(wp.ctx, msg)
}

// parkFailed retains a job that ran out of retries (capped; trimming
// happens in the maintenance job)
func (wp *WorkerPool) parkFailed(delivery Delivery, reason string) {
	job := &models.FailedJob{
		ID:        "failed_" + uuid.New().String(),
		QueueName: wp.queueMgr.Name(),
		Message:   delivery.Message,
		Error:     reason,
		Attempts:  delivery.Attempts,
		FailedAt:  time.Now().UTC(),
	}
	if err := wp.failed.SaveFailedJob(wp.ctx, job); err != nil {
		wp.logger.Warn().
			Err(err).
			Str("queue", wp.queueMgr.Name()).
			Str("job_id", delivery.Message.JobID).
			Msg("Failed to park failed job")
		return
	}
	wp.logger.Warn().
		Str("queue", wp.queueMgr.Name()).
		Str("job_id", delivery.Message.JobID).
		Str("reason", reason).
		Int("attempts", delivery.Attempts).
		Msg("Job parked as failed")
}
