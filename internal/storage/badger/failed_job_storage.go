package badger

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/vigil/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

// FailedJobStorage implements the FailedJobStorage interface using
// badgerhold records. Parked jobs do not expire with run data; they
// are trimmed by count instead (maintenance job).
type FailedJobStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewFailedJobStorage creates a new FailedJobStorage instance
func NewFailedJobStorage(db *BadgerDB, logger arbor.ILogger) *FailedJobStorage {
	return &FailedJobStorage{
		db:     db,
		logger: logger,
	}
}

func (s *FailedJobStorage) SaveFailedJob(ctx context.Context, job *models.FailedJob) error {
	if job.ID == "" {
		return fmt.Errorf("failed job id is required")
	}
	if err := s.db.Store().Upsert(job.ID, job); err != nil {
		return fmt.Errorf("failed to save failed job: %w", err)
	}
	return nil
}

// GetFailedJobs returns parked jobs for a queue, newest first
func (s *FailedJobStorage) GetFailedJobs(ctx context.Context, queueName string, limit int) ([]models.FailedJob, error) {
	var jobs []models.FailedJob
	query := badgerhold.Where("QueueName").Eq(queueName).SortBy("FailedAt").Reverse()
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := s.db.Store().Find(&jobs, query); err != nil {
		return nil, fmt.Errorf("failed to get failed jobs: %w", err)
	}
	return jobs, nil
}

func (s *FailedJobStorage) CountFailedJobs(ctx context.Context, queueName string) (int, error) {
	count, err := s.db.Store().Count(&models.FailedJob{}, badgerhold.Where("QueueName").Eq(queueName))
	if err != nil {
		return 0, fmt.Errorf("failed to count failed jobs: %w", err)
	}
	return int(count), nil
}

// TrimFailedJobs deletes the oldest retained jobs above the cap and
// returns how many were removed
func (s *FailedJobStorage) TrimFailedJobs(ctx context.Context, queueName string, max int) (int, error) {
	count, err := s.CountFailedJobs(ctx, queueName)
	if err != nil {
		return 0, err
	}
	if max <= 0 || count <= max {
		return 0, nil
	}

	excess := count - max
	var oldest []models.FailedJob
	query := badgerhold.Where("QueueName").Eq(queueName).SortBy("FailedAt").Limit(excess)
	if err := s.db.Store().Find(&oldest, query); err != nil {
		return 0, fmt.Errorf("failed to find oldest failed jobs: %w", err)
	}

	trimmed := 0
	for _, job := range oldest {
		if err := s.db.Store().Delete(job.ID, &models.FailedJob{}); err != nil {
			s.logger.Warn().Err(err).Str("job_id", job.ID).Msg("Failed to trim failed job")
			continue
		}
		trimmed++
	}

	return trimmed, nil
}
