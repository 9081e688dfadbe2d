// Package runs manages the run lifecycle: one active debugging session
// at a time, identified by the latest-run pointer.
package runs

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/vigil/internal/common"
	"github.com/ternarybob/vigil/internal/interfaces"
)

// Service starts and clears runs and maintains the latest-run pointer
type Service struct {
	storage interfaces.StorageManager
	logger  arbor.ILogger
}

// NewService creates the run lifecycle manager
func NewService(storage interfaces.StorageManager, logger arbor.ILogger) *Service {
	return &Service{
		storage: storage,
		logger:  logger,
	}
}

// StartNewRun clears the previous latest run's data (logs, issues,
// callback) if one exists, registers a fresh run as latest and
// optionally records a callback URL. Destructive by design: the tool
// keeps one active debugging session at a time, so starting a new run
// discards the prior one rather than archiving it.
func (s *Service) StartNewRun(ctx context.Context, explicitID, callbackURL string) (previousRunID, newRunID string, err error) {
	runStorage := s.storage.RunStorage()

	previousRunID, err = runStorage.GetLatestRun(ctx)
	if err != nil {
		return "", "", fmt.Errorf("failed to read latest run: %w", err)
	}

	if previousRunID != "" {
		if err := runStorage.ClearRun(ctx, previousRunID); err != nil {
			return "", "", fmt.Errorf("failed to clear previous run %s: %w", previousRunID, err)
		}
	}

	newRunID = explicitID
	if newRunID == "" {
		newRunID = common.NewRunID()
	}

	if err := runStorage.SetLatestRun(ctx, newRunID); err != nil {
		return "", "", fmt.Errorf("failed to register new run: %w", err)
	}

	if callbackURL != "" {
		if err := runStorage.SetCallback(ctx, newRunID, callbackURL); err != nil {
			return "", "", fmt.Errorf("failed to register callback: %w", err)
		}
	}

	s.logger.Info().
		Str("previous_run_id", previousRunID).
		Str("new_run_id", newRunID).
		Msg("New run started")

	return previousRunID, newRunID, nil
}
