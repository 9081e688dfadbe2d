package badger

import (
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/vigil/internal/common"
	"github.com/ternarybob/vigil/internal/interfaces"
)

// Manager implements the StorageManager interface for Badger
type Manager struct {
	db     *BadgerDB
	runs   *RunStorage
	logs   *LogStorage
	issues *IssueStorage
	failed *FailedJobStorage
	logger arbor.ILogger
}

// NewManager creates a new Badger storage manager. All run-scoped
// writes carry the configured TTL so idle runs self-expire.
func NewManager(logger arbor.ILogger, config *common.BadgerConfig, ttl time.Duration) (*Manager, error) {
	db, err := NewBadgerDB(logger, config)
	if err != nil {
		return nil, err
	}

	runs := NewRunStorage(db, logger, ttl)

	manager := &Manager{
		db:     db,
		runs:   runs,
		logs:   NewLogStorage(db, runs, logger, ttl),
		issues: NewIssueStorage(db, runs, logger, ttl),
		failed: NewFailedJobStorage(db, logger),
		logger: logger,
	}

	logger.Info().
		Str("path", config.Path).
		Dur("ttl", ttl).
		Msg("Badger storage manager initialized")

	return manager, nil
}

// LogStorage returns the Log storage interface
func (m *Manager) LogStorage() interfaces.LogStorage {
	return m.logs
}

// IssueStorage returns the Issue storage interface
func (m *Manager) IssueStorage() interfaces.IssueStorage {
	return m.issues
}

// RunStorage returns the Run storage interface
func (m *Manager) RunStorage() interfaces.RunStorage {
	return m.runs
}

// FailedJobStorage returns the FailedJob storage interface
func (m *Manager) FailedJobStorage() interfaces.FailedJobStorage {
	return m.failed
}

// DB returns the underlying database connection for the queue managers
func (m *Manager) DB() *BadgerDB {
	return m.db
}

// Close closes the database connection
func (m *Manager) Close() error {
	if m.db != nil {
		return m.db.Close()
	}
	return nil
}
