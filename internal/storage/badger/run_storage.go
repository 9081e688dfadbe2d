package badger

import (
	"context"
	"fmt"
	"time"

	badgerdb "github.com/dgraph-io/badger/v4"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/vigil/internal/interfaces"
)

// RunStorage implements the RunStorage interface for Badger
type RunStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
	ttl    time.Duration
}

// NewRunStorage creates a new RunStorage instance
func NewRunStorage(db *BadgerDB, logger arbor.ILogger, ttl time.Duration) *RunStorage {
	return &RunStorage{
		db:     db,
		logger: logger,
		ttl:    ttl,
	}
}

func (s *RunStorage) SetLatestRun(ctx context.Context, runID string) error {
	if runID == "" {
		return fmt.Errorf("run id is required")
	}
	err := s.db.Badger().Update(func(txn *badgerdb.Txn) error {
		entry := badgerdb.NewEntry([]byte(latestRunKey), []byte(runID)).WithTTL(s.ttl)
		return txn.SetEntry(entry)
	})
	if err != nil {
		return fmt.Errorf("failed to set latest run: %w", err)
	}
	return nil
}

func (s *RunStorage) GetLatestRun(ctx context.Context) (string, error) {
	var runID string
	err := s.db.Badger().View(func(txn *badgerdb.Txn) error {
		item, err := txn.Get([]byte(latestRunKey))
		if err != nil {
			if err == badgerdb.ErrKeyNotFound {
				return nil
			}
			return err
		}
		return item.Value(func(val []byte) error {
			runID = string(val)
			return nil
		})
	})
	if err != nil {
		return "", fmt.Errorf("failed to get latest run: %w", err)
	}
	return runID, nil
}

// ResolveRunID maps the latest sentinel (or an empty id) to the most
// recently started run. Explicit ids pass through untouched.
func (s *RunStorage) ResolveRunID(ctx context.Context, runID string) (string, error) {
	if runID != "" && runID != interfaces.RunIDLatest {
		return runID, nil
	}
	latest, err := s.GetLatestRun(ctx)
	if err != nil {
		return "", err
	}
	if latest == "" {
		return "", ErrRunNotFound
	}
	return latest, nil
}

// ClearRun deletes everything under the run prefix: logs, issues and
// the callback registration. Batched so large runs stay under the
// badger transaction size limit.
func (s *RunStorage) ClearRun(ctx context.Context, runID string) error {
	if runID == "" {
		return fmt.Errorf("run id is required")
	}

	prefix := runPrefix(runID)
	deleted := 0

	for {
		var keys [][]byte
		err := s.db.Badger().View(func(txn *badgerdb.Txn) error {
			opts := badgerdb.DefaultIteratorOptions
			opts.PrefetchValues = false
			it := txn.NewIterator(opts)
			defer it.Close()

			for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
				keys = append(keys, it.Item().KeyCopy(nil))
				if len(keys) >= 1000 {
					break
				}
			}
			return nil
		})
		if err != nil {
			return fmt.Errorf("failed to scan run keys: %w", err)
		}
		if len(keys) == 0 {
			break
		}

		err = s.db.Badger().Update(func(txn *badgerdb.Txn) error {
			for _, key := range keys {
				if err := txn.Delete(key); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return fmt.Errorf("failed to delete run keys: %w", err)
		}
		deleted += len(keys)

		if len(keys) < 1000 {
			break
		}
	}

	s.logger.Debug().
		Str("run_id", runID).
		Int("keys_deleted", deleted).
		Msg("Run cleared")

	return nil
}

func (s *RunStorage) SetCallback(ctx context.Context, runID, url string) error {
	if runID == "" {
		return fmt.Errorf("run id is required")
	}
	err := s.db.Badger().Update(func(txn *badgerdb.Txn) error {
		entry := badgerdb.NewEntry(callbackKey(runID), []byte(url)).WithTTL(s.ttl)
		return txn.SetEntry(entry)
	})
	if err != nil {
		return fmt.Errorf("failed to set callback: %w", err)
	}
	return nil
}

func (s *RunStorage) GetCallback(ctx context.Context, runID string) (string, error) {
	var url string
	err := s.db.Badger().View(func(txn *badgerdb.Txn) error {
		item, err := txn.Get(callbackKey(runID))
		if err != nil {
			if err == badgerdb.ErrKeyNotFound {
				return nil
			}
			return err
		}
		return item.Value(func(val []byte) error {
			url = string(val)
			return nil
		})
	})
	if err != nil {
		return "", fmt.Errorf("failed to get callback: %w", err)
	}
	return url, nil
}
