package badger

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	badgerdb "github.com/dgraph-io/badger/v4"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/vigil/internal/interfaces"
	"github.com/ternarybob/vigil/internal/models"
)

// IssueStorage implements the IssueStorage interface for Badger
type IssueStorage struct {
	db     *BadgerDB
	runs   *RunStorage
	logger arbor.ILogger
	ttl    time.Duration

	// runLocks serializes issue read-modify-write per run so concurrent
	// upserts for the same fingerprint never lose a count increment
	runLocks sync.Map // runID -> *sync.Mutex
}

// NewIssueStorage creates a new IssueStorage instance
func NewIssueStorage(db *BadgerDB, runs *RunStorage, logger arbor.ILogger, ttl time.Duration) *IssueStorage {
	return &IssueStorage{
		db:     db,
		runs:   runs,
		logger: logger,
		ttl:    ttl,
	}
}

func (s *IssueStorage) lockRun(runID string) *sync.Mutex {
	mu, _ := s.runLocks.LoadOrStore(runID, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

// UpsertIssue is the sole mutation path for issues. First sighting of
// a fingerprint stores the candidate as-is (count 1); later sightings
// increment the count and advance LastSeen while preserving FirstSeen,
// Notified and NotifiedAt from the existing record.
func (s *IssueStorage) UpsertIssue(ctx context.Context, issue models.Issue) (interfaces.UpsertResult, error) {
	if issue.RunID == "" || issue.Fingerprint == "" {
		return interfaces.UpsertResult{}, fmt.Errorf("run id and fingerprint are required")
	}

	mu := s.lockRun(issue.RunID)
	mu.Lock()
	defer mu.Unlock()

	var result interfaces.UpsertResult
	key := issueKey(issue.RunID, issue.Fingerprint)

	err := s.db.Badger().Update(func(txn *badgerdb.Txn) error {
		item, err := txn.Get(key)
		if err != nil && err != badgerdb.ErrKeyNotFound {
			return err
		}

		stored := issue
		if err == badgerdb.ErrKeyNotFound {
			if stored.Count < 1 {
				stored.Count = 1
			}
			result = interfaces.UpsertResult{IsNew: true, Count: stored.Count}
		} else {
			var existing models.Issue
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &existing)
			}); err != nil {
				return err
			}

			existing.Count++
			if issue.LastSeen > existing.LastSeen {
				existing.LastSeen = issue.LastSeen
			}
			// Notified state and FirstSeen survive increments
			stored = existing
			result = interfaces.UpsertResult{IsNew: false, Count: existing.Count}
		}

		data, err := json.Marshal(&stored)
		if err != nil {
			return fmt.Errorf("failed to marshal issue: %w", err)
		}
		entry := badgerdb.NewEntry(key, data).WithTTL(s.ttl)
		return txn.SetEntry(entry)
	})
	if err != nil {
		return interfaces.UpsertResult{}, fmt.Errorf("failed to upsert issue: %w", err)
	}

	return result, nil
}

// GetIssues returns the resolved run's issues sorted by count
// descending then lastSeen descending, paginated after filtering
func (s *IssueStorage) GetIssues(ctx context.Context, runID string, filter interfaces.IssueFilter) ([]models.Issue, int, error) {
	resolved, err := s.runs.ResolveRunID(ctx, runID)
	if err != nil {
		return nil, 0, err
	}

	var issues []models.Issue
	prefix := issuePrefix(resolved)

	err = s.db.Badger().View(func(txn *badgerdb.Txn) error {
		opts := badgerdb.DefaultIteratorOptions
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var issue models.Issue
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &issue)
			}); err != nil {
				return err
			}

			if filter.Source != "" && issue.Source != filter.Source {
				continue
			}
			if filter.Level != "" && issue.Level != models.NormalizeLevel(filter.Level) {
				continue
			}
			issues = append(issues, issue)
		}
		return nil
	})
	if err != nil {
		return nil, 0, fmt.Errorf("failed to get issues: %w", err)
	}

	sort.SliceStable(issues, func(i, j int) bool {
		if issues[i].Count != issues[j].Count {
			return issues[i].Count > issues[j].Count
		}
		return issues[i].LastSeen > issues[j].LastSeen
	})

	total := len(issues)
	if filter.Offset > 0 {
		if filter.Offset >= len(issues) {
			return []models.Issue{}, total, nil
		}
		issues = issues[filter.Offset:]
	}
	if filter.Limit > 0 && len(issues) > filter.Limit {
		issues = issues[:filter.Limit]
	}

	return issues, total, nil
}

// GetIssue reads one issue by fingerprint. Returns nil when absent.
func (s *IssueStorage) GetIssue(ctx context.Context, runID, fingerprint string) (*models.Issue, error) {
	resolved, err := s.runs.ResolveRunID(ctx, runID)
	if err != nil {
		return nil, err
	}

	var issue *models.Issue
	err = s.db.Badger().View(func(txn *badgerdb.Txn) error {
		item, err := txn.Get(issueKey(resolved, fingerprint))
		if err != nil {
			if err == badgerdb.ErrKeyNotFound {
				return nil
			}
			return err
		}
		return item.Value(func(val []byte) error {
			var decoded models.Issue
			if err := json.Unmarshal(val, &decoded); err != nil {
				return err
			}
			issue = &decoded
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get issue: %w", err)
	}
	return issue, nil
}

// MarkNotified flags the issue as notified and stamps NotifiedAt.
// The flag survives later count increments and is never reset while
// the run is live.
func (s *IssueStorage) MarkNotified(ctx context.Context, runID, fingerprint string) error {
	mu := s.lockRun(runID)
	mu.Lock()
	defer mu.Unlock()

	key := issueKey(runID, fingerprint)
	err := s.db.Badger().Update(func(txn *badgerdb.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}

		var issue models.Issue
		if err := item.Value(func(val []byte) error {
			return json.Unmarshal(val, &issue)
		}); err != nil {
			return err
		}

		now := time.Now().UTC()
		issue.Notified = true
		issue.NotifiedAt = &now

		data, err := json.Marshal(&issue)
		if err != nil {
			return err
		}
		entry := badgerdb.NewEntry(key, data).WithTTL(s.ttl)
		return txn.SetEntry(entry)
	})
	if err != nil {
		return fmt.Errorf("failed to mark issue notified: %w", err)
	}
	return nil
}
