package badger

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"sync/atomic"
	"time"

	badgerdb "github.com/dgraph-io/badger/v4"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/vigil/internal/interfaces"
	"github.com/ternarybob/vigil/internal/models"
)

// logSequence is a global counter to ensure unique, ordered log keys
// even when multiple entries are written within the same nanosecond
var logSequence uint64

// LogStorage implements the LogStorage interface for Badger
type LogStorage struct {
	db     *BadgerDB
	runs   *RunStorage
	logger arbor.ILogger
	ttl    time.Duration
}

// NewLogStorage creates a new LogStorage instance
func NewLogStorage(db *BadgerDB, runs *RunStorage, logger arbor.ILogger, ttl time.Duration) *LogStorage {
	return &LogStorage{
		db:     db,
		runs:   runs,
		logger: logger,
		ttl:    ttl,
	}
}

// AppendLogs writes entries to the (runID, source) partition in
// arrival order. Each entry key carries the nanosecond timestamp plus
// an atomic sequence so lexicographic order is append order, and every
// entry carries the uniform TTL so the partition expiry refreshes on
// write. Repeating the append on retry duplicates entries rather than
// losing them (at-least-once).
func (s *LogStorage) AppendLogs(ctx context.Context, runID, source string, entries []models.LogEntry) (int, error) {
	if runID == "" || source == "" {
		return 0, fmt.Errorf("run id and source are required")
	}

	source = sanitizeSource(source)

	err := s.db.Badger().Update(func(txn *badgerdb.Txn) error {
		for i := range entries {
			entry := entries[i]
			entry.RunID = runID
			entry.Source = source
			entry.Level = models.NormalizeLevel(entry.Level)
			if entry.Timestamp == "" {
				entry.Timestamp = time.Now().UTC().Format(time.RFC3339Nano)
			}

			data, err := json.Marshal(&entry)
			if err != nil {
				return fmt.Errorf("failed to marshal log entry: %w", err)
			}

			seq := atomic.AddUint64(&logSequence, 1)
			key := logKey(runID, source, fmt.Sprintf("%019d_%010d", time.Now().UnixNano(), seq))

			badgerEntry := badgerdb.NewEntry(key, data).WithTTL(s.ttl)
			if err := txn.SetEntry(badgerEntry); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to append logs: %w", err)
	}

	return len(entries), nil
}

// GetLogs merges all matching source partitions of the resolved run,
// applies the optional case-insensitive regex filter over message and
// serialized metadata, sorts by timestamp ascending and paginates
// after filtering. The returned total is the post-filter count.
func (s *LogStorage) GetLogs(ctx context.Context, runID string, filter interfaces.LogFilter) ([]models.LogEntry, int, error) {
	resolved, err := s.runs.ResolveRunID(ctx, runID)
	if err != nil {
		return nil, 0, err
	}

	var re *regexp.Regexp
	if filter.Filter != "" {
		re, err = regexp.Compile("(?i)" + filter.Filter)
		if err != nil {
			return nil, 0, fmt.Errorf("invalid filter regex: %w", err)
		}
	}

	prefix := logPrefix(resolved)
	if filter.Source != "" {
		prefix = logSourcePrefix(resolved, sanitizeSource(filter.Source))
	}

	var logs []models.LogEntry
	err = s.db.Badger().View(func(txn *badgerdb.Txn) error {
		opts := badgerdb.DefaultIteratorOptions
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var entry models.LogEntry
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &entry)
			}); err != nil {
				return err
			}

			if re != nil && !matchesFilter(re, &entry) {
				continue
			}
			logs = append(logs, entry)
		}
		return nil
	})
	if err != nil {
		return nil, 0, fmt.Errorf("failed to get logs: %w", err)
	}

	// Best-effort chronological order: arrival order and client
	// timestamp order may diverge slightly across sources
	sortLogsAsc(logs)

	total := len(logs)
	logs = paginateLogs(logs, filter.Limit, filter.Offset)

	return logs, total, nil
}

// CountLogs returns the total entry count for the resolved run
func (s *LogStorage) CountLogs(ctx context.Context, runID string) (int, error) {
	resolved, err := s.runs.ResolveRunID(ctx, runID)
	if err != nil {
		return 0, err
	}

	prefix := logPrefix(resolved)
	count := 0
	err = s.db.Badger().View(func(txn *badgerdb.Txn) error {
		opts := badgerdb.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			count++
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to count logs: %w", err)
	}
	return count, nil
}

// matchesFilter tests the regex against the message and the serialized
// metadata map
func matchesFilter(re *regexp.Regexp, entry *models.LogEntry) bool {
	if re.MatchString(entry.Message) {
		return true
	}
	if len(entry.Metadata) > 0 {
		if meta, err := json.Marshal(entry.Metadata); err == nil && re.Match(meta) {
			return true
		}
	}
	return false
}

// sortLogsAsc sorts logs oldest first by client timestamp. The stable
// sort preserves append order for entries with identical timestamps.
func sortLogsAsc(logs []models.LogEntry) {
	sort.SliceStable(logs, func(i, j int) bool {
		return logs[i].Timestamp < logs[j].Timestamp
	})
}

func paginateLogs(logs []models.LogEntry, limit, offset int) []models.LogEntry {
	if offset > 0 {
		if offset >= len(logs) {
			return []models.LogEntry{}
		}
		logs = logs[offset:]
	}
	if limit > 0 && len(logs) > limit {
		logs = logs[:limit]
	}
	return logs
}
