package interfaces

import (
	"context"

	"github.com/ternarybob/vigil/internal/models"
)

// RunIDLatest is the sentinel run identifier resolved at call time to
// the most recently started run. Callers never need to track run ids
// explicitly for interactive use.
const RunIDLatest = "latest"

// LogFilter narrows a log read. Zero values mean "no filter".
type LogFilter struct {
	Source string // restrict to one source partition
	Filter string // case-insensitive regex over message and serialized metadata
	Limit  int
	Offset int
}

// IssueFilter narrows an issue read. Zero values mean "no filter".
type IssueFilter struct {
	Source string
	Level  string
	Limit  int
	Offset int
}

// UpsertResult reports what an issue upsert did
type UpsertResult struct {
	IsNew bool // true when the fingerprint was first seen in this run
	Count int  // issue count after the upsert
}

// LogStorage - per-run, per-source log persistence with uniform TTL
type LogStorage interface {
	// AppendLogs appends entries to the (runID, source) partition in
	// arrival order and refreshes the partition's TTL. Returns the
	// number of entries written. Safe to repeat on retry; duplicate
	// appends are an accepted at-least-once trade-off.
	AppendLogs(ctx context.Context, runID, source string, entries []models.LogEntry) (int, error)

	// GetLogs merges all matching source partitions of the resolved
	// run, applies the optional regex filter, sorts by timestamp
	// ascending and paginates after filtering. Returns the page and
	// the post-filter total. runID may be RunIDLatest.
	GetLogs(ctx context.Context, runID string, filter LogFilter) ([]models.LogEntry, int, error)

	// CountLogs returns the total entry count for the resolved run.
	CountLogs(ctx context.Context, runID string) (int, error)
}

// IssueStorage - per-run issue registry keyed by fingerprint
type IssueStorage interface {
	// UpsertIssue is the sole mutation path for issues. It behaves
	// atomically per fingerprint: concurrent upserts for the same
	// fingerprint must not lose a count increment. Notified state and
	// FirstSeen are preserved from the existing record.
	UpsertIssue(ctx context.Context, issue models.Issue) (UpsertResult, error)

	// GetIssues returns issues for the resolved run sorted by count
	// descending then lastSeen descending, paginated after filtering.
	GetIssues(ctx context.Context, runID string, filter IssueFilter) ([]models.Issue, int, error)

	// GetIssue reads one issue by fingerprint.
	GetIssue(ctx context.Context, runID, fingerprint string) (*models.Issue, error)

	// MarkNotified flags the issue as notified and stamps NotifiedAt.
	MarkNotified(ctx context.Context, runID, fingerprint string) error
}

// RunStorage - run lifecycle state: latest-run pointer, callbacks,
// atomic run deletion
type RunStorage interface {
	// SetLatestRun points the latest-run key at runID.
	SetLatestRun(ctx context.Context, runID string) error

	// GetLatestRun returns the current latest run id, or "" when none.
	GetLatestRun(ctx context.Context) (string, error)

	// ResolveRunID maps RunIDLatest to the current latest run id and
	// passes explicit ids through. Returns ErrRunNotFound when the
	// sentinel resolves to nothing.
	ResolveRunID(ctx context.Context, runID string) (string, error)

	// ClearRun deletes all data owned by the run: logs, issues and
	// callback registration.
	ClearRun(ctx context.Context, runID string) error

	SetCallback(ctx context.Context, runID, url string) error
	GetCallback(ctx context.Context, runID string) (string, error)
}

// FailedJobStorage - capped retention of jobs that exhausted their
// retry budget, kept for inspection rather than silently dropped
type FailedJobStorage interface {
	SaveFailedJob(ctx context.Context, job *models.FailedJob) error
	GetFailedJobs(ctx context.Context, queueName string, limit int) ([]models.FailedJob, error)
	CountFailedJobs(ctx context.Context, queueName string) (int, error)
	// TrimFailedJobs deletes the oldest retained jobs above the cap.
	TrimFailedJobs(ctx context.Context, queueName string, max int) (int, error)
}

// StorageManager aggregates the storage surfaces behind one lifecycle
type StorageManager interface {
	LogStorage() LogStorage
	IssueStorage() IssueStorage
	RunStorage() RunStorage
	FailedJobStorage() FailedJobStorage
	Close() error
}
