package models

import "strings"

// Log levels accepted from clients and stored
const (
	LevelDebug = "debug"
	LevelInfo  = "info"
	LevelWarn  = "warn"
	LevelError = "error"
)

// LogEntry represents a single structured log line within a run.
//
// Entries are immutable once stored. Ordering within a (run, source)
// partition is by append order, not by timestamp: client clocks are
// untrusted and may disagree across sources.
type LogEntry struct {
	Timestamp string            `json:"timestamp"` // ISO-8601 (RFC3339) as supplied by the client
	Level     string            `json:"level"`
	Message   string            `json:"message"`
	Source    string            `json:"source"`
	RunID     string            `json:"run_id"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// NormalizeLevel maps client level spellings onto the canonical set.
// Unknown levels become "info" rather than being rejected.
func NormalizeLevel(level string) string {
	switch strings.ToLower(level) {
	case "debug", "dbg", "trace":
		return LevelDebug
	case "info", "inf":
		return LevelInfo
	case "warn", "warning", "wrn":
		return LevelWarn
	case "error", "err", "fatal":
		return LevelError
	default:
		return LevelInfo
	}
}

// LogBatch is the transport envelope for a set of entries from one
// source. It is never persisted as a unit; entries are stored
// individually under the (run, source) partition.
type LogBatch struct {
	RunID     string     `json:"run_id" validate:"required"`
	Source    string     `json:"source" validate:"required"`
	Entries   []LogEntry `json:"entries" validate:"required,min=1"`
	Timestamp string     `json:"timestamp,omitempty"` // Batch creation time, informational only
}
