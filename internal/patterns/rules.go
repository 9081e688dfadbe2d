package patterns

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/ternarybob/vigil/internal/models"
)

// Issue categories produced by the built-in rules
const (
	TypeNetwork  = "network"
	TypeDatabase = "database"
	TypeResource = "resource"
	TypeAuth     = "auth"
	TypeHTTP     = "http"
	TypeCrash    = "crash"
)

// FingerprintFunc derives the stable dedup key from a regex match and
// the matched entry. Must be a pure function of its inputs: the same
// entry must always yield the same fingerprint or deduplication breaks.
type FingerprintFunc func(match []string, entry models.LogEntry) string

// SummaryFunc renders the human-readable one-liner for an issue.
// Same purity requirement as FingerprintFunc.
type SummaryFunc func(match []string, entry models.LogEntry) string

// Rule is one classification rule. Rules are evaluated in slice order
// against the entry message; the first match wins.
type Rule struct {
	ID          string
	Name        string
	Type        string
	Level       string
	Regex       *regexp.Regexp
	Fingerprint FingerprintFunc
	Summary     SummaryFunc
}

// DefaultRules returns the built-in rule library in evaluation order.
// The slice is rebuilt on each call so callers can safely reorder or
// extend their copy.
func DefaultRules() []Rule {
	return []Rule{
		{
			ID:    "conn_refused",
			Name:  "Connection refused",
			Type:  TypeNetwork,
			Level: models.LevelError,
			Regex: regexp.MustCompile(`(?i)(?:ECONNREFUSED|connection refused)\D*?((?:\d{1,3}\.){3}\d{1,3})(?::(\d+))?`),
			Fingerprint: func(match []string, entry models.LogEntry) string {
				host := match[1]
				if match[2] != "" {
					return fmt.Sprintf("network:conn_refused:%s:%s", host, match[2])
				}
				return fmt.Sprintf("network:conn_refused:%s", host)
			},
			Summary: func(match []string, entry models.LogEntry) string {
				return fmt.Sprintf("Connection refused to %s", match[1])
			},
		},
		{
			ID:    "timeout",
			Name:  "Operation timeout",
			Type:  TypeNetwork,
			Level: models.LevelError,
			Regex: regexp.MustCompile(`(?i)\b(ETIMEDOUT|timed?\s?out|deadline exceeded)\b`),
			Fingerprint: func(match []string, entry models.LogEntry) string {
				return fmt.Sprintf("network:timeout:%s", entry.Source)
			},
			Summary: func(match []string, entry models.LogEntry) string {
				return fmt.Sprintf("Timeout in %s: %s", entry.Source, truncate(entry.Message, 80))
			},
		},
		{
			ID:    "db_error",
			Name:  "Database error",
			Type:  TypeDatabase,
			Level: models.LevelError,
			Regex: regexp.MustCompile(`(?i)(SQLSTATE\s*\[?\w+|pq:\s|ORA-\d+|deadlock detected|duplicate key value|too many connections)`),
			Fingerprint: func(match []string, entry models.LogEntry) string {
				return fmt.Sprintf("database:%s", normalizeToken(match[1]))
			},
			Summary: func(match []string, entry models.LogEntry) string {
				return fmt.Sprintf("Database error: %s", truncate(entry.Message, 100))
			},
		},
		{
			ID:    "auth_failure",
			Name:  "Authentication failure",
			Type:  TypeAuth,
			Level: models.LevelError,
			Regex: regexp.MustCompile(`(?i)(401 Unauthorized|403 Forbidden|authentication failed|invalid credentials|permission denied|token expired)`),
			Fingerprint: func(match []string, entry models.LogEntry) string {
				return fmt.Sprintf("auth:%s:%s", normalizeToken(match[1]), entry.Source)
			},
			Summary: func(match []string, entry models.LogEntry) string {
				return fmt.Sprintf("Auth failure in %s: %s", entry.Source, match[1])
			},
		},
		{
			ID:    "http_5xx",
			Name:  "Server error response",
			Type:  TypeHTTP,
			Level: models.LevelError,
			Regex: regexp.MustCompile(`(?i)(?:status(?:\s?code)?\s*[=:]?\s*|HTTP/\d\.\d"?\s+)(5\d{2})\b`),
			Fingerprint: func(match []string, entry models.LogEntry) string {
				return fmt.Sprintf("http:5xx:%s:%s", match[1], entry.Source)
			},
			Summary: func(match []string, entry models.LogEntry) string {
				return fmt.Sprintf("HTTP %s from %s", match[1], entry.Source)
			},
		},
		{
			ID:    "oom",
			Name:  "Out of memory",
			Type:  TypeResource,
			Level: models.LevelError,
			Regex: regexp.MustCompile(`(?i)(out of memory|OOM[- ]?kill|heap out of memory|cannot allocate memory)`),
			Fingerprint: func(match []string, entry models.LogEntry) string {
				return fmt.Sprintf("resource:oom:%s", entry.Source)
			},
			Summary: func(match []string, entry models.LogEntry) string {
				return fmt.Sprintf("Out of memory in %s", entry.Source)
			},
		},
		{
			ID:    "disk_full",
			Name:  "Disk full",
			Type:  TypeResource,
			Level: models.LevelError,
			Regex: regexp.MustCompile(`(?i)(no space left on device|disk full|ENOSPC)`),
			Fingerprint: func(match []string, entry models.LogEntry) string {
				return fmt.Sprintf("resource:disk_full:%s", entry.Source)
			},
			Summary: func(match []string, entry models.LogEntry) string {
				return fmt.Sprintf("Disk full reported by %s", entry.Source)
			},
		},
		{
			ID:    "crash",
			Name:  "Crash / unhandled error",
			Type:  TypeCrash,
			Level: models.LevelError,
			Regex: regexp.MustCompile(`(?i)(panic:|unhandled exception|uncaught exception|segmentation fault|fatal error)`),
			Fingerprint: func(match []string, entry models.LogEntry) string {
				return fmt.Sprintf("crash:%s:%s", normalizeToken(match[1]), entry.Source)
			},
			Summary: func(match []string, entry models.LogEntry) string {
				return fmt.Sprintf("Crash in %s: %s", entry.Source, truncate(entry.Message, 100))
			},
		},
	}
}

// normalizeToken lowercases a matched token and collapses it to a
// stable key fragment (spaces and colons become underscores)
func normalizeToken(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.ReplaceAll(s, ":", "")
	s = strings.Join(strings.Fields(s), "_")
	return s
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
