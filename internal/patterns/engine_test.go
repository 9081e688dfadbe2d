package patterns

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/vigil/internal/common"
	"github.com/ternarybob/vigil/internal/models"
)

func TestMatch_ConnectionRefused(t *testing.T) {
	engine := NewEngine(DefaultRules(), common.GetLogger())

	entry := models.LogEntry{
		Timestamp: "2025-11-08T10:00:00Z",
		Level:     models.LevelError,
		Message:   "ECONNREFUSED at 10.0.0.5:5432",
		Source:    "api",
		RunID:     "run_test",
	}

	issue, ok := engine.Match(entry)
	require.True(t, ok, "expected a match")

	assert.Equal(t, TypeNetwork, issue.Type)
	assert.Equal(t, models.LevelError, issue.Level)
	assert.Contains(t, issue.Fingerprint, "10.0.0.5")
	assert.Equal(t, "Connection refused to 10.0.0.5", issue.Summary)
	assert.Equal(t, 1, issue.Count)
	assert.Equal(t, entry.Timestamp, issue.FirstSeen)
	assert.Equal(t, entry.Timestamp, issue.LastSeen)
	assert.False(t, issue.Notified)
	assert.Equal(t, "api", issue.Source)
	assert.Equal(t, "run_test", issue.RunID)
}

func TestMatch_IdempotentFingerprint(t *testing.T) {
	engine := NewEngine(DefaultRules(), common.GetLogger())

	entry := models.LogEntry{
		Timestamp: "2025-11-08T10:00:00Z",
		Level:     models.LevelError,
		Message:   "connection refused 192.168.1.10:6379",
		Source:    "cache",
	}

	first, ok := engine.Match(entry)
	require.True(t, ok)
	second, ok := engine.Match(entry)
	require.True(t, ok)

	assert.Equal(t, first.Fingerprint, second.Fingerprint)
}

func TestMatch_FirstRuleWins(t *testing.T) {
	rules := []Rule{
		{
			ID:    "first",
			Type:  "first_type",
			Level: models.LevelError,
			Regex: regexp.MustCompile(`error`),
			Fingerprint: func(match []string, entry models.LogEntry) string {
				return "first:fp"
			},
			Summary: func(match []string, entry models.LogEntry) string {
				return "first summary"
			},
		},
		{
			ID:    "second",
			Type:  "second_type",
			Level: models.LevelError,
			Regex: regexp.MustCompile(`error`),
			Fingerprint: func(match []string, entry models.LogEntry) string {
				return "second:fp"
			},
			Summary: func(match []string, entry models.LogEntry) string {
				return "second summary"
			},
		},
	}
	engine := NewEngine(rules, common.GetLogger())

	issue, ok := engine.Match(models.LogEntry{Message: "an error occurred"})
	require.True(t, ok)
	assert.Equal(t, "first:fp", issue.Fingerprint)
	assert.Equal(t, "first_type", issue.Type)
}

func TestMatch_NoRuleMatches(t *testing.T) {
	engine := NewEngine(DefaultRules(), common.GetLogger())

	_, ok := engine.Match(models.LogEntry{Message: "user logged in successfully"})
	assert.False(t, ok)
}

func TestMatch_RulePanicIsolated(t *testing.T) {
	rules := []Rule{
		{
			ID:    "broken",
			Type:  "broken",
			Level: models.LevelError,
			Regex: regexp.MustCompile(`error`),
			Fingerprint: func(match []string, entry models.LogEntry) string {
				panic("rule defect")
			},
			Summary: func(match []string, entry models.LogEntry) string {
				return ""
			},
		},
		{
			ID:    "healthy",
			Type:  "healthy",
			Level: models.LevelError,
			Regex: regexp.MustCompile(`error`),
			Fingerprint: func(match []string, entry models.LogEntry) string {
				return "healthy:fp"
			},
			Summary: func(match []string, entry models.LogEntry) string {
				return "healthy summary"
			},
		},
	}
	engine := NewEngine(rules, common.GetLogger())

	issue, ok := engine.Match(models.LogEntry{Message: "an error occurred"})
	require.True(t, ok, "matching must continue past the broken rule")
	assert.Equal(t, "healthy:fp", issue.Fingerprint)
}

func TestDefaultRules_CoverCategories(t *testing.T) {
	engine := NewEngine(DefaultRules(), common.GetLogger())

	cases := []struct {
		message  string
		wantType string
	}{
		{"request timed out after 30s", TypeNetwork},
		{"pq: duplicate key value violates unique constraint", TypeDatabase},
		{"authentication failed for user admin", TypeAuth},
		{"upstream returned status=503", TypeHTTP},
		{"java.lang.OutOfMemoryError: heap out of memory", TypeResource},
		{"write /var/data: no space left on device", TypeResource},
		{"panic: runtime error: index out of range", TypeCrash},
	}

	for _, tc := range cases {
		issue, ok := engine.Match(models.LogEntry{Message: tc.message, Source: "svc"})
		require.True(t, ok, "expected match for %q", tc.message)
		assert.Equal(t, tc.wantType, issue.Type, "message %q", tc.message)
	}
}
