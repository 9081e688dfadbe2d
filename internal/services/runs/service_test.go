package runs

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/vigil/internal/common"
	"github.com/ternarybob/vigil/internal/interfaces"
	"github.com/ternarybob/vigil/internal/models"
	badgerstorage "github.com/ternarybob/vigil/internal/storage/badger"
)

func newRunsFixture(t *testing.T) (*Service, *badgerstorage.Manager) {
	t.Helper()

	manager, err := badgerstorage.NewManager(common.GetLogger(), &common.BadgerConfig{Path: t.TempDir()}, time.Hour)
	require.NoError(t, err)
	t.Cleanup(func() {
		manager.Close()
	})
	return NewService(manager, common.GetLogger()), manager
}

func TestStartNewRun_FirstRun(t *testing.T) {
	svc, manager := newRunsFixture(t)
	ctx := context.Background()

	previous, next, err := svc.StartNewRun(ctx, "", "")
	require.NoError(t, err)
	assert.Empty(t, previous)
	assert.NotEmpty(t, next)

	latest, err := manager.RunStorage().GetLatestRun(ctx)
	require.NoError(t, err)
	assert.Equal(t, next, latest)
}

func TestStartNewRun_ExplicitIDAndCallback(t *testing.T) {
	svc, manager := newRunsFixture(t)
	ctx := context.Background()

	_, next, err := svc.StartNewRun(ctx, "run_custom", "http://callback.example/hook")
	require.NoError(t, err)
	assert.Equal(t, "run_custom", next)

	url, err := manager.RunStorage().GetCallback(ctx, "run_custom")
	require.NoError(t, err)
	assert.Equal(t, "http://callback.example/hook", url)
}

func TestStartNewRun_ClearsPreviousRun(t *testing.T) {
	svc, manager := newRunsFixture(t)
	ctx := context.Background()

	_, first, err := svc.StartNewRun(ctx, "run_old", "")
	require.NoError(t, err)

	_, err = manager.LogStorage().AppendLogs(ctx, first, "api", []models.LogEntry{
		{Timestamp: "2025-11-08T10:00:01Z", Message: "old data"},
	})
	require.NoError(t, err)
	_, err = manager.IssueStorage().UpsertIssue(ctx, models.Issue{
		Fingerprint: "fp:old", RunID: first, Count: 1,
	})
	require.NoError(t, err)

	previous, next, err := svc.StartNewRun(ctx, "run_new", "")
	require.NoError(t, err)
	assert.Equal(t, "run_old", previous)
	assert.Equal(t, "run_new", next)

	// The old run's data is gone
	count, err := manager.LogStorage().CountLogs(ctx, "run_old")
	require.NoError(t, err)
	assert.Equal(t, 0, count)
	issue, err := manager.IssueStorage().GetIssue(ctx, "run_old", "fp:old")
	require.NoError(t, err)
	assert.Nil(t, issue)

	// Latest now resolves to the new run
	resolved, err := manager.RunStorage().ResolveRunID(ctx, interfaces.RunIDLatest)
	require.NoError(t, err)
	assert.Equal(t, "run_new", resolved)
}

func TestStartNewRun_GeneratedIDsAreUnique(t *testing.T) {
	svc, _ := newRunsFixture(t)
	ctx := context.Background()

	_, first, err := svc.StartNewRun(ctx, "", "")
	require.NoError(t, err)
	_, second, err := svc.StartNewRun(ctx, "", "")
	require.NoError(t, err)
	assert.NotEqual(t, first, second)
}
