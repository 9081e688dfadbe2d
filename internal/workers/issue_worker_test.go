package workers

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/vigil/internal/common"
	"github.com/ternarybob/vigil/internal/models"
	badgerstorage "github.com/ternarybob/vigil/internal/storage/badger"
)

// stubNotifier records ProcessIssue calls and returns a scripted decision
type stubNotifier struct {
	notified bool
	err      error
	calls    []models.Issue
}

func (s *stubNotifier) ProcessIssue(ctx context.Context, issue models.Issue, isNew bool) (bool, error) {
	s.calls = append(s.calls, issue)
	return s.notified, s.err
}

func issueMessage(t *testing.T, job models.IssueJob) *models.QueueMessage {
	t.Helper()

	payload, err := json.Marshal(job)
	require.NoError(t, err)
	return &models.QueueMessage{
		JobID:   common.NewJobID(),
		Type:    models.JobTypeIssue,
		Payload: payload,
	}
}

func TestIssueWorker_MarksNotified(t *testing.T) {
	manager, err := badgerstorage.NewManager(common.GetLogger(), &common.BadgerConfig{Path: t.TempDir()}, time.Hour)
	require.NoError(t, err)
	defer manager.Close()
	ctx := context.Background()

	issue := models.Issue{
		Fingerprint: "fp:test",
		RunID:       "run_a",
		Count:       1,
		FirstSeen:   "2025-11-08T10:00:00Z",
		LastSeen:    "2025-11-08T10:00:00Z",
	}
	_, err = manager.IssueStorage().UpsertIssue(ctx, issue)
	require.NoError(t, err)

	notifier := &stubNotifier{notified: true}
	worker := NewIssueWorker(manager, notifier, common.GetLogger())

	require.NoError(t, worker.Handle(ctx, issueMessage(t, models.IssueJob{Issue: issue, IsNew: true})))

	require.Len(t, notifier.calls, 1)
	stored, err := manager.IssueStorage().GetIssue(ctx, "run_a", "fp:test")
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.True(t, stored.Notified)
	assert.NotNil(t, stored.NotifiedAt)
}

func TestIssueWorker_UsesStoredCount(t *testing.T) {
	manager, err := badgerstorage.NewManager(common.GetLogger(), &common.BadgerConfig{Path: t.TempDir()}, time.Hour)
	require.NoError(t, err)
	defer manager.Close()
	ctx := context.Background()

	issue := models.Issue{
		Fingerprint: "fp:test",
		RunID:       "run_a",
		Count:       1,
		FirstSeen:   "2025-11-08T10:00:00Z",
		LastSeen:    "2025-11-08T10:00:00Z",
	}
	// The stored count has advanced past the enqueued snapshot
	for i := 0; i < 3; i++ {
		_, err = manager.IssueStorage().UpsertIssue(ctx, issue)
		require.NoError(t, err)
	}

	notifier := &stubNotifier{notified: false}
	worker := NewIssueWorker(manager, notifier, common.GetLogger())

	stale := issue
	stale.Count = 1
	require.NoError(t, worker.Handle(ctx, issueMessage(t, models.IssueJob{Issue: stale, IsNew: false})))

	require.Len(t, notifier.calls, 1)
	assert.Equal(t, 3, notifier.calls[0].Count, "notifier must see the current stored count")
}

func TestIssueWorker_DeliveryFailureRetries(t *testing.T) {
	manager, err := badgerstorage.NewManager(common.GetLogger(), &common.BadgerConfig{Path: t.TempDir()}, time.Hour)
	require.NoError(t, err)
	defer manager.Close()

	notifier := &stubNotifier{err: errors.New("webhook unreachable")}
	worker := NewIssueWorker(manager, notifier, common.GetLogger())

	issue := models.Issue{Fingerprint: "fp:test", RunID: "run_a", Count: 1}
	err = worker.Handle(context.Background(), issueMessage(t, models.IssueJob{Issue: issue, IsNew: true}))
	assert.Error(t, err, "delivery failures must surface so the queue retries")
}

func TestIssueWorker_NotNotifiedLeavesFlagUnset(t *testing.T) {
	manager, err := badgerstorage.NewManager(common.GetLogger(), &common.BadgerConfig{Path: t.TempDir()}, time.Hour)
	require.NoError(t, err)
	defer manager.Close()
	ctx := context.Background()

	issue := models.Issue{Fingerprint: "fp:test", RunID: "run_a", Count: 1}
	_, err = manager.IssueStorage().UpsertIssue(ctx, issue)
	require.NoError(t, err)

	notifier := &stubNotifier{notified: false}
	worker := NewIssueWorker(manager, notifier, common.GetLogger())
	require.NoError(t, worker.Handle(ctx, issueMessage(t, models.IssueJob{Issue: issue, IsNew: true})))

	stored, err := manager.IssueStorage().GetIssue(ctx, "run_a", "fp:test")
	require.NoError(t, err)
	assert.False(t, stored.Notified)
}
