package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/vigil/internal/common"
	"github.com/ternarybob/vigil/internal/models"
	badgerstorage "github.com/ternarybob/vigil/internal/storage/badger"
)

func newNotifierFixture(t *testing.T, threshold int, debounce time.Duration, defaultURL string) (*WebhookNotifier, *badgerstorage.Manager) {
	t.Helper()

	manager, err := badgerstorage.NewManager(common.GetLogger(), &common.BadgerConfig{Path: t.TempDir()}, time.Hour)
	require.NoError(t, err)
	t.Cleanup(func() {
		manager.Close()
	})

	config := &common.NotifyConfig{
		Threshold:  threshold,
		DefaultURL: defaultURL,
		Timeout:    "5s",
	}
	return NewWebhookNotifier(config, manager.RunStorage(), debounce, common.GetLogger()), manager
}

func testIssue(count int) models.Issue {
	return models.Issue{
		Fingerprint: "network:conn_refused:10.0.0.5",
		Type:        "network",
		Level:       models.LevelError,
		Summary:     "Connection refused to 10.0.0.5",
		Source:      "api",
		Count:       count,
		RunID:       "run_a",
	}
}

func TestProcessIssue_NewIssueFires(t *testing.T) {
	var received atomic.Int32
	var payload struct {
		Issue models.Issue `json:"issue"`
		IsNew bool         `json:"is_new"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		received.Add(1)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	notifier, _ := newNotifierFixture(t, 3, time.Minute, srv.URL)

	notified, err := notifier.ProcessIssue(context.Background(), testIssue(1), true)
	require.NoError(t, err)
	assert.True(t, notified)
	assert.Equal(t, int32(1), received.Load())
	assert.True(t, payload.IsNew)
	assert.Equal(t, "network:conn_refused:10.0.0.5", payload.Issue.Fingerprint)
}

func TestProcessIssue_BelowThresholdSkipped(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("webhook must not be called below threshold")
	}))
	defer srv.Close()

	notifier, _ := newNotifierFixture(t, 3, time.Minute, srv.URL)

	notified, err := notifier.ProcessIssue(context.Background(), testIssue(2), false)
	require.NoError(t, err)
	assert.False(t, notified)
}

func TestProcessIssue_ThresholdReached(t *testing.T) {
	var received atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		received.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	notifier, _ := newNotifierFixture(t, 3, time.Minute, srv.URL)

	notified, err := notifier.ProcessIssue(context.Background(), testIssue(3), false)
	require.NoError(t, err)
	assert.True(t, notified)
	assert.Equal(t, int32(1), received.Load())
}

func TestProcessIssue_DebounceSuppressesRepeat(t *testing.T) {
	var received atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		received.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	notifier, _ := newNotifierFixture(t, 1, 50*time.Millisecond, srv.URL)
	ctx := context.Background()

	notified, err := notifier.ProcessIssue(ctx, testIssue(1), true)
	require.NoError(t, err)
	assert.True(t, notified)

	// Within the debounce window the repeat is suppressed
	notified, err = notifier.ProcessIssue(ctx, testIssue(2), false)
	require.NoError(t, err)
	assert.False(t, notified)
	assert.Equal(t, int32(1), received.Load())

	// After the window it fires again
	time.Sleep(60 * time.Millisecond)
	notified, err = notifier.ProcessIssue(ctx, testIssue(3), false)
	require.NoError(t, err)
	assert.True(t, notified)
	assert.Equal(t, int32(2), received.Load())
}

func TestProcessIssue_DebounceEntriesPruned(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	notifier, _ := newNotifierFixture(t, 1, 20*time.Millisecond, srv.URL)
	ctx := context.Background()

	// Distinct fingerprints each record a debounce entry
	for i := 0; i < 5; i++ {
		issue := testIssue(1)
		issue.Fingerprint = "network:conn_refused:10.0.0." + string(rune('1'+i))
		notified, err := notifier.ProcessIssue(ctx, issue, true)
		require.NoError(t, err)
		require.True(t, notified)
	}

	notifier.mu.Lock()
	entries := len(notifier.lastSent)
	notifier.mu.Unlock()
	assert.Equal(t, 5, entries)

	// Past the window, the next alert evicts the stale entries
	time.Sleep(30 * time.Millisecond)
	notified, err := notifier.ProcessIssue(ctx, testIssue(1), true)
	require.NoError(t, err)
	require.True(t, notified)

	notifier.mu.Lock()
	entries = len(notifier.lastSent)
	notifier.mu.Unlock()
	assert.Equal(t, 1, entries)
}

func TestProcessIssue_RunCallbackPreferred(t *testing.T) {
	var callbackHits atomic.Int32
	callbackSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		callbackHits.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer callbackSrv.Close()

	defaultSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("default URL must not be used when the run has a callback")
	}))
	defer defaultSrv.Close()

	notifier, manager := newNotifierFixture(t, 1, time.Minute, defaultSrv.URL)
	ctx := context.Background()
	require.NoError(t, manager.RunStorage().SetCallback(ctx, "run_a", callbackSrv.URL))

	notified, err := notifier.ProcessIssue(ctx, testIssue(1), true)
	require.NoError(t, err)
	assert.True(t, notified)
	assert.Equal(t, int32(1), callbackHits.Load())
}

func TestProcessIssue_NoTargetDropsSilently(t *testing.T) {
	notifier, _ := newNotifierFixture(t, 1, time.Minute, "")

	notified, err := notifier.ProcessIssue(context.Background(), testIssue(1), true)
	require.NoError(t, err)
	assert.False(t, notified)
}

func TestProcessIssue_EndpointErrorSurfaces(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	notifier, _ := newNotifierFixture(t, 1, time.Minute, srv.URL)

	notified, err := notifier.ProcessIssue(context.Background(), testIssue(1), true)
	require.Error(t, err)
	assert.False(t, notified)
}
