// Package notify implements the notification collaborator consumed by
// the issue worker. The pipeline only delivers (issue, isNew); the
// policy - repetition threshold, per-fingerprint debounce, webhook
// delivery - lives here.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/vigil/internal/common"
	"github.com/ternarybob/vigil/internal/interfaces"
	"github.com/ternarybob/vigil/internal/models"
)

// WebhookNotifier posts issue alerts to the run's registered callback
// URL (or a configured default). An issue fires when it is new or its
// count reaches the threshold, and repeat alerts for the same
// fingerprint are suppressed inside the debounce window.
type WebhookNotifier struct {
	runs       interfaces.RunStorage
	client     *http.Client
	logger     arbor.ILogger
	threshold  int
	debounce   time.Duration
	defaultURL string

	mu       sync.Mutex
	lastSent map[string]time.Time // runID:fingerprint -> last alert time
}

// NewWebhookNotifier creates the default notifier from config
func NewWebhookNotifier(config *common.NotifyConfig, runs interfaces.RunStorage, debounce time.Duration, logger arbor.ILogger) *WebhookNotifier {
	timeout, err := time.ParseDuration(config.Timeout)
	if err != nil || timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &WebhookNotifier{
		runs:       runs,
		client:     &http.Client{Timeout: timeout},
		logger:     logger,
		threshold:  config.Threshold,
		debounce:   debounce,
		defaultURL: config.DefaultURL,
		lastSent:   make(map[string]time.Time),
	}
}

// ProcessIssue decides whether to alert and reports whether it fired
func (n *WebhookNotifier) ProcessIssue(ctx context.Context, issue models.Issue, isNew bool) (bool, error) {
	if !isNew && issue.Count < n.threshold {
		return false, nil
	}

	key := issue.RunID + ":" + issue.Fingerprint
	n.mu.Lock()
	if last, ok := n.lastSent[key]; ok && time.Since(last) < n.debounce {
		n.mu.Unlock()
		n.logger.Debug().
			Str("fingerprint", issue.Fingerprint).
			Msg("Notification suppressed by debounce window")
		return false, nil
	}
	n.mu.Unlock()

	url, err := n.runs.GetCallback(ctx, issue.RunID)
	if err != nil {
		return false, fmt.Errorf("failed to resolve callback: %w", err)
	}
	if url == "" {
		url = n.defaultURL
	}
	if url == "" {
		// No delivery target registered: drop the alert silently
		return false, nil
	}

	if err := n.post(ctx, url, issue, isNew); err != nil {
		return false, err
	}

	n.mu.Lock()
	n.prune()
	n.lastSent[key] = time.Now()
	n.mu.Unlock()

	n.logger.Info().
		Str("fingerprint", issue.Fingerprint).
		Str("run_id", issue.RunID).
		Int("count", issue.Count).
		Msg("Issue notification sent")

	return true, nil
}

// prune drops debounce entries past their window so the map does not
// accumulate fingerprints from cleared or expired runs. Caller holds
// the lock.
func (n *WebhookNotifier) prune() {
	cutoff := time.Now().Add(-n.debounce)
	for key, sent := range n.lastSent {
		if sent.Before(cutoff) {
			delete(n.lastSent, key)
		}
	}
}

func (n *WebhookNotifier) post(ctx context.Context, url string, issue models.Issue, isNew bool) error {
	body, err := json.Marshal(map[string]interface{}{
		"issue":  issue,
		"is_new": isNew,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal notification payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build notification request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("notification POST failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("notification endpoint returned status %d", resp.StatusCode)
	}
	return nil
}
