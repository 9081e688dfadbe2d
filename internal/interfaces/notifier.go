package interfaces

import (
	"context"

	"github.com/ternarybob/vigil/internal/models"
)

// Notifier - the external alerting collaborator. The issue worker's
// only responsibility is at-least-once delivery of (issue, isNew); the
// notifier owns the policy (threshold, debounce, delivery channel) and
// reports whether it actually fired.
type Notifier interface {
	ProcessIssue(ctx context.Context, issue models.Issue, isNew bool) (bool, error)
}
