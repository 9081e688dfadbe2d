package models

import (
	"encoding/json"
	"errors"
)

// ErrNoMessage is returned when the queue is empty
var ErrNoMessage = errors.New("no messages in queue")

// Job types routed by the worker pools
const (
	JobTypeLogBatch = "log_batch"
	JobTypeIssue    = "issue"
)

// QueueMessage is the structure stored in the queue.
// Keep it simple - just enough to route the job.
type QueueMessage struct {
	JobID   string          `json:"job_id"`
	Type    string          `json:"type"`    // Job type for handler routing
	Payload json.RawMessage `json:"payload"` // Job-specific data (passed through)
}

// IssueJob is the payload carried on the issue queue: the upserted
// issue plus whether the upsert created a new fingerprint.
type IssueJob struct {
	Issue Issue `json:"issue"`
	IsNew bool  `json:"is_new"`
}
