package models

import "time"

// FailedJob is a queue message that exhausted its retry budget. Parked
// records are retained (capped per queue) for inspection instead of
// being dropped; they do not expire with run data.
type FailedJob struct {
	ID        string       `json:"id" badgerhold:"key"`
	QueueName string       `json:"queue_name" badgerhold:"index"`
	Message   QueueMessage `json:"message"`
	Error     string       `json:"error"`
	Attempts  int          `json:"attempts"`
	FailedAt  time.Time    `json:"failed_at"`
}
