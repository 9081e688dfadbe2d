package models

import "time"

// Issue is a deduplicated, counted record of a recognized failure
// pattern within a run. One Issue exists per distinct fingerprint per
// run. Subsequent matches with the same fingerprint increment Count and
// advance LastSeen; Notified/NotifiedAt are preserved from the original
// record and never reset while the run is live.
type Issue struct {
	Fingerprint string     `json:"fingerprint"`
	Type        string     `json:"type"`
	Level       string     `json:"level"`
	Summary     string     `json:"summary"`
	Source      string     `json:"source"`
	Count       int        `json:"count"`
	FirstSeen   string     `json:"first_seen"`
	LastSeen    string     `json:"last_seen"`
	Notified    bool       `json:"notified"`
	NotifiedAt  *time.Time `json:"notified_at,omitempty"`
	RunID       string     `json:"run_id"`
	RelatedLogs []LogEntry `json:"related_logs,omitempty"`
}
