package badger

import (
	"errors"
	"fmt"
	"strings"
)

// ErrRunNotFound is returned when a run id (or the latest sentinel)
// resolves to no stored run
var ErrRunNotFound = errors.New("run not found")

// Key layout. All run-scoped keys share the run:{id}: prefix so a run
// can be cleared with one prefix scan, and every write carries the
// uniform TTL so idle runs self-expire without a cleanup job.
//
//	run:{runId}:log:{source}:{seq}     -> LogEntry JSON
//	run:{runId}:issue:{fingerprint}    -> Issue JSON
//	run:{runId}:callback               -> callback URL
//	latest_run                         -> run id (single pointer key)
//
// seq is a zero-padded nanosecond timestamp plus an atomic counter, so
// lexicographic key order within a partition is append order.

const latestRunKey = "latest_run"

func runPrefix(runID string) []byte {
	return []byte(fmt.Sprintf("run:%s:", runID))
}

func logKey(runID, source, seq string) []byte {
	return []byte(fmt.Sprintf("run:%s:log:%s:%s", runID, source, seq))
}

func logPrefix(runID string) []byte {
	return []byte(fmt.Sprintf("run:%s:log:", runID))
}

func logSourcePrefix(runID, source string) []byte {
	return []byte(fmt.Sprintf("run:%s:log:%s:", runID, source))
}

func issueKey(runID, fingerprint string) []byte {
	return []byte(fmt.Sprintf("run:%s:issue:%s", runID, fingerprint))
}

func issuePrefix(runID string) []byte {
	return []byte(fmt.Sprintf("run:%s:issue:", runID))
}

func callbackKey(runID string) []byte {
	return []byte(fmt.Sprintf("run:%s:callback", runID))
}

// sanitizeSource keeps the key layout parseable: the source segment
// must not contain the ':' separator
func sanitizeSource(source string) string {
	return strings.ReplaceAll(source, ":", "_")
}
