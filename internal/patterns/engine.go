package patterns

import (
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/vigil/internal/models"
)

// Engine evaluates log entries against an ordered rule list.
// At most one issue candidate is produced per entry: the first rule
// whose regex matches the message wins, and later rules are not tried.
type Engine struct {
	rules  []Rule
	logger arbor.ILogger
}

// NewEngine creates a matching engine over the given rules.
// Pass DefaultRules() for the built-in library.
func NewEngine(rules []Rule, logger arbor.ILogger) *Engine {
	return &Engine{
		rules:  rules,
		logger: logger,
	}
}

// Rules returns the rule list in evaluation order.
func (e *Engine) Rules() []Rule {
	return e.rules
}

// Match evaluates a single entry. Returns (candidate, true) on the
// first rule match, (zero, false) when no rule matches.
//
// A defect inside one rule's fingerprint or summary function must not
// abort matching for the remaining rules, so each rule application is
// isolated and failures are logged with the rule identity.
func (e *Engine) Match(entry models.LogEntry) (models.Issue, bool) {
	for _, rule := range e.rules {
		match := rule.Regex.FindStringSubmatch(entry.Message)
		if match == nil {
			continue
		}

		issue, err := e.applyRule(rule, match, entry)
		if err != nil {
			e.logger.Warn().
				Err(err).
				Str("rule_id", rule.ID).
				Str("message", truncate(entry.Message, 120)).
				Msg("Pattern rule failed, continuing with remaining rules")
			continue
		}
		return issue, true
	}
	return models.Issue{}, false
}

// applyRule computes fingerprint and summary for a matched rule,
// converting panics in rule functions into errors.
func (e *Engine) applyRule(rule Rule, match []string, entry models.LogEntry) (issue models.Issue, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("rule %s panicked: %v", rule.ID, r)
		}
	}()

	fingerprint := rule.Fingerprint(match, entry)
	if fingerprint == "" {
		return models.Issue{}, fmt.Errorf("rule %s produced empty fingerprint", rule.ID)
	}
	summary := rule.Summary(match, entry)

	return models.Issue{
		Fingerprint: fingerprint,
		Type:        rule.Type,
		Level:       rule.Level,
		Summary:     summary,
		Source:      entry.Source,
		Count:       1,
		FirstSeen:   entry.Timestamp,
		LastSeen:    entry.Timestamp,
		Notified:    false,
		RunID:       entry.RunID,
	}, nil
}
