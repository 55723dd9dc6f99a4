// Package quality evaluates per-column rules against batches of records and
// decides what happens to records that break them.
package quality

import (
	"fmt"
	"regexp"
	"strings"

	"conduit/internal/records"
)

// Action is what happens to a record that fails a check.
type Action string

const (
	ActionDLQ  Action = "dlq"
	ActionWarn Action = "warn"
	ActionFail Action = "fail"
)

// ParseAction validates s; empty means dlq.
func ParseAction(s string) (Action, error) {
	switch a := Action(strings.ToLower(strings.TrimSpace(s))); a {
	case "":
		return ActionDLQ, nil
	case ActionDLQ, ActionWarn, ActionFail:
		return a, nil
	default:
		return "", fmt.Errorf("quality: invalid action %q, want dlq|warn|fail", s)
	}
}

// rank orders actions: fail > warn > dlq.
func (a Action) rank() int {
	switch a {
	case ActionFail:
		return 2
	case ActionWarn:
		return 1
	default:
		return 0
	}
}

// Built-in check names.
const (
	CheckNotNull = "not_null"
	CheckRegex   = "regex"
	CheckRange   = "range"
	CheckEnum    = "enum"
	CheckUnique  = "unique"
)

var checkNameRe = regexp.MustCompile(`^[a-zA-Z0-9_]+$`)

// Check is one rule bound to a column.
type Check struct {
	Column  string
	Name    string
	Action  Action
	Pattern string
	Min     *float64
	Max     *float64
	Allowed []any
	// Params carries any extra parameters for custom checks.
	Params map[string]any
}

// Validate reports configuration errors.
func (c Check) Validate() error {
	if strings.TrimSpace(c.Column) == "" {
		return fmt.Errorf("quality: check %q has no column", c.Name)
	}
	if c.Name == "" {
		return fmt.Errorf("quality: check on column %q has no name", c.Column)
	}
	if !checkNameRe.MatchString(c.Name) {
		return fmt.Errorf("quality: invalid check name %q, use letters, numbers and underscores", c.Name)
	}
	if _, err := ParseAction(string(c.Action)); err != nil {
		return err
	}
	if strings.EqualFold(c.Name, CheckRegex) && c.Pattern != "" {
		if _, err := regexp.Compile(c.Pattern); err != nil {
			return fmt.Errorf("quality: check %s on %s: %w", c.Name, c.Column, err)
		}
	}
	return nil
}

// Failure describes one failed check for one record.
type Failure struct {
	Column string `json:"column"`
	Check  string `json:"check_name"`
	Value  any    `json:"value"`
	Detail string `json:"details,omitempty"`
	Action Action `json:"action"`
}

// Result is the outcome of validating one record.
type Result struct {
	Record   records.Record `json:"record"`
	Failures []Failure      `json:"failed_checks"`
	// Index is the record's position in the batch passed to ValidateBatch.
	Index int `json:"-"`
}

// Valid reports whether no check failed.
func (r Result) Valid() bool { return len(r.Failures) == 0 }

// Action returns the highest-priority action among the failures.
func (r Result) Action() Action { return HighestAction(r.Failures) }

// Summary joins the failure details for logs and the error log.
func (r Result) Summary() string {
	parts := make([]string, len(r.Failures))
	for i, f := range r.Failures {
		detail := f.Detail
		if detail == "" {
			detail = "failed"
		}
		parts[i] = fmt.Sprintf("%s.%s: %s", f.Column, f.Check, detail)
	}
	return strings.Join(parts, "; ")
}

// HighestAction returns the highest-priority action in failures, ranked
// fail > warn > dlq. An empty list yields dlq.
func HighestAction(failures []Failure) Action {
	best := ActionDLQ
	for _, f := range failures {
		a := f.Action
		if a == "" {
			a = ActionDLQ
		}
		if a.rank() > best.rank() {
			best = a
		}
	}
	return best
}
