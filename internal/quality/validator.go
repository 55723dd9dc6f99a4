package quality

import (
	"fmt"
	"strings"

	"conduit/internal/logger"
	"conduit/internal/records"
)

// BatchResult partitions a batch into records that passed every check and
// the results of those that did not.
type BatchResult struct {
	Valid   []records.Record
	Invalid []Result
}

// Validator applies a fixed set of checks, grouped by column.
type Validator struct {
	columns  []string
	byColumn map[string][]Check
	registry *Registry
	log      logger.Logger
	warned   map[string]bool
}

// NewValidator validates checks and groups them by column. A nil registry
// means the built-in checks only.
func NewValidator(checks []Check, reg *Registry, log logger.Logger) (*Validator, error) {
	if reg == nil {
		reg = NewRegistry()
	}
	if log == nil {
		log = logger.NewNull()
	}
	v := &Validator{
		byColumn: make(map[string][]Check),
		registry: reg,
		log:      log.WithName("conduit:quality"),
		warned:   make(map[string]bool),
	}
	for _, c := range checks {
		if err := c.Validate(); err != nil {
			return nil, err
		}
		if c.Action == "" {
			c.Action = ActionDLQ
		}
		if _, ok := v.byColumn[c.Column]; !ok {
			v.columns = append(v.columns, c.Column)
		}
		v.byColumn[c.Column] = append(v.byColumn[c.Column], c)
	}
	return v, nil
}

// Empty reports whether the validator has no checks.
func (v *Validator) Empty() bool { return len(v.columns) == 0 }

// uniqueSets holds the values seen by each unique check during one batch.
type uniqueSets map[string]map[any]struct{}

func (u uniqueSets) seen(key string, value any) bool {
	set, ok := u[key]
	if !ok {
		set = make(map[any]struct{})
		u[key] = set
	}
	k := uniqueKey(value)
	if _, dup := set[k]; dup {
		return true
	}
	set[k] = struct{}{}
	return false
}

// ValidateBatch evaluates every record. unique checks only see the records
// of this call, so calling it twice with the same batch gives the same
// answer.
func (v *Validator) ValidateBatch(recs []records.Record) BatchResult {
	var out BatchResult
	sets := make(uniqueSets)
	for i, r := range recs {
		res := v.validate(r, sets)
		res.Index = i
		if res.Valid() {
			out.Valid = append(out.Valid, r)
			continue
		}
		out.Invalid = append(out.Invalid, res)
	}
	return out
}

// ValidateRecord evaluates a single record in isolation.
func (v *Validator) ValidateRecord(r records.Record) Result {
	return v.validate(r, make(uniqueSets))
}

func (v *Validator) validate(r records.Record, sets uniqueSets) Result {
	res := Result{Record: r}
	for _, col := range v.columns {
		value := r[col]
		for _, c := range v.byColumn[col] {
			ok, detail := v.run(c, value, sets)
			if ok {
				continue
			}
			res.Failures = append(res.Failures, Failure{
				Column: col,
				Check:  c.Name,
				Value:  value,
				Detail: detail,
				Action: c.Action,
			})
		}
	}
	return res
}

func (v *Validator) run(c Check, value any, sets uniqueSets) (ok bool, detail string) {
	if strings.EqualFold(c.Name, CheckUnique) {
		if sets.seen(c.Column+"_"+CheckUnique, value) {
			return false, fmt.Sprintf("Value '%v' is not unique in this batch", value)
		}
		return true, ""
	}

	fn, found := v.registry.Lookup(c.Name)
	if !found {
		key := c.Column + "/" + c.Name
		if !v.warned[key] {
			v.warned[key] = true
			v.log.Warn("unknown quality check, skipping", "check", c.Name, "column", c.Column)
		}
		return true, ""
	}

	defer func() {
		if p := recover(); p != nil {
			v.log.Error("quality check panicked", "check", c.Name, "column", c.Column, "panic", fmt.Sprint(p))
			ok, detail = false, fmt.Sprintf("Error during check execution: %v", p)
		}
	}()
	return fn(value, c)
}
