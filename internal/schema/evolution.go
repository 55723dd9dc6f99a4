package schema

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"conduit/internal/logger"
)

// TypeChange records a column whose type differs between two schemas.
type TypeChange struct {
	Column  string     `json:"column"`
	OldType ColumnType `json:"old_type"`
	NewType ColumnType `json:"new_type"`
}

// Changes is the difference between an old and a new schema.
type Changes struct {
	Added       []Column     `json:"added"`
	Removed     []Column     `json:"removed"`
	TypeChanges []TypeChange `json:"type_changes"`
}

// Any reports whether at least one change was detected.
func (c Changes) Any() bool {
	return len(c.Added) > 0 || len(c.Removed) > 0 || len(c.TypeChanges) > 0
}

// Summary renders a one-line description for logs and manifests.
func (c Changes) Summary() string {
	var parts []string
	if len(c.Added) > 0 {
		parts = append(parts, "added: "+strings.Join(columnNames(c.Added), ", "))
	}
	if len(c.Removed) > 0 {
		parts = append(parts, "removed: "+strings.Join(columnNames(c.Removed), ", "))
	}
	if len(c.TypeChanges) > 0 {
		tc := make([]string, len(c.TypeChanges))
		for i, t := range c.TypeChanges {
			tc[i] = fmt.Sprintf("%s %s->%s", t.Column, t.OldType, t.NewType)
		}
		parts = append(parts, "type changes: "+strings.Join(tc, ", "))
	}
	if len(parts) == 0 {
		return "no changes"
	}
	return strings.Join(parts, "; ")
}

func columnNames(cols []Column) []string {
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = c.Name
	}
	return out
}

// Compare diffs next against prev. Column names match case-insensitively;
// results are sorted by lowercased name.
func Compare(prev, next Schema) Changes {
	index := func(s Schema) map[string]Column {
		m := make(map[string]Column, len(s.Columns))
		for _, c := range s.Columns {
			m[strings.ToLower(c.Name)] = c
		}
		return m
	}
	oldCols, newCols := index(prev), index(next)

	var ch Changes
	for _, key := range sortedKeys(newCols) {
		nc := newCols[key]
		oc, ok := oldCols[key]
		if !ok {
			ch.Added = append(ch.Added, nc)
			continue
		}
		if oc.Type != nc.Type {
			ch.TypeChanges = append(ch.TypeChanges, TypeChange{Column: key, OldType: oc.Type, NewType: nc.Type})
		}
	}
	for _, key := range sortedKeys(oldCols) {
		if _, ok := newCols[key]; !ok {
			ch.Removed = append(ch.Removed, oldCols[key])
		}
	}
	return ch
}

func sortedKeys(m map[string]Column) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Mode is the overall evolution policy.
type Mode string

const (
	ModeStrict Mode = "strict"
	ModeAuto   Mode = "auto"
	ModeManual Mode = "manual"
)

// Policy is the reaction to one class of change.
type Policy string

const (
	PolicyAddNullable Policy = "add_nullable"
	PolicyFail        Policy = "fail"
	PolicyIgnore      Policy = "ignore"
	PolicyWarn        Policy = "warn"
)

// EvolutionConfig is the per-destination evolution policy.
type EvolutionConfig struct {
	Enabled         bool   `json:"enabled"`
	Mode            Mode   `json:"mode"`
	OnNewColumn     Policy `json:"on_new_column"`
	OnRemovedColumn Policy `json:"on_removed_column"`
	OnTypeChange    Policy `json:"on_type_change"`
	TrackHistory    bool   `json:"track_history"`
}

// WithDefaults fills unset fields: manual mode, add_nullable for new
// columns and warn for the other axes.
func (c EvolutionConfig) WithDefaults() EvolutionConfig {
	if c.Mode == "" {
		c.Mode = ModeManual
	}
	if c.OnNewColumn == "" {
		c.OnNewColumn = PolicyAddNullable
	}
	if c.OnRemovedColumn == "" {
		c.OnRemovedColumn = PolicyWarn
	}
	if c.OnTypeChange == "" {
		c.OnTypeChange = PolicyWarn
	}
	return c
}

// Validate checks that every axis holds a value it supports.
func (c EvolutionConfig) Validate() error {
	c = c.WithDefaults()
	switch c.Mode {
	case ModeStrict, ModeAuto, ModeManual:
	default:
		return fmt.Errorf("schema evolution: unknown mode %q", c.Mode)
	}
	switch c.OnNewColumn {
	case PolicyAddNullable, PolicyFail, PolicyIgnore:
	default:
		return fmt.Errorf("schema evolution: on_new_column %q not in add_nullable|fail|ignore", c.OnNewColumn)
	}
	for axis, p := range map[string]Policy{"on_removed_column": c.OnRemovedColumn, "on_type_change": c.OnTypeChange} {
		switch p {
		case PolicyWarn, PolicyFail, PolicyIgnore:
		default:
			return fmt.Errorf("schema evolution: %s %q not in warn|fail|ignore", axis, p)
		}
	}
	return nil
}

// Alterer executes ALTER TABLE statements on the destination.
type Alterer interface {
	AlterTable(ctx context.Context, sql string) error
}

// AddColumnFunc renders the dialect-specific statement adding col to table.
type AddColumnFunc func(table string, col Column) (string, error)

// Target is the destination side of a reconciliation.
type Target struct {
	Table     string
	Alterer   Alterer
	AddColumn AddColumnFunc
}

// Outcome is the result of a reconciliation. When Rejected is set the run
// must stop before any data is written.
type Outcome struct {
	Changes  Changes
	DDL      []string
	Version  int
	Rejected bool
	Reason   string
	Baseline bool
}

// Manager reconciles freshly inferred schemas against the stored history.
type Manager struct {
	store  *Store
	log    logger.Logger
	dryRun bool
}

// NewManager returns a Manager persisting to store. In dry-run mode no DDL
// is executed and nothing is saved.
func NewManager(store *Store, log logger.Logger, dryRun bool) *Manager {
	if log == nil {
		log = logger.NewNull()
	}
	return &Manager{store: store, log: log.WithName("conduit:schema"), dryRun: dryRun}
}

// Reconcile compares current against the last stored schema for resource
// and applies cfg. A missing previous schema stores current as the
// baseline. Errors are reserved for store faults; policy rejections and DDL
// failures are reported through Outcome.
func (m *Manager) Reconcile(ctx context.Context, resource string, current Schema, cfg EvolutionConfig, target Target) (Outcome, error) {
	cfg = cfg.WithDefaults()

	prev, err := m.store.LoadLast(resource)
	if err != nil {
		return Outcome{}, err
	}
	if prev == nil {
		m.log.Info("no previous schema, saving baseline", "resource", resource, "columns", len(current.Columns))
		out := Outcome{Baseline: true}
		if m.dryRun {
			return out, nil
		}
		v, err := m.store.Save(resource, current)
		if err != nil {
			return Outcome{}, err
		}
		out.Version = v.Version
		return out, nil
	}

	changes := Compare(prev.Schema, current)
	out := Outcome{Changes: changes, Version: prev.Version}
	if !changes.Any() {
		m.log.Debug("no schema changes", "resource", resource, "version", prev.Version)
		return out, nil
	}
	m.log.Info("schema drift detected", "resource", resource, "changes", changes.Summary())

	if reason := rejection(changes, cfg); reason != "" {
		out.Rejected = true
		out.Reason = reason
		return out, nil
	}

	if len(changes.Removed) > 0 && cfg.OnRemovedColumn == PolicyWarn {
		m.log.Warn("source no longer has columns, destination data preserved",
			"resource", resource, "columns", strings.Join(columnNames(changes.Removed), ","))
	}
	if cfg.OnTypeChange == PolicyWarn {
		for _, tc := range changes.TypeChanges {
			m.log.Warn("column type changed", "resource", resource,
				"column", tc.Column, "old_type", string(tc.OldType), "new_type", string(tc.NewType))
		}
	}

	if len(changes.Added) > 0 && cfg.OnNewColumn == PolicyAddNullable {
		if cfg.Mode != ModeAuto || target.Alterer == nil || target.AddColumn == nil {
			m.log.Warn("new columns detected, automatic evolution disabled",
				"resource", resource, "columns", strings.Join(columnNames(changes.Added), ","))
		} else {
			for _, col := range changes.Added {
				stmt, err := target.AddColumn(target.Table, col)
				if err != nil {
					out.Rejected = true
					out.Reason = fmt.Sprintf("render ADD COLUMN for %s: %v", col.Name, err)
					return out, nil
				}
				if m.dryRun {
					m.log.Info("dry run: skipping DDL", "resource", resource, "sql", stmt)
					continue
				}
				if err := target.Alterer.AlterTable(ctx, stmt); err != nil {
					out.Rejected = true
					out.Reason = fmt.Sprintf("execute %q: %v", stmt, err)
					return out, nil
				}
				out.DDL = append(out.DDL, stmt)
				m.log.Info("added column", "resource", resource, "column", col.Name, "type", string(col.Type))
			}
		}
	}

	if m.dryRun {
		return out, nil
	}
	v, err := m.store.Save(resource, current)
	if err != nil {
		return out, err
	}
	out.Version = v.Version

	if len(out.DDL) > 0 && cfg.TrackHistory {
		path, err := m.store.LogEvolution(EvolutionEvent{
			Resource:    resource,
			OldVersion:  prev.Version,
			NewVersion:  v.Version,
			Changes:     changes,
			DDLExecuted: out.DDL,
		})
		if err != nil {
			return out, err
		}
		m.log.Info("schema evolved", "resource", resource,
			"old_version", prev.Version, "new_version", v.Version, "audit", path)
	}
	return out, nil
}

// rejection returns a non-empty reason when cfg forbids changes.
func rejection(ch Changes, cfg EvolutionConfig) string {
	if cfg.Mode == ModeStrict {
		return "schema changes in strict mode: " + ch.Summary()
	}
	if len(ch.Added) > 0 && cfg.OnNewColumn == PolicyFail {
		return "new columns with on_new_column=fail: " + strings.Join(columnNames(ch.Added), ", ")
	}
	if len(ch.Removed) > 0 && cfg.OnRemovedColumn == PolicyFail {
		return "removed columns with on_removed_column=fail: " + strings.Join(columnNames(ch.Removed), ", ")
	}
	if len(ch.TypeChanges) > 0 && cfg.OnTypeChange == PolicyFail {
		parts := make([]string, len(ch.TypeChanges))
		for i, tc := range ch.TypeChanges {
			parts[i] = fmt.Sprintf("%s %s->%s", tc.Column, tc.OldType, tc.NewType)
		}
		return "type changes with on_type_change=fail: " + strings.Join(parts, ", ")
	}
	return ""
}
