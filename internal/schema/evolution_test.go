package schema

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"conduit/internal/logger"
)

type recordingAlterer struct {
	stmts []string
	err   error
}

func (r *recordingAlterer) AlterTable(_ context.Context, sql string) error {
	if r.err != nil {
		return r.err
	}
	r.stmts = append(r.stmts, sql)
	return nil
}

func addColumn(table string, col Column) (string, error) {
	return "ALTER TABLE " + table + " ADD COLUMN " + col.Name + " " + string(col.Type), nil
}

var (
	baseSchema = Schema{Columns: []Column{
		{Name: "id", Type: TypeInteger},
		{Name: "email", Type: TypeString, Nullable: true},
	}}
	driftSchema = Schema{Columns: []Column{
		{Name: "ID", Type: TypeString},
		{Name: "score", Type: TypeFloat, Nullable: true},
	}}
)

func TestCompareSelfIsEmpty(t *testing.T) {
	t.Parallel()

	for name, s := range map[string]Schema{"empty": {}, "base": baseSchema, "drift": driftSchema} {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			assert.False(t, Compare(s, s).Any())
		})
	}
}

func TestCompare(t *testing.T) {
	t.Parallel()

	ch := Compare(baseSchema, driftSchema)
	require.Len(t, ch.Added, 1)
	assert.Equal(t, "score", ch.Added[0].Name)
	require.Len(t, ch.Removed, 1)
	assert.Equal(t, "email", ch.Removed[0].Name)
	assert.Equal(t, []TypeChange{{Column: "id", OldType: TypeInteger, NewType: TypeString}}, ch.TypeChanges)
	assert.Contains(t, ch.Summary(), "added: score")
}

func TestEvolutionConfigValidate(t *testing.T) {
	t.Parallel()

	assert.NoError(t, EvolutionConfig{}.Validate())
	assert.Error(t, EvolutionConfig{Mode: "yolo"}.Validate())
	assert.Error(t, EvolutionConfig{OnNewColumn: PolicyWarn}.Validate())
	assert.Error(t, EvolutionConfig{OnTypeChange: PolicyAddNullable}.Validate())
}

func TestReconcile(t *testing.T) {
	t.Parallel()

	added := Schema{Columns: append(append([]Column{}, baseSchema.Columns...), Column{Name: "score", Type: TypeFloat, Nullable: true})}

	tests := map[string]struct {
		cfg          EvolutionConfig
		next         Schema
		alterErr     error
		wantRejected bool
		wantDDL      int
		wantVersion  int
	}{
		"no changes": {
			cfg: EvolutionConfig{Mode: ModeAuto}, next: baseSchema, wantVersion: 1,
		},
		"strict rejects": {
			cfg: EvolutionConfig{Mode: ModeStrict}, next: added, wantRejected: true, wantVersion: 1,
		},
		"auto adds nullable": {
			cfg: EvolutionConfig{Mode: ModeAuto, TrackHistory: true}, next: added, wantDDL: 1, wantVersion: 2,
		},
		"manual warns only": {
			cfg: EvolutionConfig{Mode: ModeManual}, next: added, wantVersion: 2,
		},
		"manual still fails": {
			cfg: EvolutionConfig{Mode: ModeManual, OnNewColumn: PolicyFail}, next: added, wantRejected: true, wantVersion: 1,
		},
		"removed fail": {
			cfg: EvolutionConfig{Mode: ModeAuto, OnRemovedColumn: PolicyFail}, next: driftSchema, wantRejected: true, wantVersion: 1,
		},
		"type change warn": {
			cfg: EvolutionConfig{Mode: ModeAuto, OnNewColumn: PolicyIgnore}, next: driftSchema, wantVersion: 2,
		},
		"ddl failure rejects": {
			cfg: EvolutionConfig{Mode: ModeAuto}, next: added, alterErr: errors.New("boom"), wantRejected: true, wantVersion: 1,
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			store := newTestStore(t)
			_, err := store.Save("orders", baseSchema)
			require.NoError(t, err)

			alt := &recordingAlterer{err: tc.alterErr}
			m := NewManager(store, logger.NewNull(), false)
			out, err := m.Reconcile(context.Background(), "orders", tc.next, tc.cfg, Target{Table: "orders", Alterer: alt, AddColumn: addColumn})
			require.NoError(t, err)

			assert.Equal(t, tc.wantRejected, out.Rejected, out.Reason)
			assert.Len(t, out.DDL, tc.wantDDL)
			assert.Equal(t, out.DDL, alt.stmts)

			last, err := store.LoadLast("orders")
			require.NoError(t, err)
			assert.Equal(t, tc.wantVersion, last.Version)
		})
	}
}

func TestReconcileBaselineAndDryRun(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	dry := NewManager(store, logger.NewNull(), true)
	out, err := dry.Reconcile(context.Background(), "orders", baseSchema, EvolutionConfig{}, Target{})
	require.NoError(t, err)
	assert.True(t, out.Baseline)
	last, err := store.LoadLast("orders")
	require.NoError(t, err)
	assert.Nil(t, last, "dry run must not persist")

	m := NewManager(store, logger.NewNull(), false)
	out, err = m.Reconcile(context.Background(), "orders", baseSchema, EvolutionConfig{}, Target{})
	require.NoError(t, err)
	assert.True(t, out.Baseline)
	assert.Equal(t, 1, out.Version)
}
