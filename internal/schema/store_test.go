package schema

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"conduit/internal/logger"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s := NewStore(t.TempDir(), logger.NewNull())
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	tick := 0
	s.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}
	return s
}

func schemaOf(names ...string) Schema {
	var s Schema
	for _, n := range names {
		s.Columns = append(s.Columns, Column{Name: n, Type: TypeString, Nullable: true})
	}
	return s
}

func TestStoreVersionsAreMonotonic(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	const n = 4
	prev := 0
	for i := 1; i <= n; i++ {
		v, err := s.Save("orders", schemaOf(make([]string, i)...))
		require.NoError(t, err)
		assert.Greater(t, v.Version, prev)
		prev = v.Version
	}

	last, err := s.LoadLast("orders")
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.Equal(t, n, last.Version)
	assert.Len(t, last.Schema.Columns, n)

	hist, err := s.History("orders", 0)
	require.NoError(t, err)
	require.Len(t, hist, n-1)
	assert.Equal(t, n-1, hist[0].Version, "newest first")
	assert.Equal(t, 1, hist[len(hist)-1].Version)

	limited, err := s.History("orders", 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}

func TestStoreMissing(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	last, err := s.LoadLast("nothing")
	require.NoError(t, err)
	assert.Nil(t, last)

	hist, err := s.History("nothing", 10)
	require.NoError(t, err)
	assert.Empty(t, hist)
}

func TestStoreCorruptLatestIsAbsent(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	path := s.latestPath("bad")
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	last, err := s.LoadLast("bad")
	require.NoError(t, err)
	assert.Nil(t, last)
}

func TestStoreSaveOverCorruptLatest(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	_, err := s.Save("orders", schemaOf("a"))
	require.NoError(t, err)
	_, err = s.Save("orders", schemaOf("a", "b"))
	require.NoError(t, err)

	path := s.latestPath("orders")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	v, err := s.Save("orders", schemaOf("a", "b", "c"))
	require.NoError(t, err)
	assert.Equal(t, 2, v.Version, "continues after the highest archived version")

	matches, err := filepath.Glob(path + ".*.corrupt")
	require.NoError(t, err)
	require.Len(t, matches, 1)
	kept, err := os.ReadFile(matches[0])
	require.NoError(t, err)
	assert.Equal(t, "{not json", string(kept))

	next, err := s.Save("orders", schemaOf("a"))
	require.NoError(t, err)
	assert.Equal(t, 3, next.Version)

	hist, err := s.History("orders", 0)
	require.NoError(t, err)
	require.Len(t, hist, 2)
	assert.Equal(t, 2, hist[0].Version)
	assert.Equal(t, 1, hist[1].Version)
}

func TestStoreHash(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	a := Schema{Columns: []Column{{Name: "a", Type: TypeInteger}, {Name: "b", Type: TypeString}}}
	b := Schema{Columns: []Column{{Name: "B", Type: TypeString, Samples: 9}, {Name: "a", Type: TypeInteger}}}
	assert.Equal(t, a.Hash(), b.Hash())

	v, err := s.Save("r", a)
	require.NoError(t, err)
	assert.Equal(t, a.Hash(), v.Hash)
}

func TestLogEvolutionAndExport(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	path, err := s.LogEvolution(EvolutionEvent{
		Resource:    "orders",
		OldVersion:  1,
		NewVersion:  2,
		DDLExecuted: []string{"ALTER TABLE orders ADD COLUMN x TEXT"},
	})
	require.NoError(t, err)
	assert.FileExists(t, path)
	assert.Contains(t, filepath.Base(path), "orders")

	out := filepath.Join(t.TempDir(), "export", "orders.json")
	require.NoError(t, Export(out, schemaOf("a")))
	b, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Contains(t, string(b), `"name": "a"`)
}
