package checkpoint

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"conduit/internal/logger"
)

func TestSaveLoad(t *testing.T) {
	t.Parallel()

	ts := time.Date(2025, 2, 3, 4, 5, 6, 0, time.UTC)
	tests := map[string]struct {
		value    any
		wantType Type
		want     any
	}{
		"integer":     {value: 42, wantType: TypeInteger, want: int64(42)},
		"large id":    {value: int64(9007199254740993), wantType: TypeInteger, want: int64(9007199254740993)},
		"whole float": {value: 2.0, wantType: TypeFloat, want: 2.0},
		"float":       {value: 1.5, wantType: TypeFloat, want: 1.5},
		"datetime":    {value: ts, wantType: TypeDatetime, want: ts},
		"string":      {value: "abc", wantType: TypeString, want: "abc"},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			s := NewStore(t.TempDir(), logger.NewNull())
			require.NoError(t, s.Save("orders", "id", tc.value, 100))

			cp := s.Load("orders")
			require.NotNil(t, cp)
			assert.Equal(t, "orders", cp.Pipeline)
			assert.Equal(t, "id", cp.Column)
			assert.Equal(t, tc.wantType, cp.Type)
			assert.Equal(t, int64(100), cp.RecordsProcessed)
			assert.Equal(t, tc.want, cp.Value())
		})
	}
}

func TestLastWriteWins(t *testing.T) {
	t.Parallel()

	s := NewStore(t.TempDir(), logger.NewNull())
	require.NoError(t, s.Save("p", "id", 1, 10))
	require.NoError(t, s.Save("p", "id", 2, 20))
	assert.Equal(t, int64(2), s.Load("p").Value())
}

func TestMissingAndCorrupt(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	s := NewStore(dir, logger.NewNull())
	assert.Nil(t, s.Load("none"))
	assert.False(t, s.Exists("none"))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.json"), []byte("{"), 0o644))
	assert.Nil(t, s.Load("bad"))
	assert.True(t, s.Exists("bad"))
}

func TestListAndClear(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	s := NewStore(dir, logger.NewNull())
	require.NoError(t, s.Save("b", "id", 1, 1))
	require.NoError(t, s.Save("a", "id", 2, 2))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "junk.json"), []byte("nope"), 0o644))

	list, err := s.List()
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "a", list[0].Pipeline)

	ok, err := s.Clear("a")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = s.Clear("a")
	require.NoError(t, err)
	assert.False(t, ok)

	empty := NewStore(filepath.Join(dir, "missing"), logger.NewNull())
	list, err = empty.List()
	require.NoError(t, err)
	assert.Empty(t, list)
}
