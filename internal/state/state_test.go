package state

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"conduit/internal/logger"
)

type doc struct {
	Value string `json:"value"`
}

func TestFileRoundTrip(t *testing.T) {
	t.Parallel()

	f := NewFile(filepath.Join(t.TempDir(), "s.json"), logger.NewNull())

	var got doc
	found, err := f.Load(&got)
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, f.Save(doc{Value: "one"}))
	require.NoError(t, f.Save(doc{Value: "two"}))

	found, err = f.Load(&got)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "two", got.Value)

	var bak doc
	require.NoError(t, decodeFile(t, f.backupPath(), &bak))
	assert.Equal(t, "one", bak.Value)
}

func TestFileRecoversFromBackup(t *testing.T) {
	t.Parallel()

	f := NewFile(filepath.Join(t.TempDir(), "s.json"), logger.NewNull())
	require.NoError(t, f.Save(doc{Value: "good"}))
	require.NoError(t, f.Save(doc{Value: "newer"}))
	require.NoError(t, os.WriteFile(f.Path, []byte("{broken"), 0o644))

	var got doc
	found, err := f.Load(&got)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "good", got.Value)

	var restored doc
	require.NoError(t, decodeFile(t, f.Path, &restored))
	assert.Equal(t, "good", restored.Value, "main file is restored from backup")
}

func TestFileCorruptWithoutBackup(t *testing.T) {
	t.Parallel()

	f := NewFile(filepath.Join(t.TempDir(), "s.json"), logger.NewNull())
	require.NoError(t, os.WriteFile(f.Path, []byte("nope"), 0o644))

	var got doc
	found, err := f.Load(&got)
	require.NoError(t, err)
	assert.False(t, found)
}

func decodeFile(t *testing.T, path string, v any) error {
	t.Helper()
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return decode(b, v)
}
