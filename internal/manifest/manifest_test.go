package manifest

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrackerStatus(t *testing.T) {
	t.Parallel()

	cases := map[string]struct {
		failed int64
		err    error
		want   Status
	}{
		"success": {want: StatusSuccess},
		"partial": {failed: 2, want: StatusPartial},
		"failed":  {failed: 2, err: errors.New("boom"), want: StatusFailed},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			m, err := Open(filepath.Join(t.TempDir(), "manifest.json"))
			require.NoError(t, err)
			tr := m.Start("orders", "csv", "sqlite")
			tr.RecordsRead = 10
			tr.RecordsWritten = 10 - tc.failed
			tr.RecordsFailed = tc.failed

			e, err := tr.Finish(tc.err)
			require.NoError(t, err)
			assert.Equal(t, tc.want, e.Status)
			assert.NotEmpty(t, e.RunID)
			if tc.err != nil {
				assert.Equal(t, "boom", e.ErrorMessage)
			}
		})
	}
}

func TestTrackerFinishTwice(t *testing.T) {
	t.Parallel()

	tr := (*Manifest)(nil).Start("orders", "csv", "json")
	_, err := tr.Finish(nil)
	require.NoError(t, err)
	_, err = tr.Finish(nil)
	require.Error(t, err)
}

func TestManifestPersistsAndQueries(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "audit", "manifest.json")
	m, err := Open(path)
	require.NoError(t, err)

	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, m.Add(Entry{RunID: "1", PipelineName: "a", Status: StatusSuccess, StartedAt: base}))
	require.NoError(t, m.Add(Entry{RunID: "2", PipelineName: "b", Status: StatusFailed, StartedAt: base}))
	require.NoError(t, m.Add(Entry{RunID: "3", PipelineName: "a", Status: StatusPartial, StartedAt: base}))

	reopened, err := Open(path)
	require.NoError(t, err)

	latest := reopened.Latest("a")
	require.NotNil(t, latest)
	assert.Equal(t, "3", latest.RunID)
	assert.Nil(t, reopened.Latest("missing"))
	assert.Len(t, reopened.All(""), 3)
	assert.Len(t, reopened.All("a"), 2)

	failed := reopened.Failed()
	require.Len(t, failed, 1)
	assert.Equal(t, "2", failed[0].RunID)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"version": "1.0"`)
}

func TestOpenCorrupt(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "manifest.json")
	require.NoError(t, os.WriteFile(path, []byte("{"), 0o644))
	_, err := Open(path)
	require.Error(t, err)
}
