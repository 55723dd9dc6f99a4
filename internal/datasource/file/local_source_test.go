package file

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocal(t *testing.T) {
	t.Parallel()

	canceled := func(t *testing.T) context.Context {
		ctx, cancel := context.WithCancel(t.Context())
		cancel()
		return ctx
	}

	testCases := map[string]struct {
		target          string
		ctx             func(t *testing.T) context.Context
		expectedOpenErr error
		expectedStatErr error
		expectedContent string
	}{
		"regular file": {
			target:          "orders.csv",
			expectedContent: "id,name\n1,ann\n",
		},
		"missing file": {
			target:          "missing.csv",
			expectedOpenErr: os.ErrNotExist,
			expectedStatErr: os.ErrNotExist,
		},
		"canceled context": {
			target:          "orders.csv",
			ctx:             canceled,
			expectedOpenErr: context.Canceled,
			expectedStatErr: context.Canceled,
		},
	}

	for testName, test := range testCases {
		t.Run(testName, func(t *testing.T) {
			t.Parallel()

			dir := t.TempDir()
			require.NoError(t, os.WriteFile(filepath.Join(dir, "orders.csv"), []byte("id,name\n1,ann\n"), 0o600))

			ctx := t.Context()
			if test.ctx != nil {
				ctx = test.ctx(t)
			}
			src := NewLocal(filepath.Join(dir, test.target))

			err := src.Stat(ctx)
			if test.expectedStatErr != nil {
				assert.ErrorIs(t, err, test.expectedStatErr)
			} else {
				assert.NoError(t, err)
			}

			rc, err := src.Open(ctx)
			if test.expectedOpenErr != nil {
				assert.ErrorIs(t, err, test.expectedOpenErr)
				assert.Nil(t, rc)
				return
			}
			require.NoError(t, err)
			defer rc.Close()

			got, err := io.ReadAll(rc)
			require.NoError(t, err)
			assert.Equal(t, test.expectedContent, string(got))
		})
	}
}

func TestLocalStatDirectory(t *testing.T) {
	t.Parallel()

	err := NewLocal(t.TempDir()).Stat(t.Context())
	assert.ErrorContains(t, err, "is a directory")
}
