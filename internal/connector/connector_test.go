package connector

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"conduit/internal/records"
)

type stubSource struct{}

func (stubSource) Read(context.Context, string) (records.Iterator, error) {
	return records.FromSlice(nil), nil
}
func (stubSource) Close() error { return nil }

func TestRegistry(t *testing.T) {
	t.Parallel()

	reg := NewRegistry()
	reg.RegisterSource("CSV", func(context.Context, Spec) (Source, error) { return stubSource{}, nil })

	assert.True(t, reg.HasSource("csv"))
	assert.False(t, reg.HasDestination("csv"))
	assert.Equal(t, []string{"csv"}, reg.SourceTypes())

	src, err := reg.OpenSource(context.Background(), Spec{Type: " csv "})
	require.NoError(t, err)
	assert.NotNil(t, src)

	_, err = reg.OpenDestination(context.Background(), Spec{Type: "csv"})
	assert.ErrorIs(t, err, ErrUnknownType)
}

func TestParseWriteMode(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		in      string
		want    WriteMode
		wantErr bool
	}{
		"default":      {in: "", want: ModeAppend},
		"merge":        {in: "MERGE", want: ModeMerge},
		"full refresh": {in: "full_refresh", want: ModeFullRefresh},
		"unknown":      {in: "upsert", wantErr: true},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			got, err := ParseWriteMode(tc.in)
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
	assert.True(t, ModeTruncate.Replaces())
	assert.False(t, ModeMerge.Replaces())
}

func TestConnectionErrorUnwraps(t *testing.T) {
	t.Parallel()

	base := errors.New("dial tcp: refused")
	err := NewConnectionError("postgres", "warehouse", base)
	assert.ErrorIs(t, err, base)
	assert.Contains(t, err.Error(), "1. check that the host")
}
