package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoggerLevels(t *testing.T) {
	t.Parallel()

	buffer := new(bytes.Buffer)
	log := NewLogger(buffer)

	log.SetLevel(TRACE)
	named := log.WithName("conduit:test")
	named.Info("info line")
	log.Trace("trace line")

	log.SetLevel(ERROR)
	named.Warn("silenced")
	log.Error("error line")

	log.SetLevel(999)
	log.Info("info after invalid level")
	named.Debug("silenced debug")

	lines := strings.Split(strings.TrimSpace(buffer.String()), "\n")
	require.Len(t, lines, 4)

	var first map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
	assert.Equal(t, "conduit:test", first["@module"])
	assert.Equal(t, "info line", first["@message"])
}

func TestLevelStrings(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "TRACE", TRACE.String())
	assert.Equal(t, "ERROR", ERROR.String())
	assert.Equal(t, "Level(999)", Level(999).String())

	tests := map[string]Level{
		"trace":   TRACE,
		"DEBUG":   DEBUG,
		"Info":    INFO,
		"warning": WARN,
		"ERROR":   ERROR,
		"bogus":   INFO,
	}
	for in, want := range tests {
		assert.Equal(t, want, LevelFromString(in), in)
	}
}

func TestContext(t *testing.T) {
	t.Parallel()

	assert.Equal(t, nullLogger, FromContext(context.Background()))

	log := NewLogger(new(bytes.Buffer))
	ctx := WithContext(context.Background(), log)
	assert.Equal(t, log, FromContext(ctx))
}
