package logger

import (
	"io"
	"strings"
	"time"

	"github.com/hashicorp/go-hclog"
)

var nullLogger = &instance{log: hclog.NewNullLogger()}

//go:generate stringer -type=Level
type Level int

const (
	ERROR Level = iota
	WARN
	INFO
	DEBUG
	TRACE
)

// LevelFromString parses a level name, defaulting to INFO.
func LevelFromString(level string) Level {
	switch strings.ToUpper(strings.TrimSpace(level)) {
	case "TRACE":
		return TRACE
	case "DEBUG":
		return DEBUG
	case "INFO":
		return INFO
	case "WARN", "WARNING":
		return WARN
	case "ERROR":
		return ERROR
	default:
		return INFO
	}
}

func (l Level) hclogLevel() hclog.Level {
	switch l {
	case TRACE:
		return hclog.Trace
	case DEBUG:
		return hclog.Debug
	case INFO:
		return hclog.Info
	case WARN:
		return hclog.Warn
	case ERROR:
		return hclog.Error
	default:
		return hclog.Info
	}
}

// Logger is the logging surface used across the module.
type Logger interface {
	// WithName returns a Logger that tags every line with name.
	WithName(name string) Logger
	// SetLevel changes the minimum emitted level.
	SetLevel(level Level)

	Trace(msg string, args ...any)
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

var _ Logger = &instance{}

type instance struct {
	log hclog.Logger
}

// NewLogger returns a JSON logger writing to writer at INFO level.
func NewLogger(writer io.Writer) Logger {
	return &instance{
		log: hclog.New(&hclog.LoggerOptions{
			JSONFormat: true,
			Output:     writer,
			TimeFn:     time.Now,
			Level:      INFO.hclogLevel(),
		}),
	}
}

// NewNull returns a logger that discards everything.
func NewNull() Logger { return nullLogger }

func (i instance) WithName(name string) Logger {
	return &instance{log: i.log.ResetNamed(name)}
}

func (i instance) SetLevel(level Level) { i.log.SetLevel(level.hclogLevel()) }

func (i instance) Trace(msg string, args ...any) { i.log.Trace(msg, args...) }
func (i instance) Debug(msg string, args ...any) { i.log.Debug(msg, args...) }
func (i instance) Info(msg string, args ...any)  { i.log.Info(msg, args...) }
func (i instance) Warn(msg string, args ...any)  { i.log.Warn(msg, args...) }
func (i instance) Error(msg string, args ...any) { i.log.Error(msg, args...) }
