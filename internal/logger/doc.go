// Package logger wraps hclog behind a small interface so the engine and its
// connectors log through one configuration. Loggers travel in the context.
package logger
