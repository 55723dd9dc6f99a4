package connector

import (
	"fmt"
	"strings"
)

// ConnectionError reports that a connector could not reach its endpoint.
type ConnectionError struct {
	Connector   string
	Name        string
	Err         error
	Suggestions []string
}

func (e *ConnectionError) Error() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s connector %q: cannot connect: %v", e.Connector, e.Name, e.Err)
	for i, s := range e.Suggestions {
		fmt.Fprintf(&sb, "\n  %d. %s", i+1, s)
	}
	return sb.String()
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// NewConnectionError wraps err with the default remediation hints for a
// database-style endpoint.
func NewConnectionError(kind, name string, err error, extra ...string) *ConnectionError {
	hints := append([]string{
		"check that the host is reachable from this machine",
		"verify the connection string and credentials",
	}, extra...)
	return &ConnectionError{Connector: kind, Name: name, Err: err, Suggestions: hints}
}
