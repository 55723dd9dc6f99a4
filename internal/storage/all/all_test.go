package all

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewRegistry(t *testing.T) {
	t.Parallel()

	reg := NewRegistry()
	assert.Equal(t,
		[]string{"azuresql", "csv", "json", "mssql", "mysql", "postgres", "postgresql", "sqlite"},
		reg.SourceTypes())
	assert.Equal(t,
		[]string{"azblob", "azuresql", "csv", "json", "mssql", "mysql", "postgres", "postgresql", "sqlite"},
		reg.DestinationTypes())
}
