// Package all wires every built-in connector into a registry.
//
// This keeps backend-specific wiring in one small package: main builds a
// registry with NewRegistry and hands it to the engine, which only sees the
// connector capability interfaces. A binary that needs a subset of backends
// can call the per-package Register functions directly instead.
package all

import (
	"conduit/internal/connector"
	"conduit/internal/storage/azblob"
	"conduit/internal/storage/csvfile"
	"conduit/internal/storage/jsonfile"
	"conduit/internal/storage/mssql"
	"conduit/internal/storage/mysql"
	"conduit/internal/storage/postgres"
	"conduit/internal/storage/sqlite"
)

// Register adds all built-in sources and destinations to reg.
func Register(reg *connector.Registry) {
	csvfile.Register(reg)
	jsonfile.Register(reg)
	sqlite.Register(reg)
	postgres.Register(reg)
	mysql.Register(reg)
	mssql.Register(reg)
	azblob.Register(reg)
}

// NewRegistry returns a registry with every built-in connector.
func NewRegistry() *connector.Registry {
	reg := connector.NewRegistry()
	Register(reg)
	return reg
}
