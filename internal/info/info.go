// Package info holds application version information.
package info

var (
	// AppName is the name of the application.
	AppName = "conduit"
	// Version is set at build time with -ldflags.
	Version = "DEV"
	// BuildDate is set at build time with -ldflags.
	BuildDate = "" // YYYY-MM-DD
)
