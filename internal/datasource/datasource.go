// Package datasource opens byte streams for the file-backed connectors,
// choosing between the local filesystem and HTTP by the shape of the path.
package datasource

import (
	"context"
	"io"
	"strings"

	"conduit/internal/datasource/file"
	"conduit/internal/datasource/httpds"
)

// Source is a re-openable byte stream.
type Source interface {
	Open(ctx context.Context) (io.ReadCloser, error)
	// Stat checks that the stream can be opened without reading it.
	Stat(ctx context.Context) error
}

// IsRemote reports whether path is an http(s) URL.
func IsRemote(path string) bool {
	p := strings.ToLower(path)
	return strings.HasPrefix(p, "http://") || strings.HasPrefix(p, "https://")
}

// For returns the Source for path. client is used for remote paths and may
// be nil, in which case a default client is built.
func For(path string, client *httpds.Client) Source {
	if IsRemote(path) {
		if client == nil {
			client = httpds.NewClient(httpds.Config{})
		}
		return httpds.NewSource(client, path)
	}
	return file.NewLocal(path)
}
