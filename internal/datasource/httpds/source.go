package httpds

import (
	"context"
	"io"
	"net/http"
)

// Source streams the body of a GET request.
type Source struct {
	client *Client
	url    string
}

// NewSource returns a Source reading url through c.
func NewSource(c *Client, url string) *Source { return &Source{client: c, url: url} }

// Open issues the request. Any non-2xx final status is a *StatusError.
func (s *Source) Open(ctx context.Context) (io.ReadCloser, error) {
	resp, err := s.client.Get(ctx, s.url, nil)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		resp.Body.Close()
		return nil, &StatusError{Method: http.MethodGet, URL: s.url, Code: resp.StatusCode}
	}
	return resp.Body, nil
}

// Stat fetches the first byte of the resource to confirm it is reachable.
func (s *Source) Stat(ctx context.Context) error {
	_, err := s.client.Peek(ctx, s.url, 1)
	return err
}
