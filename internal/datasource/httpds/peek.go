package httpds

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
)

var errPeekSize = errors.New("httpds: peek size must be positive")

// Peek returns at most n leading bytes of url. The Range header asks the
// server for a partial body; servers that ignore it are cut off after n
// bytes. A final status outside 2xx is a *StatusError.
func (c *Client) Peek(ctx context.Context, url string, n int) ([]byte, error) {
	if n <= 0 {
		return nil, errPeekSize
	}

	resp, err := c.Get(ctx, url, http.Header{"Range": {fmt.Sprintf("bytes=0-%d", n-1)}})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{Method: http.MethodGet, URL: url, Code: resp.StatusCode}
	}
	return io.ReadAll(io.LimitReader(resp.Body, int64(n)))
}
