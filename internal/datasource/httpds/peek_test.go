package httpds

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPeek(t *testing.T) {
	t.Parallel()

	testCases := map[string]struct {
		handler       http.HandlerFunc
		n             int
		expected      string
		expectedRange string
		expectedError error
	}{
		"server ignoring range is cut off": {
			handler: func(w http.ResponseWriter, _ *http.Request) {
				_, _ = w.Write([]byte("id,name\n1,ann\n"))
			},
			n:             4,
			expected:      "id,n",
			expectedRange: "bytes=0-3",
		},
		"partial content is returned as is": {
			handler: func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusPartialContent)
				_, _ = w.Write([]byte("{"))
			},
			n:             1,
			expected:      "{",
			expectedRange: "bytes=0-0",
		},
		"short body": {
			handler: func(w http.ResponseWriter, _ *http.Request) {
				_, _ = w.Write([]byte("ok"))
			},
			n:             64,
			expected:      "ok",
			expectedRange: "bytes=0-63",
		},
		"zero size is rejected": {
			n:             0,
			expectedError: errPeekSize,
		},
	}

	for testName, test := range testCases {
		t.Run(testName, func(t *testing.T) {
			t.Parallel()

			var sawRange atomic.Value
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				sawRange.Store(r.Header.Get("Range"))
				test.handler(w, r)
			}))
			defer srv.Close()

			c := NewClient(Config{Timeout: 2 * time.Second, Retry: fastRetry})
			got, err := c.Peek(t.Context(), srv.URL, test.n)
			if test.expectedError != nil {
				assert.ErrorIs(t, err, test.expectedError)
				assert.Nil(t, sawRange.Load(), "no request is sent")
				return
			}

			require.NoError(t, err)
			assert.Equal(t, test.expected, string(got))
			assert.Equal(t, test.expectedRange, sawRange.Load())
		})
	}
}

func TestPeekStatusError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	c := NewClient(Config{Timeout: 2 * time.Second, Retry: fastRetry})
	_, err := c.Peek(t.Context(), srv.URL, 4)

	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusNotFound, se.Code)
}

func TestPeekCanceledContext(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	c := NewClient(Config{Timeout: 2 * time.Second, Retry: fastRetry})
	_, err := c.Peek(ctx, srv.URL, 10)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSourceStatOpen(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if r.URL.Path == "/missing.csv" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte("id\n1\n2\n"))
	}))
	defer srv.Close()

	c := NewClient(Config{Timeout: 2 * time.Second, Retry: fastRetry})

	src := NewSource(c, srv.URL+"/orders.csv")
	require.NoError(t, src.Stat(t.Context()))

	rc, err := src.Open(t.Context())
	require.NoError(t, err)
	body, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	assert.Equal(t, "id\n1\n2\n", string(body))
	assert.EqualValues(t, 2, hits.Load())

	missing := NewSource(c, srv.URL+"/missing.csv")
	var se *StatusError
	assert.ErrorAs(t, missing.Stat(t.Context()), &se)
	_, err = missing.Open(t.Context())
	assert.ErrorAs(t, err, &se)
}
