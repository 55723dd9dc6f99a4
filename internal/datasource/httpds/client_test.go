package httpds

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"conduit/internal/retry"
)

var fastRetry = retry.Policy{MaxAttempts: 3, InitialDelay: time.Millisecond}

func TestNewClientDefaults(t *testing.T) {
	t.Parallel()

	c := NewClient(Config{InsecureSkipVerify: true})
	assert.Positive(t, c.httpClient.Timeout)
	assert.Equal(t, retry.DefaultPolicy.MaxAttempts, c.policy.MaxAttempts)

	transport, ok := c.httpClient.Transport.(*http.Transport)
	require.True(t, ok)
	require.NotNil(t, transport.TLSClientConfig)
	assert.True(t, transport.TLSClientConfig.InsecureSkipVerify)
}

func TestDo(t *testing.T) {
	t.Parallel()

	testCases := map[string]struct {
		statuses  []int
		wantHits  int32
		wantCode  int
		wantError bool
	}{
		"success without retry": {
			statuses: []int{http.StatusOK},
			wantHits: 1,
			wantCode: http.StatusOK,
		},
		"retries 5xx then succeeds": {
			statuses: []int{http.StatusInternalServerError, http.StatusBadGateway, http.StatusOK},
			wantHits: 3,
			wantCode: http.StatusOK,
		},
		"retries 429": {
			statuses: []int{http.StatusTooManyRequests, http.StatusOK},
			wantHits: 2,
			wantCode: http.StatusOK,
		},
		"non retryable status is returned": {
			statuses: []int{http.StatusNotFound},
			wantHits: 1,
			wantCode: http.StatusNotFound,
		},
		"gives up after max attempts": {
			statuses:  []int{http.StatusServiceUnavailable},
			wantHits:  3,
			wantError: true,
		},
	}

	for name, tc := range testCases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			var hits int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				n := int(atomic.AddInt32(&hits, 1)) - 1
				if n >= len(tc.statuses) {
					n = len(tc.statuses) - 1
				}
				w.WriteHeader(tc.statuses[n])
			}))
			defer srv.Close()

			c := NewClient(Config{Timeout: 2 * time.Second, Retry: fastRetry})
			resp, err := c.Get(context.Background(), srv.URL, nil)
			assert.Equal(t, tc.wantHits, atomic.LoadInt32(&hits))
			if tc.wantError {
				var se *StatusError
				require.ErrorAs(t, err, &se)
				assert.Equal(t, http.StatusServiceUnavailable, se.Code)
				return
			}
			require.NoError(t, err)
			defer resp.Body.Close()
			assert.Equal(t, tc.wantCode, resp.StatusCode)
		})
	}
}

func TestDoHeaders(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, r.Header.Get("X-Token")+"|"+r.Header.Get("Accept"))
	}))
	defer srv.Close()

	c := NewClient(Config{
		Retry:       fastRetry,
		BaseHeaders: http.Header{"X-Token": {"base"}, "Accept": {"text/csv"}},
	})
	resp, err := c.Get(context.Background(), srv.URL, http.Header{"X-Token": {"override"}})
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "override|text/csv", string(body))
}

func TestDoValidatesInput(t *testing.T) {
	t.Parallel()

	c := NewClient(Config{})
	_, err := c.Do(context.Background(), "", "http://x", nil, nil)
	assert.Error(t, err)
	_, err = c.Do(context.Background(), http.MethodGet, "", nil, nil)
	assert.Error(t, err)
}

func TestDoCanceledContext(t *testing.T) {
	t.Parallel()

	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewClient(Config{Retry: fastRetry}).Get(ctx, srv.URL, nil)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Zero(t, atomic.LoadInt32(&hits))
}

func TestSource(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = io.WriteString(w, "id\n1\n")
	}))
	defer srv.Close()

	c := NewClient(Config{Retry: fastRetry})
	ctx := context.Background()

	rc, err := NewSource(c, srv.URL+"/data.csv").Open(ctx)
	require.NoError(t, err)
	body, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	assert.Equal(t, "id\n1\n", string(body))
	assert.NoError(t, NewSource(c, srv.URL+"/data.csv").Stat(ctx))

	_, err = NewSource(c, srv.URL+"/missing").Open(ctx)
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusNotFound, se.Code)
	assert.Error(t, NewSource(c, srv.URL+"/missing").Stat(ctx))
}
