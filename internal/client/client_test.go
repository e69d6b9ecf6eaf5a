package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"nba_analytics/ingestion/internal/errs"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingSleeper captures backoff delays instead of sleeping
type recordingSleeper struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (r *recordingSleeper) sleep(ctx context.Context, d time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.delays = append(r.delays, d)
	return ctx.Err()
}

func newTestClient(t *testing.T, srv *httptest.Server, maxRetries int) (*Client, *recordingSleeper) {
	t.Helper()
	rec := &recordingSleeper{}
	c := NewClient(Config{
		Provider:    "test",
		BaseURL:     srv.URL,
		Timeout:     2 * time.Second,
		MaxRetries:  maxRetries,
		BackoffBase: 100 * time.Millisecond,
		BackoffCap:  time.Second,
		Limiter:     Unlimited("test"),
	}, WithSleeper(rec.sleep))
	return c, rec
}

func TestGet_RetriesTwiceThenSucceeds(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) <= 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	c, rec := newTestClient(t, srv, 3)

	body, err := c.Get(context.Background(), "/v1/games", nil)
	require.NoError(t, err)
	assert.JSONEq(t, `{"ok":true}`, string(body))

	assert.Equal(t, int32(3), calls.Load(), "one initial attempt plus exactly 2 retries")
	require.Len(t, rec.delays, 2)
	assert.Equal(t, 100*time.Millisecond, rec.delays[0])
	assert.Equal(t, 200*time.Millisecond, rec.delays[1])
	for i := 1; i < len(rec.delays); i++ {
		assert.GreaterOrEqual(t, rec.delays[i], rec.delays[i-1], "delays should be non-decreasing")
	}
}

func TestGet_ExhaustedRetriesIsUnavailable(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c, rec := newTestClient(t, srv, 3)

	_, err := c.Get(context.Background(), "/v4/sports/basketball_nba/odds", nil)
	require.Error(t, err)
	assert.True(t, errs.IsUnavailable(err))
	assert.False(t, errs.IsRejected(err))
	assert.Equal(t, int32(4), calls.Load())
	assert.Equal(t, []time.Duration{100 * time.Millisecond, 200 * time.Millisecond, 400 * time.Millisecond}, rec.delays)
}

func TestGet_BackoffIsCapped(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c, rec := newTestClient(t, srv, 6)

	_, err := c.Get(context.Background(), "/x", nil)
	require.Error(t, err)
	require.Len(t, rec.delays, 6)
	for _, d := range rec.delays {
		assert.LessOrEqual(t, d, time.Second)
	}
	assert.Equal(t, time.Second, rec.delays[5])
}

func TestGet_NonTransientFailsImmediately(t *testing.T) {
	for _, status := range []int{http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound} {
		var calls atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			w.WriteHeader(status)
			w.Write([]byte(`{"message":"nope"}`))
		}))

		c, rec := newTestClient(t, srv, 3)
		_, err := c.Get(context.Background(), "/x", nil)
		srv.Close()

		require.Error(t, err)
		assert.True(t, errs.IsRejected(err), "status %d should be rejected", status)
		assert.Equal(t, int32(1), calls.Load(), "status %d should not retry", status)
		assert.Empty(t, rec.delays)

		var rejected *errs.RejectedError
		require.True(t, errors.As(err, &rejected))
		assert.Equal(t, status, rejected.Status)
		assert.Contains(t, rejected.Body, "nope")
	}
}

func TestGet_HonorsRetryAfter(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.Header().Set("Retry-After", "3")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	c, rec := newTestClient(t, srv, 3)
	c.maxRetryAfter = 10 * time.Second

	_, err := c.Get(context.Background(), "/x", nil)
	require.NoError(t, err)
	assert.Equal(t, []time.Duration{3 * time.Second}, rec.delays)
}

func TestGet_TimeoutIsTransient(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			time.Sleep(200 * time.Millisecond)
		}
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c, _ := newTestClient(t, srv, 2)
	c.httpClient.Timeout = 50 * time.Millisecond

	_, err := c.Get(context.Background(), "/x", nil)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, calls.Load(), int32(2))
}

func TestGet_CancelledContextStopsRetries(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	c, _ := newTestClient(t, srv, 3)
	c.sleep = func(ctx context.Context, d time.Duration) error {
		cancel()
		return ctx.Err()
	}

	_, err := c.Get(ctx, "/x", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, errs.IsUnavailable(err))
}

func TestGetJSON_MalformedIsRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data": [`))
	}))
	defer srv.Close()

	c, _ := newTestClient(t, srv, 3)

	var out struct {
		Data []int `json:"data"`
	}
	err := c.GetJSON(context.Background(), "/x", nil, &out)
	require.Error(t, err)
	assert.True(t, errs.IsRejected(err))
}

func TestAuthorizers(t *testing.T) {
	var gotHeader, gotKey, gotRegions string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHeader = r.Header.Get("Authorization")
		gotKey = r.URL.Query().Get("apiKey")
		gotRegions = r.URL.Query().Get("regions")
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	bdl := NewClient(Config{Provider: "bdl", BaseURL: srv.URL, Auth: HeaderAuth("Authorization", "bdl-key")})
	_, err := bdl.Get(context.Background(), "/v1/teams", nil)
	require.NoError(t, err)
	assert.Equal(t, "bdl-key", gotHeader)

	odds := NewClient(Config{Provider: "odds", BaseURL: srv.URL, Auth: QueryAuth("apiKey", "odds-key")})
	_, err = odds.Get(context.Background(), "/v4/sports/basketball_nba/odds", url.Values{"regions": {"us"}})
	require.NoError(t, err)
	assert.Equal(t, "odds-key", gotKey)
	assert.Equal(t, "us", gotRegions)
}

func TestParseRetryAfter(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

	assert.Equal(t, 5*time.Second, parseRetryAfter("5", now))
	assert.Equal(t, time.Duration(0), parseRetryAfter("", now))
	assert.Equal(t, time.Duration(0), parseRetryAfter("-1", now))
	assert.Equal(t, 30*time.Second, parseRetryAfter(now.Add(30*time.Second).Format(http.TimeFormat), now))
	assert.Equal(t, time.Duration(0), parseRetryAfter("soon", now))
}

func TestRateLimiterSharedAcrossCallers(t *testing.T) {
	limiter := NewRateLimiter("shared", 2, 200*time.Millisecond)

	start := time.Now()
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, limiter.Wait(context.Background()))
		}()
	}
	wg.Wait()

	// burst of 2, then one token per 100ms
	assert.GreaterOrEqual(t, time.Since(start), 150*time.Millisecond)
}

func TestRateLimiterHonorsContext(t *testing.T) {
	limiter := NewRateLimiter("slow", 1, time.Hour)
	require.NoError(t, limiter.Wait(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.Error(t, limiter.Wait(ctx))
}
