package leetcode

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leetbuddy/challenge-tracker/internal/domain/shared"
	"github.com/leetbuddy/challenge-tracker/pkg/circuitbreaker"
	"github.com/leetbuddy/challenge-tracker/pkg/logger"
	"github.com/leetbuddy/challenge-tracker/pkg/timeutil"
)

type fixture struct {
	client *Client
	hits   *atomic.Int32
}

func newFixture(t *testing.T, handler http.HandlerFunc, tweak ...func(*Config)) fixture {
	t.Helper()
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		handler(w, r)
	}))
	t.Cleanup(srv.Close)

	cfg := DefaultConfig()
	cfg.GraphQLURL = srv.URL + "/graphql"
	cfg.Location = kolkata(t)
	cfg.Timeout = 2 * time.Second
	cfg.RetryBaseDelay = time.Millisecond
	cfg.RetryMaxDelay = 2 * time.Millisecond
	cfg.RateLimiter = RateLimiterConfig{RequestsPerMinute: 60000, Burst: 100, DefaultPenalty: time.Millisecond}
	for _, fn := range tweak {
		fn(&cfg)
	}

	c := NewClient(cfg, logger.Nop(), WithClock(timeutil.FixedClock(testNow)))
	return fixture{client: c, hits: &hits}
}

func respond(body string) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, body)
	}
}

func TestFetch_Success(t *testing.T) {
	var gotReq graphQLRequest
	f := newFixture(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/graphql", r.URL.Path)
		assert.Contains(t, r.Header.Get("Content-Type"), "application/json")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))
		respond(statsBody(
			`[{"difficulty":"All","count":42},{"difficulty":"Easy","count":30},{"difficulty":"Medium","count":10},{"difficulty":"Hard","count":2}]`,
			recent(tsTodayIST, "Accepted"),
		))(w, r)
	})

	stats, err := f.client.Fetch(context.Background(), "  neo ")
	require.NoError(t, err)

	assert.Equal(t, "neo", gotReq.Variables["username"])
	assert.Contains(t, gotReq.Query, "acSubmissionNum")
	assert.Contains(t, gotReq.Query, "recentSubmissionList")
	assert.Equal(t, 42, stats.TotalSolved)
	assert.Equal(t, 30, stats.Breakdown.Easy)
	assert.Equal(t, 10, stats.Breakdown.Medium)
	assert.Equal(t, 2, stats.Breakdown.Hard)
	assert.True(t, stats.CompletedToday)
	require.NotNil(t, stats.LastSubmissionAt)
	assert.Equal(t, "Accepted", stats.LastSubmissionStatus)
}

func TestFetch_UnknownIdentityNotRetried(t *testing.T) {
	f := newFixture(t, respond(`{"errors":[{"message":"That user does not exist."}],"data":{"matchedUser":null,"recentSubmissionList":null}}`))

	_, err := f.client.Fetch(context.Background(), "ghost")

	assert.ErrorIs(t, err, ErrUnknownIdentity)
	assert.True(t, shared.IsNotFound(err))
	assert.Equal(t, int32(1), f.hits.Load())
}

func TestFetch_MalformedNotRetried(t *testing.T) {
	f := newFixture(t, respond(`{"data":{"matchedUser":{"submitStats":null}}}`))

	_, err := f.client.Fetch(context.Background(), "neo")

	assert.ErrorIs(t, err, ErrMalformed)
	assert.Equal(t, int32(1), f.hits.Load())
}

func TestFetch_InvalidJSONIsMalformed(t *testing.T) {
	f := newFixture(t, respond(`<html>oops</html>`))

	_, err := f.client.Fetch(context.Background(), "neo")
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestFetch_ServerErrorRetriedThenUnreachable(t *testing.T) {
	f := newFixture(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}, func(c *Config) { c.MaxAttempts = 3 })

	_, err := f.client.Fetch(context.Background(), "neo")

	var fe *FetchError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, KindUnreachable, fe.Kind)
	assert.Equal(t, int32(3), f.hits.Load())
}

func TestFetch_RecoversAfterTransientFailure(t *testing.T) {
	var calls atomic.Int32
	f := newFixture(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		respond(statsBody(`[{"difficulty":"All","count":7}]`, `[]`))(w, r)
	})

	stats, err := f.client.Fetch(context.Background(), "neo")
	require.NoError(t, err)
	assert.Equal(t, 7, stats.TotalSolved)
	assert.False(t, stats.CompletedToday)
}

func TestFetch_TooManyRequestsIsUnreachable(t *testing.T) {
	f := newFixture(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}, func(c *Config) { c.MaxAttempts = 1 })

	_, err := f.client.Fetch(context.Background(), "neo")
	assert.ErrorIs(t, err, ErrUnreachable)
	assert.ErrorIs(t, err, shared.ErrRateLimited)
}

func TestFetch_TimeoutIsUnreachable(t *testing.T) {
	f := newFixture(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(500 * time.Millisecond):
		case <-r.Context().Done():
		}
		respond(statsBody(`[{"difficulty":"All","count":7}]`, `[]`))(w, r)
	}, func(c *Config) {
		c.Timeout = 50 * time.Millisecond
		c.MaxAttempts = 1
	})

	_, err := f.client.Fetch(context.Background(), "neo")
	assert.ErrorIs(t, err, ErrUnreachable)
}

func TestFetch_BreakerOpensAndShortCircuits(t *testing.T) {
	f := newFixture(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}, func(c *Config) {
		c.MaxAttempts = 1
		c.BreakerThreshold = 2
		c.BreakerTimeout = time.Hour
	})

	for i := 0; i < 2; i++ {
		_, err := f.client.Fetch(context.Background(), "neo")
		require.ErrorIs(t, err, ErrUnreachable)
	}
	assert.Equal(t, circuitbreaker.StateOpen, f.client.BreakerState())

	_, err := f.client.Fetch(context.Background(), "neo")
	assert.ErrorIs(t, err, ErrUnreachable)
	assert.ErrorIs(t, err, circuitbreaker.ErrCircuitOpen)
	assert.Equal(t, int32(2), f.hits.Load())
}

func TestFetch_UnknownIdentityDoesNotTripBreaker(t *testing.T) {
	f := newFixture(t, respond(`{"data":{"matchedUser":null,"recentSubmissionList":[]}}`), func(c *Config) {
		c.BreakerThreshold = 1
	})

	for i := 0; i < 3; i++ {
		_, err := f.client.Fetch(context.Background(), "ghost")
		require.ErrorIs(t, err, ErrUnknownIdentity)
	}
	assert.Equal(t, circuitbreaker.StateClosed, f.client.BreakerState())
}

func TestFetch_EmptyUsername(t *testing.T) {
	f := newFixture(t, respond(`{}`))

	_, err := f.client.Fetch(context.Background(), "   ")
	assert.ErrorIs(t, err, ErrUnknownIdentity)
	assert.Zero(t, f.hits.Load())
}

func TestFetch_CancelledContext(t *testing.T) {
	f := newFixture(t, respond(`{}`))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.client.Fetch(ctx, "neo")
	assert.ErrorIs(t, err, ErrUnreachable)
}
