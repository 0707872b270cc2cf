// Package leetcode fetches per-user solve statistics from the LeetCode
// GraphQL endpoint and normalizes them into participant.Stats.
package leetcode

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/valyala/fasthttp"

	"github.com/leetbuddy/challenge-tracker/internal/domain/participant"
	"github.com/leetbuddy/challenge-tracker/internal/domain/shared"
	"github.com/leetbuddy/challenge-tracker/pkg/circuitbreaker"
	"github.com/leetbuddy/challenge-tracker/pkg/logger"
	"github.com/leetbuddy/challenge-tracker/pkg/retry"
	"github.com/leetbuddy/challenge-tracker/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// DefaultGraphQLURL is the public endpoint.
const DefaultGraphQLURL = "https://leetcode.com/graphql"

// Config contains configuration for the client.
type Config struct {
	GraphQLURL string
	// Timeout bounds one HTTP round trip. A timed-out attempt is Unreachable.
	Timeout time.Duration
	// Location decides which civil day "today" is.
	Location *time.Location

	RateLimiter RateLimiterConfig

	MaxAttempts    int
	RetryBaseDelay time.Duration
	RetryMaxDelay  time.Duration

	BreakerThreshold int
	BreakerTimeout   time.Duration

	UserAgent string
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		GraphQLURL:       DefaultGraphQLURL,
		Timeout:          10 * time.Second,
		Location:         time.UTC,
		RateLimiter:      DefaultRateLimiterConfig(),
		MaxAttempts:      3,
		RetryBaseDelay:   500 * time.Millisecond,
		RetryMaxDelay:    5 * time.Second,
		BreakerThreshold: 5,
		BreakerTimeout:   time.Minute,
		UserAgent:        "challenge-tracker/1.0",
	}
}

// Option customizes a Client.
type Option func(*Client)

// WithClock overrides the clock used for "now".
func WithClock(clock timeutil.Clock) Option {
	return func(c *Client) { c.clock = clock }
}

// WithHTTPClient replaces the underlying fasthttp client.
func WithHTTPClient(hc *fasthttp.Client) Option {
	return func(c *Client) { c.http = hc }
}

// ══════════════════════════════════════════════════════════════════════════════
// CLIENT
// ══════════════════════════════════════════════════════════════════════════════

// Client is safe for concurrent use.
type Client struct {
	cfg     Config
	http    *fasthttp.Client
	limiter *RateLimiter
	breaker *circuitbreaker.CircuitBreaker
	retrier *retry.Retrier
	clock   timeutil.Clock
	logger  zerolog.Logger
}

// NewClient creates a client.
func NewClient(cfg Config, log zerolog.Logger, opts ...Option) *Client {
	if cfg.GraphQLURL == "" {
		cfg.GraphQLURL = DefaultGraphQLURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultConfig().Timeout
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultConfig().UserAgent
	}

	c := &Client{
		cfg: cfg,
		http: &fasthttp.Client{
			MaxConnsPerHost:     32,
			ReadTimeout:         cfg.Timeout,
			WriteTimeout:        cfg.Timeout,
			MaxIdleConnDuration: time.Minute,
		},
		limiter: NewRateLimiter(cfg.RateLimiter),
		clock:   timeutil.SystemClock{},
		logger:  logger.Component(log, "leetcode"),
	}

	c.breaker = circuitbreaker.New("leetcode-graphql",
		circuitbreaker.WithFailureThreshold(cfg.BreakerThreshold),
		circuitbreaker.WithTimeout(cfg.BreakerTimeout),
		circuitbreaker.WithIsFailure(IsUnreachable),
		circuitbreaker.WithOnStateChange(func(name string, from, to circuitbreaker.State) {
			c.logger.Warn().Str("breaker", name).Stringer("from", from).Stringer("to", to).Msg("circuit breaker state changed")
		}),
	)

	c.retrier = retry.LeetCodeRetrier(
		retry.WithMaxAttempts(cfg.MaxAttempts),
		retry.WithInitialDelay(cfg.RetryBaseDelay),
		retry.WithMaxDelay(cfg.RetryMaxDelay),
		retry.WithRetryIf(func(err error) bool {
			return IsUnreachable(err) && !circuitbreaker.IsRejection(err)
		}),
		retry.WithOnRetry(func(attempt int, err error, delay time.Duration) {
			c.logger.Debug().Err(err).Int("attempt", attempt).Dur("delay", delay).Msg("retrying stats fetch")
		}),
	)

	for _, opt := range opts {
		opt(c)
	}
	return c
}

// IsUnreachable reports whether err is a transient Unreachable failure.
func IsUnreachable(err error) bool {
	return errors.Is(err, ErrUnreachable)
}

// Fetch looks up one username. Every error is a *FetchError.
func (c *Client) Fetch(ctx context.Context, username string) (participant.Stats, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return participant.Stats{}, unknownIdentity(username, errors.New("empty username"))
	}

	start := time.Now()
	stats, err := retry.DoWithData(ctx, c.retrier, func(ctx context.Context) (participant.Stats, error) {
		var out participant.Stats
		err := c.breaker.Execute(ctx, func(ctx context.Context) error {
			var fetchErr error
			out, fetchErr = c.fetchOnce(ctx, username)
			return fetchErr
		})
		if circuitbreaker.IsRejection(err) {
			return participant.Stats{}, unreachable(username, err)
		}
		return out, err
	})

	log := c.logger.With().Str(logger.KeyUsername, username).Dur(logger.KeyLatency, time.Since(start)).Logger()
	if err != nil {
		var fe *FetchError
		if !errors.As(err, &fe) {
			err = unreachable(username, err)
		}
		log.Debug().Err(err).Msg("stats fetch failed")
		return participant.Stats{}, err
	}
	log.Debug().Int("total_solved", stats.TotalSolved).Bool("completed_today", stats.CompletedToday).Msg("stats fetched")
	return stats, nil
}

// fetchOnce performs a single rate-limited round trip.
func (c *Client) fetchOnce(ctx context.Context, username string) (participant.Stats, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return participant.Stats{}, unreachable(username, fmt.Errorf("rate limiter: %w", err))
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()
	deadline, _ := ctx.Deadline()

	payload, err := json.Marshal(graphQLRequest{
		OperationName: "userStats",
		Query:         userStatsQuery,
		Variables:     map[string]any{"username": username},
	})
	if err != nil {
		return participant.Stats{}, malformed(username, fmt.Errorf("marshal request: %w", err))
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(c.cfg.GraphQLURL)
	req.Header.SetMethod(fasthttp.MethodPost)
	req.Header.SetContentType("application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Referer", "https://leetcode.com/"+username+"/")
	req.Header.SetUserAgent(c.cfg.UserAgent)
	req.SetBody(payload)

	if err := c.http.DoDeadline(req, resp, deadline); err != nil {
		if errors.Is(err, fasthttp.ErrTimeout) || errors.Is(err, fasthttp.ErrDialTimeout) {
			return participant.Stats{}, unreachable(username, fmt.Errorf("%w: %w", shared.ErrTimeout, err))
		}
		return participant.Stats{}, unreachable(username, err)
	}

	status := resp.StatusCode()
	switch {
	case status == fasthttp.StatusTooManyRequests:
		retryAfter := parseRetryAfter(string(resp.Header.Peek("Retry-After")))
		c.limiter.Penalize(retryAfter)
		return participant.Stats{}, unreachable(username, fmt.Errorf("%w: status 429", shared.ErrRateLimited))
	case status >= 500:
		return participant.Stats{}, unreachable(username, fmt.Errorf("status %d", status))
	}

	var decoded graphQLResponse
	decodeErr := json.Unmarshal(resp.Body(), &decoded)

	if status != fasthttp.StatusOK {
		if decodeErr == nil {
			if _, err := toStats(username, decoded, c.clock.Now(), c.cfg.Location); errors.Is(err, ErrUnknownIdentity) {
				return participant.Stats{}, err
			}
		}
		return participant.Stats{}, malformed(username, fmt.Errorf("unexpected status %d", status))
	}
	if decodeErr != nil {
		return participant.Stats{}, malformed(username, fmt.Errorf("decode response: %w", decodeErr))
	}

	return toStats(username, decoded, c.clock.Now(), c.cfg.Location)
}

func parseRetryAfter(v string) time.Duration {
	secs, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}

// BreakerState exposes the circuit state for health reporting.
func (c *Client) BreakerState() circuitbreaker.State {
	return c.breaker.State()
}
