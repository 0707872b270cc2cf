package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/leetbuddy/challenge-tracker/internal/domain/report"
	"github.com/leetbuddy/challenge-tracker/pkg/logger"
	"github.com/leetbuddy/challenge-tracker/pkg/retry"
)

// ══════════════════════════════════════════════════════════════════════════════
// CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// WebhookConfig configures a WebhookNotifier.
type WebhookConfig struct {
	URL      string
	Timeout  time.Duration
	Location *time.Location

	RetryAttempts int
	RetryDelay    time.Duration
}

// DefaultWebhookConfig returns sensible defaults for url.
func DefaultWebhookConfig(url string) WebhookConfig {
	return WebhookConfig{
		URL:           url,
		Timeout:       10 * time.Second,
		Location:      time.UTC,
		RetryAttempts: 3,
		RetryDelay:    time.Second,
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// WEBHOOK NOTIFIER
// ══════════════════════════════════════════════════════════════════════════════

// WebhookNotifier posts reports to a Discord-compatible webhook.
type WebhookNotifier struct {
	cfg        WebhookConfig
	httpClient *http.Client
	retrier    *retry.Retrier
	logger     zerolog.Logger
}

// NewWebhookNotifier creates a WebhookNotifier.
func NewWebhookNotifier(cfg WebhookConfig, log zerolog.Logger) *WebhookNotifier {
	def := DefaultWebhookConfig(cfg.URL)
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.Location == nil {
		cfg.Location = def.Location
	}
	if cfg.RetryAttempts <= 0 {
		cfg.RetryAttempts = def.RetryAttempts
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = def.RetryDelay
	}

	n := &WebhookNotifier{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logger.Component(log, "notify"),
	}
	n.retrier = retry.New(
		retry.WithMaxAttempts(cfg.RetryAttempts),
		retry.WithInitialDelay(cfg.RetryDelay),
		retry.WithMaxDelay(30*time.Second),
		retry.WithOnRetry(func(attempt int, err error, delay time.Duration) {
			n.logger.Warn().Err(err).Int("attempt", attempt).Dur("delay", delay).Msg("retrying webhook delivery")
		}),
	)
	return n
}

// APIError is a non-2xx webhook response.
type APIError struct {
	StatusCode int
	Body       string
	RetryAfter time.Duration
}

func (e *APIError) Error() string {
	return fmt.Sprintf("webhook returned %d: %s", e.StatusCode, e.Body)
}

// Notify implements Notifier.
func (n *WebhookNotifier) Notify(ctx context.Context, r report.IncompleteReport) error {
	body, err := json.Marshal(BuildMessage(r, n.cfg.Location))
	if err != nil {
		return fmt.Errorf("marshal webhook message: %w", err)
	}

	err = n.retrier.Do(ctx, func(ctx context.Context) error {
		return n.post(ctx, body)
	})
	if err != nil {
		return fmt.Errorf("deliver report %s: %w", r.SweepID, err)
	}
	n.logger.Info().Str(logger.KeySweepID, r.SweepID).
		Int("incomplete", len(r.Incomplete)).
		Int("status_unknown", len(r.StatusUnknown)).
		Msg("report delivered")
	return nil
}

func (n *WebhookNotifier) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return retry.Permanent(fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return retry.Retryable(fmt.Errorf("http request: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	apiErr := &APIError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(snippet))}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		if secs, err := strconv.ParseFloat(resp.Header.Get("Retry-After"), 64); err == nil && secs > 0 {
			apiErr.RetryAfter = time.Duration(secs * float64(time.Second))
			timer := time.NewTimer(apiErr.RetryAfter)
			defer timer.Stop()
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-timer.C:
			}
		}
		return retry.Retryable(apiErr)
	case resp.StatusCode >= 500:
		return retry.Retryable(apiErr)
	default:
		return apiErr
	}
}
