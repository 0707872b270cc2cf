package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/leetbuddy/challenge-tracker/internal/domain/report"
	"github.com/leetbuddy/challenge-tracker/internal/domain/sweep"
	"github.com/leetbuddy/challenge-tracker/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// KEYS
// ══════════════════════════════════════════════════════════════════════════════

const (
	// KeyLeaderboardSolved is a sorted set of participant id scored by total solved.
	KeyLeaderboardSolved = "leaderboard:solved"
	// KeyLeaderboardEntries is a hash of participant id to standing JSON.
	KeyLeaderboardEntries = "leaderboard:entries"
	// KeyLastSweep holds the latest sweep summary JSON.
	KeyLastSweep = "sweep:last"

	// TTLLeaderboardCache outlives a missed daily sweep.
	TTLLeaderboardCache = 48 * time.Hour
)

// ══════════════════════════════════════════════════════════════════════════════
// LEADERBOARD CACHE
// ══════════════════════════════════════════════════════════════════════════════

// LeaderboardCache replaces the cached leaderboard wholesale after a sweep.
// Dashboards read the leaderboard keys directly; the tracker itself only
// reads the last sweep summary back.
type LeaderboardCache struct {
	client redis.Cmdable
	ttl    time.Duration
	logger zerolog.Logger
}

// NewLeaderboardCache creates a cache over client.
func NewLeaderboardCache(client redis.Cmdable, log zerolog.Logger) *LeaderboardCache {
	return &LeaderboardCache{
		client: client,
		ttl:    TTLLeaderboardCache,
		logger: logger.Component(log, "leaderboard_cache"),
	}
}

// Publish atomically replaces the leaderboard and the last sweep summary.
func (l *LeaderboardCache) Publish(ctx context.Context, standings []report.Standing, result sweep.Result) error {
	summary, err := json.Marshal(result.Summarize())
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCacheSerialization, err)
	}

	members, details, err := leaderboardEntries(standings)
	if err != nil {
		return err
	}

	pipe := l.client.TxPipeline()
	pipe.Del(ctx, KeyLeaderboardSolved, KeyLeaderboardEntries)
	if len(members) > 0 {
		pipe.ZAdd(ctx, KeyLeaderboardSolved, members...)
		pipe.HSet(ctx, KeyLeaderboardEntries, details)
		pipe.Expire(ctx, KeyLeaderboardSolved, l.ttl)
		pipe.Expire(ctx, KeyLeaderboardEntries, l.ttl)
	}
	pipe.Set(ctx, KeyLastSweep, summary, l.ttl)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("publish leaderboard: %w", err)
	}
	l.logger.Debug().Int("entries", len(standings)).Str(logger.KeySweepID, result.ID).Msg("leaderboard published")
	return nil
}

// leaderboardEntries scores each participant by total solved and keys the
// standing JSON by participant id.
func leaderboardEntries(standings []report.Standing) ([]redis.Z, map[string]any, error) {
	members := make([]redis.Z, 0, len(standings))
	details := make(map[string]any, len(standings))
	for _, s := range standings {
		data, err := json.Marshal(s)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: %v", ErrCacheSerialization, err)
		}
		members = append(members, redis.Z{Score: float64(s.TotalSolved), Member: s.ParticipantID})
		details[s.ParticipantID] = data
	}
	return members, details, nil
}

// LastSweep returns the cached summary of the most recent sweep.
func (l *LeaderboardCache) LastSweep(ctx context.Context) (sweep.Summary, error) {
	var s sweep.Summary
	data, err := l.client.Get(ctx, KeyLastSweep).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return s, ErrCacheMiss
		}
		return s, err
	}
	if err := json.Unmarshal(data, &s); err != nil {
		return s, fmt.Errorf("%w: %v", ErrCacheSerialization, err)
	}
	return s, nil
}

// NopPublisher stands in when Redis is disabled.
type NopPublisher struct{}

// Publish does nothing.
func (NopPublisher) Publish(context.Context, []report.Standing, sweep.Result) error { return nil }
