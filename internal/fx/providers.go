package fx

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.uber.org/fx"

	"github.com/leetbuddy/challenge-tracker/config"
	"github.com/leetbuddy/challenge-tracker/internal/application/command"
	"github.com/leetbuddy/challenge-tracker/internal/application/eventhandler"
	"github.com/leetbuddy/challenge-tracker/internal/application/query"
	"github.com/leetbuddy/challenge-tracker/internal/application/tracking"
	"github.com/leetbuddy/challenge-tracker/internal/domain/participant"
	"github.com/leetbuddy/challenge-tracker/internal/domain/sweep"
	"github.com/leetbuddy/challenge-tracker/internal/infrastructure/external/leetcode"
	"github.com/leetbuddy/challenge-tracker/internal/infrastructure/notify"
	"github.com/leetbuddy/challenge-tracker/internal/infrastructure/persistence/jsonfile"
	"github.com/leetbuddy/challenge-tracker/internal/infrastructure/persistence/postgres"
	"github.com/leetbuddy/challenge-tracker/internal/infrastructure/persistence/redis"
	"github.com/leetbuddy/challenge-tracker/internal/infrastructure/persistence/sqlite"
	"github.com/leetbuddy/challenge-tracker/internal/infrastructure/scheduler"
	apihttp "github.com/leetbuddy/challenge-tracker/internal/interface/http"
	"github.com/leetbuddy/challenge-tracker/internal/interface/http/handlers"
	"github.com/leetbuddy/challenge-tracker/pkg/logger"
	"github.com/leetbuddy/challenge-tracker/pkg/timeutil"
)

// connectTimeout bounds connecting to external stores at startup.
const connectTimeout = 30 * time.Second

// ══════════════════════════════════════════════════════════════════════════════
// AMBIENT
// ══════════════════════════════════════════════════════════════════════════════

// ProvideConfig loads .env (if present) and the environment.
func ProvideConfig() (*config.Config, error) {
	return config.Load()
}

// ProvideLogger builds the root logger.
func ProvideLogger(cfg *config.Config) zerolog.Logger {
	format := cfg.Observability.LogFormat
	if cfg.IsDevelopment() && format == "" {
		format = logger.FormatConsole
	}
	return logger.New(logger.Options{
		Level:  cfg.Observability.LogLevel,
		Format: format,
		Output: os.Stdout,
		Caller: !cfg.IsProduction(),
	}).With().Str("app", cfg.App.Name).Str("version", cfg.App.Version).Logger()
}

// ProvideHealthChecker creates the checker that storage and cache register
// their checks with.
func ProvideHealthChecker(cfg *config.Config) *handlers.CompositeHealthChecker {
	return handlers.NewCompositeHealthChecker(cfg.App.Version)
}

// ══════════════════════════════════════════════════════════════════════════════
// STORAGE
// ══════════════════════════════════════════════════════════════════════════════

// Storage is the selected persistence driver.
type Storage struct {
	Driver  string
	Backend participant.Backend
	History sweep.History
}

// ProvideStorage opens the configured driver. The json driver keeps sweep
// history in memory.
func ProvideStorage(lc fx.Lifecycle, cfg *config.Config, health *handlers.CompositeHealthChecker, log zerolog.Logger) (Storage, error) {
	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	switch cfg.Store.Driver {
	case config.StoreSQLite:
		db, err := sqlite.Open(ctx, cfg.Store.SQLitePath, log)
		if err != nil {
			return Storage{}, err
		}
		closeOnStop(lc, log, "sqlite", db)
		health.AddCheck("database", db.PingContext)
		backend := sqlite.NewBackend(db, log)
		return Storage{Driver: cfg.Store.Driver, Backend: backend, History: backend}, nil

	case config.StorePostgres:
		conn, err := postgres.NewConnection(ctx, postgresConfig(cfg.Database))
		if err != nil {
			return Storage{}, err
		}
		lc.Append(fx.Hook{OnStop: func(context.Context) error {
			conn.Close()
			return nil
		}})
		if err := postgres.NewMigrator(conn).Migrate(ctx); err != nil {
			conn.Close()
			return Storage{}, fmt.Errorf("migrate postgres: %w", err)
		}
		health.AddCheck("database", conn.Check)
		return Storage{
			Driver:  cfg.Store.Driver,
			Backend: postgres.NewParticipantBackend(conn, log),
			History: postgres.NewSweepHistory(conn),
		}, nil

	default:
		return Storage{
			Driver:  config.StoreJSON,
			Backend: jsonfile.New(cfg.Store.Path, log),
			History: sweep.NewMemoryHistory(sweep.DefaultHistoryLimit),
		}, nil
	}
}

func closeOnStop(lc fx.Lifecycle, log zerolog.Logger, name string, db *sql.DB) {
	lc.Append(fx.Hook{OnStop: func(context.Context) error {
		if err := db.Close(); err != nil {
			log.Warn().Err(err).Str("driver", name).Msg("error closing database connection")
		}
		return nil
	}})
}

func postgresConfig(c config.DatabaseConfig) postgres.Config {
	pc := postgres.DefaultConfig()
	pc.URL = c.URL
	if c.MaxConns > 0 {
		pc.MaxConns = int32(c.MaxConns)
	}
	if c.MinConns >= 0 {
		pc.MinConns = int32(c.MinConns)
	}
	if c.ConnMaxLifetime > 0 {
		pc.MaxConnLifetime = c.ConnMaxLifetime
	}
	if c.ConnMaxIdleTime > 0 {
		pc.MaxConnIdleTime = c.ConnMaxIdleTime
	}
	if c.QueryTimeout > 0 {
		pc.QueryTimeout = c.QueryTimeout
	}
	return pc
}

// ProvideStore wraps the backend in the in-memory registry and loads it on
// start. A corrupt backing store fails startup.
func ProvideStore(lc fx.Lifecycle, storage Storage, log zerolog.Logger) participant.Store {
	store := participant.NewMemoryStore(storage.Backend)
	lc.Append(fx.Hook{OnStart: func(ctx context.Context) error {
		if err := store.Load(ctx); err != nil {
			return fmt.Errorf("load participants from %s: %w", storage.Driver, err)
		}
		log.Info().Str("driver", storage.Driver).Int("participants", store.Len()).Msg("participants loaded")
		return nil
	}})
	return store
}

// ══════════════════════════════════════════════════════════════════════════════
// LEETCODE
// ══════════════════════════════════════════════════════════════════════════════

// ProvideFetcher creates the LeetCode client.
func ProvideFetcher(cfg *config.Config, log zerolog.Logger) tracking.Fetcher {
	lc := cfg.LeetCode
	c := leetcode.DefaultConfig()
	c.GraphQLURL = lc.GraphQLURL
	c.Timeout = lc.RequestTimeout
	c.Location = cfg.App.Location
	c.RateLimiter.RequestsPerMinute = lc.RateLimit
	c.RateLimiter.Burst = lc.RateLimitBurst
	c.MaxAttempts = lc.MaxRetries
	c.RetryBaseDelay = lc.RetryBaseDelay
	c.RetryMaxDelay = lc.RetryMaxDelay
	c.BreakerThreshold = lc.CircuitBreakerThreshold
	c.BreakerTimeout = lc.CircuitBreakerTimeout
	return leetcode.NewClient(c, log)
}

// ══════════════════════════════════════════════════════════════════════════════
// REPORTING
// ══════════════════════════════════════════════════════════════════════════════

// ProvideLeaderboardCache connects the Redis leaderboard cache. It returns
// nil when Redis is disabled.
func ProvideLeaderboardCache(lc fx.Lifecycle, cfg *config.Config, health *handlers.CompositeHealthChecker, log zerolog.Logger) (*redis.LeaderboardCache, error) {
	if cfg.Redis.Disabled {
		return nil, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()
	client, err := redis.NewClient(ctx, redis.Config{
		URL:          cfg.Redis.URL,
		Host:         cfg.Redis.Host,
		Port:         cfg.Redis.Port,
		Password:     cfg.Redis.Password,
		DB:           cfg.Redis.DB,
		PoolSize:     cfg.Redis.PoolSize,
		DialTimeout:  cfg.Redis.DialTimeout,
		ReadTimeout:  cfg.Redis.ReadTimeout,
		WriteTimeout: cfg.Redis.WriteTimeout,
	})
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{OnStop: func(context.Context) error { return client.Close() }})
	health.AddCheck("cache", func(ctx context.Context) error { return pingRedis(ctx, client) })
	return redis.NewLeaderboardCache(client, log), nil
}

func pingRedis(ctx context.Context, client goredis.Cmdable) error {
	return client.Ping(ctx).Err()
}

// ProvidePublisher publishes to the cache, or nowhere when Redis is disabled.
func ProvidePublisher(cache *redis.LeaderboardCache) eventhandler.LeaderboardPublisher {
	if cache == nil {
		return redis.NopPublisher{}
	}
	return cache
}

// ProvideNotifier posts to the webhook when one is configured and logs
// otherwise.
func ProvideNotifier(cfg *config.Config, log zerolog.Logger) eventhandler.Notifier {
	if cfg.Notify.WebhookURL == "" {
		return notify.NewLogNotifier(log)
	}
	wc := notify.DefaultWebhookConfig(cfg.Notify.WebhookURL)
	wc.Timeout = cfg.Notify.Timeout
	wc.Location = cfg.App.Location
	return notify.Multi{notify.NewLogNotifier(log), notify.NewWebhookNotifier(wc, log)}
}

// ProvideSweepCompletedHandler builds the report hook.
func ProvideSweepCompletedHandler(
	cfg *config.Config,
	storage Storage,
	publisher eventhandler.LeaderboardPublisher,
	notifier eventhandler.Notifier,
	log zerolog.Logger,
) *eventhandler.OnSweepCompletedHandler {
	return eventhandler.NewOnSweepCompletedHandler(
		storage.History,
		publisher,
		notifier,
		eventhandler.SweepCompletedConfig{LeaderboardSize: cfg.HTTP.LeaderboardSize},
		log,
	)
}

// ══════════════════════════════════════════════════════════════════════════════
// SERVICES
// ══════════════════════════════════════════════════════════════════════════════

// ProvideRunner creates the sweep runner.
func ProvideRunner(cfg *config.Config, log zerolog.Logger) *tracking.Runner {
	return tracking.NewRunner(tracking.RunnerConfig{MaxConcurrent: cfg.LeetCode.MaxConcurrentFetches}, log)
}

// ProvideEngine creates the engine. In-flight sweeps are awaited on stop.
func ProvideEngine(
	lc fx.Lifecycle,
	runner *tracking.Runner,
	store participant.Store,
	fetcher tracking.Fetcher,
	handler *eventhandler.OnSweepCompletedHandler,
	log zerolog.Logger,
) *tracking.Engine {
	engine := tracking.NewEngine(runner, store, fetcher, handler.Hook(), log)
	lc.Append(fx.Hook{OnStop: engine.Close})
	return engine
}

// ProvideCommands creates the registration service.
func ProvideCommands(store participant.Store, fetcher tracking.Fetcher, log zerolog.Logger) *command.Service {
	return command.NewService(store, fetcher, timeutil.SystemClock{}, log)
}

// ProvideQueries creates the read service.
func ProvideQueries(cfg *config.Config, store participant.Store, storage Storage) *query.Service {
	return query.NewService(store, storage.History, cfg.HTTP.LeaderboardSize)
}

// ══════════════════════════════════════════════════════════════════════════════
// OUTER SURFACES
// ══════════════════════════════════════════════════════════════════════════════

// ProvideScheduler creates the daily trigger and starts it with the app
// when enabled.
func ProvideScheduler(lc fx.Lifecycle, cfg *config.Config, engine *tracking.Engine, log zerolog.Logger) (*scheduler.DailyTrigger, error) {
	trigger, err := scheduler.New(scheduler.Config{
		Hour:         cfg.Scheduler.TriggerHour,
		Minute:       cfg.Scheduler.TriggerMinute,
		Location:     cfg.App.Location,
		TickInterval: cfg.Scheduler.TickInterval,
	}, func(ctx context.Context) error {
		_, err := engine.ScheduledSweep(ctx)
		return err
	}, log)
	if err != nil {
		return nil, err
	}

	if !cfg.Scheduler.Enabled {
		log.Warn().Msg("daily scheduler disabled")
		return trigger, nil
	}
	lc.Append(fx.Hook{
		// The start context expires once startup completes; the loop must
		// outlive it.
		OnStart: func(context.Context) error { return trigger.Start(context.Background()) },
		OnStop:  trigger.Stop,
	})
	return trigger, nil
}

// ProvideHTTPServer creates the JSON API and starts it with the app when
// enabled.
func ProvideHTTPServer(
	lc fx.Lifecycle,
	cfg *config.Config,
	queries *query.Service,
	commands *command.Service,
	engine *tracking.Engine,
	cache *redis.LeaderboardCache,
	health *handlers.CompositeHealthChecker,
	log zerolog.Logger,
) *apihttp.Server {
	hc := apihttp.DefaultConfig()
	hc.Addr = cfg.HTTP.Addr
	hc.ReadTimeout = cfg.HTTP.ReadTimeout
	hc.WriteTimeout = cfg.HTTP.WriteTimeout
	hc.AllowedOrigins = cfg.HTTP.AllowedOrigins

	deps := apihttp.Dependencies{
		Queries:  queries,
		Commands: commands,
		Sweeper:  engine,
		Health:   health,
		Logger:   log,
	}
	if cache != nil {
		deps.Cache = cache
	}
	srv := apihttp.NewServer(hc, deps)
	if cfg.HTTP.Enabled {
		lc.Append(fx.Hook{OnStart: srv.Start, OnStop: srv.Shutdown})
	}
	return srv
}
