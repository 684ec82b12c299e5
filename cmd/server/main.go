package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/LucasSchemes/servidor-propaganda/internal/adapter/httpserver"
	"github.com/LucasSchemes/servidor-propaganda/internal/adapter/memory"
	"github.com/LucasSchemes/servidor-propaganda/internal/adapter/metrics"
	"github.com/LucasSchemes/servidor-propaganda/internal/adapter/postgres"
	"github.com/LucasSchemes/servidor-propaganda/internal/adapter/redis"
	"github.com/LucasSchemes/servidor-propaganda/internal/app"
	"github.com/LucasSchemes/servidor-propaganda/internal/broadcast"
	"github.com/LucasSchemes/servidor-propaganda/internal/domain"
	"github.com/LucasSchemes/servidor-propaganda/internal/platform/config"
	"github.com/LucasSchemes/servidor-propaganda/internal/platform/logging"
	"github.com/LucasSchemes/servidor-propaganda/internal/platform/retry"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jonboulle/clockwork"
	goredis "github.com/redis/go-redis/v9"
)

const (
	connectTimeout  = 60 * time.Second
	shutdownTimeout = 10 * time.Second
)

var startupRetry = retry.Policy{
	MaxAttempts:    8,
	InitialBackoff: 500 * time.Millisecond,
	MaxBackoff:     10 * time.Second,
	OnRetry: func(attempt int, err error, backoff time.Duration) {
		slog.Warn("Backing service not ready, retrying", "attempt", attempt, "backoff", backoff, "error", err)
	},
}

func setupConfig() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		// Use log before slog is initialized
		log.Fatalf("Failed to load config: %v", err)
	}
	return cfg
}

// stores are the durable repositories. pool is nil for the in-memory variant.
type stores struct {
	slides       domain.SlideRepository
	users        domain.UserRepository
	pool         *pgxpool.Pool
	healthChecks []httpserver.HealthCheck
}

// setupStore returns the PostgreSQL stores when DATABASE_URL is set, otherwise the
// in-memory ones.
func setupStore(cfg *config.Config, storeMetrics *metrics.StoreMetrics) stores {
	if cfg.DatabaseURL == "" {
		slog.Warn("DATABASE_URL not set, slides and accounts are kept in memory and lost on restart")
		return stores{slides: memory.NewSlideRepo(), users: memory.NewUserRepo()}
	}

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	tracer := postgres.NewMetricsTracer(storeMetrics)
	pool, err := retry.Do(ctx, startupRetry, func(ctx context.Context) (*pgxpool.Pool, error) {
		return postgres.Connect(ctx, cfg.DatabaseURL, tracer)
	})
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}

	if err := postgres.RunMigrationsWithLock(ctx, pool); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		os.Exit(1)
	}

	slides := postgres.NewSlideRepo(pool)
	return stores{
		slides:       slides,
		users:        postgres.NewUserRepo(pool),
		pool:         pool,
		healthChecks: []httpserver.HealthCheck{{Name: "database", Check: slides.Ping}},
	}
}

func setupRedis(cfg *config.Config, m *metrics.NotifierMetrics) *goredis.Client {
	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	client, err := retry.Do(ctx, startupRetry, func(ctx context.Context) (*goredis.Client, error) {
		return redis.NewClient(ctx, cfg.RedisURL, m)
	})
	if err != nil {
		slog.Error("Failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	return client
}

func runGracefulShutdown(srv *httpserver.Server, stopWorkers context.CancelFunc) <-chan struct{} {
	done := make(chan struct{})
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		slog.Info("Shutdown signal received, cleaning up...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("Server shutdown error", "error", err)
		}

		stopWorkers()
		close(done)
	}()

	return done
}

func main() {
	clock := clockwork.NewRealClock()

	cfg := setupConfig()

	logging.InitLogger(cfg.LogLevel, cfg.LogFormat)
	instanceID := uuid.NewString()
	slog.Info("Application starting", "env", cfg.AppEnv, "port", cfg.Port, "instance_id", instanceID)

	reg := metrics.NewRegistry()

	storeMetrics := metrics.NewStoreMetrics(reg)
	st := setupStore(cfg, storeMetrics)
	if st.pool != nil {
		defer st.pool.Close()
	}
	repo, healthChecks := st.slides, st.healthChecks

	broadcastMetrics := metrics.NewBroadcastMetrics(reg)
	registry := broadcast.NewRegistry(broadcastMetrics)
	hub := broadcast.NewHub(repo, registry, clock, broadcastMetrics)
	localNotifier := app.NewLocalNotifier(hub)

	workerCtx, stopWorkers := context.WithCancel(context.Background())
	defer stopWorkers()

	var notifier domain.ChangeNotifier = localNotifier
	reaper := app.NewReaper(repo, clock, cfg.ReapInterval, storeMetrics)

	if cfg.RedisURL != "" {
		notifierMetrics := metrics.NewNotifierMetrics(reg)
		redisClient := setupRedis(cfg, notifierMetrics)
		defer func() { _ = redisClient.Close() }()

		redisNotifier := redis.NewNotifier(redisClient, localNotifier, instanceID, notifierMetrics)
		notifier = redisNotifier
		go func() {
			if err := redisNotifier.Run(workerCtx); err != nil {
				slog.Error("Slide change subscription stopped", "error", err)
			}
		}()

		lock := redis.NewReapLock(redisClient, instanceID, cfg.ReapInterval/2)
		reaper = reaper.WithLock(lock)
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			if err := lock.Release(ctx); err != nil {
				slog.Warn("Failed to release reap lock", "error", err)
			}
		}()

		healthChecks = append(healthChecks, httpserver.HealthCheck{
			Name:  "redis",
			Check: func(ctx context.Context) error { return redisClient.Ping(ctx).Err() },
		})
	} else {
		slog.Info("REDIS_URL not set, slide changes reach this instance only")
	}

	slides := app.NewSlideService(repo, notifier, clock)
	auth := app.NewAuthService(st.users, clock)

	heartbeat := broadcast.NewHeartbeat(registry, clock, cfg.HeartbeatInterval)
	go heartbeat.Run(workerCtx)
	go reaper.Run(workerCtx)

	srv := httpserver.NewServer(cfg, slides, auth, hub, httpserver.Options{
		HealthChecks:   healthChecks,
		HTTPMetrics:    metrics.NewHTTPMetrics(reg),
		MetricsHandler: metrics.Handler(reg),
		Clock:          clock,
	})

	done := runGracefulShutdown(srv, stopWorkers)

	if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("Server error", "error", err)
		os.Exit(1)
	}

	<-done
	hub.Close()
	localNotifier.Wait()
	slog.Info("Shutdown complete")
}
