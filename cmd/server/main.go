package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"storygate/internal/audit"
	"storygate/internal/auth/handler"
	"storygate/internal/auth/keycache"
	"storygate/internal/auth/metrics"
	"storygate/internal/auth/provider"
	"storygate/internal/auth/service"
	"storygate/internal/auth/session"
	"storygate/internal/auth/store"
	sessionstore "storygate/internal/auth/store/session"
	userstore "storygate/internal/auth/store/user"
	"storygate/internal/auth/token"
	"storygate/internal/auth/tokenhash"
	"storygate/internal/auth/validator"
	"storygate/internal/platform/circuit"
	"storygate/internal/platform/config"
	"storygate/internal/platform/httpserver"
	"storygate/internal/platform/logger"
	redisplatform "storygate/internal/platform/redis"
	httptransport "storygate/internal/transport/http"
)

// main wires the dependencies and owns the server lifecycle. Stores degrade
// to in-memory implementations when no Postgres or Redis is configured, so
// the binary runs standalone in development.
func main() {
	cfg := config.FromEnv()
	log := logger.New()
	ctx := context.Background()

	m := metrics.New()

	var checks []httptransport.HealthCheck

	db := openPostgres(ctx, cfg.PostgresURL, log)
	if db != nil {
		defer db.Close()
		checks = append(checks, httptransport.HealthCheck{Name: "postgres", Check: db.PingContext})
	}

	redisClient, err := redisplatform.New(cfg.RedisURL)
	if err != nil {
		log.Error("redis connection failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
	if redisClient != nil {
		defer redisClient.Close()
		checks = append(checks, httptransport.HealthCheck{Name: "redis", Check: redisClient.Health})
	}

	users, sessions := buildStores(cfg, db, redisClient, m, log)

	registry := provider.NewRegistry(cfg.Google, cfg.Apple)
	keys := buildKeyCache(ctx, cfg, registry, m, log)

	verifier := validator.New(registry, keys)
	issuer := token.NewIssuer(cfg.JWT.Secret, cfg.JWT.Issuer, cfg.JWT.AccessTTL, cfg.JWT.RefreshTTL)
	hasher := tokenhash.NewHasher(cfg.Sessions.BcryptCost)
	manager := session.NewManager(sessions, hasher,
		session.WithMaxPerUser(cfg.Sessions.MaxPerUser),
		session.WithTTL(cfg.Sessions.TTL),
		session.WithLogger(log),
	)

	auditor := buildAuditPublisher(ctx, cfg, log)
	defer auditor.Close()

	svc := service.NewService(verifier, issuer, manager, users,
		service.WithAuditPublisher(auditor),
		service.WithMetrics(m),
		service.WithLogger(log),
	)

	router := httptransport.NewRouter(handler.New(svc, log), log, checks...)
	srv := httpserver.New(cfg.Addr, router)

	log.Info("starting storygate", slog.String("addr", cfg.Addr))

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
	log.Info("server stopped")
}

// openPostgres returns nil when no URL is configured.
func openPostgres(ctx context.Context, url string, log *slog.Logger) *sql.DB {
	if url == "" {
		return nil
	}
	db, err := sql.Open("pgx", url)
	if err != nil {
		log.Error("postgres open failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		log.Error("postgres ping failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
	return db
}

func buildStores(cfg config.Config, db *sql.DB, redisClient *redisplatform.Client, m *metrics.Metrics, log *slog.Logger) (store.UserStore, store.SessionStore) {
	var users store.UserStore
	if db != nil {
		users = userstore.NewPostgres(db)
	} else {
		log.Warn("no postgres configured, using in-memory user store")
		users = userstore.NewMemoryStore()
	}

	var sessions store.SessionStore
	switch {
	case redisClient != nil:
		sessions = sessionstore.NewRedis(redisClient.Client)
	case db != nil:
		sessions = sessionstore.NewPostgres(db)
	default:
		log.Warn("no redis or postgres configured, using in-memory session store")
		sessions = sessionstore.NewMemoryStore()
	}

	breaker := circuit.New("session-store",
		circuit.WithFailureThreshold(cfg.Breaker.FailureThreshold),
		circuit.WithWindow(cfg.Breaker.Window),
		circuit.WithCooldown(cfg.Breaker.Cooldown),
		circuit.WithHalfOpenMax(cfg.Breaker.HalfOpenMax),
		circuit.WithCallTimeout(cfg.Breaker.CallTimeout),
		circuit.WithSink(m),
	)
	return users, store.NewGuardedSessionStore(sessions, breaker)
}

// buildKeyCache wires the JWKS fetcher behind a per-provider shared breaker
// and pre-warms the cache so the first sign-in does not pay the fetch.
func buildKeyCache(ctx context.Context, cfg config.Config, registry *provider.Registry, m *metrics.Metrics, log *slog.Logger) *keycache.Cache {
	breaker := circuit.New("jwks",
		circuit.WithFailureThreshold(cfg.Breaker.FailureThreshold),
		circuit.WithWindow(cfg.Breaker.Window),
		circuit.WithCooldown(cfg.Breaker.Cooldown),
		circuit.WithHalfOpenMax(cfg.Breaker.HalfOpenMax),
		circuit.WithCallTimeout(cfg.Breaker.CallTimeout),
		circuit.WithSink(m),
	)
	fetcher := keycache.NewGuardedFetcher(keycache.NewHTTPFetcher(nil), breaker)
	keys := keycache.New(fetcher, keycache.WithTTL(cfg.KeyCache.TTL))

	warmCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	for _, p := range registry.All() {
		if err := keys.Warm(warmCtx, p); err != nil {
			// Sign-ins fetch lazily; a cold cache at startup is not fatal.
			log.Warn("key cache warm-up failed",
				slog.String("provider", string(p.Name)),
				slog.String("error", err.Error()),
			)
		}
	}
	return keys
}

func buildAuditPublisher(ctx context.Context, cfg config.Config, log *slog.Logger) audit.Publisher {
	if len(cfg.KafkaBrokers) == 0 {
		log.Warn("no kafka brokers configured, security events will not be published")
		return audit.NopPublisher{}
	}
	publisher, err := audit.NewKafkaPublisher(ctx, cfg.KafkaBrokers, cfg.AuditTopic, log)
	if err != nil {
		log.Error("kafka publisher init failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
	return publisher
}
