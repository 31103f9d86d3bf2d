// Package server assembles the tripkey HTTP service from configuration.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"tripkey/internal/access"
	"tripkey/internal/credential"
	credstore "tripkey/internal/credential/store"
	dirstore "tripkey/internal/directory/store"
	"tripkey/internal/notification"
	"tripkey/internal/platform/config"
	"tripkey/internal/platform/database"
	"tripkey/internal/platform/health"
	"tripkey/internal/platform/kafka/producer"
	platformredis "tripkey/internal/platform/redis"
	"tripkey/internal/platform/tracer"
	"tripkey/internal/ratelimit"
	limitstore "tripkey/internal/ratelimit/store"
	"tripkey/internal/session"
	httptransport "tripkey/internal/transport/http"
	triphandler "tripkey/internal/trip/handler"
	tripmetrics "tripkey/internal/trip/metrics"
	tripservice "tripkey/internal/trip/service"
	"tripkey/migrations"
	"tripkey/pkg/platform/circuit"
	"tripkey/pkg/platform/httputil"
)

const redisStatsInterval = 15 * time.Second

// App is a fully wired server. Handler can be served directly in tests.
type App struct {
	Handler  http.Handler
	Sessions *session.Service

	cfg      *config.Config
	logger   *slog.Logger
	pool     *database.Pool
	redis    *platformredis.Client
	producer *producer.Producer
}

// Build wires stores, services, and the router. Postgres, Redis and Kafka
// are used when configured; otherwise in-memory backends take their place.
func Build(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	app := &App{cfg: cfg, logger: logger}
	httputil.ExposeInternalErrors = cfg.IsDevelopment()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	healthHandler := health.New(cfg.Environment)
	tr := tracer.NewOTel()

	var (
		directory   tripservice.DirectoryStore
		credentials credential.Store
		tx          tripservice.StoreTx
	)
	pool, err := database.New(ctx, database.DefaultConfig(cfg.DatabaseURL))
	if err != nil {
		return nil, err
	}
	if pool != nil {
		app.pool = pool
		if err := pool.Migrate(ctx, migrations.FS); err != nil {
			app.Close(ctx)
			return nil, err
		}
		directory = dirstore.NewPostgres(pool.DB())
		credentials = credstore.NewPostgres(pool.DB())
		tx = newPostgresTx(pool.DB())
		healthHandler.Require("postgres", pool.Health)
		healthHandler.SetBackend("directory", "postgres")
		logger.Info("using postgres stores")
	} else {
		directory = dirstore.NewInMemory()
		credentials = credstore.NewInMemory()
		tx = tripservice.NewInMemoryStoreTx()
		healthHandler.SetBackend("directory", "memory")
		logger.Info("using in-memory stores")
	}

	var counters ratelimit.CounterStore
	redisClient, err := platformredis.New(ctx, cfg.Redis, reg)
	if err != nil {
		app.Close(ctx)
		return nil, err
	}
	if redisClient != nil {
		app.redis = redisClient
		counters = limitstore.NewRedis(redisClient.Client)
		healthHandler.Require("redis", redisClient.Health)
		healthHandler.SetBackend("rate_limit", "redis")
	} else {
		counters = limitstore.NewInMemory()
		healthHandler.SetBackend("rate_limit", "memory")
	}

	var publisher notification.Publisher
	if len(cfg.Kafka.Brokers) > 0 {
		p, err := producer.New(producer.Config{
			Brokers:         strings.Join(cfg.Kafka.Brokers, ","),
			Acks:            cfg.Kafka.Acks,
			Retries:         cfg.Kafka.Retries,
			DeliveryTimeout: cfg.Kafka.DeliveryTimeout,
		}, logger)
		if err != nil {
			app.Close(ctx)
			return nil, fmt.Errorf("kafka producer: %w", err)
		}
		app.producer = p
		publisher = notification.NewKafkaPublisher(p, cfg.Kafka.NotificationTopic)
		healthHandler.Observe("kafka", p.Health)
		healthHandler.SetBackend("notifications", "kafka")
	} else {
		publisher = notification.NewMemoryFeed(notification.DefaultFeedSize)
		healthHandler.SetBackend("notifications", "memory")
	}

	memberLimiter, err := ratelimit.NewLimiter(counters, cfg.RateLimit.Max, cfg.RateLimit.Window)
	if err != nil {
		app.Close(ctx)
		return nil, err
	}
	joinLimiter, err := ratelimit.NewLimiter(counters, cfg.RateLimit.JoinMax, cfg.RateLimit.Window)
	if err != nil {
		app.Close(ctx)
		return nil, err
	}

	sessions := session.New(cfg.Session.SigningKey, cfg.Session.Issuer, cfg.Session.TTL)
	issuer := credential.NewIssuer(credentials,
		credential.WithHashCost(cfg.PIN.HashCost),
		credential.WithLogger(logger),
		credential.WithTracer(tr),
	)
	svc := tripservice.New(directory, issuer, credential.NewLinearScanResolver(credentials, tr), sessions,
		tripservice.WithLogger(logger),
		tripservice.WithMetrics(tripmetrics.New(reg)),
		tripservice.WithTx(tx),
		tripservice.WithNotifier(notification.NewBestEffort(publisher, logger,
			notification.WithBreaker(circuit.New("notifications")))),
	)

	app.Sessions = sessions
	app.Handler = httptransport.NewRouter(httptransport.Deps{
		Logger:        logger,
		Registry:      reg,
		Health:        healthHandler,
		Trip:          triphandler.New(svc, logger),
		Tokens:        sessions,
		Authorizer:    access.NewAuthorizer(directory, tr),
		MemberLimiter: memberLimiter,
		JoinLimiter:   joinLimiter,
	}, httptransport.Options{
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		TrustForwardedFor: cfg.TrustForwardedFor,
		MaxBodyBytes:      cfg.MaxBodyBytes,
	})
	return app, nil
}

// Run serves HTTP until ctx is cancelled, then shuts down gracefully.
func (a *App) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              a.cfg.Addr,
		Handler:           a.Handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.logger.Info("starting http server", "addr", a.cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	if a.redis != nil {
		g.Go(func() error {
			return a.redis.RunPoolStats(gctx, redisStatsInterval)
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		a.logger.Info("shutting down server gracefully")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.cfg.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown: %w", err)
		}
		return nil
	})

	err := g.Wait()
	a.Close(context.WithoutCancel(ctx))
	return err
}

// Close releases backend connections. Safe to call on a partly built App.
func (a *App) Close(ctx context.Context) {
	if a.producer != nil {
		if err := a.producer.Close(ctx); err != nil {
			a.logger.Warn("kafka producer close failed", "error", err)
		}
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Warn("redis close failed", "error", err)
		}
	}
	if err := a.pool.Close(); err != nil {
		a.logger.Warn("database close failed", "error", err)
	}
}
