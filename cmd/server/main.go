package main // entry point of the gym class booking API

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

	"github.com/joho/godotenv"

	"github.com/iliyamo/gym-class-booking/internal/config"
	"github.com/iliyamo/gym-class-booking/internal/database"
	"github.com/iliyamo/gym-class-booking/internal/handler"
	"github.com/iliyamo/gym-class-booking/internal/middleware"
	"github.com/iliyamo/gym-class-booking/internal/observability"
	"github.com/iliyamo/gym-class-booking/internal/queue"
	"github.com/iliyamo/gym-class-booking/internal/repository"
	"github.com/iliyamo/gym-class-booking/internal/router"
	"github.com/iliyamo/gym-class-booking/internal/service"
)

func main() {
	_ = godotenv.Load() // .env is optional; real env vars win
	cfg := config.Load()
	slog.SetDefault(observability.NewLogger(cfg.Env, cfg.LogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		slog.Error("server exited", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config) error {
	db, err := openDB(cfg)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := database.Migrate(ctx, db, cfg.DBDriver); err != nil {
		return err
	}

	tel, err := config.LoadTelemetryConfig()
	if err != nil {
		return err
	}
	if tel.Enabled {
		shutdown, err := observability.InitTracer(ctx, tel.ServiceName, tel.Endpoint, cfg.Env)
		if err != nil {
			slog.Warn("tracing disabled", "err", err)
		} else {
			defer func() {
				sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = shutdown(sctx)
			}()
		}
	}

	events := startBroker(ctx)
	if c, ok := events.(interface{ Close() error }); ok {
		defer c.Close()
	}

	rdb := config.NewRedisClient()
	if rdb != nil {
		defer rdb.Close()
	}
	cacheCfg := config.LoadCacheConfig()

	users := repository.NewUserRepo(db)
	members := repository.NewMemberRepo(db)
	classes := repository.NewClassRepo(db)
	bookings := repository.NewBookingRepo(db)
	payments := repository.NewPaymentRepo(db)

	// every write that moves a seat count purges the cached schedule
	var purger service.CacheInvalidator
	if p := middleware.NewCachePurger(cacheCfg, rdb); p != nil {
		purger = p
	}

	ledger := service.NewCapacityLedger(classes)
	directory := service.NewMemberDirectory(users, members, bookings, ledger, events, purger, cfg.BcryptCost)
	engine := service.NewBookingEngine(members, classes, bookings, ledger, events, purger)
	gate := service.NewEligibilityGate(members, payments)
	payLedger := service.NewPaymentLedger(members, payments, events)
	catalog := service.NewScheduleCatalog(classes, users, purger)

	if err := directory.EnsureAdmin(ctx, cfg.AdminEmail, cfg.AdminPass); err != nil {
		return err
	}

	e := router.New(router.Deps{
		JWTSecret: cfg.JWTSecret,
		Auth:      handler.NewAuthHandler(cfg, directory),
		Classes:   handler.NewClassHandler(catalog),
		Bookings:  handler.NewBookingHandler(engine),
		Members:   handler.NewMemberHandler(directory, gate),
		Payments:  handler.NewPaymentHandler(payLedger),
		RateLimit: middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb),
		Cache:     middleware.NewRedisCache(cacheCfg, rdb),
	})

	errc := make(chan error, 1)
	go func() {
		addr := ":" + cfg.Port
		slog.Info("listening", "addr", addr, "env", cfg.Env, "db", cfg.DBDriver)
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	slog.Info("shutting down")
	return e.Shutdown(sctx)
}

func openDB(cfg config.Config) (*sql.DB, error) {
	if cfg.DBDriver == database.DriverSQLite {
		return database.OpenSQLite(cfg.DBDSN)
	}
	return database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
}

// startBroker connects the event publisher and, when enabled, the audit
// consumer. A broker that is down at startup downgrades to dropping events.
func startBroker(ctx context.Context) service.EventPublisher {
	bc, err := config.LoadBrokerConfig()
	if err != nil {
		slog.Warn("broker config invalid, events disabled", "err", err)
		return queue.Discard{}
	}
	if !bc.Enabled {
		return queue.Discard{}
	}
	if bc.ConsumerEnabled {
		consumer := queue.NewAuditConsumer(bc.URL, bc.Exchange, bc.AuditQueue, bc.AuditLogPath)
		go func() {
			if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				slog.Error("audit consumer stopped", "err", err)
			}
		}()
	}
	pub, err := queue.NewPublisher(bc.URL, bc.Exchange)
	if err != nil {
		slog.Warn("rabbitmq unavailable, events disabled", "url", bc.URL, "err", err)
		return queue.Discard{}
	}
	return pub
}
