package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"golang.org/x/sync/errgroup"

	"caretrail/internal/audit"
	auditHandler "caretrail/internal/audit/handler"
	memorystore "caretrail/internal/audit/store/memory"
	postgresstore "caretrail/internal/audit/store/postgres"
	"caretrail/internal/platform/config"
	"caretrail/internal/platform/httpserver"
	"caretrail/internal/platform/logger"
	platformredis "caretrail/internal/platform/redis"
	"caretrail/internal/policy"
	"caretrail/internal/principal"
	"caretrail/internal/referrals"
	httptransport "caretrail/internal/transport/http"
	"caretrail/internal/users"
	"caretrail/pkg/platform/middleware/identity"
)

// main wires high-level dependencies and keeps the server lifecycle small.
// Business logic lives in the internal service packages.
func main() {
	cfg := config.FromEnv()
	log := logger.New()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var (
		store      audit.Store
		permSource principal.PermissionSource
		db         *sql.DB
	)
	if cfg.Postgres.DSN != "" {
		var err error
		db, err = sql.Open("postgres", cfg.Postgres.DSN)
		if err != nil {
			log.Error("open postgres", "error", err)
			os.Exit(1)
		}
		db.SetMaxOpenConns(cfg.Postgres.MaxOpenConns)
		db.SetConnMaxLifetime(cfg.Postgres.ConnMaxLifetime)
		if err := db.PingContext(ctx); err != nil {
			log.Error("ping postgres", "error", err)
			os.Exit(1)
		}
		if _, err := db.ExecContext(ctx, postgresstore.Schema); err != nil {
			log.Error("apply schema", "error", err)
			os.Exit(1)
		}
		defer db.Close()

		store = postgresstore.New(db)
		permSource = principal.NewPostgresSource(db)
	} else {
		log.Warn("no postgres DSN configured, using in-memory stores")
		store = memorystore.NewInMemoryStore()
		permSource = principal.NewInMemorySource()
	}

	redisClient, err := platformredis.New(cfg.Redis)
	if err != nil {
		log.Error("connect redis", "error", err)
		os.Exit(1)
	}
	if redisClient != nil {
		defer redisClient.Close()
		permSource = principal.NewRedisSource(redisClient.Client, permSource, cfg.Audit.PermissionCacheTTL, log)
	}
	permSource = principal.NewCachedSource(permSource, 1024, cfg.Audit.PermissionCacheTTL)

	metrics := audit.NewMetrics()
	recorder := audit.NewRecorder(cfg.Audit.QueueSize, metrics, log)
	worker := audit.NewWorker(store, recorder.Inbox(), metrics, log)

	usersSvc := users.NewService()
	referralsSvc := referrals.NewService()

	engine := policy.NewEngine()
	capture := audit.NewCapture(usersSvc, log)
	pipeline := audit.NewPipeline(engine, capture, recorder, metrics, log)
	query := audit.NewQueryService(store, cfg.Audit.ExportMaxRows)

	extractor := identity.NewExtractor(cfg.JWTSigningKey, cfg.JWTIssuer, permSource, log)

	router := httptransport.NewRouter(httptransport.Deps{
		Logger:    log,
		Identity:  extractor,
		Audit:     auditHandler.New(query, log),
		Users:     users.NewHandler(usersSvc, pipeline, log),
		Referrals: referrals.NewHandler(referralsSvc, pipeline, log),
		Health: func() error {
			if db != nil {
				if err := db.Ping(); err != nil {
					return err
				}
			}
			if redisClient != nil {
				return redisClient.Health(context.Background())
			}
			return nil
		},
	})

	srv := httpserver.New(cfg.Addr, router)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		err := worker.Run(gctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		log.Info("starting caretrail", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error("server exited", "error", err)
		os.Exit(1)
	}
	log.Info("shutdown complete")
}
