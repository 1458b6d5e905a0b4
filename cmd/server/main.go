package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/oddspool/market-engine/internal/api"
	"github.com/oddspool/market-engine/internal/archive"
	"github.com/oddspool/market-engine/internal/config"
	"github.com/oddspool/market-engine/internal/engine"
	"github.com/oddspool/market-engine/internal/limits"
	"github.com/oddspool/market-engine/internal/lock"
	"github.com/oddspool/market-engine/internal/metrics"
	"github.com/oddspool/market-engine/internal/oracle"
	"github.com/oddspool/market-engine/internal/store"
	"github.com/oddspool/market-engine/internal/vault"
)

func main() {
	configPath := flag.String("config", "engine.toml", "path to TOML config file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		slog.Error("market-engine failed", "err", err)
		os.Exit(1)
	}
	fmt.Println("market-engine stopped")
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	level, _ := cfg.SlogLevel()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// --- Backends ---
	var (
		st      store.Store
		vlt     vault.Vault
		orc     oracle.Oracle
		devOrc  *oracle.Memory
		cleanup []func()
	)
	defer func() {
		for i := len(cleanup) - 1; i >= 0; i-- {
			cleanup[i]()
		}
	}()

	if cfg.Postgres.DSN != "" {
		poolCfg, err := pgxpool.ParseConfig(cfg.Postgres.DSN)
		if err != nil {
			return fmt.Errorf("postgres dsn: %w", err)
		}
		poolCfg.MaxConns = int32(cfg.Postgres.MaxConns)
		pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
		if err != nil {
			return fmt.Errorf("database connection failed: %w", err)
		}
		cleanup = append(cleanup, pool.Close)

		pg := store.NewPostgresStore(pool)
		if cfg.Postgres.RunMigrations {
			if err := pg.Migrate(ctx); err != nil {
				return err
			}
		}
		st, vlt, orc = pg, vault.NewPostgres(pool), oracle.NewPostgres(pool)
		logger.Info("connected to PostgreSQL", "max_conns", cfg.Postgres.MaxConns)
	} else {
		logger.Warn("postgres.dsn not set, using in-memory backends (data will not persist)")
		devOrc = oracle.NewMemory()
		st, vlt, orc = store.NewMemoryStore(), vault.NewMemory(), devOrc
	}

	var locker lock.Locker = lock.NewKeyedMutex()
	if cfg.Redis.URL != "" {
		opt, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			return fmt.Errorf("invalid redis.url: %w", err)
		}
		rdb := redis.NewClient(opt)
		cleanup = append(cleanup, func() { rdb.Close() })

		if cfg.Postgres.DSN != "" {
			st = store.NewCachedStore(st, rdb, cfg.Redis.CacheTTL.Duration)
			logger.Info("Redis market cache enabled", "ttl", cfg.Redis.CacheTTL.Duration)
		}
		if cfg.Lock.Backend == config.LockRedis {
			locker = lock.NewRedisLocker(rdb, cfg.Lock.TTL.Duration)
			logger.Info("Redis market lock enabled", "ttl", cfg.Lock.TTL.Duration)
		}
	}

	var archiver engine.Archiver
	if cfg.S3.Bucket != "" {
		client, err := archive.NewS3Client(ctx, archive.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			return fmt.Errorf("s3 client: %w", err)
		}
		archiver = archive.NewArchiver(client, cfg.S3.Prefix)
		logger.Info("ledger archive enabled", "bucket", cfg.S3.Bucket, "prefix", cfg.S3.Prefix)
	}

	maxBet, maxOpen, err := cfg.Limits.Parse()
	if err != nil {
		return err
	}

	// --- Engine ---
	hub := api.NewWSHub(logger)
	eng, err := engine.New(st, vlt, orc, locker, engine.Options{
		PlatformFeeBps:  cfg.Fees.PlatformFeeBps,
		EarlyExitFeeBps: cfg.Fees.EarlyExitFeeBps,
		MaxFeeBps:       cfg.Fees.MaxFeeBps,
		Limiter:         limits.NewStakeLimiter(maxBet, maxOpen),
		Publisher:       hub,
		Archiver:        archiver,
		Logger:          logger,
	})
	if err != nil {
		return err
	}
	svc := api.NewService(eng, vlt, logger)
	if devOrc != nil {
		svc.EnableDevRoutes(devOrc)
		logger.Warn("dev routes enabled: events and balances are set through /api/v1/admin")
	}

	// --- HTTP router ---
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(metrics.Middleware)

	// CORS middleware for frontend cross-origin requests.
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok","service":"market-engine"}`))
	})
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		// The WebSocket route must not sit behind the request timeout.
		r.Get("/ws", hub.HandleWS)
		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(cfg.Server.RequestTimeout.Duration))
			svc.Routes(r)
		})
	})

	// --- Server ---
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.Server.RequestTimeout.Duration + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return hub.Run(gctx)
	})
	g.Go(func() error {
		logger.Info("market-engine listening", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down market-engine...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout.Duration)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
