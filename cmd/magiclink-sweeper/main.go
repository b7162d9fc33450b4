// Command magiclink-sweeper runs the retention sweep against a shared
// Redis or SQL store, once or on an interval.
//
// Environment (a .env file in the working directory is loaded first):
//
//	MAGICLINK_CONFIG        YAML config file; defaults apply when unset
//	MAGICLINK_REDIS_ADDR    Redis address
//	MAGICLINK_DATABASE_URL  SQL DSN, used when no Redis address is set
//	MAGICLINK_SQL_DIALECT   "postgres" (default) or "sqlite"
//	MAGICLINK_LOG_FILE      optional rotated log file
//	SENTRY_DSN, APP_ENV     error reporting
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	goMagicLink "github.com/MrEthical07/goMagicLink"
	"github.com/MrEthical07/goMagicLink/internal/logging"
	"github.com/MrEthical07/goMagicLink/internal/observability"
	"github.com/MrEthical07/goMagicLink/internal/sweep"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

var version = "dev"

func main() {
	var (
		once     = flag.Bool("once", false, "run a single sweep and exit")
		interval = flag.Duration("interval", 5*time.Minute, "time between sweeps")
		migrate  = flag.Bool("migrate", false, "apply SQL migrations before sweeping")
	)
	flag.Parse()

	_ = godotenv.Load()

	env := envOrDefault("APP_ENV", "development")
	logger := logging.New(logging.Options{
		Development: env == "development",
		FilePath:    os.Getenv("MAGICLINK_LOG_FILE"),
		Compress:    true,
	})
	defer func() { _ = logger.Sync() }()

	if err := observability.InitSentry(os.Getenv("SENTRY_DSN"), env, version); err != nil {
		logger.Warn("sentry init failed", zap.Error(err))
	}
	defer observability.FlushSentry()

	if err := run(logger, *once, *interval, *migrate); err != nil {
		observability.CaptureError(err, map[string]string{"component": "sweeper"})
		logger.Error("sweeper stopped", zap.Error(err))
		observability.FlushSentry()
		os.Exit(1)
	}
}

func run(logger *zap.Logger, once bool, interval time.Duration, migrate bool) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	for _, w := range cfg.Lint() {
		logger.Warn("config lint", zap.String("code", w.Code), zap.String("severity", w.Severity.String()), zap.String("message", w.Message))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	builder := goMagicLink.New().WithConfig(cfg).WithLogger(logger)
	closeStore, err := attachStore(ctx, builder, migrate)
	if err != nil {
		return err
	}
	defer closeStore()

	engine, err := builder.Build()
	if err != nil {
		return fmt.Errorf("build engine: %w", err)
	}
	defer engine.Close()

	if err := engine.Ping(ctx); err != nil {
		return err
	}

	every := interval
	if once {
		every = 0
	}

	var lastErr error
	sweep.Run(ctx, every, func(ctx context.Context) {
		report, err := engine.Sweep(ctx)
		if err != nil {
			lastErr = err
			observability.CaptureError(err, map[string]string{"component": "sweeper"})
			return
		}
		lastErr = nil
		if report.Total() == 0 {
			logger.Debug("nothing to sweep")
		}
	})

	if once {
		return lastErr
	}
	logger.Info("shutting down")
	return nil
}

func loadConfig() (goMagicLink.Config, error) {
	path := os.Getenv("MAGICLINK_CONFIG")
	if path == "" {
		return goMagicLink.DefaultConfig(), nil
	}
	cfg, err := goMagicLink.LoadConfigFile(path)
	if err != nil {
		return goMagicLink.Config{}, fmt.Errorf("load %s: %w", path, err)
	}
	return cfg, nil
}

func attachStore(ctx context.Context, b *goMagicLink.Builder, migrate bool) (func(), error) {
	if addr := os.Getenv("MAGICLINK_REDIS_ADDR"); addr != "" {
		client := redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs: strings.Split(addr, ","),
		})
		b.WithRedis(client)
		return func() { _ = client.Close() }, nil
	}

	dsn := os.Getenv("MAGICLINK_DATABASE_URL")
	if dsn == "" {
		return nil, errors.New("set MAGICLINK_REDIS_ADDR or MAGICLINK_DATABASE_URL")
	}
	dialect := envOrDefault("MAGICLINK_SQL_DIALECT", "postgres")

	if migrate {
		if err := goMagicLink.MigrateSQL(dialect, dsn); err != nil {
			return nil, fmt.Errorf("migrate: %w", err)
		}
	}

	db, err := goMagicLink.OpenSQL(ctx, dialect, dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	b.WithSQL(db, dialect)
	return func() { _ = db.Close() }, nil
}

func envOrDefault(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}
