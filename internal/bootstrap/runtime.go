// Package bootstrap holds the start-up and shutdown sequence shared by the
// api, outbox-publisher and cron-worker binaries.
package bootstrap

import (
	"context"
	"fmt"

	"github.com/joho/godotenv"
	"go.uber.org/multierr"

	"github.com/angelmondragon/farmlink-backend/pkg/config"
	"github.com/angelmondragon/farmlink-backend/pkg/db"
	"github.com/angelmondragon/farmlink-backend/pkg/logger"
	"github.com/angelmondragon/farmlink-backend/pkg/migrate"
	"github.com/angelmondragon/farmlink-backend/pkg/redis"
)

// Runtime is the set of shared dependencies every binary starts with.
type Runtime struct {
	Config *config.Config
	Logger *logger.Logger
	DB     *db.Client
	Redis  *redis.Client

	closers []closer
}

type closer struct {
	name string
	fn   func() error
}

// Start loads configuration, then opens the database (bringing the dev
// schema up to date) and Redis. Failures are logged before they are
// returned; anything already opened is closed again.
func Start(ctx context.Context, service string) (rt *Runtime, err error) {
	bootLog := logger.New(logger.Options{ServiceName: service})
	if loadErr := godotenv.Load(); loadErr != nil {
		bootLog.Debug(ctx, ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		bootLog.Error(ctx, "failed to load config", err)
		return nil, err
	}
	cfg.Service.Kind = service

	rt = &Runtime{Config: cfg, Logger: NewLogger(service, cfg.App)}
	defer func() {
		if err != nil {
			rt.Logger.Error(ctx, "startup failed", err)
			_ = rt.Close()
			rt = nil
		}
	}()

	if rt.DB, err = db.New(ctx, cfg.DB, rt.Logger); err != nil {
		return rt, fmt.Errorf("bootstrap database: %w", err)
	}
	rt.OnClose("database", rt.DB.Close)

	if err = migrate.MaybeRunDev(ctx, cfg, rt.Logger, rt.DB); err != nil {
		return rt, fmt.Errorf("dev migrations: %w", err)
	}

	if rt.Redis, err = redis.New(ctx, cfg.Redis, rt.Logger); err != nil {
		return rt, fmt.Errorf("bootstrap redis: %w", err)
	}
	rt.OnClose("redis", rt.Redis.Close)
	return rt, nil
}

// NewLogger builds the service logger from the app settings.
func NewLogger(service string, app config.AppConfig) *logger.Logger {
	return logger.New(logger.Options{
		ServiceName: service,
		Level:       app.LogLevel,
		Format:      app.LogFormat,
		WarnStack:   app.LogWarnStack,
	})
}

// OnClose registers fn to run at shutdown. Closers run in reverse order.
func (r *Runtime) OnClose(name string, fn func() error) {
	r.closers = append(r.closers, closer{name: name, fn: fn})
}

// Close runs every registered closer and logs the ones that fail.
func (r *Runtime) Close() error {
	var errs error
	for i := len(r.closers) - 1; i >= 0; i-- {
		c := r.closers[i]
		if err := c.fn(); err != nil {
			r.Logger.Error(r.Logger.WithField(context.Background(), "resource", c.name), "error closing resource", err)
			errs = multierr.Append(errs, fmt.Errorf("close %s: %w", c.name, err))
		}
	}
	r.closers = nil
	return errs
}

// Context returns ctx tagged with the fields every log line of the
// service should carry.
func (r *Runtime) Context(ctx context.Context) context.Context {
	return r.Logger.WithFields(ctx, map[string]any{
		"env":         r.Config.App.Env,
		"serviceKind": r.Config.Service.Kind,
	})
}
