// Package app wires the storage tiers, services and workspace from the
// configuration. Both binaries build their workspace through it.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/atinyakov/crmkeeper/internal/config"
	"github.com/atinyakov/crmkeeper/internal/db"
	"github.com/atinyakov/crmkeeper/internal/generator"
	"github.com/atinyakov/crmkeeper/internal/repository"
	"github.com/atinyakov/crmkeeper/internal/seed"
	"github.com/atinyakov/crmkeeper/internal/service"
	"github.com/atinyakov/crmkeeper/internal/storage"
	"github.com/atinyakov/crmkeeper/internal/toast"
)

// Container holds the wired application.
type Container struct {
	Workspace *service.Workspace
	Toasts    *toast.Emitter

	durable   storage.Tier
	ephemeral storage.Tier
	sqlDB     *sql.DB
	redis     *redis.Client
}

// New opens the tiers selected by opts and builds the workspace. Background
// maintenance runs until ctx is done.
func New(ctx context.Context, opts *config.Options, log *zap.Logger) (*Container, error) {
	c := &Container{}
	if err := c.openDurable(ctx, opts, log); err != nil {
		return nil, err
	}
	if err := c.openEphemeral(ctx, opts, log); err != nil {
		c.Close()
		return nil, err
	}

	data := repository.NewTenantStore(c.durable, seed.Default, log)
	var identityOpts []service.IdentityOption
	if demo := seed.NewDemoTenant(opts.DemoEmail); demo != nil {
		identityOpts = append(identityOpts, service.WithDemoTenant(demo, data))
		log.Info("demo tenant enabled", zap.String("email", demo.Email))
	}
	identities := service.NewIdentityService(repository.NewIdentityRepository(c.durable, log), log, identityOpts...)

	c.Toasts = toast.NewEmitter(opts.ToastTTL)
	toast.StartSweeper(ctx, c.Toasts, time.Second, log)

	c.Workspace = service.NewWorkspace(service.WorkspaceDeps{
		Identities:    identities,
		Sessions:      service.NewSessionManager(c.durable, c.ephemeral, log),
		Data:          data,
		Prefs:         c.durable,
		Generator:     newGenerator(opts, log),
		Toasts:        c.Toasts,
		Log:           log,
		ReportTimeout: opts.ReportTimeout,
	})
	return c, nil
}

func (c *Container) openDurable(ctx context.Context, opts *config.Options, log *zap.Logger) error {
	if opts.DatabaseDSN == "" {
		file, err := storage.OpenFile(opts.DataFile)
		if err != nil {
			return fmt.Errorf("open data file: %w", err)
		}
		log.Info("durable tier: file", zap.String("path", file.Path()))
		c.durable = file
		return nil
	}

	sqlDB, err := db.InitPostgres(opts.DatabaseDSN)
	if err != nil {
		return fmt.Errorf("cannot init database: %w", err)
	}
	c.sqlDB = sqlDB
	c.durable = repository.NewPostgresTier(sqlDB)
	if opts.RememberTTL > 0 {
		db.StartKeyExpiry(ctx, sqlDB, service.SessionKey, time.Hour, opts.RememberTTL, log)
	}
	log.Info("durable tier: postgres")
	return nil
}

func (c *Container) openEphemeral(ctx context.Context, opts *config.Options, log *zap.Logger) error {
	if opts.RedisAddr == "" {
		c.ephemeral = storage.NewMemory()
		log.Info("ephemeral tier: memory")
		return nil
	}

	client := redis.NewClient(&redis.Options{Addr: opts.RedisAddr, Password: opts.RedisPassword})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return fmt.Errorf("ping redis: %w", err)
	}
	c.redis = client
	// A per-boot prefix keeps sessions of a previous run invisible.
	prefix := "crm:" + uuid.NewString() + ":"
	c.ephemeral = storage.NewRedis(client, prefix, opts.SessionTTL)
	log.Info("ephemeral tier: redis", zap.String("addr", opts.RedisAddr), zap.Duration("ttl", opts.SessionTTL))
	return nil
}

func newGenerator(opts *config.Options, log *zap.Logger) service.Generator {
	if opts.LLMBaseURL == "" {
		log.Info("report generator: offline template")
		return generator.NewTemplate()
	}
	log.Info("report generator: remote", zap.String("url", opts.LLMBaseURL), zap.String("model", opts.LLMModel))
	return generator.NewClient(opts.LLMBaseURL, opts.LLMAPIKey, opts.LLMModel)
}

// Close releases the database and Redis connections.
func (c *Container) Close() error {
	var errs []error
	if c.redis != nil {
		errs = append(errs, c.redis.Close())
	}
	if c.sqlDB != nil {
		errs = append(errs, c.sqlDB.Close())
	}
	return errors.Join(errs...)
}
