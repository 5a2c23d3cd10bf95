// Package app builds the shared runtime the service binaries start from.
package app

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"example.com/wellness/internal/config"
	"example.com/wellness/internal/domain"
	"example.com/wellness/internal/loadagg"
	"example.com/wellness/internal/notify"
	"example.com/wellness/internal/providers"
	"example.com/wellness/internal/providers/fitfeed"
	"example.com/wellness/internal/settings"
	"example.com/wellness/internal/store"
	"example.com/wellness/internal/store/postgres"
	"example.com/wellness/internal/syncer"
)

// Runtime holds collaborators built from configuration.
type Runtime struct {
	Config   *config.Config
	Store    store.Store
	Pool     *pgxpool.Pool
	Settings settings.Provider
	Notifier notify.Notifier

	logger  *log.Logger
	closers []func() error
}

// Build opens the configured store, settings provider and notifier.
func Build(ctx context.Context, cfg *config.Config, logger *log.Logger) (*Runtime, error) {
	if logger == nil {
		logger = log.New(log.Writer(), "[app] ", log.LstdFlags|log.Lshortfile)
	}
	rt := &Runtime{Config: cfg, logger: logger, Notifier: notify.Noop{}}

	switch cfg.Store.Backend {
	case config.BackendPostgres:
		pool, err := pgxpool.New(ctx, cfg.Store.PostgresURL)
		if err != nil {
			return nil, fmt.Errorf("connect to postgres: %w", err)
		}
		rt.closers = append(rt.closers, func() error { pool.Close(); return nil })
		if err := postgres.EnsureSchema(ctx, pool); err != nil {
			rt.Close()
			return nil, err
		}
		rt.Pool = pool
		rt.Store = postgres.NewRepository(pool, postgres.WithLocation(cfg.Location))
	default:
		rt.Store = store.NewMemory(store.WithLocation(cfg.Location))
	}

	defaults := settings.Athlete{FTP: cfg.Athlete.FTP, LTHR: cfg.Athlete.LTHR}
	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		rt.closers = append(rt.closers, client.Close)
		if err := client.Ping(ctx).Err(); err != nil {
			logger.Printf("redis %s unreachable, athlete settings will fall back to defaults: %v", cfg.Redis.Addr, err)
		}
		rt.Settings = settings.NewRedis(client, cfg.Redis.Key, defaults)
	} else {
		rt.Settings = settings.NewStatic(defaults.FTP, defaults.LTHR)
	}

	if len(cfg.Kafka.Brokers) > 0 {
		kn := notify.NewKafkaNotifier(cfg.Kafka.Brokers, cfg.Kafka.EventsTopic)
		rt.closers = append(rt.closers, kn.Close)
		rt.Notifier = kn
	}
	return rt, nil
}

// Close releases everything Build opened, newest first.
func (r *Runtime) Close() {
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i](); err != nil {
			r.logger.Printf("close: %v", err)
		}
	}
	r.closers = nil
}

// MigrateLegacy imports the legacy snapshot when one is configured. Failures
// are logged; startup continues either way.
func (r *Runtime) MigrateLegacy(ctx context.Context) {
	path := r.Config.Store.LegacySnapshot
	if path == "" {
		return
	}
	legacy := store.NewJSONSnapshot(path, r.Config.Location, r.logger)
	res, err := store.NewMigrator(r.Store, legacy,
		store.WithMigratorLogger(r.logger),
		store.WithMigratorLocation(r.Config.Location),
	).Run(ctx)
	switch {
	case errors.Is(err, store.ErrMigrationUnverified):
		r.logger.Printf("legacy migration left unfinished, will retry on next start: %v", err)
	case err != nil:
		r.logger.Printf("legacy migration failed: %v", err)
	case res.AlreadyCompleted:
	default:
		r.logger.Printf("legacy migration imported %d of %d days", res.Migrated, res.Legacy)
	}
}

// Sources builds one HTTP fetcher per enabled provider, in provider order.
func (r *Runtime) Sources() []syncer.Source {
	endpoints := r.Config.Providers.Endpoints()
	var out []syncer.Source
	for _, p := range domain.Providers() {
		ep, ok := endpoints[p]
		if !ok {
			continue
		}
		out = append(out, syncer.Source{
			Provider: p,
			Fetcher:  providers.NewHTTPFetcher(httpConfig(p, ep), providers.WithHTTPLogger(r.logger)),
		})
	}
	return out
}

// ActivityFeed returns the FIT directory feed when configured, else the
// activity API feed, else nil.
func (r *Runtime) ActivityFeed() providers.ActivityFeed {
	if dir := r.Config.Providers.FitDirectory; dir != "" {
		return fitfeed.NewDirectory(dir, fitfeed.WithLogger(r.logger))
	}
	if ep := r.Config.Providers.ActivityAPI; ep.BaseURL != "" {
		return providers.NewHTTPActivityFeed(httpConfig(domain.ProviderActivityAPI, ep), providers.WithHTTPLogger(r.logger))
	}
	return nil
}

// NewSyncService wires the sync service with every configured source.
func (r *Runtime) NewSyncService() (*syncer.Service, error) {
	opts := []syncer.Option{
		syncer.WithLogger(r.logger),
		syncer.WithLocation(r.Config.Location),
		syncer.WithSettings(r.Settings),
		syncer.WithNotifier(r.Notifier),
	}
	if feed := r.ActivityFeed(); feed != nil {
		agg := loadagg.New(feed, r.Settings, r.Store,
			loadagg.WithLogger(r.logger),
			loadagg.WithLocation(r.Config.Location),
			loadagg.WithPaging(r.Config.Sync.ActivityPage, r.Config.Sync.ActivityMax),
		)
		opts = append(opts, syncer.WithLoadAggregator(agg))
	}
	return syncer.New(r.Config.Primary, r.Sources(), r.Store, opts...)
}

func httpConfig(p domain.Provider, ep config.EndpointConfig) providers.HTTPConfig {
	return providers.HTTPConfig{
		Provider:  p,
		BaseURL:   ep.BaseURL,
		AthleteID: ep.AthleteID,
		Token:     ep.Token,
		Timeout:   ep.Timeout,
	}
}
