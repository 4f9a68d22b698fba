package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"

	"github.com/aussiebroadwan/gstirn/pkg/cryptox"
	"github.com/aussiebroadwan/gstirn/pkg/httpx"
	"github.com/aussiebroadwan/gstirn/pkg/irnsdk"
	"github.com/aussiebroadwan/gstirn/pkg/metricsx"
	"github.com/aussiebroadwan/gstirn/pkg/slogx"
	"github.com/aussiebroadwan/gstirn/pkg/tokencache"
	"github.com/aussiebroadwan/gstirn/pkg/tokencache/drivers/redis"
	"github.com/aussiebroadwan/gstirn/pkg/tokencache/drivers/sqlite"
)

const (
	// BuildVersion should be set at build time via ldflags.
	BuildVersion = "v0.1.0"
)

// Application holds a configured portal session and what backs it.
type Application struct {
	cfg      Config
	logger   *slog.Logger
	registry *prometheus.Registry
	metrics  *metricsx.Metrics

	client  *irnsdk.SDKClient
	session *irnsdk.Session

	closers []io.Closer
}

// New validates cfg and builds the client, cache and session. Nothing is
// sent to the portal until a command needs it.
func New(ctx context.Context, cfg Config) (*Application, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	registry := prometheus.NewRegistry()
	app := &Application{
		cfg:      cfg,
		registry: registry,
		metrics:  metricsx.New(registry),
		logger: slogx.New(slogx.Config{
			Service: "irn",
			Version: BuildVersion,
			Env:     cfg.Log.Env,
			Level:   cfg.Log.Level,
			Format:  cfg.Log.Format,
		}),
	}

	app.initClient()

	cacheOpt, err := app.initCache(ctx)
	if err != nil {
		_ = app.Close()
		return nil, err
	}

	padding, _ := cryptox.ParsePadding(cfg.Portal.Padding)
	app.session = app.client.NewSession(cfg.Credentials(),
		cacheOpt,
		irnsdk.WithPadding(padding),
		irnsdk.WithGSPHeaders(cfg.Portal.GSPHeaders),
		irnsdk.WithLogger(app.logger),
		irnsdk.WithMetrics(app.metrics),
	)

	return app, nil
}

// Session returns the portal session.
func (app *Application) Session() *irnsdk.Session {
	return app.session
}

// Logger returns the application logger.
func (app *Application) Logger() *slog.Logger {
	return app.logger
}

// WriteMetrics writes everything recorded so far in the Prometheus text
// format.
func (app *Application) WriteMetrics(w io.Writer) error {
	families, err := app.registry.Gather()
	if err != nil {
		return err
	}
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return err
		}
	}
	return nil
}

// Close releases the cache backend.
func (app *Application) Close() error {
	var errs []error
	for _, c := range app.closers {
		errs = append(errs, c.Close())
	}
	app.closers = nil
	return errors.Join(errs...)
}

// initClient builds the HTTP client with the configured timeout, throttle
// and request logging.
func (app *Application) initClient() {
	opts := []irnsdk.ClientOption{irnsdk.WithTimeout(app.cfg.HTTP.Timeout)}
	if app.cfg.HTTP.RateLimit > 0 {
		opts = append(opts, irnsdk.WithRateLimit(httpx.PerSecond(app.cfg.HTTP.RateLimit)))
	}
	if app.cfg.HTTP.LogRequests {
		opts = append(opts, irnsdk.WithRequestLogging(app.logger))
	}
	app.client = irnsdk.NewSDKClient(app.cfg.Portal.BaseURL, opts...)
}

// initCache opens the configured token cache backend.
func (app *Application) initCache(ctx context.Context) (irnsdk.SessionOption, error) {
	var backend tokencache.Backend

	switch app.cfg.Cache.Driver {
	case CacheNone:
		return irnsdk.WithoutCache(), nil
	case CacheMemory:
		backend = tokencache.NewMemoryBackend()
	case CacheFile:
		backend = tokencache.NewFileBackend(app.cfg.Cache.Dir)
	case CacheSQLite:
		store, err := sqlite.Open(app.cfg.Cache.DSN)
		if err != nil {
			return nil, err
		}
		app.closers = append(app.closers, store)
		app.pruneExpired(ctx, store)
		backend = store
	case CacheRedis:
		store, err := redis.NewStore(ctx, app.cfg.Cache.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("failed to connect token cache: %w", err)
		}
		app.closers = append(app.closers, store)
		backend = store
	default:
		return nil, fmt.Errorf("unknown cache driver %q", app.cfg.Cache.Driver)
	}

	if app.cfg.Cache.Passphrase != "" {
		backend = tokencache.NewSealedBackend(backend, app.cfg.Cache.Passphrase)
	}

	app.logger.Debug("token cache ready",
		"driver", app.cfg.Cache.Driver,
		"sealed", app.cfg.Cache.Passphrase != "",
	)

	return irnsdk.WithCache(tokencache.New(backend,
		tokencache.WithSafetyMargin(app.cfg.Cache.SafetyMargin),
		tokencache.WithLogger(app.logger),
		tokencache.WithMetrics(app.metrics),
	)), nil
}

// pruneExpired drops rows that can never be served again. Failure only
// leaves them for the next run.
func (app *Application) pruneExpired(ctx context.Context, store *sqlite.Store) {
	n, err := store.DeleteExpired(ctx, time.Now())
	if err != nil {
		app.logger.WarnContext(ctx, "token cache prune failed", "err", err)
		return
	}
	if n > 0 {
		app.logger.DebugContext(ctx, "token cache pruned", "removed", n)
	}
}
