package main

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"golang.org/x/sync/errgroup"

	"github.com/c360/schemaregistry/compat"
	"github.com/c360/schemaregistry/config"
	"github.com/c360/schemaregistry/errors"
	gatewayhttp "github.com/c360/schemaregistry/gateway/http"
	"github.com/c360/schemaregistry/metric"
	"github.com/c360/schemaregistry/natsclient"
	"github.com/c360/schemaregistry/notify"
	"github.com/c360/schemaregistry/pkg/cache"
	"github.com/c360/schemaregistry/registry"
	"github.com/c360/schemaregistry/schemastore"
	"github.com/c360/schemaregistry/storage"
	"github.com/c360/schemaregistry/storage/kvstore"
	"github.com/c360/schemaregistry/storage/memstore"
	"github.com/c360/schemaregistry/storage/sqlstore"
)

const (
	natsConnectTimeout = 10 * time.Second
	serverStopTimeout  = 10 * time.Second
)

// connectNATS dials NATS and waits for the connection. Tests replace it.
var connectNATS = func(ctx context.Context, cfg config.NATSConfig, metrics *metric.MetricsRegistry, logger *slog.Logger) (*natsclient.Client, error) {
	opts := []natsclient.ClientOption{
		natsclient.WithName(appName),
		natsclient.WithLogger(logger),
		natsclient.WithMetrics(metrics),
		natsclient.WithMaxReconnects(cfg.MaxReconnects),
	}
	if cfg.ReconnectWait > 0 {
		opts = append(opts, natsclient.WithReconnectWait(cfg.ReconnectWait.Std()))
	}
	if cfg.Username != "" {
		opts = append(opts, natsclient.WithCredentials(cfg.Username, cfg.Password))
	}
	if cfg.Token != "" {
		opts = append(opts, natsclient.WithToken(cfg.Token))
	}
	if cfg.TLS.Enabled {
		opts = append(opts, natsclient.WithTLS(cfg.TLS.CertFile, cfg.TLS.KeyFile, cfg.TLS.CAFile))
	}

	client, err := natsclient.NewClient(strings.Join(cfg.URLs, ","), opts...)
	if err != nil {
		return nil, fmt.Errorf("create NATS client: %w", err)
	}

	slog.Info("Connecting to NATS", "urls", cfg.URLs)
	if err := client.Connect(ctx); err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	connCtx, cancel := context.WithTimeout(ctx, natsConnectTimeout)
	defer cancel()
	if err := client.WaitForConnection(connCtx); err != nil {
		_ = client.Close(context.Background())
		return nil, fmt.Errorf("NATS connection timeout: %w", err)
	}
	return client, nil
}

// app holds every long-lived component of the server.
type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	metrics *metric.MetricsRegistry

	nats          *natsclient.Client
	backend       storage.Backend
	cache         *cache.Cache
	hub           *notify.Hub
	mirror        *notify.Mirror
	registry      *registry.Registry
	gateway       *gatewayhttp.Server
	metricsServer *metric.Server

	// fallback is non-empty when NATS was unreachable and memory stands in.
	fallback string
}

// buildApp wires the components described by cfg. Nothing is started.
func buildApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (_ *app, err error) {
	a := &app{cfg: cfg, logger: logger, metrics: metric.NewMetricsRegistry()}
	defer func() {
		if err != nil {
			_ = a.close(context.Background())
		}
	}()

	if cfg.UsesNATS() {
		a.nats, err = connectNATS(ctx, cfg.Storage.NATS, a.metrics, logger)
		if err != nil {
			if !cfg.Storage.FallbackToMemory {
				return nil, errors.WrapTransient(err, "main", "buildApp", "connect to NATS")
			}
			a.fallback = "NATS unavailable, running on in-memory storage"
			logger.Warn("NATS unavailable, falling back to memory", "error", err)
			a.nats = nil
		}
	}

	if a.backend, err = a.openBackend(ctx); err != nil {
		return nil, err
	}
	if a.cache, err = a.openCache(ctx); err != nil {
		return nil, err
	}

	store := schemastore.New(a.backend,
		schemastore.WithCache(a.cache),
		schemastore.WithCacheTTL(cfg.Cache.TTL.Std()),
		schemastore.WithListTTL(cfg.Cache.ListTTL.Std()),
		schemastore.WithOperationTimeout(cfg.Storage.OperationTimeout.Std()),
		schemastore.WithLogger(logger))

	a.hub = notify.NewHub(
		notify.WithQueueSize(cfg.Notify.QueueSize),
		notify.WithDeliverTimeout(cfg.Notify.DeliverTimeout.Std()),
		notify.WithLogger(logger),
		notify.WithMetrics(a.metrics))

	if cfg.Notify.MirrorToNATS && a.nats != nil {
		a.mirror = notify.NewMirror(a.nats, logger)
	}

	var checkerOpts []compat.Option
	if cfg.App.StrictEnums {
		checkerOpts = append(checkerOpts, compat.WithStrictEnums())
	}

	regOpts := []registry.Option{
		registry.WithCache(a.cache),
		registry.WithHub(a.hub),
		registry.WithChecker(compat.NewChecker(checkerOpts...)),
		registry.WithMetrics(a.metrics),
		registry.WithLogger(logger),
		registry.WithMaxCommitAttempts(cfg.Storage.MaxCommitAttempts),
	}
	if a.fallback != "" {
		regOpts = append(regOpts, registry.WithFallback(a.fallback))
	}
	a.registry = registry.New(store, regOpts...)

	gwOpts := []gatewayhttp.Option{
		gatewayhttp.WithCache(a.cache),
		gatewayhttp.WithLogger(logger),
	}
	if cfg.Metrics.Enabled {
		gwOpts = append(gwOpts, gatewayhttp.WithMetrics(a.metrics))
		if cfg.Metrics.Port != 0 {
			a.metricsServer = metric.NewServer(cfg.Metrics.Port, cfg.Metrics.Path, a.metrics)
		}
	}
	if a.gateway, err = gatewayhttp.NewServer(cfg.Server, a.registry, a.hub, gwOpts...); err != nil {
		return nil, err
	}

	logger.Info("Schema registry wired",
		"storage", a.backend.Name(),
		"cache", a.cache.Backend(),
		"mirror", a.mirror != nil,
		"fallback", a.fallback != "")
	return a, nil
}

func (a *app) openBackend(ctx context.Context) (storage.Backend, error) {
	backend := a.cfg.Storage.Backend
	if backend == storage.BackendNATS && a.nats == nil {
		backend = storage.BackendMemory
	}

	switch backend {
	case storage.BackendNATS:
		openCtx, cancel := context.WithTimeout(ctx, natsConnectTimeout)
		defer cancel()
		return kvstore.Open(openCtx, a.nats, a.cfg.Storage.NATS.Bucket,
			natsclient.WithKVTimeout(a.cfg.Storage.OperationTimeout.Std()))
	case storage.BackendSQLite:
		return sqlstore.Open(a.cfg.Storage.SQLite.Path)
	default:
		return memstore.New(), nil
	}
}

func (a *app) openCache(ctx context.Context) (*cache.Cache, error) {
	backend := a.cfg.Cache.Backend
	if backend == cache.BackendExternal && a.nats == nil {
		backend = cache.BackendMemory
	}

	opts := []cache.Option{
		cache.WithDefaultTTL(a.cfg.Cache.TTL.Std()),
		cache.WithCounterTTL(a.cfg.Cache.CounterTTL.Std()),
		cache.WithLogger(a.logger),
		cache.WithMetrics(a.metrics),
	}

	if backend == cache.BackendExternal {
		openCtx, cancel := context.WithTimeout(ctx, natsConnectTimeout)
		defer cancel()
		bucket, err := a.nats.CreateKeyValueBucket(openCtx, cacheBucketConfig(a.cfg.Cache))
		if err != nil {
			return nil, errors.WrapStore(err, "main", "openCache", "create cache bucket")
		}
		return cache.New(cache.NewKVBackend(a.nats.NewKVStore(bucket)), opts...), nil
	}
	return cache.New(cache.NewMemoryBackend(a.cfg.Cache.CleanupInterval.Std()), opts...), nil
}

func cacheBucketConfig(cfg config.CacheConfig) jetstream.KeyValueConfig {
	return jetstream.KeyValueConfig{
		Bucket:      cfg.Bucket,
		Description: "schema registry read cache",
		History:     1,
	}
}

// run starts the hub and servers and blocks until ctx ends or a server fails.
func (a *app) run(ctx context.Context) error {
	if err := a.hub.Start(ctx); err != nil {
		return err
	}
	if a.mirror != nil {
		if err := a.mirror.AttachAll(a.hub); err != nil {
			return err
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return serve(gctx, a.gateway.Start) })
	if a.metricsServer != nil {
		g.Go(func() error { return serve(gctx, a.metricsServer.Start) })
	}
	g.Go(func() error {
		<-gctx.Done()
		stopCtx, cancel := context.WithTimeout(context.Background(), serverStopTimeout)
		defer cancel()
		errs := []error{a.gateway.Stop(stopCtx)}
		if a.metricsServer != nil {
			errs = append(errs, a.metricsServer.Stop(stopCtx))
		}
		return stderrors.Join(errs...)
	})

	if a.fallback != "" {
		a.hub.Publish(notify.NewSystemEvent(registry.EventStoreUnhealthy, map[string]any{
			"reason": a.fallback,
		}))
	}

	return g.Wait()
}

// serve runs a blocking listener. A listener that returns while ctx is
// still live counts as a failure so the group shuts the others down.
func serve(ctx context.Context, start func() error) error {
	if ctx.Err() != nil {
		return nil
	}
	if err := start(); err != nil {
		return err
	}
	if ctx.Err() == nil {
		return fmt.Errorf("server stopped unexpectedly")
	}
	return nil
}

// close stops every component in reverse dependency order.
func (a *app) close(ctx context.Context) error {
	var errs []error
	timeout := time.Until(deadlineOr(ctx, 5*time.Second))

	if a.gateway != nil {
		errs = append(errs, a.gateway.Stop(ctx))
	}
	if a.metricsServer != nil {
		errs = append(errs, a.metricsServer.Stop(ctx))
	}
	if a.hub != nil {
		errs = append(errs, a.hub.Stop(timeout))
	}
	if a.cache != nil {
		errs = append(errs, a.cache.Close())
	}
	if a.backend != nil {
		errs = append(errs, a.backend.Close())
	}
	if a.nats != nil {
		errs = append(errs, a.nats.Close(ctx))
	}
	return stderrors.Join(errs...)
}

func deadlineOr(ctx context.Context, d time.Duration) time.Time {
	if deadline, ok := ctx.Deadline(); ok {
		return deadline
	}
	return time.Now().Add(d)
}
