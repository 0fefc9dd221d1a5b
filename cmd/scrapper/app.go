package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	goredis "github.com/redis/go-redis/v9"

	"github.com/rahulsharmaah/content-scrapper/engine"
	"github.com/rahulsharmaah/content-scrapper/observability"
	"github.com/rahulsharmaah/content-scrapper/queue"
	qmem "github.com/rahulsharmaah/content-scrapper/queue/memory"
	redisqueue "github.com/rahulsharmaah/content-scrapper/queue/redis"
	"github.com/rahulsharmaah/content-scrapper/store"
	"github.com/rahulsharmaah/content-scrapper/store/memory"
	"github.com/rahulsharmaah/content-scrapper/store/mongo"
	"github.com/rahulsharmaah/content-scrapper/store/postgres"
	"github.com/rahulsharmaah/content-scrapper/store/sqlite"
	"github.com/rahulsharmaah/content-scrapper/strategy/web"
)

// mode selects which engine loops a command runs.
type mode int

const (
	// modeClient submits and queries only.
	modeClient mode = iota
	// modeWorker runs the worker pool.
	modeWorker
	// modeAPI runs the scheduler behind the HTTP API, without workers.
	modeAPI
	// modeServe runs the worker pool, the scheduler and the HTTP API.
	modeServe
)

// app holds the wired components of one process.
type app struct {
	cfg      *Config
	logger   *slog.Logger
	store    store.Store
	eng      *engine.Engine
	registry *prometheus.Registry

	closers []func() error
}

// newLogger builds the slog handler named by cfg.
func newLogger(cfg LogConfig, w io.Writer) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}

	if strings.EqualFold(cfg.Format, "text") {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

// openStore connects the configured store backend.
func openStore(ctx context.Context, cfg StoreConfig, logger *slog.Logger) (store.Store, error) {
	switch cfg.Driver {
	case "memory":
		return memory.New(), nil
	case "postgres":
		return postgres.New(ctx, cfg.DSN, postgres.WithLogger(logger))
	case "sqlite":
		return sqlite.Open(cfg.DSN, sqlite.WithLogger(logger))
	case "mongo":
		return mongo.Open(ctx, cfg.DSN, cfg.Database, mongo.WithLogger(logger))
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}

// newApp opens the store and broker and builds the engine for m.
func newApp(ctx context.Context, cfg *Config, m mode) (*app, error) {
	a := &app{
		cfg:      cfg,
		logger:   newLogger(cfg.Log, os.Stderr),
		registry: prometheus.NewRegistry(),
	}
	slog.SetDefault(a.logger)

	st, err := openStore(ctx, cfg.Store, a.logger)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	a.store = st
	a.closers = append(a.closers, st.Close)

	opts := []engine.Option{
		engine.WithStore(st),
		engine.WithConfig(cfg.EngineConfig()),
		engine.WithLogger(a.logger),
		engine.WithThrottle(cfg.ThrottleLimits()...),
	}

	switch cfg.Queue.Driver {
	case "redis":
		redisOpts, err := goredis.ParseURL(cfg.Queue.URL)
		if err != nil {
			_ = a.Close()
			return nil, fmt.Errorf("parse queue url: %w", err)
		}
		client := goredis.NewClient(redisOpts)
		a.closers = append(a.closers, client.Close)

		broker := redisqueue.New(client,
			redisqueue.WithPrefix(cfg.Queue.Prefix),
			redisqueue.WithVisibilityTimeout(cfg.Engine.VisibilityTimeout),
			redisqueue.WithLogger(a.logger),
		)
		if err := broker.Ping(ctx); err != nil {
			_ = a.Close()
			return nil, fmt.Errorf("connect queue: %w", err)
		}
		opts = append(opts, engine.WithBroker(broker))
		if cfg.Queue.DedupIndex == "redis" {
			opts = append(opts, engine.WithDedupIndex(broker))
		}
	default:
		opts = append(opts, engine.WithBroker(qmem.New(qmem.WithVisibilityTimeout(cfg.Engine.VisibilityTimeout))))
	}

	client := &http.Client{Timeout: cfg.Strategies.RequestTimeout}
	webOpts := []web.Option{
		web.WithClient(client),
		web.WithUserAgent(cfg.Strategies.UserAgent),
		web.WithMaxBytes(cfg.Strategies.MaxBodyBytes),
	}
	opts = append(opts,
		engine.WithStrategy(web.NewHTML(webOpts...)),
		engine.WithStrategy(web.NewRaw(webOpts...)),
	)

	switch m {
	case modeClient:
		opts = append(opts, engine.WithoutWorkers(), engine.WithoutScheduler())
	case modeWorker:
		opts = append(opts, engine.WithoutScheduler())
	case modeAPI:
		opts = append(opts, engine.WithoutWorkers())
	}
	if m != modeClient {
		a.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		opts = append(opts, engine.WithExtension(observability.NewMetricsExtensionWithRegisterer(a.registry)))
	}

	eng, err := engine.New(opts...)
	if err != nil {
		_ = a.Close()
		return nil, fmt.Errorf("build engine: %w", err)
	}
	a.eng = eng
	return a, nil
}

// Close releases the store and broker connections in reverse order.
func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

// queueDepth reports the broker backlog when the broker exposes it.
func (a *app) queueDepth(ctx context.Context) (int64, bool) {
	l, ok := a.eng.Broker().(queue.Lengther)
	if !ok {
		return 0, false
	}
	n, err := l.Len(ctx)
	if err != nil {
		a.logger.Warn("queue length unavailable", slog.String("error", err.Error()))
		return 0, false
	}
	return n, true
}
