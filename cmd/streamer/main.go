package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rickgao/marketstream/internal/cache"
	"github.com/rickgao/marketstream/internal/config"
	"github.com/rickgao/marketstream/internal/connection"
	"github.com/rickgao/marketstream/internal/control"
	"github.com/rickgao/marketstream/internal/database"
	"github.com/rickgao/marketstream/internal/metrics"
	"github.com/rickgao/marketstream/internal/router"
	"github.com/rickgao/marketstream/internal/version"
	"github.com/rickgao/marketstream/internal/writer"
)

// component is a background worker with a start/stop lifecycle.
type component interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

func main() {
	configPath := flag.String("config", "configs/streamer.yaml", "path to config file")
	envPath := flag.String("env", ".env", "optional dotenv file loaded before the config")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		return
	}

	if err := godotenv.Load(*envPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "failed to load %s: %v\n", *envPath, err)
		os.Exit(1)
	}

	// Load configuration
	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Set up structured logging
	logger := newLogger(cfg.Log)
	slog.SetDefault(logger)

	logger.Info("starting streamer",
		"version", version.Version,
		"commit", version.Commit,
		"config", *configPath,
		"instance_id", cfg.Instance.ID,
		"feeds", len(cfg.Feeds),
	)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	// Metrics
	promReg := prometheus.NewRegistry()
	promReg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(promReg)

	// Message Router
	rt := router.NewRouter(router.RouterConfig{
		InputSize:           cfg.Router.InputSize,
		TradeBufferSize:     cfg.Router.TradeBufferSize,
		QuoteBufferSize:     cfg.Router.QuoteBufferSize,
		AggregateBufferSize: cfg.Router.AggregateBufferSize,
		MaxBufferSize:       cfg.Router.MaxBufferSize,
	}, m, logger)
	if err := rt.Start(ctx); err != nil {
		logger.Error("failed to start router", "error", err)
		os.Exit(1)
	}

	connOpts := []connection.Option{
		connection.WithConfig(connectionConfig(cfg.Connections)),
		connection.WithLogger(logger),
		connection.WithMetrics(m),
		connection.WithHandler(rt.Handle),
	}
	var controlOpts []control.Option
	var publisher *cache.Publisher

	// Latest-event cache
	if cfg.Redis.Enabled() {
		logger.Info("connecting to redis", "addr", cfg.Redis.Addr, "db", cfg.Redis.DB)
		rdb, err := cache.Connect(ctx, cfg.Redis)
		if err != nil {
			logger.Error("failed to connect to redis", "error", err)
			os.Exit(1)
		}
		defer rdb.Close()

		publisher = cache.NewPublisher(rdb, cfg.Redis.TTL, m, logger)
		if err := publisher.Start(ctx); err != nil {
			logger.Error("failed to start cache publisher", "error", err)
			os.Exit(1)
		}
		connOpts = append(connOpts, connection.WithHandler(publisher.Handle))
		controlOpts = append(controlOpts,
			control.WithLatest(publisher),
			control.WithPinger("redis", func(ctx context.Context) error { return rdb.Ping(ctx).Err() }),
		)
	}

	// Database and writers
	var writers []component
	if cfg.Database.Enabled() {
		logger.Info("connecting to database",
			"host", cfg.Database.Timescale.Host,
			"port", cfg.Database.Timescale.Port,
			"database", cfg.Database.Timescale.Name,
		)
		pool, err := database.Connect(ctx, cfg.Database.Timescale)
		if err != nil {
			logger.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer pool.Close()

		if err := database.EnsureSchema(ctx, pool); err != nil {
			logger.Error("failed to apply schema", "error", err)
			os.Exit(1)
		}
		logger.Info("database connected")

		wcfg := writer.WriterConfig{
			BatchSize:     cfg.Writers.BatchSize,
			FlushInterval: cfg.Writers.FlushInterval,
		}
		bufs := rt.Buffers()
		tw := writer.NewTradeWriter(wcfg, bufs.Trade, pool, m, logger)
		qw := writer.NewQuoteWriter(wcfg, bufs.Quote, pool, m, logger)
		aw := writer.NewAggregateWriter(wcfg, bufs.Aggregate, pool, m, logger)
		for _, w := range []component{tw, qw, aw} {
			if err := w.Start(ctx); err != nil {
				logger.Error("failed to start writer", "error", err)
				os.Exit(1)
			}
			writers = append(writers, w)
		}

		controlOpts = append(controlOpts, control.WithPinger("timescaledb", pool.Ping))
	} else {
		logger.Warn("no database configured, events are not persisted")
	}

	// Connections
	registry := connection.NewRegistry(connOpts...)

	// Control API and metrics
	controlOpts = append(controlOpts,
		control.WithLogger(logger),
		control.WithMetrics(cfg.HTTP.MetricsPath, promhttp.HandlerFor(promReg, promhttp.HandlerOpts{})),
	)
	api := control.NewServer(registry, cfg.APIKey, controlOpts...)

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("starting http server", "port", cfg.HTTP.Port)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
			cancel()
		}
	}()

	// Start configured feeds
	for _, feed := range cfg.Feeds {
		startFeed(ctx, registry, feed, cfg.APIKey, cfg.Connections.AuthTimeout, logger)
	}

	logger.Info("streamer running",
		"instance_id", cfg.Instance.ID,
		"markets", registry.Markets(),
		"health_url", fmt.Sprintf("http://localhost:%d/health", cfg.HTTP.Port),
	)

	// Wait for shutdown
	<-ctx.Done()

	logger.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http server shutdown", "error", err)
	}

	// Stop order: feeds, cache, router, writers.
	if err := registry.CloseAll(); err != nil {
		logger.Warn("closing connections", "error", err)
	}
	if publisher != nil {
		if err := publisher.Stop(shutdownCtx); err != nil {
			logger.Warn("cache publisher stop", "error", err)
		}
	}
	if err := rt.Stop(shutdownCtx); err != nil {
		logger.Warn("router stop", "error", err)
	}
	for _, w := range writers {
		if err := w.Stop(shutdownCtx); err != nil {
			logger.Warn("writer stop", "error", err)
		}
	}

	stats := rt.Stats()
	logger.Info("streamer stopped",
		"messages_received", stats.MessagesReceived,
		"messages_routed", stats.MessagesRouted,
		"input_dropped", stats.InputDropped,
		"buffer_dropped", stats.BufferDropped,
		"dropped", stats.Dropped(),
	)
}

// startFeed creates, connects and subscribes one configured feed. Failures
// are logged and leave the feed registered so it can be retried through the
// control API.
func startFeed(ctx context.Context, registry *connection.Registry, feed config.FeedConfig, apiKey string, authTimeout time.Duration, logger *slog.Logger) {
	conn, err := registry.GetOrCreate(feed.Market, feed.Endpoint, apiKey)
	if err != nil {
		logger.Error("failed to create feed", "market", feed.Market, "error", err)
		return
	}

	connectCtx, cancel := context.WithTimeout(ctx, authTimeout+30*time.Second)
	defer cancel()

	if err := conn.Connect(connectCtx); err != nil {
		logger.Error("failed to connect feed", "market", feed.Market, "error", err)
		return
	}

	if len(feed.Channels) == 0 {
		return
	}
	if err := conn.Subscribe(feed.Channels); err != nil {
		logger.Error("failed to subscribe", "market", feed.Market, "channels", feed.Channels, "error", err)
	}
}

func connectionConfig(c config.ConnectionsConfig) connection.Config {
	return connection.Config{
		Client: connection.ClientConfig{
			PingInterval:     c.PingInterval,
			PongTimeout:      c.PongTimeout,
			WriteTimeout:     c.WriteTimeout,
			HandshakeTimeout: c.HandshakeTimeout,
			BufferSize:       c.MessageBuffer,
		},
		BackoffBase:  c.ReconnectBaseDelay,
		BackoffMax:   c.ReconnectMaxDelay,
		AuthTimeout:  c.AuthTimeout,
		RecentBuffer: c.RecentMessages,
	}
}

func newLogger(c config.LogConfig) *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(c.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(c.Format, "json") {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}
