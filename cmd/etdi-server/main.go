package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // Register pgx as database/sql driver
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/vineethsai/etdi-go/approval"
	"github.com/vineethsai/etdi-go/audit"
	"github.com/vineethsai/etdi-go/callstack"
	"github.com/vineethsai/etdi-go/drift"
	"github.com/vineethsai/etdi-go/events"
	"github.com/vineethsai/etdi-go/internal/config"
	"github.com/vineethsai/etdi-go/internal/server"
	"github.com/vineethsai/etdi-go/metrics"
	"github.com/vineethsai/etdi-go/oauth"
	"github.com/vineethsai/etdi-go/pipeline"
	"github.com/vineethsai/etdi-go/signature"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}

	logger := mustBuildLogger(cfg.LogLevel)
	defer logger.Sync() //nolint:errcheck // best-effort flush

	logger.Info("starting etdi server",
		zap.String("listen_addr", cfg.ListenAddr),
		zap.String("security_level", cfg.SecurityLevel.String()),
		zap.Bool("allow_non_etdi_tools", cfg.AllowNonETDITools),
		zap.Bool("request_signing", cfg.EnableRequestSigning),
	)

	// Trust anchors
	var anchors *signature.StaticKeys
	if cfg.TrustAnchorsPath != "" {
		anchors, err = signature.LoadTrustAnchors(cfg.TrustAnchorsPath)
		if err != nil {
			logger.Fatal("failed to load trust anchors", zap.Error(err))
		}
		logger.Info("trust anchors loaded",
			zap.String("path", cfg.TrustAnchorsPath),
			zap.Int("providers", anchors.Len()),
		)
	} else {
		anchors = signature.NewStaticKeys()
		logger.Warn("no ETDI_TRUST_ANCHORS set, signed definitions will fail verification")
	}

	// Event bus and sinks — ClickHouse or log sink fallback
	bus := events.NewBus(logger)

	var chSink *audit.ClickHouseSink
	if cfg.ClickHouseDSN != "" {
		chSink, err = audit.NewClickHouseSink(cfg.ClickHouseDSN, logger)
		if err != nil {
			logger.Warn("clickhouse connection failed, falling back to log sink",
				zap.Error(err),
			)
			bus.Subscribe("audit-log", audit.NewLogSink(logger))
		} else {
			bus.Subscribe("audit-clickhouse", chSink)
			logger.Info("clickhouse sink connected")
		}
	} else {
		bus.Subscribe("audit-log", audit.NewLogSink(logger))
		logger.Info("no CLICKHOUSE_DSN set, using log sink")
	}

	var bridge *audit.NATSBridge
	if cfg.NATSURL != "" {
		bridge, err = audit.NewNATSBridge(cfg.NATSURL, logger)
		if err != nil {
			logger.Warn("nats connection failed, bridge disabled", zap.Error(err))
		} else {
			bus.Subscribe("audit-nats", bridge)
			logger.Info("nats bridge connected", zap.String("url", cfg.NATSURL))
		}
	}

	prom := metrics.New()
	bus.Subscribe("metrics", prom)

	// Approval store — Postgres or memory fallback
	var (
		store  approval.Store
		chains approval.ChainStore
	)
	if cfg.PostgresDSN != "" {
		db, err := sql.Open("pgx", cfg.PostgresDSN)
		if err != nil {
			logger.Fatal("failed to open postgres", zap.Error(err))
		}
		defer func() { _ = db.Close() }()
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)
		if err := db.PingContext(context.Background()); err != nil {
			logger.Fatal("failed to ping postgres", zap.Error(err))
		}
		pg := approval.NewPostgresStore(db)
		if err := pg.Migrate(context.Background()); err != nil {
			logger.Fatal("failed to migrate approval tables", zap.Error(err))
		}
		store = approval.NewCachedStore(pg, cfg.ApprovalCacheTTL, logger)
		chains = pg
		logger.Info("postgres approval store connected")
	} else {
		mem := approval.NewMemoryStore()
		store = mem
		chains = mem
		logger.Warn("no POSTGRES_DSN set, approvals are in-memory and lost on restart")
	}

	// The trust anchor file may also seed chain approvals.
	if cfg.TrustAnchorsPath != "" {
		n, err := approval.SeedChains(context.Background(), cfg.TrustAnchorsPath, chains)
		if err != nil {
			logger.Fatal("failed to seed chain approvals", zap.Error(err))
		}
		if n > 0 {
			logger.Info("chain approvals seeded", zap.Int("count", n))
		}
	}

	// OAuth providers — JWKS endpoints resolved through a background cache
	registry := oauth.NewProviderRegistry()
	resolverCtx, stopResolvers := context.WithCancel(context.Background())
	defer stopResolvers()
	for _, p := range cfg.OAuthProviders {
		resolver, err := oauth.NewRemoteResolver(resolverCtx, p.JWKSURL)
		if err != nil {
			logger.Warn("jwks registration failed, provider skipped",
				zap.String("issuer", p.Issuer),
				zap.Error(err),
			)
			continue
		}
		if err := registry.Register(p, resolver); err != nil {
			logger.Warn("oauth provider registration failed",
				zap.String("issuer", p.Issuer),
				zap.Error(err),
			)
			continue
		}
		logger.Info("oauth provider registered",
			zap.String("name", p.Name),
			zap.String("issuer", p.Issuer),
		)
	}

	pipe, err := pipeline.New(cfg.Pipeline(), pipeline.Deps{
		Signature: signature.NewVerifier(anchors, bus, logger),
		OAuth:     oauth.NewValidator(registry, bus, logger),
		Drift:     drift.NewDetector(store, bus, logger),
		Approvals: store,
		Calls:     callstack.NewVerifier(chains, bus, logger),
		Bus:       bus,
		Metrics:   prom,
		Logger:    logger,
	})
	if err != nil {
		logger.Fatal("failed to build pipeline", zap.Error(err))
	}

	sessions := callstack.NewSessions(cfg.SessionTTL, logger)

	deps := &server.Dependencies{
		Pipeline:    pipe,
		Sessions:    sessions,
		Approvals:   store,
		Chains:      chains,
		Bus:         bus,
		Metrics:     prom,
		Logger:      logger,
		RequestKeys: anchors,
		Keys:        cfg.APIKeys,
		CacheTTL:    cfg.AuthCacheTTL,
	}
	httpServer := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      server.NewRouter(deps),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	go func() {
		logger.Info("http server listening", zap.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("http server failed", zap.Error(err))
		}
	}()

	// Block until shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("received signal, shutting down", zap.String("signal", sig.String()))

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", zap.Error(err))
	}

	// Stop producers before sinks: sessions first, then the bus drains
	// buffered events into the sinks, then the sinks flush and close.
	sessions.Close()
	bus.Close()
	if chSink != nil {
		chSink.Close()
	}
	if bridge != nil {
		bridge.Close()
	}

	logger.Info("etdi server stopped")
}

func mustBuildLogger(level string) *zap.Logger {
	var zapLevel zapcore.Level
	switch level {
	case "debug":
		zapLevel = zapcore.DebugLevel
	case "warn":
		zapLevel = zapcore.WarnLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	default:
		zapLevel = zapcore.InfoLevel
	}

	cfg := zap.Config{
		Level:            zap.NewAtomicLevelAt(zapLevel),
		Development:      false,
		Encoding:         "json",
		EncoderConfig:    zap.NewProductionEncoderConfig(),
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
	}

	logger, err := cfg.Build()
	if err != nil {
		panic(fmt.Sprintf("failed to build logger: %v", err))
	}
	return logger
}
