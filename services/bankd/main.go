package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"golang.org/x/sync/errgroup"

	market "cdpbank/config"
	"cdpbank/core/bank"
	"cdpbank/observability/logging"
	telemetry "cdpbank/observability/otel"
	"cdpbank/services/bankd/config"
	"cdpbank/services/bankd/journal"
	"cdpbank/services/bankd/keeper"
	"cdpbank/services/bankd/middleware"
	"cdpbank/services/bankd/server"
	"cdpbank/storage"
)

func main() {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "services/bankd/config.yaml", "path to bankd configuration file")
	flag.Parse()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("bankd: load config: %v", err)
	}

	env := strings.TrimSpace(os.Getenv("BANK_ENV"))
	logger := logging.Setup(logging.Options{
		Service:    "bankd",
		Env:        env,
		Level:      cfg.Log.Level,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
	})

	if !cfg.Telemetry.Disabled {
		shutdownTelemetry, err := telemetry.Init(context.Background(), telemetry.Config{
			ServiceName: "bankd",
			Environment: env,
			Endpoint:    cfg.Telemetry.Endpoint,
			Insecure:    cfg.Telemetry.Insecure,
			Headers:     telemetry.ParseHeaders(os.Getenv("OTEL_EXPORTER_OTLP_HEADERS")),
			Metrics:     true,
			Traces:      true,
			SampleRatio: cfg.Telemetry.SampleRatio,
		})
		if err != nil {
			log.Fatalf("bankd: init telemetry: %v", err)
		}
		defer func() { _ = shutdownTelemetry(context.Background()) }()
	}

	if err := run(cfg, logger); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("bankd: exited", slog.Any("error", err))
		os.Exit(1)
	}
}

func openState(cfg config.StateConfig) (storage.Database, error) {
	switch cfg.Backend {
	case "leveldb":
		return storage.NewLevelDB(cfg.Path)
	case "bolt":
		return storage.NewBoltDB(cfg.Path)
	case "memory":
		return storage.NewMemDB(), nil
	default:
		return nil, fmt.Errorf("unsupported state backend %q", cfg.Backend)
	}
}

func run(cfg config.Config, logger *slog.Logger) error {
	m, err := market.Load(cfg.MarketPath)
	if err != nil {
		return fmt.Errorf("load market: %w", err)
	}
	params, err := m.Params()
	if err != nil {
		return fmt.Errorf("market params: %w", err)
	}

	db, err := openState(cfg.State)
	if err != nil {
		return fmt.Errorf("open state: %w", err)
	}
	b := bank.New(db, bank.Config{Stable: params.Stable, Risk: params.Risk, Bar: params.Bar})
	b.SetLogger(logger)
	defer b.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := b.Bootstrap(ctx, params); err != nil {
		return fmt.Errorf("bootstrap: %w", err)
	}

	j, err := journal.Open(cfg.Journal.Driver, cfg.Journal.DSN)
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}
	defer j.Close()

	auth, err := middleware.NewAuthenticator(middleware.AuthConfig{
		HMACSecret: cfg.Admin.Secret(),
		Issuer:     cfg.Admin.Issuer,
		Audience:   cfg.Admin.Audience,
		AdminScope: cfg.Admin.AdminScope,
		ClockSkew:  cfg.Admin.ClockSkew.Duration,
	}, logger)
	if err != nil {
		return fmt.Errorf("authenticator: %w", err)
	}
	limiter := middleware.NewRateLimiter(middleware.RateLimit{
		RequestsPerMinute: cfg.RateLimit.RequestsPerMinute,
		Burst:             cfg.RateLimit.Burst,
	})

	srv, err := server.New(server.Config{ListenAddress: cfg.ListenAddress}, b, j, auth, limiter, logger)
	if err != nil {
		return fmt.Errorf("server: %w", err)
	}

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error { return srv.Run(ctx) })
	if !cfg.Keeper.Disabled {
		k, err := keeper.New(b, j, cfg.Keeper.Interval.Duration, logger)
		if err != nil {
			return fmt.Errorf("keeper: %w", err)
		}
		group.Go(func() error { return k.Run(ctx) })
	}
	return group.Wait()
}
