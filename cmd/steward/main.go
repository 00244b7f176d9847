package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/stewardlabs/steward/config"
	"github.com/stewardlabs/steward/gateway"
	"github.com/stewardlabs/steward/observability"
	"github.com/stewardlabs/steward/orchestrator"
	"github.com/stewardlabs/steward/server"
	"github.com/stewardlabs/steward/session"
	"github.com/stewardlabs/steward/tools"
	"github.com/stewardlabs/steward/tools/gcp"
)

func main() {
	var (
		configFile = flag.String("config", "", "Path to config JSON file (optional)")
		addr       = flag.String("addr", "", "Listen address (overrides config)")
		verbose    = flag.Bool("verbose", false, "Enable debug logging")
	)
	flag.Parse()

	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg, err := config.Load(*configFile)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	cfg.ApplyEnv()
	if *addr != "" {
		cfg.Server.Addr = *addr
	}

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))

	registry := tools.NewRegistry()
	if err := gcp.Register(registry, &cfg.Tools); err != nil {
		log.Fatalf("Failed to register GCP tools: %v", err)
	}

	gw, err := gateway.New(&cfg.Gateway)
	if err != nil {
		log.Fatalf("Failed to create model gateway: %v", err)
	}

	store, err := session.New(&cfg.Session)
	if err != nil {
		log.Fatalf("Failed to create session store: %v", err)
	}

	promRegistry := prometheus.NewRegistry()
	promRegistry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	observer := observability.NewMultiObserver(
		observability.NewSlogObserver(logger),
		observability.NewPrometheusObserver(promRegistry),
	)

	orc := orchestrator.New(&cfg.Orchestrator, gw, store, registry,
		orchestrator.WithObserver(observer))

	metrics := promhttp.HandlerFor(promRegistry, promhttp.HandlerOpts{})
	srv := server.New(&cfg.Server, orc, logger, metrics)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("starting steward",
		"addr", cfg.Server.Addr,
		"model", cfg.Gateway.Model,
		"tools", len(registry.Specs()))

	if err := srv.Run(ctx); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}
