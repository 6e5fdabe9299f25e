package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"fenrir/internal/common"
	"fenrir/internal/config"
	"fenrir/internal/gateway"
	"fenrir/internal/journal"
	"fenrir/internal/ledger"
	"fenrir/internal/metrics"
	"fenrir/internal/olm"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid config")
	}

	setupLogging(cfg.Logging)

	catalog, err := cfg.BuildCatalog()
	if err != nil {
		log.Fatal().Err(err).Msg("build symbol catalog")
	}
	limits, err := cfg.BuildLimits()
	if err != nil {
		log.Fatal().Err(err).Msg("build risk limits")
	}

	ctx, stop := signal.NotifyContext(
		context.Background(),
		syscall.SIGTERM,
		syscall.SIGINT,
	)
	defer stop()

	sink := journal.NewMemorySink(cfg.Journal.BufferSize)
	book := ledger.New()
	manager := olm.New(catalog, limits, book, sink)
	defer manager.Shutdown()

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	manager.SetMetrics(m)

	if cfg.Metrics.Enabled {
		go serveMetrics(ctx, cfg.Metrics.Address, reg)
	}

	srv := gateway.New(cfg.Gateway.Address, manager, m)
	go func() {
		if err := srv.Run(ctx); err != nil {
			log.Error().Err(err).Msg("gateway exited")
			stop()
		}
	}()

	log.Info().
		Strs("symbols", symbolNames(catalog.Symbols())).
		Str("gateway", cfg.Gateway.Address).
		Msg("fenrir exchange started")

	<-ctx.Done()
	log.Info().Msg("shutting down")
	srv.Shutdown()
}

func setupLogging(c config.LoggingConfig) {
	level, err := zerolog.ParseLevel(c.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	if c.Pretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
}

func serveMetrics(ctx context.Context, address string, reg *prometheus.Registry) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: address, Handler: mux}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Info().Str("address", address).Msg("metrics listening")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Error().Err(err).Msg("metrics server failed")
	}
}

func symbolNames(symbols []common.Symbol) []string {
	out := make([]string, len(symbols))
	for i, s := range symbols {
		out[i] = string(s)
	}
	return out
}
