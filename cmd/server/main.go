package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"

	"dexdash-backend/internal/balance"
	"dexdash-backend/internal/chains"
	"dexdash-backend/internal/config"
	"dexdash-backend/internal/dexapi"
	"dexdash-backend/internal/evmrpc"
	"dexdash-backend/internal/pricefeed"
	"dexdash-backend/internal/quote"
	"dexdash-backend/internal/server"
	"dexdash-backend/internal/swap"
	"dexdash-backend/internal/wallets"
)

var log zerolog.Logger

func init() {
	out := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	log = zerolog.New(out).With().Timestamp().Logger()
}

func main() {
	configPath := flag.String("config", "", "optional TOML config file; env is used when empty")
	flag.Parse()

	var cfgPath *string
	if *configPath != "" {
		cfgPath = configPath
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}

	if cfg.LogFile != "" {
		fileOut := &lumberjack.Logger{
			Filename:   cfg.LogFile,
			MaxSize:    100, // megabytes
			MaxBackups: 5,
			MaxAge:     14, // days
		}
		console := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
		log = zerolog.New(zerolog.MultiLevelWriter(console, fileOut)).With().Timestamp().Logger()
	}

	// Share the logger with every component
	server.SetLogger(log)
	evmrpc.SetLogger(log)
	balance.SetLogger(log)
	swap.SetLogger(log)
	dexapi.SetLogger(log)
	pricefeed.SetLogger(log)

	log.Info().Str("address", cfg.Address()).Msg("Starting trading dashboard backend")

	chainConfigs, err := cfg.Chains()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load chain configs")
	}
	registry, err := chains.NewRegistry(chainConfigs)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to build chain registry")
	}
	log.Info().Int("count", len(chainConfigs)).Msg("Loaded chains")

	pool := evmrpc.NewPool(registry, cfg.RPCTimeout())
	defer pool.Close()

	aggregator := balance.NewAggregator(registry, pool, cfg.MaxTokens, cfg.MaxConcurrentLookups)

	dex := dexapi.NewClient(cfg.OKXBaseURL, cfg.OKXAPIKey, cfg.RPCTimeout())
	if !dex.Configured() {
		log.Warn().Msg("No aggregator API key configured, serving local quotes only")
	}

	prices := pricefeed.NewStore()
	engine := quote.NewEngine(registry, prices, cfg.Debounce(), cfg.SlippageDefault).WithTTL(cfg.QuoteTTL())
	executor := swap.NewExecutor(swap.SimulatedWatcher(3*time.Second, 0.9))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	poller := pricefeed.NewPoller(dex, prices, cfg.PriceSymbols, time.Duration(cfg.PricePollSeconds)*time.Second)
	go poller.Run(ctx)

	srv := server.NewServer(cfg, server.Deps{
		Registry:   registry,
		Pool:       pool,
		Aggregator: aggregator,
		Engine:     engine,
		Executor:   executor,
		Dex:        dex,
		Prices:     prices,
		Wallets:    wallets.NewStaticDiscoverer(nil),
	})

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		if err := srv.Start(); err != nil {
			log.Error().Err(err).Msg("Server error")
			sigCh <- syscall.SIGTERM
		}
	}()

	sig := <-sigCh
	log.Info().Str("signal", sig.String()).Msg("Received shutdown signal")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Graceful shutdown failed")
	}
	log.Info().Msg("Server stopped")
}
