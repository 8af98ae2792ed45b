package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/enplayer/sr-engine/internal/api"
	"github.com/enplayer/sr-engine/internal/config"
	"github.com/enplayer/sr-engine/internal/events"
	"github.com/enplayer/sr-engine/internal/extract"
	"github.com/enplayer/sr-engine/internal/recognize"
	"github.com/enplayer/sr-engine/internal/settings"
)

var version = "dev"

func main() {
	startTime := time.Now()

	// Flags
	var overrides config.Overrides
	flag.StringVar(&overrides.EnvFile, "env-file", "", "path to .env file")
	flag.StringVar(&overrides.HTTPAddr, "addr", "", "HTTP listen address")
	flag.StringVar(&overrides.LogLevel, "log-level", "", "log level (trace|debug|info|warn|error)")
	flag.StringVar(&overrides.SettingsPath, "settings", "", "path to the settings profile")
	flag.StringVar(&overrides.MediaDir, "media-dir", "", "directory holding input media")
	flag.StringVar(&overrides.ModelPath, "model", "", "local speech model, overrides the profile")
	flag.Parse()

	// Config
	cfg, err := config.Load(overrides)
	if err != nil {
		early := zerolog.New(os.Stderr).With().Timestamp().Logger()
		early.Fatal().Err(err).Msg("failed to load config")
	}

	// Logger
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	log := zerolog.New(os.Stdout).With().Timestamp().Logger().Level(level)
	log.Info().Str("version", version).Msg("sr-engine starting")

	// Context for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Settings profile
	profile, err := settings.Load(cfg.SettingsPath)
	if err != nil {
		log.Warn().Err(err).Str("path", cfg.SettingsPath).Msg("unreadable settings profile, using defaults")
		profile = settings.Default()
	}
	mgr := settings.NewManager(cfg.SettingsPath, profile, log)

	watcher := settings.NewWatcher(mgr, log)
	if err := watcher.Start(); err != nil {
		log.Warn().Err(err).Msg("settings file watching disabled")
	}
	defer watcher.Stop()

	// Audio extraction
	extractor, err := extract.New(extract.Config{
		Command:  profile.DecoderCommand,
		TempDir:  cfg.TempDir,
		BaseWait: cfg.ExtractTimeout,
		MaxWait:  cfg.ExtractTimeoutMax,
		Log:      log,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("invalid decoder command")
	}
	probeCtx, cancelProbe := context.WithTimeout(ctx, 5*time.Second)
	if err := extractor.Probe(probeCtx); err != nil {
		log.Warn().Err(err).Msg("audio decoder unavailable, video recognition will fail")
	}
	cancelProbe()

	sweeper := extract.NewSweeper(extractor.TempDir(), cfg.TempMaxAge, cfg.SweepInterval, log)
	sweeper.Start()
	defer sweeper.Stop()

	// Event bus
	bus := events.NewBus(cfg.EventBuffer)

	// Recognition engine
	rec := recognize.New(recognize.Options{
		Settings:  mgr,
		Extractor: extractor,
		Callbacks: bus.Callbacks(),
		StopWait:  cfg.StopWait,
		Log:       log,
	})
	rec.Initialize(cfg.ModelPath)
	if !rec.LocalReady() && mgr.Current().APIURL == "" {
		log.Warn().Msg("no usable backend, configure a model or remote api")
	}
	unsubscribe := mgr.Subscribe(rec.ApplySettings)
	defer unsubscribe()

	// HTTP Server
	httpLog := log.With().Str("component", "http").Logger()
	srv := api.NewServer(cfg, rec, mgr, bus, extractor.Probe, version, startTime, httpLog)

	// Start HTTP server in background
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	// Wait for shutdown signal or server error
	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			log.Error().Err(err).Msg("http server error")
		}
	}

	// Graceful shutdown with 10s timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http server shutdown error")
	}
	rec.Close()

	log.Info().Msg("sr-engine stopped")
}
