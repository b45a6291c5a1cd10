package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/gofrs/flock"
	"github.com/petems/mixer-tray/internal/app"
	"github.com/petems/mixer-tray/internal/audio"
	"github.com/petems/mixer-tray/internal/config"
	"github.com/petems/mixer-tray/internal/mixer"
	"github.com/petems/mixer-tray/internal/procinfo"
	"github.com/petems/mixer-tray/internal/tray"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var errAlreadyRunning = errors.New("mixer-tray is already running")

func runTray(cmd *cobra.Command, args []string) error {
	cfg, log := loadConfig()

	// One tray per user session
	lockPath := filepath.Join(filepath.Dir(cfg.Path()), filepath.Base(config.LockPath()))
	if err := os.MkdirAll(filepath.Dir(lockPath), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	instance := flock.New(lockPath)
	locked, err := instance.TryLock()
	if err != nil {
		return fmt.Errorf("acquiring instance lock: %w", err)
	}
	if !locked {
		return errAlreadyRunning
	}
	defer func() { _ = instance.Unlock() }()

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	// Without an audio server the tray still starts, with an inert mixer.
	var backend audio.Backend
	if b, err := audio.New(cfg.Audio, log); err != nil {
		log.Error().Err(err).Msg("Failed to initialize audio")
	} else {
		backend = b
		defer b.Close()
	}

	// Create tray UI first (we'll pass it to app)
	trayUI := tray.New(nil, Version, Commit) // App reference set below
	trayUI.SetLogger(log)

	m := newMixer(cfg, backend, log, trayUI)

	application := app.New(app.Config{
		Mixer:         m,
		Config:        cfg,
		Logger:        log,
		StatusUpdater: trayUI,
	})
	trayUI.SetApp(application)

	if err := application.Start(ctx); err != nil {
		return err
	}

	log.Info().Str("version", Version).Msg("MixerTray starting...")

	// Setup shutdown signal handling
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case <-sigChan:
			log.Info().Msg("Shutting down...")
			cancel()
		case <-ctx.Done():
		}
	}()

	// Start tray UI - MUST run on main thread
	if err := trayUI.Run(ctx); err != nil {
		log.Error().Err(err).Msg("Tray error")
	}

	if err := application.Shutdown(context.Background()); err != nil {
		log.Error().Err(err).Msg("Shutdown error")
		return err
	}
	return nil
}

// newMixer wires the mixer to the audio backend. Stream descriptions from
// the backend take precedence over process names.
func newMixer(cfg *config.Config, backend audio.Backend, log zerolog.Logger, observer mixer.Observer) *mixer.Mixer {
	var describer procinfo.Describer
	if d, ok := backend.(audio.Describer); ok {
		describer = d
	}

	return mixer.New(mixer.Config{
		Backend:      backend,
		Names:        procinfo.WithDescriptions(describer, procinfo.System{}),
		Logger:       log,
		Hidden:       cfg.Hidden(),
		Order:        cfg.Order(),
		PeakInterval: cfg.PeakInterval(),
		SyncInterval: cfg.SyncInterval(),
		SyncTimeout:  cfg.SyncTimeout(),
		Observer:     observer,
	})
}
