package main

import (
	"github.com/petems/mixer-tray/internal/config"
	"github.com/petems/mixer-tray/internal/logging"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "mixer-tray",
	Short: "Per-application volume mixer in the system tray",
	Long: `mixer-tray groups the audio streams of running applications by name and
shows one volume, mute and level meter per application next to the master
output device.

Run without a subcommand to start the tray.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	Args:          cobra.NoArgs,
	RunE:          runTray,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default "+config.Path()+")")
	rootCmd.SetVersionTemplate("mixer-tray {{.Version}} (" + Commit + ")\n")
}

func execute() int {
	if err := rootCmd.Execute(); err != nil {
		logging.NewWithLevel("error").Error().Err(err).Msg("mixer-tray failed")
		return 1
	}
	return 0
}

// loadConfig reads the config named by --config or the platform default. A
// malformed file is reported and replaced by defaults.
func loadConfig() (*config.Config, zerolog.Logger) {
	path := configPath
	if path == "" {
		path = config.Path()
	}
	cfg, err := config.LoadFrom(path)
	log := logging.NewWithLevel(cfg.LogLevel)
	if err != nil {
		log.Warn().Err(err).Str("path", path).Msg("Using default config")
	}
	return cfg, log
}
