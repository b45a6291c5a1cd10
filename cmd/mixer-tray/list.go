package main

import (
	"fmt"

	"github.com/petems/mixer-tray/internal/audio"
	"github.com/spf13/cobra"
)

var listHidden bool

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "Print the display names of applications playing audio",
	Long: `Print one display name per line for every process that currently has an
audio stream. Hidden applications are included and marked with --hidden.`,
	Args: cobra.NoArgs,
	RunE: runList,
}

func init() {
	listCmd.Flags().BoolVar(&listHidden, "hidden", false, "Mark hidden applications")
	rootCmd.AddCommand(listCmd)
}

func runList(cmd *cobra.Command, args []string) error {
	cfg, log := loadConfig()

	backend, err := audio.New(cfg.Audio, log)
	if err != nil {
		return fmt.Errorf("failed to initialize audio: %w", err)
	}
	defer backend.Close()

	m := newMixer(cfg, backend, log, nil)
	defer m.Close()

	names, err := m.ActiveDisplayNames(cmd.Context())
	if err != nil {
		return err
	}

	hidden := make(map[string]bool)
	for _, h := range cfg.Hidden() {
		hidden[h] = true
	}
	out := cmd.OutOrStdout()
	for _, name := range names {
		if listHidden && hidden[name] {
			fmt.Fprintf(out, "%s (hidden)\n", name)
			continue
		}
		fmt.Fprintln(out, name)
	}
	return nil
}
