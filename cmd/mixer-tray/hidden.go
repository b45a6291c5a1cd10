package main

import (
	"fmt"
	"slices"
	"strings"

	"github.com/spf13/cobra"
)

var hideCmd = &cobra.Command{
	Use:   "hide NAME...",
	Short: "Hide applications from the mixer",
	Long: `Add display names to the hidden list. A running tray picks up the change
within a few seconds.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return editHidden(cmd, func(hidden []string) []string {
			for _, name := range args {
				if name = strings.TrimSpace(name); name != "" && !slices.Contains(hidden, name) {
					hidden = append(hidden, name)
				}
			}
			return hidden
		})
	},
}

var unhideCmd = &cobra.Command{
	Use:   "unhide NAME...",
	Short: "Show previously hidden applications again",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return editHidden(cmd, func(hidden []string) []string {
			return slices.DeleteFunc(hidden, func(h string) bool {
				return slices.Contains(args, h)
			})
		})
	},
}

func init() {
	rootCmd.AddCommand(hideCmd)
	rootCmd.AddCommand(unhideCmd)
}

func editHidden(cmd *cobra.Command, fn func([]string) []string) error {
	cfg, log := loadConfig()

	hidden := fn(cfg.Hidden())
	cfg.SetHidden(hidden)
	if err := cfg.Save(); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}
	log.Debug().Strs("hidden", hidden).Str("path", cfg.Path()).Msg("Saved hidden apps")

	out := cmd.OutOrStdout()
	if len(hidden) == 0 {
		fmt.Fprintln(out, "No hidden applications")
		return nil
	}
	for _, name := range hidden {
		fmt.Fprintln(out, name)
	}
	return nil
}
