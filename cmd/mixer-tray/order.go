package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var orderReset bool

var orderCmd = &cobra.Command{
	Use:   "order",
	Short: "Print the saved application order",
	Long: `Print the display order saved by the tray at shutdown, one name per line.
Use --reset to clear it so applications appear in discovery order.`,
	Args: cobra.NoArgs,
	RunE: runOrder,
}

func init() {
	orderCmd.Flags().BoolVar(&orderReset, "reset", false, "Clear the saved order")
	rootCmd.AddCommand(orderCmd)
}

func runOrder(cmd *cobra.Command, args []string) error {
	cfg, _ := loadConfig()

	if orderReset {
		cfg.SetOrder(nil)
		if err := cfg.Save(); err != nil {
			return fmt.Errorf("failed to save config: %w", err)
		}
		return nil
	}

	for _, name := range cfg.Order() {
		fmt.Fprintln(cmd.OutOrStdout(), name)
	}
	return nil
}
