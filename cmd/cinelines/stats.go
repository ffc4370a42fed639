package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hyperengineering/cinelines/internal/config"
)

var statsJSONOutput bool

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show record counts of the configured store",
	Args:  cobra.NoArgs,
	RunE:  runStats,
}

func init() {
	statsCmd.Flags().BoolVar(&statsJSONOutput, "json", false, "Output in JSON format")
}

func runStats(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	db, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	stats, err := db.Stats(ctx)
	if err != nil {
		return fmt.Errorf("read stats: %w", err)
	}

	if statsJSONOutput {
		return printJSON(cmd.OutOrStdout(), map[string]any{
			"backend": cfg.Storage.Backend,
			"counts":  stats,
		})
	}

	w := newTabWriter(cmd.OutOrStdout())
	fmt.Fprintf(w, "Backend:\t%s\n", cfg.Storage.Backend)
	fmt.Fprintf(w, "Movies:\t%d\n", stats.Movies)
	fmt.Fprintf(w, "Characters:\t%d\n", stats.Characters)
	fmt.Fprintf(w, "Conversations:\t%d\n", stats.Conversations)
	fmt.Fprintf(w, "Lines:\t%d\n", stats.Lines)
	return w.Flush()
}
