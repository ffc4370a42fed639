package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hyperengineering/cinelines/internal/config"
	"github.com/hyperengineering/cinelines/internal/objectstore"
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Load the CSV dataset into the configured SQL store",
	Long: "Reads movies and characters from the dataset directory and the conversation and\n" +
		"line logs from object storage, then inserts everything into an empty SQL store\n" +
		"in one transaction.",
	Args: cobra.NoArgs,
	RunE: runImport,
}

func runImport(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if cfg.Storage.Backend == config.BackendMemory {
		return fmt.Errorf("import needs a SQL backend; set CINELINES_STORAGE_BACKEND to %q or %q",
			config.BackendSQLite, config.BackendPostgres)
	}

	logs, err := objectstore.New(cfg.ObjectStorage, cfg.Dataset.Dir)
	if err != nil {
		return err
	}
	ds, err := loadDataset(ctx, cfg, logs)
	if err != nil {
		return err
	}

	db, err := openSQLStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	stats, err := db.Stats(ctx)
	if err != nil {
		return fmt.Errorf("read stats: %w", err)
	}
	if stats.Movies+stats.Characters+stats.Conversations+stats.Lines > 0 {
		return fmt.Errorf("store already contains data (%d movies, %d lines)", stats.Movies, stats.Lines)
	}

	if err := db.Import(ctx, ds); err != nil {
		return fmt.Errorf("import: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Imported %d movies, %d characters, %d conversations, %d lines\n",
		len(ds.Movies), len(ds.Characters), len(ds.Conversations), len(ds.Lines))
	return nil
}
