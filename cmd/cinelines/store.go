package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/hyperengineering/cinelines/internal/config"
	"github.com/hyperengineering/cinelines/internal/dataset"
	"github.com/hyperengineering/cinelines/internal/objectstore"
	"github.com/hyperengineering/cinelines/internal/store"
	"github.com/hyperengineering/cinelines/internal/types"
)

// openStore opens the configured backend. The memory backend loads the
// dataset and persists ingested records back to the log bucket.
func openStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	switch cfg.Storage.Backend {
	case config.BackendMemory:
		logs, err := objectstore.New(cfg.ObjectStorage, cfg.Dataset.Dir)
		if err != nil {
			return nil, err
		}
		ds, err := loadDataset(ctx, cfg, logs)
		if err != nil {
			return nil, err
		}
		s, err := store.NewMemoryStore(ds, dataset.NewLogPersister(logs))
		if err != nil {
			return nil, err
		}
		return s, nil
	case config.BackendSQLite, config.BackendPostgres:
		s, err := openSQLStore(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
}

// openSQLStore opens the configured SQL backend and runs migrations.
func openSQLStore(ctx context.Context, cfg *config.Config) (*store.SQLStore, error) {
	switch cfg.Storage.Backend {
	case config.BackendSQLite:
		return store.NewSQLiteStore(cfg.Storage.SQLitePath)
	case config.BackendPostgres:
		return store.NewPostgresStore(ctx, cfg.Storage.PostgresDSN, store.PoolConfig{
			MaxOpenConns:    cfg.Storage.MaxOpenConns,
			MaxIdleConns:    cfg.Storage.MaxIdleConns,
			ConnMaxLifetime: time.Duration(cfg.Storage.ConnMaxLifetime),
		})
	default:
		return nil, fmt.Errorf("backend %q is not a SQL backend", cfg.Storage.Backend)
	}
}

// loadDataset reads movies and characters from the dataset directory and
// the logs from logs.
func loadDataset(ctx context.Context, cfg *config.Config, logs objectstore.Bucket) (*types.Dataset, error) {
	return dataset.Load(ctx, objectstore.NewDirBucket(cfg.Dataset.Dir), logs)
}

// printJSON marshals v to JSON and writes to the given writer.
func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// newTabWriter returns a configured tabwriter for aligned columns.
func newTabWriter(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
}
