package dataset

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/hyperengineering/cinelines/internal/objectstore"
	"github.com/hyperengineering/cinelines/internal/types"
)

// Object keys of the four corpus files.
const (
	MoviesFile        = "movies.csv"
	CharactersFile    = "characters.csv"
	ConversationsFile = "conversations.csv"
	LinesFile         = "lines.csv"
)

// Load reads movies and characters from static and the conversation and
// line logs from logs, concurrently. A missing log means no records yet;
// missing static files are an error.
func Load(ctx context.Context, static, logs objectstore.Bucket) (*types.Dataset, error) {
	var ds types.Dataset
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		data, err := static.Get(ctx, MoviesFile)
		if err != nil {
			return err
		}
		ds.Movies, err = ReadMovies(bytes.NewReader(data))
		return err
	})
	g.Go(func() error {
		data, err := static.Get(ctx, CharactersFile)
		if err != nil {
			return err
		}
		ds.Characters, err = ReadCharacters(bytes.NewReader(data))
		return err
	})
	g.Go(func() error {
		data, err := getLog(ctx, logs, ConversationsFile)
		if err != nil || data == nil {
			return err
		}
		ds.Conversations, err = ReadConversations(bytes.NewReader(data))
		return err
	})
	g.Go(func() error {
		data, err := getLog(ctx, logs, LinesFile)
		if err != nil || data == nil {
			return err
		}
		ds.Lines, err = ReadLines(bytes.NewReader(data))
		return err
	})

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("load dataset: %w", err)
	}

	slog.Info("dataset loaded",
		"movies", len(ds.Movies),
		"characters", len(ds.Characters),
		"conversations", len(ds.Conversations),
		"lines", len(ds.Lines),
		"logs", logs.Location(),
	)
	return &ds, nil
}

func getLog(ctx context.Context, logs objectstore.Bucket, key string) ([]byte, error) {
	data, err := logs.Get(ctx, key)
	if errors.Is(err, objectstore.ErrNotExist) {
		slog.Warn("log not found, starting empty", "key", key, "location", logs.Location())
		return nil, nil
	}
	return data, err
}
