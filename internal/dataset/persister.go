package dataset

import (
	"bytes"
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/hyperengineering/cinelines/internal/objectstore"
	"github.com/hyperengineering/cinelines/internal/types"
)

// LogPersister rewrites conversations.csv and lines.csv in a bucket. It
// satisfies store.Persister.
type LogPersister struct {
	bucket objectstore.Bucket
}

// NewLogPersister returns a persister writing to bucket.
func NewLogPersister(bucket objectstore.Bucket) *LogPersister {
	return &LogPersister{bucket: bucket}
}

// Persist encodes both logs and uploads them concurrently.
func (p *LogPersister) Persist(ctx context.Context, convs []types.Conversation, lines []types.Line) error {
	var convBuf, lineBuf bytes.Buffer
	if err := WriteConversations(&convBuf, convs); err != nil {
		return fmt.Errorf("encode conversations: %w", err)
	}
	if err := WriteLines(&lineBuf, lines); err != nil {
		return fmt.Errorf("encode lines: %w", err)
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return p.bucket.Put(ctx, ConversationsFile, convBuf.Bytes()) })
	g.Go(func() error { return p.bucket.Put(ctx, LinesFile, lineBuf.Bytes()) })
	return g.Wait()
}
