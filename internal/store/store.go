package store

import (
	"context"
	"iter"

	"github.com/hyperengineering/cinelines/internal/types"
)

// Reader is the read half of the record store contract.
//
// Get methods return ErrNotFound for unknown ids. Scan methods yield matching
// records lazily in ascending id order; a nil match accepts every record. A scan
// that fails yields a single non-nil error and stops.
type Reader interface {
	GetMovie(ctx context.Context, id int) (*types.Movie, error)
	GetCharacter(ctx context.Context, id int) (*types.Character, error)
	GetConversation(ctx context.Context, id int) (*types.Conversation, error)
	GetLine(ctx context.Context, id int) (*types.Line, error)
	ScanCharacters(ctx context.Context, match func(*types.Character) bool) iter.Seq2[*types.Character, error]
	ScanConversations(ctx context.Context, match func(*types.Conversation) bool) iter.Seq2[*types.Conversation, error]
	ScanLines(ctx context.Context, match func(*types.Line) bool) iter.Seq2[*types.Line, error]
}

// Writer extends Reader with the append-only mutations.
//
// Next*ID return max(existing id)+1, or 0 for an empty collection. Append
// methods reject ids that would break the strictly increasing order with
// ErrIDOutOfOrder. AppendLine also increments the line_count of the speaking
// character and of the conversation.
//
// A Reader or Writer is only valid inside the callback that received it, and
// no other call may be made on it while a scan is being iterated.
type Writer interface {
	Reader
	NextConversationID(ctx context.Context) (int, error)
	NextLineID(ctx context.Context) (int, error)
	AppendConversation(ctx context.Context, conv *types.Conversation) (int, error)
	AppendLine(ctx context.Context, line *types.Line) (int, error)
}

// Store defines the interface contract for all record storage backends.
//
// View runs fn against a consistent point-in-time view. Update runs fn as one
// serialized, all-or-nothing unit of work: if fn or the backend's persistence
// step fails, no mutation made by fn is visible afterwards.
type Store interface {
	View(ctx context.Context, fn func(Reader) error) error
	Update(ctx context.Context, fn func(Writer) error) error
	Stats(ctx context.Context) (*types.StoreStats, error)
	Close() error
}

// Importer is implemented by backends that can bulk-load a dataset.
type Importer interface {
	Import(ctx context.Context, ds *types.Dataset) error
}

// Collect drains a scan into a slice, stopping at the first error.
func Collect[T any](seq iter.Seq2[T, error]) ([]T, error) {
	var out []T
	for v, err := range seq {
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// Count drains a scan and returns the number of records it yielded.
func Count[T any](seq iter.Seq2[T, error]) (int, error) {
	n := 0
	for _, err := range seq {
		if err != nil {
			return 0, err
		}
		n++
	}
	return n, nil
}
