package store

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"slices"
	"sync"

	"github.com/hyperengineering/cinelines/internal/types"
)

// Persister writes the mutable collections somewhere durable after a
// successful Update. It always receives the full collections in id order.
type Persister interface {
	Persist(ctx context.Context, conversations []types.Conversation, lines []types.Line) error
}

// MemoryStore holds the whole dataset in memory. Movies and characters are
// fixed at construction; conversations and lines grow through Update.
type MemoryStore struct {
	mu     sync.RWMutex
	closed bool

	movies        map[int]*types.Movie
	characters    map[int]*types.Character
	conversations map[int]*types.Conversation
	lines         map[int]*types.Line

	// Ascending ids, so the last element is the current maximum.
	characterOrder    []int
	conversationOrder []int
	lineOrder         []int

	persister Persister
}

// NewMemoryStore builds a store from a dataset. Derived line counts are
// recomputed from the lines. persister may be nil.
func NewMemoryStore(ds *types.Dataset, persister Persister) (*MemoryStore, error) {
	s := &MemoryStore{
		movies:        make(map[int]*types.Movie, len(ds.Movies)),
		characters:    make(map[int]*types.Character, len(ds.Characters)),
		conversations: make(map[int]*types.Conversation, len(ds.Conversations)),
		lines:         make(map[int]*types.Line, len(ds.Lines)),
		persister:     persister,
	}

	for i := range ds.Movies {
		m := ds.Movies[i]
		if _, dup := s.movies[m.ID]; dup {
			return nil, fmt.Errorf("duplicate movie id %d", m.ID)
		}
		s.movies[m.ID] = &m
	}
	for i := range ds.Characters {
		c := ds.Characters[i]
		if _, dup := s.characters[c.ID]; dup {
			return nil, fmt.Errorf("duplicate character id %d", c.ID)
		}
		c.LineCount = 0
		s.characters[c.ID] = &c
		s.characterOrder = append(s.characterOrder, c.ID)
	}
	for i := range ds.Conversations {
		c := ds.Conversations[i]
		if _, dup := s.conversations[c.ID]; dup {
			return nil, fmt.Errorf("duplicate conversation id %d", c.ID)
		}
		c.LineCount = 0
		s.conversations[c.ID] = &c
		s.conversationOrder = append(s.conversationOrder, c.ID)
	}
	for i := range ds.Lines {
		l := ds.Lines[i]
		if _, dup := s.lines[l.ID]; dup {
			return nil, fmt.Errorf("duplicate line id %d", l.ID)
		}
		s.lines[l.ID] = &l
		s.lineOrder = append(s.lineOrder, l.ID)
		if c, ok := s.characters[l.CharacterID]; ok {
			c.LineCount++
		}
		if c, ok := s.conversations[l.ConversationID]; ok {
			c.LineCount++
		}
	}

	slices.Sort(s.characterOrder)
	slices.Sort(s.conversationOrder)
	slices.Sort(s.lineOrder)

	return s, nil
}

// View runs fn under a shared lock.
func (s *MemoryStore) View(ctx context.Context, fn func(Reader) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return ErrClosed
	}
	return fn(memReader{s: s})
}

// Update runs fn under the exclusive lock. If fn fails, or the persister
// rejects the new state, every append made by fn is undone.
func (s *MemoryStore) Update(ctx context.Context, fn func(Writer) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}

	w := &memWriter{memReader: memReader{s: s}}
	if err := fn(w); err != nil {
		w.rollback()
		return err
	}
	if s.persister == nil || w.empty() {
		return nil
	}

	// Once committed in memory the write must reach the sink even if the
	// caller goes away.
	ctx = context.WithoutCancel(ctx)
	if err := s.persister.Persist(ctx, s.conversationSnapshot(), s.lineSnapshot()); err != nil {
		w.rollback()
		perr := fmt.Errorf("persist: %w", err)
		// The sink may hold a partial write; put the pre-update state back.
		if rerr := s.persister.Persist(ctx, s.conversationSnapshot(), s.lineSnapshot()); rerr != nil {
			return errors.Join(perr, fmt.Errorf("restore persisted state: %w", rerr))
		}
		return perr
	}
	return nil
}

// Stats returns collection sizes.
func (s *MemoryStore) Stats(ctx context.Context) (*types.StoreStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrClosed
	}
	return &types.StoreStats{
		Movies:        int64(len(s.movies)),
		Characters:    int64(len(s.characters)),
		Conversations: int64(len(s.conversations)),
		Lines:         int64(len(s.lines)),
	}, nil
}

// Close marks the store closed. Later calls return ErrClosed.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *MemoryStore) conversationSnapshot() []types.Conversation {
	out := make([]types.Conversation, len(s.conversationOrder))
	for i, id := range s.conversationOrder {
		out[i] = *s.conversations[id]
	}
	return out
}

func (s *MemoryStore) lineSnapshot() []types.Line {
	out := make([]types.Line, len(s.lineOrder))
	for i, id := range s.lineOrder {
		out[i] = *s.lines[id]
	}
	return out
}

// memReader hands out copies so callers cannot mutate stored records.
type memReader struct {
	s *MemoryStore
}

func (r memReader) GetMovie(ctx context.Context, id int) (*types.Movie, error) {
	return getCopy(r.s.movies, "movie", id)
}

func (r memReader) GetCharacter(ctx context.Context, id int) (*types.Character, error) {
	return getCopy(r.s.characters, "character", id)
}

func (r memReader) GetConversation(ctx context.Context, id int) (*types.Conversation, error) {
	return getCopy(r.s.conversations, "conversation", id)
}

func (r memReader) GetLine(ctx context.Context, id int) (*types.Line, error) {
	return getCopy(r.s.lines, "line", id)
}

func getCopy[T any](m map[int]*T, kind string, id int) (*T, error) {
	v, ok := m[id]
	if !ok {
		return nil, fmt.Errorf("%s %d: %w", kind, id, ErrNotFound)
	}
	c := *v
	return &c, nil
}

func (r memReader) ScanCharacters(ctx context.Context, match func(*types.Character) bool) iter.Seq2[*types.Character, error] {
	return scanMap(ctx, r.s.characterOrder, r.s.characters, match)
}

func (r memReader) ScanConversations(ctx context.Context, match func(*types.Conversation) bool) iter.Seq2[*types.Conversation, error] {
	return scanMap(ctx, r.s.conversationOrder, r.s.conversations, match)
}

func (r memReader) ScanLines(ctx context.Context, match func(*types.Line) bool) iter.Seq2[*types.Line, error] {
	return scanMap(ctx, r.s.lineOrder, r.s.lines, match)
}

func scanMap[T any](ctx context.Context, order []int, m map[int]*T, match func(*T) bool) iter.Seq2[*T, error] {
	return func(yield func(*T, error) bool) {
		for i, id := range order {
			if i%1024 == 0 {
				if err := ctx.Err(); err != nil {
					yield(nil, err)
					return
				}
			}
			v := m[id]
			if match != nil && !match(v) {
				continue
			}
			c := *v
			if !yield(&c, nil) {
				return
			}
		}
	}
}

// memWriter records what it appended so a failed Update can be undone.
type memWriter struct {
	memReader
	appendedConversations int
	appendedLines         []*types.Line
}

func (w *memWriter) empty() bool {
	return w.appendedConversations == 0 && len(w.appendedLines) == 0
}

func (w *memWriter) NextConversationID(ctx context.Context) (int, error) {
	return nextFromOrder(w.s.conversationOrder), nil
}

func (w *memWriter) NextLineID(ctx context.Context) (int, error) {
	return nextFromOrder(w.s.lineOrder), nil
}

func nextFromOrder(order []int) int {
	if len(order) == 0 {
		return 0
	}
	return order[len(order)-1] + 1
}

func (w *memWriter) AppendConversation(ctx context.Context, conv *types.Conversation) (int, error) {
	if next := nextFromOrder(w.s.conversationOrder); conv.ID < next {
		return 0, fmt.Errorf("conversation %d (next %d): %w", conv.ID, next, ErrIDOutOfOrder)
	}
	if _, ok := w.s.movies[conv.MovieID]; !ok {
		return 0, fmt.Errorf("movie %d: %w", conv.MovieID, ErrNotFound)
	}
	for _, id := range []int{conv.Character1ID, conv.Character2ID} {
		if _, ok := w.s.characters[id]; !ok {
			return 0, fmt.Errorf("character %d: %w", id, ErrNotFound)
		}
	}

	stored := *conv
	stored.LineCount = 0
	w.s.conversations[stored.ID] = &stored
	w.s.conversationOrder = append(w.s.conversationOrder, stored.ID)
	w.appendedConversations++
	return stored.ID, nil
}

func (w *memWriter) AppendLine(ctx context.Context, line *types.Line) (int, error) {
	if next := nextFromOrder(w.s.lineOrder); line.ID < next {
		return 0, fmt.Errorf("line %d (next %d): %w", line.ID, next, ErrIDOutOfOrder)
	}
	if _, ok := w.s.movies[line.MovieID]; !ok {
		return 0, fmt.Errorf("movie %d: %w", line.MovieID, ErrNotFound)
	}
	character, ok := w.s.characters[line.CharacterID]
	if !ok {
		return 0, fmt.Errorf("character %d: %w", line.CharacterID, ErrNotFound)
	}
	conv, ok := w.s.conversations[line.ConversationID]
	if !ok {
		return 0, fmt.Errorf("conversation %d: %w", line.ConversationID, ErrNotFound)
	}

	stored := *line
	w.s.lines[stored.ID] = &stored
	w.s.lineOrder = append(w.s.lineOrder, stored.ID)
	character.LineCount++
	conv.LineCount++
	w.appendedLines = append(w.appendedLines, &stored)
	return stored.ID, nil
}

// rollback undoes appends in reverse order. Appended ids are always the
// tail of their order slice.
func (w *memWriter) rollback() {
	s := w.s
	for _, l := range slices.Backward(w.appendedLines) {
		delete(s.lines, l.ID)
		if c, ok := s.characters[l.CharacterID]; ok {
			c.LineCount--
		}
		if c, ok := s.conversations[l.ConversationID]; ok {
			c.LineCount--
		}
	}
	s.lineOrder = s.lineOrder[:len(s.lineOrder)-len(w.appendedLines)]

	n := len(s.conversationOrder) - w.appendedConversations
	for _, id := range s.conversationOrder[n:] {
		delete(s.conversations, id)
	}
	s.conversationOrder = s.conversationOrder[:n]

	w.appendedConversations = 0
	w.appendedLines = nil
}
