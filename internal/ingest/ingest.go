// Package ingest appends new conversations to the record store after
// checking them against the existing movies and characters.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hyperengineering/cinelines/internal/store"
	"github.com/hyperengineering/cinelines/internal/types"
)

// Rejection is returned when a conversation fails a referential check.
// Nothing is written when a Rejection is returned.
type Rejection struct {
	// Reason is a stable snake_case key, used as a metrics label.
	Reason  string
	Message string
}

func (r *Rejection) Error() string {
	return r.Message
}

// Rejections, in the order they are checked.
var (
	ErrSameCharacters         = &Rejection{Reason: "same_characters", Message: "characters are the same"}
	ErrMovieNotFound          = &Rejection{Reason: "movie_not_found", Message: "movie not found"}
	ErrCharacterNotFound      = &Rejection{Reason: "character_not_found", Message: "character not found"}
	ErrCharacterMovieMismatch = &Rejection{Reason: "character_movie_mismatch", Message: "character and movie do not match"}
	ErrLineCharacterMismatch  = &Rejection{Reason: "line_character_mismatch", Message: "character does not match line"}
)

// AsRejection returns the Rejection wrapped in err, if any.
func AsRejection(err error) (*Rejection, bool) {
	var rej *Rejection
	if errors.As(err, &rej) {
		return rej, true
	}
	return nil, false
}

// Service validates and appends conversations.
type Service struct {
	store store.Store
}

// NewService returns a Service writing to s.
func NewService(s store.Store) *Service {
	return &Service{store: s}
}

// AppendConversation checks nc against movieID and, if every check passes,
// appends the conversation and its lines. Line ids are allocated
// consecutively and sort indexes start at 1. It returns the new
// conversation id.
func (s *Service) AppendConversation(ctx context.Context, movieID int, nc types.NewConversation) (int, error) {
	var convID int
	err := s.store.Update(ctx, func(w store.Writer) error {
		if err := check(ctx, w, movieID, nc); err != nil {
			return err
		}

		var err error
		convID, err = w.NextConversationID(ctx)
		if err != nil {
			return err
		}
		firstLine, err := w.NextLineID(ctx)
		if err != nil {
			return err
		}

		conv := &types.Conversation{
			ID:           convID,
			Character1ID: nc.Character1ID,
			Character2ID: nc.Character2ID,
			MovieID:      movieID,
		}
		if _, err := w.AppendConversation(ctx, conv); err != nil {
			return fmt.Errorf("append conversation %d: %w", convID, err)
		}

		for i, nl := range nc.Lines {
			line := &types.Line{
				ID:             firstLine + i,
				CharacterID:    nl.CharacterID,
				MovieID:        movieID,
				ConversationID: convID,
				SortIndex:      i + 1,
				Text:           nl.Text,
			}
			if _, err := w.AppendLine(ctx, line); err != nil {
				return fmt.Errorf("append line %d: %w", line.ID, err)
			}
		}
		return nil
	})
	if err != nil {
		if rej, ok := AsRejection(err); ok {
			slog.Warn("conversation rejected",
				"movie_id", movieID,
				"character1_id", nc.Character1ID,
				"character2_id", nc.Character2ID,
				"reason", rej.Reason,
			)
			return 0, err
		}
		return 0, fmt.Errorf("append conversation to movie %d: %w", movieID, err)
	}

	slog.Info("conversation appended",
		"movie_id", movieID,
		"conversation_id", convID,
		"lines", len(nc.Lines),
	)
	return convID, nil
}

// check runs every validation before anything is written.
func check(ctx context.Context, r store.Reader, movieID int, nc types.NewConversation) error {
	if nc.Character1ID == nc.Character2ID {
		return ErrSameCharacters
	}

	if _, err := r.GetMovie(ctx, movieID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrMovieNotFound
		}
		return err
	}

	participants := make([]*types.Character, 0, 2)
	for _, id := range []int{nc.Character1ID, nc.Character2ID} {
		c, err := r.GetCharacter(ctx, id)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return ErrCharacterNotFound
			}
			return err
		}
		participants = append(participants, c)
	}

	for _, c := range participants {
		if c.MovieID != movieID {
			return ErrCharacterMovieMismatch
		}
	}

	for _, l := range nc.Lines {
		if l.CharacterID != nc.Character1ID && l.CharacterID != nc.Character2ID {
			return ErrLineCharacterMismatch
		}
	}
	return nil
}
