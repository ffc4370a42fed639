// Package query implements the read-side aggregations over the record store.
package query

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/hyperengineering/cinelines/internal/store"
	"github.com/hyperengineering/cinelines/internal/types"
)

// CharacterQuery filters and pages the character listing. Name is matched
// case-insensitively as a substring; empty matches everything. A zero Limit
// selects DefaultLimit.
type CharacterQuery struct {
	Name   string
	Sort   CharacterSort
	Limit  int
	Offset int
}

// LineQuery filters and pages the line listing by line text.
type LineQuery struct {
	Text   string
	Sort   LineSort
	Limit  int
	Offset int
}

// Engine answers read queries. Each call runs in a single store.View, so it
// sees one consistent state.
type Engine struct {
	store store.Store
}

// NewEngine returns an Engine reading from s.
func NewEngine(s store.Store) *Engine {
	return &Engine{store: s}
}

// CharacterProfile returns a character with its movie title and its
// conversation partners ranked by the number of lines exchanged.
func (e *Engine) CharacterProfile(ctx context.Context, id int) (*types.CharacterProfile, error) {
	var profile *types.CharacterProfile
	err := e.store.View(ctx, func(r store.Reader) error {
		ch, err := r.GetCharacter(ctx, id)
		if err != nil {
			return err
		}
		title, err := movieTitle(ctx, r, ch.MovieID)
		if err != nil {
			return err
		}

		// conversation id -> the other participant
		partnerOf := make(map[int]int)
		for conv, err := range r.ScanConversations(ctx, func(c *types.Conversation) bool { return c.Involves(id) }) {
			if err != nil {
				return err
			}
			partnerOf[conv.ID], _ = conv.Partner(id)
		}

		counts := make(map[int]int)
		for line, err := range r.ScanLines(ctx, func(l *types.Line) bool {
			_, ok := partnerOf[l.ConversationID]
			return ok
		}) {
			if err != nil {
				return err
			}
			counts[partnerOf[line.ConversationID]]++
		}

		partners, err := charactersByID(ctx, r, keys(counts))
		if err != nil {
			return err
		}

		top := make([]types.ConversationPartner, 0, len(counts))
		for pid, n := range counts {
			p := types.ConversationPartner{CharacterID: pid, NumberOfLinesTogether: n}
			if c, ok := partners[pid]; ok {
				p.Character = c.Name
				p.Gender = c.Gender
			}
			top = append(top, p)
		}
		slices.SortFunc(top, func(a, b types.ConversationPartner) int {
			return cmp.Or(
				cmp.Compare(b.NumberOfLinesTogether, a.NumberOfLinesTogether),
				cmp.Compare(a.CharacterID, b.CharacterID),
			)
		})

		profile = &types.CharacterProfile{
			CharacterID:      ch.ID,
			Character:        ch.Name,
			Movie:            title,
			Gender:           ch.Gender,
			TopConversations: top,
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("character profile %d: %w", id, err)
	}
	return profile, nil
}

// ListCharacters returns one page of characters whose name matches q.Name.
func (e *Engine) ListCharacters(ctx context.Context, q CharacterQuery) ([]types.CharacterListing, error) {
	needle := strings.ToLower(q.Name)

	var rows []types.CharacterListing
	err := e.store.View(ctx, func(r store.Reader) error {
		chars, err := store.Collect(r.ScanCharacters(ctx, func(c *types.Character) bool {
			return containsFold(c.Name, needle)
		}))
		if err != nil {
			return err
		}

		movieIDs := make(map[int]struct{})
		for _, c := range chars {
			movieIDs[c.MovieID] = struct{}{}
		}
		titles, err := movieTitles(ctx, r, movieIDs)
		if err != nil {
			return err
		}

		rows = make([]types.CharacterListing, len(chars))
		for i, c := range chars {
			rows[i] = types.CharacterListing{
				CharacterID:   c.ID,
				Character:     c.Name,
				Movie:         titles[c.MovieID],
				NumberOfLines: c.LineCount,
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list characters: %w", err)
	}

	slices.SortFunc(rows, func(a, b types.CharacterListing) int { return q.Sort.compare(&a, &b) })
	return page(rows, q.Limit, q.Offset), nil
}

// ListLines returns one page of lines whose text matches q.Text.
func (e *Engine) ListLines(ctx context.Context, q LineQuery) ([]types.LineListing, error) {
	needle := strings.ToLower(q.Text)

	var rows []types.LineListing
	err := e.store.View(ctx, func(r store.Reader) error {
		lines, err := store.Collect(r.ScanLines(ctx, func(l *types.Line) bool {
			return containsFold(l.Text, needle)
		}))
		if err != nil {
			return err
		}

		charIDs := make(map[int]struct{})
		movieIDs := make(map[int]struct{})
		for _, l := range lines {
			charIDs[l.CharacterID] = struct{}{}
			movieIDs[l.MovieID] = struct{}{}
		}
		chars, err := charactersByID(ctx, r, charIDs)
		if err != nil {
			return err
		}
		titles, err := movieTitles(ctx, r, movieIDs)
		if err != nil {
			return err
		}

		rows = make([]types.LineListing, len(lines))
		for i, l := range lines {
			rows[i] = types.LineListing{
				LineID:        l.ID,
				CharacterName: nameOf(chars, l.CharacterID),
				MovieTitle:    titles[l.MovieID],
				LineSort:      l.SortIndex,
				LineText:      l.Text,
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list lines: %w", err)
	}

	slices.SortFunc(rows, func(a, b types.LineListing) int { return q.Sort.compare(&a, &b) })
	return page(rows, q.Limit, q.Offset), nil
}

// ConversationDetail reconstructs a conversation with speaker names, in
// line order. A conversation without lines yields an empty Lines slice.
func (e *Engine) ConversationDetail(ctx context.Context, id int) (*types.ConversationDetail, error) {
	var detail *types.ConversationDetail
	err := e.store.View(ctx, func(r store.Reader) error {
		conv, err := r.GetConversation(ctx, id)
		if err != nil {
			return err
		}
		title, err := movieTitle(ctx, r, conv.MovieID)
		if err != nil {
			return err
		}
		lines, err := conversationLines(ctx, r, id)
		if err != nil {
			return err
		}

		ids := map[int]struct{}{conv.Character1ID: {}, conv.Character2ID: {}}
		for _, l := range lines {
			ids[l.CharacterID] = struct{}{}
		}
		chars, err := charactersByID(ctx, r, ids)
		if err != nil {
			return err
		}

		detail = &types.ConversationDetail{
			MovieTitle: title,
			Ch1:        nameOf(chars, conv.Character1ID),
			Ch2:        nameOf(chars, conv.Character2ID),
			Lines:      make([]types.ConversationLine, len(lines)),
		}
		for i, l := range lines {
			detail.Lines[i] = types.ConversationLine{Character: nameOf(chars, l.CharacterID), Line: l.Text}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("conversation %d: %w", id, err)
	}
	return detail, nil
}

// LineDetail returns a line with its conversation context.
func (e *Engine) LineDetail(ctx context.Context, id int) (*types.LineDetail, error) {
	var detail *types.LineDetail
	err := e.store.View(ctx, func(r store.Reader) error {
		line, err := r.GetLine(ctx, id)
		if err != nil {
			return err
		}
		title, err := movieTitle(ctx, r, line.MovieID)
		if err != nil {
			return err
		}

		detail = &types.LineDetail{
			LineID:       line.ID,
			MovieTitle:   title,
			Text:         line.Text,
			ConvID:       line.ConversationID,
			Conversation: []string{line.Text},
		}

		conv, err := r.GetConversation(ctx, line.ConversationID)
		if errors.Is(err, store.ErrNotFound) {
			// Dangling conversation: the line stands alone.
			chars, err := charactersByID(ctx, r, map[int]struct{}{line.CharacterID: {}})
			if err != nil {
				return err
			}
			detail.CharacterName = nameOf(chars, line.CharacterID)
			return nil
		}
		if err != nil {
			return err
		}

		other, _ := conv.Partner(line.CharacterID)
		chars, err := charactersByID(ctx, r, map[int]struct{}{line.CharacterID: {}, other: {}})
		if err != nil {
			return err
		}

		between, err := store.Count(r.ScanConversations(ctx, func(c *types.Conversation) bool {
			return c.MovieID == conv.MovieID && c.SamePair(conv)
		}))
		if err != nil {
			return err
		}

		lines, err := conversationLines(ctx, r, conv.ID)
		if err != nil {
			return err
		}
		texts := make([]string, len(lines))
		for i, l := range lines {
			texts[i] = l.Text
		}

		detail.CharacterName = nameOf(chars, line.CharacterID)
		detail.OtherCharacterName = nameOf(chars, other)
		detail.NumConvBtwChars = between
		detail.Conversation = texts
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("line %d: %w", id, err)
	}
	return detail, nil
}

// conversationLines returns a conversation's lines ordered by sort index.
func conversationLines(ctx context.Context, r store.Reader, convID int) ([]*types.Line, error) {
	lines, err := store.Collect(r.ScanLines(ctx, func(l *types.Line) bool { return l.ConversationID == convID }))
	if err != nil {
		return nil, err
	}
	slices.SortFunc(lines, func(a, b *types.Line) int {
		return cmp.Or(cmp.Compare(a.SortIndex, b.SortIndex), cmp.Compare(a.ID, b.ID))
	})
	return lines, nil
}

// charactersByID fetches the given characters in one scan. Unknown ids are
// absent from the result.
func charactersByID(ctx context.Context, r store.Reader, ids map[int]struct{}) (map[int]*types.Character, error) {
	out := make(map[int]*types.Character, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	for c, err := range r.ScanCharacters(ctx, func(c *types.Character) bool {
		_, ok := ids[c.ID]
		return ok
	}) {
		if err != nil {
			return nil, err
		}
		out[c.ID] = c
	}
	return out, nil
}

// movieTitle returns the title of a movie, or "" if it does not exist.
func movieTitle(ctx context.Context, r store.Reader, id int) (string, error) {
	m, err := r.GetMovie(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return m.Title, nil
}

func movieTitles(ctx context.Context, r store.Reader, ids map[int]struct{}) (map[int]string, error) {
	out := make(map[int]string, len(ids))
	for id := range ids {
		title, err := movieTitle(ctx, r, id)
		if err != nil {
			return nil, err
		}
		out[id] = title
	}
	return out, nil
}

func nameOf(chars map[int]*types.Character, id int) string {
	if c, ok := chars[id]; ok {
		return c.Name
	}
	return ""
}

// containsFold reports whether s contains lowerNeedle, ignoring case.
func containsFold(s, lowerNeedle string) bool {
	if lowerNeedle == "" {
		return true
	}
	return strings.Contains(strings.ToLower(s), lowerNeedle)
}

func keys[V any](m map[int]V) map[int]struct{} {
	out := make(map[int]struct{}, len(m))
	for k := range m {
		out[k] = struct{}{}
	}
	return out
}
