// Package dataset reads and writes the corpus CSV files.
//
// movies.csv and characters.csv are static inputs. conversations.csv and
// lines.csv are append-only logs rewritten after every ingest.
package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/hyperengineering/cinelines/internal/types"
)

// Column layouts, in file order.
var (
	movieHeader        = []string{"movie_id", "title", "year", "imdb_rating", "imdb_votes", "raw_script_url"}
	characterHeader    = []string{"character_id", "name", "movie_id", "gender", "age"}
	conversationHeader = []string{"conversation_id", "character1_id", "character2_id", "movie_id"}
	lineHeader         = []string{"line_id", "character_id", "movie_id", "conversation_id", "line_sort", "line_text"}
)

// row gives by-name access to the fields of one CSV record.
type row struct {
	cols   map[string]int
	fields []string
	line   int
}

func (r row) str(col string) string {
	return r.fields[r.cols[col]]
}

// id parses a required integer column.
func (r row) id(col string) (int, error) {
	v := r.str(col)
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return 0, fmt.Errorf("line %d: invalid %s %q", r.line, col, v)
	}
	return n, nil
}

// optString returns nil for an empty field.
func (r row) optString(col string) *string {
	v := r.str(col)
	if v == "" {
		return nil
	}
	return &v
}

// optInt returns nil for an empty or unparsable field.
func (r row) optInt(col string) *int {
	n, err := strconv.Atoi(strings.TrimSpace(r.str(col)))
	if err != nil {
		return nil
	}
	return &n
}

// optFloat returns nil for an empty or unparsable field.
func (r row) optFloat(col string) *float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(r.str(col)), 64)
	if err != nil {
		return nil
	}
	return &f
}

// readRows decodes a CSV stream with a header row and calls fn for each
// record. Every column in want must be present in the header; extra columns
// are ignored.
func readRows(src io.Reader, want []string, fn func(row) error) error {
	r := csv.NewReader(src)
	r.TrimLeadingSpace = true
	r.LazyQuotes = true
	r.ReuseRecord = true

	header, err := r.Read()
	if errors.Is(err, io.EOF) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read header: %w", err)
	}

	cols := make(map[string]int, len(header))
	for i, name := range header {
		cols[strings.TrimSpace(name)] = i
	}
	for _, name := range want {
		if _, ok := cols[name]; !ok {
			return fmt.Errorf("missing column %q", name)
		}
	}

	for {
		fields, err := r.Read()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read record: %w", err)
		}
		line, _ := r.FieldPos(0)
		if err := fn(row{cols: cols, fields: fields, line: line}); err != nil {
			return err
		}
	}
}

// ReadMovies decodes movies.csv.
func ReadMovies(src io.Reader) ([]types.Movie, error) {
	var out []types.Movie
	err := readRows(src, movieHeader, func(r row) error {
		id, err := r.id("movie_id")
		if err != nil {
			return err
		}
		out = append(out, types.Movie{
			ID:        id,
			Title:     r.str("title"),
			Year:      r.optString("year"),
			Rating:    r.optFloat("imdb_rating"),
			VoteCount: r.optInt("imdb_votes"),
			ScriptURL: r.optString("raw_script_url"),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("movies: %w", err)
	}
	return out, nil
}

// ReadCharacters decodes characters.csv. Line counts are left at zero.
func ReadCharacters(src io.Reader) ([]types.Character, error) {
	var out []types.Character
	err := readRows(src, characterHeader, func(r row) error {
		id, err := r.id("character_id")
		if err != nil {
			return err
		}
		movieID, err := r.id("movie_id")
		if err != nil {
			return err
		}
		out = append(out, types.Character{
			ID:      id,
			Name:    r.str("name"),
			MovieID: movieID,
			Gender:  r.optString("gender"),
			Age:     r.optInt("age"),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("characters: %w", err)
	}
	return out, nil
}

// ReadConversations decodes conversations.csv. Line counts are left at zero.
func ReadConversations(src io.Reader) ([]types.Conversation, error) {
	var out []types.Conversation
	err := readRows(src, conversationHeader, func(r row) error {
		var c types.Conversation
		var err error
		if c.ID, err = r.id("conversation_id"); err != nil {
			return err
		}
		if c.Character1ID, err = r.id("character1_id"); err != nil {
			return err
		}
		if c.Character2ID, err = r.id("character2_id"); err != nil {
			return err
		}
		if c.MovieID, err = r.id("movie_id"); err != nil {
			return err
		}
		out = append(out, c)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("conversations: %w", err)
	}
	return out, nil
}

// ReadLines decodes lines.csv.
func ReadLines(src io.Reader) ([]types.Line, error) {
	var out []types.Line
	err := readRows(src, lineHeader, func(r row) error {
		l := types.Line{Text: r.str("line_text")}
		var err error
		if l.ID, err = r.id("line_id"); err != nil {
			return err
		}
		if l.CharacterID, err = r.id("character_id"); err != nil {
			return err
		}
		if l.MovieID, err = r.id("movie_id"); err != nil {
			return err
		}
		if l.ConversationID, err = r.id("conversation_id"); err != nil {
			return err
		}
		if l.SortIndex, err = r.id("line_sort"); err != nil {
			return err
		}
		out = append(out, l)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("lines: %w", err)
	}
	return out, nil
}

// WriteConversations encodes conversations in the conversations.csv layout.
func WriteConversations(dst io.Writer, convs []types.Conversation) error {
	w := csv.NewWriter(dst)
	if err := w.Write(conversationHeader); err != nil {
		return err
	}
	for _, c := range convs {
		rec := []string{
			strconv.Itoa(c.ID),
			strconv.Itoa(c.Character1ID),
			strconv.Itoa(c.Character2ID),
			strconv.Itoa(c.MovieID),
		}
		if err := w.Write(rec); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

// WriteLines encodes lines in the lines.csv layout.
func WriteLines(dst io.Writer, lines []types.Line) error {
	w := csv.NewWriter(dst)
	if err := w.Write(lineHeader); err != nil {
		return err
	}
	for _, l := range lines {
		rec := []string{
			strconv.Itoa(l.ID),
			strconv.Itoa(l.CharacterID),
			strconv.Itoa(l.MovieID),
			strconv.Itoa(l.ConversationID),
			strconv.Itoa(l.SortIndex),
			l.Text,
		}
		if err := w.Write(rec); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}
