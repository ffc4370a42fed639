package query

import (
	"cmp"
	"errors"
	"fmt"
	"strings"

	"github.com/hyperengineering/cinelines/internal/types"
)

// ErrInvalidSort is returned when a sort key is not one of the allowed values.
var ErrInvalidSort = errors.New("invalid sort")

// CharacterSort orders the character listing.
type CharacterSort string

const (
	SortByCharacter     CharacterSort = "character"
	SortByMovie         CharacterSort = "movie"
	SortByNumberOfLines CharacterSort = "number_of_lines"
)

// CharacterSorts lists the accepted character sort keys.
var CharacterSorts = []CharacterSort{SortByCharacter, SortByMovie, SortByNumberOfLines}

// ParseCharacterSort validates s. An empty string selects SortByCharacter.
func ParseCharacterSort(s string) (CharacterSort, error) {
	if s == "" {
		return SortByCharacter, nil
	}
	for _, v := range CharacterSorts {
		if string(v) == s {
			return v, nil
		}
	}
	return "", fmt.Errorf("%w %q: must be one of %s", ErrInvalidSort, s, joinSorts(CharacterSorts))
}

// compare orders listings by the sort key, then by character id.
func (s CharacterSort) compare(a, b *types.CharacterListing) int {
	var primary int
	switch s {
	case SortByMovie:
		primary = strings.Compare(a.Movie, b.Movie)
	case SortByNumberOfLines:
		primary = cmp.Compare(b.NumberOfLines, a.NumberOfLines)
	default:
		primary = strings.Compare(a.Character, b.Character)
	}
	return cmp.Or(primary, cmp.Compare(a.CharacterID, b.CharacterID))
}

// LineSort orders the line listing.
type LineSort string

const (
	SortByMovieTitle    LineSort = "movie_title"
	SortByCharacterName LineSort = "character_name"
)

// LineSorts lists the accepted line sort keys.
var LineSorts = []LineSort{SortByMovieTitle, SortByCharacterName}

// ParseLineSort validates s. An empty string selects SortByMovieTitle.
func ParseLineSort(s string) (LineSort, error) {
	if s == "" {
		return SortByMovieTitle, nil
	}
	for _, v := range LineSorts {
		if string(v) == s {
			return v, nil
		}
	}
	return "", fmt.Errorf("%w %q: must be one of %s", ErrInvalidSort, s, joinSorts(LineSorts))
}

// compare orders listings by the sort key, then by line id.
func (s LineSort) compare(a, b *types.LineListing) int {
	var primary int
	switch s {
	case SortByCharacterName:
		primary = strings.Compare(a.CharacterName, b.CharacterName)
	default:
		primary = strings.Compare(a.MovieTitle, b.MovieTitle)
	}
	return cmp.Or(primary, cmp.Compare(a.LineID, b.LineID))
}

func joinSorts[S ~string](values []S) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = string(v)
	}
	return strings.Join(parts, ", ")
}
