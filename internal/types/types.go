package types

// Movie is a film in the dialogue corpus. Movies are read-only once loaded.
type Movie struct {
	ID        int      `json:"movie_id"`
	Title     string   `json:"title"`
	Year      *string  `json:"year"`
	Rating    *float64 `json:"imdb_rating"`
	VoteCount *int     `json:"imdb_votes"`
	ScriptURL *string  `json:"raw_script_url"`
}

// Character is a speaking role that belongs to exactly one movie.
// LineCount is derived: it always equals the number of lines spoken by the character.
type Character struct {
	ID        int     `json:"character_id"`
	Name      string  `json:"name"`
	MovieID   int     `json:"movie_id"`
	Gender    *string `json:"gender"`
	Age       *int    `json:"age"`
	LineCount int     `json:"line_count"`
}

// Conversation is an exchange between two distinct characters of the same movie.
type Conversation struct {
	ID           int `json:"conversation_id"`
	Character1ID int `json:"character1_id"`
	Character2ID int `json:"character2_id"`
	MovieID      int `json:"movie_id"`
	LineCount    int `json:"line_count"`
}

// Involves reports whether the character takes part in the conversation.
func (c *Conversation) Involves(characterID int) bool {
	return c.Character1ID == characterID || c.Character2ID == characterID
}

// Partner returns the participant opposite characterID. When characterID is not a
// participant, it returns the first participant and false.
func (c *Conversation) Partner(characterID int) (int, bool) {
	switch characterID {
	case c.Character1ID:
		return c.Character2ID, true
	case c.Character2ID:
		return c.Character1ID, true
	default:
		return c.Character1ID, false
	}
}

// SamePair reports whether both conversations are between the same two characters,
// in either orientation.
func (c *Conversation) SamePair(other *Conversation) bool {
	return (c.Character1ID == other.Character1ID && c.Character2ID == other.Character2ID) ||
		(c.Character1ID == other.Character2ID && c.Character2ID == other.Character1ID)
}

// Line is a single utterance within a conversation. SortIndex is the 1-based
// position in the conversation, fixed at ingest.
type Line struct {
	ID             int    `json:"line_id"`
	CharacterID    int    `json:"character_id"`
	MovieID        int    `json:"movie_id"`
	ConversationID int    `json:"conversation_id"`
	SortIndex      int    `json:"line_sort"`
	Text           string `json:"line_text"`
}

// Dataset is the full corpus as loaded from flat files.
type Dataset struct {
	Movies        []Movie
	Characters    []Character
	Conversations []Conversation
	Lines         []Line
}

// StoreStats holds per-collection record counts.
type StoreStats struct {
	Movies        int64 `json:"movies"`
	Characters    int64 `json:"characters"`
	Conversations int64 `json:"conversations"`
	Lines         int64 `json:"lines"`
}

// NewConversation is a validated request to append a conversation to a movie.
type NewConversation struct {
	Character1ID int
	Character2ID int
	Lines        []NewLine
}

// NewLine is one line of a NewConversation, in speaking order.
type NewLine struct {
	CharacterID int
	Text        string
}

// --- Wire types ---

// CreateConversationRequest is the body of POST /movies/{movie_id}/conversations/.
type CreateConversationRequest struct {
	Character1ID *int                `json:"character_1_id" validate:"required"`
	Character2ID *int                `json:"character_2_id" validate:"required"`
	Lines        []CreateLineRequest `json:"lines" validate:"required,max=1000,dive"`
}

// CreateLineRequest is one line of a CreateConversationRequest.
type CreateLineRequest struct {
	CharacterID *int   `json:"character_id" validate:"required"`
	LineText    string `json:"line_text"`
}

// ToNewConversation converts a request that has passed validation.
func (r *CreateConversationRequest) ToNewConversation() NewConversation {
	nc := NewConversation{
		Character1ID: *r.Character1ID,
		Character2ID: *r.Character2ID,
		Lines:        make([]NewLine, len(r.Lines)),
	}
	for i, l := range r.Lines {
		nc.Lines[i] = NewLine{CharacterID: *l.CharacterID, Text: l.LineText}
	}
	return nc
}

// CreateConversationResponse is returned when a conversation is appended.
type CreateConversationResponse struct {
	ConversationID int `json:"conversation_id"`
}

// CharacterProfile is a character joined with its movie and ranked conversation partners.
type CharacterProfile struct {
	CharacterID      int                   `json:"character_id"`
	Character        string                `json:"character"`
	Movie            string                `json:"movie"`
	Gender           *string               `json:"gender"`
	TopConversations []ConversationPartner `json:"top_conversations"`
}

// ConversationPartner is a character the profiled character has spoken with.
type ConversationPartner struct {
	CharacterID           int     `json:"character_id"`
	Character             string  `json:"character"`
	Gender                *string `json:"gender"`
	NumberOfLinesTogether int     `json:"number_of_lines_together"`
}

// CharacterListing is one row of the character listing.
type CharacterListing struct {
	CharacterID   int    `json:"character_id"`
	Character     string `json:"character"`
	Movie         string `json:"movie"`
	NumberOfLines int    `json:"number_of_lines"`
}

// LineListing is one row of the line listing.
type LineListing struct {
	LineID        int    `json:"line_id"`
	CharacterName string `json:"character_name"`
	MovieTitle    string `json:"movie_title"`
	LineSort      int    `json:"line_sort"`
	LineText      string `json:"line_text"`
}

// ConversationDetail is a conversation reconstructed with speaker attribution.
type ConversationDetail struct {
	MovieTitle string             `json:"movie_title"`
	Ch1        string             `json:"ch1"`
	Ch2        string             `json:"ch2"`
	Lines      []ConversationLine `json:"lines"`
}

// ConversationLine is a (speaker, text) pair.
type ConversationLine struct {
	Character string `json:"character"`
	Line      string `json:"line"`
}

// LineDetail is a line with its conversation context.
type LineDetail struct {
	LineID             int      `json:"line_id"`
	CharacterName      string   `json:"character_name"`
	MovieTitle         string   `json:"movie_title"`
	Text               string   `json:"text"`
	ConvID             int      `json:"conv_id"`
	OtherCharacterName string   `json:"other_character_name"`
	NumConvBtwChars    int      `json:"num_conv_btw_chars"`
	Conversation       []string `json:"conversation"`
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status  string     `json:"status"`
	Version string     `json:"version"`
	Backend string     `json:"backend"`
	Counts  StoreStats `json:"counts"`
}
