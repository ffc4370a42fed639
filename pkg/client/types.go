package client

// Health is the response of GET /health.
type Health struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Backend string `json:"backend"`
	Counts  Counts `json:"counts"`
}

// Counts holds per-collection record counts.
type Counts struct {
	Movies        int64 `json:"movies"`
	Characters    int64 `json:"characters"`
	Conversations int64 `json:"conversations"`
	Lines         int64 `json:"lines"`
}

// CharacterProfile is a character with its ranked conversation partners.
type CharacterProfile struct {
	CharacterID      int       `json:"character_id"`
	Character        string    `json:"character"`
	Movie            string    `json:"movie"`
	Gender           *string   `json:"gender"`
	TopConversations []Partner `json:"top_conversations"`
}

// Partner is one entry of CharacterProfile.TopConversations.
type Partner struct {
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

// ConversationDetail is a conversation with speaker attribution.
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

// NewConversation is the body of a create-conversation request.
type NewConversation struct {
	Character1ID int       `json:"character_1_id"`
	Character2ID int       `json:"character_2_id"`
	Lines        []NewLine `json:"lines"`
}

// NewLine is one line of a NewConversation.
type NewLine struct {
	CharacterID int    `json:"character_id"`
	LineText    string `json:"line_text"`
}

// ListOptions filters and pages a listing. Zero values are omitted from the
// request and take the server defaults.
type ListOptions struct {
	Name   string
	Sort   string
	Limit  int
	Offset int
}
