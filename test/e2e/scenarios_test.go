package e2e

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/hyperengineering/cinelines/internal/store"
	"github.com/hyperengineering/cinelines/pkg/client"
)

var backends = []struct {
	name  string
	start func(t *testing.T) *testEnv
}{
	{"memory", func(t *testing.T) *testEnv { return startMemory(t, writeCorpus(t)) }},
	{"sqlite", startSQLite},
}

func forEachBackend(t *testing.T, fn func(t *testing.T, env *testEnv)) {
	for _, b := range backends {
		t.Run(b.name, func(t *testing.T) {
			fn(t, b.start(t))
		})
	}
}

func TestE2E_ReadSurface(t *testing.T) {
	forEachBackend(t, func(t *testing.T, env *testEnv) {
		ctx := context.Background()
		c := env.Client

		health, err := c.Health(ctx)
		if err != nil {
			t.Fatalf("Health() error = %v", err)
		}
		want := client.Counts{Movies: 2, Characters: 4, Conversations: 3, Lines: 4}
		if diff := cmp.Diff(want, health.Counts); diff != "" {
			t.Errorf("counts (-want +got):\n%s", diff)
		}

		profile, err := c.Character(ctx, 0)
		if err != nil {
			t.Fatalf("Character(0) error = %v", err)
		}
		if profile.Character != "BIANCA" || profile.Movie != "10 things i hate about you" {
			t.Errorf("profile = %+v", profile)
		}
		if len(profile.TopConversations) != 1 || profile.TopConversations[0].Character != "CAMERON" ||
			profile.TopConversations[0].NumberOfLinesTogether != 4 {
			t.Errorf("top_conversations = %+v, want CAMERON with 4 lines", profile.TopConversations)
		}

		chars, err := c.ListCharacters(ctx, client.ListOptions{Name: "c", Sort: "character", Limit: 2, Offset: 1})
		if err != nil {
			t.Fatalf("ListCharacters() error = %v", err)
		}
		var names []string
		for _, ch := range chars {
			names = append(names, ch.Character)
		}
		if diff := cmp.Diff([]string{"CAMERON", "CHASTITY"}, names); diff != "" {
			t.Errorf("names (-want +got):\n%s", diff)
		}

		lines, err := c.ListLines(ctx, client.ListOptions{Name: "FRENCH"})
		if err != nil {
			t.Fatalf("ListLines() error = %v", err)
		}
		if len(lines) != 1 || lines[0].LineID != 3 || lines[0].CharacterName != "CAMERON" {
			t.Errorf("lines = %+v, want line 3 by CAMERON", lines)
		}

		detail, err := c.Line(ctx, 1)
		if err != nil {
			t.Fatalf("Line(1) error = %v", err)
		}
		if detail.CharacterName != "BIANCA" || detail.OtherCharacterName != "CAMERON" || detail.NumConvBtwChars != 2 {
			t.Errorf("line detail = %+v", detail)
		}
		if len(detail.Conversation) != 2 || detail.Conversation[0] != "Can we make this quick?" {
			t.Errorf("conversation = %q", detail.Conversation)
		}

		conv, err := c.Conversation(ctx, 2)
		if err != nil {
			t.Fatalf("Conversation(2) error = %v", err)
		}
		if conv.Ch1 != "BIANCA" || conv.Ch2 != "CHASTITY" || len(conv.Lines) != 0 {
			t.Errorf("conversation 2 = %+v, want BIANCA/CHASTITY with no lines", conv)
		}
	})
}

func TestE2E_NotFoundAndInvalid(t *testing.T) {
	forEachBackend(t, func(t *testing.T, env *testEnv) {
		ctx := context.Background()
		c := env.Client

		if _, err := c.Character(ctx, 404); !client.IsNotFound(err) {
			t.Errorf("Character(404) error = %v, want not found", err)
		}
		if _, err := c.Line(ctx, 404); !client.IsNotFound(err) {
			t.Errorf("Line(404) error = %v, want not found", err)
		}
		if _, err := c.Conversation(ctx, 404); !client.IsNotFound(err) {
			t.Errorf("Conversation(404) error = %v, want not found", err)
		}

		_, err := c.ListCharacters(ctx, client.ListOptions{Sort: "bogus"})
		var apiErr *client.APIError
		if !errors.As(err, &apiErr) || apiErr.StatusCode != 422 {
			t.Fatalf("ListCharacters(sort=bogus) error = %v, want 422", err)
		}
		if !strings.Contains(apiErr.Detail, "character, movie, number_of_lines") {
			t.Errorf("detail = %q, want the accepted sort keys", apiErr.Detail)
		}
	})
}

func TestE2E_CreateConversation(t *testing.T) {
	forEachBackend(t, func(t *testing.T, env *testEnv) {
		ctx := context.Background()
		c := env.Client

		id, err := c.CreateConversation(ctx, 0, client.NewConversation{
			Character1ID: 0,
			Character2ID: 2,
			Lines: []client.NewLine{
				{CharacterID: 2, LineText: "Hi, Bianca."},
				{CharacterID: 0, LineText: "Hi."},
			},
		})
		if err != nil {
			t.Fatalf("CreateConversation() error = %v", err)
		}
		if id != 3 {
			t.Errorf("conversation id = %d, want 3", id)
		}

		conv, err := c.Conversation(ctx, id)
		if err != nil {
			t.Fatalf("Conversation(%d) error = %v", id, err)
		}
		wantLines := []client.ConversationLine{
			{Character: "CHASTITY", Line: "Hi, Bianca."},
			{Character: "BIANCA", Line: "Hi."},
		}
		if diff := cmp.Diff(wantLines, conv.Lines); diff != "" {
			t.Errorf("lines (-want +got):\n%s", diff)
		}

		line, err := c.Line(ctx, 4)
		if err != nil {
			t.Fatalf("Line(4) error = %v", err)
		}
		if line.ConvID != 3 || line.OtherCharacterName != "BIANCA" || line.NumConvBtwChars != 2 {
			t.Errorf("line 4 = %+v", line)
		}

		profile, err := c.Character(ctx, 2)
		if err != nil {
			t.Fatalf("Character(2) error = %v", err)
		}
		if len(profile.TopConversations) != 1 || profile.TopConversations[0].NumberOfLinesTogether != 2 {
			t.Errorf("CHASTITY top_conversations = %+v", profile.TopConversations)
		}

		if got := env.metricsText(t); !strings.Contains(got, `cinelines_ingest_conversations_total{result="accepted"} 1`) {
			t.Errorf("metrics missing accepted ingest:\n%s", got)
		}
	})
}

func TestE2E_Rejections(t *testing.T) {
	tests := []struct {
		name    string
		movieID int
		req     client.NewConversation
		detail  string
	}{
		{"same characters", 0, client.NewConversation{Character1ID: 1, Character2ID: 1}, "characters are the same"},
		{"unknown movie", 9, client.NewConversation{Character1ID: 0, Character2ID: 1}, "movie not found"},
		{"unknown character", 0, client.NewConversation{Character1ID: 0, Character2ID: 99}, "character not found"},
		{"character from another movie", 1, client.NewConversation{Character1ID: 0, Character2ID: 3}, "character and movie do not match"},
		{"line by an outsider", 0, client.NewConversation{
			Character1ID: 0,
			Character2ID: 1,
			Lines:        []client.NewLine{{CharacterID: 2, LineText: "Hey"}},
		}, "character does not match line"},
	}

	forEachBackend(t, func(t *testing.T, env *testEnv) {
		ctx := context.Background()
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				_, err := env.Client.CreateConversation(ctx, tt.movieID, tt.req)
				var apiErr *client.APIError
				if !errors.As(err, &apiErr) || apiErr.StatusCode != 404 {
					t.Fatalf("error = %v, want 404", err)
				}
				if apiErr.Detail != tt.detail {
					t.Errorf("detail = %q, want %q", apiErr.Detail, tt.detail)
				}
			})
		}

		stats, err := env.Store.Stats(ctx)
		if err != nil {
			t.Fatalf("Stats() error = %v", err)
		}
		if stats.Conversations != 3 || stats.Lines != 4 {
			t.Errorf("stats = %+v, want the corpus unchanged", stats)
		}
	})
}

func TestE2E_MemoryLogsSurviveRestart(t *testing.T) {
	dir := writeCorpus(t)
	ctx := context.Background()

	first := startMemory(t, dir)
	id, err := first.Client.CreateConversation(ctx, 1, client.NewConversation{
		Character1ID: 3,
		Character2ID: 3,
	})
	if err == nil {
		t.Fatalf("same-character conversation accepted as %d", id)
	}
	if _, err := first.Client.CreateConversation(ctx, 0, client.NewConversation{
		Character1ID: 1,
		Character2ID: 2,
		Lines:        []client.NewLine{{CharacterID: 1, LineText: `She said "no, thanks"`}},
	}); err != nil {
		t.Fatalf("CreateConversation() error = %v", err)
	}
	first.Store.Close()

	if got := readFile(t, dir, "lines.csv"); !strings.HasSuffix(got, `4,1,0,3,1,"She said ""no, thanks"""`) {
		t.Errorf("lines.csv tail = %q", got[strings.LastIndex(got, "\n")+1:])
	}
	if got := readFile(t, dir, "conversations.csv"); !strings.HasSuffix(got, "3,1,2,0") {
		t.Errorf("conversations.csv does not end with the new conversation:\n%s", got)
	}

	second := startMemory(t, dir)
	conv, err := second.Client.Conversation(ctx, 3)
	if err != nil {
		t.Fatalf("Conversation(3) after restart error = %v", err)
	}
	if conv.Ch1 != "CAMERON" || len(conv.Lines) != 1 || conv.Lines[0].Line != `She said "no, thanks"` {
		t.Errorf("conversation after restart = %+v", conv)
	}
}

func TestE2E_ClosedStoreIsUnavailable(t *testing.T) {
	forEachBackend(t, func(t *testing.T, env *testEnv) {
		env.Store.Close()

		_, err := env.Client.Character(context.Background(), 0)
		var apiErr *client.APIError
		if !errors.As(err, &apiErr) || apiErr.StatusCode != 503 {
			t.Errorf("error = %v, want 503", err)
		}
	})
}

func TestE2E_Postgres(t *testing.T) {
	requirePostgres(t)
	ctx := context.Background()

	s, err := store.NewPostgresStore(ctx, postgresDSN, store.DefaultPoolConfig())
	if err != nil {
		t.Fatalf("NewPostgresStore() error = %v", err)
	}
	stats, err := s.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats() error = %v", err)
	}
	if stats.Movies > 0 {
		s.Close()
		t.Skip("postgres database is not empty")
	}

	dir := writeCorpus(t)
	if err := s.Import(ctx, loadCorpus(t, dir)); err != nil {
		t.Fatalf("Import() error = %v", err)
	}
	env := start(t, s, "postgres", dir)

	id, err := env.Client.CreateConversation(ctx, 0, client.NewConversation{
		Character1ID: 0,
		Character2ID: 1,
		Lines:        []client.NewLine{{CharacterID: 0, LineText: "Again?"}},
	})
	if err != nil {
		t.Fatalf("CreateConversation() error = %v", err)
	}
	line, err := env.Client.Line(ctx, 4)
	if err != nil {
		t.Fatalf("Line(4) error = %v", err)
	}
	if line.ConvID != id || line.NumConvBtwChars != 3 {
		t.Errorf("line 4 = %+v, want conversation %d shared 3 times", line, id)
	}
}
