package e2e

import (
	"bytes"
	"context"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/hyperengineering/cinelines/internal/api"
	"github.com/hyperengineering/cinelines/internal/dataset"
	"github.com/hyperengineering/cinelines/internal/metrics"
	"github.com/hyperengineering/cinelines/internal/objectstore"
	"github.com/hyperengineering/cinelines/internal/store"
	"github.com/hyperengineering/cinelines/internal/types"
	"github.com/hyperengineering/cinelines/pkg/client"
)

// Two movies. BIANCA and CAMERON share two conversations in movie 0;
// conversation 2 has no lines.
var corpusFiles = map[string]string{
	dataset.MoviesFile: "movie_id,title,year,imdb_rating,imdb_votes,raw_script_url\n" +
		"0,10 things i hate about you,1999,6.9,62847,\n" +
		"1,1492: conquest of paradise,1992,6.2,10421,\n",
	dataset.CharactersFile: "character_id,name,movie_id,gender,age\n" +
		"0,BIANCA,0,f,\n" +
		"1,CAMERON,0,m,\n" +
		"2,CHASTITY,0,?,\n" +
		"3,COLUMBUS,1,m,\n",
	dataset.ConversationsFile: "conversation_id,character1_id,character2_id,movie_id\n" +
		"0,0,1,0\n" +
		"1,0,1,0\n" +
		"2,0,2,0\n",
	dataset.LinesFile: "line_id,character_id,movie_id,conversation_id,line_sort,line_text\n" +
		"0,1,0,0,1,Can we make this quick?\n" +
		"1,0,0,0,2,\"Well, I thought we'd start with pronunciation, if that's okay with you.\"\n" +
		"2,0,0,1,1,Not the hacking and gagging and spitting part.\n" +
		"3,1,0,1,2,Okay... then how 'bout we try out some French cuisine.\n",
}

// testEnv is a running server with a typed client pointed at it.
type testEnv struct {
	Client  *client.Client
	Store   store.Store
	Metrics *metrics.Metrics
	Dir     string
	server  *httptest.Server
}

func (e *testEnv) metricsText(t *testing.T) string {
	t.Helper()
	rec := httptest.NewRecorder()
	e.Metrics.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	return rec.Body.String()
}

// writeCorpus writes the corpus CSVs into a fresh directory.
func writeCorpus(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range corpusFiles {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	return dir
}

func loadCorpus(t *testing.T, dir string) *types.Dataset {
	t.Helper()
	bucket := objectstore.NewDirBucket(dir)
	ds, err := dataset.Load(context.Background(), bucket, bucket)
	if err != nil {
		t.Fatalf("load corpus: %v", err)
	}
	return ds
}

// startMemory serves a memory store whose conversation and line logs are
// persisted back to dir.
func startMemory(t *testing.T, dir string) *testEnv {
	t.Helper()
	bucket := objectstore.NewDirBucket(dir)
	s, err := store.NewMemoryStore(loadCorpus(t, dir), dataset.NewLogPersister(bucket))
	if err != nil {
		t.Fatalf("NewMemoryStore() error = %v", err)
	}
	return start(t, s, "memory", dir)
}

// startSQLite imports the corpus into a new database file.
func startSQLite(t *testing.T) *testEnv {
	t.Helper()
	dir := writeCorpus(t)
	s, err := store.NewSQLiteStore(filepath.Join(dir, "cinelines.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore() error = %v", err)
	}
	if err := s.Import(context.Background(), loadCorpus(t, dir)); err != nil {
		t.Fatalf("Import() error = %v", err)
	}
	return start(t, s, "sqlite", dir)
}

func start(t *testing.T, s store.Store, backend, dir string) *testEnv {
	t.Helper()
	m := metrics.New()
	h := api.NewHandler(s, m, backend, "e2e")
	srv := httptest.NewServer(api.NewRouter(h, api.RouterOptions{
		MetricsPath:   "/metrics",
		IngestLimiter: api.NewRateLimiter(0, 0),
	}))
	env := &testEnv{
		Client:  client.New(srv.URL),
		Store:   s,
		Metrics: m,
		Dir:     dir,
		server:  srv,
	}
	t.Cleanup(func() {
		srv.Close()
		s.Close()
	})
	return env
}

func readFile(t *testing.T, dir, name string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(dir, name))
	if err != nil {
		t.Fatalf("read %s: %v", name, err)
	}
	return string(bytes.TrimSpace(data))
}
