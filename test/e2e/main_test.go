package e2e

import (
	"io"
	"log/slog"
	"os"
	"testing"
)

// postgresDSN enables the postgres scenarios when set.
var postgresDSN string

func TestMain(m *testing.M) {
	postgresDSN = os.Getenv("CINELINES_E2E_POSTGRES_DSN")
	slog.SetDefault(slog.New(slog.NewTextHandler(io.Discard, nil)))
	os.Exit(m.Run())
}

func requirePostgres(t *testing.T) {
	t.Helper()
	if postgresDSN == "" {
		t.Skip("postgres not available (set CINELINES_E2E_POSTGRES_DSN)")
	}
}
