package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"iter"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/hyperengineering/cinelines/internal/types"
)

// Dialect identifies the SQL engine behind a SQLStore.
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

// ParseDialect validates a dialect name.
func ParseDialect(s string) (Dialect, error) {
	switch d := Dialect(strings.ToLower(s)); d {
	case DialectSQLite, DialectPostgres:
		return d, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownDialect, s)
	}
}

func (d Dialect) gooseDialect() string {
	if d == DialectPostgres {
		return "postgres"
	}
	return "sqlite3"
}

// rebind rewrites ? placeholders into the dialect's bind syntax.
func (d Dialect) rebind(query string) string {
	if d != DialectPostgres || !strings.Contains(query, "?") {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// readOptions returns the transaction options for View. PostgreSQL needs
// REPEATABLE READ for a snapshot; a SQLite read transaction already is one.
func (d Dialect) readOptions() *sql.TxOptions {
	if d == DialectPostgres {
		return &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true}
	}
	return nil
}

func (d Dialect) writeOptions() *sql.TxOptions {
	if d == DialectPostgres {
		return &sql.TxOptions{Isolation: sql.LevelSerializable}
	}
	return nil
}

// SQLStore is the relational Store backend shared by SQLite and PostgreSQL.
type SQLStore struct {
	db      *sql.DB
	dialect Dialect

	// writeMu serializes Update so id allocation and inserts never interleave
	// within this process.
	writeMu sync.Mutex
	closed  atomic.Bool
}

func newSQLStore(db *sql.DB, dialect Dialect) (*SQLStore, error) {
	if err := RunMigrations(db, dialect); err != nil {
		return nil, err
	}
	return &SQLStore{db: db, dialect: dialect}, nil
}

// Dialect reports which engine backs the store.
func (s *SQLStore) Dialect() Dialect {
	return s.dialect
}

// Close closes the database connection. Later calls return ErrClosed.
func (s *SQLStore) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	return s.db.Close()
}

// View runs fn inside a read transaction.
func (s *SQLStore) View(ctx context.Context, fn func(Reader) error) error {
	if s.closed.Load() {
		return ErrClosed
	}
	tx, err := s.db.BeginTx(ctx, s.dialect.readOptions())
	if err != nil {
		return fmt.Errorf("begin read transaction: %w", err)
	}
	defer tx.Rollback()

	return fn(&sqlTx{tx: tx, dialect: s.dialect})
}

// Update runs fn inside a write transaction that commits only if fn succeeds.
func (s *SQLStore) Update(ctx context.Context, fn func(Writer) error) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if s.closed.Load() {
		return ErrClosed
	}
	tx, err := s.db.BeginTx(ctx, s.dialect.writeOptions())
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(&sqlTx{tx: tx, dialect: s.dialect}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// Stats returns per-table row counts.
func (s *SQLStore) Stats(ctx context.Context) (*types.StoreStats, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}
	var stats types.StoreStats
	counts := []struct {
		table string
		dst   *int64
	}{
		{"movies", &stats.Movies},
		{"characters", &stats.Characters},
		{"conversations", &stats.Conversations},
		{"lines", &stats.Lines},
	}
	for _, c := range counts {
		if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+c.table).Scan(c.dst); err != nil {
			return nil, fmt.Errorf("count %s: %w", c.table, err)
		}
	}
	return &stats, nil
}

// Import bulk-loads a dataset in a single transaction and recomputes the
// derived line counts from the imported lines.
func (s *SQLStore) Import(ctx context.Context, ds *types.Dataset) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if s.closed.Load() {
		return ErrClosed
	}
	tx, err := s.db.BeginTx(ctx, s.dialect.writeOptions())
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	t := &sqlTx{tx: tx, dialect: s.dialect}

	for i := range ds.Movies {
		if err := t.insertMovie(ctx, &ds.Movies[i]); err != nil {
			return err
		}
	}
	for i := range ds.Characters {
		if err := t.insertCharacter(ctx, &ds.Characters[i]); err != nil {
			return err
		}
	}
	for i := range ds.Conversations {
		if err := t.insertConversation(ctx, &ds.Conversations[i]); err != nil {
			return err
		}
	}
	for i := range ds.Lines {
		if err := t.insertLine(ctx, &ds.Lines[i]); err != nil {
			return err
		}
	}

	recount := []string{
		`UPDATE characters SET line_count =
			(SELECT COUNT(*) FROM lines WHERE lines.character_id = characters.character_id)`,
		`UPDATE conversations SET line_count =
			(SELECT COUNT(*) FROM lines WHERE lines.conversation_id = conversations.conversation_id)`,
	}
	for _, q := range recount {
		if _, err := tx.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("recount lines: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// --- transaction-scoped Reader/Writer ---

const (
	movieColumns        = `movie_id, title, year, imdb_rating, imdb_votes, raw_script_url`
	characterColumns    = `character_id, name, movie_id, gender, age, line_count`
	conversationColumns = `conversation_id, character1_id, character2_id, movie_id, line_count`
	lineColumns         = `line_id, character_id, movie_id, conversation_id, line_sort, line_text`
)

type rowScanner interface {
	Scan(dest ...any) error
}

// sqlTx implements Writer over a single transaction. database/sql allows one
// active result set per connection, so callers must finish a scan before
// issuing the next statement.
type sqlTx struct {
	tx      *sql.Tx
	dialect Dialect
}

func (t *sqlTx) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return t.tx.ExecContext(ctx, t.dialect.rebind(query), args...)
}

func (t *sqlTx) queryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return t.tx.QueryRowContext(ctx, t.dialect.rebind(query), args...)
}

func (t *sqlTx) GetMovie(ctx context.Context, id int) (*types.Movie, error) {
	m, err := scanMovie(t.queryRow(ctx, `SELECT `+movieColumns+` FROM movies WHERE movie_id = ?`, id))
	return getResult(m, err, "movie", id)
}

func (t *sqlTx) GetCharacter(ctx context.Context, id int) (*types.Character, error) {
	c, err := scanCharacter(t.queryRow(ctx, `SELECT `+characterColumns+` FROM characters WHERE character_id = ?`, id))
	return getResult(c, err, "character", id)
}

func (t *sqlTx) GetConversation(ctx context.Context, id int) (*types.Conversation, error) {
	c, err := scanConversation(t.queryRow(ctx, `SELECT `+conversationColumns+` FROM conversations WHERE conversation_id = ?`, id))
	return getResult(c, err, "conversation", id)
}

func (t *sqlTx) GetLine(ctx context.Context, id int) (*types.Line, error) {
	l, err := scanLine(t.queryRow(ctx, `SELECT `+lineColumns+` FROM lines WHERE line_id = ?`, id))
	return getResult(l, err, "line", id)
}

func getResult[T any](v *T, err error, kind string, id int) (*T, error) {
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s %d: %w", kind, id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get %s %d: %w", kind, id, err)
	}
	return v, nil
}

func (t *sqlTx) ScanCharacters(ctx context.Context, match func(*types.Character) bool) iter.Seq2[*types.Character, error] {
	return scanRows(ctx, t, `SELECT `+characterColumns+` FROM characters ORDER BY character_id`, scanCharacter, match)
}

func (t *sqlTx) ScanConversations(ctx context.Context, match func(*types.Conversation) bool) iter.Seq2[*types.Conversation, error] {
	return scanRows(ctx, t, `SELECT `+conversationColumns+` FROM conversations ORDER BY conversation_id`, scanConversation, match)
}

func (t *sqlTx) ScanLines(ctx context.Context, match func(*types.Line) bool) iter.Seq2[*types.Line, error] {
	return scanRows(ctx, t, `SELECT `+lineColumns+` FROM lines ORDER BY line_id`, scanLine, match)
}

func scanRows[T any](ctx context.Context, t *sqlTx, query string, scan func(rowScanner) (*T, error), match func(*T) bool) iter.Seq2[*T, error] {
	return func(yield func(*T, error) bool) {
		rows, err := t.tx.QueryContext(ctx, query)
		if err != nil {
			yield(nil, fmt.Errorf("query rows: %w", err))
			return
		}
		defer rows.Close()

		for rows.Next() {
			v, err := scan(rows)
			if err != nil {
				yield(nil, fmt.Errorf("scan row: %w", err))
				return
			}
			if match != nil && !match(v) {
				continue
			}
			if !yield(v, nil) {
				return
			}
		}
		if err := rows.Err(); err != nil {
			yield(nil, fmt.Errorf("iterate rows: %w", err))
		}
	}
}

func (t *sqlTx) NextConversationID(ctx context.Context) (int, error) {
	return t.nextID(ctx, "conversations", "conversation_id")
}

func (t *sqlTx) NextLineID(ctx context.Context) (int, error) {
	return t.nextID(ctx, "lines", "line_id")
}

func (t *sqlTx) nextID(ctx context.Context, table, column string) (int, error) {
	var maxID sql.NullInt64
	if err := t.tx.QueryRowContext(ctx, "SELECT MAX("+column+") FROM "+table).Scan(&maxID); err != nil {
		return 0, fmt.Errorf("next %s: %w", column, err)
	}
	if !maxID.Valid {
		return 0, nil
	}
	return int(maxID.Int64) + 1, nil
}

func (t *sqlTx) AppendConversation(ctx context.Context, conv *types.Conversation) (int, error) {
	next, err := t.NextConversationID(ctx)
	if err != nil {
		return 0, err
	}
	if conv.ID < next {
		return 0, fmt.Errorf("conversation %d (next %d): %w", conv.ID, next, ErrIDOutOfOrder)
	}

	stored := *conv
	stored.LineCount = 0
	if err := t.insertConversation(ctx, &stored); err != nil {
		return 0, err
	}
	return conv.ID, nil
}

func (t *sqlTx) AppendLine(ctx context.Context, line *types.Line) (int, error) {
	next, err := t.NextLineID(ctx)
	if err != nil {
		return 0, err
	}
	if line.ID < next {
		return 0, fmt.Errorf("line %d (next %d): %w", line.ID, next, ErrIDOutOfOrder)
	}

	if err := t.insertLine(ctx, line); err != nil {
		return 0, err
	}
	if err := t.incrementLineCount(ctx, "characters", "character_id", line.CharacterID); err != nil {
		return 0, err
	}
	if err := t.incrementLineCount(ctx, "conversations", "conversation_id", line.ConversationID); err != nil {
		return 0, err
	}
	return line.ID, nil
}

func (t *sqlTx) incrementLineCount(ctx context.Context, table, column string, id int) error {
	result, err := t.exec(ctx, `UPDATE `+table+` SET line_count = line_count + 1 WHERE `+column+` = ?`, id)
	if err != nil {
		return fmt.Errorf("increment %s line count: %w", table, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%s %d: %w", table, id, ErrNotFound)
	}
	return nil
}

func (t *sqlTx) insertMovie(ctx context.Context, m *types.Movie) error {
	_, err := t.exec(ctx, `INSERT INTO movies (`+movieColumns+`) VALUES (?, ?, ?, ?, ?, ?)`,
		m.ID, m.Title, nullable(m.Year), nullable(m.Rating), nullable(m.VoteCount), nullable(m.ScriptURL))
	if err != nil {
		return fmt.Errorf("insert movie %d: %w", m.ID, err)
	}
	return nil
}

func (t *sqlTx) insertCharacter(ctx context.Context, c *types.Character) error {
	_, err := t.exec(ctx, `INSERT INTO characters (`+characterColumns+`) VALUES (?, ?, ?, ?, ?, ?)`,
		c.ID, c.Name, c.MovieID, nullable(c.Gender), nullable(c.Age), c.LineCount)
	if err != nil {
		return fmt.Errorf("insert character %d: %w", c.ID, err)
	}
	return nil
}

func (t *sqlTx) insertConversation(ctx context.Context, c *types.Conversation) error {
	_, err := t.exec(ctx, `INSERT INTO conversations (`+conversationColumns+`) VALUES (?, ?, ?, ?, ?)`,
		c.ID, c.Character1ID, c.Character2ID, c.MovieID, c.LineCount)
	if err != nil {
		return fmt.Errorf("insert conversation %d: %w", c.ID, err)
	}
	return nil
}

func (t *sqlTx) insertLine(ctx context.Context, l *types.Line) error {
	_, err := t.exec(ctx, `INSERT INTO lines (`+lineColumns+`) VALUES (?, ?, ?, ?, ?, ?)`,
		l.ID, l.CharacterID, l.MovieID, l.ConversationID, l.SortIndex, l.Text)
	if err != nil {
		return fmt.Errorf("insert line %d: %w", l.ID, err)
	}
	return nil
}

// --- row scanning ---

func scanMovie(scanner rowScanner) (*types.Movie, error) {
	var m types.Movie
	var year, scriptURL sql.NullString
	var rating sql.NullFloat64
	var votes sql.NullInt64

	if err := scanner.Scan(&m.ID, &m.Title, &year, &rating, &votes, &scriptURL); err != nil {
		return nil, err
	}
	m.Year = nullString(year)
	m.Rating = nullFloat(rating)
	m.VoteCount = nullInt(votes)
	m.ScriptURL = nullString(scriptURL)
	return &m, nil
}

func scanCharacter(scanner rowScanner) (*types.Character, error) {
	var c types.Character
	var gender sql.NullString
	var age sql.NullInt64

	if err := scanner.Scan(&c.ID, &c.Name, &c.MovieID, &gender, &age, &c.LineCount); err != nil {
		return nil, err
	}
	c.Gender = nullString(gender)
	c.Age = nullInt(age)
	return &c, nil
}

func scanConversation(scanner rowScanner) (*types.Conversation, error) {
	var c types.Conversation
	if err := scanner.Scan(&c.ID, &c.Character1ID, &c.Character2ID, &c.MovieID, &c.LineCount); err != nil {
		return nil, err
	}
	return &c, nil
}

func scanLine(scanner rowScanner) (*types.Line, error) {
	var l types.Line
	if err := scanner.Scan(&l.ID, &l.CharacterID, &l.MovieID, &l.ConversationID, &l.SortIndex, &l.Text); err != nil {
		return nil, err
	}
	return &l, nil
}

func nullString(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	return &v.String
}

func nullFloat(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	return &v.Float64
}

func nullInt(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	n := int(v.Int64)
	return &n
}

// nullable converts an optional field to a driver value, nil meaning NULL.
func nullable[T any](p *T) any {
	if p == nil {
		return nil
	}
	return *p
}
