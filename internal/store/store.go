package store

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"golang.org/x/text/cases"
	"modernc.org/sqlite"

	"email-tracker/internal/metrics"
	"email-tracker/internal/models"
)

func init() {
	// SQLite folds case for ASCII only, casefold covers the rest of Unicode
	sqlite.MustRegisterDeterministicScalarFunction("casefold", 1, casefold)
}

// ErrNotFound is returned when no email matches the given id.
var ErrNotFound = errors.New("email not found")

// Filter selects emails. Empty fields match everything.
type Filter struct {
	// BodyContains matches a case-insensitive substring of the body.
	BodyContains string
	// Tag matches emails carrying this tag.
	Tag string
}

const schema = `
CREATE TABLE IF NOT EXISTS emails (
	id         TEXT PRIMARY KEY,
	body       TEXT NOT NULL DEFAULT '',
	date       TEXT NOT NULL DEFAULT '',
	from_addrs TEXT NOT NULL DEFAULT '[]',
	to_addrs   TEXT NOT NULL DEFAULT '[]',
	subject    TEXT NOT NULL DEFAULT '',
	created_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS email_tags (
	email_id TEXT NOT NULL REFERENCES emails(id) ON DELETE CASCADE,
	tag      TEXT NOT NULL,
	PRIMARY KEY (email_id, tag)
);

CREATE INDEX IF NOT EXISTS idx_emails_created ON emails(created_at);
CREATE INDEX IF NOT EXISTS idx_email_tags_tag ON email_tags(tag);
`

// emailRow is the database shape of an email, addresses kept as JSON arrays.
type emailRow struct {
	ID      string `db:"id"`
	Body    string `db:"body"`
	Date    string `db:"date"`
	From    string `db:"from_addrs"`
	To      string `db:"to_addrs"`
	Subject string `db:"subject"`
}

// SQLiteStore persists email records in a local SQLite database.
type SQLiteStore struct {
	db *sqlx.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath and
// creates the schema. Use ":memory:" for a throwaway database.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sqlx.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}

	// A single connection keeps ":memory:" databases shared and serializes writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	for _, pragma := range []string{"PRAGMA journal_mode=WAL", "PRAGMA foreign_keys=ON"} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("applying %q: %w", pragma, err)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Insert stores a new email with a generated id and returns the stored record.
// Tags on rec are stored too, duplicates collapsed.
func (s *SQLiteStore) Insert(ctx context.Context, rec models.EmailRecord) (*models.EmailRecord, error) {
	defer observe("insert", time.Now())

	rec.ID = uuid.New().String()
	rec.Normalize()

	from, err := json.Marshal(rec.From)
	if err != nil {
		return nil, fmt.Errorf("encoding from: %w", err)
	}
	to, err := json.Marshal(rec.To)
	if err != nil {
		return nil, fmt.Errorf("encoding to: %w", err)
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO emails (id, body, date, from_addrs, to_addrs, subject, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Body, rec.Date, string(from), string(to), rec.Subject, time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return nil, fmt.Errorf("inserting email: %w", err)
	}

	if err := addTags(ctx, tx, rec.ID, rec.Tags); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing email: %w", err)
	}

	return s.FindByID(ctx, rec.ID)
}

// Find returns the emails matching filter, oldest first.
func (s *SQLiteStore) Find(ctx context.Context, filter Filter) ([]models.EmailRecord, error) {
	defer observe("find", time.Now())

	var (
		where []string
		args  []any
	)
	if filter.BodyContains != "" {
		where = append(where, `instr(casefold(e.body), ?) > 0`)
		args = append(args, cases.Fold().String(filter.BodyContains))
	}
	if filter.Tag != "" {
		where = append(where, `EXISTS (SELECT 1 FROM email_tags t WHERE t.email_id = e.id AND t.tag = ?)`)
		args = append(args, filter.Tag)
	}

	query := `SELECT e.id, e.body, e.date, e.from_addrs, e.to_addrs, e.subject FROM emails e`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY e.rowid"

	var rows []emailRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("querying emails: %w", err)
	}

	records := make([]models.EmailRecord, 0, len(rows))
	for _, row := range rows {
		rec, err := s.toRecord(ctx, row)
		if err != nil {
			return nil, err
		}
		records = append(records, *rec)
	}
	return records, nil
}

// FindByID returns a single email or ErrNotFound.
func (s *SQLiteStore) FindByID(ctx context.Context, id string) (*models.EmailRecord, error) {
	var row emailRow
	err := s.db.GetContext(ctx, &row, `
		SELECT id, body, date, from_addrs, to_addrs, subject
		FROM emails WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting email %s: %w", id, err)
	}
	return s.toRecord(ctx, row)
}

// AddTags adds tags to an email with set semantics and returns the updated record.
func (s *SQLiteStore) AddTags(ctx context.Context, id string, tags []string) (*models.EmailRecord, error) {
	defer observe("add_tags", time.Now())

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	var exists int
	if err := tx.GetContext(ctx, &exists, "SELECT COUNT(*) FROM emails WHERE id = ?", id); err != nil {
		return nil, fmt.Errorf("checking email %s: %w", id, err)
	}
	if exists == 0 {
		return nil, ErrNotFound
	}

	if err := addTags(ctx, tx, id, tags); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing tags: %w", err)
	}

	return s.FindByID(ctx, id)
}

// DeleteByID removes an email and returns it, or ErrNotFound.
func (s *SQLiteStore) DeleteByID(ctx context.Context, id string) (*models.EmailRecord, error) {
	defer observe("delete", time.Now())

	rec, err := s.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	result, err := s.db.ExecContext(ctx, "DELETE FROM emails WHERE id = ?", id)
	if err != nil {
		return nil, fmt.Errorf("deleting email %s: %w", id, err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return nil, ErrNotFound
	}
	return rec, nil
}

func addTags(ctx context.Context, tx *sqlx.Tx, id string, tags []string) error {
	for _, tag := range tags {
		tag = strings.TrimSpace(tag)
		if tag == "" {
			continue
		}
		if _, err := tx.ExecContext(ctx,
			"INSERT OR IGNORE INTO email_tags (email_id, tag) VALUES (?, ?)", id, tag); err != nil {
			return fmt.Errorf("tagging email %s with %q: %w", id, tag, err)
		}
	}
	return nil
}

func (s *SQLiteStore) toRecord(ctx context.Context, row emailRow) (*models.EmailRecord, error) {
	rec := &models.EmailRecord{
		ID:      row.ID,
		Body:    row.Body,
		Date:    row.Date,
		Subject: row.Subject,
	}
	if err := json.Unmarshal([]byte(row.From), &rec.From); err != nil {
		return nil, fmt.Errorf("decoding from of %s: %w", row.ID, err)
	}
	if err := json.Unmarshal([]byte(row.To), &rec.To); err != nil {
		return nil, fmt.Errorf("decoding to of %s: %w", row.ID, err)
	}

	if err := s.db.SelectContext(ctx, &rec.Tags,
		"SELECT tag FROM email_tags WHERE email_id = ? ORDER BY rowid", row.ID); err != nil {
		return nil, fmt.Errorf("querying tags of %s: %w", row.ID, err)
	}

	rec.Normalize()
	return rec, nil
}

// casefold is the SQL function casefold(text), Unicode case folding of its argument.
func casefold(_ *sqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
	switch v := args[0].(type) {
	case nil:
		return nil, nil
	case string:
		return cases.Fold().String(v), nil
	case []byte:
		return cases.Fold().String(string(v)), nil
	default:
		return nil, fmt.Errorf("casefold: unsupported argument type %T", v)
	}
}

func observe(operation string, start time.Time) {
	metrics.RecordDBQueryDuration(operation, "emails", time.Since(start))
}
