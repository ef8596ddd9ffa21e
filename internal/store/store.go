package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/pavelanni/phishtrap/internal/model"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// Store is the document store handle. It is opened once per process and
// injected into every component that needs persistence.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

func New(dbPath string) (*Store, error) {
	dsn := dbPath + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	if dbPath == ":memory:" {
		dsn = dbPath
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if dbPath == ":memory:" {
		// Every pooled connection would otherwise get its own empty database.
		db.SetMaxOpenConns(1)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	s := &Store{db: db, now: time.Now}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks that the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return wrap("ping", err)
	}
	return nil
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		email TEXT NOT NULL UNIQUE,
		password_hash TEXT NOT NULL,
		created_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS quiz_results (
		email TEXT PRIMARY KEY,
		entries TEXT NOT NULL DEFAULT '[]',
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS traps (
		id TEXT PRIMARY KEY,
		email TEXT NOT NULL,
		ignored INTEGER NOT NULL DEFAULT 0,
		email_input TEXT NOT NULL DEFAULT '',
		password_hash TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS traps_email_idx ON traps(email);

	CREATE TABLE IF NOT EXISTS app_metadata (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// wrap tags a persistence failure with model.ErrStore while keeping the cause.
func wrap(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", model.ErrStore, op, err)
}

func isUniqueViolation(err error) bool {
	var se *sqlite.Error
	if errors.As(err, &se) {
		return se.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE ||
			se.Code() == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
	}
	return false
}

// GetResultDocument returns the result document for email, or nil if none exists.
func (s *Store) GetResultDocument(ctx context.Context, email string) (*model.ResultDocument, error) {
	var (
		doc     model.ResultDocument
		entries string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT email, entries, created_at, updated_at FROM quiz_results WHERE email = ?`, email,
	).Scan(&doc.Email, &entries, &doc.CreatedAt, &doc.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, wrap("get result document", err)
	}
	if err := json.Unmarshal([]byte(entries), &doc.Quiz); err != nil {
		return nil, wrap("decode result document", err)
	}
	return &doc, nil
}

// AppendResult appends entry to the result document owned by email,
// creating the document when none exists.
//
// The read and the upsert are separate statements with no transaction
// around them: two concurrent appends for the same email can lose one
// entry (last writer wins).
func (s *Store) AppendResult(ctx context.Context, email string, entry model.ResultEntry) (*model.ResultDocument, error) {
	if email == "" {
		return nil, fmt.Errorf("%w: email is required", model.ErrValidation)
	}
	if !entry.QuizType.Valid() {
		return nil, fmt.Errorf("%w: unknown quiz type %q", model.ErrValidation, entry.QuizType)
	}
	if entry.Score < 0 || (entry.Total > 0 && entry.Score > entry.Total) {
		return nil, fmt.Errorf("%w: score %d out of range", model.ErrValidation, entry.Score)
	}

	now := s.now()
	if entry.Date.IsZero() {
		entry.Date = now
	}

	doc, err := s.GetResultDocument(ctx, email)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		doc = &model.ResultDocument{Email: email, CreatedAt: now}
	}
	doc.Quiz = append(doc.Quiz, entry)
	doc.UpdatedAt = now

	data, err := json.Marshal(doc.Quiz)
	if err != nil {
		return nil, wrap("encode result document", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO quiz_results (email, entries, created_at, updated_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(email) DO UPDATE SET entries = ?, updated_at = ?`,
		email, string(data), doc.CreatedAt, now, string(data), now,
	)
	if err != nil {
		slog.Error("failed to append result", "email", email, "error", err)
		return nil, wrap("upsert result document", err)
	}
	slog.Info("appended result", "email", email, "quiz_type", entry.QuizType, "score", entry.Score)
	return doc, nil
}

// QueryResults flattens every matching result entry into one sequence
// tagged with the owning email, in document order then submission order.
//
// It returns nil when no result document matches the owner filter. When
// documents match but none of their entries pass the quiz type filter, it
// returns an empty, non-nil slice.
func (s *Store) QueryResults(ctx context.Context, q model.ResultQuery) ([]model.QuizResult, error) {
	query := `SELECT email, entries FROM quiz_results`
	var args []any
	if q.Email != "" {
		query += ` WHERE email = ?`
		args = append(args, q.Email)
	}
	query += ` ORDER BY created_at, rowid`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrap("query results", err)
	}
	defer rows.Close()

	var (
		results []model.QuizResult
		matched bool
	)
	for rows.Next() {
		var email, raw string
		if err := rows.Scan(&email, &raw); err != nil {
			return nil, wrap("scan results", err)
		}
		var entries []model.ResultEntry
		if err := json.Unmarshal([]byte(raw), &entries); err != nil {
			return nil, wrap("decode results", err)
		}
		if !matched {
			matched = true
			results = []model.QuizResult{}
		}
		for _, e := range entries {
			if !q.IncludeAll && e.QuizType != q.QuizType {
				continue
			}
			results = append(results, model.QuizResult{
				Email:    email,
				QuizType: e.QuizType,
				Score:    e.Score,
				Total:    e.Total,
				Date:     e.Date,
			})
		}
	}
	if err := rows.Err(); err != nil {
		return nil, wrap("iterate results", err)
	}
	return results, nil
}

// ResultDocumentCount returns the number of stored result documents.
func (s *Store) ResultDocumentCount(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM quiz_results`).Scan(&count); err != nil {
		return 0, wrap("count result documents", err)
	}
	return count, nil
}
