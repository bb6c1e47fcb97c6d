// Package sqlite persists the ledger of already-posted comments so repeated
// webhook deliveries for the same change request do not repost notes.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/bkyoung/inline-reviewer/internal/domain"
)

// Store implements the posted-comment ledger using SQLite.
type Store struct {
	db *sql.DB
}

// NewStore creates a SQLite store at the given path.
// Use ":memory:" for an in-memory database (useful for testing).
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	s := &Store{db: db}
	if err := s.createSchema(); err != nil {
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}
	return s, nil
}

// createSchema creates all tables and indexes if they don't exist.
func (s *Store) createSchema() error {
	schema := `
	-- One row per comment posted to a platform. The fingerprint is the
	-- deterministic identity of a validated comment (path, line, body).
	CREATE TABLE IF NOT EXISTS posted_comments (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		platform TEXT NOT NULL,
		project TEXT NOT NULL,
		change_request TEXT NOT NULL,
		fingerprint TEXT NOT NULL,
		path TEXT NOT NULL,
		new_line INTEGER NOT NULL,
		posted_at INTEGER NOT NULL,
		UNIQUE(platform, project, change_request, fingerprint)
	);

	-- Summaries posted per change request, keyed by head commit so a new
	-- push produces a new summary.
	CREATE TABLE IF NOT EXISTS posted_summaries (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		platform TEXT NOT NULL,
		project TEXT NOT NULL,
		change_request TEXT NOT NULL,
		head_commit TEXT NOT NULL,
		posted_at INTEGER NOT NULL,
		UNIQUE(platform, project, change_request, head_commit)
	);

	CREATE INDEX IF NOT EXISTS idx_posted_comments_key
		ON posted_comments(platform, project, change_request);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Seen reports whether the comment was already posted for this change
// request.
func (s *Store) Seen(ctx context.Context, platform, project, changeRequest string, comment domain.ValidatedComment) (bool, error) {
	query := `
		SELECT COUNT(*) FROM posted_comments
		WHERE platform = ? AND project = ? AND change_request = ? AND fingerprint = ?
	`
	var count int
	err := s.db.QueryRowContext(ctx, query, platform, project, changeRequest, comment.Fingerprint()).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to query posted comments: %w", err)
	}
	return count > 0, nil
}

// Record marks the comment as posted. Recording the same comment twice is
// not an error; the unique index keeps a single row.
func (s *Store) Record(ctx context.Context, platform, project, changeRequest string, comment domain.ValidatedComment) error {
	query := `
		INSERT OR IGNORE INTO posted_comments
			(platform, project, change_request, fingerprint, path, new_line, posted_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query,
		platform, project, changeRequest,
		comment.Fingerprint(), comment.Path, comment.NewLine,
		time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to record posted comment: %w", err)
	}
	return nil
}

// SummarySeen reports whether a summary was already posted for this head
// commit of the change request.
func (s *Store) SummarySeen(ctx context.Context, platform, project, changeRequest, headCommit string) (bool, error) {
	query := `
		SELECT COUNT(*) FROM posted_summaries
		WHERE platform = ? AND project = ? AND change_request = ? AND head_commit = ?
	`
	var count int
	err := s.db.QueryRowContext(ctx, query, platform, project, changeRequest, headCommit).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to query posted summaries: %w", err)
	}
	return count > 0, nil
}

// RecordSummary marks the summary as posted for this head commit.
func (s *Store) RecordSummary(ctx context.Context, platform, project, changeRequest, headCommit string) error {
	query := `
		INSERT OR IGNORE INTO posted_summaries
			(platform, project, change_request, head_commit, posted_at)
		VALUES (?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query, platform, project, changeRequest, headCommit, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("failed to record posted summary: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}
