package session

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/ashureev/kiroku/internal/domain"
	"github.com/ashureev/kiroku/internal/shared"
	_ "modernc.org/sqlite"
)

// SQLiteStore persists sessions in SQLite so narrative progress
// survives restarts. Update serializes read-modify-write through a
// store-level mutex; the database only ever sees whole-session upserts.
type SQLiteStore struct {
	db *sql.DB
	mu sync.Mutex
}

// NewSQLiteStore opens (or creates) the session database at dbPath.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// WAL mode for better concurrency.
	dsn := dbPath + "?_journal=WAL&_sync=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS sessions (
		user_id TEXT PRIMARY KEY,
		stage TEXT NOT NULL,
		last_record TEXT NOT NULL DEFAULT '',
		milestones_json TEXT NOT NULL DEFAULT '{}',
		bookmarks_json TEXT NOT NULL DEFAULT '[]',
		intro_cooldown_until INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_sessions_updated ON sessions(updated_at);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLiteStore) loadLocked(ctx context.Context, userID string) (*domain.Session, error) {
	query := `
		SELECT user_id, stage, last_record, milestones_json, bookmarks_json,
		       intro_cooldown_until, created_at, updated_at
		FROM sessions WHERE user_id = ?`

	row := s.db.QueryRowContext(ctx, query, userID)

	var sess domain.Session
	var stage, milestonesJSON, bookmarksJSON string
	var cooldownUntil, createdAt, updatedAt int64

	err := row.Scan(
		&sess.UserID, &stage, &sess.LastRecord,
		&milestonesJSON, &bookmarksJSON,
		&cooldownUntil, &createdAt, &updatedAt,
	)
	if err == sql.ErrNoRows {
		return domain.NewSession(userID), nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan session row: %w", err)
	}

	sess.Stage = domain.Stage(stage)
	if err := json.Unmarshal([]byte(milestonesJSON), &sess.Milestones); err != nil {
		return nil, fmt.Errorf("decode milestones: %w", err)
	}
	if err := json.Unmarshal([]byte(bookmarksJSON), &sess.Bookmarks); err != nil {
		return nil, fmt.Errorf("decode bookmarks: %w", err)
	}
	if sess.Milestones == nil {
		sess.Milestones = make(map[domain.Milestone]bool)
	}
	if cooldownUntil > 0 {
		sess.IntroCooldownUntil = time.Unix(cooldownUntil, 0)
	}
	sess.CreatedAt = time.Unix(createdAt, 0)
	sess.UpdatedAt = time.Unix(updatedAt, 0)

	return &sess, nil
}

func (s *SQLiteStore) saveLocked(ctx context.Context, sess *domain.Session) error {
	milestonesJSON, err := json.Marshal(sess.Milestones)
	if err != nil {
		return fmt.Errorf("encode milestones: %w", err)
	}
	bookmarks := sess.Bookmarks
	if bookmarks == nil {
		bookmarks = []string{}
	}
	bookmarksJSON, err := json.Marshal(bookmarks)
	if err != nil {
		return fmt.Errorf("encode bookmarks: %w", err)
	}

	var cooldownUntil int64
	if !sess.IntroCooldownUntil.IsZero() {
		cooldownUntil = sess.IntroCooldownUntil.Unix()
	}

	query := `
		INSERT INTO sessions (
			user_id, stage, last_record, milestones_json, bookmarks_json,
			intro_cooldown_until, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			stage = excluded.stage,
			last_record = excluded.last_record,
			milestones_json = excluded.milestones_json,
			bookmarks_json = excluded.bookmarks_json,
			intro_cooldown_until = excluded.intro_cooldown_until,
			updated_at = excluded.updated_at`

	// A WAL checkpoint or a second process on the same file can hold
	// the write lock briefly; retry the transient lock errors.
	err = shared.RetrySQLite(ctx, 3, 50*time.Millisecond, func() error {
		_, execErr := s.db.ExecContext(ctx, query,
			sess.UserID, string(sess.Stage), sess.LastRecord,
			string(milestonesJSON), string(bookmarksJSON),
			cooldownUntil, sess.CreatedAt.Unix(), time.Now().Unix(),
		)
		return execErr
	})
	if err != nil {
		return fmt.Errorf("upsert session: %w", err)
	}
	return nil
}

// Get retrieves the session for a user, creating a default one if absent.
func (s *SQLiteStore) Get(ctx context.Context, userID string) (*domain.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, err := s.loadLocked(ctx, userID)
	if err != nil {
		return nil, err
	}
	return sess.Clone(), nil
}

// Update applies fn to the session under the store lock and persists
// the result.
func (s *SQLiteStore) Update(ctx context.Context, userID string, fn func(*domain.Session)) (*domain.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.loadLocked(ctx, userID)
	if err != nil {
		return nil, err
	}
	fn(sess)
	sess.UpdatedAt = time.Now()
	if err := s.saveLocked(ctx, sess); err != nil {
		return nil, err
	}
	return sess.Clone(), nil
}

// Patch shallow-merges the non-nil fields into the session.
func (s *SQLiteStore) Patch(ctx context.Context, userID string, p Patch) error {
	_, err := s.Update(ctx, userID, func(sess *domain.Session) {
		applyPatch(sess, p)
	})
	return err
}

// Reset deletes the session entirely.
func (s *SQLiteStore) Reset(ctx context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// AddBookmark inserts a code at the front of the bookmark list.
func (s *SQLiteStore) AddBookmark(ctx context.Context, userID, code string) error {
	_, err := s.Update(ctx, userID, func(sess *domain.Session) {
		sess.AddBookmark(code)
	})
	return err
}

// RemoveBookmark deletes a code from the bookmark list.
func (s *SQLiteStore) RemoveBookmark(ctx context.Context, userID, code string) error {
	_, err := s.Update(ctx, userID, func(sess *domain.Session) {
		sess.RemoveBookmark(code)
	})
	return err
}

// ClearBookmarks empties the bookmark list.
func (s *SQLiteStore) ClearBookmarks(ctx context.Context, userID string) error {
	_, err := s.Update(ctx, userID, func(sess *domain.Session) {
		sess.ClearBookmarks()
	})
	return err
}

// ListBookmarks returns the bookmark list, most recent first.
func (s *SQLiteStore) ListBookmarks(ctx context.Context, userID string) ([]string, error) {
	sess, err := s.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	return sess.Bookmarks, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}
