package dialogue

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store on a SQLite file, one row per chat with the
// state serialized as JSON. Idle states are deleted rather than stored so
// a reset chat leaves no credentials behind.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens (and if needed creates) the dialogue database at dbPath.
func NewSQLite(dbPath string) (*SQLiteStore, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	// WAL mode for better concurrency.
	dsn := dbPath + "?_journal=WAL&_sync=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

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
	CREATE TABLE IF NOT EXISTS dialogues (
		chat_id INTEGER PRIMARY KEY,
		state_json TEXT NOT NULL,
		updated_at INTEGER NOT NULL
	);`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Get(ctx context.Context, chatID int64) (State, error) {
	var raw string
	err := s.db.QueryRowContext(ctx,
		`SELECT state_json FROM dialogues WHERE chat_id = ?`, chatID).Scan(&raw)
	if err == sql.ErrNoRows {
		return Idle(), nil
	}
	if err != nil {
		return State{}, fmt.Errorf("scan dialogue row: %w", err)
	}

	var st State
	if err := json.Unmarshal([]byte(raw), &st); err != nil {
		return State{}, fmt.Errorf("decode dialogue state: %w", err)
	}
	return st, nil
}

func (s *SQLiteStore) Put(ctx context.Context, chatID int64, state State) error {
	if state.IsIdle() {
		if _, err := s.db.ExecContext(ctx,
			`DELETE FROM dialogues WHERE chat_id = ?`, chatID); err != nil {
			return fmt.Errorf("delete dialogue: %w", err)
		}
		return nil
	}

	raw, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encode dialogue state: %w", err)
	}

	query := `
	INSERT INTO dialogues (chat_id, state_json, updated_at)
	VALUES (?, ?, ?)
	ON CONFLICT(chat_id) DO UPDATE SET
		state_json = excluded.state_json,
		updated_at = excluded.updated_at`
	if _, err := s.db.ExecContext(ctx, query, chatID, string(raw), time.Now().Unix()); err != nil {
		return fmt.Errorf("upsert dialogue: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
