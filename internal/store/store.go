// © 2025 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Package store persists user values gathered by the assistant's save_value
// tool in a SQLite database.
package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// ErrExists is returned by SaveValue when a value for the user is already
// recorded.
var ErrExists = errors.New("store: value already exists")

// Store is a SQLite-backed user value store. One value per Telegram user.
type Store struct {
	db *sql.DB
}

// Open opens or creates the database at path.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL;"); err != nil {
		db.Close()
		return nil, err
	}

	if _, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS user_values (
			telegram_id INTEGER PRIMARY KEY,
			value TEXT NOT NULL,
			created_at INTEGER NOT NULL
		);
	`); err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

// SaveValue records a value for the Telegram user. It returns ErrExists if a
// value for this user is already recorded.
func (s *Store) SaveValue(ctx context.Context, telegramID int64, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO user_values (telegram_id, value, created_at) VALUES (?, ?, ?);
	`, telegramID, value, time.Now().Unix())
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return ErrExists
		}
		return err
	}
	return nil
}

// Value returns the recorded value for the Telegram user, or an empty string
// if there is none.
func (s *Store) Value(ctx context.Context, telegramID int64) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `
		SELECT value FROM user_values WHERE telegram_id = ?;
	`, telegramID).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return value, nil
}

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }
