// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package models

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// OptionPrefix namespaces every option owned by ezmaint
const OptionPrefix = "ezmp_"

var ErrOptionNotFound = errors.New("option not found")

// OptionStore is a flat key/value table. Values are stored JSON encoded.
type OptionStore struct {
	db *sql.DB
}

func NewOptionStore(db *sql.DB) *OptionStore {
	return &OptionStore{db: db}
}

// execer is satisfied by both *sql.DB and *sql.Tx
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *OptionStore) GetRaw(ctx context.Context, name string) (json.RawMessage, error) {
	var value string
	err := s.db.QueryRowContext(ctx, "SELECT value FROM options WHERE name = ?", name).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrOptionNotFound
	}
	if err != nil {
		return nil, err
	}
	return json.RawMessage(value), nil
}

// Get decodes the option into dest
func (s *OptionStore) Get(ctx context.Context, name string, dest any) error {
	raw, err := s.GetRaw(ctx, name)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return fmt.Errorf("failed to decode option %s: %w", name, err)
	}
	return nil
}

func (s *OptionStore) Set(ctx context.Context, name string, value any) error {
	return setOption(ctx, s.db, name, value)
}

// SetMany writes all values in one transaction
func (s *OptionStore) SetMany(ctx context.Context, values map[string]any) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for name, value := range values {
		if err := setOption(ctx, tx, name, value); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// Add writes the value only when the option does not exist yet.
// Returns true when a row was inserted.
func (s *OptionStore) Add(ctx context.Context, name string, value any) (bool, error) {
	encoded, err := json.Marshal(value)
	if err != nil {
		return false, fmt.Errorf("failed to encode option %s: %w", name, err)
	}

	result, err := s.db.ExecContext(ctx, "INSERT OR IGNORE INTO options (name, value) VALUES (?, ?)", name, string(encoded))
	if err != nil {
		return false, err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows > 0, nil
}

func (s *OptionStore) Delete(ctx context.Context, names ...string) error {
	if len(names) == 0 {
		return nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(names)), ",")
	args := make([]any, len(names))
	for i, name := range names {
		args[i] = name
	}

	_, err := s.db.ExecContext(ctx, "DELETE FROM options WHERE name IN ("+placeholders+")", args...)
	return err
}

// DeletePrefix removes every option whose name starts with prefix
func (s *OptionStore) DeletePrefix(ctx context.Context, prefix string) (int64, error) {
	if prefix == "" {
		return 0, errors.New("refusing to delete options without a prefix")
	}

	result, err := s.db.ExecContext(ctx, "DELETE FROM options WHERE substr(name, 1, ?) = ?", len(prefix), prefix)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// List returns the raw values of all options starting with prefix
func (s *OptionStore) List(ctx context.Context, prefix string) (map[string]json.RawMessage, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT name, value FROM options WHERE substr(name, 1, ?) = ? ORDER BY name", len(prefix), prefix)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	values := make(map[string]json.RawMessage)
	for rows.Next() {
		var name, value string
		if err := rows.Scan(&name, &value); err != nil {
			return nil, err
		}
		values[name] = json.RawMessage(value)
	}

	return values, rows.Err()
}

func setOption(ctx context.Context, db execer, name string, value any) error {
	encoded, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode option %s: %w", name, err)
	}

	query := `
		INSERT INTO options (name, value) VALUES (?, ?)
		ON CONFLICT(name) DO UPDATE SET value = excluded.value
	`
	if _, err := db.ExecContext(ctx, query, name, string(encoded)); err != nil {
		return fmt.Errorf("failed to write option %s: %w", name, err)
	}
	return nil
}
