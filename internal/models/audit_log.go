// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package models

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// Audit actions
const (
	AuditActivated           = "activated"
	AuditDeactivated         = "deactivated"
	AuditLicenseActivated    = "license_activated"
	AuditLicenseDeactivated  = "license_deactivated"
	AuditLicenseGraceExpired = "license_grace_expired"
	AuditSettingsReset       = "settings_reset"
)

type AuditEntry struct {
	ID        int       `json:"id"`
	Action    string    `json:"action"`
	Details   string    `json:"details"`
	UserID    int       `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
}

// AuditLogStore is append only
type AuditLogStore struct {
	db *sql.DB
}

func NewAuditLogStore(db *sql.DB) *AuditLogStore {
	return &AuditLogStore{db: db}
}

// Append records an action. details is JSON encoded unless it is already a string.
// userID 0 means the system. Empty details and the system actor are stored as NULL.
func (s *AuditLogStore) Append(ctx context.Context, action string, details any, userID int) error {
	var text sql.NullString
	switch d := details.(type) {
	case nil:
	case string:
		text = sql.NullString{String: d, Valid: d != ""}
	default:
		encoded, err := json.Marshal(d)
		if err != nil {
			return fmt.Errorf("failed to encode audit details: %w", err)
		}
		text = sql.NullString{String: string(encoded), Valid: true}
	}

	actor := sql.NullInt64{Int64: int64(userID), Valid: userID != 0}

	_, err := s.db.ExecContext(ctx, "INSERT INTO logs (action, details, user_id) VALUES (?, ?, ?)", action, text, actor)
	if err != nil {
		return fmt.Errorf("failed to append audit entry %s: %w", action, err)
	}
	return nil
}

// Recent returns up to limit entries, newest first
func (s *AuditLogStore) Recent(ctx context.Context, limit int) ([]AuditEntry, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, action, details, user_id, created_at
		FROM logs
		ORDER BY id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []AuditEntry
	for rows.Next() {
		var (
			e       AuditEntry
			details sql.NullString
			actor   sql.NullInt64
		)
		if err := rows.Scan(&e.ID, &e.Action, &details, &actor, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Details = details.String
		e.UserID = int(actor.Int64)
		entries = append(entries, e)
	}

	return entries, rows.Err()
}
