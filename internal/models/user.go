// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package models

import (
	"context"
	"database/sql"
	"slices"
	"strings"
	"time"

	"github.com/pkg/errors"
)

var ErrUserNotFound = errors.New("user not found")
var ErrUserAlreadyExists = errors.New("user already exists")

// RoleAdministrator may manage the gateway through the control API
const RoleAdministrator = "administrator"

type User struct {
	ID           int       `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	Roles        []string  `json:"roles"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// HasRole reports whether the user carries role
func (u *User) HasRole(role string) bool {
	return slices.Contains(u.Roles, role)
}

// IsAdmin reports whether the user may manage the gateway
func (u *User) IsAdmin() bool {
	return u.HasRole(RoleAdministrator)
}

type UserStore struct {
	db *sql.DB
}

func NewUserStore(db *sql.DB) *UserStore {
	return &UserStore{db: db}
}

const userColumns = "id, username, password_hash, roles, created_at, updated_at"

func (s *UserStore) Create(ctx context.Context, username, passwordHash string, roles []string) (*User, error) {
	roles = NormalizeRoles(roles)
	if len(roles) == 0 {
		roles = []string{RoleAdministrator}
	}

	query := `
		INSERT INTO users (username, password_hash, roles)
		VALUES (?, ?, ?)
		RETURNING ` + userColumns

	user, err := scanUser(s.db.QueryRowContext(ctx, query, username, passwordHash, strings.Join(roles, ",")))
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return nil, ErrUserAlreadyExists
		}
		return nil, err
	}

	return user, nil
}

func (s *UserStore) GetByID(ctx context.Context, id int) (*User, error) {
	return s.getOne(ctx, "SELECT "+userColumns+" FROM users WHERE id = ?", id)
}

func (s *UserStore) GetByUsername(ctx context.Context, username string) (*User, error) {
	return s.getOne(ctx, "SELECT "+userColumns+" FROM users WHERE username = ?", username)
}

func (s *UserStore) getOne(ctx context.Context, query string, arg any) (*User, error) {
	user, err := scanUser(s.db.QueryRowContext(ctx, query, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return user, nil
}

func (s *UserStore) UpdatePassword(ctx context.Context, username, passwordHash string) error {
	result, err := s.db.ExecContext(ctx, "UPDATE users SET password_hash = ? WHERE username = ?", passwordHash, username)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rows == 0 {
		return ErrUserNotFound
	}

	return nil
}

// UpdateRoles replaces the roles of username. An empty set means administrator.
func (s *UserStore) UpdateRoles(ctx context.Context, username string, roles []string) error {
	roles = NormalizeRoles(roles)
	if len(roles) == 0 {
		roles = []string{RoleAdministrator}
	}

	result, err := s.db.ExecContext(ctx, "UPDATE users SET roles = ? WHERE username = ?", strings.Join(roles, ","), username)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rows == 0 {
		return ErrUserNotFound
	}

	return nil
}

// Exists reports whether any user has been created
func (s *UserStore) Exists(ctx context.Context) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM users").Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// NormalizeRoles trims, lower-cases and dedupes role names
func NormalizeRoles(roles []string) []string {
	out := make([]string, 0, len(roles))
	for _, role := range roles {
		role = strings.ToLower(strings.TrimSpace(role))
		if role == "" || slices.Contains(out, role) {
			continue
		}
		out = append(out, role)
	}
	return out
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*User, error) {
	user := &User{}
	var roles string
	if err := row.Scan(
		&user.ID,
		&user.Username,
		&user.PasswordHash,
		&roles,
		&user.CreatedAt,
		&user.UpdatedAt,
	); err != nil {
		return nil, err
	}
	user.Roles = NormalizeRoles(strings.Split(roles, ","))
	return user, nil
}
