// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package auth

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/gob"
	"encoding/hex"
	"net/http"
	"strings"

	"github.com/gorilla/sessions"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/autobrr/ezmaint/internal/models"
)

const (
	SessionName   = "ezmaint_session"
	sessionMaxAge = 86400 * 7
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrNotAuthenticated   = errors.New("not authenticated")
	ErrWeakPassword       = errors.New("password must be at least 8 characters")
)

func init() {
	// roles are stored as a slice in the session cookie
	gob.Register([]string{})
}

// Identity is the logged in user of a session
type Identity struct {
	UserID   int      `json:"id"`
	Username string   `json:"username"`
	Roles    []string `json:"roles"`
}

func (i *Identity) IsAdmin() bool {
	if i == nil {
		return false
	}
	for _, role := range i.Roles {
		if role == models.RoleAdministrator {
			return true
		}
	}
	return false
}

type Service struct {
	store *sessions.CookieStore
	users *models.UserStore
}

func NewService(sessionSecret string, users *models.UserStore) *Service {
	store := sessions.NewCookieStore([]byte(sessionSecret))
	store.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   sessionMaxAge,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}

	return &Service{
		store: store,
		users: users,
	}
}

func (s *Service) GetSessionStore() *sessions.CookieStore {
	return s.store
}

// Login checks username and password. Unknown users and wrong passwords
// both return ErrInvalidCredentials.
func (s *Service) Login(ctx context.Context, username, password string) (*models.User, error) {
	user, err := s.users.GetByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		if errors.Is(err, models.ErrUserNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, errors.Wrap(err, "failed to load user")
	}

	ok, err := VerifyPassword(password, user.PasswordHash)
	if err != nil {
		log.Warn().Err(err).Str("username", user.Username).Msg("Stored password hash is unreadable")
		return nil, ErrInvalidCredentials
	}
	if !ok {
		return nil, ErrInvalidCredentials
	}

	if NeedsRehash(user.PasswordHash) {
		if hash, err := HashPassword(password); err == nil {
			if err := s.users.UpdatePassword(ctx, user.Username, hash); err != nil {
				log.Warn().Err(err).Str("username", user.Username).Msg("Failed to upgrade password hash")
			} else {
				user.PasswordHash = hash
			}
		}
	}

	return user, nil
}

// CreateUser hashes password and stores a new user
func (s *Service) CreateUser(ctx context.Context, username, password string, roles []string) (*models.User, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, errors.New("username is required")
	}
	if len(password) < 8 {
		return nil, ErrWeakPassword
	}

	hash, err := HashPassword(password)
	if err != nil {
		return nil, err
	}

	return s.users.Create(ctx, username, hash, roles)
}

// ChangePassword replaces the password of username
func (s *Service) ChangePassword(ctx context.Context, username, newPassword string) error {
	if len(newPassword) < 8 {
		return ErrWeakPassword
	}

	hash, err := HashPassword(newPassword)
	if err != nil {
		return err
	}

	return s.users.UpdatePassword(ctx, username, hash)
}

// StartSession stores user in a new session cookie
func (s *Service) StartSession(w http.ResponseWriter, r *http.Request, user *models.User) error {
	session, _ := s.store.Get(r, SessionName)
	session.Values["authenticated"] = true
	session.Values["user_id"] = user.ID
	session.Values["username"] = user.Username
	session.Values["roles"] = append([]string{}, user.Roles...)
	session.Values["stamp"] = passwordStamp(user.PasswordHash)

	opts := *s.store.Options
	// behind a TLS terminating proxy
	if r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https" {
		opts.Secure = true
	}
	session.Options = &opts

	return session.Save(r, w)
}

// EndSession expires the session cookie
func (s *Service) EndSession(w http.ResponseWriter, r *http.Request) error {
	session, _ := s.store.Get(r, SessionName)
	session.Values = map[any]any{}

	opts := *s.store.Options
	opts.MaxAge = -1
	session.Options = &opts

	return session.Save(r, w)
}

// Identity returns the session user of r. The user is re-read on every call:
// deleted users, changed roles and changed passwords take effect at once.
func (s *Service) Identity(r *http.Request) (*Identity, error) {
	session, err := s.store.Get(r, SessionName)
	if err != nil {
		// tampered or signed with an old secret
		return nil, ErrNotAuthenticated
	}

	if ok, _ := session.Values["authenticated"].(bool); !ok {
		return nil, ErrNotAuthenticated
	}

	userID, ok := session.Values["user_id"].(int)
	if !ok {
		return nil, ErrNotAuthenticated
	}
	stamp, _ := session.Values["stamp"].(string)

	user, err := s.users.GetByID(r.Context(), userID)
	if err != nil {
		if !errors.Is(err, models.ErrUserNotFound) {
			log.Error().Err(err).Int("userID", userID).Msg("Failed to load session user")
		}
		return nil, ErrNotAuthenticated
	}

	if stamp == "" || subtle.ConstantTimeCompare([]byte(stamp), []byte(passwordStamp(user.PasswordHash))) != 1 {
		return nil, ErrNotAuthenticated
	}

	return &Identity{
		UserID:   user.ID,
		Username: user.Username,
		Roles:    append([]string{}, user.Roles...),
	}, nil
}

// passwordStamp ties a session to the password it was created with
func passwordStamp(passwordHash string) string {
	sum := sha256.Sum256([]byte(passwordHash))
	return hex.EncodeToString(sum[:8])
}

// SessionRoles matches gate.IdentityFunc
func (s *Service) SessionRoles(r *http.Request) (bool, []string) {
	identity, err := s.Identity(r)
	if err != nil {
		return false, nil
	}
	return true, identity.Roles
}
