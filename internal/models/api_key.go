// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package models

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"

	"github.com/pkg/errors"
)

// APIKeyOption holds the SHA-256 digest of the control API key
const APIKeyOption = OptionPrefix + "api_key"

var ErrInvalidAPIKey = errors.New("invalid api key")

// GenerateAPIKey generates a new API key
func GenerateAPIKey() (string, error) {
	bytes := make([]byte, 32)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return hex.EncodeToString(bytes), nil
}

// HashAPIKey creates a SHA256 hash of the API key
func HashAPIKey(key string) string {
	hash := sha256.Sum256([]byte(key))
	return hex.EncodeToString(hash[:])
}

// APIKeyStore keeps a single control API key digest in the options table
type APIKeyStore struct {
	options *OptionStore
}

func NewAPIKeyStore(options *OptionStore) *APIKeyStore {
	return &APIKeyStore{options: options}
}

// Rotate replaces the stored key and returns the raw key, which is not kept
func (s *APIKeyStore) Rotate(ctx context.Context) (string, error) {
	rawKey, err := GenerateAPIKey()
	if err != nil {
		return "", fmt.Errorf("failed to generate API key: %w", err)
	}

	if err := s.options.Set(ctx, APIKeyOption, HashAPIKey(rawKey)); err != nil {
		return "", err
	}

	return rawKey, nil
}

// Validate compares the digest of rawKey with the stored digest in constant time
func (s *APIKeyStore) Validate(ctx context.Context, rawKey string) error {
	if rawKey == "" {
		return ErrInvalidAPIKey
	}

	var stored string
	if err := s.options.Get(ctx, APIKeyOption, &stored); err != nil {
		if errors.Is(err, ErrOptionNotFound) {
			return ErrInvalidAPIKey
		}
		return err
	}

	if stored == "" || subtle.ConstantTimeCompare([]byte(HashAPIKey(rawKey)), []byte(stored)) != 1 {
		return ErrInvalidAPIKey
	}

	return nil
}

// Exists reports whether a key has been generated
func (s *APIKeyStore) Exists(ctx context.Context) (bool, error) {
	var stored string
	err := s.options.Get(ctx, APIKeyOption, &stored)
	if errors.Is(err, ErrOptionNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return stored != "", nil
}
