// Package auth issues and verifies API tokens for the dashboard backend.
// A token has the form "<tokenID>.<secret>"; only a pbkdf2 encoding of the
// secret is stored, keyed by tokenID for lookup.
package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/crypto/pbkdf2"

	"samhost/internal/storage"
)

const (
	tokenHashIterations = 310000
	tokenHashSaltLength = 16
	tokenHashKeyLength  = 32
)

// ErrInvalidToken is returned when a presented token does not match any
// stored credential.
var ErrInvalidToken = errors.New("invalid api token")

// TokenStore is the subset of the repository the manager needs.
type TokenStore interface {
	SaveAPIToken(ctx context.Context, record storage.APITokenRecord) error
	LookupAPIToken(ctx context.Context, tokenID string) (storage.APITokenRecord, bool, error)
}

// Manager issues and authenticates API tokens.
type Manager struct {
	store TokenStore
}

// NewManager constructs a token manager over the given store.
func NewManager(store TokenStore) *Manager {
	return &Manager{store: store}
}

// Issue mints a new token for the user and returns the full token string.
// The secret half is never stored in clear.
func (m *Manager) Issue(ctx context.Context, userID string) (string, error) {
	tokenID, err := randomHex(8)
	if err != nil {
		return "", err
	}
	secret, err := randomHex(24)
	if err != nil {
		return "", err
	}
	encoded, err := hashSecret(secret)
	if err != nil {
		return "", err
	}
	record := storage.APITokenRecord{TokenID: tokenID, UserID: userID, Secret: encoded}
	if err := m.store.SaveAPIToken(ctx, record); err != nil {
		return "", fmt.Errorf("store api token: %w", err)
	}
	return tokenID + "." + secret, nil
}

// Authenticate resolves a presented token to its owning user ID.
func (m *Manager) Authenticate(ctx context.Context, token string) (string, error) {
	tokenID, secret, ok := strings.Cut(strings.TrimSpace(token), ".")
	if !ok || tokenID == "" || secret == "" {
		return "", ErrInvalidToken
	}
	record, found, err := m.store.LookupAPIToken(ctx, tokenID)
	if err != nil {
		return "", fmt.Errorf("lookup api token: %w", err)
	}
	if !found {
		return "", ErrInvalidToken
	}
	if err := verifySecret(record.Secret, secret); err != nil {
		return "", err
	}
	return record.UserID, nil
}

func randomHex(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate token bytes: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

func hashSecret(secret string) (string, error) {
	salt := make([]byte, tokenHashSaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}
	derived := pbkdf2.Key([]byte(secret), salt, tokenHashIterations, tokenHashKeyLength, sha256.New)
	encodedSalt := base64.RawStdEncoding.EncodeToString(salt)
	encodedKey := base64.RawStdEncoding.EncodeToString(derived)
	return fmt.Sprintf("pbkdf2$sha256$%d$%s$%s", tokenHashIterations, encodedSalt, encodedKey), nil
}

func verifySecret(encodedHash, candidate string) error {
	parts := strings.Split(encodedHash, "$")
	if len(parts) != 5 {
		return fmt.Errorf("verify token: invalid hash format")
	}
	if parts[0] != "pbkdf2" || parts[1] != "sha256" {
		return fmt.Errorf("verify token: unsupported hash identifier")
	}
	iterations, err := strconv.Atoi(parts[2])
	if err != nil || iterations <= 0 {
		return fmt.Errorf("verify token: invalid iteration count")
	}
	salt, err := base64.RawStdEncoding.DecodeString(parts[3])
	if err != nil {
		return fmt.Errorf("verify token: decode salt: %w", err)
	}
	storedKey, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return fmt.Errorf("verify token: decode hash: %w", err)
	}
	derived := pbkdf2.Key([]byte(candidate), salt, iterations, len(storedKey), sha256.New)
	if len(derived) != len(storedKey) || subtle.ConstantTimeCompare(derived, storedKey) != 1 {
		return ErrInvalidToken
	}
	return nil
}
