// Package auth validates API keys against configured sha256 hashes.
package auth

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/tjfontaine/propertychat/internal/config"
)

// ErrInvalidAPIKey is returned for a key that matches no configured hash.
var ErrInvalidAPIKey = errors.New("invalid API key")

// Key is a configured key as known to the server.
type Key struct {
	Hash        string
	Description string
}

// Authenticator validates API keys.
type Authenticator struct {
	keys map[string]Key // keyhash -> key
}

// NewAuthenticator returns an authenticator for the configured keys, or nil
// when none are configured so callers can skip authentication.
func NewAuthenticator(keys []config.APIKeyConfig) *Authenticator {
	if len(keys) == 0 {
		return nil
	}
	a := &Authenticator{keys: make(map[string]Key, len(keys))}
	for _, k := range keys {
		h := strings.ToLower(strings.TrimSpace(k.KeyHash))
		if h == "" {
			continue
		}
		a.keys[h] = Key{Hash: h, Description: k.Description}
	}
	return a
}

// ValidateAPIKey returns the configured key matching apiKey.
func (a *Authenticator) ValidateAPIKey(apiKey string) (Key, error) {
	keyHash := HashAPIKey(apiKey)

	k, ok := a.keys[keyHash]
	if !ok {
		return Key{}, ErrInvalidAPIKey
	}
	// Constant-time comparison to prevent timing attacks
	if subtle.ConstantTimeCompare([]byte(keyHash), []byte(k.Hash)) != 1 {
		return Key{}, ErrInvalidAPIKey
	}
	return k, nil
}

// ExtractAPIKey extracts the API key from the Authorization header
func ExtractAPIKey(r *http.Request) (string, error) {
	auth := r.Header.Get("Authorization")
	if auth == "" {
		return "", fmt.Errorf("missing Authorization header")
	}

	// Support "Bearer <key>" format
	parts := strings.SplitN(auth, " ", 2)
	if len(parts) != 2 {
		return "", fmt.Errorf("invalid Authorization header format")
	}

	if strings.ToLower(parts[0]) != "bearer" {
		return "", fmt.Errorf("unsupported authorization scheme")
	}

	return strings.TrimSpace(parts[1]), nil
}

// HashAPIKey creates a SHA-256 hash of an API key for storage
func HashAPIKey(apiKey string) string {
	hash := sha256.Sum256([]byte(apiKey))
	return hex.EncodeToString(hash[:])
}
