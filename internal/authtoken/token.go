// Package authtoken keeps the local API token in the OS keyring, with a JSON
// file fallback for machines without a keyring service.
package authtoken

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/zalando/go-keyring"
)

const (
	DefaultService = "lingo-ladders"
	DefaultProfile = "default"

	tokenBytes = 32
)

// ErrNotFound is returned when no token is stored for a profile.
var ErrNotFound = keyring.ErrNotFound

// Store reads and writes API tokens.
type Store struct {
	service      string
	fallbackPath string
	mu           sync.Mutex
}

// NewStore returns a Store for service. fallbackPath may be empty, in which
// case a missing keyring is an error.
func NewStore(service, fallbackPath string) *Store {
	if strings.TrimSpace(service) == "" {
		service = DefaultService
	}
	return &Store{service: service, fallbackPath: fallbackPath}
}

func account(profile string) (string, error) {
	profile = strings.TrimSpace(profile)
	if profile == "" {
		return "", errors.New("authtoken: profile is required")
	}
	return profile + "/api-token", nil
}

// Get returns the stored token for profile.
func (s *Store) Get(profile string) (string, error) {
	acct, err := account(profile)
	if err != nil {
		return "", err
	}
	tok, err := keyring.Get(s.service, acct)
	if err == nil {
		return tok, nil
	}
	if !unavailable(err) && !errors.Is(err, keyring.ErrNotFound) {
		return "", fmt.Errorf("authtoken: keyring get: %w", err)
	}

	tok, ferr := s.getFallback(acct)
	if ferr == nil {
		return tok, nil
	}
	if errors.Is(err, keyring.ErrNotFound) || errors.Is(ferr, ErrNotFound) {
		return "", ErrNotFound
	}
	return "", ferr
}

// Set stores token for profile.
func (s *Store) Set(profile, token string) error {
	acct, err := account(profile)
	if err != nil {
		return err
	}
	if strings.TrimSpace(token) == "" {
		return errors.New("authtoken: token is empty")
	}
	err = keyring.Set(s.service, acct, token)
	if err == nil {
		return nil
	}
	if !unavailable(err) {
		return fmt.Errorf("authtoken: keyring set: %w", err)
	}
	return s.setFallback(acct, token)
}

// Delete removes the token for profile from the keyring and the fallback
// file. Deleting a missing token is not an error.
func (s *Store) Delete(profile string) error {
	acct, err := account(profile)
	if err != nil {
		return err
	}
	kerr := keyring.Delete(s.service, acct)
	ferr := s.deleteFallback(acct)
	if kerr != nil && !errors.Is(kerr, keyring.ErrNotFound) && !unavailable(kerr) {
		return fmt.Errorf("authtoken: keyring delete: %w", kerr)
	}
	return ferr
}

// Ensure returns the existing token for profile, generating and storing a
// new one if none exists. created reports whether a token was generated.
func (s *Store) Ensure(profile string) (token string, created bool, err error) {
	tok, err := s.Get(profile)
	if err == nil {
		return tok, false, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return "", false, err
	}
	tok, err = Generate()
	if err != nil {
		return "", false, err
	}
	if err := s.Set(profile, tok); err != nil {
		return "", false, err
	}
	return tok, true, nil
}

// Rotate replaces the token for profile with a fresh one.
func (s *Store) Rotate(profile string) (string, error) {
	tok, err := Generate()
	if err != nil {
		return "", err
	}
	if err := s.Set(profile, tok); err != nil {
		return "", err
	}
	return tok, nil
}

// Generate returns a random hex token.
func Generate() (string, error) {
	b := make([]byte, tokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("authtoken: generate: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// Equal compares tokens in constant time.
func Equal(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

func unavailable(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "secret service") ||
		strings.Contains(msg, "dbus") ||
		strings.Contains(msg, "no keychain") ||
		strings.Contains(msg, "keyring backend not available")
}

func (s *Store) getFallback(acct string) (string, error) {
	if strings.TrimSpace(s.fallbackPath) == "" {
		return "", errors.New("authtoken: keyring unavailable and no fallback file configured")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	data, err := s.readFallback()
	if err != nil {
		return "", err
	}
	tok, ok := data[acct]
	if !ok {
		return "", ErrNotFound
	}
	return tok, nil
}

func (s *Store) setFallback(acct, token string) error {
	if strings.TrimSpace(s.fallbackPath) == "" {
		return errors.New("authtoken: keyring unavailable and no fallback file configured")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	data, err := s.readFallback()
	if err != nil {
		return err
	}
	data[acct] = token
	return s.writeFallback(data)
}

func (s *Store) deleteFallback(acct string) error {
	if strings.TrimSpace(s.fallbackPath) == "" {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	data, err := s.readFallback()
	if err != nil {
		return err
	}
	if _, ok := data[acct]; !ok {
		return nil
	}
	delete(data, acct)
	return s.writeFallback(data)
}

func (s *Store) readFallback() (map[string]string, error) {
	out := map[string]string{}
	raw, err := os.ReadFile(s.fallbackPath)
	if errors.Is(err, os.ErrNotExist) {
		return out, nil
	}
	if err != nil {
		return nil, fmt.Errorf("authtoken: read fallback: %w", err)
	}
	if len(raw) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("authtoken: decode fallback: %w", err)
	}
	return out, nil
}

func (s *Store) writeFallback(data map[string]string) error {
	if err := os.MkdirAll(filepath.Dir(s.fallbackPath), 0o700); err != nil {
		return fmt.Errorf("authtoken: mkdir fallback dir: %w", err)
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("authtoken: encode fallback: %w", err)
	}
	if err := os.WriteFile(s.fallbackPath, raw, 0o600); err != nil {
		return fmt.Errorf("authtoken: write fallback: %w", err)
	}
	return nil
}
