package keystore

import (
	"strings"

	"github.com/teranos/ctxeng/errors"
)

const (
	// CredentialKey is the key the OpenRouter credential is stored under.
	CredentialKey = "openrouter_api_key"
	// CredentialPrefix is how every OpenRouter key starts.
	CredentialPrefix = "sk-or-v1-"
)

// Credential validation failures. ValidateCredential returns them marked
// errors.ErrInvalidRequest.
var (
	ErrMissingCredential = errors.WithHint(
		errors.New("OpenRouter API key is required"),
		"add your key in the API key panel or run 'ctxeng key set'",
	)
	ErrMalformedCredential = errors.WithHint(
		errors.New("invalid OpenRouter API key format"),
		"keys start with "+CredentialPrefix,
	)
)

// NormalizeCredential trims surrounding whitespace from a pasted key.
func NormalizeCredential(key string) string {
	return strings.TrimSpace(key)
}

// ValidateCredential checks that key is present and carries the OpenRouter
// prefix. It does not contact OpenRouter.
func ValidateCredential(key string) error {
	key = NormalizeCredential(key)
	if key == "" {
		return errors.Mark(ErrMissingCredential, errors.ErrInvalidRequest)
	}
	if !strings.HasPrefix(key, CredentialPrefix) {
		return errors.Mark(ErrMalformedCredential, errors.ErrInvalidRequest)
	}
	return nil
}

// SaveCredential validates key and stores it. No tier is touched when the key
// is malformed. It returns the tier that accepted the key.
func SaveCredential(s *Store, key string) (string, error) {
	key = NormalizeCredential(key)
	if err := ValidateCredential(key); err != nil {
		return "", err
	}
	tier, ok := s.SetTier(CredentialKey, key)
	if !ok {
		return "", errors.WithHint(errors.Mark(ErrStorageUnavailable, errors.ErrServiceUnavailable), "storage may be disabled; enable cookies and try again")
	}
	return tier, nil
}

// LoadCredential returns the stored credential and the tier holding it.
func LoadCredential(s *Store) (key, tier string, ok bool) {
	return s.Lookup(CredentialKey)
}

// ClearCredential removes the credential from every tier.
func ClearCredential(s *Store) {
	s.Remove(CredentialKey)
}

// MaskCredential renders key safely for display, keeping only the prefix and
// the last four characters.
func MaskCredential(key string) string {
	key = NormalizeCredential(key)
	if key == "" {
		return ""
	}
	if strings.HasPrefix(key, CredentialPrefix) && len(key) > len(CredentialPrefix)+4 {
		return CredentialPrefix + "…" + key[len(key)-4:]
	}
	if len(key) <= 4 {
		return strings.Repeat("•", len(key))
	}
	return "…" + key[len(key)-4:]
}
