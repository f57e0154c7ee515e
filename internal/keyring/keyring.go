// Package keyring stores daylitd secrets in the OS keyring.
package keyring

import (
	"errors"
	"fmt"
	"slices"

	"github.com/zalando/go-keyring"

	"github.com/julianstephens/daylitd/internal/constants"
)

var (
	// ErrNotFound is returned when no secret is stored under the name
	ErrNotFound = errors.New("secret not found in keyring")
	// ErrKeyringUnavailable is returned when the OS keyring is not available
	ErrKeyringUnavailable = errors.New("OS keyring is not available")
)

// Secret names a keyring entry.
type Secret string

const (
	DatabaseConnection Secret = constants.DefaultKeyringUser
	ReasoningAPIKey    Secret = constants.KeyringReasoningAPIKey
	ServiceToken       Secret = constants.KeyringServiceToken
)

// Secrets lists every entry daylitd manages.
var Secrets = []Secret{DatabaseConnection, ReasoningAPIKey, ServiceToken}

// ParseSecret validates a user-supplied secret name.
func ParseSecret(name string) (Secret, error) {
	s := Secret(name)
	if !slices.Contains(Secrets, s) {
		return "", fmt.Errorf("unknown secret %q (expected one of %v)", name, Secrets)
	}
	return s, nil
}

// Get retrieves a secret. Returns ErrNotFound if nothing is stored.
func Get(s Secret) (string, error) {
	value, err := keyring.Get(constants.AppName, string(s))
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("%w: %v", ErrKeyringUnavailable, err)
	}
	return value, nil
}

func Set(s Secret, value string) error {
	if value == "" {
		return fmt.Errorf("%s cannot be empty", s)
	}
	if err := keyring.Set(constants.AppName, string(s), value); err != nil {
		return fmt.Errorf("failed to store %s in keyring: %w", s, err)
	}
	return nil
}

func Delete(s Secret) error {
	if err := keyring.Delete(constants.AppName, string(s)); err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to delete %s from keyring: %w", s, err)
	}
	return nil
}

// Resolve returns explicit when set, otherwise the stored secret. A missing
// or unreachable keyring yields an empty string.
func Resolve(explicit string, s Secret) string {
	if explicit != "" {
		return explicit
	}
	value, err := Get(s)
	if err != nil {
		return ""
	}
	return value
}

// IsAvailable checks if the OS keyring is available on the current system.
// This is a best-effort check and may not catch all failure scenarios.
func IsAvailable() bool {
	_, err := keyring.Get(constants.AppName, "test-availability")
	return err == nil || errors.Is(err, keyring.ErrNotFound)
}
