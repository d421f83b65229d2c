package auth

import (
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// bcryptCost trades hash time for guess resistance. Account creation and
// import authentication are rare operations, so a slow hash costs nothing
// noticeable.
const bcryptCost = 12

// minPasswordLength rejects trivially guessable account passwords.
const minPasswordLength = 8

// Usernames are 3-32 characters, start with a letter or digit, and may
// contain dots, underscores and hyphens after that. They key the owner of a
// reading profile, so the rules stay strict enough to embed in URLs.
var usernamePattern = regexp.MustCompile(`^[a-z0-9][a-z0-9._-]{2,31}$`)

// NormalizeUsername lowercases and trims a username so storage and lookup
// share one key regardless of how the reader typed it.
func NormalizeUsername(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}

// ValidateUsername checks a normalized username against the account rules.
func ValidateUsername(normalized string) error {
	if !usernamePattern.MatchString(normalized) {
		return fmt.Errorf("username must be 3-32 characters (letters, digits, '.', '_', '-'), starting with a letter or digit")
	}
	return nil
}

// HashPassword hashes an account password. Passwords are taken verbatim,
// whitespace included, so whatever verified at creation verifies later.
func HashPassword(password string) (string, error) {
	if len(password) < minPasswordLength {
		return "", fmt.Errorf("password must be at least %d characters", minPasswordLength)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

// VerifyPassword reports whether the password matches the stored hash.
func VerifyPassword(password, hash string) bool {
	if password == "" || hash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
