package utils

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// PasswordCost is the bcrypt work factor for stored account passwords.
const PasswordCost = 10

// ErrPasswordMismatch is returned by CheckPassword when the hash is well formed but does not match.
var ErrPasswordMismatch = errors.New("password does not match")

// HashPassword hashes an account password for storage.
func HashPassword(password string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), PasswordCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hashed), nil
}

// CheckPassword verifies plain against a stored hash. It returns ErrPasswordMismatch for a wrong password
// and a wrapped bcrypt error when the stored hash itself is unusable.
func CheckPassword(plain, hashed string) error {
	err := bcrypt.CompareHashAndPassword([]byte(hashed), []byte(plain))
	switch {
	case err == nil:
		return nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
		return ErrPasswordMismatch
	default:
		return fmt.Errorf("stored password hash: %w", err)
	}
}
