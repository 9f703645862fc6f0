package auth

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

// HashPassword returns a salted bcrypt hash of password.
func HashPassword(password []byte) (string, error) {
	hash, err := bcrypt.GenerateFromPassword(password, bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// CheckPassword reports whether password matches hash. bcrypt compares in
// constant time.
func CheckPassword(hash string, password []byte) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), password)
	return err == nil
}

// dummyHash is compared against when the user does not exist so that
// unknown usernames cost the same as wrong passwords.
var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("auditrack-dummy-password"), bcrypt.DefaultCost)

// BurnCompare performs a throwaway bcrypt comparison.
func BurnCompare(password []byte) {
	_ = bcrypt.CompareHashAndPassword(dummyHash, password)
}

// ErrPasswordTooLong mirrors bcrypt's 72 byte input limit.
var ErrPasswordTooLong = errors.New("password longer than 72 bytes")

// ValidatePassword rejects passwords bcrypt cannot hash.
func ValidatePassword(password []byte) error {
	if len(password) > 72 {
		return ErrPasswordTooLong
	}
	return nil
}
