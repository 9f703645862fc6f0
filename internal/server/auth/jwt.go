// Package auth issues and verifies session tokens and hashes passwords.
package auth

import (
	"errors"
	"time"

	"github.com/dmitrijs2005/auditrack/internal/common"
	"github.com/dmitrijs2005/auditrack/internal/server/models"
	"github.com/golang-jwt/jwt/v5"
)

// Claims is the session token payload: registered claims (exp) plus the
// holder's username and role.
type Claims struct {
	jwt.RegisteredClaims
	Username string      `json:"username"`
	Role     models.Role `json:"role"`
}

// GenerateToken signs an HS256 token for username/role that expires
// validityDuration after now.
func GenerateToken(username string, role models.Role, secretKey []byte, now time.Time, validityDuration time.Duration) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(validityDuration)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
		Username: username,
		Role:     role,
	})

	return token.SignedString(secretKey)
}

// ParseToken verifies signature, algorithm and expiry and returns the claims.
// Expired tokens yield common.ErrTokenExpired; every other failure yields
// common.ErrInvalidCredential.
func ParseToken(tokenString string, secretKey []byte) (*Claims, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return secretKey, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, common.ErrTokenExpired
		}
		return nil, common.ErrInvalidCredential
	}

	if !token.Valid || claims.Username == "" {
		return nil, common.ErrInvalidCredential
	}

	return claims, nil
}
