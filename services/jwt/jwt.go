package jwt

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt"
)

// AccessTokenValidity bounds how long an issued token is accepted.
const AccessTokenValidity = 24 * time.Hour

// GenerateToken signs an access token carrying the user id.
func GenerateToken(userID uint, secret string) (string, error) {
	claims := jwt.MapClaims{
		"id":  userID,
		"exp": time.Now().Add(AccessTokenValidity).Unix(),
		"iat": time.Now().Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// ValidateAndGetClaims parses a token and returns its claims if the
// signature and expiry check out.
func ValidateAndGetClaims(tokenString, secret string) (jwt.MapClaims, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		return nil, err
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	return claims, nil
}
