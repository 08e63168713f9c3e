package session

import (
	"fmt"

	"github.com/golang-jwt/jwt/v4"
)

// Claims are the access-token fields the dashboard reads.
type Claims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// ParseClaims reads token claims. With a secret the HS256 signature and expiry
// are verified; without one the claims are read as-is and the API service
// stays the authority.
func ParseClaims(tokenStr string, secret []byte) (*Claims, error) {
	claims := &Claims{}

	if len(secret) == 0 {
		if _, _, err := jwt.NewParser().ParseUnverified(tokenStr, claims); err != nil {
			return nil, fmt.Errorf("malformed token: %w", err)
		}
		return claims, nil
	}

	token, err := jwt.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return secret, nil
	})
	if err != nil || token == nil || !token.Valid {
		return nil, fmt.Errorf("invalid or expired token")
	}
	return claims, nil
}
