package identity

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

// TestToken returns an HS256 token accepted by a Verifier built with the same
// secret and project id. It is meant for AUTH_TEST_MODE only.
func TestToken(secret []byte, projectID, userID string, ttl time.Duration) (string, error) {
	if len(secret) == 0 {
		return "", errors.New("test secret is required")
	}
	if userID == "" {
		return "", errors.New("user id is required")
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	now := time.Now()
	return jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": userID,
		"aud": projectID,
		"iss": issuerPrefix + projectID,
		"iat": now.Unix(),
		"exp": now.Add(ttl).Unix(),
	}).SignedString(secret)
}
