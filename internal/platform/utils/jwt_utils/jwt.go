package jwt_utils

import (
	"time"

	"github.com/golang-jwt/jwt"
)

// ExpiresAt reads the exp claim of a vendor issued token without verifying
// its signature.  The sync engine is never the audience of these tokens; the
// expiry is only used to decide when to log in again.
func ExpiresAt(tokenString string) (time.Time, bool) {
	claims := &jwt.StandardClaims{}

	if _, _, err := new(jwt.Parser).ParseUnverified(tokenString, claims); err != nil {
		return time.Time{}, false
	}

	if claims.ExpiresAt == 0 {
		return time.Time{}, false
	}

	return time.Unix(claims.ExpiresAt, 0).UTC(), true
}
