package jwt_utils

import (
	"testing"
	"time"

	"github.com/go-playground/assert/v2"
	"github.com/golang-jwt/jwt"
)

func signedToken(t *testing.T, claims jwt.Claims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	s, err := token.SignedString([]byte("vendor-secret"))
	if err != nil {
		t.Fatal("unable to sign token: ", err)
	}
	return s
}

func TestExpiresAt(t *testing.T) {
	exp := time.Date(2030, 1, 2, 3, 4, 5, 0, time.UTC)

	got, ok := ExpiresAt(signedToken(t, &jwt.StandardClaims{ExpiresAt: exp.Unix(), Subject: "api-user"}))

	assert.Equal(t, ok, true)
	assert.Equal(t, got, exp)
}

func TestExpiresAtWithoutExpClaim(t *testing.T) {
	_, ok := ExpiresAt(signedToken(t, &jwt.StandardClaims{Subject: "api-user"}))
	assert.Equal(t, ok, false)
}

func TestExpiresAtWithOpaqueToken(t *testing.T) {
	_, ok := ExpiresAt("3f9a1c0e5b7d")
	assert.Equal(t, ok, false)
}
