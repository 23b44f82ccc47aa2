package service

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/vision-care-api/internal/models"
	appErrors "github.com/noah-isme/vision-care-api/pkg/errors"
)

func signToken(t *testing.T, secret string, method jwt.SigningMethod, claims models.JWTClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(method, claims)
	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func TestAuthServiceValidateToken(t *testing.T) {
	svc := NewAuthService(nil, AuthConfig{AccessTokenSecret: "secret", Issuer: "identity"})

	token := signToken(t, "secret", jwt.SigningMethodHS256, models.JWTClaims{
		UserID: "user-1",
		Role:   models.RoleOperator,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "identity",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})

	claims, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID)
	assert.Equal(t, models.RoleOperator, claims.Role)
}

func TestAuthServiceRejectsInvalidTokens(t *testing.T) {
	svc := NewAuthService(nil, AuthConfig{AccessTokenSecret: "secret", Issuer: "identity"})
	valid := jwt.RegisteredClaims{Issuer: "identity", ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))}

	cases := map[string]string{
		"wrong secret": signToken(t, "other", jwt.SigningMethodHS256, models.JWTClaims{UserID: "user-1", RegisteredClaims: valid}),
		"expired": signToken(t, "secret", jwt.SigningMethodHS256, models.JWTClaims{UserID: "user-1", RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "identity",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
		}}),
		"wrong issuer": signToken(t, "secret", jwt.SigningMethodHS256, models.JWTClaims{UserID: "user-1", RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "someone-else",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		}}),
		"missing user":  signToken(t, "secret", jwt.SigningMethodHS256, models.JWTClaims{RegisteredClaims: valid}),
		"wrong method":  signToken(t, "secret", jwt.SigningMethodHS512, models.JWTClaims{UserID: "user-1", RegisteredClaims: valid}),
		"garbage input": "not-a-token",
	}

	for name, token := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := svc.ValidateToken(token)
			require.Error(t, err)
			assert.ErrorIs(t, err, appErrors.ErrUnauthorized)
		})
	}
}

func TestAuthServiceDefaultsRoleToViewer(t *testing.T) {
	svc := NewAuthService(nil, AuthConfig{AccessTokenSecret: "secret"})
	token := signToken(t, "secret", jwt.SigningMethodHS256, models.JWTClaims{UserID: "user-2"})

	claims, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, models.RoleViewer, claims.Role)
}
