package service_test

import (
	"errors"
	"testing"
	"time"

	"github.com/boddenberg/cashflow-reports-bfa/internal/domain"
	"github.com/boddenberg/cashflow-reports-bfa/internal/service"

	"github.com/golang-jwt/jwt/v5"
)

const testSecret = "test-secret-with-enough-length"

func TestTokenVerifier_RoundTrip(t *testing.T) {
	v := service.NewTokenVerifier(testSecret)

	token, err := v.SignAccessToken("cust-1", time.Minute)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	claims, err := v.ValidateAccessToken(token)
	if err != nil {
		t.Fatalf("expected valid token, got %v", err)
	}
	if claims.Sub != "cust-1" {
		t.Errorf("expected subject cust-1, got %q", claims.Sub)
	}
}

func TestTokenVerifier_Rejects(t *testing.T) {
	v := service.NewTokenVerifier(testSecret)

	otherSecret, _ := service.NewTokenVerifier("another-secret-entirely").SignAccessToken("cust-1", time.Minute)
	expired, _ := v.SignAccessToken("cust-1", -time.Hour)

	refresh, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, service.JWTClaims{
		Sub:  "cust-1",
		Type: "refresh",
	}).SignedString([]byte(testSecret))

	noSubject, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, service.JWTClaims{
		Type: "access",
	}).SignedString([]byte(testSecret))

	tests := map[string]string{
		"garbage":      "not-a-token",
		"wrong secret": otherSecret,
		"expired":      expired,
		"refresh type": refresh,
		"no subject":   noSubject,
	}
	for name, token := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := v.ValidateAccessToken(token)
			var unauthorized *domain.ErrUnauthorized
			if !errors.As(err, &unauthorized) {
				t.Fatalf("expected ErrUnauthorized, got %v", err)
			}
		})
	}
}
