package api

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func signedToken(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("Failed to sign token: %v", err)
	}
	return tokenString
}

func TestAuthManager_ValidateToken(t *testing.T) {
	secret := "screener-test-secret"
	auth := NewAuthManager(secret)

	tokenString := signedToken(t, secret, jwt.MapClaims{
		"user_id": "trader-1",
		"exp":     time.Now().Add(1 * time.Hour).Unix(),
	})

	userID, err := auth.ValidateToken(tokenString)
	if err != nil {
		t.Fatalf("Failed to validate token: %v", err)
	}
	if userID != "trader-1" {
		t.Errorf("Expected user ID %s, got %s", "trader-1", userID)
	}
}

func TestAuthManager_ValidateToken_WrongSecret(t *testing.T) {
	auth := NewAuthManager("screener-test-secret")

	tokenString := signedToken(t, "some-other-secret", jwt.MapClaims{
		"user_id": "trader-1",
		"exp":     time.Now().Add(1 * time.Hour).Unix(),
	})

	if _, err := auth.ValidateToken(tokenString); err == nil {
		t.Error("Expected error for token signed with wrong secret")
	}
}

func TestAuthManager_ValidateToken_Expired(t *testing.T) {
	secret := "screener-test-secret"
	auth := NewAuthManager(secret)

	tokenString := signedToken(t, secret, jwt.MapClaims{
		"user_id": "trader-1",
		"exp":     time.Now().Add(-1 * time.Hour).Unix(),
	})

	if _, err := auth.ValidateToken(tokenString); err == nil {
		t.Error("Expected error for expired token")
	}
}

func TestAuthManager_ValidateToken_NoSecret(t *testing.T) {
	// Auth disabled: every caller becomes the default user
	auth := NewAuthManager("")

	userID, err := auth.ValidateToken("whatever")
	if err != nil {
		t.Fatalf("Expected no error with auth disabled, got %v", err)
	}
	if userID != "default" {
		t.Errorf("Expected default user ID, got %s", userID)
	}
}

func TestAuthManager_ValidateToken_SubjectFallback(t *testing.T) {
	secret := "screener-test-secret"
	auth := NewAuthManager(secret)

	tokenString := signedToken(t, secret, jwt.MapClaims{
		"sub": "trader-2",
		"exp": time.Now().Add(1 * time.Hour).Unix(),
	})

	userID, err := auth.ValidateToken(tokenString)
	if err != nil {
		t.Fatalf("Failed to validate token: %v", err)
	}
	if userID != "trader-2" {
		t.Errorf("Expected user ID %s, got %s", "trader-2", userID)
	}
}

func TestAuthManager_ExtractTokenFromHeader(t *testing.T) {
	auth := NewAuthManager("screener-test-secret")

	token, err := auth.ExtractTokenFromHeader("Bearer abc123")
	if err != nil {
		t.Fatalf("Failed to extract token: %v", err)
	}
	if token != "abc123" {
		t.Errorf("Expected token %s, got %s", "abc123", token)
	}

	token, err = auth.ExtractTokenFromHeader("abc123")
	if err != nil {
		t.Fatalf("Failed to extract bare token: %v", err)
	}
	if token != "abc123" {
		t.Errorf("Expected token %s, got %s", "abc123", token)
	}

	if _, err = auth.ExtractTokenFromHeader(""); err == nil {
		t.Error("Expected error for empty header")
	}

	if _, err = auth.ExtractTokenFromHeader("Basic dXNlcjpwYXNz"); err == nil {
		t.Error("Expected error for non-bearer scheme")
	}
}

func TestAuthManager_Enabled(t *testing.T) {
	if NewAuthManager("").Enabled() {
		t.Error("Expected auth to be disabled with empty secret")
	}
	if !NewAuthManager("secret").Enabled() {
		t.Error("Expected auth to be enabled with a secret")
	}
}
