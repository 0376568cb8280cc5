package auth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	testClientID = "test-client"
	testKeyID    = "test-key"
)

type jwksFixture struct {
	server   *httptest.Server
	key      *rsa.PrivateKey
	requests atomic.Int32
}

func newJWKSFixture(t *testing.T) *jwksFixture {
	t.Helper()
	privateKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("failed to generate key: %v", err)
	}
	fixture := &jwksFixture{key: privateKey}
	document := map[string]any{
		"keys": []any{
			map[string]string{"kty": "EC", "kid": "ignored"},
			map[string]string{
				"kty": "RSA",
				"alg": "RS256",
				"kid": testKeyID,
				"use": "sig",
				"n":   base64.RawURLEncoding.EncodeToString(privateKey.PublicKey.N.Bytes()),
				"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(privateKey.PublicKey.E)).Bytes()),
			},
		},
	}
	fixture.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fixture.requests.Add(1)
		_ = json.NewEncoder(w).Encode(document)
	}))
	t.Cleanup(fixture.server.Close)
	return fixture
}

func (f *jwksFixture) verifier(t *testing.T) *GoogleVerifier {
	t.Helper()
	verifier, err := NewGoogleVerifier(GoogleVerifierConfig{
		ClientID:   testClientID,
		JWKSURL:    f.server.URL,
		HTTPClient: f.server.Client(),
	})
	if err != nil {
		t.Fatalf("unexpected constructor error: %v", err)
	}
	return verifier
}

func (f *jwksFixture) sign(t *testing.T, keyID string, overrides jwt.MapClaims) string {
	t.Helper()
	now := time.Now().UTC()
	claims := jwt.MapClaims{
		"aud":            testClientID,
		"iss":            "https://accounts.google.com",
		"sub":            "google-sub-1",
		"email":          "ann@example.com",
		"email_verified": true,
		"name":           "Ann Learner",
		"picture":        "https://example.com/ann.png",
		"exp":            now.Add(5 * time.Minute).Unix(),
		"iat":            now.Unix(),
	}
	for key, value := range overrides {
		if value == nil {
			delete(claims, key)
			continue
		}
		claims[key] = value
	}
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = keyID
	signed, err := token.SignedString(f.key)
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return signed
}

func TestGoogleVerifierAcceptsSignedToken(t *testing.T) {
	fixture := newJWKSFixture(t)
	verifier := fixture.verifier(t)

	claims, err := verifier.Verify(context.Background(), fixture.sign(t, testKeyID, nil))
	if err != nil {
		t.Fatalf("expected verification to succeed: %v", err)
	}
	if claims.Subject != "google-sub-1" || claims.Audience != testClientID {
		t.Fatalf("unexpected registered claims %#v", claims)
	}
	if claims.Email != "ann@example.com" || claims.Name != "Ann Learner" || claims.Picture != "https://example.com/ann.png" {
		t.Fatalf("unexpected profile claims %#v", claims)
	}

	if _, err := verifier.Verify(context.Background(), fixture.sign(t, testKeyID, jwt.MapClaims{"iss": "accounts.google.com"})); err != nil {
		t.Fatalf("expected short issuer to be accepted: %v", err)
	}
	if got := fixture.requests.Load(); got != 1 {
		t.Fatalf("expected keys to be cached after the first fetch, got %d fetches", got)
	}
}

func TestGoogleVerifierRejectsInvalidTokens(t *testing.T) {
	fixture := newJWKSFixture(t)
	verifier := fixture.verifier(t)

	testCases := []struct {
		name  string
		token string
		want  error
	}{
		{name: "empty", token: "  ", want: errEmptyToken},
		{name: "audience", token: fixture.sign(t, testKeyID, jwt.MapClaims{"aud": "other-client"}), want: jwt.ErrTokenInvalidAudience},
		{name: "expired", token: fixture.sign(t, testKeyID, jwt.MapClaims{"exp": time.Now().Add(-time.Hour).Unix()}), want: jwt.ErrTokenExpired},
		{name: "no-expiry", token: fixture.sign(t, testKeyID, jwt.MapClaims{"exp": nil}), want: jwt.ErrTokenRequiredClaimMissing},
		{name: "issuer", token: fixture.sign(t, testKeyID, jwt.MapClaims{"iss": "https://evil.example.com"}), want: errUntrustedIssuer},
		{name: "unverified-email", token: fixture.sign(t, testKeyID, jwt.MapClaims{"email_verified": false}), want: errMissingEmailClaim},
		{name: "unknown-key", token: fixture.sign(t, "rotated-away", nil), want: errKeyNotFound},
	}
	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			if _, err := verifier.Verify(context.Background(), testCase.token); !errors.Is(err, testCase.want) {
				t.Fatalf("expected %v, got %v", testCase.want, err)
			}
		})
	}
}

func TestGoogleVerifierThrottlesUnknownKeyRefetch(t *testing.T) {
	fixture := newJWKSFixture(t)
	now := time.Now()
	verifier, err := NewGoogleVerifier(GoogleVerifierConfig{
		ClientID:   testClientID,
		JWKSURL:    fixture.server.URL,
		HTTPClient: fixture.server.Client(),
		Clock: func() time.Time {
			return now
		},
	})
	if err != nil {
		t.Fatalf("unexpected constructor error: %v", err)
	}

	if _, err := verifier.Verify(context.Background(), fixture.sign(t, testKeyID, nil)); err != nil {
		t.Fatalf("expected verification to succeed: %v", err)
	}
	for attempt := 0; attempt < 3; attempt++ {
		if _, err := verifier.Verify(context.Background(), fixture.sign(t, "forged-key", nil)); !errors.Is(err, errKeyNotFound) {
			t.Fatalf("expected unknown key error, got %v", err)
		}
	}
	if got := fixture.requests.Load(); got != 1 {
		t.Fatalf("expected unknown keys not to refetch within the interval, got %d fetches", got)
	}

	now = now.Add(minJWKSRefreshInterval + time.Second)
	if _, err := verifier.Verify(context.Background(), fixture.sign(t, "forged-key", nil)); !errors.Is(err, errKeyNotFound) {
		t.Fatalf("expected unknown key error, got %v", err)
	}
	if got := fixture.requests.Load(); got != 2 {
		t.Fatalf("expected one refetch after the interval, got %d fetches", got)
	}
}

func TestNewGoogleVerifierValidatesConfig(t *testing.T) {
	testCases := []struct {
		name string
		cfg  GoogleVerifierConfig
		want error
	}{
		{name: "client-id", cfg: GoogleVerifierConfig{JWKSURL: DefaultGoogleJWKSURL}, want: errMissingClientID},
		{name: "jwks-url", cfg: GoogleVerifierConfig{ClientID: testClientID, JWKSURL: " "}, want: errMissingJWKSURL},
	}
	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			_, err := NewGoogleVerifier(testCase.cfg)
			if !errors.Is(err, ErrInvalidVerifierConfig) {
				t.Fatalf("expected invalid config error, got %v", err)
			}
			if !strings.Contains(err.Error(), testCase.want.Error()) {
				t.Fatalf("expected %q in %v", testCase.want, err)
			}
		})
	}
}
