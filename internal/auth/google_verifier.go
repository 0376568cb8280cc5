package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

const (
	// DefaultGoogleJWKSURL publishes the keys Google signs ID tokens with.
	DefaultGoogleJWKSURL = "https://www.googleapis.com/oauth2/v3/certs"

	defaultJWKSCacheTTL = 10 * time.Minute
	clockSkewLeeway     = 30 * time.Second
)

var (
	// ErrInvalidVerifierConfig wraps every constructor validation failure.
	ErrInvalidVerifierConfig = errors.New("auth: invalid google verifier config")

	errMissingClientID    = errors.New("google client id required")
	errMissingJWKSURL     = errors.New("jwks url required")
	errEmptyToken         = errors.New("id token must not be empty")
	errMissingKeyID       = errors.New("token header missing kid")
	errUntrustedIssuer    = errors.New("token issuer is not google")
	errMissingSubject     = errors.New("token missing subject")
	errMissingEmailClaim  = errors.New("token missing verified email")
	errUnexpectedAudience = errors.New("token audience missing")
)

// googleIssuers are the two spellings Google uses for the iss claim.
var googleIssuers = map[string]struct{}{
	"https://accounts.google.com": {},
	"accounts.google.com":         {},
}

// GoogleVerifierConfig configures offline verification of Google ID tokens.
type GoogleVerifierConfig struct {
	// ClientID is the OAuth client the tokens must be issued for.
	ClientID   string
	JWKSURL    string
	HTTPClient *http.Client
	CacheTTL   time.Duration
	Clock      func() time.Time
	Logger     *zap.Logger
}

// GoogleClaims is the identity asserted by a verified Google ID token.
type GoogleClaims struct {
	Subject       string
	Email         string
	EmailVerified bool
	Name          string
	Picture       string
	Audience      string
	Expiry        time.Time
}

type googleIDTokenClaims struct {
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	Name          string `json:"name"`
	Picture       string `json:"picture"`
	jwt.RegisteredClaims
}

// GoogleVerifier checks Google ID token signatures against the published key set.
type GoogleVerifier struct {
	clientID string
	keys     *keySet
	clock    func() time.Time
	parser   *jwt.Parser
}

// NewGoogleVerifier validates the configuration and returns a verifier.
func NewGoogleVerifier(cfg GoogleVerifierConfig) (*GoogleVerifier, error) {
	clientID := strings.TrimSpace(cfg.ClientID)
	if clientID == "" {
		return nil, fmt.Errorf("%w: %v", ErrInvalidVerifierConfig, errMissingClientID)
	}
	jwksURL := strings.TrimSpace(cfg.JWKSURL)
	if jwksURL == "" {
		return nil, fmt.Errorf("%w: %v", ErrInvalidVerifierConfig, errMissingJWKSURL)
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	ttl := cfg.CacheTTL
	if ttl <= 0 {
		ttl = defaultJWKSCacheTTL
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &GoogleVerifier{
		clientID: clientID,
		keys:     newKeySet(jwksURL, client, ttl, logger),
		clock:    clock,
		parser: jwt.NewParser(
			jwt.WithAudience(clientID),
			jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
			jwt.WithExpirationRequired(),
			jwt.WithLeeway(clockSkewLeeway),
			jwt.WithTimeFunc(clock),
		),
	}, nil
}

// Verify checks the token signature, audience, issuer and expiry and returns
// the profile claims. Tokens without a verified email are rejected.
func (v *GoogleVerifier) Verify(ctx context.Context, rawToken string) (GoogleClaims, error) {
	rawToken = strings.TrimSpace(rawToken)
	if rawToken == "" {
		return GoogleClaims{}, errEmptyToken
	}

	claims := &googleIDTokenClaims{}
	_, err := v.parser.ParseWithClaims(rawToken, claims, func(token *jwt.Token) (any, error) {
		keyID, _ := token.Header["kid"].(string)
		if keyID == "" {
			return nil, errMissingKeyID
		}
		return v.keys.lookup(ctx, keyID, v.clock())
	})
	if err != nil {
		return GoogleClaims{}, fmt.Errorf("auth: verify google token: %w", err)
	}

	if _, ok := googleIssuers[claims.Issuer]; !ok {
		return GoogleClaims{}, errUntrustedIssuer
	}
	if claims.Subject == "" {
		return GoogleClaims{}, errMissingSubject
	}
	if len(claims.Audience) == 0 {
		return GoogleClaims{}, errUnexpectedAudience
	}
	email := strings.TrimSpace(claims.Email)
	if email == "" || !claims.EmailVerified {
		return GoogleClaims{}, errMissingEmailClaim
	}

	return GoogleClaims{
		Subject:       claims.Subject,
		Email:         email,
		EmailVerified: true,
		Name:          strings.TrimSpace(claims.Name),
		Picture:       strings.TrimSpace(claims.Picture),
		Audience:      claims.Audience[0],
		Expiry:        claims.ExpiresAt.Time,
	}, nil
}
