package auth

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
)

var errKeyNotFound = errors.New("signing key not published")

// minJWKSRefreshInterval bounds how often an unknown kid may trigger a refetch.
const minJWKSRefreshInterval = time.Minute

// keySet caches the RSA signing keys of a JWKS endpoint. An unknown kid
// forces a refetch so rotated keys are picked up before the TTL runs out,
// at most once per refresh interval.
type keySet struct {
	url             string
	client          *http.Client
	ttl             time.Duration
	refreshInterval time.Duration
	logger          *zap.Logger

	mu          sync.Mutex
	keys        map[string]*rsa.PublicKey
	fetchedAt   time.Time
	lastAttempt time.Time
}

func newKeySet(url string, client *http.Client, ttl time.Duration, logger *zap.Logger) *keySet {
	return &keySet{
		url:             url,
		client:          client,
		ttl:             ttl,
		refreshInterval: min(minJWKSRefreshInterval, ttl),
		logger:          logger,
	}
}

func (s *keySet) lookup(ctx context.Context, keyID string, now time.Time) (*rsa.PublicKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	fresh := s.keys != nil && now.Sub(s.fetchedAt) < s.ttl
	if key, ok := s.keys[keyID]; ok && fresh {
		return key, nil
	}
	if fresh && now.Sub(s.lastAttempt) < s.refreshInterval {
		return nil, fmt.Errorf("%w: %s", errKeyNotFound, keyID)
	}

	s.lastAttempt = now
	keys, err := s.fetch(ctx)
	if err != nil {
		return nil, err
	}
	s.keys = keys
	s.fetchedAt = now

	key, ok := keys[keyID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", errKeyNotFound, keyID)
	}
	return key, nil
}

type jwksDocument struct {
	Keys []jsonWebKey `json:"keys"`
}

type jsonWebKey struct {
	KeyType  string `json:"kty"`
	KeyID    string `json:"kid"`
	Use      string `json:"use"`
	Modulus  string `json:"n"`
	Exponent string `json:"e"`
}

func (s *keySet) fetch(ctx context.Context) (map[string]*rsa.PublicKey, error) {
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("auth: build jwks request: %w", err)
	}
	response, err := s.client.Do(request)
	if err != nil {
		return nil, fmt.Errorf("auth: fetch jwks: %w", err)
	}
	defer response.Body.Close()
	if response.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("auth: fetch jwks: status %d", response.StatusCode)
	}

	var document jwksDocument
	if err := json.NewDecoder(response.Body).Decode(&document); err != nil {
		return nil, fmt.Errorf("auth: decode jwks: %w", err)
	}

	keys := make(map[string]*rsa.PublicKey, len(document.Keys))
	for _, candidate := range document.Keys {
		if candidate.KeyType != "RSA" || (candidate.Use != "" && candidate.Use != "sig") {
			continue
		}
		key, err := candidate.publicKey()
		if err != nil {
			s.logger.Debug("ignoring malformed jwk", zap.String("kid", candidate.KeyID), zap.Error(err))
			continue
		}
		keys[candidate.KeyID] = key
	}
	if len(keys) == 0 {
		return nil, errors.New("auth: jwks contained no rsa signing keys")
	}
	s.logger.Debug("jwks refreshed", zap.Int("keys", len(keys)))
	return keys, nil
}

func (k jsonWebKey) publicKey() (*rsa.PublicKey, error) {
	modulus, err := base64.RawURLEncoding.DecodeString(k.Modulus)
	if err != nil {
		return nil, fmt.Errorf("decode modulus: %w", err)
	}
	exponent, err := base64.RawURLEncoding.DecodeString(k.Exponent)
	if err != nil {
		return nil, fmt.Errorf("decode exponent: %w", err)
	}
	e := new(big.Int).SetBytes(exponent)
	if len(modulus) == 0 || !e.IsInt64() || e.Int64() < 3 || e.Int64() > 1<<31-1 {
		return nil, errors.New("invalid rsa parameters")
	}
	return &rsa.PublicKey{N: new(big.Int).SetBytes(modulus), E: int(e.Int64())}, nil
}
