package users

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/MarcoPoloResearchLab/skillmate/backend/internal/auth"
	"github.com/MarcoPoloResearchLab/skillmate/backend/internal/store"
	"go.uber.org/zap"
)

var (
	// ErrDuplicateEmail indicates the email already belongs to an account.
	ErrDuplicateEmail = errors.New("users: email already registered")
	// ErrInvalidCredentials covers unknown emails, password-less accounts and wrong passwords alike.
	ErrInvalidCredentials = errors.New("users: invalid email or password")
	// ErrInvalidGoogleProfile indicates a Google sign-in without a name or email.
	ErrInvalidGoogleProfile = errors.New("users: invalid google profile")
	// ErrGoogleTokenUnsupported indicates ID-token sign-in is not configured.
	ErrGoogleTokenUnsupported = errors.New("users: google token sign-in not configured")
	// ErrGoogleTokenRejected indicates the Google ID token failed verification.
	ErrGoogleTokenRejected = errors.New("users: google token rejected")

	errMissingStore  = errors.New("users: store required")
	errMissingHasher = errors.New("users: password hasher required")
)

// PasswordHasher hashes and verifies account passwords.
type PasswordHasher interface {
	Hash(plaintext string) (string, error)
	Verify(hash, plaintext string) error
}

// GoogleVerifier validates Google ID tokens.
type GoogleVerifier interface {
	Verify(ctx context.Context, token string) (auth.GoogleClaims, error)
}

// ServiceConfig describes the dependencies required for account flows.
type ServiceConfig struct {
	Store          store.UserStore
	Hasher         PasswordHasher
	GoogleVerifier GoogleVerifier
	Logger         *zap.Logger
}

// Service registers, authenticates and provisions users.
type Service struct {
	store    store.UserStore
	hasher   PasswordHasher
	verifier GoogleVerifier
	logger   *zap.Logger

	// provisionMu serialises the lookup-then-create sequences so two requests
	// for one email cannot both create an account.
	provisionMu sync.Mutex
}

// NewService validates the configuration and returns a Service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Store == nil {
		return nil, errMissingStore
	}
	if cfg.Hasher == nil {
		return nil, errMissingHasher
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:    cfg.Store,
		hasher:   cfg.Hasher,
		verifier: cfg.GoogleVerifier,
		logger:   logger,
	}, nil
}

// GoogleTokenSignInEnabled reports whether a Google verifier is configured.
func (s *Service) GoogleTokenSignInEnabled() bool {
	return s.verifier != nil
}

// Register creates an email account. The password is optional; accounts
// registered without one cannot use Login.
func (s *Service) Register(ctx context.Context, registration Registration) (store.User, error) {
	email := NormalizeEmail(registration.Email)

	passwordHash := ""
	if registration.Password != "" {
		hashed, err := s.hasher.Hash(registration.Password)
		if err != nil {
			return store.User{}, fmt.Errorf("users: register: %w", err)
		}
		passwordHash = hashed
	}

	s.provisionMu.Lock()
	defer s.provisionMu.Unlock()

	_, exists, err := s.store.GetUserByEmail(ctx, email)
	if err != nil {
		return store.User{}, fmt.Errorf("users: register: %w", err)
	}
	if exists {
		return store.User{}, ErrDuplicateEmail
	}

	user, err := s.store.CreateUser(ctx, store.NewUser{
		Name:         normalize(registration.Name),
		Email:        email,
		Avatar:       optionalString(registration.Avatar),
		Provider:     store.ProviderEmail,
		PasswordHash: passwordHash,
	})
	if err != nil {
		return store.User{}, fmt.Errorf("users: register: %w", err)
	}
	s.logger.Info("user registered", zap.Int64("user_id", user.ID))
	return user, nil
}

// Login verifies the password of an email account.
func (s *Service) Login(ctx context.Context, email, password string) (store.User, error) {
	user, found, err := s.store.GetUserByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		return store.User{}, fmt.Errorf("users: login: %w", err)
	}
	if !found || !user.HasPassword() {
		return store.User{}, ErrInvalidCredentials
	}
	if err := s.hasher.Verify(user.PasswordHash, password); err != nil {
		if errors.Is(err, auth.ErrPasswordMismatch) {
			return store.User{}, ErrInvalidCredentials
		}
		return store.User{}, fmt.Errorf("users: login: %w", err)
	}
	return user, nil
}

// GoogleSignIn looks the profile up by email and provisions a Google account
// when none exists. Existing accounts are returned unchanged.
func (s *Service) GoogleSignIn(ctx context.Context, profile GoogleProfile) (store.User, error) {
	name := normalize(profile.Name)
	email := NormalizeEmail(profile.Email)
	if name == "" || email == "" {
		return store.User{}, ErrInvalidGoogleProfile
	}

	s.provisionMu.Lock()
	defer s.provisionMu.Unlock()

	existing, found, err := s.store.GetUserByEmail(ctx, email)
	if err != nil {
		return store.User{}, fmt.Errorf("users: google sign-in: %w", err)
	}
	if found {
		return existing, nil
	}

	avatar := normalize(profile.Avatar)
	if avatar == "" {
		avatar = DefaultAvatarURL(name)
	}
	providerID := normalize(profile.Subject)
	if providerID == "" {
		providerID = email
	}
	user, err := s.store.CreateUser(ctx, store.NewUser{
		Name:       name,
		Email:      email,
		Avatar:     &avatar,
		Provider:   store.ProviderGoogle,
		ProviderID: &providerID,
	})
	if err != nil {
		return store.User{}, fmt.Errorf("users: google sign-in: %w", err)
	}
	s.logger.Info("google user provisioned", zap.Int64("user_id", user.ID))
	return user, nil
}

// GoogleSignInWithToken verifies a Google ID token and signs its subject in.
func (s *Service) GoogleSignInWithToken(ctx context.Context, idToken string) (store.User, error) {
	if s.verifier == nil {
		return store.User{}, ErrGoogleTokenUnsupported
	}
	claims, err := s.verifier.Verify(ctx, idToken)
	if err != nil {
		s.logger.Warn("google token verification failed", zap.Error(err))
		return store.User{}, fmt.Errorf("%w: %v", ErrGoogleTokenRejected, err)
	}
	name := claims.Name
	if normalize(name) == "" {
		name = claims.Email
	}
	return s.GoogleSignIn(ctx, GoogleProfile{
		Name:    name,
		Email:   claims.Email,
		Avatar:  claims.Picture,
		Subject: claims.Subject,
	})
}

// Current returns the user bound to a session, if it still exists.
func (s *Service) Current(ctx context.Context, userID int64) (store.User, bool, error) {
	user, found, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return store.User{}, false, fmt.Errorf("users: current: %w", err)
	}
	return user, found, nil
}
