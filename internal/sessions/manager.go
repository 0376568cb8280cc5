package sessions

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

var (
	ErrMissingStore      = errors.New("sessions: store required")
	ErrMissingCookieName = errors.New("sessions: cookie name required")
)

// ManagerConfig binds a session store to cookie settings.
type ManagerConfig struct {
	Store      Store
	CookieName string
	TTL        time.Duration
	Secure     bool
}

// Manager issues per-request Session capabilities backed by a Store.
type Manager struct {
	store      Store
	cookieName string
	ttl        time.Duration
	secure     bool
}

// NewManager validates the configuration and returns a Manager.
func NewManager(cfg ManagerConfig) (*Manager, error) {
	if cfg.Store == nil {
		return nil, ErrMissingStore
	}
	cookieName := strings.TrimSpace(cfg.CookieName)
	if cookieName == "" {
		return nil, ErrMissingCookieName
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = defaultSessionTTL
	}
	return &Manager{
		store:      cfg.Store,
		cookieName: cookieName,
		ttl:        ttl,
		secure:     cfg.Secure,
	}, nil
}

// Load resolves the session referenced by the request cookie. A missing,
// unknown or expired cookie yields an anonymous Session; only store failures
// are returned as errors.
func (m *Manager) Load(w http.ResponseWriter, r *http.Request) (*Session, error) {
	session := &Session{manager: m, writer: w}
	if r == nil {
		return session, nil
	}
	cookie, err := r.Cookie(m.cookieName)
	if err != nil || cookie == nil || strings.TrimSpace(cookie.Value) == "" {
		return session, nil
	}
	record, found, err := m.store.Lookup(r.Context(), cookie.Value)
	if err != nil {
		return nil, fmt.Errorf("sessions: lookup: %w", err)
	}
	if found {
		session.record = record
		session.active = true
	}
	return session, nil
}

// Session is the read/set/destroy capability handed to request handlers.
type Session struct {
	manager *Manager
	writer  http.ResponseWriter
	record  Record
	active  bool
}

// UserID returns the user bound to the session, if any.
func (s *Session) UserID() (int64, bool) {
	if s == nil || !s.active {
		return 0, false
	}
	return s.record.UserID, true
}

// SetUserID binds the session to userID. A fresh identifier is issued on every
// call and the previous record, if any, is discarded.
func (s *Session) SetUserID(ctx context.Context, userID int64) error {
	// The old record goes first so a failed rotation never leaves two.
	if s.active {
		if err := s.manager.store.Delete(ctx, s.record.ID); err != nil {
			return fmt.Errorf("sessions: rotate: %w", err)
		}
		s.record = Record{}
		s.active = false
	}
	record, err := s.manager.store.Create(ctx, userID)
	if err != nil {
		return fmt.Errorf("sessions: create: %w", err)
	}
	s.record = record
	s.active = true
	s.writeCookie(record.ID, int(s.manager.ttl.Seconds()), record.ExpiresAt)
	return nil
}

// Destroy removes the server-side record and expires the cookie.
func (s *Session) Destroy(ctx context.Context) error {
	if s.active {
		if err := s.manager.store.Delete(ctx, s.record.ID); err != nil {
			return fmt.Errorf("sessions: destroy: %w", err)
		}
	}
	s.record = Record{}
	s.active = false
	s.writeCookie("", -1, time.Unix(0, 0))
	return nil
}

func (s *Session) writeCookie(value string, maxAge int, expires time.Time) {
	if s.writer == nil {
		return
	}
	http.SetCookie(s.writer, &http.Cookie{
		Name:     s.manager.cookieName,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		Expires:  expires.UTC(),
		HttpOnly: true,
		Secure:   s.manager.secure,
		SameSite: http.SameSiteLaxMode,
	})
}
