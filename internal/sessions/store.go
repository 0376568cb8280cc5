package sessions

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

const defaultSessionTTL = 7 * 24 * time.Hour

var (
	// ErrMissingSessionID indicates an empty session identifier was supplied.
	ErrMissingSessionID = errors.New("sessions: session id required")
	// ErrInvalidUserID indicates a session was requested for a non-positive user id.
	ErrInvalidUserID = errors.New("sessions: user id must be positive")
)

// Record is the server-side half of a session.
type Record struct {
	ID        string
	UserID    int64
	CreatedAt time.Time
	ExpiresAt time.Time
}

// Expired reports whether the record is no longer usable at the given instant.
func (r Record) Expired(now time.Time) bool {
	return !r.ExpiresAt.IsZero() && !now.Before(r.ExpiresAt)
}

// Store persists session records keyed by their opaque identifier.
type Store interface {
	Create(ctx context.Context, userID int64) (Record, error)
	Lookup(ctx context.Context, id string) (Record, bool, error)
	Delete(ctx context.Context, id string) error
}

// MemoryConfig configures the in-process session store.
type MemoryConfig struct {
	TTL   time.Duration
	Clock func() time.Time
}

// Memory keeps sessions in process memory. Expired records are purged when
// they are looked up.
type Memory struct {
	mu      sync.Mutex
	records map[string]Record
	ttl     time.Duration
	clock   func() time.Time
}

// NewMemory constructs an empty session store.
func NewMemory(cfg MemoryConfig) *Memory {
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = defaultSessionTTL
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Memory{
		records: make(map[string]Record),
		ttl:     ttl,
		clock:   clock,
	}
}

func (m *Memory) Create(_ context.Context, userID int64) (Record, error) {
	if userID <= 0 {
		return Record{}, ErrInvalidUserID
	}
	id, err := uuid.NewRandom()
	if err != nil {
		return Record{}, err
	}
	now := m.clock().UTC()
	record := Record{
		ID:        id.String(),
		UserID:    userID,
		CreatedAt: now,
		ExpiresAt: now.Add(m.ttl),
	}
	m.mu.Lock()
	m.records[record.ID] = record
	m.mu.Unlock()
	return record, nil
}

func (m *Memory) Lookup(_ context.Context, id string) (Record, bool, error) {
	if id == "" {
		return Record{}, false, nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	record, ok := m.records[id]
	if !ok {
		return Record{}, false, nil
	}
	if record.Expired(m.clock()) {
		delete(m.records, id)
		return Record{}, false, nil
	}
	return record, true, nil
}

func (m *Memory) Delete(_ context.Context, id string) error {
	if id == "" {
		return ErrMissingSessionID
	}
	m.mu.Lock()
	delete(m.records, id)
	m.mu.Unlock()
	return nil
}

// Len returns the number of stored records, expired or not.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records)
}
