package store

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Memory is the process-local Store. Its contents live and die with the
// process.
type Memory struct {
	mu         sync.RWMutex
	clock      func() time.Time
	users      map[int64]User
	userOrder  []int64
	notes      map[int64]Note
	nextUserID int64
	nextNoteID int64
}

// NewMemory constructs an empty store. A nil clock defaults to time.Now.
func NewMemory(clock func() time.Time) *Memory {
	if clock == nil {
		clock = time.Now
	}
	return &Memory{
		clock:      clock,
		users:      make(map[int64]User),
		notes:      make(map[int64]Note),
		nextUserID: 1,
		nextNoteID: 1,
	}
}

func (m *Memory) GetUser(_ context.Context, id int64) (User, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	user, ok := m.users[id]
	if !ok {
		return User{}, false, nil
	}
	return copyUser(user), true, nil
}

func (m *Memory) GetUserByEmail(_ context.Context, email string) (User, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, id := range m.userOrder {
		user := m.users[id]
		if user.Email == email {
			return copyUser(user), true, nil
		}
	}
	return User{}, false, nil
}

func (m *Memory) CreateUser(_ context.Context, input NewUser) (User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	user := withUserDefaults(input, m.clock().UTC())
	user.ID = m.nextUserID
	m.nextUserID++
	m.users[user.ID] = user
	m.userOrder = append(m.userOrder, user.ID)
	return copyUser(user), nil
}

func (m *Memory) NotesByUserID(_ context.Context, userID int64) ([]Note, error) {
	m.mu.RLock()
	owned := make([]Note, 0)
	for _, note := range m.notes {
		if note.UserID == userID {
			owned = append(owned, note)
		}
	}
	m.mu.RUnlock()

	sortNewestFirst(owned)
	return owned, nil
}

func (m *Memory) CreateNote(_ context.Context, input NewNote) (Note, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.clock().UTC()
	note := Note{
		ID:        m.nextNoteID,
		UserID:    input.UserID,
		Title:     input.Title,
		Content:   input.Content,
		CreatedAt: now,
		UpdatedAt: now,
	}
	m.nextNoteID++
	m.notes[note.ID] = note
	return note, nil
}

func (m *Memory) DeleteNote(_ context.Context, id, userID int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	note, ok := m.notes[id]
	if !ok || note.UserID != userID {
		return false, nil
	}
	delete(m.notes, id)
	return true, nil
}

func (m *Memory) UpdateNote(_ context.Context, id, userID int64, patch NotePatch) (Note, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	note, ok := m.notes[id]
	if !ok || note.UserID != userID {
		return Note{}, false, nil
	}
	updated := applyPatch(note, patch, m.clock().UTC())
	m.notes[id] = updated
	return updated, true, nil
}

// sortNewestFirst orders by creation time descending. Equal timestamps keep
// insertion (id) order.
func sortNewestFirst(notes []Note) {
	sort.SliceStable(notes, func(i, j int) bool {
		if !notes[i].CreatedAt.Equal(notes[j].CreatedAt) {
			return notes[i].CreatedAt.After(notes[j].CreatedAt)
		}
		return notes[i].ID < notes[j].ID
	})
}

func copyUser(user User) User {
	user.Avatar = cloneString(user.Avatar)
	user.ProviderID = cloneString(user.ProviderID)
	return user
}
