package store_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/MarcoPoloResearchLab/skillmate/backend/internal/database"
	"github.com/MarcoPoloResearchLab/skillmate/backend/internal/store"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type storeFactory func(t *testing.T, clock func() time.Time) store.Store

func storeDrivers() map[string]storeFactory {
	return map[string]storeFactory{
		"memory": func(t *testing.T, clock func() time.Time) store.Store {
			return store.NewMemory(clock)
		},
		"sqlite": func(t *testing.T, clock func() time.Time) store.Store {
			dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", sanitizeName(t.Name()))
			db, err := database.OpenSQLite(dsn, zap.NewNop())
			require.NoError(t, err)
			sqlDB, err := db.DB()
			require.NoError(t, err)
			t.Cleanup(func() {
				_ = sqlDB.Close()
			})
			sqlStore, err := store.NewSQL(store.SQLConfig{Database: db, Clock: clock})
			require.NoError(t, err)
			return sqlStore
		},
	}
}

// steppingClock returns a clock that advances one second per call.
func steppingClock(start time.Time) func() time.Time {
	var mu sync.Mutex
	current := start
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		value := current
		current = current.Add(time.Second)
		return value
	}
}

func fixedClock(value time.Time) func() time.Time {
	return func() time.Time {
		return value
	}
}

func sanitizeName(name string) string {
	out := make([]rune, 0, len(name))
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			out = append(out, r)
		default:
			out = append(out, '_')
		}
	}
	return string(out)
}

func TestStoreCreateUserAssignsSequentialIDsAndDefaults(t *testing.T) {
	for name, factory := range storeDrivers() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			createdAt := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
			s := factory(t, fixedClock(createdAt))

			first, err := s.CreateUser(ctx, store.NewUser{Name: "Ann", Email: "a@x.com"})
			require.NoError(t, err)
			second, err := s.CreateUser(ctx, store.NewUser{Name: "Bob", Email: "b@x.com"})
			require.NoError(t, err)

			require.Equal(t, int64(1), first.ID)
			require.Equal(t, int64(2), second.ID)
			require.Equal(t, store.ProviderEmail, first.Provider)
			require.Nil(t, first.Avatar)
			require.Nil(t, first.ProviderID)
			require.True(t, first.CreatedAt.Equal(createdAt))

			loaded, found, err := s.GetUser(ctx, first.ID)
			require.NoError(t, err)
			require.True(t, found)
			require.Equal(t, "Ann", loaded.Name)
			require.Equal(t, "a@x.com", loaded.Email)
		})
	}
}

func TestStoreGetUserReportsAbsence(t *testing.T) {
	for name, factory := range storeDrivers() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := factory(t, nil)

			_, found, err := s.GetUser(ctx, 42)
			require.NoError(t, err)
			require.False(t, found)

			_, found, err = s.GetUserByEmail(ctx, "nobody@x.com")
			require.NoError(t, err)
			require.False(t, found)
		})
	}
}

func TestStoreGetUserByEmailReturnsFirstMatch(t *testing.T) {
	for name, factory := range storeDrivers() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := factory(t, nil)

			avatar := "https://example.com/a.png"
			subject := "a@x.com"
			first, err := s.CreateUser(ctx, store.NewUser{
				Name:       "Ann",
				Email:      "a@x.com",
				Avatar:     &avatar,
				Provider:   store.ProviderGoogle,
				ProviderID: &subject,
			})
			require.NoError(t, err)
			_, err = s.CreateUser(ctx, store.NewUser{Name: "Ann Again", Email: "a@x.com"})
			require.NoError(t, err)

			found, ok, err := s.GetUserByEmail(ctx, "a@x.com")
			require.NoError(t, err)
			require.True(t, ok)
			require.Equal(t, first.ID, found.ID)
			require.Equal(t, store.ProviderGoogle, found.Provider)
			require.NotNil(t, found.Avatar)
			require.Equal(t, avatar, *found.Avatar)
			require.NotNil(t, found.ProviderID)
			require.Equal(t, subject, *found.ProviderID)
		})
	}
}

func TestStoreNotesAreScopedToOwner(t *testing.T) {
	for name, factory := range storeDrivers() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := factory(t, steppingClock(time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)))

			note, err := s.CreateNote(ctx, store.NewNote{UserID: 1, Title: "Day1", Content: "setup"})
			require.NoError(t, err)
			require.Equal(t, int64(1), note.ID)
			require.True(t, note.CreatedAt.Equal(note.UpdatedAt))

			others, err := s.NotesByUserID(ctx, 2)
			require.NoError(t, err)
			require.Empty(t, others)

			owned, err := s.NotesByUserID(ctx, 1)
			require.NoError(t, err)
			require.Len(t, owned, 1)
			require.Equal(t, "Day1", owned[0].Title)
		})
	}
}

func TestStoreNotesSortedNewestFirst(t *testing.T) {
	for name, factory := range storeDrivers() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := factory(t, steppingClock(time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)))

			for _, title := range []string{"first", "second", "third"} {
				_, err := s.CreateNote(ctx, store.NewNote{UserID: 7, Title: title, Content: "body"})
				require.NoError(t, err)
			}

			notes, err := s.NotesByUserID(ctx, 7)
			require.NoError(t, err)
			require.Len(t, notes, 3)
			require.Equal(t, []string{"third", "second", "first"}, []string{notes[0].Title, notes[1].Title, notes[2].Title})
			for index := 1; index < len(notes); index++ {
				require.False(t, notes[index].CreatedAt.After(notes[index-1].CreatedAt))
			}
		})
	}
}

func TestStoreNotesWithEqualTimestampsKeepInsertionOrder(t *testing.T) {
	for name, factory := range storeDrivers() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := factory(t, fixedClock(time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)))

			for _, title := range []string{"a", "b", "c"} {
				_, err := s.CreateNote(ctx, store.NewNote{UserID: 3, Title: title, Content: "body"})
				require.NoError(t, err)
			}

			notes, err := s.NotesByUserID(ctx, 3)
			require.NoError(t, err)
			require.Equal(t, []string{"a", "b", "c"}, []string{notes[0].Title, notes[1].Title, notes[2].Title})
		})
	}
}

func TestStoreDeleteNoteChecksOwnership(t *testing.T) {
	for name, factory := range storeDrivers() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := factory(t, nil)

			note, err := s.CreateNote(ctx, store.NewNote{UserID: 1, Title: "mine", Content: "body"})
			require.NoError(t, err)

			deleted, err := s.DeleteNote(ctx, note.ID, 2)
			require.NoError(t, err)
			require.False(t, deleted)

			remaining, err := s.NotesByUserID(ctx, 1)
			require.NoError(t, err)
			require.Len(t, remaining, 1)

			deleted, err = s.DeleteNote(ctx, 999, 1)
			require.NoError(t, err)
			require.False(t, deleted)

			deleted, err = s.DeleteNote(ctx, note.ID, 1)
			require.NoError(t, err)
			require.True(t, deleted)

			remaining, err = s.NotesByUserID(ctx, 1)
			require.NoError(t, err)
			require.Empty(t, remaining)
		})
	}
}

func TestStoreUpdateNoteMergesFieldsAndRefreshesTimestamp(t *testing.T) {
	for name, factory := range storeDrivers() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := factory(t, steppingClock(time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)))

			note, err := s.CreateNote(ctx, store.NewNote{UserID: 1, Title: "draft", Content: "body"})
			require.NoError(t, err)

			newTitle := "final"
			_, found, err := s.UpdateNote(ctx, note.ID, 2, store.NotePatch{Title: &newTitle})
			require.NoError(t, err)
			require.False(t, found)

			updated, found, err := s.UpdateNote(ctx, note.ID, 1, store.NotePatch{Title: &newTitle})
			require.NoError(t, err)
			require.True(t, found)
			require.Equal(t, "final", updated.Title)
			require.Equal(t, "body", updated.Content)
			require.True(t, updated.UpdatedAt.After(note.UpdatedAt))
			require.True(t, updated.CreatedAt.Equal(note.CreatedAt))

			notes, err := s.NotesByUserID(ctx, 1)
			require.NoError(t, err)
			require.Len(t, notes, 1)
			require.Equal(t, "final", notes[0].Title)
		})
	}
}

func TestMemoryStoreReturnsDetachedUsers(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory(nil)
	avatar := "https://example.com/a.png"
	created, err := s.CreateUser(ctx, store.NewUser{Name: "Ann", Email: "a@x.com", Avatar: &avatar})
	require.NoError(t, err)

	*created.Avatar = "https://example.com/changed.png"
	avatar = "https://example.com/also-changed.png"

	loaded, _, err := s.GetUser(ctx, created.ID)
	require.NoError(t, err)
	require.Equal(t, "https://example.com/a.png", *loaded.Avatar)
}

func TestNewSQLRequiresDatabase(t *testing.T) {
	_, err := store.NewSQL(store.SQLConfig{})
	require.Error(t, err)
}
