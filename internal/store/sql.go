package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
)

var errMissingDatabase = errors.New("store: database handle is required")

// SQLConfig describes the dependencies of the GORM-backed store.
type SQLConfig struct {
	Database *gorm.DB
	Clock    func() time.Time
}

// SQL implements Store on top of GORM. The schema is created by
// database.OpenSQLite.
type SQL struct {
	db    *gorm.DB
	clock func() time.Time
}

// NewSQL validates the configuration and returns the store.
func NewSQL(cfg SQLConfig) (*SQL, error) {
	if cfg.Database == nil {
		return nil, errMissingDatabase
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &SQL{db: cfg.Database, clock: clock}, nil
}

func (s *SQL) GetUser(ctx context.Context, id int64) (User, bool, error) {
	var user User
	err := s.db.WithContext(ctx).Where("id = ?", id).Take(&user).Error
	return lookupResult(user, err, "get user")
}

func (s *SQL) GetUserByEmail(ctx context.Context, email string) (User, bool, error) {
	var user User
	err := s.db.WithContext(ctx).
		Where("email = ?", email).
		Order("id ASC").
		Take(&user).Error
	return lookupResult(user, err, "get user by email")
}

func (s *SQL) CreateUser(ctx context.Context, input NewUser) (User, error) {
	user := withUserDefaults(input, s.clock().UTC())
	if err := s.db.WithContext(ctx).Create(&user).Error; err != nil {
		return User{}, fmt.Errorf("store: create user: %w", err)
	}
	return user, nil
}

func (s *SQL) NotesByUserID(ctx context.Context, userID int64) ([]Note, error) {
	notes := make([]Note, 0)
	if err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Order("id ASC").
		Find(&notes).Error; err != nil {
		return nil, fmt.Errorf("store: list notes: %w", err)
	}
	return notes, nil
}

func (s *SQL) CreateNote(ctx context.Context, input NewNote) (Note, error) {
	now := s.clock().UTC()
	note := Note{
		UserID:    input.UserID,
		Title:     input.Title,
		Content:   input.Content,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.db.WithContext(ctx).Create(&note).Error; err != nil {
		return Note{}, fmt.Errorf("store: create note: %w", err)
	}
	return note, nil
}

func (s *SQL) DeleteNote(ctx context.Context, id, userID int64) (bool, error) {
	result := s.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", id, userID).
		Delete(&Note{})
	if result.Error != nil {
		return false, fmt.Errorf("store: delete note: %w", result.Error)
	}
	return result.RowsAffected > 0, nil
}

func (s *SQL) UpdateNote(ctx context.Context, id, userID int64, patch NotePatch) (Note, bool, error) {
	var updated Note
	found := false
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing Note
		err := tx.Where("id = ? AND user_id = ?", id, userID).Take(&existing).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		updated = applyPatch(existing, patch, s.clock().UTC())
		found = true
		return tx.Model(&Note{}).
			Where("id = ?", id).
			Updates(map[string]interface{}{
				"title":      updated.Title,
				"content":    updated.Content,
				"updated_at": updated.UpdatedAt,
			}).Error
	})
	if err != nil {
		return Note{}, false, fmt.Errorf("store: update note: %w", err)
	}
	if !found {
		return Note{}, false, nil
	}
	return updated, true, nil
}

func lookupResult(user User, err error, operation string) (User, bool, error) {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return User{}, false, nil
	}
	if err != nil {
		return User{}, false, fmt.Errorf("store: %s: %w", operation, err)
	}
	return user, true, nil
}
