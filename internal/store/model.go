package store

import (
	"context"
	"time"
)

// Provider identifies how an account was created.
type Provider string

const (
	// ProviderEmail marks accounts registered with an email address.
	ProviderEmail Provider = "email"
	// ProviderGoogle marks accounts provisioned by Google sign-in.
	ProviderGoogle Provider = "google"
)

// User is a learner account.
type User struct {
	ID           int64     `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	Name         string    `gorm:"column:name;size:320;not null" json:"name"`
	Email        string    `gorm:"column:email;size:320;not null;index:idx_users_email" json:"email"`
	Avatar       *string   `gorm:"column:avatar;size:1024" json:"avatar"`
	Provider     Provider  `gorm:"column:provider;size:32;not null;default:email" json:"provider"`
	ProviderID   *string   `gorm:"column:provider_id;size:320" json:"providerId"`
	PasswordHash string    `gorm:"column:password_hash;size:128;not null;default:''" json:"-"`
	CreatedAt    time.Time `gorm:"column:created_at;not null" json:"createdAt"`
}

// TableName provides the explicit table binding for GORM.
func (User) TableName() string {
	return "users"
}

// HasPassword reports whether the account can sign in with a password.
func (u User) HasPassword() bool {
	return u.PasswordHash != ""
}

// Note is a short text note owned by exactly one user.
type Note struct {
	ID        int64     `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	UserID    int64     `gorm:"column:user_id;not null;index:idx_notes_user_created,priority:1" json:"userId"`
	Title     string    `gorm:"column:title;size:200;not null" json:"title"`
	Content   string    `gorm:"column:content;type:text;not null" json:"content"`
	CreatedAt time.Time `gorm:"column:created_at;not null;index:idx_notes_user_created,priority:2" json:"createdAt"`
	UpdatedAt time.Time `gorm:"column:updated_at;not null" json:"updatedAt"`
}

// TableName provides the explicit table binding for GORM.
func (Note) TableName() string {
	return "notes"
}

// NewUser carries the caller-supplied fields for CreateUser. Zero values are
// replaced with defaults: Provider becomes ProviderEmail.
type NewUser struct {
	Name         string
	Email        string
	Avatar       *string
	Provider     Provider
	ProviderID   *string
	PasswordHash string
}

// NewNote carries the caller-supplied fields for CreateNote.
type NewNote struct {
	UserID  int64
	Title   string
	Content string
}

// NotePatch lists the fields UpdateNote merges; nil fields are left untouched.
type NotePatch struct {
	Title   *string
	Content *string
}

// UserStore reads and creates users. Absence is reported through the boolean
// result; errors are reserved for backend failures.
type UserStore interface {
	GetUser(ctx context.Context, id int64) (User, bool, error)
	GetUserByEmail(ctx context.Context, email string) (User, bool, error)
	// CreateUser does not enforce email uniqueness; callers check first.
	CreateUser(ctx context.Context, input NewUser) (User, error)
}

// NoteStore manages notes. Every id-addressed operation verifies ownership and
// treats a foreign note exactly like a missing one.
type NoteStore interface {
	NotesByUserID(ctx context.Context, userID int64) ([]Note, error)
	CreateNote(ctx context.Context, input NewNote) (Note, error)
	DeleteNote(ctx context.Context, id, userID int64) (bool, error)
	UpdateNote(ctx context.Context, id, userID int64, patch NotePatch) (Note, bool, error)
}

// Store is the full data store contract.
type Store interface {
	UserStore
	NoteStore
}

func withUserDefaults(input NewUser, createdAt time.Time) User {
	provider := input.Provider
	if provider == "" {
		provider = ProviderEmail
	}
	return User{
		Name:         input.Name,
		Email:        input.Email,
		Avatar:       cloneString(input.Avatar),
		Provider:     provider,
		ProviderID:   cloneString(input.ProviderID),
		PasswordHash: input.PasswordHash,
		CreatedAt:    createdAt,
	}
}

func applyPatch(note Note, patch NotePatch, updatedAt time.Time) Note {
	if patch.Title != nil {
		note.Title = *patch.Title
	}
	if patch.Content != nil {
		note.Content = *patch.Content
	}
	note.UpdatedAt = updatedAt
	return note
}

func cloneString(value *string) *string {
	if value == nil {
		return nil
	}
	copied := *value
	return &copied
}
