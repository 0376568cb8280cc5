package notes

import (
	"context"
	"errors"
	"fmt"

	"github.com/MarcoPoloResearchLab/skillmate/backend/internal/store"
	"go.uber.org/zap"
)

const (
	// EventNoteCreated carries the full note.
	EventNoteCreated = "note_created"
	// EventNoteDeleted carries DeletedNote.
	EventNoteDeleted = "note_deleted"
)

var (
	// ErrNoteNotFound covers notes that do not exist and notes owned by someone else.
	ErrNoteNotFound = errors.New("notes: note not found")

	errMissingStore  = errors.New("note store is required")
	errInvalidUserID = errors.New("user identifier must be positive")
	noOpLogger       = zap.NewNop()
)

// ServiceError carries a dotted code naming the failed operation.
type ServiceError struct {
	code string
	err  error
}

func (e *ServiceError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *ServiceError) Unwrap() error {
	return e.err
}

func (e *ServiceError) Code() string {
	return e.code
}

const (
	opServiceNew = "notes.service.new"
	opList       = "notes.list"
	opCreate     = "notes.create"
	opDelete     = "notes.delete"
	opUpdate     = "notes.update"
)

func newServiceError(operation, reason string, cause error) error {
	return &ServiceError{code: fmt.Sprintf("%s.%s", operation, reason), err: cause}
}

// Publisher receives note events once the store has committed them.
type Publisher interface {
	Publish(eventType string, data any)
}

// DeletedNote is the payload of a note_deleted event.
type DeletedNote struct {
	ID     int64 `json:"id"`
	UserID int64 `json:"userId"`
}

type ServiceConfig struct {
	Store     store.NoteStore
	Publisher Publisher
	Logger    *zap.Logger
}

// Service lists, creates and deletes notes on behalf of their owners.
type Service struct {
	store     store.NoteStore
	publisher Publisher
	logger    *zap.Logger
}

func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Store == nil {
		return nil, newServiceError(opServiceNew, "missing_store", errMissingStore)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	return &Service{
		store:     cfg.Store,
		publisher: cfg.Publisher,
		logger:    logger,
	}, nil
}

// List returns the user's notes newest first.
func (s *Service) List(ctx context.Context, userID int64) ([]store.Note, error) {
	if userID <= 0 {
		return nil, newServiceError(opList, "invalid_user_id", errInvalidUserID)
	}
	notes, err := s.store.NotesByUserID(ctx, userID)
	if err != nil {
		s.logError(opList, "store_failed", err, zap.Int64("user_id", userID))
		return nil, newServiceError(opList, "store_failed", err)
	}
	if notes == nil {
		notes = []store.Note{}
	}
	return notes, nil
}

// Create stores a note and announces it.
func (s *Service) Create(ctx context.Context, userID int64, title, content string) (store.Note, error) {
	if userID <= 0 {
		return store.Note{}, newServiceError(opCreate, "invalid_user_id", errInvalidUserID)
	}
	note, err := s.store.CreateNote(ctx, store.NewNote{UserID: userID, Title: title, Content: content})
	if err != nil {
		s.logError(opCreate, "store_failed", err, zap.Int64("user_id", userID))
		return store.Note{}, newServiceError(opCreate, "store_failed", err)
	}
	s.publish(EventNoteCreated, note)
	return note, nil
}

// Delete removes one of the user's notes and announces the removal.
func (s *Service) Delete(ctx context.Context, noteID, userID int64) error {
	deleted, err := s.store.DeleteNote(ctx, noteID, userID)
	if err != nil {
		s.logError(opDelete, "store_failed", err, zap.Int64("user_id", userID), zap.Int64("note_id", noteID))
		return newServiceError(opDelete, "store_failed", err)
	}
	if !deleted {
		return ErrNoteNotFound
	}
	s.publish(EventNoteDeleted, DeletedNote{ID: noteID, UserID: userID})
	return nil
}

// Update merges patch into one of the user's notes. No event is published.
func (s *Service) Update(ctx context.Context, noteID, userID int64, patch store.NotePatch) (store.Note, error) {
	note, found, err := s.store.UpdateNote(ctx, noteID, userID, patch)
	if err != nil {
		s.logError(opUpdate, "store_failed", err, zap.Int64("user_id", userID), zap.Int64("note_id", noteID))
		return store.Note{}, newServiceError(opUpdate, "store_failed", err)
	}
	if !found {
		return store.Note{}, ErrNoteNotFound
	}
	return note, nil
}

func (s *Service) publish(eventType string, data any) {
	if s.publisher == nil {
		return
	}
	s.publisher.Publish(eventType, data)
}

func (s *Service) logError(operation, reason string, err error, fields ...zap.Field) {
	if s.logger == nil {
		return
	}
	allFields := append([]zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}, fields...)
	if err != nil {
		allFields = append(allFields, zap.Error(err))
	}
	s.logger.Error("notes service failure", allFields...)
}
