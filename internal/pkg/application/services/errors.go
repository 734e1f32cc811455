package services

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/iot-for-tillgenglighet/fleet-registry/internal/pkg/infrastructure/repositories/database"
)

//NotFoundError is returned when an entity, or an entity it references, does not exist
//within the caller's tenant
type NotFoundError struct {
	ID uuid.UUID
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("object %s not found", e.ID)
}

//ConflictError is returned when a write violates a uniqueness or referential constraint
type ConflictError struct {
	err error
}

func (e *ConflictError) Error() string {
	return "integrity error"
}

func (e *ConflictError) Unwrap() error {
	return e.err
}

//ValidationError is returned for field values that are rejected before reaching the store
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func translate(err error) error {
	if errors.Is(err, database.ErrConflict) {
		return &ConflictError{err: err}
	}
	return err
}

func notFoundIfMissing(err error, id uuid.UUID) error {
	if errors.Is(err, database.ErrNotFound) {
		return &NotFoundError{ID: id}
	}
	return translate(err)
}
