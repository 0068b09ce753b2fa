package ledger

import (
	"errors"

	"github.com/google/uuid"
)

var (
	ErrNotFound    = errors.New("not found")
	ErrValidation  = errors.New("validation failed")
	ErrPersistence = errors.New("persistence failed")
)

// NewID выдает уникальный идентификатор проводки или движения.
func NewID() string {
	return uuid.NewString()
}
