package store

import (
	"context"
	"errors"

	"github.com/iurnickita/kiosk/internal/model"
	"github.com/iurnickita/kiosk/internal/store/config"
)

// Store - долговременный журнал проводок и движений склада.
// Записи только добавляются; метод возвращает nil только после надежной записи.
type Store interface {
	AppendBooking(ctx context.Context, booking model.Booking) error
	AppendMovement(ctx context.Context, movement model.Movement) error
	Bookings(ctx context.Context) ([]model.Booking, error)
	Movements(ctx context.Context) ([]model.Movement, error)
	Close() error
}

var (
	ErrAlreadyExists = errors.New("already exists")
	ErrCorrupted     = errors.New("journal corrupted")
	// ErrJournalFailed - откат неудачной записи не удался, журнал больше не принимает записи.
	ErrJournalFailed = errors.New("journal failed")
)

func NewStore(cfg config.Config) (Store, error) {
	if cfg.DBDsn != "" {
		return NewDBStore(cfg.DBDsn)
	}
	return NewFileStore(cfg.JournalPath)
}
