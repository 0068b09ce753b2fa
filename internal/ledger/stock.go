package ledger

import (
	"context"
	"fmt"
	"sync"

	"github.com/iurnickita/kiosk/internal/model"
)

// Stock - остаток одного складского товара, выводимый из движений.
// Отрицательный остаток допустим: расхождения разбирают люди.
type Stock struct {
	itemID string
	reg    *Registry

	mu        sync.Mutex
	unit      string
	movements []model.Movement
	index     map[string]struct{}
	quantity  int64
}

func newStock(itemID string, reg *Registry) *Stock {
	return &Stock{itemID: itemID, reg: reg, index: make(map[string]struct{})}
}

func (s *Stock) ItemID() string {
	return s.itemID
}

func (s *Stock) setUnit(unit string) {
	s.mu.Lock()
	s.unit = unit
	s.mu.Unlock()
}

// Update записывает движение в журнал и пересчитывает остаток.
func (s *Stock) Update(ctx context.Context, movement model.Movement) (string, error) {
	switch movement.Type {
	case model.MovementTypeConsumption, model.MovementTypeRestock, model.MovementTypeReverse:
	default:
		return "", fmt.Errorf("%w: unknown movement type %q", ErrValidation, movement.Type)
	}
	if movement.BookingID == "" {
		return "", fmt.Errorf("%w: movement without booking", ErrValidation)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if movement.ID == "" {
		movement.ID = NewID()
	}
	if _, ok := s.index[movement.ID]; ok {
		return "", fmt.Errorf("%w: movement %s already exists", ErrValidation, movement.ID)
	}
	movement.ItemID = s.itemID
	if movement.Time.IsZero() {
		movement.Time = s.reg.now()
	}

	if err := s.reg.persistMovement(ctx, movement); err != nil {
		return "", fmt.Errorf("%w: movement %s: %w", ErrPersistence, movement.ID, err)
	}
	s.appendLocked(movement)

	return movement.ID, nil
}

func (s *Stock) appendLocked(movement model.Movement) {
	s.index[movement.ID] = struct{}{}
	s.movements = append(s.movements, movement)
	s.quantity += movement.Change
}

func (s *Stock) replay(movement model.Movement) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.index[movement.ID]; ok {
		return
	}
	s.appendLocked(movement)
}

// UpdateByBookingID возвращает последнее движение, вызванное проводкой bookingID.
func (s *Stock) UpdateByBookingID(bookingID string) (model.Movement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := len(s.movements) - 1; i >= 0; i-- {
		if s.movements[i].BookingID == bookingID {
			return s.movements[i], nil
		}
	}
	return model.Movement{}, fmt.Errorf("%w: no movement for booking %s", ErrNotFound, bookingID)
}

func (s *Stock) Info() model.StockInfo {
	s.mu.Lock()
	defer s.mu.Unlock()

	info := model.StockInfo{
		ItemID:   s.itemID,
		Quantity: s.quantity,
		Unit:     s.unit,
	}
	if n := len(s.movements); n > 0 {
		info.LastUpdated = s.movements[n-1].Time
	}
	return info
}

func (s *Stock) Movements() []model.Movement {
	s.mu.Lock()
	defer s.mu.Unlock()

	movements := make([]model.Movement, len(s.movements))
	copy(movements, s.movements)
	return movements
}
