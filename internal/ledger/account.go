package ledger

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/iurnickita/kiosk/internal/model"
)

// Account - журнал проводок одного пользователя.
// Текущий период начинается с последней проводки архивации; более ранние
// проводки остаются в истории, но в баланс не входят.
type Account struct {
	userID string
	reg    *Registry

	mu          sync.Mutex
	history     []model.Booking
	index       map[string]int
	periodStart int
	balance     int64
}

func newAccount(userID string, reg *Registry) *Account {
	return &Account{
		userID: userID,
		reg:    reg,
		index:  make(map[string]int),
	}
}

func (a *Account) UserID() string {
	return a.userID
}

// Book записывает проводку в журнал и только после этого добавляет ее в счет.
func (a *Account) Book(ctx context.Context, booking model.Booking) (model.Receipt, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	return a.bookLocked(ctx, booking)
}

func (a *Account) bookLocked(ctx context.Context, booking model.Booking) (model.Receipt, error) {
	if booking.ID == "" {
		booking.ID = NewID()
	}
	if _, ok := a.index[booking.ID]; ok {
		return model.Receipt{}, fmt.Errorf("%w: booking %s already exists", ErrValidation, booking.ID)
	}
	booking.Account = a.userID
	booking.Time = a.nextTime(booking.Time)

	if err := a.reg.persistBooking(ctx, booking); err != nil {
		return model.Receipt{}, fmt.Errorf("%w: booking %s: %w", ErrPersistence, booking.ID, err)
	}
	a.appendLocked(booking)

	return model.Receipt{Booking: booking, Balance: a.balance}, nil
}

// время проводок внутри счета не убывает
func (a *Account) nextTime(t time.Time) time.Time {
	if t.IsZero() {
		t = a.reg.now()
	}
	if n := len(a.history); n > 0 && t.Before(a.history[n-1].Time) {
		t = a.history[n-1].Time
	}
	return t
}

func (a *Account) appendLocked(booking model.Booking) {
	a.index[booking.ID] = len(a.history)
	a.history = append(a.history, booking)

	if booking.Type == model.BookingTypeArchive {
		a.periodStart = len(a.history) - 1
		a.balance = booking.Amount
		return
	}
	a.balance += booking.Amount
}

func (a *Account) replay(booking model.Booking) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if _, ok := a.index[booking.ID]; ok {
		return
	}
	a.appendLocked(booking)
}

func (a *Account) Deposit(ctx context.Context, amount int64) (model.Receipt, error) {
	if amount < 0 {
		return model.Receipt{}, fmt.Errorf("%w: deposit amount %d is negative", ErrValidation, amount)
	}
	return a.Book(ctx, model.Booking{
		Amount:      amount,
		Name:        "Deposit",
		Description: "Cash deposit",
		Type:        model.BookingTypeDeposit,
	})
}

// Withdraw допускает уход баланса в минус: счет киоска - это кредит, а не лимит.
func (a *Account) Withdraw(ctx context.Context, amount int64) (model.Receipt, error) {
	if amount < 0 {
		return model.Receipt{}, fmt.Errorf("%w: withdrawal amount %d is negative", ErrValidation, amount)
	}
	return a.Book(ctx, model.Booking{
		Amount:      -amount,
		Name:        "Withdrawal",
		Description: "Cash withdrawal",
		Type:        model.BookingTypeWithdraw,
	})
}

// Initialize задает начальный баланс. Повторный вызов не запрещен.
func (a *Account) Initialize(ctx context.Context, amount int64) (model.Receipt, error) {
	return a.Book(ctx, model.Booking{
		Amount:      amount,
		Name:        "Initialization",
		Description: "Opening balance",
		Type:        model.BookingTypeInitialize,
		Admin:       true,
	})
}

// Reverse добавляет сторнирующую проводку. Исходная проводка не меняется.
func (a *Account) Reverse(ctx context.Context, bookingID string) (model.Receipt, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	i, ok := a.index[bookingID]
	if !ok {
		return model.Receipt{}, fmt.Errorf("%w: booking %s", ErrNotFound, bookingID)
	}
	original := a.history[i]

	return a.bookLocked(ctx, model.Booking{
		ItemID:           original.ItemID,
		Amount:           -original.Amount,
		Name:             "Reversal: " + original.Name,
		Description:      original.Description,
		Type:             model.BookingTypeReverse,
		RelatedBookingID: original.ID,
	})
}

// Archive закрывает период: одна проводка с текущим балансом открывает новый.
// Если в периоде не больше одной проводки, ничего не делает и возвращает false.
func (a *Account) Archive(ctx context.Context) (model.Receipt, bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if len(a.history)-a.periodStart <= 1 {
		return model.Receipt{Balance: a.balance}, false, nil
	}

	receipt, err := a.bookLocked(ctx, model.Booking{
		Amount:      a.balance,
		Name:        "Balance carried forward",
		Description: "Monthly archive",
		Type:        model.BookingTypeArchive,
		Admin:       true,
	})
	if err != nil {
		return model.Receipt{}, false, err
	}
	return receipt, true, nil
}

// Booking ищет проводку во всей истории, включая архивные периоды.
func (a *Account) Booking(id string) (model.Booking, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	i, ok := a.index[id]
	if !ok {
		return model.Booking{}, fmt.Errorf("%w: booking %s", ErrNotFound, id)
	}
	return a.history[i], nil
}

func (a *Account) Balance() int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.balance
}

// Bookings - проводки текущего периода.
func (a *Account) Bookings() []model.Booking {
	a.mu.Lock()
	defer a.mu.Unlock()

	bookings := make([]model.Booking, len(a.history)-a.periodStart)
	copy(bookings, a.history[a.periodStart:])
	return bookings
}

// History - все проводки счета для аудита.
func (a *Account) History() []model.Booking {
	a.mu.Lock()
	defer a.mu.Unlock()

	bookings := make([]model.Booking, len(a.history))
	copy(bookings, a.history)
	return bookings
}
