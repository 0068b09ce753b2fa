package ledger

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/iurnickita/kiosk/internal/model"
	"github.com/iurnickita/kiosk/internal/store"
)

// Registry владеет всеми счетами и складскими остатками процесса.
// Создается один раз при старте, экземпляры живут до завершения процесса.
type Registry struct {
	store        store.Store
	writeTimeout time.Duration
	now          func() time.Time

	mu       sync.Mutex
	accounts map[string]*Account
	stocks   map[string]*Stock
}

type Option func(*Registry)

// WithWriteTimeout ограничивает время каждой записи в журнал.
func WithWriteTimeout(d time.Duration) Option {
	return func(r *Registry) {
		r.writeTimeout = d
	}
}

func WithClock(now func() time.Time) Option {
	return func(r *Registry) {
		r.now = now
	}
}

func NewRegistry(store store.Store, opts ...Option) *Registry {
	r := &Registry{
		store:    store,
		now:      time.Now,
		accounts: make(map[string]*Account),
		stocks:   make(map[string]*Stock),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Restore восстанавливает счета и остатки из журнала. Вызывается до начала работы.
func (r *Registry) Restore(ctx context.Context) error {
	r.mu.Lock()
	populated := len(r.accounts) > 0 || len(r.stocks) > 0
	r.mu.Unlock()
	if populated {
		return errors.New("registry is already populated")
	}

	bookings, err := r.store.Bookings(ctx)
	if err != nil {
		return err
	}
	for _, booking := range bookings {
		r.Account(booking.Account).replay(booking)
	}

	movements, err := r.store.Movements(ctx)
	if err != nil {
		return err
	}
	for _, movement := range movements {
		r.Stock(movement.ItemID, "").replay(movement)
	}
	return nil
}

// Account возвращает счет пользователя, создавая пустой при первом обращении.
func (r *Registry) Account(userID string) *Account {
	r.mu.Lock()
	defer r.mu.Unlock()

	account, ok := r.accounts[userID]
	if !ok {
		account = newAccount(userID, r)
		r.accounts[userID] = account
	}
	return account
}

// Stock возвращает остаток товара, создавая при первом обращении.
// Непустой unit обновляет единицу измерения из каталога.
func (r *Registry) Stock(itemID string, unit string) *Stock {
	r.mu.Lock()
	stock, ok := r.stocks[itemID]
	if !ok {
		stock = newStock(itemID, r)
		r.stocks[itemID] = stock
	}
	r.mu.Unlock()

	if unit != "" {
		stock.setUnit(unit)
	}
	return stock
}

func (r *Registry) Accounts() []*Account {
	r.mu.Lock()
	defer r.mu.Unlock()

	accounts := make([]*Account, 0, len(r.accounts))
	for _, account := range r.accounts {
		accounts = append(accounts, account)
	}
	sort.Slice(accounts, func(i, j int) bool {
		return accounts[i].userID < accounts[j].userID
	})
	return accounts
}

func (r *Registry) writeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.writeTimeout > 0 {
		return context.WithTimeout(ctx, r.writeTimeout)
	}
	return context.WithCancel(ctx)
}

func (r *Registry) persistBooking(ctx context.Context, booking model.Booking) error {
	ctx, cancel := r.writeContext(ctx)
	defer cancel()
	return r.store.AppendBooking(ctx, booking)
}

func (r *Registry) persistMovement(ctx context.Context, movement model.Movement) error {
	ctx, cancel := r.writeContext(ctx)
	defer cancel()
	return r.store.AppendMovement(ctx, movement)
}
