package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/iurnickita/kiosk/internal/directory"
	"github.com/iurnickita/kiosk/internal/events"
	"github.com/iurnickita/kiosk/internal/ledger"
	"github.com/iurnickita/kiosk/internal/metrics"
	"github.com/iurnickita/kiosk/internal/model"
	"github.com/iurnickita/kiosk/internal/notify"
	"github.com/iurnickita/kiosk/internal/service/config"
)

type Service interface {
	Purchase(ctx context.Context, userID string, itemID string) (model.Receipt, error)
	Reverse(ctx context.Context, userID string, bookingID string) (model.Receipt, error)
	Deposit(ctx context.Context, actorID string, userID string, amount int64) (model.Receipt, error)
	Withdraw(ctx context.Context, actorID string, userID string, amount int64) (model.Receipt, error)
	Initialize(ctx context.Context, actorID string, userID string, amount int64) (model.Receipt, error)
	Restock(ctx context.Context, cmd RestockCommand) (model.Receipt, error)
	SendMoney(ctx context.Context, cmd SendMoneyCommand) (model.Receipt, error)
	TallyCarryOver(ctx context.Context, cmd TallyCommand) (TallyResult, error)
	ArchiveAll(ctx context.Context) []ArchiveOutcome

	Account(userID string) (AccountView, error)
	Booking(userID string, bookingID string) (model.Booking, error)
	StockInfo() []StockView
	Overview() Overview
	DanglingTransfers() []model.DanglingTransfer

	// Wait дожидается фоновых задач (зачисления переводов, уведомлений).
	Wait()
}

var (
	ErrNotFound    = ledger.ErrNotFound
	ErrValidation  = ledger.ErrValidation
	ErrPersistence = ledger.ErrPersistence
)

type service struct {
	cfg       config.Config
	ledger    *ledger.Registry
	users     directory.Users
	catalog   directory.Catalog
	sender    notify.Sender
	publisher events.Publisher
	zaplog    *zap.Logger
	audit     *zap.Logger
	now       func() time.Time

	tasks sync.WaitGroup

	danglingMu sync.Mutex
	dangling   []model.DanglingTransfer
}

func NewService(cfg config.Config, registry *ledger.Registry, users directory.Users, catalog directory.Catalog,
	sender notify.Sender, publisher events.Publisher, zaplog *zap.Logger) Service {
	if cfg.BackgroundTimeout == 0 {
		cfg.BackgroundTimeout = 30 * time.Second
	}
	s := &service{
		cfg:       cfg,
		ledger:    registry,
		users:     users,
		catalog:   catalog,
		sender:    sender,
		publisher: publisher,
		zaplog:    zaplog,
		audit:     zaplog.Named("audit"),
		now:       time.Now,
	}
	s.reconcileTransfers()
	return s
}

func (s *service) Wait() {
	s.tasks.Wait()
}

func (s *service) user(id string) (model.User, error) {
	u, err := s.users.User(id)
	if err != nil {
		if errors.Is(err, directory.ErrNotFound) {
			return model.User{}, fmt.Errorf("%w: user %s", ErrNotFound, id)
		}
		return model.User{}, err
	}
	return u, nil
}

func (s *service) item(id string) (model.Item, error) {
	item, err := s.catalog.Item(id)
	if err != nil {
		if errors.Is(err, directory.ErrNotFound) {
			return model.Item{}, fmt.Errorf("%w: item %s", ErrNotFound, id)
		}
		return model.Item{}, err
	}
	return item, nil
}

// accountOwner проверяет, что счет принадлежит известному пользователю или кассе.
func (s *service) accountOwner(userID string) error {
	if userID != "" && userID == s.cfg.CashUser {
		return nil
	}
	_, err := s.user(userID)
	return err
}

// background запускает задачу, не связанную с запросом, со своим ограниченным контекстом.
func (s *service) background(task func(ctx context.Context)) {
	s.tasks.Add(1)
	go func() {
		defer s.tasks.Done()
		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.BackgroundTimeout)
		defer cancel()
		task(ctx)
	}()
}

// booked пишет проводку в журнал действий и публикует событие.
func (s *service) booked(actorID string, receipt model.Receipt) {
	booking := receipt.Booking
	metrics.RecordBooking(string(booking.Type), nil)
	s.audit.Info("booking",
		zap.String("actor", actorID),
		zap.String("account", booking.Account),
		zap.String("booking", booking.ID),
		zap.String("type", string(booking.Type)),
		zap.Int64("amount", booking.Amount),
		zap.Int64("balance", receipt.Balance),
		zap.String("name", booking.Name),
	)
	s.background(func(ctx context.Context) {
		if err := s.publisher.PublishBooking(ctx, booking); err != nil {
			s.zaplog.Warn("failed to publish booking event",
				zap.String("booking", booking.ID),
				zap.Error(err))
		}
	})
}

func (s *service) bookingFailed(bookingType model.BookingType, userID string, err error) {
	metrics.RecordBooking(string(bookingType), err)
	s.zaplog.Warn("booking failed",
		zap.String("account", userID),
		zap.String("type", string(bookingType)),
		zap.Error(err))
}

// notify отправляет сообщение в фоне; ответ пользователю его не ждет.
func (s *service) notify(templateKey string, substitutions map[string]string, userID string) {
	s.background(func(ctx context.Context) {
		err := s.sender.Send(ctx, templateKey, substitutions, userID)
		metrics.RecordNotification(templateKey, err)
		if err != nil {
			s.zaplog.Error("failed to send notification",
				zap.String("template", templateKey),
				zap.String("user", userID),
				zap.Error(err))
		}
	})
}

// updateStock пишет движение склада. Ошибка логируется: проводка уже записана.
func (s *service) updateStock(ctx context.Context, item model.Item, movement model.Movement) error {
	stock := s.ledger.Stock(item.ID, item.Unit)
	_, err := stock.Update(ctx, movement)
	metrics.RecordStockMovement(string(movement.Type), err)
	if err != nil {
		s.zaplog.Error("failed to update stock",
			zap.String("item", item.ID),
			zap.String("booking", movement.BookingID),
			zap.Int64("change", movement.Change),
			zap.Error(err))
	}
	return err
}

// Чтение

type AccountView struct {
	UserID   string          `json:"user_id"`
	Balance  int64           `json:"balance"`
	Bookings []model.Booking `json:"bookings"`
	History  []model.Booking `json:"history,omitempty"`
}

type StockView struct {
	Item model.Item      `json:"item"`
	Info model.StockInfo `json:"info"`
}

type AccountSummary struct {
	User    model.User `json:"user"`
	Balance int64      `json:"balance"`
}

type Overview struct {
	Accounts []AccountSummary `json:"accounts"`
	Total    int64            `json:"total"`
	Stock    []StockView      `json:"stock"`
}

func (s *service) Account(userID string) (AccountView, error) {
	if err := s.accountOwner(userID); err != nil {
		return AccountView{}, err
	}
	account := s.ledger.Account(userID)
	return AccountView{
		UserID:   userID,
		Balance:  account.Balance(),
		Bookings: account.Bookings(),
		History:  account.History(),
	}, nil
}

func (s *service) Booking(userID string, bookingID string) (model.Booking, error) {
	if err := s.accountOwner(userID); err != nil {
		return model.Booking{}, err
	}
	return s.ledger.Account(userID).Booking(bookingID)
}

func (s *service) StockInfo() []StockView {
	var views []StockView
	for _, item := range s.catalog.Items() {
		if !item.Stockable {
			continue
		}
		views = append(views, StockView{
			Item: item,
			Info: s.ledger.Stock(item.ID, item.Unit).Info(),
		})
	}
	return views
}

func (s *service) Overview() Overview {
	users := s.users.Users()
	ids := make([]string, 0, len(users))
	for id := range users {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var overview Overview
	for _, id := range ids {
		balance := s.ledger.Account(id).Balance()
		overview.Accounts = append(overview.Accounts, AccountSummary{User: users[id], Balance: balance})
		overview.Total += balance
	}
	overview.Stock = s.StockInfo()
	return overview
}
