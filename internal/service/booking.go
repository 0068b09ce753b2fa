package service

import (
	"context"
	"fmt"
	"strconv"

	"go.uber.org/zap"

	"github.com/iurnickita/kiosk/internal/model"
	"github.com/iurnickita/kiosk/internal/notify"
)

func (s *service) Purchase(ctx context.Context, userID string, itemID string) (model.Receipt, error) {
	if _, err := s.user(userID); err != nil {
		return model.Receipt{}, err
	}
	item, err := s.item(itemID)
	if err != nil {
		return model.Receipt{}, err
	}
	if !item.Buyable {
		return model.Receipt{}, fmt.Errorf("%w: item %s is not for sale", ErrValidation, itemID)
	}

	receipt, err := s.ledger.Account(userID).Book(ctx, model.Booking{
		ItemID:      item.ID,
		Amount:      -item.Price,
		Name:        item.Name,
		Description: item.Description,
		Type:        model.BookingTypePurchase,
	})
	if err != nil {
		s.bookingFailed(model.BookingTypePurchase, userID, err)
		return model.Receipt{}, err
	}
	s.booked(userID, receipt)

	if item.Stockable {
		s.updateStock(ctx, item, model.Movement{
			BookingID: receipt.Booking.ID,
			Type:      model.MovementTypeConsumption,
			Change:    -item.Ration,
		})
	}
	return receipt, nil
}

// Reverse сторнирует проводку и, если она списала товар со склада, возвращает его.
func (s *service) Reverse(ctx context.Context, userID string, bookingID string) (model.Receipt, error) {
	if err := s.accountOwner(userID); err != nil {
		return model.Receipt{}, err
	}
	account := s.ledger.Account(userID)
	original, err := account.Booking(bookingID)
	if err != nil {
		return model.Receipt{}, err
	}

	receipt, err := account.Reverse(ctx, bookingID)
	if err != nil {
		s.bookingFailed(model.BookingTypeReverse, userID, err)
		return model.Receipt{}, err
	}
	s.booked(userID, receipt)

	if original.ItemID == "" {
		return receipt, nil
	}
	item, err := s.item(original.ItemID)
	if err != nil {
		s.zaplog.Warn("reversed booking refers to unknown item",
			zap.String("booking", bookingID),
			zap.String("item", original.ItemID))
		return receipt, nil
	}
	if !item.Stockable {
		return receipt, nil
	}

	movement, err := s.ledger.Stock(item.ID, item.Unit).UpdateByBookingID(bookingID)
	if err != nil {
		s.zaplog.Warn("no stock movement to reverse",
			zap.String("booking", bookingID),
			zap.String("item", item.ID))
		return receipt, nil
	}
	s.updateStock(ctx, item, model.Movement{
		BookingID: receipt.Booking.ID,
		Type:      model.MovementTypeReverse,
		Change:    -movement.Change,
	})
	return receipt, nil
}

// Deposit зачисляет наличные пользователю; касса зеркально уменьшается.
func (s *service) Deposit(ctx context.Context, actorID string, userID string, amount int64) (model.Receipt, error) {
	u, err := s.user(userID)
	if err != nil {
		return model.Receipt{}, err
	}

	receipt, err := s.ledger.Account(userID).Deposit(ctx, amount)
	if err != nil {
		s.bookingFailed(model.BookingTypeDeposit, userID, err)
		return model.Receipt{}, err
	}
	s.booked(actorID, receipt)

	s.mirrorCash(ctx, actorID, userID, func(ctx context.Context) (model.Receipt, error) {
		return s.ledger.Account(s.cfg.CashUser).Withdraw(ctx, amount)
	})

	s.notify(notify.TemplateDeposit, map[string]string{
		"name":    u.DisplayName,
		"deposit": notify.FormatMoney(amount),
		"balance": notify.FormatMoney(receipt.Balance),
	}, userID)
	return receipt, nil
}

// Withdraw выдает наличные пользователю; касса зеркально увеличивается.
func (s *service) Withdraw(ctx context.Context, actorID string, userID string, amount int64) (model.Receipt, error) {
	u, err := s.user(userID)
	if err != nil {
		return model.Receipt{}, err
	}

	receipt, err := s.ledger.Account(userID).Withdraw(ctx, amount)
	if err != nil {
		s.bookingFailed(model.BookingTypeWithdraw, userID, err)
		return model.Receipt{}, err
	}
	s.booked(actorID, receipt)

	s.mirrorCash(ctx, actorID, userID, func(ctx context.Context) (model.Receipt, error) {
		return s.ledger.Account(s.cfg.CashUser).Deposit(ctx, amount)
	})

	s.notify(notify.TemplateWithdraw, map[string]string{
		"name":       u.DisplayName,
		"withdrawal": notify.FormatMoney(amount),
		"balance":    notify.FormatMoney(receipt.Balance),
	}, userID)
	return receipt, nil
}

// mirrorCash проводит встречную операцию по кассе. Ошибка только логируется:
// проводка пользователя уже записана.
func (s *service) mirrorCash(ctx context.Context, actorID string, userID string, book func(ctx context.Context) (model.Receipt, error)) {
	if s.cfg.CashUser == "" || s.cfg.CashUser == userID {
		return
	}
	receipt, err := book(ctx)
	if err != nil {
		s.zaplog.Error("failed to mirror cash booking",
			zap.String("cash_account", s.cfg.CashUser),
			zap.String("user", userID),
			zap.Error(err))
		return
	}
	s.booked(actorID, receipt)
}

func (s *service) Initialize(ctx context.Context, actorID string, userID string, amount int64) (model.Receipt, error) {
	u, err := s.user(userID)
	if err != nil {
		return model.Receipt{}, err
	}

	receipt, err := s.ledger.Account(userID).Initialize(ctx, amount)
	if err != nil {
		s.bookingFailed(model.BookingTypeInitialize, userID, err)
		return model.Receipt{}, err
	}
	s.booked(actorID, receipt)

	s.notify(notify.TemplateInitialize, map[string]string{
		"name":    u.DisplayName,
		"balance": notify.FormatMoney(receipt.Balance),
	}, userID)
	return receipt, nil
}

// RestockCommand - закупка для киоска за свои деньги. Сумма зачисляется закупщику.
// Без ItemID это просто расход с описанием.
type RestockCommand struct {
	ActorID     string
	ItemID      string
	Amount      int64
	Quantity    int64
	Description string
}

func (s *service) Restock(ctx context.Context, cmd RestockCommand) (model.Receipt, error) {
	if err := s.accountOwner(cmd.ActorID); err != nil {
		return model.Receipt{}, err
	}
	if cmd.Amount < 0 {
		return model.Receipt{}, fmt.Errorf("%w: restock amount %d is negative", ErrValidation, cmd.Amount)
	}

	booking := model.Booking{
		Amount:      cmd.Amount,
		Name:        "Stock",
		Description: cmd.Description,
		Type:        model.BookingTypeStock,
	}

	var item model.Item
	if cmd.ItemID != "" {
		var err error
		item, err = s.item(cmd.ItemID)
		if err != nil {
			return model.Receipt{}, err
		}
		booking.ItemID = item.ID
		if item.Stockable {
			booking.Name += ": " + item.Name
			booking.Description = item.Name + ": " + strconv.FormatInt(cmd.Quantity, 10) + " " + item.Unit
		}
	} else if cmd.Description != "" {
		booking.Name += ": " + cmd.Description
	}

	receipt, err := s.ledger.Account(cmd.ActorID).Book(ctx, booking)
	if err != nil {
		s.bookingFailed(model.BookingTypeStock, cmd.ActorID, err)
		return model.Receipt{}, err
	}
	s.booked(cmd.ActorID, receipt)

	if item.Stockable {
		s.updateStock(ctx, item, model.Movement{
			BookingID: receipt.Booking.ID,
			Type:      model.MovementTypeRestock,
			Change:    cmd.Quantity,
		})
	}
	return receipt, nil
}
