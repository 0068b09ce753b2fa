package service

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/iurnickita/kiosk/internal/model"
	"github.com/iurnickita/kiosk/internal/notify"
)

// TallyEntry - число штрихов бумажного листа учета по одному товару.
type TallyEntry struct {
	ItemID string
	Marks  int64
}

type TallyCommand struct {
	ActorID string
	UserID  string
	Entries []TallyEntry
}

type TallyOutcome struct {
	ItemID   string
	Marks    int64
	Skipped  bool
	Receipt  model.Receipt
	Err      error
	StockErr error
}

type TallyResult struct {
	// Outcomes в порядке строк листа, а не в порядке завершения.
	Outcomes    []TallyOutcome
	Balance     int64
	Total       int64
	Description string
}

// TallyCarryOver переносит лист учета на счет: по проводке на каждую ненулевую
// строку и списание со склада для складских товаров. Строки проводятся
// параллельно, ошибка одной строки не прерывает остальные.
func (s *service) TallyCarryOver(ctx context.Context, cmd TallyCommand) (TallyResult, error) {
	u, err := s.user(cmd.UserID)
	if err != nil {
		return TallyResult{}, err
	}

	// проверка всего листа до первой проводки
	items := make([]model.Item, len(cmd.Entries))
	var total int64
	for i, entry := range cmd.Entries {
		if entry.Marks < 0 {
			return TallyResult{}, fmt.Errorf("%w: negative marks for item %s", ErrValidation, entry.ItemID)
		}
		if entry.Marks == 0 {
			continue
		}
		items[i], err = s.item(entry.ItemID)
		if err != nil {
			return TallyResult{}, err
		}
		amount, ok := multiply(entry.Marks, items[i].Price)
		if !ok || total > math.MaxInt64-amount {
			return TallyResult{}, fmt.Errorf("%w: %d marks for item %s exceed the amount range", ErrValidation, entry.Marks, entry.ItemID)
		}
		total += amount
		if items[i].Stockable {
			if _, ok := multiply(entry.Marks, items[i].Ration); !ok {
				return TallyResult{}, fmt.Errorf("%w: %d marks for item %s exceed the stock range", ErrValidation, entry.Marks, entry.ItemID)
			}
		}
	}

	result := TallyResult{Outcomes: make([]TallyOutcome, len(cmd.Entries))}

	var g errgroup.Group
	if s.cfg.TallyConcurrency > 0 {
		g.SetLimit(s.cfg.TallyConcurrency)
	}
	for i, entry := range cmd.Entries {
		result.Outcomes[i] = TallyOutcome{ItemID: entry.ItemID, Marks: entry.Marks}
		if entry.Marks == 0 {
			result.Outcomes[i].Skipped = true
			continue
		}
		g.Go(func() error {
			s.carryOver(ctx, cmd, items[i], &result.Outcomes[i])
			return nil
		})
	}
	g.Wait()

	var recs []string
	for _, outcome := range result.Outcomes {
		if outcome.Skipped || outcome.Err != nil {
			continue
		}
		result.Total += -outcome.Receipt.Booking.Amount
		recs = append(recs, outcome.Receipt.Booking.Name)
	}
	result.Description = strings.Join(recs, ", ")
	result.Balance = s.ledger.Account(cmd.UserID).Balance()

	if len(recs) > 0 {
		s.notify(notify.TemplateTally, map[string]string{
			"name":    u.DisplayName,
			"balance": notify.FormatMoney(result.Balance),
			"recs":    result.Description,
		}, cmd.UserID)
	}
	return result, nil
}

func (s *service) carryOver(ctx context.Context, cmd TallyCommand, item model.Item, outcome *TallyOutcome) {
	receipt, err := s.ledger.Account(cmd.UserID).Book(ctx, model.Booking{
		Amount:      -outcome.Marks * item.Price,
		Name:        strconv.FormatInt(outcome.Marks, 10) + " x " + item.Name,
		Description: "Tally list carry over",
		Type:        model.BookingTypeTallyCarryOver,
		Admin:       true,
	})
	if err != nil {
		s.bookingFailed(model.BookingTypeTallyCarryOver, cmd.UserID, err)
		outcome.Err = err
		return
	}
	s.booked(cmd.ActorID, receipt)
	outcome.Receipt = receipt

	if !item.Stockable {
		return
	}
	outcome.StockErr = s.updateStock(ctx, item, model.Movement{
		BookingID: receipt.Booking.ID,
		Type:      model.MovementTypeConsumption,
		Change:    -outcome.Marks * item.Ration,
	})
}

// multiply - произведение неотрицательного числа штрихов на цену или порцию
// без переполнения int64.
func multiply(marks int64, factor int64) (int64, bool) {
	if factor < 0 {
		factor = -factor
	}
	if factor != 0 && marks > math.MaxInt64/factor {
		return 0, false
	}
	return marks * factor, true
}
