package service

import (
	"context"
	"sort"

	"go.uber.org/zap"

	"github.com/iurnickita/kiosk/internal/metrics"
	"github.com/iurnickita/kiosk/internal/model"
	"github.com/iurnickita/kiosk/internal/notify"
)

type ArchiveOutcome struct {
	UserID   string
	Archived bool
	Receipt  model.Receipt
	Err      error
}

// ArchiveAll закрывает период по всем счетам. Счета обрабатываются независимо.
// Параллельные запуски не поддерживаются, их исключает планировщик.
func (s *service) ArchiveAll(ctx context.Context) []ArchiveOutcome {
	users := s.users.Users()

	known := make(map[string]struct{}, len(users))
	for id := range users {
		known[id] = struct{}{}
	}
	for _, account := range s.ledger.Accounts() {
		known[account.UserID()] = struct{}{}
	}
	ids := make([]string, 0, len(known))
	for id := range known {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	month := s.now().Format("January 2006")
	outcomes := make([]ArchiveOutcome, 0, len(ids))
	for _, id := range ids {
		outcome := s.archiveAccount(ctx, id, month)
		outcomes = append(outcomes, outcome)
	}
	return outcomes
}

func (s *service) archiveAccount(ctx context.Context, userID string, month string) ArchiveOutcome {
	outcome := ArchiveOutcome{UserID: userID}

	receipt, archived, err := s.ledger.Account(userID).Archive(ctx)
	if err != nil {
		metrics.RecordArchive(err)
		s.bookingFailed(model.BookingTypeArchive, userID, err)
		outcome.Err = err
		return outcome
	}
	if !archived {
		return outcome
	}
	metrics.RecordArchive(nil)
	s.booked("", receipt)
	outcome.Archived = true
	outcome.Receipt = receipt

	u, err := s.users.User(userID)
	if err != nil {
		// счет без пользователя в справочнике, например касса
		return outcome
	}
	s.zaplog.Info("kiosk monthly archive", zap.String("user", u.Username))
	s.notify(notify.TemplateMonthlyArchive, map[string]string{
		"name":    u.DisplayName,
		"month":   month,
		"balance": notify.FormatMoney(receipt.Balance),
	}, userID)
	return outcome
}
