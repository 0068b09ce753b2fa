package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/iurnickita/kiosk/internal/ledger"
	"github.com/iurnickita/kiosk/internal/metrics"
	"github.com/iurnickita/kiosk/internal/model"
	"github.com/iurnickita/kiosk/internal/notify"
)

var errTargetMissing = errors.New("transfer target booking is missing from the journal")

type SendMoneyCommand struct {
	Sender    string
	Recipient string
	Amount    int64
	Remark    string
}

// DanglingTransferError - списание у отправителя записано, зачисление получателю нет.
// Автоматически не исправляется: перевод попадает в список для ручной сверки.
type DanglingTransferError struct {
	Transfer model.DanglingTransfer
	Err      error
}

func (e *DanglingTransferError) Error() string {
	return fmt.Sprintf("dangling transfer: booking %s debited %d from %s, credit to %s failed: %v",
		e.Transfer.SourceBookingID, e.Transfer.Amount, e.Transfer.Sender, e.Transfer.Recipient, e.Err)
}

func (e *DanglingTransferError) Unwrap() error {
	return e.Err
}

// SendMoney сначала списывает у отправителя и сразу возвращает его проводку.
// Зачисление получателю и уведомление выполняются в фоне. Блокировка на оба
// счета не берется.
func (s *service) SendMoney(ctx context.Context, cmd SendMoneyCommand) (model.Receipt, error) {
	if cmd.Amount <= 0 {
		return model.Receipt{}, fmt.Errorf("%w: transfer amount must be positive", ErrValidation)
	}
	if cmd.Sender == cmd.Recipient {
		return model.Receipt{}, fmt.Errorf("%w: sender and recipient are the same", ErrValidation)
	}
	sender, err := s.user(cmd.Sender)
	if err != nil {
		return model.Receipt{}, err
	}
	recipient, err := s.user(cmd.Recipient)
	if err != nil {
		return model.Receipt{}, err
	}

	sourceID, targetID := ledger.NewID(), ledger.NewID()
	now := s.now()
	amount := notify.FormatMoney(cmd.Amount)

	source := model.Booking{
		ID:               sourceID,
		Time:             now,
		Amount:           -cmd.Amount,
		Name:             "CHF " + amount + " to " + recipient.DisplayName,
		Description:      cmd.Remark,
		Type:             model.BookingTypeTransferOut,
		RelatedBookingID: targetID,
		Sender:           cmd.Sender,
		Recipient:        cmd.Recipient,
	}
	target := model.Booking{
		ID:               targetID,
		Time:             now,
		Amount:           cmd.Amount,
		Name:             "CHF " + amount + " from " + sender.DisplayName,
		Description:      cmd.Remark,
		Type:             model.BookingTypeTransferIn,
		RelatedBookingID: sourceID,
		Sender:           cmd.Sender,
		Recipient:        cmd.Recipient,
	}

	receipt, err := s.ledger.Account(cmd.Sender).Book(ctx, source)
	if err != nil {
		s.bookingFailed(model.BookingTypeTransferOut, cmd.Sender, err)
		return model.Receipt{}, err
	}
	s.booked(cmd.Sender, receipt)

	s.background(func(ctx context.Context) {
		s.creditTransfer(ctx, cmd, sender, recipient, target)
	})
	return receipt, nil
}

func (s *service) creditTransfer(ctx context.Context, cmd SendMoneyCommand, sender model.User, recipient model.User, target model.Booking) {
	receipt, err := s.ledger.Account(cmd.Recipient).Book(ctx, target)
	if err != nil {
		metrics.RecordBooking(string(model.BookingTypeTransferIn), err)
		s.recordDangling(&DanglingTransferError{
			Transfer: model.DanglingTransfer{
				SourceBookingID: target.RelatedBookingID,
				TargetBookingID: target.ID,
				Sender:          cmd.Sender,
				Recipient:       cmd.Recipient,
				Amount:          cmd.Amount,
				Remark:          cmd.Remark,
				Cause:           err.Error(),
				DetectedAt:      s.now(),
			},
			Err: err,
		})
		return
	}
	s.booked(cmd.Sender, receipt)

	s.notify(notify.TemplateReceiveMoney, map[string]string{
		"name":       recipient.DisplayName,
		"senderName": sender.DisplayName,
		"amount":     notify.FormatMoney(cmd.Amount),
		"remark":     cmd.Remark,
		"balance":    notify.FormatMoney(receipt.Balance),
	}, cmd.Recipient)
}

// recordDangling делает висящий перевод видимым: лог, метрика, список и событие.
func (s *service) recordDangling(dangling *DanglingTransferError) {
	transfer := dangling.Transfer
	s.zaplog.Error("dangling transfer, manual reconciliation required",
		zap.String("source_booking", transfer.SourceBookingID),
		zap.String("target_booking", transfer.TargetBookingID),
		zap.String("sender", transfer.Sender),
		zap.String("recipient", transfer.Recipient),
		zap.Int64("amount", transfer.Amount),
		zap.Error(dangling))
	metrics.RecordDanglingTransfer()

	s.danglingMu.Lock()
	s.dangling = append(s.dangling, transfer)
	s.danglingMu.Unlock()

	s.background(func(ctx context.Context) {
		if err := s.publisher.PublishDanglingTransfer(ctx, transfer); err != nil {
			s.zaplog.Error("failed to publish dangling transfer",
				zap.String("source_booking", transfer.SourceBookingID),
				zap.Error(err))
		}
	})
}

// reconcileTransfers ищет в восстановленном журнале списания переводов без
// парного зачисления: процесс мог упасть между двумя проводками.
func (s *service) reconcileTransfers() {
	for _, account := range s.ledger.Accounts() {
		for _, booking := range account.History() {
			if booking.Type != model.BookingTypeTransferOut || booking.RelatedBookingID == "" {
				continue
			}
			_, err := s.ledger.Account(booking.Recipient).Booking(booking.RelatedBookingID)
			if err == nil {
				continue
			}
			s.recordDangling(&DanglingTransferError{
				Transfer: model.DanglingTransfer{
					SourceBookingID: booking.ID,
					TargetBookingID: booking.RelatedBookingID,
					Sender:          booking.Sender,
					Recipient:       booking.Recipient,
					Amount:          -booking.Amount,
					Remark:          booking.Description,
					Cause:           errTargetMissing.Error(),
					DetectedAt:      s.now(),
				},
				Err: errTargetMissing,
			})
		}
	}
}

func (s *service) DanglingTransfers() []model.DanglingTransfer {
	s.danglingMu.Lock()
	defer s.danglingMu.Unlock()

	transfers := make([]model.DanglingTransfer, len(s.dangling))
	copy(transfers, s.dangling)
	return transfers
}
