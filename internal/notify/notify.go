package notify

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/iurnickita/kiosk/internal/notify/config"
)

const (
	TemplateMonthlyArchive = "kiosk_monthly_archive"
	TemplateInitialize     = "kiosk_initialize"
	TemplateTally          = "kiosk_tally"
	TemplateDeposit        = "kiosk_deposit"
	TemplateWithdraw       = "kiosk_withdraw"
	TemplateReceiveMoney   = "kiosk_receivemoney"
)

var templates = map[string]string{
	TemplateMonthlyArchive: "Hey [name], I have archived all your Kiosk bookings for [month]. This is the automatic monthly archive. \nYour current account balance is CHF [balance]",
	TemplateInitialize:     "Hey [name], I have initialized your digital kiosk account. Your current account balance is CHF [balance]",
	TemplateTally:          "Hey [name], [recs] have been carried over from the tally list to your digital kiosk account. \nYour new account balance is CHF [balance]",
	TemplateDeposit:        "Hey [name], you have successfully deposited CHF [deposit] to your digital kiosk account. \nYour new account balance is CHF [balance]",
	TemplateWithdraw:       "Hey [name], you have successfully withdrawn CHF [withdrawal] from your digital kiosk account. \nYour new account balance is CHF [balance]",
	TemplateReceiveMoney:   "Hey [name], [senderName] has sent you CHF [amount] because \"[remark]\". \nYour new account balance is CHF [balance]",
}

var ErrUnknownTemplate = errors.New("unknown template")

// Sender доставляет сообщение пользователю. Для учета это fire-and-forget:
// ошибку доставки вызывающий только логирует.
type Sender interface {
	Send(ctx context.Context, templateKey string, substitutions map[string]string, targetUserID string) error
}

// Render подставляет значения вместо плейсхолдеров [key] шаблона.
func Render(templateKey string, substitutions map[string]string) (string, error) {
	text, ok := templates[templateKey]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownTemplate, templateKey)
	}
	pairs := make([]string, 0, len(substitutions)*2)
	for key, value := range substitutions {
		pairs = append(pairs, "["+key+"]", value)
	}
	return strings.NewReplacer(pairs...).Replace(text), nil
}

// FormatMoney форматирует сумму в сантимах: 123456 -> 1'234.56
func FormatMoney(cents int64) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	whole := strconv.FormatInt(cents/100, 10)

	var b strings.Builder
	b.WriteString(sign)
	for i, r := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			b.WriteByte('\'')
		}
		b.WriteRune(r)
	}
	fmt.Fprintf(&b, ".%02d", cents%100)
	return b.String()
}

// NewSender возвращает HTTP-клиент сервиса сообщений или, без адреса, отправитель в лог.
func NewSender(cfg config.Config, zaplog *zap.Logger) Sender {
	if cfg.Address == "" {
		return &logSender{zaplog: zaplog}
	}
	return NewClient(cfg)
}

type logSender struct {
	zaplog *zap.Logger
}

func (s *logSender) Send(_ context.Context, templateKey string, substitutions map[string]string, targetUserID string) error {
	text, err := Render(templateKey, substitutions)
	if err != nil {
		return err
	}
	s.zaplog.Info("notification",
		zap.String("template", templateKey),
		zap.String("user", targetUserID),
		zap.String("text", text),
	)
	return nil
}
