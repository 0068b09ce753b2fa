package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/iurnickita/kiosk/internal/events/config"
	"github.com/iurnickita/kiosk/internal/model"
)

const (
	EventBookingCreated   = "booking.created"
	EventTransferDangling = "transfer.dangling"
)

// Publisher отдает проводки и висящие переводы внешним процессам сверки.
type Publisher interface {
	PublishBooking(ctx context.Context, booking model.Booking) error
	PublishDanglingTransfer(ctx context.Context, transfer model.DanglingTransfer) error
	Close() error
}

type Event struct {
	Type      string                  `json:"type"`
	Timestamp time.Time               `json:"timestamp"`
	Booking   *model.Booking          `json:"booking,omitempty"`
	Transfer  *model.DanglingTransfer `json:"transfer,omitempty"`
}

// MessageWriter - часть kafka.Writer, нужная публикатору.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type kafkaPublisher struct {
	writer MessageWriter
}

func NewPublisher(cfg config.Config) Publisher {
	if len(cfg.Brokers) == 0 {
		return nopPublisher{}
	}
	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		BatchSize:    100,
		BatchTimeout: 10 * time.Millisecond,
		RequiredAcks: kafka.RequireOne,
	}
	return NewKafkaPublisher(writer)
}

func NewKafkaPublisher(writer MessageWriter) Publisher {
	return &kafkaPublisher{writer: writer}
}

func (p *kafkaPublisher) PublishBooking(ctx context.Context, booking model.Booking) error {
	return p.publish(ctx, booking.Account, Event{
		Type:      EventBookingCreated,
		Timestamp: booking.Time,
		Booking:   &booking,
	})
}

func (p *kafkaPublisher) PublishDanglingTransfer(ctx context.Context, transfer model.DanglingTransfer) error {
	return p.publish(ctx, transfer.Recipient, Event{
		Type:      EventTransferDangling,
		Timestamp: transfer.DetectedAt,
		Transfer:  &transfer,
	})
}

func (p *kafkaPublisher) publish(ctx context.Context, key string, event Event) error {
	eventJSON, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal %s event: %w", event.Type, err)
	}

	// ключ - пользователь, события одного счета попадают в одну партицию
	message := kafka.Message{
		Key:   []byte(key),
		Value: eventJSON,
		Time:  event.Timestamp,
		Headers: []kafka.Header{
			{Key: "event-type", Value: []byte(event.Type)},
		},
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := p.writer.WriteMessages(ctx, message); err != nil {
		return fmt.Errorf("failed to write %s event to kafka: %w", event.Type, err)
	}
	return nil
}

func (p *kafkaPublisher) Close() error {
	return p.writer.Close()
}

type nopPublisher struct{}

func (nopPublisher) PublishBooking(context.Context, model.Booking) error { return nil }

func (nopPublisher) PublishDanglingTransfer(context.Context, model.DanglingTransfer) error {
	return nil
}

func (nopPublisher) Close() error { return nil }
