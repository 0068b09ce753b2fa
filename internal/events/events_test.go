package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"

	"github.com/iurnickita/kiosk/internal/events/config"
	"github.com/iurnickita/kiosk/internal/model"
)

type recordingWriter struct {
	messages []kafka.Message
	err      error
}

func (w *recordingWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.messages = append(w.messages, msgs...)
	return nil
}

func (w *recordingWriter) Close() error { return nil }

func TestPublishDanglingTransfer(t *testing.T) {
	writer := &recordingWriter{}
	publisher := NewKafkaPublisher(writer)

	transfer := model.DanglingTransfer{
		SourceBookingID: "b1",
		Sender:          "100001",
		Recipient:       "100002",
		Amount:          500,
		Cause:           "disk full",
		DetectedAt:      time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC),
	}
	require.NoError(t, publisher.PublishDanglingTransfer(context.Background(), transfer))
	require.Len(t, writer.messages, 1)

	message := writer.messages[0]
	require.Equal(t, []byte("100002"), message.Key)
	require.Equal(t, EventTransferDangling, string(message.Headers[0].Value))

	var event Event
	require.NoError(t, json.Unmarshal(message.Value, &event))
	require.Equal(t, EventTransferDangling, event.Type)
	require.Equal(t, transfer, *event.Transfer)
}

func TestPublishBookingError(t *testing.T) {
	writer := &recordingWriter{err: errors.New("broker down")}
	publisher := NewKafkaPublisher(writer)

	err := publisher.PublishBooking(context.Background(), model.Booking{ID: "b1", Account: "100001"})
	require.ErrorContains(t, err, "broker down")
}

func TestNewPublisherWithoutBrokers(t *testing.T) {
	publisher := NewPublisher(config.Config{})
	require.NoError(t, publisher.PublishBooking(context.Background(), model.Booking{}))
	require.NoError(t, publisher.Close())
}
