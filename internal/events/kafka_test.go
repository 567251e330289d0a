package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"transitpay/internal/domain/models"

	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type recordingWriter struct {
	msgs []kafka.Message
	err  error
}

func (w *recordingWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *recordingWriter) Close() error { return nil }

func TestKafkaPublisherWritesKeyedEvent(t *testing.T) {
	w := &recordingWriter{}
	p := &KafkaPublisher{writer: w, timeout: time.Second, logger: zap.NewNop()}

	vid := int64(5)
	at := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)
	e := PaymentEvent(models.Payment{
		ID:        7,
		RouteID:   3,
		VehicleID: &vid,
		Amount:    decimal.NewFromInt(50),
		Status:    models.PaymentCompleted,
	}, at)

	if err := p.Publish(context.Background(), e); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if len(w.msgs) != 1 {
		t.Fatalf("messages = %d", len(w.msgs))
	}
	msg := w.msgs[0]
	if string(msg.Key) != "route-3" {
		t.Fatalf("key = %s", msg.Key)
	}
	var decoded Event
	if err := json.Unmarshal(msg.Value, &decoded); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.Type != TypePaymentCompleted || decoded.PaymentID != 7 {
		t.Fatalf("unexpected event %+v", decoded)
	}
}

func TestFanoutReturnsFirstErrorButDeliversAll(t *testing.T) {
	bad := &KafkaPublisher{writer: &recordingWriter{err: errors.New("broker down")}, timeout: time.Second, logger: zap.NewNop()}
	good := &recordingWriter{}
	f := Fanout{bad, nil, &KafkaPublisher{writer: good, timeout: time.Second, logger: zap.NewNop()}}

	err := f.Publish(context.Background(), Event{Type: TypeOccupancyReset, OccurredAt: time.Now()})
	if err == nil {
		t.Fatalf("expected error from failing publisher")
	}
	if len(good.msgs) != 1 {
		t.Fatalf("healthy publisher should still receive the event")
	}
}
