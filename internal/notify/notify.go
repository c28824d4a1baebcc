package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"finna-payment/internal/logger"
	"finna-payment/internal/payment"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

const EventTransactionPaid = "transaction.paid"

// Event is the message published when a transaction becomes paid, so that
// the fines can be registered as paid in the library system.
type Event struct {
	Type           string    `json:"type"`
	TransactionID  string    `json:"transaction_id"`
	SourceID       string    `json:"source_id"`
	Gateway        string    `json:"gateway"`
	UserID         int64     `json:"user_id"`
	CatUsername    string    `json:"cat_username"`
	Amount         int64     `json:"amount"`
	TransactionFee int64     `json:"transaction_fee"`
	Currency       string    `json:"currency"`
	PaidAt         time.Time `json:"paid_at"`
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Kafka struct {
	writer messageWriter
}

// New returns a Kafka publisher, or a no-op notifier when no brokers are set.
func New(brokers []string, topic string) payment.Notifier {
	if len(brokers) == 0 {
		return Noop{}
	}
	return NewKafka(brokers, topic)
}

func NewKafka(brokers []string, topic string) *Kafka {
	return &Kafka{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
			WriteTimeout: 10 * time.Second,
			ErrorLogger: kafka.LoggerFunc(func(msg string, args ...any) {
				logger.L().Error("kafka writer error", zap.String("error", fmt.Sprintf(msg, args...)))
			}),
		},
	}
}

func (k *Kafka) TransactionPaid(ctx context.Context, t *payment.Transaction) error {
	ev := Event{
		Type:           EventTransactionPaid,
		TransactionID:  t.TransactionID,
		SourceID:       t.SourceID,
		Gateway:        t.Gateway,
		UserID:         t.UserID,
		CatUsername:    t.CatUsername,
		Amount:         t.Amount,
		TransactionFee: t.TransactionFee,
		Currency:       t.Currency,
	}
	if t.PaidAt != nil {
		ev.PaidAt = t.PaidAt.UTC()
	}

	value, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("notify.TransactionPaid: marshal: %w", err)
	}

	err = k.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(t.TransactionID),
		Value: value,
		Headers: []kafka.Header{
			{Key: "event-type", Value: []byte(EventTransactionPaid)},
		},
	})
	if err != nil {
		return fmt.Errorf("notify.TransactionPaid: write: %w", err)
	}
	return nil
}

func (k *Kafka) Close() error {
	return k.writer.Close()
}

// Noop drops notifications.
type Noop struct{}

func (Noop) TransactionPaid(context.Context, *payment.Transaction) error { return nil }
