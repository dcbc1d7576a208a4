package journal

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"github.com/hakimelghazi/quoter/internal/engine"
)

// KafkaSink publishes every event to a topic, keyed by symbol so a symbol's
// events stay ordered within one partition.
type KafkaSink struct {
	writer *kafka.Writer
}

func NewKafkaSink(brokers []string, topic string) *KafkaSink {
	return &KafkaSink{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
			Async:        false,
			BatchTimeout: 10 * time.Millisecond,
		},
	}
}

func (k *KafkaSink) Name() string { return "kafka" }

func (k *KafkaSink) Write(ctx context.Context, events []engine.Event) error {
	msgs := make([]kafka.Message, 0, len(events))
	for _, ev := range events {
		msg, err := encodeEvent(ev)
		if err != nil {
			return err
		}
		msgs = append(msgs, msg)
	}
	if err := k.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("kafka write: %w", err)
	}
	return nil
}

func (k *KafkaSink) Close() error {
	return k.writer.Close()
}

type eventMessage struct {
	Type    string              `json:"type"`
	Symbol  string              `json:"symbol"`
	Quote   *engine.Quote       `json:"quote,omitempty"`
	QuoteID *uuid.UUID          `json:"quote_id,omitempty"`
	Trade   *engine.TradeResult `json:"trade,omitempty"`
	At      time.Time           `json:"at"`
}

func encodeEvent(ev engine.Event) (kafka.Message, error) {
	body := eventMessage{
		Type:   ev.Type.String(),
		Symbol: ev.Symbol,
		Quote:  ev.Quote,
		Trade:  ev.Trade,
		At:     ev.At.UTC(),
	}
	if ev.Type == engine.EventQuoteRemoved {
		id := ev.QuoteID
		body.QuoteID = &id
	}

	value, err := json.Marshal(body)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("encode %s event: %w", ev.Type, err)
	}
	return kafka.Message{
		Key:   []byte(ev.Symbol),
		Value: value,
		Time:  ev.At,
	}, nil
}
