package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
)

// KafkaEmitterConfig configures the Kafka-backed emitter.
type KafkaEmitterConfig struct {
	// Brokers is the list of Kafka broker addresses (host:port).
	Brokers []string

	// Topic receives all domain events.
	Topic string

	// WriteTimeout is the per-message timeout. Defaults to 5s if zero.
	WriteTimeout time.Duration
}

// KafkaEmitter publishes domain events to a Kafka topic, keyed by tenant so
// one tenant's events stay ordered within a partition. Delivery errors are
// logged, never returned: the engines treat event emission as advisory.
type KafkaEmitter struct {
	writer       *kafka.Writer
	writeTimeout time.Duration
	log          zerolog.Logger
}

func NewKafkaEmitter(cfg KafkaEmitterConfig, log zerolog.Logger) *KafkaEmitter {
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 5 * time.Second
	}
	w := kafka.NewWriter(kafka.WriterConfig{
		Brokers:      cfg.Brokers,
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 10 * time.Millisecond,
		WriteTimeout: cfg.WriteTimeout,
		Async:        false,
	})
	return &KafkaEmitter{writer: w, writeTimeout: cfg.WriteTimeout, log: log}
}

func (e *KafkaEmitter) Emit(ctx context.Context, eventType, tenantID string, payload interface{}) {
	ev := NewEvent(eventType, tenantID, payload)
	value, err := json.Marshal(ev)
	if err != nil {
		e.log.Error().Err(err).Str("eventType", eventType).Msg("marshal domain event")
		return
	}

	writeCtx, cancel := context.WithTimeout(ctx, e.writeTimeout)
	defer cancel()
	msg := kafka.Message{
		Key:   []byte(tenantID),
		Value: value,
		Time:  ev.Ts,
	}
	if err := e.writer.WriteMessages(writeCtx, msg); err != nil {
		e.log.Error().Err(err).Str("eventType", eventType).Str("tenantId", tenantID).Msg("emit domain event")
	}
}

// Close shuts down the underlying writer.
func (e *KafkaEmitter) Close() error {
	if e == nil || e.writer == nil {
		return nil
	}
	return e.writer.Close()
}
