package producer

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"

	"qr-access-control/internal/telemetry"
)

// writeTimeout bounds one WriteMessages call.
const writeTimeout = 5 * time.Second

// messageWriter is the subset of *kafka.Writer used here.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaProducer implements Producer using segmentio/kafka-go.
type KafkaProducer struct {
	writer messageWriter
	topic  string
}

var (
	_ Producer                = (*KafkaProducer)(nil)
	_ telemetry.EventEmitter = (*KafkaProducer)(nil)
)

// NewKafkaProducer creates a producer writing scan events to topic. It returns nil when
// brokers or topic is empty so callers can treat Kafka as disabled. Call Close when shutting down.
func NewKafkaProducer(brokers []string, topic string) *KafkaProducer {
	if len(brokers) == 0 || topic == "" {
		return nil
	}
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 50 * time.Millisecond,
	}
	return &KafkaProducer{writer: writer, topic: topic}
}

// Emit writes the event as JSON keyed by ticket id, so one ticket's decisions stay ordered
// within a partition.
func (p *KafkaProducer) Emit(ctx context.Context, event *telemetry.ScanEvent) error {
	if p == nil || p.writer == nil || event == nil {
		return nil
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	var key []byte
	if event.TicketID != "" {
		key = []byte(event.TicketID)
	}
	writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return p.writer.WriteMessages(writeCtx, kafka.Message{
		Key:   key,
		Value: payload,
		Time:  event.CreatedAt,
	})
}

// Close closes the Kafka writer. Safe to call multiple times and on nil.
func (p *KafkaProducer) Close() error {
	if p == nil || p.writer == nil {
		return nil
	}
	return p.writer.Close()
}
