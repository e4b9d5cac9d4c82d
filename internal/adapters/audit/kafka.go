// Package audit ships service audit entries to external sinks.
package audit

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"

	"stockcore/internal/core"
)

var _ core.AuditRecorder = (*KafkaPublisher)(nil)

// messageWriter is the slice of kafka.Writer the publisher depends on.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher forwards audit entries to a Kafka topic as JSON messages
// keyed by entity id. Publishing is best effort: broker failures are logged
// and never fail the operation that produced the entry.
type KafkaPublisher struct {
	writer messageWriter
	logger core.Logger
}

// NewKafkaPublisher constructs a publisher writing to topic on the supplied
// brokers. A nil logger discards publish failures.
func NewKafkaPublisher(brokers []string, topic string, logger core.Logger) *KafkaPublisher {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.LeastBytes{},
		BatchTimeout: 10 * time.Millisecond,
		BatchSize:    100,
	}
	return newKafkaPublisher(writer, logger)
}

func newKafkaPublisher(writer messageWriter, logger core.Logger) *KafkaPublisher {
	if logger == nil {
		logger = core.NopLogger()
	}
	return &KafkaPublisher{writer: writer, logger: logger}
}

// Record implements core.AuditRecorder.
func (p *KafkaPublisher) Record(ctx context.Context, entry core.AuditEntry) {
	payload, err := json.Marshal(entry)
	if err != nil {
		p.logger.Error("encode audit entry", "operation", entry.Operation, "error", err)
		return
	}
	msg := kafka.Message{
		Key:   []byte(strconv.FormatUint(entry.EntityID, 10)),
		Value: payload,
		Time:  entry.Timestamp,
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.logger.Error("publish audit entry", "operation", entry.Operation, "error", err)
	}
}

// Close flushes and closes the underlying writer.
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
