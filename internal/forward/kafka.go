package forward

import (
	"context"
	"encoding/json"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/segmentio/kafka-go"

	"github.com/signalnine/teforward/internal/config"
	"github.com/signalnine/teforward/internal/protocol"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSink publishes the collector envelope to a topic, keyed by test ID
type KafkaSink struct {
	writer    messageWriter
	collector *config.CollectorConfig
	now       func() time.Time
}

func NewKafkaSink(cfg *config.KafkaConfig, collector *config.CollectorConfig) *KafkaSink {
	return &KafkaSink{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(cfg.Brokers...),
			Topic:                  cfg.Topic,
			Balancer:               &kafka.LeastBytes{},
			BatchSize:              1,
			BatchTimeout:           10 * time.Millisecond,
			RequiredAcks:           kafka.RequireOne,
			AllowAutoTopicCreation: true,
		},
		collector: collector,
		now:       time.Now,
	}
}

func (s *KafkaSink) Send(ctx context.Context, event protocol.Event) error {
	payload, err := json.Marshal(envelope(event, s.collector, s.now()))
	if err != nil {
		return errors.Wrap(err, "marshal event")
	}

	if err := s.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(event.TestID),
		Value: payload,
	}); err != nil {
		return errors.Mark(errors.Wrap(err, "publish event"), ErrTransport)
	}
	return nil
}

func (s *KafkaSink) Close() error {
	return s.writer.Close()
}
