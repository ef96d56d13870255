// Package forward delivers events to where they get indexed.
package forward

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/signalnine/teforward/internal/config"
	"github.com/signalnine/teforward/internal/protocol"
)

// ErrTransport marks delivery failures
var ErrTransport = errors.New("forward transport error")

// Sink sends one event per call. Implementations do not retry.
type Sink interface {
	Send(ctx context.Context, event protocol.Event) error
	Close() error
}

// New builds the sink selected by cfg.Output
func New(cfg *config.Config) (Sink, error) {
	switch cfg.Output {
	case config.OutputHEC:
		return NewHECSink(&cfg.Collector)
	case config.OutputKafka:
		return NewKafkaSink(&cfg.Kafka, &cfg.Collector), nil
	}
	return nil, errors.Newf("unknown output %q", cfg.Output)
}

func envelope(event protocol.Event, cfg *config.CollectorConfig, now time.Time) protocol.Envelope {
	return protocol.Envelope{
		Event:      event,
		SourceType: cfg.SourceType,
		Host:       cfg.Host,
		Time:       float64(now.UnixNano()) / float64(time.Second),
	}
}
