// Package notifier pushes scan events to realtime listeners. Producers hand
// events to a Dispatcher, which never blocks them; a single worker fans the
// events out to the configured sinks.
package notifier

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/andressep95/nfc-access-service/internal/domain"
	"github.com/andressep95/nfc-access-service/internal/metrics"
)

const (
	defaultBufferSize  = 256
	defaultSinkTimeout = 5 * time.Second
)

// Sink is one destination for scan events
type Sink interface {
	Name() string
	Publish(ctx context.Context, event domain.ScanEvent) error
}

type Dispatcher struct {
	events      chan domain.ScanEvent
	sinks       []Sink
	sinkTimeout time.Duration
	logger      *zap.Logger
}

func NewDispatcher(bufferSize int, logger *zap.Logger, sinks ...Sink) *Dispatcher {
	if bufferSize <= 0 {
		bufferSize = defaultBufferSize
	}
	return &Dispatcher{
		events:      make(chan domain.ScanEvent, bufferSize),
		sinks:       sinks,
		sinkTimeout: defaultSinkTimeout,
		logger:      logger,
	}
}

// Notify queues the event, dropping it when the buffer is full
func (d *Dispatcher) Notify(event domain.ScanEvent) {
	select {
	case d.events <- event:
		metrics.NotifierEventsTotal.WithLabelValues("queued").Inc()
	default:
		metrics.NotifierEventsTotal.WithLabelValues("dropped").Inc()
		d.logger.Warn("Notifier buffer full, dropping scan event",
			zap.String("entity_type", string(event.EntityType)),
			zap.String("entity_id", event.EntityID))
	}
}

// Run delivers queued events until ctx is canceled
func (d *Dispatcher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event := <-d.events:
			d.deliver(ctx, event)
		}
	}
}

func (d *Dispatcher) deliver(ctx context.Context, event domain.ScanEvent) {
	for _, sink := range d.sinks {
		sinkCtx, cancel := context.WithTimeout(ctx, d.sinkTimeout)
		err := sink.Publish(sinkCtx, event)
		cancel()
		if err != nil {
			metrics.NotifierEventsTotal.WithLabelValues("failed").Inc()
			d.logger.Warn("Failed to publish scan event", zap.String("sink", sink.Name()), zap.Error(err))
			continue
		}
		metrics.NotifierEventsTotal.WithLabelValues("delivered").Inc()
	}
}
