package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/wordloc/internal/domain"
	"github.com/couchcryptid/wordloc/internal/observability"
)

// Queue is a bounded in-memory buffer between sessions and the pipeline.
// Publish never blocks: when the buffer is full the event is dropped.
type Queue struct {
	events        chan domain.LocationEvent
	flushInterval time.Duration
	clock         clockwork.Clock
	logger        *slog.Logger
	metrics       *observability.Metrics
}

// NewQueue creates a queue holding up to size events. ExtractBatch waits at
// most flushInterval for a batch to fill once its first event has arrived.
func NewQueue(size int, flushInterval time.Duration, clock clockwork.Clock, logger *slog.Logger, metrics *observability.Metrics) *Queue {
	return &Queue{
		events:        make(chan domain.LocationEvent, size),
		flushInterval: flushInterval,
		clock:         clock,
		logger:        logger,
		metrics:       metrics,
	}
}

// Publish enqueues event.
func (q *Queue) Publish(event domain.LocationEvent) {
	select {
	case q.events <- event:
		q.metrics.EventsQueued.Inc()
	default:
		q.metrics.EventsDropped.Inc()
		q.logger.Warn("location queue full, dropping event", "session", event.SessionID)
	}
}

// Len returns the number of queued events.
func (q *Queue) Len() int {
	return len(q.events)
}

// ExtractBatch blocks until at least one event is queued, then collects up
// to batchSize events or until the flush interval elapses.
func (q *Queue) ExtractBatch(ctx context.Context, batchSize int) ([]domain.LocationEvent, error) {
	var batch []domain.LocationEvent
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case e := <-q.events:
		batch = append(batch, e)
	}

	timer := q.clock.NewTimer(q.flushInterval)
	defer timer.Stop()

	for len(batch) < batchSize {
		select {
		case e := <-q.events:
			batch = append(batch, e)
		case <-timer.Chan():
			return batch, nil
		case <-ctx.Done():
			return batch, nil
		}
	}
	return batch, nil
}
