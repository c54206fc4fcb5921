package geocode

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/couchcryptid/wordloc/internal/domain"
	"github.com/couchcryptid/wordloc/internal/observability"
)

// Call outcomes recorded per provider.
const (
	outcomeSuccess     = "success"
	outcomeEmpty       = "empty"
	outcomeError       = "error"
	outcomePanic       = "panic"
	outcomeTimeout     = "timeout"
	outcomeUnsupported = "unsupported"
)

var errPanic = errors.New("provider panicked")

type providerCall func(ctx context.Context, p domain.Geocoder) ([]domain.Result, error)

// Aggregator presents an ordered list of providers as one logical provider.
// Every call fans out to all providers concurrently and concatenates their
// results in registration order. A failing provider contributes nothing;
// it never fails the call.
type Aggregator struct {
	providers []domain.Geocoder
	timeout   time.Duration
	logger    *slog.Logger
	metrics   *observability.Metrics
}

// NewAggregator creates an aggregator over providers. timeout bounds each
// provider call; zero means only the caller's context applies.
func NewAggregator(providers []domain.Geocoder, timeout time.Duration, logger *slog.Logger, metrics *observability.Metrics) *Aggregator {
	for _, p := range providers {
		metrics.ProvidersEnabled.WithLabelValues(p.Name()).Set(1)
	}
	return &Aggregator{
		providers: providers,
		timeout:   timeout,
		logger:    logger,
		metrics:   metrics,
	}
}

// Providers returns the provider names in registration order.
func (a *Aggregator) Providers() []string {
	names := make([]string, len(a.providers))
	for i, p := range a.providers {
		names[i] = p.Name()
	}
	return names
}

// CheckReadiness reports an error when no provider is registered.
func (a *Aggregator) CheckReadiness(_ context.Context) error {
	if len(a.providers) == 0 {
		return errors.New("no geocoding providers registered")
	}
	return nil
}

// Geocode queries every provider.
func (a *Aggregator) Geocode(ctx context.Context, query string) []domain.Result {
	return a.fanOut(ctx, "geocode", func(ctx context.Context, p domain.Geocoder) ([]domain.Result, error) {
		return p.Geocode(ctx, query)
	})
}

// Suggest queries every provider that can suggest.
func (a *Aggregator) Suggest(ctx context.Context, query string) []domain.Result {
	return a.fanOut(ctx, "suggest", func(ctx context.Context, p domain.Geocoder) ([]domain.Result, error) {
		s, ok := p.(domain.Suggester)
		if !ok {
			return nil, domain.ErrUnsupported
		}
		return s.Suggest(ctx, query)
	})
}

// Reverse queries every provider that can reverse geocode.
func (a *Aggregator) Reverse(ctx context.Context, pt domain.Point, scale float64) []domain.Result {
	return a.fanOut(ctx, "reverse", func(ctx context.Context, p domain.Geocoder) ([]domain.Result, error) {
		r, ok := p.(domain.Reverser)
		if !ok {
			return nil, domain.ErrUnsupported
		}
		return r.Reverse(ctx, pt, scale)
	})
}

func (a *Aggregator) fanOut(ctx context.Context, method string, call providerCall) []domain.Result {
	// One slot per provider keeps the merge order independent of completion order.
	slots := make([][]domain.Result, len(a.providers))

	var g errgroup.Group
	for i, p := range a.providers {
		g.Go(func() error {
			slots[i] = a.invoke(ctx, method, p, call)
			return nil
		})
	}
	_ = g.Wait() // invoke never returns an error

	total := 0
	for _, s := range slots {
		total += len(s)
	}
	merged := make([]domain.Result, 0, total)
	for _, s := range slots {
		merged = append(merged, s...)
	}
	return merged
}

type reply struct {
	results []domain.Result
	err     error
}

// invoke runs one provider call in its own goroutine so that a panic or a
// provider ignoring its context cannot escape or stall the fan-out.
func (a *Aggregator) invoke(ctx context.Context, method string, p domain.Geocoder, call providerCall) []domain.Result {
	name := p.Name()
	if a.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}

	start := time.Now()
	done := make(chan reply, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- reply{err: fmt.Errorf("%w: %v", errPanic, r)}
			}
		}()
		results, err := call(ctx, p)
		done <- reply{results: results, err: err}
	}()

	var r reply
	select {
	case r = <-done:
	case <-ctx.Done():
		r = reply{err: ctx.Err()}
	}

	outcome := classify(r)
	a.metrics.GeocodeRequests.WithLabelValues(name, method, outcome).Inc()
	if outcome == outcomeUnsupported {
		return nil
	}
	a.metrics.GeocodeDuration.WithLabelValues(name, method).Observe(time.Since(start).Seconds())

	if r.err != nil {
		a.logger.Warn("geocoding provider failed",
			"provider", name,
			"method", method,
			"outcome", outcome,
			"error", r.err,
		)
		return nil
	}
	return r.results
}

func classify(r reply) string {
	switch {
	case r.err == nil && len(r.results) == 0:
		return outcomeEmpty
	case r.err == nil:
		return outcomeSuccess
	case errors.Is(r.err, domain.ErrUnsupported):
		return outcomeUnsupported
	case errors.Is(r.err, errPanic):
		return outcomePanic
	case errors.Is(r.err, context.DeadlineExceeded):
		return outcomeTimeout
	default:
		return outcomeError
	}
}
