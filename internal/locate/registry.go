package locate

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/wordloc/internal/observability"
)

// ErrSessionNotFound is returned for unknown or expired session IDs.
var ErrSessionNotFound = errors.New("session not found")

// minSweepInterval bounds how often the registry scans for idle sessions.
const minSweepInterval = time.Second

// Factory builds the session for a freshly allocated ID.
type Factory func(id string) *Session

// Registry owns the live sessions and expires the idle ones.
type Registry struct {
	factory Factory
	ttl     time.Duration
	clock   clockwork.Clock
	logger  *slog.Logger
	metrics *observability.Metrics

	mu       sync.Mutex
	sessions map[string]*registered
	onExpire []func(id string)
}

type registered struct {
	session  *Session
	lastSeen time.Time
}

// NewRegistry creates an empty registry. Sessions idle longer than ttl are
// removed by Run.
func NewRegistry(factory Factory, ttl time.Duration, clock clockwork.Clock, logger *slog.Logger, metrics *observability.Metrics) *Registry {
	return &Registry{
		factory:  factory,
		ttl:      ttl,
		clock:    clock,
		logger:   logger,
		metrics:  metrics,
		sessions: make(map[string]*registered),
	}
}

// OnExpire registers a hook called with the ID of every expired or removed session.
func (r *Registry) OnExpire(fn func(id string)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onExpire = append(r.onExpire, fn)
}

// Create allocates a session and starts it from rawURL.
func (r *Registry) Create(ctx context.Context, rawURL string) *Session {
	id := uuid.NewString()
	s := r.factory(id)

	r.mu.Lock()
	r.sessions[id] = &registered{session: s, lastSeen: r.clock.Now()}
	n := len(r.sessions)
	r.mu.Unlock()

	r.metrics.SessionsActive.Set(float64(n))
	r.logger.Info("session created", "session", id)

	s.Start(ctx, rawURL)
	return s
}

// Get returns the session with id and marks it as seen.
func (r *Registry) Get(id string) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	reg, ok := r.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	reg.lastSeen = r.clock.Now()
	return reg.session, nil
}

// Remove drops a session immediately.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	_, ok := r.sessions[id]
	delete(r.sessions, id)
	n := len(r.sessions)
	hooks := r.onExpire
	r.mu.Unlock()

	if !ok {
		return
	}
	r.metrics.SessionsActive.Set(float64(n))
	for _, fn := range hooks {
		fn(id)
	}
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Sweep removes sessions idle for longer than the TTL and returns their IDs.
func (r *Registry) Sweep() []string {
	now := r.clock.Now()

	r.mu.Lock()
	var expired []string
	for id, reg := range r.sessions {
		if now.Sub(reg.lastSeen) > r.ttl {
			expired = append(expired, id)
			delete(r.sessions, id)
		}
	}
	n := len(r.sessions)
	hooks := r.onExpire
	r.mu.Unlock()

	if len(expired) == 0 {
		return nil
	}
	r.metrics.SessionsActive.Set(float64(n))
	for _, id := range expired {
		r.logger.Info("session expired", "session", id)
		for _, fn := range hooks {
			fn(id)
		}
	}
	return expired
}

// Run sweeps for idle sessions until ctx is cancelled.
func (r *Registry) Run(ctx context.Context) {
	ticker := r.clock.NewTicker(max(r.ttl/2, minSweepInterval))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			r.Sweep()
		}
	}
}
