package locate

import (
	"context"
	"fmt"
	"html"
	"log/slog"
	"sync"

	"github.com/couchcryptid/wordloc/internal/domain"
	"github.com/couchcryptid/wordloc/internal/observability"
)

// State is the synchronizer's lifecycle state.
type State string

const (
	StateIdle             State = "idle"
	StateAwaitingFirstFix State = "awaiting_first_fix"
	StateTracking         State = "tracking"
)

// DefaultViewport is the map view before anything has been resolved.
var DefaultViewport = Viewport{Center: domain.Point{Lat: 51.505, Lng: -0.09}, Zoom: 15}

// Resolver is the merged geocoding surface a session resolves through.
// *geocode.Aggregator satisfies it.
type Resolver interface {
	Geocode(ctx context.Context, query string) []domain.Result
	Reverse(ctx context.Context, p domain.Point, scale float64) []domain.Result
}

// View receives presentation changes for one session.
type View interface {
	ShowMarker(m Marker)
	SetTitle(title string)
	SetViewport(v Viewport)
	// WriteURL pushes a history entry without producing a navigation event.
	WriteURL(rawURL string)
	// ShowFix updates the "where am I" indicator.
	ShowFix(f Fix)
}

// Publisher receives every current location change. Publish must not block.
type Publisher interface {
	Publish(event domain.LocationEvent)
}

// Fix is a raw geolocation reading.
type Fix struct {
	Point      domain.Point `json:"point"`
	Accuracy   float64      `json:"accuracy"`
	Accurate   bool         `json:"accurate"`
	Cell       string       `json:"cell,omitempty"`
	Resolution int          `json:"resolution"`
}

// Marker is the single marker a session shows.
type Marker struct {
	Position domain.Point `json:"position"`
	Popup    string       `json:"popup"`
	Open     bool         `json:"open"`
}

// Viewport is the visible map area.
type Viewport struct {
	Center domain.Point `json:"center"`
	Zoom   float64      `json:"zoom"`
}

// Options configure session behaviour.
type Options struct {
	URLFormat         URLFormat
	Zoom              float64 // zoom used when recentering on a result
	AccuracyThreshold float64 // metres; fixes at or below are accurate
	TitleSuffix       string
	InitialViewport   Viewport
}

// Snapshot is a point-in-time copy of a session's context.
type Snapshot struct {
	ID         string                  `json:"id"`
	State      State                   `json:"state"`
	Current    *domain.CurrentLocation `json:"current,omitempty"`
	Activating bool                    `json:"activating"`
	Fix        *Fix                    `json:"fix,omitempty"`
	Marker     *Marker                 `json:"marker,omitempty"`
	Viewport   Viewport                `json:"viewport"`
	Title      string                  `json:"title"`
	URL        string                  `json:"url"`
}

// Session is the location synchronizer for one browser session.
// All methods are safe for concurrent use. The lock is not held while
// geocoding; the sequence number decides which resolution is applied.
type Session struct {
	id        string
	resolver  Resolver
	view      View
	publisher Publisher
	opts      Options
	logger    *slog.Logger
	metrics   *observability.Metrics

	mu         sync.Mutex
	state      State
	current    *domain.CurrentLocation
	activating bool
	fix        *Fix
	marker     *Marker
	viewport   Viewport
	title      string
	url        string
	written    string // URL this session last wrote
	seq        uint64
}

// NewSession creates an idle session. publisher may be nil.
func NewSession(id string, resolver Resolver, view View, publisher Publisher, opts Options, logger *slog.Logger, metrics *observability.Metrics) *Session {
	if opts.InitialViewport == (Viewport{}) {
		opts.InitialViewport = DefaultViewport
	}
	return &Session{
		id:        id,
		resolver:  resolver,
		view:      view,
		publisher: publisher,
		opts:      opts,
		logger:    logger.With("session", id),
		metrics:   metrics,
		state:     StateIdle,
		viewport:  opts.InitialViewport,
	}
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Start resolves the location encoded in the page URL the session was opened
// with. When there is none, or it does not resolve, the session waits for
// the first accurate geolocation fix.
func (s *Session) Start(ctx context.Context, rawURL string) {
	s.metrics.SessionEvents.WithLabelValues("start").Inc()

	s.mu.Lock()
	s.url = rawURL
	text, ok := s.opts.URLFormat.Extract(rawURL)
	seq := s.nextSeq()
	s.mu.Unlock()

	var results []domain.Result
	if ok {
		results = s.resolver.Geocode(ctx, text)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if len(results) > 0 {
		if s.isStale(seq) {
			return
		}
		s.apply(results[0], domain.SourceURL, false)
		return
	}

	s.logger.Debug("page URL did not resolve, awaiting first fix", "url", rawURL)
	if s.current == nil {
		s.state = StateAwaitingFirstFix
		s.activating = true
	}
}

// LocationFound records a geolocation fix. An accurate fix consumes a raised
// activation flag and becomes the current location.
func (s *Session) LocationFound(ctx context.Context, p domain.Point, accuracy float64) {
	s.metrics.SessionEvents.WithLabelValues("locationfound").Inc()

	fix := Fix{Point: p, Accuracy: accuracy, Accurate: accuracy <= s.opts.AccuracyThreshold}
	cell, res, err := CellFor(p, accuracy)
	if err != nil {
		s.logger.Warn("fix cell lookup failed", "error", err)
	} else {
		fix.Cell, fix.Resolution = cell, res
	}

	s.mu.Lock()
	s.fix = &fix
	s.view.ShowFix(fix)
	if !s.activating || !fix.Accurate {
		s.mu.Unlock()
		return
	}
	s.activating = false
	seq := s.nextSeq()
	scale := domain.ScaleForZoom(s.viewport.Zoom)
	s.mu.Unlock()

	s.reverse(ctx, p, scale, seq, domain.SourceGeolocation)
}

// LocateClicked handles the locate control: an accurate known fix is
// resolved immediately, otherwise the next accurate fix will be.
func (s *Session) LocateClicked(ctx context.Context) {
	s.metrics.SessionEvents.WithLabelValues("locate").Inc()

	s.mu.Lock()
	if s.fix == nil || !s.fix.Accurate {
		s.activating = true
		if s.current == nil {
			s.state = StateAwaitingFirstFix
		}
		s.mu.Unlock()
		return
	}
	p := s.fix.Point
	seq := s.nextSeq()
	scale := domain.ScaleForZoom(s.viewport.Zoom)
	s.mu.Unlock()

	s.reverse(ctx, p, scale, seq, domain.SourceGeolocation)
}

// Select resolves a point chosen from search results.
func (s *Session) Select(ctx context.Context, p domain.Point) {
	s.metrics.SessionEvents.WithLabelValues("select").Inc()
	s.selectPoint(ctx, p)
}

// MapClick resolves a point clicked on the map.
func (s *Session) MapClick(ctx context.Context, p domain.Point) {
	s.metrics.SessionEvents.WithLabelValues("click").Inc()
	s.selectPoint(ctx, p)
}

func (s *Session) selectPoint(ctx context.Context, p domain.Point) {
	s.mu.Lock()
	seq := s.nextSeq()
	scale := domain.ScaleForZoom(s.viewport.Zoom)
	s.mu.Unlock()

	s.reverse(ctx, p, scale, seq, domain.SourceSelection)
}

// Navigate handles back/forward navigation to rawURL. The activation flag
// is left alone and a URL that does not resolve changes nothing. Navigation
// to the URL this session wrote last is its own echo and is ignored.
func (s *Session) Navigate(ctx context.Context, rawURL string) {
	s.metrics.SessionEvents.WithLabelValues("navigate").Inc()

	s.mu.Lock()
	if s.written != "" && rawURL == s.written {
		s.mu.Unlock()
		s.logger.Debug("ignoring navigation to self-written URL", "url", rawURL)
		return
	}
	s.written = ""
	s.url = rawURL
	text, ok := s.opts.URLFormat.Extract(rawURL)
	if !ok {
		s.mu.Unlock()
		return
	}
	seq := s.nextSeq()
	s.mu.Unlock()

	results := s.resolver.Geocode(ctx, text)

	s.mu.Lock()
	defer s.mu.Unlock()
	if len(results) == 0 {
		s.logger.Debug("navigation URL did not resolve", "url", rawURL)
		return
	}
	if s.isStale(seq) {
		return
	}
	s.apply(results[0], domain.SourceURL, false)
}

// MoveViewport records the client's current map view. Its zoom sets the
// precision of later reverse lookups.
func (s *Session) MoveViewport(center domain.Point, zoom float64) {
	s.metrics.SessionEvents.WithLabelValues("viewport").Inc()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.viewport = Viewport{Center: center, Zoom: zoom}
}

// Snapshot returns a copy of the session context.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot()
}

// Attach calls fn with a snapshot while holding the session lock. No View
// call can happen between the snapshot and fn returning, so a subscriber
// registered inside fn sees every later change exactly once.
func (s *Session) Attach(fn func(Snapshot)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s.snapshot())
}

// snapshot must be called with mu held.
func (s *Session) snapshot() Snapshot {
	snap := Snapshot{
		ID:         s.id,
		State:      s.state,
		Activating: s.activating,
		Viewport:   s.viewport,
		Title:      s.title,
		URL:        s.url,
	}
	if s.current != nil {
		c := *s.current
		snap.Current = &c
	}
	if s.fix != nil {
		f := *s.fix
		snap.Fix = &f
	}
	if s.marker != nil {
		m := *s.marker
		snap.Marker = &m
	}
	return snap
}

func (s *Session) reverse(ctx context.Context, p domain.Point, scale float64, seq uint64, source domain.Source) {
	results := s.resolver.Reverse(ctx, p, scale)

	s.mu.Lock()
	defer s.mu.Unlock()
	if len(results) == 0 {
		s.logger.Debug("reverse lookup returned nothing", "point", p.String())
		return
	}
	if s.isStale(seq) {
		return
	}
	s.apply(results[0], source, true)
}

// nextSeq must be called with mu held.
func (s *Session) nextSeq() uint64 {
	s.seq++
	return s.seq
}

// isStale must be called with mu held.
func (s *Session) isStale(seq uint64) bool {
	if seq == s.seq {
		return false
	}
	s.metrics.StaleResults.Inc()
	s.logger.Debug("discarding stale resolution", "seq", seq, "latest", s.seq)
	return true
}

// apply makes r the current location. Must be called with mu held.
func (s *Session) apply(r domain.Result, source domain.Source, writeURL bool) {
	loc := domain.NewCurrentLocation(r, source)
	s.current = &loc
	s.state = StateTracking

	m := Marker{Position: r.Center, Popup: PopupHTML(r), Open: true}
	s.marker = &m
	s.view.ShowMarker(m)

	s.title = r.Name + s.opts.TitleSuffix
	s.view.SetTitle(s.title)

	s.viewport = Viewport{Center: r.Center, Zoom: s.opts.Zoom}
	s.view.SetViewport(s.viewport)

	if writeURL {
		u := s.opts.URLFormat.Build(s.url, r.Name)
		s.url = u
		s.written = u
		s.view.WriteURL(u)
	}

	s.metrics.LocationChanges.WithLabelValues(string(source)).Inc()
	s.logger.Info("location changed", "name", r.Name, "source", source, "point", r.Center.String())

	if s.publisher != nil {
		s.publisher.Publish(domain.NewLocationEvent(s.id, loc))
	}
}

// PopupHTML renders the marker popup for r: its name and a geo: link.
func PopupHTML(r domain.Result) string {
	ll := r.Center.String()
	return fmt.Sprintf(
		`<div class="popup"><p class="name">%s</p><p class="latlng"><a target="_blank" href="geo:%s">%s</a></p></div>`,
		html.EscapeString(r.Name), ll, ll,
	)
}
