package locate

import (
	"context"
	"io"
	"log/slog"
	"sync"

	"github.com/couchcryptid/wordloc/internal/domain"
	"github.com/couchcryptid/wordloc/internal/observability"
)

var (
	london = domain.Point{Lat: 51.5074, Lng: -0.1278}
	paris  = domain.Point{Lat: 48.8566, Lng: 2.3522}

	londonResult = domain.Result{Name: "table.lamp.spoon", Center: london, Bounds: domain.PointBounds(london)}
	parisResult  = domain.Result{Name: "chair.fork.cup", Center: paris, Bounds: domain.PointBounds(paris)}
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeResolver answers from fixed tables. A gate registered for a query or
// point blocks that lookup until the channel is closed.
type fakeResolver struct {
	mu       sync.Mutex
	forward  map[string][]domain.Result
	reverse  map[domain.Point][]domain.Result
	gates    map[any]chan struct{}
	entered  chan any
	scales   []float64
	geocodes []string
}

func newFakeResolver() *fakeResolver {
	return &fakeResolver{
		forward: map[string][]domain.Result{
			"table.lamp.spoon": {londonResult},
			"chair.fork.cup":   {parisResult},
		},
		reverse: map[domain.Point][]domain.Result{
			london: {londonResult},
			paris:  {parisResult},
		},
		gates:   map[any]chan struct{}{},
		entered: make(chan any, 256),
	}
}

func (f *fakeResolver) gate(key any) chan struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch := make(chan struct{})
	f.gates[key] = ch
	return ch
}

func (f *fakeResolver) wait(key any) {
	f.mu.Lock()
	ch := f.gates[key]
	f.mu.Unlock()
	f.entered <- key
	if ch != nil {
		<-ch
	}
}

func (f *fakeResolver) Geocode(_ context.Context, query string) []domain.Result {
	f.mu.Lock()
	f.geocodes = append(f.geocodes, query)
	f.mu.Unlock()
	f.wait(query)
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.forward[query]
}

func (f *fakeResolver) Reverse(_ context.Context, p domain.Point, scale float64) []domain.Result {
	f.mu.Lock()
	f.scales = append(f.scales, scale)
	f.mu.Unlock()
	f.wait(p)
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reverse[p]
}

// recordingView records every presentation call.
type recordingView struct {
	mu        sync.Mutex
	markers   []Marker
	titles    []string
	viewports []Viewport
	urls      []string
	fixes     []Fix
}

func (v *recordingView) ShowMarker(m Marker) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.markers = append(v.markers, m)
}

func (v *recordingView) SetTitle(title string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.titles = append(v.titles, title)
}

func (v *recordingView) SetViewport(vp Viewport) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.viewports = append(v.viewports, vp)
}

func (v *recordingView) WriteURL(rawURL string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.urls = append(v.urls, rawURL)
}

func (v *recordingView) ShowFix(f Fix) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.fixes = append(v.fixes, f)
}

func (v *recordingView) writtenURLs() []string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]string(nil), v.urls...)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []domain.LocationEvent
}

func (p *recordingPublisher) Publish(e domain.LocationEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
}

func testOptions() Options {
	return Options{
		URLFormat:         URLFormat{Mode: ModeHash, BasePath: "/"},
		Zoom:              17,
		AccuracyThreshold: 100,
		TitleSuffix:       " - wordloc",
	}
}

type fixture struct {
	session   *Session
	resolver  *fakeResolver
	view      *recordingView
	publisher *recordingPublisher
	metrics   *observability.Metrics
}

func newFixture() *fixture {
	f := &fixture{
		resolver:  newFakeResolver(),
		view:      &recordingView{},
		publisher: &recordingPublisher{},
		metrics:   observability.NewMetricsForTesting(),
	}
	f.session = NewSession("s1", f.resolver, f.view, f.publisher, testOptions(), discardLogger(), f.metrics)
	return f
}
