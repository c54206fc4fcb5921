package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/go-chi/chi/v5"

	"github.com/couchcryptid/wordloc/internal/domain"
	"github.com/couchcryptid/wordloc/internal/locate"
)

// Event types accepted on the session events endpoint and the stream.
const (
	EventLocationFound = "locationfound"
	EventLocate        = "locate"
	EventSelect        = "select"
	EventClick         = "click"
	EventNavigate      = "navigate"
	EventViewport      = "viewport"
)

const (
	maxBodyBytes = 64 << 10
	maxZoom      = 22
)

var errBadRequest = errors.New("bad request")

// Geocoder is the merged lookup surface. *geocode.Aggregator satisfies it.
type Geocoder interface {
	Geocode(ctx context.Context, query string) []domain.Result
	Suggest(ctx context.Context, query string) []domain.Result
	Reverse(ctx context.Context, p domain.Point, scale float64) []domain.Result
}

// Sessions creates and finds sessions. *locate.Registry satisfies it.
type Sessions interface {
	Create(ctx context.Context, rawURL string) *locate.Session
	Get(id string) (*locate.Session, error)
}

// Event is a client-side occurrence forwarded to a session.
type Event struct {
	Type     string   `json:"type"`
	URL      string   `json:"url,omitempty"`
	Lat      *float64 `json:"lat,omitempty"`
	Lng      *float64 `json:"lng,omitempty"`
	Accuracy *float64 `json:"accuracy,omitempty"`
	Zoom     *float64 `json:"zoom,omitempty"`
}

type resultsResponse struct {
	Results []domain.Result `json:"results"`
}

type createSessionRequest struct {
	URL string `json:"url"`
}

// API serves the /api/v1 routes.
type API struct {
	geocoder Geocoder
	sessions Sessions
	hub      *Hub
	zoom     float64
	logger   *slog.Logger
}

// NewAPI creates the API. zoom is the default for reverse lookups that do
// not name one.
func NewAPI(geocoder Geocoder, sessions Sessions, hub *Hub, zoom float64, logger *slog.Logger) *API {
	return &API{geocoder: geocoder, sessions: sessions, hub: hub, zoom: zoom, logger: logger}
}

// Routes mounts the API on r.
func (a *API) Routes(r chi.Router) {
	r.Get("/geocode", a.handleGeocode)
	r.Get("/suggest", a.handleSuggest)
	r.Get("/reverse", a.handleReverse)

	r.Route("/sessions", func(r chi.Router) {
		r.Post("/", a.handleCreateSession)
		r.Get("/{id}", a.handleGetSession)
		r.Post("/{id}/events", a.handleEvent)
		r.Get("/{id}/stream", a.handleStream)
	})
}

func (a *API) handleGeocode(w http.ResponseWriter, r *http.Request) {
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if q == "" {
		writeError(w, http.StatusBadRequest, "missing query parameter q")
		return
	}
	writeResults(w, a.geocoder.Geocode(r.Context(), q))
}

func (a *API) handleSuggest(w http.ResponseWriter, r *http.Request) {
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if q == "" {
		writeError(w, http.StatusBadRequest, "missing query parameter q")
		return
	}
	writeResults(w, a.geocoder.Suggest(r.Context(), q))
}

func (a *API) handleReverse(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	lat, err := parseQueryFloat(query.Get("lat"), "lat")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	lng, err := parseQueryFloat(query.Get("lng"), "lng")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	p := domain.Point{Lat: lat, Lng: lng}
	if err := validatePoint(p); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	zoom := a.zoom
	if raw := query.Get("zoom"); raw != "" {
		if zoom, err = parseQueryFloat(raw, "zoom"); err != nil || !validZoom(zoom) {
			writeError(w, http.StatusBadRequest, "invalid zoom")
			return
		}
	}
	writeResults(w, a.geocoder.Reverse(r.Context(), p, domain.ScaleForZoom(zoom)))
}

func (a *API) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s := a.sessions.Create(r.Context(), req.URL)
	writeJSON(w, http.StatusCreated, s.Snapshot())
}

func (a *API) handleGetSession(w http.ResponseWriter, r *http.Request) {
	s, ok := a.session(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, s.Snapshot())
}

func (a *API) handleEvent(w http.ResponseWriter, r *http.Request) {
	s, ok := a.session(w, r)
	if !ok {
		return
	}
	var e Event
	if err := decodeBody(w, r, &e); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := Dispatch(r.Context(), s, e); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, s.Snapshot())
}

func (a *API) handleStream(w http.ResponseWriter, r *http.Request) {
	s, ok := a.session(w, r)
	if !ok {
		return
	}
	id := s.ID()
	live := func() bool {
		_, err := a.sessions.Get(id)
		return err == nil
	}
	a.hub.Serve(w, r, s, live, func(ctx context.Context, msg []byte) *Frame {
		current, err := a.sessions.Get(id)
		if err != nil {
			return &Frame{Type: FrameError, Error: err.Error()}
		}
		var e Event
		if err := json.Unmarshal(msg, &e); err != nil {
			return &Frame{Type: FrameError, Error: fmt.Sprintf("decode event: %v", err)}
		}
		if err := Dispatch(ctx, current, e); err != nil {
			return &Frame{Type: FrameError, Error: err.Error()}
		}
		return nil
	})
}

// session looks up the {id} session, writing 404 when it is unknown.
func (a *API) session(w http.ResponseWriter, r *http.Request) (*locate.Session, bool) {
	s, err := a.sessions.Get(chi.URLParam(r, "id"))
	if errors.Is(err, locate.ErrSessionNotFound) {
		writeError(w, http.StatusNotFound, err.Error())
		return nil, false
	}
	if err != nil {
		a.logger.Error("session lookup failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return nil, false
	}
	return s, true
}

// Dispatch applies e to s. Malformed events fail without touching s.
func Dispatch(ctx context.Context, s *locate.Session, e Event) error {
	switch e.Type {
	case EventLocationFound:
		p, err := e.point()
		if err != nil {
			return err
		}
		if e.Accuracy == nil || *e.Accuracy < 0 {
			return fmt.Errorf("%w: locationfound needs a non-negative accuracy", errBadRequest)
		}
		s.LocationFound(ctx, p, *e.Accuracy)
	case EventLocate:
		s.LocateClicked(ctx)
	case EventSelect, EventClick:
		p, err := e.point()
		if err != nil {
			return err
		}
		if e.Type == EventSelect {
			s.Select(ctx, p)
		} else {
			s.MapClick(ctx, p)
		}
	case EventNavigate:
		if e.URL == "" {
			return fmt.Errorf("%w: navigate needs a url", errBadRequest)
		}
		s.Navigate(ctx, e.URL)
	case EventViewport:
		p, err := e.point()
		if err != nil {
			return err
		}
		if e.Zoom == nil || !validZoom(*e.Zoom) {
			return fmt.Errorf("%w: viewport needs a zoom between 0 and %d", errBadRequest, maxZoom)
		}
		s.MoveViewport(p, *e.Zoom)
	default:
		return fmt.Errorf("%w: unknown event type %q", errBadRequest, e.Type)
	}
	return nil
}

func (e Event) point() (domain.Point, error) {
	if e.Lat == nil || e.Lng == nil {
		return domain.Point{}, fmt.Errorf("%w: %s needs lat and lng", errBadRequest, e.Type)
	}
	p := domain.Point{Lat: *e.Lat, Lng: *e.Lng}
	return p, validatePoint(p)
}

func validatePoint(p domain.Point) error {
	if p.Lat < -90 || p.Lat > 90 || p.Lng < -180 || p.Lng > 180 {
		return fmt.Errorf("%w: coordinates out of range: %s", errBadRequest, p)
	}
	return nil
}

func validZoom(z float64) bool {
	return z >= 0 && z <= maxZoom
}

func parseQueryFloat(raw, name string) (float64, error) {
	if raw == "" {
		return 0, fmt.Errorf("%w: missing query parameter %s", errBadRequest, name)
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: invalid %s %q", errBadRequest, name, raw)
	}
	return v, nil
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: decode body: %v", errBadRequest, err)
	}
	return nil
}

func writeResults(w http.ResponseWriter, results []domain.Result) {
	if results == nil {
		results = []domain.Result{}
	}
	writeJSON(w, http.StatusOK, resultsResponse{Results: results})
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	sharedobs.WriteJSON(w, status, v)
}
