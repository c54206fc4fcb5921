package geocode

import (
	"context"
	"regexp"
	"strconv"
	"strings"

	"github.com/couchcryptid/wordloc/internal/domain"
)

var (
	// decimalRe matches "51.5074, -0.1278", "51.5074 -0.1278" and the
	// "geo:51.5074,-0.1278" URIs produced by marker popups.
	decimalRe = regexp.MustCompile(`^(?i:geo:)?\s*([+-]?\d+(?:\.\d+)?)\s*(?:,\s*|\s+)([+-]?\d+(?:\.\d+)?)$`)

	// hemisphereRe matches "51.5074 N 0.1278 W" with optional degree signs and comma.
	hemisphereRe = regexp.MustCompile(`^(?i)(\d+(?:\.\d+)?)\s*°?\s*([NS])\s*,?\s*(\d+(?:\.\d+)?)\s*°?\s*([EW])$`)
)

// Coordinates resolves raw "lat, lng" text to a point result and hands any
// other query, and every reverse lookup, to next, which may be nil.
type Coordinates struct {
	next domain.Geocoder
}

// NewCoordinates creates the coordinate provider.
func NewCoordinates(next domain.Geocoder) *Coordinates {
	return &Coordinates{next: next}
}

func (c *Coordinates) Name() string {
	if c.next == nil {
		return "coordinates"
	}
	return "coordinates+" + c.next.Name()
}

// Geocode parses query as a coordinate pair, falling back to next.
func (c *Coordinates) Geocode(ctx context.Context, query string) ([]domain.Result, error) {
	if p, ok := ParseCoordinates(query); ok {
		return []domain.Result{pointResult(query, p)}, nil
	}
	if c.next == nil {
		return nil, nil
	}
	return c.next.Geocode(ctx, query)
}

// Suggest parses query as a coordinate pair, falling back to next's
// suggestions when next can suggest.
func (c *Coordinates) Suggest(ctx context.Context, query string) ([]domain.Result, error) {
	if p, ok := ParseCoordinates(query); ok {
		return []domain.Result{pointResult(query, p)}, nil
	}
	s, ok := c.next.(domain.Suggester)
	if !ok {
		return nil, nil
	}
	return s.Suggest(ctx, query)
}

// Reverse delegates to next. Without a reversing next provider it reports
// domain.ErrUnsupported so the call is counted as unsupported.
func (c *Coordinates) Reverse(ctx context.Context, p domain.Point, scale float64) ([]domain.Result, error) {
	r, ok := c.next.(domain.Reverser)
	if !ok {
		return nil, domain.ErrUnsupported
	}
	return r.Reverse(ctx, p, scale)
}

func pointResult(query string, p domain.Point) domain.Result {
	return domain.Result{
		Name:   strings.TrimSpace(query),
		Center: p,
		Bounds: domain.PointBounds(p),
	}
}

// ParseCoordinates extracts a latitude/longitude pair from text.
// Out-of-range values are rejected.
func ParseCoordinates(text string) (domain.Point, bool) {
	text = strings.TrimSpace(text)

	if m := decimalRe.FindStringSubmatch(text); m != nil {
		lat, errLat := strconv.ParseFloat(m[1], 64)
		lng, errLng := strconv.ParseFloat(m[2], 64)
		if errLat != nil || errLng != nil {
			return domain.Point{}, false
		}
		return inRange(domain.Point{Lat: lat, Lng: lng})
	}

	if m := hemisphereRe.FindStringSubmatch(text); m != nil {
		lat, errLat := strconv.ParseFloat(m[1], 64)
		lng, errLng := strconv.ParseFloat(m[3], 64)
		if errLat != nil || errLng != nil {
			return domain.Point{}, false
		}
		if strings.EqualFold(m[2], "S") {
			lat = -lat
		}
		if strings.EqualFold(m[4], "W") {
			lng = -lng
		}
		return inRange(domain.Point{Lat: lat, Lng: lng})
	}

	return domain.Point{}, false
}

func inRange(p domain.Point) (domain.Point, bool) {
	if p.Lat < -90 || p.Lat > 90 || p.Lng < -180 || p.Lng > 180 {
		return domain.Point{}, false
	}
	return p, true
}
