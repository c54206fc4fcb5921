// Package nominatim implements free-text and reverse geocoding against an
// OpenStreetMap Nominatim server.
package nominatim

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/couchcryptid/wordloc/internal/domain"
	"github.com/couchcryptid/wordloc/internal/observability"
)

// maxZoom is the most detailed zoom Nominatim's reverse endpoint accepts.
const maxZoom = 18

// Client implements domain.Geocoder and domain.Reverser. There is no
// Suggest: the public Nominatim usage policy forbids autocomplete traffic.
type Client struct {
	httpClient *http.Client
	baseURL    string
	userAgent  string
	metrics    *observability.Metrics
}

// NewClient creates a Nominatim client. userAgent is required by the
// public server's usage policy.
func NewClient(baseURL, userAgent string, timeout time.Duration, metrics *observability.Metrics) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    strings.TrimRight(baseURL, "/"),
		userAgent:  userAgent,
		metrics:    metrics,
	}
}

func (c *Client) Name() string { return "nominatim" }

// Geocode runs a free-text search.
func (c *Client) Geocode(ctx context.Context, query string) ([]domain.Result, error) {
	params := url.Values{
		"format": {"jsonv2"},
		"q":      {query},
	}

	var places []place
	if err := c.get(ctx, "geocode", "/search", params, &places); err != nil {
		return nil, err
	}

	results := make([]domain.Result, 0, len(places))
	for _, p := range places {
		r, err := p.result()
		if err != nil {
			return nil, err
		}
		results = append(results, r)
	}
	return results, nil
}

// Reverse resolves p to the nearest named place at the detail level that
// matches scale.
func (c *Client) Reverse(ctx context.Context, p domain.Point, scale float64) ([]domain.Result, error) {
	params := url.Values{
		"format": {"jsonv2"},
		"lat":    {strconv.FormatFloat(p.Lat, 'f', -1, 64)},
		"lon":    {strconv.FormatFloat(p.Lng, 'f', -1, 64)},
		"zoom":   {strconv.Itoa(ZoomForScale(scale))},
	}

	var pl place
	if err := c.get(ctx, "reverse", "/reverse", params, &pl); err != nil {
		return nil, err
	}
	// Nominatim answers 200 with an error body when nothing is nearby.
	if pl.Error != "" {
		return nil, nil
	}
	r, err := pl.result()
	if err != nil {
		return nil, err
	}
	return []domain.Result{r}, nil
}

// ZoomForScale converts a CRS scale back to a zoom level in [0, 18]. NaN
// maps to 0 and +Inf to 18.
func ZoomForScale(scale float64) int {
	if !(scale > 256) {
		return 0
	}
	z := math.Round(math.Log2(scale / 256))
	if z >= maxZoom {
		return maxZoom
	}
	return int(z)
}

func (c *Client) get(ctx context.Context, method, path string, params url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+params.Encode(), nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	c.metrics.GeocodeAPIDuration.WithLabelValues("nominatim", method).Observe(time.Since(start).Seconds())
	if err != nil {
		return fmt.Errorf("nominatim %s request: %w", method, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("nominatim API error: status %d: %s", resp.StatusCode, body)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// Nominatim jsonv2 response types. Coordinates arrive as strings.

type place struct {
	Lat         string   `json:"lat"`
	Lon         string   `json:"lon"`
	DisplayName string   `json:"display_name"`
	BoundingBox []string `json:"boundingbox"` // [south, north, west, east]
	Error       string   `json:"error"`
}

func (p place) result() (domain.Result, error) {
	lat, err := strconv.ParseFloat(p.Lat, 64)
	if err != nil {
		return domain.Result{}, fmt.Errorf("parse lat %q: %w", p.Lat, err)
	}
	lng, err := strconv.ParseFloat(p.Lon, 64)
	if err != nil {
		return domain.Result{}, fmt.Errorf("parse lon %q: %w", p.Lon, err)
	}

	center := domain.Point{Lat: lat, Lng: lng}
	r := domain.Result{Name: p.DisplayName, Center: center, Bounds: domain.PointBounds(center)}
	if b, ok := parseBoundingBox(p.BoundingBox); ok {
		r.Bounds = b
	}
	return r, nil
}

func parseBoundingBox(bb []string) (*domain.Bounds, bool) {
	if len(bb) != 4 {
		return nil, false
	}
	var v [4]float64
	for i, s := range bb {
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, false
		}
		v[i] = f
	}
	return &domain.Bounds{
		SouthWest: domain.Point{Lat: v[0], Lng: v[2]},
		NorthEast: domain.Point{Lat: v[1], Lng: v[3]},
	}, true
}
