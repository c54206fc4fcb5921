package mapbox

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/couchcryptid/wordloc/internal/domain"
	"github.com/couchcryptid/wordloc/internal/observability"
)

const (
	defaultBaseURL = "https://api.mapbox.com/geocoding/v5/mapbox.places"
	// Forward and suggestion lookups return up to this many features.
	resultLimit = 5
)

// Client implements domain.Geocoder, domain.Suggester and domain.Reverser
// using the Mapbox Geocoding API.
type Client struct {
	token      string
	httpClient *http.Client
	baseURL    string
	metrics    *observability.Metrics
	logger     *slog.Logger
}

// NewClient creates a Mapbox geocoding client.
func NewClient(token string, timeout time.Duration, metrics *observability.Metrics, logger *slog.Logger) *Client {
	return &Client{
		token: token,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		baseURL: defaultBaseURL,
		metrics: metrics,
		logger:  logger,
	}
}

func (c *Client) Name() string { return "mapbox" }

// Geocode converts free text to places.
func (c *Client) Geocode(ctx context.Context, query string) ([]domain.Result, error) {
	return c.forward(ctx, "geocode", query, false)
}

// Suggest runs the same search in autocomplete mode.
func (c *Client) Suggest(ctx context.Context, query string) ([]domain.Result, error) {
	return c.forward(ctx, "suggest", query, true)
}

func (c *Client) forward(ctx context.Context, method, query string, autocomplete bool) ([]domain.Result, error) {
	u := fmt.Sprintf("%s/%s.json", c.baseURL, url.PathEscape(query))
	params := url.Values{
		"access_token": {c.token},
		"limit":        {fmt.Sprint(resultLimit)},
		"autocomplete": {fmt.Sprint(autocomplete)},
	}
	return c.doRequest(ctx, u+"?"+params.Encode(), method)
}

// Reverse converts coordinates to the single best-matching place.
func (c *Client) Reverse(ctx context.Context, p domain.Point, _ float64) ([]domain.Result, error) {
	// Mapbox uses lon,lat order.
	coord := fmt.Sprintf("%.6f,%.6f", p.Lng, p.Lat)
	u := fmt.Sprintf("%s/%s.json", c.baseURL, coord)
	params := url.Values{
		"access_token": {c.token},
		"limit":        {"1"},
	}
	return c.doRequest(ctx, u+"?"+params.Encode(), "reverse")
}

func (c *Client) doRequest(ctx context.Context, fullURL, method string) ([]domain.Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	c.metrics.GeocodeAPIDuration.WithLabelValues("mapbox", method).Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, fmt.Errorf("%s geocode request: %w", method, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("mapbox API error: status %d: %s", resp.StatusCode, body)
	}

	var mapboxResp response
	if err := json.NewDecoder(resp.Body).Decode(&mapboxResp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	results := make([]domain.Result, 0, len(mapboxResp.Features))
	for _, f := range mapboxResp.Features {
		if len(f.Center) != 2 {
			c.logger.Debug("mapbox feature without center", "place_name", f.PlaceName)
			continue
		}
		center := domain.Point{Lat: f.Center[1], Lng: f.Center[0]}
		r := domain.Result{
			Name:   f.PlaceName,
			Center: center,
			Bounds: domain.PointBounds(center),
		}
		if len(f.BBox) == 4 {
			r.Bounds = &domain.Bounds{
				SouthWest: domain.Point{Lat: f.BBox[1], Lng: f.BBox[0]},
				NorthEast: domain.Point{Lat: f.BBox[3], Lng: f.BBox[2]},
			}
		}
		results = append(results, r)
	}
	return results, nil
}

// Mapbox API response types.

type response struct {
	Features []feature `json:"features"`
}

type feature struct {
	Center    []float64 `json:"center"` // [lon, lat]
	BBox      []float64 `json:"bbox"`   // [minLon, minLat, maxLon, maxLat]
	PlaceName string    `json:"place_name"`
	Text      string    `json:"text"`
	Relevance float64   `json:"relevance"`
}
