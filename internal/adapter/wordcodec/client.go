// Package wordcodec is an HTTP client for the external word-code codec
// service.
package wordcodec

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/couchcryptid/wordloc/internal/domain"
	"github.com/couchcryptid/wordloc/internal/observability"
)

// Client implements domain.Codec against the codec's HTTP API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	metrics    *observability.Metrics
}

// NewClient creates a codec client for the service at baseURL.
func NewClient(baseURL string, timeout time.Duration, metrics *observability.Metrics) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    strings.TrimRight(baseURL, "/"),
		metrics:    metrics,
	}
}

// WordsToCoordinate decodes a dotted three-word code. The codec answers
// 422 for codes it cannot decode; that maps to domain.ErrDecode.
func (c *Client) WordsToCoordinate(ctx context.Context, code string) (domain.Point, error) {
	params := url.Values{"words": {code}}

	var body struct {
		Lat *float64 `json:"lat"`
		Lng *float64 `json:"lng"`
	}
	if err := c.get(ctx, "decode", "/words2latlon", params, &body); err != nil {
		return domain.Point{}, err
	}
	if body.Lat == nil || body.Lng == nil {
		return domain.Point{}, fmt.Errorf("decode %q: response missing coordinates", code)
	}
	return domain.Point{Lat: *body.Lat, Lng: *body.Lng}, nil
}

// CoordinateToWords encodes a point. precision is passed through to the
// codec unchanged.
func (c *Client) CoordinateToWords(ctx context.Context, lat, lng, precision float64) (string, error) {
	params := url.Values{
		"lat":       {strconv.FormatFloat(lat, 'f', -1, 64)},
		"lng":       {strconv.FormatFloat(lng, 'f', -1, 64)},
		"precision": {strconv.FormatFloat(precision, 'f', -1, 64)},
	}

	var body struct {
		Words string `json:"words"`
	}
	if err := c.get(ctx, "encode", "/latlon2words", params, &body); err != nil {
		return "", err
	}
	if body.Words == "" {
		return "", fmt.Errorf("encode %.6f,%.6f: empty response", lat, lng)
	}
	return body.Words, nil
}

func (c *Client) get(ctx context.Context, method, path string, params url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+params.Encode(), nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	c.metrics.GeocodeAPIDuration.WithLabelValues("codec", method).Observe(time.Since(start).Seconds())
	if err != nil {
		return fmt.Errorf("codec %s request: %w", method, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnprocessableEntity:
		_, _ = io.Copy(io.Discard, resp.Body)
		return fmt.Errorf("codec %s %s: %w", method, params.Encode(), domain.ErrDecode)
	case resp.StatusCode != http.StatusOK:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("codec API error: status %d: %s", resp.StatusCode, body)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
