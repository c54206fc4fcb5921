package mapbox

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/wordloc/internal/domain"
	"github.com/couchcryptid/wordloc/internal/observability"
)

const (
	testToken         = "test-token"
	contentTypeJSON   = "application/json"
	headerContentType = "Content-Type"
)

func testMetrics() *observability.Metrics {
	return observability.NewMetricsForTesting()
}

func testClient(baseURL string) *Client {
	return &Client{
		token:      testToken,
		httpClient: &http.Client{Timeout: 5 * time.Second},
		baseURL:    baseURL,
		metrics:    testMetrics(),
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func TestClient_Geocode_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Path, "Austin")
		assert.Equal(t, "5", r.URL.Query().Get("limit"))
		assert.Equal(t, "false", r.URL.Query().Get("autocomplete"))
		assert.Equal(t, testToken, r.URL.Query().Get("access_token"))

		resp := response{
			Features: []feature{
				{
					Center:    []float64{-97.7431, 30.2672},
					BBox:      []float64{-98.0, 30.0, -97.5, 30.5},
					PlaceName: "Austin, Texas, United States",
					Text:      "Austin",
					Relevance: 0.95,
				},
				{
					Center:    []float64{-92.97, 43.67},
					PlaceName: "Austin, Minnesota, United States",
					Text:      "Austin",
					Relevance: 0.9,
				},
			},
		}
		w.Header().Set(headerContentType, contentTypeJSON)
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
	defer srv.Close()

	c := testClient(srv.URL)
	results, err := c.Geocode(context.Background(), "Austin")
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.Equal(t, "Austin, Texas, United States", results[0].Name)
	assert.Equal(t, domain.Point{Lat: 30.2672, Lng: -97.7431}, results[0].Center)
	assert.Equal(t, &domain.Bounds{
		SouthWest: domain.Point{Lat: 30.0, Lng: -98.0},
		NorthEast: domain.Point{Lat: 30.5, Lng: -97.5},
	}, results[0].Bounds)
	assert.Equal(t, domain.PointBounds(results[1].Center), results[1].Bounds)
}

func TestClient_Suggest_Autocomplete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "true", r.URL.Query().Get("autocomplete"))
		w.Header().Set(headerContentType, contentTypeJSON)
		require.NoError(t, json.NewEncoder(w).Encode(response{Features: []feature{
			{Center: []float64{-97.7431, 30.2672}, PlaceName: "Austin, Texas"},
		}}))
	}))
	defer srv.Close()

	results, err := testClient(srv.URL).Suggest(context.Background(), "Aus")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "Austin, Texas", results[0].Name)
}

func TestClient_Reverse_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Path, "-97.743100,30.267200")
		assert.Equal(t, "1", r.URL.Query().Get("limit"))
		resp := response{
			Features: []feature{
				{
					Center:    []float64{-97.7431, 30.2672},
					PlaceName: "Austin, Travis County, Texas",
					Text:      "Austin",
					Relevance: 0.98,
				},
			},
		}
		w.Header().Set(headerContentType, contentTypeJSON)
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
	defer srv.Close()

	c := testClient(srv.URL)
	results, err := c.Reverse(context.Background(), domain.Point{Lat: 30.2672, Lng: -97.7431}, domain.ScaleForZoom(17))
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "Austin, Travis County, Texas", results[0].Name)
}

func TestClient_Geocode_NoResults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set(headerContentType, contentTypeJSON)
		require.NoError(t, json.NewEncoder(w).Encode(response{Features: []feature{}}))
	}))
	defer srv.Close()

	results, err := testClient(srv.URL).Geocode(context.Background(), "NONEXISTENT")
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestClient_Geocode_SkipsFeaturesWithoutCenter(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set(headerContentType, contentTypeJSON)
		require.NoError(t, json.NewEncoder(w).Encode(response{Features: []feature{{PlaceName: "broken"}}}))
	}))
	defer srv.Close()

	results, err := testClient(srv.URL).Geocode(context.Background(), "broken")
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestClient_Geocode_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"message":"Not Authorized"}`))
	}))
	defer srv.Close()

	c := testClient(srv.URL)
	c.token = "bad-token"

	_, err := c.Geocode(context.Background(), "Austin")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
}

func TestClient_Geocode_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := testClient(srv.URL)
	c.httpClient = &http.Client{Timeout: 50 * time.Millisecond}

	_, err := c.Geocode(context.Background(), "Austin")
	require.Error(t, err)
}
