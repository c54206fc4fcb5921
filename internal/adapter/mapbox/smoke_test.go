//go:build mapbox

package mapbox

import (
	"context"
	"io"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/wordloc/internal/domain"
	"github.com/couchcryptid/wordloc/internal/geocode"
	"github.com/couchcryptid/wordloc/internal/observability"
)

// These tests hit the real Mapbox API and require a valid MAPBOX_TOKEN env var.
// Run with: go test -tags=mapbox ./internal/adapter/mapbox/ -v -count=1

func smokeClient(t *testing.T) *Client {
	t.Helper()
	token := os.Getenv("MAPBOX_TOKEN")
	if token == "" {
		t.Fatal("MAPBOX_TOKEN must be set to run smoke tests")
	}
	return NewClient(token, 10*time.Second, observability.NewMetricsForTesting(), slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestSmoke_Geocode(t *testing.T) {
	c := smokeClient(t)

	results, err := c.Geocode(context.Background(), "Austin, TX")
	require.NoError(t, err)
	require.NotEmpty(t, results)

	assert.InDelta(t, 30.27, results[0].Center.Lat, 0.1, "lat should be near Austin")
	assert.InDelta(t, -97.74, results[0].Center.Lng, 0.1, "lng should be near Austin")
	assert.Contains(t, results[0].Name, "Austin")
}

func TestSmoke_Reverse(t *testing.T) {
	c := smokeClient(t)

	results, err := c.Reverse(context.Background(), domain.Point{Lat: 30.2672, Lng: -97.7431}, domain.ScaleForZoom(17))
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.NotEmpty(t, results[0].Name)
}

func TestSmoke_Geocode_Nonsense(t *testing.T) {
	c := smokeClient(t)

	// Mapbox's fuzzy matching may still return results for nonsense queries,
	// so we verify the client handles any response gracefully (no error).
	_, err := c.Geocode(context.Background(), "XYZNONEXISTENT99")
	require.NoError(t, err)
}

func TestSmoke_Cached(t *testing.T) {
	cached := geocode.NewCachedProvider(smokeClient(t), 10, observability.NewMetricsForTesting())

	r1, err := cached.Geocode(context.Background(), "Dallas, TX")
	require.NoError(t, err)
	require.NotEmpty(t, r1)
	assert.Contains(t, r1[0].Name, "Dallas")

	r2, err := cached.Geocode(context.Background(), "Dallas, TX")
	require.NoError(t, err)
	assert.Equal(t, r1, r2)
}
