package domain

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCurrentLocation_UsesClock(t *testing.T) {
	fixed := time.Date(2026, 5, 4, 10, 30, 0, 0, time.FixedZone("BST", 3600))
	SetClock(clockwork.NewFakeClockAt(fixed))
	t.Cleanup(func() { SetClock(nil) })

	loc := NewCurrentLocation(Result{Name: "table.lamp.spoon"}, SourceURL)

	assert.Equal(t, fixed.UTC(), loc.ResolvedAt)
	assert.Equal(t, SourceURL, loc.Source)
}

func TestSerializeLocationEvent(t *testing.T) {
	resolved := time.Date(2026, 5, 4, 9, 30, 0, 0, time.UTC)
	loc := CurrentLocation{
		Result:     Result{Name: "chair.fork.cup", Center: Point{Lat: 48.8566, Lng: 2.3522}},
		Source:     SourceSelection,
		ResolvedAt: resolved,
	}

	out, err := SerializeLocationEvent(NewLocationEvent("session-1", loc))
	require.NoError(t, err)

	assert.Equal(t, []byte("session-1"), out.Key)
	if diff := cmp.Diff(map[string]string{
		"source":      "selection",
		"resolved_at": "2026-05-04T09:30:00Z",
	}, out.Headers); diff != "" {
		t.Errorf("headers mismatch (-want +got):\n%s", diff)
	}

	var got LocationEvent
	require.NoError(t, json.Unmarshal(out.Value, &got))
	assert.Equal(t, LocationEvent{
		SessionID:  "session-1",
		Name:       "chair.fork.cup",
		Lat:        48.8566,
		Lng:        2.3522,
		Source:     SourceSelection,
		ResolvedAt: resolved,
	}, got)
}

func TestScaleForZoom(t *testing.T) {
	assert.InDelta(t, 256.0, ScaleForZoom(0), 1e-9)
	assert.InDelta(t, 256.0*131072, ScaleForZoom(17), 1e-6)
	assert.InDelta(t, 256*1.4142135623730951, ScaleForZoom(0.5), 1e-9)
}

func TestPoint_String(t *testing.T) {
	assert.Equal(t, "51.507400,-0.127800", Point{Lat: 51.5074, Lng: -0.1278}.String())
	assert.Equal(t, "0.000000,0.000000", Point{}.String())
}

func TestPointBounds(t *testing.T) {
	p := Point{Lat: 1, Lng: 2}
	assert.Equal(t, &Bounds{SouthWest: p, NorthEast: p}, PointBounds(p))
}
