package http_test

import (
	"context"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	httpadapter "github.com/couchcryptid/wordloc/internal/adapter/http"
	"github.com/couchcryptid/wordloc/internal/domain"
	"github.com/couchcryptid/wordloc/internal/locate"
)

func dialStream(t *testing.T, ts *httptest.Server, id string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/v1/sessions/" + id + "/stream"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	resp.Body.Close()
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) httpadapter.Frame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var f httpadapter.Frame
	require.NoError(t, conn.ReadJSON(&f))
	return f
}

func readUntil(t *testing.T, conn *websocket.Conn, frameType string) httpadapter.Frame {
	t.Helper()
	for {
		if f := readFrame(t, conn); f.Type == frameType {
			return f
		}
	}
}

func waitForSubscribers(t *testing.T, hub *httpadapter.Hub, id string, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return hub.Subscribers(id) == n }, 2*time.Second, 5*time.Millisecond)
}

func TestStream_FirstFrameIsSnapshot(t *testing.T) {
	env := newTestEnv(&mockReadiness{})
	ts := httptest.NewServer(env.server)
	defer ts.Close()
	s := env.registry.Create(context.Background(), "https://example.com/#table.lamp.spoon")

	conn := dialStream(t, ts, s.ID())

	f := readFrame(t, conn)
	assert.Equal(t, httpadapter.FrameSnapshot, f.Type)
	require.NotNil(t, f.Snapshot)
	assert.Equal(t, s.ID(), f.Snapshot.ID)
	assert.Equal(t, locate.StateTracking, f.Snapshot.State)
}

func TestStream_PushesViewChanges(t *testing.T) {
	env := newTestEnv(&mockReadiness{})
	ts := httptest.NewServer(env.server)
	defer ts.Close()
	s := env.registry.Create(context.Background(), "https://example.com/#table.lamp.spoon")
	conn := dialStream(t, ts, s.ID())
	readFrame(t, conn)

	s.Select(context.Background(), paris)

	marker := readFrame(t, conn)
	assert.Equal(t, httpadapter.FrameMarker, marker.Type)
	require.NotNil(t, marker.Marker)
	assert.Equal(t, paris, marker.Marker.Position)
	assert.True(t, marker.Marker.Open)

	title := readFrame(t, conn)
	assert.Equal(t, httpadapter.FrameTitle, title.Type)
	assert.Equal(t, "chair.fork.cup - wordloc", title.Title)

	vp := readFrame(t, conn)
	assert.Equal(t, httpadapter.FrameViewport, vp.Type)
	assert.Equal(t, &locate.Viewport{Center: paris, Zoom: 17}, vp.Viewport)

	u := readFrame(t, conn)
	assert.Equal(t, httpadapter.FrameURL, u.Type)
	assert.Equal(t, "https://example.com/#chair.fork.cup", u.URL)
	assert.Equal(t, "push", u.History)
}

func TestStream_InboundEvents(t *testing.T) {
	env := newTestEnv(&mockReadiness{})
	ts := httptest.NewServer(env.server)
	defer ts.Close()
	s := env.registry.Create(context.Background(), "https://example.com/")
	conn := dialStream(t, ts, s.ID())
	readFrame(t, conn)

	lat, lng, accuracy := london.Lat, london.Lng, 15.0
	require.NoError(t, conn.WriteJSON(httpadapter.Event{
		Type: httpadapter.EventLocationFound, Lat: &lat, Lng: &lng, Accuracy: &accuracy,
	}))

	fix := readFrame(t, conn)
	assert.Equal(t, httpadapter.FrameFix, fix.Type)
	require.NotNil(t, fix.Fix)
	assert.True(t, fix.Fix.Accurate)

	u := readUntil(t, conn, httpadapter.FrameURL)
	assert.Equal(t, "https://example.com/#table.lamp.spoon", u.URL)
	assert.Equal(t, domain.SourceGeolocation, s.Snapshot().Current.Source)
}

func TestStream_InvalidEventGetsErrorFrame(t *testing.T) {
	env := newTestEnv(&mockReadiness{})
	ts := httptest.NewServer(env.server)
	defer ts.Close()
	s := env.registry.Create(context.Background(), "https://example.com/")
	conn := dialStream(t, ts, s.ID())
	readFrame(t, conn)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"teleport"}`)))

	f := readFrame(t, conn)
	assert.Equal(t, httpadapter.FrameError, f.Type)
	assert.Contains(t, f.Error, "teleport")
}

func TestStream_UnknownSession(t *testing.T) {
	env := newTestEnv(&mockReadiness{})
	ts := httptest.NewServer(env.server)
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/v1/sessions/missing/stream"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)

	require.Error(t, err)
	require.NotNil(t, resp)
	defer resp.Body.Close()
	assert.Equal(t, 404, resp.StatusCode)
}

func TestStream_SessionRemovalClosesClients(t *testing.T) {
	env := newTestEnv(&mockReadiness{})
	ts := httptest.NewServer(env.server)
	defer ts.Close()
	s := env.registry.Create(context.Background(), "https://example.com/#table.lamp.spoon")
	conn := dialStream(t, ts, s.ID())
	readFrame(t, conn)
	waitForSubscribers(t, env.hub, s.ID(), 1)

	env.registry.Remove(s.ID())

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	require.Error(t, err)
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNoStatusReceived, websocket.CloseNormalClosure),
		"unexpected error: %v", err)
	assert.Equal(t, 0, env.hub.Subscribers(s.ID()))
}

func TestStream_ClientDisconnectUnsubscribes(t *testing.T) {
	env := newTestEnv(&mockReadiness{})
	ts := httptest.NewServer(env.server)
	defer ts.Close()
	s := env.registry.Create(context.Background(), "https://example.com/#table.lamp.spoon")
	conn := dialStream(t, ts, s.ID())
	readFrame(t, conn)
	waitForSubscribers(t, env.hub, s.ID(), 1)

	require.NoError(t, conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")))

	waitForSubscribers(t, env.hub, s.ID(), 0)
}

// vanishingSessions finds a session once, then reports it gone, as when the
// registry expires it between the HTTP lookup and the stream subscription.
type vanishingSessions struct {
	*locate.Registry
	lookups atomic.Int32
}

func (v *vanishingSessions) Get(id string) (*locate.Session, error) {
	if v.lookups.Add(1) > 1 {
		return nil, locate.ErrSessionNotFound
	}
	return v.Registry.Get(id)
}

func TestStream_SessionRemovedBeforeSubscribeIsRefused(t *testing.T) {
	env := newTestEnv(&mockReadiness{})
	sessions := &vanishingSessions{Registry: env.registry}
	api := httpadapter.NewAPI(env.geocoder, sessions, env.hub, 15, discardLogger())
	ts := httptest.NewServer(httpadapter.NewServer(":0", api, &mockReadiness{}, []string{"*"}, discardLogger()))
	defer ts.Close()
	s := env.registry.Create(context.Background(), "https://example.com/#table.lamp.spoon")

	conn := dialStream(t, ts, s.ID())

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	require.Error(t, err)
	assert.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway), "unexpected error: %v", err)
	assert.Equal(t, 0, env.hub.Subscribers(s.ID()))
}
