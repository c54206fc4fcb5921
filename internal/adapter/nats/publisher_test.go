package nats

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	natsgo "github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/wordloc/internal/domain"
)

type fakeConn struct {
	published  []*natsgo.Msg
	publishErr error
	flushErr   error
	flushes    int
	drained    bool
}

func (f *fakeConn) PublishMsg(m *natsgo.Msg) error {
	if f.publishErr != nil {
		return f.publishErr
	}
	f.published = append(f.published, m)
	return nil
}

func (f *fakeConn) FlushWithContext(context.Context) error {
	f.flushes++
	return f.flushErr
}

func (f *fakeConn) Drain() error {
	f.drained = true
	return nil
}

func testPublisher(c conn) *Publisher {
	return &Publisher{conn: c, subject: "wordloc.locations", logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
}

func TestPublisher_LoadBatch(t *testing.T) {
	c := &fakeConn{}
	events := []domain.OutputEvent{
		{Key: []byte("s1"), Value: []byte(`{"name":"a"}`), Headers: map[string]string{"source": "url"}},
		{Key: []byte("s2"), Value: []byte(`{"name":"b"}`)},
	}

	require.NoError(t, testPublisher(c).LoadBatch(context.Background(), events))

	require.Len(t, c.published, 2)
	assert.Equal(t, "wordloc.locations", c.published[0].Subject)
	assert.Equal(t, []byte(`{"name":"a"}`), c.published[0].Data)
	assert.Equal(t, "s1", c.published[0].Header.Get(KeyHeader))
	assert.Equal(t, "url", c.published[0].Header.Get("source"))
	assert.Equal(t, "s2", c.published[1].Header.Get(KeyHeader))
	assert.Equal(t, 1, c.flushes)
}

func TestPublisher_LoadBatch_Empty(t *testing.T) {
	c := &fakeConn{}
	require.NoError(t, testPublisher(c).LoadBatch(context.Background(), nil))
	assert.Equal(t, 0, c.flushes)
}

func TestPublisher_LoadBatch_Errors(t *testing.T) {
	events := []domain.OutputEvent{{Key: []byte("s1")}}

	err := testPublisher(&fakeConn{publishErr: natsgo.ErrConnectionClosed}).LoadBatch(context.Background(), events)
	require.ErrorIs(t, err, natsgo.ErrConnectionClosed)

	flushErr := errors.New("flush timeout")
	err = testPublisher(&fakeConn{flushErr: flushErr}).LoadBatch(context.Background(), events)
	require.ErrorIs(t, err, flushErr)
}

func TestPublisher_CloseDrains(t *testing.T) {
	c := &fakeConn{}

	require.NoError(t, testPublisher(c).Close())

	assert.True(t, c.drained)
}
