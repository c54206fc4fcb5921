package geocode

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/couchcryptid/wordloc/internal/domain"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// stubProvider implements Geocoder only.
type stubProvider struct {
	name    string
	results []domain.Result
	err     error
	panics  bool
	block   bool
	delay   time.Duration
	calls   atomic.Int32
}

func (s *stubProvider) Name() string { return s.name }

func (s *stubProvider) Geocode(ctx context.Context, _ string) ([]domain.Result, error) {
	return s.respond(ctx)
}

func (s *stubProvider) respond(ctx context.Context) ([]domain.Result, error) {
	s.calls.Add(1)
	if s.panics {
		panic("boom")
	}
	if s.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return s.results, s.err
}

// fullProvider implements every capability.
type fullProvider struct {
	stubProvider
}

func (f *fullProvider) Suggest(ctx context.Context, _ string) ([]domain.Result, error) {
	return f.respond(ctx)
}

func (f *fullProvider) Reverse(ctx context.Context, _ domain.Point, _ float64) ([]domain.Result, error) {
	return f.respond(ctx)
}

// fakeCodec maps a fixed set of codes to points and back.
type fakeCodec struct {
	codes     map[string]domain.Point
	encodeErr error
	decodeErr error
}

func (f *fakeCodec) WordsToCoordinate(_ context.Context, code string) (domain.Point, error) {
	if f.decodeErr != nil {
		return domain.Point{}, f.decodeErr
	}
	p, ok := f.codes[code]
	if !ok {
		return domain.Point{}, domain.ErrDecode
	}
	return p, nil
}

func (f *fakeCodec) CoordinateToWords(_ context.Context, lat, lng, _ float64) (string, error) {
	if f.encodeErr != nil {
		return "", f.encodeErr
	}
	for code, p := range f.codes {
		if p.Lat == lat && p.Lng == lng {
			return code, nil
		}
	}
	return "", errors.New("no code for point")
}
