package geocode

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/couchcryptid/wordloc/internal/domain"
)

// codeSeparator joins the three words of a code.
const codeSeparator = "."

// WordCode adapts a word-code codec to the provider interfaces.
// It never returns an error: anything the codec rejects yields no results.
type WordCode struct {
	codec  domain.Codec
	logger *slog.Logger
}

// NewWordCode creates the word-code provider.
func NewWordCode(codec domain.Codec, logger *slog.Logger) *WordCode {
	return &WordCode{codec: codec, logger: logger}
}

func (w *WordCode) Name() string { return "wordcode" }

// NormalizeCode joins whitespace-separated words with dots, e.g.
// "table lamp  spoon" -> "table.lamp.spoon". Leading and trailing
// whitespace is dropped.
func NormalizeCode(query string) string {
	return strings.Join(strings.Fields(query), codeSeparator)
}

// IsCode reports whether normalized text has the shape of a three-word code.
func IsCode(normalized string) bool {
	return strings.Count(normalized, codeSeparator) == 2
}

// Geocode decodes query when it normalizes to exactly three words.
func (w *WordCode) Geocode(ctx context.Context, query string) ([]domain.Result, error) {
	code := NormalizeCode(query)
	if !IsCode(code) {
		return nil, nil
	}

	center, err := w.codec.WordsToCoordinate(ctx, code)
	if err != nil {
		if errors.Is(err, domain.ErrDecode) {
			w.logger.Debug("word code rejected", "code", code)
		} else {
			w.logger.Warn("word code decode failed", "code", code, "error", err)
		}
		return nil, nil
	}

	return []domain.Result{{
		Name:   code,
		Center: center,
		Bounds: domain.PointBounds(center),
	}}, nil
}

// Suggest is the same deterministic lookup as Geocode.
func (w *WordCode) Suggest(ctx context.Context, query string) ([]domain.Result, error) {
	return w.Geocode(ctx, query)
}

// Reverse encodes p and resolves the resulting code.
func (w *WordCode) Reverse(ctx context.Context, p domain.Point, scale float64) ([]domain.Result, error) {
	words, err := w.codec.CoordinateToWords(ctx, p.Lat, p.Lng, scale)
	if err != nil {
		w.logger.Warn("word code encode failed", "lat", p.Lat, "lng", p.Lng, "error", err)
		return nil, nil
	}
	return w.Geocode(ctx, words)
}
