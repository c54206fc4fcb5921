package pipeline

import (
	"context"

	"github.com/couchcryptid/wordloc/internal/domain"
)

// LocationTransformer implements Transformer by serializing location events
// to JSON keyed by session ID.
type LocationTransformer struct{}

// NewTransformer creates a LocationTransformer.
func NewTransformer() *LocationTransformer {
	return &LocationTransformer{}
}

func (t *LocationTransformer) Transform(_ context.Context, event domain.LocationEvent) (domain.OutputEvent, error) {
	return domain.SerializeLocationEvent(event)
}
