package domain

import (
	"context"
	"errors"
	"fmt"
	"math"
)

var (
	// ErrDecode is returned by a Codec when the words do not form a valid code.
	ErrDecode = errors.New("invalid word code")

	// ErrUnsupported is returned by decorators whose wrapped provider lacks
	// the requested optional capability.
	ErrUnsupported = errors.New("capability not supported")
)

// Point is a WGS-84 latitude/longitude pair.
type Point struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// String formats the point the way it is shown in marker popups.
func (p Point) String() string {
	return fmt.Sprintf("%.6f,%.6f", p.Lat, p.Lng)
}

// Bounds is a bounding box given by its south-west and north-east corners.
type Bounds struct {
	SouthWest Point `json:"south_west"`
	NorthEast Point `json:"north_east"`
}

// PointBounds returns the zero-area box collapsed onto p.
func PointBounds(p Point) *Bounds {
	return &Bounds{SouthWest: p, NorthEast: p}
}

// Result is a single geocoding hit.
type Result struct {
	Name   string  `json:"name"`
	Center Point   `json:"center"`
	Bounds *Bounds `json:"bbox,omitempty"`
}

// Geocoder resolves free text to results. Every provider implements it.
type Geocoder interface {
	// Name identifies the provider in logs and metrics.
	Name() string

	// Geocode returns the results for query, possibly none.
	Geocode(ctx context.Context, query string) ([]Result, error)
}

// Suggester is the optional capability of producing type-ahead suggestions.
type Suggester interface {
	Suggest(ctx context.Context, query string) ([]Result, error)
}

// Reverser is the optional capability of resolving a point to results.
// The scale is the map scale at the caller's zoom level.
type Reverser interface {
	Reverse(ctx context.Context, p Point, scale float64) ([]Result, error)
}

// Codec converts between word codes and coordinates.
type Codec interface {
	// WordsToCoordinate decodes a dotted three-word code. Malformed codes
	// fail with an error wrapping ErrDecode.
	WordsToCoordinate(ctx context.Context, code string) (Point, error)

	// CoordinateToWords encodes a point at the given precision.
	CoordinateToWords(ctx context.Context, lat, lng, precision float64) (string, error)
}

// ScaleForZoom returns the Web-Mercator CRS scale for a zoom level.
func ScaleForZoom(zoom float64) float64 {
	return 256 * math.Pow(2, zoom)
}
