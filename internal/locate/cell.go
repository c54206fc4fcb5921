package locate

import (
	"fmt"

	"github.com/uber/h3-go/v4"

	"github.com/couchcryptid/wordloc/internal/domain"
)

// edgeLengthsM are the average H3 hexagon edge lengths per resolution, in metres.
var edgeLengthsM = [...]float64{
	1281256, 483057, 182513, 68979, 26072, 9854, 3725, 1406,
	531.4, 200.8, 75.86, 28.66, 10.83, 4.09, 1.55, 0.584,
}

// ResolutionForAccuracy picks the finest H3 resolution whose cells are at
// least as wide as the accuracy radius.
func ResolutionForAccuracy(accuracy float64) int {
	for res := len(edgeLengthsM) - 1; res >= 0; res-- {
		if edgeLengthsM[res] >= accuracy {
			return res
		}
	}
	return 0
}

// CellFor returns the H3 cell covering p at the resolution implied by accuracy.
func CellFor(p domain.Point, accuracy float64) (string, int, error) {
	res := ResolutionForAccuracy(accuracy)
	cell, err := h3.LatLngToCell(h3.NewLatLng(p.Lat, p.Lng), res)
	if err != nil {
		return "", res, fmt.Errorf("h3 cell for %s: %w", p, err)
	}
	return cell.String(), res, nil
}
