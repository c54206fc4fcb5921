// Package domain models three-word locations and the geocoding contracts
// shared by every provider, the aggregator and the location synchronizer.
//
// # Word Codes
//
// A word code names a small square on the earth's surface with three words
// joined by dots, e.g. "table.lamp.spoon". Users type codes with spaces as
// often as with dots, so every provider normalizes runs of whitespace to a
// single dot before counting separators:
//
//	"table lamp  spoon"  →  "table.lamp.spoon"  (2 dots, a code)
//	"a.b"                →  "a.b"               (1 dot, not a code)
//
// The mapping between codes and coordinates is owned by an external codec
// reached through [Codec]. A malformed code surfaces as [ErrDecode] from the
// codec and as an empty result list from the provider that wraps it.
//
// # Providers
//
// Every provider implements [Geocoder]. Suggestions and reverse lookups are
// optional capabilities expressed as the separate interfaces [Suggester] and
// [Reverser]; callers check for them with a type assertion before invoking.
//
// # Scale
//
// Reverse lookups take the map scale of the current zoom level, which for
// the Web-Mercator tile pyramid is 256 * 2^zoom pixels per world width. See
// [ScaleForZoom].
//
// # Sources
//
// The current location of a session is resolved from one of three sources:
// the URL the page was loaded or navigated to, a user selection (map click
// or search result), or a device geolocation fix. See [Source].
package domain
