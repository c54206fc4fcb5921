package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// Source says where a current location came from.
type Source string

const (
	SourceURL         Source = "url"
	SourceSelection   Source = "selection"
	SourceGeolocation Source = "geolocation"
)

// CurrentLocation is the single authoritative location of a session.
// It is replaced wholesale on every successful resolution.
type CurrentLocation struct {
	Result     Result    `json:"result"`
	Source     Source    `json:"source"`
	ResolvedAt time.Time `json:"resolved_at"`
}

// NewCurrentLocation stamps a resolved result with the package clock.
func NewCurrentLocation(r Result, source Source) CurrentLocation {
	return CurrentLocation{Result: r, Source: source, ResolvedAt: clock.Now().UTC()}
}

// LocationEvent announces a change of a session's current location.
type LocationEvent struct {
	SessionID  string    `json:"session_id"`
	Name       string    `json:"name"`
	Lat        float64   `json:"lat"`
	Lng        float64   `json:"lng"`
	Source     Source    `json:"source"`
	ResolvedAt time.Time `json:"resolved_at"`
}

// NewLocationEvent flattens a current location for publishing.
func NewLocationEvent(sessionID string, loc CurrentLocation) LocationEvent {
	return LocationEvent{
		SessionID:  sessionID,
		Name:       loc.Result.Name,
		Lat:        loc.Result.Center.Lat,
		Lng:        loc.Result.Center.Lng,
		Source:     loc.Source,
		ResolvedAt: loc.ResolvedAt,
	}
}

// OutputEvent is the serialized form destined for a message sink.
type OutputEvent struct {
	Key     []byte
	Value   []byte
	Headers map[string]string
}

// SerializeLocationEvent marshals an event keyed by its session ID.
func SerializeLocationEvent(event LocationEvent) (OutputEvent, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return OutputEvent{}, fmt.Errorf("serialize location event: %w", err)
	}
	return OutputEvent{
		Key:   []byte(event.SessionID),
		Value: data,
		Headers: map[string]string{
			"source":      string(event.Source),
			"resolved_at": event.ResolvedAt.Format(time.RFC3339),
		},
	}, nil
}
