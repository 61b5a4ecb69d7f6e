package dispatch

import (
	"context"
	"fmt"

	"github.com/aegis-safety/aegis/internal/location"
)

// Geocoder resolves coordinates to a human-readable address. Implementations
// should return an error rather than a guess when resolution fails; the
// composer degrades to coordinates only.
type Geocoder interface {
	ReverseGeocode(ctx context.Context, lat, lon float64) (string, error)
}

// NopGeocoder never resolves an address.
type NopGeocoder struct{}

func (NopGeocoder) ReverseGeocode(_ context.Context, _, _ float64) (string, error) {
	return "", fmt.Errorf("reverse geocoding not configured")
}

// composeMessage builds the outbound alert text. The map link and raw
// coordinates are always present; the street address is best effort.
func composeMessage(ctx context.Context, geocoder Geocoder, kind TriggerKind, userName string, pos location.Position) string {
	var header string
	switch kind {
	case TriggerZoneEnter:
		header = fmt.Sprintf("%s entered a monitored area.", userName)
	case TriggerZoneExit:
		header = fmt.Sprintf("%s left a monitored area.", userName)
	default:
		header = fmt.Sprintf("EMERGENCY: %s needs help.", userName)
	}

	mapLink := fmt.Sprintf("https://maps.google.com/?q=%.6f,%.6f", pos.Lat, pos.Lon)
	body := fmt.Sprintf("%s Last known location: %.6f, %.6f (%s)", header, pos.Lat, pos.Lon, mapLink)

	if geocoder != nil {
		if addr, err := geocoder.ReverseGeocode(ctx, pos.Lat, pos.Lon); err == nil && addr != "" {
			body = fmt.Sprintf("%s Near: %s", body, addr)
		}
	}
	return body
}
