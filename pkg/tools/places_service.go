package tools

import (
	"context"

	"wayfarer/pkg/travel"
)

// PlacesService abstracts the geo backend so tools can be exercised
// against a fake implementation in tests.
type PlacesService interface {
	Geocode(ctx context.Context, location string) (travel.LatLng, error)
	NearbyHotels(ctx context.Context, at travel.LatLng, radiusMeters, limit int) ([]travel.Hotel, error)
	SearchActivities(ctx context.Context, location string, keywords []string, radiusMeters int) ([]travel.Place, error)
}
