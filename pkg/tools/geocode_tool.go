package tools

import (
	"context"
	"fmt"
)

// GeocodeTool resolves a free-form location string into latitude/longitude
// coordinates using the configured places backend.
type GeocodeTool struct {
	service PlacesService
}

// NewGeocodeTool creates a geocoding tool backed by the given service.
func NewGeocodeTool(service PlacesService) *GeocodeTool {
	return &GeocodeTool{service: service}
}

func (t *GeocodeTool) Name() string {
	return "geocode_location"
}

func (t *GeocodeTool) Description() string {
	return "Converts a location name or address (e.g. 'Shinjuku, Tokyo') into geographic coordinates (latitude, longitude)."
}

func (t *GeocodeTool) Parameters() map[string]any {
	return map[string]any{
		"location": map[string]any{
			"type":        "string",
			"description": "The location name or address to resolve, e.g. 'Eiffel Tower, Paris'",
		},
	}
}

func (t *GeocodeTool) RequiredParameters() []string {
	return []string{"location"}
}

func (t *GeocodeTool) Execute(ctx context.Context, args map[string]any) (*ToolResult, error) {
	location, ok := args["location"].(string)
	if !ok || location == "" {
		return nil, fmt.Errorf("missing string parameter 'location'")
	}

	at, err := t.service.Geocode(ctx, location)
	if err != nil {
		return &ToolResult{
			Content: []ContentBlock{
				{Type: "text", Text: "Error geocoding location: " + err.Error()},
			},
		}, nil
	}

	payload, _ := json.MarshalToString(map[string]any{
		"location":  location,
		"latitude":  at.Lat,
		"longitude": at.Lng,
	})

	return &ToolResult{
		Content: []ContentBlock{
			{Type: "text", Text: payload},
		},
		Details: map[string]any{
			"location": location,
		},
	}, nil
}
