package tools

import (
	"context"
	"errors"
	"fmt"

	"wayfarer/pkg/config"
	"wayfarer/pkg/places"
)

// FindHotelsTool locates the top-rated lodging options within walking
// distance of a destination. Results are ranked by rating and review count
// and annotated with the distance from the geocoded center.
type FindHotelsTool struct {
	service PlacesService
	system  *config.SystemConfig
}

// NewFindHotelsTool creates a hotel search tool backed by the given service.
func NewFindHotelsTool(service PlacesService, system *config.SystemConfig) *FindHotelsTool {
	return &FindHotelsTool{service: service, system: system}
}

func (t *FindHotelsTool) Name() string {
	return "find_hotels"
}

func (t *FindHotelsTool) Description() string {
	return "Finds the top-rated hotels near a destination, sorted by rating and number of reviews, including the distance in kilometers from the destination center."
}

func (t *FindHotelsTool) Parameters() map[string]any {
	return map[string]any{
		"location": map[string]any{
			"type":        "string",
			"description": "The destination to search hotels around, e.g. 'Kyoto, Japan'",
		},
	}
}

func (t *FindHotelsTool) RequiredParameters() []string {
	return []string{"location"}
}

func (t *FindHotelsTool) Execute(ctx context.Context, args map[string]any) (*ToolResult, error) {
	location, ok := args["location"].(string)
	if !ok || location == "" {
		return nil, fmt.Errorf("missing string parameter 'location'")
	}

	at, err := t.service.Geocode(ctx, location)
	if err != nil {
		return &ToolResult{
			Content: []ContentBlock{
				{Type: "text", Text: "Error finding destination: " + err.Error()},
			},
		}, nil
	}

	hotels, err := t.service.NearbyHotels(ctx, at, t.system.HotelRadiusMeters, t.system.MaxHotelResults)
	if err != nil {
		if errors.Is(err, places.ErrNoResults) {
			return &ToolResult{
				Content: []ContentBlock{
					{Type: "text", Text: fmt.Sprintf("No hotels found near %s.", location)},
				},
			}, nil
		}
		return &ToolResult{
			Content: []ContentBlock{
				{Type: "text", Text: "Error searching hotels: " + err.Error()},
			},
		}, nil
	}

	payload, _ := json.MarshalToString(map[string]any{
		"location": location,
		"hotels":   hotels,
	})

	return &ToolResult{
		Content: []ContentBlock{
			{Type: "text", Text: payload},
		},
		Details: map[string]any{
			"location": location,
			"count":    len(hotels),
		},
	}, nil
}
