package tools

import (
	"context"
	"fmt"

	"wayfarer/pkg/config"
)

// FindActivitiesTool searches a destination for points of interest matching
// a set of keywords (e.g. "museum", "hiking", "street food"). Each result
// carries the keyword it matched so the model can group suggestions by theme.
type FindActivitiesTool struct {
	service PlacesService
	system  *config.SystemConfig
}

// NewFindActivitiesTool creates an activity search tool backed by the given service.
func NewFindActivitiesTool(service PlacesService, system *config.SystemConfig) *FindActivitiesTool {
	return &FindActivitiesTool{service: service, system: system}
}

func (t *FindActivitiesTool) Name() string {
	return "find_activities"
}

func (t *FindActivitiesTool) Description() string {
	return "Finds activities and points of interest near a destination matching the given interest keywords. Results are tagged with the keyword they matched."
}

func (t *FindActivitiesTool) Parameters() map[string]any {
	return map[string]any{
		"location": map[string]any{
			"type":        "string",
			"description": "The destination to search, e.g. 'Barcelona, Spain'",
		},
		"keywords": map[string]any{
			"type":        "array",
			"description": "Interest keywords to search for, e.g. ['museum', 'tapas', 'architecture']",
			"items": map[string]any{
				"type": "string",
			},
		},
	}
}

func (t *FindActivitiesTool) RequiredParameters() []string {
	return []string{"location", "keywords"}
}

func (t *FindActivitiesTool) Execute(ctx context.Context, args map[string]any) (*ToolResult, error) {
	location, ok := args["location"].(string)
	if !ok || location == "" {
		return nil, fmt.Errorf("missing string parameter 'location'")
	}

	keywords := toStringSlice(args["keywords"])
	if len(keywords) == 0 {
		return nil, fmt.Errorf("missing array parameter 'keywords'")
	}

	results, err := t.service.SearchActivities(ctx, location, keywords, t.system.ActivityRadiusMeters)
	if err != nil {
		return &ToolResult{
			Content: []ContentBlock{
				{Type: "text", Text: "Error searching activities: " + err.Error()},
			},
		}, nil
	}

	if len(results) == 0 {
		return &ToolResult{
			Content: []ContentBlock{
				{Type: "text", Text: fmt.Sprintf("No activities found near %s for the given interests.", location)},
			},
		}, nil
	}

	payload, _ := json.MarshalToString(map[string]any{
		"location":   location,
		"activities": results,
	})

	return &ToolResult{
		Content: []ContentBlock{
			{Type: "text", Text: payload},
		},
		Details: map[string]any{
			"location": location,
			"keywords": keywords,
			"count":    len(results),
		},
	}, nil
}

// toStringSlice normalizes the decoded JSON array forms models produce
// ([]any, []string, or a single comma-free string).
func toStringSlice(v any) []string {
	switch vals := v.(type) {
	case []string:
		return vals
	case []any:
		out := make([]string, 0, len(vals))
		for _, item := range vals {
			if s, ok := item.(string); ok && s != "" {
				out = append(out, s)
			}
		}
		return out
	case string:
		if vals == "" {
			return nil
		}
		return []string{vals}
	}
	return nil
}
