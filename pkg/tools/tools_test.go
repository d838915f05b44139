package tools

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"wayfarer/pkg/config"
	"wayfarer/pkg/places"
	"wayfarer/pkg/travel"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakePlaces is a scriptable PlacesService for tool tests.
type fakePlaces struct {
	geocodeErr    error
	hotels        []travel.Hotel
	hotelsErr     error
	activities    []travel.Place
	activitiesErr error

	lastRadius int
	lastLimit  int
}

func (f *fakePlaces) Geocode(ctx context.Context, location string) (travel.LatLng, error) {
	if f.geocodeErr != nil {
		return travel.LatLng{}, f.geocodeErr
	}
	return travel.LatLng{Lat: 35.0, Lng: 135.7}, nil
}

func (f *fakePlaces) NearbyHotels(ctx context.Context, at travel.LatLng, radiusMeters, limit int) ([]travel.Hotel, error) {
	f.lastRadius = radiusMeters
	f.lastLimit = limit
	return f.hotels, f.hotelsErr
}

func (f *fakePlaces) SearchActivities(ctx context.Context, location string, keywords []string, radiusMeters int) ([]travel.Place, error) {
	f.lastRadius = radiusMeters
	return f.activities, f.activitiesErr
}

func textOf(t *testing.T, res *ToolResult) string {
	t.Helper()
	require.NotNil(t, res)
	require.NotEmpty(t, res.Content)
	return res.Content[0].Text
}

func TestToolRegistry(t *testing.T) {
	reg := NewToolRegistry()
	tool := NewGeocodeTool(&fakePlaces{})

	reg.Register(tool)

	got, ok := reg.Get("geocode_location")
	require.True(t, ok)
	assert.Equal(t, tool, got)
	assert.Len(t, reg.GetAll(), 1)

	reg.Unregister("geocode_location")
	_, ok = reg.Get("geocode_location")
	assert.False(t, ok)
}

func TestGeocodeToolExecute(t *testing.T) {
	tool := NewGeocodeTool(&fakePlaces{})

	res, err := tool.Execute(context.Background(), map[string]any{"location": "Kyoto"})
	require.NoError(t, err)

	text := textOf(t, res)
	assert.Contains(t, text, `"latitude":35`)
	assert.Contains(t, text, `"longitude":135.7`)
}

func TestGeocodeToolMissingLocation(t *testing.T) {
	tool := NewGeocodeTool(&fakePlaces{})

	_, err := tool.Execute(context.Background(), map[string]any{})
	assert.Error(t, err)
}

func TestGeocodeToolServiceError(t *testing.T) {
	tool := NewGeocodeTool(&fakePlaces{geocodeErr: errors.New("quota exceeded")})

	// Backend failures come back as tool output so the model can react.
	res, err := tool.Execute(context.Background(), map[string]any{"location": "Kyoto"})
	require.NoError(t, err)
	assert.Contains(t, textOf(t, res), "quota exceeded")
}

func TestFindHotelsTool(t *testing.T) {
	svc := &fakePlaces{
		hotels: []travel.Hotel{
			{Name: "Grand Hotel", Rating: 4.7, DistanceKm: 0.4},
		},
	}
	cfg := config.DefaultSystemConfig()
	tool := NewFindHotelsTool(svc, cfg)

	res, err := tool.Execute(context.Background(), map[string]any{"location": "Kyoto"})
	require.NoError(t, err)

	assert.Contains(t, textOf(t, res), "Grand Hotel")
	assert.Equal(t, cfg.HotelRadiusMeters, svc.lastRadius)
	assert.Equal(t, cfg.MaxHotelResults, svc.lastLimit)
	assert.Equal(t, 1, res.Details["count"])
}

func TestFindHotelsToolNoResults(t *testing.T) {
	svc := &fakePlaces{hotelsErr: fmt.Errorf("hotel search: %w", places.ErrNoResults)}
	tool := NewFindHotelsTool(svc, config.DefaultSystemConfig())

	res, err := tool.Execute(context.Background(), map[string]any{"location": "Remote Island"})
	require.NoError(t, err)
	assert.Equal(t, "No hotels found near Remote Island.", textOf(t, res))
}

func TestFindActivitiesTool(t *testing.T) {
	svc := &fakePlaces{
		activities: []travel.Place{
			{Tag: "temple", Name: "Kinkaku-ji", Rating: 4.5},
			{Tag: "onsen", Name: "Funaoka Onsen", Rating: 4.3},
		},
	}
	cfg := config.DefaultSystemConfig()
	tool := NewFindActivitiesTool(svc, cfg)

	res, err := tool.Execute(context.Background(), map[string]any{
		"location": "Kyoto",
		"keywords": []any{"temple", "onsen"},
	})
	require.NoError(t, err)

	text := textOf(t, res)
	assert.Contains(t, text, "Kinkaku-ji")
	assert.Contains(t, text, "Funaoka Onsen")
	assert.Equal(t, cfg.ActivityRadiusMeters, svc.lastRadius)
}

func TestFindActivitiesToolMissingKeywords(t *testing.T) {
	tool := NewFindActivitiesTool(&fakePlaces{}, config.DefaultSystemConfig())

	_, err := tool.Execute(context.Background(), map[string]any{"location": "Kyoto"})
	assert.Error(t, err)

	_, err = tool.Execute(context.Background(), map[string]any{
		"location": "Kyoto",
		"keywords": []any{},
	})
	assert.Error(t, err)
}

func TestToStringSlice(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, toStringSlice([]string{"a", "b"}))
	assert.Equal(t, []string{"a", "b"}, toStringSlice([]any{"a", "b"}))
	assert.Equal(t, []string{"a"}, toStringSlice([]any{"a", 7, ""}))
	assert.Equal(t, []string{"solo"}, toStringSlice("solo"))
	assert.Nil(t, toStringSlice(""))
	assert.Nil(t, toStringSlice(nil))
	assert.Nil(t, toStringSlice(42))
}
