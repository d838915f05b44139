// Package places wraps the Google Geocoding and Places Web Services used by
// the travel tools: address resolution, lodging search and keyword-based
// activity search.
package places

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"wayfarer/pkg/travel"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const defaultBaseURL = "https://maps.googleapis.com"

// ErrNoResults indicates the API answered successfully but found nothing
// for the query (status ZERO_RESULTS).
var ErrNoResults = errors.New("no results for query")

// StatusError is returned when the API reports a non-OK status.
type StatusError struct {
	Status  string
	Message string
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("places api status %s: %s", e.Status, e.Message)
	}
	return fmt.Sprintf("places api status %s", e.Status)
}

// Client talks to the Google Maps Web Services over plain HTTP.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	cache      *Cache
}

// NewClient creates a places client. baseURL may be empty for production;
// cache may be nil to disable response caching.
func NewClient(apiKey, baseURL string, timeout time.Duration, cache *Cache) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		apiKey:  apiKey,
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		cache: cache,
	}
}

//----------------------------------------------------------------
// Wire formats
//----------------------------------------------------------------

type geocodeResponse struct {
	Status       string `json:"status"`
	ErrorMessage string `json:"error_message"`
	Results      []struct {
		FormattedAddress string `json:"formatted_address"`
		Geometry         struct {
			Location travel.LatLng `json:"location"`
		} `json:"geometry"`
	} `json:"results"`
}

type nearbyResponse struct {
	Status       string        `json:"status"`
	ErrorMessage string        `json:"error_message"`
	Results      []placeResult `json:"results"`
}

type placeResult struct {
	Name             string   `json:"name"`
	Rating           *float64 `json:"rating"`
	UserRatingsTotal int      `json:"user_ratings_total"`
	Vicinity         string   `json:"vicinity"`
	PriceLevel       int      `json:"price_level"`
	Geometry         *struct {
		Location travel.LatLng `json:"location"`
	} `json:"geometry"`
}

//----------------------------------------------------------------
// Operations
//----------------------------------------------------------------

// Geocode resolves a human-readable location string to coordinates using
// the first geocoding result.
func (c *Client) Geocode(ctx context.Context, location string) (travel.LatLng, error) {
	params := url.Values{}
	params.Set("address", location)

	body, err := c.fetch(ctx, "/maps/api/geocode/json", params)
	if err != nil {
		return travel.LatLng{}, fmt.Errorf("geocode %q: %w", location, err)
	}

	var resp geocodeResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return travel.LatLng{}, fmt.Errorf("geocode %q: failed to parse response: %w", location, err)
	}

	if err := statusErr(resp.Status, resp.ErrorMessage); err != nil {
		return travel.LatLng{}, fmt.Errorf("geocode %q: %w", location, err)
	}
	if len(resp.Results) == 0 {
		return travel.LatLng{}, fmt.Errorf("geocode %q: %w", location, ErrNoResults)
	}

	return resp.Results[0].Geometry.Location, nil
}

// NearbyHotels returns the ranked lodging options around the search center.
// Results without a rating or geometry are skipped; distances are measured
// from the center and rounded to two decimals.
func (c *Client) NearbyHotels(ctx context.Context, at travel.LatLng, radiusMeters, limit int) ([]travel.Hotel, error) {
	params := url.Values{}
	params.Set("location", fmt.Sprintf("%f,%f", at.Lat, at.Lng))
	params.Set("radius", strconv.Itoa(radiusMeters))
	params.Set("type", "lodging")

	body, err := c.fetch(ctx, "/maps/api/place/nearbysearch/json", params)
	if err != nil {
		return nil, fmt.Errorf("hotel search: %w", err)
	}

	var resp nearbyResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("hotel search: failed to parse response: %w", err)
	}
	if err := statusErr(resp.Status, resp.ErrorMessage); err != nil {
		return nil, fmt.Errorf("hotel search: %w", err)
	}

	var hotels []travel.Hotel
	for _, place := range resp.Results {
		// Unrated or position-less places cannot be ranked meaningfully
		if place.Rating == nil || place.Geometry == nil {
			continue
		}

		hotels = append(hotels, travel.Hotel{
			Name:             place.Name,
			Rating:           *place.Rating,
			UserRatingsTotal: place.UserRatingsTotal,
			Address:          place.Vicinity,
			PriceLevel:       place.PriceLevel,
			DistanceKm:       travel.Round2(travel.Haversine(at, place.Geometry.Location)),
		})
	}

	return travel.RankHotels(hotels, limit), nil
}

// SearchActivities geocodes the location, then runs one keyword search per
// requested activity and tags each result with the keyword that matched it.
// A failing keyword is logged and skipped; only a failing geocode is fatal.
func (c *Client) SearchActivities(ctx context.Context, location string, keywords []string, radiusMeters int) ([]travel.Place, error) {
	at, err := c.Geocode(ctx, location)
	if err != nil {
		return nil, err
	}

	var all []travel.Place
	for _, keyword := range keywords {
		params := url.Values{}
		params.Set("location", fmt.Sprintf("%f,%f", at.Lat, at.Lng))
		params.Set("radius", strconv.Itoa(radiusMeters))
		params.Set("keyword", keyword)

		body, err := c.fetch(ctx, "/maps/api/place/nearbysearch/json", params)
		if err != nil {
			slog.Warn("Activity keyword search failed", "keyword", keyword, "error", err)
			continue
		}

		var resp nearbyResponse
		if err := json.Unmarshal(body, &resp); err != nil {
			slog.Warn("Activity keyword response unparseable", "keyword", keyword, "error", err)
			continue
		}
		if err := statusErr(resp.Status, resp.ErrorMessage); err != nil {
			slog.Warn("Activity keyword search rejected", "keyword", keyword, "error", err)
			continue
		}

		for _, place := range resp.Results {
			p := travel.Place{
				Tag:              keyword,
				Name:             place.Name,
				Address:          place.Vicinity,
				UserRatingsTotal: place.UserRatingsTotal,
			}
			if place.Rating != nil {
				p.Rating = *place.Rating
			}
			all = append(all, p)
		}
	}

	return all, nil
}

//----------------------------------------------------------------
// Transport
//----------------------------------------------------------------

// fetch performs a GET against the API, consulting the response cache
// first. The cache key excludes the API key.
func (c *Client) fetch(ctx context.Context, path string, params url.Values) ([]byte, error) {
	cacheKey := "places:" + path + "?" + params.Encode()

	if data, ok := c.cache.Get(ctx, cacheKey); ok {
		slog.Debug("Places cache hit", "path", path)
		return data, nil
	}

	params.Set("key", c.apiKey)
	reqURL := c.baseURL + path + "?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected HTTP status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	c.cache.Set(ctx, cacheKey, body)
	return body, nil
}

// statusErr maps an API status field to an error, nil for OK.
func statusErr(status, message string) error {
	switch status {
	case "OK":
		return nil
	case "ZERO_RESULTS":
		return ErrNoResults
	default:
		return &StatusError{Status: status, Message: message}
	}
}
