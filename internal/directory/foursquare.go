package directory

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"mspro-labs/coffee-finder/internal/models"
)

// Place is a venue as returned by the places API.
type Place struct {
	ID       string        `json:"fsq_id"`
	Name     string        `json:"name"`
	Location PlaceLocation `json:"location"`
}

type PlaceLocation struct {
	Address      string   `json:"address"`
	Locality     string   `json:"locality"`
	Neighborhood []string `json:"neighborhood"`
}

type foursquareResponse struct {
	Results []Place `json:"results"`
}

// FoursquareClient searches the Foursquare v3 places API.
type FoursquareClient struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// NewFoursquareClient creates a client against baseURL
// (https://api.foursquare.com/v3/places/search in production).
func NewFoursquareClient(apiKey, baseURL string, timeout time.Duration) *FoursquareClient {
	return &FoursquareClient{
		apiKey:     apiKey,
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// SearchPlaces finds venues matching query around center.
func (c *FoursquareClient) SearchPlaces(ctx context.Context, query string, center models.Coordinate, limit int) ([]Place, error) {
	params := url.Values{}
	params.Set("query", query)
	params.Set("ll", center.String())
	params.Set("limit", strconv.Itoa(limit))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call Foursquare API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("Foursquare API error (status %d): %s", resp.StatusCode, string(body))
	}

	var result foursquareResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to parse Foursquare response: %w", err)
	}
	return result.Results, nil
}
