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
)

type unsplashResponse struct {
	Results []struct {
		URLs struct {
			Small string `json:"small"`
		} `json:"urls"`
	} `json:"results"`
}

// UnsplashClient searches the Unsplash photo API.
type UnsplashClient struct {
	accessKey  string
	baseURL    string
	httpClient *http.Client
}

// NewUnsplashClient creates a client against baseURL
// (https://api.unsplash.com/search/photos in production).
func NewUnsplashClient(accessKey, baseURL string, timeout time.Duration) *UnsplashClient {
	return &UnsplashClient{
		accessKey:  accessKey,
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// SearchPhotos returns the small-size URLs of up to perPage photos.
func (c *UnsplashClient) SearchPhotos(ctx context.Context, query string, perPage int) ([]string, error) {
	params := url.Values{}
	params.Set("query", query)
	params.Set("per_page", strconv.Itoa(perPage))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept-Version", "v1")
	req.Header.Set("Authorization", "Client-ID "+c.accessKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call Unsplash API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("Unsplash API error (status %d): %s", resp.StatusCode, string(body))
	}

	var result unsplashResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to parse Unsplash response: %w", err)
	}

	urls := make([]string, 0, len(result.Results))
	for _, r := range result.Results {
		urls = append(urls, r.URLs.Small)
	}
	return urls, nil
}
