package geo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"mspro-labs/coffee-finder/internal/models"
	"mspro-labs/coffee-finder/internal/state"
)

// User-facing messages reported by the Tracker.
const (
	MsgNotSupported = "Geolocation is not supported by your browser"
	MsgUnavailable  = "Unable to retrieve your location"
)

var (
	ErrNotSupported = errors.New(MsgNotSupported)
	ErrUnavailable  = errors.New(MsgUnavailable)
)

// Locator is a device location capability.
type Locator interface {
	CurrentPosition(ctx context.Context) (models.Coordinate, error)
}

// Tracker performs single-shot location captures and publishes the result
// to a state store.
type Tracker struct {
	locator    Locator
	dispatcher state.Dispatcher

	mu       sync.Mutex
	finding  bool
	errorMsg string
}

// NewTracker binds a locator to a dispatcher. A nil locator means the
// capability is absent.
func NewTracker(locator Locator, dispatcher state.Dispatcher) *Tracker {
	return &Tracker{locator: locator, dispatcher: dispatcher}
}

// Track captures the current position once.
func (t *Tracker) Track(ctx context.Context) (models.Coordinate, error) {
	t.mu.Lock()
	t.finding = true
	t.mu.Unlock()

	if t.locator == nil {
		t.finish(MsgNotSupported)
		return models.Coordinate{}, ErrNotSupported
	}

	c, err := t.locator.CurrentPosition(ctx)
	if err == nil {
		err = c.Validate()
	}
	if err != nil {
		t.finish(MsgUnavailable)
		return models.Coordinate{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	if t.dispatcher != nil {
		if err := t.dispatcher.Dispatch(state.SetCoordinatesAction(c)); err != nil {
			t.finish(MsgUnavailable)
			return models.Coordinate{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
	}
	t.finish("")
	return c, nil
}

func (t *Tracker) finish(msg string) {
	t.mu.Lock()
	t.errorMsg = msg
	t.finding = false
	t.mu.Unlock()
}

// InProgress reports whether a capture is outstanding.
func (t *Tracker) InProgress() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.finding
}

// ErrorMessage returns the message of the last failed capture, or "".
func (t *Tracker) ErrorMessage() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.errorMsg
}

// StaticLocator always reports the same position.
type StaticLocator struct {
	Position models.Coordinate
}

func (l StaticLocator) CurrentPosition(context.Context) (models.Coordinate, error) {
	return l.Position, nil
}

// IPLocator resolves the caller's approximate position through an
// ip-api.com compatible JSON endpoint.
type IPLocator struct {
	URL        string
	httpClient *http.Client
}

// NewIPLocator creates a locator against url, e.g. "http://ip-api.com/json".
func NewIPLocator(url string) *IPLocator {
	return &IPLocator{
		URL:        url,
		httpClient: &http.Client{Timeout: 5 * time.Second},
	}
}

type ipAPIResponse struct {
	Status  string  `json:"status"`
	Message string  `json:"message"`
	Lat     float64 `json:"lat"`
	Lon     float64 `json:"lon"`
}

func (l *IPLocator) CurrentPosition(ctx context.Context) (models.Coordinate, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, l.URL, nil)
	if err != nil {
		return models.Coordinate{}, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := l.httpClient.Do(req)
	if err != nil {
		return models.Coordinate{}, fmt.Errorf("failed to call IP geolocation API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return models.Coordinate{}, fmt.Errorf("IP geolocation API error (status %d): %s", resp.StatusCode, string(body))
	}

	var result ipAPIResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return models.Coordinate{}, fmt.Errorf("failed to parse IP geolocation response: %w", err)
	}
	if result.Status != "success" {
		return models.Coordinate{}, fmt.Errorf("IP geolocation failed: %s", result.Message)
	}
	return models.Coordinate{Lat: result.Lat, Lng: result.Lon}, nil
}
