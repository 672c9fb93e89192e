package directory

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"mspro-labs/coffee-finder/internal/config"
	"mspro-labs/coffee-finder/internal/logging"
	"mspro-labs/coffee-finder/internal/models"
	"mspro-labs/coffee-finder/internal/state"
	"mspro-labs/coffee-finder/internal/telemetry"
)

// PlaceSearcher is the places-search collaborator.
type PlaceSearcher interface {
	SearchPlaces(ctx context.Context, query string, center models.Coordinate, limit int) ([]Place, error)
}

// PhotoSearcher is the photo-search collaborator.
type PhotoSearcher interface {
	SearchPhotos(ctx context.Context, query string, perPage int) ([]string, error)
}

// UpstreamError is a failure talking to one of the third-party APIs.
type UpstreamError struct {
	API string
	Err error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%s request failed: %v", e.API, e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// Searcher is what Sync needs from a Directory.
type Searcher interface {
	Search(ctx context.Context, center *models.Coordinate, limit int) ([]models.ShopRecord, error)
}

// Directory merges nearby places with coffee shop photos.
type Directory struct {
	places  PlaceSearcher
	photos  PhotoSearcher
	cfg     config.SearchConfig
	center  models.Coordinate
	metrics telemetry.Collector
	logger  zerolog.Logger
}

// New builds a Directory. cfg.DefaultLatLong must parse.
func New(places PlaceSearcher, photos PhotoSearcher, cfg config.SearchConfig, metrics telemetry.Collector, logger zerolog.Logger) (*Directory, error) {
	center, err := models.ParseCoordinate(cfg.DefaultLatLong)
	if err != nil {
		return nil, fmt.Errorf("invalid default_lat_long: %w", err)
	}
	if metrics == nil {
		metrics = telemetry.Noop()
	}
	return &Directory{
		places:  places,
		photos:  photos,
		cfg:     cfg,
		center:  center,
		metrics: metrics,
		logger:  logging.Component(logger, "directory"),
	}, nil
}

// DefaultCenter is the coordinate used when the location is unknown.
func (d *Directory) DefaultCenter() models.Coordinate {
	return d.center
}

// Search returns up to limit shops around center. A nil center falls back to
// the configured default and limit <= 0 to the configured limit.
func (d *Directory) Search(ctx context.Context, center *models.Coordinate, limit int) ([]models.ShopRecord, error) {
	if limit <= 0 {
		limit = d.cfg.Limit
	}
	c := d.center
	if center != nil {
		c = *center
	}

	// 1. Fetch photos and places concurrently; either failure fails the search.
	var photos []string
	var places []Place
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		photos, err = d.photos.SearchPhotos(gctx, d.cfg.PhotoQuery, d.cfg.PhotoCount)
		d.metrics.IncUpstreamRequest("unsplash", telemetry.Outcome(err))
		if err != nil {
			return &UpstreamError{API: "unsplash", Err: err}
		}
		return nil
	})
	g.Go(func() error {
		var err error
		places, err = d.places.SearchPlaces(gctx, d.cfg.Query, c, limit)
		d.metrics.IncUpstreamRequest("foursquare", telemetry.Outcome(err))
		if err != nil {
			return &UpstreamError{API: "foursquare", Err: err}
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	// 2. Pair by position and normalize
	shops := Merge(places, photos, d.cfg.PlaceholderAddress)
	d.logger.Debug().
		Str("lat_long", c.String()).
		Int("places", len(places)).
		Int("photos", len(photos)).
		Msg("search complete")
	return shops, nil
}

// Merge pairs the i-th place with the i-th photo. Places beyond the photo
// list get no image. Photos are unrelated to the places; pairing is purely
// by index.
func Merge(places []Place, photos []string, placeholderAddress string) []models.ShopRecord {
	shops := make([]models.ShopRecord, 0, len(places))
	for i, p := range places {
		shop := Normalize(p, placeholderAddress)
		if i < len(photos) {
			shop.ImgURL = photos[i]
		}
		shops = append(shops, shop)
	}
	return shops
}

// Normalize converts a place into a ShopRecord.
func Normalize(p Place, placeholderAddress string) models.ShopRecord {
	neighborhood := p.Location.Locality
	if len(p.Location.Neighborhood) > 0 {
		neighborhood = p.Location.Neighborhood[0]
	}
	address := p.Location.Address
	if address == "" {
		address = placeholderAddress
	}
	return models.ShopRecord{
		ID:           p.ID,
		Name:         p.Name,
		Address:      address,
		Neighborhood: neighborhood,
	}
}

// Sync searches around the store's coordinates and publishes the result
// with SET_SHOPS. It is the step run after every coordinate change.
func Sync(ctx context.Context, d Searcher, store *state.Store, limit int) ([]models.ShopRecord, error) {
	shops, err := d.Search(ctx, store.Coordinates(), limit)
	if err != nil {
		return nil, err
	}
	if err := store.Dispatch(state.SetShopsAction(shops)); err != nil {
		return nil, err
	}
	return shops, nil
}
