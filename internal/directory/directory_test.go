package directory

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mspro-labs/coffee-finder/internal/config"
	"mspro-labs/coffee-finder/internal/models"
	"mspro-labs/coffee-finder/internal/state"
)

type fakePlaces struct {
	places []Place
	err    error
	center models.Coordinate
	limit  int
	query  string
}

func (f *fakePlaces) SearchPlaces(_ context.Context, query string, center models.Coordinate, limit int) ([]Place, error) {
	f.query, f.center, f.limit = query, center, limit
	if f.err != nil {
		return nil, f.err
	}
	if limit < len(f.places) {
		return f.places[:limit], nil
	}
	return f.places, nil
}

type fakePhotos struct {
	urls []string
	err  error
}

func (f *fakePhotos) SearchPhotos(context.Context, string, int) ([]string, error) {
	return f.urls, f.err
}

func newDirectory(t *testing.T, places PlaceSearcher, photos PhotoSearcher) *Directory {
	t.Helper()
	d, err := New(places, photos, config.Defaults().Search, nil, zerolog.Nop())
	require.NoError(t, err)
	return d
}

func makePlaces(n int) []Place {
	places := make([]Place, n)
	for i := range places {
		places[i] = Place{ID: fmt.Sprintf("fsq-%d", i), Name: fmt.Sprintf("Cafe %d", i)}
	}
	return places
}

func TestSearchEnoughPhotosForEveryPlace(t *testing.T) {
	d := newDirectory(t, &fakePlaces{places: makePlaces(4)}, &fakePhotos{urls: []string{"p0", "p1", "p2", "p3", "p4"}})

	shops, err := d.Search(context.Background(), nil, 4)
	require.NoError(t, err)
	require.Len(t, shops, 4)
	for i, s := range shops {
		assert.Equal(t, fmt.Sprintf("p%d", i), s.ImgURL)
	}
}

func TestSearchFewerPhotosThanPlaces(t *testing.T) {
	d := newDirectory(t, &fakePlaces{places: makePlaces(5)}, &fakePhotos{urls: []string{"p0", "p1"}})

	shops, err := d.Search(context.Background(), nil, 5)
	require.NoError(t, err)
	require.Len(t, shops, 5)
	assert.Equal(t, "p0", shops[0].ImgURL)
	assert.Equal(t, "p1", shops[1].ImgURL)
	for _, s := range shops[2:] {
		assert.Empty(t, s.ImgURL)
	}
}

func TestSearchDefaultsCenterAndLimit(t *testing.T) {
	places := &fakePlaces{places: makePlaces(10)}
	d := newDirectory(t, places, &fakePhotos{})

	shops, err := d.Search(context.Background(), nil, 0)
	require.NoError(t, err)
	assert.Len(t, shops, 6)
	assert.Equal(t, 6, places.limit)
	assert.Equal(t, "cafe", places.query)
	assert.Equal(t, "43.24907161731134,-2.940153717330441", places.center.String())

	center := models.Coordinate{Lat: 43.65, Lng: -79.38}
	_, err = d.Search(context.Background(), &center, 2)
	require.NoError(t, err)
	assert.Equal(t, center, places.center)
	assert.Equal(t, 2, places.limit)
}

func TestSearchFailsWhenEitherUpstreamFails(t *testing.T) {
	boom := errors.New("boom")

	d := newDirectory(t, &fakePlaces{places: makePlaces(2)}, &fakePhotos{err: boom})
	_, err := d.Search(context.Background(), nil, 2)
	var upstream *UpstreamError
	require.ErrorAs(t, err, &upstream)
	assert.Equal(t, "unsplash", upstream.API)
	assert.ErrorIs(t, err, boom)

	d = newDirectory(t, &fakePlaces{err: boom}, &fakePhotos{urls: []string{"p0"}})
	_, err = d.Search(context.Background(), nil, 2)
	require.ErrorAs(t, err, &upstream)
	assert.Equal(t, "foursquare", upstream.API)
}

func TestNormalizeNeighborhood(t *testing.T) {
	withList := Normalize(Place{ID: "a", Location: PlaceLocation{
		Neighborhood: []string{"Casco Viejo", "Abando"},
		Locality:     "Bilbao",
		Address:      "Calle 1",
	}}, "No address specified")
	assert.Equal(t, "Casco Viejo", withList.Neighborhood)
	assert.Equal(t, "Calle 1", withList.Address)

	withoutList := Normalize(Place{ID: "b", Location: PlaceLocation{Locality: "Bilbao"}}, "No address specified")
	assert.Equal(t, "Bilbao", withoutList.Neighborhood)
	assert.Equal(t, "No address specified", withoutList.Address)
}

func TestSearchAgainstHTTPUpstreams(t *testing.T) {
	var gotLL, gotLimit, gotAuth, gotPhotoAuth string
	fsq := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotLL = r.URL.Query().Get("ll")
		gotLimit = r.URL.Query().Get("limit")
		gotAuth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"results":[
			{"fsq_id":"one","name":"First","location":{"address":"1 Main St","locality":"Town","neighborhood":["North"]}},
			{"fsq_id":"two","name":"Second","location":{"locality":"Town"}}
		]}`))
	}))
	defer fsq.Close()

	unsplash := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPhotoAuth = r.Header.Get("Authorization")
		assert.Equal(t, "coffee shop", r.URL.Query().Get("query"))
		_, _ = w.Write([]byte(`{"results":[{"urls":{"small":"https://img/1.jpg"}}]}`))
	}))
	defer unsplash.Close()

	cfg := config.Defaults().Search
	d, err := New(
		NewFoursquareClient("fsq-key", fsq.URL, time.Second),
		NewUnsplashClient("us-key", unsplash.URL, time.Second),
		cfg, nil, zerolog.Nop(),
	)
	require.NoError(t, err)

	center := models.Coordinate{}
	shops, err := d.Search(context.Background(), &center, 2)
	require.NoError(t, err)

	assert.Equal(t, "0,0", gotLL)
	assert.Equal(t, "2", gotLimit)
	assert.Equal(t, "fsq-key", gotAuth)
	assert.Equal(t, "Client-ID us-key", gotPhotoAuth)

	require.Len(t, shops, 2)
	assert.Equal(t, models.ShopRecord{ID: "one", Name: "First", Address: "1 Main St", Neighborhood: "North", ImgURL: "https://img/1.jpg"}, shops[0])
	assert.Equal(t, models.ShopRecord{ID: "two", Name: "Second", Address: "No address specified", Neighborhood: "Town"}, shops[1])
}

func TestFoursquareErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
	}))
	defer srv.Close()

	_, err := NewFoursquareClient("", srv.URL, time.Second).SearchPlaces(context.Background(), "cafe", models.Coordinate{}, 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 401")
}

func TestSyncPublishesShops(t *testing.T) {
	places := &fakePlaces{places: makePlaces(3)}
	d := newDirectory(t, places, &fakePhotos{urls: []string{"p0"}})
	store := state.NewStore()
	require.NoError(t, store.Dispatch(state.SetCoordinatesAction(models.Coordinate{Lat: 10, Lng: 20})))

	shops, err := Sync(context.Background(), d, store, 3)
	require.NoError(t, err)
	assert.Len(t, shops, 3)
	assert.Equal(t, models.Coordinate{Lat: 10, Lng: 20}, places.center)
	assert.Equal(t, shops, store.Shops())
}
