package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mspro-labs/coffee-finder/internal/config"
	"mspro-labs/coffee-finder/internal/db"
	"mspro-labs/coffee-finder/internal/directory"
	"mspro-labs/coffee-finder/internal/models"
	"mspro-labs/coffee-finder/internal/shops"
	"mspro-labs/coffee-finder/internal/state"
)

type fakePlaces struct {
	mu     sync.Mutex
	err    error
	center models.Coordinate
}

func (f *fakePlaces) SearchPlaces(_ context.Context, _ string, center models.Coordinate, limit int) ([]directory.Place, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.center = center
	if f.err != nil {
		return nil, f.err
	}
	out := make([]directory.Place, limit)
	for i := range out {
		out[i] = directory.Place{ID: fmt.Sprintf("fsq-%d", i), Name: fmt.Sprintf("Cafe %d", i)}
	}
	return out, nil
}

type fakePhotos struct{ urls []string }

func (f *fakePhotos) SearchPhotos(context.Context, string, int) ([]string, error) {
	return f.urls, nil
}

type testEnv struct {
	server   *httptest.Server
	table    *db.ShopTable
	places   *fakePlaces
	sessions *state.Registry
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	database, err := db.Connect(filepath.Join(t.TempDir(), "coffee.db"))
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })

	table := db.NewShopTable(database)
	svc := shops.NewService(table, nil, zerolog.Nop())
	places := &fakePlaces{}
	dir, err := directory.New(places, &fakePhotos{urls: []string{"https://img/only"}}, config.Defaults().Search, nil, zerolog.Nop())
	require.NoError(t, err)

	sessions := state.NewRegistry(time.Hour, 0)
	router := NewRouter(RouterOptions{Logger: zerolog.Nop(), Sessions: sessions}, NewHandler(svc, dir, 6, zerolog.Nop()))
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return &testEnv{server: srv, table: table, places: places, sessions: sessions}
}

func (e *testEnv) do(t *testing.T, method, path, body string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, e.server.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := e.server.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func TestCreateCoffeeStore(t *testing.T) {
	env := newTestEnv(t)
	body := `{"id":"abc","name":"Joe's","neighbourhood":"Old Town","address":"1 Main St","imgUrl":"https://img/1","voting":12}`

	resp := env.do(t, http.MethodPost, "/api/createCoffeeStore", body)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	created := decode[[]models.PersistedShop](t, resp)
	require.Len(t, created, 1)
	assert.Equal(t, "abc", created[0].ID)
	assert.Equal(t, "Joe's", created[0].Name)
	assert.Zero(t, created[0].Voting)
	assert.NotEmpty(t, created[0].RecordID)

	again := env.do(t, http.MethodPost, "/api/createCoffeeStore", `{"id":"abc","name":"Renamed"}`)
	require.Equal(t, http.StatusOK, again.StatusCode)
	found := decode[[]models.PersistedShop](t, again)
	assert.Equal(t, created, found)
}

func TestCreateCoffeeStoreValidation(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, http.MethodPost, "/api/createCoffeeStore", `{"name":"Joe's"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "Id is missing", decode[errorBody](t, resp).Message)

	resp = env.do(t, http.MethodPost, "/api/createCoffeeStore", `{"id":"abc"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "Id or name fields are missing", decode[errorBody](t, resp).Message)

	resp = env.do(t, http.MethodGet, "/api/createCoffeeStore", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	none, err := env.table.FindByID(context.Background(), "abc")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestGetCoffeeStoreByID(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, http.MethodGet, "/api/getCoffeeStoreById?id=abc", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Id could not be found", decode[messageBody](t, resp).Message)

	env.do(t, http.MethodPost, "/api/createCoffeeStore", `{"id":"abc","name":"Joe's"}`)
	resp = env.do(t, http.MethodGet, "/api/getCoffeeStoreById?id=abc", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	records := decode[[]models.PersistedShop](t, resp)
	require.Len(t, records, 1)
	assert.Equal(t, "Joe's", records[0].Name)

	resp = env.do(t, http.MethodGet, "/api/getCoffeeStoreById", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "The id is missing", decode[errorBody](t, resp).Message)
}

func TestFavouriteCoffeeStoreByID(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	created, err := env.table.Create(ctx, models.PersistedShop{ID: "abc", Name: "Joe's"})
	require.NoError(t, err)
	_, err = env.table.UpdateVoting(ctx, created[0].RecordID, 3)
	require.NoError(t, err)

	resp := env.do(t, http.MethodPut, "/api/favouriteCoffeeStoreById", `{"id":"abc"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	records := decode[[]models.PersistedShop](t, resp)
	require.Len(t, records, 1)
	assert.Equal(t, 4, records[0].Voting)

	resp = env.do(t, http.MethodPut, "/api/favouriteCoffeeStoreById", `{"id":"nope"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	body := decode[errorBody](t, resp)
	assert.Equal(t, "nope", body.ID)

	resp = env.do(t, http.MethodPut, "/api/favouriteCoffeeStoreById", `{}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "id is missing", decode[errorBody](t, resp).Message)

	resp = env.do(t, http.MethodPost, "/api/favouriteCoffeeStoreById", `{"id":"abc"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "The method is not a PUT method", decode[errorBody](t, resp).Message)

	found, err := env.table.FindByID(ctx, "abc")
	require.NoError(t, err)
	assert.Equal(t, 4, found[0].Voting)
}

func TestGetCoffeeStoresByLocation(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, http.MethodGet, "/api/getCoffeeStoresByLocation?latLong=0,0&limit=2", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	found := decode[[]models.ShopRecord](t, resp)
	require.Len(t, found, 2)
	assert.Equal(t, "https://img/only", found[0].ImgURL)
	assert.Empty(t, found[1].ImgURL)
	assert.Equal(t, "No address specified", found[0].Address)
	env.places.mu.Lock()
	assert.Equal(t, models.Coordinate{Lat: 0, Lng: 0}, env.places.center)
	env.places.mu.Unlock()

	for _, q := range []string{"latLong=abc", "latLong=91,0", "latLong=0,0&limit=x", "latLong=0,0&limit=0"} {
		resp := env.do(t, http.MethodGet, "/api/getCoffeeStoresByLocation?"+q, "")
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, q)
	}

	env.places.mu.Lock()
	env.places.err = errors.New("upstream down")
	env.places.mu.Unlock()
	resp = env.do(t, http.MethodGet, "/api/getCoffeeStoresByLocation?latLong=0,0", "")
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
}

func TestTrackLocationUpdatesSession(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, http.MethodPost, "/api/location", `{"latLong":"40.4,-3.7","limit":3}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	found := decode[[]models.ShopRecord](t, resp)
	assert.Len(t, found, 3)

	var sessionID string
	for _, c := range resp.Cookies() {
		if c.Name == SessionCookie {
			sessionID = c.Value
		}
	}
	require.NotEmpty(t, sessionID)
	store, ok := env.sessions.Lookup(sessionID)
	require.True(t, ok)
	snap := store.Snapshot()
	require.NotNil(t, snap.Coordinates)
	assert.Equal(t, models.Coordinate{Lat: 40.4, Lng: -3.7}, *snap.Coordinates)
	assert.Equal(t, found, snap.Shops)

	resp = env.do(t, http.MethodPost, "/api/location", `{"latLong":"nowhere"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestStatelessEndpointsDoNotStartSessions(t *testing.T) {
	env := newTestEnv(t)

	for i := 0; i < 500; i++ {
		resp := env.do(t, http.MethodGet, "/api/getCoffeeStoreById?id=x", "")
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Empty(t, resp.Cookies())
	}
	env.do(t, http.MethodGet, "/api/getCoffeeStoresByLocation?latLong=0,0&limit=1", "")
	assert.Zero(t, env.sessions.Len())

	resp := env.do(t, http.MethodPost, "/api/location", `{"latLong":"40.4,-3.7","limit":1}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 1, env.sessions.Len())
}

func TestTrackLocationReusesSessionCookie(t *testing.T) {
	env := newTestEnv(t)

	first := env.do(t, http.MethodPost, "/api/location", `{"latLong":"40.4,-3.7","limit":1}`)
	require.Equal(t, http.StatusOK, first.StatusCode)
	require.Len(t, first.Cookies(), 1)

	req, err := http.NewRequest(http.MethodPost, env.server.URL+"/api/location", strings.NewReader(`{"latLong":"41,-3","limit":1}`))
	require.NoError(t, err)
	req.AddCookie(first.Cookies()[0])
	second, err := env.server.Client().Do(req)
	require.NoError(t, err)
	defer second.Body.Close()
	require.Equal(t, http.StatusOK, second.StatusCode)
	assert.Empty(t, second.Cookies())
	assert.Equal(t, 1, env.sessions.Len())

	store, ok := env.sessions.Lookup(first.Cookies()[0].Value)
	require.True(t, ok)
	assert.Equal(t, models.Coordinate{Lat: 41, Lng: -3}, *store.Coordinates())
}

func TestHealthz(t *testing.T) {
	env := newTestEnv(t)
	resp := env.do(t, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
