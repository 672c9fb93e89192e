// Package api serves the JSON endpoints of the coffee store proxy.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"mspro-labs/coffee-finder/internal/detail"
	"mspro-labs/coffee-finder/internal/directory"
	"mspro-labs/coffee-finder/internal/geo"
	"mspro-labs/coffee-finder/internal/logging"
	"mspro-labs/coffee-finder/internal/models"
	"mspro-labs/coffee-finder/internal/shops"
	"mspro-labs/coffee-finder/internal/state"
)

// Handler holds the dependencies of the JSON endpoints.
type Handler struct {
	shops  detail.ShopService
	dir    directory.Searcher
	limit  int
	logger zerolog.Logger
}

// NewHandler creates the JSON endpoint handler. limit is the default search size.
func NewHandler(svc detail.ShopService, dir directory.Searcher, limit int, logger zerolog.Logger) *Handler {
	return &Handler{
		shops:  svc,
		dir:    dir,
		limit:  limit,
		logger: logging.Component(logger, "api"),
	}
}

// Routes registers the endpoints. Methods are checked by the handlers so a
// wrong verb gets a JSON 400 rather than the router's 405.
func (h *Handler) Routes(r chi.Router) {
	r.HandleFunc("/api/createCoffeeStore", h.createCoffeeStore)
	r.HandleFunc("/api/getCoffeeStoreById", h.getCoffeeStoreByID)
	r.HandleFunc("/api/favouriteCoffeeStoreById", h.favouriteCoffeeStoreByID)
	r.HandleFunc("/api/getCoffeeStoresByLocation", h.getCoffeeStoresByLocation)
	r.HandleFunc("/api/location", h.trackLocation)
}

func decodeBody(r *http.Request, v any) error {
	if r.Body == nil {
		return nil
	}
	err := json.NewDecoder(r.Body).Decode(v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

func (h *Handler) createCoffeeStore(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		badRequest(w, "The method is not a POST method", nil)
		return
	}
	var in shops.ShopInput
	if err := decodeBody(r, &in); err != nil {
		badRequest(w, "Invalid request body", err)
		return
	}

	records, created, err := h.shops.EnsureShopExists(r.Context(), in)
	if err != nil {
		writeError(w, h.logger, err, "Error creating or finding a store")
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, records)
}

func (h *Handler) getCoffeeStoreByID(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		badRequest(w, "The method is not a GET method", nil)
		return
	}
	records, err := h.shops.FetchShopByID(r.Context(), r.URL.Query().Get("id"))
	if err != nil {
		writeError(w, h.logger, err, "Something went wrong")
		return
	}
	if len(records) == 0 {
		writeJSON(w, http.StatusOK, messageBody{Message: "Id could not be found"})
		return
	}
	writeJSON(w, http.StatusOK, records)
}

func (h *Handler) favouriteCoffeeStoreByID(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		badRequest(w, "The method is not a PUT method", nil)
		return
	}
	var body struct {
		ID string `json:"id"`
	}
	if err := decodeBody(r, &body); err != nil {
		badRequest(w, "Invalid request body", err)
		return
	}

	records, err := h.shops.UpvoteShop(r.Context(), body.ID)
	if err != nil {
		if errors.Is(err, shops.ErrNotFound) {
			writeJSON(w, http.StatusBadRequest, errorBody{Message: "Coffee store id does not exist", ID: body.ID})
			return
		}
		writeError(w, h.logger, err, "Error upvoting coffee store")
		return
	}
	writeJSON(w, http.StatusOK, records)
}

// parseSearch reads the optional latLong and limit parameters. An absent
// latLong yields a nil center, meaning the default location.
func parseSearch(latLong, limit string) (*models.Coordinate, int, error) {
	var center *models.Coordinate
	if strings.TrimSpace(latLong) != "" {
		c, err := models.ParseCoordinate(latLong)
		if err != nil {
			return nil, 0, err
		}
		center = &c
	}
	n := 0
	if strings.TrimSpace(limit) != "" {
		v, err := strconv.Atoi(strings.TrimSpace(limit))
		if err != nil || v <= 0 {
			return nil, 0, fmt.Errorf("limit must be a positive integer, got %q", limit)
		}
		n = v
	}
	return center, n, nil
}

func (h *Handler) getCoffeeStoresByLocation(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		badRequest(w, "The method is not a GET method", nil)
		return
	}
	q := r.URL.Query()
	center, limit, err := parseSearch(q.Get("latLong"), q.Get("limit"))
	if err != nil {
		badRequest(w, "Invalid latLong or limit", err)
		return
	}
	if limit == 0 {
		limit = h.limit
	}

	found, err := h.dir.Search(r.Context(), center, limit)
	if err != nil {
		writeError(w, h.logger, err, "Oh no! Something went wrong!")
		return
	}
	writeJSON(w, http.StatusOK, found)
}

// trackLocation records the visitor's coordinates in the session state and
// refreshes the session's shop list around them.
func (h *Handler) trackLocation(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		badRequest(w, "The method is not a POST method", nil)
		return
	}
	store := StoreFromContext(r.Context())
	if store == nil {
		writeJSON(w, http.StatusInternalServerError, errorBody{Message: "No session"})
		return
	}
	var body struct {
		LatLong string `json:"latLong"`
		Limit   int    `json:"limit"`
	}
	if err := decodeBody(r, &body); err != nil {
		badRequest(w, "Invalid request body", err)
		return
	}
	c, err := models.ParseCoordinate(body.LatLong)
	if err != nil {
		badRequest(w, geo.MsgUnavailable, err)
		return
	}
	limit := body.Limit
	if limit <= 0 {
		limit = h.limit
	}

	found, err := h.locate(r.Context(), store, c, limit)
	if err != nil {
		writeError(w, h.logger, err, "Oh no! Something went wrong!")
		return
	}
	writeJSON(w, http.StatusOK, found)
}

func (h *Handler) locate(ctx context.Context, store *state.Store, c models.Coordinate, limit int) ([]models.ShopRecord, error) {
	tracker := geo.NewTracker(geo.StaticLocator{Position: c}, store)
	if _, err := tracker.Track(ctx); err != nil {
		return nil, err
	}
	return directory.Sync(ctx, h.dir, store, limit)
}
