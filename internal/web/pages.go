package web

import (
	"context"
	"errors"
	"html/template"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"mspro-labs/coffee-finder/internal/api"
	"mspro-labs/coffee-finder/internal/detail"
	"mspro-labs/coffee-finder/internal/directory"
	"mspro-labs/coffee-finder/internal/geo"
	"mspro-labs/coffee-finder/internal/logging"
	"mspro-labs/coffee-finder/internal/models"
	"mspro-labs/coffee-finder/internal/shops"
)

// Options configures Pages.
type Options struct {
	Limit            int
	FallbackImageURL string
	WaitForShops     time.Duration
}

// Pages renders the landing page and the shop detail pages.
type Pages struct {
	dir    directory.Searcher
	shops  detail.ShopService
	queue  detail.Submitter
	opts   Options
	logger zerolog.Logger

	homeTmpl  *template.Template
	storeTmpl *template.Template

	// listing at the default location, rendered into the landing page and
	// used as the static record of detail pages
	mu       sync.RWMutex
	featured []models.ShopRecord
}

type homeData struct {
	Title           string
	DefaultHeading  string
	Stores          []models.ShopRecord
	Nearby          []models.ShopRecord
	Error           string
	FallbackImage   string
	Limit           int
	MsgNotSupported string
	MsgUnavailable  string
}

type storeData struct {
	Title    string
	ID       string
	Phase    string
	Record   models.ShopRecord
	Voting   int
	NotFound bool
	Error    string
}

// NewPages parses the embedded templates.
func NewPages(dir directory.Searcher, svc detail.ShopService, queue detail.Submitter, opts Options, logger zerolog.Logger) (*Pages, error) {
	funcs := template.FuncMap{
		"imageOr": func(u string) string {
			if u == "" {
				return opts.FallbackImageURL
			}
			return u
		},
	}
	home, err := parsePage(funcs, "home.html")
	if err != nil {
		return nil, err
	}
	store, err := parsePage(funcs, "store.html")
	if err != nil {
		return nil, err
	}
	return &Pages{
		dir:       dir,
		shops:     svc,
		queue:     queue,
		opts:      opts,
		logger:    logging.Component(logger, "web"),
		homeTmpl:  home,
		storeTmpl: store,
	}, nil
}

// Routes registers the page handlers.
func (p *Pages) Routes(r chi.Router) {
	r.Get("/", p.home)
	r.Get("/coffee-store/{id}", p.store)
	r.Post("/coffee-store/{id}/upvote", p.upvote)
}

// Prerender fetches the listing at the default location.
func (p *Pages) Prerender(ctx context.Context) error {
	list, err := p.dir.Search(ctx, nil, p.opts.Limit)
	if err != nil {
		return err
	}
	p.mu.Lock()
	p.featured = list
	p.mu.Unlock()
	return nil
}

func (p *Pages) featuredStores(ctx context.Context) ([]models.ShopRecord, error) {
	p.mu.RLock()
	list := p.featured
	p.mu.RUnlock()
	if len(list) > 0 {
		return list, nil
	}
	if err := p.Prerender(ctx); err != nil {
		return nil, err
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.featured, nil
}

func (p *Pages) staticRecord(id string) models.ShopRecord {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, s := range p.featured {
		if s.ID == id {
			return s
		}
	}
	return models.ShopRecord{}
}

func (p *Pages) home(w http.ResponseWriter, r *http.Request) {
	data := homeData{
		Title:           "Coffee Connoisseur",
		DefaultHeading:  "Featured stores",
		FallbackImage:   p.opts.FallbackImageURL,
		Limit:           p.opts.Limit,
		MsgNotSupported: geo.MsgNotSupported,
		MsgUnavailable:  geo.MsgUnavailable,
	}
	stores, err := p.featuredStores(r.Context())
	if err != nil {
		p.logger.Error().Err(err).Msg("failed to load featured stores")
		data.Error = "Could not load coffee stores right now"
	}
	data.Stores = stores
	if s := api.StoreFromContext(r.Context()); s != nil {
		data.Nearby = s.Shops()
	}
	p.render(w, p.homeTmpl, http.StatusOK, data)
}

func (p *Pages) newView(r *http.Request, id string) *detail.View {
	return detail.NewView(id, p.shops, p.queue, detail.Options{
		Static:       p.staticRecord(id),
		Store:        api.StoreFromContext(r.Context()),
		WaitForShops: p.opts.WaitForShops,
	}, p.logger)
}

func (p *Pages) store(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	view := p.newView(r, id)
	_ = view.Mount(r.Context())
	p.renderStore(w, id, view.State())
}

// upvote handles the vote form. Success redirects back to the page; a
// failure re-renders it with the error and the unchanged count.
func (p *Pages) upvote(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")
	view := p.newView(r, id)
	if err := view.Mount(ctx); err != nil {
		p.renderStore(w, id, view.State())
		return
	}
	if task := view.State().Ensure; task != nil {
		if err := task.Wait(ctx); err != nil {
			p.logger.Warn().Err(err).Str("shop_id", id).Msg("coffee store creation failed before upvote")
		}
	}

	if err := view.Upvote(ctx); err != nil {
		p.renderStore(w, id, view.State())
		return
	}
	http.Redirect(w, r, "/coffee-store/"+url.PathEscape(id), http.StatusSeeOther)
}

func (p *Pages) renderStore(w http.ResponseWriter, id string, st detail.State) {
	data := storeData{
		Title:    st.Record.Name,
		ID:       id,
		Phase:    st.Phase.String(),
		Record:   st.Record,
		Voting:   st.Voting,
		NotFound: st.Phase == detail.NotFound,
	}
	if data.Title == "" {
		data.Title = "Coffee store"
	}
	if st.Err != nil {
		data.Error = st.Err.Error()
	}
	p.render(w, p.storeTmpl, statusFor(st), data)
}

func statusFor(st detail.State) int {
	var ve *shops.ValidationError
	switch {
	case st.Err == nil:
		return http.StatusOK
	case errors.Is(st.Err, shops.ErrNotFound):
		if st.Phase == detail.NotFound {
			return http.StatusNotFound
		}
		return http.StatusBadRequest
	case errors.As(st.Err, &ve):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (p *Pages) render(w http.ResponseWriter, t *template.Template, status int, data any) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := t.ExecuteTemplate(w, "base.html", data); err != nil {
		p.logger.Error().Err(err).Msg("template error")
	}
}
