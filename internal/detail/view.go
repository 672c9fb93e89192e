// Package detail reconciles a pre-rendered shop record with the session's
// shop list and the persisted record, and handles upvotes.
package detail

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"mspro-labs/coffee-finder/internal/logging"
	"mspro-labs/coffee-finder/internal/models"
	"mspro-labs/coffee-finder/internal/shops"
	"mspro-labs/coffee-finder/internal/state"
	"mspro-labs/coffee-finder/internal/tasks"
)

// Phase is the reconciliation state of a View.
type Phase int

const (
	StaticOnly Phase = iota
	Reconciling
	Live
	NotFound
)

func (p Phase) String() string {
	switch p {
	case StaticOnly:
		return "static"
	case Reconciling:
		return "reconciling"
	case Live:
		return "live"
	case NotFound:
		return "not_found"
	default:
		return "unknown"
	}
}

// ShopService is the persistence surface the view needs.
type ShopService interface {
	EnsureShopExists(ctx context.Context, in shops.ShopInput) ([]models.PersistedShop, bool, error)
	FetchShopByID(ctx context.Context, id string) ([]models.PersistedShop, error)
	UpvoteShop(ctx context.Context, id string) ([]models.PersistedShop, error)
}

// Submitter accepts background work.
type Submitter interface {
	Submit(name string, fn tasks.Func) (*tasks.Task, error)
}

// State is a copy of what the view displays.
type State struct {
	Phase  Phase
	Record models.ShopRecord
	Voting int
	// Err is the last failure: a fetch error in NotFound, or a failed upvote.
	Err error
	// Ensure is the pending create-if-missing task, if one was submitted.
	Ensure *tasks.Task
}

// View is the detail page of one shop.
type View struct {
	id      string
	service ShopService
	store   *state.Store
	queue   Submitter
	waitFor time.Duration
	logger  zerolog.Logger

	mu     sync.Mutex
	phase  Phase
	record models.ShopRecord
	voting int
	err    error
	ensure *tasks.Task
}

// Options configures a View.
type Options struct {
	// Static is the pre-rendered record; zero when the id was unknown at render time.
	Static models.ShopRecord
	// Store is the session state searched when Static is empty. Optional.
	Store *state.Store
	// WaitForShops bounds how long Mount waits for the session's shop list.
	WaitForShops time.Duration
}

// NewView creates a view for id in the StaticOnly phase.
func NewView(id string, service ShopService, queue Submitter, opts Options, logger zerolog.Logger) *View {
	return &View{
		id:      id,
		service: service,
		store:   opts.Store,
		queue:   queue,
		waitFor: opts.WaitForShops,
		logger:  logging.Component(logger, "detail").With().Str("shop_id", id).Logger(),
		phase:   StaticOnly,
		record:  opts.Static,
		voting:  opts.Static.Voting,
	}
}

// Mount runs the reconciliation: session lookup when the static record is
// empty, then the persisted lookup, which wins when it returns a record.
// Whichever non-persisted record gets displayed is queued for creation.
func (v *View) Mount(ctx context.Context) error {
	v.mu.Lock()
	static := v.record
	staticEmpty := static.IsEmpty()
	if staticEmpty {
		v.phase = Reconciling
	}
	v.mu.Unlock()

	if !staticEmpty {
		v.submitEnsure(static)
	} else if v.store != nil {
		if rec, ok := v.findInSession(ctx); ok {
			v.mu.Lock()
			v.record = rec
			v.voting = rec.Voting
			v.phase = Live
			v.mu.Unlock()
			v.submitEnsure(rec)
		}
	}

	records, err := v.service.FetchShopByID(ctx, v.id)
	v.mu.Lock()
	defer v.mu.Unlock()
	if err != nil {
		v.phase = NotFound
		v.err = err
		return err
	}
	if len(records) > 0 {
		v.record = records[0].ShopRecord()
		v.voting = records[0].Voting
		v.phase = Live
		return nil
	}
	if v.record.IsEmpty() {
		v.phase = NotFound
		v.err = shops.ErrNotFound
		return shops.ErrNotFound
	}
	return nil
}

func (v *View) findInSession(ctx context.Context) (models.ShopRecord, bool) {
	list := v.store.Shops()
	if len(list) == 0 && v.waitFor > 0 {
		wctx, cancel := context.WithTimeout(ctx, v.waitFor)
		defer cancel()
		var err error
		list, err = v.store.WaitForShops(wctx)
		if err != nil {
			return models.ShopRecord{}, false
		}
	}
	for _, s := range list {
		if s.ID == v.id {
			return s, true
		}
	}
	return models.ShopRecord{}, false
}

func (v *View) submitEnsure(rec models.ShopRecord) {
	if v.queue == nil {
		return
	}
	in := shops.InputFromRecord(rec)
	task, err := v.queue.Submit("ensure_shop", func(ctx context.Context) error {
		_, _, err := v.service.EnsureShopExists(ctx, in)
		return err
	})
	if err != nil {
		v.logger.Warn().Err(err).Msg("could not schedule coffee store creation")
		return
	}
	v.mu.Lock()
	v.ensure = task
	v.mu.Unlock()
}

// Upvote increments the shop's vote count. On success the displayed count
// goes up by one; on failure it is unchanged and the error is kept in State.
func (v *View) Upvote(ctx context.Context) error {
	_, err := v.service.UpvoteShop(ctx, v.id)
	v.mu.Lock()
	defer v.mu.Unlock()
	if err != nil {
		v.err = err
		if !errors.Is(err, context.Canceled) {
			v.logger.Warn().Err(err).Msg("upvote failed")
		}
		return err
	}
	v.voting++
	v.err = nil
	return nil
}

// State returns a copy of the displayed state.
func (v *View) State() State {
	v.mu.Lock()
	defer v.mu.Unlock()
	return State{
		Phase:  v.phase,
		Record: v.record,
		Voting: v.voting,
		Err:    v.err,
		Ensure: v.ensure,
	}
}
