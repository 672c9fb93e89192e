// Package shops implements create-or-fetch, lookup and upvote of persisted
// coffee shops on top of a tabular store.
package shops

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"mspro-labs/coffee-finder/internal/logging"
	"mspro-labs/coffee-finder/internal/models"
	"mspro-labs/coffee-finder/internal/telemetry"
)

// Table is the tabular storage contract: filtered select by shop id,
// insert, and update of the vote count by storage record id.
type Table interface {
	FindByID(ctx context.Context, id string) ([]models.PersistedShop, error)
	Create(ctx context.Context, shop models.PersistedShop) ([]models.PersistedShop, error)
	UpdateVoting(ctx context.Context, recordID string, voting int) ([]models.PersistedShop, error)
}

// Incrementer is implemented by tables that can add one vote in a single
// atomic write. UpvoteShop prefers it over a read-then-write through
// UpdateVoting, which other processes writing the same row can race.
type Incrementer interface {
	IncrementVoting(ctx context.Context, recordID string) ([]models.PersistedShop, error)
}

// ShopInput is the payload of EnsureShopExists.
type ShopInput struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Address       string `json:"address"`
	Neighbourhood string `json:"neighbourhood"`
	ImgURL        string `json:"imgUrl"`
	// Voting is accepted for wire compatibility and ignored: new rows start at 0.
	Voting int `json:"voting"`
}

// InputFromRecord builds the EnsureShopExists payload for a display record.
func InputFromRecord(r models.ShopRecord) ShopInput {
	return ShopInput{
		ID:            r.ID,
		Name:          r.Name,
		Address:       r.Address,
		Neighbourhood: r.Neighborhood,
		ImgURL:        r.ImgURL,
	}
}

// Service serializes ensure and upvote per shop id inside this process, so
// concurrent requests handled here cannot double-insert or lose increments.
// Across processes only tables implementing Incrementer keep every vote.
type Service struct {
	table   Table
	metrics telemetry.Collector
	logger  zerolog.Logger

	mu    sync.Mutex
	locks map[string]*idLock
}

type idLock struct {
	mu   sync.Mutex
	refs int
}

// NewService creates a Service over table.
func NewService(table Table, metrics telemetry.Collector, logger zerolog.Logger) *Service {
	if metrics == nil {
		metrics = telemetry.Noop()
	}
	return &Service{
		table:   table,
		metrics: metrics,
		logger:  logging.Component(logger, "shops"),
		locks:   make(map[string]*idLock),
	}
}

func (s *Service) lock(id string) func() {
	s.mu.Lock()
	l, ok := s.locks[id]
	if !ok {
		l = &idLock{}
		s.locks[id] = l
	}
	l.refs++
	s.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		s.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(s.locks, id)
		}
		s.mu.Unlock()
	}
}

// EnsureShopExists returns the stored records for in.ID, inserting a new row
// with a zero vote count first when none exists. created reports whether an
// insert happened. Existing rows are never modified.
func (s *Service) EnsureShopExists(ctx context.Context, in ShopInput) (records []models.PersistedShop, created bool, err error) {
	defer func() { s.metrics.IncShopOperation("ensure", telemetry.Outcome(err)) }()

	id := strings.TrimSpace(in.ID)
	if id == "" {
		return nil, false, missing("id", "Id is missing")
	}

	unlock := s.lock(id)
	defer unlock()

	records, err = s.table.FindByID(ctx, id)
	if err != nil {
		return nil, false, &StorageError{Op: "find", Err: err}
	}
	if len(records) > 0 {
		return records, false, nil
	}

	if strings.TrimSpace(in.Name) == "" {
		return nil, false, missing("name", "Id or name fields are missing")
	}

	records, err = s.table.Create(ctx, models.PersistedShop{
		ID:            id,
		Name:          in.Name,
		Address:       in.Address,
		Neighbourhood: in.Neighbourhood,
		ImgURL:        in.ImgURL,
		Voting:        0,
	})
	if err != nil {
		return nil, false, &StorageError{Op: "create", Err: err}
	}
	s.logger.Info().Str("shop_id", id).Str("name", in.Name).Msg("coffee store created")
	return records, true, nil
}

// FetchShopByID returns the stored records for id; the slice is empty when
// nothing is stored.
func (s *Service) FetchShopByID(ctx context.Context, id string) (records []models.PersistedShop, err error) {
	defer func() { s.metrics.IncShopOperation("fetch", telemetry.Outcome(err)) }()

	id = strings.TrimSpace(id)
	if id == "" {
		return nil, missing("id", "The id is missing")
	}
	records, err = s.table.FindByID(ctx, id)
	if err != nil {
		return nil, &StorageError{Op: "find", Err: err}
	}
	return records, nil
}

// UpvoteShop increments the vote count of the shop by exactly one and
// returns the updated records. Unknown ids yield ErrNotFound without a write.
func (s *Service) UpvoteShop(ctx context.Context, id string) (records []models.PersistedShop, err error) {
	defer func() { s.metrics.IncShopOperation("upvote", telemetry.Outcome(err)) }()

	id = strings.TrimSpace(id)
	if id == "" {
		return nil, missing("id", "id is missing")
	}

	unlock := s.lock(id)
	defer unlock()

	found, err := s.table.FindByID(ctx, id)
	if err != nil {
		return nil, &StorageError{Op: "find", Err: err}
	}
	if len(found) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	current := found[0]
	if inc, ok := s.table.(Incrementer); ok {
		records, err = inc.IncrementVoting(ctx, current.RecordID)
	} else {
		records, err = s.table.UpdateVoting(ctx, current.RecordID, current.Voting+1)
	}
	if err != nil {
		return nil, &StorageError{Op: "update", Err: err}
	}
	if len(records) > 0 {
		s.logger.Debug().Str("shop_id", id).Int("voting", records[0].Voting).Msg("coffee store upvoted")
	}
	return records, nil
}
