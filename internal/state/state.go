// Package state holds the per-session application state: the visitor's
// coordinates and the shop list. All mutation goes through Dispatch.
package state

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"mspro-labs/coffee-finder/internal/models"
)

// ActionType names one of the two recognised state transitions.
type ActionType string

const (
	SetCoordinates ActionType = "SET_COORDINATES"
	SetShops       ActionType = "SET_SHOPS"
)

// Action is a dispatched state transition.
type Action struct {
	Type        ActionType
	Coordinates models.Coordinate
	Shops       []models.ShopRecord
}

// SetCoordinatesAction builds a SET_COORDINATES action.
func SetCoordinatesAction(c models.Coordinate) Action {
	return Action{Type: SetCoordinates, Coordinates: c}
}

// SetShopsAction builds a SET_SHOPS action.
func SetShopsAction(shops []models.ShopRecord) Action {
	return Action{Type: SetShops, Shops: shops}
}

// Dispatcher is the write side of a Store.
type Dispatcher interface {
	Dispatch(Action) error
}

// Snapshot is a copy of the state at one point in time.
type Snapshot struct {
	Coordinates *models.Coordinate
	Shops       []models.ShopRecord
}

// Store owns the coordinates and the shop list.
type Store struct {
	mu          sync.RWMutex
	coordinates *models.Coordinate
	shops       []models.ShopRecord
	changed     chan struct{}
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{changed: make(chan struct{})}
}

// Dispatch applies a, replacing the targeted field wholesale.
func (s *Store) Dispatch(a Action) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch a.Type {
	case SetCoordinates:
		if err := a.Coordinates.Validate(); err != nil {
			return fmt.Errorf("%s: %w", a.Type, err)
		}
		c := a.Coordinates
		s.coordinates = &c
	case SetShops:
		s.shops = append([]models.ShopRecord(nil), a.Shops...)
	default:
		return fmt.Errorf("unknown action type %q", a.Type)
	}

	close(s.changed)
	s.changed = make(chan struct{})
	return nil
}

// Snapshot returns a copy of the current state.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

func (s *Store) snapshotLocked() Snapshot {
	snap := Snapshot{
		Shops: append([]models.ShopRecord(nil), s.shops...),
	}
	if s.coordinates != nil {
		c := *s.coordinates
		snap.Coordinates = &c
	}
	return snap
}

// Coordinates returns the stored coordinates, or nil when the location is unknown.
func (s *Store) Coordinates() *models.Coordinate {
	return s.Snapshot().Coordinates
}

// Shops returns a copy of the stored shop list.
func (s *Store) Shops() []models.ShopRecord {
	return s.Snapshot().Shops
}

// WaitForShops blocks until the shop list is non-empty or ctx is done.
func (s *Store) WaitForShops(ctx context.Context) ([]models.ShopRecord, error) {
	for {
		s.mu.RLock()
		snap := s.snapshotLocked()
		changed := s.changed
		s.mu.RUnlock()

		if len(snap.Shops) > 0 {
			return snap.Shops, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-changed:
		}
	}
}

// Registry maps session ids to stores. Sessions idle for longer than the
// TTL are dropped, and the registry never holds more than max sessions.
type Registry struct {
	idleTTL time.Duration
	max     int
	now     func() time.Time

	mu       sync.Mutex
	sessions map[string]*session
}

type session struct {
	store    *Store
	lastSeen time.Time
}

// NewRegistry returns an empty registry. A zero idleTTL or maxSessions disables
// that limit.
func NewRegistry(idleTTL time.Duration, maxSessions int) *Registry {
	return &Registry{
		idleTTL:  idleTTL,
		max:      maxSessions,
		now:      time.Now,
		sessions: make(map[string]*session),
	}
}

// NewSession allocates a fresh session id and its store, evicting expired
// sessions and, at capacity, the least recently seen one.
func (r *Registry) NewSession() (string, *Store) {
	id := uuid.NewString()
	s := NewStore()

	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	r.sweepLocked(now)
	if r.max > 0 && len(r.sessions) >= r.max {
		r.evictOldestLocked()
	}
	r.sessions[id] = &session{store: s, lastSeen: now}
	return id, s
}

// Lookup returns the store for id and marks the session as seen. Expired
// sessions are reported as unknown.
func (r *Registry) Lookup(id string) (*Store, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sess, ok := r.sessions[id]
	if !ok {
		return nil, false
	}
	now := r.now()
	if r.expired(sess, now) {
		delete(r.sessions, id)
		return nil, false
	}
	sess.lastSeen = now
	return sess.store, true
}

// Sweep drops expired sessions and returns how many were removed.
func (r *Registry) Sweep() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sweepLocked(r.now())
}

// Len reports the number of live sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Run sweeps every interval until ctx ends, passing the live session count
// to report after each sweep.
func (r *Registry) Run(ctx context.Context, interval time.Duration, report func(active int)) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Sweep()
			if report != nil {
				report(r.Len())
			}
		}
	}
}

func (r *Registry) expired(sess *session, now time.Time) bool {
	return r.idleTTL > 0 && now.Sub(sess.lastSeen) > r.idleTTL
}

func (r *Registry) sweepLocked(now time.Time) int {
	if r.idleTTL <= 0 {
		return 0
	}
	removed := 0
	for id, sess := range r.sessions {
		if r.expired(sess, now) {
			delete(r.sessions, id)
			removed++
		}
	}
	return removed
}

func (r *Registry) evictOldestLocked() {
	var oldestID string
	var oldest time.Time
	for id, sess := range r.sessions {
		if oldestID == "" || sess.lastSeen.Before(oldest) {
			oldestID, oldest = id, sess.lastSeen
		}
	}
	delete(r.sessions, oldestID)
}
