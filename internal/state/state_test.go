package state

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mspro-labs/coffee-finder/internal/models"
)

func TestStoreStartsEmpty(t *testing.T) {
	s := NewStore()
	snap := s.Snapshot()
	assert.Nil(t, snap.Coordinates)
	assert.Empty(t, snap.Shops)
}

func TestDispatchSetCoordinates(t *testing.T) {
	s := NewStore()
	require.NoError(t, s.Dispatch(SetCoordinatesAction(models.Coordinate{Lat: 43.65, Lng: -79.38})))

	c := s.Coordinates()
	require.NotNil(t, c)
	assert.Equal(t, "43.65,-79.38", c.String())

	// the snapshot is a copy
	c.Lat = 0
	assert.Equal(t, 43.65, s.Coordinates().Lat)
}

func TestDispatchSetShopsReplacesWholesale(t *testing.T) {
	s := NewStore()
	first := []models.ShopRecord{{ID: "a"}, {ID: "b"}}
	require.NoError(t, s.Dispatch(SetShopsAction(first)))
	require.NoError(t, s.Dispatch(SetShopsAction([]models.ShopRecord{{ID: "c"}})))

	shops := s.Shops()
	require.Len(t, shops, 1)
	assert.Equal(t, "c", shops[0].ID)

	// callers cannot mutate the stored slice through their copy
	first[0].ID = "mutated"
	shops[0].ID = "mutated"
	assert.Equal(t, "c", s.Shops()[0].ID)
}

func TestDispatchRejectsUnknownAndInvalid(t *testing.T) {
	s := NewStore()
	assert.Error(t, s.Dispatch(Action{Type: "SET_THEME"}))
	assert.Error(t, s.Dispatch(SetCoordinatesAction(models.Coordinate{Lat: 120})))
	assert.Nil(t, s.Coordinates())
}

func TestDispatchOrderIsPreserved(t *testing.T) {
	s := NewStore()
	for i := 0; i < 10; i++ {
		require.NoError(t, s.Dispatch(SetCoordinatesAction(models.Coordinate{Lat: float64(i)})))
	}
	assert.Equal(t, 9.0, s.Coordinates().Lat)
}

func TestWaitForShopsReturnsWhenDispatched(t *testing.T) {
	s := NewStore()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(1)
	var got []models.ShopRecord
	var err error
	go func() {
		defer wg.Done()
		got, err = s.WaitForShops(ctx)
	}()

	// a coordinate change alone does not satisfy the waiter
	require.NoError(t, s.Dispatch(SetCoordinatesAction(models.Coordinate{Lat: 1, Lng: 1})))
	require.NoError(t, s.Dispatch(SetShopsAction([]models.ShopRecord{{ID: "abc"}})))
	wg.Wait()

	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "abc", got[0].ID)
}

func TestWaitForShopsHonoursContext(t *testing.T) {
	s := NewStore()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := s.WaitForShops(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

// fakeClock is advanced by hand in registry tests.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestRegistry(ttl time.Duration, maxSessions int) (*Registry, *fakeClock) {
	clock := &fakeClock{now: time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)}
	r := NewRegistry(ttl, maxSessions)
	r.now = clock.Now
	return r, clock
}

func TestRegistryLookup(t *testing.T) {
	r, _ := newTestRegistry(time.Minute, 0)
	id, s := r.NewSession()
	assert.NotEmpty(t, id)

	got, ok := r.Lookup(id)
	require.True(t, ok)
	assert.Same(t, s, got)

	_, ok = r.Lookup("unknown")
	assert.False(t, ok)
	assert.Equal(t, 1, r.Len())
}

func TestRegistryDropsIdleSessions(t *testing.T) {
	r, clock := newTestRegistry(time.Minute, 0)
	idle, _ := r.NewSession()
	active, _ := r.NewSession()

	clock.Advance(40 * time.Second)
	_, ok := r.Lookup(active)
	require.True(t, ok)

	clock.Advance(40 * time.Second)
	assert.Equal(t, 1, r.Sweep())
	assert.Equal(t, 1, r.Len())
	_, ok = r.Lookup(idle)
	assert.False(t, ok)
	_, ok = r.Lookup(active)
	assert.True(t, ok)

	// lookups of an expired session remove it even without a sweep
	clock.Advance(2 * time.Minute)
	_, ok = r.Lookup(active)
	assert.False(t, ok)
	assert.Zero(t, r.Len())
}

func TestRegistryNewSessionSweepsExpired(t *testing.T) {
	r, clock := newTestRegistry(time.Minute, 0)
	for i := 0; i < 5; i++ {
		r.NewSession()
	}
	clock.Advance(2 * time.Minute)
	r.NewSession()
	assert.Equal(t, 1, r.Len())
}

func TestRegistryCapEvictsLeastRecentlySeen(t *testing.T) {
	r, clock := newTestRegistry(0, 2)
	first, _ := r.NewSession()
	clock.Advance(time.Second)
	second, _ := r.NewSession()
	clock.Advance(time.Second)

	// touching the first session makes the second the oldest
	_, ok := r.Lookup(first)
	require.True(t, ok)
	clock.Advance(time.Second)

	third, _ := r.NewSession()
	assert.Equal(t, 2, r.Len())
	_, ok = r.Lookup(second)
	assert.False(t, ok)
	_, ok = r.Lookup(first)
	assert.True(t, ok)
	_, ok = r.Lookup(third)
	assert.True(t, ok)
}

func TestRegistryRunReportsAfterSweep(t *testing.T) {
	r, clock := newTestRegistry(time.Minute, 0)
	r.NewSession()
	clock.Advance(2 * time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	reports := make(chan int, 1)
	go r.Run(ctx, 5*time.Millisecond, func(active int) {
		select {
		case reports <- active:
		default:
		}
	})

	select {
	case n := <-reports:
		assert.Zero(t, n)
	case <-time.After(2 * time.Second):
		t.Fatal("sweeper did not report")
	}
}
