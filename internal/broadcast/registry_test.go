package broadcast

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/LucasSchemes/servidor-propaganda/internal/adapter/metrics"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_RegisterAssignsUniqueIDs(t *testing.T) {
	r := NewRegistry(nil)
	defer r.CloseAll()

	a := r.Register(newFakeSink())
	b := r.Register(newFakeSink())

	assert.NotEqual(t, a.ID(), b.ID())
	assert.Equal(t, StateActive, a.State())
	assert.Equal(t, 2, r.Len())
}

func TestRegistry_DeregisterIsIdempotent(t *testing.T) {
	r := NewRegistry(nil)
	sink := newFakeSink()
	s := r.Register(sink)

	r.Deregister(s.ID())
	r.Deregister(s.ID())
	r.Deregister(SessionID(9999))

	assert.Equal(t, 0, r.Len())
	assert.Equal(t, StateClosed, s.State())
	assert.True(t, sink.IsClosed())
}

func TestRegistry_ForEachEvictsFailingSessions(t *testing.T) {
	r := NewRegistry(nil)
	defer r.CloseAll()

	keep := r.Register(newFakeSink())
	drop := r.Register(newFakeSink())

	delivered, failed := r.ForEach(func(s *Session) error {
		if s.ID() == drop.ID() {
			return errors.New("boom")
		}
		return nil
	})

	assert.Equal(t, 1, delivered)
	assert.Equal(t, 1, failed)
	assert.Equal(t, 1, r.Len())
	_, ok := r.Get(keep.ID())
	assert.True(t, ok)
	assert.ErrorIs(t, drop.Err(), ErrEvicted)
}

func TestRegistry_ForEachToleratesMutation(t *testing.T) {
	r := NewRegistry(nil)
	defer r.CloseAll()

	for range 5 {
		r.Register(newFakeSink())
	}

	visited := 0
	r.ForEach(func(s *Session) error {
		visited++
		r.Deregister(s.ID())
		r.Register(newFakeSink())
		return nil
	})

	assert.Equal(t, 5, visited)
	assert.Equal(t, 5, r.Len())
}

func TestRegistry_WriteFailureDeregisters(t *testing.T) {
	r := NewRegistry(nil)
	s := r.Register(newFailingSink())

	require.NoError(t, s.enqueue(contentFrame(1, []byte(`[]`))))

	assert.Eventually(t, func() bool { return r.Len() == 0 }, time.Second, 5*time.Millisecond)
	assert.ErrorIs(t, s.Err(), errSinkBroken)
}

func TestRegistry_ConcurrentRegisterDeregister(t *testing.T) {
	r := NewRegistry(nil)
	defer r.CloseAll()

	var wg sync.WaitGroup
	ids := make(chan SessionID, 200)
	for range 100 {
		wg.Add(2)
		go func() {
			defer wg.Done()
			ids <- r.Register(newFakeSink()).ID()
		}()
		go func() {
			defer wg.Done()
			r.ForEach(func(*Session) error { return nil })
		}()
	}
	wg.Wait()
	close(ids)

	seen := make(map[SessionID]bool)
	for id := range ids {
		assert.False(t, seen[id], "duplicate session id %d", id)
		seen[id] = true
	}
	assert.Equal(t, 100, r.Len())
}

func TestRegistry_CloseAll(t *testing.T) {
	m := metrics.NewBroadcastMetrics(nil)
	r := NewRegistry(m)
	a := r.Register(newFakeSink())
	b := r.Register(newFakeSink())

	r.CloseAll()

	assert.Equal(t, 0, r.Len())
	assert.Equal(t, StateClosed, a.State())
	assert.Equal(t, StateClosed, b.State())
	assert.Equal(t, 2.0, testutil.ToFloat64(m.SessionsClosed.WithLabelValues("shutdown")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.ActiveSessions))
}
