package account

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"corral/internal/observe"
)

type countingSink struct {
	mu     sync.Mutex
	events []observe.Event
}

func (s *countingSink) Emit(evt observe.Event) {
	s.mu.Lock()
	s.events = append(s.events, evt)
	s.mu.Unlock()
}

func (s *countingSink) count(typ string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, e := range s.events {
		if e.Type == typ {
			n++
		}
	}
	return n
}

func TestRegistry_UpsertAndLookup(t *testing.T) {
	r := NewRegistry(nil)
	r.UpsertAccounts([]Account{
		{ID: "ACC1", Primary: true},
		{ID: "ACC2"},
	})

	primary, known := r.IsPrimary("ACC1")
	assert.True(t, known)
	assert.True(t, primary)

	primary, known = r.IsPrimary("ACC2")
	assert.True(t, known)
	assert.False(t, primary)

	// Unknown is a valid answer, not an error.
	_, known = r.IsPrimary("ACC9")
	assert.False(t, known)
	assert.False(t, r.Known("ACC9"))
}

func TestRegistry_SinglePrimaryEnforced(t *testing.T) {
	r := NewRegistry(nil)
	r.UpsertAccounts([]Account{
		{ID: "ACC2", Primary: true},
		{ID: "ACC1", Primary: true},
	})

	// First by sorted id wins.
	p1, _ := r.IsPrimary("ACC1")
	p2, _ := r.IsPrimary("ACC2")
	assert.True(t, p1)
	assert.False(t, p2)

	primaries := 0
	for _, a := range r.Accounts() {
		if a.Primary {
			primaries++
		}
	}
	assert.Equal(t, 1, primaries)
}

func TestRegistry_SnapshotReplacesSet(t *testing.T) {
	r := NewRegistry(nil)
	r.UpsertAccounts([]Account{{ID: "ACC1", Primary: true}, {ID: "ACC2"}})
	r.UpsertAccounts([]Account{{ID: "ACC3", Primary: true}})

	assert.False(t, r.Known("ACC1"))
	assert.False(t, r.Known("ACC2"))
	require.True(t, r.Known("ACC3"))
}

func TestRegistry_ChangeEventOnlyWhenSetChanges(t *testing.T) {
	sink := &countingSink{}
	r := NewRegistry(sink)

	r.UpsertAccounts([]Account{{ID: "ACC1", Primary: true}})
	assert.Equal(t, 1, sink.count(observe.EventAccountSetChanged))

	// Identical snapshot, no event.
	r.UpsertAccounts([]Account{{ID: "ACC1", Primary: true}})
	assert.Equal(t, 1, sink.count(observe.EventAccountSetChanged))

	r.UpsertAccounts([]Account{{ID: "ACC1"}})
	assert.Equal(t, 2, sink.count(observe.EventAccountSetChanged))
}

func TestRegistry_OrderAttributionSurvivesSwap(t *testing.T) {
	r := NewRegistry(nil)
	r.UpsertAccounts([]Account{{ID: "ACC1", Primary: true}})
	r.BindOrder("ORD-1", "ACC1")

	r.UpsertAccounts([]Account{{ID: "ACC2", Primary: true}})

	acct, ok := r.AccountForOrder("ORD-1")
	require.True(t, ok)
	assert.Equal(t, "ACC1", acct)
}
