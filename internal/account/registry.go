// Package account tracks the trading accounts reported by the feed and
// which orders belong to which account.
package account

import (
	"sort"
	"strings"
	"sync"

	"corral/internal/observe"
)

// Account is immutable after creation; the registry replaces entries
// wholesale when the feed delivers a new snapshot.
type Account struct {
	ID      string
	Primary bool
}

// Registry is read concurrently by every lane and written only when an
// account-list snapshot arrives. Readers see either the old or the fully
// updated set, never a partial one.
type Registry struct {
	mu       sync.RWMutex
	accounts map[string]Account
	orders   map[string]string // orderID -> accountID
	sink     observe.Sink
}

func NewRegistry(sink observe.Sink) *Registry {
	return &Registry{
		accounts: make(map[string]Account),
		orders:   make(map[string]string),
		sink:     sink,
	}
}

// UpsertAccounts replaces the known account set. At most one account may be
// primary; if the snapshot marks several, the first by id wins and the rest
// are demoted. Order attributions survive the swap.
func (r *Registry) UpsertAccounts(list []Account) {
	next := make(map[string]Account, len(list))
	primary := ""
	ids := make([]string, 0, len(list))
	for _, a := range list {
		id := strings.TrimSpace(a.ID)
		if id == "" {
			continue
		}
		ids = append(ids, id)
		next[id] = Account{ID: id, Primary: a.Primary}
	}
	sort.Strings(ids)
	for _, id := range ids {
		if next[id].Primary {
			if primary == "" {
				primary = id
			} else {
				a := next[id]
				a.Primary = false
				next[id] = a
			}
		}
	}

	r.mu.Lock()
	changed := !sameAccounts(r.accounts, next)
	r.accounts = next
	r.mu.Unlock()

	if changed {
		observe.Emit(r.sink, observe.EventAccountSetChanged, observe.SeverityInfo, map[string]any{
			"count":   len(next),
			"primary": primary,
		})
	}
}

// IsPrimary answers whether accountID is the primary account; the second
// return is false when the account is unknown. Unknown is a valid answer,
// not an error.
func (r *Registry) IsPrimary(accountID string) (bool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.accounts[accountID]
	if !ok {
		return false, false
	}
	return a.Primary, true
}

// Known reports whether the account id has been seen in a snapshot.
func (r *Registry) Known(accountID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.accounts[accountID]
	return ok
}

// Accounts returns a copy of the current set.
func (r *Registry) Accounts() []Account {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Account, 0, len(r.accounts))
	for _, a := range r.accounts {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// BindOrder records that orderID belongs to accountID. Called by the ledger
// when a submission is accepted.
func (r *Registry) BindOrder(orderID, accountID string) {
	if orderID == "" || accountID == "" {
		return
	}
	r.mu.Lock()
	r.orders[orderID] = accountID
	r.mu.Unlock()
}

// AccountForOrder resolves the owning account for an order id.
func (r *Registry) AccountForOrder(orderID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.orders[orderID]
	return id, ok
}

func sameAccounts(a, b map[string]Account) bool {
	if len(a) != len(b) {
		return false
	}
	for id, acct := range a {
		if other, ok := b[id]; !ok || other != acct {
			return false
		}
	}
	return true
}
