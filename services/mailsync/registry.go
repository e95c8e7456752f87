package mailsync

import (
	"sync"

	"github.com/pkg/errors"

	mserrors "github.com/customeros/mailsync/internal/errors"
	"github.com/customeros/mailsync/internal/models"
)

// SynchronizerFactory builds a synchronizer for an account. It is called
// with the registry lock held and must not block.
type SynchronizerFactory func(account *models.Account) *AccountSynchronizer

// Registry maps account IDs to their synchronizer. Entries are created once
// and never removed or replaced.
type Registry struct {
	mu      sync.Mutex
	factory SynchronizerFactory
	byID    map[string]*AccountSynchronizer
	order   []*AccountSynchronizer
}

func NewRegistry(factory SynchronizerFactory) *Registry {
	return &Registry{
		factory: factory,
		byID:    make(map[string]*AccountSynchronizer),
	}
}

// Ensure returns the synchronizer for account, creating it on first sight.
// For a known account the stored settings are refreshed in place.
func (r *Registry) Ensure(account *models.Account) (*AccountSynchronizer, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.byID[account.ID]; ok {
		s.setAccount(account)
		return s, false
	}
	s := r.factory(account)
	r.insert(account.ID, s)
	return s, true
}

func (r *Registry) insert(id string, s *AccountSynchronizer) {
	if _, ok := r.byID[id]; ok {
		panic(errors.Wrapf(mserrors.ErrDuplicateSynchronizer, "account %s", id))
	}
	r.byID[id] = s
	r.order = append(r.order, s)
}

func (r *Registry) Get(accountID string) (*AccountSynchronizer, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.byID[accountID]
	return s, ok
}

// Snapshot copies the entries in insertion order so callers can iterate
// without holding the lock.
func (r *Registry) Snapshot() []*AccountSynchronizer {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*AccountSynchronizer, len(r.order))
	copy(out, r.order)
	return out
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.order)
}
