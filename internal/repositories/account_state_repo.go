package repositories

import (
	"time"

	"github.com/BradenHooton/bastion/internal/models"
)

// AccountStateRepository holds the AccountSecurityState of every identity
// seen by this process
type AccountStateRepository struct {
	store *ShardedStore[models.AccountSecurityState]
}

// NewAccountStateRepository creates an empty repository
func NewAccountStateRepository() *AccountStateRepository {
	return &AccountStateRepository{
		store: NewShardedStore(DefaultShardCount, func(identity string) *models.AccountSecurityState {
			return &models.AccountSecurityState{Identity: identity}
		}),
	}
}

// Update atomically mutates the state of identity, creating it if needed
func (r *AccountStateRepository) Update(identity string, fn func(state *models.AccountSecurityState)) {
	r.store.Update(identity, fn)
}

// Get returns a copy of the state of identity
func (r *AccountStateRepository) Get(identity string) (models.AccountSecurityState, bool) {
	var out models.AccountSecurityState
	ok := r.store.View(identity, func(state *models.AccountSecurityState) {
		out = state.Clone()
	})
	return out, ok
}

// View runs fn on the state of identity without copying it. It reports
// false, without calling fn, when the identity is unknown.
func (r *AccountStateRepository) View(identity string, fn func(state *models.AccountSecurityState)) bool {
	return r.store.View(identity, fn)
}

// DeleteIdle removes identities that are unlocked, have no pending failures,
// and have had no attempt since cutoff
func (r *AccountStateRepository) DeleteIdle(cutoff time.Time) int {
	return r.store.Sweep(func(_ string, state *models.AccountSecurityState) bool {
		if state.IsLocked || state.FailedLoginAttempts > 0 {
			return false
		}
		return state.LastActivity().Before(cutoff)
	})
}

// Count returns the number of tracked identities
func (r *AccountStateRepository) Count() int {
	return r.store.Len()
}
