package bridge

import (
	"context"
	"fmt"
	"sync"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/fern/pkg/models"
)

// AdapterFactory builds an adapter for a freshly resolved account. The
// registry owns the resulting adapter's lifecycle.
type AdapterFactory func(account models.Account) (*Adapter, error)

// Registry tracks the active adapter per account id: add-on-start,
// remove-on-stop. Goroutines interleave, so access is mutex-guarded.
type Registry struct {
	factory AdapterFactory
	logger  ectologger.Logger

	mu       sync.Mutex
	adapters map[string]*Adapter
}

// NewRegistry creates an empty registry.
func NewRegistry(factory AdapterFactory, logger ectologger.Logger) *Registry {
	return &Registry{
		factory:  factory,
		logger:   logger,
		adapters: make(map[string]*Adapter),
	}
}

// StartAccount builds and starts an adapter for the account. Starting an
// already-running account is an error; stop it first.
func (r *Registry) StartAccount(ctx context.Context, account models.Account) error {
	if !account.Configured() {
		return fmt.Errorf("account %s is not configured (missing base URL or runtime token)", account.AccountID)
	}

	r.mu.Lock()
	if _, exists := r.adapters[account.AccountID]; exists {
		r.mu.Unlock()
		return fmt.Errorf("account %s is already running", account.AccountID)
	}
	r.mu.Unlock()

	adapter, err := r.factory(account)
	if err != nil {
		return fmt.Errorf("failed to build adapter for account %s: %w", account.AccountID, err)
	}

	if err := adapter.Start(ctx); err != nil {
		return err
	}

	r.mu.Lock()
	r.adapters[account.AccountID] = adapter
	r.mu.Unlock()

	return nil
}

// StopAccount stops and removes the account's adapter. Stopping an unknown
// account is a no-op.
func (r *Registry) StopAccount(ctx context.Context, accountID string) {
	r.mu.Lock()
	adapter, exists := r.adapters[accountID]
	delete(r.adapters, accountID)
	r.mu.Unlock()

	if exists {
		adapter.Stop(ctx)
	}
}

// StopAll stops every running adapter.
func (r *Registry) StopAll(ctx context.Context) {
	r.mu.Lock()
	adapters := make([]*Adapter, 0, len(r.adapters))
	for _, adapter := range r.adapters {
		adapters = append(adapters, adapter)
	}
	r.adapters = make(map[string]*Adapter)
	r.mu.Unlock()

	for _, adapter := range adapters {
		adapter.Stop(ctx)
	}
}

// Get returns the running adapter for an account, if any.
func (r *Registry) Get(accountID string) (*Adapter, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	adapter, exists := r.adapters[accountID]
	return adapter, exists
}

// Adapters returns a snapshot of every running adapter.
func (r *Registry) Adapters() []*Adapter {
	r.mu.Lock()
	defer r.mu.Unlock()
	adapters := make([]*Adapter, 0, len(r.adapters))
	for _, adapter := range r.adapters {
		adapters = append(adapters, adapter)
	}
	return adapters
}

// Statuses returns a snapshot of every running adapter's status.
func (r *Registry) Statuses() []models.AccountStatus {
	r.mu.Lock()
	adapters := make([]*Adapter, 0, len(r.adapters))
	for _, adapter := range r.adapters {
		adapters = append(adapters, adapter)
	}
	r.mu.Unlock()

	statuses := make([]models.AccountStatus, 0, len(adapters))
	for _, adapter := range adapters {
		statuses = append(statuses, adapter.Status())
	}
	return statuses
}
