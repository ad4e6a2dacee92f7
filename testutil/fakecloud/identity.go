package fakecloud

import (
	"context"
	"sync"

	"github.com/younsl/snapshooter/internal/models"
	"github.com/younsl/snapshooter/pkg/cloud"
)

// Identity is an in-memory caller session. Stores and errors are keyed by
// models.Scope.String().
type Identity struct {
	mu sync.Mutex

	Trusts          []models.Trust
	Projects        []models.Project
	ListTrustsErr   error
	ListProjectsErr error
	ConnectErrs     map[string]error
	Stores          map[string]cloud.BlockStorage

	connected []models.Scope
}

// NewIdentity creates an identity with no grants
func NewIdentity() *Identity {
	return &Identity{
		ConnectErrs: map[string]error{},
		Stores:      map[string]cloud.BlockStorage{},
	}
}

// ListTrusts implements cloud.Identity
func (i *Identity) ListTrusts(_ context.Context) ([]models.Trust, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.ListTrustsErr != nil {
		return nil, i.ListTrustsErr
	}
	return append([]models.Trust(nil), i.Trusts...), nil
}

// ListProjects implements cloud.Identity
func (i *Identity) ListProjects(_ context.Context) ([]models.Project, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.ListProjectsErr != nil {
		return nil, i.ListProjectsErr
	}
	return append([]models.Project(nil), i.Projects...), nil
}

// Connect implements cloud.Identity, creating an empty store for unknown scopes
func (i *Identity) Connect(_ context.Context, scope models.Scope) (cloud.BlockStorage, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.connected = append(i.connected, scope)
	key := scope.String()
	if err := i.ConnectErrs[key]; err != nil {
		return nil, err
	}
	store, ok := i.Stores[key]
	if !ok {
		store = NewStore(nil, nil)
		i.Stores[key] = store
	}
	return store, nil
}

// Connected returns the scopes Connect was called with, in call order
func (i *Identity) Connected() []models.Scope {
	i.mu.Lock()
	defer i.mu.Unlock()
	return append([]models.Scope(nil), i.connected...)
}
