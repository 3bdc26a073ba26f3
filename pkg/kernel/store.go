package kernel

import (
	"context"
	"sync"
)

// Store is the minimal persistence contract the core depends on. It never
// assumes a specific storage engine; postgres-backed repositories and the
// in-memory implementation below both satisfy it.
type Store[T any] interface {
	Find(ctx context.Context, id string) (*T, error)
	Create(ctx context.Context, id string, entity T) error
	Delete(ctx context.Context, id string) error
	Query(ctx context.Context, predicate func(T) bool) ([]T, error)
}

// ErrNotFound is returned by Find when no entity exists under the id.
type notFoundError struct{}

func (notFoundError) Error() string { return "entity not found" }

var ErrNotFound error = notFoundError{}

// MemoryStore is a concurrency-safe in-memory Store. Used by tests and as a
// storage backend for deployments that do not need durability.
type MemoryStore[T any] struct {
	mu      sync.RWMutex
	entries map[string]T
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore[T any]() *MemoryStore[T] {
	return &MemoryStore[T]{entries: make(map[string]T)}
}

// Find returns the entity stored under id, or ErrNotFound.
func (s *MemoryStore[T]) Find(_ context.Context, id string) (*T, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entity, ok := s.entries[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &entity, nil
}

// Create stores the entity under id, overwriting any previous value.
func (s *MemoryStore[T]) Create(_ context.Context, id string, entity T) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[id] = entity
	return nil
}

// Delete removes the entity under id. Deleting a missing id is not an error:
// the caller's "already revoked" semantics depend on that.
func (s *MemoryStore[T]) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.entries, id)
	return nil
}

// Query returns every stored entity matching the predicate.
func (s *MemoryStore[T]) Query(_ context.Context, predicate func(T) bool) ([]T, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []T
	for _, entity := range s.entries {
		if predicate(entity) {
			out = append(out, entity)
		}
	}
	return out, nil
}

// Len returns the number of stored entities.
func (s *MemoryStore[T]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
