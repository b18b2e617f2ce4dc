package main

import (
	"context"
	"sync"
)

// MemoryRepository keeps snapshots in process memory. It backs tests and
// the explicit memory:// store; it obviously does not survive restarts.
type MemoryRepository struct {
	mu    sync.RWMutex
	snaps map[string]Snapshot
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{snaps: make(map[string]Snapshot)}
}

func (r *MemoryRepository) Get(_ context.Context, instanceID string) (*Snapshot, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	snap, ok := r.snaps[instanceID]
	if !ok {
		return nil, nil
	}
	return &snap, nil
}

func (r *MemoryRepository) Put(_ context.Context, instanceID string, snap Snapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snaps[instanceID] = snap
	return nil
}

func (r *MemoryRepository) Close() error {
	return nil
}
