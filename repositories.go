// this file declares the persistence contract
package main

import "context"

// SnapshotRepository is durable key/value storage of session snapshots by
// instance id. Get returns (nil, nil) for an unknown instance. Writes are
// last-write-wins; the store is never used as a lock.
type SnapshotRepository interface {
	Get(ctx context.Context, instanceID string) (*Snapshot, error)
	Put(ctx context.Context, instanceID string, snap Snapshot) error
	Close() error
}
