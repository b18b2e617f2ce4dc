// this file wires the external collaborators behind one facade
package main

import (
	"context"
	"sync"
)

// VideoProvider is the external search/scrape and bulk-import collaborator.
type VideoProvider interface {
	Search(ctx context.Context, query string) ([]PlaylistItem, error)
	FetchPlaylist(ctx context.Context, playlistID string) ([]PlaylistItem, error)
}

// Service is everything sessions need from the outside world.
type Service interface {
	Search(ctx context.Context, query string) ([]PlaylistItem, error)
	FetchPlaylist(ctx context.Context, playlistID string) ([]PlaylistItem, error)
	LoadSnapshot(ctx context.Context, instanceID string) (*Snapshot, error)
	SaveSnapshot(ctx context.Context, instanceID string, snap Snapshot)
	Close()
}

// ServiceImpl degrades gracefully: with no snapshot repository the
// process keeps running in-memory only, announced once.
type ServiceImpl struct {
	snapshots    SnapshotRepository
	videos       VideoProvider
	degradedOnce sync.Once
}

func NewService(snapshots SnapshotRepository, videos VideoProvider) *ServiceImpl {
	return &ServiceImpl{snapshots: snapshots, videos: videos}
}

func (s *ServiceImpl) Search(ctx context.Context, query string) ([]PlaylistItem, error) {
	return s.videos.Search(ctx, query)
}

func (s *ServiceImpl) FetchPlaylist(ctx context.Context, playlistID string) ([]PlaylistItem, error) {
	return s.videos.FetchPlaylist(ctx, playlistID)
}

func (s *ServiceImpl) LoadSnapshot(ctx context.Context, instanceID string) (*Snapshot, error) {
	if s.snapshots == nil {
		s.noteDegraded()
		return nil, nil
	}
	return s.snapshots.Get(ctx, instanceID)
}

// SaveSnapshot never reports failure to the caller: a missed write costs
// durability until the next mutation tries again, nothing else.
func (s *ServiceImpl) SaveSnapshot(ctx context.Context, instanceID string, snap Snapshot) {
	if s.snapshots == nil {
		s.noteDegraded()
		return
	}
	if err := s.snapshots.Put(ctx, instanceID, snap); err != nil {
		logger.Warnf("instance %s: snapshot write failed: %v", instanceID, err)
	}
}

func (s *ServiceImpl) noteDegraded() {
	s.degradedOnce.Do(func() {
		logger.Warnf("no persistence store configured, running in-memory only")
	})
}

func (s *ServiceImpl) Close() {
	if s.snapshots != nil {
		if err := s.snapshots.Close(); err != nil {
			logger.Warnf("closing snapshot store: %v", err)
		}
	}
}
