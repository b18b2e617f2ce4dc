package main

import (
	"context"
	"testing"
	"time"
)

func TestGetOrCreateRestoresSnapshot(t *testing.T) {
	repo := NewMemoryRepository()
	svc := NewService(repo, fakeProvider{})
	seed := Snapshot{
		Playlist:      []PlaylistItem{mustItem("v1", 60_000), mustItem("v2", 60_000)},
		CurrentTrack:  1,
		AnchorTime:    time.Now().UnixMilli(),
		Locked:        true,
		VotingEnabled: true,
	}
	if err := repo.Put(context.Background(), "room1", seed); err != nil {
		t.Fatalf("seed write failed: %v", err)
	}

	registry := NewRegistry(svc, 42*time.Second)
	s := registry.GetOrCreate("room1", guestUser)
	t.Cleanup(s.stop)

	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.playlist) != 2 || s.currentTrack != 1 || !s.locked || !s.votingEnabled {
		t.Fatalf("snapshot not restored: %d items, track %d, locked %v", len(s.playlist), s.currentTrack, s.locked)
	}
	// the requesting user becomes host; host identity is live-only state
	if s.host.ID != guestUser.ID || !s.hostConnected {
		t.Fatalf("first joiner is not the host: %+v", s.host)
	}
}

func TestGetOrCreateIsIdempotentPerInstance(t *testing.T) {
	registry := NewRegistry(testService(nil), 42*time.Second)

	a := registry.GetOrCreate("room1", hostUser)
	t.Cleanup(a.stop)
	b := registry.GetOrCreate("room1", guestUser)

	if a != b {
		t.Fatalf("two sessions for one instance id")
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.host.ID != hostUser.ID {
		t.Fatalf("later joiner stole the host role")
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	s, _ := newTestSession(t, nil)
	host, _ := newTestConn(s, hostUser, RoleSpace)
	s.Append(host, cmd(PathQueueVideo, nil), mustItem("v1", 60_000))
	s.Append(host, cmd(PathQueueVideo, nil), mustItem("v2", 90_000))
	s.SetTrack(host, cmd(PathSetTrack, 1), 1)
	s.ToggleLock(host, cmd(PathToggleLock, true), true)

	snap := s.Snapshot()
	restored := NewSession("room2", testService(nil), 42*time.Second, &snap, guestUser)
	t.Cleanup(restored.stop)

	restored.mu.Lock()
	defer restored.mu.Unlock()
	if len(restored.playlist) != 2 || restored.currentTrack != 1 || !restored.locked {
		t.Fatalf("round trip lost state: %d items, track %d, locked %v",
			len(restored.playlist), restored.currentTrack, restored.locked)
	}
	for i, link := range links(restored.playlist) {
		if link != mustItem([]string{"v1", "v2"}[i], 0).Link {
			t.Fatalf("playlist order changed: %v", links(restored.playlist))
		}
	}
	// live-only state starts fresh
	if restored.host.ID != guestUser.ID || len(restored.votes) != 0 {
		t.Fatalf("live-only state leaked through the snapshot")
	}
}

func TestCorruptSnapshotStartsEmpty(t *testing.T) {
	snap := &Snapshot{
		Playlist:     []PlaylistItem{mustItem("v1", 60_000)},
		CurrentTrack: 7, // stale index from a shrunken playlist
	}
	s := NewSession("room1", testService(nil), 42*time.Second, snap, hostUser)
	t.Cleanup(s.stop)

	assertInvariant(t, s)
}

func TestMutationsPersistSnapshots(t *testing.T) {
	repo := NewMemoryRepository()
	svc := NewService(repo, fakeProvider{})
	clock := newTestClock()
	s := NewSession("room1", svc, 42*time.Second, nil, hostUser)
	s.now = clock.now
	t.Cleanup(s.stop)
	host, _ := newTestConn(s, hostUser, RoleSpace)

	s.Append(host, cmd(PathQueueVideo, nil), mustItem("v1", 60_000))

	deadline := time.After(2 * time.Second)
	for {
		snap, err := repo.Get(context.Background(), "room1")
		if err != nil {
			t.Fatalf("read back failed: %v", err)
		}
		if snap != nil && len(snap.Playlist) == 1 {
			return
		}
		select {
		case <-deadline:
			t.Fatalf("mutation never persisted")
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestEvictIdleDropsOnlyAbandonedSessions(t *testing.T) {
	registry := NewRegistry(testService(nil), 42*time.Second)
	busy := registry.GetOrCreate("busy", hostUser)
	t.Cleanup(busy.stop)
	newTestConn(busy, hostUser, RoleSpace)

	idle := registry.GetOrCreate("idle", hostUser)
	t.Cleanup(idle.stop)
	conn, _ := newTestConn(idle, hostUser, RoleSpace)
	idle.detach(conn)
	idle.mu.Lock()
	idle.emptySince = time.Now().Add(-time.Hour)
	idle.mu.Unlock()

	if evicted := registry.EvictIdle(time.Minute); evicted != 1 {
		t.Fatalf("expected 1 eviction, got %d", evicted)
	}
	if registry.Lookup("idle") != nil {
		t.Fatalf("idle session still registered")
	}
	if registry.Lookup("busy") == nil {
		t.Fatalf("busy session evicted")
	}

	if evicted := registry.EvictIdle(0); evicted != 0 {
		t.Fatalf("eviction ran while disabled")
	}
}

func TestEvictIdleNeverDropsAnAttachedSession(t *testing.T) {
	registry := NewRegistry(testService(nil), 42*time.Second)
	stop := make(chan struct{})
	go func() {
		for {
			select {
			case <-stop:
				return
			default:
				registry.EvictIdle(time.Nanosecond)
			}
		}
	}()

	// every lookup-then-attach must race the sweep without losing its
	// registration; a dropped one would leave the connection driving an
	// orphaned session while the next joiner gets a duplicate
	for i := 0; i < 100; i++ {
		s := registry.GetOrCreate("room1", hostUser)
		conn, _ := newTestConn(s, hostUser, RoleSpace)
		if registry.Lookup("room1") != s {
			t.Fatalf("attached session lost its registration on round %d", i)
		}
		s.detach(conn)
	}
	close(stop)
	for _, s := range registry.all() {
		s.stop()
	}
}

func TestDegradedModeKeepsWorking(t *testing.T) {
	svc := NewService(nil, fakeProvider{})
	registry := NewRegistry(svc, 42*time.Second)

	s := registry.GetOrCreate("room1", hostUser)
	t.Cleanup(s.stop)
	host, sock := newTestConn(s, hostUser, RoleSpace)
	s.Append(host, cmd(PathQueueVideo, nil), mustItem("v1", 60_000))

	if sock.hasFrame(PathError) || sock.hasFrame(PathDenied) {
		t.Fatalf("in-memory mode surfaced store errors: %v", sock.paths())
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.playlist) != 1 {
		t.Fatalf("mutation lost in degraded mode")
	}
}
