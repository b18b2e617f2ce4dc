package main

import (
	"testing"
	"time"
)

func seedPlaylist(s *Session, clock *testClock, items ...PlaylistItem) {
	s.mu.Lock()
	s.playlist = append([]PlaylistItem{}, items...)
	s.currentTrack = 0
	s.anchorTime = clock.now()
	s.mu.Unlock()
}

func TestTickFastForwardsThroughFinishedTracks(t *testing.T) {
	s, clock := newTestSession(t, nil)
	const d = 60_000 // one minute per track, in ms
	seedPlaylist(s, clock,
		mustItem("v1", d), mustItem("v2", d), mustItem("v3", d), mustItem("v4", d))

	// two and a half track lengths later a single tick must land two
	// tracks past the original with the remainder on the clock
	now := clock.advance(time.Duration(2.5*d) * time.Millisecond)
	s.tick(now)

	s.mu.Lock()
	current := s.currentTrack
	offset := s.currentTimeLocked(now)
	s.mu.Unlock()
	if current != 2 {
		t.Fatalf("expected track 2, got %d", current)
	}
	if offset < 0 || offset >= d/1000 {
		t.Fatalf("currentTime %v outside [0, %d)", offset, d/1000)
	}
	assertInvariant(t, s)
}

func TestTickWrapsToStart(t *testing.T) {
	s, clock := newTestSession(t, nil)
	seedPlaylist(s, clock, mustItem("v1", 60_000))

	now := clock.advance(65 * time.Second)
	s.tick(now)

	s.mu.Lock()
	current := s.currentTrack
	offset := s.currentTimeLocked(now)
	s.mu.Unlock()
	if current != 0 {
		t.Fatalf("expected wrap to track 0, got %d", current)
	}
	if offset < 4.9 || offset > 5.1 {
		t.Fatalf("expected currentTime about 5s, got %v", offset)
	}
}

func TestTickBroadcastsEachAdvance(t *testing.T) {
	s, clock := newTestSession(t, nil)
	_, sock := newTestConn(s, guestUser, RoleUI)
	seedPlaylist(s, clock, mustItem("v1", 1000), mustItem("v2", 1000), mustItem("v3", 10_000))

	s.tick(clock.advance(2500 * time.Millisecond))

	changes := 0
	for _, path := range sock.paths() {
		if path == PathTrackChanged {
			changes++
		}
	}
	if changes != 2 {
		t.Fatalf("expected 2 track-change broadcasts, got %d (%v)", changes, sock.paths())
	}
}

func TestLiveStreamNeverAdvances(t *testing.T) {
	s, clock := newTestSession(t, nil)
	seedPlaylist(s, clock, mustItem("live", 0), mustItem("v2", 1000))

	s.tick(clock.advance(time.Hour))

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.currentTrack != 0 {
		t.Fatalf("live stream advanced to %d", s.currentTrack)
	}
}

func TestAutoAdvanceOffHoldsTrack(t *testing.T) {
	s, clock := newTestSession(t, nil)
	seedPlaylist(s, clock, mustItem("v1", 1000), mustItem("v2", 1000))
	s.mu.Lock()
	s.autoAdvance = false
	s.mu.Unlock()

	now := clock.advance(time.Minute)
	s.tick(now)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.currentTrack != 0 {
		t.Fatalf("track advanced with autoAdvance off")
	}
	if got := s.currentTimeLocked(now); got != 1 {
		t.Fatalf("expected currentTime clamped to duration, got %v", got)
	}
}

func TestSeekRewritesAnchor(t *testing.T) {
	s, clock := newTestSession(t, nil)
	host, _ := newTestConn(s, hostUser, RoleSpace)
	_, sock := newTestConn(s, guestUser, RoleUI)
	seedPlaylist(s, clock, mustItem("v1", 600_000))

	s.Seek(host, cmd(PathSeek, 90.0), 90)

	s.mu.Lock()
	offset := s.currentTimeLocked(clock.now())
	s.mu.Unlock()
	if offset != 90 {
		t.Fatalf("expected offset 90s after seek, got %v", offset)
	}
	var report TimeReport
	decodePayload(t, sock.lastFrame(t, PathSeekTo), &report)
	if report.CurrentTime != 90 {
		t.Fatalf("broadcast reported %v, want 90", report.CurrentTime)
	}
}

func TestSkipAdvancesAndResetsClock(t *testing.T) {
	s, clock := newTestSession(t, nil)
	host, _ := newTestConn(s, hostUser, RoleSpace)
	seedPlaylist(s, clock, mustItem("v1", 60_000), mustItem("v2", 60_000))
	clock.advance(30 * time.Second)

	s.Skip(host, cmd(PathSkip, nil))

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.currentTrack != 1 {
		t.Fatalf("expected track 1 after skip, got %d", s.currentTrack)
	}
	if got := s.currentTimeLocked(clock.now()); got != 0 {
		t.Fatalf("expected clock reset after skip, got %v", got)
	}
}

func TestSkipOnEmptyPlaylistErrors(t *testing.T) {
	s, _ := newTestSession(t, nil)
	host, sock := newTestConn(s, hostUser, RoleSpace)

	s.Skip(host, cmd(PathSkip, nil))

	if !sock.hasFrame(PathError) {
		t.Fatalf("expected error frame, got %v", sock.paths())
	}
	assertInvariant(t, s)
}

func TestTimeReportEchoesClientTime(t *testing.T) {
	s, clock := newTestSession(t, nil)
	conn, sock := newTestConn(s, guestUser, RoleUI)
	seedPlaylist(s, clock, mustItem("v1", 60_000))
	clock.advance(10 * time.Second)

	s.Time(conn, cmd(PathLatency, int64(12345)), 12345)

	var report TimeReport
	decodePayload(t, sock.lastFrame(t, PathLatency), &report)
	if report.ClientTime != 12345 {
		t.Fatalf("client time not echoed: %+v", report)
	}
	if report.CurrentTime != 10 {
		t.Fatalf("expected currentTime 10, got %v", report.CurrentTime)
	}
}
