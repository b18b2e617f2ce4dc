// this file deals with the live state of a single watch-party instance
package main

import (
	"context"
	"sync"
	"time"
)

// Session is one watch-party room. All mutation happens under mu and is
// handled to completion before any broadcast or persistence I/O, so no
// reader ever observes a half-applied command. Persistence is
// fire-and-forget; the store is last-write-wins per instance id.
type Session struct {
	mu  sync.Mutex
	id  string
	svc Service

	playlist     []PlaylistItem
	currentTrack int
	anchorTime   time.Time
	locked       bool

	host          User
	hostConnected bool
	canTakeOver   bool
	graceTimer    *time.Timer
	takeoverGrace time.Duration

	votingEnabled bool
	votes         map[string]map[string]int // link -> user id -> +1/-1

	singers    []Singer
	performing string // user id of the singer whose track is installed

	autoAdvance bool
	autoSync    bool

	conns      map[string]*Connection
	emptySince time.Time

	done     chan struct{}
	stopOnce sync.Once
	now      func() time.Time
}

func NewSession(id string, svc Service, grace time.Duration, snap *Snapshot, host User) *Session {
	s := &Session{
		id:            id,
		svc:           svc,
		takeoverGrace: grace,
		host:          host,
		hostConnected: true,
		votes:         make(map[string]map[string]int),
		conns:         make(map[string]*Connection),
		autoAdvance:   true,
		autoSync:      true,
		done:          make(chan struct{}),
		now:           time.Now,
	}
	s.anchorTime = s.now()
	if snap != nil {
		s.playlist = append(s.playlist, snap.Playlist...)
		s.currentTrack = snap.CurrentTrack
		if s.currentTrack < 0 || s.currentTrack >= len(s.playlist) {
			s.currentTrack = 0
		}
		if snap.AnchorTime > 0 {
			s.anchorTime = time.UnixMilli(snap.AnchorTime)
		}
		s.locked = snap.Locked
		s.canTakeOver = snap.CanTakeOver
		s.votingEnabled = snap.VotingEnabled
	}
	return s
}

// claim marks the session as spoken for, so the idle sweep cannot drop
// it between the registry lookup and the attach that follows.
func (s *Session) claim() {
	s.mu.Lock()
	s.emptySince = time.Time{}
	s.mu.Unlock()
}

func (s *Session) attach(conn *Connection) {
	s.mu.Lock()
	s.conns[conn.id] = conn
	s.emptySince = time.Time{}
	if conn.user != nil && conn.user.ID == s.host.ID {
		s.hostConnected = true
		s.cancelGraceLocked()
	}
	s.mu.Unlock()
}

// detach removes a closed connection and runs the departure side effects:
// vote retraction once the user's last connection is gone, and the host
// absence grace timer when the host has fully left.
func (s *Session) detach(conn *Connection) {
	s.mu.Lock()
	delete(s.conns, conn.id)
	var out []Message
	if conn.user != nil && !s.userPresentLocked(conn.user.ID) {
		if s.purgeVotesByUserLocked(conn.user.ID) {
			s.reorderLocked()
			out = append(out, frame(PathPlaylistReordered, s.reorderedViewLocked()))
		}
		if conn.user.ID == s.host.ID {
			s.hostConnected = false
			s.startGraceLocked()
		}
	}
	if len(s.conns) == 0 {
		s.emptySince = s.now()
	}
	s.mu.Unlock()
	s.broadcast(nil, out...)
	if len(out) > 0 {
		s.persist()
	}
}

func (s *Session) userPresentLocked(userID string) bool {
	for _, c := range s.conns {
		if c.user != nil && c.user.ID == userID {
			return true
		}
	}
	return false
}

func (s *Session) hostPresentInSpaceLocked() bool {
	for _, c := range s.conns {
		if c.user != nil && c.user.ID == s.host.ID && c.role == RoleSpace {
			return true
		}
	}
	return false
}

// broadcast fans messages out to every live connection except the one a
// skipUpdate frame came from. Targets are snapshotted under the lock and
// written outside it; each connection serializes its own writes.
func (s *Session) broadcast(except *Connection, msgs ...Message) {
	if len(msgs) == 0 {
		return
	}
	s.mu.Lock()
	targets := make([]*Connection, 0, len(s.conns))
	for _, c := range s.conns {
		if c != except {
			targets = append(targets, c)
		}
	}
	s.mu.Unlock()
	for _, m := range msgs {
		for _, c := range targets {
			c.send(m)
		}
	}
}

// persist writes the durable projection without blocking the caller. The
// in-memory mutation has already happened; a failed write only costs
// durability, never consistency.
func (s *Session) persist() {
	snap := s.Snapshot()
	go s.svc.SaveSnapshot(context.Background(), s.id, snap)
}

func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := Snapshot{
		Playlist:      make([]PlaylistItem, len(s.playlist)),
		CurrentTrack:  s.currentTrack,
		AnchorTime:    s.anchorTime.UnixMilli(),
		Locked:        s.locked,
		CanTakeOver:   s.canTakeOver,
		VotingEnabled: s.votingEnabled,
	}
	copy(snap.Playlist, s.playlist)
	return snap
}

// State is the full view sent to a joining client.
func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	state := SessionState{
		Instance:      s.id,
		Playlist:      make([]PlaylistItem, len(s.playlist)),
		CurrentTrack:  s.currentTrack,
		CurrentTime:   s.currentTimeLocked(s.now()),
		AnchorTime:    s.anchorTime.UnixMilli(),
		Locked:        s.locked,
		Host:          s.host,
		HostConnected: s.hostConnected,
		CanTakeOver:   s.canTakeOver,
		VotingEnabled: s.votingEnabled,
		AutoAdvance:   s.autoAdvance,
		AutoSync:      s.autoSync,
		Singers:       make([]Singer, len(s.singers)),
		Performing:    s.performing,
	}
	copy(state.Playlist, s.playlist)
	copy(state.Singers, s.singers)
	for i := range state.Playlist {
		state.Playlist[i].VoteScore = s.scoreLocked(state.Playlist[i].Link)
	}
	return state
}

func (s *Session) connCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

// stop ends the clock loop. Safe to call more than once.
func (s *Session) stop() {
	s.stopOnce.Do(func() {
		close(s.done)
	})
	s.mu.Lock()
	s.cancelGraceLocked()
	s.mu.Unlock()
}
