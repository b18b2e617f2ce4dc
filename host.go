// this file implements host privileges, locking and takeover
package main

import "time"

type authLevel int

const (
	// levelAny: open to every identified connection (voting, self-removal).
	levelAny authLevel = iota
	// levelUnlocked: the host always, everyone else while unlocked.
	levelUnlocked
	// levelHost: the host only, locked or not.
	levelHost
)

func (s *Session) allowLocked(conn *Connection, level authLevel) bool {
	if conn == nil || conn.user == nil {
		return false
	}
	switch level {
	case levelAny:
		return true
	case levelUnlocked:
		return conn.user.ID == s.host.ID || !s.locked
	case levelHost:
		return conn.user.ID == s.host.ID
	}
	return false
}

// startGraceLocked arms the host-absence timer. Once it fires the session
// is up for grabs; a host reconnect beforehand cancels it.
func (s *Session) startGraceLocked() {
	s.cancelGraceLocked()
	if s.takeoverGrace <= 0 {
		s.canTakeOver = true
		return
	}
	s.graceTimer = time.AfterFunc(s.takeoverGrace, s.graceExpired)
}

// cancelGraceLocked is idempotent, including against a timer that already
// fired: graceExpired rechecks hostConnected under the lock.
func (s *Session) cancelGraceLocked() {
	if s.graceTimer != nil {
		s.graceTimer.Stop()
		s.graceTimer = nil
	}
}

func (s *Session) graceExpired() {
	s.mu.Lock()
	s.graceTimer = nil
	if s.hostConnected || s.canTakeOver {
		s.mu.Unlock()
		return
	}
	s.canTakeOver = true
	out := frame(PathCanTakeOver, true)
	s.mu.Unlock()
	s.broadcast(nil, out)
	s.persist()
}

func (s *Session) ToggleLock(conn *Connection, msg *Message, locked bool) {
	s.mu.Lock()
	if !s.allowLocked(conn, levelHost) {
		s.mu.Unlock()
		conn.send(deniedFrame(msg.AckID))
		return
	}
	s.locked = locked
	s.mu.Unlock()
	s.broadcast(originOf(conn, msg), frame(PathLocked, locked))
	s.persist()
}

// ToggleCanTakeOver lets the host offer or withdraw the takeover option.
// Withdrawing requires the host to be present in the space, so an absent
// host can never permanently lock out failover.
func (s *Session) ToggleCanTakeOver(conn *Connection, msg *Message, enabled bool) {
	s.mu.Lock()
	if !s.allowLocked(conn, levelHost) {
		s.mu.Unlock()
		conn.send(deniedFrame(msg.AckID))
		return
	}
	if !enabled && !s.hostPresentInSpaceLocked() {
		s.mu.Unlock()
		conn.send(errorFrame(msg.AckID, "the host must be present to disable takeover"))
		return
	}
	s.canTakeOver = enabled
	s.mu.Unlock()
	s.broadcast(originOf(conn, msg), frame(PathCanTakeOver, enabled))
	s.persist()
}

// TakeOver transfers host privilege to the caller while the session is up
// for grabs.
func (s *Session) TakeOver(conn *Connection, msg *Message) {
	s.mu.Lock()
	if conn.user == nil {
		s.mu.Unlock()
		conn.send(deniedFrame(msg.AckID))
		return
	}
	if !s.canTakeOver && conn.user.ID != s.host.ID {
		s.mu.Unlock()
		conn.send(errorFrame(msg.AckID, "takeover is not available"))
		return
	}
	s.host = *conn.user
	s.hostConnected = true
	s.canTakeOver = false
	s.cancelGraceLocked()
	s.mu.Unlock()
	s.broadcast(nil,
		frame(PathHostChanged, s.host),
		frame(PathCanTakeOver, false))
	s.persist()
}

func (s *Session) ToggleAutoAdvance(conn *Connection, msg *Message, enabled bool) {
	s.mu.Lock()
	if !s.allowLocked(conn, levelHost) {
		s.mu.Unlock()
		conn.send(deniedFrame(msg.AckID))
		return
	}
	if enabled && !s.autoAdvance && len(s.playlist) > 0 {
		// time spent paused at the end of a track must not count as
		// several finished tracks once advancing resumes
		d := time.Duration(s.playlist[s.currentTrack].Duration) * time.Millisecond
		if d > 0 && s.now().Sub(s.anchorTime) > d {
			s.anchorTime = s.now().Add(-d)
		}
	}
	s.autoAdvance = enabled
	s.mu.Unlock()
	s.broadcast(originOf(conn, msg), frame(PathAutoAdvance, enabled))
}

func (s *Session) ToggleAutoSync(conn *Connection, msg *Message, enabled bool) {
	s.mu.Lock()
	if !s.allowLocked(conn, levelHost) {
		s.mu.Unlock()
		conn.send(deniedFrame(msg.AckID))
		return
	}
	s.autoSync = enabled
	s.mu.Unlock()
	s.broadcast(originOf(conn, msg), frame(PathAutoSync, enabled))
}
