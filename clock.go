// this file drives the per-session virtual playback clock
package main

import "time"

// run is the session's clock loop. One tick per second while the process
// lives; each tick reconciles the anchor against wall time and advances
// through however many tracks have finished in the meantime.
func (s *Session) run() {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case now := <-ticker.C:
			s.tick(now)
		case <-s.done:
			return
		}
	}
}

func (s *Session) tick(now time.Time) {
	s.mu.Lock()
	out := s.fastForwardLocked(now)
	s.mu.Unlock()
	s.broadcast(nil, out...)
	if len(out) > 0 {
		s.persist()
	}
}

// fastForwardLocked advances the current track until the anchor catches up
// with wall time. The anchor always ends up meaning "when the now-current
// track would have started", even after a long gap spanning several
// tracks, which is why this loops instead of branching once. A track with
// no known duration (live stream) never advances.
func (s *Session) fastForwardLocked(now time.Time) []Message {
	if len(s.playlist) == 0 || !s.autoAdvance {
		return nil
	}
	var out []Message
	for {
		d := time.Duration(s.playlist[s.currentTrack].Duration) * time.Millisecond
		if d <= 0 || now.Sub(s.anchorTime) < d {
			break
		}
		s.anchorTime = s.anchorTime.Add(d)
		s.advanceLocked()
		out = append(out, frame(PathTrackChanged, s.trackChangeLocked(now)))
	}
	return out
}

// advanceLocked moves to the next track, wrapping at the end. Votes tied
// to the finished item stop being addressable and are purged, then the
// popularity order is recomputed.
func (s *Session) advanceLocked() {
	finished := s.playlist[s.currentTrack]
	s.purgeVotesForLinkLocked(finished.Link)
	s.currentTrack = (s.currentTrack + 1) % len(s.playlist)
	s.reorderLocked()
}

// currentTimeLocked reports seconds into the current track. Derived from
// current state every call, never cached, so a tick and a concurrent skip
// can land in either order and still agree.
func (s *Session) currentTimeLocked(now time.Time) float64 {
	if len(s.playlist) == 0 {
		return 0
	}
	elapsed := now.Sub(s.anchorTime).Seconds()
	if elapsed < 0 {
		return 0
	}
	d := float64(s.playlist[s.currentTrack].Duration) / 1000
	if d > 0 && elapsed > d && !s.autoAdvance {
		return d
	}
	return elapsed
}

func (s *Session) trackChangeLocked(now time.Time) TrackChange {
	change := TrackChange{
		Index:       s.currentTrack,
		CurrentTime: s.currentTimeLocked(now),
		AnchorTime:  s.anchorTime.UnixMilli(),
	}
	if len(s.playlist) > 0 {
		change.Item = s.playlist[s.currentTrack]
		change.Item.VoteScore = s.scoreLocked(change.Item.Link)
	}
	return change
}

// Seek moves playback of the current track to an offset in seconds. A
// seek is a point override of the anchor invariant, not a separate
// mechanism: the anchor is simply rewritten to now minus the offset.
func (s *Session) Seek(conn *Connection, msg *Message, seconds float64) {
	s.mu.Lock()
	if !s.allowLocked(conn, levelUnlocked) {
		s.mu.Unlock()
		conn.send(deniedFrame(msg.AckID))
		return
	}
	if len(s.playlist) == 0 {
		s.mu.Unlock()
		conn.send(errorFrame(msg.AckID, "nothing is playing"))
		return
	}
	if seconds < 0 {
		seconds = 0
	}
	now := s.now()
	s.anchorTime = now.Add(-time.Duration(seconds * float64(time.Second)))
	out := frame(PathSeekTo, TimeReport{
		CurrentTime: s.currentTimeLocked(now),
		AnchorTime:  s.anchorTime.UnixMilli(),
		ServerTime:  now.UnixMilli(),
	})
	s.mu.Unlock()
	s.broadcast(originOf(conn, msg), out)
	s.persist()
}

// Skip jumps to the next track immediately.
func (s *Session) Skip(conn *Connection, msg *Message) {
	s.mu.Lock()
	if !s.allowLocked(conn, levelUnlocked) {
		s.mu.Unlock()
		conn.send(deniedFrame(msg.AckID))
		return
	}
	if len(s.playlist) == 0 {
		s.mu.Unlock()
		conn.send(errorFrame(msg.AckID, "the playlist is empty"))
		return
	}
	now := s.now()
	s.advanceLocked()
	s.anchorTime = now
	out := frame(PathTrackChanged, s.trackChangeLocked(now))
	s.mu.Unlock()
	s.broadcast(nil, out)
	s.persist()
}

// Time answers a getTime or latency probe. Reply goes to the caller only.
func (s *Session) Time(conn *Connection, msg *Message, clientTime int64) {
	s.mu.Lock()
	now := s.now()
	report := TimeReport{
		CurrentTime: s.currentTimeLocked(now),
		AnchorTime:  s.anchorTime.UnixMilli(),
		ServerTime:  now.UnixMilli(),
		ClientTime:  clientTime,
	}
	s.mu.Unlock()
	path := PathTime
	if msg.Path == PathLatency {
		path = PathLatency
	}
	conn.send(reply(path, msg.AckID, report))
}

// originOf returns the connection to exclude from a broadcast when the
// command asked to skip its own update.
func originOf(conn *Connection, msg *Message) *Connection {
	if msg.SkipUpdate {
		return conn
	}
	return nil
}
