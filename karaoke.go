// this file implements the karaoke singer queue
package main

func (s *Session) singerIndexLocked(userID string) int {
	for i, singer := range s.singers {
		if singer.User.ID == userID {
			return i
		}
	}
	return -1
}

// KaraokeJoin queues the caller with their requested song. One pending
// entry per user.
func (s *Session) KaraokeJoin(conn *Connection, msg *Message, item PlaylistItem) {
	s.mu.Lock()
	if !s.allowLocked(conn, levelUnlocked) {
		s.mu.Unlock()
		conn.send(deniedFrame(msg.AckID))
		return
	}
	if s.singerIndexLocked(conn.user.ID) >= 0 {
		s.mu.Unlock()
		conn.send(errorFrame(msg.AckID, "you already have a song queued"))
		return
	}
	item.AddedBy = *conn.user
	item.Source = SourceKaraoke
	singer := Singer{User: *conn.user, Item: item, QueuedAt: s.now()}
	s.singers = append(s.singers, singer)
	s.mu.Unlock()
	s.broadcast(originOf(conn, msg), frame(PathSingerQueued, singer))
	s.persist()
}

// KaraokeLeave removes a singer from the queue; singers may remove
// themselves, the host may remove anyone. Removing the singer who is
// currently performing also stops playback, and the stop goes out before
// the queue removal so clients can update incrementally.
func (s *Session) KaraokeLeave(conn *Connection, msg *Message, userID string) {
	s.mu.Lock()
	if conn.user == nil {
		s.mu.Unlock()
		conn.send(deniedFrame(msg.AckID))
		return
	}
	if userID == "" {
		userID = conn.user.ID
	}
	if userID != conn.user.ID && !s.allowLocked(conn, levelHost) {
		s.mu.Unlock()
		conn.send(deniedFrame(msg.AckID))
		return
	}
	index := s.singerIndexLocked(userID)
	performingRemoved := s.performing == userID
	if index < 0 && !performingRemoved {
		s.mu.Unlock()
		conn.send(errorFrame(msg.AckID, "that user is not in the singer queue"))
		return
	}
	var out []Message
	if performingRemoved {
		s.clearLocked()
		out = append(out, frame(PathStop, nil))
	}
	if index >= 0 {
		s.singers = append(s.singers[:index], s.singers[index+1:]...)
	}
	out = append(out, frame(PathSingerRemoved, userID))
	s.mu.Unlock()
	s.broadcast(nil, out...)
	s.persist()
}

// KaraokeMove swaps a singer with their neighbour. Host only.
func (s *Session) KaraokeMove(conn *Connection, msg *Message, userID, direction string) {
	s.mu.Lock()
	if !s.allowLocked(conn, levelHost) {
		s.mu.Unlock()
		conn.send(deniedFrame(msg.AckID))
		return
	}
	index := s.singerIndexLocked(userID)
	if index < 0 {
		s.mu.Unlock()
		conn.send(errorFrame(msg.AckID, "that user is not in the singer queue"))
		return
	}
	target := index
	switch direction {
	case "up":
		target = index - 1
	case "down":
		target = index + 1
	default:
		s.mu.Unlock()
		conn.send(errorFrame(msg.AckID, "direction must be up or down"))
		return
	}
	if target < 0 || target >= len(s.singers) {
		s.mu.Unlock()
		return
	}
	s.singers[index], s.singers[target] = s.singers[target], s.singers[index]
	order := make([]Singer, len(s.singers))
	copy(order, s.singers)
	s.mu.Unlock()
	s.broadcast(originOf(conn, msg), frame(PathSingersReordered, order))
	s.persist()
}

// KaraokePlay consumes the head of the singer queue: their song becomes
// the sole playlist entry and the clock restarts. Requesting a specific
// singer is host-only and moves them to the head first; playing the head
// is open to the host and to that singer themselves. The track change and
// the queue removal are broadcast as two separate notifications, in that
// order.
func (s *Session) KaraokePlay(conn *Connection, msg *Message, userID string) {
	s.mu.Lock()
	if conn.user == nil || len(s.singers) == 0 {
		s.mu.Unlock()
		conn.send(errorFrame(msg.AckID, "the singer queue is empty"))
		return
	}
	if userID != "" && s.singers[0].User.ID != userID {
		if !s.allowLocked(conn, levelHost) {
			s.mu.Unlock()
			conn.send(deniedFrame(msg.AckID))
			return
		}
		index := s.singerIndexLocked(userID)
		if index < 0 {
			s.mu.Unlock()
			conn.send(errorFrame(msg.AckID, "that user is not in the singer queue"))
			return
		}
		singer := s.singers[index]
		s.singers = append(s.singers[:index], s.singers[index+1:]...)
		s.singers = append([]Singer{singer}, s.singers...)
	}
	head := s.singers[0]
	if conn.user.ID != head.User.ID && !s.allowLocked(conn, levelHost) {
		s.mu.Unlock()
		conn.send(deniedFrame(msg.AckID))
		return
	}
	s.playlist = []PlaylistItem{head.Item}
	s.currentTrack = 0
	s.anchorTime = s.now()
	s.votes = make(map[string]map[string]int)
	s.performing = head.User.ID
	s.singers = s.singers[1:]
	out := []Message{
		frame(PathTrackChanged, s.trackChangeLocked(s.now())),
		frame(PathSingerRemoved, head.User.ID),
	}
	s.mu.Unlock()
	s.broadcast(nil, out...)
	s.persist()
}

// Restart rewinds the current track to the beginning. Open to the host
// and to whoever is performing it.
func (s *Session) Restart(conn *Connection, msg *Message) {
	s.mu.Lock()
	if conn.user == nil || (conn.user.ID != s.performing && !s.allowLocked(conn, levelHost)) {
		s.mu.Unlock()
		conn.send(deniedFrame(msg.AckID))
		return
	}
	if len(s.playlist) == 0 {
		s.mu.Unlock()
		conn.send(errorFrame(msg.AckID, "nothing is playing"))
		return
	}
	now := s.now()
	s.anchorTime = now
	out := frame(PathSeekTo, TimeReport{
		CurrentTime: 0,
		AnchorTime:  s.anchorTime.UnixMilli(),
		ServerTime:  now.UnixMilli(),
	})
	s.mu.Unlock()
	s.broadcast(nil, out)
	s.persist()
}
