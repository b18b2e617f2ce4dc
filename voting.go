// this file implements crowd voting and the popularity reorder
package main

import "sort"

func (s *Session) scoreLocked(link string) int {
	total := 0
	for _, score := range s.votes[link] {
		total += score
	}
	return total
}

func (s *Session) purgeVotesForLinkLocked(link string) {
	delete(s.votes, link)
}

// purgeVotesByUserLocked retracts every vote a departed user cast.
// Reports whether anything changed.
func (s *Session) purgeVotesByUserLocked(userID string) bool {
	changed := false
	for link, byUser := range s.votes {
		if _, ok := byUser[userID]; ok {
			delete(byUser, userID)
			changed = true
			if len(byUser) == 0 {
				delete(s.votes, link)
			}
		}
	}
	return changed
}

// reorderLocked recomputes the playlist order while voting is enabled:
// the current item is pinned to index 0 and the rest sort by net score,
// highest first, ties keeping their relative order. Running it twice
// without new votes yields the same order.
func (s *Session) reorderLocked() {
	if !s.votingEnabled || len(s.playlist) == 0 {
		return
	}
	current := s.playlist[s.currentTrack]
	rest := make([]PlaylistItem, 0, len(s.playlist)-1)
	rest = append(rest, s.playlist[:s.currentTrack]...)
	rest = append(rest, s.playlist[s.currentTrack+1:]...)
	sort.SliceStable(rest, func(i, j int) bool {
		return s.scoreLocked(rest[i].Link) > s.scoreLocked(rest[j].Link)
	})
	s.playlist = append([]PlaylistItem{current}, rest...)
	s.currentTrack = 0
}

func (s *Session) reorderedViewLocked() ReorderedPlaylist {
	view := ReorderedPlaylist{
		Links:  make([]string, len(s.playlist)),
		Scores: make(map[string]int, len(s.playlist)),
	}
	for i, item := range s.playlist {
		view.Links[i] = item.Link
		view.Scores[item.Link] = s.scoreLocked(item.Link)
	}
	return view
}

// ToggleVoting switches crowd voting on or off. Enabling wipes any stale
// votes and pins the current track to the top.
func (s *Session) ToggleVoting(conn *Connection, msg *Message, enabled bool) {
	s.mu.Lock()
	if !s.allowLocked(conn, levelHost) {
		s.mu.Unlock()
		conn.send(deniedFrame(msg.AckID))
		return
	}
	s.votingEnabled = enabled
	s.votes = make(map[string]map[string]int)
	var out []Message
	out = append(out, frame(PathVotingEnabled, enabled))
	if enabled && len(s.playlist) > 0 {
		s.reorderLocked()
		out = append(out, frame(PathPlaylistReordered, s.reorderedViewLocked()))
	}
	s.mu.Unlock()
	s.broadcast(nil, out...)
	s.persist()
}

// Vote casts or replaces the caller's vote on a queued item. Voting on
// the item that is currently playing is invalid.
func (s *Session) Vote(conn *Connection, msg *Message, link string, direction int) {
	s.mu.Lock()
	if !s.allowLocked(conn, levelAny) {
		s.mu.Unlock()
		conn.send(deniedFrame(msg.AckID))
		return
	}
	if !s.votingEnabled {
		s.mu.Unlock()
		conn.send(errorFrame(msg.AckID, "voting is not enabled"))
		return
	}
	index := s.indexOfLinkLocked(link)
	if index < 0 {
		s.mu.Unlock()
		conn.send(errorFrame(msg.AckID, "no such video in the playlist"))
		return
	}
	if index == s.currentTrack {
		s.mu.Unlock()
		conn.send(errorFrame(msg.AckID, "cannot vote on the current video"))
		return
	}
	if s.votes[link] == nil {
		s.votes[link] = make(map[string]int)
	}
	s.votes[link][conn.user.ID] = direction
	s.reorderLocked()
	out := frame(PathPlaylistReordered, s.reorderedViewLocked())
	s.mu.Unlock()
	s.broadcast(nil, out)
	s.persist()
}
