// this file implements the ordered playlist and its operations
package main

import (
	"context"
	"time"
)

func (s *Session) indexOfLinkLocked(link string) int {
	for i, item := range s.playlist {
		if item.Link == link {
			return i
		}
	}
	return -1
}

func (s *Session) clearLocked() {
	s.playlist = nil
	s.currentTrack = 0
	s.anchorTime = s.now()
	s.votes = make(map[string]map[string]int)
	s.performing = ""
}

// Append adds an item to the end of the playlist. An item whose stream
// link is already queued is rejected. Appending to an empty playlist
// starts playback immediately.
func (s *Session) Append(conn *Connection, msg *Message, item PlaylistItem) {
	s.mu.Lock()
	if !s.allowLocked(conn, levelUnlocked) {
		s.mu.Unlock()
		conn.send(deniedFrame(msg.AckID))
		return
	}
	if s.indexOfLinkLocked(item.Link) >= 0 {
		s.mu.Unlock()
		conn.send(errorFrame(msg.AckID, "that video is already in the playlist"))
		return
	}
	wasEmpty := len(s.playlist) == 0
	item.AddedBy = *conn.user
	s.playlist = append(s.playlist, item)
	out := []Message{frame(PathVideoQueued, QueuedVideo{Item: item, Index: len(s.playlist) - 1})}
	if wasEmpty {
		s.currentTrack = 0
		s.anchorTime = s.now()
		out = append(out, frame(PathTrackChanged, s.trackChangeLocked(s.now())))
	}
	s.mu.Unlock()
	s.broadcast(originOf(conn, msg), out...)
	s.persist()
}

// InsertNext places an item directly after the current track without
// touching the current-track pointer.
func (s *Session) InsertNext(conn *Connection, msg *Message, item PlaylistItem) {
	s.mu.Lock()
	if !s.allowLocked(conn, levelUnlocked) {
		s.mu.Unlock()
		conn.send(deniedFrame(msg.AckID))
		return
	}
	item.AddedBy = *conn.user
	var out []Message
	if len(s.playlist) == 0 {
		s.playlist = []PlaylistItem{item}
		s.currentTrack = 0
		s.anchorTime = s.now()
		out = append(out,
			frame(PathVideoQueued, QueuedVideo{Item: item, Index: 0}),
			frame(PathTrackChanged, s.trackChangeLocked(s.now())))
	} else {
		at := s.currentTrack + 1
		s.playlist = append(s.playlist[:at], append([]PlaylistItem{item}, s.playlist[at:]...)...)
		out = append(out, frame(PathVideoQueued, QueuedVideo{Item: item, Index: at}))
	}
	s.mu.Unlock()
	s.broadcast(originOf(conn, msg), out...)
	s.persist()
}

// AddAndPlay appends an item and makes it current right away, bypassing
// the normal ordering.
func (s *Session) AddAndPlay(conn *Connection, msg *Message, item PlaylistItem) {
	s.mu.Lock()
	if !s.allowLocked(conn, levelUnlocked) {
		s.mu.Unlock()
		conn.send(deniedFrame(msg.AckID))
		return
	}
	item.AddedBy = *conn.user
	s.playlist = append(s.playlist, item)
	s.currentTrack = len(s.playlist) - 1
	s.anchorTime = s.now()
	s.purgeVotesForLinkLocked(item.Link)
	s.reorderLocked()
	out := []Message{
		frame(PathVideoQueued, QueuedVideo{Item: item, Index: s.indexOfLinkLocked(item.Link)}),
		frame(PathTrackChanged, s.trackChangeLocked(s.now())),
	}
	s.mu.Unlock()
	s.broadcast(originOf(conn, msg), out...)
	s.persist()
}

// Remove deletes the item at index. Out-of-range indices are a no-op.
// Removing at or before the current track shifts the pointer back so the
// same item keeps playing where possible.
func (s *Session) Remove(conn *Connection, msg *Message, index int) {
	s.mu.Lock()
	if !s.allowLocked(conn, levelUnlocked) {
		s.mu.Unlock()
		conn.send(deniedFrame(msg.AckID))
		return
	}
	if index < 0 || index >= len(s.playlist) {
		s.mu.Unlock()
		return
	}
	priorLink := s.playlist[s.currentTrack].Link
	removed := s.playlist[index]
	s.playlist = append(s.playlist[:index], s.playlist[index+1:]...)
	if index <= s.currentTrack && s.currentTrack > 0 {
		s.currentTrack--
	}
	s.purgeVotesForLinkLocked(removed.Link)
	out := []Message{frame(PathVideoRemoved, index)}
	if len(s.playlist) == 0 {
		s.currentTrack = 0
		s.anchorTime = s.now()
		s.performing = ""
		out = append(out, frame(PathStop, nil))
	} else {
		s.reorderLocked()
		if s.playlist[s.currentTrack].Link != priorLink {
			s.anchorTime = s.now()
			out = append(out, frame(PathTrackChanged, s.trackChangeLocked(s.now())))
		}
	}
	s.mu.Unlock()
	s.broadcast(originOf(conn, msg), out...)
	s.persist()
}

// Move relocates an item by link identity. The current track is
// recomputed by identity afterwards, never by stale index.
func (s *Session) Move(conn *Connection, msg *Message, link string, newIndex int) {
	s.mu.Lock()
	if !s.allowLocked(conn, levelUnlocked) {
		s.mu.Unlock()
		conn.send(deniedFrame(msg.AckID))
		return
	}
	from := s.indexOfLinkLocked(link)
	if from < 0 {
		s.mu.Unlock()
		conn.send(errorFrame(msg.AckID, "no such video in the playlist"))
		return
	}
	if newIndex < 0 {
		newIndex = 0
	}
	if newIndex > len(s.playlist)-1 {
		newIndex = len(s.playlist) - 1
	}
	currentLink := s.playlist[s.currentTrack].Link
	item := s.playlist[from]
	s.playlist = append(s.playlist[:from], s.playlist[from+1:]...)
	s.playlist = append(s.playlist[:newIndex], append([]PlaylistItem{item}, s.playlist[newIndex:]...)...)
	s.currentTrack = s.indexOfLinkLocked(currentLink)
	s.mu.Unlock()
	s.broadcast(originOf(conn, msg), frame(PathVideoMoved, MovedVideo{Link: link, Index: newIndex}))
	s.persist()
}

// SetTrack jumps to the playlist entry at index and restarts the clock.
func (s *Session) SetTrack(conn *Connection, msg *Message, index int) {
	s.mu.Lock()
	if !s.allowLocked(conn, levelUnlocked) {
		s.mu.Unlock()
		conn.send(deniedFrame(msg.AckID))
		return
	}
	if index < 0 || index >= len(s.playlist) {
		s.mu.Unlock()
		conn.send(errorFrame(msg.AckID, "track index out of range"))
		return
	}
	prior := s.playlist[s.currentTrack].Link
	s.currentTrack = index
	s.anchorTime = s.now()
	s.purgeVotesForLinkLocked(prior)
	s.purgeVotesForLinkLocked(s.playlist[s.currentTrack].Link)
	s.reorderLocked()
	out := frame(PathTrackChanged, s.trackChangeLocked(s.now()))
	s.mu.Unlock()
	s.broadcast(nil, out)
	s.persist()
}

// Clear empties the playlist and resets the clock.
func (s *Session) Clear(conn *Connection, msg *Message) {
	s.mu.Lock()
	if !s.allowLocked(conn, levelUnlocked) {
		s.mu.Unlock()
		conn.send(deniedFrame(msg.AckID))
		return
	}
	s.clearLocked()
	s.mu.Unlock()
	s.broadcast(originOf(conn, msg), frame(PathPlaylistCleared, nil))
	s.persist()
}

// Import pulls a whole external playlist in. Only proceeds on an empty
// playlist unless the caller explicitly asks for a clear first. The fetch
// happens outside the lock; conditions are rechecked once it returns.
func (s *Session) Import(conn *Connection, msg *Message, playlistID string, clear bool) {
	if playlistID == "" {
		conn.send(errorFrame(msg.AckID, "missing playlist id"))
		return
	}
	s.mu.Lock()
	if !s.allowLocked(conn, levelHost) {
		s.mu.Unlock()
		conn.send(deniedFrame(msg.AckID))
		return
	}
	if len(s.playlist) > 0 && !clear {
		s.mu.Unlock()
		conn.send(errorFrame(msg.AckID, "the playlist is not empty"))
		return
	}
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	items, err := s.svc.FetchPlaylist(ctx, playlistID)
	if err != nil {
		conn.send(errorFrame(msg.AckID, "playlist import failed: "+err.Error()))
		return
	}
	if len(items) == 0 {
		conn.send(errorFrame(msg.AckID, "that playlist is empty or private"))
		return
	}

	s.mu.Lock()
	if !s.allowLocked(conn, levelHost) {
		s.mu.Unlock()
		conn.send(deniedFrame(msg.AckID))
		return
	}
	if len(s.playlist) > 0 && !clear {
		// somebody queued a track while the fetch was in flight
		s.mu.Unlock()
		conn.send(errorFrame(msg.AckID, "the playlist is not empty"))
		return
	}
	if clear {
		s.clearLocked()
	}
	seen := make(map[string]bool, len(s.playlist))
	for _, existing := range s.playlist {
		seen[canonicalVideoID(existing.Link)] = true
	}
	report := ImportReport{}
	for _, item := range items {
		id := canonicalVideoID(item.Link)
		if seen[id] {
			report.Skipped++
			continue
		}
		seen[id] = true
		item.AddedBy = *conn.user
		item.Source = SourceImport
		s.playlist = append(s.playlist, item)
		report.Added = append(report.Added, item)
	}
	var out []Message
	if len(report.Added) > 0 {
		s.currentTrack = 0
		s.anchorTime = s.now()
		out = append(out,
			frame(PathPlaylistImported, report),
			frame(PathTrackChanged, s.trackChangeLocked(s.now())))
	}
	s.mu.Unlock()
	conn.send(reply(PathPlaylistImported, msg.AckID, report))
	s.broadcast(conn, out...)
	s.persist()
}
