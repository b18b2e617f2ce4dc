// this file defines the wire protocol - frames, paths and payloads
package main

import "encoding/json"

// Message is the single frame shape both directions. Inbound frames carry
// a command path plus optional identity (u) and instance (i); outbound
// frames carry a reply or broadcast path plus a payload. AckID correlates
// a direct reply with the command that caused it. SkipUpdate asks the
// server to leave the sender out of the resulting broadcast.
type Message struct {
	Path       string          `json:"path"`
	Data       json.RawMessage `json:"data,omitempty"`
	User       *User           `json:"u,omitempty"`
	Instance   string          `json:"i,omitempty"`
	AckID      string          `json:"id,omitempty"`
	Type       string          `json:"type,omitempty"`
	SkipUpdate bool            `json:"skipUpdate,omitempty"`
}

// Command paths. The dispatch table in hub.go must cover exactly this set;
// anything else is rejected with an error frame.
const (
	PathJoin              = "join"
	PathLeave             = "leave"
	PathSearch            = "search"
	PathQueueVideo        = "queueVideo"
	PathQueueNext         = "queueNext"
	PathPlayVideo         = "playVideo"
	PathRemoveVideo       = "removeVideo"
	PathMoveVideo         = "moveVideo"
	PathImportPlaylist    = "importPlaylist"
	PathClearPlaylist     = "clearPlaylist"
	PathSetTrack          = "setTrack"
	PathSeek              = "seek"
	PathSkip              = "skip"
	PathRestart           = "restart"
	PathToggleLock        = "toggleLock"
	PathToggleCanTakeOver = "toggleCanTakeOver"
	PathTakeOver          = "takeOver"
	PathToggleVoting      = "toggleVoting"
	PathVoteUp            = "voteUp"
	PathVoteDown          = "voteDown"
	PathToggleAutoAdvance = "toggleAutoAdvance"
	PathToggleAutoSync    = "toggleAutoSync"
	PathKaraokeJoin       = "karaokeJoin"
	PathKaraokeLeave      = "karaokeLeave"
	PathKaraokeMove       = "karaokeMove"
	PathKaraokePlay       = "karaokePlay"
	PathLatency           = "latency"
	PathGetTime           = "getTime"
)

// Reply and broadcast paths.
const (
	PathUpdate            = "update"
	PathSearchResults     = "searchResults"
	PathVideoQueued       = "videoQueued"
	PathVideoRemoved      = "videoRemoved"
	PathVideoMoved        = "videoMoved"
	PathPlaylistImported  = "playlistImported"
	PathPlaylistCleared   = "playlistCleared"
	PathPlaylistReordered = "playlistReordered"
	PathTrackChanged      = "trackChanged"
	PathSeekTo            = "seekTo"
	PathStop              = "stop"
	PathLocked            = "locked"
	PathCanTakeOver       = "canTakeOver"
	PathHostChanged       = "hostChanged"
	PathVotingEnabled     = "votingEnabled"
	PathAutoAdvance       = "autoAdvance"
	PathAutoSync          = "autoSync"
	PathSingerQueued      = "singerQueued"
	PathSingerRemoved     = "singerRemoved"
	PathSingersReordered  = "singersReordered"
	PathTime              = "time"
	PathDenied            = "denied"
	PathError             = "error"
)

// SessionState is the full-state view sent as the join reply.
type SessionState struct {
	Instance      string         `json:"instance"`
	Playlist      []PlaylistItem `json:"playlist"`
	CurrentTrack  int            `json:"currentTrack"`
	CurrentTime   float64        `json:"currentTime"` // seconds into the current track
	AnchorTime    int64          `json:"anchorTime"`  // unix milliseconds
	Locked        bool           `json:"locked"`
	Host          User           `json:"host"`
	HostConnected bool           `json:"hostConnected"`
	CanTakeOver   bool           `json:"canTakeOver"`
	VotingEnabled bool           `json:"votingEnabled"`
	AutoAdvance   bool           `json:"autoAdvance"`
	AutoSync      bool           `json:"autoSync"`
	Singers       []Singer       `json:"singers"`
	Performing    string         `json:"performing,omitempty"` // user id of the live singer
}

// TrackChange accompanies every current-track mutation so clients can
// resync without refetching the playlist.
type TrackChange struct {
	Index       int          `json:"index"`
	Item        PlaylistItem `json:"item"`
	CurrentTime float64      `json:"currentTime"`
	AnchorTime  int64        `json:"anchorTime"`
}

// TimeReport answers getTime and latency probes.
type TimeReport struct {
	CurrentTime float64 `json:"currentTime"`
	AnchorTime  int64   `json:"anchorTime"`
	ServerTime  int64   `json:"serverTime"`
	ClientTime  int64   `json:"clientTime,omitempty"`
}

// ReorderedPlaylist is the minimal delta after a vote-driven reorder:
// links in their new order with current scores.
type ReorderedPlaylist struct {
	Links  []string       `json:"links"`
	Scores map[string]int `json:"scores"`
}

// QueuedVideo tells clients where a new item landed.
type QueuedVideo struct {
	Item  PlaylistItem `json:"item"`
	Index int          `json:"index"`
}

// MovedVideo identifies a relocated item by link, not by stale index.
type MovedVideo struct {
	Link  string `json:"link"`
	Index int    `json:"index"`
}

// ImportReport summarizes a bulk playlist import.
type ImportReport struct {
	Added   []PlaylistItem `json:"added"`
	Skipped int            `json:"skipped"` // duplicates dropped, non-fatal
}

func frame(path string, payload interface{}) Message {
	msg := Message{Path: path}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			logger.Errorf("marshal %s payload: %v", path, err)
			return Message{Path: PathError, Data: mustRaw("internal encoding failure")}
		}
		msg.Data = data
	}
	return msg
}

func reply(path string, ackID string, payload interface{}) Message {
	msg := frame(path, payload)
	msg.AckID = ackID
	return msg
}

func errorFrame(ackID, reason string) Message {
	return reply(PathError, ackID, reason)
}

func deniedFrame(ackID string) Message {
	return reply(PathDenied, ackID, "you are not allowed to do that")
}

func mustRaw(s string) json.RawMessage {
	data, _ := json.Marshal(s)
	return data
}
