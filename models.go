// this file defines the data structures used throughout
package main

import "time"

// User is an opaque identity supplied by the caller. Two users are the
// same iff their IDs match; the display name is cosmetic.
type User struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// ItemSource records how a playlist entry came to exist.
type ItemSource string

const (
	SourceManual  ItemSource = "manual"
	SourceImport  ItemSource = "import"
	SourceKaraoke ItemSource = "karaoke"
)

// PlaylistItem is one queued video. Immutable after creation except for
// its position and the derived vote score.
type PlaylistItem struct {
	Title     string     `json:"title"`
	Thumbnail string     `json:"thumbnail"`
	Link      string     `json:"link"`
	Duration  int64      `json:"duration"` // milliseconds, 0 for live streams
	AddedBy   User       `json:"addedBy"`
	VoteScore int        `json:"voteScore"`
	Source    ItemSource `json:"source"`
}

// Singer is a pending karaoke performer. FIFO except for host reordering.
type Singer struct {
	User     User         `json:"user"`
	Item     PlaylistItem `json:"item"`
	QueuedAt time.Time    `json:"queuedAt"`
}

// Role tags what kind of client a connection represents.
type Role string

const (
	RoleSpace  Role = "space"  // presence in the shared virtual space
	RolePlayer Role = "player" // dedicated playback screen
	RoleUI     Role = "ui"     // control surface only
)

// Snapshot is the durable projection of a session. Live-only state
// (connections, votes, host identity, timers) is deliberately absent.
type Snapshot struct {
	Playlist      []PlaylistItem `json:"playlist"`
	CurrentTrack  int            `json:"currentTrack"`
	AnchorTime    int64          `json:"anchorTime"` // unix milliseconds
	Locked        bool           `json:"locked"`
	CanTakeOver   bool           `json:"canTakeOver"`
	VotingEnabled bool           `json:"votingEnabled"`
}
