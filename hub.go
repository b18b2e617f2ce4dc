// this file routes websocket frames to sessions
package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const writeWait = 10 * time.Second

// wsSocket is the slice of *websocket.Conn the hub needs; tests swap in a
// recording fake.
type wsSocket interface {
	ReadMessage() (int, []byte, error)
	WriteMessage(messageType int, data []byte) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

// Connection is one live socket. The user is nil until the first
// identifying frame arrives; the role is fixed at join time.
type Connection struct {
	id       string
	sock     wsSocket
	writeMu  sync.Mutex
	session  *Session
	user     *User
	role     Role
	joinedAt time.Time
}

// send marshals and writes one frame. Writes are serialized per
// connection; a failed write is logged and otherwise ignored, the read
// loop will notice the dead socket.
func (c *Connection) send(msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		logger.Errorf("conn %s: marshal frame: %v", c.id, err)
		return
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.sock.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.sock.WriteMessage(websocket.TextMessage, data); err != nil {
		logger.Warnf("conn %s: write failed: %v", c.id, err)
	}
}

// Hub upgrades sockets and dispatches decoded frames against the closed
// command vocabulary.
type Hub struct {
	registry *Registry
	svc      Service
	upgrader websocket.Upgrader
}

func NewHub(registry *Registry, svc Service) *Hub {
	return &Hub{
		registry: registry,
		svc:      svc,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	sock, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warnf("websocket upgrade failed: %v", err)
		return
	}
	conn := &Connection{
		id:       uuid.NewString(),
		sock:     sock,
		role:     RoleUI,
		joinedAt: time.Now(),
	}
	h.readLoop(conn)
}

// readLoop handles one socket until it closes. Each frame is handled to
// completion before the next is read; malformed frames are logged and
// dropped without closing the connection.
func (h *Hub) readLoop(conn *Connection) {
	defer func() {
		conn.sock.Close()
		if conn.session != nil {
			conn.session.detach(conn)
			conn.session = nil
		}
	}()
	for {
		_, data, err := conn.sock.ReadMessage()
		if err != nil {
			return
		}
		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			logger.Warnf("conn %s: dropping malformed frame: %v", conn.id, err)
			continue
		}
		h.dispatch(conn, &msg)
	}
}

type frameHandler func(h *Hub, conn *Connection, msg *Message)

// handlers is the exhaustive dispatch table over the command vocabulary.
// An unlisted path is rejected explicitly, never silently swallowed.
var handlers = map[string]frameHandler{
	PathJoin:              (*Hub).handleJoin,
	PathLeave:             (*Hub).handleLeave,
	PathSearch:            (*Hub).handleSearch,
	PathQueueVideo:        (*Hub).handleQueueVideo,
	PathQueueNext:         (*Hub).handleQueueNext,
	PathPlayVideo:         (*Hub).handlePlayVideo,
	PathRemoveVideo:       (*Hub).handleRemoveVideo,
	PathMoveVideo:         (*Hub).handleMoveVideo,
	PathImportPlaylist:    (*Hub).handleImportPlaylist,
	PathClearPlaylist:     (*Hub).handleClearPlaylist,
	PathSetTrack:          (*Hub).handleSetTrack,
	PathSeek:              (*Hub).handleSeek,
	PathSkip:              (*Hub).handleSkip,
	PathRestart:           (*Hub).handleRestart,
	PathToggleLock:        (*Hub).handleToggleLock,
	PathToggleCanTakeOver: (*Hub).handleToggleCanTakeOver,
	PathTakeOver:          (*Hub).handleTakeOver,
	PathToggleVoting:      (*Hub).handleToggleVoting,
	PathVoteUp:            (*Hub).handleVoteUp,
	PathVoteDown:          (*Hub).handleVoteDown,
	PathToggleAutoAdvance: (*Hub).handleToggleAutoAdvance,
	PathToggleAutoSync:    (*Hub).handleToggleAutoSync,
	PathKaraokeJoin:       (*Hub).handleKaraokeJoin,
	PathKaraokeLeave:      (*Hub).handleKaraokeLeave,
	PathKaraokeMove:       (*Hub).handleKaraokeMove,
	PathKaraokePlay:       (*Hub).handleKaraokePlay,
	PathLatency:           (*Hub).handleTime,
	PathGetTime:           (*Hub).handleTime,
}

func (h *Hub) dispatch(conn *Connection, msg *Message) {
	if msg.User != nil && msg.User.ID != "" {
		// identity is caller-supplied and trusted as given
		conn.user = msg.User
	}
	handler, ok := handlers[msg.Path]
	if !ok {
		logger.Warnf("conn %s: unknown path %q", conn.id, msg.Path)
		conn.send(errorFrame(msg.AckID, "unknown command"))
		return
	}
	if msg.Path != PathJoin && conn.session == nil {
		conn.send(errorFrame(msg.AckID, "join a session first"))
		return
	}
	handler(h, conn, msg)
}

// decode unpacks the data field of a frame into a command payload.
func (msg *Message) decode(v interface{}) error {
	if len(msg.Data) == 0 {
		return errors.New("missing data")
	}
	return json.Unmarshal(msg.Data, v)
}

func (h *Hub) handleJoin(conn *Connection, msg *Message) {
	if msg.Instance == "" || conn.user == nil {
		conn.send(errorFrame(msg.AckID, "join requires an instance id and a user"))
		return
	}
	var payload struct {
		Role Role `json:"role"`
	}
	if len(msg.Data) > 0 {
		msg.decode(&payload)
	}
	switch payload.Role {
	case RoleSpace, RolePlayer, RoleUI:
		conn.role = payload.Role
	}
	if conn.session != nil && conn.session.id != msg.Instance {
		conn.session.detach(conn)
		conn.session = nil
	}
	session := h.registry.GetOrCreate(msg.Instance, *conn.user)
	conn.session = session
	session.attach(conn)
	conn.send(reply(PathUpdate, msg.AckID, session.State()))
}

func (h *Hub) handleLeave(conn *Connection, msg *Message) {
	conn.session.detach(conn)
	conn.session = nil
}

func (h *Hub) handleSearch(conn *Connection, msg *Message) {
	var query string
	if err := msg.decode(&query); err != nil || query == "" {
		conn.send(errorFrame(msg.AckID, "missing search query"))
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	items, err := h.svc.Search(ctx, query)
	if err != nil {
		conn.send(errorFrame(msg.AckID, "search failed: "+err.Error()))
		return
	}
	conn.send(reply(PathSearchResults, msg.AckID, items))
}

func decodeItem(conn *Connection, msg *Message) (PlaylistItem, bool) {
	var item PlaylistItem
	if err := msg.decode(&item); err != nil || item.Link == "" {
		conn.send(errorFrame(msg.AckID, "missing video data"))
		return item, false
	}
	if item.Source == "" {
		item.Source = SourceManual
	}
	return item, true
}

func (h *Hub) handleQueueVideo(conn *Connection, msg *Message) {
	if item, ok := decodeItem(conn, msg); ok {
		conn.session.Append(conn, msg, item)
	}
}

func (h *Hub) handleQueueNext(conn *Connection, msg *Message) {
	if item, ok := decodeItem(conn, msg); ok {
		conn.session.InsertNext(conn, msg, item)
	}
}

func (h *Hub) handlePlayVideo(conn *Connection, msg *Message) {
	if item, ok := decodeItem(conn, msg); ok {
		conn.session.AddAndPlay(conn, msg, item)
	}
}

func (h *Hub) handleRemoveVideo(conn *Connection, msg *Message) {
	var index int
	if err := msg.decode(&index); err != nil {
		conn.send(errorFrame(msg.AckID, "missing index"))
		return
	}
	conn.session.Remove(conn, msg, index)
}

func (h *Hub) handleMoveVideo(conn *Connection, msg *Message) {
	var payload struct {
		Link  string `json:"link"`
		Index int    `json:"index"`
	}
	if err := msg.decode(&payload); err != nil || payload.Link == "" {
		conn.send(errorFrame(msg.AckID, "missing link or index"))
		return
	}
	conn.session.Move(conn, msg, payload.Link, payload.Index)
}

func (h *Hub) handleImportPlaylist(conn *Connection, msg *Message) {
	var payload struct {
		ID    string `json:"id"`
		Clear bool   `json:"clear"`
	}
	if err := msg.decode(&payload); err != nil {
		conn.send(errorFrame(msg.AckID, "missing playlist id"))
		return
	}
	conn.session.Import(conn, msg, payload.ID, payload.Clear)
}

func (h *Hub) handleClearPlaylist(conn *Connection, msg *Message) {
	conn.session.Clear(conn, msg)
}

func (h *Hub) handleSetTrack(conn *Connection, msg *Message) {
	var index int
	if err := msg.decode(&index); err != nil {
		conn.send(errorFrame(msg.AckID, "missing index"))
		return
	}
	conn.session.SetTrack(conn, msg, index)
}

func (h *Hub) handleSeek(conn *Connection, msg *Message) {
	var seconds float64
	if err := msg.decode(&seconds); err != nil {
		conn.send(errorFrame(msg.AckID, "missing position"))
		return
	}
	conn.session.Seek(conn, msg, seconds)
}

func (h *Hub) handleSkip(conn *Connection, msg *Message) {
	conn.session.Skip(conn, msg)
}

func (h *Hub) handleRestart(conn *Connection, msg *Message) {
	conn.session.Restart(conn, msg)
}

func decodeBool(conn *Connection, msg *Message) (bool, bool) {
	var value bool
	if err := msg.decode(&value); err != nil {
		conn.send(errorFrame(msg.AckID, "missing boolean value"))
		return false, false
	}
	return value, true
}

func (h *Hub) handleToggleLock(conn *Connection, msg *Message) {
	if value, ok := decodeBool(conn, msg); ok {
		conn.session.ToggleLock(conn, msg, value)
	}
}

func (h *Hub) handleToggleCanTakeOver(conn *Connection, msg *Message) {
	if value, ok := decodeBool(conn, msg); ok {
		conn.session.ToggleCanTakeOver(conn, msg, value)
	}
}

func (h *Hub) handleTakeOver(conn *Connection, msg *Message) {
	conn.session.TakeOver(conn, msg)
}

func (h *Hub) handleToggleVoting(conn *Connection, msg *Message) {
	if value, ok := decodeBool(conn, msg); ok {
		conn.session.ToggleVoting(conn, msg, value)
	}
}

func (h *Hub) handleVoteUp(conn *Connection, msg *Message) {
	h.handleVote(conn, msg, +1)
}

func (h *Hub) handleVoteDown(conn *Connection, msg *Message) {
	h.handleVote(conn, msg, -1)
}

func (h *Hub) handleVote(conn *Connection, msg *Message, direction int) {
	var link string
	if err := msg.decode(&link); err != nil || link == "" {
		conn.send(errorFrame(msg.AckID, "missing link"))
		return
	}
	conn.session.Vote(conn, msg, link, direction)
}

func (h *Hub) handleToggleAutoAdvance(conn *Connection, msg *Message) {
	if value, ok := decodeBool(conn, msg); ok {
		conn.session.ToggleAutoAdvance(conn, msg, value)
	}
}

func (h *Hub) handleToggleAutoSync(conn *Connection, msg *Message) {
	if value, ok := decodeBool(conn, msg); ok {
		conn.session.ToggleAutoSync(conn, msg, value)
	}
}

func (h *Hub) handleKaraokeJoin(conn *Connection, msg *Message) {
	if item, ok := decodeItem(conn, msg); ok {
		conn.session.KaraokeJoin(conn, msg, item)
	}
}

func (h *Hub) handleKaraokeLeave(conn *Connection, msg *Message) {
	var userID string
	if len(msg.Data) > 0 {
		msg.decode(&userID)
	}
	conn.session.KaraokeLeave(conn, msg, userID)
}

func (h *Hub) handleKaraokeMove(conn *Connection, msg *Message) {
	var payload struct {
		UserID    string `json:"userId"`
		Direction string `json:"direction"`
	}
	if err := msg.decode(&payload); err != nil || payload.UserID == "" {
		conn.send(errorFrame(msg.AckID, "missing user id or direction"))
		return
	}
	conn.session.KaraokeMove(conn, msg, payload.UserID, payload.Direction)
}

func (h *Hub) handleKaraokePlay(conn *Connection, msg *Message) {
	var userID string
	if len(msg.Data) > 0 {
		msg.decode(&userID)
	}
	conn.session.KaraokePlay(conn, msg, userID)
}

func (h *Hub) handleTime(conn *Connection, msg *Message) {
	var clientTime int64
	if len(msg.Data) > 0 {
		msg.decode(&clientTime)
	}
	conn.session.Time(conn, msg, clientTime)
}
