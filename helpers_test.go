package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// fakeSock records outbound frames and serves queued inbound ones.
type fakeSock struct {
	mu     sync.Mutex
	in     [][]byte
	frames []Message
	closed bool
}

func (f *fakeSock) ReadMessage() (int, []byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.in) == 0 {
		return 0, nil, io.EOF
	}
	data := f.in[0]
	f.in = f.in[1:]
	return websocket.TextMessage, data, nil
}

func (f *fakeSock) WriteMessage(_ int, data []byte) error {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return err
	}
	f.mu.Lock()
	f.frames = append(f.frames, msg)
	f.mu.Unlock()
	return nil
}

func (f *fakeSock) SetWriteDeadline(time.Time) error { return nil }

func (f *fakeSock) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	return nil
}

func (f *fakeSock) paths() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.frames))
	for i, m := range f.frames {
		out[i] = m.Path
	}
	return out
}

func (f *fakeSock) lastFrame(t *testing.T, path string) Message {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.frames) - 1; i >= 0; i-- {
		if f.frames[i].Path == path {
			return f.frames[i]
		}
	}
	t.Fatalf("no %q frame received, got %v", path, f.frames)
	return Message{}
}

func (f *fakeSock) hasFrame(path string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range f.frames {
		if m.Path == path {
			return true
		}
	}
	return false
}

func decodePayload(t *testing.T, msg Message, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(msg.Data, v); err != nil {
		t.Fatalf("decode %s payload: %v", msg.Path, err)
	}
}

// fakeProvider is a canned VideoProvider.
type fakeProvider struct {
	results  []PlaylistItem
	playlist []PlaylistItem
	err      error
}

func (p fakeProvider) Search(context.Context, string) ([]PlaylistItem, error) {
	return p.results, p.err
}

func (p fakeProvider) FetchPlaylist(context.Context, string) ([]PlaylistItem, error) {
	return p.playlist, p.err
}

// testClock lets tests move simulated time by hand.
type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func newTestClock() *testClock {
	return &testClock{t: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) advance(d time.Duration) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
	return c.t
}

var errFetch = errors.New("upstream said no")

var (
	hostUser  = User{ID: "host-1", Name: "Alice"}
	guestUser = User{ID: "guest-1", Name: "Bob"}
	otherUser = User{ID: "guest-2", Name: "Carol"}
)

func testService(provider VideoProvider) Service {
	if provider == nil {
		provider = fakeProvider{}
	}
	return NewService(NewMemoryRepository(), provider)
}

func newTestSession(t *testing.T, provider VideoProvider) (*Session, *testClock) {
	t.Helper()
	clock := newTestClock()
	s := NewSession("room1", testService(provider), 42*time.Second, nil, hostUser)
	s.now = clock.now
	t.Cleanup(s.stop)
	return s, clock
}

func newTestConn(s *Session, user User, role Role) (*Connection, *fakeSock) {
	sock := &fakeSock{}
	conn := &Connection{
		id:       "conn-" + user.ID + "-" + string(role),
		sock:     sock,
		user:     &user,
		role:     role,
		joinedAt: time.Now(),
		session:  s,
	}
	if s != nil {
		s.attach(conn)
	}
	return conn, sock
}

func mustItem(link string, durationMs int64) PlaylistItem {
	return PlaylistItem{
		Title:    "track " + link,
		Link:     "https://www.youtube.com/watch?v=" + link,
		Duration: durationMs,
		Source:   SourceManual,
	}
}

func cmd(path string, data interface{}) *Message {
	msg := frame(path, data)
	msg.AckID = "ack-1"
	return &msg
}

func links(playlist []PlaylistItem) []string {
	out := make([]string, len(playlist))
	for i, item := range playlist {
		out[i] = item.Link
	}
	return out
}

func assertInvariant(t *testing.T, s *Session) {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.playlist) == 0 {
		if s.currentTrack != 0 {
			t.Fatalf("empty playlist must keep currentTrack 0, got %d", s.currentTrack)
		}
		return
	}
	if s.currentTrack < 0 || s.currentTrack >= len(s.playlist) {
		t.Fatalf("currentTrack %d out of range for %d items", s.currentTrack, len(s.playlist))
	}
}
