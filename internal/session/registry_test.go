package session

import (
	"errors"
	"io"
	"net"
	"testing"
	"time"

	"github.com/ayushgarg2005/Chat-Application/internal/ws"
)

// newTestConn builds a Connection over an in-memory pipe and drains whatever
// the server side writes so WriteMessage never blocks.
func newTestConn(t *testing.T, id string) *ws.Connection {
	t.Helper()
	server, client := net.Pipe()
	go func() { _, _ = io.Copy(io.Discard, client) }()
	t.Cleanup(func() {
		server.Close()
		client.Close()
	})
	return &ws.Connection{ID: id, Conn: server}
}

func TestBind_SetsIdentityAndReturnsPrev(t *testing.T) {
	r := NewRegistry()
	c1 := newTestConn(t, "c1")
	c2 := newTestConn(t, "c2")

	if prev := r.Bind(1, c1); prev != nil {
		t.Errorf("first bind should have no previous connection, got %v", prev.ID)
	}
	if c1.UserID() != 1 {
		t.Errorf("bind should stamp the identity on the connection, got %d", c1.UserID())
	}
	if !r.IsBound(1) {
		t.Fatal("user 1 should be bound")
	}

	// Last writer wins.
	if prev := r.Bind(1, c2); prev != c1 {
		t.Errorf("rebind should return the superseded connection")
	}
	if got := r.Get(1); got != c2 {
		t.Errorf("registry should point at the newest connection")
	}
}

func TestUnbind_StaleCloseDoesNotEvictFreshBinding(t *testing.T) {
	r := NewRegistry()
	old := newTestConn(t, "old")
	fresh := newTestConn(t, "fresh")

	r.Bind(1, old)
	r.Bind(1, fresh)

	// The old channel closes after the reconnect; its unbind must be a no-op.
	if r.Unbind(1, old) {
		t.Fatal("stale unbind must not remove the fresh binding")
	}
	if got := r.Get(1); got != fresh {
		t.Fatal("fresh binding should survive the stale close")
	}

	if !r.Unbind(1, fresh) {
		t.Fatal("matching unbind should remove the entry")
	}
	if r.IsBound(1) {
		t.Fatal("user 1 should no longer be bound")
	}
}

func TestPush_NotOnline(t *testing.T) {
	r := NewRegistry()
	err := r.Push(99, []byte(`{"type":"ping"}`))
	if !errors.Is(err, ErrNotOnline) {
		t.Fatalf("expected ErrNotOnline, got %v", err)
	}
}

func TestPush_WritesToBoundConnection(t *testing.T) {
	r := NewRegistry()
	c := newTestConn(t, "c1")
	r.Bind(1, c)

	if err := r.Push(1, []byte(`{"type":"userStatus"}`)); err != nil {
		t.Fatalf("push to a bound connection should succeed: %v", err)
	}
}

func TestBroadcastExcept_SkipsSender(t *testing.T) {
	r := NewRegistry()

	// Sender's pipe has no reader, so a write to it would block; the
	// broadcast finishing proves the sender was skipped.
	senderSide, _ := net.Pipe()
	sender := &ws.Connection{ID: "sender", Conn: senderSide}
	t.Cleanup(func() { senderSide.Close() })

	peer := newTestConn(t, "peer")

	r.Bind(1, sender)
	r.Bind(2, peer)

	done := make(chan struct{})
	go func() {
		r.BroadcastExcept(1, []byte(`{"type":"userStatus"}`))
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("broadcast blocked, sender was probably not excluded")
	}
}

func TestCount(t *testing.T) {
	r := NewRegistry()
	if r.Count() != 0 {
		t.Fatalf("empty registry should count 0, got %d", r.Count())
	}
	c1 := newTestConn(t, "c1")
	c2 := newTestConn(t, "c2")
	r.Bind(1, c1)
	r.Bind(2, c2)
	if r.Count() != 2 {
		t.Fatalf("expected 2 bound identities, got %d", r.Count())
	}
	r.Unbind(1, c1)
	if r.Count() != 1 {
		t.Fatalf("expected 1 bound identity, got %d", r.Count())
	}
}
