package ws

import (
	"testing"

	"github.com/ayushgarg2005/Chat-Application/internal/protocol"
)

// capture registers itself for a kind and records whether it ran.
type capture struct {
	called bool
	conn   *Connection
	msg    interface{}
}

func (c *capture) handler(conn *Connection, msg interface{}) {
	c.called = true
	c.conn = conn
	c.msg = msg
}

func TestDispatch_RoutesToRegisteredHandler(t *testing.T) {
	d := NewMessageDispatcher()
	cap := &capture{}
	d.Register(protocol.TypeAuth, cap.handler)

	conn := &Connection{ID: "c1"}
	d.Dispatch(conn, []byte(`{"type":"auth","userId":5}`))

	if !cap.called {
		t.Fatal("auth handler should have been invoked")
	}
	authMsg, ok := cap.msg.(protocol.AuthMsg)
	if !ok {
		t.Fatalf("expected AuthMsg, got %T", cap.msg)
	}
	if authMsg.UserID != 5 {
		t.Errorf("expected userId 5, got %d", authMsg.UserID)
	}
}

func TestDispatch_PreAuthFramesSilentlyDropped(t *testing.T) {
	d := NewMessageDispatcher()
	msgCap := &capture{}
	d.Register(protocol.TypeMessage, msgCap.handler)

	conn := &Connection{ID: "c1"} // no identity bound
	d.Dispatch(conn, []byte(`{"type":"message","content":"hi","receiverId":2}`))

	if msgCap.called {
		t.Fatal("non-auth frame on an unauthenticated connection must be dropped")
	}
}

func TestDispatch_AuthPassesGate(t *testing.T) {
	d := NewMessageDispatcher()
	authCap := &capture{}
	d.Register(protocol.TypeAuth, authCap.handler)

	conn := &Connection{ID: "c1"}
	d.Dispatch(conn, []byte(`{"type":"auth","userId":1}`))

	if !authCap.called {
		t.Fatal("auth frames must pass the gate on an unauthenticated connection")
	}
}

func TestDispatch_AuthenticatedFrameRouted(t *testing.T) {
	d := NewMessageDispatcher()
	msgCap := &capture{}
	d.Register(protocol.TypeMessage, msgCap.handler)

	conn := &Connection{ID: "c1"}
	conn.SetUserID(7)
	d.Dispatch(conn, []byte(`{"type":"message","content":"hi"}`))

	if !msgCap.called {
		t.Fatal("authenticated frame should reach its handler")
	}
}

func TestDispatch_MalformedFrameDropped(t *testing.T) {
	d := NewMessageDispatcher()
	cap := &capture{}
	d.Register(protocol.TypeAuth, cap.handler)

	conn := &Connection{ID: "c1"}
	d.Dispatch(conn, []byte(`not json`))
	d.Dispatch(conn, []byte(`{"noType":true}`))

	if cap.called {
		t.Fatal("malformed frames must never reach a handler")
	}
}

func TestDispatch_UnregisteredKindIgnored(t *testing.T) {
	d := NewMessageDispatcher()

	conn := &Connection{ID: "c1"}
	conn.SetUserID(7)
	// No handler registered for markRead; must not panic.
	d.Dispatch(conn, []byte(`{"type":"markRead","withUserId":2}`))
}
