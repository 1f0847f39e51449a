package ws

import (
	"log"

	"github.com/ayushgarg2005/Chat-Application/internal/protocol"
)

// MessageHandler is the callback signature for handling a parsed client frame.
// The msg parameter is the concrete struct returned by
// protocol.ParseClientMessage (e.g., protocol.AuthMsg, protocol.ChatMsg).
type MessageHandler func(conn *Connection, msg interface{})

// MessageDispatcher routes incoming WebSocket frames to registered handlers
// based on the declared message kind. It enforces the authentication gate:
// until a connection has a bound user identity, every frame except "auth" is
// dropped. Malformed frames and unknown kinds are dropped silently as well —
// there is no established identity to address an error reply to, and
// replying to unauthenticated peers would leak parser internals.
type MessageDispatcher struct {
	handlers map[string]MessageHandler
}

// NewMessageDispatcher creates an empty MessageDispatcher.
func NewMessageDispatcher() *MessageDispatcher {
	return &MessageDispatcher{
		handlers: make(map[string]MessageHandler),
	}
}

// Register associates a MessageHandler with a message kind. If a handler was
// already registered for the given kind, it is silently replaced.
func (d *MessageDispatcher) Register(msgType string, handler MessageHandler) {
	d.handlers[msgType] = handler
}

// Dispatch is the onMessage callback implementation. It parses the raw bytes
// into a typed message, applies the authentication gate, and routes to the
// registered handler. One bad frame never affects the connection; only the
// auth handler may close a channel (on an invalid identity).
func (d *MessageDispatcher) Dispatch(conn *Connection, data []byte) {
	msgType, msg, err := protocol.ParseClientMessage(data)
	if err != nil {
		// Includes unknown kinds. Drop without replying.
		log.Printf("ws: dropping frame conn=%s: %v", conn.ID, err)
		return
	}

	// Authentication gate: no identity bound yet, only auth passes.
	if conn.UserID() == 0 && msgType != protocol.TypeAuth {
		log.Printf("ws: dropping pre-auth %q frame conn=%s", msgType, conn.ID)
		return
	}

	handler, ok := d.handlers[msgType]
	if !ok {
		log.Printf("ws: no handler for kind=%q conn=%s", msgType, conn.ID)
		return
	}

	handler(conn, msg)
}
