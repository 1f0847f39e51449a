// Package protocol defines the WebSocket message types and structures used for
// communication between the client and server. All messages are serialized as
// JSON and follow a consistent envelope format with a type discriminator.
package protocol

import (
	"encoding/json"
	"fmt"
)

// ---------------------------------------------------------------------------
// Message type constants
// ---------------------------------------------------------------------------

// Client -> Server message types.
const (
	TypeAuth               = "auth"
	TypeMessage            = "message"
	TypeMarkRead           = "markRead"
	TypeConnectionRequest  = "connection_request"
	TypeConnectionResponse = "connection-response"
	TypeTyping             = "typing"
	TypeStopTyping         = "stop_typing"
)

// Server -> Client message types.
const (
	TypeInitialOnlineUsers    = "initialOnlineUsers"
	TypeUserStatus            = "userStatus"
	TypeNewMessage            = "newMessage"
	TypeMessageRead           = "messageRead"
	TypeNewNotification       = "newNotification"
	TypeRequestSent           = "connection-request-sent"
	TypeRequestReceived       = "connection-request-received"
	TypeResponseConfirmed     = "connection-response-confirmed"
	TypeConnectionEstablished = "connection-established"
	TypeError                 = "error"
)

// Connection response decisions accepted on the wire.
const (
	ResponseAccepted = "accepted"
	ResponseRejected = "rejected"
)

// ---------------------------------------------------------------------------
// Envelope — used for initial JSON parsing to extract the type discriminator.
// ---------------------------------------------------------------------------

// Envelope holds the message type and the raw JSON payload for deferred
// parsing into a concrete struct.
type Envelope struct {
	Type string          `json:"type"`
	Raw  json.RawMessage `json:"-"`
}

// UnmarshalJSON implements the json.Unmarshaler interface. It captures the
// full raw bytes and extracts only the "type" field so that the rest of the
// payload can be decoded later into the appropriate concrete struct.
func (e *Envelope) UnmarshalJSON(data []byte) error {
	// Capture the full raw message for deferred parsing.
	e.Raw = make(json.RawMessage, len(data))
	copy(e.Raw, data)

	// Extract only the type field.
	var partial struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &partial); err != nil {
		return fmt.Errorf("protocol: failed to unmarshal envelope: %w", err)
	}
	if partial.Type == "" {
		return fmt.Errorf("protocol: missing or empty \"type\" field")
	}
	e.Type = partial.Type
	return nil
}

// ---------------------------------------------------------------------------
// Client -> Server message structs
// ---------------------------------------------------------------------------

// AuthMsg binds a user identity to the current channel. It must be the first
// frame sent on a connection; everything else is dropped until it arrives.
type AuthMsg struct {
	Type   string `json:"type"`
	UserID int64  `json:"userId"`
}

// ChatMsg is a chat message. A nil ReceiverID means a public broadcast to
// every other online user.
type ChatMsg struct {
	Type       string `json:"type"`
	Content    string `json:"content"`
	ReceiverID *int64 `json:"receiverId,omitempty"`
}

// MarkReadMsg marks all unread messages from WithUserID to the sender as read.
type MarkReadMsg struct {
	Type       string `json:"type"`
	WithUserID int64  `json:"withUserId"`
}

// ConnectionRequestMsg asks to open a connection with another user.
type ConnectionRequestMsg struct {
	Type         string `json:"type"`
	TargetUserID int64  `json:"targetUserId"`
}

// ConnectionResponseMsg accepts or rejects a pending connection request that
// FromUserID previously sent to the current user.
type ConnectionResponseMsg struct {
	Type       string `json:"type"`
	FromUserID int64  `json:"fromUserId"`
	Response   string `json:"response"` // "accepted" or "rejected"
}

// TypingMsg signals that the sender started or stopped typing to user To.
// The same struct serves both "typing" and "stop_typing" kinds.
type TypingMsg struct {
	Type string `json:"type"`
	To   int64  `json:"to"`
}

// ---------------------------------------------------------------------------
// Server -> Client message structs
// ---------------------------------------------------------------------------

// InitialOnlineUsersMsg delivers the full online set to a freshly
// authenticated channel.
type InitialOnlineUsersMsg struct {
	Type        string  `json:"type"`
	OnlineUsers []int64 `json:"onlineUsers"`
}

// UserStatusMsg announces a presence transition to all peers.
type UserStatusMsg struct {
	Type     string `json:"type"`
	UserID   int64  `json:"userId"`
	IsOnline bool   `json:"isOnline"`
}

// NewMessageMsg delivers a private message to its receiver together with the
// receiver's unread count from this particular sender.
type NewMessageMsg struct {
	Type        string `json:"type"`
	From        int64  `json:"from"`
	Content     string `json:"content"`
	Timestamp   string `json:"timestamp"` // RFC 3339
	UnreadCount int    `json:"unreadCount"`
}

// MessageReadMsg tells a sender that From has read their messages.
type MessageReadMsg struct {
	Type string `json:"type"`
	From int64  `json:"from"`
}

// NotificationPayload is the public projection of a persisted notification.
type NotificationPayload struct {
	ID         int64  `json:"id"`
	UserID     int64  `json:"userId"`
	FromUserID int64  `json:"fromUserId"`
	Kind       string `json:"type"`
	Content    string `json:"content"`
	IsRead     bool   `json:"isRead"`
	CreatedAt  string `json:"createdAt"` // RFC 3339
}

// NewNotificationMsg pushes a freshly persisted notification plus the
// target's updated unread-notification count.
type NewNotificationMsg struct {
	Type         string              `json:"type"`
	Notification NotificationPayload `json:"notification"`
	UnreadCount  int                 `json:"unreadCount"`
}

// RequestSentMsg acknowledges a connection request to its sender.
type RequestSentMsg struct {
	Type     string `json:"type"`
	ToUserID int64  `json:"toUserId"`
}

// RequestReceivedMsg hints the addressee that a connection request arrived.
type RequestReceivedMsg struct {
	Type       string `json:"type"`
	FromUserID int64  `json:"fromUserId"`
}

// ResponseConfirmedMsg confirms a connection response to the responder.
type ResponseConfirmedMsg struct {
	Type     string `json:"type"`
	ToUserID int64  `json:"toUserId"`
	Response string `json:"response"`
}

// ConnectionEstablishedMsg tells both parties an accepted connection is live.
type ConnectionEstablishedMsg struct {
	Type       string `json:"type"`
	WithUserID int64  `json:"withUserId"`
}

// ErrorMsg is sent by the server to communicate an error condition.
type ErrorMsg struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// ServerTypingMsg relays a typing indicator to its target, carrying the
// original kind ("typing" or "stop_typing") unchanged.
type ServerTypingMsg struct {
	Type string `json:"type"`
	From int64  `json:"from"`
}

// ---------------------------------------------------------------------------
// Helper functions
// ---------------------------------------------------------------------------

// ParseClientMessage parses raw WebSocket bytes into a typed client message.
// It returns the message type string, the decoded struct, and any error
// encountered during parsing. An error is returned for unknown or
// server-only message types.
func ParseClientMessage(data []byte) (string, interface{}, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return "", nil, fmt.Errorf("protocol: failed to parse message: %w", err)
	}

	var (
		msg interface{}
		err error
	)

	switch env.Type {
	case TypeAuth:
		var m AuthMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeMessage:
		var m ChatMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeMarkRead:
		var m MarkReadMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeConnectionRequest:
		var m ConnectionRequestMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeConnectionResponse:
		var m ConnectionResponseMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeTyping, TypeStopTyping:
		var m TypingMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	default:
		return env.Type, nil, fmt.Errorf("protocol: unknown client message type: %q", env.Type)
	}

	if err != nil {
		return env.Type, nil, fmt.Errorf("protocol: failed to decode %q payload: %w", env.Type, err)
	}
	return env.Type, msg, nil
}

// NewServerMessage creates a JSON-encoded byte slice for a server message.
// The msgType is injected into the payload under the "type" key. The payload
// should be one of the server message structs; this function marshals it to
// JSON, injects the type field, and returns the final bytes.
func NewServerMessage(msgType string, payload interface{}) ([]byte, error) {
	// Marshal the payload struct to a generic map so we can ensure the "type"
	// field is present and correct.
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("protocol: failed to marshal payload: %w", err)
	}

	var m map[string]interface{}
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("protocol: failed to unmarshal payload into map: %w", err)
	}

	m["type"] = msgType

	out, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("protocol: failed to marshal server message: %w", err)
	}
	return out, nil
}
