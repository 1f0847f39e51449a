package store

import "time"

// Connection statuses.
const (
	StatusPending  = "pending"
	StatusAccepted = "accepted"
	StatusRejected = "rejected"
)

// Notification types.
const (
	NotifConnectionRequest  = "connection_request"
	NotifConnectionAccepted = "connection_accepted"
	NotifConnectionRejected = "connection_rejected"
)

// UserSummary is the public projection of a user row used to enrich
// messages and peer listings. The auth subsystem owns the full user record.
type UserSummary struct {
	ID           int64  `json:"id"`
	Username     string `json:"username"`
	Name         string `json:"name,omitempty"`
	ProfilePhoto string `json:"profilePhoto,omitempty"`
}

// Message is a persisted chat message. A nil ReceiverID marks a public
// broadcast. Immutable once created except for the read flag.
type Message struct {
	ID         int64      `json:"id"`
	SenderID   int64      `json:"senderId"`
	ReceiverID *int64     `json:"receiverId"`
	Content    string     `json:"content"`
	Read       bool       `json:"read"`
	ReadAt     *time.Time `json:"readAt,omitempty"`
	CreatedAt  time.Time  `json:"createdAt"`

	// Enriched on read; nil when not joined.
	Sender   *UserSummary `json:"sender,omitempty"`
	Receiver *UserSummary `json:"receiver,omitempty"`
}

// Connection is a directed friend-request relationship between two users.
// At most one row exists per ordered (requester, addressee) pair.
type Connection struct {
	RequesterID int64     `json:"requesterId"`
	AddresseeID int64     `json:"addresseeId"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Notification is a persisted notification record. ResponseStatus is set
// only on connection_request rows once the addressee has acted on them.
type Notification struct {
	ID             int64     `json:"id"`
	UserID         int64     `json:"userId"`
	FromUserID     int64     `json:"fromUserId"`
	Type           string    `json:"type"`
	Content        string    `json:"content"`
	IsRead         bool      `json:"isRead"`
	ResponseStatus *string   `json:"responseStatus,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
}

// ConnectedPeer is an accepted-connection peer together with when the
// connection was formed.
type ConnectedPeer struct {
	User        UserSummary `json:"user"`
	ConnectedAt time.Time   `json:"connectedAt"`
}
