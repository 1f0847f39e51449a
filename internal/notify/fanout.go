// Package notify pushes persisted notifications to their recipient's live
// session. If the recipient is offline the notification simply stays durable
// in the store for later retrieval; nothing is queued.
package notify

import (
	"context"
	"log"
	"time"

	"github.com/ayushgarg2005/Chat-Application/internal/protocol"
	"github.com/ayushgarg2005/Chat-Application/internal/store"
)

// Counter provides the unread-notification count pushed with every
// notification. Implemented by store.Store.
type Counter interface {
	UnreadNotificationCount(ctx context.Context, userID int64) (int, error)
}

// Pusher delivers bytes to a user's live session. Implemented by
// session.Registry.
type Pusher interface {
	Push(userID int64, data []byte) error
}

// Fanout is the thin push helper used by the connection state machine.
type Fanout struct {
	counter Counter
	pusher  Pusher
}

// NewFanout creates a Fanout over the given counter and pusher.
func NewFanout(counter Counter, pusher Pusher) *Fanout {
	return &Fanout{counter: counter, pusher: pusher}
}

// Deliver pushes the already-persisted notification and the target's current
// unread count as a newNotification frame. Every failure here is best-effort:
// the notification is durable either way, so a missing session or a failed
// write is logged and swallowed, never propagated to the caller's request.
func (f *Fanout) Deliver(ctx context.Context, n *store.Notification) {
	unread, err := f.counter.UnreadNotificationCount(ctx, n.UserID)
	if err != nil {
		log.Printf("[notify] unread count for user=%d failed: %v", n.UserID, err)
		return
	}

	data, err := protocol.NewServerMessage(protocol.TypeNewNotification, protocol.NewNotificationMsg{
		Notification: Payload(n),
		UnreadCount:  unread,
	})
	if err != nil {
		log.Printf("[notify] build newNotification for user=%d failed: %v", n.UserID, err)
		return
	}

	_ = f.pusher.Push(n.UserID, data)
}

// Payload converts a stored notification into its wire projection.
func Payload(n *store.Notification) protocol.NotificationPayload {
	return protocol.NotificationPayload{
		ID:         n.ID,
		UserID:     n.UserID,
		FromUserID: n.FromUserID,
		Kind:       n.Type,
		Content:    n.Content,
		IsRead:     n.IsRead,
		CreatedAt:  n.CreatedAt.Format(time.RFC3339),
	}
}
