// Package chat implements the message delivery pipeline: content validation,
// the connection-gate check for private messages, persistence, and push to
// the receiver's live session with a per-sender unread counter.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/ayushgarg2005/Chat-Application/internal/messaging"
	"github.com/ayushgarg2005/Chat-Application/internal/metrics"
	"github.com/ayushgarg2005/Chat-Application/internal/protocol"
	"github.com/ayushgarg2005/Chat-Application/internal/store"
)

var (
	// ErrNotConnected is returned when a private message is attempted between
	// users without an accepted connection. The message is not persisted.
	ErrNotConnected = errors.New("chat: users are not connected")

	// ErrDeliveryFailed wraps storage failures on the send path. The caller
	// replies with a generic error; storage details never reach the client.
	ErrDeliveryFailed = errors.New("chat: message delivery failed")
)

// Store is the slice of the storage gateway the pipeline reads and writes.
// Implemented by store.Store.
type Store interface {
	CreateMessage(ctx context.Context, senderID int64, receiverID *int64, content string) (*store.Message, error)
	UnreadCountFromSender(ctx context.Context, receiverID, senderID int64) (int, error)
	MarkMessagesRead(ctx context.Context, receiverID, senderID int64) (int64, error)
	IsAuthorized(ctx context.Context, a, b int64) (bool, error)
	GetUser(ctx context.Context, id int64) (*store.UserSummary, error)
}

// Pusher delivers frames to live sessions. Implemented by session.Registry.
type Pusher interface {
	Push(userID int64, data []byte) error
	BroadcastExcept(exceptUserID int64, data []byte)
}

// EventPublisher emits best-effort domain events.
type EventPublisher interface {
	PublishEvent(subject string, payload interface{})
}

// Pipeline moves a message from an inbound frame to the receiver's session.
type Pipeline struct {
	store  Store
	pusher Pusher
	events EventPublisher
}

// NewPipeline creates a Pipeline over the given collaborators.
func NewPipeline(s Store, pusher Pusher, events EventPublisher) *Pipeline {
	return &Pipeline{store: s, pusher: pusher, events: events}
}

// messageEvent is the domain-event payload for persisted messages.
type messageEvent struct {
	MessageID  int64  `json:"messageId"`
	SenderID   int64  `json:"senderId"`
	ReceiverID *int64 `json:"receiverId,omitempty"`
	CreatedAt  string `json:"createdAt"`
}

// Send validates, gates, persists, and delivers one message. A nil receiverID
// is a public broadcast to every other online user; a non-nil receiverID is a
// private message allowed only across an accepted connection, otherwise
// ErrNotConnected. Delivery to the receiver's session is best-effort: the
// message is durable before any push is attempted, and an offline receiver
// picks it up from history with its unread flag intact.
func (p *Pipeline) Send(ctx context.Context, senderID int64, receiverID *int64, content string) error {
	start := time.Now()

	if err := ValidateMessage(content); err != nil {
		metrics.MessagesTotal.WithLabelValues("rejected").Inc()
		return err
	}

	if receiverID != nil {
		ok, err := p.store.IsAuthorized(ctx, senderID, *receiverID)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrDeliveryFailed, err)
		}
		if !ok {
			metrics.MessagesTotal.WithLabelValues("rejected").Inc()
			return ErrNotConnected
		}
	}

	msg, err := p.store.CreateMessage(ctx, senderID, receiverID, content)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDeliveryFailed, err)
	}

	if receiverID != nil {
		p.deliverPrivate(ctx, msg)
		metrics.MessagesTotal.WithLabelValues("private").Inc()
	} else {
		p.deliverBroadcast(ctx, msg)
		metrics.MessagesTotal.WithLabelValues("broadcast").Inc()
	}
	metrics.DeliveryLatency.Observe(time.Since(start).Seconds())

	p.events.PublishEvent(messaging.SubjectMessageCreated, messageEvent{
		MessageID:  msg.ID,
		SenderID:   msg.SenderID,
		ReceiverID: msg.ReceiverID,
		CreatedAt:  msg.CreatedAt.UTC().Format(time.RFC3339),
	})
	return nil
}

// deliverPrivate pushes a newMessage frame to the receiver, carrying the
// receiver's unread count from this sender.
func (p *Pipeline) deliverPrivate(ctx context.Context, msg *store.Message) {
	unread, err := p.store.UnreadCountFromSender(ctx, *msg.ReceiverID, msg.SenderID)
	if err != nil {
		log.Printf("[chat] unread count receiver=%d sender=%d: %v", *msg.ReceiverID, msg.SenderID, err)
		unread = 0
	}

	data, err := protocol.NewServerMessage(protocol.TypeNewMessage, protocol.NewMessageMsg{
		From:        msg.SenderID,
		Content:     msg.Content,
		Timestamp:   msg.CreatedAt.UTC().Format(time.RFC3339),
		UnreadCount: unread,
	})
	if err != nil {
		log.Printf("[chat] build newMessage: %v", err)
		return
	}
	_ = p.pusher.Push(*msg.ReceiverID, data)
}

// deliverBroadcast enriches the stored message with its sender summary and
// fans it out to every online user except the sender.
func (p *Pipeline) deliverBroadcast(ctx context.Context, msg *store.Message) {
	if sender, err := p.store.GetUser(ctx, msg.SenderID); err == nil {
		msg.Sender = sender
	} else {
		log.Printf("[chat] sender summary user=%d: %v", msg.SenderID, err)
	}

	data, err := protocol.NewServerMessage(protocol.TypeMessage, msg)
	if err != nil {
		log.Printf("[chat] build broadcast message: %v", err)
		return
	}
	p.pusher.BroadcastExcept(msg.SenderID, data)
}

// MarkRead marks every unread message from withUserID to actorID as read and,
// when at least one row actually flipped, tells the original sender with a
// messageRead frame so they can render read receipts. Re-invoking with nothing
// unread is a silent no-op: no write, no frame.
func (p *Pipeline) MarkRead(ctx context.Context, actorID, withUserID int64) error {
	n, err := p.store.MarkMessagesRead(ctx, actorID, withUserID)
	if err != nil {
		return err
	}
	if n == 0 {
		return nil
	}

	data, err := protocol.NewServerMessage(protocol.TypeMessageRead, protocol.MessageReadMsg{
		From: actorID,
	})
	if err != nil {
		log.Printf("[chat] build messageRead: %v", err)
		return nil
	}
	_ = p.pusher.Push(withUserID, data)
	return nil
}

// Typing relays a typing indicator from fromID to toID, preserving the
// original kind ("typing" or "stop_typing"). Indicators are ephemeral: they
// are never persisted, and an offline target just means nothing happens.
func (p *Pipeline) Typing(kind string, fromID, toID int64) {
	data, err := protocol.NewServerMessage(kind, protocol.ServerTypingMsg{
		From: fromID,
	})
	if err != nil {
		log.Printf("[chat] build %s: %v", kind, err)
		return
	}
	_ = p.pusher.Push(toID, data)
}
