// Package contacts implements the connection-request state machine that
// gates who may message whom: absent -> pending -> accepted | rejected.
// Both transitions persist a notification for the affected party and fan it
// out to their live session.
package contacts

import (
	"context"
	"fmt"
	"log"
	"strconv"

	"github.com/ayushgarg2005/Chat-Application/internal/messaging"
	"github.com/ayushgarg2005/Chat-Application/internal/notify"
	"github.com/ayushgarg2005/Chat-Application/internal/protocol"
	"github.com/ayushgarg2005/Chat-Application/internal/store"
)

// Store is the slice of the storage gateway the state machine writes
// through. Implemented by store.Store.
type Store interface {
	CreateRequest(ctx context.Context, requesterID, addresseeID int64) error
	UpdateRequestStatus(ctx context.Context, requesterID, addresseeID int64, status string) error
	CreateNotification(ctx context.Context, userID, fromUserID int64, kind, content string) (*store.Notification, error)
	MarkRequestNotificationsRead(ctx context.Context, userID, fromUserID int64) (int64, error)
	GetUser(ctx context.Context, id int64) (*store.UserSummary, error)
}

// Pusher delivers bytes to a user's live session.
type Pusher interface {
	Push(userID int64, data []byte) error
}

// EventPublisher emits best-effort domain events. May be a nil
// *messaging.Client, which publishes nothing.
type EventPublisher interface {
	PublishEvent(subject string, payload interface{})
}

// Machine drives the connection lifecycle.
type Machine struct {
	store  Store
	fanout *notify.Fanout
	pusher Pusher
	events EventPublisher
}

// NewMachine creates a Machine over the given collaborators.
func NewMachine(s Store, fanout *notify.Fanout, pusher Pusher, events EventPublisher) *Machine {
	return &Machine{store: s, fanout: fanout, pusher: pusher, events: events}
}

// requestEvent is the domain-event payload for connection transitions.
type requestEvent struct {
	RequesterID int64  `json:"requesterId"`
	AddresseeID int64  `json:"addresseeId"`
	Decision    string `json:"decision,omitempty"`
}

// Request creates a pending connection row from requester to addressee,
// persists a connection_request notification for the addressee, and pushes
// it (plus a connection-request-received hint) if the addressee is online.
// Returns store.ErrDuplicateRequest when a row for the exact ordered pair
// already exists, regardless of its status; nothing is written in that case.
func (m *Machine) Request(ctx context.Context, requesterID, addresseeID int64) error {
	if err := m.store.CreateRequest(ctx, requesterID, addresseeID); err != nil {
		return err
	}

	content := fmt.Sprintf("%s sent you a connection request.", m.displayName(ctx, requesterID))
	n, err := m.store.CreateNotification(ctx, addresseeID, requesterID, store.NotifConnectionRequest, content)
	if err != nil {
		// The pending row exists; the addressee just misses the push. They
		// still see the request via the notification list once it is
		// retried, so log rather than unwind the transition.
		log.Printf("[contacts] notification for request %d->%d failed: %v", requesterID, addresseeID, err)
	} else {
		m.fanout.Deliver(ctx, n)
	}

	if hint, err := protocol.NewServerMessage(protocol.TypeRequestReceived, protocol.RequestReceivedMsg{
		FromUserID: requesterID,
	}); err == nil {
		_ = m.pusher.Push(addresseeID, hint)
	}

	m.events.PublishEvent(messaging.SubjectConnectionRequested, requestEvent{
		RequesterID: requesterID,
		AddresseeID: addresseeID,
	})
	return nil
}

// Respond records the responder's decision on the pending request that
// originalRequester sent them. The transition is one-way: a second respond
// on the same row yields store.ErrNoPendingRequest and changes nothing.
// On success the original requester gets an outcome notification (their
// original request notification to the responder is marked read), and on
// acceptance both parties receive connection-established.
func (m *Machine) Respond(ctx context.Context, responderID, originalRequesterID int64, decision string) error {
	if err := m.store.UpdateRequestStatus(ctx, originalRequesterID, responderID, decision); err != nil {
		return err
	}

	kind := store.NotifConnectionRejected
	verb := "rejected"
	if decision == store.StatusAccepted {
		kind = store.NotifConnectionAccepted
		verb = "accepted"
	}
	content := fmt.Sprintf("Your connection request was %s by %s.", verb, m.displayName(ctx, responderID))

	n, err := m.store.CreateNotification(ctx, originalRequesterID, responderID, kind, content)
	if err != nil {
		log.Printf("[contacts] outcome notification %d->%d failed: %v", responderID, originalRequesterID, err)
	}

	// The responder has acted on the request; retire its notification.
	if _, err := m.store.MarkRequestNotificationsRead(ctx, responderID, originalRequesterID); err != nil {
		log.Printf("[contacts] mark request read user=%d from=%d failed: %v", responderID, originalRequesterID, err)
	}

	if n != nil {
		m.fanout.Deliver(ctx, n)
	}

	if decision == store.StatusAccepted {
		m.pushEstablished(responderID, originalRequesterID)
		m.pushEstablished(originalRequesterID, responderID)
		m.events.PublishEvent(messaging.SubjectConnectionAccepted, requestEvent{
			RequesterID: originalRequesterID,
			AddresseeID: responderID,
			Decision:    decision,
		})
	} else {
		m.events.PublishEvent(messaging.SubjectConnectionRejected, requestEvent{
			RequesterID: originalRequesterID,
			AddresseeID: responderID,
			Decision:    decision,
		})
	}
	return nil
}

// pushEstablished tells userID that their connection with withUserID is live.
func (m *Machine) pushEstablished(userID, withUserID int64) {
	data, err := protocol.NewServerMessage(protocol.TypeConnectionEstablished, protocol.ConnectionEstablishedMsg{
		WithUserID: withUserID,
	})
	if err != nil {
		return
	}
	_ = m.pusher.Push(userID, data)
}

// displayName resolves a username for notification copy, falling back to
// the numeric id when the user row is unavailable.
func (m *Machine) displayName(ctx context.Context, userID int64) string {
	u, err := m.store.GetUser(ctx, userID)
	if err != nil || u.Username == "" {
		return strconv.FormatInt(userID, 10)
	}
	return u.Username
}
