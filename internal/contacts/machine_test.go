package contacts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/ayushgarg2005/Chat-Application/internal/notify"
	"github.com/ayushgarg2005/Chat-Application/internal/protocol"
	"github.com/ayushgarg2005/Chat-Application/internal/store"
)

// fakeStore records state-machine writes and lets tests force sentinel errors.
type fakeStore struct {
	requests      [][2]int64
	statusUpdates []statusUpdate
	notifications []*store.Notification
	marksRead     [][2]int64 // (userID, fromUserID)

	createRequestErr error
	updateStatusErr  error
	nextNotifID      int64
}

type statusUpdate struct {
	requesterID, addresseeID int64
	status                   string
}

func (f *fakeStore) CreateRequest(ctx context.Context, requesterID, addresseeID int64) error {
	if f.createRequestErr != nil {
		return f.createRequestErr
	}
	f.requests = append(f.requests, [2]int64{requesterID, addresseeID})
	return nil
}

func (f *fakeStore) UpdateRequestStatus(ctx context.Context, requesterID, addresseeID int64, status string) error {
	if f.updateStatusErr != nil {
		return f.updateStatusErr
	}
	f.statusUpdates = append(f.statusUpdates, statusUpdate{requesterID, addresseeID, status})
	return nil
}

func (f *fakeStore) CreateNotification(ctx context.Context, userID, fromUserID int64, kind, content string) (*store.Notification, error) {
	f.nextNotifID++
	n := &store.Notification{
		ID:         f.nextNotifID,
		UserID:     userID,
		FromUserID: fromUserID,
		Type:       kind,
		Content:    content,
		CreatedAt:  time.Now(),
	}
	f.notifications = append(f.notifications, n)
	return n, nil
}

func (f *fakeStore) MarkRequestNotificationsRead(ctx context.Context, userID, fromUserID int64) (int64, error) {
	f.marksRead = append(f.marksRead, [2]int64{userID, fromUserID})
	return 1, nil
}

func (f *fakeStore) GetUser(ctx context.Context, id int64) (*store.UserSummary, error) {
	return &store.UserSummary{ID: id, Username: fmt.Sprintf("user%d", id)}, nil
}

func (f *fakeStore) UnreadNotificationCount(ctx context.Context, userID int64) (int, error) {
	count := 0
	for _, n := range f.notifications {
		if n.UserID == userID && !n.IsRead {
			count++
		}
	}
	return count, nil
}

// fakePusher captures pushed frames, decoded, per user.
type fakePusher struct {
	frames map[int64][]map[string]interface{}
}

func newFakePusher() *fakePusher {
	return &fakePusher{frames: make(map[int64][]map[string]interface{})}
}

func (f *fakePusher) Push(userID int64, data []byte) error {
	var m map[string]interface{}
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	f.frames[userID] = append(f.frames[userID], m)
	return nil
}

// kinds returns the frame kinds pushed to userID, in order.
func (f *fakePusher) kinds(userID int64) []string {
	var out []string
	for _, m := range f.frames[userID] {
		out = append(out, m["type"].(string))
	}
	return out
}

// nopEvents discards domain events.
type nopEvents struct{}

func (nopEvents) PublishEvent(subject string, payload interface{}) {}

func newTestMachine(fs *fakeStore) (*Machine, *fakePusher) {
	pusher := newFakePusher()
	fanout := notify.NewFanout(fs, pusher)
	return NewMachine(fs, fanout, pusher, nopEvents{}), pusher
}

func hasKind(kinds []string, want string) bool {
	for _, k := range kinds {
		if k == want {
			return true
		}
	}
	return false
}

func TestRequest_PersistsAndNotifiesAddressee(t *testing.T) {
	fs := &fakeStore{}
	m, pusher := newTestMachine(fs)

	if err := m.Request(context.Background(), 1, 2); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(fs.requests) != 1 || fs.requests[0] != [2]int64{1, 2} {
		t.Fatalf("expected pending row for (1,2), got %v", fs.requests)
	}
	if len(fs.notifications) != 1 {
		t.Fatalf("expected one notification, got %d", len(fs.notifications))
	}
	n := fs.notifications[0]
	if n.UserID != 2 || n.FromUserID != 1 || n.Type != store.NotifConnectionRequest {
		t.Errorf("wrong notification: user=%d from=%d type=%q", n.UserID, n.FromUserID, n.Type)
	}

	kinds := pusher.kinds(2)
	if !hasKind(kinds, protocol.TypeNewNotification) {
		t.Errorf("addressee should receive newNotification, got %v", kinds)
	}
	if !hasKind(kinds, protocol.TypeRequestReceived) {
		t.Errorf("addressee should receive connection-request-received, got %v", kinds)
	}
	if len(pusher.kinds(1)) != 0 {
		t.Errorf("requester gets the ack from the handler, not the machine; got %v", pusher.kinds(1))
	}
}

func TestRequest_DuplicatePassthrough(t *testing.T) {
	fs := &fakeStore{createRequestErr: store.ErrDuplicateRequest}
	m, pusher := newTestMachine(fs)

	err := m.Request(context.Background(), 1, 2)
	if !errors.Is(err, store.ErrDuplicateRequest) {
		t.Fatalf("expected ErrDuplicateRequest, got %v", err)
	}
	if len(fs.notifications) != 0 {
		t.Error("duplicate request must not create a notification")
	}
	if len(pusher.frames) != 0 {
		t.Error("duplicate request must not push anything")
	}
}

func TestRespond_AcceptedEstablishesBothSides(t *testing.T) {
	fs := &fakeStore{}
	m, pusher := newTestMachine(fs)

	// User 1 requested user 2; user 2 accepts.
	if err := m.Respond(context.Background(), 2, 1, store.StatusAccepted); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(fs.statusUpdates) != 1 {
		t.Fatalf("expected one status update, got %d", len(fs.statusUpdates))
	}
	up := fs.statusUpdates[0]
	if up.requesterID != 1 || up.addresseeID != 2 || up.status != store.StatusAccepted {
		t.Errorf("wrong transition: %+v", up)
	}

	// Requester's original notification to the responder is retired.
	if len(fs.marksRead) != 1 || fs.marksRead[0] != [2]int64{2, 1} {
		t.Errorf("expected request notifications (user=2, from=1) marked read, got %v", fs.marksRead)
	}

	// Requester gets the outcome notification.
	if len(fs.notifications) != 1 {
		t.Fatalf("expected one outcome notification, got %d", len(fs.notifications))
	}
	n := fs.notifications[0]
	if n.UserID != 1 || n.FromUserID != 2 || n.Type != store.NotifConnectionAccepted {
		t.Errorf("wrong outcome notification: user=%d from=%d type=%q", n.UserID, n.FromUserID, n.Type)
	}

	// Both parties see connection-established.
	if !hasKind(pusher.kinds(1), protocol.TypeConnectionEstablished) {
		t.Errorf("requester should receive connection-established, got %v", pusher.kinds(1))
	}
	if !hasKind(pusher.kinds(2), protocol.TypeConnectionEstablished) {
		t.Errorf("responder should receive connection-established, got %v", pusher.kinds(2))
	}
}

func TestRespond_RejectedSkipsEstablished(t *testing.T) {
	fs := &fakeStore{}
	m, pusher := newTestMachine(fs)

	if err := m.Respond(context.Background(), 2, 1, store.StatusRejected); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(fs.notifications) != 1 || fs.notifications[0].Type != store.NotifConnectionRejected {
		t.Fatalf("expected a connection_rejected notification, got %+v", fs.notifications)
	}
	if hasKind(pusher.kinds(1), protocol.TypeConnectionEstablished) ||
		hasKind(pusher.kinds(2), protocol.TypeConnectionEstablished) {
		t.Error("rejected response must not push connection-established")
	}
}

func TestRespond_NoPendingPassthrough(t *testing.T) {
	fs := &fakeStore{updateStatusErr: store.ErrNoPendingRequest}
	m, pusher := newTestMachine(fs)

	err := m.Respond(context.Background(), 2, 1, store.StatusAccepted)
	if !errors.Is(err, store.ErrNoPendingRequest) {
		t.Fatalf("expected ErrNoPendingRequest, got %v", err)
	}
	if len(fs.notifications) != 0 || len(fs.marksRead) != 0 {
		t.Error("failed transition must not write notifications")
	}
	if len(pusher.frames) != 0 {
		t.Error("failed transition must not push anything")
	}
}

func TestRespond_SecondResponseIsRejectedByStore(t *testing.T) {
	fs := &fakeStore{}
	m, _ := newTestMachine(fs)

	if err := m.Respond(context.Background(), 2, 1, store.StatusAccepted); err != nil {
		t.Fatalf("first response: %v", err)
	}

	// The store gate reports no pending row on the second attempt.
	fs.updateStatusErr = store.ErrNoPendingRequest
	err := m.Respond(context.Background(), 2, 1, store.StatusRejected)
	if !errors.Is(err, store.ErrNoPendingRequest) {
		t.Fatalf("second response should fail with ErrNoPendingRequest, got %v", err)
	}
	if len(fs.statusUpdates) != 1 {
		t.Errorf("transition must happen exactly once, got %d", len(fs.statusUpdates))
	}
}
