package chat

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/ayushgarg2005/Chat-Application/internal/protocol"
	"github.com/ayushgarg2005/Chat-Application/internal/store"
)

// fakeStore keeps messages in memory and models the connection gate with an
// explicit accepted-pairs set.
type fakeStore struct {
	messages  []*store.Message
	accepted  map[[2]int64]bool // unordered pairs stored both ways
	nextID    int64
	createErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{accepted: make(map[[2]int64]bool)}
}

func (f *fakeStore) connect(a, b int64) {
	f.accepted[[2]int64{a, b}] = true
	f.accepted[[2]int64{b, a}] = true
}

func (f *fakeStore) CreateMessage(ctx context.Context, senderID int64, receiverID *int64, content string) (*store.Message, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.nextID++
	m := &store.Message{
		ID:         f.nextID,
		SenderID:   senderID,
		ReceiverID: receiverID,
		Content:    content,
		CreatedAt:  time.Now(),
	}
	f.messages = append(f.messages, m)
	return m, nil
}

func (f *fakeStore) UnreadCountFromSender(ctx context.Context, receiverID, senderID int64) (int, error) {
	count := 0
	for _, m := range f.messages {
		if m.ReceiverID != nil && *m.ReceiverID == receiverID && m.SenderID == senderID && !m.Read {
			count++
		}
	}
	return count, nil
}

func (f *fakeStore) MarkMessagesRead(ctx context.Context, receiverID, senderID int64) (int64, error) {
	var n int64
	for _, m := range f.messages {
		if m.ReceiverID != nil && *m.ReceiverID == receiverID && m.SenderID == senderID && !m.Read {
			m.Read = true
			n++
		}
	}
	return n, nil
}

func (f *fakeStore) IsAuthorized(ctx context.Context, a, b int64) (bool, error) {
	return f.accepted[[2]int64{a, b}], nil
}

func (f *fakeStore) GetUser(ctx context.Context, id int64) (*store.UserSummary, error) {
	return &store.UserSummary{ID: id, Username: "alice"}, nil
}

// fakePusher captures pushes and broadcasts as decoded frames.
type fakePusher struct {
	pushed     map[int64][]map[string]interface{}
	broadcasts []broadcastCall
}

type broadcastCall struct {
	except int64
	frame  map[string]interface{}
}

func newFakePusher() *fakePusher {
	return &fakePusher{pushed: make(map[int64][]map[string]interface{})}
}

func (f *fakePusher) Push(userID int64, data []byte) error {
	var m map[string]interface{}
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	f.pushed[userID] = append(f.pushed[userID], m)
	return nil
}

func (f *fakePusher) BroadcastExcept(exceptUserID int64, data []byte) {
	var m map[string]interface{}
	if err := json.Unmarshal(data, &m); err != nil {
		return
	}
	f.broadcasts = append(f.broadcasts, broadcastCall{except: exceptUserID, frame: m})
}

type nopEvents struct{}

func (nopEvents) PublishEvent(subject string, payload interface{}) {}

func newTestPipeline() (*Pipeline, *fakeStore, *fakePusher) {
	fs := newFakeStore()
	pusher := newFakePusher()
	return NewPipeline(fs, pusher, nopEvents{}), fs, pusher
}

func receiver(id int64) *int64 { return &id }

func TestSend_PrivateDeliversWithUnreadCount(t *testing.T) {
	p, fs, pusher := newTestPipeline()
	fs.connect(1, 2)

	if err := p.Send(context.Background(), 1, receiver(2), "first"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := p.Send(context.Background(), 1, receiver(2), "second"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(fs.messages) != 2 {
		t.Fatalf("expected 2 persisted messages, got %d", len(fs.messages))
	}

	frames := pusher.pushed[2]
	if len(frames) != 2 {
		t.Fatalf("expected 2 newMessage frames, got %d", len(frames))
	}
	last := frames[1]
	if last["type"] != protocol.TypeNewMessage {
		t.Errorf("expected %q frame, got %v", protocol.TypeNewMessage, last["type"])
	}
	if last["from"] != float64(1) {
		t.Errorf("expected from=1, got %v", last["from"])
	}
	if last["content"] != "second" {
		t.Errorf("expected content %q, got %v", "second", last["content"])
	}
	if last["unreadCount"] != float64(2) {
		t.Errorf("expected unreadCount 2, got %v", last["unreadCount"])
	}
}

func TestSend_PrivateWithoutConnectionRejected(t *testing.T) {
	p, fs, pusher := newTestPipeline()

	err := p.Send(context.Background(), 1, receiver(2), "hi")
	if !errors.Is(err, ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected, got %v", err)
	}
	if len(fs.messages) != 0 {
		t.Error("rejected message must not be persisted")
	}
	if len(pusher.pushed) != 0 {
		t.Error("rejected message must not be delivered")
	}
}

func TestSend_BroadcastSkipsConnectionGate(t *testing.T) {
	p, fs, pusher := newTestPipeline()

	if err := p.Send(context.Background(), 1, nil, "hello all"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(fs.messages) != 1 {
		t.Fatalf("expected 1 persisted message, got %d", len(fs.messages))
	}
	if fs.messages[0].ReceiverID != nil {
		t.Error("broadcast message should have nil receiver")
	}

	if len(pusher.broadcasts) != 1 {
		t.Fatalf("expected 1 broadcast, got %d", len(pusher.broadcasts))
	}
	bc := pusher.broadcasts[0]
	if bc.except != 1 {
		t.Errorf("broadcast should exclude the sender, got except=%d", bc.except)
	}
	if bc.frame["type"] != protocol.TypeMessage {
		t.Errorf("expected %q frame, got %v", protocol.TypeMessage, bc.frame["type"])
	}
	sender, ok := bc.frame["sender"].(map[string]interface{})
	if !ok || sender["username"] != "alice" {
		t.Errorf("broadcast frame should carry the sender summary, got %v", bc.frame["sender"])
	}
}

func TestSend_InvalidContentRejected(t *testing.T) {
	p, fs, _ := newTestPipeline()
	fs.connect(1, 2)

	if err := p.Send(context.Background(), 1, receiver(2), ""); err == nil {
		t.Fatal("empty content should be rejected")
	}
	if len(fs.messages) != 0 {
		t.Error("invalid message must not be persisted")
	}
}

func TestSend_StorageFailureAbortsBeforePush(t *testing.T) {
	p, fs, pusher := newTestPipeline()
	fs.connect(1, 2)
	fs.createErr = errors.New("db down")

	err := p.Send(context.Background(), 1, receiver(2), "hi")
	if !errors.Is(err, ErrDeliveryFailed) {
		t.Fatalf("expected ErrDeliveryFailed, got %v", err)
	}
	if len(pusher.pushed) != 0 || len(pusher.broadcasts) != 0 {
		t.Error("nothing may be pushed when persistence failed")
	}
}

func TestMarkRead_FlipsAndNotifiesSender(t *testing.T) {
	p, fs, pusher := newTestPipeline()
	fs.connect(1, 2)

	_ = p.Send(context.Background(), 1, receiver(2), "one")
	_ = p.Send(context.Background(), 1, receiver(2), "two")

	// User 2 reads their conversation with user 1.
	if err := p.MarkRead(context.Background(), 2, 1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for _, m := range fs.messages {
		if !m.Read {
			t.Fatalf("message %d should be read", m.ID)
		}
	}

	frames := pusher.pushed[1]
	var readFrames int
	for _, fr := range frames {
		if fr["type"] == protocol.TypeMessageRead {
			readFrames++
			if fr["from"] != float64(2) {
				t.Errorf("messageRead should name the reader, got from=%v", fr["from"])
			}
		}
	}
	if readFrames != 1 {
		t.Fatalf("expected exactly one messageRead frame, got %d", readFrames)
	}
}

func TestMarkRead_NothingUnreadIsSilent(t *testing.T) {
	p, _, pusher := newTestPipeline()

	if err := p.MarkRead(context.Background(), 2, 1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(pusher.pushed[1]) != 0 {
		t.Error("no messageRead frame when nothing was unread")
	}

	// Same after a conversation has already been marked read.
	fs := newFakeStore()
	fs.connect(1, 2)
	pusher2 := newFakePusher()
	p2 := NewPipeline(fs, pusher2, nopEvents{})
	_ = p2.Send(context.Background(), 1, receiver(2), "one")
	_ = p2.MarkRead(context.Background(), 2, 1)
	before := len(pusher2.pushed[1])
	_ = p2.MarkRead(context.Background(), 2, 1)
	if len(pusher2.pushed[1]) != before {
		t.Error("repeated markRead must not push another frame")
	}
}

func TestTyping_RelaysKindUnchanged(t *testing.T) {
	p, _, pusher := newTestPipeline()

	p.Typing(protocol.TypeTyping, 1, 2)
	p.Typing(protocol.TypeStopTyping, 1, 2)

	frames := pusher.pushed[2]
	if len(frames) != 2 {
		t.Fatalf("expected 2 relayed frames, got %d", len(frames))
	}
	if frames[0]["type"] != protocol.TypeTyping || frames[1]["type"] != protocol.TypeStopTyping {
		t.Errorf("kinds should pass through unchanged, got %v and %v", frames[0]["type"], frames[1]["type"])
	}
	if frames[0]["from"] != float64(1) {
		t.Errorf("expected from=1, got %v", frames[0]["from"])
	}
}
