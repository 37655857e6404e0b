package broker

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/observer/broker/internal/domain"
	"github.com/observer/broker/internal/pubsub"
	"github.com/observer/broker/internal/ratelimit"
)

// fakeRoomStore is an in-memory RoomStore double, just enough of one for
// Hub's persistence calls to have somewhere to land.
type fakeRoomStore struct {
	mu    sync.Mutex
	rooms map[string]*domain.Room
}

func newFakeRoomStore(rooms ...*domain.Room) *fakeRoomStore {
	s := &fakeRoomStore{rooms: make(map[string]*domain.Room)}
	for _, r := range rooms {
		s.rooms[r.RoomID] = r
	}
	return s
}

func (s *fakeRoomStore) GetRoom(ctx context.Context, roomID string) (*domain.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rooms[roomID]
	if !ok {
		return nil, errors.New("room not found")
	}
	return r, nil
}

func (s *fakeRoomStore) AppendChat(ctx context.Context, roomID string, msg domain.ChatMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rooms[roomID]
	if !ok {
		return errors.New("room not found")
	}
	r.ChatMessages = append(r.ChatMessages, msg)
	return nil
}

func (s *fakeRoomStore) AddReaction(ctx context.Context, roomID, messageID, emoji string, userID uuid.UUID) error {
	return nil
}

func (s *fakeRoomStore) UpdateWaitingRoom(ctx context.Context, roomID string, userIDs []uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.rooms[roomID]; ok {
		r.WaitingRoom = userIDs
	}
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestHub(store RoomStore) *Hub {
	return NewHub(store, ratelimit.NewChatLimiter(), NewPersistQueue(context.Background(), 16, testLogger()), pubsub.NewMemoryPubSub(), testLogger())
}

// newTestConnection builds a Connection with no underlying socket. Tests in
// this file never call ReadPump/WritePump, only Dispatch/Register/
// HandleDisconnect and direct inspection of the outbound buffer, none of
// which touch the socket.
func newTestConnection(authenticated bool, userID *uuid.UUID, username string) *Connection {
	return NewConnection(uuid.NewString(), nil, nil, testLogger(), authenticated, userID, username)
}

// drainSends collects every envelope currently buffered on c's outbound
// channel without blocking.
func drainSends(t *testing.T, c *Connection) []Envelope {
	t.Helper()
	var out []Envelope
	for {
		select {
		case data := <-c.send:
			var env Envelope
			require.NoError(t, json.Unmarshal(data, &env))
			out = append(out, env)
		case <-time.After(20 * time.Millisecond):
			return out
		}
	}
}

func dispatchEnvelope(h *Hub, c *Connection, event string, payload interface{}) {
	data, _ := json.Marshal(payload)
	h.Dispatch(c, &Envelope{Event: event, Payload: data})
}

func TestHub_JoinRoomSendsRosterToJoinerAndNotifiesOthers(t *testing.T) {
	h := newTestHub(newFakeRoomStore())
	alice := newTestConnection(false, nil, "alice")
	bob := newTestConnection(false, nil, "bob")
	h.Register(alice)
	h.Register(bob)

	dispatchEnvelope(h, alice, EventJoinRoom, JoinRoomPayload{RoomID: "room-1"})

	aliceMsgs := drainSends(t, alice)
	require.Len(t, aliceMsgs, 1)
	assert.Equal(t, EventRoomParticipants, aliceMsgs[0].Event)

	dispatchEnvelope(h, bob, EventJoinRoom, JoinRoomPayload{RoomID: "room-1"})

	aliceMsgs = drainSends(t, alice)
	require.Len(t, aliceMsgs, 1)
	assert.Equal(t, EventUserJoined, aliceMsgs[0].Event)
}

func TestHub_JoinRoomRejectsInvalidRoomID(t *testing.T) {
	h := newTestHub(newFakeRoomStore())
	c := newTestConnection(false, nil, "alice")
	h.Register(c)

	dispatchEnvelope(h, c, EventJoinRoom, JoinRoomPayload{RoomID: ""})

	msgs := drainSends(t, c)
	require.Len(t, msgs, 1)
	assert.Equal(t, EventErrorMessage, msgs[0].Event)
}

func TestHub_LeaveRoomIsIdempotent(t *testing.T) {
	h := newTestHub(newFakeRoomStore())
	alice := newTestConnection(false, nil, "alice")
	h.Register(alice)
	dispatchEnvelope(h, alice, EventJoinRoom, JoinRoomPayload{RoomID: "room-1"})
	drainSends(t, alice)

	dispatchEnvelope(h, alice, EventLeaveRoom, struct{}{})
	dispatchEnvelope(h, alice, EventLeaveRoom, struct{}{})

	assert.Equal(t, 0, h.ActiveRoomCount())
}

func TestHub_DisconnectFiresUserLeftExactlyOnce(t *testing.T) {
	h := newTestHub(newFakeRoomStore())
	alice := newTestConnection(false, nil, "alice")
	bob := newTestConnection(false, nil, "bob")
	h.Register(alice)
	h.Register(bob)
	dispatchEnvelope(h, alice, EventJoinRoom, JoinRoomPayload{RoomID: "room-1"})
	drainSends(t, alice)
	dispatchEnvelope(h, bob, EventJoinRoom, JoinRoomPayload{RoomID: "room-1"})
	drainSends(t, alice)
	drainSends(t, bob)

	h.HandleDisconnect(bob)
	msgs := drainSends(t, alice)
	require.Len(t, msgs, 1)
	assert.Equal(t, EventUserLeft, msgs[0].Event)

	// Calling disconnect again for the same (already-removed) connection
	// must not re-fire user-left.
	h.HandleDisconnect(bob)
	msgs = drainSends(t, alice)
	assert.Empty(t, msgs)
}

func TestHub_ChatMessageRateLimitedAfterWindow(t *testing.T) {
	h := newTestHub(newFakeRoomStore(&domain.Room{RoomID: "room-1"}))
	c := newTestConnection(false, nil, "alice")
	h.Register(c)
	dispatchEnvelope(h, c, EventJoinRoom, JoinRoomPayload{RoomID: "room-1"})
	drainSends(t, c)

	for i := 0; i < 10; i++ {
		dispatchEnvelope(h, c, EventChatMessage, ChatMessagePayload{RoomID: "room-1", Message: "hi"})
	}
	msgs := drainSends(t, c)
	for _, m := range msgs {
		assert.NotEqual(t, EventErrorMessage, m.Event)
	}

	dispatchEnvelope(h, c, EventChatMessage, ChatMessagePayload{RoomID: "room-1", Message: "one too many"})
	msgs = drainSends(t, c)
	require.Len(t, msgs, 1)
	assert.Equal(t, EventErrorMessage, msgs[0].Event)
}

func TestHub_ApproveUserRequiresRoomCreator(t *testing.T) {
	creatorID := uuid.New()
	targetID := uuid.New()
	store := newFakeRoomStore(&domain.Room{RoomID: "room-1", CreatorUserID: creatorID, WaitingRoom: []uuid.UUID{targetID}})
	h := newTestHub(store)

	notCreator := newTestConnection(true, &uuid.UUID{}, "eve")
	dispatchEnvelope(h, notCreator, EventApproveUser, ApproveRejectUserPayload{RoomID: "room-1", UserID: targetID.String()})
	msgs := drainSends(t, notCreator)
	require.Len(t, msgs, 1)
	assert.Equal(t, EventErrorMessage, msgs[0].Event)

	creator := newTestConnection(true, &creatorID, "host")
	dispatchEnvelope(h, creator, EventApproveUser, ApproveRejectUserPayload{RoomID: "room-1", UserID: targetID.String()})
	msgs = drainSends(t, creator)
	require.Len(t, msgs, 1)
	assert.Equal(t, EventWaitingRoomUpdated, msgs[0].Event)
}

func TestHub_BroadcastAtMostOnePublisher(t *testing.T) {
	h := newTestHub(newFakeRoomStore())
	pub := newTestConnection(false, nil, "publisher")
	intruder := newTestConnection(false, nil, "intruder")
	h.Register(pub)
	h.Register(intruder)

	dispatchEnvelope(h, pub, EventCreateBroadcast, BroadcastIDPayload{BroadcastID: "stream-1"})
	msgs := drainSends(t, pub)
	require.Len(t, msgs, 1)
	assert.Equal(t, EventBroadcastCreated, msgs[0].Event)

	dispatchEnvelope(h, intruder, EventCreateBroadcast, BroadcastIDPayload{BroadcastID: "stream-1"})
	msgs = drainSends(t, intruder)
	require.Len(t, msgs, 1)
	assert.Equal(t, EventErrorMessage, msgs[0].Event)
}

func TestHub_JoinBroadcastNotifiesPublisher(t *testing.T) {
	h := newTestHub(newFakeRoomStore())
	pub := newTestConnection(false, nil, "publisher")
	viewer := newTestConnection(false, nil, "viewer")
	h.Register(pub)
	h.Register(viewer)

	dispatchEnvelope(h, pub, EventCreateBroadcast, BroadcastIDPayload{BroadcastID: "stream-1"})
	drainSends(t, pub)

	dispatchEnvelope(h, viewer, EventJoinBroadcast, BroadcastIDPayload{BroadcastID: "stream-1"})

	viewerMsgs := drainSends(t, viewer)
	require.Len(t, viewerMsgs, 1)
	assert.Equal(t, EventBroadcastJoined, viewerMsgs[0].Event)

	pubMsgs := drainSends(t, pub)
	require.Len(t, pubMsgs, 1)
	assert.Equal(t, EventViewerJoined, pubMsgs[0].Event)
}
