// Package broker implements the signaling broker's core state machine:
// the Room Runtime, Broadcast Registry, Signaling Relay, Chat Relay,
// Envelope Validator and Connection Lifecycle. It is the generalized,
// renamed analogue of the teacher's internal/websocket + internal/webrtc
// packages, collapsed into one cohesive runtime since this broker is a
// single coherent state machine rather than two parallel chat/call
// stacks.
package broker

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/observer/broker/internal/domain"
	"github.com/observer/broker/internal/idgen"
	"github.com/observer/broker/internal/pubsub"
	"github.com/observer/broker/internal/ratelimit"
)

// RoomStore is the Room Store surface the hub needs (spec 4.C).
type RoomStore interface {
	GetRoom(ctx context.Context, roomID string) (*domain.Room, error)
	AppendChat(ctx context.Context, roomID string, msg domain.ChatMessage) error
	AddReaction(ctx context.Context, roomID, messageID, emoji string, userID uuid.UUID) error
	UpdateWaitingRoom(ctx context.Context, roomID string, userIDs []uuid.UUID) error
}

// Hub ties the broker's components together: the connection registry
// (for Signaling Relay and multi-connection-per-user fan-out), the Room
// Runtime, the Broadcast Registry, the Chat Relay's rate limiter and
// persistence queue. It also mirrors room- and user-scoped events onto
// the pubsub layer so that a horizontally-scaled deployment's other
// broker instances can fan them out to the connections they hold
// locally, the way the teacher's websocket.Hub uses its pubsub.PubSub to
// bridge multiple server processes.
type Hub struct {
	mu          sync.RWMutex
	connections map[string]*Connection // by connectionId
	byUser      map[uuid.UUID]map[string]*Connection

	rooms      *RoomRuntime
	broadcasts *BroadcastRegistry
	rateLimit  *ratelimit.ChatLimiter
	persist    *PersistQueue
	roomStore  RoomStore
	logger     *slog.Logger

	nodeID string
	ps     pubsub.PubSub

	subsMu    sync.Mutex
	roomSubs  map[string]pubsub.Subscription
	userSubs  map[uuid.UUID]pubsub.Subscription
}

func NewHub(roomStore RoomStore, rateLimit *ratelimit.ChatLimiter, persist *PersistQueue, ps pubsub.PubSub, logger *slog.Logger) *Hub {
	return &Hub{
		connections: make(map[string]*Connection),
		byUser:      make(map[uuid.UUID]map[string]*Connection),
		rooms:       NewRoomRuntime(),
		broadcasts:  NewBroadcastRegistry(),
		rateLimit:   rateLimit,
		persist:     persist,
		roomStore:   roomStore,
		logger:      logger,
		nodeID:      uuid.NewString(),
		ps:          ps,
		roomSubs:    make(map[string]pubsub.Subscription),
		userSubs:    make(map[uuid.UUID]pubsub.Subscription),
	}
}

// remoteEvent is the envelope mirrored over pubsub between broker
// instances. NodeID lets a subscriber ignore its own publications, since
// this node already delivered the event to its local connections
// directly.
type remoteEvent struct {
	NodeID  string          `json:"nodeId"`
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

func (h *Hub) publishRemote(topic, event string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		h.logger.Error("marshal remote event failed", "event", event, "error", err)
		return
	}
	body, err := json.Marshal(remoteEvent{NodeID: h.nodeID, Event: event, Payload: data})
	if err != nil {
		return
	}
	if err := h.ps.Publish(context.Background(), topic, &pubsub.Message{Topic: topic, Type: event, Payload: body}); err != nil {
		h.logger.Warn("pubsub publish failed", "topic", topic, "event", event, "error", err)
	}
}

// publishRoomEvent mirrors a room-scoped broadcast (join/leave, presence
// toggles, chat) to other broker instances via pubsub.Topics.Room.
func (h *Hub) publishRoomEvent(roomID, event string, payload interface{}) {
	h.publishRemote(pubsub.Topics.Room(roomID), event, payload)
}

// publishUserEvent mirrors a user-targeted event (waiting-room
// approve/reject) to other broker instances via pubsub.Topics.User, since
// the target user's other connections may be held by a different
// instance than the acting host's.
func (h *Hub) publishUserEvent(userID uuid.UUID, event string, payload interface{}) {
	h.publishRemote(pubsub.Topics.User(userID.String()), event, payload)
}

// subscribeRoom starts mirroring remote room events into this instance's
// local roster. Called exactly once, the moment a room's roster goes
// from empty to non-empty locally (RoomRuntime.Join serializes concurrent
// first-joins under the room's own lock, so only one caller ever observes
// the 0->1 transition).
func (h *Hub) subscribeRoom(roomID string) {
	topic := pubsub.Topics.Room(roomID)
	sub, err := h.ps.Subscribe(context.Background(), topic, func(ctx context.Context, msg *pubsub.Message) {
		h.handleRemoteRoomEvent(roomID, msg)
	})
	if err != nil {
		h.logger.Error("pubsub room subscribe failed", "room_id", roomID, "error", err)
		return
	}
	h.subsMu.Lock()
	h.roomSubs[roomID] = sub
	h.subsMu.Unlock()
}

// unsubscribeRoom stops mirroring once a room's local roster empties out,
// mirroring RoomRuntime's own "drop the entry when empty" rule.
func (h *Hub) unsubscribeRoom(roomID string) {
	h.subsMu.Lock()
	sub, ok := h.roomSubs[roomID]
	delete(h.roomSubs, roomID)
	h.subsMu.Unlock()
	if ok {
		_ = sub.Unsubscribe()
	}
}

func (h *Hub) handleRemoteRoomEvent(roomID string, msg *pubsub.Message) {
	var evt remoteEvent
	if err := json.Unmarshal(msg.Payload, &evt); err != nil || evt.NodeID == h.nodeID {
		return
	}
	for _, p := range h.rooms.Participants(roomID) {
		if conn, ok := h.findConnection(p.ConnectionID); ok {
			conn.SendRaw(evt.Event, evt.Payload)
		}
	}
}

// subscribeUser/unsubscribeUser mirror the same 0->1/1->0 lifecycle as
// subscribeRoom, but keyed by userId: a user's waiting-room notification
// must reach every connection of theirs regardless of which broker
// instance holds it.
func (h *Hub) subscribeUser(userID uuid.UUID) {
	topic := pubsub.Topics.User(userID.String())
	sub, err := h.ps.Subscribe(context.Background(), topic, func(ctx context.Context, msg *pubsub.Message) {
		h.handleRemoteUserEvent(userID, msg)
	})
	if err != nil {
		h.logger.Error("pubsub user subscribe failed", "user_id", userID, "error", err)
		return
	}
	h.subsMu.Lock()
	h.userSubs[userID] = sub
	h.subsMu.Unlock()
}

func (h *Hub) unsubscribeUser(userID uuid.UUID) {
	h.subsMu.Lock()
	sub, ok := h.userSubs[userID]
	delete(h.userSubs, userID)
	h.subsMu.Unlock()
	if ok {
		_ = sub.Unsubscribe()
	}
}

func (h *Hub) handleRemoteUserEvent(userID uuid.UUID, msg *pubsub.Message) {
	var evt remoteEvent
	if err := json.Unmarshal(msg.Payload, &evt); err != nil || evt.NodeID == h.nodeID {
		return
	}
	for _, conn := range h.connectionsForUser(userID) {
		conn.SendRaw(evt.Event, evt.Payload)
	}
}

// Register adds a freshly handshaken connection to the registry (spec
// 4.K: Connection Lifecycle).
func (h *Hub) Register(c *Connection) {
	h.mu.Lock()
	h.connections[c.ID] = c
	firstForUser := false
	if uid := c.UserID(); uid != nil {
		if h.byUser[*uid] == nil {
			h.byUser[*uid] = make(map[string]*Connection)
			firstForUser = true
		}
		h.byUser[*uid][c.ID] = c
	}
	h.mu.Unlock()

	if firstForUser {
		h.subscribeUser(*c.UserID())
	}

	h.logger.Info("connection established", "connection_id", c.ID, "authenticated", c.IsAuthenticated(), "username", c.Username())
}

// HandleDisconnect implements the idempotent cleanup half of spec 4.K:
// remove from the Room Runtime (firing user-left exactly once), remove
// any owned broadcast entries, evict rate-limit state, deregister.
func (h *Hub) HandleDisconnect(c *Connection) {
	h.mu.Lock()
	if _, already := h.connections[c.ID]; !already {
		h.mu.Unlock()
		return
	}
	delete(h.connections, c.ID)
	lastForUser := false
	if uid := c.UserID(); uid != nil {
		if set := h.byUser[*uid]; set != nil {
			delete(set, c.ID)
			if len(set) == 0 {
				delete(h.byUser, *uid)
				lastForUser = true
			}
		}
	}
	h.mu.Unlock()

	if lastForUser {
		h.unsubscribeUser(*c.UserID())
	}

	if roomID := c.CurrentRoom(); roomID != "" {
		h.leaveRoom(c, roomID)
	}
	h.broadcasts.RemoveByConnection(c.ID)
	h.rateLimit.Forget(c.ID)

	h.logger.Info("connection closed", "connection_id", c.ID)
}

func (h *Hub) findConnection(connectionID string) (*Connection, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	c, ok := h.connections[connectionID]
	return c, ok
}

func (h *Hub) connectionsForUser(userID uuid.UUID) []*Connection {
	h.mu.RLock()
	defer h.mu.RUnlock()
	set := h.byUser[userID]
	out := make([]*Connection, 0, len(set))
	for _, c := range set {
		out = append(out, c)
	}
	return out
}

// ActiveRoomCount backs the /health endpoint.
func (h *Hub) ActiveRoomCount() int {
	return h.rooms.RoomCount()
}

// Dispatch routes one inbound envelope to the appropriate component, the
// generalized analogue of the teacher's Hub.HandleMessage switch.
func (h *Hub) Dispatch(c *Connection, env *Envelope) {
	ctx := context.Background()

	switch env.Event {
	case EventJoinRoom:
		h.handleJoinRoom(c, env)
	case EventLeaveRoom:
		if roomID := c.CurrentRoom(); roomID != "" {
			h.leaveRoom(c, roomID)
		}
	case EventOffer, EventAnswer, EventICECandidate:
		h.handleSignaling(c, env)
	case EventChatMessage:
		h.handleChatMessage(ctx, c, env)
	case EventChatReaction:
		h.handleChatReaction(ctx, c, env)
	case EventToggleMute:
		h.handleToggleMute(c, env)
	case EventToggleVideo:
		h.handleToggleVideo(c, env)
	case EventScreenShareStart:
		h.handleScreenShareStart(c, env)
	case EventScreenShareStop:
		h.handleScreenShareStop(c, env)
	case EventHandRaise:
		h.handleHandRaise(c, env)
	case EventApproveUser:
		h.handleApproveRejectUser(ctx, c, env, true)
	case EventRejectUser:
		h.handleApproveRejectUser(ctx, c, env, false)
	case EventCreateBroadcast:
		h.handleCreateBroadcast(c, env)
	case EventJoinBroadcast:
		h.handleJoinBroadcast(c, env)
	default:
		// Unknown event types are dropped silently; the Envelope
		// Validator only bounds size and well-formedness, not event
		// vocabulary.
	}
}

func decode(env *Envelope, v interface{}) bool {
	if len(env.Payload) == 0 {
		return false
	}
	return json.Unmarshal(env.Payload, v) == nil
}

func userIDString(uid *uuid.UUID) *string {
	if uid == nil {
		return nil
	}
	s := uid.String()
	return &s
}

func toParticipantPayload(p domain.ParticipantInfo) RoomParticipantPayload {
	return RoomParticipantPayload{
		ConnectionID:  p.ConnectionID,
		UserID:        userIDString(p.UserID),
		Username:      p.Username,
		Muted:         p.Muted,
		VideoOff:      p.VideoOff,
		HandRaised:    p.HandRaised,
		ScreenSharing: p.ScreenSharing,
	}
}

// --- Room Runtime (4.H) ---

func (h *Hub) handleJoinRoom(c *Connection, env *Envelope) {
	var payload JoinRoomPayload
	if !decode(env, &payload) || !ValidRoomID(payload.RoomID) {
		c.SendError(ErrRoomIDRequired.Message)
		return
	}

	if prev := c.CurrentRoom(); prev != "" {
		h.leaveRoom(c, prev)
	}

	info := &domain.ParticipantInfo{
		ConnectionID: c.ID,
		UserID:       c.UserID(),
		Username:     c.Username(),
	}

	roster := h.rooms.Join(payload.RoomID, info)
	c.SetCurrentRoom(payload.RoomID)

	if len(roster) == 1 {
		h.subscribeRoom(payload.RoomID)
	}

	others := make([]domain.ParticipantInfo, 0, len(roster))
	joinerPayload := make([]RoomParticipantPayload, 0, len(roster))
	for _, p := range roster {
		joinerPayload = append(joinerPayload, toParticipantPayload(p))
		if p.ConnectionID != c.ID {
			others = append(others, p)
		}
	}

	joinedPayload := UserJoinedPayload{
		ConnectionID: c.ID,
		UserID:       userIDString(c.UserID()),
		Username:     c.Username(),
	}
	h.broadcastToConnections(others, EventUserJoined, joinedPayload)
	h.publishRoomEvent(payload.RoomID, EventUserJoined, joinedPayload)

	c.Send(EventRoomParticipants, joinerPayload)
}

func (h *Hub) leaveRoom(c *Connection, roomID string) {
	remaining, empty := h.rooms.Leave(roomID, c.ID)
	c.SetCurrentRoom("")

	leftPayload := UserLeftPayload{
		ConnectionID: c.ID,
		Username:     c.Username(),
	}
	h.broadcastToConnections(remaining, EventUserLeft, leftPayload)
	h.publishRoomEvent(roomID, EventUserLeft, leftPayload)

	if empty {
		h.unsubscribeRoom(roomID)
	}
}

func (h *Hub) broadcastToConnections(participants []domain.ParticipantInfo, event string, payload interface{}) {
	// Snapshot-then-send-outside-lock: participants is already a
	// snapshot taken under the room lock by the caller, so sends here
	// never hold that lock.
	for _, p := range participants {
		if conn, ok := h.findConnection(p.ConnectionID); ok {
			conn.Send(event, payload)
		}
	}
}

func (h *Hub) handleToggleMute(c *Connection, env *Envelope) {
	var payload ToggleMutePayload
	if !decode(env, &payload) {
		return
	}
	_, others, ok := h.rooms.Mutate(payload.RoomID, c.ID, func(p *domain.ParticipantInfo) { p.Muted = payload.Muted })
	if !ok || c.CurrentRoom() != payload.RoomID {
		return
	}
	out := UserToggleMutePayload{ConnectionID: c.ID, Muted: payload.Muted}
	h.broadcastToConnections(others, EventUserToggleMute, out)
	h.publishRoomEvent(payload.RoomID, EventUserToggleMute, out)
}

func (h *Hub) handleToggleVideo(c *Connection, env *Envelope) {
	var payload ToggleVideoPayload
	if !decode(env, &payload) {
		return
	}
	_, others, ok := h.rooms.Mutate(payload.RoomID, c.ID, func(p *domain.ParticipantInfo) { p.VideoOff = payload.VideoOff })
	if !ok || c.CurrentRoom() != payload.RoomID {
		return
	}
	out := UserToggleVideoPayload{ConnectionID: c.ID, VideoOff: payload.VideoOff}
	h.broadcastToConnections(others, EventUserToggleVideo, out)
	h.publishRoomEvent(payload.RoomID, EventUserToggleVideo, out)
}

func (h *Hub) handleScreenShareStart(c *Connection, env *Envelope) {
	var payload RoomOnlyPayload
	if !decode(env, &payload) {
		return
	}
	_, others, ok := h.rooms.Mutate(payload.RoomID, c.ID, func(p *domain.ParticipantInfo) { p.ScreenSharing = true })
	if !ok || c.CurrentRoom() != payload.RoomID {
		return
	}
	out := UserScreenShareStartPayload{ConnectionID: c.ID, Username: c.Username()}
	h.broadcastToConnections(others, EventUserScreenShareStart, out)
	h.publishRoomEvent(payload.RoomID, EventUserScreenShareStart, out)
}

func (h *Hub) handleScreenShareStop(c *Connection, env *Envelope) {
	var payload RoomOnlyPayload
	if !decode(env, &payload) {
		return
	}
	_, others, ok := h.rooms.Mutate(payload.RoomID, c.ID, func(p *domain.ParticipantInfo) { p.ScreenSharing = false })
	if !ok || c.CurrentRoom() != payload.RoomID {
		return
	}
	out := UserScreenShareStopPayload{ConnectionID: c.ID}
	h.broadcastToConnections(others, EventUserScreenShareStop, out)
	h.publishRoomEvent(payload.RoomID, EventUserScreenShareStop, out)
}

func (h *Hub) handleHandRaise(c *Connection, env *Envelope) {
	var payload HandRaisePayload
	if !decode(env, &payload) {
		return
	}
	_, others, ok := h.rooms.Mutate(payload.RoomID, c.ID, func(p *domain.ParticipantInfo) { p.HandRaised = payload.Raised })
	if !ok || c.CurrentRoom() != payload.RoomID {
		return
	}
	out := UserHandRaisePayload{ConnectionID: c.ID, Username: c.Username(), Raised: payload.Raised}
	h.broadcastToConnections(others, EventUserHandRaise, out)
	h.publishRoomEvent(payload.RoomID, EventUserHandRaise, out)
}

func (h *Hub) handleApproveRejectUser(ctx context.Context, c *Connection, env *Envelope, approve bool) {
	var payload ApproveRejectUserPayload
	if !decode(env, &payload) {
		return
	}

	room, err := h.roomStore.GetRoom(ctx, payload.RoomID)
	if err != nil {
		h.logger.Warn("approve/reject-user: room lookup failed", "room_id", payload.RoomID, "error", err)
		return
	}

	callerID := c.UserID()
	if callerID == nil || *callerID != room.CreatorUserID {
		c.SendError(ErrOnlyCreatorCanManage.Message)
		return
	}

	targetID, err := uuid.Parse(payload.UserID)
	if err != nil {
		return
	}

	updated := make([]uuid.UUID, 0, len(room.WaitingRoom))
	for _, u := range room.WaitingRoom {
		if u != targetID {
			updated = append(updated, u)
		}
	}

	h.persist.Enqueue(func(ctx context.Context) error {
		return h.roomStore.UpdateWaitingRoom(ctx, payload.RoomID, updated)
	})

	event := EventWaitingRoomRejected
	if approve {
		event = EventWaitingRoomApproved
	}
	roomPayload := WaitingRoomRoomPayload{RoomID: payload.RoomID}
	for _, target := range h.connectionsForUser(targetID) {
		target.Send(event, roomPayload)
	}
	h.publishUserEvent(targetID, event, roomPayload)

	waitingStrs := make([]string, 0, len(updated))
	for _, u := range updated {
		waitingStrs = append(waitingStrs, u.String())
	}
	c.Send(EventWaitingRoomUpdated, WaitingRoomUpdatedPayload{WaitingRoom: waitingStrs})
}

// --- Signaling Relay (4.I) ---

func (h *Hub) handleSignaling(c *Connection, env *Envelope) {
	var payload SignalingPayload
	if !decode(env, &payload) || payload.To == "" {
		return
	}

	target, ok := h.findConnection(payload.To)
	if !ok {
		// Target absent: drop silently, no ordering/queuing guarantee.
		return
	}

	target.Send(env.Event, SignalingRelayPayload{
		From:      c.ID,
		Offer:     payload.Offer,
		Answer:    payload.Answer,
		Candidate: payload.Candidate,
	})
}

// --- Chat Relay (4.J) ---

func (h *Hub) handleChatMessage(ctx context.Context, c *Connection, env *Envelope) {
	var payload ChatMessagePayload
	if !decode(env, &payload) {
		return
	}
	text := strings.TrimSpace(payload.Message)
	if payload.RoomID == "" || utf8.RuneCountInString(text) < 1 || utf8.RuneCountInString(text) > 1000 {
		return
	}

	if !h.rateLimit.Allow(c.ID) {
		c.SendError(ErrChatRateLimited.Message)
		return
	}

	msg := domain.ChatMessage{
		MessageID: idgen.MessageID(),
		UserID:    c.UserID(),
		Username:  c.Username(),
		Text:      text,
		Timestamp: time.Now(),
		Reactions: map[string][]string{},
	}

	h.persist.Enqueue(func(ctx context.Context) error {
		return h.roomStore.AppendChat(ctx, payload.RoomID, msg)
	})

	out := ChatMessageOutPayload{
		MessageID: msg.MessageID,
		UserID:    userIDString(msg.UserID),
		Username:  msg.Username,
		Message:   msg.Text,
		Timestamp: msg.Timestamp,
		Reactions: msg.Reactions,
	}
	roster := h.rooms.Participants(payload.RoomID)
	h.broadcastToConnections(roster, EventChatMessageOut, out)
	h.publishRoomEvent(payload.RoomID, EventChatMessageOut, out)
}

func (h *Hub) handleChatReaction(ctx context.Context, c *Connection, env *Envelope) {
	var payload ChatReactionPayload
	if !decode(env, &payload) {
		return
	}
	if len(payload.Emoji) > 10 {
		return
	}

	userID := c.UserID()
	if userID == nil {
		c.SendError(ErrMustBeAuthenticated.Message)
		return
	}

	h.persist.Enqueue(func(ctx context.Context) error {
		return h.roomStore.AddReaction(ctx, payload.RoomID, payload.MessageID, payload.Emoji, *userID)
	})

	out := ChatReactionOutPayload{
		MessageID: payload.MessageID,
		Emoji:     payload.Emoji,
		UserID:    userID.String(),
		Username:  c.Username(),
	}
	roster := h.rooms.Participants(payload.RoomID)
	h.broadcastToConnections(roster, EventChatReactionOut, out)
	h.publishRoomEvent(payload.RoomID, EventChatReactionOut, out)
}

// --- Broadcast Registry (4.G) ---

func (h *Hub) handleCreateBroadcast(c *Connection, env *Envelope) {
	var payload BroadcastIDPayload
	if !decode(env, &payload) || !ValidBroadcastID(payload.BroadcastID) {
		c.SendError(ErrBroadcastIDRequired.Message)
		return
	}

	switch h.broadcasts.Create(payload.BroadcastID, c.ID) {
	case CreateRejectedTaken:
		c.SendError(ErrBroadcastIDRequired.Message)
		return
	case CreateOK, CreateReplacedSameConnection:
		c.SetCurrentBroadcast(payload.BroadcastID)
		c.Send(EventBroadcastCreated, BroadcastCreatedPayload{BroadcastID: payload.BroadcastID})
	}
}

func (h *Hub) handleJoinBroadcast(c *Connection, env *Envelope) {
	var payload BroadcastIDPayload
	if !decode(env, &payload) {
		return
	}

	publisherID, ok := h.broadcasts.Lookup(payload.BroadcastID)
	if !ok {
		c.Send(EventBroadcastNotFound, BroadcastNotFoundPayload{BroadcastID: payload.BroadcastID})
		return
	}

	c.Send(EventBroadcastJoined, BroadcastJoinedPayload{PublisherConnectionID: publisherID})

	if publisher, ok := h.findConnection(publisherID); ok {
		publisher.Send(EventViewerJoined, ViewerJoinedPayload{ViewerConnectionID: c.ID})
	}
}
