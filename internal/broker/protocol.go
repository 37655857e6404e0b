package broker

import (
	"encoding/json"
	"time"
)

// Client -> broker event names (spec 6.1).
const (
	EventJoinRoom         = "join-room"
	EventLeaveRoom        = "leave-room"
	EventOffer             = "offer"
	EventAnswer            = "answer"
	EventICECandidate      = "ice-candidate"
	EventChatMessage       = "chat-message"
	EventChatReaction      = "chat-reaction"
	EventToggleMute        = "toggle-mute"
	EventToggleVideo       = "toggle-video"
	EventScreenShareStart  = "screen-share-start"
	EventScreenShareStop   = "screen-share-stop"
	EventHandRaise         = "hand-raise"
	EventApproveUser       = "approve-user"
	EventRejectUser        = "reject-user"
	EventCreateBroadcast   = "create-broadcast"
	EventJoinBroadcast     = "join-broadcast"
)

// Broker -> client event names.
const (
	EventRoomParticipants     = "room-participants"
	EventUserJoined           = "user-joined"
	EventUserLeft             = "user-left"
	EventChatMessageOut       = "chat-message"
	EventChatReactionOut      = "chat-reaction"
	EventUserToggleMute       = "user-toggle-mute"
	EventUserToggleVideo      = "user-toggle-video"
	EventUserScreenShareStart = "user-screen-share-start"
	EventUserScreenShareStop  = "user-screen-share-stop"
	EventUserHandRaise        = "user-hand-raise"
	EventWaitingRoomApproved  = "waiting-room-approved"
	EventWaitingRoomRejected  = "waiting-room-rejected"
	EventWaitingRoomUpdated   = "waiting-room-updated"
	EventBroadcastCreated     = "broadcast-created"
	EventBroadcastJoined      = "broadcast-joined"
	EventViewerJoined         = "viewer-joined"
	EventBroadcastNotFound    = "broadcast-not-found"
	EventErrorMessage         = "error-message"
)

// Envelope is the wire frame: a named event plus a single JSON argument,
// mirroring the teacher's Message{Type, Payload} shape.
type Envelope struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

// NewEnvelope marshals payload into an Envelope ready to send.
func NewEnvelope(event string, payload interface{}) (*Envelope, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return &Envelope{Event: event, Payload: data}, nil
}

// --- client -> broker payloads ---

type JoinRoomPayload struct {
	RoomID string `json:"roomId"`
}

type SignalingPayload struct {
	To      string          `json:"to"`
	Offer   json.RawMessage `json:"offer,omitempty"`
	Answer  json.RawMessage `json:"answer,omitempty"`
	Candidate json.RawMessage `json:"candidate,omitempty"`
}

type ChatMessagePayload struct {
	RoomID  string `json:"roomId"`
	Message string `json:"message"`
}

type ChatReactionPayload struct {
	RoomID    string `json:"roomId"`
	MessageID string `json:"messageId"`
	Emoji     string `json:"emoji"`
}

type ToggleMutePayload struct {
	RoomID string `json:"roomId"`
	Muted  bool   `json:"muted"`
}

type ToggleVideoPayload struct {
	RoomID   string `json:"roomId"`
	VideoOff bool   `json:"videoOff"`
}

type RoomOnlyPayload struct {
	RoomID string `json:"roomId"`
}

type HandRaisePayload struct {
	RoomID string `json:"roomId"`
	Raised bool   `json:"raised"`
}

type ApproveRejectUserPayload struct {
	RoomID string `json:"roomId"`
	UserID string `json:"userId"`
}

type BroadcastIDPayload struct {
	BroadcastID string `json:"broadcastId"`
}

// --- broker -> client payloads ---

type UserJoinedPayload struct {
	ConnectionID string  `json:"connectionId"`
	UserID       *string `json:"userId,omitempty"`
	Username     string  `json:"username"`
}

type UserLeftPayload struct {
	ConnectionID string `json:"connectionId"`
	Username     string `json:"username"`
}

type SignalingRelayPayload struct {
	From      string          `json:"from"`
	Offer     json.RawMessage `json:"offer,omitempty"`
	Answer    json.RawMessage `json:"answer,omitempty"`
	Candidate json.RawMessage `json:"candidate,omitempty"`
}

type ChatMessageOutPayload struct {
	MessageID string              `json:"messageId"`
	UserID    *string             `json:"userId,omitempty"`
	Username  string              `json:"username"`
	Message   string              `json:"message"`
	Timestamp time.Time           `json:"timestamp"`
	Reactions map[string][]string `json:"reactions"`
}

type ChatReactionOutPayload struct {
	MessageID string `json:"messageId"`
	Emoji     string `json:"emoji"`
	UserID    string `json:"userId"`
	Username  string `json:"username"`
}

type UserToggleMutePayload struct {
	ConnectionID string `json:"connectionId"`
	Muted        bool   `json:"muted"`
}

type UserToggleVideoPayload struct {
	ConnectionID string `json:"connectionId"`
	VideoOff     bool   `json:"videoOff"`
}

type UserScreenShareStartPayload struct {
	ConnectionID string `json:"connectionId"`
	Username     string `json:"username"`
}

type UserScreenShareStopPayload struct {
	ConnectionID string `json:"connectionId"`
}

type UserHandRaisePayload struct {
	ConnectionID string `json:"connectionId"`
	Username     string `json:"username"`
	Raised       bool   `json:"raised"`
}

type WaitingRoomRoomPayload struct {
	RoomID string `json:"roomId"`
}

type WaitingRoomUpdatedPayload struct {
	WaitingRoom []string `json:"waitingRoom"`
}

type BroadcastCreatedPayload struct {
	BroadcastID string `json:"broadcastId"`
}

type BroadcastJoinedPayload struct {
	PublisherConnectionID string `json:"publisherConnectionId"`
}

type ViewerJoinedPayload struct {
	ViewerConnectionID string `json:"viewerConnectionId"`
}

type BroadcastNotFoundPayload struct {
	BroadcastID string `json:"broadcastId"`
}

type ErrorMessagePayload struct {
	Message string `json:"message"`
}

type RoomParticipantPayload struct {
	ConnectionID  string  `json:"connectionId"`
	UserID        *string `json:"userId,omitempty"`
	Username      string  `json:"username"`
	Muted         bool    `json:"muted"`
	VideoOff      bool    `json:"videoOff"`
	HandRaised    bool    `json:"handRaised"`
	ScreenSharing bool    `json:"screenSharing"`
}
