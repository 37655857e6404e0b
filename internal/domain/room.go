package domain

import (
	"time"

	"github.com/google/uuid"
)

// Room is the durable container for a video/chat session: an 8-character
// roomId, creator, waiting-room policy, and an append-only chat log.
// Participant presence itself lives only in the in-memory RoomRuntime.
type Room struct {
	RoomID             string        `json:"roomId"`
	Name               string        `json:"name"`
	CreatorUserID      uuid.UUID     `json:"creatorUserId"`
	IsPrivate          bool          `json:"isPrivate"`
	WaitingRoomEnabled bool          `json:"waitingRoomEnabled"`
	WaitingRoom        []uuid.UUID   `json:"waitingRoom"`
	ChatMessages       []ChatMessage `json:"chatMessages"`
	CreatedAt          time.Time     `json:"createdAt"`
}

// ChatMessage is one entry in a room's durable chat log. UserID is nil for
// guest senders. Reactions maps an emoji to the set of userIds that have
// reacted with it, deduplicated per user.
type ChatMessage struct {
	MessageID string              `json:"messageId"`
	UserID    *uuid.UUID          `json:"userId,omitempty"`
	Username  string              `json:"username"`
	Text      string              `json:"message"`
	Timestamp time.Time           `json:"timestamp"`
	Reactions map[string][]string `json:"reactions"`
}

// ParticipantInfo is a connection's presence record within a single room,
// held only in the RoomRuntime (never persisted).
type ParticipantInfo struct {
	ConnectionID   string     `json:"connectionId"`
	UserID         *uuid.UUID `json:"userId,omitempty"`
	Username       string     `json:"username"`
	Muted          bool       `json:"muted"`
	VideoOff       bool       `json:"videoOff"`
	HandRaised     bool       `json:"handRaised"`
	ScreenSharing  bool       `json:"screenSharing"`
}

// CreateRoomOptions carries the optional fields accepted by createRoom.
type CreateRoomOptions struct {
	IsPrivate          bool
	Password           string
	WaitingRoomEnabled bool
}
