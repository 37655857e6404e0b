package database

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/observer/broker/internal/domain"
	"github.com/observer/broker/internal/idgen"
)

// roomIDConflictRetries bounds how many times createRoom will mint a fresh
// roomId after a unique-constraint collision before giving up.
const roomIDConflictRetries = 5

// RoomRepository is the Room Store (spec 4.C): durable room metadata and
// append-only chat log. Presence/roster state never touches this type; it
// lives only in the in-memory room runtime.
type RoomRepository struct {
	db *DB
}

func NewRoomRepository(db *DB) *RoomRepository {
	return &RoomRepository{db: db}
}

// CreateRoom persists a new room under a freshly minted roomId, retrying
// with a new id on unique-constraint collision.
func (r *RoomRepository) CreateRoom(ctx context.Context, name string, creatorUserID uuid.UUID, opts domain.CreateRoomOptions) (*domain.Room, error) {
	var lastErr error
	for attempt := 0; attempt < roomIDConflictRetries; attempt++ {
		room := &domain.Room{
			RoomID:             idgen.RoomID(),
			Name:               name,
			CreatorUserID:      creatorUserID,
			IsPrivate:          opts.IsPrivate,
			WaitingRoomEnabled: opts.WaitingRoomEnabled,
			WaitingRoom:        []uuid.UUID{},
			ChatMessages:       []domain.ChatMessage{},
		}

		waitingJSON, err := json.Marshal(room.WaitingRoom)
		if err != nil {
			return nil, err
		}
		chatJSON, err := json.Marshal(room.ChatMessages)
		if err != nil {
			return nil, err
		}

		err = r.db.Pool.QueryRow(ctx, `
			INSERT INTO rooms (id, name, creator_user_id, is_private, waiting_room_enabled, waiting_room, chat_messages)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			RETURNING created_at
		`, room.RoomID, room.Name, room.CreatorUserID, room.IsPrivate, room.WaitingRoomEnabled, waitingJSON, chatJSON).Scan(&room.CreatedAt)
		if err == nil {
			return room, nil
		}
		if isUniqueViolation(err) {
			lastErr = err
			continue
		}
		return nil, err
	}
	return nil, lastErr
}

func (r *RoomRepository) GetRoom(ctx context.Context, roomID string) (*domain.Room, error) {
	room := &domain.Room{RoomID: roomID}
	var waitingJSON, chatJSON []byte
	err := r.db.Pool.QueryRow(ctx, `
		SELECT name, creator_user_id, is_private, waiting_room_enabled, waiting_room, chat_messages, created_at
		FROM rooms WHERE id = $1
	`, roomID).Scan(&room.Name, &room.CreatorUserID, &room.IsPrivate, &room.WaitingRoomEnabled, &waitingJSON, &chatJSON, &room.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrRoomNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(waitingJSON, &room.WaitingRoom); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(chatJSON, &room.ChatMessages); err != nil {
		return nil, err
	}
	return room, nil
}

// AppendChat appends a message to the room's durable chat log. Callers on
// the hot relay path treat failures as fire-and-forget: log, never block
// or surface to the sender.
func (r *RoomRepository) AppendChat(ctx context.Context, roomID string, msg domain.ChatMessage) error {
	_, err := r.db.Pool.Exec(ctx, `
		UPDATE rooms
		SET chat_messages = chat_messages || $2::jsonb
		WHERE id = $1
	`, roomID, mustMarshal(msg))
	return err
}

// AddReaction adds userID to the set of reactors for messageId+emoji,
// deduplicated per user. Read-modify-write under a row lock since jsonb
// array element mutation has no native set-union operator.
func (r *RoomRepository) AddReaction(ctx context.Context, roomID, messageID, emoji string, userID uuid.UUID) error {
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var chatJSON []byte
	err = tx.QueryRow(ctx, `SELECT chat_messages FROM rooms WHERE id = $1 FOR UPDATE`, roomID).Scan(&chatJSON)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ErrRoomNotFound
	}
	if err != nil {
		return err
	}

	var messages []domain.ChatMessage
	if err := json.Unmarshal(chatJSON, &messages); err != nil {
		return err
	}

	for i := range messages {
		if messages[i].MessageID != messageID {
			continue
		}
		if messages[i].Reactions == nil {
			messages[i].Reactions = make(map[string][]string)
		}
		users := messages[i].Reactions[emoji]
		already := false
		for _, u := range users {
			if u == userID.String() {
				already = true
				break
			}
		}
		if !already {
			messages[i].Reactions[emoji] = append(users, userID.String())
		}
		break
	}

	updated, err := json.Marshal(messages)
	if err != nil {
		return err
	}

	if _, err := tx.Exec(ctx, `UPDATE rooms SET chat_messages = $2 WHERE id = $1`, roomID, updated); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// UpdateWaitingRoom overwrites the persisted waiting-room list.
func (r *RoomRepository) UpdateWaitingRoom(ctx context.Context, roomID string, userIDs []uuid.UUID) error {
	_, err := r.db.Pool.Exec(ctx, `
		UPDATE rooms SET waiting_room = $2 WHERE id = $1
	`, roomID, mustMarshal(userIDs))
	return err
}

func mustMarshal(v interface{}) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
