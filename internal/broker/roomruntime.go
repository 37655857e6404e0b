package broker

import (
	"sync"

	"github.com/observer/broker/internal/domain"
)

const maxRoomIDLen = 128

// roomState is one room's live roster. Mutations to its participant map
// are serialized by its own mutex (spec 5: "coarse per-room lock"); the
// outer RoomRuntime's lock only protects the top-level map of roomId to
// roomState, never participant mutation itself.
type roomState struct {
	mu           sync.Mutex
	participants map[string]*domain.ParticipantInfo // keyed by connectionId
}

// RoomRuntime is the Room Runtime (spec 4.H): in-memory roomId ->
// connectionId -> ParticipantInfo, with join/leave/presence-toggle
// operations. Never persists anything itself; persistence
// (room metadata, chat log, waiting-room list) lives in the Room Store.
type RoomRuntime struct {
	mu    sync.RWMutex
	rooms map[string]*roomState
}

func NewRoomRuntime() *RoomRuntime {
	return &RoomRuntime{rooms: make(map[string]*roomState)}
}

// getOrCreate returns (creating if absent) the roomState for roomID.
func (rt *RoomRuntime) getOrCreate(roomID string) *roomState {
	rt.mu.RLock()
	rs, ok := rt.rooms[roomID]
	rt.mu.RUnlock()
	if ok {
		return rs
	}

	rt.mu.Lock()
	defer rt.mu.Unlock()
	if rs, ok = rt.rooms[roomID]; ok {
		return rs
	}
	rs = &roomState{participants: make(map[string]*domain.ParticipantInfo)}
	rt.rooms[roomID] = rs
	return rs
}

// Join adds connectionID to roomID's roster and returns a snapshot of the
// full roster as it stood immediately after the join (including the new
// participant), for delivery to the joiner; callers derive the other
// participants for the join broadcast from it. The snapshot is taken
// under the same lock as the mutation, satisfying the "present-at-event
// observes it" ordering requirement.
func (rt *RoomRuntime) Join(roomID string, info *domain.ParticipantInfo) (snapshot []domain.ParticipantInfo) {
	rs := rt.getOrCreate(roomID)
	rs.mu.Lock()
	defer rs.mu.Unlock()

	rs.participants[info.ConnectionID] = info

	snapshot = make([]domain.ParticipantInfo, 0, len(rs.participants))
	for _, p := range rs.participants {
		snapshot = append(snapshot, *p)
	}
	return snapshot
}

// Leave removes connectionID from roomID's roster. It returns the
// remaining roster snapshot (for fan-out bookkeeping by the caller) and
// whether the room is now empty, in which case Leave has already dropped
// the RoomRuntime entry via Remove.
func (rt *RoomRuntime) Leave(roomID, connectionID string) (remaining []domain.ParticipantInfo, empty bool) {
	rt.mu.RLock()
	rs, ok := rt.rooms[roomID]
	rt.mu.RUnlock()
	if !ok {
		return nil, true
	}

	rs.mu.Lock()
	delete(rs.participants, connectionID)
	remaining = make([]domain.ParticipantInfo, 0, len(rs.participants))
	for _, p := range rs.participants {
		remaining = append(remaining, *p)
	}
	empty = len(rs.participants) == 0
	rs.mu.Unlock()

	if empty {
		rt.Remove(roomID)
	}
	return remaining, empty
}

// Remove drops a room's RoomRuntime entry outright.
func (rt *RoomRuntime) Remove(roomID string) {
	rt.mu.Lock()
	delete(rt.rooms, roomID)
	rt.mu.Unlock()
}

// Participants returns a roster snapshot without mutating anything.
func (rt *RoomRuntime) Participants(roomID string) []domain.ParticipantInfo {
	rt.mu.RLock()
	rs, ok := rt.rooms[roomID]
	rt.mu.RUnlock()
	if !ok {
		return nil
	}
	rs.mu.Lock()
	defer rs.mu.Unlock()
	out := make([]domain.ParticipantInfo, 0, len(rs.participants))
	for _, p := range rs.participants {
		out = append(out, *p)
	}
	return out
}

// Mutate applies fn to connectionID's ParticipantInfo under the room's
// lock and returns the participant's post-mutation info plus a snapshot
// of the other participants (excluding connectionID). Used by the
// presence-toggle handlers (toggle-mute, toggle-video, hand-raise,
// screen-share). Returns ok=false if the connection is not on this
// room's roster (caller should reject silently per spec 4.H).
func (rt *RoomRuntime) Mutate(roomID, connectionID string, fn func(*domain.ParticipantInfo)) (info domain.ParticipantInfo, others []domain.ParticipantInfo, ok bool) {
	rt.mu.RLock()
	rs, exists := rt.rooms[roomID]
	rt.mu.RUnlock()
	if !exists {
		return domain.ParticipantInfo{}, nil, false
	}

	rs.mu.Lock()
	defer rs.mu.Unlock()

	p, exists := rs.participants[connectionID]
	if !exists {
		return domain.ParticipantInfo{}, nil, false
	}
	fn(p)

	others = make([]domain.ParticipantInfo, 0, len(rs.participants))
	for id, other := range rs.participants {
		if id == connectionID {
			continue
		}
		others = append(others, *other)
	}
	return *p, others, true
}

// RoomCount reports how many rooms currently have at least one
// participant, backing the /health endpoint's activeRooms field.
func (rt *RoomRuntime) RoomCount() int {
	rt.mu.RLock()
	defer rt.mu.RUnlock()
	return len(rt.rooms)
}

// ValidRoomID applies the Room Runtime's input bound: non-empty, at most
// 128 characters (spec 5 deliberately allows longer legacy-style ids on
// join even though freshly minted ids are 8 characters).
func ValidRoomID(roomID string) bool {
	return len(roomID) > 0 && len(roomID) <= maxRoomIDLen
}
