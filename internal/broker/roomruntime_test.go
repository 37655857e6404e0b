package broker

import (
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/observer/broker/internal/domain"
)

func TestRoomRuntime_JoinReturnsFullRosterIncludingJoiner(t *testing.T) {
	rt := NewRoomRuntime()

	snap := rt.Join("room-1", &domain.ParticipantInfo{ConnectionID: "c1", Username: "alice"})
	assert.Len(t, snap, 1)

	snap = rt.Join("room-1", &domain.ParticipantInfo{ConnectionID: "c2", Username: "bob"})
	assert.Len(t, snap, 2)
}

func TestRoomRuntime_LeaveIsIdempotent(t *testing.T) {
	rt := NewRoomRuntime()
	rt.Join("room-1", &domain.ParticipantInfo{ConnectionID: "c1", Username: "alice"})

	remaining, empty := rt.Leave("room-1", "c1")
	assert.Empty(t, remaining)
	assert.True(t, empty)

	// Leaving again (connection already gone, or room already removed)
	// must not panic or report a second "left" for a nonexistent room.
	remaining, empty = rt.Leave("room-1", "c1")
	assert.Empty(t, remaining)
	assert.True(t, empty)
}

func TestRoomRuntime_LeaveReportsEmptyOnlyWhenLastParticipantGone(t *testing.T) {
	rt := NewRoomRuntime()
	rt.Join("room-1", &domain.ParticipantInfo{ConnectionID: "c1", Username: "alice"})
	rt.Join("room-1", &domain.ParticipantInfo{ConnectionID: "c2", Username: "bob"})

	remaining, empty := rt.Leave("room-1", "c1")
	assert.Len(t, remaining, 1)
	assert.False(t, empty)
	assert.Equal(t, 1, rt.RoomCount())

	_, empty = rt.Leave("room-1", "c2")
	assert.True(t, empty)
	assert.Equal(t, 0, rt.RoomCount())
}

func TestRoomRuntime_ParticipantsSnapshotDoesNotMutateRoster(t *testing.T) {
	rt := NewRoomRuntime()
	rt.Join("room-1", &domain.ParticipantInfo{ConnectionID: "c1", Username: "alice"})

	snap := rt.Participants("room-1")
	assert.Len(t, snap, 1)
	snap[0].Username = "mutated"

	again := rt.Participants("room-1")
	assert.Equal(t, "alice", again[0].Username)
}

func TestRoomRuntime_MutateRejectsUnknownConnection(t *testing.T) {
	rt := NewRoomRuntime()
	rt.Join("room-1", &domain.ParticipantInfo{ConnectionID: "c1", Username: "alice"})

	_, _, ok := rt.Mutate("room-1", "ghost", func(p *domain.ParticipantInfo) { p.Muted = true })
	assert.False(t, ok)

	_, _, ok = rt.Mutate("missing-room", "c1", func(p *domain.ParticipantInfo) {})
	assert.False(t, ok)
}

func TestRoomRuntime_MutateAppliesUnderLockAndExcludesSelfFromOthers(t *testing.T) {
	rt := NewRoomRuntime()
	rt.Join("room-1", &domain.ParticipantInfo{ConnectionID: "c1", Username: "alice"})
	rt.Join("room-1", &domain.ParticipantInfo{ConnectionID: "c2", Username: "bob"})

	info, others, ok := rt.Mutate("room-1", "c1", func(p *domain.ParticipantInfo) { p.Muted = true })
	assert.True(t, ok)
	assert.True(t, info.Muted)
	assert.Len(t, others, 1)
	assert.Equal(t, "c2", others[0].ConnectionID)
}

func TestRoomRuntime_ConcurrentJoinLeaveRosterStaysConsistent(t *testing.T) {
	rt := NewRoomRuntime()
	const n = 50
	var wg sync.WaitGroup

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			cid := uuid.NewString()
			rt.Join("room-1", &domain.ParticipantInfo{ConnectionID: cid})
			rt.Leave("room-1", cid)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 0, rt.RoomCount())
}

func TestValidRoomID(t *testing.T) {
	assert.False(t, ValidRoomID(""))
	assert.True(t, ValidRoomID("abc123"))
	assert.False(t, ValidRoomID(string(make([]byte, maxRoomIDLen+1))))
	assert.True(t, ValidRoomID(string(make([]byte, maxRoomIDLen))))
}
