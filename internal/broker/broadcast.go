package broker

import "sync"

const maxBroadcastIDLen = 64

// BroadcastRegistry is the Broadcast Registry (spec 4.G): at most one
// publisher connection per broadcastId, no room state involved. A single
// RWMutex over the whole map suffices per spec 5 ("per-key serialization
// suffices"); there is no per-room fan-out concern here the way there is
// in the Room Runtime.
type BroadcastRegistry struct {
	mu         sync.RWMutex
	publishers map[string]string // broadcastId -> connectionId
}

func NewBroadcastRegistry() *BroadcastRegistry {
	return &BroadcastRegistry{publishers: make(map[string]string)}
}

// CreateResult distinguishes the three outcomes of Create.
type CreateResult int

const (
	CreateOK CreateResult = iota
	CreateReplacedSameConnection
	CreateRejectedTaken
)

// Create registers connectionID as broadcastId's publisher. If another
// connection already holds it, the attempt is rejected unless it's the
// same connection replacing itself (Open Question 1: idempotent replace
// by the same connection only).
func (b *BroadcastRegistry) Create(broadcastID, connectionID string) CreateResult {
	b.mu.Lock()
	defer b.mu.Unlock()

	existing, taken := b.publishers[broadcastID]
	if taken && existing != connectionID {
		return CreateRejectedTaken
	}

	wasPresent := taken
	b.publishers[broadcastID] = connectionID
	if wasPresent {
		return CreateReplacedSameConnection
	}
	return CreateOK
}

// Lookup returns the publisher connectionId for broadcastId, if any.
func (b *BroadcastRegistry) Lookup(broadcastID string) (string, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	id, ok := b.publishers[broadcastID]
	return id, ok
}

// RemoveByConnection removes every broadcastId this connection publishes,
// called on disconnect. No notification is sent to joiners (spec 4.G).
func (b *BroadcastRegistry) RemoveByConnection(connectionID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, owner := range b.publishers {
		if owner == connectionID {
			delete(b.publishers, id)
		}
	}
}

// ValidBroadcastID applies the Broadcast Registry's input bound.
func ValidBroadcastID(broadcastID string) bool {
	return len(broadcastID) > 0 && len(broadcastID) <= maxBroadcastIDLen
}
