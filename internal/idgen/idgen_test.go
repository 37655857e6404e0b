package idgen

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRoomID_LengthAndAlphabet(t *testing.T) {
	for i := 0; i < 50; i++ {
		id := RoomID()
		assert.Len(t, id, 8)
		for _, r := range id {
			assert.Contains(t, roomIDAlphabet, string(r))
		}
	}
}

func TestRoomID_Uniqueness(t *testing.T) {
	seen := make(map[string]bool, 200)
	for i := 0; i < 200; i++ {
		seen[RoomID()] = true
	}
	assert.GreaterOrEqual(t, len(seen), 195, "expected at least 195 unique ids out of 200 draws")
}

func TestShortID_LengthMatchesByteCount(t *testing.T) {
	assert.Len(t, ShortID(12), 24)
	assert.Len(t, ShortID(6), 12)
	assert.Len(t, ShortID(3), 6)
}

func TestMessageID(t *testing.T) {
	id := MessageID()
	assert.Len(t, id, 12)
}

func TestGuestSuffix(t *testing.T) {
	s := GuestSuffix()
	assert.Len(t, s, 6)
}

func TestShortID_Uniqueness(t *testing.T) {
	seen := make(map[string]bool, 200)
	for i := 0; i < 200; i++ {
		seen[ShortID(12)] = true
	}
	assert.GreaterOrEqual(t, len(seen), 195)
}
