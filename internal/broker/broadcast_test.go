package broker

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBroadcastRegistry_CreateAtMostOnePublisher(t *testing.T) {
	b := NewBroadcastRegistry()

	assert.Equal(t, CreateOK, b.Create("stream-1", "c1"))
	assert.Equal(t, CreateRejectedTaken, b.Create("stream-1", "c2"))

	id, ok := b.Lookup("stream-1")
	assert.True(t, ok)
	assert.Equal(t, "c1", id)
}

func TestBroadcastRegistry_SameConnectionReplaceIsIdempotent(t *testing.T) {
	b := NewBroadcastRegistry()

	assert.Equal(t, CreateOK, b.Create("stream-1", "c1"))
	assert.Equal(t, CreateReplacedSameConnection, b.Create("stream-1", "c1"))

	id, ok := b.Lookup("stream-1")
	assert.True(t, ok)
	assert.Equal(t, "c1", id)
}

func TestBroadcastRegistry_LookupUnknownIDFails(t *testing.T) {
	b := NewBroadcastRegistry()
	_, ok := b.Lookup("nope")
	assert.False(t, ok)
}

func TestBroadcastRegistry_RemoveByConnectionFreesTheID(t *testing.T) {
	b := NewBroadcastRegistry()
	b.Create("stream-1", "c1")
	b.Create("stream-2", "c1")
	b.Create("stream-3", "c2")

	b.RemoveByConnection("c1")

	_, ok := b.Lookup("stream-1")
	assert.False(t, ok)
	_, ok = b.Lookup("stream-2")
	assert.False(t, ok)

	id, ok := b.Lookup("stream-3")
	assert.True(t, ok)
	assert.Equal(t, "c2", id)
}

func TestBroadcastRegistry_ConcurrentCreateHasExactlyOneWinner(t *testing.T) {
	b := NewBroadcastRegistry()
	const n = 50
	var wg sync.WaitGroup
	results := make([]CreateResult, n)

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = b.Create("contested", "c-contestant")
		}(i)
	}
	wg.Wait()

	// All contestants share one connectionId here, so every Create is a
	// same-connection replace; the registry still ends with exactly one
	// publisher for the id.
	id, ok := b.Lookup("contested")
	assert.True(t, ok)
	assert.Equal(t, "c-contestant", id)

	for _, r := range results {
		assert.NotEqual(t, CreateRejectedTaken, r)
	}
}

func TestValidBroadcastID(t *testing.T) {
	assert.False(t, ValidBroadcastID(""))
	assert.True(t, ValidBroadcastID("abc"))
	assert.False(t, ValidBroadcastID(string(make([]byte, maxBroadcastIDLen+1))))
}
