package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestChatLimiter_AllowsUpToWindowLimit(t *testing.T) {
	l := NewChatLimiter()
	fake := time.Now()
	l.nowFunc = func() time.Time { return fake }

	for i := 0; i < chatWindowLimit; i++ {
		assert.True(t, l.Allow("c1"), "message %d should be accepted", i+1)
	}
	assert.False(t, l.Allow("c1"), "11th message within the window should be rejected")
}

func TestChatLimiter_ResetsAfterWindowElapses(t *testing.T) {
	l := NewChatLimiter()
	fake := time.Now()
	l.nowFunc = func() time.Time { return fake }

	for i := 0; i < chatWindowLimit; i++ {
		assert.True(t, l.Allow("c1"))
	}
	assert.False(t, l.Allow("c1"))

	fake = fake.Add(chatWindow + time.Millisecond)
	assert.True(t, l.Allow("c1"), "window should have reset")
}

func TestChatLimiter_IsolatedPerConnection(t *testing.T) {
	l := NewChatLimiter()
	for i := 0; i < chatWindowLimit; i++ {
		assert.True(t, l.Allow("c1"))
	}
	assert.False(t, l.Allow("c1"))
	assert.True(t, l.Allow("c2"), "a different connection has its own window")
}

func TestChatLimiter_Forget(t *testing.T) {
	l := NewChatLimiter()
	for i := 0; i < chatWindowLimit; i++ {
		assert.True(t, l.Allow("c1"))
	}
	assert.False(t, l.Allow("c1"))

	l.Forget("c1")
	assert.True(t, l.Allow("c1"), "state should be cleared after disconnect")
}
