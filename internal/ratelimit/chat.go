package ratelimit

import (
	"sync"
	"time"
)

const (
	chatWindow      = 10 * time.Second
	chatWindowLimit = 10
)

// ChatLimiter enforces the Chat Relay's sliding window: 10 accepted
// messages per rolling 10-second window, keyed by connectionId. Purely
// passive: no scheduled task prunes it, state is recomputed on arrival
// and removed outright on disconnect.
type ChatLimiter struct {
	mu        sync.Mutex
	sentAt    map[string][]time.Time
	nowFunc   func() time.Time
}

func NewChatLimiter() *ChatLimiter {
	return &ChatLimiter{
		sentAt:  make(map[string][]time.Time),
		nowFunc: time.Now,
	}
}

// Allow reports whether connectionId may send another chat message right
// now, and records the attempt if so.
func (l *ChatLimiter) Allow(connectionID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.nowFunc()
	cutoff := now.Add(-chatWindow)

	history := l.sentAt[connectionID]
	kept := history[:0]
	for _, t := range history {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}

	if len(kept) >= chatWindowLimit {
		l.sentAt[connectionID] = kept
		return false
	}

	l.sentAt[connectionID] = append(kept, now)
	return true
}

// Forget removes a connection's rate-limit state, called on disconnect.
func (l *ChatLimiter) Forget(connectionID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.sentAt, connectionID)
}
