package pubsub

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedisPubSub(t *testing.T) *RedisPubSub {
	t.Helper()
	mr := miniredis.RunT(t)

	ps, err := NewRedisPubSub("redis://" + mr.Addr())
	require.NoError(t, err)
	t.Cleanup(func() { ps.Close() })

	return ps
}

func TestRedisPubSub_PublishSubscribe(t *testing.T) {
	ps := newTestRedisPubSub(t)

	topic := Topics.Room("room-1")
	received := make(chan *Message, 1)

	sub, err := ps.Subscribe(context.Background(), topic, func(ctx context.Context, msg *Message) {
		received <- msg
	})
	require.NoError(t, err)
	defer sub.Unsubscribe()

	payload, _ := json.Marshal(map[string]string{"user": "alice"})
	err = ps.Publish(context.Background(), topic, &Message{
		Topic:   topic,
		Type:    "user.joined",
		Payload: payload,
	})
	require.NoError(t, err)

	select {
	case got := <-received:
		assert.Equal(t, "user.joined", got.Type)
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for message")
	}
}

func TestRedisPubSub_UnsubscribeStopsDelivery(t *testing.T) {
	ps := newTestRedisPubSub(t)

	topic := Topics.User("user-1")
	received := make(chan *Message, 1)

	sub, err := ps.Subscribe(context.Background(), topic, func(ctx context.Context, msg *Message) {
		received <- msg
	})
	require.NoError(t, err)

	require.NoError(t, sub.Unsubscribe())
	assert.Equal(t, 0, ps.SubscriberCount(topic))

	payload, _ := json.Marshal(map[string]string{})
	_ = ps.Publish(context.Background(), topic, &Message{Topic: topic, Type: "ignored", Payload: payload})

	select {
	case <-received:
		t.Fatal("unsubscribed handler should not receive messages")
	case <-time.After(200 * time.Millisecond):
	}
}

func TestRedisPubSub_PublishAfterCloseFails(t *testing.T) {
	ps := newTestRedisPubSub(t)
	require.NoError(t, ps.Close())

	err := ps.Publish(context.Background(), "anything", &Message{Topic: "anything", Type: "x"})
	assert.ErrorIs(t, err, ErrClosed)
}
