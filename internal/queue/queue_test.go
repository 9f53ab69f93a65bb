package queue

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type marked struct {
	ClassID   string `json:"class_id"`
	StudentID string `json:"student_id"`
}

func receive(t *testing.T, ch <-chan Message) Message {
	t.Helper()
	select {
	case msg, ok := <-ch:
		require.True(t, ok, "channel closed")
		return msg
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for message")
		return Message{}
	}
}

func TestMessageRoundTrip(t *testing.T) {
	msg, err := NewMessage("audit", marked{ClassID: "C1", StudentID: "S1"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"class_id":"C1","student_id":"S1"}`, string(msg.Body))

	var got marked
	require.NoError(t, msg.Decode(&got))
	assert.Equal(t, "S1", got.StudentID)

	assert.Error(t, Message{Type: "audit", Body: []byte("{")}.Decode(&got))
}

func TestInMemory(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	q := NewInMemory(4)
	msgs, err := q.Consume(ctx)
	require.NoError(t, err)

	for _, s := range []string{"S1", "S2"} {
		msg, err := NewMessage("audit", marked{StudentID: s})
		require.NoError(t, err)
		require.NoError(t, q.Publish(ctx, msg))
	}
	var got marked
	require.NoError(t, receive(t, msgs).Decode(&got))
	assert.Equal(t, "S1", got.StudentID)
	require.NoError(t, receive(t, msgs).Decode(&got))
	assert.Equal(t, "S2", got.StudentID)

	cancel()
	select {
	case _, ok := <-msgs:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("consumer did not stop")
	}
}

func TestInMemoryPublishHonoursContext(t *testing.T) {
	q := NewInMemory(1)
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, q.Publish(ctx, Message{Type: "a"}))
	cancel()
	assert.ErrorIs(t, q.Publish(ctx, Message{Type: "b"}), context.Canceled)
}

func TestRedisQueue(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	q := NewRedisQueue(client, "", nil)
	q.block = 100 * time.Millisecond
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	require.NoError(t, client.LPush(ctx, DefaultKey, "not json").Err())
	msg, err := NewMessage("audit", marked{ClassID: "C1", StudentID: "S1"})
	require.NoError(t, err)
	require.NoError(t, q.Publish(ctx, msg))

	msgs, err := q.Consume(ctx)
	require.NoError(t, err)

	got := receive(t, msgs)
	assert.Equal(t, "audit", got.Type)
	var body marked
	require.NoError(t, got.Decode(&body))
	assert.Equal(t, marked{ClassID: "C1", StudentID: "S1"}, body)
}
