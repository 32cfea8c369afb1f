package chat

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"loungechat/internal/app/event"
)

func detachedClient(m *Manager, key string) *Client {
	return NewClient(context.Background(), key, nil, nil, m)
}

func TestManager_SendEncodesAndQueues(t *testing.T) {
	m := NewManager()
	c := detachedClient(m, "c1")
	m.Register(c)

	assert.False(t, m.Send("unknown", event.Event{Type: event.TypeError}))
	require.True(t, m.Send("c1", event.Event{Type: event.TypeMessageDeleted, Payload: event.MessageDeleted{ID: "m1"}}))

	var decoded struct {
		Type    string         `json:"type"`
		Payload map[string]any `json:"payload"`
	}
	require.NoError(t, json.Unmarshal(<-c.send, &decoded))
	assert.Equal(t, "MessageDeleted", decoded.Type)
	assert.Equal(t, "m1", decoded.Payload["id"])
}

func TestManager_TerminateStopsQueueing(t *testing.T) {
	m := NewManager()
	c := detachedClient(m, "c1")
	m.Register(c)

	require.True(t, m.Send("c1", event.Event{Type: event.TypeError}))
	m.Terminate("c1", "muted")
	m.Terminate("c1", "again")

	assert.False(t, m.Send("c1", event.Event{Type: event.TypeError}))
	assert.Len(t, c.send, 1)
	assert.Equal(t, "muted", c.closeReason)
}

func TestManager_FullQueueDrops(t *testing.T) {
	m := NewManager()
	c := detachedClient(m, "c1")
	m.Register(c)

	for i := 0; i < sendQueueSize; i++ {
		require.True(t, m.Send("c1", event.Event{Type: event.TypeError}))
	}
	assert.False(t, m.Send("c1", event.Event{Type: event.TypeError}))
}

func TestManager_ShutdownWaitsForClients(t *testing.T) {
	m := NewManager()
	a := detachedClient(m, "a")
	b := detachedClient(m, "b")
	m.Register(a)
	m.Register(b)
	assert.Equal(t, 2, m.Count())

	// Stand in for the pumps: leave once terminated.
	for _, c := range []*Client{a, b} {
		go func(c *Client) {
			<-c.done
			m.Unregister(c)
		}(c)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	m.Shutdown(ctx)

	assert.Equal(t, 0, m.Count())
	assert.NoError(t, ctx.Err())
}

func TestManager_ReplacedClientIsTerminated(t *testing.T) {
	m := NewManager()
	old := detachedClient(m, "c1")
	m.Register(old)
	fresh := detachedClient(m, "c1")
	m.Register(fresh)

	select {
	case <-old.done:
	default:
		t.Fatal("replaced client was not terminated")
	}

	m.Unregister(old)
	assert.Equal(t, 1, m.Count())
	assert.True(t, m.Send("c1", event.Event{Type: event.TypeError}))
	assert.Len(t, fresh.send, 1)
}
