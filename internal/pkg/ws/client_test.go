package ws

import (
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// 只测试队列语义，不启动读写循环，不需要真实连接
func newQueueOnlyClient(buffer int) *Client {
	return NewClient(nil, ClientOptions{SendBuffer: buffer, SnapshotRate: 1})
}

func TestClient_SendIsNonBlocking(t *testing.T) {
	c := newQueueOnlyClient(1)

	require.NoError(t, c.Send([]byte("a")))
	assert.ErrorIs(t, c.Send([]byte("b")), ErrSendBufferFull)

	c.Close(websocket.CloseGoingAway)
	c.Close(websocket.CloseNormalClosure)
	assert.ErrorIs(t, c.Send([]byte("c")), ErrClientClosed)
	assert.Equal(t, websocket.CloseGoingAway, c.closeCode)
}

func TestRegistry_FullQueueEvictsSlowClient(t *testing.T) {
	r := NewRegistry()
	slow := newQueueOnlyClient(1)
	r.Register(slow)

	assert.Equal(t, 1, r.Broadcast(&Envelope{Type: TypeUpdated}))
	assert.Equal(t, 0, r.Broadcast(&Envelope{Type: TypeUpdated}))
	assert.Equal(t, 0, r.Count())
	assert.ErrorIs(t, slow.Send([]byte("late")), ErrClientClosed)
	assert.Equal(t, int64(1), r.Stats().Evicted)
}

func TestClient_SnapshotRequestLimit(t *testing.T) {
	c := newQueueOnlyClient(1)

	allowed := 0
	for i := 0; i < 10; i++ {
		if c.AllowSnapshotRequest() {
			allowed++
		}
	}
	assert.Equal(t, 3, allowed)
}
