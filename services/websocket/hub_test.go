package websocket

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func register(t *testing.T, h *Hub, familyID uint) *Client {
	t.Helper()
	c := newClient(familyID, familyID*10)
	h.register <- c
	require.Eventually(t, func() bool {
		h.mutex.RLock()
		defer h.mutex.RUnlock()
		_, ok := h.families[familyID][c]
		return ok
	}, time.Second, 5*time.Millisecond)
	return c
}

func TestBroadcastToFamilyOnlyReachesThatFamily(t *testing.T) {
	h := NewHub()
	go h.Run()
	defer h.Stop()

	a1 := register(t, h, 1)
	a2 := register(t, h, 1)
	b := register(t, h, 2)
	assert.Equal(t, 3, h.GetClientCount())

	sent := h.BroadcastToFamily(1, Message{Type: "balance.updated", Data: map[string]int64{"balance_cents": 2500}})
	assert.Equal(t, 2, sent)

	for _, c := range []*Client{a1, a2} {
		select {
		case raw := <-c.send:
			var msg Message
			require.NoError(t, json.Unmarshal(raw, &msg))
			assert.Equal(t, "balance.updated", msg.Type)
		default:
			t.Fatal("family client did not receive the message")
		}
	}
	assert.Empty(t, b.send)
}

func TestSlowClientIsDropped(t *testing.T) {
	h := NewHub()
	go h.Run()
	defer h.Stop()

	c := register(t, h, 7)
	for i := 0; i < sendBuffer; i++ {
		require.Equal(t, 1, h.BroadcastToFamily(7, i))
	}
	assert.Zero(t, h.BroadcastToFamily(7, "overflow"))
	assert.Zero(t, h.GetClientCount())

	drained := 0
	for range c.send {
		drained++
	}
	assert.Equal(t, sendBuffer, drained)
}

func TestUnregisterClosesSend(t *testing.T) {
	h := NewHub()
	go h.Run()
	defer h.Stop()

	c := register(t, h, 3)
	h.unregister <- c
	require.Eventually(t, func() bool { return h.GetClientCount() == 0 }, time.Second, 5*time.Millisecond)
	_, open := <-c.send
	assert.False(t, open)
}
