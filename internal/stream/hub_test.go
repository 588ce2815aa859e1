package stream

import (
	"path/filepath"
	"testing"
	"time"

	"knowledge-assistant-be/internal/pkg/logger"
	"knowledge-assistant-be/pkg/agent"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testHub(t *testing.T) *Hub {
	t.Helper()
	log := logger.NewIsolatedLogger(filepath.Join(t.TempDir(), "stream.log"))
	hub := NewHub(nil, log)
	go hub.Run()
	return hub
}

func (h *Hub) subscriberCount(sessionID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[sessionID])
}

func TestHubDeliversToSubscriber(t *testing.T) {
	hub := testHub(t)
	sessionID := uuid.New()

	client := &Client{Hub: hub, SessionID: sessionID, Send: make(chan []byte, 8)}
	hub.register <- client
	require.Eventually(t, func() bool {
		return hub.subscriberCount(sessionID) == 1
	}, time.Second, 10*time.Millisecond)

	hub.Publish(sessionID, agent.Event{Type: agent.EventToken, Token: "hello"})

	select {
	case data := <-client.Send:
		assert.Contains(t, string(data), "hello")
	case <-time.After(time.Second):
		t.Fatal("event was not delivered")
	}
}

func TestHubDropsSlowSubscriberWithoutPanicking(t *testing.T) {
	hub := testHub(t)
	sessionID := uuid.New()

	// Unbuffered Send with no reader, every delivery hits the
	// full-buffer branch.
	slow := &Client{Hub: hub, SessionID: sessionID, Send: make(chan []byte)}
	hub.register <- slow
	require.Eventually(t, func() bool {
		return hub.subscriberCount(sessionID) == 1
	}, time.Second, 10*time.Millisecond)

	// repeated token events must survive the subscriber being dropped
	// mid-stream
	for i := 0; i < 10; i++ {
		hub.Publish(sessionID, agent.Event{Type: agent.EventToken, Token: "token"})
	}

	require.Eventually(t, func() bool {
		return hub.subscriberCount(sessionID) == 0
	}, time.Second, 10*time.Millisecond)

	// Send is closed exactly once by the unregister branch
	_, open := <-slow.Send
	assert.False(t, open)

	// the hub goroutine is still alive and serving other subscribers
	other := &Client{Hub: hub, SessionID: sessionID, Send: make(chan []byte, 8)}
	hub.register <- other
	require.Eventually(t, func() bool {
		return hub.subscriberCount(sessionID) == 1
	}, time.Second, 10*time.Millisecond)
	hub.Publish(sessionID, agent.Event{Type: agent.EventDone})
	select {
	case data := <-other.Send:
		assert.Contains(t, string(data), "done")
	case <-time.After(time.Second):
		t.Fatal("hub stopped delivering after dropping a slow subscriber")
	}
}
