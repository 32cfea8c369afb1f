/*
Package chat contains the session and room orchestration of the lounge chat.

This file defines the Manager struct, the table of live WebSocket clients keyed by connection
key. It is the event.Sender of the Orchestrator: events are encoded once and queued on the
addressed client without blocking.
*/
package chat

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/rs/zerolog"

	"loungechat/internal/app/event"
	"loungechat/internal/pkg/logx"
)

// Manager struct tracks every live Client.
type Manager struct {
	// clients stores the live clients keyed by connection key.
	clients map[string]*Client

	// mu protects concurrent access to the clients map.
	mu sync.RWMutex

	// wg counts registered clients so Shutdown can wait for them to leave.
	wg sync.WaitGroup

	// structured logger with Manager context.
	logger zerolog.Logger
}

// NewManager constructs and returns a new Manager instance.
func NewManager() *Manager {
	return &Manager{
		clients: make(map[string]*Client),
		logger:  logx.Component("ConnectionManager"),
	}
}

// Register adds c to the table. A client with the same key is replaced and terminated.
func (m *Manager) Register(c *Client) {
	m.mu.Lock()
	old, exists := m.clients[c.Key]
	m.clients[c.Key] = c
	m.wg.Add(1)
	if exists {
		m.wg.Done()
	}
	m.mu.Unlock()

	if exists {
		m.logger.Warn().Str("conn", c.Key).Msg("Connection key reused, terminating previous client.")
		old.terminate("replaced")
	}
}

// Unregister removes c if it is still the client registered under its key.
func (m *Manager) Unregister(c *Client) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if cur, ok := m.clients[c.Key]; ok && cur == c {
		delete(m.clients, c.Key)
		m.wg.Done()
	}
}

func (m *Manager) client(connKey string) (*Client, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, ok := m.clients[connKey]
	return c, ok
}

// Send implements event.Sender.
func (m *Manager) Send(connKey string, ev event.Event) bool {
	c, ok := m.client(connKey)
	if !ok {
		return false
	}

	frame, err := json.Marshal(ev)
	if err != nil {
		m.logger.Error().Err(err).Str("event_type", string(ev.Type)).Msg("Error marshaling event")
		return false
	}
	return c.enqueue(frame)
}

// Terminate implements event.Sender.
func (m *Manager) Terminate(connKey, reason string) {
	c, ok := m.client(connKey)
	if !ok {
		return
	}

	m.logger.Info().Str("conn", connKey).Str("reason", reason).Msg("Terminating session.")
	c.terminate(reason)
}

// Count returns the number of live clients.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return len(m.clients)
}

// Shutdown terminates every client and waits until they have left or ctx ends.
func (m *Manager) Shutdown(ctx context.Context) {
	m.logger.Info().Msg("Shutting down connection manager...")

	m.mu.RLock()
	for _, c := range m.clients {
		c.terminate("server shutting down")
	}
	m.mu.RUnlock()

	drained := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(drained)
	}()

	select {
	case <-drained:
		m.logger.Info().Msg("Connection manager shutdown complete.")
	case <-ctx.Done():
		m.logger.Warn().Int("remaining", m.Count()).Msg("Connection manager shutdown timed out.")
	}
}
