package pm

import (
	"context"
	"sort"
	"sync"

	"loungechat/internal/app/user"
)

// MemoryBlocks is a BlockRepository kept in process memory.
type MemoryBlocks struct {
	mu     sync.RWMutex
	blocks map[string]map[string]string
}

// NewMemoryBlocks creates an empty MemoryBlocks.
func NewMemoryBlocks() *MemoryBlocks {
	return &MemoryBlocks{blocks: make(map[string]map[string]string)}
}

func (m *MemoryBlocks) IsBlocked(_ context.Context, blocker, blocked string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	_, ok := m.blocks[user.Key(blocker)][user.Key(blocked)]
	return ok, nil
}

func (m *MemoryBlocks) AddBlock(_ context.Context, blocker, blocked string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := user.Key(blocker)
	if m.blocks[key] == nil {
		m.blocks[key] = make(map[string]string)
	}
	m.blocks[key][user.Key(blocked)] = blocked
	return nil
}

func (m *MemoryBlocks) ListBlocked(_ context.Context, blocker string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]string, 0, len(m.blocks[user.Key(blocker)]))
	for _, tag := range m.blocks[user.Key(blocker)] {
		out = append(out, tag)
	}
	sort.Strings(out)
	return out, nil
}
