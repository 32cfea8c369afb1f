package moderation

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"loungechat/internal/app/user"
)

// LegacyDateLayout is the day-precision date format of legacy ban records.
const LegacyDateLayout = "2006-01-02"

// ParseEndDate accepts RFC 3339 timestamps and legacy YYYY-MM-DD dates (UTC midnight).
func ParseEndDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	if t, err := time.Parse(LegacyDateLayout, s); err == nil {
		return t.UTC(), nil
	}
	return time.Time{}, fmt.Errorf("invalid end date %q", s)
}

// MemoryRepository is a Repository kept in process memory.
type MemoryRepository struct {
	mu    sync.RWMutex
	mutes map[string]Mute
}

// NewMemoryRepository creates an empty MemoryRepository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{mutes: make(map[string]Mute)}
}

func (r *MemoryRepository) GetActiveMute(_ context.Context, battleTag string) (*Mute, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	m, ok := r.mutes[user.Key(battleTag)]
	if !ok {
		return nil, nil
	}
	return &m, nil
}

func (r *MemoryRepository) Upsert(_ context.Context, m Mute) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	m.BattleTag = user.Key(m.BattleTag)
	r.mutes[m.BattleTag] = m
	return nil
}

func (r *MemoryRepository) Delete(_ context.Context, battleTag string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := user.Key(battleTag)
	if _, ok := r.mutes[key]; !ok {
		return ErrNotFound
	}
	delete(r.mutes, key)
	return nil
}

func (r *MemoryRepository) List(_ context.Context) ([]Mute, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Mute, 0, len(r.mutes))
	for _, m := range r.mutes {
		out = append(out, m)
	}
	return out, nil
}
