package db

import (
	"context"
	"fmt"
	"sync"

	"loungechat/internal/app/user"
)

const (
	getDefaultRoomSQL = `SELECT default_room FROM chat_settings WHERE battle_tag = $1`

	saveDefaultRoomSQL = `INSERT INTO chat_settings (battle_tag, default_room, updated_at)
VALUES ($1, $2, now())
ON CONFLICT (battle_tag) DO UPDATE SET default_room = EXCLUDED.default_room, updated_at = now()`
)

// SettingsRepository stores per-player chat settings in PostgreSQL.
type SettingsRepository struct {
	db DBTX
}

// NewSettingsRepository creates a SettingsRepository on db.
func NewSettingsRepository(db DBTX) *SettingsRepository {
	return &SettingsRepository{db: db}
}

// LoadDefaultRoom returns the stored default room of battleTag, or "" if none.
func (r *SettingsRepository) LoadDefaultRoom(ctx context.Context, battleTag string) (string, error) {
	var room string
	err := r.db.QueryRow(ctx, getDefaultRoomSQL, user.Key(battleTag)).Scan(&room)
	if isNoRows(err) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to load chat settings: %w", err)
	}
	return room, nil
}

// SaveDefaultRoom stores room as the default room of battleTag.
func (r *SettingsRepository) SaveDefaultRoom(ctx context.Context, battleTag, room string) error {
	if _, err := r.db.Exec(ctx, saveDefaultRoomSQL, user.Key(battleTag), room); err != nil {
		return fmt.Errorf("failed to save chat settings: %w", err)
	}
	return nil
}

// MemorySettings keeps chat settings in process memory, for running without a database.
type MemorySettings struct {
	mu    sync.RWMutex
	rooms map[string]string
}

// NewMemorySettings creates an empty MemorySettings.
func NewMemorySettings() *MemorySettings {
	return &MemorySettings{rooms: make(map[string]string)}
}

// LoadDefaultRoom returns the stored default room of battleTag, or "" if none.
func (s *MemorySettings) LoadDefaultRoom(_ context.Context, battleTag string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rooms[user.Key(battleTag)], nil
}

// SaveDefaultRoom stores room as the default room of battleTag.
func (s *MemorySettings) SaveDefaultRoom(_ context.Context, battleTag, room string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rooms[user.Key(battleTag)] = room
	return nil
}
