package db

import (
	"context"
	"fmt"

	"loungechat/internal/app/user"
)

const (
	isBlockedSQL = `SELECT EXISTS (SELECT 1 FROM chat_blocks WHERE blocker = $1 AND blocked = $2)`

	addBlockSQL = `INSERT INTO chat_blocks (blocker, blocked) VALUES ($1, $2)`

	listBlockedSQL = `SELECT blocked FROM chat_blocks WHERE blocker = $1 ORDER BY created_at`
)

// BlockRepository stores who blocked whom in PostgreSQL. It implements pm.BlockRepository.
type BlockRepository struct {
	db DBTX
}

// NewBlockRepository creates a BlockRepository on db.
func NewBlockRepository(db DBTX) *BlockRepository {
	return &BlockRepository{db: db}
}

// IsBlocked reports whether blocker has blocked blocked.
func (r *BlockRepository) IsBlocked(ctx context.Context, blocker, blocked string) (bool, error) {
	var exists bool
	if err := r.db.QueryRow(ctx, isBlockedSQL, user.Key(blocker), user.Key(blocked)).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check block: %w", err)
	}
	return exists, nil
}

// AddBlock records that blocker blocked blocked. Blocking twice is not an error.
func (r *BlockRepository) AddBlock(ctx context.Context, blocker, blocked string) error {
	_, err := r.db.Exec(ctx, addBlockSQL, user.Key(blocker), user.Key(blocked))
	if err != nil && !IsUniqueViolation(err) {
		return fmt.Errorf("failed to add block: %w", err)
	}
	return nil
}

// ListBlocked returns the identity keys blocker has blocked.
func (r *BlockRepository) ListBlocked(ctx context.Context, blocker string) ([]string, error) {
	rows, err := r.db.Query(ctx, listBlockedSQL, user.Key(blocker))
	if err != nil {
		return nil, fmt.Errorf("failed to list blocks: %w", err)
	}
	defer rows.Close()

	var blocked []string
	for rows.Next() {
		var tag string
		if err := rows.Scan(&tag); err != nil {
			return nil, fmt.Errorf("failed to scan block: %w", err)
		}
		blocked = append(blocked, tag)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate blocks: %w", err)
	}
	return blocked, nil
}
