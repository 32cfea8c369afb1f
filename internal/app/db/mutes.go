package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"loungechat/internal/app/moderation"
	"loungechat/internal/app/user"
)

const (
	getMuteSQL = `SELECT battle_tag, ends_at, kind, author, reason, inserted_at
FROM chat_mutes WHERE battle_tag = $1`

	upsertMuteSQL = `INSERT INTO chat_mutes (battle_tag, ends_at, kind, author, reason, inserted_at)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (battle_tag) DO UPDATE SET
    ends_at = EXCLUDED.ends_at,
    kind = EXCLUDED.kind,
    author = EXCLUDED.author,
    reason = EXCLUDED.reason,
    inserted_at = EXCLUDED.inserted_at`

	deleteMuteSQL = `DELETE FROM chat_mutes WHERE battle_tag = $1`

	listMutesSQL = `SELECT battle_tag, ends_at, kind, author, reason, inserted_at
FROM chat_mutes ORDER BY ends_at`
)

// MuteRepository stores mutes in PostgreSQL. It implements moderation.Repository.
type MuteRepository struct {
	db DBTX
}

// NewMuteRepository creates a MuteRepository on db.
func NewMuteRepository(db DBTX) *MuteRepository {
	return &MuteRepository{db: db}
}

func scanMute(row pgx.Row) (moderation.Mute, error) {
	var (
		m    moderation.Mute
		kind string
	)
	if err := row.Scan(&m.BattleTag, &m.EndsAt, &kind, &m.Author, &m.Reason, &m.InsertedAt); err != nil {
		return moderation.Mute{}, err
	}

	k, err := moderation.ParseKind(kind)
	if err != nil {
		return moderation.Mute{}, err
	}
	m.Kind = k
	m.EndsAt = m.EndsAt.UTC()
	m.InsertedAt = m.InsertedAt.UTC()
	return m, nil
}

// GetActiveMute implements moderation.Repository.
func (r *MuteRepository) GetActiveMute(ctx context.Context, battleTag string) (*moderation.Mute, error) {
	m, err := scanMute(r.db.QueryRow(ctx, getMuteSQL, user.Key(battleTag)))
	if isNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load mute: %w", err)
	}
	return &m, nil
}

// Upsert implements moderation.Repository.
func (r *MuteRepository) Upsert(ctx context.Context, m moderation.Mute) error {
	_, err := r.db.Exec(ctx, upsertMuteSQL,
		user.Key(m.BattleTag), m.EndsAt.UTC(), m.Kind.String(), m.Author, m.Reason, m.InsertedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to upsert mute: %w", err)
	}
	return nil
}

// Delete implements moderation.Repository.
func (r *MuteRepository) Delete(ctx context.Context, battleTag string) error {
	tag, err := r.db.Exec(ctx, deleteMuteSQL, user.Key(battleTag))
	if err != nil {
		return fmt.Errorf("failed to delete mute: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return moderation.ErrNotFound
	}
	return nil
}

// List implements moderation.Repository.
func (r *MuteRepository) List(ctx context.Context) ([]moderation.Mute, error) {
	rows, err := r.db.Query(ctx, listMutesSQL)
	if err != nil {
		return nil, fmt.Errorf("failed to list mutes: %w", err)
	}
	defer rows.Close()

	var mutes []moderation.Mute
	for rows.Next() {
		m, err := scanMute(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan mute: %w", err)
		}
		mutes = append(mutes, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate mutes: %w", err)
	}
	return mutes, nil
}
