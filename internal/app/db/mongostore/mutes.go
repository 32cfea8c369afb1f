package mongostore

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"loungechat/internal/app/moderation"
	"loungechat/internal/app/user"
)

const (
	// LoungeMuteCollection holds the current mute documents.
	LoungeMuteCollection = "LoungeMute"

	// ChatBanCollection holds legacy bans, which are read as full mutes.
	ChatBanCollection = "ChatBan"
)

// loungeMuteDoc is the stored shape of a mute. isShadowBan is kept for older readers.
type loungeMuteDoc struct {
	BattleTag   string    `bson:"battleTag"`
	EndDate     time.Time `bson:"endDate"`
	InsertDate  time.Time `bson:"insertDate"`
	Author      string    `bson:"author"`
	Reason      string    `bson:"reason"`
	IsShadowBan bool      `bson:"isShadowBan"`
	Kind        string    `bson:"kind,omitempty"`
}

func (d loungeMuteDoc) toMute() moderation.Mute {
	kind := moderation.KindFromLegacy(d.IsShadowBan)
	if d.Kind != "" {
		if k, err := moderation.ParseKind(d.Kind); err == nil {
			kind = k
		}
	}

	return moderation.Mute{
		BattleTag:  user.Key(d.BattleTag),
		EndsAt:     d.EndDate.UTC(),
		Kind:       kind,
		Author:     d.Author,
		Reason:     d.Reason,
		InsertedAt: d.InsertDate.UTC(),
	}
}

func muteToDoc(m moderation.Mute) loungeMuteDoc {
	return loungeMuteDoc{
		BattleTag:   user.Key(m.BattleTag),
		EndDate:     m.EndsAt.UTC(),
		InsertDate:  m.InsertedAt.UTC(),
		Author:      m.Author,
		Reason:      m.Reason,
		IsShadowBan: m.Kind == moderation.KindShadowBan,
		Kind:        m.Kind.String(),
	}
}

// chatBanDoc is the legacy ban shape; EndDate is a "yyyy-MM-dd" string.
type chatBanDoc struct {
	BattleTag string `bson:"BattleTag"`
	EndDate   string `bson:"EndDate"`
	BanReason string `bson:"BanReason"`
}

func (d chatBanDoc) toMute() (moderation.Mute, error) {
	ends, err := moderation.ParseEndDate(d.EndDate)
	if err != nil {
		return moderation.Mute{}, fmt.Errorf("legacy ban of %s: %w", d.BattleTag, err)
	}

	return moderation.Mute{
		BattleTag: user.Key(d.BattleTag),
		EndsAt:    ends,
		Kind:      moderation.KindFull,
		Reason:    d.BanReason,
	}, nil
}

// MuteRepository implements moderation.Repository on MongoDB. Writes go to LoungeMute;
// reads also consult the legacy ChatBan collection.
type MuteRepository struct {
	mutes *mongo.Collection
	bans  *mongo.Collection
}

// NewMuteRepository creates a MuteRepository on the given database.
func NewMuteRepository(db *MongoDB) *MuteRepository {
	return &MuteRepository{
		mutes: db.GetCollection(LoungeMuteCollection),
		bans:  db.GetCollection(ChatBanCollection),
	}
}

// battleTagFilter matches a battle tag case-insensitively.
func battleTagFilter(field, battleTag string) bson.M {
	return bson.M{field: bson.M{"$regex": "^" + regexp.QuoteMeta(strings.TrimSpace(battleTag)) + "$", "$options": "i"}}
}

// GetActiveMute implements moderation.Repository. A LoungeMute wins over a legacy ban.
func (r *MuteRepository) GetActiveMute(ctx context.Context, battleTag string) (*moderation.Mute, error) {
	var doc loungeMuteDoc
	err := r.mutes.FindOne(ctx, bson.M{"battleTag": user.Key(battleTag)}).Decode(&doc)
	switch {
	case err == nil:
		m := doc.toMute()
		return &m, nil
	case !errors.Is(err, mongo.ErrNoDocuments):
		return nil, fmt.Errorf("failed to load mute: %w", err)
	}

	var ban chatBanDoc
	err = r.bans.FindOne(ctx, battleTagFilter("BattleTag", battleTag)).Decode(&ban)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load legacy ban: %w", err)
	}

	m, err := ban.toMute()
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// Upsert implements moderation.Repository.
func (r *MuteRepository) Upsert(ctx context.Context, m moderation.Mute) error {
	doc := muteToDoc(m)
	opts := options.FindOneAndReplace().SetUpsert(true)

	err := r.mutes.FindOneAndReplace(ctx, bson.M{"battleTag": doc.BattleTag}, doc, opts).Err()
	if err != nil && !errors.Is(err, mongo.ErrNoDocuments) {
		return fmt.Errorf("failed to upsert mute: %w", err)
	}
	return nil
}

// Delete implements moderation.Repository. It removes both the mute and any legacy ban.
func (r *MuteRepository) Delete(ctx context.Context, battleTag string) error {
	muteRes, err := r.mutes.DeleteMany(ctx, bson.M{"battleTag": user.Key(battleTag)})
	if err != nil {
		return fmt.Errorf("failed to delete mute: %w", err)
	}

	banRes, err := r.bans.DeleteMany(ctx, battleTagFilter("BattleTag", battleTag))
	if err != nil {
		return fmt.Errorf("failed to delete legacy ban: %w", err)
	}

	if muteRes.DeletedCount+banRes.DeletedCount == 0 {
		return moderation.ErrNotFound
	}
	return nil
}

// List implements moderation.Repository. Malformed legacy bans are skipped.
func (r *MuteRepository) List(ctx context.Context) ([]moderation.Mute, error) {
	byTag := make(map[string]moderation.Mute)

	banCursor, err := r.bans.Find(ctx, bson.M{})
	if err != nil {
		return nil, fmt.Errorf("failed to list legacy bans: %w", err)
	}
	var bans []chatBanDoc
	if err := banCursor.All(ctx, &bans); err != nil {
		return nil, fmt.Errorf("failed to decode legacy bans: %w", err)
	}
	for _, b := range bans {
		if m, err := b.toMute(); err == nil {
			byTag[m.BattleTag] = m
		}
	}

	muteCursor, err := r.mutes.Find(ctx, bson.M{})
	if err != nil {
		return nil, fmt.Errorf("failed to list mutes: %w", err)
	}
	var docs []loungeMuteDoc
	if err := muteCursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode mutes: %w", err)
	}
	for _, d := range docs {
		m := d.toMute()
		byTag[m.BattleTag] = m
	}

	mutes := make([]moderation.Mute, 0, len(byTag))
	for _, m := range byTag {
		mutes = append(mutes, m)
	}
	sort.Slice(mutes, func(i, j int) bool { return mutes[i].EndsAt.Before(mutes[j].EndsAt) })
	return mutes, nil
}
