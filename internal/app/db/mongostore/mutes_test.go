package mongostore

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"

	"loungechat/internal/app/moderation"
)

func TestLoungeMuteDoc_LegacyShadowBanFlag(t *testing.T) {
	ends := time.Date(2030, 5, 1, 12, 0, 0, 0, time.UTC)

	legacy := loungeMuteDoc{BattleTag: "Shady#1", EndDate: ends, IsShadowBan: true}
	m := legacy.toMute()
	assert.Equal(t, "shady#1", m.BattleTag)
	assert.Equal(t, moderation.KindShadowBan, m.Kind)

	assert.Equal(t, moderation.KindFull, loungeMuteDoc{BattleTag: "x#1", EndDate: ends}.toMute().Kind)

	withKind := loungeMuteDoc{BattleTag: "x#1", EndDate: ends, Kind: "friendsOnly"}
	assert.Equal(t, moderation.KindFriendsOnly, withKind.toMute().Kind)
}

func TestMuteToDoc_RoundTripsThroughBSON(t *testing.T) {
	m := moderation.Mute{
		BattleTag:  "Shady#1",
		EndsAt:     time.Date(2030, 5, 1, 12, 0, 0, 0, time.UTC),
		Kind:       moderation.KindShadowBan,
		Author:     "mod#1",
		Reason:     "spam",
		InsertedAt: time.Date(2030, 4, 1, 12, 0, 0, 0, time.UTC),
	}

	raw, err := bson.Marshal(muteToDoc(m))
	require.NoError(t, err)

	var fields bson.M
	require.NoError(t, bson.Unmarshal(raw, &fields))
	assert.Equal(t, "shady#1", fields["battleTag"])
	assert.Equal(t, true, fields["isShadowBan"])
	assert.Equal(t, "shadowBan", fields["kind"])

	var back loungeMuteDoc
	require.NoError(t, bson.Unmarshal(raw, &back))
	m.BattleTag = "shady#1"
	assert.Equal(t, m, back.toMute())
}

func TestChatBanDoc_ToMute(t *testing.T) {
	m, err := chatBanDoc{BattleTag: "Old#1", EndDate: "2031-02-03", BanReason: "flame"}.toMute()
	require.NoError(t, err)
	assert.Equal(t, "old#1", m.BattleTag)
	assert.Equal(t, moderation.KindFull, m.Kind)
	assert.Equal(t, time.Date(2031, 2, 3, 0, 0, 0, 0, time.UTC), m.EndsAt)
	assert.Equal(t, "flame", m.Reason)

	_, err = chatBanDoc{BattleTag: "Old#1", EndDate: "soon"}.toMute()
	assert.Error(t, err)
}

func TestBattleTagFilter_QuotesInput(t *testing.T) {
	f := battleTagFilter("BattleTag", " a.b#1 ")
	inner := f["BattleTag"].(bson.M)
	assert.Equal(t, `^a\.b#1$`, inner["$regex"])
	assert.Equal(t, "i", inner["$options"])
}
