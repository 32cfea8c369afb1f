package moderation

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

type countingRepo struct {
	*MemoryRepository
	mu      sync.Mutex
	lookups int
	failGet error
}

func (r *countingRepo) GetActiveMute(ctx context.Context, battleTag string) (*Mute, error) {
	r.mu.Lock()
	r.lookups++
	fail := r.failGet
	r.mu.Unlock()
	if fail != nil {
		return nil, fail
	}
	return r.MemoryRepository.GetActiveMute(ctx, battleTag)
}

func newTestGate(t *testing.T, now *time.Time) (*Gate, *countingRepo) {
	t.Helper()
	repo := &countingRepo{MemoryRepository: NewMemoryRepository()}
	g := NewGate(repo, time.Minute, WithClock(func() time.Time { return *now }))
	t.Cleanup(g.Close)
	return g, repo
}

func TestGate_DecisionTable(t *testing.T) {
	cases := []struct {
		name    string
		kind    *Kind
		action  Action
		outcome Outcome
	}{
		{"no mute public", nil, ActionSendPublicMessage, OutcomeAllow},
		{"no mute session", nil, ActionEstablishSession, OutcomeAllow},
		{"full public", kindPtr(KindFull), ActionSendPublicMessage, OutcomeRejectTerminate},
		{"full session", kindPtr(KindFull), ActionEstablishSession, OutcomeRejectTerminate},
		{"full private", kindPtr(KindFull), ActionSendPrivateMessage, OutcomeRejectTerminate},
		{"shadow public", kindPtr(KindShadowBan), ActionSendPublicMessage, OutcomeShadowEcho},
		{"shadow session", kindPtr(KindShadowBan), ActionEstablishSession, OutcomeAllow},
		{"friends-only public", kindPtr(KindFriendsOnly), ActionSendPublicMessage, OutcomeFriendsOnly},
		{"friends-only private", kindPtr(KindFriendsOnly), ActionSendPrivateMessage, OutcomeFriendsOnly},
		{"friends-only session", kindPtr(KindFriendsOnly), ActionEstablishSession, OutcomeAllow},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			now := t0
			g, repo := newTestGate(t, &now)
			ctx := context.Background()

			if tc.kind != nil {
				require.NoError(t, repo.Upsert(ctx, Mute{
					BattleTag: "Target#1",
					EndsAt:    t0.Add(time.Hour),
					Kind:      *tc.kind,
					Reason:    "spam",
				}))
			}

			d := g.Evaluate(ctx, "target#1", tc.action)
			assert.Equal(t, tc.outcome, d.Outcome)
			if tc.outcome != OutcomeAllow {
				require.NotNil(t, d.Mute)
				assert.Equal(t, "spam", d.Mute.Reason)
			}
		})
	}
}

func TestGate_ExpiredMuteIsAbsent(t *testing.T) {
	now := t0
	g, repo := newTestGate(t, &now)
	ctx := context.Background()

	require.NoError(t, repo.Upsert(ctx, Mute{BattleTag: "a#1", EndsAt: t0.Add(time.Minute), Kind: KindFull}))
	assert.Equal(t, OutcomeRejectTerminate, g.Evaluate(ctx, "a#1", ActionSendPublicMessage).Outcome)

	now = t0.Add(time.Minute)
	assert.Equal(t, OutcomeAllow, g.Evaluate(ctx, "a#1", ActionSendPublicMessage).Outcome)
}

func TestGate_CachesLookupsAndInvalidatesOnWrite(t *testing.T) {
	now := t0
	g, repo := newTestGate(t, &now)
	ctx := context.Background()

	g.Evaluate(ctx, "a#1", ActionSendPublicMessage)
	g.Evaluate(ctx, "A#1", ActionSendPublicMessage)
	assert.Equal(t, 1, repo.lookups)

	require.NoError(t, g.Upsert(ctx, Mute{BattleTag: "A#1", EndsAt: t0.Add(time.Hour), Kind: KindShadowBan}))
	d := g.Evaluate(ctx, "a#1", ActionSendPublicMessage)
	assert.Equal(t, OutcomeShadowEcho, d.Outcome)
	assert.Equal(t, 2, repo.lookups)

	require.NoError(t, g.Delete(ctx, "a#1"))
	assert.Equal(t, OutcomeAllow, g.Evaluate(ctx, "a#1", ActionSendPublicMessage).Outcome)
}

func TestGate_LookupFailureAllows(t *testing.T) {
	now := t0
	g, repo := newTestGate(t, &now)
	repo.failGet = errors.New("db down")

	d := g.Evaluate(context.Background(), "a#1", ActionSendPublicMessage)
	assert.True(t, d.Allowed())
}

func TestGate_ListActiveSkipsExpired(t *testing.T) {
	now := t0
	g, repo := newTestGate(t, &now)
	ctx := context.Background()

	require.NoError(t, repo.Upsert(ctx, Mute{BattleTag: "late#1", EndsAt: t0.Add(2 * time.Hour)}))
	require.NoError(t, repo.Upsert(ctx, Mute{BattleTag: "soon#1", EndsAt: t0.Add(time.Hour)}))
	require.NoError(t, repo.Upsert(ctx, Mute{BattleTag: "gone#1", EndsAt: t0.Add(-time.Hour)}))

	active, err := g.ListActive(ctx)
	require.NoError(t, err)
	require.Len(t, active, 2)
	assert.Equal(t, "soon#1", active[0].BattleTag)
	assert.Equal(t, "late#1", active[1].BattleTag)
}

func TestKind_JSONAndLegacy(t *testing.T) {
	b, err := json.Marshal(KindShadowBan)
	require.NoError(t, err)
	assert.JSONEq(t, `"shadowBan"`, string(b))

	var k Kind
	require.NoError(t, json.Unmarshal([]byte(`"FRIENDSONLY"`), &k))
	assert.Equal(t, KindFriendsOnly, k)
	assert.Error(t, json.Unmarshal([]byte(`"forever"`), &k))

	assert.Equal(t, KindShadowBan, KindFromLegacy(true))
	assert.Equal(t, KindFull, KindFromLegacy(false))
}

func TestParseEndDate(t *testing.T) {
	d, err := ParseEndDate("2024-05-01")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC), d)

	d, err = ParseEndDate("2024-05-01T10:30:00+02:00")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 5, 1, 8, 30, 0, 0, time.UTC), d)

	_, err = ParseEndDate("next tuesday")
	assert.Error(t, err)
}

func kindPtr(k Kind) *Kind { return &k }
