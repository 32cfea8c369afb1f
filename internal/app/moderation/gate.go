package moderation

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"github.com/rs/zerolog"

	"loungechat/internal/app/user"
	"loungechat/internal/pkg/logx"
)

// Action is what the user is about to do.
type Action int

const (
	ActionEstablishSession Action = iota
	ActionSendPublicMessage
	ActionSendPrivateMessage
)

func (a Action) String() string {
	switch a {
	case ActionEstablishSession:
		return "establish-session"
	case ActionSendPublicMessage:
		return "send-public-message"
	case ActionSendPrivateMessage:
		return "send-private-message"
	default:
		return "unknown"
	}
}

// Outcome is the gate's verdict for an action.
type Outcome int

const (
	// OutcomeAllow lets the action through.
	OutcomeAllow Outcome = iota

	// OutcomeRejectTerminate refuses the action; the caller is sent the notice and disconnected.
	OutcomeRejectTerminate

	// OutcomeShadowEcho accepts a message but shows it to its author only.
	OutcomeShadowEcho

	// OutcomeFriendsOnly allows the message only towards friends of the author.
	OutcomeFriendsOnly
)

// Decision carries the outcome and, unless allowed, the mute that caused it.
type Decision struct {
	Outcome Outcome
	Mute    *Mute
}

// Allowed reports whether the action proceeds unchanged.
func (d Decision) Allowed() bool {
	return d.Outcome == OutcomeAllow
}

const defaultCacheTTL = 30 * time.Second

// Gate evaluates actions against the mute repository.
type Gate struct {
	repo      Repository
	cache     *ttlcache.Cache[string, *Mute]
	now       func() time.Time
	logger    zerolog.Logger
	closeOnce sync.Once
}

// GateOption customizes a Gate.
type GateOption func(*Gate)

// WithClock replaces time.Now for expiry checks.
func WithClock(now func() time.Time) GateOption {
	return func(g *Gate) { g.now = now }
}

// NewGate creates a Gate caching repository lookups for cacheTTL.
func NewGate(repo Repository, cacheTTL time.Duration, opts ...GateOption) *Gate {
	if cacheTTL <= 0 {
		cacheTTL = defaultCacheTTL
	}

	g := &Gate{
		repo:   repo,
		now:    time.Now,
		logger: logx.Component("ModerationGate"),
	}
	for _, opt := range opts {
		opt(g)
	}
	// A nil value caches "no mute" as well.
	g.cache = ttlcache.New[string, *Mute](
		ttlcache.WithTTL[string, *Mute](cacheTTL),
		ttlcache.WithDisableTouchOnHit[string, *Mute](),
	)
	go g.cache.Start()

	return g
}

// Close stops the lookup cache sweeper. It is safe to call more than once.
func (g *Gate) Close() {
	g.closeOnce.Do(g.cache.Stop)
}

// Evaluate returns the decision for battleTag performing action.
// A failing repository lookup allows the action and is logged.
func (g *Gate) Evaluate(ctx context.Context, battleTag string, action Action) Decision {
	mute, err := g.activeMute(ctx, battleTag)
	if err != nil {
		g.logger.Error().Err(err).
			Str("battle_tag", battleTag).
			Str("action", action.String()).
			Msg("Mute lookup failed, allowing action")
		return Decision{Outcome: OutcomeAllow}
	}
	if mute == nil {
		return Decision{Outcome: OutcomeAllow}
	}

	switch mute.Kind {
	case KindFull:
		return Decision{Outcome: OutcomeRejectTerminate, Mute: mute}
	case KindShadowBan:
		if action == ActionEstablishSession {
			return Decision{Outcome: OutcomeAllow}
		}
		return Decision{Outcome: OutcomeShadowEcho, Mute: mute}
	case KindFriendsOnly:
		if action == ActionEstablishSession {
			return Decision{Outcome: OutcomeAllow}
		}
		return Decision{Outcome: OutcomeFriendsOnly, Mute: mute}
	default:
		g.logger.Warn().Str("kind", mute.Kind.String()).Msg("Unknown mute kind treated as full mute")
		return Decision{Outcome: OutcomeRejectTerminate, Mute: mute}
	}
}

func (g *Gate) activeMute(ctx context.Context, battleTag string) (*Mute, error) {
	key := user.Key(battleTag)

	var mute *Mute
	if item := g.cache.Get(key); item != nil {
		mute = item.Value()
	} else {
		var err error
		mute, err = g.repo.GetActiveMute(ctx, key)
		if err != nil {
			return nil, err
		}
		g.cache.Set(key, mute, ttlcache.DefaultTTL)
	}

	if mute == nil || !mute.ActiveAt(g.now()) {
		return nil, nil
	}
	return mute, nil
}

// Upsert stores m and drops the cached lookup for its identity.
func (g *Gate) Upsert(ctx context.Context, m Mute) error {
	m.BattleTag = user.Key(m.BattleTag)
	if m.InsertedAt.IsZero() {
		m.InsertedAt = g.now().UTC()
	}

	if err := g.repo.Upsert(ctx, m); err != nil {
		return err
	}
	g.cache.Delete(m.BattleTag)

	g.logger.Info().
		Str("battle_tag", m.BattleTag).
		Str("kind", m.Kind.String()).
		Time("ends_at", m.EndsAt).
		Str("author", m.Author).
		Msg("Mute stored")
	return nil
}

// Delete removes the mute of battleTag and drops the cached lookup.
func (g *Gate) Delete(ctx context.Context, battleTag string) error {
	key := user.Key(battleTag)
	if err := g.repo.Delete(ctx, key); err != nil {
		return err
	}
	g.cache.Delete(key)

	g.logger.Info().Str("battle_tag", key).Msg("Mute removed")
	return nil
}

// ListActive returns the mutes still in force, soonest ending first.
func (g *Gate) ListActive(ctx context.Context) ([]Mute, error) {
	all, err := g.repo.List(ctx)
	if err != nil {
		return nil, err
	}

	now := g.now()
	active := make([]Mute, 0, len(all))
	for _, m := range all {
		if m.ActiveAt(now) {
			active = append(active, m)
		}
	}
	sort.Slice(active, func(i, j int) bool { return active[i].EndsAt.Before(active[j].EndsAt) })

	return active, nil
}
