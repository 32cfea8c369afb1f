/*
Package friends answers whether two players are friends.

Answers come from an external friend-check service and are cached per unordered
pair for a few minutes. When the service cannot be reached the answer is false,
so nothing that depends on friendship is ever delivered on an unverified pair.
*/
package friends

import (
	"context"
	"sync"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"github.com/rs/zerolog"

	"loungechat/internal/app/user"
	"loungechat/internal/pkg/logx"
)

const (
	DefaultTTL     = 5 * time.Minute
	DefaultTimeout = 3 * time.Second
)

// Checker asks the friend-check backend about one pair.
type Checker interface {
	CheckFriendship(ctx context.Context, a, b string) (bool, error)
}

// Cache is a TTL-bounded, read-mostly friendship lookup shared by all connections.
type Cache struct {
	checker   Checker
	entries   *ttlcache.Cache[string, bool]
	timeout   time.Duration
	logger    zerolog.Logger
	closeOnce sync.Once
}

// Options tunes a Cache; zero values fall back to the defaults.
type Options struct {
	TTL     time.Duration
	Timeout time.Duration
}

// NewCache creates a Cache over checker.
func NewCache(checker Checker, opts Options) *Cache {
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}

	// Answers expire a fixed TTL after the check; hits do not extend them.
	entries := ttlcache.New[string, bool](
		ttlcache.WithTTL[string, bool](opts.TTL),
		ttlcache.WithDisableTouchOnHit[string, bool](),
	)
	go entries.Start()

	return &Cache{
		checker: checker,
		entries: entries,
		timeout: opts.Timeout,
		logger:  logx.Component("FriendshipCache"),
	}
}

// Close stops the cache sweeper. It is safe to call more than once.
func (c *Cache) Close() {
	c.closeOnce.Do(c.entries.Stop)
}

// PairKey builds the order-independent, case-insensitive key of a pair.
func PairKey(a, b string) string {
	ka, kb := user.Key(a), user.Key(b)
	if kb < ka {
		ka, kb = kb, ka
	}
	return ka + "|" + kb
}

// AreFriends reports whether a and b are friends. A user is always their own friend.
func (c *Cache) AreFriends(ctx context.Context, a, b string) bool {
	if user.SameIdentity(a, b) {
		return true
	}

	key := PairKey(a, b)
	if item := c.entries.Get(key); item != nil {
		return item.Value()
	}

	checkCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	friends, err := c.checker.CheckFriendship(checkCtx, a, b)
	if err != nil {
		c.logger.Warn().Err(err).
			Str("a", a).
			Str("b", b).
			Msg("Friend check failed, treating pair as not friends")
		return false
	}

	c.entries.Set(key, friends, ttlcache.DefaultTTL)
	return friends
}
