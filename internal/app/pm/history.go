package pm

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"github.com/redis/go-redis/v9"

	"loungechat/internal/app/event"
	"loungechat/internal/app/friends"
	"loungechat/internal/app/user"
)

const (
	// HistoryTTL is the sliding lifetime of a pair conversation.
	HistoryTTL = 7 * 24 * time.Hour

	// HistoryCap is the number of messages kept per pair.
	HistoryCap = 200
)

// History stores delivered private messages per unordered pair.
type History interface {
	Append(ctx context.Context, a, b string, m event.PrivateMessage) error
	Recent(ctx context.Context, a, b string, limit int) ([]event.PrivateMessage, error)
}

// MemoryHistory keeps pair conversations in process memory. Reading or writing a
// conversation extends its lifetime; reading a missing one stores nothing.
type MemoryHistory struct {
	mu        sync.Mutex
	entries   *ttlcache.Cache[string, []event.PrivateMessage]
	closeOnce sync.Once
}

// NewMemoryHistory creates an empty MemoryHistory whose conversations live for ttl
// after their last use. A zero ttl means HistoryTTL.
func NewMemoryHistory(ttl time.Duration) *MemoryHistory {
	if ttl <= 0 {
		ttl = HistoryTTL
	}

	entries := ttlcache.New[string, []event.PrivateMessage](
		ttlcache.WithTTL[string, []event.PrivateMessage](ttl),
	)
	go entries.Start()

	return &MemoryHistory{entries: entries}
}

// Close stops the expiry sweeper. It is safe to call more than once.
func (h *MemoryHistory) Close() {
	h.closeOnce.Do(h.entries.Stop)
}

// Len returns the number of stored conversations.
func (h *MemoryHistory) Len() int {
	return h.entries.Len()
}

func (h *MemoryHistory) Append(_ context.Context, a, b string, m event.PrivateMessage) error {
	key := friends.PairKey(a, b)

	h.mu.Lock()
	defer h.mu.Unlock()

	var cur []event.PrivateMessage
	if item := h.entries.Get(key); item != nil {
		cur = item.Value()
	}
	next := append(cur[:len(cur):len(cur)], m)
	if over := len(next) - HistoryCap; over > 0 {
		next = next[over:]
	}
	h.entries.Set(key, next, ttlcache.DefaultTTL)
	return nil
}

func (h *MemoryHistory) Recent(_ context.Context, a, b string, limit int) ([]event.PrivateMessage, error) {
	item := h.entries.Get(friends.PairKey(a, b))
	if item == nil {
		return nil, nil
	}

	cur := item.Value()
	start := max(len(cur)-limit, 0)
	out := make([]event.PrivateMessage, len(cur)-start)
	copy(out, cur[start:])
	return out, nil
}

// RedisHistory keeps pair conversations in Redis lists with a sliding expiry.
type RedisHistory struct {
	client *redis.Client
}

// NewRedisHistory creates a RedisHistory on client.
func NewRedisHistory(client *redis.Client) *RedisHistory {
	return &RedisHistory{client: client}
}

// HistoryKey is the Redis key of a pair conversation.
func HistoryKey(a, b string) string {
	ka, kb := user.Key(a), user.Key(b)
	if kb < ka {
		ka, kb = kb, ka
	}
	return fmt.Sprintf("pm:history:%s:%s", ka, kb)
}

func (h *RedisHistory) Append(ctx context.Context, a, b string, m event.PrivateMessage) error {
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("marshal private message: %w", err)
	}

	key := HistoryKey(a, b)
	pipe := h.client.TxPipeline()
	pipe.RPush(ctx, key, data)
	pipe.LTrim(ctx, key, -HistoryCap, -1)
	pipe.Expire(ctx, key, HistoryTTL)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("append private message history: %w", err)
	}
	return nil
}

func (h *RedisHistory) Recent(ctx context.Context, a, b string, limit int) ([]event.PrivateMessage, error) {
	key := HistoryKey(a, b)

	raw, err := h.client.LRange(ctx, key, int64(-limit), -1).Result()
	if err != nil {
		return nil, fmt.Errorf("read private message history: %w", err)
	}
	if len(raw) > 0 {
		h.client.Expire(ctx, key, HistoryTTL)
	}

	out := make([]event.PrivateMessage, 0, len(raw))
	for _, item := range raw {
		var m event.PrivateMessage
		if err := json.Unmarshal([]byte(item), &m); err != nil {
			return nil, fmt.Errorf("decode private message history: %w", err)
		}
		out = append(out, m)
	}
	return out, nil
}
