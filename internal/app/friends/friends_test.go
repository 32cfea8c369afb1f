package friends

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubChecker struct {
	mu      sync.Mutex
	calls   int
	answer  bool
	err     error
	blockOn chan struct{}
}

func (s *stubChecker) CheckFriendship(ctx context.Context, _, _ string) (bool, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()

	if s.blockOn != nil {
		select {
		case <-s.blockOn:
		case <-ctx.Done():
			return false, ctx.Err()
		}
	}
	return s.answer, s.err
}

func (s *stubChecker) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func TestAreFriends_SelfIsTrivial(t *testing.T) {
	checker := &stubChecker{}
	c := NewCache(checker, Options{})
	defer c.Close()

	assert.True(t, c.AreFriends(context.Background(), "Moon#1", "moon#1"))
	assert.Equal(t, 0, checker.Calls())
}

func TestAreFriends_CachesSymmetricPair(t *testing.T) {
	checker := &stubChecker{answer: true}
	c := NewCache(checker, Options{})
	defer c.Close()
	ctx := context.Background()

	assert.True(t, c.AreFriends(ctx, "A#1", "B#2"))
	assert.True(t, c.AreFriends(ctx, "b#2", "a#1"))
	assert.Equal(t, 1, checker.Calls())
	assert.Equal(t, PairKey("A#1", "B#2"), PairKey("b#2", "a#1"))
}

func TestAreFriends_ExpiresAfterTTL(t *testing.T) {
	checker := &stubChecker{answer: false}
	c := NewCache(checker, Options{TTL: 20 * time.Millisecond})
	defer c.Close()
	ctx := context.Background()

	c.AreFriends(ctx, "a#1", "b#1")
	c.AreFriends(ctx, "a#1", "b#1")
	require.Equal(t, 1, checker.Calls())

	time.Sleep(40 * time.Millisecond)
	c.AreFriends(ctx, "a#1", "b#1")
	assert.Equal(t, 2, checker.Calls())
}

func TestClose_IsIdempotent(t *testing.T) {
	c := NewCache(&stubChecker{}, Options{})
	c.Close()
	c.Close()
}

func TestAreFriends_FailureIsFalseAndNotCached(t *testing.T) {
	checker := &stubChecker{answer: true, err: errors.New("boom")}
	c := NewCache(checker, Options{})
	defer c.Close()
	ctx := context.Background()

	assert.False(t, c.AreFriends(ctx, "a#1", "b#1"))

	checker.mu.Lock()
	checker.err = nil
	checker.mu.Unlock()

	assert.True(t, c.AreFriends(ctx, "a#1", "b#1"))
	assert.Equal(t, 2, checker.Calls())
}

func TestAreFriends_TimesOut(t *testing.T) {
	checker := &stubChecker{answer: true, blockOn: make(chan struct{})}
	c := NewCache(checker, Options{Timeout: 20 * time.Millisecond})
	defer c.Close()

	start := time.Now()
	assert.False(t, c.AreFriends(context.Background(), "a#1", "b#1"))
	assert.Less(t, time.Since(start), time.Second)
}

func TestHTTPChecker(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get(InternalSecretHeader) != "s3cret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		assert.Equal(t, "/api/friends/check", r.URL.Path)
		assert.Equal(t, "A#1", r.URL.Query().Get("battleTagA"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"areFriends":true}`))
	}))
	defer srv.Close()

	ok, err := NewHTTPChecker(srv.URL+"/", "s3cret", srv.Client()).CheckFriendship(context.Background(), "A#1", "B#2")
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = NewHTTPChecker(srv.URL, "wrong", srv.Client()).CheckFriendship(context.Background(), "A#1", "B#2")
	assert.Error(t, err)
}
