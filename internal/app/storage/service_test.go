package storage

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"loungechat/internal/app/message"
	"loungechat/internal/app/user"
)

type memoryStore struct {
	objects map[string][]byte
	types   map[string]string
	err     error
}

func (m *memoryStore) Put(_ context.Context, key, contentType string, body []byte) error {
	if m.err != nil {
		return m.err
	}
	m.objects[key] = body
	m.types[key] = contentType
	return nil
}

func TestArchiver_ArchiveRemoved(t *testing.T) {
	store := &memoryStore{objects: map[string][]byte{}, types: map[string]string{}}
	a := NewArchiver(store, "moderation")
	a.now = func() time.Time { return time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC) }

	msg := message.New(user.New("Alice#1", false, user.Cosmetics{}), "bad words")
	require.NoError(t, a.ArchiveRemoved(context.Background(), "purge", "mod#1", []message.Message{msg}))

	require.Len(t, store.objects, 1)
	for key, body := range store.objects {
		assert.True(t, strings.HasPrefix(key, "moderation/2026/03/04/"), key)
		assert.True(t, strings.HasSuffix(key, ".json"), key)
		assert.Contains(t, key, "-purge-")
		assert.Equal(t, "application/json", store.types[key])

		var rec AuditRecord
		require.NoError(t, json.Unmarshal(body, &rec))
		assert.Equal(t, "purge", rec.Action)
		assert.Equal(t, "mod#1", rec.Actor)
		require.Len(t, rec.Messages, 1)
		assert.Equal(t, msg.ID, rec.Messages[0].ID)
	}
}

func TestArchiver_PropagatesStoreErrors(t *testing.T) {
	store := &memoryStore{err: errors.New("bucket gone")}
	err := NewArchiver(store, "moderation").ArchiveRemoved(context.Background(), "delete", "mod#1", nil)
	assert.Error(t, err)
}
