package chat

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"loungechat/internal/app/message"
)

func msgBy(tag, text string) message.Message {
	return message.NewAt(testUser(tag), text, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
}

func TestHistory_BoundedRetention(t *testing.T) {
	h := NewHistoryStore(10, 4)

	var all []message.Message
	for i := range 25 {
		m := msgBy("a#1", fmt.Sprintf("m%d", i))
		all = append(all, m)
		h.Append("Lounge", m)
	}

	full := h.FullLog("Lounge")
	require.Len(t, full, 10)
	assert.Equal(t, all[15:], full)
}

func TestHistory_RecentWindowIsSuffix(t *testing.T) {
	h := NewHistoryStore(10, 4)

	for i := range 7 {
		h.Append("Lounge", msgBy("a#1", fmt.Sprintf("m%d", i)))
	}

	full := h.FullLog("Lounge")
	recent := h.RecentWindow("Lounge")
	require.Len(t, recent, 4)
	assert.Equal(t, full[len(full)-4:], recent)
	assert.Equal(t, "m6", recent[3].Text)

	assert.Empty(t, h.RecentWindow("nowhere"))
	assert.NotNil(t, h.FullLog("nowhere"))
}

func TestHistory_ReturnsCopies(t *testing.T) {
	h := NewHistoryStore(10, 10)
	h.Append("Lounge", msgBy("a#1", "hi"))

	got := h.FullLog("Lounge")
	got[0].Text = "tampered"

	assert.Equal(t, "hi", h.FullLog("Lounge")[0].Text)
}

func TestHistory_DeleteByID(t *testing.T) {
	h := NewHistoryStore(0, 0)
	m1 := msgBy("a#1", "one")
	m2 := msgBy("b#1", "two")
	h.Append("Lounge", m1)
	h.Append("FFA", m2)

	got, ok := h.DeleteByID(m2.ID)
	require.True(t, ok)
	assert.Equal(t, m2, got)
	assert.Empty(t, h.FullLog("FFA"))

	_, ok = h.DeleteByID(m2.ID)
	assert.False(t, ok)
	assert.Equal(t, []message.Message{m1}, h.FullLog("Lounge"))
}

func TestHistory_PurgeByAuthor(t *testing.T) {
	h := NewHistoryStore(0, 0)
	x1 := msgBy("X#1", "x1")
	y1 := msgBy("y#1", "y1")
	x2 := msgBy("x#1", "x2")
	h.Append("Lounge", x1)
	h.Append("Lounge", y1)
	h.Append("FFA", x2)

	purged := h.PurgeByAuthor("x#1")
	assert.ElementsMatch(t, []message.Message{x1, x2}, purged)
	assert.Equal(t, []message.Message{y1}, h.FullLog("Lounge"))
	assert.Empty(t, h.FullLog("FFA"))

	none := h.PurgeByAuthor("nobody#1")
	assert.NotNil(t, none)
	assert.Empty(t, none)
}

func TestHistory_ClearRoom(t *testing.T) {
	h := NewHistoryStore(0, 0)
	h.Append("Lounge", msgBy("a#1", "one"))
	h.Append("Lounge", msgBy("a#1", "two"))

	assert.Equal(t, 2, h.ClearRoom("Lounge"))
	assert.Empty(t, h.FullLog("Lounge"))
	assert.Equal(t, 0, h.ClearRoom("Lounge"))
}

func TestHistory_ConcurrentAppendAndDelete(t *testing.T) {
	h := NewHistoryStore(1000, 100)
	var wg sync.WaitGroup

	keep := make(chan message.Message, 200)
	drop := make(chan message.Message, 200)

	for i := range 200 {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			m := msgBy("a#1", fmt.Sprintf("m%d", i))
			h.Append(fmt.Sprintf("room-%d", i%3), m)
			if i%2 == 0 {
				drop <- m
			} else {
				keep <- m
			}
		}(i)
	}
	wg.Wait()
	close(drop)
	close(keep)

	for m := range drop {
		_, ok := h.DeleteByID(m.ID)
		assert.True(t, ok)
	}

	total := 0
	for i := range 3 {
		total += len(h.FullLog(fmt.Sprintf("room-%d", i)))
	}
	assert.Equal(t, len(keep), total)
}

func TestNewHistoryStore_ClampsWindow(t *testing.T) {
	h := NewHistoryStore(5, 50)
	maxMessages, visible := h.Limits()
	assert.Equal(t, 5, maxMessages)
	assert.Equal(t, 5, visible)
}

func TestHistory_EmptiedRoomsAreDropped(t *testing.T) {
	h := NewHistoryStore(0, 0)
	one := msgBy("a#1", "one")
	h.Append("scratch-1", one)
	h.Append("scratch-2", msgBy("b#1", "two"))
	h.Append("Lounge", msgBy("c#1", "stay"))
	require.Equal(t, 3, h.RoomCount())

	_, ok := h.DeleteByID(one.ID)
	require.True(t, ok)
	assert.Equal(t, 2, h.RoomCount())

	assert.Len(t, h.PurgeByAuthor("b#1"), 1)
	assert.Equal(t, 1, h.RoomCount())

	h.Append("scratch-1", msgBy("a#1", "back"))
	assert.Len(t, h.FullLog("scratch-1"), 1)
	assert.Equal(t, 2, h.RoomCount())
}

func TestHistory_AppendRacingWithPurgeIsNotLost(t *testing.T) {
	h := NewHistoryStore(1000, 100)
	var wg sync.WaitGroup

	for i := range 100 {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			h.Append("scratch", msgBy("keep#1", fmt.Sprintf("k%d", i)))
		}(i)
		go func(i int) {
			defer wg.Done()
			h.Append("scratch", msgBy("spam#1", fmt.Sprintf("s%d", i)))
			h.PurgeByAuthor("spam#1")
		}(i)
	}
	wg.Wait()

	h.PurgeByAuthor("spam#1")
	assert.Len(t, h.FullLog("scratch"), 100)
}
