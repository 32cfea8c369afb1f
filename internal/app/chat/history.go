package chat

import (
	"sync"

	"loungechat/internal/app/message"
)

const (
	// DefaultMaxMessages is the retention ceiling of a room log.
	DefaultMaxMessages = 1000

	// DefaultVisibleMessages is the number of messages replayed on join.
	DefaultVisibleMessages = 100
)

// HistoryStore is the bounded, in-memory message log of every room.
// The store lock guards only the room map; each room log has its own lock.
// A room's entry is dropped once its log becomes empty, so ad-hoc rooms do not
// outlive their messages.
type HistoryStore struct {
	mu    sync.RWMutex
	rooms map[string]*roomLog

	maxMessages     int
	visibleMessages int
}

type roomLog struct {
	mu       sync.Mutex
	messages []message.Message
	removed  bool // unlinked from the room map; writers must look the room up again
}

// NewHistoryStore creates a store. Non-positive limits fall back to the defaults.
func NewHistoryStore(maxMessages, visibleMessages int) *HistoryStore {
	if maxMessages <= 0 {
		maxMessages = DefaultMaxMessages
	}
	if visibleMessages <= 0 {
		visibleMessages = DefaultVisibleMessages
	}
	if visibleMessages > maxMessages {
		visibleMessages = maxMessages
	}

	return &HistoryStore{
		rooms:           make(map[string]*roomLog),
		maxMessages:     maxMessages,
		visibleMessages: visibleMessages,
	}
}

func (h *HistoryStore) log(room string, create bool) *roomLog {
	h.mu.RLock()
	l, ok := h.rooms[room]
	h.mu.RUnlock()

	if ok || !create {
		return l
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if l, ok = h.rooms[room]; !ok {
		l = &roomLog{}
		h.rooms[room] = l
	}
	return l
}

func (h *HistoryStore) logs() map[string]*roomLog {
	h.mu.RLock()
	defer h.mu.RUnlock()

	logs := make(map[string]*roomLog, len(h.rooms))
	for room, l := range h.rooms {
		logs[room] = l
	}
	return logs
}

// dropIfEmpty unlinks the log of room when it holds no messages.
func (h *HistoryStore) dropIfEmpty(room string, l *roomLog) {
	h.mu.Lock()
	defer h.mu.Unlock()

	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.messages) == 0 && !l.removed && h.rooms[room] == l {
		l.removed = true
		delete(h.rooms, room)
	}
}

// RoomCount returns how many rooms currently hold a log.
func (h *HistoryStore) RoomCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return len(h.rooms)
}

// Append adds msg to room, evicting the oldest messages past the retention ceiling.
func (h *HistoryStore) Append(room string, msg message.Message) {
	l := h.log(room, true)
	l.mu.Lock()
	for l.removed {
		l.mu.Unlock()
		l = h.log(room, true)
		l.mu.Lock()
	}
	defer l.mu.Unlock()

	l.messages = append(l.messages, msg)
	if over := len(l.messages) - h.maxMessages; over > 0 {
		kept := make([]message.Message, h.maxMessages)
		copy(kept, l.messages[over:])
		l.messages = kept
	}
}

// RecentWindow returns the most recent visible messages of room, oldest first.
func (h *HistoryStore) RecentWindow(room string) []message.Message {
	return h.tail(room, h.visibleMessages)
}

// FullLog returns every retained message of room, oldest first.
func (h *HistoryStore) FullLog(room string) []message.Message {
	return h.tail(room, h.maxMessages)
}

func (h *HistoryStore) tail(room string, n int) []message.Message {
	l := h.log(room, false)
	if l == nil {
		return []message.Message{}
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	start := max(len(l.messages)-n, 0)
	out := make([]message.Message, len(l.messages)-start)
	copy(out, l.messages[start:])
	return out
}

// DeleteByID removes the message with id from whichever room holds it.
func (h *HistoryStore) DeleteByID(id string) (message.Message, bool) {
	for room, l := range h.logs() {
		l.mu.Lock()
		for i, m := range l.messages {
			if m.ID == id {
				l.messages = append(l.messages[:i:i], l.messages[i+1:]...)
				empty := len(l.messages) == 0
				l.mu.Unlock()

				if empty {
					h.dropIfEmpty(room, l)
				}
				return m, true
			}
		}
		l.mu.Unlock()
	}
	return message.Message{}, false
}

// PurgeByAuthor removes every message written by battleTag in every room and returns them.
func (h *HistoryStore) PurgeByAuthor(battleTag string) []message.Message {
	purged := []message.Message{}

	for room, l := range h.logs() {
		l.mu.Lock()
		kept := l.messages[:0:0]
		for _, m := range l.messages {
			if m.AuthoredBy(battleTag) {
				purged = append(purged, m)
			} else {
				kept = append(kept, m)
			}
		}
		l.messages = kept
		l.mu.Unlock()

		if len(kept) == 0 {
			h.dropIfEmpty(room, l)
		}
	}

	return purged
}

// ClearRoom drops the whole log of room and returns how many messages it held.
func (h *HistoryStore) ClearRoom(room string) int {
	h.mu.Lock()
	l, ok := h.rooms[room]
	delete(h.rooms, room)
	h.mu.Unlock()

	if !ok {
		return 0
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	n := len(l.messages)
	l.messages = nil
	l.removed = true
	return n
}

// Limits returns the retention ceiling and the visible window size.
func (h *HistoryStore) Limits() (maxMessages, visibleMessages int) {
	return h.maxMessages, h.visibleMessages
}
