/*
Package chat contains the session and room orchestration of the lounge chat.

This file defines the Registry, the single source of truth for which connection
is in which room as which user. The room index, the connection index and the
per-user index are guarded by one lock, so readers never observe a connection
that is present in one index and missing from another.
*/
package chat

import (
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"loungechat/internal/app/user"
	"loungechat/internal/pkg/logx"
)

// Connection is a registered connection with its room and user.
type Connection struct {
	Key  string
	Room string
	User user.User

	seq uint64
}

// Registry tracks live connections by key, by room and by user.
type Registry struct {
	mu sync.RWMutex

	// conns is keyed by connection key.
	conns map[string]*Connection

	// rooms maps a room key to the set of connection keys in it.
	rooms map[string]map[string]struct{}

	// byUser maps a lower-cased battle tag to that user's connection keys.
	byUser map[string]map[string]struct{}

	// seq orders registrations so the most recent connection of a user can be found.
	seq uint64

	logger zerolog.Logger
}

// NewRegistry constructs an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		conns:  make(map[string]*Connection),
		rooms:  make(map[string]map[string]struct{}),
		byUser: make(map[string]map[string]struct{}),
		logger: logx.Component("SessionRegistry"),
	}
}

// Add registers connKey in room as u. It reports whether anything changed: adding a
// connection already in room is a no-op, and adding one registered in another room is
// refused (use Move).
func (r *Registry) Add(connKey, room string, u user.User) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.conns[connKey]; ok {
		if existing.Room != room {
			r.logger.Warn().
				Str("conn", connKey).
				Str("current_room", existing.Room).
				Str("requested_room", room).
				Msg("Connection already registered in another room, add refused")
		}
		return false
	}

	r.seq++
	c := &Connection{Key: connKey, Room: room, User: u, seq: r.seq}
	r.conns[connKey] = c
	addToSet(r.rooms, room, connKey)
	addToSet(r.byUser, user.Key(u.BattleTag), connKey)

	return true
}

// Move atomically transfers connKey to newRoom and returns the room it left.
// ok is false if the connection is unknown.
func (r *Registry) Move(connKey, newRoom string) (oldRoom string, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.conns[connKey]
	if !ok {
		return "", false
	}

	oldRoom = c.Room
	if oldRoom == newRoom {
		return oldRoom, true
	}

	removeFromSet(r.rooms, oldRoom, connKey)
	c.Room = newRoom
	addToSet(r.rooms, newRoom, connKey)

	return oldRoom, true
}

// Remove unregisters connKey and returns what it was registered as.
func (r *Registry) Remove(connKey string) (Connection, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.conns[connKey]
	if !ok {
		return Connection{}, false
	}

	delete(r.conns, connKey)
	removeFromSet(r.rooms, c.Room, connKey)
	removeFromSet(r.byUser, user.Key(c.User.BattleTag), connKey)

	return *c, true
}

// GetUser returns the user of connKey.
func (r *Registry) GetUser(connKey string) (user.User, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.conns[connKey]
	if !ok {
		return user.User{}, false
	}
	return c.User, true
}

// GetRoom returns the room of connKey.
func (r *Registry) GetRoom(connKey string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.conns[connKey]
	if !ok {
		return "", false
	}
	return c.Room, true
}

// Get returns the full registration of connKey.
func (r *Registry) Get(connKey string) (Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.conns[connKey]
	if !ok {
		return Connection{}, false
	}
	return *c, true
}

// GetUsersOfRoom returns the users in room sorted by battle tag, one entry per connection.
func (r *Registry) GetUsersOfRoom(room string) []user.User {
	r.mu.RLock()
	defer r.mu.RUnlock()

	users := make([]user.User, 0, len(r.rooms[room]))
	for key := range r.rooms[room] {
		users = append(users, r.conns[key].User)
	}

	sort.SliceStable(users, func(i, j int) bool {
		return user.Key(users[i].BattleTag) < user.Key(users[j].BattleTag)
	})
	return users
}

// GetConnectionsOfRoom returns the connection keys in room.
func (r *Registry) GetConnectionsOfRoom(room string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return setKeys(r.rooms[room])
}

// GetConnectionByUser returns the most recently registered connection of battleTag.
// ok is false when the user is offline.
func (r *Registry) GetConnectionByUser(battleTag string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var (
		best    *Connection
		bestKey string
	)
	for key := range r.byUser[user.Key(battleTag)] {
		c := r.conns[key]
		if best == nil || c.seq > best.seq {
			best, bestKey = c, key
		}
	}
	return bestKey, best != nil
}

// GetConnectionsByUser returns every connection key of battleTag.
func (r *Registry) GetConnectionsByUser(battleTag string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return setKeys(r.byUser[user.Key(battleTag)])
}

// AllConnections returns every registered connection key.
func (r *Registry) AllConnections() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	keys := make([]string, 0, len(r.conns))
	for key := range r.conns {
		keys = append(keys, key)
	}
	return keys
}

// UpdateUser replaces the user of connKey with fn(current) and returns the result.
func (r *Registry) UpdateUser(connKey string, fn func(user.User) user.User) (Connection, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.conns[connKey]
	if !ok {
		return Connection{}, false
	}
	updated := fn(c.User)
	if !user.SameIdentity(updated.BattleTag, c.User.BattleTag) {
		r.logger.Warn().Str("conn", connKey).Msg("UpdateUser may not change the identity, ignored")
		return *c, false
	}
	c.User = updated
	return *c, true
}

// RoomCounts returns the number of connections per non-empty room.
func (r *Registry) RoomCounts() map[string]int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	counts := make(map[string]int, len(r.rooms))
	for room, members := range r.rooms {
		counts[room] = len(members)
	}
	return counts
}

func addToSet(index map[string]map[string]struct{}, key, member string) {
	set, ok := index[key]
	if !ok {
		set = make(map[string]struct{})
		index[key] = set
	}
	set[member] = struct{}{}
}

func removeFromSet(index map[string]map[string]struct{}, key, member string) {
	set, ok := index[key]
	if !ok {
		return
	}
	delete(set, member)
	if len(set) == 0 {
		delete(index, key)
	}
}

func setKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for key := range set {
		keys = append(keys, key)
	}
	return keys
}
