package chat

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"loungechat/internal/app/user"
)

func testUser(tag string) user.User {
	return user.New(tag, false, user.Cosmetics{ProfilePicture: user.DefaultProfilePicture()})
}

func TestRegistry_AddIsIdempotent(t *testing.T) {
	r := NewRegistry()
	a := testUser("Alice#1")

	assert.True(t, r.Add("c1", "Lounge", a))
	assert.False(t, r.Add("c1", "Lounge", a))

	assert.Equal(t, []user.User{a}, r.GetUsersOfRoom("Lounge"))
	assert.Equal(t, []string{"c1"}, r.GetConnectionsOfRoom("Lounge"))
}

func TestRegistry_AddRefusesSecondRoom(t *testing.T) {
	r := NewRegistry()
	a := testUser("Alice#1")

	require.True(t, r.Add("c1", "Lounge", a))
	assert.False(t, r.Add("c1", "1 vs 1", a))

	room, ok := r.GetRoom("c1")
	require.True(t, ok)
	assert.Equal(t, "Lounge", room)
	assert.Empty(t, r.GetUsersOfRoom("1 vs 1"))
}

func TestRegistry_MoveIsExclusive(t *testing.T) {
	r := NewRegistry()
	a := testUser("Alice#1")
	require.True(t, r.Add("c1", "Lounge", a))

	old, ok := r.Move("c1", "FFA")
	require.True(t, ok)
	assert.Equal(t, "Lounge", old)

	assert.Empty(t, r.GetUsersOfRoom("Lounge"))
	assert.Equal(t, []user.User{a}, r.GetUsersOfRoom("FFA"))

	_, ok = r.Move("unknown", "FFA")
	assert.False(t, ok)
}

func TestRegistry_RemoveAndLookups(t *testing.T) {
	r := NewRegistry()
	a := testUser("Alice#1")
	require.True(t, r.Add("c1", "Lounge", a))

	c, ok := r.Remove("c1")
	require.True(t, ok)
	assert.Equal(t, "Lounge", c.Room)

	_, ok = r.Remove("c1")
	assert.False(t, ok)

	_, ok = r.GetUser("c1")
	assert.False(t, ok)
	_, ok = r.GetConnectionByUser("alice#1")
	assert.False(t, ok)
	assert.Empty(t, r.RoomCounts())
}

func TestRegistry_UsersSortedByIdentity(t *testing.T) {
	r := NewRegistry()
	r.Add("c1", "Lounge", testUser("zed#1"))
	r.Add("c2", "Lounge", testUser("Bob#1"))
	r.Add("c3", "Lounge", testUser("alice#1"))

	users := r.GetUsersOfRoom("Lounge")
	require.Len(t, users, 3)
	assert.Equal(t, "alice#1", users[0].BattleTag)
	assert.Equal(t, "Bob#1", users[1].BattleTag)
	assert.Equal(t, "zed#1", users[2].BattleTag)
}

func TestRegistry_GetConnectionByUserPrefersLatest(t *testing.T) {
	r := NewRegistry()
	r.Add("old", "Lounge", testUser("Alice#1"))
	r.Add("new", "FFA", testUser("alice#1"))

	key, ok := r.GetConnectionByUser("ALICE#1")
	require.True(t, ok)
	assert.Equal(t, "new", key)
	assert.ElementsMatch(t, []string{"old", "new"}, r.GetConnectionsByUser("Alice#1"))

	r.Remove("new")
	key, ok = r.GetConnectionByUser("alice#1")
	require.True(t, ok)
	assert.Equal(t, "old", key)
}

func TestRegistry_UpdateUserKeepsIdentity(t *testing.T) {
	r := NewRegistry()
	r.Add("c1", "Lounge", testUser("Alice#1"))

	pic := user.ProfilePicture{Race: user.AvatarOrc, PictureID: 7}
	c, ok := r.UpdateUser("c1", func(u user.User) user.User { return u.WithProfilePicture(pic) })
	require.True(t, ok)
	assert.Equal(t, pic, c.User.ProfilePicture)

	_, ok = r.UpdateUser("c1", func(u user.User) user.User { return testUser("Mallory#1") })
	assert.False(t, ok)
	u, _ := r.GetUser("c1")
	assert.Equal(t, "Alice#1", u.BattleTag)
}

func TestRegistry_ConcurrentAccessHasNoTornReads(t *testing.T) {
	r := NewRegistry()
	var wg sync.WaitGroup

	for i := range 50 {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := fmt.Sprintf("c%d", i)
			r.Add(key, "Lounge", testUser(fmt.Sprintf("u%d#1", i)))
			r.Move(key, "FFA")
			if i%2 == 0 {
				r.Remove(key)
			}
		}(i)
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		for range 200 {
			for _, key := range r.GetConnectionsOfRoom("FFA") {
				_, _ = r.GetUser(key)
			}
		}
	}()
	wg.Wait()

	assert.Len(t, r.GetUsersOfRoom("FFA"), 25)
	assert.Empty(t, r.GetUsersOfRoom("Lounge"))
	for _, key := range r.GetConnectionsOfRoom("FFA") {
		_, ok := r.GetUser(key)
		assert.True(t, ok)
	}
}
