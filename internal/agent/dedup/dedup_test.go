package dedup

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestHashIsStable(t *testing.T) {
	f := Fingerprint{Message: "删除清水寺", UserID: "u1", TripID: "t1"}
	assert.Equal(t, f.Hash(), f.Hash())
	assert.Len(t, f.Hash(), 16)
}

func TestHashDistinguishesContent(t *testing.T) {
	base := Fingerprint{Message: "删除清水寺", UserID: "u1", TripID: "t1"}

	variants := []Fingerprint{
		{Message: "删除金阁寺", UserID: "u1", TripID: "t1"},
		{Message: "删除清水寺", UserID: "u2", TripID: "t1"},
		{Message: "删除清水寺", UserID: "u1", TripID: "t2"},
		{Message: "删除清水寺", UserID: "u1", TripID: "t1", DryRun: true},
		{Message: "删除清水寺", UserID: "u1", TripID: "t1", AllowWebbrowse: true},
		{Message: "删除清水寺", UserID: "u1", TripID: "t1", RecentMessages: []string{"你好"}},
	}
	for i, v := range variants {
		assert.NotEqual(t, base.Hash(), v.Hash(), "variant %d", i)
	}
}

func TestHashUsesOnlyTrailingMessages(t *testing.T) {
	a := Fingerprint{Message: "m", RecentMessages: []string{"old", "1", "2", "3"}}
	b := Fingerprint{Message: "m", RecentMessages: []string{"older", "1", "2", "3"}}
	c := Fingerprint{Message: "m", RecentMessages: []string{"old", "1", "2", "changed"}}

	assert.Equal(t, a.Hash(), b.Hash(), "messages beyond the last three are ignored")
	assert.NotEqual(t, a.Hash(), c.Hash())
}

func TestLookupWithinTTL(t *testing.T) {
	c := NewCache(5*time.Second, 8)
	c.Store("h1", "resp")

	got, ok := c.Lookup("h1")
	assert.True(t, ok)
	assert.Equal(t, "resp", got)

	_, ok = c.Lookup("h2")
	assert.False(t, ok)
}

func TestLookupExpiresAfterTTL(t *testing.T) {
	c := NewCache(5*time.Second, 8)
	now := time.Now()
	c.clock = func() time.Time { return now }
	c.Store("h1", "resp")

	now = now.Add(5 * time.Second)
	_, ok := c.Lookup("h1")
	assert.False(t, ok)

	// Expired entries are removed, not just hidden.
	assert.Equal(t, 0, c.entries.Len())
}

func TestCapacityEvictsOldest(t *testing.T) {
	c := NewCache(time.Minute, 2)
	c.Store("h1", 1)
	c.Store("h2", 2)
	c.Store("h3", 3)

	_, ok := c.Lookup("h1")
	assert.False(t, ok)
	got, ok := c.Lookup("h3")
	assert.True(t, ok)
	assert.Equal(t, 3, got)
}

func TestZeroValuesUseDefaults(t *testing.T) {
	c := NewCache(0, 0)
	assert.Equal(t, DefaultTTL, c.ttl)
}
