package player

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRecentPlayGuardEvictsOldestAtCapacity(t *testing.T) {
	g := NewRecentPlayGuard(3)

	g.Add("a")
	g.Add("b")
	g.Add("c")
	assert.Equal(t, 3, g.Len())

	g.Add("d")

	assert.False(t, g.Contains("a"), "oldest entry must be evicted")
	assert.True(t, g.Contains("b"))
	assert.True(t, g.Contains("c"))
	assert.True(t, g.Contains("d"))
	assert.Equal(t, 3, g.Len())
}

func TestRecentPlayGuardIgnoresDuplicatesAndEmpty(t *testing.T) {
	g := NewRecentPlayGuard(3)

	g.Add("a")
	g.Add("a")
	g.Add("")

	assert.Equal(t, 1, g.Len())
	assert.False(t, g.Contains(""))
}

func TestRecentPlayGuardDuplicateKeepsPosition(t *testing.T) {
	g := NewRecentPlayGuard(2)

	g.Add("a")
	g.Add("b")
	g.Add("a") // no-op, "a" stays oldest
	g.Add("c") // evicts "a"

	assert.False(t, g.Contains("a"))
	assert.True(t, g.Contains("b"))
	assert.True(t, g.Contains("c"))
}

func TestRecentPlayGuardReset(t *testing.T) {
	g := NewRecentPlayGuard(5)
	for i := 0; i < 5; i++ {
		g.Add(fmt.Sprintf("track-%d", i))
	}

	g.Reset()

	assert.Equal(t, 0, g.Len())
	assert.False(t, g.Contains("track-0"))

	g.Add("track-0")
	assert.True(t, g.Contains("track-0"))
}
