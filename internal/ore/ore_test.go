package ore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DannyDoesGraphics/auto-mine/internal/geometry"
	"github.com/DannyDoesGraphics/auto-mine/internal/storage"
)

func isCoal(block string) bool { return block == "minecraft:coal_ore" }

func TestObserveDedupsRepeatedScans(t *testing.T) {
	r := New(storage.NewMemory(), 1<<16)

	fresh, err := r.Observe(1, 0, 0, "minecraft:coal_ore", isCoal)
	require.NoError(t, err)
	assert.True(t, fresh)

	again, err := r.Observe(1, 0, 0, "minecraft:coal_ore", isCoal)
	require.NoError(t, err)
	assert.False(t, again)
}

func TestObserveIgnoresNonOreBlocks(t *testing.T) {
	r := New(storage.NewMemory(), 1<<16)
	fresh, err := r.Observe(1, 0, 0, "minecraft:stone", isCoal)
	require.NoError(t, err)
	assert.False(t, fresh)
}

func TestPromoteIsMonotoneAndIdempotent(t *testing.T) {
	r := New(storage.NewMemory(), 1<<16)
	_, err := r.Observe(1, 0, 0, "minecraft:coal_ore", isCoal)
	require.NoError(t, err)

	require.NoError(t, r.Promote(1, 0, 0, "minecraft:coal_ore"))
	obs, ok, err := r.Get(1, 0, 0, "minecraft:coal_ore")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, StatusMined, obs.Status)

	// Promoting again, or an unknown entry, must not error.
	require.NoError(t, r.Promote(1, 0, 0, "minecraft:coal_ore"))
	require.NoError(t, r.Promote(99, 99, 99, "minecraft:coal_ore"))
}

func TestVeinMembersFloodFillsConnectedSameBlock(t *testing.T) {
	r := New(storage.NewMemory(), 1<<16)
	bbox := geometry.BoundingBox{MaxX: 8, MaxY: 8, MaxZ: 8}

	for _, p := range [][3]int{{1, 0, 0}, {2, 0, 0}, {3, 0, 0}} {
		_, err := r.Observe(p[0], p[1], p[2], "minecraft:iron_ore", func(string) bool { return true })
		require.NoError(t, err)
	}
	// An unrelated, disconnected ore block of the same tag.
	_, err := r.Observe(7, 0, 0, "minecraft:iron_ore", func(string) bool { return true })
	require.NoError(t, err)

	members, err := r.VeinMembers(1, 0, 0, "minecraft:iron_ore", bbox, 64)
	require.NoError(t, err)
	assert.Len(t, members, 3)
}

func TestVeinMembersRespectsCap(t *testing.T) {
	r := New(storage.NewMemory(), 1<<16)
	bbox := geometry.BoundingBox{MaxX: 8, MaxY: 8, MaxZ: 8}

	for x := 0; x < 6; x++ {
		_, err := r.Observe(x, 0, 0, "minecraft:iron_ore", func(string) bool { return true })
		require.NoError(t, err)
	}

	members, err := r.VeinMembers(0, 0, 0, "minecraft:iron_ore", bbox, 3)
	require.NoError(t, err)
	assert.Len(t, members, 3)
}
