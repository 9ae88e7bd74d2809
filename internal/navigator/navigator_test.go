package navigator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DannyDoesGraphics/auto-mine/internal/geometry"
	"github.com/DannyDoesGraphics/auto-mine/internal/journal"
	"github.com/DannyDoesGraphics/auto-mine/internal/movement"
	"github.com/DannyDoesGraphics/auto-mine/internal/storage"
)

func newNavigator(t *testing.T) (*Navigator, *movement.SimWorld) {
	t.Helper()
	world := movement.NewSimWorld(1000)
	j := journal.New(storage.NewMemory())
	pose := world.Pose
	bbox := geometry.BoundingBox{MaxX: 16, MaxY: 16, MaxZ: 16}
	mover := movement.New(world, j, &pose, &bbox, 8)
	return New(mover), world
}

func TestGoToReachesTarget(t *testing.T) {
	nav, _ := newNavigator(t)

	require.NoError(t, nav.GoTo(3, 2, 5))

	assert.Equal(t, 3, nav.Mover.Pose.X)
	assert.Equal(t, 2, nav.Mover.Pose.Y)
	assert.Equal(t, 5, nav.Mover.Pose.Z)
}

func TestGoToNegativeXZDirections(t *testing.T) {
	nav, _ := newNavigator(t)
	require.NoError(t, nav.GoTo(5, 0, 5))

	require.NoError(t, nav.GoTo(0, 0, 0))
	assert.Equal(t, 0, nav.Mover.Pose.X)
	assert.Equal(t, 0, nav.Mover.Pose.Z)
}
