package movement

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DannyDoesGraphics/auto-mine/internal/errs"
	"github.com/DannyDoesGraphics/auto-mine/internal/geometry"
	"github.com/DannyDoesGraphics/auto-mine/internal/journal"
	"github.com/DannyDoesGraphics/auto-mine/internal/storage"
)

func newMover(t *testing.T, world *SimWorld, bbox geometry.BoundingBox) (*Mover, *geometry.Pose) {
	t.Helper()
	j := journal.New(storage.NewMemory())
	pose := world.Pose
	box := bbox
	m := New(world, j, &pose, &box, 8)
	return m, &pose
}

func TestForwardAdvancesPoseAndSpendsFuel(t *testing.T) {
	world := NewSimWorld(10)
	m, pose := newMover(t, world, geometry.BoundingBox{MaxX: 8, MaxY: 8, MaxZ: 8})

	require.NoError(t, m.Forward())

	assert.Equal(t, 1, pose.Z)
	assert.Equal(t, 9, world.Fuel)
}

func TestForwardRejectsOutOfBounds(t *testing.T) {
	world := NewSimWorld(10)
	world.Pose.Z = 4
	m, pose := newMover(t, world, geometry.BoundingBox{MaxX: 8, MaxY: 8, MaxZ: 4})
	pose.Z = 4

	err := m.Forward()
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.OutOfBounds))
}

func TestForwardClearsObstructionThenAdvances(t *testing.T) {
	world := NewSimWorld(10)
	world.Block(0, 0, 1)
	m, pose := newMover(t, world, geometry.BoundingBox{MaxX: 8, MaxY: 8, MaxZ: 8})

	require.NoError(t, m.Forward())
	assert.Equal(t, 1, pose.Z)
}

func TestForwardExhaustedFuelRefuses(t *testing.T) {
	world := NewSimWorld(0)
	m, _ := newMover(t, world, geometry.BoundingBox{MaxX: 8, MaxY: 8, MaxZ: 8})

	err := m.Forward()
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.FuelExhausted))
}

func TestTurnLeftRightAreInverses(t *testing.T) {
	world := NewSimWorld(10)
	m, pose := newMover(t, world, geometry.BoundingBox{MaxX: 8, MaxY: 8, MaxZ: 8})

	require.NoError(t, m.TurnLeft())
	require.NoError(t, m.TurnRight())
	assert.Equal(t, geometry.DirNorth, pose.Dir)
}

func TestFaceToReachesTargetHeading(t *testing.T) {
	world := NewSimWorld(10)
	m, pose := newMover(t, world, geometry.BoundingBox{MaxX: 8, MaxY: 8, MaxZ: 8})

	require.NoError(t, m.FaceTo(geometry.DirSouth))
	assert.Equal(t, geometry.DirSouth, pose.Dir)
}

func TestDigForwardClearsWithoutMoving(t *testing.T) {
	world := NewSimWorld(10)
	world.Block(0, 0, 1)
	m, pose := newMover(t, world, geometry.BoundingBox{MaxX: 8, MaxY: 8, MaxZ: 8})

	require.NoError(t, m.DigForward())
	assert.Equal(t, 0, pose.Z)
	blocked, _ := world.Detect(FaceForward)
	assert.False(t, blocked)
}
