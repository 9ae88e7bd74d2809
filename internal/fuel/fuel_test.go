package fuel

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DannyDoesGraphics/auto-mine/internal/config"
	"github.com/DannyDoesGraphics/auto-mine/internal/errs"
	"github.com/DannyDoesGraphics/auto-mine/internal/geometry"
	"github.com/DannyDoesGraphics/auto-mine/internal/journal"
	"github.com/DannyDoesGraphics/auto-mine/internal/movement"
	"github.com/DannyDoesGraphics/auto-mine/internal/navigator"
	"github.com/DannyDoesGraphics/auto-mine/internal/storage"
)

// fakeInventory simulates a chest with a fixed number of fuel items, pulled
// one stack per SuckFront call into slot 0.
type fakeInventory struct {
	tag        string
	chestCount int
	slot0      Slot
	world      *movement.SimWorld
	perItem    int
}

func (f *fakeInventory) SuckFront() (bool, error) {
	if f.chestCount <= 0 {
		return false, nil
	}
	pulled := f.chestCount
	if pulled > 64 {
		pulled = 64
	}
	f.chestCount -= pulled
	f.slot0 = Slot{Tag: f.tag, Count: pulled}
	return true, nil
}

func (f *fakeInventory) InspectSlot(slot int) (Slot, error) {
	if slot == 0 {
		return f.slot0, nil
	}
	return Slot{}, nil
}

func (f *fakeInventory) RefuelSlot(slot int) (bool, error) {
	if slot != 0 || f.slot0.Count == 0 {
		return false, nil
	}
	f.world.Fuel += f.slot0.Count * f.perItem
	f.slot0 = Slot{}
	return true, nil
}

func (f *fakeInventory) DropSlot(slot int, count int) (bool, error) {
	if slot == 0 {
		f.slot0.Count -= count
		if f.slot0.Count <= 0 {
			f.slot0 = Slot{}
		}
	}
	return true, nil
}

func (f *fakeInventory) SlotCount() int { return 1 }

func newManager(t *testing.T, world *movement.SimWorld, chest int) (*Manager, *fakeInventory) {
	t.Helper()
	j := journal.New(storage.NewMemory())
	pose := world.Pose
	bbox := geometry.BoundingBox{MaxX: 16, MaxY: 16, MaxZ: 16}
	mover := movement.New(world, j, &pose, &bbox, 8)
	nav := navigator.New(mover)

	cfg := config.Default()
	cfg.TargetFuel = 100
	cfg.FuelChestOffset = config.Offset{DX: 0, DY: 0, DZ: -1}

	inv := &fakeInventory{tag: "minecraft:coal", chestCount: chest, world: world, perItem: 80}
	return New(nav, inv, cfg, j), inv
}

func TestRefuelReachesTarget(t *testing.T) {
	world := movement.NewSimWorld(10)
	m, _ := newManager(t, world, 10)

	require.NoError(t, m.Refuel())
	assert.GreaterOrEqual(t, world.Fuel, m.Cfg.TargetFuel)
}

func TestRefuelChestEmptySurfacesChestEmpty(t *testing.T) {
	world := movement.NewSimWorld(10)
	m, _ := newManager(t, world, 0)

	err := m.Refuel()
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.ChestEmpty))
}

func TestCanClaimRejectsInsufficientFuel(t *testing.T) {
	world := movement.NewSimWorld(10)
	m, _ := newManager(t, world, 10)

	assert.False(t, m.CanClaim(5, geometry.Pose{X: 10, Y: 0, Z: 10}, 50))
	assert.True(t, m.CanClaim(1000, geometry.Pose{X: 10, Y: 0, Z: 10}, 50))
}
