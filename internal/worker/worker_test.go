package worker

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DannyDoesGraphics/auto-mine/internal/bus"
	"github.com/DannyDoesGraphics/auto-mine/internal/config"
	"github.com/DannyDoesGraphics/auto-mine/internal/fuel"
	"github.com/DannyDoesGraphics/auto-mine/internal/jobqueue"
	"github.com/DannyDoesGraphics/auto-mine/internal/membership"
	"github.com/DannyDoesGraphics/auto-mine/internal/movement"
	"github.com/DannyDoesGraphics/auto-mine/internal/storage"
	"github.com/DannyDoesGraphics/auto-mine/internal/tunnelplan"
)

// fakeInventory is a fuel.Inventory double with a single slot that always
// reports a fixed stack of allowed fuel, enough that refuel/deposit never
// stalls waiting on chest contents.
type fakeInventory struct {
	world   *movement.SimWorld
	tag     string
	perItem int
}

func (f *fakeInventory) SuckFront() (bool, error) { return true, nil }
func (f *fakeInventory) InspectSlot(slot int) (fuel.Slot, error) {
	if slot == 0 {
		return fuel.Slot{Tag: f.tag, Count: 8}, nil
	}
	return fuel.Slot{}, nil
}
func (f *fakeInventory) RefuelSlot(slot int) (bool, error) {
	if slot != 0 {
		return false, nil
	}
	f.world.Fuel += 8 * f.perItem
	return true, nil
}
func (f *fakeInventory) DropSlot(slot, count int) (bool, error) { return true, nil }
func (f *fakeInventory) SlotCount() int                         { return 1 }

// testAgent bundles an Agent with the SimWorld backing it, so assertions
// can read the pose/fuel directly.
type testAgent struct {
	*Agent
	world *movement.SimWorld
}

// newTestAgent wires an Agent over an in-memory SimWorld/storage/MemBus. A
// floor is placed one cell below spawn so Start's descent calibration has
// somewhere to stop (spec.md §4.4); tests that care about the descent
// itself relocate or remove it explicitly.
func newTestAgent(t *testing.T, fleet *bus.Fleet, selfID string, cfg config.Config, now time.Time) *testAgent {
	t.Helper()
	world := movement.NewSimWorld(100000)
	world.Block(0, -1, 0)
	inv := &fakeInventory{world: world, tag: "minecraft:coal", perItem: 80}

	a, err := NewAgent(Deps{
		SelfID:   selfID,
		QuarryID: "quarry-1",
		Cfg:      cfg,
		World:    world,
		Inv:      inv,
		Bus:      fleet.Join(selfID),
		RootDB:   storage.NewMemory(),
		Now:      func() time.Time { return now },
		Sleep:    func(time.Duration) {},
	})
	require.NoError(t, err)
	return &testAgent{Agent: a, world: world}
}

// testConfig returns config.Default with clear-retry disabled, so a
// SimWorld block acts as an undiggable floor the way real bedrock does
// (SimWorld.Dig otherwise removes any obstruction unconditionally).
func testConfig() config.Config {
	cfg := config.Default()
	cfg.ClearRetryLimit = 0
	cfg.HeartbeatInterval = 100
	cfg.HeartbeatTimeout = 2000
	return cfg
}

func mustJSON(t *testing.T, v interface{}) json.RawMessage {
	t.Helper()
	raw, err := json.Marshal(v)
	require.NoError(t, err)
	return raw
}

var fixedNow = time.Unix(1700000000, 0)

func TestStartDescendsToFloorAndResetsXZ(t *testing.T) {
	fleet := bus.NewFleet()
	cfg := testConfig()
	ta := newTestAgent(t, fleet, "agent-a", cfg, fixedNow)
	// Override the default one-below floor: bedrock three cells down, so
	// descent succeeds twice before hitting it, no climb-retry needed.
	ta.world.Cells = map[[3]int]bool{}
	ta.world.Block(0, -3, 0)

	require.NoError(t, ta.Start())

	assert.Equal(t, 0, ta.Mover.Pose.X)
	assert.Equal(t, -2, ta.Mover.Pose.Y)
	assert.Equal(t, 0, ta.Mover.Pose.Z)
	assert.True(t, ta.calibrated)
}

func TestStartClimbsClearOfStackedPeerBeforeDescending(t *testing.T) {
	fleet := bus.NewFleet()
	cfg := testConfig()
	ta := newTestAgent(t, fleet, "agent-a", cfg, fixedNow)
	// Default floor is immediately below spawn: the first descent attempt
	// finds no room at all, exercising calibrateDescent's climb-and-retry
	// branch before it succeeds one level up.
	require.NoError(t, ta.Start())
	assert.Equal(t, 0, ta.Mover.Pose.Y)
}

func TestSoloAgentSelfAssignsAndMinesFirstTunnel(t *testing.T) {
	fleet := bus.NewFleet()
	cfg := testConfig()
	ta := newTestAgent(t, fleet, "agent-a", cfg, fixedNow)
	require.NoError(t, ta.Start())

	// A lone agent is its own leader: its job_request loops back over the
	// bus and it self-assigns the first idle tunnel a few ticks later.
	for i := 0; i < 8; i++ {
		require.NoError(t, ta.Tick())
	}

	active := ta.Jobs.Active()
	require.NotNil(t, active)
	assert.Equal(t, jobqueue.TypeTunnelMine, active.Type)

	tunnels := ta.Plan.Tunnels()
	require.NotEmpty(t, tunnels)
	assert.Contains(t, []tunnelplan.State{tunnelplan.StateClaimed, tunnelplan.StateActive}, tunnels[0].State)
	assert.Equal(t, "agent-a", tunnels[0].ClaimedBy)
}

func TestRecallBroadcastParksAgentAtSpawnTopThenResumes(t *testing.T) {
	fleet := bus.NewFleet()
	cfg := testConfig()
	ta := newTestAgent(t, fleet, "agent-a", cfg, fixedNow)
	require.NoError(t, ta.Start())

	operator := fleet.Join("operator-1")
	require.NoError(t, operator.Send(bus.Message{
		Sender: "operator-1", QuarryID: "quarry-1", Type: bus.TypeRecall,
		Payload: mustJSON(t, bus.RecallPayload{Active: true}),
	}))

	for i := 0; i < cfg.BBox.MaxY+3; i++ {
		require.NoError(t, ta.Tick())
	}

	assert.True(t, ta.recallActive)
	active := ta.Jobs.Active()
	require.NotNil(t, active)
	assert.Equal(t, jobqueue.TypeRecall, active.Type)
	assert.Equal(t, cfg.BBox.MaxY, ta.Mover.Pose.Y)
	assert.Equal(t, 0, ta.Mover.Pose.X)
	assert.Equal(t, 0, ta.Mover.Pose.Z)

	require.NoError(t, operator.Send(bus.Message{
		Sender: "operator-1", QuarryID: "quarry-1", Type: bus.TypeRecall,
		Payload: mustJSON(t, bus.RecallPayload{Active: false}),
	}))
	for i := 0; i < 3; i++ {
		require.NoError(t, ta.Tick())
	}
	assert.False(t, ta.recallActive)
}

func TestConfigUpdateIgnoresStaleVersion(t *testing.T) {
	fleet := bus.NewFleet()
	cfg := testConfig()
	ta := newTestAgent(t, fleet, "agent-a", cfg, fixedNow)
	require.NoError(t, ta.Start())

	stale := cfg
	stale.ConfigVersion = 0
	require.NoError(t, ta.Bus.Send(bus.Message{
		Sender: "operator-1", QuarryID: "quarry-1", Type: bus.TypeConfigUpdate,
		Payload: mustJSON(t, bus.ConfigBlobPayload{Config: mustJSON(t, stale)}),
	}))
	require.NoError(t, ta.Tick())
	assert.Equal(t, cfg.ConfigVersion, ta.Cfg.ConfigVersion)
}

func TestConfigUpdateShrinkingBBoxTriggersRecall(t *testing.T) {
	fleet := bus.NewFleet()
	cfg := testConfig()
	ta := newTestAgent(t, fleet, "agent-a", cfg, fixedNow)
	require.NoError(t, ta.Start())
	ta.Mover.Pose.X, ta.Mover.Pose.Z = 7, 15

	shrunk := cfg
	shrunk.ConfigVersion = cfg.ConfigVersion + 1
	shrunk.BBox.ConfigVersion = shrunk.ConfigVersion
	shrunk.BBox.MaxX = 2
	require.NoError(t, ta.Bus.Send(bus.Message{
		Sender: "operator-1", QuarryID: "quarry-1", Type: bus.TypeConfigUpdate,
		Payload: mustJSON(t, bus.ConfigBlobPayload{Config: mustJSON(t, shrunk)}),
	}))
	require.NoError(t, ta.Tick())

	assert.Equal(t, shrunk.ConfigVersion, ta.Cfg.ConfigVersion)
	// The same tick pops the highest-priority job, so the recall job is
	// normally already the active one by now.
	found := false
	for _, j := range ta.Jobs.Pending() {
		if j.Type == jobqueue.TypeRecall {
			found = true
		}
	}
	if active := ta.Jobs.Active(); active != nil && active.Type == jobqueue.TypeRecall {
		found = true
	}
	assert.True(t, found, "expected a recall job queued or active after the bbox shrank out from under the current pose")
}

func TestTwoAgentsClaimDistinctTunnels(t *testing.T) {
	fleet := bus.NewFleet()
	cfg := testConfig()
	// Each tick drains one bus message, so agent-b's assign only arrives on
	// its tenth tick; tunnels long enough that agent-a's first one is still
	// being mined by then keep both jobs active at the check below.
	cfg.ChunkLength = cfg.BBox.MaxZ
	a := newTestAgent(t, fleet, "agent-a", cfg, fixedNow)
	b := newTestAgent(t, fleet, "agent-b", cfg, fixedNow)
	require.NoError(t, a.Start())
	require.NoError(t, b.Start())

	// Pre-seed b's membership view with a, so the lower-id election settles
	// from the first tick instead of racing on whichever heartbeat/job
	// request happens to be drained first.
	b.Table.Observe(membership.Record{AgentID: "agent-a", LastSeen: fixedNow, Status: "working"})

	for i := 0; i < 10; i++ {
		require.NoError(t, a.Tick())
		require.NoError(t, b.Tick())
	}

	aActive := a.Jobs.Active()
	bActive := b.Jobs.Active()
	require.NotNil(t, aActive)
	require.NotNil(t, bActive)
	assert.Equal(t, jobqueue.TypeTunnelMine, aActive.Type)
	assert.Equal(t, jobqueue.TypeTunnelMine, bActive.Type)

	claimedByA, claimedByB := 0, 0
	for _, tun := range a.Plan.Tunnels() {
		switch tun.ClaimedBy {
		case "agent-a":
			claimedByA++
		case "agent-b":
			claimedByB++
		}
	}
	assert.GreaterOrEqual(t, claimedByA, 1)
	assert.GreaterOrEqual(t, claimedByB, 1)
}
