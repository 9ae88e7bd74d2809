// Package worker hosts the per-agent tick loop that drains the job queue,
// exchanges bus messages, and advances membership/leadership — the "core
// loop" described in spec.md §2 and §5.
package worker

import (
	"time"

	"github.com/DannyDoesGraphics/auto-mine/internal/agentstate"
	"github.com/DannyDoesGraphics/auto-mine/internal/bus"
	"github.com/DannyDoesGraphics/auto-mine/internal/config"
	"github.com/DannyDoesGraphics/auto-mine/internal/fuel"
	"github.com/DannyDoesGraphics/auto-mine/internal/geometry"
	"github.com/DannyDoesGraphics/auto-mine/internal/jobqueue"
	"github.com/DannyDoesGraphics/auto-mine/internal/journal"
	"github.com/DannyDoesGraphics/auto-mine/internal/membership"
	"github.com/DannyDoesGraphics/auto-mine/internal/movement"
	"github.com/DannyDoesGraphics/auto-mine/internal/navigator"
	"github.com/DannyDoesGraphics/auto-mine/internal/ore"
	"github.com/DannyDoesGraphics/auto-mine/internal/storage"
	"github.com/DannyDoesGraphics/auto-mine/internal/tunnelplan"
	"github.com/DannyDoesGraphics/auto-mine/internal/xlog"
)

// ScannedBlock is one block the tunnel scanner observed this step.
type ScannedBlock struct {
	X, Y, Z int
	Tag     string
}

// Agent wires every component for one fleet member and exposes Tick, the
// single bounded unit of work the process loop calls repeatedly.
type Agent struct {
	SelfID   string
	QuarryID string
	Cfg      config.Config

	World movement.World
	Mover *movement.Mover
	Nav   *navigator.Navigator
	J     *journal.Journal
	Fuel  *fuel.Manager
	Jobs  *jobqueue.Queue
	Plan  *tunnelplan.Plan
	Ore   *ore.Registry
	Table *membership.Table
	HB    *membership.Heartbeater
	Bus   bus.Bus

	// Scanner inspects the blocks around the current pose after a tunnel
	// dig step; nil means no scanning (e.g. a minimal test harness).
	Scanner func(pose geometry.Pose) []ScannedBlock

	recallActive  bool
	lastLeader    string
	calibrated    bool
	sendSeq       uint64
	now           func() time.Time
	sleep         func(time.Duration)
	recvTimeout   time.Duration

	log xlog.Logger
}

// Deps bundles everything NewAgent needs to assemble one fleet member.
type Deps struct {
	SelfID   string
	QuarryID string
	Cfg      config.Config
	World    movement.World
	Inv      fuel.Inventory
	Bus      bus.Bus
	RootDB   storage.Database
	Now      func() time.Time
	Sleep    func(time.Duration)
}

// NewAgent wires the full component graph over table-scoped views of
// RootDB, the way cmd/kcn wires storage/database tables per subsystem in
// the teacher.
func NewAgent(d Deps) (*Agent, error) {
	now := d.Now
	if now == nil {
		now = time.Now
	}
	sleep := d.Sleep
	if sleep == nil {
		sleep = time.Sleep
	}

	pose := geometry.Pose{Dir: d.Cfg.SpawnFacing}
	bbox := d.Cfg.BBox

	j := journal.New(storage.Table(d.RootDB, "journal/"))
	mover := movement.New(d.World, j, &pose, &bbox, d.Cfg.ClearRetryLimit)
	registerCalibrationVerifier(j)
	nav := navigator.New(mover)
	fuelMgr := fuel.New(nav, d.Inv, d.Cfg, j)

	jobs := jobqueue.New(storage.Table(d.RootDB, "jobqueue/"))
	if err := jobs.Load(); err != nil {
		return nil, err
	}

	plan, err := tunnelplan.Load(storage.Table(d.RootDB, "tunnelplan/"))
	if err != nil {
		return nil, err
	}
	if err := plan.Seed(d.Cfg); err != nil {
		return nil, err
	}

	registry := ore.New(storage.Table(d.RootDB, "ore/"), 8<<20)

	registerMessageVerifiers(j, plan, jobs, d.Bus, d.SelfID)

	table := membership.New(d.SelfID, time.Duration(d.Cfg.HeartbeatTimeout)*time.Millisecond)

	a := &Agent{
		SelfID: d.SelfID, QuarryID: d.QuarryID, Cfg: d.Cfg,
		World: d.World, Mover: mover, Nav: nav, J: j, Fuel: fuelMgr,
		Jobs: jobs, Plan: plan, Ore: registry, Table: table, Bus: d.Bus,
		now: now, sleep: sleep, recvTimeout: 50 * time.Millisecond,
		log: xlog.NewModuleLogger("worker"),
	}
	a.HB = membership.NewHeartbeater(table, d.SelfID, d.QuarryID, time.Duration(d.Cfg.HeartbeatInterval)*time.Millisecond, a.nextSeq)
	return a, nil
}

// nextSeq is the single per-sender sequence source for every message type
// this agent sends (heartbeat and directed alike), so SaramaBus's
// sender+seq dedup cache never sees two different messages share a key.
func (a *Agent) nextSeq() uint64 {
	a.sendSeq++
	return a.sendSeq
}

// Start runs calibration (idempotent, safe to call on every boot) and
// replays the journal before the tick loop begins.
func (a *Agent) Start() error {
	unverified, err := a.J.Resume()
	if err != nil {
		return err
	}
	for _, e := range unverified {
		a.log.Error("unverified journal entry after resume, requires operator attention", "kind", e.Kind, "id", e.ID)
	}

	floorY, err := Calibrate(a.Mover, a.J, a.Cfg, a.sleep)
	if err != nil {
		return err
	}
	a.Mover.Pose.Y = floorY
	a.Mover.Pose.X, a.Mover.Pose.Z = 0, 0
	a.calibrated = true
	return nil
}

// Snapshot composes the current read-only state view this agent would
// persist/report, for the "automine status" operator command and for
// local debugging. Every field is sourced from its owning component; this
// method never mutates state.
func (a *Agent) Snapshot() (agentstate.Snapshot, error) {
	observations, err := a.Ore.All()
	if err != nil {
		return agentstate.Snapshot{}, err
	}
	return agentstate.Build(
		a.Mover.Pose,
		a.calibrated,
		a.Table.AllRecords(),
		a.Plan,
		a.Jobs,
		observations,
		a.recallActive,
		a.J.NextID(),
	), nil
}
