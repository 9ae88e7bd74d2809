package worker

import (
	"github.com/DannyDoesGraphics/auto-mine/internal/jobqueue"
	"github.com/DannyDoesGraphics/auto-mine/internal/membership"
	autometrics "github.com/DannyDoesGraphics/auto-mine/internal/metrics"
)

// Tick runs one bounded iteration of the control loop in spec.md §2:
// drain a pending bus message, refresh membership/leadership, make sure
// the system jobs (refuel/recall) are queued when warranted, advance the
// active job by one step, and send a heartbeat if due. Call it repeatedly
// from the process driver; Start must have run first.
func (a *Agent) Tick() error {
	started := a.now()
	defer func() { autometrics.TickDuration.UpdateSince(started) }()
	now := started

	msg, ok, err := a.Bus.Receive(a.recvTimeout)
	if err != nil {
		a.log.Error("bus receive failed", "err", err)
	} else if ok {
		if err := a.handleMessage(msg); err != nil {
			a.log.Error("bus message handling failed", "type", msg.Type, "err", err)
		}
	}

	a.Table.Touch(a.status(), a.activeJobType(), a.currentFuel(), a.Cfg.ConfigVersion, now)
	newLeader, changed := membership.RecomputeLeaderChange(a.Table, a.lastLeader, now)
	a.lastLeader = newLeader
	if changed && a.Table.IsLeader(now) {
		if err := a.Plan.ReclaimDeadClaims(func(id string) bool { return a.Table.IsAlive(id, now) }); err != nil {
			a.log.Error("reclaim dead tunnel claims failed", "err", err)
		}
	}

	if err := a.ensureSystemJobs(); err != nil {
		a.log.Error("ensure system jobs failed", "err", err)
	}

	active := a.Jobs.Active()
	if active == nil {
		if a.Jobs.Len() == 0 && !a.recallActive {
			if err := a.sendJobRequest(); err != nil {
				a.log.Error("job request failed", "err", err)
			}
		}
		active, err = a.Jobs.Pop()
		if err != nil {
			return err
		}
	}
	if active != nil {
		if err := a.stepJob(active); err != nil {
			return err
		}
	}

	if _, err := a.HB.MaybeSend(a.Bus, a.status(), a.activeJobType(), a.currentFuel(), a.Cfg.ConfigVersion, now); err != nil {
		a.log.Error("heartbeat send failed", "err", err)
	}
	return nil
}

// ensureSystemJobs enqueues recall/refuel when the current state calls for
// them; both are idempotent against an already-live instance (spec.md §4.6).
func (a *Agent) ensureSystemJobs() error {
	if a.recallActive {
		if _, err := a.Jobs.Enqueue(jobqueue.TypeRecall, nil); err != nil {
			return err
		}
	}
	fuelLevel, err := a.World.FuelLevel()
	if err != nil {
		return err
	}
	if fuelLevel <= a.Cfg.FuelReserve {
		if _, err := a.Jobs.Enqueue(jobqueue.TypeRefuel, nil); err != nil {
			return err
		}
	}
	return nil
}

func (a *Agent) status() string {
	if a.recallActive {
		return "recalled"
	}
	return "working"
}

func (a *Agent) activeJobType() string {
	if j := a.Jobs.Active(); j != nil {
		return string(j.Type)
	}
	return ""
}

func (a *Agent) currentFuel() int {
	level, err := a.World.FuelLevel()
	if err != nil {
		return 0
	}
	return level
}
