package worker

import (
	"encoding/json"

	"github.com/pkg/errors"

	"github.com/DannyDoesGraphics/auto-mine/internal/errs"
	"github.com/DannyDoesGraphics/auto-mine/internal/jobqueue"
	"github.com/DannyDoesGraphics/auto-mine/internal/ore"
	"github.com/DannyDoesGraphics/auto-mine/internal/tunnelplan"
)

// tunnelMinePayload tracks which tunnel a tunnel_mine job is carving.
type tunnelMinePayload struct {
	TunnelID uint64 `json:"tunnelId"`
}

// oreMinePayload tracks the flood-filled vein members still to mine; the
// job consumes one per tick (spec.md §4.8: "each step is a Navigator+
// Movement sequence and is journalled").
type oreMinePayload struct {
	Block   string             `json:"block"`
	Members []ore.Observation  `json:"members"`
}

// stepJob executes exactly one bounded unit of work for the active job and
// applies the outcome (completed, requeued for retry, or failed outright) to
// the queue via resolveJobOutcome, returning only an error from doing so.
// This is the "execute one bounded step" point of spec.md §2's
// control flow.
func (a *Agent) stepJob(j *jobqueue.Job) error {
	var stepErr error
	switch j.Type {
	case jobqueue.TypeRecall:
		stepErr = a.stepRecall(j)
	case jobqueue.TypeRefuel:
		stepErr = a.stepRefuel(j)
	case jobqueue.TypeTunnelMine:
		stepErr = a.stepTunnelMine(j)
	case jobqueue.TypeOreMine:
		stepErr = a.stepOreMine(j)
	default:
		stepErr = errors.Errorf("worker: unknown job type %q", j.Type)
	}
	return a.resolveJobOutcome(j, stepErr)
}

// resolveJobOutcome applies spec.md §7's error handling rules to a job
// step's outcome.
func (a *Agent) resolveJobOutcome(j *jobqueue.Job, stepErr error) error {
	switch {
	case stepErr == nil:
		return nil // job reported its own completion via Jobs.Complete when done
	case errs.Is(stepErr, errs.OutOfBounds):
		a.log.Error("job failed: out of bounds", "job", j.Type, "id", j.ID)
		return a.Jobs.Fail(j.ID, false, a.Cfg.MaxJobFailures)
	case errs.Is(stepErr, errs.Blocked), errs.Is(stepErr, errs.PeerUnreachable):
		return a.Jobs.Fail(j.ID, true, a.Cfg.MaxJobFailures)
	case errs.Is(stepErr, errs.FuelExhausted):
		if _, err := a.Jobs.Enqueue(jobqueue.TypeRefuel, nil); err != nil {
			return err
		}
		return a.Jobs.Fail(j.ID, true, a.Cfg.MaxJobFailures)
	case errs.Is(stepErr, errs.ChestEmpty):
		// waiting_fuel: requeue with the normal backoff-via-requeue path,
		// fuel may arrive later via a peer restocking the chest.
		return a.Jobs.Fail(j.ID, true, a.Cfg.MaxJobFailures)
	default:
		a.log.Error("job step error", "job", j.Type, "id", j.ID, "err", stepErr)
		return a.Jobs.Fail(j.ID, true, a.Cfg.MaxJobFailures)
	}
}

func (a *Agent) stepRefuel(j *jobqueue.Job) error {
	if err := a.Fuel.Refuel(); err != nil {
		return err
	}
	return a.Jobs.Complete(j.ID)
}

func (a *Agent) stepTunnelMine(j *jobqueue.Job) error {
	var p tunnelMinePayload
	if err := json.Unmarshal(j.Payload, &p); err != nil {
		return errors.Wrap(err, "worker: corrupt tunnel_mine payload")
	}
	t, ok := a.Plan.Get(p.TunnelID)
	if !ok {
		return a.Jobs.Complete(j.ID)
	}
	if t.Done() {
		return a.releaseTunnel(t, t.Progress, string(tunnelplan.StateDone), j.ID)
	}

	if err := a.Nav.GoTo(t.OriginX, t.OriginY, t.Progress); err != nil {
		return err
	}
	if err := a.Mover.DigUp(); err != nil {
		return err
	}
	if err := a.Mover.DigForward(); err != nil {
		return err
	}
	if a.Scanner != nil {
		a.scanAndRecord(a.Scanner(*a.Mover.Pose))
	}
	if err := a.Mover.Forward(); err != nil {
		return err
	}

	newProgress := t.Progress + 1
	state := tunnelStateFor(newProgress, t.Length)
	if err := a.Plan.Release(t.ID, newProgress, state); err != nil {
		return err
	}
	if err := a.sendJobRelease(t.ID, newProgress, string(state)); err != nil {
		return err
	}
	if newProgress >= t.Length {
		return a.Jobs.Complete(j.ID)
	}
	return nil
}

func tunnelStateFor(progress, length int) tunnelplan.State {
	if progress >= length {
		return tunnelplan.StateDone
	}
	return tunnelplan.StateActive
}

func (a *Agent) scanAndRecord(blocks []ScannedBlock) {
	isOre := func(tag string) bool {
		for _, t := range a.Cfg.OreTags {
			if t == tag {
				return true
			}
		}
		return false
	}
	for _, b := range blocks {
		fresh, err := a.Ore.Observe(b.X, b.Y, b.Z, b.Tag, isOre)
		if err != nil {
			a.log.Error("ore scan failed", "err", err)
			continue
		}
		if fresh {
			if _, err := a.Jobs.Enqueue(jobqueue.TypeOreMine, struct {
				X, Y, Z int
				Block   string
			}{b.X, b.Y, b.Z, b.Tag}); err != nil {
				a.log.Error("failed to enqueue ore_mine job", "err", err)
			}
		}
	}
}

func (a *Agent) stepOreMine(j *jobqueue.Job) error {
	var p oreMinePayload
	_ = json.Unmarshal(j.Payload, &p) // first tick: matches only Block, Members stays empty
	if len(p.Members) == 0 {
		var start struct {
			X, Y, Z int
			Block   string
		}
		if err := json.Unmarshal(j.Payload, &start); err != nil {
			return errors.Wrap(err, "worker: corrupt ore_mine payload")
		}
		members, err := a.Ore.VeinMembers(start.X, start.Y, start.Z, start.Block, a.Cfg.BBox, a.Cfg.OreFloodFillCap)
		if err != nil {
			return err
		}
		if len(members) == 0 {
			// Already consumed by a peer; nothing left to do.
			return a.Jobs.Complete(j.ID)
		}
		p = oreMinePayload{Block: start.Block, Members: members}
	}

	member := p.Members[0]
	if err := a.Nav.GoTo(member.X, member.Y, member.Z); err != nil {
		return err
	}
	if err := a.Mover.DigDown(); err != nil {
		return err
	}
	if err := a.Ore.Promote(member.X, member.Y, member.Z, member.Block); err != nil {
		return err
	}

	p.Members = p.Members[1:]
	if len(p.Members) == 0 {
		return a.Jobs.Complete(j.ID)
	}
	return a.Jobs.UpdatePayload(j.ID, p)
}
