// Package agentstate assembles the read-only snapshot of everything
// spec.md §6 lists under the persisted `state` file, for the operator
// status view and for the round-trip law in §8 ("serializing and
// reloading state yields a byte-identical object tree"). Each field is
// owned by its component. Tunnels, jobs and ore observations are persisted
// by tunnelplan, jobqueue and ore; the journal contributes only its id
// counter; pose, calibration, membership records and the recall flag are
// held in memory by their owners and are not persisted. This package only
// composes a read view, it never becomes a second source of truth.
package agentstate

import (
	"encoding/json"

	"github.com/DannyDoesGraphics/auto-mine/internal/geometry"
	"github.com/DannyDoesGraphics/auto-mine/internal/jobqueue"
	"github.com/DannyDoesGraphics/auto-mine/internal/membership"
	"github.com/DannyDoesGraphics/auto-mine/internal/ore"
	"github.com/DannyDoesGraphics/auto-mine/internal/tunnelplan"
)

// JobsView mirrors state.jobs: {seq, pending, active}.
type JobsView struct {
	Seq     int64          `json:"seq"`
	Pending []jobqueue.Job `json:"pending"`
	Active  *jobqueue.Job  `json:"active,omitempty"`
}

// RecallView mirrors state.recall.
type RecallView struct {
	Active bool `json:"active"`
}

// JournalView mirrors state.journal: {nextId}.
type JournalView struct {
	NextID uint64 `json:"nextId"`
}

// Snapshot is the composed, read-only view of an agent's persisted state.
type Snapshot struct {
	Pose        geometry.Pose          `json:"pose"`
	Calibrated  bool                   `json:"calibrated"`
	Turtles     []membership.Record    `json:"turtles"`
	Tunnels     []tunnelplan.Tunnel    `json:"tunnels"`
	Jobs        JobsView               `json:"jobs"`
	OreRegistry []ore.Observation      `json:"oreRegistry"`
	Recall      RecallView             `json:"recall"`
	Journal     JournalView            `json:"journal"`
}

// MarshalIndented renders the snapshot as indented JSON for operator
// inspection (e.g. the `automine status` command).
func (s Snapshot) MarshalIndented() ([]byte, error) {
	return json.MarshalIndent(s, "", "  ")
}

// Build composes a Snapshot from each component's own live view.
func Build(
	pose geometry.Pose,
	calibrated bool,
	turtles []membership.Record,
	plan *tunnelplan.Plan,
	jobs *jobqueue.Queue,
	registryObservations []ore.Observation,
	recallActive bool,
	journalNextID uint64,
) Snapshot {
	return Snapshot{
		Pose:        pose,
		Calibrated:  calibrated,
		Turtles:     turtles,
		Tunnels:     plan.Tunnels(),
		Jobs:        JobsView{Seq: jobs.Seq(), Pending: jobs.Pending(), Active: jobs.Active()},
		OreRegistry: registryObservations,
		Recall:      RecallView{Active: recallActive},
		Journal:     JournalView{NextID: journalNextID},
	}
}
