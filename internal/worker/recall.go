package worker

import "github.com/DannyDoesGraphics/auto-mine/internal/jobqueue"

// stepRecall deposits inventory and climbs to the top of the spawn column,
// then idles there for as long as the fleet-wide recall stays active
// (spec.md §4.10). It never completes the job on its own while recall is
// active; the job is dropped only once no recall is active and the pose is
// inside the bounding box (a recall enqueued because a config update shrank
// the box out from under the agent keeps driving it home until then), at
// which point the worker resumes normal job popping.
func (a *Agent) stepRecall(j *jobqueue.Job) error {
	if !a.recallActive && a.Cfg.BBox.ContainsPose(*a.Mover.Pose) {
		return a.Jobs.Complete(j.ID)
	}

	top := a.Cfg.BBox.MaxY
	pose := *a.Mover.Pose
	if pose.X == 0 && pose.Y == top && pose.Z == 0 {
		// Already parked; nothing new has accumulated since no other job
		// can claim the active slot while this one holds it.
		return nil
	}

	if err := a.Fuel.Deposit(); err != nil {
		return err
	}
	return a.Nav.GoTo(0, top, 0)
}
