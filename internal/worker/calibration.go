package worker

import (
	"encoding/json"
	"time"

	"github.com/DannyDoesGraphics/auto-mine/internal/config"
	"github.com/DannyDoesGraphics/auto-mine/internal/errs"
	"github.com/DannyDoesGraphics/auto-mine/internal/journal"
	"github.com/DannyDoesGraphics/auto-mine/internal/movement"
)

const (
	calibrationMaxClimbRetries = 5
	calibrationClimbCells      = 2
	calibrationBaseBackoff     = 250 * time.Millisecond
)

// registerCalibrationVerifier binds journal.Calibrate to a verifier that
// always confirms: calibration is idempotent (spec.md §4.4, "resuming it
// simply re-runs descent and produces the same floor given the same
// world"), so a pending entry found on restart never blocks the worker —
// Calibrate is unconditionally re-run at boot regardless.
func registerCalibrationVerifier(j *journal.Journal) {
	j.Register(journal.Calibrate, func(json.RawMessage) (bool, error) { return true, nil })
}

// Calibrate runs the once-per-boot descent to find the spawn column's
// floor cell (spec.md §4.4). It runs before the bounding box is engaged —
// the one legal exception to the containment invariant — so it suspends
// Mover's bounds check for its duration.
func Calibrate(mover *movement.Mover, j *journal.Journal, cfg config.Config, sleep func(time.Duration)) (int, error) {
	id, err := j.Begin(journal.Calibrate, struct{}{})
	if err != nil {
		return 0, err
	}

	floorY, err := calibrateDescent(mover, cfg, sleep)
	if err != nil {
		return 0, err
	}
	if err := j.Complete(id); err != nil {
		return 0, err
	}
	return floorY, nil
}

func calibrateDescent(mover *movement.Mover, cfg config.Config, sleep func(time.Duration)) (int, error) {
	mover.AllowOutsideBBox = true
	defer func() { mover.AllowOutsideBBox = false }()

	if err := mover.FaceTo(cfg.SpawnFacing); err != nil {
		return 0, err
	}

	backoff := calibrationBaseBackoff
	for attempt := 0; attempt <= calibrationMaxClimbRetries; attempt++ {
		descended := false
		for {
			err := mover.Down()
			if err == nil {
				descended = true
				continue
			}
			if errs.Is(err, errs.Blocked) {
				break
			}
			return 0, err
		}
		if descended {
			return mover.Pose.Y, nil
		}

		// Blocked on the very first attempt: another agent is stacked
		// below. Climb clear of it and retry with backoff.
		for i := 0; i < calibrationClimbCells; i++ {
			if err := mover.Up(); err != nil {
				return 0, err
			}
		}
		sleep(backoff)
		backoff *= 2
	}
	return 0, errs.New(errs.Blocked, "calibration exceeded climb-retry budget")
}
