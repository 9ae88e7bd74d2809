package movement

import (
	"encoding/json"

	"github.com/pkg/errors"

	"github.com/DannyDoesGraphics/auto-mine/internal/errs"
	"github.com/DannyDoesGraphics/auto-mine/internal/geometry"
	"github.com/DannyDoesGraphics/auto-mine/internal/journal"
	"github.com/DannyDoesGraphics/auto-mine/internal/xlog"
)

// stepPayload is what gets journaled for a single primitive step: enough to
// recompute the pose the step was attempting to reach, so a verifier can
// check whether it actually did.
type stepPayload struct {
	From geometry.Pose `json:"from"`
	To   geometry.Pose `json:"to"`
}

// Mover drives a World through five primitive steps (Forward, Up, Down,
// TurnLeft, TurnRight; there is no Back) and the clearing digs, gated by
// the bounding box and fuel, and journaled so a crash
// mid-step can be resolved deterministically on restart.
type Mover struct {
	World World
	J     *journal.Journal
	Pose  *geometry.Pose
	BBox  *geometry.BoundingBox

	ClearRetryLimit int

	// AllowOutsideBBox suspends the bounding-box check, the way calibration
	// descent runs before the box is engaged (spec.md §4.2, §4.4). Fuel and
	// deposit chests sit in the fixed home area just behind the spawn
	// column, outside the mining volume, so the protocols that visit them
	// set this for the duration of that trip.
	AllowOutsideBBox bool

	log xlog.Logger
}

// New constructs a Mover and registers its journal verifiers. pose and bbox
// are shared with the rest of the agent's components and mutated in place.
func New(world World, j *journal.Journal, pose *geometry.Pose, bbox *geometry.BoundingBox, clearRetryLimit int) *Mover {
	m := &Mover{
		World:           world,
		J:               j,
		Pose:            pose,
		BBox:            bbox,
		ClearRetryLimit: clearRetryLimit,
		log:             xlog.NewModuleLogger("movement"),
	}
	m.registerVerifiers()
	return m
}

// registerVerifiers binds a verifier per journal.Kind this package can
// journal: the pose comparison itself is the verification, since a
// completed move/turn is exactly "pose already equals To".
func (m *Mover) registerVerifiers() {
	poseVerifier := func(payload json.RawMessage) (bool, error) {
		var p stepPayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return false, errors.Wrap(err, "movement: verifier unmarshal")
		}
		return *m.Pose == p.To, nil
	}
	m.J.Register(journal.MoveForward, poseVerifier)
	m.J.Register(journal.MoveUp, poseVerifier)
	m.J.Register(journal.MoveDown, poseVerifier)
	m.J.Register(journal.TurnLeft, poseVerifier)
	m.J.Register(journal.TurnRight, poseVerifier)

	// A dig is idempotent: if the target is already clear, the dig already
	// happened (or there was nothing there), either way it verifies true.
	digVerifier := func(face Face) journal.Verifier {
		return func(payload json.RawMessage) (bool, error) {
			blocked, err := m.World.Detect(face)
			if err != nil {
				return false, err
			}
			return !blocked, nil
		}
	}
	m.J.Register(journal.DigForward, digVerifier(FaceForward))
	m.J.Register(journal.DigUp, digVerifier(FaceUp))
	m.J.Register(journal.DigDown, digVerifier(FaceDown))
}

func (m *Mover) checkFuel() error {
	level, err := m.World.FuelLevel()
	if err != nil {
		return err
	}
	if level < 1 {
		return errs.New(errs.FuelExhausted, "fuel below minimum to move")
	}
	return nil
}

// clear runs detect -> dig -> attack against face until the path is clear or
// the retry budget is spent, returning errs.Blocked on exhaustion.
func (m *Mover) clear(face Face) error {
	for attempt := 0; attempt < m.ClearRetryLimit; attempt++ {
		blocked, err := m.World.Detect(face)
		if err != nil {
			return err
		}
		if !blocked {
			return nil
		}
		if err := m.World.Dig(face); err != nil {
			return err
		}
		// A mob/entity can re-occupy the space a tick after digging; attack
		// clears that case before the next detect.
		if err := m.World.Attack(face); err != nil {
			return err
		}
	}
	blocked, err := m.World.Detect(face)
	if err != nil {
		return err
	}
	if blocked {
		return errs.New(errs.Blocked, "obstruction survived clear-retry budget")
	}
	return nil
}

func (m *Mover) target(dz, dy, dx int) geometry.Pose {
	return geometry.Pose{X: m.Pose.X + dx, Y: m.Pose.Y + dy, Z: m.Pose.Z + dz, Dir: m.Pose.Dir}
}

func (m *Mover) step(kind journal.Kind, face Face, to geometry.Pose, move func() (bool, error)) error {
	if !m.AllowOutsideBBox && !m.BBox.ContainsPose(to) {
		return errs.New(errs.OutOfBounds, "target pose leaves bounding box")
	}
	if err := m.checkFuel(); err != nil {
		return err
	}
	if err := m.clear(face); err != nil {
		return err
	}

	id, err := m.J.Begin(kind, stepPayload{From: *m.Pose, To: to})
	if err != nil {
		return err
	}

	ok, err := move()
	if err != nil {
		return err
	}
	if !ok {
		// The clear pass above should have made this unreachable outside of
		// a race with another mover; surface it as Blocked rather than
		// silently completing the journal entry against a stale pose.
		return errs.New(errs.Blocked, "native move reported obstruction after clear")
	}

	*m.Pose = to
	return m.J.Complete(id)
}

// Forward advances one block along the current facing.
func (m *Mover) Forward() error {
	dx, dz := m.Pose.Dir.Vector()
	to := m.target(dz, 0, dx)
	return m.step(journal.MoveForward, FaceForward, to, m.World.MoveForward)
}

// Up ascends one block.
func (m *Mover) Up() error {
	to := m.target(0, 1, 0)
	return m.step(journal.MoveUp, FaceUp, to, m.World.MoveUp)
}

// Down descends one block.
func (m *Mover) Down() error {
	to := m.target(0, -1, 0)
	return m.step(journal.MoveDown, FaceDown, to, m.World.MoveDown)
}

// TurnLeft rotates counter-clockwise in place; turning never leaves the
// bounding box and never needs to clear an obstruction.
func (m *Mover) TurnLeft() error {
	to := *m.Pose
	to.Dir = m.Pose.Dir.Left()
	if err := m.checkFuel(); err != nil {
		return err
	}
	id, err := m.J.Begin(journal.TurnLeft, stepPayload{From: *m.Pose, To: to})
	if err != nil {
		return err
	}
	if err := m.World.TurnLeft(); err != nil {
		return err
	}
	*m.Pose = to
	return m.J.Complete(id)
}

// TurnRight rotates clockwise in place.
func (m *Mover) TurnRight() error {
	to := *m.Pose
	to.Dir = m.Pose.Dir.Right()
	if err := m.checkFuel(); err != nil {
		return err
	}
	id, err := m.J.Begin(journal.TurnRight, stepPayload{From: *m.Pose, To: to})
	if err != nil {
		return err
	}
	if err := m.World.TurnRight(); err != nil {
		return err
	}
	*m.Pose = to
	return m.J.Complete(id)
}

// FaceTo issues the minimal sequence of turns to reach the given facing.
func (m *Mover) FaceTo(dir geometry.Dir) error {
	for m.Pose.Dir != dir {
		// Two lefts is never shorter than one right-or-left in a 4-facing
		// compass, so a single-step greedy turn is already optimal.
		if geometry.Normalize(int(dir)-int(m.Pose.Dir)) == 3 {
			if err := m.TurnLeft(); err != nil {
				return err
			}
		} else {
			if err := m.TurnRight(); err != nil {
				return err
			}
		}
	}
	return nil
}

// DigForward clears whatever is directly ahead without moving into it,
// e.g. when tunneling out a new chunk.
func (m *Mover) DigForward() error { return m.digOnly(journal.DigForward, FaceForward) }
func (m *Mover) DigUp() error      { return m.digOnly(journal.DigUp, FaceUp) }
func (m *Mover) DigDown() error    { return m.digOnly(journal.DigDown, FaceDown) }

func (m *Mover) digOnly(kind journal.Kind, face Face) error {
	if err := m.checkFuel(); err != nil {
		return err
	}
	id, err := m.J.Begin(kind, stepPayload{From: *m.Pose, To: *m.Pose})
	if err != nil {
		return err
	}
	if err := m.clear(face); err != nil {
		return err
	}
	return m.J.Complete(id)
}
