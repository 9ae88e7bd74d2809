// Package movement implements five primitive motion steps (forward, up,
// down, turn left, turn right) plus clearing digs, gated by the bounding
// box, fuel, and the journal (spec.md §4.2). There is no backward step;
// World.MoveBack is not used by Mover.
package movement

// Face names one of the three directions a turtle-style action can target:
// whatever is directly ahead, directly above, or directly below.
type Face int

const (
	FaceForward Face = iota
	FaceUp
	FaceDown
)

// World is the native action surface Movement drives. It stands in for the
// real hardware/game API (turtle.forward(), turtle.dig(), ...); production
// wiring talks to the actual agent runtime, while World lets the
// coordination logic in this repository — the part this module specifies —
// be exercised and tested without that runtime present.
type World interface {
	// Move attempts one native step in the given direction; ok is false
	// when the destination was obstructed (not on a hard failure, which is
	// returned as err).
	MoveForward() (ok bool, err error)
	MoveBack() (ok bool, err error)
	MoveUp() (ok bool, err error)
	MoveDown() (ok bool, err error)
	TurnLeft() error
	TurnRight() error

	Detect(face Face) (blocked bool, err error)
	Dig(face Face) error
	Attack(face Face) error

	FuelLevel() (int, error)
}
