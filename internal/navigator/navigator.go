// Package navigator drives Mover through multi-step paths using the
// axis-ordered y, x, z traversal AutoMine agents use to stay predictable
// and avoid cutting through un-mined rock diagonally.
package navigator

import (
	"github.com/DannyDoesGraphics/auto-mine/internal/geometry"
	"github.com/DannyDoesGraphics/auto-mine/internal/movement"
	"github.com/DannyDoesGraphics/auto-mine/internal/xlog"
)

// Navigator sequences Mover calls to walk from the agent's current pose to a
// target position, one axis at a time: first Y (vertical), then X, then Z.
type Navigator struct {
	Mover *movement.Mover
	log   xlog.Logger
}

func New(mover *movement.Mover) *Navigator {
	return &Navigator{Mover: mover, log: xlog.NewModuleLogger("navigator")}
}

// GoTo walks the agent to (x, y, z), leaving its final facing unspecified.
// Each primitive step is itself journaled and bounds/fuel-checked by Mover,
// so GoTo can be interrupted and resumed mid-path: a caller that reinvokes
// GoTo after a crash simply continues from wherever the pose ended up.
func (n *Navigator) GoTo(x, y, z int) error {
	if err := n.moveAxisY(y); err != nil {
		return err
	}
	if err := n.moveAxisX(x); err != nil {
		return err
	}
	if err := n.moveAxisZ(z); err != nil {
		return err
	}
	return nil
}

func (n *Navigator) moveAxisY(target int) error {
	for n.Mover.Pose.Y < target {
		if err := n.Mover.Up(); err != nil {
			return err
		}
	}
	for n.Mover.Pose.Y > target {
		if err := n.Mover.Down(); err != nil {
			return err
		}
	}
	return nil
}

func (n *Navigator) moveAxisX(target int) error {
	if n.Mover.Pose.X == target {
		return nil
	}
	dir := geometry.DirEast
	if target < n.Mover.Pose.X {
		dir = geometry.DirWest
	}
	if err := n.Mover.FaceTo(dir); err != nil {
		return err
	}
	for n.Mover.Pose.X != target {
		if err := n.Mover.Forward(); err != nil {
			return err
		}
	}
	return nil
}

func (n *Navigator) moveAxisZ(target int) error {
	if n.Mover.Pose.Z == target {
		return nil
	}
	dir := geometry.DirNorth
	if target < n.Mover.Pose.Z {
		dir = geometry.DirSouth
	}
	if err := n.Mover.FaceTo(dir); err != nil {
		return err
	}
	for n.Mover.Pose.Z != target {
		if err := n.Mover.Forward(); err != nil {
			return err
		}
	}
	return nil
}
