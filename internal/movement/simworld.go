package movement

import (
	"github.com/DannyDoesGraphics/auto-mine/internal/geometry"
)

// SimWorld is an in-memory World used by tests and the local dev harness in
// place of the real agent runtime. Blocks are a sparse set of occupied
// cells; fuel decrements by one per primitive action.
type SimWorld struct {
	Pose  geometry.Pose
	Fuel  int
	Cells map[[3]int]bool
}

// NewSimWorld returns a SimWorld positioned at the origin with the given
// starting fuel and no blocks occupied.
func NewSimWorld(fuel int) *SimWorld {
	return &SimWorld{Fuel: fuel, Cells: make(map[[3]int]bool)}
}

// Block marks a cell as occupied, so Detect/Dig/Move against it behave as if
// there were a block there.
func (w *SimWorld) Block(x, y, z int) { w.Cells[[3]int{x, y, z}] = true }

func (w *SimWorld) cellAt(face Face) [3]int {
	switch face {
	case FaceUp:
		return [3]int{w.Pose.X, w.Pose.Y + 1, w.Pose.Z}
	case FaceDown:
		return [3]int{w.Pose.X, w.Pose.Y - 1, w.Pose.Z}
	default:
		dx, dz := w.Pose.Dir.Vector()
		return [3]int{w.Pose.X + dx, w.Pose.Y, w.Pose.Z + dz}
	}
}

func (w *SimWorld) spendFuel() {
	if w.Fuel > 0 {
		w.Fuel--
	}
}

func (w *SimWorld) MoveForward() (bool, error) {
	cell := w.cellAt(FaceForward)
	if w.Cells[cell] {
		return false, nil
	}
	w.spendFuel()
	w.Pose.X, w.Pose.Z = cell[0], cell[2]
	return true, nil
}

func (w *SimWorld) MoveBack() (bool, error) {
	dx, dz := w.Pose.Dir.Vector()
	cell := [3]int{w.Pose.X - dx, w.Pose.Y, w.Pose.Z - dz}
	if w.Cells[cell] {
		return false, nil
	}
	w.spendFuel()
	w.Pose.X, w.Pose.Z = cell[0], cell[2]
	return true, nil
}

func (w *SimWorld) MoveUp() (bool, error) {
	cell := w.cellAt(FaceUp)
	if w.Cells[cell] {
		return false, nil
	}
	w.spendFuel()
	w.Pose.Y = cell[1]
	return true, nil
}

func (w *SimWorld) MoveDown() (bool, error) {
	cell := w.cellAt(FaceDown)
	if w.Cells[cell] {
		return false, nil
	}
	w.spendFuel()
	w.Pose.Y = cell[1]
	return true, nil
}

func (w *SimWorld) TurnLeft() error {
	w.spendFuel()
	w.Pose.Dir = w.Pose.Dir.Left()
	return nil
}

func (w *SimWorld) TurnRight() error {
	w.spendFuel()
	w.Pose.Dir = w.Pose.Dir.Right()
	return nil
}

func (w *SimWorld) Detect(face Face) (bool, error) {
	return w.Cells[w.cellAt(face)], nil
}

func (w *SimWorld) Dig(face Face) error {
	delete(w.Cells, w.cellAt(face))
	return nil
}

func (w *SimWorld) Attack(face Face) error { return nil }

func (w *SimWorld) FuelLevel() (int, error) { return w.Fuel, nil }
