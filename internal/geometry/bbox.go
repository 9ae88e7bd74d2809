package geometry

// BoundingBox is the axis-aligned integer region [0..MaxX]x[0..MaxY]x[0..MaxZ]
// agents may enter. Immutable within a ConfigVersion; callers bump
// ConfigVersion and replace the box wholesale on any change.
type BoundingBox struct {
	MaxX, MaxY, MaxZ int
	ConfigVersion    uint64
}

// Contains reports whether (x,y,z) lies within the box, inclusive.
func (b BoundingBox) Contains(x, y, z int) bool {
	return x >= 0 && x <= b.MaxX &&
		y >= 0 && y <= b.MaxY &&
		z >= 0 && z <= b.MaxZ
}

// ContainsPose reports whether pose.{X,Y,Z} lies within the box.
func (b BoundingBox) ContainsPose(p Pose) bool {
	return b.Contains(p.X, p.Y, p.Z)
}
