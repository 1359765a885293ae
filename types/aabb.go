package types

import "math"

// An axis-aligned bounding box described by its min corner and its extent
// along each axis. The Y extent is derived from the contained geometry and
// is not authoritative until assignment has run (see the scene package).
type AABB struct {
	Pos  Vec3
	Size Vec3
}

// Get the max corner of the box.
func (b AABB) Max() Vec3 {
	return b.Pos.Add(b.Size)
}

// Get the box center.
func (b AABB) Center() Vec3 {
	return b.Pos.Add(b.Size.Mul(0.5))
}

// Check whether the X/Z projection of p falls inside the box expanded by eps
// on each side. The Y axis is intentionally ignored; quadtree partitioning
// only splits along X and Z.
func (b AABB) ContainsXZ(x, z, eps float32) bool {
	return x >= b.Pos[0]-eps && x <= b.Pos[0]+b.Size[0]+eps &&
		z >= b.Pos[2]-eps && z <= b.Pos[2]+b.Size[2]+eps
}

// Slab test for a ray against the box. Returns the entry distance along the
// ray and whether the ray intersects the box at all. Rays starting inside
// the box report an entry distance of 0.
func (b AABB) IntersectRay(origin, dir Vec3) (float32, bool) {
	tmin := float32(math.Inf(-1))
	tmax := float32(math.Inf(1))

	max := b.Max()
	for axis := 0; axis < 3; axis++ {
		if dir[axis] != 0 {
			inv := 1.0 / dir[axis]
			t0 := (b.Pos[axis] - origin[axis]) * inv
			t1 := (max[axis] - origin[axis]) * inv
			if t0 > t1 {
				t0, t1 = t1, t0
			}
			if t0 > tmin {
				tmin = t0
			}
			if t1 < tmax {
				tmax = t1
			}
		} else if origin[axis] < b.Pos[axis] || origin[axis] > max[axis] {
			return 0, false
		}
	}

	if tmax < tmin || tmax < 0 {
		return 0, false
	}
	if tmin < 0 {
		tmin = 0
	}
	return tmin, true
}
