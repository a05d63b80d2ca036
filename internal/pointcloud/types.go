package pointcloud

import (
	"fmt"
	"math"
)

// Point3 is a single cloud sample in input coordinates.
type Point3 struct {
	X, Y, Z float64
}

// VoxelKey identifies one cell of the voxel grid.
type VoxelKey struct {
	IX, IY, IZ int64
}

// Less orders keys lexicographically on (IX, IY, IZ).
func (k VoxelKey) Less(o VoxelKey) bool {
	if k.IX != o.IX {
		return k.IX < o.IX
	}
	if k.IY != o.IY {
		return k.IY < o.IY
	}
	return k.IZ < o.IZ
}

// VoxelBucket holds every input point that shares Key.
type VoxelBucket struct {
	Key    VoxelKey
	Points []Point3
}

// maxVoxelIndex keeps rounded indices well inside int64.
const maxVoxelIndex = 1 << 62

// KeyOf returns the voxel containing p for a grid of edge voxelSize.
func KeyOf(p Point3, voxelSize float64) (VoxelKey, error) {
	if err := validateVoxelSize(voxelSize); err != nil {
		return VoxelKey{}, err
	}
	return keyOf(p, voxelSize)
}

// keyOf is KeyOf for a voxel size that has already been validated.
func keyOf(p Point3, voxelSize float64) (VoxelKey, error) {
	ix, okX := axisIndex(p.X, voxelSize)
	iy, okY := axisIndex(p.Y, voxelSize)
	iz, okZ := axisIndex(p.Z, voxelSize)
	if !okX || !okY || !okZ {
		return VoxelKey{}, fmt.Errorf("%w: (%g, %g, %g) at voxel size %g", ErrInvalidPoint, p.X, p.Y, p.Z, voxelSize)
	}
	return VoxelKey{IX: ix, IY: iy, IZ: iz}, nil
}

func axisIndex(coord, voxelSize float64) (int64, bool) {
	r := math.Round(coord / voxelSize)
	if math.IsNaN(r) || r > maxVoxelIndex || r < -maxVoxelIndex {
		return 0, false
	}
	return int64(r), true
}

func validateVoxelSize(voxelSize float64) error {
	if !(voxelSize > 0) || math.IsInf(voxelSize, 1) {
		return fmt.Errorf("%w: voxel size must be positive and finite, got %g", ErrInvalidConfiguration, voxelSize)
	}
	return nil
}
