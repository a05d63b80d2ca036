package pointcloud

import (
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// CloudStats summarises the extent of a cloud.
type CloudStats struct {
	Count    int
	Min      Point3
	Max      Point3
	Centroid Point3
}

// Summarize computes bounds and centroid. Empty input gives zero stats.
func Summarize(points []Point3) CloudStats {
	if len(points) == 0 {
		return CloudStats{}
	}
	xs, ys, zs := columns(points)
	return CloudStats{
		Count:    len(points),
		Min:      Point3{X: floats.Min(xs), Y: floats.Min(ys), Z: floats.Min(zs)},
		Max:      Point3{X: floats.Max(xs), Y: floats.Max(ys), Z: floats.Max(zs)},
		Centroid: Point3{X: stat.Mean(xs, nil), Y: stat.Mean(ys, nil), Z: stat.Mean(zs, nil)},
	}
}

// Extent returns the size of the bounding box along each axis.
func (s CloudStats) Extent() Point3 {
	return Point3{X: s.Max.X - s.Min.X, Y: s.Max.Y - s.Min.Y, Z: s.Max.Z - s.Min.Z}
}

// BucketSummary describes voxel occupancy after partitioning.
type BucketSummary struct {
	Occupied      int     // number of non-empty voxels
	MaxOccupancy  int     // most points in one voxel
	MeanOccupancy float64 // average points per occupied voxel
}

// SummarizeBuckets reports occupancy for buckets.
func SummarizeBuckets(buckets []VoxelBucket) BucketSummary {
	if len(buckets) == 0 {
		return BucketSummary{}
	}
	sizes := make([]float64, len(buckets))
	for i, b := range buckets {
		sizes[i] = float64(len(b.Points))
	}
	return BucketSummary{
		Occupied:      len(buckets),
		MaxOccupancy:  int(floats.Max(sizes)),
		MeanOccupancy: stat.Mean(sizes, nil),
	}
}

func columns(points []Point3) (xs, ys, zs []float64) {
	xs = make([]float64, len(points))
	ys = make([]float64, len(points))
	zs = make([]float64, len(points))
	for i, p := range points {
		xs[i], ys[i], zs[i] = p.X, p.Y, p.Z
	}
	return xs, ys, zs
}
