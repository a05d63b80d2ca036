package pointcloud

import (
	"fmt"
	"math/rand/v2"
	"slices"
	"time"
)

// BucketOrder controls the order in which buckets, and therefore output
// rows, are emitted.
type BucketOrder int

const (
	// OrderFirstSeen lists buckets by the first input point that landed in each.
	OrderFirstSeen BucketOrder = iota
	// OrderLexicographic sorts buckets by (IX, IY, IZ).
	OrderLexicographic
)

func (o BucketOrder) String() string {
	switch o {
	case OrderFirstSeen:
		return "first-seen"
	case OrderLexicographic:
		return "lexicographic"
	default:
		return fmt.Sprintf("BucketOrder(%d)", int(o))
	}
}

// ParseBucketOrder accepts the names produced by BucketOrder.String.
// An empty string selects OrderFirstSeen.
func ParseBucketOrder(s string) (BucketOrder, error) {
	switch s {
	case "", "first-seen":
		return OrderFirstSeen, nil
	case "lexicographic":
		return OrderLexicographic, nil
	default:
		return 0, fmt.Errorf("%w: unknown bucket order %q", ErrInvalidConfiguration, s)
	}
}

// Rand is the random source used to pick representatives.
// *rand.Rand from math/rand/v2 satisfies it.
type Rand interface {
	IntN(n int) int
}

// NewRand returns a PCG-backed source for seed.
func NewRand(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

// TimeSeed derives a seed from the wall clock.
func TimeSeed() uint64 {
	return uint64(time.Now().UnixNano())
}

// Partition groups points into voxel buckets. Every input point ends up in
// exactly one bucket, and points keep their input order within a bucket.
func Partition(points []Point3, voxelSize float64, order BucketOrder) ([]VoxelBucket, error) {
	if err := validateVoxelSize(voxelSize); err != nil {
		return nil, err
	}
	if order != OrderFirstSeen && order != OrderLexicographic {
		return nil, fmt.Errorf("%w: unknown bucket order %d", ErrInvalidConfiguration, int(order))
	}
	if len(points) == 0 {
		return nil, nil
	}

	index := make(map[VoxelKey]int)
	var buckets []VoxelBucket
	for _, p := range points {
		key, err := keyOf(p, voxelSize)
		if err != nil {
			return nil, err
		}
		i, ok := index[key]
		if !ok {
			i = len(buckets)
			index[key] = i
			buckets = append(buckets, VoxelBucket{Key: key})
		}
		buckets[i].Points = append(buckets[i].Points, p)
	}

	if order == OrderLexicographic {
		slices.SortFunc(buckets, func(a, b VoxelBucket) int {
			switch {
			case a.Key.Less(b.Key):
				return -1
			case b.Key.Less(a.Key):
				return 1
			}
			return 0
		})
	}
	return buckets, nil
}

// Downsampler keeps one uniformly chosen point per occupied voxel.
type Downsampler struct {
	VoxelSize float64
	Order     BucketOrder
	// Rand picks representatives. A nil Rand is seeded from TimeSeed.
	Rand Rand
}

// Result is the output of one Downsampler.Run call.
type Result struct {
	Points  []Point3
	Buckets BucketSummary
}

// Run partitions points and draws one representative from each bucket,
// in bucket order. Each bucket consumes exactly one draw from d.Rand.
func (d *Downsampler) Run(points []Point3) (*Result, error) {
	buckets, err := Partition(points, d.VoxelSize, d.Order)
	if err != nil {
		return nil, err
	}
	res := &Result{Buckets: SummarizeBuckets(buckets)}
	if len(buckets) == 0 {
		return res, nil
	}

	rng := d.Rand
	if rng == nil {
		rng = NewRand(TimeSeed())
	}
	res.Points = make([]Point3, len(buckets))
	for i, b := range buckets {
		res.Points[i] = b.Points[rng.IntN(len(b.Points))]
	}
	return res, nil
}

// Downsample is Downsampler.Run with first-seen bucket order.
// Empty input yields a nil slice and no error.
func Downsample(points []Point3, voxelSize float64, rng Rand) ([]Point3, error) {
	d := Downsampler{VoxelSize: voxelSize, Order: OrderFirstSeen, Rand: rng}
	res, err := d.Run(points)
	if err != nil {
		return nil, err
	}
	return res.Points, nil
}
