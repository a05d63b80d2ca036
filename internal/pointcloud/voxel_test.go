package pointcloud

import (
	"errors"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingRand always picks index pick (clamped) and counts draws.
type countingRand struct {
	pick  int
	calls int
	sizes []int
}

func (r *countingRand) IntN(n int) int {
	r.calls++
	r.sizes = append(r.sizes, n)
	if r.pick >= n {
		return n - 1
	}
	return r.pick
}

// gridCloud places per points near the centre of each voxel in an
// nx*ny*nz block, well away from voxel boundaries.
func gridCloud(nx, ny, nz, per int, size float64, seed uint64) []Point3 {
	rng := NewRand(seed)
	jitter := func() float64 { return (rng.Float64() - 0.5) * 0.6 * size }
	var points []Point3
	for x := 0; x < nx; x++ {
		for y := 0; y < ny; y++ {
			for z := 0; z < nz; z++ {
				for i := 0; i < per; i++ {
					points = append(points, Point3{
						X: float64(x-nx/2)*size + jitter(),
						Y: float64(y-ny/2)*size + jitter(),
						Z: float64(z)*size + jitter(),
					})
				}
			}
		}
	}
	return points
}

func TestKeyOf(t *testing.T) {
	tests := []struct {
		name string
		p    Point3
		size float64
		want VoxelKey
	}{
		{"origin", Point3{0, 0, 0}, 0.01, VoxelKey{0, 0, 0}},
		{"inside origin voxel", Point3{0.001, 0.001, 0.001}, 0.01, VoxelKey{0, 0, 0}},
		{"unit", Point3{1, 1, 1}, 0.01, VoxelKey{100, 100, 100}},
		{"negative small rounds to zero", Point3{-0.4, 0.4, -0.49}, 1, VoxelKey{0, 0, 0}},
		{"negative", Point3{-0.6, -1.4, -2.6}, 1, VoxelKey{-1, -1, -3}},
		{"half away from zero", Point3{0.5, -0.5, 2.5}, 1, VoxelKey{1, -1, 3}},
		{"large voxel", Point3{120, -80, 3}, 100, VoxelKey{1, -1, 0}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := KeyOf(tt.p, tt.size)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestKeyOf_Errors(t *testing.T) {
	_, err := KeyOf(Point3{1, 2, 3}, 0)
	assert.ErrorIs(t, err, ErrInvalidConfiguration)

	_, err = KeyOf(Point3{1, 2, 3}, math.NaN())
	assert.ErrorIs(t, err, ErrInvalidConfiguration)

	_, err = KeyOf(Point3{math.Inf(1), 0, 0}, 1)
	assert.ErrorIs(t, err, ErrInvalidPoint)

	_, err = KeyOf(Point3{0, math.NaN(), 0}, 1)
	assert.ErrorIs(t, err, ErrInvalidPoint)

	_, err = KeyOf(Point3{0, 0, 1e300}, 1e-10)
	assert.ErrorIs(t, err, ErrInvalidPoint)
}

func TestVoxelKey_Less(t *testing.T) {
	assert.True(t, VoxelKey{0, 5, 5}.Less(VoxelKey{1, 0, 0}))
	assert.True(t, VoxelKey{1, 0, 5}.Less(VoxelKey{1, 1, 0}))
	assert.True(t, VoxelKey{1, 1, 0}.Less(VoxelKey{1, 1, 1}))
	assert.False(t, VoxelKey{1, 1, 1}.Less(VoxelKey{1, 1, 1}))
	assert.False(t, VoxelKey{2, 0, 0}.Less(VoxelKey{1, 9, 9}))
}

func TestParseBucketOrder(t *testing.T) {
	for _, o := range []BucketOrder{OrderFirstSeen, OrderLexicographic} {
		got, err := ParseBucketOrder(o.String())
		require.NoError(t, err)
		assert.Equal(t, o, got)
	}

	got, err := ParseBucketOrder("")
	require.NoError(t, err)
	assert.Equal(t, OrderFirstSeen, got)

	_, err = ParseBucketOrder("sorted")
	assert.ErrorIs(t, err, ErrInvalidConfiguration)
	assert.Equal(t, "BucketOrder(9)", BucketOrder(9).String())
}

func TestPartition_Property(t *testing.T) {
	const size = 0.5
	points := gridCloud(4, 3, 2, 5, size, 1)

	buckets, err := Partition(points, size, OrderFirstSeen)
	require.NoError(t, err)
	require.Len(t, buckets, 4*3*2)

	// Every point lands in exactly one bucket and the union is the input.
	seen := make(map[Point3]int)
	total := 0
	keys := make(map[VoxelKey]bool)
	for _, b := range buckets {
		assert.False(t, keys[b.Key], "duplicate bucket for %v", b.Key)
		keys[b.Key] = true
		assert.NotEmpty(t, b.Points)
		for _, p := range b.Points {
			k, err := KeyOf(p, size)
			require.NoError(t, err)
			assert.Equal(t, b.Key, k)
			seen[p]++
			total++
		}
	}
	assert.Equal(t, len(points), total)
	for _, p := range points {
		assert.Equal(t, 1, seen[p], "point %v", p)
	}
}

func TestPartition_FirstSeenOrder(t *testing.T) {
	points := []Point3{
		{5, 5, 5},
		{-3, 0, 0},
		{5.1, 5.1, 5.1},
		{0, 0, 0},
		{-3.2, 0, 0},
	}
	buckets, err := Partition(points, 1, OrderFirstSeen)
	require.NoError(t, err)

	want := []VoxelBucket{
		{Key: VoxelKey{5, 5, 5}, Points: []Point3{{5, 5, 5}, {5.1, 5.1, 5.1}}},
		{Key: VoxelKey{-3, 0, 0}, Points: []Point3{{-3, 0, 0}, {-3.2, 0, 0}}},
		{Key: VoxelKey{0, 0, 0}, Points: []Point3{{0, 0, 0}}},
	}
	if diff := cmp.Diff(want, buckets); diff != "" {
		t.Errorf("buckets mismatch (-want +got):\n%s", diff)
	}
}

func TestPartition_LexicographicOrder(t *testing.T) {
	points := []Point3{
		{5, 5, 5},
		{-3, 0, 0},
		{0, 1, 0},
		{0, 0, 2},
		{0, 0, 1},
	}
	buckets, err := Partition(points, 1, OrderLexicographic)
	require.NoError(t, err)

	var keys []VoxelKey
	for _, b := range buckets {
		keys = append(keys, b.Key)
	}
	want := []VoxelKey{{-3, 0, 0}, {0, 0, 1}, {0, 0, 2}, {0, 1, 0}, {5, 5, 5}}
	if diff := cmp.Diff(want, keys); diff != "" {
		t.Errorf("key order mismatch (-want +got):\n%s", diff)
	}
}

func TestPartition_Errors(t *testing.T) {
	_, err := Partition([]Point3{{0, 0, 0}}, -1, OrderFirstSeen)
	assert.ErrorIs(t, err, ErrInvalidConfiguration)

	_, err = Partition([]Point3{{0, 0, 0}}, 1, BucketOrder(7))
	assert.ErrorIs(t, err, ErrInvalidConfiguration)

	_, err = Partition([]Point3{{0, 0, 0}, {math.NaN(), 0, 0}}, 1, OrderFirstSeen)
	assert.ErrorIs(t, err, ErrInvalidPoint)

	buckets, err := Partition(nil, 1, OrderFirstSeen)
	require.NoError(t, err)
	assert.Empty(t, buckets)
}

func TestDownsample_ScenarioA(t *testing.T) {
	in := []Point3{{0, 0, 0}, {0.001, 0.001, 0.001}}

	out, err := Downsample(in, 0.01, NewRand(1))
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Contains(t, in, out[0])
}

func TestDownsample_ScenarioB(t *testing.T) {
	in := []Point3{{0, 0, 0}, {1, 1, 1}}

	out, err := Downsample(in, 0.01, NewRand(1))
	require.NoError(t, err)
	// Single-member buckets in first-seen order reproduce the input exactly.
	if diff := cmp.Diff(in, out); diff != "" {
		t.Errorf("output mismatch (-want +got):\n%s", diff)
	}
}

func TestDownsample_Empty(t *testing.T) {
	out, err := Downsample(nil, 0.01, NewRand(1))
	require.NoError(t, err)
	assert.Empty(t, out)

	out, err = Downsample([]Point3{}, 0.01, nil)
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestDownsample_InvalidVoxelSize(t *testing.T) {
	for _, size := range []float64{0, -0.01, math.NaN(), math.Inf(1), math.Inf(-1)} {
		_, err := Downsample([]Point3{{1, 2, 3}}, size, NewRand(1))
		assert.ErrorIs(t, err, ErrInvalidConfiguration, "voxel size %g", size)
	}
	_, err := Downsample(nil, 0, NewRand(1))
	assert.ErrorIs(t, err, ErrInvalidConfiguration)
}

func TestDownsample_CardinalityAndMembership(t *testing.T) {
	const size = 0.2
	points := gridCloud(5, 5, 3, 7, size, 2)

	out, err := Downsample(points, size, NewRand(3))
	require.NoError(t, err)

	distinct := make(map[VoxelKey]bool)
	for _, p := range points {
		k, err := KeyOf(p, size)
		require.NoError(t, err)
		distinct[k] = true
	}
	assert.Len(t, out, len(distinct))

	inputSet := make(map[Point3]bool, len(points))
	for _, p := range points {
		inputSet[p] = true
	}
	outKeys := make(map[VoxelKey]bool)
	for _, p := range out {
		assert.True(t, inputSet[p], "fabricated point %v", p)
		k, _ := KeyOf(p, size)
		assert.False(t, outKeys[k], "two representatives for voxel %v", k)
		outKeys[k] = true
	}
}

func TestDownsample_Idempotent(t *testing.T) {
	const size = 0.05
	points := gridCloud(6, 4, 4, 3, size, 4)

	once, err := Downsample(points, size, NewRand(10))
	require.NoError(t, err)
	twice, err := Downsample(once, size, NewRand(11))
	require.NoError(t, err)

	assert.Len(t, twice, len(once))
	// Each voxel already has one point, so the second pass is the identity.
	if diff := cmp.Diff(once, twice); diff != "" {
		t.Errorf("re-application changed output (-once +twice):\n%s", diff)
	}
}

func TestDownsample_FixedSeedReproducible(t *testing.T) {
	points := gridCloud(3, 3, 3, 10, 1, 5)

	a, err := Downsample(points, 1, NewRand(99))
	require.NoError(t, err)
	b, err := Downsample(points, 1, NewRand(99))
	require.NoError(t, err)

	if diff := cmp.Diff(a, b); diff != "" {
		t.Errorf("same seed produced different output (-a +b):\n%s", diff)
	}
}

func TestDownsampler_OneDrawPerBucket(t *testing.T) {
	points := []Point3{
		{0, 0, 0}, {0.1, 0, 0}, {0.2, 0, 0},
		{5, 5, 5},
		{9, 9, 9}, {9.1, 9.1, 9.1},
	}
	rng := &countingRand{pick: 1}
	d := Downsampler{VoxelSize: 1, Order: OrderFirstSeen, Rand: rng}

	res, err := d.Run(points)
	require.NoError(t, err)

	assert.Equal(t, 3, rng.calls)
	assert.Equal(t, []int{3, 1, 2}, rng.sizes)
	want := []Point3{{0.1, 0, 0}, {5, 5, 5}, {9.1, 9.1, 9.1}}
	if diff := cmp.Diff(want, res.Points); diff != "" {
		t.Errorf("representatives mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, BucketSummary{Occupied: 3, MaxOccupancy: 3, MeanOccupancy: 2}, res.Buckets)
}

func TestDownsampler_LexicographicOutputOrder(t *testing.T) {
	points := []Point3{{3, 0, 0}, {1, 0, 0}, {2, 0, 0}}
	d := Downsampler{VoxelSize: 1, Order: OrderLexicographic, Rand: NewRand(1)}

	res, err := d.Run(points)
	require.NoError(t, err)
	want := []Point3{{1, 0, 0}, {2, 0, 0}, {3, 0, 0}}
	if diff := cmp.Diff(want, res.Points); diff != "" {
		t.Errorf("output order mismatch (-want +got):\n%s", diff)
	}
}

func TestDownsampler_NilRandUsesTimeSeed(t *testing.T) {
	d := Downsampler{VoxelSize: 1}
	res, err := d.Run([]Point3{{0, 0, 0}, {0.1, 0.1, 0.1}})
	require.NoError(t, err)
	assert.Len(t, res.Points, 1)
}

func TestDownsample_Uniformity(t *testing.T) {
	bucket := []Point3{{0, 0, 0}, {0.1, 0, 0}, {0, 0.1, 0}, {0, 0, 0.1}}
	const trials = 4000
	counts := make(map[Point3]int)

	for seed := uint64(0); seed < trials; seed++ {
		out, err := Downsample(bucket, 1, NewRand(seed))
		require.NoError(t, err)
		require.Len(t, out, 1)
		counts[out[0]]++
	}

	// Expected 1000 per member; sd is about 27, so +/-200 is far outside noise.
	for _, p := range bucket {
		assert.InDelta(t, trials/len(bucket), counts[p], 200, "member %v selected %d times", p, counts[p])
	}
}

func TestDownsample_SelectionIndependentOfInsertionOrder(t *testing.T) {
	fwd := []Point3{{0, 0, 0}, {0.1, 0, 0}, {0.2, 0, 0}}
	rev := []Point3{{0.2, 0, 0}, {0.1, 0, 0}, {0, 0, 0}}
	const trials = 3000
	countFwd := make(map[Point3]int)
	countRev := make(map[Point3]int)

	for seed := uint64(0); seed < trials; seed++ {
		a, err := Downsample(fwd, 1, NewRand(seed))
		require.NoError(t, err)
		b, err := Downsample(rev, 1, NewRand(seed+trials))
		require.NoError(t, err)
		countFwd[a[0]]++
		countRev[b[0]]++
	}
	for _, p := range fwd {
		assert.InDelta(t, trials/3, countFwd[p], 200)
		assert.InDelta(t, trials/3, countRev[p], 200)
	}
}

func TestDownsample_InvalidPointPropagates(t *testing.T) {
	_, err := Downsample([]Point3{{0, 0, 0}, {math.Inf(-1), 0, 0}}, 1, NewRand(1))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidPoint))
}
