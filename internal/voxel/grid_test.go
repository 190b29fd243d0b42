package voxel

import (
	"math"
	"math/rand"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Brownie44l1/swinvox-api/internal/reconerr"
	"github.com/Brownie44l1/swinvox-api/internal/tensor"
)

func TestThreshold_SingleCell(t *testing.T) {
	tests := []struct {
		p    float32
		want uint8
	}{
		{0.6, 1},
		{0.4, 0},
		{0.5, 0}, // strictly greater
		{1, 1},
		{0, 0},
	}
	for _, tc := range tests {
		o, err := NewOccupancy(1, []float32{tc.p})
		require.NoError(t, err)
		g, err := Threshold(o, DefaultThreshold)
		require.NoError(t, err)
		assert.Equal(t, []uint8{tc.want}, g.Cells(), "p=%v", tc.p)
	}
}

func TestThreshold_RejectsNonFinite(t *testing.T) {
	for _, v := range []float32{float32(math.NaN()), float32(math.Inf(1)), float32(math.Inf(-1))} {
		o, err := NewOccupancy(2, []float32{0, 0, 0, 0, 0, 0, 0, v})
		require.NoError(t, err)
		_, err = Threshold(o, DefaultThreshold)
		assert.True(t, reconerr.Is(err, reconerr.InvalidOccupancy), "value %v", v)
	}
}

func TestThreshold_Idempotent(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	for _, d := range []int{1, 2, 5, 8} {
		values := make([]float32, d*d*d)
		for i := range values {
			values[i] = rng.Float32()
		}
		o, err := NewOccupancy(d, values)
		require.NoError(t, err)

		once, err := Threshold(o, 0.5)
		require.NoError(t, err)
		twice, err := Threshold(once.AsOccupancy(), 0.5)
		require.NoError(t, err)
		assert.Equal(t, once.Cells(), twice.Cells())
	}
}

func TestGrid_EachScansXMajor(t *testing.T) {
	g, err := NewGrid(2)
	require.NoError(t, err)
	g.Set(1, 0, 0, true)
	g.Set(0, 1, 1, true)
	g.Set(0, 0, 1, true)

	var got [][3]int
	g.Each(func(x, y, z int) { got = append(got, [3]int{x, y, z}) })
	assert.Equal(t, [][3]int{{0, 0, 1}, {0, 1, 1}, {1, 0, 0}}, got)
	assert.Equal(t, 3, g.Count())
	assert.True(t, g.At(0, 1, 1))
	assert.False(t, g.At(1, 1, 1))
	// flat index (x*D + y)*D + z
	assert.Equal(t, uint8(1), g.Cells()[4])

	g.Set(1, 0, 0, false)
	assert.Equal(t, 2, g.Count())
}

func TestGridFromCells(t *testing.T) {
	_, err := GridFromCells(2, []uint8{0, 1, 0, 1, 0, 1, 0, 1})
	assert.NoError(t, err)
	_, err = GridFromCells(2, []uint8{0, 1, 2, 1, 0, 1, 0, 1})
	assert.Error(t, err)
	_, err = GridFromCells(2, []uint8{0})
	assert.Error(t, err)
	_, err = NewGrid(0)
	assert.Error(t, err)
}

func TestOccupancyFromTensor(t *testing.T) {
	cube, _ := tensor.New[float32](3, 3, 3)
	o, err := OccupancyFromTensor(cube)
	require.NoError(t, err)
	assert.Equal(t, 3, o.Size())

	flat, _ := tensor.New[float32](3, 3, 2)
	_, err = OccupancyFromTensor(flat)
	assert.Error(t, err)
}

func TestReadOccupancy(t *testing.T) {
	o, err := ReadOccupancy(strings.NewReader(`[[[0.1,0.9],[0.2,0.3]],[[0.4,0.5],[0.6,0.7]]]`))
	require.NoError(t, err)
	assert.Equal(t, 2, o.Size())
	assert.Equal(t, float32(0.9), o.At(0, 0, 1))
	assert.Equal(t, float32(0.6), o.At(1, 1, 0))

	for _, in := range []string{`[]`, `[[[1]],[[1]]]`, `[[[1,2],[3]],[[1,2],[3,4]]]`, `nope`} {
		_, err := ReadOccupancy(strings.NewReader(in))
		assert.Error(t, err, in)
	}
}

func TestSummarize(t *testing.T) {
	o, err := NewOccupancy(2, []float32{0, 0.25, 0.5, 0.75, 1, 1, 0, 0.5})
	require.NoError(t, err)
	s := Summarize(o, 0.5)
	assert.Equal(t, 2, s.Size)
	assert.Equal(t, 0.0, s.Min)
	assert.Equal(t, 1.0, s.Max)
	assert.InDelta(t, 0.5, s.Mean, 1e-9)
	assert.Equal(t, 3, s.Occupied)

	one, _ := NewOccupancy(1, []float32{0.7})
	assert.Equal(t, 0.0, Summarize(one, 0.5).StdDev)
}
