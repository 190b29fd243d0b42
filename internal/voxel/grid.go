// Package voxel holds occupancy probability grids and the binary voxel
// grids thresholded from them.
//
// Both are cubes of side D stored x-major: the flat index of (x, y, z) is
// (x*D + y)*D + z. That is also the canonical scan order.
package voxel

import (
	"math"

	"github.com/pkg/errors"

	"github.com/Brownie44l1/swinvox-api/internal/reconerr"
	"github.com/Brownie44l1/swinvox-api/internal/tensor"
)

// DefaultThreshold is the decision threshold used when none is configured.
const DefaultThreshold = 0.5

// Occupancy is a [D,D,D] grid of per-cell occupancy probabilities.
type Occupancy struct {
	t *tensor.Tensor[float32]
}

// NewOccupancy wraps values as a cube of side d.
func NewOccupancy(d int, values []float32) (*Occupancy, error) {
	t, err := tensor.FromData(values, d, d, d)
	if err != nil {
		return nil, errors.Wrap(err, "occupancy")
	}
	return &Occupancy{t: t}, nil
}

// OccupancyFromTensor accepts a rank-3 cubic tensor.
func OccupancyFromTensor(t *tensor.Tensor[float32]) (*Occupancy, error) {
	s := t.Shape()
	if len(s) != 3 || s[0] != s[1] || s[1] != s[2] {
		return nil, errors.Errorf("occupancy: shape %v is not a cube", s)
	}
	return &Occupancy{t: t}, nil
}

// Size is the side length D.
func (o *Occupancy) Size() int { return o.t.Shape()[0] }

// At returns the probability at (x, y, z).
func (o *Occupancy) At(x, y, z int) float32 { return o.t.At(x, y, z) }

// Values exposes the probabilities in scan order.
func (o *Occupancy) Values() []float32 { return o.t.Data() }

// Grid is a binary voxel grid; every cell is exactly 0 or 1.
type Grid struct {
	size  int
	cells []uint8
}

// NewGrid allocates an empty cube of side d.
func NewGrid(d int) (*Grid, error) {
	if d <= 0 {
		return nil, errors.Errorf("voxel grid: non-positive size %d", d)
	}
	return &Grid{size: d, cells: make([]uint8, d*d*d)}, nil
}

// GridFromCells wraps cells, which must all be 0 or 1.
func GridFromCells(d int, cells []uint8) (*Grid, error) {
	if d <= 0 || len(cells) != d*d*d {
		return nil, errors.Errorf("voxel grid: %d cells do not fill a cube of side %d", len(cells), d)
	}
	for i, c := range cells {
		if c > 1 {
			return nil, errors.Errorf("voxel grid: cell %d holds %d", i, c)
		}
	}
	return &Grid{size: d, cells: cells}, nil
}

func (g *Grid) index(x, y, z int) int { return (x*g.size+y)*g.size + z }

// Size is the side length D.
func (g *Grid) Size() int { return g.size }

// At reports whether (x, y, z) is occupied.
func (g *Grid) At(x, y, z int) bool { return g.cells[g.index(x, y, z)] == 1 }

// Set marks (x, y, z) occupied or empty.
func (g *Grid) Set(x, y, z int, occupied bool) {
	var v uint8
	if occupied {
		v = 1
	}
	g.cells[g.index(x, y, z)] = v
}

// Cells exposes the flags in scan order.
func (g *Grid) Cells() []uint8 { return g.cells }

// Count returns the number of occupied cells.
func (g *Grid) Count() int {
	n := 0
	for _, c := range g.cells {
		n += int(c)
	}
	return n
}

// Each calls fn for every occupied cell in scan order: x, then y, then z.
func (g *Grid) Each(fn func(x, y, z int)) {
	i := 0
	for x := 0; x < g.size; x++ {
		for y := 0; y < g.size; y++ {
			for z := 0; z < g.size; z++ {
				if g.cells[i] == 1 {
					fn(x, y, z)
				}
				i++
			}
		}
	}
}

// AsOccupancy converts the flags back to 0.0 / 1.0 probabilities.
func (g *Grid) AsOccupancy() *Occupancy {
	values := make([]float32, len(g.cells))
	for i, c := range g.cells {
		values[i] = float32(c)
	}
	o, _ := NewOccupancy(g.size, values)
	return o
}

// Threshold marks every cell whose probability exceeds t. Non-finite
// probabilities are rejected.
func Threshold(o *Occupancy, t float32) (*Grid, error) {
	values := o.Values()
	cells := make([]uint8, len(values))
	for i, v := range values {
		f := float64(v)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return nil, reconerr.Newf(reconerr.InvalidOccupancy, "threshold", "cell %d holds %v", i, v)
		}
		if v > t {
			cells[i] = 1
		}
	}
	return &Grid{size: o.Size(), cells: cells}, nil
}
