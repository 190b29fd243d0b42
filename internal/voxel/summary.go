package voxel

import (
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Summary describes an occupancy grid for logging and API responses.
type Summary struct {
	Size     int     `json:"grid_size"`
	Min      float64 `json:"min"`
	Max      float64 `json:"max"`
	Mean     float64 `json:"mean"`
	StdDev   float64 `json:"std_dev"`
	Occupied int     `json:"occupied"`
}

// Summarize computes statistics of o and the number of cells above t.
func Summarize(o *Occupancy, t float32) Summary {
	values := o.Values()
	xs := make([]float64, len(values))
	occupied := 0
	for i, v := range values {
		xs[i] = float64(v)
		if v > t {
			occupied++
		}
	}
	mean, std := stat.MeanStdDev(xs, nil)
	if len(xs) < 2 {
		std = 0
	}
	return Summary{
		Size:     o.Size(),
		Min:      floats.Min(xs),
		Max:      floats.Max(xs),
		Mean:     mean,
		StdDev:   std,
		Occupied: occupied,
	}
}
