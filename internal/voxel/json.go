package voxel

import (
	"encoding/json"
	"io"

	"github.com/pkg/errors"
)

// ReadOccupancy decodes a JSON array of shape [D][D][D], indexed
// [x][y][z], into an occupancy grid.
func ReadOccupancy(r io.Reader) (*Occupancy, error) {
	var object [][][]float32
	if err := json.NewDecoder(r).Decode(&object); err != nil {
		return nil, errors.Wrap(err, "read occupancy grid")
	}
	return OccupancyFromNested(object)
}

// OccupancyFromNested flattens a [x][y][z] nested slice.
func OccupancyFromNested(object [][][]float32) (*Occupancy, error) {
	size := len(object)
	if size == 0 {
		return nil, errors.New("read occupancy grid: empty grid")
	}
	values := make([]float32, 0, size*size*size)
	for _, yPlane := range object {
		if len(yPlane) != size {
			return nil, errors.New("read occupancy grid: invalid dimensions")
		}
		for _, zLine := range yPlane {
			if len(zLine) != size {
				return nil, errors.New("read occupancy grid: invalid dimensions")
			}
			values = append(values, zLine...)
		}
	}
	return NewOccupancy(size, values)
}
