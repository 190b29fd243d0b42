package mesh

import (
	"github.com/Brownie44l1/swinvox-api/internal/voxel"
)

// Per-cube vertex and triangle counts.
const (
	CubeVertices  = 8
	CubeTriangles = 12
)

// cubeCorners are the unit cube corners relative to the voxel's minimum
// corner.
var cubeCorners = [CubeVertices][3]float32{
	{0, 0, 0}, {1, 0, 0}, {1, 1, 0}, {0, 1, 0},
	{0, 0, 1}, {1, 0, 1}, {1, 1, 1}, {0, 1, 1},
}

// cubeFaces winds every triangle counter-clockwise seen from outside.
var cubeFaces = [CubeTriangles][3]uint32{
	{0, 3, 2}, {0, 2, 1}, // z-
	{4, 5, 6}, {4, 6, 7}, // z+
	{0, 1, 5}, {0, 5, 4}, // y-
	{3, 7, 6}, {3, 6, 2}, // y+
	{0, 4, 7}, {0, 7, 3}, // x-
	{1, 2, 6}, {1, 6, 5}, // x+
}

// FromVoxels emits one independent cube of side size per occupied voxel,
// anchored at (x*size, y*size, z*size). Cubes follow the grid's scan
// order, so cube i covers vertices [8i, 8i+8) and triangles [12i, 12i+12).
// Shared faces are neither culled nor merged.
func FromVoxels(g *voxel.Grid, size float32) *Mesh {
	n := g.Count()
	m := &Mesh{
		Vertices:  make([][3]float32, 0, n*CubeVertices),
		Triangles: make([][3]uint32, 0, n*CubeTriangles),
	}
	g.Each(func(x, y, z int) {
		base := uint32(len(m.Vertices))
		origin := [3]float32{float32(x) * size, float32(y) * size, float32(z) * size}
		for _, c := range cubeCorners {
			m.Vertices = append(m.Vertices, [3]float32{
				origin[0] + c[0]*size,
				origin[1] + c[1]*size,
				origin[2] + c[2]*size,
			})
		}
		for _, f := range cubeFaces {
			m.Triangles = append(m.Triangles, [3]uint32{base + f[0], base + f[1], base + f[2]})
		}
	})
	return m
}
