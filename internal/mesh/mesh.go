// Package mesh builds indexed triangle meshes from voxel grids.
package mesh

import (
	"math"

	"github.com/pkg/errors"
)

// Material is the minimal surface description carried into the GLB.
type Material struct {
	Name      string
	BaseColor [4]float32
	Metallic  float32
	Roughness float32
}

// DefaultMaterial is used when a mesh names no materials.
var DefaultMaterial = Material{
	Name:      "voxel",
	BaseColor: [4]float32{0.8, 0.8, 0.8, 1},
	Metallic:  0,
	Roughness: 1,
}

// Mesh is an indexed triangle mesh. MaterialIDs, when set, assigns each
// triangle an index into Materials. Nothing requires the mesh to be
// connected or manifold.
type Mesh struct {
	Vertices    [][3]float32
	Triangles   [][3]uint32
	MaterialIDs []uint32
	Materials   []Material
}

// Empty reports whether the mesh has no geometry.
func (m *Mesh) Empty() bool { return len(m.Triangles) == 0 }

// Validate checks every index against the vertex and material tables.
func (m *Mesh) Validate() error {
	n := uint32(len(m.Vertices))
	for i, tri := range m.Triangles {
		for _, v := range tri {
			if v >= n {
				return errors.Errorf("mesh: triangle %d references vertex %d of %d", i, v, n)
			}
		}
	}
	if m.MaterialIDs == nil {
		return nil
	}
	if len(m.MaterialIDs) != len(m.Triangles) {
		return errors.Errorf("mesh: %d material ids for %d triangles", len(m.MaterialIDs), len(m.Triangles))
	}
	for i, id := range m.MaterialIDs {
		if int(id) >= len(m.Materials) {
			return errors.Errorf("mesh: triangle %d uses material %d of %d", i, id, len(m.Materials))
		}
	}
	return nil
}

// Bounds returns the per-axis minimum and maximum vertex coordinates.
// An empty vertex set yields zero vectors.
func (m *Mesh) Bounds() (min, max [3]float32) {
	if len(m.Vertices) == 0 {
		return
	}
	for c := 0; c < 3; c++ {
		min[c] = float32(math.Inf(1))
		max[c] = float32(math.Inf(-1))
	}
	for _, v := range m.Vertices {
		for c := 0; c < 3; c++ {
			if v[c] < min[c] {
				min[c] = v[c]
			}
			if v[c] > max[c] {
				max[c] = v[c]
			}
		}
	}
	return
}

// FlatVertices returns the vertex positions as consecutive xyz floats.
func (m *Mesh) FlatVertices() []float32 {
	out := make([]float32, 0, 3*len(m.Vertices))
	for _, v := range m.Vertices {
		out = append(out, v[0], v[1], v[2])
	}
	return out
}

// FlatIndices returns the triangle indices as consecutive triples.
func (m *Mesh) FlatIndices() []uint32 {
	out := make([]uint32, 0, 3*len(m.Triangles))
	for _, t := range m.Triangles {
		out = append(out, t[0], t[1], t[2])
	}
	return out
}
