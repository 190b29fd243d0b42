package mesh

import (
	"github.com/unixpickle/model3d/model3d"
)

// Triangles3D expands the indexed mesh into model3d triangles.
func (m *Mesh) Triangles3D() []*model3d.Triangle {
	tris := make([]*model3d.Triangle, len(m.Triangles))
	for i, t := range m.Triangles {
		var tri model3d.Triangle
		for j, idx := range t {
			v := m.Vertices[idx]
			tri[j] = model3d.Coord3D{X: float64(v[0]), Y: float64(v[1]), Z: float64(v[2])}
		}
		tris[i] = &tri
	}
	return tris
}

// EncodeSTL renders the mesh as a binary STL file.
func (m *Mesh) EncodeSTL() []byte {
	return model3d.EncodeSTL(m.Triangles3D())
}
