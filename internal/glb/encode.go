package glb

import (
	"bytes"
	"sort"

	"github.com/pkg/errors"
	"github.com/qmuntal/gltf"
	"github.com/qmuntal/gltf/modeler"

	"github.com/Brownie44l1/swinvox-api/internal/mesh"
)

// group is the run of triangles drawn with one material.
type group struct {
	material int
	indices  []uint32
}

// groups splits triangles by material id in ascending id order, keeping
// the original triangle order inside each group.
func groups(m *mesh.Mesh) []group {
	byID := map[int][]uint32{}
	for i, tri := range m.Triangles {
		id := 0
		if m.MaterialIDs != nil {
			id = int(m.MaterialIDs[i])
		}
		byID[id] = append(byID[id], tri[:]...)
	}
	ids := make([]int, 0, len(byID))
	for id := range byID {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	out := make([]group, len(ids))
	for i, id := range ids {
		out[i] = group{material: id, indices: byID[id]}
	}
	return out
}

func materials(m *mesh.Mesh) []*gltf.Material {
	src := m.Materials
	if len(src) == 0 {
		src = []mesh.Material{mesh.DefaultMaterial}
	}
	out := make([]*gltf.Material, len(src))
	for i, mat := range src {
		out[i] = toMaterial(mat)
	}
	return out
}

// Encode serializes m. Triangles are written as one primitive per
// material in ascending material id, so a decoded mesh lists them grouped
// by material rather than in their original order. A mesh without
// vertices yields a valid container with an empty scene and no BIN chunk.
func Encode(m *mesh.Mesh) ([]byte, error) {
	if err := m.Validate(); err != nil {
		return nil, errors.Wrap(err, "glb encode")
	}
	doc := &gltf.Document{
		Asset:  gltf.Asset{Version: "2.0", Generator: generator},
		Scene:  gltf.Index(0),
		Scenes: []*gltf.Scene{{}},
	}
	if len(m.Vertices) > 0 {
		buildGeometry(doc, m)
	}

	var buf bytes.Buffer
	enc := gltf.NewEncoder(&buf)
	enc.AsBinary = true
	if err := enc.Encode(doc); err != nil {
		return nil, errors.Wrap(err, "glb encode document")
	}
	return buf.Bytes(), nil
}

func buildGeometry(doc *gltf.Document, m *mesh.Mesh) {
	pos := modeler.WritePosition(doc, m.Vertices)

	var prims []*gltf.Primitive
	if len(m.Triangles) == 0 {
		prims = append(prims, &gltf.Primitive{
			Attributes: map[string]int{gltf.POSITION: pos},
			Mode:       gltf.PrimitivePoints,
		})
	} else {
		for _, g := range groups(m) {
			prims = append(prims, &gltf.Primitive{
				Attributes: map[string]int{gltf.POSITION: pos},
				Indices:    gltf.Index(modeler.WriteIndices(doc, g.indices)),
				Material:   gltf.Index(g.material),
				Mode:       gltf.PrimitiveTriangles,
			})
		}
	}

	doc.Materials = materials(m)
	doc.Meshes = []*gltf.Mesh{{Name: meshName, Primitives: prims}}
	doc.Nodes = []*gltf.Node{{Name: meshName, Mesh: gltf.Index(0)}}
	doc.Scenes[0].Nodes = []int{0}
}
