package glb

import (
	"bytes"

	"github.com/pkg/errors"
	"github.com/qmuntal/gltf"
	"github.com/qmuntal/gltf/modeler"

	"github.com/Brownie44l1/swinvox-api/internal/mesh"
)

// Decode reads a container written by Encode back into a mesh. Only the
// first mesh is read. Material ids are restored whenever a triangle uses
// a material other than the first; otherwise MaterialIDs stays nil.
func Decode(data []byte) (*mesh.Mesh, error) {
	if err := checkHeader(data); err != nil {
		return nil, err
	}
	doc := new(gltf.Document)
	if err := gltf.NewDecoder(bytes.NewReader(data)).Decode(doc); err != nil {
		return nil, errors.Wrap(err, "glb: parse document")
	}
	if doc.Asset.Version != "2.0" {
		return nil, errors.Errorf("glb: unsupported asset version %q", doc.Asset.Version)
	}

	m := &mesh.Mesh{}
	for _, mat := range doc.Materials {
		m.Materials = append(m.Materials, fromMaterial(mat))
	}
	if len(doc.Meshes) == 0 {
		return m, nil
	}
	prims := doc.Meshes[0].Primitives
	if len(prims) == 0 {
		return nil, errors.New("glb: mesh has no primitives")
	}

	posIdx, ok := prims[0].Attributes[gltf.POSITION]
	if !ok {
		return nil, errors.New("glb: primitive has no POSITION attribute")
	}
	acr, err := accessor(doc, posIdx)
	if err != nil {
		return nil, errors.Wrap(err, "glb: positions")
	}
	if m.Vertices, err = modeler.ReadPosition(doc, acr, nil); err != nil {
		return nil, errors.Wrap(err, "glb: positions")
	}

	var ids []uint32
	tagged := false
	for pi, p := range prims {
		if idx, ok := p.Attributes[gltf.POSITION]; !ok || idx != posIdx {
			return nil, errors.Errorf("glb: primitive %d does not share positions", pi)
		}
		if p.Indices == nil {
			continue
		}
		acr, err := accessor(doc, *p.Indices)
		if err != nil {
			return nil, errors.Wrapf(err, "glb: primitive %d indices", pi)
		}
		indices, err := modeler.ReadIndices(doc, acr, nil)
		if err != nil {
			return nil, errors.Wrapf(err, "glb: primitive %d indices", pi)
		}
		if len(indices)%3 != 0 {
			return nil, errors.Errorf("glb: primitive %d has %d indices", pi, len(indices))
		}
		id := uint32(0)
		if p.Material != nil {
			if *p.Material < 0 {
				return nil, errors.Errorf("glb: primitive %d has material %d", pi, *p.Material)
			}
			id = uint32(*p.Material)
		}
		if id != 0 {
			tagged = true
		}
		for i := 0; i < len(indices); i += 3 {
			m.Triangles = append(m.Triangles, [3]uint32{indices[i], indices[i+1], indices[i+2]})
			ids = append(ids, id)
		}
	}
	if tagged {
		m.MaterialIDs = ids
	}
	if err := m.Validate(); err != nil {
		return nil, errors.Wrap(err, "glb")
	}
	return m, nil
}

// accessor returns accessor idx after checking that its elements lie
// inside its buffer view and the view inside its buffer.
func accessor(doc *gltf.Document, idx int) (*gltf.Accessor, error) {
	if idx < 0 || idx >= len(doc.Accessors) {
		return nil, errors.Errorf("accessor %d out of range", idx)
	}
	a := doc.Accessors[idx]
	if a.BufferView == nil {
		return nil, errors.Errorf("accessor %d has no buffer view", idx)
	}
	vi := *a.BufferView
	if vi < 0 || vi >= len(doc.BufferViews) {
		return nil, errors.Errorf("accessor %d references buffer view %d", idx, vi)
	}
	v := doc.BufferViews[vi]
	if v.Buffer < 0 || v.Buffer >= len(doc.Buffers) {
		return nil, errors.Errorf("buffer view %d references buffer %d", vi, v.Buffer)
	}
	data := doc.Buffers[v.Buffer].Data
	if v.ByteOffset < 0 || v.ByteLength < 0 || v.ByteOffset > len(data) || v.ByteLength > len(data)-v.ByteOffset {
		return nil, errors.Errorf("buffer view %d lies outside its buffer", vi)
	}

	elem := a.ComponentType.ByteSize() * a.Type.Components()
	if elem <= 0 {
		return nil, errors.Errorf("accessor %d has an unsupported layout", idx)
	}
	if v.ByteStride != 0 && v.ByteStride != elem {
		return nil, errors.Errorf("buffer view %d has unsupported stride %d", vi, v.ByteStride)
	}
	// Count*elem may overflow.
	if a.Count < 0 || a.ByteOffset < 0 || a.ByteOffset > v.ByteLength ||
		a.Count > (v.ByteLength-a.ByteOffset)/elem {
		return nil, errors.Errorf("accessor %d overruns its buffer view", idx)
	}
	return a, nil
}
