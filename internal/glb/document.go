// Package glb packs meshes into glTF 2.0 binary containers and reads
// them back.
package glb

import (
	"encoding/binary"

	"github.com/pkg/errors"
	"github.com/qmuntal/gltf"

	"github.com/Brownie44l1/swinvox-api/internal/mesh"
)

// MIMEType is the media type of a GLB container.
const MIMEType = "model/gltf-binary"

const (
	magic        = 0x46546C67 // "glTF"
	version      = 2
	headerLength = 12

	generator = "swinvox-api"
	meshName  = "voxels"
)

// checkHeader rejects anything that is not a complete GLB 2.0 file
// before the document is parsed.
func checkHeader(data []byte) error {
	if len(data) < headerLength {
		return errors.Errorf("glb: %d bytes is too short", len(data))
	}
	if binary.LittleEndian.Uint32(data[0:]) != magic {
		return errors.New("glb: bad magic")
	}
	if v := binary.LittleEndian.Uint32(data[4:]); v != version {
		return errors.Errorf("glb: unsupported version %d", v)
	}
	if n := binary.LittleEndian.Uint32(data[8:]); int64(n) != int64(len(data)) {
		return errors.Errorf("glb: header declares %d bytes, have %d", n, len(data))
	}
	return nil
}

func toMaterial(m mesh.Material) *gltf.Material {
	var base [4]float64
	for i, c := range m.BaseColor {
		base[i] = float64(c)
	}
	return &gltf.Material{
		Name: m.Name,
		PBRMetallicRoughness: &gltf.PBRMetallicRoughness{
			BaseColorFactor: &base,
			MetallicFactor:  gltf.Float(float64(m.Metallic)),
			RoughnessFactor: gltf.Float(float64(m.Roughness)),
		},
		DoubleSided: true,
	}
}

// fromMaterial applies the glTF defaults for absent factors.
func fromMaterial(m *gltf.Material) mesh.Material {
	out := mesh.Material{
		Name:      m.Name,
		BaseColor: [4]float32{1, 1, 1, 1},
		Metallic:  1,
		Roughness: 1,
	}
	pbr := m.PBRMetallicRoughness
	if pbr == nil {
		return out
	}
	if pbr.BaseColorFactor != nil {
		for i, c := range pbr.BaseColorFactor {
			out.BaseColor[i] = float32(c)
		}
	}
	if pbr.MetallicFactor != nil {
		out.Metallic = float32(*pbr.MetallicFactor)
	}
	if pbr.RoughnessFactor != nil {
		out.Roughness = float32(*pbr.RoughnessFactor)
	}
	return out
}
