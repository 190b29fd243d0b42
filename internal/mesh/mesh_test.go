package mesh

import (
	"encoding/binary"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Brownie44l1/swinvox-api/internal/voxel"
)

func randomGrid(t *testing.T, rng *rand.Rand, d int, density float64) *voxel.Grid {
	t.Helper()
	g, err := voxel.NewGrid(d)
	require.NoError(t, err)
	for x := 0; x < d; x++ {
		for y := 0; y < d; y++ {
			for z := 0; z < d; z++ {
				g.Set(x, y, z, rng.Float64() < density)
			}
		}
	}
	return g
}

func TestFromVoxels_SingleVoxelAtOrigin(t *testing.T) {
	g, err := voxel.NewGrid(2)
	require.NoError(t, err)
	g.Set(0, 0, 0, true)

	m := FromVoxels(g, 1)
	require.Len(t, m.Vertices, 8)
	require.Len(t, m.Triangles, 12)
	assert.ElementsMatch(t, [][3]float32{
		{0, 0, 0}, {1, 0, 0}, {0, 1, 0}, {0, 0, 1},
		{1, 1, 0}, {1, 0, 1}, {0, 1, 1}, {1, 1, 1},
	}, m.Vertices)
	assert.NoError(t, m.Validate())
}

func TestFromVoxels_CountsAndBounds(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	for _, d := range []int{1, 3, 6} {
		for _, density := range []float64{0, 0.3, 1} {
			g := randomGrid(t, rng, d, density)
			n := g.Count()

			m := FromVoxels(g, 1)
			assert.Len(t, m.Vertices, CubeVertices*n)
			assert.Len(t, m.Triangles, CubeTriangles*n)
			for _, tri := range m.Triangles {
				for _, idx := range tri {
					assert.Less(t, idx, uint32(CubeVertices*n))
				}
			}
			assert.NoError(t, m.Validate())
		}
	}
}

func TestFromVoxels_EmptyGrid(t *testing.T) {
	g, err := voxel.NewGrid(4)
	require.NoError(t, err)
	m := FromVoxels(g, 1)
	assert.True(t, m.Empty())
	assert.Empty(t, m.Vertices)
	min, max := m.Bounds()
	assert.Equal(t, [3]float32{}, min)
	assert.Equal(t, [3]float32{}, max)
}

func TestFromVoxels_CubeOrderFollowsScan(t *testing.T) {
	g, err := voxel.NewGrid(3)
	require.NoError(t, err)
	g.Set(2, 0, 0, true)
	g.Set(0, 2, 1, true)
	g.Set(0, 0, 2, true)

	m := FromVoxels(g, 0.5)
	origins := [][3]float32{{0, 0, 1}, {0, 1, 0.5}, {1, 0, 0}}
	for i, o := range origins {
		assert.Equal(t, o, m.Vertices[8*i], "cube %d", i)
		assert.Equal(t, [3]float32{o[0] + 0.5, o[1] + 0.5, o[2] + 0.5}, m.Vertices[8*i+6], "cube %d", i)
		for _, tri := range m.Triangles[12*i : 12*i+12] {
			for _, idx := range tri {
				assert.GreaterOrEqual(t, idx, uint32(8*i))
				assert.Less(t, idx, uint32(8*i+8))
			}
		}
	}

	min, max := m.Bounds()
	assert.Equal(t, [3]float32{0, 0, 0}, min)
	assert.Equal(t, [3]float32{1.5, 1.5, 1.5}, max)
}

func TestFromVoxels_Deterministic(t *testing.T) {
	g := randomGrid(t, rand.New(rand.NewSource(5)), 5, 0.4)
	assert.Equal(t, FromVoxels(g, 1), FromVoxels(g, 1))
}

func TestCubeFaces_PointOutward(t *testing.T) {
	center := [3]float32{0.5, 0.5, 0.5}
	for i, f := range cubeFaces {
		a, b, c := cubeCorners[f[0]], cubeCorners[f[1]], cubeCorners[f[2]]
		e1 := [3]float32{b[0] - a[0], b[1] - a[1], b[2] - a[2]}
		e2 := [3]float32{c[0] - a[0], c[1] - a[1], c[2] - a[2]}
		n := [3]float32{
			e1[1]*e2[2] - e1[2]*e2[1],
			e1[2]*e2[0] - e1[0]*e2[2],
			e1[0]*e2[1] - e1[1]*e2[0],
		}
		out := [3]float32{a[0] - center[0], a[1] - center[1], a[2] - center[2]}
		dot := n[0]*out[0] + n[1]*out[1] + n[2]*out[2]
		assert.Greater(t, dot, float32(0), "face %d points inward", i)
	}
}

func TestValidate(t *testing.T) {
	m := &Mesh{
		Vertices:  [][3]float32{{0, 0, 0}, {1, 0, 0}, {0, 1, 0}},
		Triangles: [][3]uint32{{0, 1, 2}},
	}
	assert.NoError(t, m.Validate())

	m.Triangles = append(m.Triangles, [3]uint32{0, 1, 3})
	assert.Error(t, m.Validate())
	m.Triangles = m.Triangles[:1]

	m.MaterialIDs = []uint32{0}
	assert.Error(t, m.Validate())
	m.Materials = []Material{DefaultMaterial}
	assert.NoError(t, m.Validate())
	m.MaterialIDs = []uint32{0, 0}
	assert.Error(t, m.Validate())
}

func TestFlatBuffers(t *testing.T) {
	m := &Mesh{
		Vertices:  [][3]float32{{1, 2, 3}, {4, 5, 6}},
		Triangles: [][3]uint32{{0, 1, 0}},
	}
	assert.Equal(t, []float32{1, 2, 3, 4, 5, 6}, m.FlatVertices())
	assert.Equal(t, []uint32{0, 1, 0}, m.FlatIndices())
}

func TestEncodeSTL(t *testing.T) {
	g, err := voxel.NewGrid(2)
	require.NoError(t, err)
	g.Set(1, 1, 1, true)
	g.Set(0, 0, 0, true)
	m := FromVoxels(g, 1)

	data := m.EncodeSTL()
	require.Len(t, data, 84+50*24)
	assert.Equal(t, uint32(24), binary.LittleEndian.Uint32(data[80:84]))

	tris := m.Triangles3D()
	require.Len(t, tris, 24)
	assert.Equal(t, 2.0, tris[12][2].X)
}
