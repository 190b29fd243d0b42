// Command voxel2glb converts a JSON-encoded grid of voxel
// probabilities into a cube mesh and saves it as GLB, and
// optionally as STL.
//
// The JSON input is read from stdin and decoded as a 3D
// array indexed [x][y][z]. The array must be NxNxN.
package main

import (
	"flag"
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/unixpickle/essentials"

	"github.com/Brownie44l1/swinvox-api/internal/config"
	"github.com/Brownie44l1/swinvox-api/internal/model"
	"github.com/Brownie44l1/swinvox-api/internal/pipeline"
	"github.com/Brownie44l1/swinvox-api/internal/voxel"
)

func main() {
	var threshold float64
	var voxelSize float64
	var outputPath string
	var stlPath string
	flag.Float64Var(&threshold, "threshold", voxel.DefaultThreshold, "minimum value for containment")
	flag.Float64Var(&voxelSize, "voxel-size", 1, "edge length of each voxel cube")
	flag.StringVar(&outputPath, "output", "output.glb", "output GLB file")
	flag.StringVar(&stlPath, "stl", "", "also write an STL file")
	flag.Parse()

	occ, err := voxel.ReadOccupancy(os.Stdin)
	essentials.Must(err)

	cfg := config.Default()
	cfg.GridSize = occ.Size()
	cfg.VoxelSize = float32(voxelSize)
	essentials.Must(cfg.Validate())

	p, err := pipeline.New(cfg, model.Unavailable{})
	essentials.Must(err)
	res, err := p.MeshFromOccupancyAt(occ, float32(threshold))
	essentials.Must(err)

	essentials.Must(os.WriteFile(outputPath, res.GLB, 0644))
	if stlPath != "" {
		essentials.Must(os.WriteFile(stlPath, res.Mesh.EncodeSTL(), 0644))
	}
	log.WithFields(log.Fields{
		"voxels":    res.Occupied,
		"triangles": res.Triangles,
		"mean":      res.Summary.Mean,
	}).Info("Wrote ", outputPath)
}
