// Package pipeline runs the full reconstruction chain: decode, preprocess,
// reconstruct, threshold, mesh and serialize.
package pipeline

import (
	"image/color"
	"math"
	"math/rand"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/Brownie44l1/swinvox-api/internal/config"
	"github.com/Brownie44l1/swinvox-api/internal/glb"
	"github.com/Brownie44l1/swinvox-api/internal/imageio"
	"github.com/Brownie44l1/swinvox-api/internal/mesh"
	"github.com/Brownie44l1/swinvox-api/internal/model"
	"github.com/Brownie44l1/swinvox-api/internal/reconerr"
	"github.com/Brownie44l1/swinvox-api/internal/transform"
	"github.com/Brownie44l1/swinvox-api/internal/voxel"
)

// Result is the output of one request.
type Result struct {
	GLB       []byte        `json:"-"`
	Mesh      *mesh.Mesh    `json:"-"`
	Views     int           `json:"views"`
	Vertices  int           `json:"vertices"`
	Triangles int           `json:"triangles"`
	Occupied  int           `json:"occupied"`
	Summary   voxel.Summary `json:"summary"`
}

// Pipeline holds the per-process configuration. It keeps no per-request
// state and may be shared between goroutines.
type Pipeline struct {
	decoder      imageio.Decoder
	transforms   *transform.Compose
	orchestrator Orchestrator
	threshold    float32
	voxelSize    float32

	// Seed returns the seed of each request's random source.
	Seed func() int64
}

// ContractFor is the contract a backend must satisfy under cfg. The view
// count is left dynamic.
func ContractFor(cfg *config.Config) model.Contract {
	return model.Contract{Height: cfg.ImgHeight, Width: cfg.ImgWidth, GridSize: cfg.GridSize}
}

// Transforms assembles the preprocessing chain selected by cfg.
func Transforms(cfg *config.Config) (*transform.Compose, error) {
	size := transform.Size{Height: cfg.ImgHeight, Width: cfg.ImgWidth}

	var resize transform.Transform
	switch cfg.ResizePolicy {
	case config.ResizeCrop:
		resize = transform.CenterCrop{
			Source: transform.Size{Height: cfg.SourceHeight, Width: cfg.SourceWidth},
			Crop:   transform.Size{Height: cfg.CropHeight, Width: cfg.CropWidth},
			Size:   size,
		}
	default:
		resize = transform.ResizeAndPad{
			Size: size,
			Fill: color.NRGBA{R: uint8(cfg.FillColor[0]), G: uint8(cfg.FillColor[1]), B: uint8(cfg.FillColor[2]), A: 255},
		}
	}

	var bg transform.RandomBackground
	for c, r := range cfg.BgColorRange {
		bg.Ranges[c] = transform.ColorRange{r[0], r[1]}
	}
	if err := bg.Validate(); err != nil {
		return nil, err
	}
	norm := transform.Normalize{Mean: cfg.Mean, Std: cfg.Std}
	if err := norm.Validate(); err != nil {
		return nil, err
	}
	return transform.NewCompose(resize, bg, norm, transform.ToTensor{})
}

// New builds a pipeline around backend. The backend contract must agree
// with the configured image and grid sizes.
func New(cfg *config.Config, backend model.Reconstructor) (*Pipeline, error) {
	if backend == nil {
		return nil, errors.New("pipeline: nil backend")
	}
	c := backend.Contract()
	if c.Height != 0 && (c.Height != cfg.ImgHeight || c.Width != cfg.ImgWidth) {
		return nil, errors.Errorf("pipeline: backend takes %dx%d images, configured for %dx%d",
			c.Width, c.Height, cfg.ImgWidth, cfg.ImgHeight)
	}
	if c.GridSize != 0 && c.GridSize != cfg.GridSize {
		return nil, errors.Errorf("pipeline: backend produces grid %d, configured for %d", c.GridSize, cfg.GridSize)
	}
	steps, err := Transforms(cfg)
	if err != nil {
		return nil, errors.Wrap(err, "pipeline")
	}
	log.WithFields(log.Fields{
		"transforms": steps.Name(),
		"grid_size":  cfg.GridSize,
		"threshold":  cfg.Threshold,
	}).Debug("[Pipeline] Configured")
	return &Pipeline{
		decoder:      imageio.Decoder{MaxPixels: cfg.MaxImagePixels},
		transforms:   steps,
		orchestrator: Orchestrator{Backend: backend},
		threshold:    cfg.Threshold,
		voxelSize:    cfg.VoxelSize,
		Seed:         rand.Int63,
	}, nil
}

// Backend returns the reconstruction backend in use.
func (p *Pipeline) Backend() model.Reconstructor { return p.orchestrator.Backend }

// Reconstruct turns encoded views of one object into a GLB mesh. Nothing
// is returned on failure.
func (p *Pipeline) Reconstruct(images [][]byte) (*Result, error) {
	if len(images) == 0 {
		return nil, reconerr.New(reconerr.EmptyBatch, "reconstruct", "no images")
	}
	decoded, err := p.decoder.DecodeAll(images)
	if err != nil {
		return nil, err
	}

	rng := rand.New(rand.NewSource(p.Seed()))
	views, err := p.transforms.Run(decoded, rng)
	if err != nil {
		return nil, err
	}
	log.WithField("shape", views.Shape()).Debug("[Pipeline] Preprocessed views")

	occ, err := p.orchestrator.Run(views)
	if err != nil {
		return nil, err
	}
	res, err := p.MeshFromOccupancy(occ)
	if err != nil {
		return nil, err
	}
	res.Views = len(images)
	return res, nil
}

// MeshFromOccupancy runs threshold, mesh and serialize with the
// configured threshold.
func (p *Pipeline) MeshFromOccupancy(occ *voxel.Occupancy) (*Result, error) {
	return p.MeshFromOccupancyAt(occ, p.threshold)
}

// MeshFromOccupancyAt is MeshFromOccupancy with an explicit threshold,
// which must lie in [0,1].
func (p *Pipeline) MeshFromOccupancyAt(occ *voxel.Occupancy, t float32) (*Result, error) {
	if occ == nil {
		return nil, reconerr.New(reconerr.InvalidOccupancy, "threshold", "no occupancy grid")
	}
	if math.IsNaN(float64(t)) || t < 0 || t > 1 {
		return nil, reconerr.Newf(reconerr.InvalidOccupancy, "threshold", "threshold %v is outside [0,1]", t)
	}
	grid, err := voxel.Threshold(occ, t)
	if err != nil {
		return nil, err
	}
	summary := voxel.Summarize(occ, t)
	log.WithFields(log.Fields{
		"min":      summary.Min,
		"max":      summary.Max,
		"mean":     summary.Mean,
		"occupied": summary.Occupied,
	}).Debug("[Pipeline] Occupancy")

	m := mesh.FromVoxels(grid, p.voxelSize)
	data, err := glb.Encode(m)
	if err != nil {
		return nil, reconerr.Wrap(reconerr.ContractViolation, "serialize", err)
	}
	return &Result{
		GLB:       data,
		Mesh:      m,
		Vertices:  len(m.Vertices),
		Triangles: len(m.Triangles),
		Occupied:  grid.Count(),
		Summary:   summary,
	}, nil
}
