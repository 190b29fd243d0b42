// Package transform implements the image preprocessing chain that turns a
// batch of decoded views into the channel-first tensor the reconstruction
// network consumes.
//
// Steps are stateless values and safe to share between goroutines. The only
// randomness, the background color, comes from the Rand carried by the batch.
package transform

import (
	"math/rand"
	"strings"

	"github.com/pkg/errors"

	"github.com/Brownie44l1/swinvox-api/internal/imageio"
	"github.com/Brownie44l1/swinvox-api/internal/reconerr"
	"github.com/Brownie44l1/swinvox-api/internal/tensor"
)

// Form is the representation a batch is in.
type Form int

const (
	// ImageForm is a slice of [H,W,C] images.
	ImageForm Form = iota
	// TensorForm is a single [N,3,H,W] tensor.
	TensorForm
)

func (f Form) String() string {
	if f == TensorForm {
		return "tensor"
	}
	return "images"
}

// Batch is what flows between steps: images before layout conversion,
// a tensor after. Rand is the request-scoped random source.
type Batch struct {
	Images []*imageio.Image
	Tensor *tensor.Tensor[float32]
	Rand   *rand.Rand
}

// Form reports which representation the batch holds.
func (b Batch) Form() Form {
	if b.Tensor != nil {
		return TensorForm
	}
	return ImageForm
}

// Size is an image extent in pixels.
type Size struct {
	Height int `json:"height"`
	Width  int `json:"width"`
}

// Transform is one preprocessing step.
type Transform interface {
	Name() string
	// Output reports the form produced from in, and false when the step
	// cannot consume in.
	Output(in Form) (Form, bool)
	Apply(b Batch) (Batch, error)
}

// Compose applies its steps in order, threading the batch through.
type Compose struct {
	steps []Transform
}

// NewCompose builds a pipeline and checks that every step accepts the
// form its predecessor produces and that the chain ends in a tensor.
func NewCompose(steps ...Transform) (*Compose, error) {
	if len(steps) == 0 {
		return nil, errors.New("transform: empty pipeline")
	}
	c := &Compose{steps: steps}
	out, ok := c.Output(ImageForm)
	if !ok {
		return nil, errors.Errorf("transform: steps [%s] do not chain from images", c.Name())
	}
	if out != TensorForm {
		return nil, errors.Errorf("transform: pipeline [%s] ends in %s, want tensor", c.Name(), out)
	}
	return c, nil
}

func (c *Compose) Name() string {
	names := make([]string, len(c.steps))
	for i, s := range c.steps {
		names[i] = s.Name()
	}
	return strings.Join(names, " -> ")
}

func (c *Compose) Output(in Form) (Form, bool) {
	form := in
	for _, s := range c.steps {
		next, ok := s.Output(form)
		if !ok {
			return form, false
		}
		form = next
	}
	return form, true
}

func (c *Compose) Apply(b Batch) (Batch, error) {
	for _, s := range c.steps {
		if _, ok := s.Output(b.Form()); !ok {
			return Batch{}, reconerr.Newf(reconerr.ContractViolation, s.Name(), "step cannot consume %s", b.Form())
		}
		var err error
		b, err = s.Apply(b)
		if err != nil {
			return Batch{}, err
		}
	}
	return b, nil
}

// Run applies the pipeline to images and returns the resulting tensor.
func (c *Compose) Run(images []*imageio.Image, rng *rand.Rand) (*tensor.Tensor[float32], error) {
	out, err := c.Apply(Batch{Images: images, Rand: rng})
	if err != nil {
		return nil, err
	}
	if out.Tensor == nil {
		return nil, reconerr.New(reconerr.ContractViolation, c.Name(), "pipeline produced no tensor")
	}
	return out.Tensor, nil
}

// imageStep is embedded by steps that only consume and produce images.
type imageStep struct{}

func (imageStep) Output(in Form) (Form, bool) {
	return ImageForm, in == ImageForm
}

// validateImages rejects images with unsupported channel counts.
func validateImages(op string, images []*imageio.Image) error {
	for i, im := range images {
		if im == nil {
			return reconerr.AtIndex(reconerr.InvalidImage, op, i, errors.New("missing image"))
		}
		if err := im.Validate(); err != nil {
			return reconerr.AtIndex(reconerr.InvalidImage, op, i, err)
		}
	}
	return nil
}

// uniformSize returns the shared size of images, or ShapeMismatch.
func uniformSize(op string, images []*imageio.Image) (Size, error) {
	if len(images) == 0 {
		return Size{}, nil
	}
	want := Size{Height: images[0].Height, Width: images[0].Width}
	for i, im := range images[1:] {
		if im.Height != want.Height || im.Width != want.Width {
			return Size{}, reconerr.AtIndex(reconerr.ShapeMismatch, op, i+1,
				errors.Errorf("image is %dx%d, batch is %dx%d", im.Width, im.Height, want.Width, want.Height))
		}
	}
	return want, nil
}
