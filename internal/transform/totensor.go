package transform

import (
	"github.com/pkg/errors"

	"github.com/Brownie44l1/swinvox-api/internal/reconerr"
	"github.com/Brownie44l1/swinvox-api/internal/tensor"
)

// ToTensor stacks [H,W,3] images into one [N,3,H,W] tensor in input order.
type ToTensor struct{}

func (ToTensor) Name() string { return "ToTensor" }

func (ToTensor) Output(in Form) (Form, bool) {
	return TensorForm, in == ImageForm
}

func (t ToTensor) Apply(b Batch) (Batch, error) {
	if len(b.Images) == 0 {
		return Batch{}, reconerr.New(reconerr.EmptyBatch, t.Name(), "no images to convert")
	}
	if err := validateImages(t.Name(), b.Images); err != nil {
		return Batch{}, err
	}
	size, err := uniformSize(t.Name(), b.Images)
	if err != nil {
		return Batch{}, err
	}
	for i, im := range b.Images {
		if im.HasAlpha() {
			return Batch{}, reconerr.AtIndex(reconerr.InvalidImage, t.Name(), i,
				errors.New("alpha channel must be composited before tensor conversion"))
		}
	}

	h, w := size.Height, size.Width
	out, err := tensor.New[float32](len(b.Images), 3, h, w)
	if err != nil {
		return Batch{}, reconerr.Wrap(reconerr.ShapeMismatch, t.Name(), err)
	}
	data := out.Data()
	plane := h * w
	for n, im := range b.Images {
		base := n * 3 * plane
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				p := (y*w + x) * 3
				idx := y*w + x
				data[base+idx] = im.Pix[p]
				data[base+plane+idx] = im.Pix[p+1]
				data[base+2*plane+idx] = im.Pix[p+2]
			}
		}
	}
	return Batch{Tensor: out, Rand: b.Rand}, nil
}
