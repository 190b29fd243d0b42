package transform

import (
	"github.com/pkg/errors"

	"github.com/Brownie44l1/swinvox-api/internal/imageio"
	"github.com/Brownie44l1/swinvox-api/internal/reconerr"
	"github.com/Brownie44l1/swinvox-api/internal/tensor"
)

// Normalize maps every channel value v to (v/255 - Mean[c]) / Std[c].
// It works on images (channel-last) and on [N,3,H,W] tensors.
type Normalize struct {
	Mean [3]float32
	Std  [3]float32
}

func (n Normalize) Name() string { return "Normalize" }

func (n Normalize) Output(in Form) (Form, bool) { return in, true }

// Validate rejects a zero standard deviation.
func (n Normalize) Validate() error {
	for c, s := range n.Std {
		if s == 0 {
			return errors.Errorf("normalize: std[%d] is zero", c)
		}
	}
	return nil
}

func (n Normalize) value(c int, v float32) float32 {
	return (v/255 - n.Mean[c]) / n.Std[c]
}

func (n Normalize) Apply(b Batch) (Batch, error) {
	if b.Tensor != nil {
		t, err := n.applyTensor(b.Tensor)
		if err != nil {
			return Batch{}, err
		}
		b.Tensor = t
		return b, nil
	}
	if err := validateImages(n.Name(), b.Images); err != nil {
		return Batch{}, err
	}
	out := make([]*imageio.Image, len(b.Images))
	for i, im := range b.Images {
		if im.HasAlpha() {
			return Batch{}, reconerr.AtIndex(reconerr.InvalidImage, n.Name(), i,
				errors.New("alpha channel must be composited before normalization"))
		}
		res := im.Clone()
		for p := 0; p < len(res.Pix); p += 3 {
			for c := 0; c < 3; c++ {
				res.Pix[p+c] = n.value(c, res.Pix[p+c])
			}
		}
		out[i] = res
	}
	b.Images = out
	return b, nil
}

func (n Normalize) applyTensor(t *tensor.Tensor[float32]) (*tensor.Tensor[float32], error) {
	shape := t.Shape()
	if len(shape) != 4 || shape[1] != 3 {
		return nil, reconerr.Newf(reconerr.ShapeMismatch, n.Name(), "tensor shape %v is not [N,3,H,W]", shape)
	}
	res := t.Clone()
	data := res.Data()
	plane := shape[2] * shape[3]
	for i := range data {
		c := (i / plane) % 3
		data[i] = n.value(c, data[i])
	}
	return res, nil
}
