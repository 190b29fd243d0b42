package transform

import (
	"image/color"
	"math"

	"github.com/disintegration/imaging"
	"github.com/nfnt/resize"
	"github.com/pkg/errors"

	"github.com/Brownie44l1/swinvox-api/internal/imageio"
	"github.com/Brownie44l1/swinvox-api/internal/reconerr"
)

// ResizeAndPad scales every image to fit inside Size keeping its aspect
// ratio and centers it on a Fill-colored canvas. Any input size works.
// Alpha is carried through; padding is opaque.
type ResizeAndPad struct {
	imageStep
	Size Size
	Fill color.NRGBA
}

func (r ResizeAndPad) Name() string { return "ResizeAndPad" }

func (r ResizeAndPad) Apply(b Batch) (Batch, error) {
	if err := validateImages(r.Name(), b.Images); err != nil {
		return Batch{}, err
	}
	out := make([]*imageio.Image, len(b.Images))
	for i, im := range b.Images {
		out[i] = r.letterbox(im)
	}
	b.Images = out
	return b, nil
}

func (r ResizeAndPad) letterbox(im *imageio.Image) *imageio.Image {
	if im.Height == r.Size.Height && im.Width == r.Size.Width {
		return im.Clone()
	}
	scale := math.Min(float64(r.Size.Width)/float64(im.Width), float64(r.Size.Height)/float64(im.Height))
	w := clampExtent(int(math.Round(float64(im.Width)*scale)), r.Size.Width)
	h := clampExtent(int(math.Round(float64(im.Height)*scale)), r.Size.Height)

	resized := resize.Resize(uint(w), uint(h), im.ToNRGBA(), resize.Bilinear)
	fill := r.Fill
	fill.A = 255
	canvas := imaging.PasteCenter(imaging.New(r.Size.Width, r.Size.Height, fill), resized)
	return imageio.FromImage(canvas, im.Channels)
}

func clampExtent(v, max int) int {
	if v < 1 {
		return 1
	}
	if v > max {
		return max
	}
	return v
}

// CenterCrop cuts a Crop-sized window from the center of every image and
// scales it to Size. Inputs must already be exactly Source.
type CenterCrop struct {
	imageStep
	Source Size
	Crop   Size
	Size   Size
}

func (c CenterCrop) Name() string { return "CenterCrop" }

func (c CenterCrop) Apply(b Batch) (Batch, error) {
	if err := validateImages(c.Name(), b.Images); err != nil {
		return Batch{}, err
	}
	out := make([]*imageio.Image, len(b.Images))
	for i, im := range b.Images {
		if im.Height != c.Source.Height || im.Width != c.Source.Width {
			return Batch{}, reconerr.AtIndex(reconerr.ShapeMismatch, c.Name(), i,
				errors.Errorf("image is %dx%d, crop expects %dx%d", im.Width, im.Height, c.Source.Width, c.Source.Height))
		}
		cropped := imaging.CropCenter(im.ToNRGBA(), c.Crop.Width, c.Crop.Height)
		if c.Crop != c.Size {
			cropped = imaging.Resize(cropped, c.Size.Width, c.Size.Height, imaging.Linear)
		}
		out[i] = imageio.FromImage(cropped, im.Channels)
	}
	b.Images = out
	return b, nil
}
