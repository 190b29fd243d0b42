package transform

import (
	"github.com/pkg/errors"

	"github.com/Brownie44l1/swinvox-api/internal/imageio"
	"github.com/Brownie44l1/swinvox-api/internal/reconerr"
)

// ColorRange is an inclusive [min, max] bound for one color channel.
type ColorRange [2]int

// RandomBackground composites RGBA images onto a background color drawn
// uniformly from Ranges (R, G, B). One color is drawn per batch, since all
// views show the same object. RGB images pass through unchanged.
type RandomBackground struct {
	imageStep
	Ranges [3]ColorRange
}

func (r RandomBackground) Name() string { return "RandomBackground" }

func (r RandomBackground) Apply(b Batch) (Batch, error) {
	if err := validateImages(r.Name(), b.Images); err != nil {
		return Batch{}, err
	}
	var (
		bg    [3]float32
		drawn bool
	)
	out := make([]*imageio.Image, len(b.Images))
	for i, im := range b.Images {
		if !im.HasAlpha() {
			out[i] = im
			continue
		}
		if !drawn {
			if b.Rand == nil {
				return Batch{}, reconerr.New(reconerr.ContractViolation, r.Name(), "no random source for background color")
			}
			bg = r.draw(b)
			drawn = true
		}
		out[i] = Composite(im, bg)
	}
	b.Images = out
	return b, nil
}

func (r RandomBackground) draw(b Batch) [3]float32 {
	var bg [3]float32
	for c, rng := range r.Ranges {
		bg[c] = float32(rng[0] + b.Rand.Intn(rng[1]-rng[0]+1))
	}
	return bg
}

// Validate checks that every range is ordered and inside [0, 255].
func (r RandomBackground) Validate() error {
	for c, rng := range r.Ranges {
		if rng[0] < 0 || rng[1] > 255 || rng[0] > rng[1] {
			return errors.Errorf("background range %d is [%d,%d]", c, rng[0], rng[1])
		}
	}
	return nil
}

// Composite alpha-blends an RGBA image over a solid background and
// returns a 3-channel image.
func Composite(im *imageio.Image, bg [3]float32) *imageio.Image {
	out := imageio.NewImage(im.Height, im.Width, 3)
	for y := 0; y < im.Height; y++ {
		for x := 0; x < im.Width; x++ {
			a := im.At(y, x, 3) / 255
			for c := 0; c < 3; c++ {
				out.Set(y, x, c, a*im.At(y, x, c)+(1-a)*bg[c])
			}
		}
	}
	return out
}
