// Package imageio decodes uploaded image bytes into float pixel buffers.
package imageio

import (
	"bytes"
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"math"

	"github.com/pkg/errors"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"

	"github.com/Brownie44l1/swinvox-api/internal/reconerr"
)

// Image is a decoded pixel buffer laid out [height, width, channels].
// Channels is 3 (RGB) or 4 (non-premultiplied RGBA). Values stay on
// the 0..255 scale until normalization.
type Image struct {
	Height   int
	Width    int
	Channels int
	Pix      []float32
}

// NewImage allocates a zeroed image.
func NewImage(height, width, channels int) *Image {
	return &Image{
		Height:   height,
		Width:    width,
		Channels: channels,
		Pix:      make([]float32, height*width*channels),
	}
}

// Validate checks the channel count and buffer length.
func (im *Image) Validate() error {
	if im.Channels != 3 && im.Channels != 4 {
		return errors.Errorf("unsupported channel count %d", im.Channels)
	}
	if im.Height <= 0 || im.Width <= 0 {
		return errors.Errorf("empty image %dx%d", im.Width, im.Height)
	}
	if len(im.Pix) != im.Height*im.Width*im.Channels {
		return errors.Errorf("pixel buffer holds %d values, want %d", len(im.Pix), im.Height*im.Width*im.Channels)
	}
	return nil
}

// HasAlpha reports whether the image carries an alpha channel.
func (im *Image) HasAlpha() bool { return im.Channels == 4 }

func (im *Image) offset(y, x, c int) int {
	return (y*im.Width+x)*im.Channels + c
}

// At returns channel c of the pixel at row y, column x.
func (im *Image) At(y, x, c int) float32 { return im.Pix[im.offset(y, x, c)] }

// Set stores channel c of the pixel at row y, column x.
func (im *Image) Set(y, x, c int, v float32) { im.Pix[im.offset(y, x, c)] = v }

// Clone returns a deep copy.
func (im *Image) Clone() *Image {
	out := *im
	out.Pix = append([]float32(nil), im.Pix...)
	return &out
}

// ToNRGBA quantizes the image to 8 bits for library resampling.
// RGB images get an opaque alpha channel.
func (im *Image) ToNRGBA() *image.NRGBA {
	out := image.NewNRGBA(image.Rect(0, 0, im.Width, im.Height))
	for y := 0; y < im.Height; y++ {
		for x := 0; x < im.Width; x++ {
			a := uint8(255)
			if im.Channels == 4 {
				a = quantize(im.At(y, x, 3))
			}
			out.SetNRGBA(x, y, color.NRGBA{
				R: quantize(im.At(y, x, 0)),
				G: quantize(im.At(y, x, 1)),
				B: quantize(im.At(y, x, 2)),
				A: a,
			})
		}
	}
	return out
}

func quantize(v float32) uint8 {
	r := math.Round(float64(v))
	if r < 0 {
		return 0
	}
	if r > 255 {
		return 255
	}
	return uint8(r)
}

// FromImage converts img into a float buffer with the given channel
// count (3 drops alpha, 4 keeps it non-premultiplied).
func FromImage(img image.Image, channels int) *Image {
	b := img.Bounds()
	out := NewImage(b.Dy(), b.Dx(), channels)
	for y := 0; y < out.Height; y++ {
		for x := 0; x < out.Width; x++ {
			c := color.NRGBAModel.Convert(img.At(b.Min.X+x, b.Min.Y+y)).(color.NRGBA)
			out.Set(y, x, 0, float32(c.R))
			out.Set(y, x, 1, float32(c.G))
			out.Set(y, x, 2, float32(c.B))
			if channels == 4 {
				out.Set(y, x, 3, float32(c.A))
			}
		}
	}
	return out
}

// hasTransparency reports whether img can carry non-opaque pixels.
func hasTransparency(img image.Image) bool {
	if o, ok := img.(interface{ Opaque() bool }); ok {
		return !o.Opaque()
	}
	return false
}

// Decoder decodes uploaded images. MaxPixels bounds width*height as
// declared by the image header; zero or less means no limit.
type Decoder struct {
	MaxPixels int
}

// Decode decodes one encoded image. index identifies the image within
// its request for error reporting.
func (d Decoder) Decode(index int, data []byte) (*Image, error) {
	if len(data) == 0 {
		return nil, reconerr.AtIndex(reconerr.InvalidImage, "decode", index, errors.New("empty payload"))
	}
	if d.MaxPixels > 0 {
		cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
		if err != nil {
			return nil, reconerr.AtIndex(reconerr.InvalidImage, "decode", index, err)
		}
		if pixels := int64(cfg.Width) * int64(cfg.Height); pixels > int64(d.MaxPixels) {
			return nil, reconerr.AtIndex(reconerr.InvalidImage, "decode", index,
				errors.Errorf("%dx%d image exceeds %d pixels", cfg.Width, cfg.Height, d.MaxPixels))
		}
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, reconerr.AtIndex(reconerr.InvalidImage, "decode", index, err)
	}
	channels := 3
	if hasTransparency(img) {
		channels = 4
	}
	out := FromImage(img, channels)
	if err := out.Validate(); err != nil {
		return nil, reconerr.AtIndex(reconerr.InvalidImage, "decode", index, err)
	}
	return out, nil
}

// DecodeAll decodes a batch in order, stopping at the first failure.
func (d Decoder) DecodeAll(payloads [][]byte) ([]*Image, error) {
	images := make([]*Image, 0, len(payloads))
	for i, data := range payloads {
		im, err := d.Decode(i, data)
		if err != nil {
			return nil, err
		}
		images = append(images, im)
	}
	return images, nil
}

// Decode decodes one image without a size limit.
func Decode(index int, data []byte) (*Image, error) {
	return Decoder{}.Decode(index, data)
}

// DecodeAll decodes a batch without a size limit.
func DecodeAll(payloads [][]byte) ([]*Image, error) {
	return Decoder{}.DecodeAll(payloads)
}
