// Package picture loads the source image and exposes its pixels as
// RGB values in [0, 1].
package picture

import (
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"os"

	"github.com/lucasb-eyer/go-colorful"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// ErrStartup is returned when the image cannot be used.
var ErrStartup = errors.New("cannot load image")

// Picture is an immutable image with a [0, 1] RGB pixel accessor.
// Pixel (0, 0) is the top-left corner of the source image regardless
// of the source's bounds.
type Picture struct {
	src    image.Image
	width  int
	height int
	pix    []colorful.Color
}

// Load reads and decodes the image file at path.
func Load(path string) (*Picture, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStartup, err)
	}
	defer f.Close()
	p, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return p, nil
}

// Decode decodes an image in any registered format.
func Decode(r io.Reader) (*Picture, error) {
	img, _, err := image.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("%w: decode: %v", ErrStartup, err)
	}
	return New(img)
}

// New wraps a decoded image.  Fully transparent pixels read as
// black; other pixels are un-premultiplied.
func New(img image.Image) (*Picture, error) {
	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%w: empty image %dx%d", ErrStartup, width, height)
	}
	p := &Picture{
		src:    img,
		width:  width,
		height: height,
		pix:    make([]colorful.Color, width*height),
	}
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			c, ok := colorful.MakeColor(img.At(bounds.Min.X+x, bounds.Min.Y+y))
			if !ok {
				c = colorful.Color{}
			}
			p.pix[x+width*y] = c
		}
	}
	return p, nil
}

// Width returns the image width in pixels.
func (p *Picture) Width() int {
	return p.width
}

// Height returns the image height in pixels.
func (p *Picture) Height() int {
	return p.height
}

// At returns the color of pixel (x, y).
func (p *Picture) At(x, y int) colorful.Color {
	return p.pix[x+p.width*y]
}

// RGB returns the channels of pixel (x, y), each in [0, 1].
func (p *Picture) RGB(x, y int) (r, g, b float64) {
	c := p.At(x, y)
	return c.R, c.G, c.B
}

// Image returns the decoded source image.
func (p *Picture) Image() image.Image {
	return p.src
}
