package render

import (
	"image"
	"image/color"
	"sync"

	"github.com/lucasb-eyer/go-colorful"
)

// Frame is one complete reconstruction.  Pix[i+Width*j] is pixel
// (i, j); every channel is in [0, 1].
type Frame struct {
	Width  int
	Height int
	Seq    uint64
	Pix    []colorful.Color
}

func newFrame(width, height int) *Frame {
	return &Frame{
		Width:  width,
		Height: height,
		Pix:    make([]colorful.Color, width*height),
	}
}

// At returns the color of pixel (i, j).
func (f *Frame) At(i, j int) colorful.Color {
	return f.Pix[i+f.Width*j]
}

// Image converts the frame to 8-bit RGBA.
func (f *Frame) Image() *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, f.Width, f.Height))
	for j := 0; j < f.Height; j++ {
		for i := 0; i < f.Width; i++ {
			r, g, b := f.At(i, j).RGB255()
			img.SetRGBA(i, j, color.RGBA{R: r, G: g, B: b, A: 255})
		}
	}
	return img
}

// Composition is the double-buffered output image.  The renderer
// fills the back frame and publish swaps it to the front; readers only
// ever see the front frame, and only through copies.
type Composition struct {
	mu      sync.RWMutex
	front   *Frame
	back    *Frame
	changed chan struct{}
}

// NewComposition returns a black width x height composition.
func NewComposition(width, height int) *Composition {
	return &Composition{
		front:   newFrame(width, height),
		back:    newFrame(width, height),
		changed: make(chan struct{}),
	}
}

// Width returns the frame width.
func (c *Composition) Width() int {
	return c.back.Width
}

// Height returns the frame height.
func (c *Composition) Height() int {
	return c.back.Height
}

// Frame returns a copy of the most recently published frame.
func (c *Composition) Frame() *Frame {
	frame, _ := c.Watch()
	return frame
}

// Watch returns a copy of the most recently published frame and a
// channel that is closed when the next frame is published.
func (c *Composition) Watch() (frame *Frame, changed <-chan struct{}) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	frame = &Frame{
		Width:  c.front.Width,
		Height: c.front.Height,
		Seq:    c.front.Seq,
		Pix:    append([]colorful.Color(nil), c.front.Pix...),
	}
	return frame, c.changed
}

// publish swaps the back frame to the front and wakes watchers.
func (c *Composition) publish() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.back.Seq = c.front.Seq + 1
	c.front, c.back = c.back, c.front
	close(c.changed)
	c.changed = make(chan struct{})
}
