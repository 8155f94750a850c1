// Package render paints the network's reconstruction of the image.
package render

import (
	"fmt"
	"math"

	"github.com/lucasb-eyer/go-colorful"
	. "github.com/stevegt/goadapt"
	"github.com/stevegt/drawnet"
	"github.com/stevegt/drawnet/grid"
	"gonum.org/v1/gonum/mat"
)

// Forwarder evaluates a batch without changing any weights.
type Forwarder interface {
	Forward(inputs mat.Matrix) *mat.Dense
}

// Clamp limits x to [0, 1].
func Clamp(x float64) float64 {
	return math.Min(1, math.Max(0, x))
}

// Renderer runs the whole grid through the network and writes the
// result into the composition.  It is the composition's only writer.
type Renderer struct {
	net  Forwarder
	grid *grid.Grid
	comp *Composition
}

// New returns a Renderer.  The composition must match the grid.
func New(net Forwarder, g *grid.Grid, comp *Composition) *Renderer {
	Assert(comp.Width() == g.Width && comp.Height() == g.Height,
		"composition %dx%d does not match grid %dx%d", comp.Width(), comp.Height(), g.Width, g.Height)
	return &Renderer{net: net, grid: g, comp: comp}
}

// Render repaints every pixel and publishes the frame.  If any raw
// output is NaN or infinite nothing is published and
// drawnet.ErrNumericInstability is returned.
func (r *Renderer) Render() error {
	out := r.net.Forward(r.grid.XY)
	rows, cols := out.Dims()
	Assert(rows == r.grid.Len(), "want %d rows, got %d", r.grid.Len(), rows)
	Assert(cols == 3, "want 3 channels, got %d", cols)

	back := r.comp.back
	for index := 0; index < rows; index++ {
		rgb := out.RawRowView(index)
		for _, v := range rgb {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return fmt.Errorf("pixel %d output %v: %w", index, v, drawnet.ErrNumericInstability)
			}
		}
		back.Pix[index] = colorful.Color{R: Clamp(rgb[0]), G: Clamp(rgb[1]), B: Clamp(rgb[2])}
	}
	r.comp.publish()
	return nil
}
