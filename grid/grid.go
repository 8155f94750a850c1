// Package grid builds the network inputs for every pixel of an image.
package grid

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// ErrDegenerate is returned for an image dimension below 2, where
// Scale would divide by zero.
var ErrDegenerate = errors.New("degenerate image dimension")

// Scale maps index i of maxI onto [-0.5, 0.5], with 0 -> -0.5 and
// maxI-1 -> 0.5.  maxI must be at least 2; Scale(i, 1) divides by
// zero.
func Scale(i, maxI int) float64 {
	return float64(i)/float64(maxI-1) - 0.5
}

// Check returns ErrDegenerate unless both dimensions are at least 2.
func Check(width, height int) error {
	if width < 2 {
		return fmt.Errorf("width %d: %w", width, ErrDegenerate)
	}
	if height < 2 {
		return fmt.Errorf("height %d: %w", height, ErrDegenerate)
	}
	return nil
}

// Grid holds the scaled coordinates of every pixel.  Row i+Width*j of
// XY is (Scale(i, Width), Scale(j, Height)) for pixel (i, j).
type Grid struct {
	Width  int
	Height int
	XY     *mat.Dense
}

// Build computes the grid for a width x height image.
func Build(width, height int) (*Grid, error) {
	if err := Check(width, height); err != nil {
		return nil, err
	}
	g := &Grid{
		Width:  width,
		Height: height,
		XY:     mat.NewDense(width*height, 2, nil),
	}
	for i := 0; i < width; i++ {
		x := Scale(i, width)
		for j := 0; j < height; j++ {
			index := g.Index(i, j)
			g.XY.Set(index, 0, x)
			g.XY.Set(index, 1, Scale(j, height))
		}
	}
	return g, nil
}

// Index returns the row of pixel (i, j).
func (g *Grid) Index(i, j int) int {
	return i + g.Width*j
}

// Len returns the number of pixels.
func (g *Grid) Len() int {
	return g.Width * g.Height
}
