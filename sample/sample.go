// Package sample draws training batches of random pixels.
package sample

import (
	"fmt"

	"github.com/stevegt/drawnet/grid"
	"gonum.org/v1/gonum/mat"
)

// Image is the source of ground-truth colors.  RGB returns channels
// in [0, 1] for x in [0, Width()) and y in [0, Height()).
type Image interface {
	Width() int
	Height() int
	RGB(x, y int) (r, g, b float64)
}

// Source yields uniformly distributed integers in [0, n).  A
// *rand.Rand is a Source.
type Source interface {
	Intn(n int) int
}

// Batch is a set of training pairs: row k of Inputs holds the scaled
// (x, y) of a pixel and row k of Targets holds its (r, g, b).
type Batch struct {
	Inputs  *mat.Dense
	Targets *mat.Dense
}

// Len returns the number of rows in the batch.
func (b Batch) Len() int {
	if b.Inputs == nil {
		return 0
	}
	r, _ := b.Inputs.Dims()
	return r
}

// Draw draws size pixels from img, uniformly and with replacement.
// For each row x is drawn before y.
func Draw(src Source, img Image, size int) Batch {
	width, height := img.Width(), img.Height()
	b := Batch{
		Inputs:  mat.NewDense(size, 2, nil),
		Targets: mat.NewDense(size, 3, nil),
	}
	for k := 0; k < size; k++ {
		x := src.Intn(width)
		y := src.Intn(height)
		b.Inputs.Set(k, 0, grid.Scale(x, width))
		b.Inputs.Set(k, 1, grid.Scale(y, height))
		r, g, bl := img.RGB(x, y)
		b.Targets.Set(k, 0, r)
		b.Targets.Set(k, 1, g)
		b.Targets.Set(k, 2, bl)
	}
	return b
}

// Sampler draws successive batches from one random stream.
type Sampler struct {
	src  Source
	img  Image
	size int
}

// New returns a Sampler drawing size pixels per batch.  The source is
// used as-is for every batch and never reseeded.
func New(src Source, img Image, size int) (*Sampler, error) {
	if size <= 0 {
		return nil, fmt.Errorf("batch size must be > 0 (got %d)", size)
	}
	if err := grid.Check(img.Width(), img.Height()); err != nil {
		return nil, err
	}
	return &Sampler{src: src, img: img, size: size}, nil
}

// Next draws the next batch.
func (s *Sampler) Next() Batch {
	return Draw(s.src, s.img, s.size)
}

// Size returns the batch size.
func (s *Sampler) Size() int {
	return s.size
}
