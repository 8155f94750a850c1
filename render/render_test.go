package render

import (
	"errors"
	"math"
	"testing"

	. "github.com/stevegt/goadapt"
	"github.com/stevegt/drawnet"
	"github.com/stevegt/drawnet/grid"
	"github.com/stevegt/drawnet/shape"
	"gonum.org/v1/gonum/mat"
)

func TestClamp(t *testing.T) {
	Tassert(t, Clamp(-5) == 0, Clamp(-5))
	Tassert(t, Clamp(0.5) == 0.5, Clamp(0.5))
	Tassert(t, Clamp(5) == 1, Clamp(5))
	for _, v := range []float64{-1e300, -1, -0.0001, 0, 0.3, 1, 1.0001, 7, 1e300, math.Inf(1), math.Inf(-1)} {
		c := Clamp(v)
		Tassert(t, c >= 0 && c <= 1, v, c)
	}
}

// constant returns the same raw value for every channel.
type constant struct {
	value float64
	calls int
}

func (c *constant) Forward(inputs mat.Matrix) *mat.Dense {
	c.calls++
	rows, _ := inputs.Dims()
	out := mat.NewDense(rows, 3, nil)
	for i := 0; i < rows; i++ {
		out.Set(i, 0, c.value)
		out.Set(i, 1, -c.value)
		out.Set(i, 2, 0.5)
	}
	return out
}

func TestRenderClampsAndPublishes(t *testing.T) {
	g, err := grid.Build(3, 2)
	Tassert(t, err == nil, err)
	comp := NewComposition(3, 2)
	frame, changed := comp.Watch()
	Tassert(t, frame.Seq == 0, frame.Seq)

	net := &constant{value: 4}
	r := New(net, g, comp)
	err = r.Render()
	Tassert(t, err == nil, err)
	select {
	case <-changed:
	default:
		t.Fatal("publish did not wake watchers")
	}
	first := comp.Frame()
	Tassert(t, first.Seq == 1, first.Seq)
	for _, c := range first.Pix {
		Tassert(t, c.R == 1 && c.G == 0 && c.B == 0.5, c)
	}

	// a later render does not touch copies already handed out
	net.value = -4
	err = r.Render()
	Tassert(t, err == nil, err)
	second := comp.Frame()
	Tassert(t, second.Seq == 2, second.Seq)
	Tassert(t, first.Pix[0].R == 1, first.Pix[0])
	Tassert(t, second.Pix[0].R == 0 && second.Pix[0].G == 1, second.Pix[0])
	Tassert(t, net.calls == 2, net.calls)
}

func TestRenderRejectsNonFinite(t *testing.T) {
	g, err := grid.Build(2, 2)
	Tassert(t, err == nil, err)
	comp := NewComposition(2, 2)
	r := New(&constant{value: math.NaN()}, g, comp)
	err = r.Render()
	Tassert(t, errors.Is(err, drawnet.ErrNumericInstability), err)
	Tassert(t, comp.Frame().Seq == 0, "unstable frame was published")
}

func TestInitialRenderMatchesForward(t *testing.T) {
	s, err := shape.Parse("(t x y (leakyrelu 8) (identity r g b))")
	Tassert(t, err == nil, err)
	net, err := drawnet.NewNetwork(s, drawnet.Parms{LearningRate: 0.1, Momentum: 0.9, Seed: 123})
	Tassert(t, err == nil, err)
	g, err := grid.Build(2, 2)
	Tassert(t, err == nil, err)
	comp := NewComposition(2, 2)
	err = New(net, g, comp).Render()
	Tassert(t, err == nil, err)

	frame := comp.Frame()
	Tassert(t, len(frame.Pix) == 4, len(frame.Pix))
	want := net.Forward(g.XY)
	for i := 0; i < 2; i++ {
		for j := 0; j < 2; j++ {
			index := g.Index(i, j)
			c := frame.At(i, j)
			Tassert(t, c.R == Clamp(want.At(index, 0)), i, j, c.R)
			Tassert(t, c.G == Clamp(want.At(index, 1)), i, j, c.G)
			Tassert(t, c.B == Clamp(want.At(index, 2)), i, j, c.B)
		}
	}
}

func TestFrameImage(t *testing.T) {
	g, err := grid.Build(2, 3)
	Tassert(t, err == nil, err)
	comp := NewComposition(2, 3)
	err = New(&constant{value: 1}, g, comp).Render()
	Tassert(t, err == nil, err)
	img := comp.Frame().Image()
	Tassert(t, img.Bounds().Dx() == 2 && img.Bounds().Dy() == 3, img.Bounds())
	px := img.RGBAAt(1, 2)
	Tassert(t, px.R == 255 && px.G == 0 && px.B == 128 && px.A == 255, px)
}
