package drawnet

import (
	"fmt"
	"math"
	"math/rand"

	. "github.com/stevegt/goadapt"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Layer is a dense layer.  Row i of a batch flows through it as
//
//	output[i][j] = activation[j](sum_k(input[i][k] * Weights[k][j]) + Biases[j])
//
// so Weights is fanIn x width and each column holds the weights of
// one unit.
type Layer struct {
	ActivationNames []string
	Weights         *mat.Dense
	Biases          []float64

	activations   []func(float64) float64
	activationsD1 []func(float64) float64

	// updater state
	vWeights *mat.Dense
	vBiases  []float64

	// cached by the most recent training pass
	input    mat.Matrix
	weighted *mat.Dense
}

// newLayer creates a zeroed layer with fanIn inputs and one unit per
// activation name.
func newLayer(fanIn int, activationNames []string) (l *Layer, err error) {
	if fanIn < 1 || len(activationNames) < 1 {
		return nil, fmt.Errorf("layer needs inputs and units, got %d inputs and %d units", fanIn, len(activationNames))
	}
	width := len(activationNames)
	l = &Layer{
		ActivationNames: append([]string(nil), activationNames...),
		Weights:         mat.NewDense(fanIn, width, nil),
		Biases:          make([]float64, width),
		vWeights:        mat.NewDense(fanIn, width, nil),
		vBiases:         make([]float64, width),
		activations:     make([]func(float64) float64, width),
		activationsD1:   make([]func(float64) float64, width),
	}
	for j, name := range activationNames {
		act, actD1, ok := activationFuncs(name)
		if !ok {
			return nil, fmt.Errorf("unknown activation function: %s", name)
		}
		l.activations[j] = act
		l.activationsD1[j] = actD1
	}
	return
}

// Width returns the number of units in the layer.
func (l *Layer) Width() int {
	return len(l.Biases)
}

// FanIn returns the number of inputs to each unit.
func (l *Layer) FanIn() int {
	r, _ := l.Weights.Dims()
	return r
}

// randomize draws the weights from a Xavier normal distribution with
// variance 2/(fanIn+width), zeroes the biases and resets the updater.
func (l *Layer) randomize(rng *rand.Rand) {
	fanIn, width := l.Weights.Dims()
	std := math.Sqrt(2 / float64(fanIn+width))
	for k := 0; k < fanIn; k++ {
		for j := 0; j < width; j++ {
			l.Weights.Set(k, j, rng.NormFloat64()*std)
		}
	}
	for j := range l.Biases {
		l.Biases[j] = 0
		l.vBiases[j] = 0
	}
	l.vWeights.Zero()
}

// setWeights sets the weights of each unit; weights[j] holds the
// input weights of unit j.
func (l *Layer) setWeights(weights [][]float64) {
	Assert(len(weights) == l.Width(), "want %d units, got %d", l.Width(), len(weights))
	for j, unit := range weights {
		Assert(len(unit) == l.FanIn(), "want %d weights, got %d", l.FanIn(), len(unit))
		for k, w := range unit {
			l.Weights.Set(k, j, w)
		}
	}
}

// setBiases sets the bias of each unit.
func (l *Layer) setBiases(biases []float64) {
	Assert(len(biases) == l.Width())
	copy(l.Biases, biases)
}

// forward runs a batch through the layer.  If cache is true the input
// and weighted sums are kept for a following backprop call.
func (l *Layer) forward(input mat.Matrix, cache bool) (output *mat.Dense) {
	rows, cols := input.Dims()
	Assert(cols == l.FanIn(), "input has %d columns, layer wants %d", cols, l.FanIn())
	weighted := mat.NewDense(rows, l.Width(), nil)
	weighted.Mul(input, l.Weights)
	for i := 0; i < rows; i++ {
		floats.Add(weighted.RawRowView(i), l.Biases)
	}
	output = mat.NewDense(rows, l.Width(), nil)
	output.Apply(func(i, j int, v float64) float64 {
		return l.activations[j](v)
	}, weighted)
	if cache {
		l.input = input
		l.weighted = weighted
	}
	return
}

// backprop takes the gradient of the cost with respect to this
// layer's outputs, updates the weights and biases, and returns the
// gradient with respect to the layer's inputs.  It must follow a
// forward call with cache set.
func (l *Layer) backprop(outputGrad *mat.Dense, rate, momentum float64) (inputGrad *mat.Dense) {
	Assert(l.weighted != nil, "backprop without a cached forward pass")
	rows, width := outputGrad.Dims()

	// gradient with respect to the weighted sums
	delta := mat.NewDense(rows, width, nil)
	delta.Apply(func(i, j int, v float64) float64 {
		return v * l.activationsD1[j](l.weighted.At(i, j))
	}, outputGrad)

	gradWeights := mat.NewDense(l.FanIn(), width, nil)
	gradWeights.Mul(l.input.T(), delta)
	gradBiases := make([]float64, width)
	for i := 0; i < rows; i++ {
		floats.Add(gradBiases, delta.RawRowView(i))
	}

	// propagate through the weights before they change
	inputGrad = mat.NewDense(rows, l.FanIn(), nil)
	inputGrad.Mul(delta, l.Weights.T())

	l.update(gradWeights, gradBiases, rate, momentum)

	l.input = nil
	l.weighted = nil
	return
}

// update applies one Nesterov momentum step:
//
//	v' = momentum*v - rate*grad
//	w += -momentum*v + (1+momentum)*v'
//
// With momentum zero this is plain gradient descent.
func (l *Layer) update(gradWeights *mat.Dense, gradBiases []float64, rate, momentum float64) {
	var prev mat.Dense
	prev.CloneFrom(l.vWeights)
	gradWeights.Scale(rate, gradWeights)
	l.vWeights.Scale(momentum, l.vWeights)
	l.vWeights.Sub(l.vWeights, gradWeights)

	prev.Scale(-momentum, &prev)
	var step mat.Dense
	step.Scale(1+momentum, l.vWeights)
	l.Weights.Add(l.Weights, &prev)
	l.Weights.Add(l.Weights, &step)

	for j := range l.Biases {
		prevB := l.vBiases[j]
		l.vBiases[j] = momentum*l.vBiases[j] - rate*gradBiases[j]
		l.Biases[j] += -momentum*prevB + (1+momentum)*l.vBiases[j]
	}
}

// groups summarizes the layer's activations as runs of consecutive
// units, e.g. "100 leakyrelu" or "2 tanh + 1 relu".
func (l *Layer) groups() (out string) {
	count := 0
	for j, name := range l.ActivationNames {
		count++
		if j+1 < len(l.ActivationNames) && l.ActivationNames[j+1] == name {
			continue
		}
		if out != "" {
			out += " + "
		}
		out += Spf("%d %s", count, name)
		count = 0
	}
	return
}
