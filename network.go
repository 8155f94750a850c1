package drawnet

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sync"

	. "github.com/stevegt/goadapt"
	"github.com/stevegt/drawnet/shape"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// ErrNumericInstability is returned when training or inference
// produces a value that is NaN or infinite.
var ErrNumericInstability = errors.New("numeric instability")

// Parms contains the training parameters of a network.
type Parms struct {
	LearningRate float64
	Momentum     float64
	Seed         int64
}

// Network is a feed-forward stack of dense layers.
type Network struct {
	Name         string
	InputNames   []string
	OutputNames  []string
	Layers       []*Layer
	LearningRate float64
	Momentum     float64
	cost         float64 // most recent training cost
	lock         sync.Mutex
}

// NewNetwork builds a network with the given shape.  Weights are
// drawn from a Xavier distribution seeded by parms.Seed, so two
// networks built from the same shape and parms are identical.
func NewNetwork(s *shape.Shape, parms Parms) (net *Network, err error) {
	err = s.Validate()
	if err != nil {
		return
	}
	net = &Network{
		Name:         s.Name,
		InputNames:   append([]string(nil), s.InputNames...),
		OutputNames:  append([]string(nil), s.OutputNames...),
		LearningRate: parms.LearningRate,
		Momentum:     parms.Momentum,
	}
	fanIn := len(s.InputNames)
	for i, layerShape := range s.LayerShapes {
		layer, err := newLayer(fanIn, layerShape.ActivationNames())
		if err != nil {
			return nil, fmt.Errorf("layer %d: %w", i, err)
		}
		net.Layers = append(net.Layers, layer)
		fanIn = layer.Width()
	}
	net.Randomize(rand.New(rand.NewSource(parms.Seed)))
	return
}

// InputCount returns the number of inputs.
func (n *Network) InputCount() int {
	return len(n.InputNames)
}

// OutputCount returns the number of outputs.
func (n *Network) OutputCount() int {
	return n.Layers[len(n.Layers)-1].Width()
}

// GetCost returns the cost of the most recent call to Fit().
func (n *Network) GetCost() float64 {
	n.lock.Lock()
	defer n.lock.Unlock()
	return n.cost
}

// Randomize re-initializes all weights and biases from rng.
func (n *Network) Randomize(rng *rand.Rand) {
	n.lock.Lock()
	defer n.lock.Unlock()
	for _, layer := range n.Layers {
		layer.randomize(rng)
	}
}

// SetActivation sets the activation function of a unit.  If layerNum
// is -1 it applies to every layer, and if unitNum is -1 it applies to
// every unit of the layer.  An unknown name changes nothing.
func (n *Network) SetActivation(layerNum, unitNum int, activation string) (err error) {
	n.lock.Lock()
	defer n.lock.Unlock()
	act, actD1, ok := activationFuncs(activation)
	if !ok {
		return fmt.Errorf("unknown activation function: %s", activation)
	}
	Assert(layerNum >= -1 && layerNum < len(n.Layers), "no layer %d", layerNum)
	Assert(unitNum >= -1, "no unit %d", unitNum)
	for i, layer := range n.Layers {
		if layerNum >= 0 && i != layerNum {
			continue
		}
		Assert(unitNum < layer.Width(), "no unit %d in layer %d", unitNum, i)
		for j := range layer.ActivationNames {
			if unitNum >= 0 && j != unitNum {
				continue
			}
			layer.ActivationNames[j] = activation
			layer.activations[j] = act
			layer.activationsD1[j] = actD1
		}
	}
	return
}

// Zero sets all weights and biases to zero and resets the updater.
func (n *Network) Zero() {
	n.lock.Lock()
	defer n.lock.Unlock()
	for _, layer := range n.Layers {
		layer.Weights.Zero()
		layer.vWeights.Zero()
		for j := range layer.Biases {
			layer.Biases[j] = 0
			layer.vBiases[j] = 0
		}
	}
}

// Forward runs a batch of inputs, one row per sample, through the
// network and returns one row of outputs per sample.  The weights are
// not changed.
func (n *Network) Forward(inputs mat.Matrix) (outputs *mat.Dense) {
	n.lock.Lock()
	defer n.lock.Unlock()
	return n.forward(inputs, false)
}

func (n *Network) forward(inputs mat.Matrix, cache bool) (outputs *mat.Dense) {
	var in mat.Matrix = inputs
	for _, layer := range n.Layers {
		outputs = layer.forward(in, cache)
		in = outputs
	}
	return
}

// Predict executes the forward function of the network for a single
// input vector and returns its output values.
func (n *Network) Predict(inputs []float64) (outputs []float64) {
	Assert(len(inputs) == n.InputCount(), "input count mismatch")
	out := n.Forward(mat.NewDense(1, len(inputs), append([]float64(nil), inputs...)))
	return append([]float64(nil), out.RawRowView(0)...)
}

// Fit performs one optimizer step over a batch.  Each row of inputs
// is one sample and the same row of targets holds its expected
// outputs.  The cost is the squared error summed over the outputs,
// averaged over the rows.  If the cost is not finite the
// weights are left alone and ErrNumericInstability is returned.
func (n *Network) Fit(inputs, targets *mat.Dense) (cost float64, err error) {
	n.lock.Lock()
	defer n.lock.Unlock()

	rows, cols := inputs.Dims()
	Assert(cols == n.InputCount(), "input count mismatch")
	trows, tcols := targets.Dims()
	Assert(trows == rows, "batch has %d inputs and %d targets", rows, trows)
	Assert(tcols == n.OutputCount(), "output count mismatch")

	outputs := n.forward(inputs, true)

	// cost = (target - output)^2
	// dcost/doutput = 2 * (output - target)
	grad := mat.NewDense(rows, tcols, nil)
	grad.Sub(outputs, targets)
	raw := grad.RawMatrix().Data
	cost = floats.Dot(raw, raw) / float64(rows)
	if math.IsNaN(cost) || math.IsInf(cost, 0) {
		for _, layer := range n.Layers {
			layer.input = nil
			layer.weighted = nil
		}
		return cost, fmt.Errorf("training cost %v: %w", cost, ErrNumericInstability)
	}
	grad.Scale(2/float64(rows), grad)

	// Backpropagate from the output layer towards the inputs.
	for i := len(n.Layers) - 1; i >= 0; i-- {
		grad = n.Layers[i].backprop(grad, n.LearningRate, n.Momentum)
	}

	n.cost = cost
	return
}

// String returns the network's shape in the shape language.
func (n *Network) String() string {
	s := &shape.Shape{Name: n.Name, InputNames: n.InputNames}
	for i, layer := range n.Layers {
		ls := &shape.LayerShape{}
		last := i == len(n.Layers)-1
		for j, name := range layer.ActivationNames {
			node := &shape.NodeShape{ActivationName: name}
			if last && j < len(n.OutputNames) {
				node.Name = n.OutputNames[j]
			}
			ls.Nodes = append(ls.Nodes, node)
		}
		s.LayerShapes = append(s.LayerShapes, ls)
	}
	return s.String()
}
