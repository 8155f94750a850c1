package drawnet

import (
	"math"
)

// leakSlope is the negative-side slope of the leaky rectifier.
const leakSlope = 0.01

// All derivatives below take the weighted sum (the activation's
// input), not the activation's output.

// sigmoid activation function
func sigmoid(x float64) float64 {
	return 1.0 / (1.0 + math.Exp(-x))
}

// sigmoid derivative
func sigmoidD1(x float64) float64 {
	s := sigmoid(x)
	return s * (1 - s)
}

// tanh activation function
func tanh(x float64) float64 {
	return math.Tanh(x)
}

// tanh derivative
func tanhD1(x float64) float64 {
	t := math.Tanh(x)
	return 1 - t*t
}

// relu activation function
func relu(x float64) float64 {
	if x < 0 {
		return 0
	}
	return x
}

// relu derivative
func reluD1(x float64) float64 {
	if x < 0 {
		return 0
	}
	return 1
}

// leakyRelu passes positive inputs unchanged and scales negative
// inputs by leakSlope.
func leakyRelu(x float64) float64 {
	if x < 0 {
		return leakSlope * x
	}
	return x
}

// leaky relu derivative
func leakyReluD1(x float64) float64 {
	if x < 0 {
		return leakSlope
	}
	return 1
}

// linear activation function
func linear(x float64) float64 {
	return x
}

// linear derivative
func linearD1(x float64) float64 {
	return 1
}

// square activation function
func square(x float64) float64 {
	return x * x
}

// square derivative
func squareD1(x float64) float64 {
	return 2 * x
}

// abs activation function
func abs(x float64) float64 {
	return math.Abs(x)
}

// abs derivative
func absD1(x float64) float64 {
	if x < 0 {
		return -1
	}
	if x > 0 {
		return 1
	}
	return 0
}

// activationFuncs returns the activation function and its derivative
// for the given name.  The ok result is false for unknown names.
func activationFuncs(name string) (activation, activationD1 func(float64) float64, ok bool) {
	switch name {
	case "sigmoid":
		return sigmoid, sigmoidD1, true
	case "tanh":
		return tanh, tanhD1, true
	case "relu":
		return relu, reluD1, true
	case "leakyrelu":
		return leakyRelu, leakyReluD1, true
	case "linear", "identity":
		return linear, linearD1, true
	case "square":
		return square, squareD1, true
	case "abs":
		return abs, absD1, true
	}
	return nil, nil, false
}
