// Package shape parses the layer configuration language.  A shape
// names the network, its inputs, and its layers in order:
//
//	(drawnet x y (leakyrelu 100) (leakyrelu 100) (identity r g b))
//
// A layer is an activation name followed by either a unit count
// (hidden layer) or the names of its units (output layer).  A layer
// mixing activations is written as a group:
//
//	(+ (tanh 2) (relu 1))
package shape

import (
	"fmt"
	"strconv"
	"strings"

	. "github.com/stevegt/goadapt"
	"github.com/xiam/sexpr/ast"
	"github.com/xiam/sexpr/parser"
)

// Default is five hidden layers of 100 leaky rectifiers over the x,y
// inputs, and an identity output layer for the r,g,b channels.
const Default = "(drawnet x y (leakyrelu 100) (leakyrelu 100) (leakyrelu 100) (leakyrelu 100) (leakyrelu 100) (identity r g b))"

// Shape is a representation of the network's shape.
type Shape struct {
	Name        string
	InputNames  []string
	OutputNames []string
	LayerShapes []*LayerShape
}

func (s *Shape) String() (out string) {
	parts := []string{s.Name}
	parts = append(parts, s.InputNames...)
	for _, layer := range s.LayerShapes {
		parts = append(parts, layer.String())
	}
	out = Spf("(%s)", strings.Join(parts, " "))
	return
}

// SetOutputNames copies the output names from the last layer's
// node names.
func (s *Shape) SetOutputNames() {
	if len(s.LayerShapes) == 0 {
		return
	}
	lastLayer := s.LayerShapes[len(s.LayerShapes)-1]
	s.OutputNames = lastLayer.OutputNames()
}

// Validate checks that the shape describes a usable network: at
// least one input, at least one layer, no empty layers, named units
// only in the last layer and every unit of the last layer named.
func (s *Shape) Validate() error {
	if len(s.InputNames) == 0 {
		return fmt.Errorf("shape %s: no inputs", s.Name)
	}
	if len(s.LayerShapes) == 0 {
		return fmt.Errorf("shape %s: no layers", s.Name)
	}
	for i, layer := range s.LayerShapes {
		if len(layer.Nodes) == 0 {
			return fmt.Errorf("shape %s: layer %d is empty", s.Name, i)
		}
		last := i == len(s.LayerShapes)-1
		for _, node := range layer.Nodes {
			if last && node.Name == "" {
				return fmt.Errorf("shape %s: output layer has an unnamed unit", s.Name)
			}
			if !last && node.Name != "" {
				return fmt.Errorf("shape %s: hidden layer %d has named unit %s", s.Name, i, node.Name)
			}
		}
	}
	return nil
}

// Widths returns the number of units in each layer.
func (s *Shape) Widths() (widths []int) {
	for _, layer := range s.LayerShapes {
		widths = append(widths, len(layer.Nodes))
	}
	return
}

// LayerShape is an ordered list of units.
type LayerShape struct {
	Nodes []*NodeShape
}

// String groups consecutive units with the same activation and kind.
func (s *LayerShape) String() (out string) {
	groups := []string{}
	for i := 0; i < len(s.Nodes); {
		node := s.Nodes[i]
		named := node.Name != ""
		j := i
		names := []string{}
		for ; j < len(s.Nodes); j++ {
			other := s.Nodes[j]
			if other.ActivationName != node.ActivationName || (other.Name != "") != named {
				break
			}
			names = append(names, other.Name)
		}
		if named {
			groups = append(groups, Spf("(%s %s)", node.ActivationName, strings.Join(names, " ")))
		} else {
			groups = append(groups, Spf("(%s %d)", node.ActivationName, j-i))
		}
		i = j
	}
	if len(groups) == 1 {
		out = groups[0]
	} else {
		out = Spf("(+ %s)", strings.Join(groups, " "))
	}
	return
}

// OutputNames returns the unit names of the layer.
func (s *LayerShape) OutputNames() (names []string) {
	for i := 0; i < len(s.Nodes); i++ {
		names = append(names, s.Nodes[i].Name)
	}
	return
}

// ActivationNames returns the activation name of each unit.
func (s *LayerShape) ActivationNames() (names []string) {
	for _, node := range s.Nodes {
		names = append(names, node.ActivationName)
	}
	return
}

type NodeShape struct {
	Name           string
	ActivationName string
}

// SyntaxError is a syntax error.
type SyntaxError struct {
	msg  string
	node *ast.Node
}

func (e *SyntaxError) Error() string {
	if e.node == nil || e.node.Token() == nil {
		return Spf("[shape] %s", e.msg)
	}
	return Spf("[shape:%s] %s:\n%s", e.node.Token().Pos(), e.msg, e.node.String())
}

// synck raises a syntax err if cond is false.
func synck(node *ast.Node, cond bool, args ...interface{}) {
	if !cond {
		msg := FormatArgs(args...)
		panic(&SyntaxError{msg, node})
	}
}

// Parse parses a shape.  Syntax errors are returned as *SyntaxError.
func Parse(txt string) (s *Shape, err error) {
	defer Return(&err)
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		synErr, ok := r.(*SyntaxError)
		if !ok {
			panic(r)
		}
		s = nil
		err = synErr
	}()
	root, err := parser.Parse([]byte(txt))
	Ck(err)

	// root is a list
	synck(root, root.Type() == ast.NodeTypeList, "root is not a list")
	// root has one child
	children := root.List()
	synck(root, len(children) == 1, "root has %d children", len(children))
	// root's child is an expression
	expr := children[0]
	synck(expr, expr.Type() == ast.NodeTypeExpression, "root's child is not an expression")
	s = parseShape(expr)
	return
}

type Expr struct {
	Op   string
	Args []Expr
	node *ast.Node
}

func parseShape(n *ast.Node) (s *Shape) {
	s = &Shape{}
	expr := parseExpr(n)
	s.Name = expr.Op
	for _, arg := range expr.Args {
		if len(arg.Args) == 0 {
			synck(arg.node, arg.node.Type() != ast.NodeTypeExpression, "layer %s has no units", arg.Op)
			synck(arg.node, len(s.LayerShapes) == 0, "input %s after a layer", arg.Op)
			s.InputNames = append(s.InputNames, arg.Op)
		} else {
			// layer
			layerShape := parseLayer(arg)
			s.LayerShapes = append(s.LayerShapes, layerShape)
		}
	}
	s.SetOutputNames()
	return
}

func parseLayer(arg Expr) (layerShape *LayerShape) {
	layerShape = &LayerShape{}
	if arg.Op == "+" {
		// node groups
		for _, groupExpr := range arg.Args {
			synck(groupExpr.node, len(groupExpr.Args) > 0, "group member %s is not a layer", groupExpr.Op)
			subLayerShape := parseLayer(groupExpr)
			layerShape.Nodes = append(layerShape.Nodes, subLayerShape.Nodes...)
		}
		return
	}
	actName := arg.Op
	for _, nodeExpr := range arg.Args {
		synck(nodeExpr.node, len(nodeExpr.Args) == 0, "nested expression in %s layer", actName)
		// nodeExpr.Op is either a node count or an output name
		count, err := strconv.Atoi(nodeExpr.Op)
		if err != nil {
			// it's an output name
			node := &NodeShape{}
			node.Name = nodeExpr.Op
			node.ActivationName = actName
			layerShape.Nodes = append(layerShape.Nodes, node)
			continue
		}
		// it's a node count
		synck(nodeExpr.node, count > 0, "layer width %d is not positive", count)
		for i := 0; i < count; i++ {
			node := &NodeShape{}
			node.ActivationName = actName
			layerShape.Nodes = append(layerShape.Nodes, node)
		}
	}
	return
}

func parseExpr(n *ast.Node) (expr *Expr) {
	children := n.List()
	synck(n, len(children) > 0, "missing opcode")
	synck(n, children[0].Type() == ast.NodeTypeSymbol, "first word is not a symbol")
	expr = &Expr{node: n}
	expr.Op = children[0].Encode()
	for i := 1; i < len(children); i++ {
		switch children[i].Type() {
		case ast.NodeTypeSymbol, ast.NodeTypeInt, ast.NodeTypeFloat, ast.NodeTypeString:
			expr.Args = append(expr.Args, Expr{Op: children[i].Encode(), node: children[i]})
		case ast.NodeTypeExpression:
			arg := parseExpr(children[i])
			expr.Args = append(expr.Args, *arg)
		default:
			synck(children[i], false, "unknown node type %v", children[i].Type())
		}
	}
	return
}
