package drawnet

import (
	"github.com/emicklei/dot"
	. "github.com/stevegt/goadapt"
)

// Draw returns a graphviz description of the network: one node per
// input, one per layer, one per output.
func (n *Network) Draw() string {
	n.lock.Lock()
	defer n.lock.Unlock()

	g := dot.NewGraph(dot.Directed)
	g.Attr("rankdir", "LR")
	g.Attr("label", n.Name)

	inputs := make([]dot.Node, len(n.InputNames))
	for i, name := range n.InputNames {
		inputs[i] = g.Node("in_" + name).Label(name).Attr("shape", "circle")
	}

	var prev dot.Node
	for i, layer := range n.Layers {
		node := g.Node(Spf("layer%d", i)).Label(Spf("dense %d\\n%s", i, layer.groups())).Attr("shape", "box")
		if i == 0 {
			for _, in := range inputs {
				g.Edge(in, node)
			}
		} else {
			g.Edge(prev, node, Spf("%dx%d", layer.FanIn(), layer.Width()))
		}
		prev = node
	}

	for _, name := range n.OutputNames {
		out := g.Node("out_" + name).Label(name).Attr("shape", "doublecircle")
		g.Edge(prev, out)
	}
	return g.String()
}
