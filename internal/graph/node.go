package graph

import (
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/roach88/dpgraph/internal/privacy"
	"github.com/roach88/dpgraph/internal/protocol"
	"github.com/roach88/dpgraph/internal/value"
)

// Node is one component of an analysis. Nodes are created only through
// their analysis, which assigns the id.
type Node struct {
	id       NodeID
	op       Op
	args     map[string]*Node
	options  map[string]json.RawMessage
	batch    uint32
	analysis *Analysis
	detached bool
}

// ID returns the node id.
func (n *Node) ID() NodeID { return n.id }

// Op returns the operation.
func (n *Node) Op() Op { return n.op }

// Batch returns the release epoch the node was created in.
func (n *Node) Batch() uint32 { return n.batch }

// Analysis returns the owning analysis.
func (n *Node) Analysis() *Analysis { return n.analysis }

// Detached reports whether Prune removed the node.
func (n *Node) Detached() bool { return n.detached }

// Arguments returns a copy of the argument edges.
func (n *Node) Arguments() map[string]*Node {
	return maps.Clone(n.args)
}

// Argument returns the node bound to name, or nil.
func (n *Node) Argument(name string) *Node {
	return n.args[name]
}

// Option returns the encoded option name.
func (n *Node) Option(name string) (json.RawMessage, bool) {
	raw, ok := n.options[name]
	return raw, ok
}

// Known returns the known value of the node, if any.
func (n *Node) Known() (Known, bool) {
	k, ok := n.analysis.releases[n.id]
	return k, ok
}

// Value returns the known value as plain Go values (see value.Native), or
// nil when nothing is known yet.
func (n *Node) Value() any {
	k, ok := n.Known()
	if !ok {
		return nil
	}
	return value.Native(k.Value)
}

// ActualPrivacyUsage returns the budget the engine reports the node's
// release spent, or nil.
func (n *Node) ActualPrivacyUsage() []privacy.Usage {
	k, ok := n.Known()
	if !ok {
		return nil
	}
	return k.PrivacyUsages
}

// Dependent is one edge into a node.
type Dependent struct {
	Node     *Node
	Argument string
}

// Dependents returns the live nodes that consume n, ordered by id and then
// argument name.
func (n *Node) Dependents() []Dependent {
	var out []Dependent
	for _, id := range n.analysis.order {
		consumer := n.analysis.nodes[id]
		names := slices.Sorted(maps.Keys(consumer.args))
		for _, name := range names {
			if consumer.args[name] == n {
				out = append(out, Dependent{Node: consumer, Argument: name})
			}
		}
	}
	return out
}

// component returns the wire form of n.
func (n *Node) component() protocol.Component {
	c := protocol.Component{
		Variant: n.op.Variant(),
		Options: n.options,
		Batch:   n.batch,
	}
	if len(n.args) > 0 {
		c.Arguments = make(map[string]NodeID, len(n.args))
		for name, arg := range n.args {
			c.Arguments[name] = arg.id
		}
	}
	return c
}

// String renders the node as an indented component tree. Arguments whose
// value is already known are shown as that value.
func (n *Node) String() string {
	var b strings.Builder
	n.format(&b, 0)
	return b.String()
}

func (n *Node) format(b *strings.Builder, depth int) {
	if k, ok := n.Known(); ok && depth > 0 {
		fmt.Fprintf(b, "%v", value.Native(k.Value))
		return
	}
	if n.op == OpLiteral {
		fmt.Fprintf(b, "Literal(released value: %v)", n.Value())
		return
	}

	indent := strings.Repeat("  ", depth+1)
	var lines []string
	for _, name := range slices.Sorted(maps.Keys(n.args)) {
		var child strings.Builder
		n.args[name].format(&child, depth+1)
		lines = append(lines, indent+name+"="+child.String())
	}
	for _, name := range slices.Sorted(maps.Keys(n.options)) {
		lines = append(lines, indent+name+"="+string(n.options[name]))
	}

	b.WriteString(n.op.String())
	b.WriteByte('(')
	if len(lines) > 0 {
		b.WriteByte('\n')
		b.WriteString(strings.Join(lines, ",\n"))
		b.WriteByte('\n')
		b.WriteString(strings.Repeat("  ", depth))
	}
	b.WriteByte(')')
}
