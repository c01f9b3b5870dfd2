package graph

// Combinators build a new node in n's analysis wired to n and the operand.
// Non-node operands are lifted into literals with Analysis.Of. The analysis
// must be active.

func (n *Node) binary(op Op, other any) (*Node, error) {
	return n.analysis.Component(op, map[string]any{"left": n, "right": other}, nil, nil)
}

func (n *Node) unary(op Op) (*Node, error) {
	return n.analysis.Component(op, map[string]any{"data": n}, nil, nil)
}

// lift converts the operand once so derived expressions share a single node.
func (n *Node) lift(other any) (*Node, error) {
	if err := n.analysis.checkActive(); err != nil {
		return nil, err
	}
	return n.analysis.Of(other)
}

// Add returns n + other.
func (n *Node) Add(other any) (*Node, error) { return n.binary(OpAdd, other) }

// Sub returns n - other.
func (n *Node) Sub(other any) (*Node, error) { return n.binary(OpSubtract, other) }

// Mul returns n * other.
func (n *Node) Mul(other any) (*Node, error) { return n.binary(OpMultiply, other) }

// Mod returns n % other.
func (n *Node) Mod(other any) (*Node, error) { return n.binary(OpModulo, other) }

// Div returns the true quotient n / other. Both operands are cast to float
// first.
func (n *Node) Div(other any) (*Node, error) {
	return n.castDivide("float", other)
}

// FloorDiv returns the floor quotient of n and other. Both operands are cast
// to int first.
func (n *Node) FloorDiv(other any) (*Node, error) {
	return n.castDivide("int", other)
}

func (n *Node) castDivide(typ string, other any) (*Node, error) {
	rhs, err := n.lift(other)
	if err != nil {
		return nil, err
	}
	left, err := n.Cast(typ)
	if err != nil {
		return nil, err
	}
	right, err := rhs.Cast(typ)
	if err != nil {
		return nil, err
	}
	return left.binary(OpDivide, right)
}

// Pow returns n raised to other.
func (n *Node) Pow(other any) (*Node, error) {
	return n.analysis.Component(OpPower, map[string]any{"data": n, "radical": other}, nil, nil)
}

// Neg returns -n.
func (n *Node) Neg() (*Node, error) { return n.unary(OpNegative) }

// Abs returns |n|.
func (n *Node) Abs() (*Node, error) { return n.unary(OpAbs) }

// Not returns the logical negation of n.
func (n *Node) Not() (*Node, error) { return n.unary(OpNegate) }

// And returns n AND other.
func (n *Node) And(other any) (*Node, error) { return n.binary(OpAnd, other) }

// Or returns n OR other.
func (n *Node) Or(other any) (*Node, error) { return n.binary(OpOr, other) }

// Xor returns (n OR other) AND NOT (n AND other).
func (n *Node) Xor(other any) (*Node, error) {
	rhs, err := n.lift(other)
	if err != nil {
		return nil, err
	}
	either, err := n.Or(rhs)
	if err != nil {
		return nil, err
	}
	both, err := n.And(rhs)
	if err != nil {
		return nil, err
	}
	notBoth, err := both.Not()
	if err != nil {
		return nil, err
	}
	return either.And(notBoth)
}

// Eq returns n == other.
func (n *Node) Eq(other any) (*Node, error) { return n.binary(OpEqual, other) }

// Lt returns n < other.
func (n *Node) Lt(other any) (*Node, error) { return n.binary(OpLessThan, other) }

// Gt returns n > other.
func (n *Node) Gt(other any) (*Node, error) { return n.binary(OpGreaterThan, other) }

// Ne returns NOT (n == other).
func (n *Node) Ne(other any) (*Node, error) {
	eq, err := n.Eq(other)
	if err != nil {
		return nil, err
	}
	return eq.Not()
}

// Le returns (n < other) OR (n == other).
func (n *Node) Le(other any) (*Node, error) {
	return n.orEqual(OpLessThan, other)
}

// Ge returns (n > other) OR (n == other).
func (n *Node) Ge(other any) (*Node, error) {
	return n.orEqual(OpGreaterThan, other)
}

func (n *Node) orEqual(op Op, other any) (*Node, error) {
	rhs, err := n.lift(other)
	if err != nil {
		return nil, err
	}
	strict, err := n.binary(op, rhs)
	if err != nil {
		return nil, err
	}
	eq, err := n.Eq(rhs)
	if err != nil {
		return nil, err
	}
	return strict.Or(eq)
}

// Index selects columns of n by name or position. col may be a single
// string or integer, a slice of them, or a node.
func (n *Node) Index(col any) (*Node, error) {
	return n.analysis.Component(OpIndex, map[string]any{"data": n, "columns": col}, nil, nil)
}

// Cast converts n to the named atomic type ("float", "int", "bool", "str").
func (n *Node) Cast(typ string) (*Node, error) {
	return n.analysis.Component(OpCast, map[string]any{"data": n}, Options{"type": typ}, nil)
}
