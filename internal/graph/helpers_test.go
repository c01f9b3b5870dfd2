package graph

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/dpgraph/internal/testutil"
)

// newTestAnalysis returns an analysis served by e through the real client
// and loopback transport, already entered in a fresh scope.
func newTestAnalysis(t *testing.T, e *testutil.FakeEngine, opts ...Option) (*Analysis, *Scope) {
	t.Helper()
	c := testutil.NewClient(t, e)
	opts = append([]Option{WithIDGenerator(testutil.NewFixedIDGenerator("a-test"))}, opts...)
	a := New(c, opts...)
	s := NewScope()
	t.Cleanup(s.Enter(a))
	return a, s
}

func mustLiteral(t *testing.T, a *Analysis, v any) *Node {
	t.Helper()
	n, err := a.Of(v)
	require.NoError(t, err)
	return n
}

// ops returns the op sequence from n down its "data" argument chain.
func ops(n *Node) []Op {
	var out []Op
	for n != nil {
		out = append(out, n.Op())
		n = n.Argument("data")
	}
	return out
}
