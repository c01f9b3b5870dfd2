package graph

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/dpgraph/internal/privacy"
	"github.com/roach88/dpgraph/internal/testutil"
	"github.com/roach88/dpgraph/internal/value"
)

func TestNew_Defaults(t *testing.T) {
	a := New(testutil.NewClient(t, &testutil.FakeEngine{}), WithIDGenerator(NewFixedGenerator("a-1")))

	assert.Equal(t, "a-1", a.ID())
	assert.Equal(t, privacy.DefaultDefinition(), a.Definition())
	assert.Equal(t, Building, a.State())
	assert.Equal(t, uint32(0), a.Batch())
	assert.Empty(t, a.Nodes())
}

func TestNew_UUIDv7ID(t *testing.T) {
	a := New(testutil.NewClient(t, &testutil.FakeEngine{}))
	b := New(testutil.NewClient(t, &testutil.FakeEngine{}))

	assert.Len(t, a.ID(), 36)
	assert.NotEqual(t, a.ID(), b.ID())
}

func TestFixedGenerator_Exhausted(t *testing.T) {
	g := NewFixedGenerator("only")
	assert.Equal(t, "only", g.Generate())
	assert.Panics(t, func() { g.Generate() })
}

func TestIDsAssignedInCreationOrder(t *testing.T) {
	a, _ := newTestAnalysis(t, &testutil.FakeEngine{})

	for i := 0; i < 5; i++ {
		n := mustLiteral(t, a, i)
		assert.Equal(t, NodeID(i), n.ID())
	}
	nodes := a.Nodes()
	require.Len(t, nodes, 5)
	for i, n := range nodes {
		assert.Equal(t, NodeID(i), n.ID())
		got, ok := a.Node(NodeID(i))
		require.True(t, ok)
		assert.Same(t, n, got)
	}
}

func TestLiteral_IsKnownAndPublic(t *testing.T) {
	a, _ := newTestAnalysis(t, &testutil.FakeEngine{})

	n := mustLiteral(t, a, []float64{1.5, 2.5})
	assert.Equal(t, OpLiteral, n.Op())
	assert.Equal(t, []float64{1.5, 2.5}, n.Value())

	k, ok := n.Known()
	require.True(t, ok)
	assert.True(t, k.Public)
	assert.Equal(t, value.FormatArray, k.Format)
}

func TestOf_SameValueTwiceCreatesTwoNodes(t *testing.T) {
	a, _ := newTestAnalysis(t, &testutil.FakeEngine{})

	x := mustLiteral(t, a, 7)
	y := mustLiteral(t, a, 7)
	assert.NotEqual(t, x.ID(), y.ID())

	same, err := a.Of(x)
	require.NoError(t, err)
	assert.Same(t, x, same)
}

func TestOf_UnsupportedValue(t *testing.T) {
	a, _ := newTestAnalysis(t, &testutil.FakeEngine{})

	_, err := a.Of(struct{ X int }{1})
	assert.True(t, IsUsageError(err, ErrCodeUnsupportedValue))
	assert.True(t, errors.Is(err, value.ErrUnsupported))
	assert.Empty(t, a.Nodes())
}

func TestNoActiveContext(t *testing.T) {
	a := New(testutil.NewClient(t, &testutil.FakeEngine{}))

	_, err := a.Of(1)
	assert.True(t, IsUsageError(err, ErrCodeNoActiveContext))

	_, err = NewScope().Of(1)
	assert.True(t, IsUsageError(err, ErrCodeNoActiveContext))

	_, err = NewScope().Component(OpAdd, nil, nil, nil)
	assert.True(t, IsUsageError(err, ErrCodeNoActiveContext))
}

func TestScope_NestingRestoresPrevious(t *testing.T) {
	outer := New(testutil.NewClient(t, &testutil.FakeEngine{}))
	inner := New(testutil.NewClient(t, &testutil.FakeEngine{}))
	s := NewScope()

	exitOuter := s.Enter(outer)
	defer exitOuter()

	exitInner := s.Enter(inner)
	assert.Same(t, inner, s.Active())

	_, err := outer.Of(1)
	assert.True(t, IsUsageError(err, ErrCodeInactiveAnalysis))
	_, err = s.Of(1)
	require.NoError(t, err)
	assert.Len(t, inner.Nodes(), 1)

	exitInner()
	exitInner()
	assert.Same(t, outer, s.Active())

	_, err = outer.Of(1)
	assert.NoError(t, err)
}

func TestScope_WithinRestoresOnError(t *testing.T) {
	a := New(testutil.NewClient(t, &testutil.FakeEngine{}))
	s := NewScope()
	boom := errors.New("boom")

	err := s.Within(a, func() error {
		_, err := s.Of(1)
		require.NoError(t, err)
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Nil(t, s.Active())

	_, err = a.Of(2)
	assert.True(t, IsUsageError(err, ErrCodeNoActiveContext))
}

func TestScope_WithinRestoresOnPanic(t *testing.T) {
	a := New(testutil.NewClient(t, &testutil.FakeEngine{}))
	s := NewScope()

	assert.Panics(t, func() {
		_ = s.Within(a, func() error { panic("boom") })
	})
	assert.Nil(t, s.Active())
}

func TestScope_LogsThroughAnalysisLogger(t *testing.T) {
	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug}))
	a := New(testutil.NewClient(t, &testutil.FakeEngine{}),
		WithIDGenerator(testutil.NewFixedIDGenerator("a-logged")),
		WithLogger(logger),
	)

	require.NoError(t, NewScope().Within(a, func() error { return nil }))
	assert.Contains(t, logs.String(), `msg="analysis entered" analysis=a-logged`)
	assert.Contains(t, logs.String(), `msg="analysis exited" analysis=a-logged`)
}

func TestForeignComponent(t *testing.T) {
	a1, s := newTestAnalysis(t, &testutil.FakeEngine{})
	x := mustLiteral(t, a1, 1)

	a2 := New(testutil.NewClient(t, &testutil.FakeEngine{}))
	exit := s.Enter(a2)
	defer exit()

	_, err := a2.Component(OpAdd, map[string]any{"left": x, "right": 2}, nil, nil)
	assert.True(t, IsUsageError(err, ErrCodeForeignComponent))
	assert.Empty(t, a2.Nodes(), "a failed registration leaves no nodes behind")
}

func TestComponent_NilArgumentsOmitted(t *testing.T) {
	a, _ := newTestAnalysis(t, &testutil.FakeEngine{})
	x := mustLiteral(t, a, 1)

	n, err := a.Component(OpSum, map[string]any{"data": x, "weights": nil}, nil, nil)
	require.NoError(t, err)
	assert.Len(t, n.Arguments(), 1)
	assert.Nil(t, n.Argument("weights"))
}

func TestComponent_Options(t *testing.T) {
	a, _ := newTestAnalysis(t, &testutil.FakeEngine{})
	x := mustLiteral(t, a, 1)

	n, err := a.Component(OpCast, map[string]any{"data": x}, Options{
		"type":  "float",
		"bound": value.MustOf([]int64{1, 2}, value.FormatAuto),
		"skip":  nil,
	}, nil)
	require.NoError(t, err)

	raw, ok := n.Option("type")
	require.True(t, ok)
	assert.JSONEq(t, `"float"`, string(raw))

	raw, ok = n.Option("bound")
	require.True(t, ok)
	assert.JSONEq(t, `{"array":{"shape":[2],"data":{"i64":[1,2]}}}`, string(raw))

	_, ok = n.Option("skip")
	assert.False(t, ok)
}

func TestComponent_NodeAsOptionRejected(t *testing.T) {
	a, _ := newTestAnalysis(t, &testutil.FakeEngine{})
	x := mustLiteral(t, a, 1)

	_, err := a.Component(OpCast, map[string]any{"data": x}, Options{"type": x}, nil)
	assert.True(t, IsUsageError(err, ErrCodeOptionNotLiteral))
	assert.Len(t, a.Nodes(), 1)
}

func TestDataset(t *testing.T) {
	a, _ := newTestAnalysis(t, &testutil.FakeEngine{})

	d1, err := a.Dataset(DatasetSpec{Path: "data.csv", ColumnNames: []string{"age", "income"}})
	require.NoError(t, err)
	assert.Equal(t, OpMaterialize, d1.Op())
	assert.Equal(t, []string{"age", "income"}, d1.Argument("column_names").Value())

	raw, _ := d1.Option("data_source")
	assert.JSONEq(t, `{"file_path":"data.csv"}`, string(raw))
	raw, _ = d1.Option("private")
	assert.JSONEq(t, `true`, string(raw))
	raw, _ = d1.Option("skip_row")
	assert.JSONEq(t, `true`, string(raw))
	raw, _ = d1.Option("dataset_id")
	assert.JSONEq(t, `0`, string(raw))

	d2, err := a.Dataset(DatasetSpec{Value: [][]int64{{1, 2}}, NumColumns: 2, Public: true})
	require.NoError(t, err)
	raw, _ = d2.Option("dataset_id")
	assert.JSONEq(t, `1`, string(raw))
	raw, _ = d2.Option("data_source")
	assert.JSONEq(t, `{"literal":{"array":{"shape":[1,2],"data":{"i64":[1,2]}}}}`, string(raw))
	raw, _ = d2.Option("private")
	assert.JSONEq(t, `false`, string(raw))
}

func TestDataset_Invalid(t *testing.T) {
	a, _ := newTestAnalysis(t, &testutil.FakeEngine{})

	tests := []struct {
		name string
		spec DatasetSpec
	}{
		{"no source", DatasetSpec{NumColumns: 1}},
		{"both sources", DatasetSpec{Path: "x.csv", Value: []int64{1}, NumColumns: 1}},
		{"no columns", DatasetSpec{Path: "x.csv"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := a.Dataset(tt.spec)
			assert.True(t, IsUsageError(err, ErrCodeMissingArgument))
		})
	}
	assert.Empty(t, a.Nodes())
}

func TestDPBuilders(t *testing.T) {
	a, _ := newTestAnalysis(t, &testutil.FakeEngine{})
	data, err := a.Dataset(DatasetSpec{Path: "x.csv", NumColumns: 1})
	require.NoError(t, err)
	usage := []privacy.Usage{privacy.PureUsage(1)}

	builders := map[Op]func() (*Node, error){
		OpDPCount:     func() (*Node, error) { return a.DPCount(data, DPParams{Usage: usage}) },
		OpDPSum:       func() (*Node, error) { return a.DPSum(data, DPParams{Usage: usage}) },
		OpDPMean:      func() (*Node, error) { return a.DPMean(data, DPParams{Usage: usage}) },
		OpDPVariance:  func() (*Node, error) { return a.DPVariance(data, DPParams{Usage: usage}) },
		OpDPHistogram: func() (*Node, error) { return a.DPHistogram(data, DPParams{Usage: usage}) },
		OpDPMedian:    func() (*Node, error) { return a.DPMedian(data, DPParams{Usage: usage}) },
		OpDPQuantile:  func() (*Node, error) { return a.DPQuantile(data, 0.25, DPParams{Usage: usage}) },
		OpDPMinimum:   func() (*Node, error) { return a.DPMinimum(data, DPParams{Usage: usage}) },
		OpDPMaximum:   func() (*Node, error) { return a.DPMaximum(data, DPParams{Usage: usage}) },
	}
	for op, build := range builders {
		t.Run(op.String(), func(t *testing.T) {
			n, err := build()
			require.NoError(t, err)
			assert.Equal(t, op, n.Op())
			assert.Same(t, data, n.Argument("data"))

			raw, ok := n.Option("privacy_usage")
			require.True(t, ok)
			assert.JSONEq(t, `[{"pure":{"epsilon":1}}]`, string(raw))
		})
	}
}

func TestDPBuilders_Options(t *testing.T) {
	a, _ := newTestAnalysis(t, &testutil.FakeEngine{})
	data, err := a.Dataset(DatasetSpec{Path: "x.csv", NumColumns: 1})
	require.NoError(t, err)

	q, err := a.DPQuantile(data, 0.5, DPParams{
		Usage:     []privacy.Usage{privacy.ApproximateUsage(0.5, 1e-6)},
		Mechanism: "gaussian",
	})
	require.NoError(t, err)

	raw, _ := q.Option("alpha")
	assert.JSONEq(t, `0.5`, string(raw))
	raw, _ = q.Option("mechanism")
	assert.JSONEq(t, `"gaussian"`, string(raw))

	var usages []privacy.Usage
	raw, _ = q.Option("privacy_usage")
	require.NoError(t, json.Unmarshal(raw, &usages))
	assert.Equal(t, []privacy.Usage{privacy.ApproximateUsage(0.5, 1e-6)}, usages)
}

func TestDPBuilders_Invalid(t *testing.T) {
	a, _ := newTestAnalysis(t, &testutil.FakeEngine{})
	data, err := a.Dataset(DatasetSpec{Path: "x.csv", NumColumns: 1})
	require.NoError(t, err)

	_, err = a.DPMean(data, DPParams{})
	assert.True(t, IsUsageError(err, ErrCodeMissingArgument))

	_, err = a.DPMean(data, DPParams{Usage: []privacy.Usage{privacy.PureUsage(-1)}})
	assert.True(t, IsUsageError(err, ErrCodeUnsupportedValue))

	_, err = a.DPQuantile(data, 1.5, DPParams{Usage: []privacy.Usage{privacy.PureUsage(1)}})
	assert.True(t, IsUsageError(err, ErrCodeUnsupportedValue))
}

func TestInsert(t *testing.T) {
	e := &testutil.FakeEngine{}
	a, _ := newTestAnalysis(t, e, WithDynamic())
	data, err := a.Dataset(DatasetSpec{Path: "x.csv", NumColumns: 1})
	require.NoError(t, err)
	mean, err := a.DPMean(data, DPParams{Usage: []privacy.Usage{privacy.PureUsage(1)}})
	require.NoError(t, err)

	require.NoError(t, a.Insert(mean, 4.5, value.FormatAuto, privacy.PureUsage(1)))
	assert.Equal(t, 4.5, mean.Value())
	assert.Equal(t, []privacy.Usage{privacy.PureUsage(1)}, mean.ActualPrivacyUsage())

	require.NoError(t, a.Release(t.Context()))
	req, ok := e.LastRelease()
	require.True(t, ok)
	assert.Contains(t, req.Release, mean.ID(), "inserted values are sent with the release")
	assert.Equal(t, 4.5, mean.Value())
}

func TestInsert_Foreign(t *testing.T) {
	a1, s := newTestAnalysis(t, &testutil.FakeEngine{})
	x := mustLiteral(t, a1, 1)

	a2 := New(testutil.NewClient(t, &testutil.FakeEngine{}))
	exit := s.Enter(a2)
	defer exit()

	err := a2.Insert(x, 2, value.FormatAuto)
	assert.True(t, IsUsageError(err, ErrCodeForeignComponent))
}

func TestDependents(t *testing.T) {
	a, _ := newTestAnalysis(t, &testutil.FakeEngine{})
	x := mustLiteral(t, a, 1)

	sum, err := x.Add(x)
	require.NoError(t, err)
	neg, err := x.Neg()
	require.NoError(t, err)

	assert.Equal(t, []Dependent{
		{Node: sum, Argument: "left"},
		{Node: sum, Argument: "right"},
		{Node: neg, Argument: "data"},
	}, x.Dependents())
	assert.Empty(t, neg.Dependents())
}

func TestNodeString(t *testing.T) {
	a, _ := newTestAnalysis(t, &testutil.FakeEngine{})
	two := mustLiteral(t, a, 2)

	sum, err := two.Add(3)
	require.NoError(t, err)
	assert.Equal(t, "Add(\n  left=2,\n  right=3\n)", sum.String())
	assert.Equal(t, "Literal(released value: 2)", two.String())

	cast, err := sum.Cast("float")
	require.NoError(t, err)
	assert.Equal(t, "Cast(\n  data=Add(\n    left=2,\n    right=3\n  ),\n  type=\"float\"\n)", cast.String())
}
