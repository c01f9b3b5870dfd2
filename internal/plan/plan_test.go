package plan

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/dpgraph/internal/graph"
	"github.com/roach88/dpgraph/internal/privacy"
	"github.com/roach88/dpgraph/internal/testutil"
	"github.com/roach88/dpgraph/internal/value"
)

func readFile(t *testing.T, name string) []byte {
	t.Helper()
	data, err := os.ReadFile(filepath.Join("testdata", name))
	require.NoError(t, err)
	return data
}

// newAnalysis returns an analysis configured for p and active in a fresh
// scope.
func newAnalysis(t *testing.T, e *testutil.FakeEngine, p *Plan) *graph.Analysis {
	t.Helper()
	opts, err := AnalysisOptions(p)
	require.NoError(t, err)
	opts = append(opts, graph.WithIDGenerator(testutil.NewFixedIDGenerator("plan-test")))
	a := graph.New(testutil.NewClient(t, e), opts...)
	t.Cleanup(graph.NewScope().Enter(a))
	return a
}

func TestParse_YAML(t *testing.T) {
	p, err := Parse(readFile(t, "mean.yaml"), FormatYAML)
	require.NoError(t, err)

	assert.Equal(t, "mean-age", p.Name)
	assert.Equal(t, "public_and_prior", p.FilterLevel)
	require.Len(t, p.Datasets, 1)
	assert.Equal(t, []string{"age", "income"}, p.Datasets[0].ColumnNames)
	require.Len(t, p.Nodes, 3)
	assert.Equal(t, map[string]string{"data": "age"}, p.Nodes[1].Refs)
	assert.Equal(t, []Usage{{Epsilon: 0.65, Delta: 1e-6}}, p.Nodes[1].PrivacyUsage)
	assert.Equal(t, 1000, p.Nodes[1].Constraints["data_n"])
}

func TestParse_CUEMatchesYAML(t *testing.T) {
	fromYAML, err := Parse(readFile(t, "mean.yaml"), FormatYAML)
	require.NoError(t, err)
	fromCUE, err := Parse(readFile(t, "mean.cue"), FormatCUE)
	require.NoError(t, err)

	assert.Equal(t, fromYAML.Name, fromCUE.Name)
	assert.Equal(t, fromYAML.Privacy, fromCUE.Privacy)
	assert.Equal(t, fromYAML.Datasets, fromCUE.Datasets)
	require.Len(t, fromCUE.Nodes, len(fromYAML.Nodes))
	for i := range fromYAML.Nodes {
		assert.Equal(t, fromYAML.Nodes[i].Name, fromCUE.Nodes[i].Name)
		assert.Equal(t, fromYAML.Nodes[i].Refs, fromCUE.Nodes[i].Refs)
		assert.Equal(t, fromYAML.Nodes[i].PrivacyUsage, fromCUE.Nodes[i].PrivacyUsage)
	}
	assert.Equal(t, 100, fromCUE.Nodes[1].Constraints["data_upper"])
}

func TestParse_JSON(t *testing.T) {
	p, err := Parse(readFile(t, "literal.json"), FormatYAML)
	require.NoError(t, err)
	assert.True(t, p.Dynamic)
	assert.Equal(t, "array", p.Datasets[0].Format)
	assert.Equal(t, []Usage{{Epsilon: 1}}, p.Nodes[0].PrivacyUsage)
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name   string
		format Format
		src    string
		code   string
		field  string
	}{
		{
			name: "empty",
			src:  "",
			code: ErrCodeParse,
		},
		{
			name: "unknown field",
			src:  "name: x\nnodez: []\n",
			code: ErrCodeParse,
		},
		{
			name:  "missing nodes",
			src:   "name: x\n",
			code:  ErrCodeInvalid,
			field: "nodes",
		},
		{
			name:  "bad identifier",
			src:   "name: x\nnodes:\n  - {name: 1st, op: Abs, args: {data: 1}}\n",
			code:  ErrCodeInvalid,
			field: "nodes[0].name",
		},
		{
			name:  "unknown op",
			src:   "name: x\nnodes:\n  - {name: n, op: Teleport}\n",
			code:  ErrCodeInvalid,
			field: "nodes[0].op",
		},
		{
			name:  "literal op",
			src:   "name: x\nnodes:\n  - {name: n, op: Literal}\n",
			code:  ErrCodeInvalid,
			field: "nodes[0].op",
		},
		{
			name:  "bad distance",
			src:   "name: x\nprivacy: {distance: fuzzy}\nnodes:\n  - {name: n, op: Abs, args: {data: 1}}\n",
			code:  ErrCodeInvalid,
			field: "privacy.distance",
		},
		{
			name:  "non-positive epsilon",
			src:   "name: x\nnodes:\n  - {name: n, op: DPCount, args: {data: 1}, privacy_usage: [{epsilon: 0}]}\n",
			code:  ErrCodeInvalid,
			field: "nodes[0].privacy_usage[0].epsilon",
		},
		{
			name:   "cue syntax",
			format: FormatCUE,
			src:    "name: \"x\"\nnodes: [{\n",
			code:   ErrCodeParse,
		},
		{
			name:   "cue missing name",
			format: FormatCUE,
			src:    "nodes: [{name: \"n\", op: \"Abs\"}]\n",
			code:   ErrCodeSchema,
		},
		{
			name:   "cue wrong type",
			format: FormatCUE,
			src:    "name: \"x\"\nnodes: [{name: \"n\", op: \"DPCount\", privacy_usage: [{epsilon: -1}]}]\n",
			code:   ErrCodeSchema,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.src), tt.format)
			require.Error(t, err)
			assert.True(t, IsError(err, tt.code), "got %v", err)
			if tt.field != "" {
				var pe *Error
				require.ErrorAs(t, err, &pe)
				assert.Equal(t, tt.field, pe.Field)
			}
		})
	}
}

func TestParse_CUEUnknownFieldHasPosition(t *testing.T) {
	_, err := Parse(readFile(t, "unknown_field.cue"), FormatCUE)
	require.Error(t, err)
	assert.True(t, IsError(err, ErrCodeSchema), "got %v", err)

	var pe *Error
	require.ErrorAs(t, err, &pe)
	assert.True(t, pe.Pos.IsValid())
}

func TestValidate_References(t *testing.T) {
	base := func() *Plan {
		return &Plan{
			Name:     "refs",
			Datasets: []Dataset{{Name: "d", Path: "d.csv", NumColumns: 1}},
			Nodes: []Node{
				{Name: "a", Op: "Abs", Refs: map[string]string{"data": "d"}},
				{Name: "b", Op: "Negative", Refs: map[string]string{"data": "a"}},
			},
		}
	}
	require.NoError(t, Validate(base()))

	tests := []struct {
		name   string
		mutate func(p *Plan)
		code   string
	}{
		{"forward ref", func(p *Plan) { p.Nodes[0].Refs["data"] = "b" }, ErrCodeReference},
		{"unknown ref", func(p *Plan) { p.Nodes[1].Refs["data"] = "nope" }, ErrCodeReference},
		{"self ref", func(p *Plan) { p.Nodes[0].Refs["data"] = "a" }, ErrCodeReference},
		{"duplicate node", func(p *Plan) { p.Nodes[1].Name = "a" }, ErrCodeReference},
		{"node shadows dataset", func(p *Plan) { p.Nodes[0].Name = "d" }, ErrCodeReference},
		{"ref and literal", func(p *Plan) { p.Nodes[0].Args = map[string]any{"data": 1} }, ErrCodeInvalid},
		{"dataset path and value", func(p *Plan) { p.Datasets[0].Value = []int{1} }, ErrCodeInvalid},
		{"dataset no source", func(p *Plan) { p.Datasets[0].Path = "" }, ErrCodeInvalid},
		{"dataset no columns", func(p *Plan) { p.Datasets[0].NumColumns = 0 }, ErrCodeInvalid},
		{"format without value", func(p *Plan) { p.Datasets[0].Format = "array" }, ErrCodeInvalid},
		{"private op without usage", func(p *Plan) { p.Nodes[1].Op = "DPSum" }, ErrCodeInvalid},
		{"usage on public op", func(p *Plan) { p.Nodes[1].PrivacyUsage = []Usage{{Epsilon: 1}} }, ErrCodeInvalid},
		{"delta under pure", func(p *Plan) {
			p.Privacy.Distance = "pure"
			p.Nodes[1].Op = "DPSum"
			p.Nodes[1].PrivacyUsage = []Usage{{Epsilon: 1, Delta: 1e-6}}
		}, ErrCodeInvalid},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := base()
			tt.mutate(p)
			err := Validate(p)
			assert.True(t, IsError(err, tt.code), "got %v", err)
		})
	}
}

func TestFormatFor(t *testing.T) {
	for loc, want := range map[string]Format{
		"plan.yaml":                FormatYAML,
		"plan.YML":                 FormatYAML,
		"/tmp/plan.json":           FormatYAML,
		"s3://bucket/plans/x.cue":  FormatCUE,
		"file:///tmp/x/plan.cue":   FormatCUE,
		"mem://localhost/p/a.yaml": FormatYAML,
	} {
		got, err := FormatFor(loc)
		require.NoError(t, err, loc)
		assert.Equal(t, want, got, loc)
	}

	_, err := FormatFor("plan.toml")
	assert.True(t, IsError(err, ErrCodeFormat))
}

func TestLoad(t *testing.T) {
	ctx := context.Background()
	for _, name := range []string{"mean.yaml", "mean.cue", "literal.json"} {
		t.Run(name, func(t *testing.T) {
			loc, err := filepath.Abs(filepath.Join("testdata", name))
			require.NoError(t, err)
			p, err := Load(ctx, loc)
			require.NoError(t, err)
			assert.NotEmpty(t, p.Nodes)
		})
	}
}

func TestLoad_Missing(t *testing.T) {
	_, err := Load(context.Background(), filepath.Join(t.TempDir(), "missing.yaml"))
	assert.True(t, IsError(err, ErrCodeLoad), "got %v", err)
}

func TestAnalysisOptions(t *testing.T) {
	p, err := Parse(readFile(t, "literal.json"), FormatYAML)
	require.NoError(t, err)

	a := newAnalysis(t, &testutil.FakeEngine{}, p)
	assert.Equal(t, privacy.Definition{Distance: privacy.Pure, Neighboring: privacy.AddRemove}, a.Definition())

	p.FilterLevel = "everything"
	_, err = AnalysisOptions(p)
	assert.True(t, IsError(err, ErrCodeInvalid))
}

func TestBuild(t *testing.T) {
	p, err := Parse(readFile(t, "mean.yaml"), FormatYAML)
	require.NoError(t, err)
	a := newAnalysis(t, &testutil.FakeEngine{}, p)

	nodes, err := Build(a, p)
	require.NoError(t, err)
	require.Len(t, nodes, 4)

	census := nodes["census"]
	assert.Equal(t, graph.OpMaterialize, census.Op())

	age := nodes["age"]
	assert.Equal(t, graph.OpIndex, age.Op())
	assert.Same(t, census, age.Argument("data"))
	assert.Equal(t, "age", age.Argument("columns").Value())

	mean := nodes["mean"]
	var chain []graph.Op
	for n := mean; n != nil; n = n.Argument("data") {
		chain = append(chain, n.Op())
	}
	assert.Equal(t, []graph.Op{
		graph.OpDPMean, graph.OpResize, graph.OpImpute, graph.OpClamp, graph.OpIndex, graph.OpMaterialize,
	}, chain)

	raw, ok := mean.Option("privacy_usage")
	require.True(t, ok)
	assert.JSONEq(t, `[{"approximate":{"epsilon":0.65,"delta":1e-6}}]`, string(raw))
	raw, ok = mean.Option("mechanism")
	require.True(t, ok)
	assert.JSONEq(t, `"laplace"`, string(raw))

	shifted := nodes["shifted"]
	assert.Equal(t, graph.OpAdd, shifted.Op())
	assert.Same(t, mean, shifted.Argument("left"))
	assert.Equal(t, int64(10), shifted.Argument("right").Value())
}

func TestBuild_DefinitionMismatch(t *testing.T) {
	p, err := Parse(readFile(t, "literal.json"), FormatYAML)
	require.NoError(t, err)

	a := graph.New(testutil.NewClient(t, &testutil.FakeEngine{}))
	t.Cleanup(graph.NewScope().Enter(a))
	_, err = Build(a, p)
	assert.True(t, IsError(err, ErrCodeBuild))
	assert.Empty(t, a.Nodes())
}

func TestBuild_Release(t *testing.T) {
	p, err := Parse(readFile(t, "literal.json"), FormatYAML)
	require.NoError(t, err)
	e := &testutil.FakeEngine{}
	a := newAnalysis(t, e, p)

	nodes, err := Build(a, p)
	require.NoError(t, err)
	count := nodes["count"]
	raw, _ := count.Option("privacy_usage")
	assert.JSONEq(t, `[{"pure":{"epsilon":1}}]`, string(raw))

	e.Values = map[graph.NodeID]value.Value{count.ID(): value.MustOf(4, value.FormatAuto)}
	require.NoError(t, a.Release(context.Background()))
	assert.Equal(t, int64(4), count.Value())
}

func TestBuild_ComponentErrorIsWrapped(t *testing.T) {
	p := &Plan{
		Name: "bad",
		Nodes: []Node{{
			Name:        "n",
			Op:          "Abs",
			Args:        map[string]any{"data": 1},
			Constraints: map[string]any{"data_lower": 0},
		}},
	}
	a := newAnalysis(t, &testutil.FakeEngine{}, p)

	_, err := Build(a, p)
	assert.True(t, IsError(err, ErrCodeBuild))
	assert.True(t, graph.IsUsageError(err, graph.ErrCodeMalformedConstraint))
}
