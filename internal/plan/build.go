package plan

import (
	"fmt"

	"github.com/roach88/dpgraph/internal/graph"
	"github.com/roach88/dpgraph/internal/privacy"
	"github.com/roach88/dpgraph/internal/value"
)

// AnalysisOptions maps the plan's analysis settings to graph options.
func AnalysisOptions(p *Plan) ([]graph.Option, error) {
	def, err := p.Definition()
	if err != nil {
		return nil, &Error{Code: ErrCodeInvalid, Field: "privacy", Message: "invalid privacy definition", Err: err}
	}
	opts := []graph.Option{graph.WithPrivacyDefinition(def)}
	if p.Dynamic {
		opts = append(opts, graph.WithDynamic())
	}
	if p.Eager {
		opts = append(opts, graph.WithEager())
	}
	if p.FilterLevel != "" {
		level, err := privacy.ParseFilterLevel(p.FilterLevel)
		if err != nil {
			return nil, &Error{Code: ErrCodeInvalid, Field: "filter_level", Message: "invalid filter level", Err: err}
		}
		opts = append(opts, graph.WithFilterLevel(level))
	}
	return opts, nil
}

// Build registers the plan's datasets and nodes in a, which must be the
// active analysis of its scope, and returns them by name. On error, the
// nodes built so far stay in a.
func Build(a *graph.Analysis, p *Plan) (map[string]*graph.Node, error) {
	if err := Validate(p); err != nil {
		return nil, err
	}
	def, _ := p.Definition()
	if a.Definition() != def {
		return nil, &Error{Code: ErrCodeBuild, Field: "privacy", Message: fmt.Sprintf("analysis uses %s but the plan declares %s", a.Definition(), def)}
	}

	out := make(map[string]*graph.Node, len(p.Datasets)+len(p.Nodes))
	for i, d := range p.Datasets {
		format, err := value.ParseFormat(d.Format)
		if err != nil {
			return nil, &Error{Code: ErrCodeInvalid, Field: fmt.Sprintf("datasets[%d].format", i), Message: "invalid format", Err: err}
		}
		n, err := a.Dataset(graph.DatasetSpec{
			Path:        d.Path,
			Value:       d.Value,
			Format:      format,
			ColumnNames: d.ColumnNames,
			NumColumns:  d.NumColumns,
			Public:      d.Public,
			NoHeader:    d.NoHeader,
		})
		if err != nil {
			return nil, &Error{Code: ErrCodeBuild, Field: fmt.Sprintf("datasets[%d]", i), Message: fmt.Sprintf("failed to build dataset %q", d.Name), Err: err}
		}
		out[d.Name] = n
	}

	for i := range p.Nodes {
		nd := &p.Nodes[i]
		n, err := buildNode(a, nd, def, out)
		if err != nil {
			return nil, &Error{Code: ErrCodeBuild, Field: fmt.Sprintf("nodes[%d]", i), Message: fmt.Sprintf("failed to build %q", nd.Name), Err: err}
		}
		out[nd.Name] = n
	}
	return out, nil
}

func buildNode(a *graph.Analysis, nd *Node, def privacy.Definition, built map[string]*graph.Node) (*graph.Node, error) {
	op, err := graph.ParseOp(nd.Op)
	if err != nil {
		return nil, err
	}

	args := make(map[string]any, len(nd.Args)+len(nd.Refs))
	for name, v := range nd.Args {
		args[name] = v
	}
	for name, ref := range nd.Refs {
		args[name] = built[ref]
	}

	opts := make(graph.Options, len(nd.Options)+2)
	for k, v := range nd.Options {
		opts[k] = v
	}
	if len(nd.PrivacyUsage) > 0 {
		usages, err := nd.usages(def.Distance)
		if err != nil {
			return nil, err
		}
		opts["privacy_usage"] = usages
	}
	if nd.Mechanism != "" {
		opts["mechanism"] = nd.Mechanism
	}
	return a.Component(op, args, opts, graph.Constraints(nd.Constraints))
}
