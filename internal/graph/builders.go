package graph

import (
	"fmt"

	"github.com/roach88/dpgraph/internal/privacy"
	"github.com/roach88/dpgraph/internal/value"
)

// DatasetSpec describes a data source for Analysis.Dataset. Exactly one of
// Path and Value is set, and at least one of ColumnNames and NumColumns.
type DatasetSpec struct {
	// Path is a file the engine reads. The builder never opens it.
	Path string
	// Value is in-memory data, lifted with Format.
	Value  any
	Format value.Format

	ColumnNames []string
	NumColumns  int64

	// Public marks the data as not needing privacy protection.
	Public bool
	// NoHeader means the first row of Path is data, not column names.
	NoHeader bool
}

type dataSource struct {
	FilePath string      `json:"file_path,omitempty"`
	Literal  *value.Wire `json:"literal,omitempty"`
}

// Dataset registers a Materialize node for spec. Each dataset in an
// analysis gets the next dataset id.
func (a *Analysis) Dataset(spec DatasetSpec) (*Node, error) {
	if err := a.checkActive(); err != nil {
		return nil, err
	}
	var src dataSource
	switch {
	case spec.Path != "" && spec.Value != nil:
		return nil, usageErrorf(ErrCodeMissingArgument, "dataset takes a path or a value, not both")
	case spec.Path != "":
		src.FilePath = spec.Path
	case spec.Value != nil:
		val, err := value.Of(spec.Value, spec.Format)
		if err != nil {
			return nil, &UsageError{Code: ErrCodeUnsupportedValue, Message: "dataset value", Err: err}
		}
		src.Literal = &value.Wire{Value: val}
	default:
		return nil, usageErrorf(ErrCodeMissingArgument, "dataset needs a path or a value")
	}
	if len(spec.ColumnNames) == 0 && spec.NumColumns <= 0 {
		return nil, usageErrorf(ErrCodeMissingArgument, "dataset needs column names or a column count")
	}

	args := map[string]any{}
	if len(spec.ColumnNames) > 0 {
		args["column_names"] = spec.ColumnNames
	}
	if spec.NumColumns > 0 {
		args["num_columns"] = spec.NumColumns
	}
	opts := Options{
		"data_source": src,
		"private":     !spec.Public,
		"dataset_id":  a.datasets,
		"skip_row":    !spec.NoHeader,
	}
	n, err := a.Component(OpMaterialize, args, opts, nil)
	// A registered node holds its id even when the eager release fails.
	if n != nil {
		a.datasets++
	}
	return n, err
}

// DPParams configures a differentially private aggregate.
type DPParams struct {
	// Usage is the budget to spend; one entry per output dimension, or one
	// entry broadcast across all of them.
	Usage []privacy.Usage
	// Mechanism names the noise mechanism, e.g. "laplace". Empty lets the
	// engine choose.
	Mechanism string
	// Options are passed through with the builder's own options.
	Options Options
	// Constraints are expanded around the arguments they name.
	Constraints Constraints
}

func (a *Analysis) dp(op Op, args map[string]any, p DPParams) (*Node, error) {
	if len(p.Usage) == 0 {
		return nil, usageErrorf(ErrCodeMissingArgument, "%s needs a privacy usage", op)
	}
	for i, u := range p.Usage {
		if err := u.Validate(); err != nil {
			return nil, &UsageError{Code: ErrCodeUnsupportedValue, Message: fmt.Sprintf("%s privacy usage %d", op, i), Err: err}
		}
	}
	opts := Options{}
	for k, v := range p.Options {
		opts[k] = v
	}
	opts["privacy_usage"] = p.Usage
	if p.Mechanism != "" {
		opts["mechanism"] = p.Mechanism
	}
	return a.Component(op, args, opts, p.Constraints)
}

// DPCount releases a noisy record count of data.
func (a *Analysis) DPCount(data any, p DPParams) (*Node, error) {
	return a.dp(OpDPCount, map[string]any{"data": data}, p)
}

// DPSum releases a noisy sum of data. data must be bounded, usually via
// data_lower and data_upper constraints.
func (a *Analysis) DPSum(data any, p DPParams) (*Node, error) {
	return a.dp(OpDPSum, map[string]any{"data": data}, p)
}

// DPMean releases a noisy mean of data.
func (a *Analysis) DPMean(data any, p DPParams) (*Node, error) {
	return a.dp(OpDPMean, map[string]any{"data": data}, p)
}

// DPVariance releases a noisy variance of data.
func (a *Analysis) DPVariance(data any, p DPParams) (*Node, error) {
	return a.dp(OpDPVariance, map[string]any{"data": data}, p)
}

// DPHistogram releases noisy category counts of data. Pass the domain with
// a data_categories constraint or edges via Options.
func (a *Analysis) DPHistogram(data any, p DPParams) (*Node, error) {
	return a.dp(OpDPHistogram, map[string]any{"data": data}, p)
}

// DPMedian releases a noisy median of data.
func (a *Analysis) DPMedian(data any, p DPParams) (*Node, error) {
	return a.dp(OpDPMedian, map[string]any{"data": data}, p)
}

// DPQuantile releases a noisy alpha-quantile of data.
func (a *Analysis) DPQuantile(data any, alpha float64, p DPParams) (*Node, error) {
	if alpha < 0 || alpha > 1 {
		return nil, usageErrorf(ErrCodeUnsupportedValue, "quantile alpha %v outside [0, 1]", alpha)
	}
	opts := Options{"alpha": alpha}
	for k, v := range p.Options {
		opts[k] = v
	}
	p.Options = opts
	return a.dp(OpDPQuantile, map[string]any{"data": data}, p)
}

// DPMinimum releases a noisy minimum of data.
func (a *Analysis) DPMinimum(data any, p DPParams) (*Node, error) {
	return a.dp(OpDPMinimum, map[string]any{"data": data}, p)
}

// DPMaximum releases a noisy maximum of data.
func (a *Analysis) DPMaximum(data any, p DPParams) (*Node, error) {
	return a.dp(OpDPMaximum, map[string]any{"data": data}, p)
}
