package graph

import "fmt"

// Op is the closed set of component operations.
type Op uint8

const (
	OpLiteral Op = iota
	OpMaterialize
	OpIndex
	OpCast
	OpClamp
	OpImpute
	OpResize
	OpColumnBind

	OpAdd
	OpSubtract
	OpMultiply
	OpDivide
	OpModulo
	OpPower
	OpNegative
	OpAbs
	OpRowMin
	OpRowMax

	OpAnd
	OpOr
	OpNegate
	OpEqual
	OpLessThan
	OpGreaterThan

	OpCount
	OpSum
	OpMean
	OpVariance
	OpMedian
	OpQuantile
	OpMinimum
	OpMaximum
	OpHistogram

	OpDPCount
	OpDPSum
	OpDPMean
	OpDPVariance
	OpDPHistogram
	OpDPMedian
	OpDPQuantile
	OpDPMinimum
	OpDPMaximum

	OpLaplaceMechanism
	OpGaussianMechanism
	OpSimpleGeometricMechanism
	OpSnappingMechanism

	numOps
)

type opInfo struct {
	// name is the display name used in logs and String output.
	name string
	// variant is the wire name sent to the engine.
	variant string
	// private marks operations that spend privacy budget.
	private bool
}

// opTable is indexed by Op. Its length is fixed by numOps, so an Op added
// without an entry fails TestOpTableComplete.
var opTable = [numOps]opInfo{
	OpLiteral:     {name: "Literal", variant: "literal"},
	OpMaterialize: {name: "Materialize", variant: "materialize"},
	OpIndex:       {name: "Index", variant: "index"},
	OpCast:        {name: "Cast", variant: "cast"},
	OpClamp:       {name: "Clamp", variant: "clamp"},
	OpImpute:      {name: "Impute", variant: "impute"},
	OpResize:      {name: "Resize", variant: "resize"},
	OpColumnBind:  {name: "ColumnBind", variant: "column_bind"},

	OpAdd:      {name: "Add", variant: "add"},
	OpSubtract: {name: "Subtract", variant: "subtract"},
	OpMultiply: {name: "Multiply", variant: "multiply"},
	OpDivide:   {name: "Divide", variant: "divide"},
	OpModulo:   {name: "Modulo", variant: "modulo"},
	OpPower:    {name: "Power", variant: "power"},
	OpNegative: {name: "Negative", variant: "negative"},
	OpAbs:      {name: "Abs", variant: "abs"},
	OpRowMin:   {name: "RowMin", variant: "row_min"},
	OpRowMax:   {name: "RowMax", variant: "row_max"},

	OpAnd:         {name: "And", variant: "and"},
	OpOr:          {name: "Or", variant: "or"},
	OpNegate:      {name: "Negate", variant: "negate"},
	OpEqual:       {name: "Equal", variant: "equal"},
	OpLessThan:    {name: "LessThan", variant: "less_than"},
	OpGreaterThan: {name: "GreaterThan", variant: "greater_than"},

	OpCount:     {name: "Count", variant: "count"},
	OpSum:       {name: "Sum", variant: "sum"},
	OpMean:      {name: "Mean", variant: "mean"},
	OpVariance:  {name: "Variance", variant: "variance"},
	OpMedian:    {name: "Median", variant: "median"},
	OpQuantile:  {name: "Quantile", variant: "quantile"},
	OpMinimum:   {name: "Minimum", variant: "minimum"},
	OpMaximum:   {name: "Maximum", variant: "maximum"},
	OpHistogram: {name: "Histogram", variant: "histogram"},

	OpDPCount:     {name: "DPCount", variant: "dp_count", private: true},
	OpDPSum:       {name: "DPSum", variant: "dp_sum", private: true},
	OpDPMean:      {name: "DPMean", variant: "dp_mean", private: true},
	OpDPVariance:  {name: "DPVariance", variant: "dp_variance", private: true},
	OpDPHistogram: {name: "DPHistogram", variant: "dp_histogram", private: true},
	OpDPMedian:    {name: "DPMedian", variant: "dp_median", private: true},
	OpDPQuantile:  {name: "DPQuantile", variant: "dp_quantile", private: true},
	OpDPMinimum:   {name: "DPMinimum", variant: "dp_minimum", private: true},
	OpDPMaximum:   {name: "DPMaximum", variant: "dp_maximum", private: true},

	OpLaplaceMechanism:         {name: "LaplaceMechanism", variant: "laplace_mechanism", private: true},
	OpGaussianMechanism:        {name: "GaussianMechanism", variant: "gaussian_mechanism", private: true},
	OpSimpleGeometricMechanism: {name: "SimpleGeometricMechanism", variant: "simple_geometric_mechanism", private: true},
	OpSnappingMechanism:        {name: "SnappingMechanism", variant: "snapping_mechanism", private: true},
}

func (o Op) String() string {
	if o >= numOps {
		return fmt.Sprintf("Op(%d)", uint8(o))
	}
	return opTable[o].name
}

// Variant returns the wire name of the operation.
func (o Op) Variant() string {
	if o >= numOps {
		return ""
	}
	return opTable[o].variant
}

// Private reports whether the operation spends privacy budget.
func (o Op) Private() bool {
	return o < numOps && opTable[o].private
}

// ParseOp accepts either the display name ("DPMean") or the wire variant
// ("dp_mean").
func ParseOp(s string) (Op, error) {
	for i, info := range opTable {
		if info.name == s || info.variant == s {
			return Op(i), nil
		}
	}
	return 0, fmt.Errorf("unknown operation %q", s)
}
