package protocol

import (
	"encoding/json"

	"github.com/roach88/dpgraph/internal/privacy"
	"github.com/roach88/dpgraph/internal/value"
)

// NodeID identifies a component within one analysis.
type NodeID uint32

// Component is the wire form of one graph vertex.
type Component struct {
	// Variant is the snake_case operation name, e.g. "dp_mean".
	Variant string `json:"variant"`

	// Arguments maps parameter names to earlier components.
	Arguments map[string]NodeID `json:"arguments,omitempty"`

	// Options holds literal configuration, already JSON encoded.
	Options map[string]json.RawMessage `json:"options,omitempty"`

	// Batch is the release epoch the component was created in.
	Batch uint32 `json:"batch"`
}

// Analysis is a computation graph plus the privacy definition it is
// validated against.
type Analysis struct {
	ComputationGraph  map[NodeID]Component `json:"computation_graph"`
	PrivacyDefinition privacy.Definition   `json:"privacy_definition"`
}

// Release is the set of known values, keyed by component.
type Release map[NodeID]ReleaseNode

// ReleaseNode is one known value.
type ReleaseNode struct {
	Value         value.Wire      `json:"value"`
	PrivacyUsages []privacy.Usage `json:"privacy_usages,omitempty"`
	Public        bool            `json:"public"`
}

// PropertySet is what the engine can infer statically about a component.
type PropertySet struct {
	Nullity    bool            `json:"nullity"`
	Releasable bool            `json:"releasable"`
	NumRecords *int64          `json:"num_records,omitempty"`
	NumColumns *int64          `json:"num_columns,omitempty"`
	DataType   *value.DataType `json:"data_type,omitempty"`
	Nature     *Nature         `json:"nature,omitempty"`
}

// Nature is either continuous (Lower and Upper) or categorical (Categories).
type Nature struct {
	Lower      *value.Wire `json:"lower,omitempty"`
	Upper      *value.Wire `json:"upper,omitempty"`
	Categories *value.Wire `json:"categories,omitempty"`
}

// ReleaseOptions tunes a ComputeRelease call. FilterLevel only changes how
// much of the evaluated graph comes back, never whether the call succeeds.
type ReleaseOptions struct {
	EmitStackTrace bool                `json:"emit_stack_trace"`
	FilterLevel    privacy.FilterLevel `json:"filter_level"`
}

// Validation is the engine's verdict on an analysis.
type Validation struct {
	Valid   bool   `json:"valid"`
	Message string `json:"message,omitempty"`
}

// GraphRequest is the body of every method that takes the whole graph and
// the known values.
type GraphRequest struct {
	Analysis Analysis `json:"analysis"`
	Release  Release  `json:"release"`
}

// ComputeReleaseRequest is the body of MethodComputeRelease.
type ComputeReleaseRequest struct {
	Analysis Analysis       `json:"analysis"`
	Release  Release        `json:"release"`
	Options  ReleaseOptions `json:"options"`
}

// AccuracyToPrivacyUsageRequest is the body of MethodAccuracyToPrivacyUsage.
// Properties are keyed by the component's argument names.
type AccuracyToPrivacyUsageRequest struct {
	PrivacyDefinition privacy.Definition     `json:"privacy_definition"`
	Component         Component              `json:"component"`
	Properties        map[string]PropertySet `json:"properties"`
	Accuracies        []privacy.Accuracy     `json:"accuracies"`
}

// PrivacyUsageToAccuracyRequest is the body of MethodPrivacyUsageToAccuracy.
type PrivacyUsageToAccuracyRequest struct {
	PrivacyDefinition privacy.Definition     `json:"privacy_definition"`
	Component         Component              `json:"component"`
	Properties        map[string]PropertySet `json:"properties"`
	Alpha             float64                `json:"alpha"`
}
