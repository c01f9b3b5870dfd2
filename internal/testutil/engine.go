package testutil

import (
	"context"
	"errors"
	"maps"
	"strings"
	"sync"
	"testing"

	"github.com/roach88/dpgraph/internal/privacy"
	"github.com/roach88/dpgraph/internal/protocol"
	"github.com/roach88/dpgraph/internal/value"
)

// FakeEngine is a scripted protocol.Engine.
//
// By default it accepts every graph, answers releases by echoing the known
// values plus Values, reports every node as releasable exactly when it is
// known or its variant starts with "dp_", and converts accuracy and usage
// with fixed formulas. Set the exported fields to script other answers.
//
// Thread-safety: FakeEngine is safe for concurrent use via internal mutex.
// Set fields before serving it.
type FakeEngine struct {
	// Invalid makes ValidateAnalysis reject every graph with Message.
	Invalid bool
	Message string

	// Values are released for every listed node present in the graph.
	Values map[protocol.NodeID]value.Value

	// Usages are attached to the listed node when it is released.
	Usages map[protocol.NodeID][]privacy.Usage

	// Properties, when set, replaces the default property inference.
	Properties map[protocol.NodeID]protocol.PropertySet

	// TotalUsage is returned by ComputePrivacyUsage.
	TotalUsage []privacy.Usage

	// Report is returned by GenerateReport. The default is "{}".
	Report string

	// Err, when set, fails every call with its message.
	Err error

	mu       sync.Mutex
	calls    []protocol.Method
	releases []protocol.ComputeReleaseRequest
}

var _ protocol.Engine = (*FakeEngine)(nil)

// NewClient serves e through a loopback transport and returns a client
// that is closed when the test ends.
func NewClient(t testing.TB, e protocol.Engine, opts ...protocol.ClientOption) *protocol.Client {
	t.Helper()
	c := protocol.NewClient(protocol.Loopback(protocol.NewDispatcher(e)), opts...)
	t.Cleanup(func() { c.Close() })
	return c
}

func (e *FakeEngine) record(m protocol.Method) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls = append(e.calls, m)
	return e.Err
}

// Calls returns the methods invoked so far, in order.
func (e *FakeEngine) Calls() []protocol.Method {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]protocol.Method(nil), e.calls...)
}

// CallCount returns how many times m was invoked.
func (e *FakeEngine) CallCount(m protocol.Method) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := 0
	for _, c := range e.calls {
		if c == m {
			n++
		}
	}
	return n
}

// LastRelease returns the most recent ComputeRelease request.
func (e *FakeEngine) LastRelease() (protocol.ComputeReleaseRequest, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.releases) == 0 {
		return protocol.ComputeReleaseRequest{}, false
	}
	return e.releases[len(e.releases)-1], true
}

// ValidateAnalysis implements protocol.Engine.
func (e *FakeEngine) ValidateAnalysis(_ context.Context, _ *protocol.GraphRequest) (protocol.Validation, error) {
	if err := e.record(protocol.MethodValidateAnalysis); err != nil {
		return protocol.Validation{}, err
	}
	if e.Invalid {
		return protocol.Validation{Valid: false, Message: e.Message}, nil
	}
	return protocol.Validation{Valid: true}, nil
}

// ComputePrivacyUsage implements protocol.Engine.
func (e *FakeEngine) ComputePrivacyUsage(_ context.Context, _ *protocol.GraphRequest) ([]privacy.Usage, error) {
	if err := e.record(protocol.MethodComputePrivacyUsage); err != nil {
		return nil, err
	}
	return e.TotalUsage, nil
}

// ComputeRelease implements protocol.Engine.
func (e *FakeEngine) ComputeRelease(_ context.Context, req *protocol.ComputeReleaseRequest) (protocol.Release, error) {
	if err := e.record(protocol.MethodComputeRelease); err != nil {
		return nil, err
	}
	e.mu.Lock()
	e.releases = append(e.releases, *req)
	e.mu.Unlock()

	out := maps.Clone(req.Release)
	if out == nil {
		out = protocol.Release{}
	}
	for id, v := range e.Values {
		if _, ok := req.Analysis.ComputationGraph[id]; !ok {
			continue
		}
		out[id] = protocol.ReleaseNode{
			Value:         value.Wire{Value: v},
			PrivacyUsages: e.Usages[id],
			Public:        true,
		}
	}
	return out, nil
}

// GenerateReport implements protocol.Engine.
func (e *FakeEngine) GenerateReport(_ context.Context, _ *protocol.GraphRequest) (string, error) {
	if err := e.record(protocol.MethodGenerateReport); err != nil {
		return "", err
	}
	if e.Report == "" {
		return "{}", nil
	}
	return e.Report, nil
}

// GetProperties implements protocol.Engine.
func (e *FakeEngine) GetProperties(_ context.Context, req *protocol.GraphRequest) (map[protocol.NodeID]protocol.PropertySet, error) {
	if err := e.record(protocol.MethodGetProperties); err != nil {
		return nil, err
	}
	if e.Properties != nil {
		return e.Properties, nil
	}
	out := make(map[protocol.NodeID]protocol.PropertySet, len(req.Analysis.ComputationGraph))
	for id, comp := range req.Analysis.ComputationGraph {
		_, known := req.Release[id]
		out[id] = protocol.PropertySet{
			Releasable: known || strings.HasPrefix(comp.Variant, "dp_"),
		}
	}
	return out, nil
}

// AccuracyToPrivacyUsage implements protocol.Engine. Each accuracy value a
// maps to pure epsilon 1/a.
func (e *FakeEngine) AccuracyToPrivacyUsage(_ context.Context, req *protocol.AccuracyToPrivacyUsageRequest) ([]privacy.Usage, error) {
	if err := e.record(protocol.MethodAccuracyToPrivacyUsage); err != nil {
		return nil, err
	}
	out := make([]privacy.Usage, len(req.Accuracies))
	for i, acc := range req.Accuracies {
		if acc.Value == 0 {
			return nil, errors.New("accuracy must be positive")
		}
		out[i] = privacy.PureUsage(1 / acc.Value)
	}
	return out, nil
}

// PrivacyUsageToAccuracy implements protocol.Engine. It returns one
// accuracy of value 1 at the requested alpha.
func (e *FakeEngine) PrivacyUsageToAccuracy(_ context.Context, req *protocol.PrivacyUsageToAccuracyRequest) ([]privacy.Accuracy, error) {
	if err := e.record(protocol.MethodPrivacyUsageToAccuracy); err != nil {
		return nil, err
	}
	return []privacy.Accuracy{{Value: 1, Alpha: req.Alpha}}, nil
}
