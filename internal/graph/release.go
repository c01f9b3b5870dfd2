package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"slices"

	"github.com/roach88/dpgraph/internal/ledger"
	"github.com/roach88/dpgraph/internal/privacy"
	"github.com/roach88/dpgraph/internal/protocol"
	"github.com/roach88/dpgraph/internal/value"
)

// serialize returns the whole graph and every known value. The engine
// always sees both in full.
func (a *Analysis) serialize() (protocol.Analysis, protocol.Release, error) {
	graph := make(map[NodeID]protocol.Component, len(a.order))
	for _, id := range a.order {
		graph[id] = a.nodes[id].component()
	}
	if err := checkDAG(graph); err != nil {
		return protocol.Analysis{}, nil, err
	}

	release := make(protocol.Release, len(a.releases))
	for id, k := range a.releases {
		release[id] = protocol.ReleaseNode{
			Value:         value.Wire{Value: k.Value},
			PrivacyUsages: k.PrivacyUsages,
			Public:        k.Public,
		}
	}
	return protocol.Analysis{ComputationGraph: graph, PrivacyDefinition: a.definition}, release, nil
}

// Validate asks the engine whether the graph satisfies the privacy
// definition. A rejection is not an error: the analysis moves to Invalid
// and stays editable. On an engine or transport error the state is left
// as it was.
func (a *Analysis) Validate(ctx context.Context) (bool, error) {
	graph, release, err := a.serialize()
	if err != nil {
		return false, err
	}

	prev := a.state
	a.state = Validating
	v, err := a.evaluator.ValidateAnalysis(ctx, graph, release)
	if err != nil {
		a.state = prev
		return false, fmt.Errorf("validate analysis: %w", err)
	}
	if !v.Valid {
		a.state = Invalid
		a.invalidReason = v.Message
		a.logger.Info("analysis rejected", "batch", a.batch, "nodes", len(a.order), "reason", v.Message)
		return false, nil
	}
	a.state = Building
	a.invalidReason = ""
	return true, nil
}

// Release sends the graph and known values to the engine and replaces the
// known values with the response. Unless the analysis is dynamic, a
// validation runs first and a rejection returns ErrInvalidAnalysis without
// sending the release. A failed release changes nothing: the known values
// and the batch stay as they were.
func (a *Analysis) Release(ctx context.Context) error {
	if !a.dynamic {
		ok, err := a.Validate(ctx)
		if err != nil {
			return err
		}
		if !ok {
			if a.invalidReason != "" {
				return fmt.Errorf("%w: %s", ErrInvalidAnalysis, a.invalidReason)
			}
			return ErrInvalidAnalysis
		}
	}

	graph, release, err := a.serialize()
	if err != nil {
		return err
	}

	prev := a.state
	a.state = Releasing
	out, err := a.evaluator.ComputeRelease(ctx, graph, release, protocol.ReleaseOptions{
		EmitStackTrace: a.stackTrace,
		FilterLevel:    a.filterLevel,
	})
	if err != nil {
		a.state = prev
		return fmt.Errorf("compute release: %w", err)
	}

	next := make(map[NodeID]Known, len(out))
	for _, id := range slices.Sorted(maps.Keys(out)) {
		rn := out[id]
		if _, ok := a.nodes[id]; !ok {
			a.logger.Warn("release names an unknown node", "node", id)
			continue
		}
		if rn.Value.Value == nil {
			a.logger.Warn("release carries no value", "node", id)
			continue
		}
		next[id] = Known{
			Value:         rn.Value.Value,
			Format:        value.FormatOf(rn.Value.Value),
			PrivacyUsages: rn.PrivacyUsages,
			Public:        rn.Public,
		}
	}

	var spent []privacy.Usage
	for id, k := range next {
		if _, seen := a.releases[id]; !seen {
			spent = append(spent, k.PrivacyUsages...)
		}
	}

	a.releases = next
	a.batch++
	a.state = Building
	a.logger.Info("release complete", "batch", a.batch, "nodes", len(a.order), "released", len(next))

	a.record(ctx, graph, out, spent)
	return nil
}

func (a *Analysis) record(ctx context.Context, graph protocol.Analysis, out protocol.Release, spent []privacy.Usage) {
	if a.recorder == nil {
		return
	}
	hash, err := protocol.Fingerprint(graph)
	if err != nil {
		a.logger.Warn("ledger entry skipped", "batch", a.batch, "error", err)
		return
	}
	raw, err := json.Marshal(out)
	if err != nil {
		a.logger.Warn("ledger entry skipped", "batch", a.batch, "error", err)
		return
	}
	eps, delta := privacy.Sum(spent...)
	entry := ledger.Entry{
		AnalysisID:    a.id,
		Batch:         a.batch,
		Definition:    a.definition,
		GraphHash:     hash,
		NodeCount:     len(graph.ComputationGraph),
		ReleasedCount: len(a.releases),
		Epsilon:       eps,
		Delta:         delta,
		Release:       raw,
	}
	if err := a.recorder.RecordRelease(ctx, entry); err != nil {
		a.logger.Warn("ledger write failed", "batch", a.batch, "error", err)
	}
}

// PrivacyUsage asks the engine for the total budget the graph would spend.
func (a *Analysis) PrivacyUsage(ctx context.Context) ([]privacy.Usage, error) {
	graph, release, err := a.serialize()
	if err != nil {
		return nil, err
	}
	usages, err := a.evaluator.ComputePrivacyUsage(ctx, graph, release)
	if err != nil {
		return nil, fmt.Errorf("compute privacy usage: %w", err)
	}
	return usages, nil
}

// Report returns the engine's JSON report of the released values.
func (a *Analysis) Report(ctx context.Context) (json.RawMessage, error) {
	graph, release, err := a.serialize()
	if err != nil {
		return nil, err
	}
	report, err := a.evaluator.GenerateReport(ctx, graph, release)
	if err != nil {
		return nil, fmt.Errorf("generate report: %w", err)
	}
	if !json.Valid([]byte(report)) {
		return nil, fmt.Errorf("generate report: engine returned malformed JSON")
	}
	return json.RawMessage(report), nil
}

// Fingerprint returns the content hash of the graph and privacy definition.
// Known values do not contribute.
func (a *Analysis) Fingerprint() (string, error) {
	graph, _, err := a.serialize()
	if err != nil {
		return "", err
	}
	return protocol.Fingerprint(graph)
}
