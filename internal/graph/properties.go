package graph

import (
	"context"
	"fmt"
	"maps"
	"slices"

	"github.com/roach88/dpgraph/internal/privacy"
	"github.com/roach88/dpgraph/internal/protocol"
)

// Properties returns what the engine can infer statically about every
// node. The result is cached until a node is added, a release completes,
// a value is inserted or Prune removes nodes.
func (a *Analysis) Properties(ctx context.Context) (map[NodeID]protocol.PropertySet, error) {
	key := propsKey{nodes: len(a.order), batch: a.batch}
	if a.props != nil && a.propsKey == key {
		return a.props, nil
	}

	graph, release, err := a.serialize()
	if err != nil {
		return nil, err
	}
	props, err := a.evaluator.GetProperties(ctx, graph, release)
	if err != nil {
		return nil, fmt.Errorf("get properties: %w", err)
	}
	if props == nil {
		props = map[NodeID]protocol.PropertySet{}
	}
	a.props = props
	a.propsKey = key
	a.logger.Debug("properties fetched", "batch", a.batch, "nodes", len(a.order), "reported", len(props))
	return props, nil
}

// Properties returns the engine's static properties for n, or nil when the
// engine reports none.
func (n *Node) Properties(ctx context.Context) (*protocol.PropertySet, error) {
	if err := n.analysis.checkOwned("node", n); err != nil {
		return nil, err
	}
	props, err := n.analysis.Properties(ctx)
	if err != nil {
		return nil, err
	}
	p, ok := props[n.id]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

// argumentProperties keys the properties of n's arguments by argument name.
func (n *Node) argumentProperties(ctx context.Context) (map[string]protocol.PropertySet, error) {
	if err := n.analysis.checkOwned("node", n); err != nil {
		return nil, err
	}
	props, err := n.analysis.Properties(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[string]protocol.PropertySet, len(n.args))
	for _, name := range slices.Sorted(maps.Keys(n.args)) {
		p, ok := props[n.args[name].id]
		if !ok {
			return nil, fmt.Errorf("no properties for argument %q (node %d)", name, n.args[name].id)
		}
		out[name] = p
	}
	return out, nil
}

// Accuracy estimates the accuracy n's privacy usage buys at confidence
// 1 - alpha. Nothing is released.
func (n *Node) Accuracy(ctx context.Context, alpha float64) ([]privacy.Accuracy, error) {
	if alpha <= 0 || alpha >= 1 {
		return nil, usageErrorf(ErrCodeUnsupportedValue, "alpha %v outside (0, 1)", alpha)
	}
	props, err := n.argumentProperties(ctx)
	if err != nil {
		return nil, err
	}
	out, err := n.analysis.evaluator.PrivacyUsageToAccuracy(ctx, n.analysis.definition, n.component(), props, alpha)
	if err != nil {
		return nil, fmt.Errorf("privacy usage to accuracy for node %d: %w", n.id, err)
	}
	return out, nil
}

// PrivacyUsageFor estimates the privacy usage n would need to reach the
// given accuracies. Nothing is released.
func (n *Node) PrivacyUsageFor(ctx context.Context, accuracies ...privacy.Accuracy) ([]privacy.Usage, error) {
	if len(accuracies) == 0 {
		return nil, usageErrorf(ErrCodeMissingArgument, "at least one accuracy is required")
	}
	for i, acc := range accuracies {
		if err := acc.Validate(); err != nil {
			return nil, &UsageError{Code: ErrCodeUnsupportedValue, Message: fmt.Sprintf("accuracy %d", i), Err: err}
		}
	}
	props, err := n.argumentProperties(ctx)
	if err != nil {
		return nil, err
	}
	out, err := n.analysis.evaluator.AccuracyToPrivacyUsage(ctx, n.analysis.definition, n.component(), props, accuracies)
	if err != nil {
		return nil, fmt.Errorf("accuracy to privacy usage for node %d: %w", n.id, err)
	}
	return out, nil
}
