package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"maps"
	"slices"

	"github.com/roach88/dpgraph/internal/ledger"
	"github.com/roach88/dpgraph/internal/privacy"
	"github.com/roach88/dpgraph/internal/protocol"
	"github.com/roach88/dpgraph/internal/value"
)

// NodeID identifies a node within its analysis.
type NodeID = protocol.NodeID

// Evaluator is the engine surface an analysis needs. *protocol.Client
// implements it.
type Evaluator interface {
	ValidateAnalysis(ctx context.Context, a protocol.Analysis, r protocol.Release) (protocol.Validation, error)
	ComputePrivacyUsage(ctx context.Context, a protocol.Analysis, r protocol.Release) ([]privacy.Usage, error)
	ComputeRelease(ctx context.Context, a protocol.Analysis, r protocol.Release, opts protocol.ReleaseOptions) (protocol.Release, error)
	GenerateReport(ctx context.Context, a protocol.Analysis, r protocol.Release) (string, error)
	GetProperties(ctx context.Context, a protocol.Analysis, r protocol.Release) (map[NodeID]protocol.PropertySet, error)
	AccuracyToPrivacyUsage(ctx context.Context, def privacy.Definition, comp protocol.Component, props map[string]protocol.PropertySet, accuracies []privacy.Accuracy) ([]privacy.Usage, error)
	PrivacyUsageToAccuracy(ctx context.Context, def privacy.Definition, comp protocol.Component, props map[string]protocol.PropertySet, alpha float64) ([]privacy.Accuracy, error)
}

var _ Evaluator = (*protocol.Client)(nil)

// Recorder receives a ledger entry after every successful release.
// *ledger.Store implements it.
type Recorder interface {
	RecordRelease(ctx context.Context, e ledger.Entry) error
}

// Known is a value the analysis knows for a node, either released by the
// engine or inserted by the caller.
type Known struct {
	Value         value.Value
	Format        value.Format
	PrivacyUsages []privacy.Usage
	Public        bool
}

// State is the release lifecycle state.
type State uint8

const (
	// Building accepts new nodes; no engine call is in flight.
	Building State = iota
	// Validating is waiting on the mandatory validation.
	Validating
	// Releasing is waiting on the engine's release.
	Releasing
	// Invalid means the last validation rejected the graph. The analysis
	// stays editable and can be validated again.
	Invalid
)

var stateNames = [...]string{
	Building:   "building",
	Validating: "validating",
	Releasing:  "releasing",
	Invalid:    "invalid",
}

func (s State) String() string {
	if int(s) >= len(stateNames) {
		return fmt.Sprintf("State(%d)", uint8(s))
	}
	return stateNames[s]
}

// Options holds literal configuration for one component. Values are JSON
// encoded at construction; value.Value entries use the value wire form.
type Options map[string]any

// Constraints holds "<argument>_<suffix>" keys for Expand.
type Constraints map[string]any

// Option configures an Analysis.
type Option func(*Analysis)

// WithDynamic skips the mandatory validation before each release.
func WithDynamic() Option {
	return func(a *Analysis) {
		a.dynamic = true
	}
}

// WithEager releases the whole graph after every registration. It
// multiplies engine round trips by the node count; use it for debugging.
func WithEager() Option {
	return func(a *Analysis) {
		a.eager = true
	}
}

// WithPrivacyDefinition sets the privacy definition. It cannot change later.
func WithPrivacyDefinition(def privacy.Definition) Option {
	return func(a *Analysis) {
		a.definition = def
	}
}

// WithFilterLevel sets how much of the evaluated graph releases return.
func WithFilterLevel(level privacy.FilterLevel) Option {
	return func(a *Analysis) {
		a.filterLevel = level
	}
}

// WithStackTrace controls whether the engine is asked for call stacks.
func WithStackTrace(enabled bool) Option {
	return func(a *Analysis) {
		a.stackTrace = enabled
	}
}

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(a *Analysis) {
		a.logger = l
	}
}

// WithIDGenerator sets the analysis id source.
func WithIDGenerator(g IDGenerator) Option {
	return func(a *Analysis) {
		a.idGen = g
	}
}

// WithRecorder records every successful release.
func WithRecorder(r Recorder) Option {
	return func(a *Analysis) {
		a.recorder = r
	}
}

// Analysis owns a graph of nodes, its privacy definition and the values
// known so far.
type Analysis struct {
	id          string
	evaluator   Evaluator
	definition  privacy.Definition
	dynamic     bool
	eager       bool
	filterLevel privacy.FilterLevel
	stackTrace  bool
	logger      *slog.Logger
	idGen       IDGenerator
	recorder    Recorder

	scope         *Scope
	state         State
	invalidReason string

	nodes    map[NodeID]*Node
	order    []NodeID
	nextID   NodeID
	releases map[NodeID]Known
	batch    uint32
	datasets int64

	props    map[NodeID]protocol.PropertySet
	propsKey propsKey
}

type propsKey struct {
	nodes int
	batch uint32
}

// New creates an analysis evaluated by e. Defaults: validated releases,
// approximate distance over substitute neighbors, public filter level,
// stack traces requested.
func New(e Evaluator, opts ...Option) *Analysis {
	a := &Analysis{
		evaluator:   e,
		definition:  privacy.DefaultDefinition(),
		filterLevel: privacy.FilterPublic,
		stackTrace:  true,
		logger:      slog.Default(),
		idGen:       UUIDv7Generator{},
		nodes:       make(map[NodeID]*Node),
		releases:    make(map[NodeID]Known),
	}
	for _, opt := range opts {
		opt(a)
	}
	a.id = a.idGen.Generate()
	a.logger = a.logger.With("analysis", a.id)
	a.logger.Debug("analysis created",
		"definition", a.definition.String(),
		"dynamic", a.dynamic,
		"eager", a.eager)
	return a
}

// ID returns the analysis id.
func (a *Analysis) ID() string { return a.id }

// Definition returns the privacy definition.
func (a *Analysis) Definition() privacy.Definition { return a.definition }

// Batch returns the number of successful releases.
func (a *Analysis) Batch() uint32 { return a.batch }

// State returns the lifecycle state.
func (a *Analysis) State() State { return a.state }

// Nodes returns the live nodes in creation order.
func (a *Analysis) Nodes() []*Node {
	out := make([]*Node, len(a.order))
	for i, id := range a.order {
		out[i] = a.nodes[id]
	}
	return out
}

// Node returns the live node with the given id.
func (a *Analysis) Node(id NodeID) (*Node, bool) {
	n, ok := a.nodes[id]
	return n, ok
}

// Releases returns a copy of every known value.
func (a *Analysis) Releases() map[NodeID]Known {
	return maps.Clone(a.releases)
}

func (a *Analysis) checkActive() error {
	if a.scope == nil {
		return usageErrorf(ErrCodeNoActiveContext, "analysis %s has not been entered in a scope", a.id)
	}
	if a.scope.active != a {
		return usageErrorf(ErrCodeInactiveAnalysis, "analysis %s is not the active analysis", a.id)
	}
	return nil
}

func (a *Analysis) checkOwned(name string, n *Node) error {
	if n.analysis != a {
		return usageErrorf(ErrCodeForeignComponent, "argument %q (node %d) belongs to another analysis", name, n.id)
	}
	if n.detached {
		return usageErrorf(ErrCodeDetachedComponent, "argument %q (node %d) was pruned", name, n.id)
	}
	return nil
}

// Of returns v itself if it is a node of this analysis and otherwise lifts
// it into a new Literal. Lifting the same value twice creates two nodes.
func (a *Analysis) Of(v any) (*Node, error) {
	if n, ok := v.(*Node); ok {
		if n == nil {
			return nil, usageErrorf(ErrCodeMissingArgument, "nil node")
		}
		if err := a.checkOwned("value", n); err != nil {
			return nil, err
		}
		return n, nil
	}
	return a.Literal(v, value.FormatAuto)
}

// Literal registers a public Literal node whose value is known up front.
func (a *Analysis) Literal(v any, f value.Format) (*Node, error) {
	if err := a.checkActive(); err != nil {
		return nil, err
	}
	val, err := liftValue(v, f)
	if err != nil {
		return nil, err
	}
	return a.register(OpLiteral, nil, nil, &Known{Value: val, Format: value.FormatOf(val), Public: true})
}

func liftValue(v any, f value.Format) (value.Value, error) {
	val, err := value.Of(v, f)
	if err != nil {
		return nil, &UsageError{Code: ErrCodeUnsupportedValue, Message: "cannot lift literal", Err: err}
	}
	if _, err := value.Encode(val); err != nil {
		return nil, &UsageError{Code: ErrCodeUnsupportedValue, Message: "cannot encode literal", Err: err}
	}
	return val, nil
}

// checkLiftable reports whether Of(v) would succeed, without registering
// anything.
func (a *Analysis) checkLiftable(v any) error {
	if n, ok := v.(*Node); ok {
		if n == nil {
			return usageErrorf(ErrCodeMissingArgument, "nil node")
		}
		return a.checkOwned("value", n)
	}
	_, err := liftValue(v, value.FormatAuto)
	return err
}

// Component registers a component of the given op. Nil arguments are
// omitted; other non-node arguments are lifted into literals. Constraints
// are expanded around the arguments they name before the component is
// registered (see Expand).
func (a *Analysis) Component(op Op, args map[string]any, opts Options, cons Constraints) (*Node, error) {
	if err := a.checkActive(); err != nil {
		return nil, err
	}
	if op >= numOps {
		return nil, usageErrorf(ErrCodeUnsupportedValue, "unknown operation %d", uint8(op))
	}
	names := make([]string, 0, len(args))
	for name, arg := range args {
		if arg != nil {
			names = append(names, name)
		}
	}
	slices.Sort(names)

	plans, err := planConstraints(names, cons)
	if err != nil {
		return nil, err
	}
	encoded, err := encodeOptions(opts)
	if err != nil {
		return nil, err
	}
	// Nothing is registered until every argument and constraint value is
	// known to lift.
	for _, name := range names {
		if err := a.checkLiftable(args[name]); err != nil {
			return nil, fmt.Errorf("argument %q: %w", name, err)
		}
	}
	if err := a.checkPlans(plans); err != nil {
		return nil, err
	}

	lifted := make(map[string]*Node, len(names))
	for _, name := range names {
		n, err := a.Of(args[name])
		if err != nil {
			return nil, fmt.Errorf("argument %q: %w", name, err)
		}
		lifted[name] = n
	}
	if err := a.applyConstraints(lifted, names, plans); err != nil {
		return nil, err
	}
	return a.registerEncoded(op, lifted, encoded, nil)
}

func (a *Analysis) register(op Op, args map[string]*Node, opts Options, known *Known) (*Node, error) {
	encoded, err := encodeOptions(opts)
	if err != nil {
		return nil, err
	}
	return a.registerEncoded(op, args, encoded, known)
}

// registerEncoded is the single point where nodes join the analysis.
func (a *Analysis) registerEncoded(op Op, args map[string]*Node, opts map[string]json.RawMessage, known *Known) (*Node, error) {
	if err := a.checkActive(); err != nil {
		return nil, err
	}
	for name, arg := range args {
		if arg == nil {
			delete(args, name)
			continue
		}
		if err := a.checkOwned(name, arg); err != nil {
			return nil, err
		}
	}

	n := &Node{
		id:       a.nextID,
		op:       op,
		args:     args,
		options:  opts,
		batch:    a.batch,
		analysis: a,
	}
	a.nextID++
	a.nodes[n.id] = n
	a.order = append(a.order, n.id)
	if known != nil {
		a.releases[n.id] = *known
	}
	a.logger.Debug("component registered", "node", n.id, "op", op.String(), "batch", n.batch)

	if a.eager {
		if err := a.Release(context.Background()); err != nil {
			return n, fmt.Errorf("eager release after node %d: %w", n.id, err)
		}
	}
	return n, nil
}

func encodeOptions(opts Options) (map[string]json.RawMessage, error) {
	if len(opts) == 0 {
		return nil, nil
	}
	out := make(map[string]json.RawMessage, len(opts))
	for name, opt := range opts {
		switch v := opt.(type) {
		case nil:
			continue
		case *Node:
			return nil, usageErrorf(ErrCodeOptionNotLiteral, "option %q is a node; pass it as an argument", name)
		case value.Value:
			opt = value.Wire{Value: v}
		}
		raw, err := json.Marshal(opt)
		if err != nil {
			return nil, &UsageError{Code: ErrCodeUnsupportedValue, Message: fmt.Sprintf("option %q", name), Err: err}
		}
		out[name] = raw
	}
	if len(out) == 0 {
		return nil, nil
	}
	return out, nil
}

// Insert records a value the caller already knows for n, such as an
// aggregate computed elsewhere. It is sent with every later request.
func (a *Analysis) Insert(n *Node, v any, f value.Format, usages ...privacy.Usage) error {
	if err := a.checkOwned("node", n); err != nil {
		return err
	}
	val, err := value.Of(v, f)
	if err != nil {
		return &UsageError{Code: ErrCodeUnsupportedValue, Message: fmt.Sprintf("insert into node %d", n.id), Err: err}
	}
	if _, err := value.Encode(val); err != nil {
		return &UsageError{Code: ErrCodeUnsupportedValue, Message: fmt.Sprintf("insert into node %d", n.id), Err: err}
	}
	a.releases[n.id] = Known{Value: val, Format: value.FormatOf(val), PrivacyUsages: slices.Clone(usages), Public: true}
	a.props = nil
	a.logger.Debug("value inserted", "node", n.id)
	return nil
}
