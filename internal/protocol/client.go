package protocol

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/roach88/dpgraph/internal/privacy"
)

// Client calls an engine through a Transport. Its methods mirror the engine
// operations one to one.
type Client struct {
	transport Transport
	timeout   time.Duration
	logger    *slog.Logger
	rawTraces bool
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithTimeout bounds every round trip. On a stream transport an expired
// timeout also breaks the transport, since the engine cannot be told to stop.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.timeout = d
	}
}

// WithClientLogger sets the logger. The default is slog.Default(). A
// transport with a SetLogger method logs through it too.
func WithClientLogger(l *slog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = l
	}
}

// WithRawTraces keeps engine call stacks unfiltered.
func WithRawTraces() ClientOption {
	return func(c *Client) {
		c.rawTraces = true
	}
}

// NewClient returns a client over t.
func NewClient(t Transport, opts ...ClientOption) *Client {
	c := &Client{transport: t, logger: slog.Default()}
	for _, opt := range opts {
		opt(c)
	}
	if lt, ok := t.(interface{ SetLogger(*slog.Logger) }); ok {
		lt.SetLogger(c.logger)
	}
	return c
}

// Close closes the transport.
func (c *Client) Close() error {
	return c.transport.Close()
}

// ValidateAnalysis asks whether the graph satisfies its privacy definition.
func (c *Client) ValidateAnalysis(ctx context.Context, a Analysis, r Release) (Validation, error) {
	return call[Validation](ctx, c, MethodValidateAnalysis, GraphRequest{Analysis: a, Release: r})
}

// ComputePrivacyUsage returns the budget the graph would spend.
func (c *Client) ComputePrivacyUsage(ctx context.Context, a Analysis, r Release) ([]privacy.Usage, error) {
	return call[[]privacy.Usage](ctx, c, MethodComputePrivacyUsage, GraphRequest{Analysis: a, Release: r})
}

// ComputeRelease evaluates the graph and returns the updated known values.
func (c *Client) ComputeRelease(ctx context.Context, a Analysis, r Release, opts ReleaseOptions) (Release, error) {
	return call[Release](ctx, c, MethodComputeRelease, ComputeReleaseRequest{Analysis: a, Release: r, Options: opts})
}

// GenerateReport returns the engine's JSON report of the released values.
func (c *Client) GenerateReport(ctx context.Context, a Analysis, r Release) (string, error) {
	return call[string](ctx, c, MethodGenerateReport, GraphRequest{Analysis: a, Release: r})
}

// GetProperties returns the static properties of every component.
func (c *Client) GetProperties(ctx context.Context, a Analysis, r Release) (map[NodeID]PropertySet, error) {
	return call[map[NodeID]PropertySet](ctx, c, MethodGetProperties, GraphRequest{Analysis: a, Release: r})
}

// AccuracyToPrivacyUsage estimates the budget needed to reach each accuracy.
func (c *Client) AccuracyToPrivacyUsage(ctx context.Context, def privacy.Definition, comp Component, props map[string]PropertySet, accuracies []privacy.Accuracy) ([]privacy.Usage, error) {
	return call[[]privacy.Usage](ctx, c, MethodAccuracyToPrivacyUsage, AccuracyToPrivacyUsageRequest{
		PrivacyDefinition: def,
		Component:         comp,
		Properties:        props,
		Accuracies:        accuracies,
	})
}

// PrivacyUsageToAccuracy estimates the accuracy the component's usage buys
// at confidence 1 - alpha.
func (c *Client) PrivacyUsageToAccuracy(ctx context.Context, def privacy.Definition, comp Component, props map[string]PropertySet, alpha float64) ([]privacy.Accuracy, error) {
	return call[[]privacy.Accuracy](ctx, c, MethodPrivacyUsageToAccuracy, PrivacyUsageToAccuracyRequest{
		PrivacyDefinition: def,
		Component:         comp,
		Properties:        props,
		Alpha:             alpha,
	})
}

// call performs one exchange: encode, round trip, decode, translate.
func call[T any](ctx context.Context, c *Client, method Method, body any) (T, error) {
	var zero T

	ctx, span := tracer.Start(ctx, "engine."+string(method),
		trace.WithAttributes(attribute.String("engine.method", string(method))),
	)
	defer span.End()

	start := time.Now()
	outcome := outcomeOK
	defer func() {
		engineCalls.WithLabelValues(string(method), outcome).Inc()
		engineCallDuration.WithLabelValues(string(method)).Observe(time.Since(start).Seconds())
	}()

	fail := func(kind string, err error) (T, error) {
		outcome = kind
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return zero, err
	}

	encoded, err := json.Marshal(body)
	if err != nil {
		return fail(outcomeEncoding, fmt.Errorf("encode %s request: %w", method, err))
	}
	payload, err := json.Marshal(Request{Method: method, Body: encoded})
	if err != nil {
		return fail(outcomeEncoding, fmt.Errorf("encode %s envelope: %w", method, err))
	}
	engineRequestBytes.WithLabelValues(string(method)).Observe(float64(len(payload)))
	span.SetAttributes(attribute.Int("engine.request_bytes", len(payload)))

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	c.logger.Debug("engine call", "method", method, "bytes", len(payload))
	raw, err := c.transport.RoundTrip(ctx, payload)
	if err != nil {
		return fail(outcomeTransport, fmt.Errorf("%s: %w", method, err))
	}

	var resp Response
	if err := json.Unmarshal(raw, &resp); err != nil {
		return fail(outcomeEncoding, fmt.Errorf("decode %s response: %w", method, err))
	}
	if resp.Error != nil {
		ee := newEngineError(method, resp.Error.Message, c.rawTraces)
		c.logger.Warn("engine reported an error", "method", method, "message", ee.Message)
		return fail(outcomeEngine, ee)
	}
	if resp.Data == nil {
		return fail(outcomeEncoding, fmt.Errorf("decode %s response: neither data nor error", method))
	}

	var out T
	if err := json.Unmarshal(resp.Data, &out); err != nil {
		return fail(outcomeEncoding, fmt.Errorf("decode %s data: %w", method, err))
	}
	span.SetStatus(codes.Ok, "")
	return out, nil
}
