package protocol

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/roach88/dpgraph/internal/privacy"
)

// Engine is the typed engine side of the protocol.
type Engine interface {
	ValidateAnalysis(ctx context.Context, req *GraphRequest) (Validation, error)
	ComputePrivacyUsage(ctx context.Context, req *GraphRequest) ([]privacy.Usage, error)
	ComputeRelease(ctx context.Context, req *ComputeReleaseRequest) (Release, error)
	GenerateReport(ctx context.Context, req *GraphRequest) (string, error)
	GetProperties(ctx context.Context, req *GraphRequest) (map[NodeID]PropertySet, error)
	AccuracyToPrivacyUsage(ctx context.Context, req *AccuracyToPrivacyUsageRequest) ([]privacy.Usage, error)
	PrivacyUsageToAccuracy(ctx context.Context, req *PrivacyUsageToAccuracyRequest) ([]privacy.Accuracy, error)
}

// Handler turns one request payload into one response payload. Failures
// are encoded in the response, never returned.
type Handler interface {
	Handle(ctx context.Context, request []byte) []byte
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, request []byte) []byte

// Handle implements Handler.
func (f HandlerFunc) Handle(ctx context.Context, request []byte) []byte {
	return f(ctx, request)
}

// DispatcherOption configures a dispatcher.
type DispatcherOption func(*dispatcher)

// WithDispatcherLogger sets the logger for failed engine calls. The
// default is slog.Default().
func WithDispatcherLogger(l *slog.Logger) DispatcherOption {
	return func(d *dispatcher) {
		d.logger = l
	}
}

// NewDispatcher returns a Handler that decodes envelopes and routes them to e.
func NewDispatcher(e Engine, opts ...DispatcherOption) Handler {
	d := &dispatcher{engine: e, logger: slog.Default()}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

type dispatcher struct {
	engine Engine
	logger *slog.Logger
}

func (d *dispatcher) Handle(ctx context.Context, payload []byte) []byte {
	var req Request
	if err := json.Unmarshal(payload, &req); err != nil {
		return errorResponse(fmt.Errorf("decode request: %w", err))
	}

	var (
		data any
		err  error
	)
	switch req.Method {
	case MethodValidateAnalysis:
		data, err = dispatch(ctx, req.Body, d.engine.ValidateAnalysis)
	case MethodComputePrivacyUsage:
		data, err = dispatch(ctx, req.Body, d.engine.ComputePrivacyUsage)
	case MethodComputeRelease:
		data, err = dispatch(ctx, req.Body, d.engine.ComputeRelease)
	case MethodGenerateReport:
		data, err = dispatch(ctx, req.Body, d.engine.GenerateReport)
	case MethodGetProperties:
		data, err = dispatch(ctx, req.Body, d.engine.GetProperties)
	case MethodAccuracyToPrivacyUsage:
		data, err = dispatch(ctx, req.Body, d.engine.AccuracyToPrivacyUsage)
	case MethodPrivacyUsageToAccuracy:
		data, err = dispatch(ctx, req.Body, d.engine.PrivacyUsageToAccuracy)
	default:
		err = fmt.Errorf("unknown method %q", req.Method)
	}
	if err != nil {
		d.logger.Debug("engine call failed", "method", req.Method, "error", err)
		return errorResponse(err)
	}

	encoded, err := json.Marshal(data)
	if err != nil {
		return errorResponse(fmt.Errorf("encode %s response: %w", req.Method, err))
	}
	out, err := json.Marshal(Response{Data: encoded})
	if err != nil {
		return errorResponse(err)
	}
	return out
}

func dispatch[Req, Resp any](ctx context.Context, body json.RawMessage, fn func(context.Context, *Req) (Resp, error)) (any, error) {
	var req Req
	if err := json.Unmarshal(body, &req); err != nil {
		return nil, fmt.Errorf("decode body: %w", err)
	}
	return fn(ctx, &req)
}

func errorResponse(err error) []byte {
	// Response and ErrorBody hold only strings, so Marshal cannot fail.
	out, _ := json.Marshal(Response{Error: &ErrorBody{Message: err.Error()}})
	return out
}

// Serve answers frames from r on w until r ends cleanly or ctx is done.
func Serve(ctx context.Context, r io.Reader, w io.Writer, h Handler) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		payload, err := ReadFrame(r)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		if err := WriteFrame(w, h.Handle(ctx, payload)); err != nil {
			return err
		}
	}
}
