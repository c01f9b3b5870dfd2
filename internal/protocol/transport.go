package protocol

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"sync"
	"sync/atomic"
)

// Transport carries one request payload to the engine and returns its
// response payload.
type Transport interface {
	RoundTrip(ctx context.Context, request []byte) ([]byte, error)
	Close() error
}

// ErrTransportBroken is returned by a StreamTransport after an exchange was
// abandoned midway. The stream can no longer be trusted to be in sync.
var ErrTransportBroken = errors.New("transport broken by an abandoned exchange")

// Loopback returns an in-process transport that frames each exchange
// exactly as a stream would and hands it to h.
func Loopback(h Handler) Transport {
	return &loopback{handler: h}
}

type loopback struct {
	handler Handler
}

func (l *loopback) RoundTrip(ctx context.Context, request []byte) ([]byte, error) {
	var in bytes.Buffer
	if err := WriteFrame(&in, request); err != nil {
		return nil, err
	}
	payload, err := ReadFrame(&in)
	if err != nil {
		return nil, err
	}

	var out bytes.Buffer
	if err := WriteFrame(&out, l.handler.Handle(ctx, payload)); err != nil {
		return nil, err
	}
	return ReadFrame(&out)
}

func (l *loopback) Close() error { return nil }

// StreamTransport speaks frames over a reader/writer pair, one exchange at
// a time.
//
// The protocol has no cancellation, so a context that ends mid-exchange
// abandons the exchange and marks the transport broken; every later call
// fails with ErrTransportBroken.
type StreamTransport struct {
	mu     sync.Mutex
	r      *bufio.Reader
	w      io.Writer
	closer io.Closer
	broken bool
	logger atomic.Pointer[slog.Logger]
}

// NewStreamTransport returns a transport over r and w. closer, if non-nil,
// is called by Close.
func NewStreamTransport(r io.Reader, w io.Writer, closer io.Closer) *StreamTransport {
	return &StreamTransport{r: bufio.NewReader(r), w: w, closer: closer}
}

// SetLogger sets the logger for transport events and engine stderr.
// NewClient hands its logger to the transport this way.
func (s *StreamTransport) SetLogger(l *slog.Logger) {
	s.logger.Store(l)
}

func (s *StreamTransport) log() *slog.Logger {
	if l := s.logger.Load(); l != nil {
		return l
	}
	return slog.Default()
}

type exchangeResult struct {
	payload []byte
	err     error
}

// RoundTrip implements Transport.
func (s *StreamTransport) RoundTrip(ctx context.Context, request []byte) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.broken {
		return nil, ErrTransportBroken
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	done := make(chan exchangeResult, 1)
	go func() {
		if err := WriteFrame(s.w, request); err != nil {
			done <- exchangeResult{err: err}
			return
		}
		payload, err := ReadFrame(s.r)
		if errors.Is(err, io.EOF) {
			err = fmt.Errorf("engine closed the stream: %w", io.ErrUnexpectedEOF)
		}
		done <- exchangeResult{payload: payload, err: err}
	}()

	select {
	case res := <-done:
		if res.err != nil {
			s.broken = true
		}
		return res.payload, res.err
	case <-ctx.Done():
		s.broken = true
		s.log().Warn("abandoning engine exchange", "error", ctx.Err())
		return nil, ctx.Err()
	}
}

// Close implements Transport.
func (s *StreamTransport) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer.Close()
}

// StartProcess launches an engine executable that serves frames on its
// standard input and output, and returns a transport connected to it.
// Closing the transport closes the engine's stdin and waits for it to exit.
// logger receives process events and engine stderr until a client sets its
// own; nil means slog.Default().
func StartProcess(ctx context.Context, logger *slog.Logger, path string, args ...string) (*StreamTransport, error) {
	if logger == nil {
		logger = slog.Default()
	}
	cmd := exec.CommandContext(ctx, path, args...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("engine stdin: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("engine stdout: %w", err)
	}
	t := NewStreamTransport(stdout, stdin, &process{cmd: cmd, stdin: stdin})
	t.SetLogger(logger)
	cmd.Stderr = &stderrLog{path: path, transport: t}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start engine %s: %w", path, err)
	}
	logger.Info("engine started", "path", path, "pid", cmd.Process.Pid)
	return t, nil
}

type process struct {
	cmd   *exec.Cmd
	stdin io.Closer
	once  sync.Once
	err   error
}

func (p *process) Close() error {
	p.once.Do(func() {
		if err := p.stdin.Close(); err != nil {
			p.err = err
		}
		if err := p.cmd.Wait(); err != nil && p.err == nil {
			p.err = fmt.Errorf("engine exit: %w", err)
		}
	})
	return p.err
}

// stderrLog forwards engine stderr lines to the logger.
type stderrLog struct {
	path      string
	transport *StreamTransport
	buf       []byte
}

func (l *stderrLog) Write(p []byte) (int, error) {
	l.buf = append(l.buf, p...)
	for {
		i := bytes.IndexByte(l.buf, '\n')
		if i < 0 {
			break
		}
		l.transport.log().Debug("engine stderr", "path", l.path, "line", string(l.buf[:i]))
		l.buf = l.buf[i+1:]
	}
	return len(p), nil
}
