package protocol

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// Method names one engine operation.
type Method string

const (
	MethodValidateAnalysis       Method = "validate_analysis"
	MethodComputePrivacyUsage    Method = "compute_privacy_usage"
	MethodComputeRelease         Method = "compute_release"
	MethodGenerateReport         Method = "generate_report"
	MethodGetProperties          Method = "get_properties"
	MethodAccuracyToPrivacyUsage Method = "accuracy_to_privacy_usage"
	MethodPrivacyUsageToAccuracy Method = "privacy_usage_to_accuracy"
)

// MaxFrameSize bounds a single frame payload.
const MaxFrameSize = 64 << 20

// ErrFrameTooLarge is returned for frames above MaxFrameSize.
var ErrFrameTooLarge = errors.New("frame exceeds maximum size")

// Request is the envelope of every request payload.
type Request struct {
	Method Method          `json:"method"`
	Body   json.RawMessage `json:"body"`
}

// Response is the envelope of every response payload. Exactly one of Data
// and Error is set.
type Response struct {
	Data  json.RawMessage `json:"data,omitempty"`
	Error *ErrorBody      `json:"error,omitempty"`
}

// ErrorBody carries an engine failure. Message may embed a numbered call
// stack after its first line.
type ErrorBody struct {
	Message string `json:"message"`
}

// WriteFrame writes one length-prefixed payload.
func WriteFrame(w io.Writer, payload []byte) error {
	if len(payload) > MaxFrameSize {
		return fmt.Errorf("write frame: %w (%d bytes)", ErrFrameTooLarge, len(payload))
	}
	var header [4]byte
	binary.BigEndian.PutUint32(header[:], uint32(len(payload)))
	if _, err := w.Write(header[:]); err != nil {
		return fmt.Errorf("write frame header: %w", err)
	}
	if _, err := w.Write(payload); err != nil {
		return fmt.Errorf("write frame payload: %w", err)
	}
	return nil
}

// ReadFrame reads one length-prefixed payload. It returns io.EOF only when
// the stream ends cleanly between frames.
func ReadFrame(r io.Reader) ([]byte, error) {
	var header [4]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("read frame header: %w", err)
	}
	n := binary.BigEndian.Uint32(header[:])
	if n > MaxFrameSize {
		return nil, fmt.Errorf("read frame: %w (%d bytes)", ErrFrameTooLarge, n)
	}
	payload := make([]byte, n)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, fmt.Errorf("read frame payload: %w", err)
	}
	return payload, nil
}
