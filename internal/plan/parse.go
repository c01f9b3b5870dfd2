package plan

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"gopkg.in/yaml.v3"
)

//go:embed schema.cue
var schemaSource []byte

// Parse decodes and validates a plan.
func Parse(data []byte, f Format) (*Plan, error) {
	return parse("plan."+f.String(), data, f)
}

func parse(filename string, data []byte, f Format) (*Plan, error) {
	switch f {
	case FormatYAML:
	case FormatCUE:
		raw, err := compileCUE(filename, data)
		if err != nil {
			return nil, err
		}
		data = raw
	default:
		return nil, &Error{Code: ErrCodeFormat, Message: fmt.Sprintf("unsupported plan format %s", f)}
	}

	p, err := decode(data)
	if err != nil {
		return nil, err
	}
	if err := Validate(p); err != nil {
		return nil, err
	}
	return p, nil
}

// decode reads a YAML or JSON document, rejecting unknown fields.
func decode(data []byte) (*Plan, error) {
	var p Plan
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&p); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, &Error{Code: ErrCodeParse, Message: "empty plan"}
		}
		return nil, &Error{Code: ErrCodeParse, Message: "failed to parse plan", Err: err}
	}
	return &p, nil
}

// compileCUE checks a CUE plan against #Plan and exports it as JSON.
func compileCUE(filename string, data []byte) ([]byte, error) {
	ctx := cuecontext.New()
	schema := ctx.CompileBytes(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return nil, fmt.Errorf("compile plan schema: %w", err)
	}

	v := ctx.CompileBytes(data, cue.Filename(filename))
	if err := v.Err(); err != nil {
		return nil, cueError(ErrCodeParse, "failed to compile CUE plan", err)
	}
	v = schema.LookupPath(cue.ParsePath("#Plan")).Unify(v)
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return nil, cueError(ErrCodeSchema, "plan does not match schema", err)
	}

	raw, err := v.MarshalJSON()
	if err != nil {
		return nil, cueError(ErrCodeSchema, "failed to export CUE plan", err)
	}
	return raw, nil
}

func cueError(code, msg string, err error) *Error {
	pe := &Error{Code: code, Message: msg, Err: err}
	if errs := cueerrors.Errors(err); len(errs) > 0 {
		pe.Pos = errs[0].Position()
	}
	return pe
}
