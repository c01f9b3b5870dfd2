package plan

import (
	"errors"
	"fmt"
	"path"
	"strings"

	"cuelang.org/go/cue/token"

	"github.com/roach88/dpgraph/internal/privacy"
)

// Plan is a declarative analysis.
type Plan struct {
	Name        string `yaml:"name" json:"name" validate:"required"`
	Description string `yaml:"description,omitempty" json:"description,omitempty"`

	Privacy     Privacy `yaml:"privacy,omitempty" json:"privacy,omitempty"`
	Dynamic     bool    `yaml:"dynamic,omitempty" json:"dynamic,omitempty"`
	Eager       bool    `yaml:"eager,omitempty" json:"eager,omitempty"`
	FilterLevel string  `yaml:"filter_level,omitempty" json:"filter_level,omitempty" validate:"omitempty,oneof=public public_and_prior all"`

	Datasets []Dataset `yaml:"datasets,omitempty" json:"datasets,omitempty" validate:"dive"`
	Nodes    []Node    `yaml:"nodes" json:"nodes" validate:"required,min=1,dive"`
}

// Privacy is the privacy definition of a plan. Empty fields take the
// defaults of privacy.DefaultDefinition.
type Privacy struct {
	Distance    string `yaml:"distance,omitempty" json:"distance,omitempty" validate:"omitempty,oneof=pure approximate"`
	Neighboring string `yaml:"neighboring,omitempty" json:"neighboring,omitempty" validate:"omitempty,oneof=add_remove substitute"`
}

// Dataset declares a data source. Exactly one of Path and Value is set,
// and at least one of ColumnNames and NumColumns.
type Dataset struct {
	Name        string   `yaml:"name" json:"name" validate:"required,identifier"`
	Path        string   `yaml:"path,omitempty" json:"path,omitempty"`
	Value       any      `yaml:"value,omitempty" json:"value,omitempty"`
	Format      string   `yaml:"format,omitempty" json:"format,omitempty" validate:"omitempty,oneof=array jagged hashmap"`
	ColumnNames []string `yaml:"column_names,omitempty" json:"column_names,omitempty" validate:"dive,required"`
	NumColumns  int64    `yaml:"num_columns,omitempty" json:"num_columns,omitempty" validate:"gte=0"`
	Public      bool     `yaml:"public,omitempty" json:"public,omitempty"`
	NoHeader    bool     `yaml:"no_header,omitempty" json:"no_header,omitempty"`
}

// Node declares one component.
type Node struct {
	Name string `yaml:"name" json:"name" validate:"required,identifier"`
	// Op is a display name ("DPMean") or wire variant ("dp_mean").
	Op string `yaml:"op" json:"op" validate:"required,operation"`

	// Refs maps argument names to earlier datasets or nodes.
	Refs map[string]string `yaml:"refs,omitempty" json:"refs,omitempty"`
	// Args maps argument names to literal values.
	Args        map[string]any `yaml:"args,omitempty" json:"args,omitempty"`
	Options     map[string]any `yaml:"options,omitempty" json:"options,omitempty"`
	Constraints map[string]any `yaml:"constraints,omitempty" json:"constraints,omitempty"`

	PrivacyUsage []Usage `yaml:"privacy_usage,omitempty" json:"privacy_usage,omitempty" validate:"dive"`
	Mechanism    string  `yaml:"mechanism,omitempty" json:"mechanism,omitempty"`
}

// Usage is a privacy budget. Under the pure distance Delta must be zero.
type Usage struct {
	Epsilon float64 `yaml:"epsilon" json:"epsilon" validate:"gt=0"`
	Delta   float64 `yaml:"delta,omitempty" json:"delta,omitempty" validate:"gte=0,lt=1"`
}

// Definition returns the privacy definition the plan declares.
func (p *Plan) Definition() (privacy.Definition, error) {
	def := privacy.DefaultDefinition()
	if p.Privacy.Distance != "" {
		if err := def.Distance.UnmarshalText([]byte(p.Privacy.Distance)); err != nil {
			return def, err
		}
	}
	if p.Privacy.Neighboring != "" {
		if err := def.Neighboring.UnmarshalText([]byte(p.Privacy.Neighboring)); err != nil {
			return def, err
		}
	}
	return def, nil
}

// usages converts the declared budget for the given distance.
func (n *Node) usages(d privacy.Distance) ([]privacy.Usage, error) {
	out := make([]privacy.Usage, 0, len(n.PrivacyUsage))
	for i, u := range n.PrivacyUsage {
		var usage privacy.Usage
		switch d {
		case privacy.Pure:
			if u.Delta != 0 {
				return nil, fmt.Errorf("privacy_usage[%d]: delta must be zero under the pure distance", i)
			}
			usage = privacy.PureUsage(u.Epsilon)
		default:
			usage = privacy.ApproximateUsage(u.Epsilon, u.Delta)
		}
		if err := usage.Validate(); err != nil {
			return nil, fmt.Errorf("privacy_usage[%d]: %w", i, err)
		}
		out = append(out, usage)
	}
	return out, nil
}

// Format is the source language of a plan.
type Format uint8

const (
	// FormatYAML also reads JSON documents.
	FormatYAML Format = iota
	FormatCUE
)

func (f Format) String() string {
	switch f {
	case FormatYAML:
		return "yaml"
	case FormatCUE:
		return "cue"
	default:
		return fmt.Sprintf("Format(%d)", uint8(f))
	}
}

// FormatFor picks the format from the extension of a path or URL.
func FormatFor(location string) (Format, error) {
	switch ext := strings.ToLower(path.Ext(location)); ext {
	case ".yaml", ".yml", ".json":
		return FormatYAML, nil
	case ".cue":
		return FormatCUE, nil
	default:
		return 0, &Error{Code: ErrCodeFormat, Message: fmt.Sprintf("unsupported plan extension %q: must be .yaml, .yml, .json or .cue", ext)}
	}
}

// Error code constants.
const (
	ErrCodeFormat    = "P001" // Unsupported plan format
	ErrCodeLoad      = "P002" // Plan could not be read
	ErrCodeParse     = "P003" // Syntax error or unknown field
	ErrCodeSchema    = "P004" // CUE schema violation
	ErrCodeInvalid   = "P005" // Field validation failed
	ErrCodeReference = "P006" // Unknown, duplicate or forward reference
	ErrCodeBuild     = "P007" // Graph construction failed
)

// Error is a plan loading, validation or build failure.
type Error struct {
	Code string
	// Field locates the failure, e.g. "nodes[2].refs.data".
	Field   string
	Message string
	// Pos is set for CUE sources.
	Pos token.Pos
	Err error
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Pos.IsValid() {
		fmt.Fprintf(&b, "%s:%d:%d: ", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column())
	}
	b.WriteString(e.Code)
	b.WriteString(": ")
	if e.Field != "" {
		b.WriteString(e.Field)
		b.WriteString(": ")
	}
	b.WriteString(e.Message)
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// IsError reports whether err is a plan *Error with the given code.
func IsError(err error, code string) bool {
	var pe *Error
	return errors.As(err, &pe) && pe.Code == code
}
