package plan

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/roach88/dpgraph/internal/graph"
)

var (
	planValidate *validator.Validate
	identifierRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
)

func init() {
	planValidate = validator.New()
	planValidate.RegisterTagNameFunc(yamlName)
	_ = planValidate.RegisterValidation("identifier", validateIdentifier)
	_ = planValidate.RegisterValidation("operation", validateOperation)
}

// yamlName reports fields by their document names in validation errors.
func yamlName(fld reflect.StructField) string {
	name, _, _ := strings.Cut(fld.Tag.Get("yaml"), ",")
	if name == "-" {
		return ""
	}
	return name
}

func validateIdentifier(fl validator.FieldLevel) bool {
	return identifierRe.MatchString(fl.Field().String())
}

// validateOperation accepts component operations. Literals and datasets
// have their own plan syntax.
func validateOperation(fl validator.FieldLevel) bool {
	op, err := graph.ParseOp(fl.Field().String())
	return err == nil && op != graph.OpLiteral && op != graph.OpMaterialize
}

// Validate checks field rules, then names and references: every name is
// unique, and refs only point at datasets or nodes declared earlier.
func Validate(p *Plan) error {
	if err := planValidate.Struct(p); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			msg := fmt.Sprintf("failed %q validation", fe.Tag())
			if fe.Param() != "" {
				msg = fmt.Sprintf("failed %q validation (%s)", fe.Tag(), fe.Param())
			}
			return &Error{Code: ErrCodeInvalid, Field: strings.TrimPrefix(fe.Namespace(), "Plan."), Message: msg}
		}
		return &Error{Code: ErrCodeInvalid, Message: "invalid plan", Err: err}
	}

	def, err := p.Definition()
	if err != nil {
		return &Error{Code: ErrCodeInvalid, Field: "privacy", Message: "invalid privacy definition", Err: err}
	}

	seen := make(map[string]bool, len(p.Datasets)+len(p.Nodes))
	for i, d := range p.Datasets {
		field := fmt.Sprintf("datasets[%d]", i)
		if seen[d.Name] {
			return &Error{Code: ErrCodeReference, Field: field, Message: fmt.Sprintf("duplicate name %q", d.Name)}
		}
		if err := validateDataset(field, &d); err != nil {
			return err
		}
		seen[d.Name] = true
	}

	for i := range p.Nodes {
		n := &p.Nodes[i]
		field := fmt.Sprintf("nodes[%d]", i)
		if seen[n.Name] {
			return &Error{Code: ErrCodeReference, Field: field, Message: fmt.Sprintf("duplicate name %q", n.Name)}
		}
		for arg, ref := range n.Refs {
			if !seen[ref] {
				return &Error{Code: ErrCodeReference, Field: field + ".refs." + arg, Message: fmt.Sprintf("%q is not declared before %q", ref, n.Name)}
			}
			if _, ok := n.Args[arg]; ok {
				return &Error{Code: ErrCodeInvalid, Field: field + ".args." + arg, Message: "argument is both a ref and a literal"}
			}
		}

		op, _ := graph.ParseOp(n.Op)
		switch {
		case op.Private() && len(n.PrivacyUsage) == 0:
			return &Error{Code: ErrCodeInvalid, Field: field + ".privacy_usage", Message: fmt.Sprintf("%s needs a privacy usage", op)}
		case !op.Private() && (len(n.PrivacyUsage) > 0 || n.Mechanism != ""):
			return &Error{Code: ErrCodeInvalid, Field: field, Message: fmt.Sprintf("%s spends no budget; remove privacy_usage and mechanism", op)}
		}
		if _, err := n.usages(def.Distance); err != nil {
			return &Error{Code: ErrCodeInvalid, Field: field, Message: "invalid privacy usage", Err: err}
		}
		seen[n.Name] = true
	}
	return nil
}

func validateDataset(field string, d *Dataset) error {
	switch {
	case d.Path != "" && d.Value != nil:
		return &Error{Code: ErrCodeInvalid, Field: field, Message: "set path or value, not both"}
	case d.Path == "" && d.Value == nil:
		return &Error{Code: ErrCodeInvalid, Field: field, Message: "set path or value"}
	case len(d.ColumnNames) == 0 && d.NumColumns == 0:
		return &Error{Code: ErrCodeInvalid, Field: field, Message: "set column_names or num_columns"}
	case d.Format != "" && d.Value == nil:
		return &Error{Code: ErrCodeInvalid, Field: field + ".format", Message: "format applies to value only"}
	}
	return nil
}
