package graph

import (
	"fmt"
	"maps"
	"slices"
	"strings"
)

// Constraint suffixes, in the order their wrappers are applied.
const (
	suffixLower      = "lower"
	suffixUpper      = "upper"
	suffixCategories = "categories"
	suffixN          = "n"
)

var constraintSuffixes = []string{suffixLower, suffixUpper, suffixCategories, suffixN}

// Expand wraps each argument named by a constraint key in preprocessing
// nodes, one layer per suffix, always in this order:
//
//	<arg>_lower + <arg>_upper  ->  Impute(Clamp(arg, lower, upper))
//	<arg>_categories           ->  Clamp(arg, categories)
//	<arg>_n                    ->  Resize(arg, n)
//
// Bounds must come as a pair. Keys that do not name an argument plus one of
// these suffixes are rejected, as are one-sided bounds and values that
// cannot be lifted; all of these fail before any node is created. The expansion is purely syntactic and makes no engine
// calls. args is not modified.
func (a *Analysis) Expand(args map[string]*Node, cons Constraints) (map[string]*Node, error) {
	if err := a.checkActive(); err != nil {
		return nil, err
	}
	names := make([]string, 0, len(args))
	for name, arg := range args {
		if arg == nil {
			continue
		}
		if err := a.checkOwned(name, arg); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	slices.Sort(names)

	plans, err := planConstraints(names, cons)
	if err != nil {
		return nil, err
	}
	if err := a.checkPlans(plans); err != nil {
		return nil, err
	}
	out := make(map[string]*Node, len(names))
	for _, name := range names {
		out[name] = args[name]
	}
	if err := a.applyConstraints(out, names, plans); err != nil {
		return nil, err
	}
	return out, nil
}

// planConstraints assigns every constraint key to an argument. names must
// be sorted.
func planConstraints(names []string, cons Constraints) (map[string]map[string]any, error) {
	if len(cons) == 0 {
		return nil, nil
	}
	keys := make([]string, 0, len(cons))
	for k := range cons {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	plans := make(map[string]map[string]any)
	for _, key := range keys {
		if cons[key] == nil {
			continue
		}
		name, suffix, ok := splitConstraint(key, names)
		if !ok {
			return nil, usageErrorf(ErrCodeMalformedConstraint,
				"constraint %q does not name an argument followed by one of _%s", key, strings.Join(constraintSuffixes, ", _"))
		}
		if plans[name] == nil {
			plans[name] = make(map[string]any)
		}
		plans[name][suffix] = cons[key]
	}

	for _, name := range names {
		plan := plans[name]
		_, hasLower := plan[suffixLower]
		_, hasUpper := plan[suffixUpper]
		if hasLower != hasUpper {
			return nil, usageErrorf(ErrCodeMalformedConstraint,
				"argument %q: %s_lower and %s_upper must be supplied together", name, name, name)
		}
	}
	return plans, nil
}

// checkPlans verifies that every constraint value lifts.
func (a *Analysis) checkPlans(plans map[string]map[string]any) error {
	for _, name := range slices.Sorted(maps.Keys(plans)) {
		for _, suffix := range constraintSuffixes {
			v, ok := plans[name][suffix]
			if !ok {
				continue
			}
			if err := a.checkLiftable(v); err != nil {
				return fmt.Errorf("%s_%s: %w", name, suffix, err)
			}
		}
	}
	return nil
}

// splitConstraint finds the longest argument name that key extends with a
// known suffix.
func splitConstraint(key string, names []string) (name, suffix string, ok bool) {
	for _, candidate := range names {
		rest, found := strings.CutPrefix(key, candidate+"_")
		if !found || !slices.Contains(constraintSuffixes, rest) {
			continue
		}
		if len(candidate) > len(name) {
			name, suffix, ok = candidate, rest, true
		}
	}
	return name, suffix, ok
}

func (a *Analysis) applyConstraints(args map[string]*Node, names []string, plans map[string]map[string]any) error {
	for _, name := range names {
		plan, ok := plans[name]
		if !ok {
			continue
		}
		cur := args[name]

		if lower, ok := plan[suffixLower]; ok {
			lo, err := a.Of(lower)
			if err != nil {
				return fmt.Errorf("%s_lower: %w", name, err)
			}
			hi, err := a.Of(plan[suffixUpper])
			if err != nil {
				return fmt.Errorf("%s_upper: %w", name, err)
			}
			if cur, err = a.register(OpClamp, map[string]*Node{"data": cur, "lower": lo, "upper": hi}, nil, nil); err != nil {
				return err
			}
			if cur, err = a.register(OpImpute, map[string]*Node{"data": cur}, nil, nil); err != nil {
				return err
			}
		}

		if categories, ok := plan[suffixCategories]; ok {
			c, err := a.Of(categories)
			if err != nil {
				return fmt.Errorf("%s_categories: %w", name, err)
			}
			if cur, err = a.register(OpClamp, map[string]*Node{"data": cur, "categories": c}, nil, nil); err != nil {
				return err
			}
		}

		if n, ok := plan[suffixN]; ok {
			size, err := a.Of(n)
			if err != nil {
				return fmt.Errorf("%s_n: %w", name, err)
			}
			if cur, err = a.register(OpResize, map[string]*Node{"data": cur, "n": size}, nil, nil); err != nil {
				return err
			}
		}

		args[name] = cur
	}
	return nil
}
