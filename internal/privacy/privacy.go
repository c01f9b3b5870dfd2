package privacy

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
)

// Distance is the privacy metric an analysis is validated against.
type Distance uint8

const (
	// Approximate is (epsilon, delta)-differential privacy.
	Approximate Distance = iota
	// Pure is epsilon-differential privacy.
	Pure
)

var distanceNames = [...]string{
	Approximate: "approximate",
	Pure:        "pure",
}

func (d Distance) String() string {
	if int(d) >= len(distanceNames) {
		return fmt.Sprintf("Distance(%d)", uint8(d))
	}
	return distanceNames[d]
}

// MarshalText implements encoding.TextMarshaler.
func (d Distance) MarshalText() ([]byte, error) {
	if int(d) >= len(distanceNames) {
		return nil, fmt.Errorf("invalid distance %d", uint8(d))
	}
	return []byte(distanceNames[d]), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Distance) UnmarshalText(text []byte) error {
	for i, name := range distanceNames {
		if name == string(text) {
			*d = Distance(i)
			return nil
		}
	}
	return fmt.Errorf("unknown distance %q: must be pure or approximate", text)
}

// Neighboring is the relation between adjacent datasets.
type Neighboring uint8

const (
	// Substitute neighbors differ by replacing one record.
	Substitute Neighboring = iota
	// AddRemove neighbors differ by adding or removing one record.
	AddRemove
)

var neighboringNames = [...]string{
	Substitute: "substitute",
	AddRemove:  "add_remove",
}

func (n Neighboring) String() string {
	if int(n) >= len(neighboringNames) {
		return fmt.Sprintf("Neighboring(%d)", uint8(n))
	}
	return neighboringNames[n]
}

// MarshalText implements encoding.TextMarshaler.
func (n Neighboring) MarshalText() ([]byte, error) {
	if int(n) >= len(neighboringNames) {
		return nil, fmt.Errorf("invalid neighboring %d", uint8(n))
	}
	return []byte(neighboringNames[n]), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (n *Neighboring) UnmarshalText(text []byte) error {
	for i, name := range neighboringNames {
		if name == string(text) {
			*n = Neighboring(i)
			return nil
		}
	}
	return fmt.Errorf("unknown neighboring %q: must be add_remove or substitute", text)
}

// Definition is the immutable privacy definition of an analysis.
// The zero value is approximate distance over substitute neighbors.
type Definition struct {
	Distance    Distance    `json:"distance"`
	Neighboring Neighboring `json:"neighboring"`
}

// DefaultDefinition returns approximate distance over substitute neighbors.
func DefaultDefinition() Definition {
	return Definition{Distance: Approximate, Neighboring: Substitute}
}

func (d Definition) String() string {
	return d.Distance.String() + "/" + d.Neighboring.String()
}

// Usage is the budget spent by one element of a release.
// Delta is always zero for pure usages.
type Usage struct {
	Distance Distance
	Epsilon  float64
	Delta    float64
}

// PureUsage returns an epsilon-only usage.
func PureUsage(epsilon float64) Usage {
	return Usage{Distance: Pure, Epsilon: epsilon}
}

// ApproximateUsage returns an (epsilon, delta) usage.
func ApproximateUsage(epsilon, delta float64) Usage {
	return Usage{Distance: Approximate, Epsilon: epsilon, Delta: delta}
}

func (u Usage) String() string {
	if u.Distance == Pure {
		return fmt.Sprintf("pure(ε=%g)", u.Epsilon)
	}
	return fmt.Sprintf("approximate(ε=%g, δ=%g)", u.Epsilon, u.Delta)
}

// Validate reports whether the budget is finite and non-negative, with
// delta below one.
func (u Usage) Validate() error {
	if math.IsNaN(u.Epsilon) || math.IsInf(u.Epsilon, 0) || u.Epsilon < 0 {
		return fmt.Errorf("epsilon must be finite and non-negative, got %g", u.Epsilon)
	}
	if u.Distance == Pure {
		if u.Delta != 0 {
			return fmt.Errorf("pure usage cannot carry delta %g", u.Delta)
		}
		return nil
	}
	if math.IsNaN(u.Delta) || u.Delta < 0 || u.Delta >= 1 {
		return fmt.Errorf("delta must be in [0, 1), got %g", u.Delta)
	}
	return nil
}

type wireUsage struct {
	Pure        *wirePure        `json:"pure,omitempty"`
	Approximate *wireApproximate `json:"approximate,omitempty"`
}

type wirePure struct {
	Epsilon float64 `json:"epsilon"`
}

type wireApproximate struct {
	Epsilon float64 `json:"epsilon"`
	Delta   float64 `json:"delta"`
}

// MarshalJSON implements json.Marshaler using the tagged form
// {"pure":{"epsilon":e}} or {"approximate":{"epsilon":e,"delta":d}}.
func (u Usage) MarshalJSON() ([]byte, error) {
	if err := u.Validate(); err != nil {
		return nil, err
	}
	switch u.Distance {
	case Pure:
		return json.Marshal(wireUsage{Pure: &wirePure{Epsilon: u.Epsilon}})
	case Approximate:
		return json.Marshal(wireUsage{Approximate: &wireApproximate{Epsilon: u.Epsilon, Delta: u.Delta}})
	default:
		return nil, fmt.Errorf("invalid distance %d", uint8(u.Distance))
	}
}

// UnmarshalJSON implements json.Unmarshaler.
func (u *Usage) UnmarshalJSON(data []byte) error {
	var w wireUsage
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	switch {
	case w.Pure != nil && w.Approximate == nil:
		*u = PureUsage(w.Pure.Epsilon)
	case w.Approximate != nil && w.Pure == nil:
		*u = ApproximateUsage(w.Approximate.Epsilon, w.Approximate.Delta)
	default:
		return errors.New("privacy usage must set exactly one of pure, approximate")
	}
	return u.Validate()
}

// Broadcast builds the list form of a privacy usage. Either slice may have
// length one, in which case it is repeated to the length of the other. A nil
// delta yields pure usages.
func Broadcast(epsilon, delta []float64) ([]Usage, error) {
	if len(epsilon) == 0 {
		return nil, errors.New("broadcast: epsilon must not be empty")
	}
	if delta == nil {
		out := make([]Usage, len(epsilon))
		for i, e := range epsilon {
			out[i] = PureUsage(e)
		}
		return out, validateAll(out)
	}

	n := max(len(epsilon), len(delta))
	if (len(epsilon) != 1 && len(epsilon) != n) || (len(delta) != 1 && len(delta) != n) {
		return nil, fmt.Errorf("broadcast: cannot align %d epsilons with %d deltas", len(epsilon), len(delta))
	}
	out := make([]Usage, n)
	for i := range out {
		out[i] = ApproximateUsage(epsilon[min(i, len(epsilon)-1)], delta[min(i, len(delta)-1)])
	}
	return out, validateAll(out)
}

func validateAll(usages []Usage) error {
	for i, u := range usages {
		if err := u.Validate(); err != nil {
			return fmt.Errorf("usage[%d]: %w", i, err)
		}
	}
	return nil
}

// Sum composes usages under basic composition.
func Sum(usages ...Usage) (epsilon, delta float64) {
	for _, u := range usages {
		epsilon += u.Epsilon
		delta += u.Delta
	}
	return epsilon, delta
}

// Accuracy is an error bound that holds with probability 1 - Alpha.
type Accuracy struct {
	Value float64 `json:"value"`
	Alpha float64 `json:"alpha"`
}

// Validate reports whether alpha is a probability and the bound is positive.
func (a Accuracy) Validate() error {
	if !(a.Alpha > 0 && a.Alpha < 1) {
		return fmt.Errorf("alpha must be in (0, 1), got %g", a.Alpha)
	}
	if !(a.Value > 0) || math.IsInf(a.Value, 0) {
		return fmt.Errorf("accuracy must be positive and finite, got %g", a.Value)
	}
	return nil
}

// FilterLevel controls how much of the evaluated graph the engine returns.
// It never changes validity.
type FilterLevel uint8

const (
	// FilterPublic returns only public values.
	FilterPublic FilterLevel = iota
	// FilterPublicAndPrior also returns values that were known before the release.
	FilterPublicAndPrior
	// FilterAll returns every evaluated value. Intended for debugging.
	FilterAll
)

var filterLevelNames = [...]string{
	FilterPublic:         "public",
	FilterPublicAndPrior: "public_and_prior",
	FilterAll:            "all",
}

func (f FilterLevel) String() string {
	if int(f) >= len(filterLevelNames) {
		return fmt.Sprintf("FilterLevel(%d)", uint8(f))
	}
	return filterLevelNames[f]
}

// ParseFilterLevel returns the FilterLevel named s.
func ParseFilterLevel(s string) (FilterLevel, error) {
	for i, name := range filterLevelNames {
		if name == s {
			return FilterLevel(i), nil
		}
	}
	return 0, fmt.Errorf("unknown filter level %q", s)
}

// MarshalText implements encoding.TextMarshaler.
func (f FilterLevel) MarshalText() ([]byte, error) {
	if int(f) >= len(filterLevelNames) {
		return nil, fmt.Errorf("invalid filter level %d", uint8(f))
	}
	return []byte(filterLevelNames[f]), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (f *FilterLevel) UnmarshalText(text []byte) error {
	parsed, err := ParseFilterLevel(string(text))
	if err != nil {
		return err
	}
	*f = parsed
	return nil
}
