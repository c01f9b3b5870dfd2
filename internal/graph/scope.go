package graph

// Scope tracks which analysis is active. Entering an analysis saves the
// previously active one and exiting restores it, so scopes nest.
//
// A Scope is an explicit handle rather than process-wide state: each
// goroutine building analyses uses its own. It is not safe for concurrent use.
type Scope struct {
	active *Analysis
}

// NewScope returns a scope with no active analysis.
func NewScope() *Scope {
	return &Scope{}
}

// Enter makes a the active analysis and returns the function that restores
// the previous one. Call it with defer so it runs on every exit path.
// Calling exit more than once has no further effect.
func (s *Scope) Enter(a *Analysis) (exit func()) {
	prev, prevScope := s.active, a.scope
	s.active = a
	a.scope = s
	a.logger.Debug("analysis entered")

	done := false
	return func() {
		if done {
			return
		}
		done = true
		s.active = prev
		a.scope = prevScope
		a.logger.Debug("analysis exited")
	}
}

// Within runs fn with a active and restores the previous analysis
// afterwards, including when fn returns an error or panics.
func (s *Scope) Within(a *Analysis, fn func() error) error {
	exit := s.Enter(a)
	defer exit()
	return fn()
}

// Active returns the active analysis, or nil.
func (s *Scope) Active() *Analysis {
	return s.active
}

// Of lifts v into the active analysis. See Analysis.Of.
func (s *Scope) Of(v any) (*Node, error) {
	a, err := s.require()
	if err != nil {
		return nil, err
	}
	return a.Of(v)
}

// Component registers a component in the active analysis.
// See Analysis.Component.
func (s *Scope) Component(op Op, args map[string]any, opts Options, cons Constraints) (*Node, error) {
	a, err := s.require()
	if err != nil {
		return nil, err
	}
	return a.Component(op, args, opts, cons)
}

func (s *Scope) require() (*Analysis, error) {
	if s == nil || s.active == nil {
		return nil, usageErrorf(ErrCodeNoActiveContext, "components must be created within an active analysis")
	}
	return s.active, nil
}
