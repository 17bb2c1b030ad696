package solver

import "fmt"

// Kind names an adapter family.
type Kind string

const (
	KindNetwork   Kind = "network"
	KindMILP      Kind = "milp"
	KindQuadratic Kind = "quadratic"
	KindNonlinear Kind = "nonlinear"
)

// Signature is the normalized problem shape the selector dispatches on.
type Signature struct {
	HasIntegrality bool
	HasQuadratic   bool
	QuadConvex     bool
	PureNetwork    bool
}

// SignatureOf derives a model's signature. Convexity of quadratic terms is
// checked here once so that selection stays a pure function of the result.
func SignatureOf(m *Model) Signature {
	sig := Signature{
		HasIntegrality: m.HasIntegrality(),
		HasQuadratic:   len(m.Objective.Quad) > 0,
	}
	if sig.HasQuadratic {
		if convex, err := isConvex(m); err == nil {
			sig.QuadConvex = convex
		}
	}
	return sig
}

// Choose maps a signature to the cheapest adequate adapter family:
// pure network first, then MILP/LP for linear problems, convex quadratic,
// and the nonlinear search as the fallback.
func Choose(sig Signature) Kind {
	switch {
	case sig.PureNetwork:
		return KindNetwork
	case !sig.HasQuadratic:
		return KindMILP
	case sig.QuadConvex && !sig.HasIntegrality:
		return KindQuadratic
	default:
		return KindNonlinear
	}
}

// ParseKind validates an explicit override value.
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case KindNetwork, KindMILP, KindQuadratic, KindNonlinear:
		return Kind(s), nil
	case "":
		return "", fmt.Errorf("empty solver kind")
	default:
		return "", fmt.Errorf("unknown solver kind %q", s)
	}
}

// Registry holds one adapter per family so orchestrators receive their
// backends by injection rather than through process-wide state.
type Registry struct {
	MILP      Solver
	Quadratic Solver
	Nonlinear Solver
	Network   *NetworkSolver
}

// NewRegistry wires the default backends.
func NewRegistry() *Registry {
	return &Registry{
		MILP:      NewHighs(),
		Quadratic: NewQuad(),
		Nonlinear: NewMayflyDefault(),
		Network:   NewNetwork(),
	}
}

// For returns the adapter for a kind. KindNetwork has a dedicated surface
// and is not reachable through the generic Solver contract.
func (r *Registry) For(kind Kind) (Solver, error) {
	switch kind {
	case KindMILP:
		return r.MILP, nil
	case KindQuadratic:
		return r.Quadratic, nil
	case KindNonlinear:
		return r.Nonlinear, nil
	default:
		return nil, fmt.Errorf("no generic adapter for kind %q", kind)
	}
}

// Dispatch selects and runs the adapter for a model, honoring an explicit
// override when given.
func (r *Registry) Dispatch(m *Model, override string) (Solver, Kind, error) {
	var kind Kind
	if override != "" {
		k, err := ParseKind(override)
		if err != nil {
			return nil, "", err
		}
		kind = k
	} else {
		kind = Choose(SignatureOf(m))
	}
	s, err := r.For(kind)
	if err != nil {
		return nil, "", err
	}
	return s, kind, nil
}
