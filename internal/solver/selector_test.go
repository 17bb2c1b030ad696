package solver

import "testing"

func TestChoosePriority(t *testing.T) {
	cases := []struct {
		name string
		sig  Signature
		want Kind
	}{
		{"pure network wins", Signature{PureNetwork: true, HasIntegrality: true}, KindNetwork},
		{"linear continuous", Signature{}, KindMILP},
		{"linear integer", Signature{HasIntegrality: true}, KindMILP},
		{"convex quadratic", Signature{HasQuadratic: true, QuadConvex: true}, KindQuadratic},
		{"nonconvex quadratic", Signature{HasQuadratic: true}, KindNonlinear},
		{"quadratic with integers", Signature{HasQuadratic: true, QuadConvex: true, HasIntegrality: true}, KindNonlinear},
	}
	for _, tc := range cases {
		if got := Choose(tc.sig); got != tc.want {
			t.Errorf("%s: Choose(%+v) = %v, want %v", tc.name, tc.sig, got, tc.want)
		}
	}
}

func TestChooseIsPure(t *testing.T) {
	sig := Signature{HasQuadratic: true, QuadConvex: true}
	first := Choose(sig)
	for i := 0; i < 10; i++ {
		if got := Choose(sig); got != first {
			t.Fatalf("Choose changed answer on repeat call: %v then %v", first, got)
		}
	}
}

func TestParseKind(t *testing.T) {
	if _, err := ParseKind("milp"); err != nil {
		t.Errorf("milp should parse: %v", err)
	}
	if _, err := ParseKind("simplex"); err == nil {
		t.Error("unknown kind should fail to parse")
	}
}

func TestSignatureOf(t *testing.T) {
	m := &Model{
		Variables: []Variable{
			{Name: "x", Type: Binary},
			{Name: "y", Type: Continuous, Upper: 10},
		},
		Objective: Objective{Terms: []Term{{Var: "x", Coef: 1}}},
	}
	sig := SignatureOf(m)
	if !sig.HasIntegrality {
		t.Error("binary variable should set HasIntegrality")
	}
	if sig.HasQuadratic {
		t.Error("linear objective should not set HasQuadratic")
	}
}

func TestSignatureConvexQuadratic(t *testing.T) {
	// minimize x^2 + y^2 is convex
	m := &Model{
		Variables: []Variable{
			{Name: "x", Type: Continuous, Lower: -1, Upper: 1},
			{Name: "y", Type: Continuous, Lower: -1, Upper: 1},
		},
		Objective: Objective{Quad: []QuadTerm{
			{I: "x", J: "x", Coef: 1},
			{I: "y", J: "y", Coef: 1},
		}},
	}
	sig := SignatureOf(m)
	if !sig.HasQuadratic || !sig.QuadConvex {
		t.Errorf("x^2+y^2 should be flagged convex quadratic, got %+v", sig)
	}

	// minimize -x^2 is concave, so not convex programming
	m.Objective.Quad = []QuadTerm{{I: "x", J: "x", Coef: -1}}
	if sig = SignatureOf(m); sig.QuadConvex {
		t.Error("-x^2 under minimization must not be flagged convex")
	}
}
