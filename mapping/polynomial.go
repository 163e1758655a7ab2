package mapping

// Polynomial holds coefficients in ascending order of power:
// p(t) = c[0] + c[1]t + c[2]t^2 + ...
type Polynomial []float64

// Eval evaluates the polynomial at t using Horner's method
func (p Polynomial) Eval(t float64) float64 {
	result := 0.0
	for i := len(p) - 1; i >= 0; i-- {
		result = result*t + p[i]
	}
	return result
}

// Derivative returns dp/dt
func (p Polynomial) Derivative() Polynomial {
	if len(p) <= 1 {
		return Polynomial{0}
	}
	d := make(Polynomial, len(p)-1)
	for i := 1; i < len(p); i++ {
		d[i-1] = float64(i) * p[i]
	}
	return d
}

// ComposeLinear returns q(t) = p(a + b*t)
func (p Polynomial) ComposeLinear(a, b float64) Polynomial {
	if len(p) == 0 {
		return Polynomial{}
	}
	result := make(Polynomial, len(p))
	// power holds (a + b*t)^i, starting at i = 0
	power := make(Polynomial, 1, len(p))
	power[0] = 1
	for i, c := range p {
		for k, pk := range power {
			result[k] += c * pk
		}
		if i == len(p)-1 {
			break
		}
		next := make(Polynomial, len(power)+1)
		for k, pk := range power {
			next[k] += a * pk
			next[k+1] += b * pk
		}
		power = next
	}
	return result
}

// IsFinite reports whether every coefficient is finite
func (p Polynomial) IsFinite() bool {
	for _, c := range p {
		if !isFinite(c) {
			return false
		}
	}
	return true
}

func (p Polynomial) clone() Polynomial {
	out := make(Polynomial, len(p))
	copy(out, p)
	return out
}

// PolynomialSegment is one piece of a spline, parameterized over t in [0, 1]
type PolynomialSegment struct {
	X Polynomial `json:"x"`
	Y Polynomial `json:"y"`
}

// Eval returns the point at local parameter t
func (s PolynomialSegment) Eval(t float64) Point {
	return Point{X: s.X.Eval(t), Y: s.Y.Eval(t)}
}

// Tangent returns the derivative vector at local parameter t
func (s PolynomialSegment) Tangent(t float64) Point {
	return Point{X: s.X.Derivative().Eval(t), Y: s.Y.Derivative().Eval(t)}
}

// Reverse returns the same curve traversed from t=1 to t=0
func (s PolynomialSegment) Reverse() PolynomialSegment {
	return PolynomialSegment{
		X: s.X.ComposeLinear(1, -1),
		Y: s.Y.ComposeLinear(1, -1),
	}
}
