package mapping

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

const (
	// lengthSubdivisions is the number of chords used per segment when
	// approximating arc length
	lengthSubdivisions = 16

	// minSplineLength is the shortest curve accepted as an observation (m)
	minSplineLength = 1e-9

	// continuityTolerance is the largest allowed gap between consecutive segments (m)
	continuityTolerance = 1e-6
)

// Spline is an ordered, continuous sequence of polynomial segments.
// The global parameter u in [0, 1] is spread uniformly over the segments,
// so segment i covers u in [i/n, (i+1)/n].
type Spline struct {
	Segments []PolynomialSegment `json:"segments"`
}

// Kind implements Obstacle
func (s Spline) Kind() ObstacleKind { return KindLine }

func (Spline) sealed() {}

// Validate rejects empty, discontinuous, non-finite or zero-length curves
func (s Spline) Validate() error {
	if len(s.Segments) == 0 {
		return fmt.Errorf("%w: spline has no segments", ErrDegenerateSpline)
	}
	for i, seg := range s.Segments {
		if len(seg.X) == 0 || len(seg.Y) == 0 {
			return fmt.Errorf("%w: segment %d has an empty polynomial", ErrDegenerateSpline, i)
		}
		if !seg.X.IsFinite() || !seg.Y.IsFinite() {
			return fmt.Errorf("%w: segment %d has non-finite coefficients", ErrInvalidObstacle, i)
		}
		if i > 0 {
			gap := Distance(s.Segments[i-1].Eval(1), seg.Eval(0))
			if gap > continuityTolerance {
				return fmt.Errorf("%w: gap of %.6g between segments %d and %d", ErrInvalidObstacle, gap, i-1, i)
			}
		}
	}
	if s.Length() < minSplineLength {
		return fmt.Errorf("%w: spline has zero length", ErrDegenerateSpline)
	}
	return nil
}

// locate maps a global parameter onto a segment index and local parameter
func (s Spline) locate(u float64) (int, float64) {
	n := len(s.Segments)
	if u <= 0 {
		return 0, 0
	}
	if u >= 1 {
		return n - 1, 1
	}
	scaled := u * float64(n)
	idx := int(scaled)
	if idx >= n {
		idx = n - 1
	}
	return idx, scaled - float64(idx)
}

// Eval returns the point at global parameter u (clamped to [0, 1])
func (s Spline) Eval(u float64) Point {
	if len(s.Segments) == 0 {
		return Point{}
	}
	idx, t := s.locate(u)
	return s.Segments[idx].Eval(t)
}

// Start returns the first point of the curve
func (s Spline) Start() Point { return s.Eval(0) }

// End returns the last point of the curve
func (s Spline) End() Point { return s.Eval(1) }

// segmentLength approximates the arc length of one segment with chords
func segmentLength(seg PolynomialSegment) float64 {
	length := 0.0
	prev := seg.Eval(0)
	for k := 1; k <= lengthSubdivisions; k++ {
		cur := seg.Eval(float64(k) / lengthSubdivisions)
		length += Distance(prev, cur)
		prev = cur
	}
	return length
}

// Length approximates the arc length of the whole curve
func (s Spline) Length() float64 {
	total := 0.0
	for _, seg := range s.Segments {
		total += segmentLength(seg)
	}
	return total
}

// SamplePoints returns n points at uniformly spaced global parameters,
// including both endpoints. n < 2 is treated as 2.
func (s Spline) SamplePoints(n int) []Point {
	if len(s.Segments) == 0 {
		return nil
	}
	if n < 2 {
		n = 2
	}
	points := make([]Point, n)
	for i := 0; i < n; i++ {
		points[i] = s.Eval(float64(i) / float64(n-1))
	}
	return points
}

// SampleBySpacing returns points along the curve with consecutive samples no
// further apart (along the curve) than roughly spacing
func (s Spline) SampleBySpacing(spacing float64) []Point {
	if len(s.Segments) == 0 {
		return nil
	}
	if spacing <= 0 || !isFinite(spacing) {
		spacing = s.Length()
	}
	points := []Point{s.Segments[0].Eval(0)}
	for _, seg := range s.Segments {
		steps := segmentSteps(seg, spacing)
		for k := 1; k <= steps; k++ {
			points = append(points, seg.Eval(float64(k)/float64(steps)))
		}
	}
	return points
}

// segmentSteps returns how many uniform parameter steps keep every chord of
// seg within spacing. The step count follows the fastest part of the
// segment, not its average speed.
func segmentSteps(seg PolynomialSegment, spacing float64) int {
	maxChord := 0.0
	prev := seg.Eval(0)
	for k := 1; k <= lengthSubdivisions; k++ {
		cur := seg.Eval(float64(k) / lengthSubdivisions)
		maxChord = math.Max(maxChord, Distance(prev, cur))
		prev = cur
	}
	steps := int(math.Ceil(maxChord * lengthSubdivisions / spacing))
	if steps < 1 {
		steps = 1
	}
	return steps
}

// Reverse returns the same curve traversed end to start
func (s Spline) Reverse() Spline {
	n := len(s.Segments)
	out := make([]PolynomialSegment, n)
	for i, seg := range s.Segments {
		out[n-1-i] = seg.Reverse()
	}
	return Spline{Segments: out}
}

// Clone returns a deep copy so stored splines never share coefficient slices
func (s Spline) Clone() Spline {
	out := make([]PolynomialSegment, len(s.Segments))
	for i, seg := range s.Segments {
		out[i] = PolynomialSegment{X: seg.X.clone(), Y: seg.Y.clone()}
	}
	return Spline{Segments: out}
}

// InterpolateSpline builds a natural cubic spline passing through every point
// in order, one segment per consecutive pair. Each segment uses a unit-length
// local parameter, so the second derivatives M solve
//
//	M[i-1] + 4M[i] + M[i+1] = 6(P[i+1] - 2P[i] + P[i-1])
//
// with M[0] = M[n-1] = 0.
func InterpolateSpline(points []Point) (Spline, error) {
	points = dedupePoints(points)
	if len(points) < 2 {
		return Spline{}, fmt.Errorf("%w: need at least 2 distinct points, got %d", ErrDegenerateSpline, len(points))
	}
	for _, p := range points {
		if !p.IsFinite() {
			return Spline{}, fmt.Errorf("%w: interpolation point (%v, %v) is not finite", ErrInvalidObstacle, p.X, p.Y)
		}
	}

	n := len(points)
	mx := make([]float64, n)
	my := make([]float64, n)

	if interior := n - 2; interior > 0 {
		a := mat.NewDense(interior, interior, nil)
		b := mat.NewDense(interior, 2, nil)
		for i := 0; i < interior; i++ {
			a.Set(i, i, 4)
			if i > 0 {
				a.Set(i, i-1, 1)
			}
			if i < interior-1 {
				a.Set(i, i+1, 1)
			}
			prev, cur, next := points[i], points[i+1], points[i+2]
			b.Set(i, 0, 6*(next.X-2*cur.X+prev.X))
			b.Set(i, 1, 6*(next.Y-2*cur.Y+prev.Y))
		}
		var m mat.Dense
		if err := m.Solve(a, b); err != nil {
			return Spline{}, fmt.Errorf("solving spline system: %w", err)
		}
		for i := 0; i < interior; i++ {
			mx[i+1] = m.At(i, 0)
			my[i+1] = m.At(i, 1)
		}
	}

	segments := make([]PolynomialSegment, n-1)
	for i := 0; i < n-1; i++ {
		segments[i] = PolynomialSegment{
			X: cubicCoefficients(points[i].X, points[i+1].X, mx[i], mx[i+1]),
			Y: cubicCoefficients(points[i].Y, points[i+1].Y, my[i], my[i+1]),
		}
	}
	return Spline{Segments: segments}, nil
}

// cubicCoefficients returns the unit-interval cubic from p0 to p1 with
// second derivatives m0 and m1 at its ends
func cubicCoefficients(p0, p1, m0, m1 float64) Polynomial {
	return Polynomial{
		p0,
		(p1 - p0) - (2*m0+m1)/6,
		m0 / 2,
		(m1 - m0) / 6,
	}
}

// dedupePoints drops consecutive points that coincide
func dedupePoints(points []Point) []Point {
	out := make([]Point, 0, len(points))
	for _, p := range points {
		if len(out) > 0 && Distance(out[len(out)-1], p) < minSplineLength {
			continue
		}
		out = append(out, p)
	}
	return out
}
