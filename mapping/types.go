package mapping

import (
	"fmt"
	"math"
)

// Point represents a 2D coordinate in the occupancy grid frame (meters)
type Point struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
}

// Distance returns the Euclidean distance between two points
func Distance(a, b Point) float64 {
	return math.Hypot(a.X-b.X, a.Y-b.Y)
}

// Lerp moves from a toward b by fraction w (0 = a, 1 = b)
func Lerp(a, b Point, w float64) Point {
	return Point{
		X: a.X + w*(b.X-a.X),
		Y: a.Y + w*(b.Y-a.Y),
	}
}

// IsFinite reports whether both coordinates are finite numbers
func (p Point) IsFinite() bool {
	return isFinite(p.X) && isFinite(p.Y)
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// ObstacleKind identifies one of the fixed obstacle kinds the manager understands
type ObstacleKind string

const (
	KindCone ObstacleKind = "cone"
	KindLine ObstacleKind = "line"
)

// Obstacle is the closed set of observations accepted by the ObstacleManager.
// It is implemented by ConeObstacle, LineObstacle and Spline only.
type Obstacle interface {
	Kind() ObstacleKind
	Validate() error
	sealed()
}

// ConeObstacle is a point-like obstacle with a circular footprint
type ConeObstacle struct {
	Center Point   `json:"center"`
	Radius float64 `json:"radius"`
}

// Kind implements Obstacle
func (c ConeObstacle) Kind() ObstacleKind { return KindCone }

func (ConeObstacle) sealed() {}

// Validate rejects cones with non-finite or negative geometry
func (c ConeObstacle) Validate() error {
	if !c.Center.IsFinite() {
		return fmt.Errorf("%w: cone center (%v, %v) is not finite", ErrInvalidObstacle, c.Center.X, c.Center.Y)
	}
	if !isFinite(c.Radius) || c.Radius < 0 {
		return fmt.Errorf("%w: cone radius %v must be finite and non-negative", ErrInvalidObstacle, c.Radius)
	}
	return nil
}

// LineObstacle is a lane line reported as y = f(x) over [XMin, XMax].
// Coefficients are in ascending order of power.
type LineObstacle struct {
	Coefficients Polynomial `json:"coefficients"`
	XMin         float64    `json:"x_min"`
	XMax         float64    `json:"x_max"`
}

// Kind implements Obstacle
func (l LineObstacle) Kind() ObstacleKind { return KindLine }

func (LineObstacle) sealed() {}

// Validate checks the x range and coefficients
func (l LineObstacle) Validate() error {
	if !isFinite(l.XMin) || !isFinite(l.XMax) {
		return fmt.Errorf("%w: line x range [%v, %v] is not finite", ErrInvalidObstacle, l.XMin, l.XMax)
	}
	if len(l.Coefficients) == 0 {
		return fmt.Errorf("%w: line has no coefficients", ErrDegenerateSpline)
	}
	if !l.Coefficients.IsFinite() {
		return fmt.Errorf("%w: line coefficients are not finite", ErrInvalidObstacle)
	}
	if l.XMax <= l.XMin {
		return fmt.Errorf("%w: line x range [%v, %v] is empty", ErrDegenerateSpline, l.XMin, l.XMax)
	}
	return nil
}

// ToSpline converts the line into an equivalent single-segment spline.
// x(t) = XMin + (XMax-XMin)t and y(t) = f(x(t)), so the conversion is exact.
func (l LineObstacle) ToSpline() Spline {
	span := l.XMax - l.XMin
	return Spline{Segments: []PolynomialSegment{{
		X: Polynomial{l.XMin, span},
		Y: l.Coefficients.ComposeLinear(l.XMin, span),
	}}}
}
