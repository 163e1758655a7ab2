package mapping

import (
	"math"
	"sort"
)

const (
	// closestSearchSamples is the number of parameter samples evaluated per
	// segment in the coarse scan and per window in each narrowing round
	closestSearchSamples = 11

	// closestConvergenceWidth is the parameter window below which the
	// search is considered converged
	closestConvergenceWidth = 1e-9

	// matchSamples is the number of representative points taken from a
	// candidate line when comparing it to a known line
	matchSamples = 11
)

// ClosestPoint is the result of a bounded closest-point search on a spline
type ClosestPoint struct {
	U          float64 // global parameter of the closest point found
	Point      Point   // the closest point found
	Distance   float64 // distance from the query point
	Iterations int     // narrowing rounds performed
	Converged  bool    // the window shrank below closestConvergenceWidth within the cap
}

// ClosestPointOnSpline searches for the point on s nearest to p. A coarse
// scan over every segment seeds the search, then each round resamples a
// window of one coarse step on either side of the best parameter. The window
// shrinks by a factor of 0.2 per round and at most maxIters rounds run, so
// work is bounded regardless of the curve's shape.
func ClosestPointOnSpline(s Spline, p Point, maxIters int) ClosestPoint {
	if len(s.Segments) == 0 {
		return ClosestPoint{Distance: math.Inf(1)}
	}

	coarse := closestSearchSamples * len(s.Segments)
	best := ClosestPoint{Distance: math.Inf(1)}
	for i := 0; i <= coarse; i++ {
		u := float64(i) / float64(coarse)
		best = closer(best, s, p, u)
	}

	step := 1.0 / float64(coarse)
	lo, hi := clampUnit(best.U-step), clampUnit(best.U+step)

	for iter := 1; iter <= maxIters; iter++ {
		if hi-lo <= closestConvergenceWidth {
			best.Converged = true
			break
		}
		for i := 0; i < closestSearchSamples; i++ {
			u := lo + (hi-lo)*float64(i)/float64(closestSearchSamples-1)
			best = closer(best, s, p, u)
		}
		step = (hi - lo) / float64(closestSearchSamples-1)
		lo, hi = clampUnit(best.U-step), clampUnit(best.U+step)
		best.Iterations = iter
	}
	if hi-lo <= closestConvergenceWidth {
		best.Converged = true
	}
	return best
}

// closer evaluates s at u and keeps whichever of best and the new sample is nearer to p
func closer(best ClosestPoint, s Spline, p Point, u float64) ClosestPoint {
	pt := s.Eval(u)
	d := Distance(pt, p)
	if d < best.Distance {
		best.U = u
		best.Point = pt
		best.Distance = d
	}
	return best
}

func clampUnit(u float64) float64 {
	return math.Max(0, math.Min(1, u))
}

// SplineDistance returns the smallest closest-point distance from a set of
// representative samples of candidate to known
func SplineDistance(known, candidate Spline, maxIters int) float64 {
	minDist := math.Inf(1)
	for _, p := range candidate.SamplePoints(matchSamples) {
		cp := ClosestPointOnSpline(known, p, maxIters)
		if cp.Distance < minDist {
			minDist = cp.Distance
		}
	}
	return minDist
}

// LineSeparation is the closest-point distance between two lines, taken
// from the representative samples of each onto the other
func LineSeparation(a, b Spline, maxIters int) float64 {
	return math.Min(SplineDistance(a, b, maxIters), SplineDistance(b, a, maxIters))
}

type lineMatch struct {
	index    int
	distance float64
}

// matchingLines returns the stored lines within tolerance of candidate,
// closest first with ties to the lower index. Index skip is left out; pass
// -1 to consider every line.
func matchingLines(lines []Spline, candidate Spline, tolerance float64, maxIters, skip int) []lineMatch {
	var matches []lineMatch
	for i, line := range lines {
		if i == skip {
			continue
		}
		if d := LineSeparation(line, candidate, maxIters); d <= tolerance {
			matches = append(matches, lineMatch{index: i, distance: d})
		}
	}
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].distance < matches[j].distance
	})
	return matches
}
