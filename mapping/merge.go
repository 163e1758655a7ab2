package mapping

import (
	"fmt"
	"math"
)

const (
	// mergeConvergenceThreshold stops refinement once no fused point moved
	// further than this in a round (m)
	mergeConvergenceThreshold = 1e-4

	// endpointParamEpsilon marks closest points that landed on a curve's end
	endpointParamEpsilon = 1e-6

	// residualSlack is the residual growth (m) treated as closest-point
	// search noise rather than divergence
	residualSlack = 1e-6

	// correspondenceReach scales OverlapTolerance to the largest distance at
	// which an interior closest point is still a counterpart
	correspondenceReach = 2.0

	// minOverlapShare is the share of observed samples that must run
	// alongside current or extend past its ends for the two to merge
	minOverlapShare = 0.5
)

// MergeOptions controls MergeSplines
type MergeOptions struct {
	MaxIterations        int     // refinement rounds (spline_merging_max_iters)
	ClosestMaxIterations int     // closest-point rounds per query (closest_spline_max_iters)
	Samples              int     // samples taken from each curve
	NewWeight            float64 // share of the observed line in the fused result
	OverlapTolerance     float64 // distance within which off-end samples still correspond
}

// MergeOptionsFromConfig derives merge options from a manager configuration
func MergeOptionsFromConfig(cfg ManagerConfig) MergeOptions {
	return MergeOptions{
		MaxIterations:        cfg.SplineMergingMaxIters,
		ClosestMaxIterations: cfg.ClosestSplineMaxIters,
		Samples:              cfg.SplineMergeSamples,
		NewWeight:            cfg.LineMergeWeight,
		OverlapTolerance:     cfg.LineMergingTolerance,
	}
}

// MergeResult is the fused line plus refinement diagnostics
type MergeResult struct {
	Spline     Spline
	Iterations int  // refinement rounds accepted
	Converged  bool // movement fell below the threshold before the cap
	// Residuals[0] is the initial max distance from corresponding current
	// samples to the observed line, Residuals[k] the distance after round k.
	// The sequence is non-increasing up to residualSlack.
	Residuals []float64
}

// MergeSplines fuses an observed line into the currently known line, biased
// toward the observation.
//
// Samples of current that correspond to part of observed are pulled toward
// their closest points on observed: fused = c + w(q - c). Correspondences are
// re-established from the fused positions each round, which refines q as the
// fused curve settles onto observed. Samples of current with no counterpart
// on observed are kept as they are, and samples of observed beyond either end
// of current are added so the line grows with newly seen geometry. When less
// than minOverlapShare of observed is accounted for that way, the lines
// cross or branch rather than overlap and ErrLinesDiverge is returned.
func MergeSplines(current, observed Spline, opts MergeOptions) (MergeResult, error) {
	if err := current.Validate(); err != nil {
		return MergeResult{}, fmt.Errorf("current line: %w", err)
	}
	if err := observed.Validate(); err != nil {
		return MergeResult{}, fmt.Errorf("observed line: %w", err)
	}

	cur := current.SamplePoints(opts.Samples)
	obs := observed.SamplePoints(opts.Samples)

	// Orient observed samples the same way as current
	first := ClosestPointOnSpline(current, obs[0], opts.ClosestMaxIterations)
	last := ClosestPointOnSpline(current, obs[len(obs)-1], opts.ClosestMaxIterations)
	if first.U > last.U {
		reversePoints(obs)
	}

	// Extend with observed geometry beyond either end of current
	var prefix, suffix []Point
	covered := make([]ClosestPoint, len(obs))
	for j, o := range obs {
		covered[j] = ClosestPointOnSpline(current, o, opts.ClosestMaxIterations)
	}
	for j := 0; j < len(obs) && !corresponds(covered[j], opts.OverlapTolerance) && covered[j].U <= endpointParamEpsilon; j++ {
		prefix = append(prefix, obs[j])
	}
	for j := len(obs) - 1; j >= 0 && !corresponds(covered[j], opts.OverlapTolerance) && covered[j].U >= 1-endpointParamEpsilon; j-- {
		suffix = append([]Point{obs[j]}, suffix...)
	}

	explained := len(prefix) + len(suffix)
	for _, cp := range covered {
		if corresponds(cp, opts.OverlapTolerance) {
			explained++
		}
	}
	if share := float64(explained) / float64(len(obs)); share < minOverlapShare {
		return MergeResult{}, fmt.Errorf("%w: %.0f%% of the observed line follows the known line", ErrLinesDiverge, share*100)
	}

	overlap := make([]bool, len(cur))
	corr := make([]ClosestPoint, len(cur))
	for i, c := range cur {
		corr[i] = ClosestPointOnSpline(observed, c, opts.ClosestMaxIterations)
		overlap[i] = corresponds(corr[i], opts.OverlapTolerance)
	}

	fused := make([]Point, len(cur))
	copy(fused, cur)

	result := MergeResult{Residuals: []float64{residual(corr, overlap)}}

	for iter := 1; iter <= opts.MaxIterations; iter++ {
		next := make([]Point, len(fused))
		copy(next, fused)
		nextCorr := make([]ClosestPoint, len(corr))
		copy(nextCorr, corr)

		maxMove := 0.0
		for i := range cur {
			if !overlap[i] {
				continue
			}
			target := Lerp(cur[i], corr[i].Point, opts.NewWeight)
			maxMove = math.Max(maxMove, Distance(target, fused[i]))
			next[i] = target
			nextCorr[i] = ClosestPointOnSpline(observed, target, opts.ClosestMaxIterations)
		}

		r := residual(nextCorr, overlap)
		if r > result.Residuals[len(result.Residuals)-1]+residualSlack {
			break
		}
		fused, corr = next, nextCorr
		result.Residuals = append(result.Residuals, r)
		result.Iterations = iter
		if maxMove < mergeConvergenceThreshold {
			result.Converged = true
			break
		}
	}

	points := make([]Point, 0, len(prefix)+len(fused)+len(suffix))
	points = append(points, prefix...)
	points = append(points, fused...)
	points = append(points, suffix...)

	spline, err := InterpolateSpline(points)
	if err != nil {
		return MergeResult{}, fmt.Errorf("fitting merged line: %w", err)
	}
	result.Spline = spline
	return result, nil
}

// corresponds reports whether a closest point marks a genuine counterpart:
// any point within tolerance, or an interior point of the other curve within
// correspondenceReach times tolerance
func corresponds(cp ClosestPoint, tolerance float64) bool {
	if cp.Distance <= tolerance {
		return true
	}
	interior := cp.U > endpointParamEpsilon && cp.U < 1-endpointParamEpsilon
	return interior && cp.Distance <= correspondenceReach*tolerance
}

// residual is the largest correspondence distance over overlap samples
func residual(corr []ClosestPoint, overlap []bool) float64 {
	r := 0.0
	for i, cp := range corr {
		if overlap[i] && cp.Distance > r {
			r = cp.Distance
		}
	}
	return r
}

func reversePoints(points []Point) {
	for i, j := 0, len(points)-1; i < j; i, j = i+1, j-1 {
		points[i], points[j] = points[j], points[i]
	}
}
