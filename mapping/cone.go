package mapping

import "math"

// nearestCone returns the index of the stored cone whose center is closest
// to c, and that distance. Ties go to the lowest index; -1 is returned for
// an empty set.
func nearestCone(cones []ConeObstacle, c ConeObstacle) (int, float64) {
	bestIdx := -1
	bestDist := math.Inf(1)
	for i, known := range cones {
		d := Distance(known.Center, c.Center)
		if d < bestDist {
			bestDist = d
			bestIdx = i
		}
	}
	return bestIdx, bestDist
}

// nearestOtherCone is nearestCone for cones[idx] against the rest of the set
func nearestOtherCone(cones []ConeObstacle, idx int) (int, float64) {
	bestIdx := -1
	bestDist := math.Inf(1)
	for i, known := range cones {
		if i == idx {
			continue
		}
		d := Distance(known.Center, cones[idx].Center)
		if d < bestDist {
			bestDist = d
			bestIdx = i
		}
	}
	return bestIdx, bestDist
}

// FuseCones blends a new observation into a known cone. weight is the share
// given to the new observation, so 1 replaces the known cone outright.
func FuseCones(known, observed ConeObstacle, weight float64) ConeObstacle {
	return ConeObstacle{
		Center: Lerp(known.Center, observed.Center, weight),
		Radius: known.Radius + weight*(observed.Radius-known.Radius),
	}
}
