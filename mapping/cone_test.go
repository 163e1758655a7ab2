package mapping

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNearestCone(t *testing.T) {
	cones := []ConeObstacle{
		{Center: Point{0, 0}},
		{Center: Point{5, 5}},
		{Center: Point{-5, 5}},
	}

	tests := []struct {
		name     string
		query    Point
		wantIdx  int
		wantDist float64
	}{
		{"closest to origin", Point{0.3, 0.4}, 0, 0.5},
		{"closest to second", Point{4, 5}, 1, 1},
		{"tie resolves to lowest index", Point{0, 6}, 1, math.Sqrt(26)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			idx, dist := nearestCone(cones, ConeObstacle{Center: tt.query})
			assert.Equal(t, tt.wantIdx, idx)
			assert.InDelta(t, tt.wantDist, dist, 1e-12)
		})
	}

	idx, dist := nearestCone(nil, ConeObstacle{})
	assert.Equal(t, -1, idx)
	assert.True(t, math.IsInf(dist, 1))
}

func TestFuseCones(t *testing.T) {
	known := ConeObstacle{Center: Point{2, 2}, Radius: 0.1}
	observed := ConeObstacle{Center: Point{2.3, 2.1}, Radius: 0.2}

	fused := FuseCones(known, observed, 0.7)
	assertPointNear(t, Point{2.21, 2.07}, fused.Center, 1e-12)
	assert.InDelta(t, 0.17, fused.Radius, 1e-12)

	assert.Equal(t, observed, FuseCones(known, observed, 1))
}

func TestFuseCones_Idempotent(t *testing.T) {
	c := ConeObstacle{Center: Point{1.5, -3}, Radius: 0.25}
	assert.Equal(t, c, FuseCones(c, c, 0.7))
}
