package mapping

import (
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/planar"
	"github.com/paulmach/orb/simplify"
)

// SplineToLineString samples a spline into a polyline with vertices no more
// than spacing apart
func SplineToLineString(s Spline, spacing float64) orb.LineString {
	points := s.SampleBySpacing(spacing)
	ls := make(orb.LineString, len(points))
	for i, p := range points {
		ls[i] = orb.Point{p.X, p.Y}
	}
	return ls
}

// simplifyLineString drops vertices that deviate from the polyline by less
// than tolerance, keeping both endpoints
func simplifyLineString(ls orb.LineString, tolerance float64) orb.LineString {
	if len(ls) <= 2 || tolerance <= 0 {
		return ls
	}
	simplified := simplify.DouglasPeucker(tolerance).Simplify(ls.Clone())
	result, ok := simplified.(orb.LineString)
	if !ok || len(result) < 2 {
		return ls
	}
	return result
}

// ObstaclesToFeatureCollection exports the obstacle set as GeoJSON in the
// grid frame. Cones become Points with a radius property, lines become
// LineStrings simplified to a quarter of cellSize.
func ObstaclesToFeatureCollection(cones []ConeObstacle, lines []Spline, cellSize float64) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()

	for i, c := range cones {
		f := geojson.NewFeature(orb.Point{c.Center.X, c.Center.Y})
		f.ID = fmt.Sprintf("cone-%d", i)
		f.Properties["kind"] = string(KindCone)
		f.Properties["radius"] = c.Radius
		fc.Append(f)
	}

	for i, l := range lines {
		ls := simplifyLineString(SplineToLineString(l, cellSize/2), cellSize/4)
		f := geojson.NewFeature(ls)
		f.ID = fmt.Sprintf("line-%d", i)
		f.Properties["kind"] = string(KindLine)
		f.Properties["segments"] = len(l.Segments)
		f.Properties["length"] = planar.Length(ls)
		fc.Append(f)
	}

	return fc
}
