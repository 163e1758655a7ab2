package mapping

import (
	"image/color"
	"image/png"
	"io"
	"math"

	"github.com/tdewolff/canvas"
	"github.com/tdewolff/canvas/renderers/rasterizer"
	"github.com/tdewolff/canvas/renderers/svg"
)

var (
	coneFill      = color.RGBA{255, 140, 0, 255}
	coneOutline   = color.RGBA{120, 60, 0, 255}
	lineStroke    = color.RGBA{30, 90, 200, 255}
	inflationEdge = color.RGBA{200, 0, 0, 255}
)

// ObstacleRenderer draws the fused obstacle set as vector graphics. One world
// meter maps to Scale canvas millimeters.
type ObstacleRenderer struct {
	Cones      []ConeObstacle
	Lines      []Spline
	Inflation  float64 // safety buffer drawn as a dashed outline; 0 disables
	HalfWidth  float64 // line half-width in meters
	Scale      float64 // canvas mm per world meter
	Padding    float64 // canvas mm around the drawing
	Spacing    float64 // line sampling spacing in meters
	Resolution canvas.Resolution
}

// NewObstacleRenderer creates a renderer for a manager's current obstacles
func NewObstacleRenderer(cones []ConeObstacle, lines []Spline, cfg ManagerConfig) *ObstacleRenderer {
	return &ObstacleRenderer{
		Cones:      cones,
		Lines:      lines,
		Inflation:  cfg.ObstacleInflationBuffer,
		HalfWidth:  cfg.LineHalfWidth,
		Scale:      100.0, // 1m -> 10cm on the canvas
		Padding:    20.0,
		Spacing:    cfg.OccGridCellSize / 2,
		Resolution: canvas.DPI(96),
	}
}

// canvasRenderer is implemented by both the svg and rasterizer renderers
type canvasRenderer interface {
	RenderPath(path *canvas.Path, style canvas.Style, m canvas.Matrix)
}

// worldBounds returns the extent of every obstacle including inflation
func (r *ObstacleRenderer) worldBounds() (minX, minY, maxX, maxY float64) {
	minX, minY = math.MaxFloat64, math.MaxFloat64
	maxX, maxY = -math.MaxFloat64, -math.MaxFloat64
	grow := func(p Point, radius float64) {
		minX = math.Min(minX, p.X-radius)
		minY = math.Min(minY, p.Y-radius)
		maxX = math.Max(maxX, p.X+radius)
		maxY = math.Max(maxY, p.Y+radius)
	}
	for _, c := range r.Cones {
		grow(c.Center, c.Radius+r.Inflation)
	}
	for _, l := range r.Lines {
		for _, p := range l.SampleBySpacing(r.Spacing) {
			grow(p, r.HalfWidth+r.Inflation)
		}
	}
	if minX > maxX {
		return 0, 0, 0, 0
	}
	return
}

func (r *ObstacleRenderer) canvasSize() (width, height, minX, minY float64) {
	minX, minY, maxX, maxY := r.worldBounds()
	width = (maxX-minX)*r.Scale + 2*r.Padding
	height = (maxY-minY)*r.Scale + 2*r.Padding
	return width, height, minX, minY
}

// RenderToSVG writes the obstacles as SVG
func (r *ObstacleRenderer) RenderToSVG(w io.Writer) error {
	width, height, minX, minY := r.canvasSize()
	svgRenderer := svg.New(w, width, height, nil)
	r.renderToCanvas(svgRenderer, width, height, minX, minY)
	return svgRenderer.Close()
}

// RenderToPNG writes the obstacles as PNG
func (r *ObstacleRenderer) RenderToPNG(w io.Writer) error {
	width, height, minX, minY := r.canvasSize()
	rast := rasterizer.New(width, height, r.Resolution, canvas.DefaultColorSpace)
	r.renderToCanvas(rast, width, height, minX, minY)
	return png.Encode(w, rast)
}

func (r *ObstacleRenderer) renderToCanvas(renderer canvasRenderer, width, height, minX, minY float64) {
	bgStyle := canvas.DefaultStyle
	bgStyle.Fill = canvas.Paint{Color: canvas.White}
	renderer.RenderPath(canvas.Rectangle(width, height), bgStyle, canvas.Identity)

	toCanvas := func(p Point) (float64, float64) {
		return (p.X-minX)*r.Scale + r.Padding, (p.Y-minY)*r.Scale + r.Padding
	}

	inflationStyle := canvas.DefaultStyle
	inflationStyle.Fill = canvas.Paint{Color: canvas.Transparent}
	inflationStyle.Stroke = canvas.Paint{Color: inflationEdge}
	inflationStyle.StrokeWidth = 0.5
	inflationStyle.Dashes = []float64{2.0, 2.0}

	lineStyle := canvas.DefaultStyle
	lineStyle.Fill = canvas.Paint{Color: canvas.Transparent}
	lineStyle.Stroke = canvas.Paint{Color: lineStroke}
	lineStyle.StrokeWidth = math.Max(2*r.HalfWidth*r.Scale, 1.0)

	for _, l := range r.Lines {
		points := l.SampleBySpacing(r.Spacing)
		cp := &canvas.Path{}
		for i, p := range points {
			x, y := toCanvas(p)
			if i == 0 {
				cp.MoveTo(x, y)
			} else {
				cp.LineTo(x, y)
			}
		}
		renderer.RenderPath(cp, lineStyle, canvas.Identity)
	}

	coneStyle := canvas.DefaultStyle
	coneStyle.Fill = canvas.Paint{Color: coneFill}
	coneStyle.Stroke = canvas.Paint{Color: coneOutline}
	coneStyle.StrokeWidth = 0.5

	for _, c := range r.Cones {
		x, y := toCanvas(c.Center)
		radius := math.Max(c.Radius*r.Scale, 1.0)
		renderer.RenderPath(canvas.Circle(radius).Translate(x, y), coneStyle, canvas.Identity)
		if r.Inflation > 0 {
			outer := (c.Radius + r.Inflation) * r.Scale
			renderer.RenderPath(canvas.Circle(outer).Translate(x, y), inflationStyle, canvas.Identity)
		}
	}
}
