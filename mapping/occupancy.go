package mapping

import (
	"fmt"
	"math"
)

// Cell values, matching the ROS occupancy grid convention
const (
	CellFree     int8 = 0
	CellOccupied int8 = 100
)

// GridInfo describes the frame of an occupancy grid
type GridInfo struct {
	Resolution float64 `json:"resolution"` // cell edge length (m)
	Width      int     `json:"width"`      // cells along x
	Height     int     `json:"height"`     // cells along y
	Origin     Point   `json:"origin"`     // world position of the corner of cell (0, 0)
}

// OccupancyGrid is a row-major grid of free/occupied cells. Cell (col, row)
// is Data[row*Width+col] and covers
// [Origin.X+col*Resolution, Origin.X+(col+1)*Resolution) along x.
type OccupancyGrid struct {
	Info GridInfo `json:"info"`
	Data []int8   `json:"data"`
}

// NewOccupancyGrid allocates an all-free grid
func NewOccupancyGrid(info GridInfo) *OccupancyGrid {
	size := 0
	if info.Width > 0 && info.Height > 0 {
		size = info.Width * info.Height
	}
	return &OccupancyGrid{Info: info, Data: make([]int8, size)}
}

// InBounds reports whether (col, row) is inside the grid
func (g *OccupancyGrid) InBounds(col, row int) bool {
	return col >= 0 && row >= 0 && col < g.Info.Width && row < g.Info.Height
}

// At returns the value of cell (col, row); out-of-bounds cells read as free
func (g *OccupancyGrid) At(col, row int) int8 {
	if !g.InBounds(col, row) {
		return CellFree
	}
	return g.Data[row*g.Info.Width+col]
}

// Set writes cell (col, row); out-of-bounds writes are ignored
func (g *OccupancyGrid) Set(col, row int, v int8) {
	if !g.InBounds(col, row) {
		return
	}
	g.Data[row*g.Info.Width+col] = v
}

// CellOf returns the cell containing p. Points outside the grid map to the
// ring of cells one step beyond its edges.
func (g *OccupancyGrid) CellOf(p Point) (col, row int) {
	col = floorIndex((p.X-g.Info.Origin.X)/g.Info.Resolution, -1, g.Info.Width)
	row = floorIndex((p.Y-g.Info.Origin.Y)/g.Info.Resolution, -1, g.Info.Height)
	return col, row
}

// floorIndex is floor(v) clamped to [lo, hi] before conversion to int
func floorIndex(v float64, lo, hi int) int {
	f := math.Floor(v)
	if f < float64(lo) {
		return lo
	}
	if f > float64(hi) {
		return hi
	}
	return int(f)
}

// CellCenter returns the world position of the center of cell (col, row)
func (g *OccupancyGrid) CellCenter(col, row int) Point {
	return Point{
		X: g.Info.Origin.X + (float64(col)+0.5)*g.Info.Resolution,
		Y: g.Info.Origin.Y + (float64(row)+0.5)*g.Info.Resolution,
	}
}

// OccupiedCount returns the number of occupied cells
func (g *OccupancyGrid) OccupiedCount() int {
	n := 0
	for _, v := range g.Data {
		if v == CellOccupied {
			n++
		}
	}
	return n
}

// InflatePoint marks as occupied every cell whose center lies within radius
// of point, together with the cell that contains point itself. Cells outside
// the grid are skipped.
func InflatePoint(grid *OccupancyGrid, point Point, radius float64) {
	if grid == nil || grid.Info.Resolution <= 0 || !point.IsFinite() {
		return
	}
	if !isFinite(radius) || radius < 0 {
		radius = 0
	}

	col, row := grid.CellOf(point)
	grid.Set(col, row, CellOccupied)

	res := grid.Info.Resolution
	w, h := grid.Info.Width, grid.Info.Height
	minCol := floorIndex((point.X-radius-grid.Info.Origin.X)/res, -1, w)
	maxCol := floorIndex((point.X+radius-grid.Info.Origin.X)/res, -1, w)
	minRow := floorIndex((point.Y-radius-grid.Info.Origin.Y)/res, -1, h)
	maxRow := floorIndex((point.Y+radius-grid.Info.Origin.Y)/res, -1, h)

	minCol = max(minCol, 0)
	minRow = max(minRow, 0)
	maxCol = min(maxCol, w-1)
	maxRow = min(maxRow, h-1)

	for r := minRow; r <= maxRow; r++ {
		for c := minCol; c <= maxCol; c++ {
			if Distance(grid.CellCenter(c, r), point) <= radius {
				grid.Data[r*grid.Info.Width+c] = CellOccupied
			}
		}
	}
}

// inflatedPoint is one rasterization primitive: a disk to mark
type inflatedPoint struct {
	center Point
	radius float64
}

// rasterPrimitives expands the obstacle set into the disks to mark, in the
// same order every time
func rasterPrimitives(cones []ConeObstacle, lines []Spline, cfg ManagerConfig) []inflatedPoint {
	var prims []inflatedPoint
	for _, c := range cones {
		prims = append(prims, inflatedPoint{center: c.Center, radius: c.Radius + cfg.ObstacleInflationBuffer})
	}
	lineRadius := cfg.LineHalfWidth + cfg.ObstacleInflationBuffer
	for _, l := range lines {
		for _, p := range l.SampleBySpacing(cfg.OccGridCellSize / 2) {
			prims = append(prims, inflatedPoint{center: p, radius: lineRadius})
		}
	}
	return prims
}

// gridInfoFor returns the configured grid frame, or the smallest cell-aligned
// frame covering every primitive
func gridInfoFor(prims []inflatedPoint, cfg ManagerConfig) (GridInfo, error) {
	res := cfg.OccGridCellSize
	if cfg.FixedGrid() {
		return GridInfo{Resolution: res, Width: cfg.GridWidth, Height: cfg.GridHeight, Origin: cfg.GridOrigin}, nil
	}
	if len(prims) == 0 {
		return GridInfo{Resolution: res}, nil
	}

	minX, minY := math.MaxFloat64, math.MaxFloat64
	maxX, maxY := -math.MaxFloat64, -math.MaxFloat64
	for _, p := range prims {
		minX = math.Min(minX, p.center.X-p.radius)
		minY = math.Min(minY, p.center.Y-p.radius)
		maxX = math.Max(maxX, p.center.X+p.radius)
		maxY = math.Max(maxY, p.center.Y+p.radius)
	}

	origin := Point{X: math.Floor(minX/res) * res, Y: math.Floor(minY/res) * res}
	width := int(math.Floor((maxX-origin.X)/res)) + 1
	height := int(math.Floor((maxY-origin.Y)/res)) + 1

	if float64(width)*float64(height) > float64(cfg.MaxGridCells) {
		return GridInfo{}, fmt.Errorf("%w: %dx%d cells exceeds limit of %d", ErrGridTooLarge, width, height, cfg.MaxGridCells)
	}
	return GridInfo{Resolution: res, Width: width, Height: height, Origin: origin}, nil
}

// Rasterize renders cones and lines into a new occupancy grid. It depends
// only on its arguments.
func Rasterize(cones []ConeObstacle, lines []Spline, cfg ManagerConfig) (*OccupancyGrid, error) {
	prims := rasterPrimitives(cones, lines, cfg)
	info, err := gridInfoFor(prims, cfg)
	if err != nil {
		return nil, err
	}
	grid := NewOccupancyGrid(info)
	for _, p := range prims {
		InflatePoint(grid, p.center, p.radius)
	}
	return grid, nil
}
