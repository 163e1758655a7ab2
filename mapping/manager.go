package mapping

import (
	"errors"
	"fmt"
	"log"
	"slices"
	"sync"

	"github.com/google/uuid"
)

// ManagerStats summarizes what the manager has done with its observations
type ManagerStats struct {
	SessionID     string `json:"sessionId"`
	Revision      uint64 `json:"revision"`
	Cones         int    `json:"cones"`
	Lines         int    `json:"lines"`
	ConesInserted int    `json:"conesInserted"`
	ConesMerged   int    `json:"conesMerged"`
	LinesInserted int    `json:"linesInserted"`
	LinesMerged   int    `json:"linesMerged"`
	// ConesAbsorbed and LinesAbsorbed count stored obstacles folded into a
	// neighbor that a merge moved within tolerance of them
	ConesAbsorbed int    `json:"conesAbsorbed"`
	LinesAbsorbed int    `json:"linesAbsorbed"`
	Rejected      int    `json:"rejected"`
}

// ObstacleManager fuses repeated obstacle observations into a world model
// and renders it as an occupancy grid. Every observation must already be in
// the grid frame.
//
// Stored obstacles are inserted or merged in place. A merge that moves an
// obstacle within tolerance of another stored one folds the two together,
// so no two stored cones (or mergeable lines) are ever within tolerance of
// each other. Lookups are a linear scan, which suits tens of obstacles.
type ObstacleManager struct {
	cfg       ManagerConfig
	sessionID string

	mu       sync.RWMutex
	cones    []ConeObstacle
	lines    []Spline
	revision uint64
	stats    ManagerStats
}

// NewObstacleManager validates cfg and returns an empty manager
func NewObstacleManager(cfg ManagerConfig) (*ObstacleManager, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &ObstacleManager{
		cfg:       cfg,
		sessionID: uuid.NewString(),
	}, nil
}

// Config returns the manager's configuration
func (m *ObstacleManager) Config() ManagerConfig {
	return m.cfg
}

// SessionID identifies this manager instance. A new value means a new,
// empty world model.
func (m *ObstacleManager) SessionID() string {
	return m.sessionID
}

// AddObstacle inserts or merges any supported obstacle kind
func (m *ObstacleManager) AddObstacle(o Obstacle) error {
	switch ob := o.(type) {
	case ConeObstacle:
		return m.AddCone(ob)
	case LineObstacle:
		return m.AddLine(ob)
	case Spline:
		return m.AddSpline(ob)
	case nil:
		m.reject()
		return fmt.Errorf("%w: nil obstacle", ErrInvalidObstacle)
	default:
		m.reject()
		return fmt.Errorf("%w: unsupported obstacle type %T", ErrInvalidObstacle, o)
	}
}

// AddCone merges cone into the closest known cone within
// ConeMergingTolerance (inclusive), or stores it as a new cone
func (m *ObstacleManager) AddCone(cone ConeObstacle) error {
	if err := m.checkCone(cone); err != nil {
		m.reject()
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	idx, dist := nearestCone(m.cones, cone)
	if idx >= 0 && dist <= m.cfg.ConeMergingTolerance {
		m.cones[idx] = FuseCones(m.cones[idx], cone, m.cfg.ConeMergeWeight)
		m.stats.ConesMerged++
		m.absorbCones(idx)
	} else {
		m.cones = append(m.cones, cone)
		m.stats.ConesInserted++
	}
	m.revision++
	return nil
}

// AddLine converts a y = f(x) line to a spline and adds it
func (m *ObstacleManager) AddLine(line LineObstacle) error {
	if err := line.Validate(); err != nil {
		m.reject()
		return err
	}
	return m.AddSpline(line.ToSpline())
}

// AddSpline merges spline into the closest known line within
// LineMergingTolerance (inclusive), or stores it as a new line
func (m *ObstacleManager) AddSpline(spline Spline) error {
	if err := m.checkSpline(spline); err != nil {
		m.reject()
		return err
	}
	spline = spline.Clone()

	m.mu.Lock()
	defer m.mu.Unlock()

	idx, merged, err := m.mergeIntoClosestLine(spline, -1)
	if err != nil {
		m.stats.Rejected++
		log.Printf("[MANAGER] discarding line observation, merge failed: %v", err)
		return err
	}
	if idx < 0 {
		m.lines = append(m.lines, spline)
		m.stats.LinesInserted++
	} else {
		m.lines[idx] = merged
		m.stats.LinesMerged++
		m.absorbLines(idx)
	}
	m.revision++
	return nil
}

// absorbCones folds into cones[idx] every other cone it has drifted within
// ConeMergingTolerance of, the fused cone taking priority. Caller holds mu.
func (m *ObstacleManager) absorbCones(idx int) {
	for {
		j, dist := nearestOtherCone(m.cones, idx)
		if j < 0 || dist > m.cfg.ConeMergingTolerance {
			return
		}
		m.cones[idx] = FuseCones(m.cones[j], m.cones[idx], m.cfg.ConeMergeWeight)
		m.cones = slices.Delete(m.cones, j, j+1)
		if j < idx {
			idx--
		}
		m.stats.ConesAbsorbed++
	}
}

// mergeIntoClosestLine merges spline into the closest stored line within
// LineMergingTolerance, leaving out index skip. Lines that spline only
// crosses or branches off are passed over. It returns -1 when no stored line
// takes the merge. Caller holds mu.
func (m *ObstacleManager) mergeIntoClosestLine(spline Spline, skip int) (int, Spline, error) {
	matches := matchingLines(m.lines, spline, m.cfg.LineMergingTolerance, m.cfg.ClosestSplineMaxIters, skip)
	for _, match := range matches {
		merged, err := m.updateLineWithNewLine(m.lines[match.index], spline)
		if errors.Is(err, ErrLinesDiverge) {
			continue
		}
		if err != nil {
			return -1, Spline{}, err
		}
		return match.index, merged, nil
	}
	return -1, Spline{}, nil
}

// absorbLines folds into lines[idx] every other stored line it now lies
// within LineMergingTolerance of. Caller holds mu.
func (m *ObstacleManager) absorbLines(idx int) {
	for {
		j, merged, err := m.mergeIntoClosestLine(m.lines[idx], idx)
		if err != nil {
			log.Printf("[MANAGER] could not fold neighboring line into merged line: %v", err)
			return
		}
		if j < 0 {
			return
		}
		m.lines[idx] = merged
		m.lines = slices.Delete(m.lines, j, j+1)
		if j < idx {
			idx--
		}
		m.stats.LinesAbsorbed++
	}
}

// updateLineWithNewLine fuses newLine into currentLine, favoring newLine
func (m *ObstacleManager) updateLineWithNewLine(currentLine, newLine Spline) (Spline, error) {
	result, err := MergeSplines(currentLine, newLine, MergeOptionsFromConfig(m.cfg))
	if err != nil {
		return Spline{}, err
	}
	if !result.Converged {
		log.Printf("[MANAGER] line merge stopped after %d rounds without converging (residual %.4f)",
			result.Iterations, result.Residuals[len(result.Residuals)-1])
	}
	return result.Spline, nil
}

// checkCone validates a cone and, for a fixed grid, that it lies in the frame
func (m *ObstacleManager) checkCone(cone ConeObstacle) error {
	if err := cone.Validate(); err != nil {
		return err
	}
	if m.cfg.FixedGrid() && !m.inFrame(cone.Center) {
		return fmt.Errorf("%w: cone center (%.3f, %.3f) is outside the grid frame", ErrInvalidObstacle, cone.Center.X, cone.Center.Y)
	}
	return nil
}

// checkSpline validates a spline and, for a fixed grid, that some part of it
// lies in the frame
func (m *ObstacleManager) checkSpline(spline Spline) error {
	if err := spline.Validate(); err != nil {
		return err
	}
	if !m.cfg.FixedGrid() {
		return nil
	}
	for _, p := range spline.SampleBySpacing(m.cfg.OccGridCellSize) {
		if m.inFrame(p) {
			return nil
		}
	}
	return fmt.Errorf("%w: line lies entirely outside the grid frame", ErrInvalidObstacle)
}

func (m *ObstacleManager) inFrame(p Point) bool {
	o := m.cfg.GridOrigin
	w := float64(m.cfg.GridWidth) * m.cfg.OccGridCellSize
	h := float64(m.cfg.GridHeight) * m.cfg.OccGridCellSize
	return p.X >= o.X && p.Y >= o.Y && p.X < o.X+w && p.Y < o.Y+h
}

func (m *ObstacleManager) reject() {
	m.mu.Lock()
	m.stats.Rejected++
	m.mu.Unlock()
}

// ConeObstacles returns a snapshot of the known cones in insertion order
func (m *ObstacleManager) ConeObstacles() []ConeObstacle {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]ConeObstacle, len(m.cones))
	copy(out, m.cones)
	return out
}

// LineObstacles returns a snapshot of the known lines in insertion order
func (m *ObstacleManager) LineObstacles() []Spline {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Spline, len(m.lines))
	for i, l := range m.lines {
		out[i] = l.Clone()
	}
	return out
}

// Snapshot returns both obstacle sets and the revision they belong to,
// read under a single lock
func (m *ObstacleManager) Snapshot() ([]ConeObstacle, []Spline, uint64) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	cones := make([]ConeObstacle, len(m.cones))
	copy(cones, m.cones)
	// Stored splines are replaced, never mutated, so sharing them is safe
	lines := make([]Spline, len(m.lines))
	copy(lines, m.lines)
	return cones, lines, m.revision
}

// Revision increases by one on every accepted observation
func (m *ObstacleManager) Revision() uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.revision
}

// Stats returns current counters
func (m *ObstacleManager) Stats() ManagerStats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s := m.stats
	s.SessionID = m.sessionID
	s.Revision = m.revision
	s.Cones = len(m.cones)
	s.Lines = len(m.lines)
	return s
}

// GenerateOccupancyGrid renders every known obstacle into a new grid with
// cell size OccGridCellSize, inflated by ObstacleInflationBuffer. Frame and
// timestamp metadata are left to the caller.
func (m *ObstacleManager) GenerateOccupancyGrid() (*OccupancyGrid, error) {
	cones, lines, _ := m.Snapshot()
	return Rasterize(cones, lines, m.cfg)
}
