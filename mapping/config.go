package mapping

// Defaults applied to every field omitted from a ManagerConfig
const (
	DefaultObstacleInflationBuffer = 0.0
	DefaultOccGridCellSize         = 0.1
	DefaultSplineMergingMaxIters   = 10
	DefaultClosestSplineMaxIters   = 15
	DefaultConeMergeWeight         = 0.7
	DefaultLineMergeWeight         = 0.7
	DefaultSplineMergeSamples      = 20
	DefaultMaxGridCells            = 4_000_000
)

// ManagerConfig holds the fixed settings of one ObstacleManager. All
// distances are in grid-frame meters.
type ManagerConfig struct {
	// ConeMergingTolerance is the largest center distance at which two cones
	// are the same cone. Required.
	ConeMergingTolerance float64 `yaml:"coneMergingTolerance" json:"coneMergingTolerance"`
	// LineMergingTolerance is the largest closest-point distance at which two
	// lines are the same line. Required.
	LineMergingTolerance float64 `yaml:"lineMergingTolerance" json:"lineMergingTolerance"`

	ObstacleInflationBuffer float64 `yaml:"obstacleInflationBuffer" json:"obstacleInflationBuffer"`
	OccGridCellSize         float64 `yaml:"occGridCellSize" json:"occGridCellSize"`
	SplineMergingMaxIters   int     `yaml:"splineMergingMaxIters" json:"splineMergingMaxIters"`
	ClosestSplineMaxIters   int     `yaml:"closestSplineMaxIters" json:"closestSplineMaxIters"`

	// ConeMergeWeight and LineMergeWeight are the share of a new observation
	// in the fused obstacle. Must be in (0.5, 1]; 1 means full replacement.
	ConeMergeWeight float64 `yaml:"coneMergeWeight" json:"coneMergeWeight"`
	LineMergeWeight float64 `yaml:"lineMergeWeight" json:"lineMergeWeight"`

	SplineMergeSamples int     `yaml:"splineMergeSamples" json:"splineMergeSamples"`
	LineHalfWidth      float64 `yaml:"lineHalfWidth" json:"lineHalfWidth"`

	// GridWidth and GridHeight fix the grid frame in cells. Zero sizes the
	// grid to the bounding box of the known obstacles.
	GridWidth    int   `yaml:"gridWidth,omitempty" json:"gridWidth,omitempty"`
	GridHeight   int   `yaml:"gridHeight,omitempty" json:"gridHeight,omitempty"`
	GridOrigin   Point `yaml:"gridOrigin,omitempty" json:"gridOrigin,omitempty"`
	MaxGridCells int   `yaml:"maxGridCells" json:"maxGridCells"`
}

// DefaultManagerConfig returns a config with every optional field at its
// default. The merging tolerances have no default and are left at zero, so
// Validate fails until they are set.
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{
		ObstacleInflationBuffer: DefaultObstacleInflationBuffer,
		OccGridCellSize:         DefaultOccGridCellSize,
		SplineMergingMaxIters:   DefaultSplineMergingMaxIters,
		ClosestSplineMaxIters:   DefaultClosestSplineMaxIters,
		ConeMergeWeight:         DefaultConeMergeWeight,
		LineMergeWeight:         DefaultLineMergeWeight,
		SplineMergeSamples:      DefaultSplineMergeSamples,
		MaxGridCells:            DefaultMaxGridCells,
	}
}

// NewManagerConfig returns the defaults with the two required tolerances set
func NewManagerConfig(coneMergingTolerance, lineMergingTolerance float64) ManagerConfig {
	cfg := DefaultManagerConfig()
	cfg.ConeMergingTolerance = coneMergingTolerance
	cfg.LineMergingTolerance = lineMergingTolerance
	return cfg
}

// Validate returns a *ConfigError for the first unusable field
func (c ManagerConfig) Validate() error {
	checks := []struct {
		ok     bool
		field  string
		reason string
	}{
		{c.ConeMergingTolerance > 0 && isFinite(c.ConeMergingTolerance), "coneMergingTolerance", "must be a positive number"},
		{c.LineMergingTolerance > 0 && isFinite(c.LineMergingTolerance), "lineMergingTolerance", "must be a positive number"},
		{c.ObstacleInflationBuffer >= 0 && isFinite(c.ObstacleInflationBuffer), "obstacleInflationBuffer", "must be zero or positive"},
		{c.OccGridCellSize > 0 && isFinite(c.OccGridCellSize), "occGridCellSize", "must be a positive number"},
		{c.SplineMergingMaxIters >= 1, "splineMergingMaxIters", "must be at least 1"},
		{c.ClosestSplineMaxIters >= 1, "closestSplineMaxIters", "must be at least 1"},
		{c.ConeMergeWeight > 0.5 && c.ConeMergeWeight <= 1, "coneMergeWeight", "must be in (0.5, 1]"},
		{c.LineMergeWeight > 0.5 && c.LineMergeWeight <= 1, "lineMergeWeight", "must be in (0.5, 1]"},
		{c.SplineMergeSamples >= 2, "splineMergeSamples", "must be at least 2"},
		{c.LineHalfWidth >= 0 && isFinite(c.LineHalfWidth), "lineHalfWidth", "must be zero or positive"},
		{c.GridWidth >= 0 && c.GridHeight >= 0, "gridWidth/gridHeight", "must not be negative"},
		{(c.GridWidth == 0) == (c.GridHeight == 0), "gridWidth/gridHeight", "must both be set or both be zero"},
		{c.GridOrigin.IsFinite(), "gridOrigin", "must be finite"},
		{c.MaxGridCells >= 1, "maxGridCells", "must be at least 1"},
		{!c.FixedGrid() || float64(c.GridWidth)*float64(c.GridHeight) <= float64(c.MaxGridCells), "gridWidth/gridHeight", "exceed maxGridCells"},
	}
	for _, check := range checks {
		if !check.ok {
			return &ConfigError{Field: check.field, Reason: check.reason}
		}
	}
	return nil
}

// FixedGrid reports whether the grid frame is set by configuration
func (c ManagerConfig) FixedGrid() bool {
	return c.GridWidth > 0 && c.GridHeight > 0
}
