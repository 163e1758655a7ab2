package mapping

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// ---------------------------------------------------------------------------
// helpers
// ---------------------------------------------------------------------------

func validConfigYAML() string {
	return `mqtt:
  broker: tcp://localhost:1883
  publishPrefix: obstaclemap
  clientId: obstaclemap-test
topics:
  cones: perception/cones
  lines: perception/lines
manager:
  coneMergingTolerance: 0.5
  lineMergingTolerance: 0.3
  obstacleInflationBuffer: 0.25
publishInterval: 500ms
`
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatalf("write config fixture: %v", err)
	}
	return path
}

// ---------------------------------------------------------------------------
// LoadConfig
// ---------------------------------------------------------------------------

func TestLoadConfig_NotExists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nope.yaml")
	_, err := LoadConfig(path)
	if err == nil {
		t.Fatal("expected error for missing config file, got nil")
	}
}

func TestLoadConfig_ValidYAML(t *testing.T) {
	path := writeConfig(t, validConfigYAML())

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.MQTT.Broker != "tcp://localhost:1883" {
		t.Errorf("Broker = %q, want %q", cfg.MQTT.Broker, "tcp://localhost:1883")
	}
	if cfg.Topics.Cones != "perception/cones" {
		t.Errorf("Topics.Cones = %q, want %q", cfg.Topics.Cones, "perception/cones")
	}
	if cfg.Manager.ConeMergingTolerance != 0.5 {
		t.Errorf("ConeMergingTolerance = %v, want 0.5", cfg.Manager.ConeMergingTolerance)
	}
	if cfg.Manager.ObstacleInflationBuffer != 0.25 {
		t.Errorf("ObstacleInflationBuffer = %v, want 0.25", cfg.Manager.ObstacleInflationBuffer)
	}
	if cfg.PublishInterval != 500*time.Millisecond {
		t.Errorf("PublishInterval = %v, want 500ms", cfg.PublishInterval)
	}
}

func TestLoadConfig_DefaultsForOmittedKeys(t *testing.T) {
	path := writeConfig(t, `manager:
  coneMergingTolerance: 0.5
  lineMergingTolerance: 0.5
`)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Manager.OccGridCellSize != DefaultOccGridCellSize {
		t.Errorf("OccGridCellSize = %v, want %v", cfg.Manager.OccGridCellSize, DefaultOccGridCellSize)
	}
	if cfg.Manager.SplineMergingMaxIters != DefaultSplineMergingMaxIters {
		t.Errorf("SplineMergingMaxIters = %d, want %d", cfg.Manager.SplineMergingMaxIters, DefaultSplineMergingMaxIters)
	}
	if cfg.Manager.ConeMergeWeight != DefaultConeMergeWeight {
		t.Errorf("ConeMergeWeight = %v, want %v", cfg.Manager.ConeMergeWeight, DefaultConeMergeWeight)
	}
	if cfg.PublishInterval != DefaultPublishInterval {
		t.Errorf("PublishInterval = %v, want %v", cfg.PublishInterval, DefaultPublishInterval)
	}
	if cfg.FrameID != DefaultFrameID {
		t.Errorf("FrameID = %q, want %q", cfg.FrameID, DefaultFrameID)
	}
}

func TestLoadConfig_Validation(t *testing.T) {
	tests := []struct {
		name         string
		yaml         string
		wantConfigEr bool
	}{
		{
			name: "missing tolerances",
			yaml: `manager:
  occGridCellSize: 0.2
`,
			wantConfigEr: true,
		},
		{
			name: "explicit zero cell size",
			yaml: `manager:
  coneMergingTolerance: 0.5
  lineMergingTolerance: 0.5
  occGridCellSize: 0
`,
			wantConfigEr: true,
		},
		{
			name: "weight out of range",
			yaml: `manager:
  coneMergingTolerance: 0.5
  lineMergingTolerance: 0.5
  lineMergeWeight: 0.3
`,
			wantConfigEr: true,
		},
		{
			name: "zero publish interval",
			yaml: `manager:
  coneMergingTolerance: 0.5
  lineMergingTolerance: 0.5
publishInterval: 0s
`,
			wantConfigEr: true,
		},
		{
			name: "broker without topics",
			yaml: `mqtt:
  broker: tcp://localhost:1883
manager:
  coneMergingTolerance: 0.5
  lineMergingTolerance: 0.5
`,
		},
		{
			name: "malformed yaml",
			yaml: "manager: [unclosed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfig(t, tt.yaml)
			_, err := LoadConfig(path)
			if err == nil {
				t.Fatal("expected validation error, got nil")
			}
			if tt.wantConfigEr && !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("error %v does not wrap ErrInvalidConfig", err)
			}
		})
	}
}

// ---------------------------------------------------------------------------
// SaveConfig
// ---------------------------------------------------------------------------

func TestSaveConfig_RoundTrip(t *testing.T) {
	original, err := ParseConfig([]byte(validConfigYAML()))
	if err != nil {
		t.Fatalf("ParseConfig: %v", err)
	}
	original.Manager.GridWidth = 200
	original.Manager.GridHeight = 100
	original.Manager.GridOrigin = Point{X: -10, Y: -5}

	path := filepath.Join(t.TempDir(), "saved.yaml")
	if err := SaveConfig(path, original); err != nil {
		t.Fatalf("SaveConfig: %v", err)
	}

	loaded, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig after save: %v", err)
	}
	if *loaded != *original {
		t.Errorf("round trip mismatch:\n got %+v\nwant %+v", *loaded, *original)
	}
}

func TestSaveConfig_BadPath(t *testing.T) {
	cfg := DefaultConfig()
	err := SaveConfig(filepath.Join(t.TempDir(), "missing", "dir", "config.yaml"), &cfg)
	if err == nil {
		t.Fatal("expected error writing to a missing directory, got nil")
	}
}
