package main

import (
	"bytes"
	"encoding/json"
	"image/png"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/kwv/obstaclemap/mapping"
	"github.com/paulmach/orb/geojson"
)

// ---------------------------------------------------------------------------
// helpers
// ---------------------------------------------------------------------------

// fixedConfig returns a manager config with a 10x10 grid of 1m cells
func fixedConfig() mapping.ManagerConfig {
	cfg := mapping.NewManagerConfig(0.5, 0.5)
	cfg.OccGridCellSize = 1
	cfg.GridWidth = 10
	cfg.GridHeight = 10
	return cfg
}

// emptyManager returns a manager with no obstacles on a fixed grid.
func emptyManager(t *testing.T) *mapping.ObstacleManager {
	t.Helper()
	m, err := mapping.NewObstacleManager(fixedConfig())
	if err != nil {
		t.Fatalf("NewObstacleManager: %v", err)
	}
	return m
}

// populatedManager returns a manager holding one cone and one line.
func populatedManager(t *testing.T) *mapping.ObstacleManager {
	t.Helper()
	m := emptyManager(t)
	if err := m.AddCone(mapping.ConeObstacle{Center: mapping.Point{X: 2.5, Y: 2.5}, Radius: 0.5}); err != nil {
		t.Fatalf("AddCone: %v", err)
	}
	if err := m.AddLine(mapping.LineObstacle{Coefficients: mapping.Polynomial{6.5}, XMin: 1, XMax: 8}); err != nil {
		t.Fatalf("AddLine: %v", err)
	}
	return m
}

func get(t *testing.T, handler http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	return w
}

// ---------------------------------------------------------------------------
// newHTTPServer -- /health
// ---------------------------------------------------------------------------

func TestHealth(t *testing.T) {
	m := populatedManager(t)
	w := get(t, newHTTPServer(m, "map"), "/health")

	if w.Code != http.StatusOK {
		t.Fatalf("/health status = %d, want %d", w.Code, http.StatusOK)
	}

	var body struct {
		Status string               `json:"status"`
		Stats  mapping.ManagerStats `json:"stats"`
	}
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode /health response: %v", err)
	}
	if body.Status != "ok" {
		t.Errorf("status = %q, want %q", body.Status, "ok")
	}
	if body.Stats.Cones != 1 || body.Stats.Lines != 1 {
		t.Errorf("stats = %+v, want 1 cone and 1 line", body.Stats)
	}
	if body.Stats.SessionID != m.SessionID() {
		t.Errorf("sessionId = %q, want %q", body.Stats.SessionID, m.SessionID())
	}
}

// ---------------------------------------------------------------------------
// newHTTPServer -- grid endpoints
// ---------------------------------------------------------------------------

func TestGridJSON(t *testing.T) {
	m := populatedManager(t)
	w := get(t, newHTTPServer(m, "track"), "/grid.json")

	if w.Code != http.StatusOK {
		t.Fatalf("/grid.json status = %d, want %d", w.Code, http.StatusOK)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}

	var msg mapping.GridMessage
	if err := json.NewDecoder(w.Body).Decode(&msg); err != nil {
		t.Fatalf("failed to decode grid: %v", err)
	}
	if msg.FrameID != "track" {
		t.Errorf("frameId = %q, want track", msg.FrameID)
	}
	if msg.Revision != m.Revision() {
		t.Errorf("revision = %d, want %d", msg.Revision, m.Revision())
	}
	if len(msg.Data) != 100 {
		t.Fatalf("len(data) = %d, want 100", len(msg.Data))
	}
	// cone cell and a cell under the line
	if msg.Data[2*10+2] != mapping.CellOccupied {
		t.Error("cell (2, 2) should be occupied by the cone")
	}
	if msg.Data[6*10+5] != mapping.CellOccupied {
		t.Error("cell (5, 6) should be occupied by the line")
	}
	if msg.Data[0] != mapping.CellFree {
		t.Error("cell (0, 0) should be free")
	}
}

func TestGridPNG(t *testing.T) {
	w := get(t, newHTTPServer(populatedManager(t), "map"), "/grid.png")

	if w.Code != http.StatusOK {
		t.Fatalf("/grid.png status = %d, want %d", w.Code, http.StatusOK)
	}
	if ct := w.Header().Get("Content-Type"); ct != "image/png" {
		t.Errorf("Content-Type = %q, want image/png", ct)
	}
	if _, err := png.Decode(w.Body); err != nil {
		t.Errorf("response is not a valid PNG: %v", err)
	}
}

func TestGridPNG_EmptyAutoGrid_503(t *testing.T) {
	m, err := mapping.NewObstacleManager(mapping.NewManagerConfig(0.5, 0.5))
	if err != nil {
		t.Fatalf("NewObstacleManager: %v", err)
	}
	w := get(t, newHTTPServer(m, "map"), "/grid.png")

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("/grid.png status = %d, want %d", w.Code, http.StatusServiceUnavailable)
	}
}

func TestGrid_TooLarge_422(t *testing.T) {
	cfg := mapping.NewManagerConfig(0.5, 0.5)
	cfg.MaxGridCells = 10
	m, err := mapping.NewObstacleManager(cfg)
	if err != nil {
		t.Fatalf("NewObstacleManager: %v", err)
	}
	for _, p := range []mapping.Point{{X: 0, Y: 0}, {X: 5, Y: 5}} {
		if err := m.AddCone(mapping.ConeObstacle{Center: p}); err != nil {
			t.Fatalf("AddCone: %v", err)
		}
	}

	handler := newHTTPServer(m, "map")
	for _, ep := range []string{"/grid.json", "/grid.png"} {
		t.Run(ep, func(t *testing.T) {
			w := get(t, handler, ep)
			if w.Code != http.StatusUnprocessableEntity {
				t.Errorf("%s status = %d, want %d", ep, w.Code, http.StatusUnprocessableEntity)
			}
		})
	}
}

// ---------------------------------------------------------------------------
// newHTTPServer -- obstacle endpoints
// ---------------------------------------------------------------------------

func TestObstaclesGeoJSON(t *testing.T) {
	w := get(t, newHTTPServer(populatedManager(t), "map"), "/obstacles.geojson")

	if w.Code != http.StatusOK {
		t.Fatalf("/obstacles.geojson status = %d, want %d", w.Code, http.StatusOK)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/geo+json" {
		t.Errorf("Content-Type = %q, want application/geo+json", ct)
	}
	fc, err := geojson.UnmarshalFeatureCollection(w.Body.Bytes())
	if err != nil {
		t.Fatalf("failed to decode GeoJSON: %v", err)
	}
	if len(fc.Features) != 2 {
		t.Errorf("features = %d, want 2", len(fc.Features))
	}
}

func TestObstaclesSVG(t *testing.T) {
	w := get(t, newHTTPServer(populatedManager(t), "map"), "/obstacles.svg")

	if w.Code != http.StatusOK {
		t.Fatalf("/obstacles.svg status = %d, want %d", w.Code, http.StatusOK)
	}
	if ct := w.Header().Get("Content-Type"); ct != "image/svg+xml" {
		t.Errorf("Content-Type = %q, want image/svg+xml", ct)
	}
	if !strings.Contains(w.Body.String(), "<svg") {
		t.Error("response does not look like SVG")
	}
}

func TestObstaclesPNG(t *testing.T) {
	w := get(t, newHTTPServer(populatedManager(t), "map"), "/obstacles.png")

	if w.Code != http.StatusOK {
		t.Fatalf("/obstacles.png status = %d, want %d", w.Code, http.StatusOK)
	}
	if _, err := png.Decode(w.Body); err != nil {
		t.Errorf("response is not a valid PNG: %v", err)
	}
}

func TestEndpoints_MethodNotAllowed(t *testing.T) {
	handler := newHTTPServer(emptyManager(t), "map")

	endpoints := []string{
		"/grid.json",
		"/grid.png",
		"/obstacles.geojson",
		"/obstacles.svg",
		"/obstacles.png",
	}

	for _, ep := range endpoints {
		t.Run(ep, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, ep, nil)
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			if w.Code != http.StatusMethodNotAllowed {
				t.Errorf("%s status = %d, want %d", ep, w.Code, http.StatusMethodNotAllowed)
			}
		})
	}
}

// ---------------------------------------------------------------------------
// newHTTPServer -- /observations
// ---------------------------------------------------------------------------

func TestObservations_Post(t *testing.T) {
	m := emptyManager(t)
	handler := newHTTPServer(m, "map")

	body := strings.Join([]string{
		`{"kind": "cone", "center": {"x": 4, "y": 4}}`,
		`{"kind": "cone", "center": {"x": 4.2, "y": 4}}`,
		`{"kind": "line", "coefficients": [1.5], "x_min": 0.5, "x_max": 9}`,
		`{"kind": "cone", "center": {"x": -3, "y": 4}}`,
		`{"kind": "triangle"}`,
	}, "\n")
	req := httptest.NewRequest(http.MethodPost, "/observations", bytes.NewBufferString(body))
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("/observations status = %d, want %d", w.Code, http.StatusOK)
	}
	var res IngestResult
	if err := json.NewDecoder(w.Body).Decode(&res); err != nil {
		t.Fatalf("failed to decode result: %v", err)
	}
	if res.Accepted != 3 || res.Rejected != 2 {
		t.Errorf("result = %+v, want 3 accepted and 2 rejected", res)
	}

	stats := m.Stats()
	if stats.Cones != 1 || stats.ConesMerged != 1 || stats.Lines != 1 {
		t.Errorf("stats = %+v, want 1 merged cone and 1 line", stats)
	}
}

func TestObservations_GetNotAllowed(t *testing.T) {
	w := get(t, newHTTPServer(emptyManager(t), "map"), "/observations")

	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("GET /observations status = %d, want %d", w.Code, http.StatusMethodNotAllowed)
	}
	if allow := w.Header().Get("Allow"); allow != http.MethodPost {
		t.Errorf("Allow = %q, want POST", allow)
	}
}
