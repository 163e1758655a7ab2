package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/kwv/obstaclemap/mapping"
)

// maxObservationBody bounds a POST /observations request
const maxObservationBody = 16 * 1024 * 1024

// newHTTPServer creates an HTTP server with all endpoints
func newHTTPServer(manager *mapping.ObstacleManager, frameID string) http.Handler {
	mux := http.NewServeMux()

	// Health check endpoint
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		log.Printf("[HTTP] /health request from %s", r.RemoteAddr)
		status := struct {
			Status    string               `json:"status"`
			Timestamp time.Time            `json:"timestamp"`
			Stats     mapping.ManagerStats `json:"stats"`
		}{
			Status:    "ok",
			Timestamp: time.Now(),
			Stats:     manager.Stats(),
		}
		writeJSON(w, status)
	})

	// Occupancy grid with frame metadata
	mux.HandleFunc("/grid.json", func(w http.ResponseWriter, r *http.Request) {
		if !allowGet(w, r) {
			return
		}
		cones, lines, revision := manager.Snapshot()
		grid, err := mapping.Rasterize(cones, lines, manager.Config())
		if err != nil {
			gridError(w, err)
			return
		}
		w.Header().Set("Cache-Control", "no-cache")
		writeJSON(w, mapping.NewGridMessage(grid, manager.SessionID(), revision, frameID))
	})

	// Occupancy grid image
	mux.HandleFunc("/grid.png", func(w http.ResponseWriter, r *http.Request) {
		if !allowGet(w, r) {
			return
		}
		cones, lines, revision := manager.Snapshot()
		grid, err := mapping.Rasterize(cones, lines, manager.Config())
		if err != nil {
			gridError(w, err)
			return
		}
		if len(grid.Data) == 0 {
			http.Error(w, "No obstacles available", http.StatusServiceUnavailable)
			return
		}

		renderer := mapping.NewGridRenderer()
		renderer.Label = fmt.Sprintf("%s rev %d", frameID, revision)
		w.Header().Set("Content-Type", "image/png")
		w.Header().Set("Cache-Control", "no-cache")
		if err := renderer.RenderPNG(w, grid); err != nil {
			log.Printf("[HTTP] Error encoding grid PNG: %v", err)
		}
	})

	// Fused obstacles as GeoJSON in the grid frame
	mux.HandleFunc("/obstacles.geojson", func(w http.ResponseWriter, r *http.Request) {
		if !allowGet(w, r) {
			return
		}
		cones, lines, _ := manager.Snapshot()
		fc := mapping.ObstaclesToFeatureCollection(cones, lines, manager.Config().OccGridCellSize)
		data, err := fc.MarshalJSON()
		if err != nil {
			http.Error(w, "Failed to encode obstacles", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/geo+json")
		w.Header().Set("Cache-Control", "no-cache")
		if _, err := w.Write(data); err != nil {
			log.Printf("[HTTP] Error writing GeoJSON: %v", err)
		}
	})

	// Vector drawing of the fused obstacles
	mux.HandleFunc("/obstacles.svg", func(w http.ResponseWriter, r *http.Request) {
		if !allowGet(w, r) {
			return
		}
		cones, lines, _ := manager.Snapshot()
		renderer := mapping.NewObstacleRenderer(cones, lines, manager.Config())
		w.Header().Set("Content-Type", "image/svg+xml")
		w.Header().Set("Cache-Control", "no-cache")
		if err := renderer.RenderToSVG(w); err != nil {
			log.Printf("[HTTP] Error rendering obstacles SVG: %v", err)
		}
	})

	mux.HandleFunc("/obstacles.png", func(w http.ResponseWriter, r *http.Request) {
		if !allowGet(w, r) {
			return
		}
		cones, lines, _ := manager.Snapshot()
		renderer := mapping.NewObstacleRenderer(cones, lines, manager.Config())
		w.Header().Set("Content-Type", "image/png")
		w.Header().Set("Cache-Control", "no-cache")
		if err := renderer.RenderToPNG(w); err != nil {
			log.Printf("[HTTP] Error rendering obstacles PNG: %v", err)
		}
	})

	// Newline-delimited observation envelopes, one per line
	mux.HandleFunc("/observations", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.Header().Set("Allow", http.MethodPost)
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		body := http.MaxBytesReader(w, r.Body, maxObservationBody)
		res, err := ingestObservations(manager, body)
		if err != nil {
			log.Printf("[HTTP] /observations read error: %v", err)
			http.Error(w, "Failed to read observations", http.StatusBadRequest)
			return
		}
		log.Printf("[HTTP] /observations from %s: %d accepted, %d rejected", r.RemoteAddr, res.Accepted, res.Rejected)
		writeJSON(w, res)
	})

	return mux
}

// allowGet rejects anything but GET and HEAD
func allowGet(w http.ResponseWriter, r *http.Request) bool {
	if r.Method == http.MethodGet || r.Method == http.MethodHead {
		return true
	}
	w.Header().Set("Allow", "GET, HEAD")
	http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	return false
}

func gridError(w http.ResponseWriter, err error) {
	log.Printf("[HTTP] Error generating grid: %v", err)
	if errors.Is(err, mapping.ErrGridTooLarge) {
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}
	http.Error(w, "Failed to generate grid", http.StatusInternalServerError)
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[HTTP] Error encoding JSON response: %v", err)
	}
}
