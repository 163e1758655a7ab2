package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/kwv/obstaclemap/mapping"
)

// maxObservationLine bounds a single replay or HTTP observation line
const maxObservationLine = 4 * 1024 * 1024

// App encapsulates the application state and dependencies
type App struct {
	Config     *mapping.Config
	Manager    *mapping.ObstacleManager
	MQTTClient *mapping.MQTTClient
	Publisher  *mapping.Publisher

	// CLI Flags (effectively dependencies)
	ConfigFile string
	ReplayFile string
	OutputFile string
	Format     string
	HttpPort   int
	MqttMode   bool
	HttpMode   bool
}

// NewApp creates a new App instance
func NewApp() *App {
	return &App{}
}

// ApplyOptions applies CLI options to the App instance
func (a *App) ApplyOptions(opts AppOptions) {
	a.ConfigFile = opts.ConfigFile
	a.ReplayFile = opts.ReplayFile
	a.OutputFile = opts.OutputFile
	a.Format = opts.Format
	a.HttpPort = opts.HttpPort
	a.MqttMode = opts.MqttMode
	a.HttpMode = opts.HttpMode
}

// setup loads the config file and creates the manager unless already set
func (a *App) setup() error {
	if a.Config == nil {
		config, err := mapping.LoadConfig(a.ConfigFile)
		if err != nil {
			return fmt.Errorf("failed to load config: %w (looked at %s)", err, a.ConfigFile)
		}
		a.Config = config
		log.Printf("Loaded config from %s", a.ConfigFile)
	}
	if a.Manager == nil {
		manager, err := mapping.NewObstacleManager(a.Config.Manager)
		if err != nil {
			return fmt.Errorf("creating obstacle manager: %w", err)
		}
		a.Manager = manager
	}
	return nil
}

// IngestResult counts what happened to a batch of observations
type IngestResult struct {
	Accepted int `json:"accepted"`
	Rejected int `json:"rejected"`
}

// ingestObservations feeds newline-delimited observation envelopes into m.
// Blank lines and lines starting with '#' are skipped. Observations that fail
// to decode or are rejected by the manager are logged and counted; only a
// read error aborts.
func ingestObservations(m *mapping.ObstacleManager, r io.Reader) (IngestResult, error) {
	var res IngestResult
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxObservationLine)

	line := 0
	for scanner.Scan() {
		line++
		text := bytes.TrimSpace(scanner.Bytes())
		if len(text) == 0 || text[0] == '#' {
			continue
		}

		o, err := mapping.DecodeEnvelope(text)
		if err != nil {
			log.Printf("[INGEST] line %d: %v", line, err)
			res.Rejected++
			continue
		}
		if err := m.AddObstacle(o); err != nil {
			log.Printf("[INGEST] line %d: discarding %s observation: %v", line, o.Kind(), err)
			res.Rejected++
			continue
		}
		res.Accepted++
	}
	if err := scanner.Err(); err != nil {
		return res, fmt.Errorf("reading observations: %w", err)
	}
	return res, nil
}

// HandleObservations is the MQTT observation handler. Decode errors have
// already been logged by the MQTT client.
func (a *App) HandleObservations(kind mapping.ObstacleKind, obstacles []mapping.Obstacle, err error) {
	if err != nil {
		return
	}
	for _, o := range obstacles {
		if err := a.Manager.AddObstacle(o); err != nil {
			log.Printf("[MQTT] discarding %s observation: %v", kind, err)
		}
	}
}

// outputFormats lists the replay output formats
var outputFormats = map[string]bool{"png": true, "json": true, "svg": true, "geojson": true}

// formatFromOutput picks an output format from a file extension
func formatFromOutput(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return "json"
	case ".svg":
		return "svg"
	case ".geojson":
		return "geojson"
	default:
		return "png"
	}
}

// writeOutput renders the manager's current state in the requested format.
// png and json are the occupancy grid; svg and geojson are the obstacles.
func writeOutput(w io.Writer, m *mapping.ObstacleManager, frameID, format string) error {
	cones, lines, revision := m.Snapshot()
	cfg := m.Config()

	switch format {
	case "png", "json":
		grid, err := mapping.Rasterize(cones, lines, cfg)
		if err != nil {
			return fmt.Errorf("generating grid: %w", err)
		}
		if format == "json" {
			enc := json.NewEncoder(w)
			enc.SetIndent("", "  ")
			return enc.Encode(mapping.NewGridMessage(grid, m.SessionID(), revision, frameID))
		}
		renderer := mapping.NewGridRenderer()
		renderer.Label = fmt.Sprintf("%s rev %d", frameID, revision)
		return renderer.RenderPNG(w, grid)
	case "svg":
		return mapping.NewObstacleRenderer(cones, lines, cfg).RenderToSVG(w)
	case "geojson":
		fc := mapping.ObstaclesToFeatureCollection(cones, lines, cfg.OccGridCellSize)
		data, err := json.MarshalIndent(fc, "", "  ")
		if err != nil {
			return fmt.Errorf("marshaling GeoJSON: %w", err)
		}
		_, err = w.Write(data)
		return err
	default:
		return fmt.Errorf("unknown output format %q (want png, json, svg or geojson)", format)
	}
}

// RunReplay feeds a recorded observation log through a fresh manager and
// writes the result to OutputFile
func (a *App) RunReplay() error {
	fmt.Println("Replaying observations...")

	format := a.Format
	if format == "" {
		format = formatFromOutput(a.OutputFile)
	}
	if !outputFormats[format] {
		return fmt.Errorf("unknown output format %q (want png, json, svg or geojson)", format)
	}

	if err := a.setup(); err != nil {
		return err
	}

	in, err := os.Open(a.ReplayFile)
	if err != nil {
		return fmt.Errorf("opening replay file: %w", err)
	}
	defer in.Close()

	res, err := ingestObservations(a.Manager, in)
	if err != nil {
		return err
	}
	stats := a.Manager.Stats()
	fmt.Printf("Replayed %d observations (%d rejected): %d cones, %d lines\n",
		res.Accepted+res.Rejected, res.Rejected, stats.Cones, stats.Lines)

	out, err := os.Create(a.OutputFile)
	if err != nil {
		return fmt.Errorf("creating output file: %w", err)
	}
	if err := writeOutput(out, a.Manager, a.Config.FrameID, format); err != nil {
		out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("closing output file: %w", err)
	}

	fmt.Printf("Wrote %s output to %s\n", format, a.OutputFile)
	return nil
}

// publishLoop republishes the grid every interval until ctx is done
func (a *App) publishLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.publishOnce()
		}
	}
}

// publishOnce publishes the grid if the manager changed and MQTT is up
func (a *App) publishOnce() {
	if a.Publisher == nil {
		return
	}
	if a.MQTTClient != nil && !a.MQTTClient.IsConnected() {
		return
	}
	if _, err := a.Publisher.PublishIfChanged(a.Manager); err != nil {
		log.Printf("[MQTT] Error publishing grid: %v", err)
	}
}

// RunService runs the MQTT and/or HTTP service until interrupted
func (a *App) RunService() error {
	fmt.Println("Starting obstaclemap service...")

	if err := a.setup(); err != nil {
		return err
	}
	log.Printf("[MANAGER] session %s", a.Manager.SessionID())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if a.MqttMode {
		mqttClient, err := mapping.InitMQTT(a.Config, a.HandleObservations)
		if err != nil {
			return fmt.Errorf("failed to initialize MQTT: %w", err)
		}
		if mqttClient == nil {
			return fmt.Errorf("MQTT broker not configured in %s", a.ConfigFile)
		}
		a.MQTTClient = mqttClient

		a.Publisher = mapping.NewPublisher(mqttClient.GetClient(), a.Config.MQTT.PublishPrefix, a.Config.FrameID)
		go a.publishLoop(ctx, a.Config.PublishInterval)
		fmt.Println("MQTT grid publisher initialized")
	}

	var server *http.Server
	if a.HttpMode {
		server = &http.Server{
			Addr:              fmt.Sprintf("0.0.0.0:%d", a.HttpPort),
			Handler:           newHTTPServer(a.Manager, a.Config.FrameID),
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			log.Printf("[HTTP] Starting server on %s", server.Addr)
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Printf("[HTTP] Server error: %v", err)
				stop()
			}
		}()
	}

	a.printServiceInfo()

	<-ctx.Done()

	fmt.Println("\nShutting down service...")
	if server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("[HTTP] Shutdown error: %v", err)
		}
	}
	if a.MQTTClient != nil {
		a.MQTTClient.Disconnect()
	}
	fmt.Println("Service stopped")
	return nil
}

func (a *App) printServiceInfo() {
	fmt.Println("\nService Running")
	fmt.Println("===============")

	if a.MqttMode && a.Publisher != nil {
		fmt.Println("\nMQTT:")
		fmt.Println("  Subscribed topics:")
		if a.Config.Topics.Cones != "" {
			fmt.Printf("    - %s (cones)\n", a.Config.Topics.Cones)
		}
		if a.Config.Topics.Lines != "" {
			fmt.Printf("    - %s (lines)\n", a.Config.Topics.Lines)
		}
		fmt.Printf("  Occupancy grid: %s (every %v when changed)\n", a.Publisher.GridTopic(), a.Config.PublishInterval)
		fmt.Printf("  Obstacles:      %s\n", a.Publisher.ObstaclesTopic())
	}

	if a.HttpMode {
		fmt.Printf("\nHTTP endpoints (port %d):\n", a.HttpPort)
		fmt.Println("  GET  /health            - Health check and manager stats")
		fmt.Println("  GET  /grid.json         - Occupancy grid")
		fmt.Println("  GET  /grid.png          - Occupancy grid image")
		fmt.Println("  GET  /obstacles.geojson - Fused obstacles as GeoJSON")
		fmt.Println("  GET  /obstacles.svg     - Fused obstacles drawing")
		fmt.Println("  GET  /obstacles.png     - Fused obstacles drawing (raster)")
		fmt.Println("  POST /observations      - Newline-delimited observations")
	}

	fmt.Println("\nPress Ctrl+C to stop")
}
