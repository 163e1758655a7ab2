package mapping

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// GridMessage is an occupancy grid with the metadata the core leaves to its
// caller
type GridMessage struct {
	SessionID string    `json:"sessionId"`
	Revision  uint64    `json:"revision"`
	FrameID   string    `json:"frameId"`
	Timestamp time.Time `json:"timestamp"`
	Info      GridInfo  `json:"info"`
	Data      []int8    `json:"data"`
}

// NewGridMessage wraps grid with frame and timing metadata
func NewGridMessage(grid *OccupancyGrid, sessionID string, revision uint64, frameID string) GridMessage {
	return GridMessage{
		SessionID: sessionID,
		Revision:  revision,
		FrameID:   frameID,
		Timestamp: time.Now().UTC(),
		Info:      grid.Info,
		Data:      grid.Data,
	}
}

// Publisher publishes the fused world model to MQTT
type Publisher struct {
	client        mqtt.Client
	publishPrefix string
	frameID       string
	qos           byte
	retain        bool

	mu           sync.Mutex
	lastRevision uint64
	published    bool
}

// NewPublisher creates a publisher. MQTT_PUBLISH_PREFIX overrides prefix;
// an empty prefix falls back to "obstaclemap".
func NewPublisher(client mqtt.Client, prefix, frameID string) *Publisher {
	if env := os.Getenv("MQTT_PUBLISH_PREFIX"); env != "" {
		prefix = env
	}
	if prefix == "" {
		prefix = "obstaclemap"
	}
	if frameID == "" {
		frameID = DefaultFrameID
	}
	return &Publisher{
		client:        client,
		publishPrefix: prefix,
		frameID:       frameID,
		qos:           0,
		retain:        true, // late subscribers get the latest grid
	}
}

// GridTopic is where occupancy grids are published
func (p *Publisher) GridTopic() string {
	return fmt.Sprintf("%s/occupancy_grid", p.publishPrefix)
}

// ObstaclesTopic is where the GeoJSON obstacle set is published
func (p *Publisher) ObstaclesTopic() string {
	return fmt.Sprintf("%s/obstacles", p.publishPrefix)
}

// SetQoS sets the Quality of Service level for publishing (0, 1, or 2)
func (p *Publisher) SetQoS(qos byte) {
	if qos <= 2 {
		p.qos = qos
	}
}

// SetRetain sets whether published messages should be retained by the broker
func (p *Publisher) SetRetain(retain bool) {
	p.retain = retain
}

// PublishIfChanged publishes the manager's grid and obstacles when its
// revision moved since the last successful publish. It reports whether
// anything was sent.
func (p *Publisher) PublishIfChanged(m *ObstacleManager) (bool, error) {
	cones, lines, revision := m.Snapshot()

	p.mu.Lock()
	unchanged := p.published && revision == p.lastRevision
	p.mu.Unlock()
	if unchanged {
		return false, nil
	}

	grid, err := Rasterize(cones, lines, m.Config())
	if err != nil {
		return false, fmt.Errorf("generating grid: %w", err)
	}
	if err := p.PublishGrid(NewGridMessage(grid, m.SessionID(), revision, p.frameID)); err != nil {
		return false, err
	}
	fc := ObstaclesToFeatureCollection(cones, lines, m.Config().OccGridCellSize)
	if err := p.publishJSON(p.ObstaclesTopic(), fc); err != nil {
		return false, err
	}

	p.mu.Lock()
	p.lastRevision = revision
	p.published = true
	p.mu.Unlock()

	log.Printf("[MQTT] published grid revision %d (%dx%d, %d cones, %d lines)",
		revision, grid.Info.Width, grid.Info.Height, len(cones), len(lines))
	return true, nil
}

// PublishGrid publishes one grid message
func (p *Publisher) PublishGrid(msg GridMessage) error {
	return p.publishJSON(p.GridTopic(), msg)
}

func (p *Publisher) publishJSON(topic string, v interface{}) error {
	if p.client == nil || !p.client.IsConnected() {
		return fmt.Errorf("MQTT client not connected")
	}

	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshaling %s payload: %w", topic, err)
	}

	token := p.client.Publish(topic, p.qos, p.retain, payload)
	if token.WaitTimeout(2*time.Second) && token.Error() != nil {
		return fmt.Errorf("publishing to %s: %w", topic, token.Error())
	}
	return nil
}
