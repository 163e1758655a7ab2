package mapping

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultPublishInterval is how often a changed grid is republished
const DefaultPublishInterval = time.Second

// DefaultFrameID is the frame name attached to published grids
const DefaultFrameID = "map"

// MQTTConfig holds MQTT connection settings
type MQTTConfig struct {
	Broker        string `yaml:"broker" json:"broker"`
	PublishPrefix string `yaml:"publishPrefix" json:"publishPrefix"`
	ClientID      string `yaml:"clientId" json:"clientId"`
	Username      string `yaml:"username,omitempty" json:"username,omitempty"`
	Password      string `yaml:"password,omitempty" json:"password,omitempty"`
}

// TopicConfig names the topics observations arrive on
type TopicConfig struct {
	Cones string `yaml:"cones" json:"cones"`
	Lines string `yaml:"lines" json:"lines"`
}

// Config represents the full configuration file
type Config struct {
	MQTT            MQTTConfig    `yaml:"mqtt" json:"mqtt"`
	Topics          TopicConfig   `yaml:"topics" json:"topics"`
	Manager         ManagerConfig `yaml:"manager" json:"manager"`
	PublishInterval time.Duration `yaml:"publishInterval" json:"publishInterval"`
	// FrameID names the grid frame attached to published grids
	FrameID string `yaml:"frameId" json:"frameId"`
}

// DefaultConfig returns a Config with every optional field at its default
func DefaultConfig() Config {
	return Config{
		Manager:         DefaultManagerConfig(),
		PublishInterval: DefaultPublishInterval,
		FrameID:         DefaultFrameID,
	}
}

// ParseConfig decodes YAML over the defaults and validates the result
func ParseConfig(data []byte) (*Config, error) {
	config := DefaultConfig()
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("parsing config YAML: %w", err)
	}

	if err := config.Manager.Validate(); err != nil {
		return nil, fmt.Errorf("manager: %w", err)
	}
	if config.PublishInterval <= 0 {
		return nil, &ConfigError{Field: "publishInterval", Reason: "must be positive"}
	}
	if config.MQTT.Broker != "" && config.Topics.Cones == "" && config.Topics.Lines == "" {
		return nil, fmt.Errorf("at least one of topics.cones or topics.lines is required when mqtt.broker is set")
	}

	return &config, nil
}

// LoadConfig loads the configuration from a YAML file
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", path)
		}
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	return ParseConfig(data)
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(path string, config *Config) error {
	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("marshaling config YAML: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	return nil
}
