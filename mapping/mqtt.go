package mapping

import (
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// ObservationHandler is called for every observation payload received.
// obstacles is nil when err is non-nil.
type ObservationHandler func(kind ObstacleKind, obstacles []Obstacle, err error)

// MQTTClient manages the MQTT connection and the observation subscriptions
type MQTTClient struct {
	client      mqtt.Client
	config      *Config
	handler     ObservationHandler
	isConnected bool
	mu          sync.RWMutex
}

// InitMQTT builds an MQTT client from configuration and starts connecting in
// the background. Environment variables override the config file. If no
// broker is configured, MQTT is disabled and this returns nil, nil.
func InitMQTT(config *Config, handler ObservationHandler) (*MQTTClient, error) {
	broker := os.Getenv("MQTT_BROKER")
	if broker == "" && config != nil {
		broker = config.MQTT.Broker
	}

	if broker == "" {
		log.Println("[MQTT] disabled: MQTT_BROKER not set")
		return nil, nil
	}

	if config == nil || (config.Topics.Cones == "" && config.Topics.Lines == "") {
		return nil, fmt.Errorf("MQTT enabled but no observation topics configured")
	}

	client := &MQTTClient{
		config:  config,
		handler: handler,
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(broker)

	clientID := os.Getenv("MQTT_CLIENT_ID")
	if clientID == "" {
		clientID = config.MQTT.ClientID
	}
	if clientID == "" {
		clientID = "obstaclemap"
	}
	opts.SetClientID(clientID)

	username := os.Getenv("MQTT_USERNAME")
	if username == "" {
		username = config.MQTT.Username
	}
	if username != "" {
		opts.SetUsername(username)
		password := os.Getenv("MQTT_PASSWORD")
		if password == "" {
			password = config.MQTT.Password
		}
		opts.SetPassword(password)
	}

	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(5 * time.Second)
	opts.SetMaxReconnectInterval(60 * time.Second)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)
	opts.SetCleanSession(false) // keep subscriptions across reconnects
	// Observations must reach the manager in arrival order
	opts.SetOrderMatters(true)

	opts.SetOnConnectHandler(client.onConnect)
	opts.SetConnectionLostHandler(client.onConnectionLost)
	opts.SetReconnectingHandler(func(mqtt.Client, *mqtt.ClientOptions) {
		log.Println("[MQTT] reconnecting...")
	})

	client.client = mqtt.NewClient(opts)

	go client.connectWithRetry()

	return client, nil
}

// connectWithRetry attempts to connect to the broker with exponential backoff
func (c *MQTTClient) connectWithRetry() {
	retryDelay := 1 * time.Second
	maxRetryDelay := 60 * time.Second

	for {
		log.Println("[MQTT] connecting to broker...")

		token := c.client.Connect()
		if token.WaitTimeout(10 * time.Second) {
			if token.Error() == nil {
				log.Println("[MQTT] connected to broker")
				c.setConnected(true)
				return
			}
			log.Printf("[MQTT] connection failed: %v", token.Error())
		} else {
			log.Println("[MQTT] connection timeout")
		}

		log.Printf("[MQTT] retrying connection in %v...", retryDelay)
		time.Sleep(retryDelay)
		retryDelay *= 2
		if retryDelay > maxRetryDelay {
			retryDelay = maxRetryDelay
		}
	}
}

// subscriptions maps each configured topic to its obstacle kind
func (c *MQTTClient) subscriptions() map[string]ObstacleKind {
	subs := make(map[string]ObstacleKind, 2)
	if c.config.Topics.Cones != "" {
		subs[c.config.Topics.Cones] = KindCone
	}
	if c.config.Topics.Lines != "" {
		subs[c.config.Topics.Lines] = KindLine
	}
	return subs
}

// onConnect subscribes to the observation topics
func (c *MQTTClient) onConnect(client mqtt.Client) {
	log.Println("[MQTT] connected, subscribing to observation topics...")
	c.setConnected(true)

	for topic, kind := range c.subscriptions() {
		token := client.Subscribe(topic, 0, c.createMessageHandler(kind))
		if token.WaitTimeout(5*time.Second) && token.Error() != nil {
			log.Printf("[MQTT] error subscribing to %s: %v", topic, token.Error())
		} else {
			log.Printf("[MQTT] subscribed to %s (%s observations)", topic, kind)
		}
	}
}

// onConnectionLost is called when the connection drops; auto-reconnect retries
func (c *MQTTClient) onConnectionLost(client mqtt.Client, err error) {
	log.Printf("[MQTT] connection interrupted (%v), auto-reconnect will retry", err)
	c.setConnected(false)
}

// createMessageHandler decodes payloads for one obstacle kind
func (c *MQTTClient) createMessageHandler(kind ObstacleKind) mqtt.MessageHandler {
	return func(client mqtt.Client, msg mqtt.Message) {
		obstacles, err := DecodeObservations(kind, msg.Payload())
		if err != nil {
			log.Printf("[MQTT] error decoding %s observation on %s: %v", kind, msg.Topic(), err)
		}
		if c.handler != nil {
			c.handler(kind, obstacles, err)
		}
	}
}

// IsConnected returns true if the MQTT client is connected
func (c *MQTTClient) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.isConnected
}

func (c *MQTTClient) setConnected(connected bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.isConnected = connected
}

// Disconnect gracefully closes the MQTT connection
func (c *MQTTClient) Disconnect() {
	if c.client != nil && c.client.IsConnected() {
		log.Println("[MQTT] disconnecting from broker...")
		c.client.Disconnect(250)
		c.setConnected(false)
	}
}

// KindForTopic returns the obstacle kind carried by topic
func (c *MQTTClient) KindForTopic(topic string) (ObstacleKind, bool) {
	kind, ok := c.subscriptions()[topic]
	return kind, ok
}

// GetClient returns the underlying MQTT client for publishing
func (c *MQTTClient) GetClient() mqtt.Client {
	return c.client
}

// NewMQTTClientWithClient wraps an existing mqtt.Client, such as a MockClient
func NewMQTTClientWithClient(client mqtt.Client, config *Config, handler ObservationHandler) *MQTTClient {
	return &MQTTClient{
		client:  client,
		config:  config,
		handler: handler,
	}
}

// Start connects the wrapped client and subscribes once connected
func (c *MQTTClient) Start() error {
	token := c.client.Connect()
	if token.WaitTimeout(10*time.Second) && token.Error() != nil {
		return fmt.Errorf("connecting to broker: %w", token.Error())
	}
	c.onConnect(c.client)
	return nil
}
