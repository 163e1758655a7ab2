package mapping

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func testServiceConfig() *Config {
	cfg := DefaultConfig()
	cfg.Manager = NewManagerConfig(0.5, 0.5)
	cfg.Topics = TopicConfig{Cones: "perception/cones", Lines: "perception/lines"}
	return &cfg
}

type receivedObservation struct {
	kind      ObstacleKind
	obstacles []Obstacle
	err       error
}

type observationRecorder struct {
	mu       sync.Mutex
	received []receivedObservation
}

func (r *observationRecorder) handle(kind ObstacleKind, obstacles []Obstacle, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.received = append(r.received, receivedObservation{kind, obstacles, err})
}

func (r *observationRecorder) all() []receivedObservation {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]receivedObservation(nil), r.received...)
}

type handlerMock struct {
	mock.Mock
}

func (h *handlerMock) Handle(kind ObstacleKind, obstacles []Obstacle, err error) {
	h.Called(kind, obstacles, err)
}

func TestInitMQTT_Disabled(t *testing.T) {
	t.Setenv("MQTT_BROKER", "")

	client, err := InitMQTT(&Config{}, nil)
	assert.NoError(t, err)
	assert.Nil(t, client)
}

func TestInitMQTT_NoTopics(t *testing.T) {
	t.Setenv("MQTT_BROKER", "")
	config := &Config{MQTT: MQTTConfig{Broker: "tcp://localhost:1883"}}

	_, err := InitMQTT(config, nil)
	assert.Error(t, err)
}

func TestMQTTClient_IsConnected(t *testing.T) {
	client := &MQTTClient{}
	assert.False(t, client.IsConnected(), "New client should not be connected")

	client.setConnected(true)
	assert.True(t, client.IsConnected(), "Client should be connected after setConnected(true)")

	client.setConnected(false)
	assert.False(t, client.IsConnected(), "Client should not be connected after setConnected(false)")
}

func TestMQTTClient_KindForTopic(t *testing.T) {
	client := &MQTTClient{config: testServiceConfig()}

	tests := []struct {
		topic    string
		wantKind ObstacleKind
		wantOK   bool
	}{
		{"perception/cones", KindCone, true},
		{"perception/lines", KindLine, true},
		{"perception/other", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.topic, func(t *testing.T) {
			kind, ok := client.KindForTopic(tt.topic)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.wantKind, kind)
		})
	}
}

func TestMQTTClient_StartSubscribes(t *testing.T) {
	mock := NewMockClient()
	rec := &observationRecorder{}
	client := NewMQTTClientWithClient(mock, testServiceConfig(), rec.handle)

	require.NoError(t, client.Start())
	assert.True(t, client.IsConnected())
	assert.True(t, mock.Subscribed("perception/cones"))
	assert.True(t, mock.Subscribed("perception/lines"))
	assert.Same(t, mock, client.GetClient())

	client.Disconnect()
	assert.False(t, client.IsConnected())
}

func TestMQTTClient_StartConnectError(t *testing.T) {
	mock := NewMockClient()
	mock.SetConnectError(errors.New("broker unavailable"))
	client := NewMQTTClientWithClient(mock, testServiceConfig(), nil)

	assert.Error(t, client.Start())
}

func TestMQTTClient_DeliversObservations(t *testing.T) {
	mock := NewMockClient()
	rec := &observationRecorder{}
	client := NewMQTTClientWithClient(mock, testServiceConfig(), rec.handle)
	require.NoError(t, client.Start())

	mock.SimulateMessage("perception/cones", []byte(`[{"center": {"x": 1, "y": 2}}]`))
	mock.SimulateMessage("perception/lines", []byte(`{"coefficients": [0], "x_min": 0, "x_max": 1}`))
	mock.SimulateMessage("perception/cones", []byte(`garbage`))

	got := rec.all()
	require.Len(t, got, 3)

	assert.Equal(t, KindCone, got[0].kind)
	assert.NoError(t, got[0].err)
	assert.Equal(t, []Obstacle{ConeObstacle{Center: Point{1, 2}}}, got[0].obstacles)

	assert.Equal(t, KindLine, got[1].kind)
	assert.Equal(t, []Obstacle{LineObstacle{Coefficients: Polynomial{0}, XMin: 0, XMax: 1}}, got[1].obstacles)

	assert.Error(t, got[2].err)
	assert.Nil(t, got[2].obstacles)
}

func TestMQTTClient_OnConnectionLost(t *testing.T) {
	client := &MQTTClient{}
	client.setConnected(true)
	client.onConnectionLost(nil, errors.New("network down"))
	assert.False(t, client.IsConnected())
}

func TestMQTTClient_HandlerCalledPerMessage(t *testing.T) {
	broker := NewMockClient()
	h := &handlerMock{}
	h.On("Handle", KindCone, []Obstacle{ConeObstacle{Center: Point{3, 4}, Radius: 0.5}}, nil).Once()
	h.On("Handle", KindLine, []Obstacle(nil), mock.MatchedBy(func(err error) bool { return err != nil })).Once()

	client := NewMQTTClientWithClient(broker, testServiceConfig(), h.Handle)
	require.NoError(t, client.Start())

	broker.SimulateMessage("perception/cones", []byte(`{"center": {"x": 3, "y": 4}, "radius": 0.5}`))
	broker.SimulateMessage("perception/lines", []byte(`{"coefficients": "x"}`))
	// not subscribed: never reaches the handler
	broker.SimulateMessage("perception/other", []byte(`{}`))

	h.AssertExpectations(t)
}
