package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	paho_mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anicoll/sorel-connect/internal/pkg/config"
	"github.com/anicoll/sorel-connect/internal/pkg/model"
)

type fakeToken struct {
	err      error
	timedOut bool
}

func (t *fakeToken) Wait() bool                       { return !t.timedOut }
func (t *fakeToken) WaitTimeout(_ time.Duration) bool { return !t.timedOut }
func (t *fakeToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}
func (t *fakeToken) Error() error { return t.err }

type message struct {
	topic    string
	qos      byte
	retained bool
	payload  []byte
}

// MockClient records publishes. Methods it does not override panic.
type MockClient struct {
	paho_mqtt.Client

	mu          sync.Mutex
	published   []message
	PublishFunc func(topic string) paho_mqtt.Token
	ConnectFunc func() paho_mqtt.Token
}

func (m *MockClient) Publish(topic string, qos byte, retained bool, payload any) paho_mqtt.Token {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.published = append(m.published, message{topic: topic, qos: qos, retained: retained, payload: payload.([]byte)})
	if m.PublishFunc != nil {
		return m.PublishFunc(topic)
	}
	return &fakeToken{}
}

func (m *MockClient) Connect() paho_mqtt.Token {
	if m.ConnectFunc != nil {
		return m.ConnectFunc()
	}
	return &fakeToken{}
}

func (m *MockClient) Disconnect(uint) {}

func testConfig() *config.MqttConfig {
	return &config.MqttConfig{
		Host:            "broker:1883",
		BaseTopic:       "sorel_connect",
		DiscoveryPrefix: "homeassistant",
	}
}

func testEntities() []model.Entity {
	return []model.Entity{
		model.NewEntity("AB-12", model.KindTemperature, "sensor_1", "Sensor 1", model.Source{Resource: model.ResourceSensors, ID: 1}),
		model.NewEntity("AB-12", model.KindOnOff, "relay_1", "Relay 1", model.Source{Resource: model.ResourceRelays, ID: 1}),
		model.NewEnergyEntity("AB-12", "energy_sensor_day", "Day energy", model.PeriodDay, model.Source{Resource: model.ResourceHeat, ID: 18}),
	}
}

func TestOptsFromConfig(t *testing.T) {
	t.Parallel()
	cfg := testConfig()
	cfg.Username = "ha"
	cfg.Password = "pw"

	opts := OptsFromConfig(cfg, "AB-12", "client-1")

	require.Len(t, opts.Servers, 1)
	assert.Equal(t, "tcp://broker:1883", opts.Servers[0].String())
	assert.Equal(t, "client-1", opts.ClientID)
	assert.Equal(t, "ha", opts.Username)
	assert.True(t, opts.WillEnabled)
	assert.Equal(t, "sorel_connect/ab_12/availability", opts.WillTopic)
	assert.Equal(t, []byte(payloadOffline), opts.WillPayload)
	assert.True(t, opts.WillRetained)

	cfg.Host = "ssl://broker:8883"
	opts = OptsFromConfig(cfg, "AB-12", "client-1")
	assert.Equal(t, "ssl://broker:8883", opts.Servers[0].String())
}

func TestConnect(t *testing.T) {
	t.Parallel()
	s := New(&MockClient{}, testConfig(), "AB-12")
	assert.NoError(t, s.Connect())

	s = New(&MockClient{ConnectFunc: func() paho_mqtt.Token {
		return &fakeToken{err: errors.New("not authorised")}
	}}, testConfig(), "AB-12")
	assert.ErrorContains(t, s.Connect(), "not authorised")

	s = New(&MockClient{ConnectFunc: func() paho_mqtt.Token {
		return &fakeToken{timedOut: true}
	}}, testConfig(), "AB-12")
	assert.Error(t, s.Connect())
}

func TestRegisterEntities(t *testing.T) {
	t.Parallel()
	client := &MockClient{}
	s := New(client, testConfig(), "AB-12")

	require.NoError(t, s.RegisterEntities(context.Background(), testEntities()))
	require.Len(t, client.published, 3)

	sensor := client.published[0]
	assert.Equal(t, "homeassistant/sensor/ab_12/sensor_1/config", sensor.topic)
	assert.True(t, sensor.retained)
	assert.Equal(t, byte(1), sensor.qos)

	var msg RegisterMessage
	require.NoError(t, json.Unmarshal(sensor.payload, &msg))
	assert.Equal(t, "AB-12.sensor_1", msg.ID)
	assert.Equal(t, "Sensor 1", msg.Name)
	assert.Equal(t, "sorel_connect/ab_12/sensor_1/state", msg.StateTopic)
	assert.Equal(t, "sorel_connect/ab_12/availability", msg.AvailabilityTopic)
	assert.Equal(t, "°C", msg.UnitOfMeasurement)
	assert.Equal(t, "temperature", msg.DeviceClass)
	assert.Equal(t, "measurement", msg.StateClass)
	assert.Equal(t, []string{"sorel_connect_ab_12"}, msg.Device.Identifiers)
	assert.Equal(t, "SOREL Connect", msg.Device.Manufacturer)
	assert.Equal(t, "SOREL Connect AB-12", msg.Device.Name)

	relay := client.published[1]
	assert.Equal(t, "homeassistant/binary_sensor/ab_12/relay_1/config", relay.topic)
	require.NoError(t, json.Unmarshal(relay.payload, &msg))
	assert.Equal(t, "on", msg.PayloadOn)
	assert.Equal(t, "off", msg.PayloadOff)

	energy := client.published[2]
	msg = RegisterMessage{}
	require.NoError(t, json.Unmarshal(energy.payload, &msg))
	assert.Equal(t, "kWh", msg.UnitOfMeasurement)
	assert.Equal(t, "total", msg.StateClass)
	require.NotNil(t, msg.Precision)
	assert.Equal(t, 3, *msg.Precision)

	// already registered entities are not announced again.
	require.NoError(t, s.RegisterEntities(context.Background(), testEntities()))
	assert.Len(t, client.published, 3)
}

func TestRegisterEntities_PublishError(t *testing.T) {
	t.Parallel()
	client := &MockClient{PublishFunc: func(string) paho_mqtt.Token {
		return &fakeToken{err: errors.New("not connected")}
	}}
	s := New(client, testConfig(), "AB-12")

	assert.Error(t, s.RegisterEntities(context.Background(), testEntities()))
	assert.Empty(t, s.registered)
}

func TestWrite(t *testing.T) {
	t.Parallel()
	client := &MockClient{}
	s := New(client, testConfig(), "AB-12")
	entities := testEntities()
	now := time.Date(2026, time.October, 14, 9, 0, 0, 0, time.UTC)

	values := model.ValueMapping{
		"sensor_1":          model.Number(21),
		"relay_1":           model.StateValue(model.StateOn),
		"energy_sensor_day": model.Number(12.5),
	}
	readings := []model.Reading{
		model.Render(entities[0], values, now),
		model.Render(entities[1], values, now),
		model.Render(entities[2], values, now),
		model.Render(model.NewEntity("AB-12", model.KindTemperature, "sensor_2", "Sensor 2", model.Source{}), values, now),
	}
	require.NoError(t, s.Write(context.Background(), readings))

	require.Len(t, client.published, 3, "readings without a value are skipped")
	assert.Equal(t, "sorel_connect/ab_12/sensor_1/state", client.published[0].topic)
	assert.JSONEq(t, `{"value":21}`, string(client.published[0].payload))
	assert.JSONEq(t, `{"value":"on"}`, string(client.published[1].payload))
	assert.JSONEq(t, `{"value":12.5,"last_reset":"2026-10-14T00:00:00Z"}`, string(client.published[2].payload))
	assert.True(t, client.published[0].retained)
}

func TestSetAvailable(t *testing.T) {
	t.Parallel()
	client := &MockClient{}
	s := New(client, testConfig(), "AB-12")

	require.NoError(t, s.SetAvailable(context.Background(), true))
	require.NoError(t, s.SetAvailable(context.Background(), false))

	require.Len(t, client.published, 2)
	assert.Equal(t, "sorel_connect/ab_12/availability", client.published[0].topic)
	assert.Equal(t, "online", string(client.published[0].payload))
	assert.Equal(t, "offline", string(client.published[1].payload))
}

func TestPublish_Timeout(t *testing.T) {
	t.Parallel()
	client := &MockClient{PublishFunc: func(string) paho_mqtt.Token {
		return &fakeToken{timedOut: true}
	}}
	s := New(client, testConfig(), "AB-12")

	assert.ErrorContains(t, s.SetAvailable(context.Background(), true), "timed out")
}
