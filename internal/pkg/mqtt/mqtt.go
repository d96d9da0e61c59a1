package mqtt

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	paho_mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/gosimple/slug"
	"go.uber.org/zap"

	"github.com/anicoll/sorel-connect/internal/pkg/config"
)

const (
	payloadOnline  = "online"
	payloadOffline = "offline"

	manufacturer = "SOREL Connect"
	deviceModel  = "SOREL Connect"
)

type service struct {
	client         paho_mqtt.Client
	cfg            *config.MqttConfig
	installationID string
	logger         *zap.Logger

	mu         sync.Mutex
	registered map[string]struct{}
}

// OptsFromConfig builds client options with a retained offline will on the
// availability topic.
func OptsFromConfig(cfg *config.MqttConfig, installationID, clientID string) *paho_mqtt.ClientOptions {
	opts := paho_mqtt.NewClientOptions()
	broker := cfg.Host
	if !strings.Contains(broker, "://") {
		broker = "tcp://" + broker
	}
	opts.AddBroker(broker)
	opts.SetClientID(clientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	opts.SetAutoReconnect(true)
	opts.SetWill(availabilityTopic(cfg.BaseTopic, installationID), payloadOffline, 1, true)
	return opts
}

func New(client paho_mqtt.Client, cfg *config.MqttConfig, installationID string) *service {
	return &service{
		client:         client,
		cfg:            cfg,
		installationID: installationID,
		logger:         zap.L(),
		registered:     make(map[string]struct{}),
	}
}

func (s *service) Connect() error {
	token := s.client.Connect()
	res := token.WaitTimeout(time.Second * 5)
	if err := token.Error(); err != nil {
		return err
	}
	if res {
		return nil
	}
	return errors.New("unable to connect in time")
}

func (s *service) Disconnect() {
	s.client.Disconnect(250)
}

func (s *service) publish(topic string, qos byte, retained bool, payload []byte) error {
	token := s.client.Publish(topic, qos, retained, payload)
	if !token.WaitTimeout(time.Second * 10) {
		return fmt.Errorf("publish to %s timed out", topic)
	}
	return token.Error()
}

func (s *service) node() string {
	return strings.ReplaceAll(slug.Make(s.installationID), "-", "_")
}

func availabilityTopic(baseTopic, installationID string) string {
	return fmt.Sprintf("%s/%s/availability", baseTopic, strings.ReplaceAll(slug.Make(installationID), "-", "_"))
}

func (s *service) availabilityTopic() string {
	return availabilityTopic(s.cfg.BaseTopic, s.installationID)
}

func (s *service) stateTopic(localID string) string {
	return fmt.Sprintf("%s/%s/%s/state", s.cfg.BaseTopic, s.node(), localID)
}
