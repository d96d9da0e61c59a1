package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/anicoll/sorel-connect/internal/pkg/model"
)

type RegisterDevice struct {
	Name         string   `json:"name"`
	Identifiers  []string `json:"identifiers"`
	Model        string   `json:"model"`
	Manufacturer string   `json:"manufacturer"`
}

// RegisterMessage is a Home Assistant MQTT discovery config.
type RegisterMessage struct {
	Name                string         `json:"name"`
	ID                  string         `json:"unique_id"`
	ObjectID            string         `json:"object_id"`
	StateTopic          string         `json:"state_topic"`
	ValueTemplate       string         `json:"value_template"`
	JSONAttributesTopic string         `json:"json_attributes_topic"`
	AvailabilityTopic   string         `json:"availability_topic"`
	DeviceClass         string         `json:"device_class,omitempty"`
	StateClass          string         `json:"state_class,omitempty"`
	UnitOfMeasurement   string         `json:"unit_of_measurement,omitempty"`
	Precision           *int           `json:"suggested_display_precision,omitempty"`
	PayloadOn           string         `json:"payload_on,omitempty"`
	PayloadOff          string         `json:"payload_off,omitempty"`
	Device              RegisterDevice `json:"device"`
}

type statePayload struct {
	Value     model.Value `json:"value"`
	LastReset *time.Time  `json:"last_reset,omitempty"`
}

func component(kind model.Kind) string {
	if kind == model.KindOnOff {
		return "binary_sensor"
	}
	return "sensor"
}

func (s *service) configTopic(e model.Entity) string {
	return fmt.Sprintf("%s/%s/%s/%s/config", s.cfg.DiscoveryPrefix, component(e.Kind), s.node(), e.LocalID)
}

func (s *service) registerMsg(e model.Entity) RegisterMessage {
	// rendering without a value still yields units and classes.
	r := model.Render(e, nil, time.Now())
	msg := RegisterMessage{
		Name:                e.Name,
		ID:                  e.UniqueID,
		ObjectID:            fmt.Sprintf("sorel_%s_%s", s.node(), e.LocalID),
		StateTopic:          s.stateTopic(e.LocalID),
		ValueTemplate:       "{{ value_json.value }}",
		JSONAttributesTopic: s.stateTopic(e.LocalID),
		AvailabilityTopic:   s.availabilityTopic(),
		DeviceClass:         r.DeviceClass,
		StateClass:          r.StateClass,
		UnitOfMeasurement:   r.Unit,
		Precision:           r.Precision,
		Device: RegisterDevice{
			Name:         fmt.Sprintf("%s %s", deviceModel, s.installationID),
			Identifiers:  []string{"sorel_connect_" + s.node()},
			Model:        deviceModel,
			Manufacturer: manufacturer,
		},
	}
	if e.Kind == model.KindOnOff {
		msg.PayloadOn = string(model.StateOn)
		msg.PayloadOff = string(model.StateOff)
	}
	return msg
}

func (s *service) RegisterEntities(_ context.Context, entities []model.Entity) error {
	for _, e := range entities {
		s.mu.Lock()
		_, exists := s.registered[e.UniqueID]
		s.mu.Unlock()
		if exists {
			continue
		}

		payload, err := json.Marshal(s.registerMsg(e))
		if err != nil {
			return err
		}
		if err := s.publish(s.configTopic(e), 1, true, payload); err != nil {
			return err
		}

		s.mu.Lock()
		s.registered[e.UniqueID] = struct{}{}
		s.mu.Unlock()
		s.logger.Debug("registered entity", zap.String("entity", e.UniqueID), zap.String("topic", s.configTopic(e)))
	}
	return nil
}

func (s *service) Write(_ context.Context, readings []model.Reading) error {
	for _, r := range readings {
		if r.Value == nil {
			continue
		}
		payload, err := json.Marshal(statePayload{Value: *r.Value, LastReset: r.LastReset})
		if err != nil {
			return err
		}
		if err := s.publish(s.stateTopic(r.Entity.LocalID), 0, true, payload); err != nil {
			return err
		}
	}
	return nil
}

func (s *service) SetAvailable(_ context.Context, available bool) error {
	payload := payloadOffline
	if available {
		payload = payloadOnline
	}
	return s.publish(s.availabilityTopic(), 1, true, []byte(payload))
}
