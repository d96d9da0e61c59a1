package server

import (
	"context"
	"encoding/json"

	"github.com/anicoll/sorel-connect/internal/pkg/model"
)

type messageType string

const (
	messageSnapshot     messageType = "snapshot"
	messageEntities     messageType = "entities"
	messageReadings     messageType = "readings"
	messageAvailability messageType = "availability"
)

type feedMessage struct {
	Type      messageType     `json:"type"`
	Snapshot  ValuesResponse  `json:"snapshot,omitzero"`
	Entities  []model.Entity  `json:"entities,omitempty"`
	Readings  []model.Reading `json:"readings,omitempty"`
	Available *bool           `json:"available,omitempty"`
}

// feed pushes publisher updates to websocket clients.
type feed struct {
	s *server
}

// Feed returns the publisher writer backed by the websocket hub.
func (s *server) Feed() *feed {
	return &feed{s: s}
}

func (f *feed) broadcast(msg feedMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return f.s.hub.Broadcast(data)
}

func (f *feed) RegisterEntities(_ context.Context, entities []model.Entity) error {
	return f.broadcast(feedMessage{Type: messageEntities, Entities: entities})
}

func (f *feed) Write(_ context.Context, readings []model.Reading) error {
	return f.broadcast(feedMessage{Type: messageReadings, Readings: readings})
}

func (f *feed) SetAvailable(_ context.Context, available bool) error {
	return f.broadcast(feedMessage{Type: messageAvailability, Available: &available})
}
