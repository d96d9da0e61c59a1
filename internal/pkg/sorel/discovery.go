package sorel

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/anicoll/sorel-connect/internal/pkg/model"
	"github.com/anicoll/sorel-connect/internal/pkg/store"
)

// Channel is a heat.json id. Actual is the current power, the others are
// energy accumulated over a period.
type Channel int

const (
	ChannelActual Channel = 17
	ChannelDay    Channel = 18
	ChannelWeek   Channel = 19
	ChannelMonth  Channel = 20
	ChannelYear   Channel = 21
	ChannelTotal  Channel = 22
)

// Channels in probe order.
var Channels = []Channel{ChannelActual, ChannelDay, ChannelWeek, ChannelMonth, ChannelYear, ChannelTotal}

var channelPeriods = map[Channel]model.Period{
	ChannelDay:   model.PeriodDay,
	ChannelWeek:  model.PeriodWeek,
	ChannelMonth: model.PeriodMonth,
	ChannelYear:  model.PeriodYear,
	ChannelTotal: model.PeriodTotal,
}

func sensorLocalID(id int) string {
	return fmt.Sprintf("sensor_%d", id)
}

func relayLocalID(id int) string {
	return fmt.Sprintf("relay_%d", id)
}

func powerLocalID(ch Channel) string {
	return fmt.Sprintf("power_sensor_%d", int(ch))
}

func energyLocalID(p model.Period) string {
	return fmt.Sprintf("energy_sensor_%s", p)
}

func energyName(p model.Period) string {
	s := p.String()
	return strings.ToUpper(s[:1]) + s[1:] + " energy"
}

func (c *Client) loadStoredState(ctx context.Context) error {
	state, err := c.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("loading discovery state: %w", err)
	}
	if state == nil {
		state = store.State{}
	}
	c.storedState = state

	if record, ok := state[c.cfg.ID]; ok && record.Sensors != nil {
		n := *record.Sensors
		c.sensorsCount = &n
		c.logger.Debug("loaded sensor count", zap.Int("sensors", n))
	}
	return nil
}

// readRaw fetches the raw value of a source. ok is false when the channel is
// disabled or the payload had no value.
func (c *Client) readRaw(ctx context.Context, s model.Source) (string, bool, error) {
	body, err := c.fetch(ctx, c.sourceURL(s))
	if err != nil {
		return "", false, err
	}
	raw, err := ExtractRawValue(body)
	if err != nil {
		return "", false, err
	}
	if raw.Status == RawMissing {
		c.logger.Error("invalid data", zap.String("resource", string(s.Resource)), zap.Int("id", s.ID), zap.ByteString("data", body))
	}
	return raw.Value, raw.Present(), nil
}

func (c *Client) discoverSensors(ctx context.Context, values model.ValueMapping) error {
	toCheck := MaxSensors
	if c.sensorsCount != nil {
		toCheck = *c.sensorsCount
	}

	count := 0
	for id := 1; id <= toCheck; id++ {
		source := model.Source{Resource: model.ResourceSensors, ID: id}
		raw, ok, err := c.readRaw(ctx, source)
		if err != nil {
			return err
		}
		if !ok {
			break
		}
		v, err := ParseTemperature(raw)
		if err != nil {
			return fmt.Errorf("sensor %d: %w", id, err)
		}

		e := model.NewEntity(c.cfg.ID, model.KindTemperature, sensorLocalID(id), fmt.Sprintf("Sensor %d", id), source)
		c.catalog.Add(e)
		values[e.LocalID] = model.Number(v)
		count++
	}

	c.sensorsCount = &count
	c.persistSensorsCount(ctx, count)
	return nil
}

func (c *Client) persistSensorsCount(ctx context.Context, count int) {
	record := c.storedState[c.cfg.ID]
	record.Sensors = &count
	c.storedState[c.cfg.ID] = record

	if err := c.store.Save(ctx, c.storedState); err != nil {
		c.logger.Warn("failed to persist sensor count", zap.Int("sensors", count), zap.Error(err))
	}
}

func (c *Client) discoverPowerAndEnergy(ctx context.Context, values model.ValueMapping) error {
	for _, ch := range Channels {
		source := model.Source{Resource: model.ResourceHeat, ID: int(ch)}
		raw, ok, err := c.readRaw(ctx, source)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}

		e, v, ok := c.channelEntity(ch, raw)
		if !ok {
			return nil
		}
		c.catalog.Add(e)
		values[e.LocalID] = v
	}
	return nil
}

// channelEntity builds the entity of a heat channel from its first value.
func (c *Client) channelEntity(ch Channel, raw string) (model.Entity, model.Value, bool) {
	source := model.Source{Resource: model.ResourceHeat, ID: int(ch)}
	if ch == ChannelActual {
		v, ok := c.parsePower(ch, raw)
		if !ok {
			return model.Entity{}, model.Value{}, false
		}
		return model.NewEntity(c.cfg.ID, model.KindPower, powerLocalID(ch), "Actual power", source), model.Number(v), true
	}

	period := channelPeriods[ch]
	v, ok := c.parseEnergy(ch, raw)
	if !ok {
		return model.Entity{}, model.Value{}, false
	}
	return model.NewEnergyEntity(c.cfg.ID, energyLocalID(period), energyName(period), period, source), model.Number(v), true
}

func (c *Client) discoverRelays(ctx context.Context, values model.ValueMapping) error {
	for id := 1; id <= MaxRelays; id++ {
		source := model.Source{Resource: model.ResourceRelays, ID: id}
		raw, ok, err := c.readRaw(ctx, source)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}

		v, kind, ok := c.parseRelay(id, raw)
		if !ok {
			continue
		}
		e := model.NewEntity(c.cfg.ID, kind, relayLocalID(id), fmt.Sprintf("Relay %d", id), source)
		c.catalog.Add(e)
		values[e.LocalID] = v
	}
	return nil
}

func (c *Client) parsePower(ch Channel, raw string) (float64, bool) {
	v, ok := ParsePower(raw)
	if !ok {
		c.logger.Debug("invalid power value", zap.Int("channel", int(ch)), zap.String("value", raw))
	}
	return v, ok
}

func (c *Client) parseEnergy(ch Channel, raw string) (float64, bool) {
	v, ok := ParseEnergy(raw)
	if !ok {
		c.logger.Debug("invalid energy value", zap.Int("channel", int(ch)), zap.String("value", raw))
	}
	return v, ok
}

func (c *Client) parseRelay(id int, raw string) (model.Value, model.Kind, bool) {
	v, kind, ok := ParseRelayState(raw)
	if !ok {
		c.logger.Debug("unknown relay value", zap.Int("relay", id), zap.String("value", raw))
	}
	return v, kind, ok
}
