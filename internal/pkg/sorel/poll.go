package sorel

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/anicoll/sorel-connect/internal/pkg/model"
)

// Refresh reads the value of every catalog entity. An entity that fails is
// logged and left out of the mapping; the cycle only fails when login fails
// or when every entity failed.
func (c *Client) Refresh(ctx context.Context) (model.ValueMapping, error) {
	if err := c.Login(ctx); err != nil {
		return nil, err
	}

	values := model.ValueMapping{}
	entities := c.catalog.Entities()
	var errs []error
	for _, e := range entities {
		v, ok, err := c.readEntity(ctx, e)
		if err != nil {
			c.logger.Error("failed to refresh entity", zap.String("entity", e.LocalID), zap.Error(err))
			errs = append(errs, fmt.Errorf("%s: %w", e.LocalID, err))
			continue
		}
		if !ok {
			continue
		}
		values[e.LocalID] = v
	}

	if len(entities) > 0 && len(errs) == len(entities) {
		return nil, errors.Join(errs...)
	}

	c.setValues(values)
	c.logger.Debug("refreshed", zap.Int("values", len(values)), zap.Int("failed", len(errs)))
	return values.Clone(), nil
}

// readEntity fetches and parses one entity with the parser used at discovery.
func (c *Client) readEntity(ctx context.Context, e model.Entity) (model.Value, bool, error) {
	raw, ok, err := c.readRaw(ctx, e.Source)
	if err != nil || !ok {
		return model.Value{}, false, err
	}

	switch e.Kind {
	case model.KindTemperature:
		v, err := ParseTemperature(raw)
		if err != nil {
			return model.Value{}, false, err
		}
		return model.Number(v), true, nil
	case model.KindPower:
		v, ok := c.parsePower(Channel(e.Source.ID), raw)
		return model.Number(v), ok, nil
	case model.KindEnergy:
		v, ok := c.parseEnergy(Channel(e.Source.ID), raw)
		return model.Number(v), ok, nil
	case model.KindOnOff, model.KindPercentage:
		v, _, ok := c.parseRelay(e.Source.ID, raw)
		return v, ok, nil
	}
	return model.Value{}, false, fmt.Errorf("unsupported entity kind %q", e.Kind)
}
