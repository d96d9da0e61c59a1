package publisher

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"github.com/anicoll/sorel-connect/internal/pkg/model"
)

// MockWriter records every call it receives.
type MockWriter struct {
	mu sync.Mutex

	WriteFunc func(readings []model.Reading) error

	entities     [][]model.Entity
	writes       [][]model.Reading
	availability []bool
}

func (m *MockWriter) RegisterEntities(_ context.Context, entities []model.Entity) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entities = append(m.entities, entities)
	return nil
}

func (m *MockWriter) Write(_ context.Context, readings []model.Reading) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writes = append(m.writes, readings)
	if m.WriteFunc != nil {
		return m.WriteFunc(readings)
	}
	return nil
}

func (m *MockWriter) SetAvailable(_ context.Context, available bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.availability = append(m.availability, available)
	return nil
}

func testCatalog() model.Catalog {
	c := model.Catalog{}
	c.Add(model.NewEntity("abc", model.KindTemperature, "sensor_1", "Sensor 1", model.Source{Resource: model.ResourceSensors, ID: 1}))
	c.Add(model.NewEntity("abc", model.KindOnOff, "relay_1", "Relay 1", model.Source{Resource: model.ResourceRelays, ID: 1}))
	c.Add(model.NewEnergyEntity("abc", "energy_sensor_total", "Total energy", model.PeriodTotal, model.Source{Resource: model.ResourceHeat, ID: 22}))
	return c
}

func localIDs(readings []model.Reading) []string {
	return lo.Map(readings, func(r model.Reading, _ int) string { return r.Entity.LocalID })
}

func TestRegister_Duplicate(t *testing.T) {
	t.Parallel()
	p := New(zaptest.NewLogger(t))
	require.NoError(t, p.Register("mqtt", &MockWriter{}))
	assert.ErrorIs(t, p.Register("mqtt", &MockWriter{}), errAlreadyRegistered)
}

func TestRegisterEntities(t *testing.T) {
	t.Parallel()
	p := New(zaptest.NewLogger(t))
	a, b := &MockWriter{}, &MockWriter{}
	require.NoError(t, p.Register("a", a))
	require.NoError(t, p.Register("b", b))

	p.RegisterEntities(context.Background(), testCatalog())

	for _, w := range []*MockWriter{a, b} {
		require.Len(t, w.entities, 1)
		assert.Len(t, w.entities[0], 3)
	}
}

func TestOnRefresh_PublishesChangesOnly(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	p := New(zaptest.NewLogger(t))
	w := &MockWriter{}
	require.NoError(t, p.Register("w", w))
	catalog := testCatalog()

	p.OnRefresh(ctx, catalog, model.ValueMapping{
		"sensor_1":            model.Number(21),
		"relay_1":             model.StateValue(model.StateOff),
		"energy_sensor_total": model.Number(15000),
	}, nil)
	require.Len(t, w.writes, 1)
	assert.Equal(t, []string{"sensor_1", "relay_1", "energy_sensor_total"}, localIDs(w.writes[0]))
	// readings are rendered for display.
	assert.Equal(t, model.Number(15), *w.writes[0][2].Value)

	p.OnRefresh(ctx, catalog, model.ValueMapping{
		"sensor_1":            model.Number(22),
		"relay_1":             model.StateValue(model.StateOff),
		"energy_sensor_total": model.Number(15000),
	}, nil)
	require.Len(t, w.writes, 2)
	assert.Equal(t, []string{"sensor_1"}, localIDs(w.writes[1]))

	p.OnRefresh(ctx, catalog, model.ValueMapping{
		"sensor_1": model.Number(22),
		"relay_1":  model.StateValue(model.StateOff),
	}, nil)
	assert.Len(t, w.writes, 2, "nothing changed, nothing written")
	assert.Equal(t, []bool{true, true, true}, w.availability)
}

func TestOnRefresh_FailedCycle(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	p := New(zaptest.NewLogger(t))
	w := &MockWriter{}
	require.NoError(t, p.Register("w", w))
	values := model.ValueMapping{"sensor_1": model.Number(21)}

	p.OnRefresh(ctx, testCatalog(), values, nil)
	p.OnRefresh(ctx, testCatalog(), nil, errors.New("service unavailable"))

	assert.Len(t, w.writes, 1)
	assert.Equal(t, []bool{true, false}, w.availability)

	// the next good cycle restores availability without republishing old values.
	p.OnRefresh(ctx, testCatalog(), values, nil)
	assert.Len(t, w.writes, 1)
	assert.Equal(t, []bool{true, false, true}, w.availability)
}

func TestOnRefresh_WriterErrorIsLogged(t *testing.T) {
	t.Parallel()
	core, logs := observer.New(zapcore.ErrorLevel)
	p := New(zap.New(core))
	failing := &MockWriter{WriteFunc: func([]model.Reading) error { return errors.New("broker gone") }}
	ok := &MockWriter{}
	require.NoError(t, p.Register("failing", failing))
	require.NoError(t, p.Register("ok", ok))

	p.OnRefresh(context.Background(), testCatalog(), model.ValueMapping{"sensor_1": model.Number(21)}, nil)

	assert.Len(t, ok.writes, 1)
	entries := logs.FilterMessage("failed to publish data").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "failing", entries[0].ContextMap()["publisher"])
}

func TestOnRefresh_RetriesAfterWriteError(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	p := New(zaptest.NewLogger(t))
	var fail atomic.Bool
	fail.Store(true)
	flaky := &MockWriter{WriteFunc: func([]model.Reading) error {
		if fail.Load() {
			return errors.New("broker gone")
		}
		return nil
	}}
	ok := &MockWriter{}
	require.NoError(t, p.Register("flaky", flaky))
	require.NoError(t, p.Register("ok", ok))
	values := model.ValueMapping{"sensor_1": model.Number(21)}

	p.OnRefresh(ctx, testCatalog(), values, nil)
	require.Len(t, flaky.writes, 1)

	// the unchanged value is written again since one writer missed it.
	fail.Store(false)
	p.OnRefresh(ctx, testCatalog(), values, nil)
	require.Len(t, flaky.writes, 2)
	assert.Equal(t, []string{"sensor_1"}, localIDs(flaky.writes[1]))
	assert.Len(t, ok.writes, 2)

	p.OnRefresh(ctx, testCatalog(), values, nil)
	assert.Len(t, flaky.writes, 2)
	assert.Len(t, ok.writes, 2)
}

func TestOnRefresh_UsesClock(t *testing.T) {
	t.Parallel()
	p := New(zaptest.NewLogger(t))
	p.now = func() time.Time { return time.Date(2026, time.May, 2, 8, 0, 0, 0, time.UTC) }
	w := &MockWriter{}
	require.NoError(t, p.Register("w", w))

	c := model.Catalog{}
	c.Add(model.NewEnergyEntity("abc", "energy_sensor_month", "Month energy", model.PeriodMonth, model.Source{Resource: model.ResourceHeat, ID: 20}))
	p.OnRefresh(context.Background(), c, model.ValueMapping{"energy_sensor_month": model.Number(40)}, nil)

	require.Len(t, w.writes, 1)
	require.NotNil(t, w.writes[0][0].LastReset)
	assert.Equal(t, time.Date(2026, time.May, 1, 0, 0, 0, 0, time.UTC), *w.writes[0][0].LastReset)
}
