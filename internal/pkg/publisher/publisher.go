package publisher

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/anicoll/sorel-connect/internal/pkg/model"
)

var errAlreadyRegistered = errors.New("publisher already registered")

type writer interface {
	// RegisterEntities announces the entities before any value is written.
	RegisterEntities(ctx context.Context, entities []model.Entity) error
	// Write publishes readings whose value changed since the last cycle.
	Write(ctx context.Context, readings []model.Reading) error
	// SetAvailable reports whether the last cycle produced data.
	SetAvailable(ctx context.Context, available bool) error
}

// Publisher fans refresh results out to the registered writers.
type Publisher struct {
	mu      sync.Mutex
	writers map[string]writer
	sensors sync.Map
	logger  *zap.Logger
	now     func() time.Time
}

func New(logger *zap.Logger) *Publisher {
	if logger == nil {
		logger = zap.L()
	}
	return &Publisher{
		writers: make(map[string]writer),
		logger:  logger,
		now:     time.Now,
	}
}

func (p *Publisher) Register(name string, w writer) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.writers[name]; ok {
		return errAlreadyRegistered
	}
	p.writers[name] = w
	return nil
}

func (p *Publisher) each(fn func(name string, w writer)) {
	p.mu.Lock()
	writers := lo.Assign(p.writers)
	p.mu.Unlock()
	for name, w := range writers {
		fn(name, w)
	}
}

func (p *Publisher) RegisterEntities(ctx context.Context, catalog model.Catalog) {
	entities := catalog.Entities()
	p.each(func(name string, w writer) {
		if err := w.RegisterEntities(ctx, entities); err != nil {
			p.logger.Error("failed to register entities", zap.Error(err), zap.String("publisher", name))
			return
		}
		p.logger.Debug("registered entities", zap.Int("count", len(entities)), zap.String("publisher", name))
	})
}

// OnRefresh publishes the readings that changed. A failed cycle only marks
// the data unavailable; the last published values stay as they are.
func (p *Publisher) OnRefresh(ctx context.Context, catalog model.Catalog, values model.ValueMapping, err error) {
	if err != nil {
		p.setAvailable(ctx, false)
		return
	}

	now := p.now()
	readings := lo.FilterMap(catalog.Entities(), func(e model.Entity, _ int) (model.Reading, bool) {
		r := model.Render(e, values, now)
		if r.Value == nil {
			return r, false
		}
		return r, p.shouldUpdate(e.UniqueID, r.Value.String())
	})

	p.setAvailable(ctx, true)
	if len(readings) == 0 {
		return
	}
	failed := false
	p.each(func(name string, w writer) {
		if err := w.Write(ctx, readings); err != nil {
			failed = true
			p.logger.Error("failed to publish data", zap.Error(err), zap.String("publisher", name))
			return
		}
		p.logger.Debug("updated sensors", zap.Int("count", len(readings)), zap.String("publisher", name))
	})
	// a value is kept only once every writer has it.
	if failed {
		return
	}
	for _, r := range readings {
		p.record(r.Entity.UniqueID, r.Value.String())
	}
}

func (p *Publisher) setAvailable(ctx context.Context, available bool) {
	p.each(func(name string, w writer) {
		if err := w.SetAvailable(ctx, available); err != nil {
			p.logger.Error("failed to publish availability", zap.Error(err), zap.String("publisher", name), zap.Bool("available", available))
		}
	})
}

func (p *Publisher) shouldUpdate(key, newValue string) bool {
	oldValue, exists := p.sensors.Load(key)
	return !exists || !strings.EqualFold(newValue, oldValue.(string))
}

func (p *Publisher) record(key, value string) {
	if _, loaded := p.sensors.Swap(key, value); !loaded {
		p.logger.Info("configured sensor", zap.String("sensor", key), zap.String("value", value))
	}
}
