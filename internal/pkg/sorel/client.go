package sorel

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/anicoll/sorel-connect/internal/pkg/config"
	"github.com/anicoll/sorel-connect/internal/pkg/model"
	"github.com/anicoll/sorel-connect/internal/pkg/store"
)

const (
	MaxSensors = 10
	MaxRelays  = 5

	DefaultHostFormat = "https://%s.sorel-connect.net"
)

// Client talks to the portal of a single installation. Calls are not meant
// to overlap; the mutex only makes snapshots safe for concurrent readers.
type Client struct {
	cfg     *config.SorelConfig
	fetcher Fetcher
	store   store.Store
	logger  *zap.Logger
	now     func() time.Time

	mu           sync.Mutex
	cookies      []*http.Cookie
	sensorsCount *int
	storedState  store.State
	catalog      model.Catalog
	values       model.ValueMapping
	refreshedAt  time.Time
}

type Option func(*Client)

func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		c.now = now
	}
}

func New(cfg *config.SorelConfig, fetcher Fetcher, st store.Store, opts ...Option) *Client {
	c := &Client{
		cfg:     cfg,
		fetcher: fetcher,
		store:   st,
		logger:  zap.L(), // returns the global logger.
		now:     time.Now,
		catalog: model.Catalog{},
		values:  model.ValueMapping{},
	}
	for _, o := range opts {
		o(c)
	}
	c.logger = c.logger.With(zap.String("installation", cfg.ID))
	return c
}

// Catalog returns the entities found by Initialize.
func (c *Client) Catalog() model.Catalog {
	return c.catalog
}

// Values returns a copy of the most recent values and when they were read.
func (c *Client) Values() (model.ValueMapping, time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.values.Clone(), c.refreshedAt
}

func (c *Client) setValues(values model.ValueMapping) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values = values
	c.refreshedAt = c.now()
}

func (c *Client) baseURL() string {
	format := c.cfg.HostFormat
	if format == "" {
		format = DefaultHostFormat
	}
	return fmt.Sprintf(format, c.cfg.ID)
}

func (c *Client) loginURL() string {
	q := url.Values{}
	q.Set("email", c.cfg.Email)
	q.Set("password", c.cfg.Password)
	return c.baseURL() + "/nabto/hosted_plugin/login/execute?" + q.Encode()
}

func (c *Client) sourceURL(s model.Source) string {
	return fmt.Sprintf("%s/%s.json?id=%d", c.baseURL(), s.Resource, s.ID)
}

// Initialize loads the persisted discovery state, logs in and discovers all entities.
func (c *Client) Initialize(ctx context.Context) error {
	if err := c.loadStoredState(ctx); err != nil {
		return err
	}
	if err := c.Login(ctx); err != nil {
		return err
	}

	values := model.ValueMapping{}
	if err := c.discoverSensors(ctx, values); err != nil {
		return err
	}
	if err := c.discoverPowerAndEnergy(ctx, values); err != nil {
		return err
	}
	if err := c.discoverRelays(ctx, values); err != nil {
		return err
	}
	c.setValues(values)

	c.logger.Info("discovery done",
		zap.Int("entities", c.catalog.Len()),
		zap.Int("temperature", len(c.catalog[model.KindTemperature])),
		zap.Int("power", len(c.catalog[model.KindPower])),
		zap.Int("energy", len(c.catalog[model.KindEnergy])),
		zap.Int("relays", len(c.catalog[model.KindOnOff])+len(c.catalog[model.KindPercentage])),
	)
	return nil
}
