package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/anicoll/sorel-connect/internal/pkg/config"
	"github.com/anicoll/sorel-connect/internal/pkg/model"
	"github.com/anicoll/sorel-connect/pkg/sockets"
)

type sorelClient interface {
	Catalog() model.Catalog
	Values() (model.ValueMapping, time.Time)
}

const redacted = "**REDACTED**"

type server struct {
	client   sorelClient
	hub      *sockets.Hub
	registry *prometheus.Registry
	cfg      *config.SorelConfig
	logger   *zap.Logger
	now      func() time.Time
}

type Option func(*server)

// WithConfig exposes the installation settings, password redacted, on /api/diagnostics.
func WithConfig(cfg *config.SorelConfig) Option {
	return func(s *server) {
		s.cfg = cfg
	}
}

// DiagnosticsResponse is the body of GET /api/diagnostics.
type DiagnosticsResponse struct {
	Configuration *DiagnosticsConfig `json:"configuration,omitempty"`
	Entities      map[model.Kind]int `json:"entities"`
	UpdatedAt     *time.Time         `json:"updated_at,omitempty"`
	Clients       int                `json:"websocket_clients"`
}

type DiagnosticsConfig struct {
	ID           string `json:"id"`
	Email        string `json:"email"`
	Password     string `json:"password"`
	PollInterval string `json:"poll_interval"`
	HostFormat   string `json:"host_format"`
}

// ValuesResponse is the body of GET /api/values and the websocket snapshot.
type ValuesResponse struct {
	UpdatedAt *time.Time      `json:"updated_at,omitempty"`
	Readings  []model.Reading `json:"readings"`
}

func New(client sorelClient, registry *prometheus.Registry, opts ...Option) *server {
	s := &server{
		client:   client,
		registry: registry,
		logger:   zap.L(),
		now:      time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	s.hub = sockets.New(
		sockets.AllowAnyOrigin(),
		sockets.OnConnected(s.sendSnapshot),
		sockets.OnError(func(err error) {
			s.logger.Debug("websocket error", zap.Error(err))
		}),
	)
	return s
}

func (s *server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.GetHealth)
	mux.HandleFunc("GET /api/entities", s.GetEntities)
	mux.HandleFunc("GET /api/values", s.GetValues)
	mux.HandleFunc("GET /api/diagnostics", s.GetDiagnostics)
	mux.Handle("GET /ws", s.hub)
	if s.registry != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	}
	return LoggingMiddleware(s.logger, mux)
}

// Close disconnects every websocket client.
func (s *server) Close() error {
	return s.hub.Close()
}

func (s *server) GetHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func (s *server) GetEntities(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, s.client.Catalog().Entities())
}

func (s *server) GetValues(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, s.snapshot())
}

func (s *server) GetDiagnostics(w http.ResponseWriter, _ *http.Request) {
	catalog := s.client.Catalog()
	res := DiagnosticsResponse{
		Entities: make(map[model.Kind]int, len(catalog)),
		Clients:  s.hub.Len(),
	}
	for kind, entities := range catalog {
		res.Entities[kind] = len(entities)
	}
	if _, updatedAt := s.client.Values(); !updatedAt.IsZero() {
		res.UpdatedAt = &updatedAt
	}
	if s.cfg != nil {
		res.Configuration = &DiagnosticsConfig{
			ID:           s.cfg.ID,
			Email:        s.cfg.Email,
			Password:     redacted,
			PollInterval: s.cfg.PollInterval.String(),
			HostFormat:   s.cfg.HostFormat,
		}
	}
	writeJSON(w, res)
}

func (s *server) snapshot() ValuesResponse {
	values, updatedAt := s.client.Values()
	now := s.now()
	res := ValuesResponse{Readings: []model.Reading{}}
	if !updatedAt.IsZero() {
		res.UpdatedAt = &updatedAt
	}
	for _, e := range s.client.Catalog().Entities() {
		res.Readings = append(res.Readings, model.Render(e, values, now))
	}
	return res
}

func (s *server) sendSnapshot(c sockets.Connection) {
	data, err := json.Marshal(feedMessage{Type: messageSnapshot, Snapshot: s.snapshot()})
	if err != nil {
		s.logger.Error("failed to encode snapshot", zap.Error(err))
		return
	}
	if err := c.Send(data); err != nil {
		s.logger.Debug("failed to send snapshot", zap.Error(err))
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		handleError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

func handleError(w http.ResponseWriter, err error) {
	w.WriteHeader(http.StatusInternalServerError)
	w.Write([]byte(err.Error()))
}
