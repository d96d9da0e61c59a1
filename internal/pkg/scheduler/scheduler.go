package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/anicoll/sorel-connect/internal/pkg/model"
)

type refresher interface {
	Refresh(ctx context.Context) (model.ValueMapping, error)
	Catalog() model.Catalog
}

// Sink receives the result of every refresh cycle. values is nil when err is set.
type Sink interface {
	OnRefresh(ctx context.Context, catalog model.Catalog, values model.ValueMapping, err error)
}

type observer interface {
	ObserveCycle(catalog model.Catalog, values model.ValueMapping, took time.Duration, err error)
}

type Scheduler struct {
	client   refresher
	sinks    []Sink
	observer observer
	interval time.Duration
	logger   *zap.Logger
}

type Option func(*Scheduler)

func WithSink(s Sink) Option {
	return func(sc *Scheduler) {
		sc.sinks = append(sc.sinks, s)
	}
}

func WithObserver(o observer) Option {
	return func(sc *Scheduler) {
		sc.observer = o
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(sc *Scheduler) {
		sc.logger = logger
	}
}

func New(client refresher, interval time.Duration, opts ...Option) *Scheduler {
	s := &Scheduler{
		client:   client,
		interval: interval,
		logger:   zap.L(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Run performs a first cycle straight away, then one per interval until ctx
// is done. A cycle still running when the next one is due makes that one skip.
func (s *Scheduler) Run(ctx context.Context) error {
	if s.interval <= 0 {
		return errors.New("poll interval must be positive")
	}

	s.RunCycle(ctx)

	logger := cronLogger{s.logger.Sugar()}
	c := cron.New(
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)
	if _, err := c.AddFunc(fmt.Sprintf("@every %s", s.interval), func() {
		s.RunCycle(ctx)
	}); err != nil {
		return err
	}

	c.Start()
	<-ctx.Done()
	<-c.Stop().Done()
	s.logger.Info("scheduler stopped")
	return ctx.Err()
}

// RunCycle refreshes once and hands the result to every sink.
func (s *Scheduler) RunCycle(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	start := time.Now()
	values, err := s.client.Refresh(ctx)
	took := time.Since(start)
	catalog := s.client.Catalog()

	if err != nil {
		s.logger.Error("refresh failed, data unavailable this cycle", zap.Error(err), zap.Duration("took", took))
	} else {
		s.logger.Info("refreshed", zap.Int("values", len(values)), zap.Duration("took", took))
	}

	if s.observer != nil {
		s.observer.ObserveCycle(catalog, values, took, err)
	}
	for _, sink := range s.sinks {
		sink.OnRefresh(ctx, catalog, values, err)
	}
}

// cronLogger adapts zap to cron.Logger.
type cronLogger struct {
	logger *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Errorw(msg, append(keysAndValues, "error", err)...)
}
