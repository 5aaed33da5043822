// Package sweeper periodically expires scheduled requests whose caregiver
// response deadline has passed.
package sweeper

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

type expirer interface {
	ExpireOverdue(ctx context.Context) (int, error)
}

type Sweeper struct {
	cron    *cron.Cron
	svc     expirer
	log     *slog.Logger
	timeout time.Duration
}

// New registers the sweep on schedule, which accepts standard five-field
// cron expressions and descriptors such as "@every 1m".
func New(svc expirer, schedule string, log *slog.Logger) (*Sweeper, error) {
	if log == nil {
		log = slog.Default()
	}
	s := &Sweeper{
		cron:    cron.New(),
		svc:     svc,
		log:     log.With(slog.String("component", "sweeper")),
		timeout: 30 * time.Second,
	}
	if _, err := s.cron.AddFunc(schedule, func() { s.Run(context.Background()) }); err != nil {
		return nil, fmt.Errorf("schedule sweep %q: %w", schedule, err)
	}
	return s, nil
}

func (s *Sweeper) Start() {
	s.log.Info("sweeper started")
	s.cron.Start()
}

// Stop waits for a sweep in flight to finish.
func (s *Sweeper) Stop() {
	<-s.cron.Stop().Done()
	s.log.Info("sweeper stopped")
}

// Run performs one sweep and returns the number of requests expired.
func (s *Sweeper) Run(ctx context.Context) int {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	n, err := s.svc.ExpireOverdue(ctx)
	if err != nil {
		s.log.ErrorContext(ctx, "sweep failed", slog.Int("expired", n), slog.Any("err", err))
		return n
	}
	if n > 0 {
		s.log.InfoContext(ctx, "expired overdue requests", slog.Int("expired", n))
	}
	return n
}
