package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/msp-docs/psa-sync/internal/config"
	"github.com/msp-docs/psa-sync/internal/domain"
	"github.com/msp-docs/psa-sync/internal/orchestrator"
	"github.com/msp-docs/psa-sync/internal/platform/logger"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
)

type Runner interface {
	Trigger(ctx context.Context, req orchestrator.TriggerRequest) (*domain.SyncRun, error)
}

type ConnectionLister interface {
	ListConnections(ctx context.Context) ([]domain.Connection, error)
}

// Scheduler queues due connections on every tick and hands them to a fixed
// pool of workers.  A connection is queued at most once until its worker is
// done with it.
type Scheduler struct {
	connections ConnectionLister
	runner      Runner
	tick        time.Duration
	workers     int
	queue       chan domain.ConnectionID
	pending     sync.Map
	now         func() time.Time
}

func New(cfg *config.Config, connections ConnectionLister, runner Runner) *Scheduler {
	workers := cfg.SchedulerWorkers
	if workers <= 0 {
		workers = 1
	}

	tick := cfg.SchedulerTick
	if tick <= 0 {
		tick = time.Minute
	}

	queueSize := cfg.SchedulerQueueSize
	if queueSize <= 0 {
		queueSize = workers
	}

	return &Scheduler{
		connections: connections,
		runner:      runner,
		tick:        tick,
		workers:     workers,
		queue:       make(chan domain.ConnectionID, queueSize),
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Run ticks until ctx is cancelled, then waits for the workers to finish
// their current runs.
func (s *Scheduler) Run(ctx context.Context) {

	logger.Log.WithFields(logrus.Fields{"workers": s.workers, "tick": s.tick, "queue_size": cap(s.queue)}).Info("Starting sync scheduler")

	var wg sync.WaitGroup
	for i := 0; i < s.workers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			s.work(ctx, id)
		}(i)
	}

	s.Tick(ctx)

	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Log.Info("Stopping sync scheduler")
			wg.Wait()
			return
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick queues every enabled connection that is due and returns how many were
// queued.  Connections that do not fit in the queue wait for the next tick.
func (s *Scheduler) Tick(ctx context.Context) int {
	connections, err := s.connections.ListConnections(ctx)
	if err != nil {
		logger.LogError("Unable to list connections for scheduling", err)
		return 0
	}

	now := s.now()
	queued := 0

	for _, conn := range connections {
		if !conn.Enabled || !conn.Due(now) {
			continue
		}

		if s.Enqueue(conn.ID) {
			queued++
		}
	}

	logger.Log.WithFields(logrus.Fields{"connections": len(connections), "queued": queued}).Debug("Scheduler tick")

	return queued
}

// Enqueue reports whether the connection was added to the queue.  It is not
// added when it is already queued or running, or when the queue is full.
func (s *Scheduler) Enqueue(connID domain.ConnectionID) bool {
	if _, alreadyPending := s.pending.LoadOrStore(connID, struct{}{}); alreadyPending {
		return false
	}

	select {
	case s.queue <- connID:
		metrics.enqueuedCounter.Inc()
		metrics.queueDepthGauge.Set(float64(len(s.queue)))
		return true
	default:
		s.pending.Delete(connID)
		metrics.queueFullCounter.Inc()
		logger.Log.WithFields(logrus.Fields{"connection_id": connID.String()}).Warn("Sync queue is full; connection left for the next tick")
		return false
	}
}

func (s *Scheduler) work(ctx context.Context, id int) {
	for {
		select {
		case <-ctx.Done():
			return
		case connID := <-s.queue:
			metrics.queueDepthGauge.Set(float64(len(s.queue)))
			s.runOne(ctx, id, connID)
			s.pending.Delete(connID)
		}
	}
}

func (s *Scheduler) runOne(ctx context.Context, worker int, connID domain.ConnectionID) {
	log := logger.Log.WithFields(logrus.Fields{"connection_id": connID.String(), "worker": worker})

	run, err := s.runner.Trigger(ctx, orchestrator.TriggerRequest{ConnectionID: connID, Source: domain.TriggerSchedule})

	switch {
	case errors.Is(err, orchestrator.ErrNotDue), errors.Is(err, domain.ErrConnectionDisabled), errors.Is(err, domain.ErrNotFound):
		log.WithFields(logrus.Fields{"reason": err}).Debug("Scheduled sync not started")
		metrics.triggerCounter.With(prometheus.Labels{"result": "not_started"}).Inc()
	case err != nil:
		log.WithFields(logrus.Fields{"error": err}).Error("Scheduled sync could not be run")
		metrics.triggerCounter.With(prometheus.Labels{"result": "error"}).Inc()
	case run == nil:
		metrics.triggerCounter.With(prometheus.Labels{"result": "already_running"}).Inc()
	default:
		log.WithFields(logrus.Fields{"run_id": run.ID.String(), "status": run.Status}).Debug("Scheduled sync finished")
		metrics.triggerCounter.With(prometheus.Labels{"result": string(run.Status)}).Inc()
	}
}
