package queue

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Supervisor periodically fails ACTIVE jobs whose last heartbeat is older
// than the worker liveness window as TRANSIENT, so Fail re-queues them while
// retries remain and marks them FAILED otherwise, preventing silent job loss
// on worker crash. Structured on the teacher's ticker-driven background loop
// (jobs/scheduler.go's Start/Stop), adapted from push-dispatch to a sweep.
type Supervisor struct {
	store          *Store
	livenessWindow time.Duration
	sweepInterval  time.Duration
	logger         *zap.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewSupervisor(store *Store, livenessWindow time.Duration, logger *zap.Logger) *Supervisor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Supervisor{
		store:          store,
		livenessWindow: livenessWindow,
		sweepInterval:  10 * time.Second,
		logger:         logger.Named("queue.supervisor"),
	}
}

// Start begins the background sweep loop. Safe to call once.
func (s *Supervisor) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}
	loopCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.sweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-loopCtx.Done():
				return
			case <-ticker.C:
				s.sweep()
			}
		}
	}()
}

func (s *Supervisor) Stop() {
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.mu.Unlock()
	s.wg.Wait()
}

func (s *Supervisor) sweep() {
	stale, err := s.store.StaleActive(s.livenessWindow)
	if err != nil {
		s.logger.Warn("stale-active query failed", zap.Error(err))
		return
	}
	for _, job := range stale {
		if err := s.store.Fail(job.ID, JobError{Kind: "GATING_ERROR", Message: "worker liveness window exceeded"}, RetryTransient); err != nil {
			s.logger.Warn("requeue stale job failed", zap.String("job_id", job.ID), zap.Error(err))
			continue
		}
		s.logger.Info("requeued stale active job", zap.String("job_id", job.ID), zap.Int("attempts", job.Attempts+1))
	}
}
