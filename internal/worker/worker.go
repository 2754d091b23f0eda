// Package worker implements the pull-based execution loop: fetch a job,
// partition its commands against the response cache, execute whatever
// missed against the device under a per-device lease, and report the
// outcome back to the queue store. The controller and the queue/gate/cache
// stores are the only state shared with the worker; the worker itself is
// stateless across restarts (its identity is the configured worker id, or a
// fresh id per process when none is configured).
package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/tomnet/tom/internal/cache"
	"github.com/tomnet/tom/internal/config"
	"github.com/tomnet/tom/internal/credential"
	"github.com/tomnet/tom/internal/gate"
	"github.com/tomnet/tom/internal/metrics"
	"github.com/tomnet/tom/internal/queue"
	"github.com/tomnet/tom/internal/tomerr"
	"github.com/tomnet/tom/internal/transport"
)

// fetchPollTimeout bounds each blocking Fetch call so Run can notice a
// canceled context between polls without Fetch itself needing to.
const fetchPollTimeout = 5 * time.Second

// Deps are the collaborators a Worker needs. Adapters maps a payload's
// "A"/"B" adapter selector onto the transport implementation that drives it.
type Deps struct {
	Config     config.WorkerConfig
	Logger     *zap.Logger
	Queue      *queue.Store
	Gate       *gate.Gate
	Cache      *cache.Cache
	Credential credential.Plugin
	Adapters   map[string]transport.Adapter
}

// Worker runs the fetch → partition → execute → complete loop described
// above, holding one goroutine per in-flight job so that commands against
// different devices never block on each other.
type Worker struct {
	cfg        config.WorkerConfig
	logger     *zap.Logger
	queue      *queue.Store
	gate       *gate.Gate
	cache      *cache.Cache
	credential credential.Plugin
	adapters   map[string]transport.Adapter
	workerID   string

	wg sync.WaitGroup
}

func New(deps Deps) *Worker {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	workerID := deps.Config.WorkerID
	if workerID == "" {
		workerID = gate.NewHolderID()
	}
	return &Worker{
		cfg:        deps.Config,
		logger:     logger,
		queue:      deps.Queue,
		gate:       deps.Gate,
		cache:      deps.Cache,
		credential: deps.Credential,
		adapters:   deps.Adapters,
		workerID:   workerID,
	}
}

// Run polls the queue until ctx is canceled, dispatching each claimed job
// to its own goroutine. It returns once no more jobs will be claimed; callers
// should follow it with Shutdown to drain in-flight work.
func (w *Worker) Run(ctx context.Context) {
	w.logger.Info("worker loop starting", zap.String("worker_id", w.workerID))
	for ctx.Err() == nil {
		job, err := w.queue.Fetch(ctx, w.workerID, fetchPollTimeout)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			w.logger.Error("fetch failed", zap.Error(err))
			continue
		}
		if job == nil {
			continue
		}

		w.wg.Add(1)
		go func(j *queue.Job) {
			defer w.wg.Done()
			w.processJob(j)
		}(job)
	}
	w.logger.Info("worker loop stopped claiming new jobs", zap.String("worker_id", w.workerID))
}

// Shutdown waits for in-flight jobs to finish, up to grace. Jobs still
// running past the deadline are left ACTIVE for a future worker's stale
// sweep to reclaim — Shutdown never cancels a command already in flight on
// the wire.
func (w *Worker) Shutdown(grace time.Duration) {
	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(grace):
		w.logger.Warn("shutdown grace period elapsed with jobs still in flight", zap.String("worker_id", w.workerID))
	}
}

// processJob runs one job end to end and always leaves it in a terminal or
// requeued state via Complete/Fail before returning.
func (w *Worker) processJob(job *queue.Job) {
	start := time.Now()
	logger := w.logger.With(zap.String("job_id", job.ID), zap.String("host", job.Payload.Host))

	stopHeartbeat := w.startHeartbeat(job.ID)
	defer stopHeartbeat()

	outcomes, err := w.cache.Partition(job.Payload.Host, job.Metadata.Commands, cache.LookupOptions{
		UseCache:     job.Metadata.CacheUseCache,
		CacheRefresh: job.Metadata.CacheRefresh,
	})
	if err != nil {
		w.finishFailed(job, logger, tomerr.Wrap(tomerr.KindInternal, err, "cache partition failed"), start)
		return
	}
	recordCacheOutcomes(outcomes)

	data := make(map[string]string, len(job.Metadata.Commands))
	meta := make(map[string]queue.CacheMeta, len(job.Metadata.Commands))
	statusByCommand := make(map[string]cache.Status, len(outcomes))
	for _, o := range outcomes {
		statusByCommand[o.Command] = o.Status
		if o.Status != cache.Hit || o.Entry == nil {
			continue
		}
		data[o.Command] = o.Entry.RawOutput
		age := int64(time.Since(o.Entry.CachedAt).Seconds())
		cachedAt := o.Entry.CachedAt
		meta[o.Command] = queue.CacheMeta{Status: queue.CacheHit, CachedAt: &cachedAt, AgeSeconds: &age}
	}

	misses := cache.Misses(outcomes)
	if len(misses) > 0 {
		if err := w.executeMisses(job, misses, statusByCommand, data, meta, logger); err != nil {
			w.finishFailed(job, logger, err, start)
			return
		}
	}

	if err := w.queue.Complete(job.ID, queue.Result{Data: data, Meta: meta}); err != nil {
		logger.Error("complete failed", zap.Error(err))
		return
	}
	metrics.RecordJobTerminal(string(queue.StatusComplete), time.Since(start))
}

// finishFailed classifies err through the shared error taxonomy and applies
// it to the job, preserving whatever was already cached from a partial
// command run — partial success is never rolled back (open question: cache
// writes land independently of the job's final status).
func (w *Worker) finishFailed(job *queue.Job, logger *zap.Logger, err error, start time.Time) {
	kind := tomerr.KindOf(err)
	hint := queue.RetryFatal
	if te, ok := tomerr.As(err); ok && te.RetryHint() == tomerr.RetryTransient {
		hint = queue.RetryTransient
	}
	jobErr := queue.JobError{Kind: string(kind), Message: err.Error()}
	if ferr := w.queue.Fail(job.ID, jobErr, hint); ferr != nil {
		logger.Error("fail failed", zap.Error(ferr))
		return
	}
	logger.Warn("job failed", zap.String("kind", string(kind)), zap.Error(err))
	if hint == queue.RetryFatal || job.Payload.RetriesRemaining <= 0 {
		metrics.RecordJobTerminal(string(queue.StatusFailed), time.Since(start))
	}
}

func recordCacheOutcomes(outcomes []cache.Outcome) {
	for _, o := range outcomes {
		switch o.Status {
		case cache.Hit:
			metrics.CacheHitsTotal.Inc()
		case cache.Miss:
			metrics.CacheMissesTotal.Inc()
		case cache.Refresh:
			metrics.CacheRefreshesTotal.Inc()
		case cache.Bypass:
			metrics.CacheBypassTotal.Inc()
		}
	}
}

func (w *Worker) startHeartbeat(jobID string) func() {
	interval := time.Duration(w.cfg.WorkerLivenessS) * time.Second / 2
	if interval <= 0 {
		interval = 30 * time.Second
	}
	stop := make(chan struct{})
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				if err := w.queue.Heartbeat(jobID); err != nil {
					w.logger.Warn("heartbeat failed", zap.String("job_id", jobID), zap.Error(err))
				}
			}
		}
	}()
	return func() { close(stop) }
}

// resolveCredential prefers inline username/password (raw-adapter calls and
// per-request overrides) over the credential plugin lookup.
func (w *Worker) resolveCredential(payload queue.Payload) (*credential.Pair, error) {
	if payload.InlineUsername != "" {
		return &credential.Pair{Username: payload.InlineUsername, Password: payload.InlinePassword}, nil
	}
	if payload.CredentialRef == "" {
		return nil, tomerr.New(tomerr.KindValidation, "no credential reference or inline credential supplied")
	}
	pair, err := w.credential.Get(payload.CredentialRef)
	if err != nil {
		return nil, tomerr.Wrap(tomerr.KindAuthFailure, err, "credential lookup failed: "+payload.CredentialRef)
	}
	return pair, nil
}

func orderedByDeclaration(declared, subset []string) []string {
	want := make(map[string]struct{}, len(subset))
	for _, c := range subset {
		want[c] = struct{}{}
	}
	out := make([]string, 0, len(subset))
	for _, c := range declared {
		if _, ok := want[c]; ok {
			out = append(out, c)
		}
	}
	return out
}

func timeoutOrDefault(seconds int, fallback time.Duration) time.Duration {
	if seconds > 0 {
		return time.Duration(seconds) * time.Second
	}
	return fallback
}

func adapterNotConfigured(name string) error {
	return tomerr.New(tomerr.KindValidation, fmt.Sprintf("no transport adapter registered for %q", name))
}
