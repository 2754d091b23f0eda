package worker

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/tomnet/tom/internal/cache"
	"github.com/tomnet/tom/internal/gate"
	"github.com/tomnet/tom/internal/metrics"
	"github.com/tomnet/tom/internal/queue"
	"github.com/tomnet/tom/internal/tomerr"
)

const defaultCommandTimeout = 30 * time.Second

// defaultGateMaxWait matches internal/httpapi's defaultMaxQueueWait — the
// fallback a job falls back to if it somehow reaches the worker with no
// max_queue_wait_s set.
const defaultGateMaxWait = 60 * time.Second

// executeMisses resolves a credential, acquires the device's lease, opens a
// transport session, and runs the missed commands in declared order. Each
// command that succeeds is cached and recorded in data/meta immediately, so
// a later command's failure never erases an earlier one's result (spec's
// per-command cache-write independence).
func (w *Worker) executeMisses(job *queue.Job, misses []string, statusByCommand map[string]cache.Status, data map[string]string, meta map[string]queue.CacheMeta, logger *zap.Logger) error {
	cred, err := w.resolveCredential(job.Payload)
	if err != nil {
		return err
	}

	adapter, ok := w.adapters[job.Payload.Adapter]
	if !ok {
		return adapterNotConfigured(job.Payload.Adapter)
	}

	holderID := gate.NewHolderID()
	gateMaxWait := timeoutOrDefault(job.Payload.MaxQueueWaitS, defaultGateMaxWait)
	ctx := context.Background()

	lease, err := w.gate.Acquire(ctx, job.Payload.Host, holderID, gateMaxWait)
	if err != nil {
		if err == gate.ErrGating {
			return tomerr.Wrap(tomerr.KindGatingError, err, "device lease unavailable")
		}
		return tomerr.Wrap(tomerr.KindInternal, err, "lease acquisition failed")
	}
	metrics.SetActiveLeases(job.Payload.Host, 1)
	defer func() {
		_ = w.gate.Release(lease)
		metrics.SetActiveLeases(job.Payload.Host, 0)
	}()

	stopRenew := w.startLeaseRenewal(lease, logger)
	defer stopRenew()

	connectCtx, cancelConnect := context.WithTimeout(ctx, defaultCommandTimeout)
	session, err := adapter.Open(connectCtx, job.Payload.Host, job.Payload.Port, job.Payload.AdapterDriver, job.Payload.AdapterOptions, cred)
	cancelConnect()
	if err != nil {
		return err
	}
	defer session.Close()

	ttl := job.Metadata.CacheTTLSeconds
	ordered := orderedByDeclaration(job.Metadata.Commands, misses)
	for _, cmd := range ordered {
		timeout := timeoutOrDefault(job.Payload.TimeoutS, defaultCommandTimeout)
		out, err := session.Send(ctx, cmd, timeout)
		if err != nil {
			return err
		}

		data[cmd] = out
		status := statusByCommand[cmd]
		if status == cache.Miss || status == cache.Refresh {
			if err := w.cache.Put(job.Payload.Host, cmd, out, ttl); err != nil {
				logger.Warn("cache put failed", zap.String("command", cmd), zap.Error(err))
			}
			now := time.Now().UTC()
			cacheStatus := queue.CacheMiss
			if status == cache.Refresh {
				cacheStatus = queue.CacheRefresh
			}
			zeroAge := int64(0)
			meta[cmd] = queue.CacheMeta{Status: cacheStatus, CachedAt: &now, AgeSeconds: &zeroAge}
		} else {
			meta[cmd] = queue.CacheMeta{Status: queue.CacheBypass}
		}
	}
	return nil
}

// startLeaseRenewal renews the lease at half its TTL for as long as the
// command loop is running. A failed renewal means the lease was reclaimed by
// another holder; it is logged but the in-flight command is allowed to run
// to completion rather than being torn down mid-write to the device.
func (w *Worker) startLeaseRenewal(lease *gate.Lease, logger *zap.Logger) func() {
	interval := time.Duration(w.cfg.LeaseTTLS) * time.Second / 2
	if interval <= 0 {
		interval = 150 * time.Second
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
				if err := w.gate.Renew(lease); err != nil {
					logger.Warn("lease renewal failed", zap.String("device_key", lease.DeviceKey), zap.Error(err))
				}
			}
		}
	}()
	return func() { close(stop) }
}
