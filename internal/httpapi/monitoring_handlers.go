package httpapi

import (
	"net/http"
	"time"

	"github.com/tomnet/tom/internal/queue"
)

type workerStatus struct {
	WorkerID         string    `json:"worker_id"`
	ActiveJobCount   int       `json:"active_job_count"`
	OldestAcquiredAt time.Time `json:"oldest_acquired_at"`
	LastHeartbeatAt  time.Time `json:"last_heartbeat_at"`
}

// handleMonitoringWorkers derives per-worker liveness from the ACTIVE jobs
// each consumer currently holds — there is no separate worker registry;
// the queue store's consumer_id column is the only source of truth for
// which workers exist (spec §4.1/§4.6).
func (s *Server) handleMonitoringWorkers(w http.ResponseWriter, r *http.Request) {
	active, err := s.queue.ActiveJobs()
	if err != nil {
		writeTomErr(w, err, false)
		return
	}

	byWorker := make(map[string]*workerStatus)
	for _, job := range active {
		if job.ConsumerID == "" {
			continue
		}
		ws, ok := byWorker[job.ConsumerID]
		if !ok {
			ws = &workerStatus{WorkerID: job.ConsumerID}
			byWorker[job.ConsumerID] = ws
		}
		ws.ActiveJobCount++
		if job.AcquiredAt != nil && (ws.OldestAcquiredAt.IsZero() || job.AcquiredAt.Before(ws.OldestAcquiredAt)) {
			ws.OldestAcquiredAt = *job.AcquiredAt
		}
		if job.LastHeartbeatAt != nil && job.LastHeartbeatAt.After(ws.LastHeartbeatAt) {
			ws.LastHeartbeatAt = *job.LastHeartbeatAt
		}
	}

	out := make([]workerStatus, 0, len(byWorker))
	for _, ws := range byWorker {
		out = append(out, *ws)
	}
	writeJSON(w, http.StatusOK, out)
}

type failedCommand struct {
	JobID      string         `json:"job_id"`
	Host       string         `json:"host"`
	Commands   []string       `json:"commands"`
	Error      *queue.JobError `json:"error"`
	Attempts   int            `json:"attempts"`
	UpdatedAt  time.Time      `json:"updated_at"`
}

func (s *Server) handleMonitoringFailedCommands(w http.ResponseWriter, r *http.Request) {
	limit := 100
	jobs, err := s.queue.FailedJobs(limit)
	if err != nil {
		writeTomErr(w, err, false)
		return
	}

	out := make([]failedCommand, 0, len(jobs))
	for _, job := range jobs {
		out = append(out, failedCommand{
			JobID:     job.ID,
			Host:      job.Payload.Host,
			Commands:  job.Payload.Commands,
			Error:     job.Error,
			Attempts:  job.Attempts,
			UpdatedAt: job.UpdatedAt,
		})
	}
	writeJSON(w, http.StatusOK, out)
}
