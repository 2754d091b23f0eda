package httpapi

import (
	"fmt"
	"net/http"
	"time"

	"github.com/tomnet/tom/internal/metrics"
	"github.com/tomnet/tom/internal/queue"
	"github.com/tomnet/tom/internal/tomerr"
)

const (
	defaultTimeout      = 30 * time.Second
	defaultMaxQueueWait = 60 * time.Second
)

func (s *Server) handleSendCommand(w http.ResponseWriter, r *http.Request) {
	s.doSend(w, r)
}

func (s *Server) handleSendCommands(w http.ResponseWriter, r *http.Request) {
	s.doSend(w, r)
}

// doSend implements both send_command and send_commands: they share one
// request shape (spec §6 lists one option set for both), differing only in
// whether the client populated "command" or "commands"/"command_specs".
func (s *Server) doSend(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")

	req, err := decodeSendRequest(r)
	if err != nil {
		writeTomErr(w, err, false)
		return
	}
	if err := req.validate(s.cfg.CacheMaxTTL); err != nil {
		writeTomErr(w, err, req.RawOutput)
		return
	}

	device, err := s.inventory.GetDevice(name)
	if err != nil {
		writeTomErr(w, err, req.RawOutput)
		return
	}
	if device == nil {
		writeTomErr(w, tomerr.New(tomerr.KindNotFound, "device not found: "+name), req.RawOutput)
		return
	}

	cmds, specs := req.commandList()
	payload := queue.Payload{
		Host:             device.Host,
		Port:             device.Port,
		Adapter:          device.Adapter,
		AdapterDriver:    device.AdapterDriver,
		Commands:         cmds,
		CredentialRef:    device.CredentialRef,
		InlineUsername:   req.Username,
		InlinePassword:   req.Password,
		AdapterOptions:   device.AdapterOptions,
		RetriesRemaining: req.Retries,
		MaxQueueWaitS:    int(req.maxQueueWaitDuration(defaultMaxQueueWait).Seconds()),
		TimeoutS:         int(req.timeoutDuration(defaultTimeout).Seconds()),
	}
	metadata := queue.Metadata{
		DevicePlatform: device.AdapterDriver,
		Commands:       cmds,
		ParseRequested: req.Parse,
		Parser:         req.Parser,
		Template:       req.Template,
		IncludeRaw:     req.IncludeRaw,
		CommandSpecs:   specs,
	}
	metadata.CacheUseCache = req.useCache(s.cfg.CacheEnabled)
	metadata.CacheRefresh = req.CacheRefresh
	metadata.CacheTTLSeconds = cacheTTLOrDefault(req.CacheTTL, s.cfg.CacheDefaultTTL)

	jobID, err := s.queue.Enqueue(payload, metadata)
	if err != nil {
		writeTomErr(w, tomerr.Wrap(tomerr.KindInternal, err, "enqueue failed"), req.RawOutput)
		return
	}
	s.reportQueueDepth()

	if !req.Wait {
		writeJSON(w, http.StatusAccepted, jobResponse{JobID: jobID, Status: queue.StatusQueued})
		return
	}

	deadline := time.Now().Add(req.timeoutDuration(defaultTimeout))
	job, err := s.queue.Wait(r.Context(), jobID, deadline)
	if err != nil {
		writeTomErr(w, tomerr.Wrap(tomerr.KindTimeoutError, err, "wait interrupted"), req.RawOutput)
		return
	}
	s.respondJob(w, job, req, r)
}

// reportQueueDepth refreshes the queue-depth gauge after an enqueue. It is
// a best-effort read — a failure here never blocks the response.
func (s *Server) reportQueueDepth() {
	n, err := s.queue.QueuedCount()
	if err != nil {
		return
	}
	metrics.QueueDepth.Set(float64(n))
}

func cacheTTLOrDefault(requested, fallback int) int {
	if requested > 0 {
		return requested
	}
	return fallback
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	job, err := s.queue.Poll(id)
	if err != nil {
		if queue.IsNotFound(err) {
			writeTomErr(w, tomerr.New(tomerr.KindNotFound, "job not found: "+id), false)
			return
		}
		writeTomErr(w, tomerr.Wrap(tomerr.KindInternal, err, "poll failed"), false)
		return
	}

	q := r.URL.Query()
	req := &sendRequest{
		RawOutput: q.Get("raw_output") == "true",
		Parse:     q.Get("parse") == "true",
		Parser:    q.Get("parser"),
		Template:  q.Get("template"),
	}
	s.respondJob(w, job, req, r)
}

// respondJob shapes the job snapshot either as raw-output text (delimited
// per command, spec §4.5) or as the default JSON envelope, re-parsing on
// demand when the caller requested it and the job has reached COMPLETE.
func (s *Server) respondJob(w http.ResponseWriter, job *queue.Job, req *sendRequest, r *http.Request) {
	if req.RawOutput {
		writeRawOutput(w, job)
		return
	}

	opts := parseOptions{
		Requested:      req.Parse || job.Metadata.ParseRequested,
		ParserName:     firstNonEmpty(req.Parser, job.Metadata.Parser),
		Template:       firstNonEmpty(req.Template, job.Metadata.Template),
		InlineTemplate: req.InlineTemplate,
		IncludeRaw:     req.IncludeRaw || job.Metadata.IncludeRaw,
		Specs:          job.Metadata.CommandSpecs,
	}
	writeJSON(w, http.StatusOK, buildJobResponse(job, opts, s.customIndex, s.builtinIndex, s.logger))
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func writeRawOutput(w http.ResponseWriter, job *queue.Job) {
	w.Header().Set("Content-Type", "text/plain")
	if job.Status != queue.StatusComplete || job.Result == nil {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(string(job.Status) + "\n"))
		return
	}
	w.WriteHeader(http.StatusOK)
	for _, cmd := range job.Metadata.Commands {
		out, ok := job.Result.Data[cmd]
		if !ok {
			continue
		}
		_, _ = w.Write([]byte(fmt.Sprintf(rawDelimiterFormat, cmd)))
		_, _ = w.Write([]byte(out))
		if len(out) == 0 || out[len(out)-1] != '\n' {
			_, _ = w.Write([]byte("\n"))
		}
	}
}
