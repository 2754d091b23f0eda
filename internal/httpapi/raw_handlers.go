package httpapi

import (
	"encoding/json"
	"io"
	"net/http"
	"time"
	"unicode/utf8"

	"github.com/tomnet/tom/internal/queue"
	"github.com/tomnet/tom/internal/tomerr"
)

// rawRequest is the request-option bag recognized by the raw adapter
// endpoints: they bypass the inventory plugin entirely, taking the device
// connection details inline (spec §6).
type rawRequest struct {
	Host           string            `json:"host"`
	Port           int               `json:"port"`
	Driver         string            `json:"driver"`
	Command        string            `json:"command,omitempty"`
	Commands       []string          `json:"commands,omitempty"`
	AdapterOptions map[string]string `json:"adapter_options,omitempty"`
	CredentialRef  string            `json:"credential_ref,omitempty"`
	Username       string            `json:"username,omitempty"`
	Password       string            `json:"password,omitempty"`

	Wait         bool `json:"wait"`
	RawOutput    bool `json:"raw_output"`
	Timeout      int  `json:"timeout"`
	Retries      int  `json:"retries"`
	MaxQueueWait int  `json:"max_queue_wait"`
}

func decodeRawRequest(r *http.Request) (*rawRequest, error) {
	var req rawRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if err == io.EOF {
			return &req, nil
		}
		return nil, tomerr.New(tomerr.KindValidation, "invalid JSON body")
	}
	return &req, nil
}

func (r *rawRequest) commandList() []string {
	if len(r.Commands) > 0 {
		return r.Commands
	}
	if r.Command != "" {
		return []string{r.Command}
	}
	return nil
}

func (r *rawRequest) validate() error {
	if r.Host == "" {
		return tomerr.New(tomerr.KindValidation, "host is required")
	}
	if r.Driver == "" {
		return tomerr.New(tomerr.KindValidation, "driver is required")
	}
	cmds := r.commandList()
	if len(cmds) == 0 {
		return tomerr.New(tomerr.KindValidation, "at least one command is required")
	}
	for _, c := range cmds {
		if !utf8.ValidString(c) {
			return tomerr.New(tomerr.KindValidation, "command text must be valid UTF-8")
		}
	}
	if (r.Username != "") != (r.Password != "") {
		return tomerr.New(tomerr.KindValidation, "username and password must be supplied together")
	}
	return nil
}

func (s *Server) handleRawAdapterA(w http.ResponseWriter, r *http.Request) {
	s.doRawSend(w, r, "A")
}

func (s *Server) handleRawAdapterB(w http.ResponseWriter, r *http.Request) {
	s.doRawSend(w, r, "B")
}

// doRawSend enqueues a job identical in shape to the inventory-backed path
// but with no device lookup and no cache participation: raw-adapter calls
// are diagnostic/one-off, not candidates for the response cache.
func (s *Server) doRawSend(w http.ResponseWriter, r *http.Request, adapter string) {
	req, err := decodeRawRequest(r)
	if err != nil {
		writeTomErr(w, err, false)
		return
	}
	if err := req.validate(); err != nil {
		writeTomErr(w, err, req.RawOutput)
		return
	}

	cmds := req.commandList()
	payload := queue.Payload{
		Host:             req.Host,
		Port:             req.Port,
		Adapter:          adapter,
		AdapterDriver:    req.Driver,
		Commands:         cmds,
		CredentialRef:    req.CredentialRef,
		InlineUsername:   req.Username,
		InlinePassword:   req.Password,
		AdapterOptions:   req.AdapterOptions,
		RetriesRemaining: req.Retries,
		MaxQueueWaitS:    int(durationOrDefault(req.MaxQueueWait, defaultMaxQueueWait).Seconds()),
		TimeoutS:         int(durationOrDefault(req.Timeout, defaultTimeout).Seconds()),
	}
	metadata := queue.Metadata{
		DevicePlatform: req.Driver,
		Commands:       cmds,
		CacheUseCache:  false,
	}

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

	deadline := time.Now().Add(durationOrDefault(req.Timeout, defaultTimeout))
	job, err := s.queue.Wait(r.Context(), jobID, deadline)
	if err != nil {
		writeTomErr(w, tomerr.Wrap(tomerr.KindTimeoutError, err, "wait interrupted"), req.RawOutput)
		return
	}
	if req.RawOutput {
		writeRawOutput(w, job)
		return
	}
	writeJSON(w, http.StatusOK, jobResponse{JobID: job.ID, Status: job.Status, Result: job.Result, Error: job.Error})
}

func durationOrDefault(seconds int, fallback time.Duration) time.Duration {
	if seconds > 0 {
		return time.Duration(seconds) * time.Second
	}
	return fallback
}
