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

// sendRequest is the request-option bag recognized by send_command[s],
// matching spec §6's option list verbatim.
type sendRequest struct {
	Command      string             `json:"command,omitempty"`
	Commands     []string           `json:"commands,omitempty"`
	CommandSpecs []queue.CommandSpec `json:"command_specs,omitempty"`

	Wait         bool `json:"wait"`
	RawOutput    bool `json:"raw_output"`
	Timeout      int  `json:"timeout"`
	UseCache     *bool `json:"use_cache"`
	CacheTTL     int  `json:"cache_ttl"`
	CacheRefresh bool `json:"cache_refresh"`

	Parse    bool   `json:"parse"`
	Parser   string `json:"parser"`
	Template string `json:"template"`

	InlineTemplate string `json:"inline_template,omitempty"`
	IncludeRaw     bool   `json:"include_raw"`

	Username string `json:"username"`
	Password string `json:"password"`

	Retries      int `json:"retries"`
	MaxQueueWait int `json:"max_queue_wait"`
}

func decodeSendRequest(r *http.Request) (*sendRequest, error) {
	var req sendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if err == io.EOF {
			return &req, nil
		}
		return nil, tomerr.New(tomerr.KindValidation, "invalid JSON body")
	}
	return &req, nil
}

// commandList flattens Command/Commands/CommandSpecs into the ordered
// command text list to enqueue, and the per-command overrides (if any).
func (r *sendRequest) commandList() ([]string, []queue.CommandSpec) {
	if len(r.CommandSpecs) > 0 {
		cmds := make([]string, len(r.CommandSpecs))
		for i, spec := range r.CommandSpecs {
			cmds[i] = spec.Command
		}
		return cmds, r.CommandSpecs
	}
	if len(r.Commands) > 0 {
		return r.Commands, nil
	}
	if r.Command != "" {
		return []string{r.Command}, nil
	}
	return nil, nil
}

// validate applies spec §4.5's input validation rules that are checkable
// before any inventory/device lookup.
func (r *sendRequest) validate(cacheMaxTTL int) error {
	cmds, _ := r.commandList()
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
	if cacheMaxTTL > 0 && r.CacheTTL > cacheMaxTTL {
		r.CacheTTL = cacheMaxTTL // clamped, not rejected (spec §8 boundary behavior)
	}
	return nil
}

func (r *sendRequest) useCache(cfgEnabled bool) bool {
	if r.UseCache != nil {
		return *r.UseCache
	}
	return cfgEnabled
}

func (r *sendRequest) timeoutDuration(fallback time.Duration) time.Duration {
	if r.Timeout > 0 {
		return time.Duration(r.Timeout) * time.Second
	}
	return fallback
}

func (r *sendRequest) maxQueueWaitDuration(fallback time.Duration) time.Duration {
	if r.MaxQueueWait > 0 {
		return time.Duration(r.MaxQueueWait) * time.Second
	}
	return fallback
}
