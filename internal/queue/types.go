// Package queue implements the Job Lifecycle and Queue Coordination
// subsystem: the durable state machine and pull-based queue shared by the
// controller and the workers.
package queue

import (
	"time"
)

// Status is one of the states in the job lifecycle state machine. Terminal
// states are Complete, Failed, and Aborted.
type Status string

const (
	StatusNew      Status = "NEW"
	StatusQueued   Status = "QUEUED"
	StatusActive   Status = "ACTIVE"
	StatusComplete Status = "COMPLETE"
	StatusFailed   Status = "FAILED"
	StatusAborted  Status = "ABORTED"
)

func (s Status) Terminal() bool {
	switch s {
	case StatusComplete, StatusFailed, StatusAborted:
		return true
	default:
		return false
	}
}

// RetryHint classifies a failure for retry accounting.
type RetryHint string

const (
	RetryTransient RetryHint = "TRANSIENT"
	RetryFatal     RetryHint = "FATAL"
)

// Payload is the job's device-execution request, carried from enqueue
// through to the worker.
type Payload struct {
	Host             string            `json:"host"`
	Port             int               `json:"port"`
	Adapter          string            `json:"adapter"` // "A" or "B"
	AdapterDriver    string            `json:"adapter_driver"`
	Commands         []string          `json:"commands"`
	CredentialRef    string            `json:"credential_ref"`
	InlineUsername   string            `json:"inline_username,omitempty"`
	InlinePassword   string            `json:"inline_password,omitempty"`
	AdapterOptions   map[string]string `json:"adapter_options,omitempty"`
	RetriesRemaining int               `json:"retries_remaining"`
	MaxQueueWaitS    int               `json:"max_queue_wait_s"`
	TimeoutS         int               `json:"timeout_s"`
}

// CommandSpec carries a per-command parser override. A field left empty
// falls back to the request-level setting of the same name (spec §9 open
// question decision: per-command overrides apply field-by-field, not
// all-or-nothing).
type CommandSpec struct {
	Command  string `json:"command"`
	Parser   string `json:"parser,omitempty"`
	Template string `json:"template,omitempty"`
}

// Metadata is bookkeeping preserved for retrieval-time operations such as
// re-parsing a completed job's raw output with a different template, and
// the cache controls the worker reads when it partitions the command list
// into cache hits and misses (spec §4.3/§4.6 run that partition on the
// worker side, not at enqueue time).
type Metadata struct {
	DevicePlatform string        `json:"device_type"`
	Commands       []string      `json:"commands"`
	ParseRequested bool          `json:"parse_requested"`
	Parser         string        `json:"parser,omitempty"`
	Template       string        `json:"template,omitempty"`
	IncludeRaw     bool          `json:"include_raw"`
	CommandSpecs   []CommandSpec `json:"command_specs,omitempty"`

	CacheUseCache   bool `json:"cache_use_cache"`
	CacheRefresh    bool `json:"cache_refresh"`
	CacheTTLSeconds int  `json:"cache_ttl_s"`
}

// CacheStatus is the per-command cache outcome recorded in a completed
// job's result metadata.
type CacheStatus string

const (
	CacheHit     CacheStatus = "HIT"
	CacheMiss    CacheStatus = "MISS"
	CacheRefresh CacheStatus = "REFRESH"
	CacheBypass  CacheStatus = "BYPASS"
)

// CacheMeta records the cache outcome for one command.
type CacheMeta struct {
	Status     CacheStatus `json:"cache_status"`
	CachedAt   *time.Time  `json:"cached_at,omitempty"`
	AgeSeconds *int64      `json:"age_seconds,omitempty"`
}

// Result is the job's outcome, present iff Status == COMPLETE.
type Result struct {
	Data map[string]string   `json:"data"`
	Meta map[string]CacheMeta `json:"meta"`
}

// JobError is the job's structured failure, present iff Status == FAILED.
type JobError struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// Job is the unit of work tracked by the queue store.
type Job struct {
	ID               string     `json:"job_id"`
	Status           Status     `json:"status"`
	Attempts         int        `json:"attempts"`
	Payload          Payload    `json:"payload"`
	Metadata         Metadata   `json:"metadata"`
	Result           *Result    `json:"result,omitempty"`
	Error            *JobError  `json:"error,omitempty"`
	ConsumerID       string     `json:"consumer_id,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
	AcquiredAt       *time.Time `json:"acquired_at,omitempty"`
	LastHeartbeatAt  *time.Time `json:"last_heartbeat_at,omitempty"`
}
