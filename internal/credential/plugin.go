// Package credential defines the Credential plugin interface (spec
// §4.7, §6) and its file-backed implementation. Secrets resolved through
// this package must never be logged, placed in cache keys, or written
// into job payloads that transit the queue.
package credential

import "context"

// Pair is a resolved (username, password) secret.
type Pair struct {
	Username string
	Password string
}

// Plugin is the capability set every credential backend implements.
// ListIDs takes a context so slower backends (a vault or cloud secret
// store) can be bounded by the caller's deadline (spec's `list_ids(timeout)`).
type Plugin interface {
	Get(credentialID string) (*Pair, error)
	ListIDs(ctx context.Context) ([]string, error)
}
