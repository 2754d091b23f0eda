// Package transport defines the Transport adapter interface (spec §4.7,
// §6): a uniform connect → send commands → disconnect contract over two
// distinct SSH transport families.
package transport

import (
	"context"
	"time"

	"github.com/tomnet/tom/internal/credential"
)

// Adapter opens device sessions for one transport family.
type Adapter interface {
	Open(ctx context.Context, host string, port int, driver string, options map[string]string, cred *credential.Pair) (Session, error)
}

// Session is one open connection to a device. Send executes commands in
// declared order within the session — callers must never reorder around
// cache hits (spec §5 ordering guarantee). Close is idempotent.
type Session interface {
	Send(ctx context.Context, command string, timeout time.Duration) (string, error)
	Close() error
}
