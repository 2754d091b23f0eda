// Package httpapi implements the Controller HTTP Surface: the external
// REST interface of spec §6, routed to the job lifecycle manager, the
// response cache, the parser dispatcher, and the inventory/credential
// plugins.
package httpapi

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/tomnet/tom/internal/auth"
	"github.com/tomnet/tom/internal/cache"
	"github.com/tomnet/tom/internal/config"
	"github.com/tomnet/tom/internal/credential"
	"github.com/tomnet/tom/internal/gate"
	"github.com/tomnet/tom/internal/inventory"
	"github.com/tomnet/tom/internal/metrics"
	"github.com/tomnet/tom/internal/parser"
	"github.com/tomnet/tom/internal/queue"
	"github.com/tomnet/tom/internal/tomerr"
)

// Server holds every collaborator a controller HTTP handler may need. It
// has no background goroutines of its own — the queue supervisor and gate
// renewal loops are worker/supervisor concerns, not controller concerns.
type Server struct {
	cfg        config.ControllerConfig
	logger     *zap.Logger
	queue      *queue.Store
	gate       *gate.Gate
	cache      *cache.Cache
	inventory  inventory.Plugin
	credential credential.Plugin
	auth       *auth.Authenticator

	builtinIndex *parser.Index
	customIndex  *parser.Index
}

// Deps bundles the constructor arguments for New, mirroring the teacher's
// server construction style of one options struct rather than a long
// positional parameter list.
type Deps struct {
	Config       config.ControllerConfig
	Logger       *zap.Logger
	Queue        *queue.Store
	Gate         *gate.Gate
	Cache        *cache.Cache
	Inventory    inventory.Plugin
	Credential   credential.Plugin
	Auth         *auth.Authenticator
	BuiltinIndex *parser.Index
	CustomIndex  *parser.Index
}

// New constructs a Server from its dependencies.
func New(d Deps) *Server {
	return &Server{
		cfg:          d.Config,
		logger:       d.Logger,
		queue:        d.Queue,
		gate:         d.Gate,
		cache:        d.Cache,
		inventory:    d.Inventory,
		credential:   d.Credential,
		auth:         d.Auth,
		builtinIndex: d.BuiltinIndex,
		customIndex:  d.CustomIndex,
	}
}

// Handler returns the complete HTTP handler for the controller process:
// the authenticated /api surface plus the unauthenticated /metrics
// endpoint required to sit outside the auth boundary (spec §6).
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.registerRoutes(mux)

	top := http.NewServeMux()
	top.Handle("/metrics", metrics.Handler())
	if s.auth != nil {
		top.Handle("/", s.auth.Middleware(mux))
	} else {
		top.Handle("/", mux)
	}
	return top
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeTomErr(w http.ResponseWriter, err error, rawOutput bool) {
	te, ok := tomerr.As(err)
	if !ok {
		if rawOutput {
			w.Header().Set("Content-Type", "text/plain")
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(err.Error()))
			return
		}
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "INTERNAL", "detail": err.Error()})
		return
	}
	if rawOutput {
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(te.HTTPStatus())
		_, _ = w.Write([]byte(te.Message))
		return
	}
	writeJSON(w, te.HTTPStatus(), map[string]string{"error": string(te.Kind), "detail": te.Message})
}
