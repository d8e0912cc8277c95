package http

import (
	"net/http"

	"github.com/skyoxu/myguild-sub003/internal/interfaces/http/handler"
	"github.com/skyoxu/myguild-sub003/internal/interfaces/http/middleware"
	"github.com/skyoxu/myguild-sub003/pkg/logger"
)

// Router wires the control-plane API routes and middleware chain.
type Router struct {
	mux              *http.ServeMux
	opsHandler       *handler.OpsHandler
	gateAPIHandler   *handler.GateAPIHandler
	websocketHandler *handler.WebSocketHandler
	rateLimiter      *middleware.IPRateLimiter
	logger           *logger.Logger
}

// NewRouter creates a new router. rateLimiter may be nil to disable limiting.
func NewRouter(
	opsHandler *handler.OpsHandler,
	gateAPIHandler *handler.GateAPIHandler,
	websocketHandler *handler.WebSocketHandler,
	rateLimiter *middleware.IPRateLimiter,
	logger *logger.Logger,
) *Router {
	return &Router{
		mux:              http.NewServeMux(),
		opsHandler:       opsHandler,
		gateAPIHandler:   gateAPIHandler,
		websocketHandler: websocketHandler,
		rateLimiter:      rateLimiter,
		logger:           logger,
	}
}

// Setup registers all routes and returns the composed handler.
func (rt *Router) Setup() http.Handler {
	// Health endpoints stay unauthenticated and unthrottled for probes.
	rt.mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	rt.mux.HandleFunc("/readyz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	// WebSocket
	rt.mux.HandleFunc("/ws", rt.websocketHandler.HandleConnection)

	// Control-plane API
	rt.mux.HandleFunc("/api/v1/ops/health", rt.opsHandler.GetHealth)
	rt.mux.HandleFunc("/api/v1/ops/breakers", rt.opsHandler.GetBreakers)
	rt.mux.HandleFunc("/api/v1/ops/sampling/decision", rt.opsHandler.GetSamplingDecision)
	rt.mux.HandleFunc("/api/v1/ops/sampling/strategy", rt.opsHandler.UpdateStrategy)
	rt.mux.HandleFunc("/api/v1/ops/failures", rt.opsHandler.ReportFailure)
	rt.mux.HandleFunc("/api/v1/ops/signals", rt.opsHandler.UpdateSignals)

	// Gate API
	rt.mux.HandleFunc("/api/v1/gate/summary", rt.gateAPIHandler.GetSummary)
	rt.mux.HandleFunc("/api/v1/gate/run", rt.gateAPIHandler.RunNow)

	var h http.Handler = rt.mux
	if rt.rateLimiter != nil {
		h = middleware.RateLimit(rt.rateLimiter)(h)
	}
	h = middleware.Logger(rt.logger)(h)
	h = middleware.Recovery(rt.logger)(h)

	return h
}
