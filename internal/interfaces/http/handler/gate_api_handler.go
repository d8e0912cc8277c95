package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/skyoxu/myguild-sub003/internal/gate"
	"github.com/skyoxu/myguild-sub003/internal/interfaces/http/middleware"
	"github.com/skyoxu/myguild-sub003/pkg/logger"
)

// GateAPIHandler exposes the in-process gate runner: the latest verdict plus
// an on-demand run for release tooling.
type GateAPIHandler struct {
	runner *gate.Runner
	logger *logger.Logger
}

// NewGateAPIHandler creates a new handler.
func NewGateAPIHandler(runner *gate.Runner, logger *logger.Logger) *GateAPIHandler {
	return &GateAPIHandler{
		runner: runner,
		logger: logger,
	}
}

// GetSummary returns the runner state including the last verdict.
func (h *GateAPIHandler) GetSummary(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	middleware.WriteJSON(w, http.StatusOK, h.runner.Snapshot())
}

// RunNow triggers an immediate gate evaluation and returns the fresh verdict.
func (h *GateAPIHandler) RunNow(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	result, err := h.runner.RunOnce(ctx)
	if err != nil {
		h.logger.Error("On-demand gate run failed", err)
		middleware.WriteJSON(w, http.StatusInternalServerError, map[string]string{
			"error": err.Error(),
		})
		return
	}

	middleware.WriteJSON(w, http.StatusOK, result)
}
