package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/skyoxu/myguild-sub003/internal/application/usecase"
	"github.com/skyoxu/myguild-sub003/internal/domain/sampling"
	"github.com/skyoxu/myguild-sub003/internal/domain/slo"
	"github.com/skyoxu/myguild-sub003/internal/infrastructure/collector"
	"github.com/skyoxu/myguild-sub003/internal/interfaces/http/middleware"
	"github.com/skyoxu/myguild-sub003/internal/resilience"
	"github.com/skyoxu/myguild-sub003/pkg/logger"
)

const maxRequestBodyBytes = 64 * 1024

// OpsHandler serves the control-plane API: health, sampling decisions,
// failure reports and signal ingestion.
type OpsHandler struct {
	orchestrator *resilience.Orchestrator
	samplingUC   *usecase.EvaluateSamplingUseCase
	controller   *sampling.Controller
	signals      *collector.SignalStore
	logger       *logger.Logger
}

// NewOpsHandler creates a new handler.
func NewOpsHandler(
	orchestrator *resilience.Orchestrator,
	samplingUC *usecase.EvaluateSamplingUseCase,
	controller *sampling.Controller,
	signals *collector.SignalStore,
	logger *logger.Logger,
) *OpsHandler {
	return &OpsHandler{
		orchestrator: orchestrator,
		samplingUC:   samplingUC,
		controller:   controller,
		signals:      signals,
		logger:       logger,
	}
}

// GetHealth returns the current system health snapshot.
func (h *OpsHandler) GetHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	middleware.WriteJSON(w, http.StatusOK, h.orchestrator.Health())
}

// GetBreakers returns per-resource circuit breaker snapshots.
func (h *OpsHandler) GetBreakers(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	middleware.WriteJSON(w, http.StatusOK, h.orchestrator.Breakers().Snapshots())
}

// GetSamplingDecision computes the sampling decision for the transaction
// named in the query (or the default path when absent).
func (h *OpsHandler) GetSamplingDecision(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	transaction := r.URL.Query().Get("transaction")

	decision, err := h.samplingUC.Execute(r.Context(), transaction)
	if err != nil {
		h.logger.Error("Sampling decision failed", err)
		middleware.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "metric snapshot unavailable",
		})
		return
	}

	middleware.WriteJSON(w, http.StatusOK, decision)
}

type failureReportRequest struct {
	Type      string `json:"type"`
	Component string `json:"component"`
	Detail    string `json:"detail"`
}

// ReportFailure ingests one failure report and returns the post-attempt
// failure state.
func (h *OpsHandler) ReportFailure(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req failureReportRequest
	if err := decodeJSON(w, r, &req); err != nil {
		middleware.WriteJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if req.Component == "" {
		middleware.WriteJSON(w, http.StatusBadRequest, map[string]string{"error": "component is required"})
		return
	}

	failure, err := h.orchestrator.ReportFailure(r.Context(), resilience.FailureType(req.Type), req.Component, req.Detail)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, resilience.ErrUnknownFailureType) {
			status = http.StatusBadRequest
		}
		middleware.WriteJSON(w, status, map[string]string{"error": err.Error()})
		return
	}

	middleware.WriteJSON(w, http.StatusAccepted, failure)
}

type signalsRequest struct {
	Signals *collector.ReportedSignals `json:"signals,omitempty"`
	Cost    *slo.CostUtilization       `json:"cost,omitempty"`
}

// UpdateSignals ingests client-reported signals and cost figures. Either
// section may be omitted to leave the current value untouched.
func (h *OpsHandler) UpdateSignals(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req signalsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		middleware.WriteJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if req.Signals == nil && req.Cost == nil {
		middleware.WriteJSON(w, http.StatusBadRequest, map[string]string{"error": "signals or cost is required"})
		return
	}

	if req.Signals != nil {
		h.signals.UpdateSignals(*req.Signals)
	}
	if req.Cost != nil {
		h.signals.UpdateCost(*req.Cost)
	}

	middleware.WriteJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

// UpdateStrategy replaces the active sampling strategy.
func (h *OpsHandler) UpdateStrategy(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var strategy sampling.Strategy
	if err := decodeJSON(w, r, &strategy); err != nil {
		middleware.WriteJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	if err := h.controller.UpdateStrategy(strategy); err != nil {
		middleware.WriteJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	h.logger.Info("Sampling strategy updated")
	middleware.WriteJSON(w, http.StatusOK, h.controller.StrategySnapshot())
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dest interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(dest)
}
