package httpapi

import (
	"io"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/macroforge/macroforge/internal/types"
)

type reportBlockerRequest struct {
	Type        string `json:"type"`
	Description string `json:"description"`
	Suggestion  string `json:"suggestion"`
}

var validBlockerTypes = map[string]bool{
	"missing_dependency":  true,
	"unclear_requirement": true,
	"access_issue":        true,
	"technical_limitation": true,
}

// handleReportBlocker implements the agent outbound protocol's
// "at any time" blocker report (spec §6).
func (s *Server) handleReportBlocker(w http.ResponseWriter, r *http.Request) {
	execID := mux.Vars(r)["execId"]
	var req reportBlockerRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if !validBlockerTypes[req.Type] {
		writeError(w, errBadRequest("invalid blocker type"))
		return
	}
	info := req.Type + ": " + req.Description
	if req.Suggestion != "" {
		info += " (suggestion: " + req.Suggestion + ")"
	}
	if err := s.engine.Store.SetBlocker(execID, info); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "recorded"})
}

type taskSummaryRequest struct {
	Summary string `json:"summary"`
}

// handleTaskSummary implements the agent's last-action #1 (spec §6).
func (s *Server) handleTaskSummary(w http.ResponseWriter, r *http.Request) {
	execID := mux.Vars(r)["execId"]
	var req taskSummaryRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if err := s.engine.Store.SetTaskSummary(execID, req.Summary); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "recorded"})
}

type reportStatusRequest struct {
	Status types.ReportedStatus `json:"status"`
	Reason string               `json:"reason"`
}

var validReportedStatus = map[types.ReportedStatus]bool{
	types.ReportedDone:    true,
	types.ReportedFailed:  true,
	types.ReportedBlocked: true,
}

// handleReportStatus implements the agent's last-action #2 (spec §6): the
// authoritative terminal status (spec §8 invariant 3 gives it priority
// over stdout inference during reconciliation).
func (s *Server) handleReportStatus(w http.ResponseWriter, r *http.Request) {
	execID := mux.Vars(r)["execId"]
	var req reportStatusRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if !validReportedStatus[req.Status] {
		writeError(w, errBadRequest("invalid status"))
		return
	}
	if err := s.engine.Store.SetReportedStatus(execID, req.Status, req.Reason); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "recorded"})
}

// handleEnrichmentCallback feeds a request-scoped waiter (spec §6
// "POST /enrichment-callback/:requestId"): the automatic post-completion
// evaluation and every manual evaluate/reevaluate/split/smart-dependencies/
// generate call all resolve through here.
func (s *Server) handleEnrichmentCallback(w http.ResponseWriter, r *http.Request) {
	requestID := mux.Vars(r)["requestId"]
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, errBadRequest("unreadable body"))
		return
	}

	if genErr := s.engine.Executor.ResolveGenerationCallback(requestID, body); genErr == nil {
		writeJSON(w, http.StatusOK, map[string]string{"status": "recorded"})
		return
	}
	if err := s.engine.Executor.ResolveEnrichmentCallback(requestID, body); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "recorded"})
}

// handleEvaluationCallback is the node-scoped alias spec §6 also names
// ("POST /blueprints/:id/nodes/:nodeId/evaluation-callback"); the caller
// still supplies the request id the evaluation prompt handed the agent, so
// this simply forwards to the same request-scoped resolution.
func (s *Server) handleEvaluationCallback(w http.ResponseWriter, r *http.Request) {
	var body struct {
		RequestID string `json:"requestId"`
	}
	raw, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, errBadRequest("unreadable body"))
		return
	}
	if err := decodeJSONBytes(raw, &body); err != nil || body.RequestID == "" {
		writeError(w, errBadRequest("requestId is required"))
		return
	}
	if err := s.engine.Executor.ResolveEnrichmentCallback(body.RequestID, raw); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "recorded"})
}
