// Package httpapi is the External Interface (spec §6): a gorilla/mux router
// exposing blueprint/node CRUD, the executor operations, the agent's
// outbound callback routes, and a websocket live-tail feed, all gated by a
// single shared-secret token. It serves an internal/engine that
// cmd/macroforge constructs.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/macroforge/macroforge/internal/engine"
)

// Server is the bound HTTP surface for one running Engine.
type Server struct {
	httpServer *http.Server
	router     *mux.Router
	hub        *Hub
	engine     *engine.Engine
}

// New builds the router and subscribes the live-tail hub to the engine's
// event bus, but does not yet bind a listener.
func New(e *engine.Engine) *Server {
	s := &Server{
		router: mux.NewRouter(),
		hub:    newHub(),
		engine: e,
	}
	go s.hub.run()
	s.subscribeHub()
	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:         e.Config.ListenAddr,
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // websocket and long-poll routes never finish writing
	}
	return s
}

// ListenAndServe blocks serving HTTP until the server is shut down.
func (s *Server) ListenAndServe() error {
	err := s.httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown drains in-flight requests and stops accepting new ones.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) setupRoutes() {
	s.router.Use(SecurityHeadersMiddleware)

	api := s.router.PathPrefix("/api").Subrouter()
	api.Use(s.authMiddleware)

	api.HandleFunc("/health", s.handleHealth).Methods("GET")
	api.HandleFunc("/shutdown", s.handleShutdown).Methods("POST")

	api.HandleFunc("/blueprints", s.handleCreateBlueprint).Methods("POST")
	api.HandleFunc("/blueprints", s.handleListBlueprints).Methods("GET")
	api.HandleFunc("/blueprints/{id}", s.handleGetBlueprint).Methods("GET")
	api.HandleFunc("/blueprints/{id}", s.handleUpdateBlueprint).Methods("PUT")
	api.HandleFunc("/blueprints/{id}", s.handleDeleteBlueprint).Methods("DELETE")
	api.HandleFunc("/blueprints/{id}/approve", s.handleApproveBlueprint).Methods("POST")
	api.HandleFunc("/blueprints/{id}/archive", s.handleArchiveBlueprint).Methods("POST")
	api.HandleFunc("/blueprints/{id}/unarchive", s.handleUnarchiveBlueprint).Methods("POST")

	api.HandleFunc("/blueprints/{id}/nodes", s.handleCreateNode).Methods("POST")
	api.HandleFunc("/blueprints/{id}/nodes/{nodeId}", s.handleUpdateNode).Methods("PUT")
	api.HandleFunc("/blueprints/{id}/nodes/{nodeId}", s.handleDeleteNode).Methods("DELETE")
	api.HandleFunc("/blueprints/{id}/nodes/reorder", s.handleReorderNodes).Methods("POST")
	api.HandleFunc("/blueprints/{id}/nodes/batch-create", s.handleBatchCreateNodes).Methods("POST")

	api.HandleFunc("/blueprints/{id}/nodes/{nodeId}/run", s.handleRunNode).Methods("POST")
	api.HandleFunc("/blueprints/{id}/nodes/{nodeId}/unqueue", s.handleUnqueueNode).Methods("POST")
	api.HandleFunc("/blueprints/{id}/nodes/{nodeId}/resume-session", s.handleResumeSession).Methods("POST")
	api.HandleFunc("/blueprints/{id}/nodes/{nodeId}/recover-session", s.handleRecoverSession).Methods("POST")
	api.HandleFunc("/blueprints/{id}/nodes/{nodeId}/evaluate", s.handleEvaluate).Methods("POST")
	api.HandleFunc("/blueprints/{id}/nodes/{nodeId}/split", s.handleSplit).Methods("POST")
	api.HandleFunc("/blueprints/{id}/nodes/{nodeId}/reevaluate", s.handleReevaluate).Methods("POST")
	api.HandleFunc("/blueprints/{id}/nodes/{nodeId}/smart-dependencies", s.handleSmartDependencies).Methods("POST")
	api.HandleFunc("/blueprints/{id}/nodes/{nodeId}/insert-between", s.handleInsertBetween).Methods("POST")
	api.HandleFunc("/blueprints/{id}/nodes/{nodeId}/add-sibling", s.handleAddSibling).Methods("POST")

	api.HandleFunc("/blueprints/{id}/run", s.handleRunAllBulk).Methods("POST")
	api.HandleFunc("/blueprints/{id}/run-all", s.handleRunAllBulk).Methods("POST")
	api.HandleFunc("/blueprints/{id}/reevaluate-all", s.handleReevaluateAll).Methods("POST")
	api.HandleFunc("/blueprints/{id}/generate", s.handleGenerate).Methods("POST")

	api.HandleFunc("/blueprints/{id}/executions/{execId}/report-blocker", s.handleReportBlocker).Methods("POST")
	api.HandleFunc("/blueprints/{id}/executions/{execId}/task-summary", s.handleTaskSummary).Methods("POST")
	api.HandleFunc("/blueprints/{id}/executions/{execId}/report-status", s.handleReportStatus).Methods("POST")

	api.HandleFunc("/blueprints/{id}/nodes/{nodeId}/evaluation-callback", s.handleEvaluationCallback).Methods("POST")
	api.HandleFunc("/enrichment-callback/{requestId}", s.handleEnrichmentCallback).Methods("POST")

	api.HandleFunc("/sessions/{sessionId}/plan-node", s.handleSessionPlanNode).Methods("GET")
	api.HandleFunc("/sessions/{sessionId}/execution", s.handleSessionExecution).Methods("GET")

	api.HandleFunc("/global-status", s.handleGlobalStatus).Methods("GET")
	api.HandleFunc("/blueprints/{id}/queue", s.handleBlueprintQueue).Methods("GET")

	s.router.HandleFunc("/ws", s.handleWebsocket)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleShutdown(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "shutting down"})
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.Shutdown(ctx)
	}()
}
