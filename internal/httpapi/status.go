package httpapi

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/macroforge/macroforge/internal/queue"
	"github.com/macroforge/macroforge/internal/types"
)

func (s *Server) handleSessionPlanNode(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["sessionId"]
	node, err := s.engine.Store.GetNodeBySessionID(sessionID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, node)
}

func (s *Server) handleSessionExecution(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["sessionId"]
	execution, err := s.engine.Store.GetExecutionBySessionID(sessionID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, execution)
}

func (s *Server) handleBlueprintQueue(w http.ResponseWriter, r *http.Request) {
	blueprintID := mux.Vars(r)["id"]
	info := s.engine.Queue.Info(blueprintID)
	writeJSON(w, http.StatusOK, info)
}

// handleGlobalStatus implements spec §4.4's aggregated cross-blueprint
// view: every blueprint the Queue Manager currently tracks, enriched with
// its title, the currently running node's title, and that node's active
// session id.
func (s *Server) handleGlobalStatus(w http.ResponseWriter, r *http.Request) {
	var entries []queue.GlobalEntry
	for _, blueprintID := range s.engine.Queue.BlueprintIDs() {
		info := s.engine.Queue.Info(blueprintID)
		entry := queue.GlobalEntry{
			BlueprintID: blueprintID,
			Running:     info.Running,
			Depth:       info.Depth,
		}

		bp, err := s.engine.Store.GetBlueprint(blueprintID)
		if err == nil {
			entry.BlueprintTitle = bp.Title
		}

		if nodeID := s.engine.Queue.RunningNodeID(blueprintID); nodeID != "" {
			entry.NodeID = nodeID
			if node, err := s.engine.Store.GetNode(nodeID); err == nil {
				entry.NodeTitle = node.Title
				if executions, err := s.engine.Store.ListExecutionsForNode(nodeID); err == nil {
					for _, ex := range executions {
						if ex.Status == types.ExecRunning {
							entry.SessionID = ex.SessionID
							break
						}
					}
				}
			}
		}

		entries = append(entries, entry)
	}
	writeJSON(w, http.StatusOK, entries)
}
