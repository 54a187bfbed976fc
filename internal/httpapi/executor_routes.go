package httpapi

import (
	"log"
	"net/http"

	"github.com/gorilla/mux"
)

// queuedResponse is the fire-and-forget acknowledgment shape (spec §7):
// the HTTP response is purely advisory, the Store is the source of truth
// for eventual outcome.
func queuedResponse(nodeID string) map[string]string {
	return map[string]string{"status": "queued", "nodeId": nodeID}
}

func logHandlerErr(op, blueprintID string, err error) {
	log.Printf("[HTTPAPI] %s for blueprint %s failed: %v", op, blueprintID, err)
}

func (s *Server) handleRunNode(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	if _, err := s.engine.Executor.Run(vars["id"], vars["nodeId"]); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, queuedResponse(vars["nodeId"]))
}

func (s *Server) handleUnqueueNode(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	if err := s.engine.Executor.Unqueue(vars["id"], vars["nodeId"]); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "unqueued"})
}

func (s *Server) handleResumeSession(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	if _, err := s.engine.Executor.ResumeSession(vars["id"], vars["nodeId"]); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, queuedResponse(vars["nodeId"]))
}

type recoverSessionRequest struct {
	SessionID string `json:"sessionId"`
}

func (s *Server) handleRecoverSession(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	var req recoverSessionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.SessionID == "" {
		writeError(w, errBadRequest("sessionId is required"))
		return
	}
	if err := s.engine.Executor.RecoverSession(vars["id"], vars["nodeId"], req.SessionID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "recovered"})
}

func (s *Server) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	if _, err := s.engine.Executor.Evaluate(vars["id"], vars["nodeId"]); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, queuedResponse(vars["nodeId"]))
}

func (s *Server) handleSplit(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	if _, err := s.engine.Executor.Split(vars["id"], vars["nodeId"]); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, queuedResponse(vars["nodeId"]))
}

func (s *Server) handleReevaluate(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	if _, err := s.engine.Executor.Reevaluate(vars["id"], vars["nodeId"]); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, queuedResponse(vars["nodeId"]))
}

func (s *Server) handleSmartDependencies(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	if _, err := s.engine.Executor.SmartDependencies(vars["id"], vars["nodeId"]); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, queuedResponse(vars["nodeId"]))
}

type graftRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

func (s *Server) handleInsertBetween(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	var req graftRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.Title == "" {
		writeError(w, errBadRequest("title is required"))
		return
	}
	if err := s.engine.Executor.InsertBetween(vars["id"], vars["nodeId"], req.Title, req.Description); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "inserted"})
}

func (s *Server) handleAddSibling(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	var req graftRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.Title == "" {
		writeError(w, errBadRequest("title is required"))
		return
	}
	if err := s.engine.Executor.AddSibling(vars["id"], vars["nodeId"], req.Title, req.Description); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "added"})
}

func (s *Server) handleRunAllBulk(w http.ResponseWriter, r *http.Request) {
	blueprintID := mux.Vars(r)["id"]
	go func() {
		if err := s.engine.Executor.RunAll(blueprintID); err != nil {
			logHandlerErr("run-all", blueprintID, err)
		}
	}()
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "queued", "blueprintId": blueprintID})
}

func (s *Server) handleReevaluateAll(w http.ResponseWriter, r *http.Request) {
	blueprintID := mux.Vars(r)["id"]
	futures, err := s.engine.Executor.ReevaluateAll(blueprintID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]interface{}{"status": "queued", "blueprintId": blueprintID, "count": len(futures)})
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	blueprintID := mux.Vars(r)["id"]
	if _, err := s.engine.Executor.Generate(blueprintID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "queued", "blueprintId": blueprintID})
}
