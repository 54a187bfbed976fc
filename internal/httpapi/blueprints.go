package httpapi

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/macroforge/macroforge/internal/store"
	"github.com/macroforge/macroforge/internal/types"
)

type createBlueprintRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	ProjectCwd  string `json:"projectCwd"`
}

func (s *Server) handleCreateBlueprint(w http.ResponseWriter, r *http.Request) {
	var req createBlueprintRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.Title == "" {
		writeError(w, errBadRequest("title is required"))
		return
	}

	now := time.Now()
	bp := &types.Blueprint{
		ID:          uuid.NewString(),
		Title:       req.Title,
		Description: req.Description,
		ProjectCwd:  req.ProjectCwd,
		Status:      types.BlueprintDraft,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.engine.Store.CreateBlueprint(bp); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, bp)
}

func (s *Server) handleListBlueprints(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.BlueprintFilter{
		Status:          types.BlueprintStatus(q.Get("status")),
		ProjectCwd:      q.Get("projectCwd"),
		IncludeArchived: q.Get("includeArchived") == "true",
	}
	bps, err := s.engine.Store.ListBlueprints(filter)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, bps)
}

func (s *Server) handleGetBlueprint(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	bp, err := s.engine.Store.GetBlueprint(id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, bp)
}

type updateBlueprintRequest struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
	ProjectCwd  *string `json:"projectCwd"`
	Starred     *bool   `json:"starred"`
}

func (s *Server) handleUpdateBlueprint(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var req updateBlueprintRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	patch := store.BlueprintPatch{Title: req.Title, Description: req.Description, ProjectCwd: req.ProjectCwd, Starred: req.Starred}
	if err := s.engine.Store.UpdateBlueprint(id, patch, time.Now()); err != nil {
		writeError(w, err)
		return
	}
	bp, err := s.engine.Store.GetBlueprint(id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, bp)
}

func (s *Server) handleDeleteBlueprint(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := s.engine.Store.DeleteBlueprint(id); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) handleApproveBlueprint(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	bp, err := s.engine.Store.GetBlueprint(id)
	if err != nil {
		writeError(w, err)
		return
	}
	if bp.Status != types.BlueprintDraft {
		writeError(w, errPrecondition("only a draft blueprint can be approved"))
		return
	}
	approved := types.BlueprintApproved
	if err := s.engine.Store.UpdateBlueprint(id, store.BlueprintPatch{Status: &approved}, time.Now()); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "approved"})
}

func (s *Server) handleArchiveBlueprint(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := s.engine.Store.ArchiveBlueprint(id, time.Now()); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "archived"})
}

func (s *Server) handleUnarchiveBlueprint(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := s.engine.Store.UnarchiveBlueprint(id, time.Now()); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "unarchived"})
}
