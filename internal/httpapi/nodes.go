package httpapi

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/macroforge/macroforge/internal/store"
	"github.com/macroforge/macroforge/internal/types"
)

type createNodeRequest struct {
	Title            string   `json:"title"`
	Description      string   `json:"description"`
	Prompt           string   `json:"prompt"`
	Dependencies     []string `json:"dependencies"`
	AgentType        string   `json:"agentType"`
	ParallelGroup    string   `json:"parallelGroup"`
	EstimatedMinutes *int     `json:"estimatedMinutes"`
	Order            *int     `json:"order"`
}

func (s *Server) handleCreateNode(w http.ResponseWriter, r *http.Request) {
	blueprintID := mux.Vars(r)["id"]
	var req createNodeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.Title == "" {
		writeError(w, errBadRequest("title is required"))
		return
	}

	bp, err := s.engine.Store.GetBlueprint(blueprintID)
	if err != nil {
		writeError(w, err)
		return
	}
	order := len(bp.Nodes)
	if req.Order != nil {
		order = *req.Order
	}

	now := time.Now()
	node := &types.MacroNode{
		ID:               uuid.NewString(),
		BlueprintID:      blueprintID,
		Order:            order,
		Title:            req.Title,
		Description:      req.Description,
		Prompt:           req.Prompt,
		Dependencies:     req.Dependencies,
		Status:           types.NodePending,
		AgentType:        req.AgentType,
		ParallelGroup:    req.ParallelGroup,
		EstimatedMinutes: req.EstimatedMinutes,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := s.engine.Store.CreateNode(node); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, node)
}

type updateNodeRequest struct {
	Title            *string   `json:"title"`
	Description      *string   `json:"description"`
	Prompt           *string   `json:"prompt"`
	Dependencies     *[]string `json:"dependencies"`
	ParallelGroup    *string   `json:"parallelGroup"`
	AgentType        *string   `json:"agentType"`
	EstimatedMinutes *int      `json:"estimatedMinutes"`
	ActualMinutes    *int      `json:"actualMinutes"`
}

func (s *Server) handleUpdateNode(w http.ResponseWriter, r *http.Request) {
	nodeID := mux.Vars(r)["nodeId"]
	var req updateNodeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	patch := store.NodePatch{
		Title:         req.Title,
		Description:   req.Description,
		Prompt:        req.Prompt,
		Dependencies:  req.Dependencies,
		ParallelGroup: req.ParallelGroup,
		AgentType:     req.AgentType,
	}
	if req.EstimatedMinutes != nil {
		patch.EstimatedMinutes = &req.EstimatedMinutes
	}
	if req.ActualMinutes != nil {
		patch.ActualMinutes = &req.ActualMinutes
	}

	if err := s.engine.Store.UpdateNode(nodeID, patch, time.Now()); err != nil {
		writeError(w, err)
		return
	}
	node, err := s.engine.Store.GetNode(nodeID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, node)
}

func (s *Server) handleDeleteNode(w http.ResponseWriter, r *http.Request) {
	nodeID := mux.Vars(r)["nodeId"]
	if err := s.engine.Store.DeleteNode(nodeID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

type reorderRequest struct {
	Orders []struct {
		ID    string `json:"id"`
		Order int    `json:"order"`
	} `json:"orders"`
}

func (s *Server) handleReorderNodes(w http.ResponseWriter, r *http.Request) {
	blueprintID := mux.Vars(r)["id"]
	var req reorderRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	orders := make([]store.NodeOrder, len(req.Orders))
	for i, o := range req.Orders {
		orders[i] = store.NodeOrder{ID: o.ID, Order: o.Order}
	}
	if err := s.engine.Store.ReorderNodes(blueprintID, orders, time.Now()); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "reordered"})
}

// batchCreateNode is one entry of a batch-create request. Dependencies
// holds 0-based indices into this same batch array (spec §6 "batch-create
// with intra-batch integer refs"), referring only to earlier entries.
type batchCreateNode struct {
	Title            string `json:"title"`
	Description      string `json:"description"`
	AgentType        string `json:"agentType"`
	EstimatedMinutes *int   `json:"estimatedMinutes"`
	Dependencies     []int  `json:"dependencies"`
}

type batchCreateRequest struct {
	Nodes []batchCreateNode `json:"nodes"`
}

func (s *Server) handleBatchCreateNodes(w http.ResponseWriter, r *http.Request) {
	blueprintID := mux.Vars(r)["id"]
	var req batchCreateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	bp, err := s.engine.Store.GetBlueprint(blueprintID)
	if err != nil {
		writeError(w, err)
		return
	}

	base := len(bp.Nodes)
	ids := make([]string, len(req.Nodes))
	now := time.Now()
	created := make([]*types.MacroNode, 0, len(req.Nodes))
	for i, bn := range req.Nodes {
		if bn.Title == "" {
			writeError(w, errBadRequest("every batch node requires a title"))
			return
		}
		ids[i] = uuid.NewString()
		var deps []string
		for _, ref := range bn.Dependencies {
			if ref >= 0 && ref < i {
				deps = append(deps, ids[ref])
			}
		}
		node := &types.MacroNode{
			ID:               ids[i],
			BlueprintID:      blueprintID,
			Order:            base + i,
			Title:            bn.Title,
			Description:      bn.Description,
			Dependencies:     deps,
			Status:           types.NodePending,
			AgentType:        bn.AgentType,
			EstimatedMinutes: bn.EstimatedMinutes,
			CreatedAt:        now,
			UpdatedAt:        now,
		}
		if err := s.engine.Store.CreateNode(node); err != nil {
			writeError(w, err)
			return
		}
		created = append(created, node)
	}
	writeJSON(w, http.StatusCreated, created)
}
