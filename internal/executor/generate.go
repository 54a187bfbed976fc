package executor

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/macroforge/macroforge/internal/queue"
	"github.com/macroforge/macroforge/internal/runner"
	"github.com/macroforge/macroforge/internal/types"
)

// GeneratedNode is one node proposed by a generation agent call.
type GeneratedNode struct {
	Title        string `json:"title"`
	Description  string `json:"description"`
	Dependencies []int  `json:"dependencies"` // indices into the same response, 0-based
}

// generationResult is the agent's callback body for a generate request.
type generationResult struct {
	Nodes []GeneratedNode `json:"nodes"`
}

func unmarshalGenerationResult(body []byte) (generationResult, error) {
	var r generationResult
	if err := json.Unmarshal(body, &r); err != nil {
		return generationResult{}, fmt.Errorf("executor: parse generation result: %w", err)
	}
	if r.Nodes == nil {
		return generationResult{}, fmt.Errorf("executor: parse generation result: no nodes field")
	}
	return r, nil
}

// ResolveGenerationCallback feeds the agent's POST body to the waiter
// registered for a Generate call (spec §6 "POST /blueprints/:id/generate").
func (e *Executor) ResolveGenerationCallback(requestID string, body []byte) error {
	result, err := unmarshalGenerationResult(body)
	if err != nil {
		return err
	}
	return e.Callbacks.Resolve(requestID, result)
}

// Generate asks an agent to propose a first draft of a blueprint's node
// graph from its title and description, then materializes the response as
// pending nodes in blueprint order with the declared intra-batch
// dependencies (spec §6 "POST /blueprints/:id/generate", the bulk-create
// sibling of ".../nodes/batch-create").
func (e *Executor) Generate(blueprintID string) (*queue.Future, error) {
	bp, err := e.Store.GetBlueprint(blueprintID)
	if err != nil {
		return nil, err
	}

	agentType := "claude"
	for name := range e.AgentTypes {
		agentType = name
		break
	}
	agent, ok := e.AgentTypes[agentType]
	if !ok {
		return nil, fmt.Errorf("executor: no registered agent type to generate with")
	}

	future := e.Queue.Enqueue(blueprintID, queue.TaskGenerate, nil, func(ctx context.Context) (interface{}, error) {
		e.runGeneration(ctx, bp, agent)
		return nil, nil
	})
	return future, nil
}

func (e *Executor) runGeneration(ctx context.Context, bp *types.Blueprint, agent AgentType) {
	requestID := e.idGen()
	e.Callbacks.Register(requestID)

	prompt := e.generationPrompt(bp, requestID)
	wait, cleanup, err := runner.RunDetached(runner.Spec{
		Binary: agent.BinaryPath,
		Prompt: prompt,
		Cwd:    bp.ProjectCwd,
		ArgsTemplate: func(promptFile, resumeSessionID string) []string {
			return buildArgs(agent.ArgsTemplate, promptFile, resumeSessionID)
		},
	})
	if err != nil {
		logf("EXECUTOR", "generate: failed to spawn agent for blueprint %s: %v", bp.ID, err)
		e.Callbacks.Reject(requestID, err)
		return
	}
	defer cleanup()
	go func() { _ = wait() }()

	val, err := e.Callbacks.Await(requestID)
	if err != nil {
		logf("EXECUTOR", "generate: no plan for blueprint %s: %v", bp.ID, err)
		return
	}
	result, ok := val.(generationResult)
	if !ok {
		logf("EXECUTOR", "generate: malformed plan for blueprint %s", bp.ID)
		return
	}

	base := len(bp.Nodes)
	ids := make([]string, len(result.Nodes))
	now := e.nowFn()
	for i, gn := range result.Nodes {
		ids[i] = e.idGen()
		var deps []string
		for _, ref := range gn.Dependencies {
			if ref >= 0 && ref < len(ids) && ref < i {
				deps = append(deps, ids[ref])
			}
		}
		node := &types.MacroNode{
			ID:           ids[i],
			BlueprintID:  bp.ID,
			Order:        base + i,
			Title:        gn.Title,
			Description:  gn.Description,
			Dependencies: deps,
			Status:       types.NodePending,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		if len(bp.Nodes) > 0 {
			node.AgentType = bp.Nodes[0].AgentType
		} else {
			node.AgentType = ""
			for name := range e.AgentTypes {
				node.AgentType = name
				break
			}
		}
		if err := e.Store.CreateNode(node); err != nil {
			logf("EXECUTOR", "generate: failed to create node %q for blueprint %s: %v", gn.Title, bp.ID, err)
		}
	}
}

func (e *Executor) generationPrompt(bp *types.Blueprint, requestID string) string {
	return fmt.Sprintf(`Blueprint "%s" needs a first draft of its macro node graph.

Description: %s

Propose a list of macro nodes covering the work end to end, each a
self-contained unit of work for one coding-agent session. Reply with:
  curl -s -X POST "%s/enrichment-callback/%s?auth=%s" \
    -d '{"nodes":[{"title":"...","description":"...","dependencies":[]}, ...]}'
"dependencies" holds 0-based indices into this same array, referring only
to earlier entries.
`, bp.Title, bp.Description, e.BaseURL, requestID, e.AuthToken)
}
