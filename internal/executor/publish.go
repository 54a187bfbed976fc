package executor

import (
	"fmt"

	"github.com/macroforge/macroforge/internal/types"
)

// Subject patterns mirror internal/eventbus's, duplicated locally so this
// package never imports eventbus (and, transitively, the embedded NATS
// server) just to format a string — the engine wires a concrete
// *eventbus.Client in as a Publisher at start-up.
const (
	nodeStatusSubjectPattern      = "blueprint.%s.node.%s.status"
	blueprintStatusSubjectPattern = "blueprint.%s.status"
)

func (e *Executor) publishNodeStatus(blueprintID, nodeID string, status types.NodeStatus) {
	if e.Publisher == nil {
		return
	}
	subject := fmt.Sprintf(nodeStatusSubjectPattern, blueprintID, nodeID)
	payload := map[string]string{"blueprintId": blueprintID, "nodeId": nodeID, "status": string(status)}
	if err := e.Publisher.Publish(subject, payload); err != nil {
		logf("EXECUTOR", "publish node status for %s failed: %v", nodeID, err)
	}
}

func (e *Executor) publishBlueprintStatus(blueprintID string, status types.BlueprintStatus) {
	if e.Publisher == nil {
		return
	}
	subject := fmt.Sprintf(blueprintStatusSubjectPattern, blueprintID)
	payload := map[string]string{"blueprintId": blueprintID, "status": string(status)}
	if err := e.Publisher.Publish(subject, payload); err != nil {
		logf("EXECUTOR", "publish blueprint status for %s failed: %v", blueprintID, err)
	}
}
