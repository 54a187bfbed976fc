package eventbus

import "fmt"

// Subject patterns for node/blueprint lifecycle broadcasts. Use the
// Subject* helper functions to render one for a specific id rather than
// formatting these by hand.
const (
	subjectNodeStatusPattern      = "blueprint.%s.node.%s.status"
	subjectBlueprintStatusPattern = "blueprint.%s.status"
	subjectQueueDepthPattern      = "blueprint.%s.queue"

	// SubjectAllNodeStatus subscribes to every node status change across
	// every blueprint (the dashboard's single global feed).
	SubjectAllNodeStatus = "blueprint.*.node.*.status"
)

// NodeStatusEvent is published whenever a node's Store status changes.
type NodeStatusEvent struct {
	BlueprintID string `json:"blueprintId"`
	NodeID      string `json:"nodeId"`
	Status      string `json:"status"`
}

// BlueprintStatusEvent is published whenever a blueprint's Store status
// changes (e.g. the last node completes and Next marks it done).
type BlueprintStatusEvent struct {
	BlueprintID string `json:"blueprintId"`
	Status      string `json:"status"`
}

// SubjectNodeStatus renders the subject a node's status events publish to.
func SubjectNodeStatus(blueprintID, nodeID string) string {
	return fmt.Sprintf(subjectNodeStatusPattern, blueprintID, nodeID)
}

// SubjectBlueprintStatus renders the subject a blueprint's status events
// publish to.
func SubjectBlueprintStatus(blueprintID string) string {
	return fmt.Sprintf(subjectBlueprintStatusPattern, blueprintID)
}

// SubjectQueueDepth renders the subject a blueprint's queue-depth events
// publish to.
func SubjectQueueDepth(blueprintID string) string {
	return fmt.Sprintf(subjectQueueDepthPattern, blueprintID)
}
