// Package diagram renders execution plans as Mermaid, ASCII, or graphviz images.
package diagram

import "github.com/rendis/adaptflow/pkg/schema"

// NodeKind classifies a diagram node by the plan step kind it draws.
type NodeKind string

const (
	NodeKindSetup         NodeKind = NodeKind(schema.StepKindSetup)
	NodeKindValidation    NodeKind = NodeKind(schema.StepKindValidation)
	NodeKindExecution     NodeKind = NodeKind(schema.StepKindExecution)
	NodeKindProcessing    NodeKind = NodeKind(schema.StepKindProcessing)
	NodeKindCommunication NodeKind = NodeKind(schema.StepKindCommunication)
	NodeKindStart         NodeKind = "start"
	NodeKindEnd           NodeKind = "end"
)

// DiagramModel is the intermediate representation used by all renderers.
type DiagramModel struct {
	Title string
	Nodes []*Node
	Edges []Edge
}

// Node is a single plan step, or the virtual start/end marker.
type Node struct {
	ID        string
	Label     string
	Kind      NodeKind
	Oversight bool
	// Details are the overlay annotations shown under the label.
	Details []string
}

// Edge represents the order between two nodes.
type Edge struct {
	From  string
	To    string
	Label string
}
