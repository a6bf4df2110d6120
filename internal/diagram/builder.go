package diagram

import (
	"fmt"
	"strings"

	"github.com/rendis/adaptflow/pkg/schema"
)

const (
	startID = "__start__"
	endID   = "__end__"
)

// FromPlan builds the diagram of an execution plan.
func FromPlan(plan schema.ExecutionPlan) *DiagramModel {
	return FromSteps(fmt.Sprintf("%s plan for %s", plan.Variant, plan.WorkflowID), plan.Steps)
}

// FromSimulation builds the diagram of the plan a simulation environment runs.
// Chaos events label the edge into the execution step.
func FromSimulation(env schema.SimulationEnvironment) *DiagramModel {
	model := FromSteps(fmt.Sprintf("%s simulation %s (%s)", env.Variant, env.ID, env.Scenario), env.Plan)
	if len(env.ChaosEvents) == 0 {
		return model
	}
	for i := range model.Edges {
		if node := findNode(model.Nodes, model.Edges[i].To); node != nil && node.Kind == NodeKindExecution {
			model.Edges[i].Label = fmt.Sprintf("%d chaos events", len(env.ChaosEvents))
		}
	}
	return model
}

// FromSteps builds a linear diagram: start, each step in order, end.
func FromSteps(title string, steps []schema.Step) *DiagramModel {
	nodes := make([]*Node, 0, len(steps)+2)
	nodes = append(nodes, &Node{ID: startID, Label: "Start", Kind: NodeKindStart})
	for _, step := range steps {
		nodes = append(nodes, stepToNode(step))
	}
	nodes = append(nodes, &Node{ID: endID, Label: "End", Kind: NodeKindEnd})

	edges := make([]Edge, 0, len(nodes)-1)
	for i := 1; i < len(nodes); i++ {
		edges = append(edges, Edge{From: nodes[i-1].ID, To: nodes[i].ID})
	}
	return &DiagramModel{Title: title, Nodes: nodes, Edges: edges}
}

func stepToNode(step schema.Step) *Node {
	node := &Node{
		ID:        step.Name,
		Label:     step.Name,
		Kind:      NodeKind(step.Kind),
		Oversight: step.RequiresOversight,
	}
	if step.Parallelism != nil && step.Parallelism.Enabled {
		node.Details = append(node.Details, fmt.Sprintf("parallel x%d", step.Parallelism.Threads))
	}
	if step.Validation != nil {
		node.Details = append(node.Details, fmt.Sprintf("%s: %s", step.Validation.Depth, strings.Join(step.Validation.Layers, ", ")))
	}
	if step.Observability != nil {
		node.Details = append(node.Details, fmt.Sprintf("logging %s", step.Observability.Logging))
	}
	if step.Criticality != nil {
		node.Details = append(node.Details, fmt.Sprintf("criticality %.2f", *step.Criticality))
	}
	return node
}

// findNode looks up a node by ID in the model's node list.
func findNode(nodes []*Node, id string) *Node {
	for _, n := range nodes {
		if n.ID == id {
			return n
		}
	}
	return nil
}
