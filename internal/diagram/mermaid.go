package diagram

import (
	"fmt"
	"strings"
)

// RenderMermaid renders a DiagramModel as a Mermaid flowchart string.
func RenderMermaid(model *DiagramModel) string {
	var b strings.Builder

	b.WriteString("graph TD\n")

	if model.Title != "" {
		b.WriteString(fmt.Sprintf("    %%%% %s\n", model.Title))
	}

	for _, node := range model.Nodes {
		b.WriteString(fmt.Sprintf("    %s\n", mermaidNodeDef(node)))
	}

	for _, edge := range model.Edges {
		label := ""
		if edge.Label != "" {
			label = fmt.Sprintf("|%s|", edge.Label)
		}
		b.WriteString(fmt.Sprintf("    %s -->%s %s\n",
			mermaidSafeID(edge.From), label, mermaidSafeID(edge.To)))
	}

	b.WriteString("\n")
	b.WriteString("    classDef oversight fill:#b7791a,stroke:#8a5c14,color:#fff\n")
	b.WriteString("    classDef automatic fill:#6b6b6b,stroke:#4a4a4a,color:#fff\n")

	for _, node := range model.Nodes {
		if node.Kind == NodeKindStart || node.Kind == NodeKindEnd {
			continue
		}
		cls := "automatic"
		if node.Oversight {
			cls = "oversight"
		}
		b.WriteString(fmt.Sprintf("    class %s %s\n", mermaidSafeID(node.ID), cls))
	}

	return b.String()
}

// mermaidNodeDef returns a Mermaid node definition with the appropriate shape.
func mermaidNodeDef(node *Node) string {
	id := mermaidSafeID(node.ID)
	label := mermaidLabel(node)

	switch node.Kind {
	case NodeKindValidation:
		return fmt.Sprintf("%s{%q}", id, label)
	case NodeKindExecution:
		return fmt.Sprintf("%s[[%q]]", id, label)
	case NodeKindCommunication:
		return fmt.Sprintf("%s([%q])", id, label)
	case NodeKindStart, NodeKindEnd:
		return fmt.Sprintf("%s((%q))", id, label)
	default: // setup, processing
		return fmt.Sprintf("%s[%q]", id, label)
	}
}

func mermaidLabel(node *Node) string {
	if len(node.Details) == 0 {
		return node.Label
	}
	return node.Label + "<br/>" + strings.Join(node.Details, "<br/>")
}

// mermaidSafeID converts a node ID to a Mermaid-safe identifier.
func mermaidSafeID(id string) string {
	r := strings.NewReplacer(".", "_", "-", "_", " ", "_")
	return r.Replace(id)
}
