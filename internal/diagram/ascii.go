package diagram

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// RenderASCII renders a DiagramModel as a vertical stack of boxes joined by
// arrows. Edge labels are written beside the arrow.
func RenderASCII(model *DiagramModel) string {
	var b strings.Builder

	if model.Title != "" {
		b.WriteString(fmt.Sprintf("=== %s ===\n\n", model.Title))
	}

	for i, node := range model.Nodes {
		for _, line := range makeBox(node).lines {
			b.WriteString(line)
			b.WriteByte('\n')
		}
		if i < len(model.Nodes)-1 {
			renderConnector(&b, edgeLabel(model.Edges, node.ID, model.Nodes[i+1].ID))
		}
	}

	return b.String()
}

// asciiBox holds the rendered lines of a single box.
type asciiBox struct {
	lines []string
	width int
}

// makeBox creates an ASCII box for a node.
func makeBox(node *Node) asciiBox {
	label := node.Label
	if node.Oversight {
		label += " [OVERSIGHT]"
	}
	contentLines := append([]string{label}, node.Details...)

	maxLen := 0
	for _, line := range contentLines {
		if n := utf8.RuneCountInString(line); n > maxLen {
			maxLen = n
		}
	}
	width := maxLen + 4 // 2 border + 2 padding

	lines := make([]string, 0, len(contentLines)+2)
	lines = append(lines, "┌"+strings.Repeat("─", width-2)+"┐")
	for _, content := range contentLines {
		padded := content + strings.Repeat(" ", maxLen-utf8.RuneCountInString(content))
		lines = append(lines, "│ "+padded+" │")
	}
	lines = append(lines, "└"+strings.Repeat("─", width-2)+"┘")

	return asciiBox{lines: lines, width: width}
}

// renderConnector draws a vertical connector between two boxes.
func renderConnector(b *strings.Builder, label string) {
	b.WriteString("  │\n")
	if label != "" {
		b.WriteString("  │ " + label + "\n")
	}
	b.WriteString("  ▼\n")
}

func edgeLabel(edges []Edge, from, to string) string {
	for _, e := range edges {
		if e.From == from && e.To == to {
			return e.Label
		}
	}
	return ""
}
