package diagram

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/adaptflow/internal/planner"
	"github.com/rendis/adaptflow/internal/tuning"
	"github.com/rendis/adaptflow/pkg/schema"
)

func archetype(t *testing.T, vt schema.VariantType) schema.Variant {
	t.Helper()
	for _, v := range tuning.Defaults().Archetypes {
		if v.Type == vt {
			return v
		}
	}
	t.Fatalf("no archetype %s", vt)
	return schema.Variant{}
}

func speedPlan(t *testing.T) schema.ExecutionPlan {
	v := archetype(t, schema.VariantSpeed)
	return schema.ExecutionPlan{
		WorkflowID: "wf-1",
		Variant:    v.Type,
		Steps:      planner.PlanFor(v, schema.IntentRecord{}, 0.85),
	}
}

func TestFromPlan(t *testing.T) {
	model := FromPlan(speedPlan(t))

	assert.Equal(t, "speed_optimized plan for wf-1", model.Title)
	require.Len(t, model.Nodes, 7)
	assert.Equal(t, NodeKindStart, model.Nodes[0].Kind)
	assert.Equal(t, NodeKindEnd, model.Nodes[6].Kind)
	require.Len(t, model.Edges, 6)
	assert.Equal(t, Edge{From: startID, To: schema.StepInitialize}, model.Edges[0])

	exec := findNode(model.Nodes, schema.StepExecuteCoreLogic)
	require.NotNil(t, exec)
	assert.Equal(t, NodeKindExecution, exec.Kind)
	assert.True(t, exec.Oversight)
	assert.Equal(t, []string{"parallel x4", "criticality 0.85"}, exec.Details)

	setup := findNode(model.Nodes, schema.StepInitialize)
	assert.False(t, setup.Oversight)
	assert.Empty(t, setup.Details)
}

func TestFromPlan_ReliabilityOverlays(t *testing.T) {
	v := archetype(t, schema.VariantReliability)
	model := FromSteps("reliability", planner.Plan(v, schema.IntentRecord{}))

	validate := findNode(model.Nodes, schema.StepValidateInputs)
	require.NotNil(t, validate)
	assert.Equal(t, []string{
		"comprehensive: syntax, semantic, business_logic, security",
		"logging detailed",
	}, validate.Details)

	notify := findNode(model.Nodes, schema.StepNotifyCompletion)
	assert.Equal(t, []string{"logging detailed"}, notify.Details)
}

func TestFromSimulation_LabelsChaosEdge(t *testing.T) {
	env := schema.SimulationEnvironment{
		ID:          "sim-1",
		Scenario:    "degraded_network",
		Variant:     schema.VariantSpeed,
		Plan:        speedPlan(t).Steps,
		ChaosEvents: make([]schema.ChaosEvent, 5),
	}
	model := FromSimulation(env)

	assert.Contains(t, model.Title, "sim-1")
	for _, e := range model.Edges {
		if e.To == schema.StepExecuteCoreLogic {
			assert.Equal(t, "5 chaos events", e.Label)
		} else {
			assert.Empty(t, e.Label)
		}
	}
}

func TestFromSteps_Empty(t *testing.T) {
	model := FromSteps("empty", nil)
	require.Len(t, model.Nodes, 2)
	assert.Equal(t, []Edge{{From: startID, To: endID}}, model.Edges)
}

func TestRenderMermaid(t *testing.T) {
	output := RenderMermaid(FromPlan(speedPlan(t)))

	assert.True(t, strings.HasPrefix(output, "graph TD\n"))
	assert.Contains(t, output, "%% speed_optimized plan for wf-1")
	assert.Contains(t, output, `validate_inputs{"validate_inputs<br/>criticality 0.85"}`)
	assert.Contains(t, output, `execute_core_logic[["execute_core_logic<br/>parallel x4<br/>criticality 0.85"]]`)
	assert.Contains(t, output, `notify_completion(["notify_completion"])`)
	assert.Contains(t, output, `__start__(("Start"))`)
	assert.Contains(t, output, "__start__ --> initialize")
	assert.Contains(t, output, "handle_results --> notify_completion")
	assert.Contains(t, output, "class validate_inputs oversight")
	assert.Contains(t, output, "class initialize automatic")
	assert.NotContains(t, output, "class __start__")
}

func TestRenderMermaid_EdgeLabel(t *testing.T) {
	model := FromSteps("t", []schema.Step{{Name: "a", Kind: schema.StepKindExecution}})
	model.Edges[0].Label = "go"
	assert.Contains(t, RenderMermaid(model), "__start__ -->|go| a")
}

func TestMermaidSafeID(t *testing.T) {
	assert.Equal(t, "a_b_c_d", mermaidSafeID("a.b-c d"))
}

func TestRenderASCII(t *testing.T) {
	output := RenderASCII(FromPlan(speedPlan(t)))

	assert.Contains(t, output, "=== speed_optimized plan for wf-1 ===")
	assert.Contains(t, output, "│ execute_core_logic [OVERSIGHT] │")
	assert.Contains(t, output, "│ parallel x4                    │")
	assert.Equal(t, 6, strings.Count(output, "▼"))

	lines := strings.Split(output, "\n")
	var first, last int
	for i, l := range lines {
		if strings.Contains(l, "Start") {
			first = i
		}
		if strings.Contains(l, "End") {
			last = i
		}
	}
	assert.Less(t, first, last)
}

func TestRenderASCII_EdgeLabel(t *testing.T) {
	model := FromSteps("", []schema.Step{{Name: "a", Kind: schema.StepKindExecution}})
	model.Edges[0].Label = "2 chaos events"
	output := RenderASCII(model)
	assert.NotContains(t, output, "===")
	assert.Contains(t, output, "  │ 2 chaos events\n")
}

func TestMakeBox(t *testing.T) {
	box := makeBox(&Node{Label: "ab", Details: []string{"abcd"}})
	assert.Equal(t, 8, box.width)
	assert.Equal(t, []string{
		"┌──────┐",
		"│ ab   │",
		"│ abcd │",
		"└──────┘",
	}, box.lines)
}

func TestRenderImage(t *testing.T) {
	if testing.Short() {
		t.Skip("graphviz rendering is slow")
	}
	model := FromPlan(speedPlan(t))

	png, err := RenderImage(context.Background(), model, FormatPNG)
	require.NoError(t, err)
	require.Greater(t, len(png), 8)
	assert.Equal(t, []byte{0x89, 'P', 'N', 'G'}, png[:4])

	svg, err := RenderImage(context.Background(), model, FormatSVG)
	require.NoError(t, err)
	assert.Contains(t, string(svg), "<svg")
	assert.Contains(t, string(svg), "execute_core_logic")
}

func TestRenderImage_UnsupportedFormat(t *testing.T) {
	_, err := RenderImage(context.Background(), FromSteps("", nil), ImageFormat("gif"))
	assert.ErrorContains(t, err, "unsupported image format")
}

func TestImageFormat_MIMEType(t *testing.T) {
	assert.Equal(t, "image/png", FormatPNG.MIMEType())
	assert.Equal(t, "image/svg+xml", FormatSVG.MIMEType())
}
