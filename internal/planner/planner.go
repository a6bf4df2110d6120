// Package planner expands a selected variant into an ordered execution plan.
package planner

import "github.com/rendis/adaptflow/pkg/schema"

// Overlay constants.
const (
	DefaultThreads     = 4
	DepthComprehensive = "comprehensive"
	LoggingDetailed    = "detailed"
	MonitoringRealTime = "real_time"
)

// ValidationLayers are applied to the validation step by comprehensive_validation.
var ValidationLayers = []string{"syntax", "semantic", "business_logic", "security"}

// overlay mutates steps for one characteristic. Overlays write disjoint
// fields, so applying them in any order or more than once gives the same plan.
type overlay func(steps []schema.Step)

var overlays = map[schema.Characteristic]overlay{
	schema.CharParallelExecution: func(steps []schema.Step) {
		for i := range steps {
			if steps[i].Kind == schema.StepKindExecution {
				steps[i].Parallelism = &schema.Parallelism{Enabled: true, Threads: DefaultThreads}
			}
		}
	},
	schema.CharComprehensiveValidation: func(steps []schema.Step) {
		for i := range steps {
			if steps[i].Kind == schema.StepKindValidation {
				layers := make([]string, len(ValidationLayers))
				copy(layers, ValidationLayers)
				steps[i].Validation = &schema.ValidationOverlay{Depth: DepthComprehensive, Layers: layers}
			}
		}
	},
	schema.CharExtensiveLogging: func(steps []schema.Step) {
		for i := range steps {
			steps[i].Observability = &schema.Observability{Logging: LoggingDetailed, Monitoring: MonitoringRealTime}
		}
	},
}

// Skeleton returns the base five-step plan shared by every variant.
func Skeleton() []schema.Step {
	return []schema.Step{
		{Name: schema.StepInitialize, Kind: schema.StepKindSetup},
		{Name: schema.StepValidateInputs, Kind: schema.StepKindValidation, RequiresOversight: true},
		{Name: schema.StepExecuteCoreLogic, Kind: schema.StepKindExecution, RequiresOversight: true},
		{Name: schema.StepHandleResults, Kind: schema.StepKindProcessing, RequiresOversight: true},
		{Name: schema.StepNotifyCompletion, Kind: schema.StepKindCommunication},
	}
}

// Plan expands variant into its step sequence. Characteristics without an
// overlay leave the skeleton untouched.
func Plan(variant schema.Variant, intent schema.IntentRecord) []schema.Step {
	steps := Skeleton()
	for _, c := range variant.Characteristics {
		if apply, ok := overlays[c]; ok {
			apply(steps)
		}
	}
	return steps
}

// PlanFor is Plan with the workflow criticality attached to every step that
// requires oversight.
func PlanFor(variant schema.Variant, intent schema.IntentRecord, criticality float64) []schema.Step {
	steps := Plan(variant, intent)
	for i := range steps {
		if steps[i].RequiresOversight {
			c := criticality
			steps[i].Criticality = &c
		}
	}
	return steps
}

// HasOverlay reports whether c changes the plan.
func HasOverlay(c schema.Characteristic) bool {
	_, ok := overlays[c]
	return ok
}
