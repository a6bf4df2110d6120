package tuning

import (
	"fmt"
	"math"

	"github.com/rendis/adaptflow/pkg/schema"
)

// RuleCheckers compile the expressions embedded in the tables. Either may be
// nil to skip that family of checks.
type RuleCheckers struct {
	Alignment interface{ Check(string) error }
	Tiers     interface{ Check(string) error }
}

var knownCharacteristics = map[schema.Characteristic]bool{
	schema.CharParallelExecution:       true,
	schema.CharMinimalValidation:       true,
	schema.CharCachedResults:           true,
	schema.CharComprehensiveValidation: true,
	schema.CharRedundantExecution:      true,
	schema.CharExtensiveLogging:        true,
	schema.CharExperimentalPaths:       true,
	schema.CharABTesting:               true,
	schema.CharContinuousOptimization:  true,
	schema.CharIntuitiveFeedback:       true,
	schema.CharProactiveCommunication:  true,
	schema.CharGracefulDegradation:     true,
}

// Validate performs the checks the JSON Schema cannot express: uniqueness,
// cross-field constraints, and rule compilation.
func Validate(t *Tables, checkers RuleCheckers) *schema.ValidationResult {
	result := &schema.ValidationResult{}

	validateArchetypes(t.Archetypes, result)
	validateRules(t.AlignmentRules, checkers, result)
	validateFitness(&t.Fitness, checkers, result)
	validateLearning(&t.Learning, result)
	validateSimulation(&t.Simulation, result)

	return result
}

func validateArchetypes(archetypes []schema.Variant, result *schema.ValidationResult) {
	if len(archetypes) == 0 {
		result.AddError("archetypes", "at least one archetype is required")
		return
	}
	seen := make(map[schema.VariantType]bool, len(archetypes))
	for i, v := range archetypes {
		path := fmt.Sprintf("archetypes[%d]", i)
		if !v.Type.Valid() {
			result.AddError(path+".type", "unknown variant type %q", v.Type)
		}
		if seen[v.Type] {
			result.AddError(path+".type", "duplicate variant type %q", v.Type)
		}
		seen[v.Type] = true

		checkUnit(result, path+".trade_offs.speed", v.TradeOffs.Speed)
		checkUnit(result, path+".trade_offs.reliability", v.TradeOffs.Reliability)
		checkUnit(result, path+".trade_offs.resource_usage", v.TradeOffs.ResourceUsage)

		for j, c := range v.Characteristics {
			if !knownCharacteristics[c] {
				result.AddWarning(fmt.Sprintf("%s.characteristics[%d]", path, j),
					"characteristic %q has no plan overlay", c)
			}
		}
	}
}

func validateRules(rules []AlignmentRule, checkers RuleCheckers, result *schema.ValidationResult) {
	names := make(map[string]bool, len(rules))
	for i, r := range rules {
		path := fmt.Sprintf("alignment_rules[%d]", i)
		if names[r.Name] {
			result.AddError(path+".name", "duplicate rule name %q", r.Name)
		}
		names[r.Name] = true
		if math.IsNaN(r.Bonus) || math.IsInf(r.Bonus, 0) {
			result.AddError(path+".bonus", "bonus must be finite")
		}
		if checkers.Alignment != nil {
			if err := checkers.Alignment.Check(r.When); err != nil {
				result.AddError(path+".when", "%s", err.Error())
			}
		}
	}
}

func validateFitness(f *FitnessTable, checkers RuleCheckers, result *schema.ValidationResult) {
	if f.Window < 1 {
		result.AddError("fitness.window", "must be at least 1, got %d", f.Window)
	}
	sum := f.SatisfactionWeight + f.EfficiencyWeight + f.SuccessWeight
	if math.Abs(sum-1) > 1e-9 {
		result.AddError("fitness", "weights must sum to 1, got %v", sum)
	}
	names := make(map[string]bool, len(f.Tiers))
	for i, tier := range f.Tiers {
		path := fmt.Sprintf("fitness.tiers[%d]", i)
		if names[tier.Name] {
			result.AddError(path+".name", "duplicate tier name %q", tier.Name)
		}
		names[tier.Name] = true
		if len(tier.Suggestions) == 0 {
			result.AddWarning(path+".suggestions", "tier contributes no suggestions")
		}
		if checkers.Tiers != nil {
			if err := checkers.Tiers.Check(tier.When); err != nil {
				result.AddError(path+".when", "%s", err.Error())
			}
		}
	}
}

func validateLearning(l *LearningTimings, result *schema.ValidationResult) {
	if l.PoolSize < 1 {
		result.AddError("learning.pool_size", "must be at least 1, got %d", l.PoolSize)
	}
	if l.WarmUp < 0 {
		result.AddError("learning.warm_up", "must not be negative")
	}
	if l.Retry.MaxAttempts < 1 {
		result.AddError("learning.retry.max_attempts", "must be at least 1, got %d", l.Retry.MaxAttempts)
	}
	if l.Retry.MaxDelay > 0 && l.Retry.Delay > l.Retry.MaxDelay {
		result.AddError("learning.retry.delay", "delay %s exceeds max_delay %s", l.Retry.Delay, l.Retry.MaxDelay)
	}
}

func validateSimulation(s *SimulationProfile, result *schema.ValidationResult) {
	if s.AmountMin >= s.AmountMax {
		result.AddError("simulation.amount_min", "must be below amount_max (%v >= %v)", s.AmountMin, s.AmountMax)
	}
	if s.MaxEnvironments < 1 {
		result.AddError("simulation.max_environments", "must be at least 1, got %d", s.MaxEnvironments)
	}
	if s.TTL <= 0 {
		result.AddError("simulation.ttl", "must be positive")
	}
	if s.JanitorInterval <= 0 {
		result.AddError("simulation.janitor_interval", "must be positive")
	}
	systems := make(map[string]bool, len(s.VirtualSystems))
	for i, vs := range s.VirtualSystems {
		if systems[vs.Name] {
			result.AddError(fmt.Sprintf("simulation.virtual_systems[%d].name", i), "duplicate system %q", vs.Name)
		}
		systems[vs.Name] = true
	}
	scenarios := make(map[string]bool, len(s.ParallelScenarios))
	for i, ps := range s.ParallelScenarios {
		if scenarios[ps.Name] {
			result.AddError(fmt.Sprintf("simulation.parallel_scenarios[%d].name", i), "duplicate scenario %q", ps.Name)
		}
		scenarios[ps.Name] = true
	}
	for i, ev := range s.ChaosEvents {
		checkUnit(result, fmt.Sprintf("simulation.chaos_events[%d].probability", i), ev.Probability)
	}
}

func checkUnit(result *schema.ValidationResult, path string, v float64) {
	if math.IsNaN(v) || v < 0 || v > 1 {
		result.AddError(path, "value %v outside [0,1]", v)
	}
}
