// Package tuning holds the configurable tables that drive variant generation,
// selection, fitness tracking, pattern learning, and simulation.
package tuning

import "github.com/rendis/adaptflow/pkg/schema"

// Tables is the complete tuning configuration. A zero Tables is not usable;
// start from Defaults.
type Tables struct {
	Archetypes     []schema.Variant  `json:"archetypes" yaml:"archetypes"`
	AlignmentRules []AlignmentRule   `json:"alignment_rules" yaml:"alignment_rules"`
	Context        ContextDefaults   `json:"context" yaml:"context"`
	Criticality    CriticalityTable  `json:"criticality" yaml:"criticality"`
	Fitness        FitnessTable      `json:"fitness" yaml:"fitness"`
	Learning       LearningTimings   `json:"learning" yaml:"learning"`
	Simulation     SimulationProfile `json:"simulation" yaml:"simulation"`
}

// AlignmentRule adds Bonus to a variant's score when When (an expr boolean
// over variant and intent) holds.
type AlignmentRule struct {
	Name  string  `json:"name" yaml:"name"`
	When  string  `json:"when" yaml:"when"`
	Bonus float64 `json:"bonus" yaml:"bonus"`
}

// ContextDefaults are the fallbacks for absent ExecutionContext fields.
// In Strict mode absent fields are rejected instead.
type ContextDefaults struct {
	Urgency        float64 `json:"urgency" yaml:"urgency"`
	Resources      float64 `json:"resources" yaml:"resources"`
	UserSkillLevel float64 `json:"user_skill_level" yaml:"user_skill_level"`
	CurrentLoad    float64 `json:"current_load" yaml:"current_load"`
	ErrorTolerance float64 `json:"error_tolerance" yaml:"error_tolerance"`
	Strict         bool    `json:"strict" yaml:"strict"`
}

// CriticalityTable parameterizes workflow criticality:
// Base, plus each bonus whose condition holds, capped at 1.
type CriticalityTable struct {
	Base                  float64 `json:"base" yaml:"base"`
	StressThreshold       float64 `json:"stress_threshold" yaml:"stress_threshold"`
	StressBonus           float64 `json:"stress_bonus" yaml:"stress_bonus"`
	RequirementsThreshold int     `json:"requirements_threshold" yaml:"requirements_threshold"`
	RequirementsBonus     float64 `json:"requirements_bonus" yaml:"requirements_bonus"`
	CustomerBonus         float64 `json:"customer_bonus" yaml:"customer_bonus"`
}

// FitnessTable configures the evolution tracker.
type FitnessTable struct {
	Window             int            `json:"window" yaml:"window"`
	SatisfactionWeight float64        `json:"satisfaction_weight" yaml:"satisfaction_weight"`
	EfficiencyWeight   float64        `json:"efficiency_weight" yaml:"efficiency_weight"`
	SuccessWeight      float64        `json:"success_weight" yaml:"success_weight"`
	Tiers              []MutationTier `json:"tiers" yaml:"tiers"`
}

// MutationTier contributes Suggestions when When (a CEL boolean over the
// windowed fitness variables) holds. Tiers are evaluated in order.
type MutationTier struct {
	Name        string   `json:"name" yaml:"name"`
	When        string   `json:"when" yaml:"when"`
	Suggestions []string `json:"suggestions" yaml:"suggestions"`
}

// RetryPolicy bounds and paces re-attempts of a failed background task.
// Backoff is one of none, constant, linear, exponential.
type RetryPolicy struct {
	MaxAttempts int      `json:"max_attempts" yaml:"max_attempts"`
	Backoff     string   `json:"backoff" yaml:"backoff"`
	Delay       Duration `json:"delay" yaml:"delay"`
	MaxDelay    Duration `json:"max_delay" yaml:"max_delay"`
}

// LearningTimings configures the pattern learner.
type LearningTimings struct {
	WarmUp   Duration    `json:"warm_up" yaml:"warm_up"`
	PoolSize int         `json:"pool_size" yaml:"pool_size"`
	Retry    RetryPolicy `json:"retry" yaml:"retry"`
}

// SimulationProfile configures the scenario simulator.
type SimulationProfile struct {
	VirtualSystems    []schema.VirtualSystem    `json:"virtual_systems" yaml:"virtual_systems"`
	Customers         int                       `json:"customers" yaml:"customers"`
	Transactions      int                       `json:"transactions" yaml:"transactions"`
	AmountMin         float64                   `json:"amount_min" yaml:"amount_min"`
	AmountMax         float64                   `json:"amount_max" yaml:"amount_max"`
	ChaosEvents       []schema.ChaosEvent       `json:"chaos_events" yaml:"chaos_events"`
	SuccessCriteria   schema.SuccessCriteria    `json:"success_criteria" yaml:"success_criteria"`
	ParallelScenarios []schema.ParallelScenario `json:"parallel_scenarios" yaml:"parallel_scenarios"`
	MaxEnvironments   int                       `json:"max_environments" yaml:"max_environments"`
	TTL               Duration                  `json:"ttl" yaml:"ttl"`
	JanitorInterval   Duration                  `json:"janitor_interval" yaml:"janitor_interval"`
}

// Clone returns a deep copy so callers can adjust tables without affecting
// components that already hold them.
func (t Tables) Clone() Tables {
	out := t
	out.Archetypes = schema.CloneVariants(t.Archetypes)
	out.AlignmentRules = append([]AlignmentRule(nil), t.AlignmentRules...)

	out.Fitness.Tiers = make([]MutationTier, len(t.Fitness.Tiers))
	for i, tier := range t.Fitness.Tiers {
		tier.Suggestions = append([]string(nil), tier.Suggestions...)
		out.Fitness.Tiers[i] = tier
	}

	sim := &out.Simulation
	sim.VirtualSystems = append([]schema.VirtualSystem(nil), t.Simulation.VirtualSystems...)
	sim.ChaosEvents = append([]schema.ChaosEvent(nil), t.Simulation.ChaosEvents...)
	sim.ParallelScenarios = make([]schema.ParallelScenario, len(t.Simulation.ParallelScenarios))
	for i, ps := range t.Simulation.ParallelScenarios {
		chars := make(map[string]string, len(ps.Characteristics))
		for k, v := range ps.Characteristics {
			chars[k] = v
		}
		sim.ParallelScenarios[i] = schema.ParallelScenario{Name: ps.Name, Characteristics: chars}
	}
	return out
}
