package tuning

import (
	"time"

	"github.com/rendis/adaptflow/pkg/schema"
)

// Default rule and tier names.
const (
	RuleCustomerUX   = "customer_ux_alignment"
	TierModerate     = "moderate"
	TierSevere       = "severe"
	ScenarioStandard = "standard"
)

// Defaults returns the built-in tables. Each call returns a fresh copy.
func Defaults() Tables {
	return Tables{
		Archetypes: []schema.Variant{
			{
				Type:            schema.VariantSpeed,
				Characteristics: []schema.Characteristic{schema.CharParallelExecution, schema.CharMinimalValidation, schema.CharCachedResults},
				TradeOffs:       schema.TradeOffs{Speed: 0.95, Reliability: 0.8, ResourceUsage: 0.9},
			},
			{
				Type:            schema.VariantReliability,
				Characteristics: []schema.Characteristic{schema.CharComprehensiveValidation, schema.CharRedundantExecution, schema.CharExtensiveLogging},
				TradeOffs:       schema.TradeOffs{Speed: 0.7, Reliability: 0.98, ResourceUsage: 0.6},
			},
			{
				Type:            schema.VariantLearning,
				Characteristics: []schema.Characteristic{schema.CharExperimentalPaths, schema.CharABTesting, schema.CharContinuousOptimization},
				TradeOffs:       schema.TradeOffs{Speed: 0.8, Reliability: 0.85, ResourceUsage: 0.7},
			},
			{
				Type:            schema.VariantUX,
				Characteristics: []schema.Characteristic{schema.CharIntuitiveFeedback, schema.CharProactiveCommunication, schema.CharGracefulDegradation},
				TradeOffs:       schema.TradeOffs{Speed: 0.85, Reliability: 0.9, ResourceUsage: 0.8},
			},
		},
		AlignmentRules: []AlignmentRule{
			{
				Name:  RuleCustomerUX,
				When:  `variant.type == "ux_optimized" && intent.primary_goal == "customer_communication_optimization"`,
				Bonus: 0.1,
			},
		},
		Context: ContextDefaults{
			Urgency:        0.5,
			Resources:      0.8,
			UserSkillLevel: 0.6,
			CurrentLoad:    0.3,
			ErrorTolerance: 0.7,
		},
		Criticality: CriticalityTable{
			Base:                  0.5,
			StressThreshold:       0.5,
			StressBonus:           0.2,
			RequirementsThreshold: 3,
			RequirementsBonus:     0.15,
			CustomerBonus:         0.2,
		},
		Fitness: FitnessTable{
			Window:             10,
			SatisfactionWeight: 0.4,
			EfficiencyWeight:   0.3,
			SuccessWeight:      0.3,
			Tiers: []MutationTier{
				{
					Name: TierModerate,
					When: "fitness < 0.7",
					Suggestions: []string{
						"optimize_execution_order",
						"add_parallel_processing",
						"implement_caching",
						"reduce_validation_overhead",
						"improve_error_handling",
					},
				},
				{
					Name: TierSevere,
					When: "fitness < 0.5",
					Suggestions: []string{
						"complete_architecture_redesign",
						"alternative_implementation_strategy",
						"user_experience_overhaul",
						"integration_method_change",
					},
				},
			},
		},
		Learning: LearningTimings{
			WarmUp:   Duration(time.Second),
			PoolSize: 8,
			Retry: RetryPolicy{
				MaxAttempts: 3,
				Backoff:     "exponential",
				Delay:       Duration(200 * time.Millisecond),
				MaxDelay:    Duration(5 * time.Second),
			},
		},
		Simulation: SimulationProfile{
			VirtualSystems: []schema.VirtualSystem{
				{Name: "email_system", Type: "mock", ResponseTimeMs: 100, FailureRate: 0.01},
				{Name: "database", Type: "in_memory", ResponseTimeMs: 10, FailureRate: 0.001},
				{Name: "api_endpoints", Type: "mock", ResponseTimeMs: 200, FailureRate: 0.05},
				{Name: "file_system", Type: "virtual", ResponseTimeMs: 50, FailureRate: 0.002},
			},
			Customers:    100,
			Transactions: 50,
			AmountMin:    10,
			AmountMax:    1000,
			ChaosEvents: []schema.ChaosEvent{
				{Type: "network_latency", Probability: 0.1, Effect: schema.ChaosEffect{Kind: "impact", Value: "2x_slower"}},
				{Type: "service_unavailable", Probability: 0.05, Effect: schema.ChaosEffect{Kind: "duration", Value: "30_seconds"}},
				{Type: "data_corruption", Probability: 0.01, Effect: schema.ChaosEffect{Kind: "scope", Value: "single_record"}},
				{Type: "rate_limit_exceeded", Probability: 0.08, Effect: schema.ChaosEffect{Kind: "duration", Value: "60_seconds"}},
				{Type: "authentication_failure", Probability: 0.03, Effect: schema.ChaosEffect{Kind: "retry_behavior", Value: "exponential_backoff"}},
			},
			SuccessCriteria: schema.SuccessCriteria{
				MaxExecutionSeconds: 30,
				MinSuccessRate:      0.95,
				MinSatisfaction:     0.8,
				MinEfficiency:       0.7,
				MaxRecoverySeconds:  5,
			},
			ParallelScenarios: []schema.ParallelScenario{
				{Name: "high_load", Characteristics: map[string]string{"concurrent_users": "1000", "data_volume": "10x"}},
				{Name: "low_resources", Characteristics: map[string]string{"cpu_limit": "50%", "memory_limit": "1GB"}},
				{Name: "degraded_network", Characteristics: map[string]string{"latency": "high", "packet_loss": "5%"}},
				{Name: "ideal", Characteristics: map[string]string{"latency": "minimal", "resources": "unlimited"}},
			},
			MaxEnvironments: 256,
			TTL:             Duration(time.Hour),
			JanitorInterval: Duration(time.Minute),
		},
	}
}
