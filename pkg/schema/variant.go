package schema

// VariantType is the closed set of implementation archetypes.
type VariantType string

const (
	VariantSpeed       VariantType = "speed_optimized"
	VariantReliability VariantType = "reliability_optimized"
	VariantLearning    VariantType = "learning_optimized"
	VariantUX          VariantType = "ux_optimized"
)

// Valid reports whether v is a known variant type.
func (v VariantType) Valid() bool {
	switch v {
	case VariantSpeed, VariantReliability, VariantLearning, VariantUX:
		return true
	default:
		return false
	}
}

// Characteristic is a capability tag attached to a variant.
type Characteristic string

const (
	CharParallelExecution       Characteristic = "parallel_execution"
	CharMinimalValidation       Characteristic = "minimal_validation"
	CharCachedResults           Characteristic = "cached_results"
	CharComprehensiveValidation Characteristic = "comprehensive_validation"
	CharRedundantExecution      Characteristic = "redundant_execution"
	CharExtensiveLogging        Characteristic = "extensive_logging"
	CharExperimentalPaths       Characteristic = "experimental_paths"
	CharABTesting               Characteristic = "a_b_testing"
	CharContinuousOptimization  Characteristic = "continuous_optimization"
	CharIntuitiveFeedback       Characteristic = "intuitive_feedback"
	CharProactiveCommunication  Characteristic = "proactive_communication"
	CharGracefulDegradation     Characteristic = "graceful_degradation"
)

// TradeOffs is the fixed-key trade-off vector of a variant. Every value lies in [0,1].
type TradeOffs struct {
	Speed         float64 `json:"speed" yaml:"speed"`
	Reliability   float64 `json:"reliability" yaml:"reliability"`
	ResourceUsage float64 `json:"resource_usage" yaml:"resource_usage"`
}

// Variant is one candidate implementation strategy.
type Variant struct {
	Type            VariantType      `json:"type" yaml:"type"`
	Characteristics []Characteristic `json:"characteristics" yaml:"characteristics"`
	TradeOffs       TradeOffs        `json:"trade_offs" yaml:"trade_offs"`
}

// Has reports whether the variant carries the given characteristic.
func (v Variant) Has(c Characteristic) bool {
	for _, have := range v.Characteristics {
		if have == c {
			return true
		}
	}
	return false
}

// Clone returns a copy that shares no backing arrays with v.
func (v Variant) Clone() Variant {
	out := v
	if v.Characteristics != nil {
		out.Characteristics = make([]Characteristic, len(v.Characteristics))
		copy(out.Characteristics, v.Characteristics)
	}
	return out
}

// CloneVariants deep-copies a variant list.
func CloneVariants(in []Variant) []Variant {
	if in == nil {
		return nil
	}
	out := make([]Variant, len(in))
	for i, v := range in {
		out[i] = v.Clone()
	}
	return out
}
