// Package intent defines the boundary to intent extraction and derives the
// workflow criticality from an extracted intent.
package intent

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/rendis/adaptflow/pkg/schema"
)

// Extractor turns a free-text description into an IntentRecord.
type Extractor interface {
	Extract(ctx context.Context, description string, userContext map[string]any) (schema.IntentRecord, error)
}

// KeywordExtractor is the default Extractor. It classifies the goal and
// emotional signals by keyword and attaches fixed requirement,
// opportunity, and pain-point lists.
type KeywordExtractor struct{}

// NewKeywordExtractor returns the keyword-based extractor.
func NewKeywordExtractor() *KeywordExtractor {
	return &KeywordExtractor{}
}

var (
	hiddenRequirements = []string{
		"error_handling_with_human_escalation",
		"security_compliance_validation",
		"performance_optimization",
		"user_experience_enhancement",
		"scalability_preparation",
	}
	optimizationOpportunities = []string{
		"parallel_execution_opportunities",
		"caching_strategy_implementation",
		"predictive_pre-execution",
		"intelligent_batching",
		"adaptive_timing_optimization",
	}
	painPoints = []string{
		"manual_repetitive_tasks",
		"context_switching_overhead",
		"error_recovery_complexity",
		"monitoring_and_visibility_gaps",
		"integration_maintenance_burden",
	}
)

// Extract implements Extractor.
func (k *KeywordExtractor) Extract(ctx context.Context, description string, userContext map[string]any) (schema.IntentRecord, error) {
	if err := ctx.Err(); err != nil {
		return schema.IntentRecord{}, err
	}
	text := strings.ToLower(strings.TrimSpace(description))
	if text == "" {
		return schema.IntentRecord{}, schema.NewError(schema.ErrCodeValidation, "description is empty").
			WithField("description")
	}

	return schema.IntentRecord{
		PrimaryGoal: classifyGoal(text),
		EmotionalContext: map[string]float64{
			schema.SignalUrgency:               pick(strings.Contains(text, "urgent"), 0.7, 0.3),
			schema.SignalStressLevel:           pick(strings.Contains(text, "problem"), 0.8, 0.2),
			schema.SignalSatisfactionPotential: 0.9,
			schema.SignalCollaborationNeed:     pick(strings.Contains(text, "team"), 0.6, 0.3),
		},
		HiddenRequirements:        append([]string(nil), hiddenRequirements...),
		OptimizationOpportunities: append([]string(nil), optimizationOpportunities...),
		PainPoints:                append([]string(nil), painPoints...),
	}, nil
}

func classifyGoal(text string) schema.GoalCategory {
	switch {
	case strings.Contains(text, "customer") && strings.Contains(text, "email"):
		return schema.GoalCustomerCommunication
	case strings.Contains(text, "backup") || strings.Contains(text, "save"):
		return schema.GoalDataPreservation
	case strings.Contains(text, "notify") || strings.Contains(text, "alert"):
		return schema.GoalNotification
	default:
		return schema.GoalAutomation
	}
}

func pick(cond bool, yes, no float64) float64 {
	if cond {
		return yes
	}
	return no
}

// Validate checks an extractor's output before the engine stores it.
func Validate(r schema.IntentRecord) error {
	if !r.PrimaryGoal.Valid() {
		return schema.NewErrorf(schema.ErrCodeValidation, "unknown goal category %q", r.PrimaryGoal).
			WithField("primary_goal")
	}
	keys := make([]string, 0, len(r.EmotionalContext))
	for k := range r.EmotionalContext {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		v := r.EmotionalContext[k]
		if math.IsNaN(v) || v < 0 || v > 1 {
			return schema.NewErrorf(schema.ErrCodeValidation, "signal value %v outside [0,1]", v).
				WithField(fmt.Sprintf("emotional_context.%s", k))
		}
	}
	return nil
}

var _ Extractor = (*KeywordExtractor)(nil)
