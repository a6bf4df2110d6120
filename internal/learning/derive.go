package learning

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/rendis/adaptflow/internal/randsrc"
	"github.com/rendis/adaptflow/pkg/schema"
)

// DeriveFunc computes one pattern for a workflow. It returns a
// *schema.TemporalPattern, *schema.TriggerPattern or *schema.UserPattern
// matching the kind it is registered under.
type DeriveFunc func(ctx context.Context, rec *schema.WorkflowRecord) (any, error)

var (
	peakHours         = []int{9, 10, 14, 16}
	peakDays          = []string{"monday", "tuesday", "wednesday"}
	peakDaysCron      = "1-3"
	productivityPeaks = []int{10, 14, 16}
)

// Trigger tags inferred from the primary goal. Goals without an entry
// yield no candidates.
var triggerTags = map[schema.GoalCategory][]string{
	schema.GoalCustomerCommunication: {
		"new_customer_signup",
		"customer_support_request",
		"customer_feedback_received",
		"customer_churn_risk_detected",
	},
	schema.GoalDataPreservation: {
		"file_modification_detected",
		"scheduled_backup_time",
		"storage_threshold_reached",
		"critical_work_completed",
	},
	schema.GoalNotification: {
		"threshold_breach_detected",
		"scheduled_digest_due",
		"critical_event_logged",
	},
}

var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// TemporalCronSpec is the five-field cron expression covering the peak hours on peak days.
func TemporalCronSpec() string {
	hours := make([]string, len(peakHours))
	for i, h := range peakHours {
		hours[i] = strconv.Itoa(h)
	}
	return fmt.Sprintf("0 %s * * %s", strings.Join(hours, ","), peakDaysCron)
}

// DeriveTemporal returns the temporal derivation. now supplies the
// reference time for the next predicted trigger.
func DeriveTemporal(now func() time.Time) DeriveFunc {
	return func(ctx context.Context, rec *schema.WorkflowRecord) (any, error) {
		spec := TemporalCronSpec()
		sched, err := cronParser.Parse(spec)
		if err != nil {
			return nil, fmt.Errorf("parse temporal cron %q: %w", spec, err)
		}
		return &schema.TemporalPattern{
			PeakHours:        append([]int(nil), peakHours...),
			PeakDays:         append([]string(nil), peakDays...),
			Seasonal:         map[string]float64{"end_of_month": 0.8, "end_of_quarter": 0.9},
			BehaviorTriggers: map[string]float64{"after_meeting": 0.7, "before_deadline": 0.9},
			CronSpec:         spec,
			NextPredicted:    sched.Next(now().UTC()),
		}, nil
	}
}

// DeriveTrigger returns the trigger derivation. Each candidate's confidence
// is 0.7 + r*0.3 with r drawn from src.
func DeriveTrigger(src randsrc.Source) DeriveFunc {
	return func(ctx context.Context, rec *schema.WorkflowRecord) (any, error) {
		tags := triggerTags[rec.Intent.PrimaryGoal]
		out := &schema.TriggerPattern{Candidates: make([]schema.TriggerCandidate, 0, len(tags))}
		for _, tag := range tags {
			out.Candidates = append(out.Candidates, schema.TriggerCandidate{
				Tag:        tag,
				Confidence: randsrc.Uniform(src, 0.7, 1.0),
			})
		}
		return out, nil
	}
}

// DeriveUser returns the user-behavior derivation.
func DeriveUser() DeriveFunc {
	return func(ctx context.Context, rec *schema.WorkflowRecord) (any, error) {
		keys := make([]string, 0, len(rec.UserContext))
		for k := range rec.UserContext {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		return &schema.UserPattern{
			Schedule:            schema.WorkSchedule{StartHour: 9, EndHour: 17, Timezone: "UTC"},
			ProductivityPeaks:   append([]int(nil), productivityPeaks...),
			Collaboration:       schema.CollaborationPreferences{PrefersAsync: true, ResponseTimeMinutes: 30},
			StressIndicators:    []string{"multiple_urgent_emails", "deadline_approaching"},
			OptimizationPrefs:   map[string]bool{"speed_over_features": true, "minimal_interruptions": true},
			ObservedContextKeys: keys,
		}, nil
	}
}
