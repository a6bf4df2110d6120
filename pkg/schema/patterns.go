package schema

import "time"

// PatternKind names one of the three independent learning derivations.
type PatternKind string

const (
	PatternTemporal PatternKind = "temporal"
	PatternTrigger  PatternKind = "trigger"
	PatternUser     PatternKind = "user"
)

// PatternKinds lists the derivations in a stable order.
var PatternKinds = []PatternKind{PatternTemporal, PatternTrigger, PatternUser}

// PatternStatus is the progress of a single derivation.
type PatternStatus string

const (
	PatternPending PatternStatus = "pending"
	PatternReady   PatternStatus = "ready"
	PatternFailed  PatternStatus = "failed"
)

// TemporalPattern predicts when a workflow is likely to be triggered.
type TemporalPattern struct {
	PeakHours        []int              `json:"peak_hours"`
	PeakDays         []string           `json:"peak_days"`
	Seasonal         map[string]float64 `json:"seasonal_multipliers"`
	BehaviorTriggers map[string]float64 `json:"behavior_triggers"`
	CronSpec         string             `json:"cron_spec"`
	NextPredicted    time.Time          `json:"next_predicted"`
}

// TriggerCandidate is an inferred trigger condition with a confidence score.
type TriggerCandidate struct {
	Tag        string  `json:"tag"`
	Confidence float64 `json:"confidence"`
}

// TriggerPattern lists trigger conditions inferred from the intent goal.
type TriggerPattern struct {
	Candidates []TriggerCandidate `json:"candidates"`
}

// WorkSchedule is a daily working window.
type WorkSchedule struct {
	StartHour int    `json:"start"`
	EndHour   int    `json:"end"`
	Timezone  string `json:"timezone"`
}

// CollaborationPreferences summarizes how the user prefers to work with others.
type CollaborationPreferences struct {
	PrefersAsync        bool `json:"prefers_async"`
	ResponseTimeMinutes int  `json:"response_time_minutes"`
}

// UserPattern captures user behavior relevant to predictive execution.
type UserPattern struct {
	Schedule            WorkSchedule             `json:"work_schedule"`
	ProductivityPeaks   []int                    `json:"productivity_peaks"`
	Collaboration       CollaborationPreferences `json:"collaboration"`
	StressIndicators    []string                 `json:"stress_indicators"`
	OptimizationPrefs   map[string]bool          `json:"optimization_preferences"`
	ObservedContextKeys []string                 `json:"observed_context_keys,omitempty"`
}

// PatternSet is the best-effort learning result for a workflow. Any of the
// three patterns may be nil while learning is in flight or after a failure.
type PatternSet struct {
	WorkflowID string                        `json:"workflow_id"`
	Temporal   *TemporalPattern              `json:"temporal,omitempty"`
	Trigger    *TriggerPattern               `json:"trigger,omitempty"`
	User       *UserPattern                  `json:"user,omitempty"`
	Status     map[PatternKind]PatternStatus `json:"status"`
	Attempts   map[PatternKind]int           `json:"attempts"`
}

// Complete reports whether every derivation has settled (ready or failed).
func (p PatternSet) Complete() bool {
	for _, k := range PatternKinds {
		if p.Status[k] == PatternPending || p.Status[k] == "" {
			return false
		}
	}
	return true
}

// Clone returns a deep copy of the set.
func (p PatternSet) Clone() PatternSet {
	out := PatternSet{WorkflowID: p.WorkflowID}
	if p.Temporal != nil {
		t := *p.Temporal
		t.PeakHours = append([]int(nil), p.Temporal.PeakHours...)
		t.PeakDays = cloneStrings(p.Temporal.PeakDays)
		t.Seasonal = cloneFloatMap(p.Temporal.Seasonal)
		t.BehaviorTriggers = cloneFloatMap(p.Temporal.BehaviorTriggers)
		out.Temporal = &t
	}
	if p.Trigger != nil {
		out.Trigger = &TriggerPattern{Candidates: append([]TriggerCandidate(nil), p.Trigger.Candidates...)}
	}
	if p.User != nil {
		u := *p.User
		u.ProductivityPeaks = append([]int(nil), p.User.ProductivityPeaks...)
		u.StressIndicators = cloneStrings(p.User.StressIndicators)
		u.ObservedContextKeys = cloneStrings(p.User.ObservedContextKeys)
		if p.User.OptimizationPrefs != nil {
			u.OptimizationPrefs = make(map[string]bool, len(p.User.OptimizationPrefs))
			for k, v := range p.User.OptimizationPrefs {
				u.OptimizationPrefs[k] = v
			}
		}
		out.User = &u
	}
	if p.Status != nil {
		out.Status = make(map[PatternKind]PatternStatus, len(p.Status))
		for k, v := range p.Status {
			out.Status[k] = v
		}
	}
	if p.Attempts != nil {
		out.Attempts = make(map[PatternKind]int, len(p.Attempts))
		for k, v := range p.Attempts {
			out.Attempts[k] = v
		}
	}
	return out
}

func cloneFloatMap(in map[string]float64) map[string]float64 {
	if in == nil {
		return nil
	}
	out := make(map[string]float64, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
