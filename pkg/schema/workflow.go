package schema

import "time"

// WorkflowRecord is the canonical record of one workflow. The workflow store
// owns it; everyone else receives snapshots produced by Clone.
type WorkflowRecord struct {
	ID               string            `json:"id"`
	Description      string            `json:"description"`
	Intent           IntentRecord      `json:"intent"`
	Variants         []Variant         `json:"variants"`
	Criticality      float64           `json:"criticality"`
	State            LifecycleState    `json:"state"`
	UserContext      map[string]any    `json:"user_context,omitempty"`
	SelectedVariant  *Variant          `json:"selected_variant,omitempty"`
	ExecutionPlan    *ExecutionPlan    `json:"execution_plan,omitempty"`
	ExecutionContext *ExecutionContext `json:"execution_context,omitempty"`
	CreatedAt        time.Time         `json:"created_at"`
	CollapsedAt      *time.Time        `json:"collapsed_at,omitempty"`
	UpdatedAt        time.Time         `json:"updated_at"`
}

// Clone returns a deep copy of the record.
func (w *WorkflowRecord) Clone() *WorkflowRecord {
	if w == nil {
		return nil
	}
	out := *w
	out.Intent = w.Intent.Clone()
	out.Variants = CloneVariants(w.Variants)
	if w.UserContext != nil {
		out.UserContext = make(map[string]any, len(w.UserContext))
		for k, v := range w.UserContext {
			out.UserContext[k] = v
		}
	}
	if w.SelectedVariant != nil {
		v := w.SelectedVariant.Clone()
		out.SelectedVariant = &v
	}
	if w.ExecutionPlan != nil {
		p := w.ExecutionPlan.Clone()
		out.ExecutionPlan = &p
	}
	if w.ExecutionContext != nil {
		c := w.ExecutionContext.Clone()
		out.ExecutionContext = &c
	}
	if w.CollapsedAt != nil {
		t := *w.CollapsedAt
		out.CollapsedAt = &t
	}
	return &out
}

// HasVariant reports whether t is one of the record's candidate variants.
func (w *WorkflowRecord) HasVariant(t VariantType) bool {
	for _, v := range w.Variants {
		if v.Type == t {
			return true
		}
	}
	return false
}

// VariantOf returns the candidate variant with type t.
func (w *WorkflowRecord) VariantOf(t VariantType) (Variant, bool) {
	for _, v := range w.Variants {
		if v.Type == t {
			return v, true
		}
	}
	return Variant{}, false
}
