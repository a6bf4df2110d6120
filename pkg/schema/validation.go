package schema

import "fmt"

// ValidationSeverity indicates whether an issue is an error or warning.
type ValidationSeverity string

const (
	SeverityError   ValidationSeverity = "error"
	SeverityWarning ValidationSeverity = "warning"
)

// ValidationIssue is a single problem found in a tuning table or input, with
// the path of the offending value.
type ValidationIssue struct {
	Path     string             `json:"path"`
	Message  string             `json:"message"`
	Severity ValidationSeverity `json:"severity"`
}

// ValidationResult aggregates the issues found by a validation pass.
type ValidationResult struct {
	Errors   []ValidationIssue `json:"errors,omitempty"`
	Warnings []ValidationIssue `json:"warnings,omitempty"`
}

// Valid returns true if there are no errors (warnings are acceptable).
func (r *ValidationResult) Valid() bool {
	return len(r.Errors) == 0
}

// AddError appends an error-severity issue.
func (r *ValidationResult) AddError(path, format string, args ...any) {
	r.Errors = append(r.Errors, ValidationIssue{
		Path: path, Message: fmt.Sprintf(format, args...), Severity: SeverityError,
	})
}

// AddWarning appends a warning-severity issue.
func (r *ValidationResult) AddWarning(path, format string, args ...any) {
	r.Warnings = append(r.Warnings, ValidationIssue{
		Path: path, Message: fmt.Sprintf(format, args...), Severity: SeverityWarning,
	})
}

// Merge combines another ValidationResult into this one.
func (r *ValidationResult) Merge(other *ValidationResult) {
	if other == nil {
		return
	}
	r.Errors = append(r.Errors, other.Errors...)
	r.Warnings = append(r.Warnings, other.Warnings...)
}

// ToError converts the result to a FlowError with the given code, or nil if valid.
func (r *ValidationResult) ToError(code string) error {
	if r.Valid() {
		return nil
	}

	first := r.Errors[0]
	msg := fmt.Sprintf("%s: %s", first.Path, first.Message)
	if len(r.Errors) > 1 {
		msg = fmt.Sprintf("validation failed with %d errors, first at %s: %s", len(r.Errors), first.Path, first.Message)
	}

	return NewError(code, msg).
		WithField(first.Path).
		WithDetails(map[string]any{
			"error_count":   len(r.Errors),
			"warning_count": len(r.Warnings),
			"errors":        r.Errors,
			"warnings":      r.Warnings,
		})
}
