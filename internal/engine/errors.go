package engine

import (
	"fmt"
	"strings"

	"github.com/wyhuang/scholarship-engine/internal/models"
)

// The error taxonomy below is surfaced to the orchestrator caller with full
// structured detail so the presentation layer can render per-field and
// per-rule feedback. Nothing here is retried by the core.

// ValidationError reports a malformed or out-of-range input value. It is
// distinct from a rule failure: a GPA of 5.0 is bad input, not a failed rule.
type ValidationError struct {
	Field  string `json:"field"`
	Value  string `json:"value"`
	Reason string `json:"reason"`
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid value for %s: %s", e.Field, e.Reason)
}

// IncompleteSubmissionError enumerates every missing required field and
// document, not just the first.
type IncompleteSubmissionError struct {
	MissingFields    []string `json:"missing_fields"`
	MissingDocuments []string `json:"missing_documents"`
}

func (e *IncompleteSubmissionError) Error() string {
	var parts []string
	if len(e.MissingFields) > 0 {
		parts = append(parts, "missing fields: "+strings.Join(e.MissingFields, ", "))
	}
	if len(e.MissingDocuments) > 0 {
		parts = append(parts, "missing documents: "+strings.Join(e.MissingDocuments, ", "))
	}
	return "incomplete submission: " + strings.Join(parts, "; ")
}

// EligibilityError carries every unexempted hard-rule failure. Failures
// whose exemption was revoked are distinguishable via RevokedExemption on
// the individual results.
type EligibilityError struct {
	Failed []models.RuleResult `json:"failed"`
}

func (e *EligibilityError) Error() string {
	fields := make([]string, 0, len(e.Failed))
	for _, r := range e.Failed {
		fields = append(fields, r.Field)
	}
	return fmt.Sprintf("eligibility check failed: %d hard rule(s) [%s]", len(e.Failed), strings.Join(fields, ", "))
}

// PermissionError: the intent is defined from the current state, but the
// actor's role is not authorized to trigger it.
type PermissionError struct {
	Intent models.Intent `json:"intent"`
	State  models.Status `json:"state"`
	Role   models.Role   `json:"role"`
}

func (e *PermissionError) Error() string {
	return fmt.Sprintf("role %s may not %s an application in state %s", e.Role, e.Intent, e.State)
}

// IllegalTransitionError: the intent is not defined from the current state
// at all, regardless of role.
type IllegalTransitionError struct {
	Intent models.Intent `json:"intent"`
	State  models.Status `json:"state"`
	Reason string        `json:"reason,omitempty"`
}

func (e *IllegalTransitionError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("cannot %s from state %s: %s", e.Intent, e.State, e.Reason)
	}
	return fmt.Sprintf("cannot %s from state %s", e.Intent, e.State)
}

// SchemaLockedError rejects a structural change (type, requiredness) to a
// schema entry that live applications already reference.
type SchemaLockedError struct {
	Entry  string `json:"entry"`
	Change string `json:"change"`
}

func (e *SchemaLockedError) Error() string {
	return fmt.Sprintf("schema entry %s is locked: %s", e.Entry, e.Change)
}

// ConcurrentModificationError rejects a transition computed against a stale
// application version.
type ConcurrentModificationError struct {
	ApplicationID string `json:"application_id"`
	Expected      int    `json:"expected_version"`
}

func (e *ConcurrentModificationError) Error() string {
	return fmt.Sprintf("application %s was modified concurrently (expected version %d)", e.ApplicationID, e.Expected)
}
