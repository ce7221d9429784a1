package engine

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/wyhuang/scholarship-engine/internal/models"
)

// ValidateGrant checks a whitelist grant request before it is persisted.
// A grant without a justification or without named rules is useless for
// audit and is rejected up front.
func ValidateGrant(studentID string, ruleIDs []uuid.UUID, justification string) error {
	if strings.TrimSpace(studentID) == "" {
		return &ValidationError{Field: "student_id", Reason: "required"}
	}
	if len(ruleIDs) == 0 {
		return &ValidationError{Field: "exempted_rule_ids", Reason: "at least one rule must be named"}
	}
	if strings.TrimSpace(justification) == "" {
		return &ValidationError{Field: "justification", Reason: "required"}
	}
	return nil
}

// ActiveEntries filters the append-only log down to entries in force at t.
// Revocations are tombstones, so replaying the log at submission time
// reconstructs exactly what the evaluator saw.
func ActiveEntries(entries []models.WhitelistEntry, t time.Time) []models.WhitelistEntry {
	var out []models.WhitelistEntry
	for _, e := range entries {
		if e.ActiveAt(t) {
			out = append(out, e)
		}
	}
	return out
}

// WasExempted answers the audit question: did an entry exempt ruleID for
// studentID at instant t?
func WasExempted(entries []models.WhitelistEntry, studentID string, ruleID uuid.UUID, t time.Time) bool {
	for _, e := range entries {
		if e.ActiveAt(t) && e.Exempts(studentID, ruleID) {
			return true
		}
	}
	return false
}
