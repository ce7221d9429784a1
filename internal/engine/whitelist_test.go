package engine

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/wyhuang/scholarship-engine/internal/models"
)

func TestValidateGrant(t *testing.T) {
	ruleID := uuid.New()
	cases := []struct {
		name          string
		studentID     string
		ruleIDs       []uuid.UUID
		justification string
		bad           string
	}{
		{"valid", "B11001234", []uuid.UUID{ruleID}, "dean-approved hardship case", ""},
		{"no student", "  ", []uuid.UUID{ruleID}, "reason", "student_id"},
		{"no rules", "B11001234", nil, "reason", "exempted_rule_ids"},
		{"no justification", "B11001234", []uuid.UUID{ruleID}, "   ", "justification"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateGrant(tc.studentID, tc.ruleIDs, tc.justification)
			if tc.bad == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			var verr *ValidationError
			if !errors.As(err, &verr) || verr.Field != tc.bad {
				t.Fatalf("expected ValidationError on %s, got %v", tc.bad, err)
			}
		})
	}
}

func TestWhitelistAuditReconstruction(t *testing.T) {
	ruleID := uuid.New()
	granted := time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC)
	revoked := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)

	entries := []models.WhitelistEntry{{
		ID:              uuid.New(),
		ScholarshipCode: "undergraduate_freshman",
		StudentID:       "B11001234",
		ExemptedRuleIDs: []uuid.UUID{ruleID},
		GrantedAt:       granted,
		RevokedAt:       &revoked,
	}}

	// Before the grant, during its life, and after revocation.
	if WasExempted(entries, "B11001234", ruleID, granted.Add(-time.Hour)) {
		t.Fatal("exempted before grant")
	}
	if !WasExempted(entries, "B11001234", ruleID, granted.Add(24*time.Hour)) {
		t.Fatal("not exempted while active")
	}
	if WasExempted(entries, "B11001234", ruleID, revoked.Add(time.Hour)) {
		t.Fatal("exempted after revocation")
	}

	// Scoping: neither another student nor another rule is covered.
	if WasExempted(entries, "B11009999", ruleID, granted.Add(24*time.Hour)) {
		t.Fatal("exemption leaked to another student")
	}
	if WasExempted(entries, "B11001234", uuid.New(), granted.Add(24*time.Hour)) {
		t.Fatal("exemption leaked to another rule")
	}
}

func TestActiveEntries(t *testing.T) {
	granted := time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC)
	revoked := granted.Add(10 * 24 * time.Hour)

	live := models.WhitelistEntry{ID: uuid.New(), StudentID: "a", GrantedAt: granted}
	tombstoned := models.WhitelistEntry{ID: uuid.New(), StudentID: "b", GrantedAt: granted, RevokedAt: &revoked}

	active := ActiveEntries([]models.WhitelistEntry{live, tombstoned}, revoked.Add(time.Hour))
	if len(active) != 1 || active[0].ID != live.ID {
		t.Fatalf("active = %+v", active)
	}

	// At an instant before the revocation both were in force.
	active = ActiveEntries([]models.WhitelistEntry{live, tombstoned}, granted.Add(time.Hour))
	if len(active) != 2 {
		t.Fatalf("expected both entries active, got %d", len(active))
	}
}
