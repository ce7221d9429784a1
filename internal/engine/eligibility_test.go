package engine

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/wyhuang/scholarship-engine/internal/models"
)

func f64(v float64) *float64 { return &v }

func freshmanRules() []models.EligibilityRule {
	return []models.EligibilityRule{
		{
			ID:              uuid.MustParse("00000000-0000-0000-0000-000000000001"),
			ScholarshipCode: "undergraduate_freshman",
			Field:           "gpa",
			Operator:        models.OpGTE,
			Expected:        models.RuleValue{Number: f64(3.38)},
			Severity:        models.SeverityHard,
			Priority:        1,
			Active:          true,
		},
		{
			ID:              uuid.MustParse("00000000-0000-0000-0000-000000000002"),
			ScholarshipCode: "undergraduate_freshman",
			Field:           "class_ranking_percent",
			Operator:        models.OpLTE,
			Expected:        models.RuleValue{Number: f64(10)},
			Severity:        models.SeverityWarning,
			Priority:        2,
			Active:          true,
		},
	}
}

func TestEvaluatePassWithWarning(t *testing.T) {
	data := ApplicantData{
		StudentID: "B11001234",
		Numbers:   map[string]float64{"gpa": 3.40, "class_ranking_percent": 12},
	}

	ev, err := Evaluate(data, freshmanRules(), nil, time.Now())
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}

	if ev.Blocked() {
		t.Fatalf("expected no hard failures, got %d", len(ev.Failed))
	}
	if len(ev.Passed) != 1 || ev.Passed[0].Field != "gpa" {
		t.Fatalf("expected gpa pass, got %+v", ev.Passed)
	}
	if len(ev.Warnings) != 1 || ev.Warnings[0].Field != "class_ranking_percent" {
		t.Fatalf("expected ranking warning, got %+v", ev.Warnings)
	}
	if ev.Warnings[0].Outcome != models.OutcomeWarn {
		t.Fatalf("expected warn outcome, got %s", ev.Warnings[0].Outcome)
	}
}

func TestEvaluateHardFailureBlocks(t *testing.T) {
	data := ApplicantData{
		StudentID: "B11001234",
		Numbers:   map[string]float64{"gpa": 3.20, "class_ranking_percent": 5},
	}

	ev, err := Evaluate(data, freshmanRules(), nil, time.Now())
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if !ev.Blocked() {
		t.Fatal("expected a blocking failure")
	}
	if len(ev.Failed) != 1 || ev.Failed[0].Field != "gpa" {
		t.Fatalf("expected gpa failure, got %+v", ev.Failed)
	}
	if ev.Failed[0].Actual != "3.2" {
		t.Fatalf("expected recorded actual 3.2, got %q", ev.Failed[0].Actual)
	}
}

func TestEvaluateExemptionNeutralizesHardRule(t *testing.T) {
	rules := freshmanRules()
	data := ApplicantData{
		StudentID: "B11001234",
		Numbers:   map[string]float64{"gpa": 3.20, "class_ranking_percent": 5},
	}
	now := time.Now()
	exemptions := []models.WhitelistEntry{{
		ID:              uuid.New(),
		ScholarshipCode: "undergraduate_freshman",
		StudentID:       "B11001234",
		ExemptedRuleIDs: []uuid.UUID{rules[0].ID},
		GrantedAt:       now.Add(-time.Hour),
	}}

	ev, err := Evaluate(data, rules, exemptions, now)
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if ev.Blocked() {
		t.Fatalf("expected exemption to clear the failure, got %+v", ev.Failed)
	}
	if len(ev.Passed) != 1 || ev.Passed[0].Outcome != models.OutcomePassByExemption {
		t.Fatalf("expected pass_by_exemption, got %+v", ev.Passed)
	}

	// The same entry does nothing for a different student or a different rule.
	other := data
	other.StudentID = "B11009999"
	ev2, err := Evaluate(other, rules, exemptions, now)
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if !ev2.Blocked() {
		t.Fatal("exemption must not leak to another student")
	}
}

func TestEvaluateRevokedExemptionFails(t *testing.T) {
	rules := freshmanRules()
	now := time.Now()
	revokedAt := now.Add(-time.Minute)
	exemptions := []models.WhitelistEntry{{
		ID:              uuid.New(),
		StudentID:       "B11001234",
		ExemptedRuleIDs: []uuid.UUID{rules[0].ID},
		GrantedAt:       now.Add(-time.Hour),
		RevokedAt:       &revokedAt,
	}}
	data := ApplicantData{
		StudentID: "B11001234",
		Numbers:   map[string]float64{"gpa": 3.20, "class_ranking_percent": 5},
	}

	ev, err := Evaluate(data, rules, exemptions, now)
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if !ev.Blocked() {
		t.Fatal("revoked exemption must not neutralize the rule")
	}
	if !ev.Failed[0].RevokedExemption {
		t.Fatal("expected the failure to be tagged as previously exempted")
	}
}

func TestEvaluateOutOfRangeInputIsValidationError(t *testing.T) {
	data := ApplicantData{
		StudentID: "B11001234",
		Numbers:   map[string]float64{"gpa": 4.5},
	}

	_, err := Evaluate(data, freshmanRules(), nil, time.Now())
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if verr.Field != "gpa" {
		t.Fatalf("expected gpa validation error, got %+v", verr)
	}
}

func TestEvaluateMissingValueFailsRule(t *testing.T) {
	data := ApplicantData{StudentID: "B11001234", Numbers: map[string]float64{}}

	ev, err := Evaluate(data, freshmanRules(), nil, time.Now())
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if !ev.Blocked() {
		t.Fatal("missing gpa must fail the hard rule")
	}
	if ev.Failed[0].Actual != "<missing>" {
		t.Fatalf("expected <missing> actual, got %q", ev.Failed[0].Actual)
	}
}

func TestEvaluateSkipsInactiveRules(t *testing.T) {
	rules := freshmanRules()
	rules[0].Active = false
	data := ApplicantData{
		StudentID: "B11001234",
		Numbers:   map[string]float64{"gpa": 3.20, "class_ranking_percent": 5},
	}

	ev, err := Evaluate(data, rules, nil, time.Now())
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if ev.Blocked() {
		t.Fatal("deactivated rule must not block")
	}
}

func TestEvaluateListOperators(t *testing.T) {
	rules := []models.EligibilityRule{{
		ID:       uuid.New(),
		Field:    "enrollment_status",
		Operator: models.OpIn,
		Expected: models.RuleValue{List: []string{"enrolled", "returning"}},
		Severity: models.SeverityHard,
		Priority: 1,
		Active:   true,
	}}

	cases := []struct {
		status string
		pass   bool
	}{
		{"enrolled", true},
		{"returning", true},
		{"on_leave", false},
	}
	for _, tc := range cases {
		data := ApplicantData{StudentID: "s", Strings: map[string]string{"enrollment_status": tc.status}}
		ev, err := Evaluate(data, rules, nil, time.Now())
		if err != nil {
			t.Fatalf("%s: Evaluate failed: %v", tc.status, err)
		}
		if ev.Blocked() == tc.pass {
			t.Errorf("status %s: expected pass=%v", tc.status, tc.pass)
		}
	}
}

func TestEvaluateStableOrdering(t *testing.T) {
	// Three rules share priority; ordering must fall back to rule ID and stay
	// identical across repeated runs.
	var rules []models.EligibilityRule
	ids := []string{
		"30000000-0000-0000-0000-000000000003",
		"10000000-0000-0000-0000-000000000001",
		"20000000-0000-0000-0000-000000000002",
	}
	for _, id := range ids {
		rules = append(rules, models.EligibilityRule{
			ID:       uuid.MustParse(id),
			Field:    "gpa",
			Operator: models.OpGTE,
			Expected: models.RuleValue{Number: f64(2.0)},
			Severity: models.SeverityHard,
			Priority: 7,
			Active:   true,
		})
	}
	data := ApplicantData{StudentID: "s", Numbers: map[string]float64{"gpa": 3.0}}

	first, err := Evaluate(data, rules, nil, time.Now())
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	for run := 0; run < 5; run++ {
		again, err := Evaluate(data, rules, nil, time.Now())
		if err != nil {
			t.Fatalf("Evaluate failed: %v", err)
		}
		for i := range first.Passed {
			if first.Passed[i].RuleID != again.Passed[i].RuleID {
				t.Fatalf("run %d: ordering drifted at index %d", run, i)
			}
		}
	}
	if first.Passed[0].RuleID.String() != ids[1] {
		t.Fatalf("expected lowest rule ID first, got %s", first.Passed[0].RuleID)
	}
}
