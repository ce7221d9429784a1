package engine

import (
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/wyhuang/scholarship-engine/internal/models"
)

// ApplicantData carries the academic record an applicant is evaluated
// against. Values are keyed by rule condition field (gpa,
// class_ranking_percent, completed_terms, enrollment_status, ...).
type ApplicantData struct {
	StudentID string
	Numbers   map[string]float64
	Strings   map[string]string
}

// Evaluation is the full, stably-ordered verdict set of one evaluation run.
// Identical input always yields identical output; the evaluator holds no
// state.
type Evaluation struct {
	Passed   []models.RuleResult `json:"passed"`
	Warnings []models.RuleResult `json:"warnings"`
	Failed   []models.RuleResult `json:"failed"`
}

// Blocked reports whether any unexempted hard rule failed.
func (e Evaluation) Blocked() bool { return len(e.Failed) > 0 }

// inputDomains are the declared numeric scales for known condition fields.
// A value outside its scale is bad input (ValidationError), not a rule
// failure. GPA follows the institutional 0.00–4.30 scale; no unit
// conversion is ever applied.
var inputDomains = map[string]struct{ min, max float64 }{
	"gpa":                   {0, 4.3},
	"class_ranking_percent": {0, 100},
	"dept_ranking_percent":  {0, 100},
	"completed_terms":       {0, 99},
}

// Evaluate runs every active rule against the applicant's data. Hard
// failures covered by a whitelist entry active at evaluation time are moved
// to Passed tagged pass_by_exemption; warning failures are surfaced
// regardless of exemptions. Rules evaluate in priority order (ascending,
// rule ID as tiebreaker) so output ordering is reproducible.
func Evaluate(data ApplicantData, rules []models.EligibilityRule, exemptions []models.WhitelistEntry, now time.Time) (Evaluation, error) {
	ordered := make([]models.EligibilityRule, 0, len(rules))
	for _, r := range rules {
		if r.Active {
			ordered = append(ordered, r)
		}
	}
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].Priority != ordered[j].Priority {
			return ordered[i].Priority < ordered[j].Priority
		}
		return ordered[i].ID.String() < ordered[j].ID.String()
	})

	if err := validateInputs(data, ordered); err != nil {
		return Evaluation{}, err
	}

	var ev Evaluation
	for _, rule := range ordered {
		result, pass := applyRule(data, rule)

		if pass {
			ev.Passed = append(ev.Passed, result)
			continue
		}

		if rule.Severity == models.SeverityWarning {
			result.Outcome = models.OutcomeWarn
			ev.Warnings = append(ev.Warnings, result)
			continue
		}

		exempted, revoked := exemptionState(data.StudentID, rule.ID, exemptions, now)
		if exempted {
			result.Outcome = models.OutcomePassByExemption
			ev.Passed = append(ev.Passed, result)
			continue
		}
		result.Outcome = models.OutcomeFail
		result.RevokedExemption = revoked
		ev.Failed = append(ev.Failed, result)
	}

	return ev, nil
}

func validateInputs(data ApplicantData, rules []models.EligibilityRule) error {
	seen := make(map[string]bool)
	for _, rule := range rules {
		if seen[rule.Field] {
			continue
		}
		seen[rule.Field] = true

		domain, known := inputDomains[rule.Field]
		if !known {
			continue
		}
		value, ok := data.Numbers[rule.Field]
		if !ok {
			continue
		}
		if value < domain.min || value > domain.max {
			return &ValidationError{
				Field:  rule.Field,
				Value:  strconv.FormatFloat(value, 'f', -1, 64),
				Reason: fmt.Sprintf("outside declared scale %.2f–%.2f", domain.min, domain.max),
			}
		}
	}
	return nil
}

func applyRule(data ApplicantData, rule models.EligibilityRule) (models.RuleResult, bool) {
	result := models.RuleResult{
		RuleID:   rule.ID,
		Field:    rule.Field,
		Operator: rule.Operator,
		Expected: rule.Expected,
		Severity: rule.Severity,
		Priority: rule.Priority,
		Outcome:  models.OutcomePass,
	}

	var pass bool
	switch rule.Operator {
	case models.OpGTE, models.OpLTE:
		actual, ok := data.Numbers[rule.Field]
		if !ok || rule.Expected.Number == nil {
			result.Actual = "<missing>"
			return result, false
		}
		result.Actual = strconv.FormatFloat(actual, 'f', -1, 64)
		if rule.Operator == models.OpGTE {
			pass = actual >= *rule.Expected.Number
		} else {
			pass = actual <= *rule.Expected.Number
		}

	case models.OpEQ:
		if rule.Expected.Number != nil {
			actual, ok := data.Numbers[rule.Field]
			if !ok {
				result.Actual = "<missing>"
				return result, false
			}
			result.Actual = strconv.FormatFloat(actual, 'f', -1, 64)
			pass = actual == *rule.Expected.Number
		} else {
			actual, ok := data.Strings[rule.Field]
			if !ok {
				result.Actual = "<missing>"
				return result, false
			}
			result.Actual = actual
			pass = actual == rule.Expected.Text
		}

	case models.OpIn, models.OpNotIn:
		actual, ok := data.Strings[rule.Field]
		if !ok {
			result.Actual = "<missing>"
			return result, false
		}
		result.Actual = actual
		member := false
		for _, v := range rule.Expected.List {
			if v == actual {
				member = true
				break
			}
		}
		pass = member == (rule.Operator == models.OpIn)
	}

	return result, pass
}

// exemptionState reports whether an active whitelist entry exempts the rule
// for this student, and, when none does, whether a revoked one used to.
func exemptionState(studentID string, ruleID uuid.UUID, exemptions []models.WhitelistEntry, now time.Time) (exempted, revoked bool) {
	for _, entry := range exemptions {
		if !entry.Exempts(studentID, ruleID) {
			continue
		}
		if entry.ActiveAt(now) {
			return true, false
		}
		revoked = true
	}
	return false, revoked
}
