package models

import "fmt"

// Status is the closed set of lifecycle states an application moves through.
type Status string

const (
	StatusDraft                 Status = "draft"
	StatusSubmitted             Status = "submitted"
	StatusUnderReview           Status = "under_review"
	StatusPendingRecommendation Status = "pending_recommendation"
	StatusRecommended           Status = "recommended"
	StatusCollegeReview         Status = "college_review"
	StatusApproved              Status = "approved"
	StatusRejected              Status = "rejected"
	StatusWithdrawn             Status = "withdrawn"
	StatusReturned              Status = "returned"
)

// Terminal reports whether no further transition is legal from the status.
func (s Status) Terminal() bool {
	return s == StatusApproved || s == StatusRejected || s == StatusWithdrawn
}

func ParseStatus(raw string) (Status, error) {
	switch Status(raw) {
	case StatusDraft, StatusSubmitted, StatusUnderReview, StatusPendingRecommendation,
		StatusRecommended, StatusCollegeReview, StatusApproved, StatusRejected,
		StatusWithdrawn, StatusReturned:
		return Status(raw), nil
	}
	return "", fmt.Errorf("unknown status %q", raw)
}

// Intent is an actor's requested action against an application.
type Intent string

const (
	IntentSubmit    Intent = "submit"
	IntentRecommend Intent = "recommend"
	IntentDecline   Intent = "decline"
	IntentApprove   Intent = "approve"
	IntentReject    Intent = "reject"
	IntentWithdraw  Intent = "withdraw"
	IntentReturn    Intent = "return"
)

func ParseIntent(raw string) (Intent, error) {
	switch Intent(raw) {
	case IntentSubmit, IntentRecommend, IntentDecline, IntentApprove,
		IntentReject, IntentWithdraw, IntentReturn:
		return Intent(raw), nil
	}
	return "", fmt.Errorf("unknown intent %q", raw)
}

type Role string

const (
	RoleStudent    Role = "student"
	RoleProfessor  Role = "professor"
	RoleCollege    Role = "college"
	RoleAdmin      Role = "admin"
	RoleSuperAdmin Role = "super_admin"
)

func ParseRole(raw string) (Role, error) {
	switch Role(raw) {
	case RoleStudent, RoleProfessor, RoleCollege, RoleAdmin, RoleSuperAdmin:
		return Role(raw), nil
	}
	return "", fmt.Errorf("unknown role %q", raw)
}

// Severity controls whether a failed rule blocks submission.
type Severity string

const (
	SeverityHard    Severity = "hard"
	SeverityWarning Severity = "warning"
)

// Operator is the closed comparison set for eligibility rules. Unknown
// operators are rejected at rule-authoring time so evaluation is total.
type Operator string

const (
	OpGTE   Operator = ">="
	OpLTE   Operator = "<="
	OpEQ    Operator = "=="
	OpIn    Operator = "in"
	OpNotIn Operator = "not_in"
)

func ParseOperator(raw string) (Operator, error) {
	switch Operator(raw) {
	case OpGTE, OpLTE, OpEQ, OpIn, OpNotIn:
		return Operator(raw), nil
	}
	return "", fmt.Errorf("unknown operator %q", raw)
}

func ParseSeverity(raw string) (Severity, error) {
	switch Severity(raw) {
	case SeverityHard, SeverityWarning:
		return Severity(raw), nil
	}
	return "", fmt.Errorf("unknown severity %q", raw)
}

// FieldType tags a schema entry so the evaluator and the form renderer share
// one exhaustive set instead of open strings.
type FieldType string

const (
	FieldText     FieldType = "text"
	FieldNumber   FieldType = "number"
	FieldSelect   FieldType = "select"
	FieldDate     FieldType = "date"
	FieldCheckbox FieldType = "checkbox"
	FieldTextarea FieldType = "textarea"
	FieldFileSet  FieldType = "file_set"
)

func ParseFieldType(raw string) (FieldType, error) {
	switch FieldType(raw) {
	case FieldText, FieldNumber, FieldSelect, FieldDate, FieldCheckbox,
		FieldTextarea, FieldFileSet:
		return FieldType(raw), nil
	}
	return "", fmt.Errorf("unknown field type %q", raw)
}

// Verdict is a single reviewer's decision at a stage.
type Verdict string

const (
	VerdictApprove           Verdict = "approve"
	VerdictReject            Verdict = "reject"
	VerdictReturnForRevision Verdict = "return_for_revision"
)

// Stage names a review checkpoint requiring reviewer decisions.
type Stage string

const (
	StageProfessorRecommendation Stage = "professor_recommendation"
	StageCollegeReview           Stage = "college_review"
	StageCommitteeDecision       Stage = "committee_decision"
)

func ParseStage(raw string) (Stage, error) {
	switch Stage(raw) {
	case StageProfessorRecommendation, StageCollegeReview, StageCommitteeDecision:
		return Stage(raw), nil
	}
	return "", fmt.Errorf("unknown review stage %q", raw)
}
