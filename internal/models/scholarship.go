package models

import (
	"time"

	"github.com/google/uuid"
)

// ScholarshipType is an administered scholarship program. It is reference
// data: applications look it up but never own it. Once applications exist
// against a type, only the window dates and rule activation flags may change;
// types are soft-deactivated, never deleted.
type ScholarshipType struct {
	Code        string     `json:"code"`
	NameEn      string     `json:"name_en"`
	NameZh      string     `json:"name_zh"`
	Amount      float64    `json:"amount"`
	Currency    string     `json:"currency"`
	WindowOpen  *time.Time `json:"window_open"`
	WindowClose *time.Time `json:"window_close"`
	Combined    bool       `json:"combined"`
	Active      bool       `json:"active"`
	CreatedAt   time.Time  `json:"created_at"`

	SubScholarships []SubScholarship `json:"sub_scholarships,omitempty"`
	Stages          []ReviewStage    `json:"stages,omitempty"`
}

// SubScholarship is a selectable child of a combined type. Applications under
// a combined type must resolve to exactly one before submission.
type SubScholarship struct {
	Code            string  `json:"code"`
	ScholarshipCode string  `json:"scholarship_code"`
	NameEn          string  `json:"name_en"`
	NameZh          string  `json:"name_zh"`
	Amount          float64 `json:"amount"`
	Active          bool    `json:"active"`
}

// ReviewStage declares one checkpoint in a type's sign-off sequence and the
// roles whose approval is required to pass it.
type ReviewStage struct {
	Stage         Stage  `json:"stage"`
	Order         int    `json:"order"`
	RequiredRoles []Role `json:"required_roles"`
}

// ApplicationField is a schema entry: one input the applicant must (or may)
// fill for a scholarship type or one of its sub-scholarships. Names are
// unique among active entries within a type; display order never affects
// evaluation.
type ApplicationField struct {
	ID              uuid.UUID `json:"id"`
	ScholarshipCode string    `json:"scholarship_code"`
	SubCode         string    `json:"sub_code,omitempty"`
	Name            string    `json:"name"`
	Label           string    `json:"label"`
	Type            FieldType `json:"type"`
	Required        bool      `json:"required"`
	Min             *float64  `json:"min,omitempty"`
	Max             *float64  `json:"max,omitempty"`
	MaxLength       int       `json:"max_length,omitempty"`
	Options         []string  `json:"options,omitempty"`
	DisplayOrder    int       `json:"display_order"`
	Active          bool      `json:"active"`
}

// ApplicationDocument is a document requirement in the schema.
type ApplicationDocument struct {
	ID              uuid.UUID `json:"id"`
	ScholarshipCode string    `json:"scholarship_code"`
	SubCode         string    `json:"sub_code,omitempty"`
	Name            string    `json:"name"`
	Label           string    `json:"label"`
	Required        bool      `json:"required"`
	DisplayOrder    int       `json:"display_order"`
	Active          bool      `json:"active"`
}

// EligibilityRule gates submission. Hard rules block unless exempted via
// whitelist; warning rules are surfaced but never block. Active hard rules
// combine by conjunction.
type EligibilityRule struct {
	ID              uuid.UUID `json:"id"`
	ScholarshipCode string    `json:"scholarship_code"`
	SubCode         string    `json:"sub_code,omitempty"`
	Field           string    `json:"field"`
	Operator        Operator  `json:"operator"`
	Expected        RuleValue `json:"expected"`
	Severity        Severity  `json:"severity"`
	Priority        int       `json:"priority"`
	Active          bool      `json:"active"`
}

// RuleValue is the expected side of a rule comparison. Exactly one of Number
// or Text is set for ordering/equality operators; List is set for in/not_in.
type RuleValue struct {
	Number *float64 `json:"number,omitempty"`
	Text   string   `json:"text,omitempty"`
	List   []string `json:"list,omitempty"`
}

// WhitelistEntry exempts one student from specific hard rules within one
// scholarship type. Revocation is a tombstone, never a delete, so an audit
// can reconstruct which exemptions were active at any point in time.
type WhitelistEntry struct {
	ID              uuid.UUID  `json:"id"`
	ScholarshipCode string     `json:"scholarship_code"`
	StudentID       string     `json:"student_id"`
	ExemptedRuleIDs []uuid.UUID `json:"exempted_rule_ids"`
	Justification   string     `json:"justification"`
	GrantedBy       string     `json:"granted_by"`
	GrantedAt       time.Time  `json:"granted_at"`
	RevokedBy       string     `json:"revoked_by,omitempty"`
	RevokedAt       *time.Time `json:"revoked_at,omitempty"`
}

// ActiveAt reports whether the exemption was in force at t.
func (w WhitelistEntry) ActiveAt(t time.Time) bool {
	if t.Before(w.GrantedAt) {
		return false
	}
	return w.RevokedAt == nil || t.Before(*w.RevokedAt)
}

// Exempts reports whether the entry neutralizes ruleID for studentID.
// Exemptions are scoped: never another student, never another rule.
func (w WhitelistEntry) Exempts(studentID string, ruleID uuid.UUID) bool {
	if w.StudentID != studentID {
		return false
	}
	for _, id := range w.ExemptedRuleIDs {
		if id == ruleID {
			return true
		}
	}
	return false
}
