package models

import (
	"time"

	"github.com/google/uuid"
)

// Application is the mutable aggregate root. It exclusively owns its field
// values, document references and decision list; everything else it touches
// is shared reference data. Version is bumped on every persisted write and
// guards against concurrent transitions (stale-version saves are rejected).
type Application struct {
	ID        uuid.UUID `json:"id"`
	StudentID string    `json:"student_id"`
	// AdvisorID names the professor assigned to recommend. Only this actor
	// may record recommend/decline decisions.
	AdvisorID       string               `json:"advisor_id,omitempty"`
	ScholarshipCode string               `json:"scholarship_code"`
	SubCode         string               `json:"sub_code,omitempty"`
	Status          Status               `json:"status"`
	FieldValues     map[string]string    `json:"field_values"`
	Documents       []DocumentRef        `json:"documents"`
	Warnings        []RuleResult         `json:"warnings,omitempty"`
	Decisions       []ReviewDecision     `json:"decisions"`
	StatusTimes     map[Status]time.Time `json:"status_times"`
	Version         int                  `json:"version"`
	CreatedAt       time.Time            `json:"created_at"`
	UpdatedAt       time.Time            `json:"updated_at"`
}

// DocumentRef records that an uploaded file satisfies one document
// requirement. The engine only cares that the reference exists; bytes,
// scanning and retrieval live elsewhere.
type DocumentRef struct {
	Requirement string    `json:"requirement"`
	FileID      string    `json:"file_id"`
	AttachedAt  time.Time `json:"attached_at"`
}

// AttachedCount returns how many references satisfy the named requirement.
func (a *Application) AttachedCount(requirement string) int {
	n := 0
	for _, d := range a.Documents {
		if d.Requirement == requirement {
			n++
		}
	}
	return n
}

// DecisionsAt returns the decisions recorded for one stage, in append order.
func (a *Application) DecisionsAt(stage Stage) []ReviewDecision {
	var out []ReviewDecision
	for _, d := range a.Decisions {
		if d.Stage == stage {
			out = append(out, d)
		}
	}
	return out
}

// ReviewDecision is one reviewer's verdict at a stage. The list is
// append-only; effective review state is always derived by reducing it,
// never by editing prior entries.
type ReviewDecision struct {
	ID            uuid.UUID `json:"id"`
	ApplicationID uuid.UUID `json:"application_id"`
	Stage         Stage     `json:"stage"`
	ActorID       string    `json:"actor_id"`
	ActorRole     Role      `json:"actor_role"`
	Verdict       Verdict   `json:"verdict"`
	Comment       string    `json:"comment,omitempty"`
	DecidedAt     time.Time `json:"decided_at"`
}

// RuleResult is one rule's evaluated outcome, retained for audit. A hard
// rule neutralized by a whitelist entry is tagged pass_by_exemption so it is
// distinguishable from a natural pass.
type RuleResult struct {
	RuleID      uuid.UUID `json:"rule_id"`
	Field       string    `json:"field"`
	Operator    Operator  `json:"operator"`
	Expected    RuleValue `json:"expected"`
	Actual      string    `json:"actual"`
	Severity    Severity  `json:"severity"`
	Priority    int       `json:"priority"`
	Outcome     Outcome   `json:"outcome"`
	// RevokedExemption marks a hard failure where a whitelist entry naming
	// this rule existed but was revoked before evaluation.
	RevokedExemption bool `json:"revoked_exemption,omitempty"`
}

type Outcome string

const (
	OutcomePass            Outcome = "pass"
	OutcomePassByExemption Outcome = "pass_by_exemption"
	OutcomeWarn            Outcome = "warn"
	OutcomeFail            Outcome = "fail"
)

// TransitionEvent is emitted after every successful transition for external
// notifiers. Delivery is best-effort; the engine never depends on it.
type TransitionEvent struct {
	ApplicationID uuid.UUID `json:"application_id"`
	From          Status    `json:"from"`
	To            Status    `json:"to"`
	Intent        Intent    `json:"intent"`
	ActorID       string    `json:"actor_id"`
	ActorRole     Role      `json:"actor_role"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// Actor identifies who is attempting an intent.
type Actor struct {
	ID   string `json:"id"`
	Role Role   `json:"role"`
}
