package engine

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/wyhuang/scholarship-engine/internal/models"
)

// Store is the persistence collaborator. The engine prescribes the contract,
// not the technology: loads are current-state reads, SaveApplication is an
// atomic status write + decision append that rejects stale versions with
// ConcurrentModificationError.
type Store interface {
	GetApplication(ctx context.Context, id uuid.UUID) (*models.Application, error)
	SaveApplication(ctx context.Context, app *models.Application, expectedVersion int, newDecisions []models.ReviewDecision) error
	GetScholarshipType(ctx context.Context, code string) (*models.ScholarshipType, error)
	GetSchema(ctx context.Context, code, sub string, includeInactive bool) (Schema, error)
	GetRules(ctx context.Context, code, sub string) ([]models.EligibilityRule, error)
	ListWhitelist(ctx context.Context, code, studentID string) ([]models.WhitelistEntry, error)
}

// Listener receives transition events. Delivery is fire-and-forget; a
// listener error never fails the transition.
type Listener func(models.TransitionEvent)

// IntentRequest is the inbound intent contract.
type IntentRequest struct {
	ApplicationID uuid.UUID     `json:"application_id"`
	Intent        models.Intent `json:"intent"`
	Actor         models.Actor  `json:"actor"`
	Comment       string        `json:"comment,omitempty"`
}

// Orchestrator composes the schema registry, rule evaluator, whitelist and
// state machine behind a single Handle entry point.
type Orchestrator struct {
	store     Store
	listeners []Listener
	now       func() time.Time
}

func NewOrchestrator(store Store) *Orchestrator {
	return &Orchestrator{store: store, now: time.Now}
}

// Subscribe registers a transition-event listener (e.g. a notifier).
func (o *Orchestrator) Subscribe(l Listener) {
	o.listeners = append(o.listeners, l)
}

// WithClock overrides the time source. Tests use it; production never does.
func (o *Orchestrator) WithClock(now func() time.Time) *Orchestrator {
	o.now = now
	return o
}

// Handle validates and applies one intent. Guard order on submit is fixed:
// role permission first, then schema completeness, then eligibility. An
// applicant with a missing transcript is told about the transcript before
// any GPA rule runs, and an actor who may not act at all learns nothing
// about the application's contents. The status change and decision append
// persist together or not at all.
func (o *Orchestrator) Handle(ctx context.Context, req IntentRequest) (*models.Application, *models.TransitionEvent, error) {
	app, err := o.store.GetApplication(ctx, req.ApplicationID)
	if err != nil {
		return nil, nil, err
	}

	stype, err := o.store.GetScholarshipType(ctx, app.ScholarshipCode)
	if err != nil {
		return nil, nil, fmt.Errorf("load scholarship type %s: %w", app.ScholarshipCode, err)
	}

	if err := CheckAllowed(app, stype.Stages, req.Intent, req.Actor); err != nil {
		return nil, nil, err
	}

	now := o.now()

	if req.Intent == models.IntentSubmit {
		if err := o.submitGuards(ctx, app, stype, now); err != nil {
			return nil, nil, err
		}
	}

	decisionsBefore := len(app.Decisions)
	expectedVersion := app.Version

	event, err := Transition(app, stype.Stages, TransitionRequest{
		Intent:  req.Intent,
		Actor:   req.Actor,
		Comment: req.Comment,
		Now:     now,
	})
	if err != nil {
		return nil, nil, err
	}

	if err := o.store.SaveApplication(ctx, app, expectedVersion, app.Decisions[decisionsBefore:]); err != nil {
		return nil, nil, err
	}

	for _, l := range o.listeners {
		l(*event)
	}

	return app, event, nil
}

// submitGuards runs the submit-only checks in their required order:
// window, sub-scholarship resolution, field validity, completeness,
// eligibility.
func (o *Orchestrator) submitGuards(ctx context.Context, app *models.Application, stype *models.ScholarshipType, now time.Time) error {
	if stype.WindowOpen != nil && now.Before(*stype.WindowOpen) {
		return &ValidationError{Field: "window", Reason: "application window has not opened"}
	}
	if stype.WindowClose != nil && now.After(*stype.WindowClose) {
		return &ValidationError{Field: "window", Reason: "application window has closed"}
	}

	if stype.Combined {
		if err := resolveSub(stype, app.SubCode); err != nil {
			return err
		}
	}

	schema, err := o.store.GetSchema(ctx, app.ScholarshipCode, app.SubCode, false)
	if err != nil {
		return fmt.Errorf("load schema: %w", err)
	}
	if err := ValidateFieldValues(schema, app.FieldValues); err != nil {
		return err
	}
	if missing := CheckCompleteness(schema, app); missing != nil {
		return missing
	}

	rules, err := o.store.GetRules(ctx, app.ScholarshipCode, app.SubCode)
	if err != nil {
		return fmt.Errorf("load rules: %w", err)
	}
	exemptions, err := o.store.ListWhitelist(ctx, app.ScholarshipCode, app.StudentID)
	if err != nil {
		return fmt.Errorf("load whitelist: %w", err)
	}

	ev, err := Evaluate(ApplicantDataFrom(app), rules, exemptions, now)
	if err != nil {
		return err
	}
	if ev.Blocked() {
		return &EligibilityError{Failed: ev.Failed}
	}
	app.Warnings = ev.Warnings
	return nil
}

// Preview is the dry-run read model: the exact evaluator the submit guard
// uses, so the client-side hint can never drift from the server's verdict.
func (o *Orchestrator) Preview(ctx context.Context, code, sub, studentID string, data ApplicantData) (Evaluation, error) {
	rules, err := o.store.GetRules(ctx, code, sub)
	if err != nil {
		return Evaluation{}, fmt.Errorf("load rules: %w", err)
	}
	exemptions, err := o.store.ListWhitelist(ctx, code, studentID)
	if err != nil {
		return Evaluation{}, fmt.Errorf("load whitelist: %w", err)
	}
	data.StudentID = studentID
	return Evaluate(data, rules, exemptions, o.now())
}

func resolveSub(stype *models.ScholarshipType, subCode string) error {
	if subCode == "" {
		return &ValidationError{Field: "sub_code", Reason: "combined scholarship requires selecting exactly one sub-scholarship"}
	}
	for _, sub := range stype.SubScholarships {
		if sub.Code == subCode && sub.Active {
			return nil
		}
	}
	return &ValidationError{Field: "sub_code", Value: subCode, Reason: "not an active sub-scholarship of " + stype.Code}
}

// ApplicantDataFrom projects an application's submitted values into the
// evaluator's input shape. Numeric-looking values feed numeric comparisons;
// everything feeds string comparisons.
func ApplicantDataFrom(app *models.Application) ApplicantData {
	data := ApplicantData{
		StudentID: app.StudentID,
		Numbers:   make(map[string]float64),
		Strings:   make(map[string]string),
	}
	for name, raw := range app.FieldValues {
		if v, err := strconv.ParseFloat(raw, 64); err == nil {
			data.Numbers[name] = v
		}
		data.Strings[name] = raw
	}
	return data
}
