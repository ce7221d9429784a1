package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/wyhuang/scholarship-engine/internal/models"
)

// stubStore is an in-memory Store for orchestrator tests. SaveApplication
// mimics the optimistic version check the real store performs.
type stubStore struct {
	app        *models.Application
	stype      *models.ScholarshipType
	schema     Schema
	rules      []models.EligibilityRule
	exemptions []models.WhitelistEntry

	saved      bool
	savedDelta []models.ReviewDecision
	saveErr    error
}

func (s *stubStore) GetApplication(_ context.Context, id uuid.UUID) (*models.Application, error) {
	if s.app == nil || s.app.ID != id {
		return nil, errors.New("not found")
	}
	return s.app, nil
}

func (s *stubStore) SaveApplication(_ context.Context, app *models.Application, expectedVersion int, newDecisions []models.ReviewDecision) error {
	if s.saveErr != nil {
		return s.saveErr
	}
	if app.Version != expectedVersion {
		return &ConcurrentModificationError{ApplicationID: app.ID.String(), Expected: expectedVersion}
	}
	app.Version++
	s.saved = true
	s.savedDelta = newDecisions
	return nil
}

func (s *stubStore) GetScholarshipType(_ context.Context, code string) (*models.ScholarshipType, error) {
	if s.stype == nil || s.stype.Code != code {
		return nil, errors.New("not found")
	}
	return s.stype, nil
}

func (s *stubStore) GetSchema(_ context.Context, _, _ string, _ bool) (Schema, error) {
	return s.schema, nil
}

func (s *stubStore) GetRules(_ context.Context, _, _ string) ([]models.EligibilityRule, error) {
	return s.rules, nil
}

func (s *stubStore) ListWhitelist(_ context.Context, _, _ string) ([]models.WhitelistEntry, error) {
	return s.exemptions, nil
}

func fixedClock(t time.Time) func() time.Time { return func() time.Time { return t } }

func freshmanStub() *stubStore {
	gpaField := models.ApplicationField{
		ID: uuid.New(), ScholarshipCode: "undergraduate_freshman",
		Name: "gpa", Label: "GPA", Type: models.FieldNumber, Required: true, Active: true,
	}
	transcript := models.ApplicationDocument{
		ID: uuid.New(), ScholarshipCode: "undergraduate_freshman",
		Name: "high_school_transcript", Label: "高中成績單", Required: true, Active: true,
	}
	app := &models.Application{
		ID:              uuid.New(),
		StudentID:       "B11001234",
		ScholarshipCode: "undergraduate_freshman",
		Status:          models.StatusDraft,
		FieldValues:     map[string]string{},
		StatusTimes:     map[models.Status]time.Time{},
		Version:         1,
	}
	return &stubStore{
		app: app,
		stype: &models.ScholarshipType{
			Code: "undergraduate_freshman", Active: true,
			Stages: []models.ReviewStage{
				{Stage: models.StageCollegeReview, Order: 0, RequiredRoles: []models.Role{models.RoleCollege}},
				{Stage: models.StageCommitteeDecision, Order: 1, RequiredRoles: []models.Role{models.RoleAdmin}},
			},
		},
		schema: Schema{Fields: []models.ApplicationField{gpaField}, Documents: []models.ApplicationDocument{transcript}},
		rules:  freshmanRules(),
	}
}

func submitReq(app *models.Application) IntentRequest {
	return IntentRequest{
		ApplicationID: app.ID,
		Intent:        models.IntentSubmit,
		Actor:         models.Actor{ID: app.StudentID, Role: models.RoleStudent},
	}
}

func TestHandleSubmitReportsCompletenessBeforeEligibility(t *testing.T) {
	store := freshmanStub()
	// GPA both missing as a field value and failing as a rule; the applicant
	// must hear about the missing transcript and field first.
	orch := NewOrchestrator(store)

	_, _, err := orch.Handle(context.Background(), submitReq(store.app))

	var incomplete *IncompleteSubmissionError
	if !errors.As(err, &incomplete) {
		t.Fatalf("expected IncompleteSubmissionError, got %v", err)
	}
	if len(incomplete.MissingFields) != 1 || incomplete.MissingFields[0] != "gpa" {
		t.Fatalf("missing fields = %v", incomplete.MissingFields)
	}
	if len(incomplete.MissingDocuments) != 1 || incomplete.MissingDocuments[0] != "high_school_transcript" {
		t.Fatalf("missing documents = %v", incomplete.MissingDocuments)
	}
	if store.saved {
		t.Fatal("a rejected submit must not persist anything")
	}
	if store.app.Status != models.StatusDraft {
		t.Fatalf("status = %s, want draft", store.app.Status)
	}
}

func completeDraft(store *stubStore, gpa string) {
	store.app.FieldValues["gpa"] = gpa
	store.app.FieldValues["class_ranking_percent"] = "12"
	store.app.Documents = []models.DocumentRef{{Requirement: "high_school_transcript", FileID: "file-1", AttachedAt: time.Now()}}
	// class_ranking_percent is referenced by a warning rule but is not part
	// of the declared schema in this fixture; declare it so value validation
	// accepts it.
	store.schema.Fields = append(store.schema.Fields, models.ApplicationField{
		ID: uuid.New(), Name: "class_ranking_percent", Type: models.FieldNumber, Active: true,
	})
}

func TestHandlePermissionCheckedBeforeCompleteness(t *testing.T) {
	store := freshmanStub()
	// The draft is incomplete, but a non-owner must learn nothing about what
	// is missing from it.
	orch := NewOrchestrator(store)

	req := submitReq(store.app)
	req.Actor = models.Actor{ID: "B11009999", Role: models.RoleStudent}
	_, _, err := orch.Handle(context.Background(), req)

	var perr *PermissionError
	if !errors.As(err, &perr) {
		t.Fatalf("expected PermissionError, got %v", err)
	}
	var incomplete *IncompleteSubmissionError
	if errors.As(err, &incomplete) {
		t.Fatal("completeness detail leaked to a non-owner")
	}
	if store.saved {
		t.Fatal("rejected intent must not persist anything")
	}
}

func TestHandleTerminalStateBeforeSubmitGuards(t *testing.T) {
	store := freshmanStub()
	store.app.Status = models.StatusWithdrawn
	// Window is closed too; the lifecycle verdict must win over the window
	// check.
	closed := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	store.stype.WindowClose = &closed
	orch := NewOrchestrator(store).WithClock(fixedClock(closed.Add(24 * time.Hour)))

	_, _, err := orch.Handle(context.Background(), submitReq(store.app))

	var ierr *IllegalTransitionError
	if !errors.As(err, &ierr) {
		t.Fatalf("expected IllegalTransitionError, got %v", err)
	}
	var verr *ValidationError
	if errors.As(err, &verr) {
		t.Fatal("window check ran against a terminal application")
	}
}

func TestHandleSubmitBlockedByEligibility(t *testing.T) {
	store := freshmanStub()
	completeDraft(store, "3.20")
	orch := NewOrchestrator(store)

	_, _, err := orch.Handle(context.Background(), submitReq(store.app))

	var elig *EligibilityError
	if !errors.As(err, &elig) {
		t.Fatalf("expected EligibilityError, got %v", err)
	}
	if len(elig.Failed) != 1 || elig.Failed[0].Field != "gpa" {
		t.Fatalf("failed = %+v", elig.Failed)
	}
	if store.saved || store.app.Status != models.StatusDraft {
		t.Fatal("blocked submit must leave the application untouched")
	}
}

func TestHandleSubmitSucceedsWithWarnings(t *testing.T) {
	store := freshmanStub()
	completeDraft(store, "3.40")
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	orch := NewOrchestrator(store).WithClock(fixedClock(now))

	var events []models.TransitionEvent
	orch.Subscribe(func(ev models.TransitionEvent) { events = append(events, ev) })

	app, event, err := orch.Handle(context.Background(), submitReq(store.app))
	if err != nil {
		t.Fatalf("Handle failed: %v", err)
	}

	if app.Status != models.StatusSubmitted {
		t.Fatalf("status = %s, want submitted", app.Status)
	}
	if len(app.Warnings) != 1 || app.Warnings[0].Field != "class_ranking_percent" {
		t.Fatalf("warnings = %+v", app.Warnings)
	}
	if !store.saved {
		t.Fatal("successful submit must persist")
	}
	if len(store.savedDelta) != 0 {
		t.Fatalf("submit appended decisions: %+v", store.savedDelta)
	}
	if len(events) != 1 || events[0].To != models.StatusSubmitted {
		t.Fatalf("events = %+v", events)
	}
	if event.OccurredAt != now {
		t.Fatalf("event time = %v, want %v", event.OccurredAt, now)
	}
}

func TestHandleSubmitOutsideWindow(t *testing.T) {
	store := freshmanStub()
	completeDraft(store, "3.40")
	closed := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	store.stype.WindowClose = &closed
	orch := NewOrchestrator(store).WithClock(fixedClock(closed.Add(24 * time.Hour)))

	_, _, err := orch.Handle(context.Background(), submitReq(store.app))

	var verr *ValidationError
	if !errors.As(err, &verr) || verr.Field != "window" {
		t.Fatalf("expected window ValidationError, got %v", err)
	}
}

func TestHandleSubmitCombinedRequiresSub(t *testing.T) {
	store := freshmanStub()
	completeDraft(store, "3.40")
	store.stype.Combined = true
	store.stype.SubScholarships = []models.SubScholarship{{Code: "phd_research", Active: true}}
	orch := NewOrchestrator(store)

	_, _, err := orch.Handle(context.Background(), submitReq(store.app))
	var verr *ValidationError
	if !errors.As(err, &verr) || verr.Field != "sub_code" {
		t.Fatalf("expected sub_code ValidationError, got %v", err)
	}

	store.app.SubCode = "phd_teaching"
	_, _, err = orch.Handle(context.Background(), submitReq(store.app))
	if !errors.As(err, &verr) || verr.Field != "sub_code" {
		t.Fatalf("expected rejection of unknown sub, got %v", err)
	}

	store.app.SubCode = "phd_research"
	if _, _, err := orch.Handle(context.Background(), submitReq(store.app)); err != nil {
		t.Fatalf("submit with resolved sub failed: %v", err)
	}
}

func TestHandleSurfacesConcurrentModification(t *testing.T) {
	store := freshmanStub()
	completeDraft(store, "3.40")
	store.saveErr = &ConcurrentModificationError{ApplicationID: store.app.ID.String(), Expected: 1}
	orch := NewOrchestrator(store)

	_, _, err := orch.Handle(context.Background(), submitReq(store.app))
	var cerr *ConcurrentModificationError
	if !errors.As(err, &cerr) {
		t.Fatalf("expected ConcurrentModificationError, got %v", err)
	}
}

func TestHandleReviewDecisionPersistsDelta(t *testing.T) {
	store := freshmanStub()
	store.app.Status = models.StatusUnderReview
	store.app.StatusTimes[models.StatusSubmitted] = time.Now().Add(-time.Hour)
	orch := NewOrchestrator(store)

	app, _, err := orch.Handle(context.Background(), IntentRequest{
		ApplicationID: store.app.ID,
		Intent:        models.IntentApprove,
		Actor:         models.Actor{ID: "college-1", Role: models.RoleCollege},
		Comment:       "records verified",
	})
	if err != nil {
		t.Fatalf("Handle failed: %v", err)
	}
	if app.Status != models.StatusCollegeReview {
		t.Fatalf("status = %s, want college_review", app.Status)
	}
	if len(store.savedDelta) != 1 || store.savedDelta[0].Comment != "records verified" {
		t.Fatalf("saved delta = %+v", store.savedDelta)
	}
}

func TestPreviewMatchesSubmitVerdict(t *testing.T) {
	store := freshmanStub()
	orch := NewOrchestrator(store)

	ev, err := orch.Preview(context.Background(), "undergraduate_freshman", "", "B11001234",
		ApplicantData{Numbers: map[string]float64{"gpa": 3.2, "class_ranking_percent": 5}})
	if err != nil {
		t.Fatalf("Preview failed: %v", err)
	}
	if !ev.Blocked() {
		t.Fatal("preview must report the same hard failure submit would")
	}
}
