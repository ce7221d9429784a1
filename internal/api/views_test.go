package api

import (
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/wyhuang/scholarship-engine/internal/models"
)

func sampleApplication() *models.Application {
	return &models.Application{
		ID:              uuid.New(),
		StudentID:       "B11001234",
		ScholarshipCode: "undergraduate_freshman",
		Status:          models.StatusCollegeReview,
		FieldValues:     map[string]string{"gpa": "3.4"},
		Decisions: []models.ReviewDecision{{
			ID:        uuid.New(),
			Stage:     models.StageCollegeReview,
			ActorID:   "college-1",
			ActorRole: models.RoleCollege,
			Verdict:   models.VerdictApprove,
			Comment:   "records verified",
			DecidedAt: time.Now(),
		}},
		StatusTimes: map[models.Status]time.Time{},
		Version:     3,
	}
}

func TestApplicationViewHidesReviewerIdentityFromStudents(t *testing.T) {
	app := sampleApplication()

	v := newApplicationView(app, models.RoleStudent)
	if len(v.Decisions) != 1 {
		t.Fatalf("decisions = %d, want 1", len(v.Decisions))
	}
	d := v.Decisions[0]
	if d.ActorID != "" {
		t.Fatalf("student view leaked reviewer identity %q", d.ActorID)
	}
	// The verdict, role and feedback stay visible.
	if d.Verdict != models.VerdictApprove || d.ActorRole != models.RoleCollege || d.Comment != "records verified" {
		t.Fatalf("student view trimmed too much: %+v", d)
	}
}

func TestApplicationViewKeepsIdentityForStaff(t *testing.T) {
	app := sampleApplication()

	for _, role := range []models.Role{models.RoleProfessor, models.RoleCollege, models.RoleAdmin, models.RoleSuperAdmin} {
		v := newApplicationView(app, role)
		if v.Decisions[0].ActorID != "college-1" {
			t.Fatalf("%s view lost reviewer identity", role)
		}
	}
}

func TestApplicationViewNormalizesNilCollections(t *testing.T) {
	app := sampleApplication()
	app.FieldValues = nil
	app.Documents = nil
	app.Decisions = nil

	v := newApplicationView(app, models.RoleAdmin)
	if v.FieldValues == nil || v.Documents == nil || v.Decisions == nil {
		t.Fatal("view must serialize empty collections, not null")
	}
	if !v.Terminal && app.Status.Terminal() {
		t.Fatal("terminal flag out of sync with status")
	}
}
