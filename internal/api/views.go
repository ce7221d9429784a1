package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/wyhuang/scholarship-engine/internal/models"
)

// applicationView is the canonical API projection of an application. Every
// handler returns this shape; role-specific trimming happens here rather
// than ad hoc per route.
type applicationView struct {
	ID              uuid.UUID                   `json:"id"`
	StudentID       string                      `json:"student_id"`
	AdvisorID       string                      `json:"advisor_id,omitempty"`
	ScholarshipCode string                      `json:"scholarship_code"`
	SubCode         string                      `json:"sub_code,omitempty"`
	Status          models.Status               `json:"status"`
	Terminal        bool                        `json:"terminal"`
	FieldValues     map[string]string           `json:"field_values"`
	Documents       []models.DocumentRef        `json:"documents"`
	Warnings        []models.RuleResult         `json:"warnings,omitempty"`
	Decisions       []decisionView              `json:"decisions"`
	StatusTimes     map[models.Status]time.Time `json:"status_times"`
	Version         int                         `json:"version"`
	CreatedAt       time.Time                   `json:"created_at"`
	UpdatedAt       time.Time                   `json:"updated_at"`
}

type decisionView struct {
	ID        uuid.UUID      `json:"id"`
	Stage     models.Stage   `json:"stage"`
	ActorID   string         `json:"actor_id,omitempty"`
	ActorRole models.Role    `json:"actor_role"`
	Verdict   models.Verdict `json:"verdict"`
	Comment   string         `json:"comment,omitempty"`
	DecidedAt time.Time      `json:"decided_at"`
}

func newApplicationView(app *models.Application, viewer models.Role) applicationView {
	v := applicationView{
		ID:              app.ID,
		StudentID:       app.StudentID,
		AdvisorID:       app.AdvisorID,
		ScholarshipCode: app.ScholarshipCode,
		SubCode:         app.SubCode,
		Status:          app.Status,
		Terminal:        app.Status.Terminal(),
		FieldValues:     app.FieldValues,
		Documents:       app.Documents,
		Warnings:        app.Warnings,
		StatusTimes:     app.StatusTimes,
		Version:         app.Version,
		CreatedAt:       app.CreatedAt,
		UpdatedAt:       app.UpdatedAt,
	}
	if v.FieldValues == nil {
		v.FieldValues = map[string]string{}
	}
	if v.Documents == nil {
		v.Documents = []models.DocumentRef{}
	}

	v.Decisions = make([]decisionView, 0, len(app.Decisions))
	for _, d := range app.Decisions {
		dv := decisionView{
			ID:        d.ID,
			Stage:     d.Stage,
			ActorID:   d.ActorID,
			ActorRole: d.ActorRole,
			Verdict:   d.Verdict,
			Comment:   d.Comment,
			DecidedAt: d.DecidedAt,
		}
		// Applicants see the verdicts and feedback, not who wrote them.
		if viewer == models.RoleStudent {
			dv.ActorID = ""
		}
		v.Decisions = append(v.Decisions, dv)
	}
	return v
}
