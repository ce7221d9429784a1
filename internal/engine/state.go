package engine

import (
	"time"

	"github.com/google/uuid"
	"github.com/wyhuang/scholarship-engine/internal/models"
)

// TransitionRequest is one actor intent against one application.
type TransitionRequest struct {
	Intent  models.Intent
	Actor   models.Actor
	Comment string
	Now     time.Time
}

// ruleKind says how a table entry takes effect.
type ruleKind int

const (
	kindPlain         ruleKind = iota // direct state change, no decision record
	kindStageDecision                 // append a ReviewDecision, resolve target via the stage aggregate
	kindFinal                         // committee decision; all earlier stages must already be approved
)

type transitionRule struct {
	roles   []models.Role
	kind    ruleKind
	stage   models.Stage  // for kindStageDecision / kindFinal
	verdict models.Verdict
	target  models.Status // advance target; stage decisions stay put while the aggregate is pending
	stay    models.Status // state while the aggregate is pending (stage decisions only)
	// professorGated restricts the entry to types with (true) or without
	// (false) a professor_recommendation stage; nil means either.
	professorGated *bool
}

var gated = true
var notGated = false

// transitionTable is the static (state, intent) map. Anything absent is an
// IllegalTransitionError; role mismatches on present entries are
// PermissionErrors. Terminal states have no entries.
var transitionTable = map[models.Status]map[models.Intent][]transitionRule{
	models.StatusDraft: {
		models.IntentSubmit:   {{roles: students(), kind: kindPlain, target: models.StatusSubmitted}},
		models.IntentWithdraw: {{roles: students(), kind: kindPlain, target: models.StatusWithdrawn}},
	},
	models.StatusReturned: {
		models.IntentSubmit: {{roles: students(), kind: kindPlain, target: models.StatusSubmitted}},
	},
	models.StatusSubmitted: {
		models.IntentWithdraw: {{roles: students(), kind: kindPlain, target: models.StatusWithdrawn}},
		models.IntentApprove:  {{roles: reviewers(models.RoleCollege), kind: kindPlain, target: models.StatusUnderReview}},
		models.IntentReject:   {{roles: reviewers(), kind: kindPlain, target: models.StatusRejected}},
		models.IntentReturn:   {{roles: reviewers(models.RoleCollege), kind: kindPlain, target: models.StatusReturned}},
	},
	models.StatusUnderReview: {
		models.IntentRecommend: {{
			roles: []models.Role{models.RoleProfessor}, kind: kindStageDecision,
			stage: models.StageProfessorRecommendation, verdict: models.VerdictApprove,
			target: models.StatusRecommended, stay: models.StatusPendingRecommendation,
			professorGated: &gated,
		}},
		models.IntentDecline: {{
			roles: []models.Role{models.RoleProfessor}, kind: kindStageDecision,
			stage: models.StageProfessorRecommendation, verdict: models.VerdictReject,
			target: models.StatusRejected, professorGated: &gated,
		}},
		models.IntentApprove: {{
			roles: []models.Role{models.RoleCollege}, kind: kindStageDecision,
			stage: models.StageCollegeReview, verdict: models.VerdictApprove,
			target: models.StatusCollegeReview, stay: models.StatusUnderReview,
			professorGated: &notGated,
		}},
		models.IntentReject: {{
			roles: []models.Role{models.RoleCollege}, kind: kindStageDecision,
			stage: models.StageCollegeReview, verdict: models.VerdictReject,
			target: models.StatusRejected, professorGated: &notGated,
		}},
		models.IntentReturn: {{
			roles: reviewers(models.RoleCollege), kind: kindStageDecision,
			stage: models.StageCollegeReview, verdict: models.VerdictReturnForRevision,
			target: models.StatusReturned,
		}},
	},
	models.StatusPendingRecommendation: {
		models.IntentRecommend: {{
			roles: []models.Role{models.RoleProfessor}, kind: kindStageDecision,
			stage: models.StageProfessorRecommendation, verdict: models.VerdictApprove,
			target: models.StatusRecommended, stay: models.StatusPendingRecommendation,
		}},
		models.IntentDecline: {{
			roles: []models.Role{models.RoleProfessor}, kind: kindStageDecision,
			stage: models.StageProfessorRecommendation, verdict: models.VerdictReject,
			target: models.StatusRejected,
		}},
		models.IntentReturn: {{
			roles: reviewers(models.RoleCollege), kind: kindStageDecision,
			stage: models.StageProfessorRecommendation, verdict: models.VerdictReturnForRevision,
			target: models.StatusReturned,
		}},
	},
	models.StatusRecommended: {
		models.IntentApprove: {{
			roles: []models.Role{models.RoleCollege}, kind: kindStageDecision,
			stage: models.StageCollegeReview, verdict: models.VerdictApprove,
			target: models.StatusCollegeReview, stay: models.StatusRecommended,
		}},
		models.IntentReject: {{
			roles: []models.Role{models.RoleCollege}, kind: kindStageDecision,
			stage: models.StageCollegeReview, verdict: models.VerdictReject,
			target: models.StatusRejected,
		}},
		models.IntentReturn: {{
			roles: reviewers(models.RoleCollege), kind: kindStageDecision,
			stage: models.StageCollegeReview, verdict: models.VerdictReturnForRevision,
			target: models.StatusReturned,
		}},
	},
	models.StatusCollegeReview: {
		models.IntentApprove: {{
			roles: reviewers(), kind: kindFinal,
			stage: models.StageCommitteeDecision, verdict: models.VerdictApprove,
			target: models.StatusApproved, stay: models.StatusCollegeReview,
		}},
		models.IntentReject: {{
			roles: reviewers(), kind: kindFinal,
			stage: models.StageCommitteeDecision, verdict: models.VerdictReject,
			target: models.StatusRejected,
		}},
		models.IntentReturn: {{
			roles: reviewers(), kind: kindStageDecision,
			stage: models.StageCommitteeDecision, verdict: models.VerdictReturnForRevision,
			target: models.StatusReturned,
		}},
	},
}

func students() []models.Role { return []models.Role{models.RoleStudent} }

func reviewers(extra ...models.Role) []models.Role {
	return append([]models.Role{models.RoleAdmin, models.RoleSuperAdmin}, extra...)
}

// ProfessorGated reports whether the stage plan includes an advisor
// recommendation checkpoint.
func ProfessorGated(plan []models.ReviewStage) bool {
	for _, st := range plan {
		if st.Stage == models.StageProfessorRecommendation {
			return true
		}
	}
	return false
}

func planStage(plan []models.ReviewStage, stage models.Stage) (models.ReviewStage, bool) {
	for _, st := range plan {
		if st.Stage == stage {
			return st, true
		}
	}
	return models.ReviewStage{}, false
}

// resolveRule looks up the table entry for the application's state and the
// requested intent, then enforces the actor checks: role allowlist, student
// ownership, advisor assignment. It never mutates the application.
func resolveRule(app *models.Application, plan []models.ReviewStage, intent models.Intent, actor models.Actor) (*transitionRule, error) {
	intents, ok := transitionTable[app.Status]
	if !ok {
		return nil, &IllegalTransitionError{Intent: intent, State: app.Status, Reason: "terminal state"}
	}

	// A final approve/reject before every earlier stage has cleared is not a
	// permission problem: the transition itself does not exist yet.
	if (intent == models.IntentApprove || intent == models.IntentReject) &&
		isAdminRole(actor.Role) &&
		(app.Status == models.StatusUnderReview || app.Status == models.StatusPendingRecommendation || app.Status == models.StatusRecommended) {
		return nil, &IllegalTransitionError{Intent: intent, State: app.Status, Reason: "earlier review stages are not complete"}
	}

	isGated := ProfessorGated(plan)
	var rule *transitionRule
	for i := range intents[intent] {
		r := &intents[intent][i]
		if r.professorGated != nil && *r.professorGated != isGated {
			continue
		}
		rule = r
		break
	}
	if rule == nil {
		return nil, &IllegalTransitionError{Intent: intent, State: app.Status}
	}

	if !roleAllowed(rule.roles, actor.Role) {
		return nil, &PermissionError{Intent: intent, State: app.Status, Role: actor.Role}
	}
	// Only the owning student may submit or withdraw.
	if actor.Role == models.RoleStudent && actor.ID != app.StudentID {
		return nil, &PermissionError{Intent: intent, State: app.Status, Role: actor.Role}
	}
	// Recommendation decisions are reserved for the assigned advisor.
	if actor.Role == models.RoleProfessor && rule.stage == models.StageProfessorRecommendation {
		if app.AdvisorID == "" || actor.ID != app.AdvisorID {
			return nil, &PermissionError{Intent: intent, State: app.Status, Role: actor.Role}
		}
	}
	return rule, nil
}

// CheckAllowed reports whether the actor may trigger the intent from the
// application's current state, without applying anything. Callers that run
// expensive submit guards use it to settle legality and permission first.
func CheckAllowed(app *models.Application, plan []models.ReviewStage, intent models.Intent, actor models.Actor) error {
	_, err := resolveRule(app, plan, intent, actor)
	return err
}

// Transition applies one intent to the application. Transition legality and
// the actor checks resolve first; schema completeness and eligibility on
// submit are the orchestrator's responsibility. On success the application is
// mutated in place (status, status timestamp, appended decision) and the
// resulting event is returned.
func Transition(app *models.Application, plan []models.ReviewStage, req TransitionRequest) (*models.TransitionEvent, error) {
	rule, err := resolveRule(app, plan, req.Intent, req.Actor)
	if err != nil {
		return nil, err
	}

	from := app.Status
	target := rule.target

	switch rule.kind {
	case kindPlain:
		// nothing further to resolve

	case kindStageDecision, kindFinal:
		if rule.kind == kindFinal {
			if err := priorStagesApproved(app, plan); err != nil {
				return nil, err
			}
		}
		appendDecision(app, rule, req)
		if rule.verdict == models.VerdictApprove {
			agg := reduceStage(app, plan, rule.stage)
			switch agg.Outcome {
			case AggregateApprove:
				target = rule.target
			case AggregateReject:
				target = models.StatusRejected
			default:
				target = rule.stay
			}
		}
	}

	app.Status = target
	if app.StatusTimes == nil {
		app.StatusTimes = make(map[models.Status]time.Time)
	}
	app.StatusTimes[target] = req.Now
	app.UpdatedAt = req.Now

	return &models.TransitionEvent{
		ApplicationID: app.ID,
		From:          from,
		To:            target,
		Intent:        req.Intent,
		ActorID:       req.Actor.ID,
		ActorRole:     req.Actor.Role,
		OccurredAt:    req.Now,
	}, nil
}

func appendDecision(app *models.Application, rule *transitionRule, req TransitionRequest) {
	app.Decisions = append(app.Decisions, models.ReviewDecision{
		ID:            uuid.New(),
		ApplicationID: app.ID,
		Stage:         rule.stage,
		ActorID:       req.Actor.ID,
		ActorRole:     req.Actor.Role,
		Verdict:       rule.verdict,
		Comment:       req.Comment,
		DecidedAt:     req.Now,
	})
}

// reduceStage reduces the decisions recorded for a stage during the current
// submission pass. Decisions from before a return-for-revision do not carry
// over to the resubmitted application.
func reduceStage(app *models.Application, plan []models.ReviewStage, stage models.Stage) AggregateResult {
	st, ok := planStage(plan, stage)
	required := st.RequiredRoles
	if !ok || len(required) == 0 {
		// A stage outside the plan needs no sign-off beyond the acting role.
		required = nil
	}
	return Reduce(stage, required, currentPassDecisions(app, stage))
}

func currentPassDecisions(app *models.Application, stage models.Stage) []models.ReviewDecision {
	since, hasSubmit := app.StatusTimes[models.StatusSubmitted]
	var out []models.ReviewDecision
	for _, d := range app.DecisionsAt(stage) {
		if hasSubmit && d.DecidedAt.Before(since) {
			continue
		}
		out = append(out, d)
	}
	return out
}

func priorStagesApproved(app *models.Application, plan []models.ReviewStage) error {
	for _, st := range plan {
		if st.Stage == models.StageCommitteeDecision {
			continue
		}
		agg := Reduce(st.Stage, st.RequiredRoles, currentPassDecisions(app, st.Stage))
		if agg.Outcome != AggregateApprove {
			return &IllegalTransitionError{
				Intent: models.IntentApprove,
				State:  app.Status,
				Reason: string(st.Stage) + " stage is not approved",
			}
		}
	}
	return nil
}

func roleAllowed(roles []models.Role, role models.Role) bool {
	for _, r := range roles {
		if r == role {
			return true
		}
	}
	return false
}

func isAdminRole(r models.Role) bool {
	return r == models.RoleAdmin || r == models.RoleSuperAdmin
}
