package engine

import (
	"github.com/wyhuang/scholarship-engine/internal/models"
)

type AggregateOutcome string

const (
	AggregateApprove AggregateOutcome = "approve"
	AggregateReject  AggregateOutcome = "reject"
	AggregatePending AggregateOutcome = "pending"
)

// AggregateResult is the reduced review state of one stage.
type AggregateResult struct {
	Stage     models.Stage     `json:"stage"`
	Outcome   AggregateOutcome `json:"outcome"`
	Approvals int              `json:"approvals"`
	Rejects   int              `json:"rejects"`
	// Missing lists required roles that have not yet approved.
	Missing []models.Role `json:"missing,omitempty"`
}

// Reduce folds the decision list for one stage. One reject fails the stage
// immediately, without waiting for the remaining reviewers. The stage is
// approved once every required role has recorded an approve; with no
// required roles declared, a single approve suffices. Return-for-revision
// verdicts are recorded history and do not count either way.
func Reduce(stage models.Stage, requiredRoles []models.Role, decisions []models.ReviewDecision) AggregateResult {
	res := AggregateResult{Stage: stage, Outcome: AggregatePending}

	approvedBy := make(map[models.Role]bool)
	for _, d := range decisions {
		switch d.Verdict {
		case models.VerdictReject:
			res.Rejects++
		case models.VerdictApprove:
			res.Approvals++
			approvedBy[d.ActorRole] = true
		}
	}

	if res.Rejects > 0 {
		res.Outcome = AggregateReject
		return res
	}

	if len(requiredRoles) == 0 {
		if res.Approvals > 0 {
			res.Outcome = AggregateApprove
		}
		return res
	}

	for _, role := range requiredRoles {
		if !roleSatisfied(approvedBy, role) {
			res.Missing = append(res.Missing, role)
		}
	}
	if len(res.Missing) == 0 {
		res.Outcome = AggregateApprove
	}
	return res
}

// roleSatisfied treats a super_admin approval as covering an admin
// requirement; everything else matches exactly.
func roleSatisfied(approvedBy map[models.Role]bool, required models.Role) bool {
	if approvedBy[required] {
		return true
	}
	if required == models.RoleAdmin && approvedBy[models.RoleSuperAdmin] {
		return true
	}
	return false
}
