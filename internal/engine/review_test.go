package engine

import (
	"testing"

	"github.com/wyhuang/scholarship-engine/internal/models"
)

func decision(role models.Role, verdict models.Verdict) models.ReviewDecision {
	return models.ReviewDecision{ActorRole: role, Verdict: verdict}
}

func TestReduce(t *testing.T) {
	cases := []struct {
		name      string
		required  []models.Role
		decisions []models.ReviewDecision
		want      AggregateOutcome
		missing   int
	}{
		{
			name:     "no decisions is pending",
			required: []models.Role{models.RoleCollege},
			want:     AggregatePending,
			missing:  1,
		},
		{
			name:      "all required roles approved",
			required:  []models.Role{models.RoleCollege, models.RoleAdmin},
			decisions: []models.ReviewDecision{decision(models.RoleCollege, models.VerdictApprove), decision(models.RoleAdmin, models.VerdictApprove)},
			want:      AggregateApprove,
		},
		{
			name:      "partial approval stays pending",
			required:  []models.Role{models.RoleCollege, models.RoleAdmin},
			decisions: []models.ReviewDecision{decision(models.RoleCollege, models.VerdictApprove)},
			want:      AggregatePending,
			missing:   1,
		},
		{
			name:     "single reject fails fast",
			required: []models.Role{models.RoleCollege, models.RoleAdmin},
			decisions: []models.ReviewDecision{
				decision(models.RoleCollege, models.VerdictApprove),
				decision(models.RoleAdmin, models.VerdictReject),
			},
			want: AggregateReject,
		},
		{
			name:      "super_admin approval covers admin requirement",
			required:  []models.Role{models.RoleAdmin},
			decisions: []models.ReviewDecision{decision(models.RoleSuperAdmin, models.VerdictApprove)},
			want:      AggregateApprove,
		},
		{
			name:      "no required roles approves on first approval",
			decisions: []models.ReviewDecision{decision(models.RoleAdmin, models.VerdictApprove)},
			want:      AggregateApprove,
		},
		{
			name:      "return verdicts count neither way",
			required:  []models.Role{models.RoleCollege},
			decisions: []models.ReviewDecision{decision(models.RoleCollege, models.VerdictReturnForRevision)},
			want:      AggregatePending,
			missing:   1,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res := Reduce(models.StageCollegeReview, tc.required, tc.decisions)
			if res.Outcome != tc.want {
				t.Fatalf("outcome = %s, want %s", res.Outcome, tc.want)
			}
			if len(res.Missing) != tc.missing {
				t.Fatalf("missing = %v, want %d entries", res.Missing, tc.missing)
			}
		})
	}
}

func TestReduceRejectWinsOverLaterApprovals(t *testing.T) {
	decisions := []models.ReviewDecision{
		decision(models.RoleCollege, models.VerdictReject),
		decision(models.RoleAdmin, models.VerdictApprove),
		decision(models.RoleCollege, models.VerdictApprove),
	}
	res := Reduce(models.StageCollegeReview, []models.Role{models.RoleCollege, models.RoleAdmin}, decisions)
	if res.Outcome != AggregateReject {
		t.Fatalf("outcome = %s, want reject", res.Outcome)
	}
	if res.Rejects != 1 || res.Approvals != 2 {
		t.Fatalf("counts = %d approvals / %d rejects", res.Approvals, res.Rejects)
	}
}
