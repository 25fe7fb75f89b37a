package engine

import (
	"context"

	userdomain "support-access-plane/internal/user/domain"
)

// Eligibility holds the result of support-access eligibility evaluation for a
// prospective admin→target delegation.
type Eligibility struct {
	// AdminAllowed is true when the caller holds an active admin role.
	AdminAllowed bool
	// TargetEligible is true when the target is an active principal that does
	// not itself hold an elevated role.
	TargetEligible bool
}

// Evaluator evaluates support-access eligibility policies using OPA or other engines.
type Evaluator interface {
	// EvaluateEligibility decides whether admin may open a scoped session on
	// target. target may be nil when the caller only needs the admin decision.
	// Unlike advisory policies, a failed evaluation is an error, never a
	// default-allow.
	EvaluateEligibility(ctx context.Context, admin, target *userdomain.User) (Eligibility, error)
}
