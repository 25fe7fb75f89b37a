package engine

import (
	"context"
	"fmt"

	"github.com/open-policy-agent/opa/v1/rego"

	userdomain "support-access-plane/internal/user/domain"
)

// Default Rego policy for support-access eligibility. An admin must hold an
// active admin role; a target must be an active principal without an elevated role.
const defaultRegoPolicy = `package sap.support_access

default admin_allowed = false
default target_eligible = false

admin_allowed if {
	input.admin.role == "admin"
	input.admin.status == "active"
}

target_eligible if {
	input.target.role != "admin"
	input.target.status == "active"
}
`

// OPAEvaluator evaluates support-access eligibility using OPA Rego. The policy
// is compiled once at construction.
type OPAEvaluator struct {
	query rego.PreparedEvalQuery
}

// NewOPAEvaluator compiles the default eligibility policy and returns an
// OPA-based evaluator. Returns an error if the policy does not compile.
func NewOPAEvaluator(ctx context.Context) (*OPAEvaluator, error) {
	query, err := rego.New(
		rego.Query("data.sap.support_access"),
		rego.Module("eligibility.rego", defaultRegoPolicy),
	).PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("compile eligibility policy: %w", err)
	}
	return &OPAEvaluator{query: query}, nil
}

// EvaluateEligibility runs the compiled policy against the two principals.
// A nil admin or target evaluates to the corresponding default (deny).
func (e *OPAEvaluator) EvaluateEligibility(ctx context.Context, admin, target *userdomain.User) (Eligibility, error) {
	input := map[string]interface{}{
		"admin":  principalInput(admin),
		"target": principalInput(target),
	}
	rs, err := e.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return Eligibility{}, fmt.Errorf("evaluate eligibility policy: %w", err)
	}
	if len(rs) == 0 || len(rs[0].Expressions) == 0 {
		return Eligibility{}, fmt.Errorf("eligibility policy returned no result")
	}
	doc, ok := rs[0].Expressions[0].Value.(map[string]interface{})
	if !ok {
		return Eligibility{}, fmt.Errorf("eligibility policy returned unexpected value %T", rs[0].Expressions[0].Value)
	}
	out := Eligibility{}
	if v, ok := doc["admin_allowed"].(bool); ok {
		out.AdminAllowed = v
	}
	if v, ok := doc["target_eligible"].(bool); ok {
		out.TargetEligible = v
	}
	return out, nil
}

func principalInput(u *userdomain.User) map[string]interface{} {
	m := map[string]interface{}{
		"id":     "",
		"role":   "",
		"status": "",
	}
	if u != nil {
		m["id"] = u.ID
		m["role"] = string(u.Role)
		m["status"] = string(u.Status)
	}
	return m
}
