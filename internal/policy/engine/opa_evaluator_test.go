package engine

import (
	"context"
	"testing"

	userdomain "support-access-plane/internal/user/domain"
)

func newEvaluator(t *testing.T) *OPAEvaluator {
	t.Helper()
	e, err := NewOPAEvaluator(context.Background())
	if err != nil {
		t.Fatalf("NewOPAEvaluator: %v", err)
	}
	return e
}

func activeUser(id string, role userdomain.Role) *userdomain.User {
	return &userdomain.User{ID: id, Role: role, Status: userdomain.UserStatusActive}
}

func TestEvaluateEligibility_AdminAndMember(t *testing.T) {
	e := newEvaluator(t)
	got, err := e.EvaluateEligibility(context.Background(),
		activeUser("a1", userdomain.RoleAdmin), activeUser("u1", userdomain.RoleMember))
	if err != nil {
		t.Fatalf("EvaluateEligibility: %v", err)
	}
	if !got.AdminAllowed {
		t.Error("active admin should be allowed")
	}
	if !got.TargetEligible {
		t.Error("active member should be eligible")
	}
}

func TestEvaluateEligibility_NonAdminCaller(t *testing.T) {
	e := newEvaluator(t)
	got, err := e.EvaluateEligibility(context.Background(),
		activeUser("u1", userdomain.RoleMember), activeUser("u2", userdomain.RoleMember))
	if err != nil {
		t.Fatalf("EvaluateEligibility: %v", err)
	}
	if got.AdminAllowed {
		t.Error("member caller should not be allowed")
	}
}

func TestEvaluateEligibility_DisabledAdmin(t *testing.T) {
	e := newEvaluator(t)
	admin := &userdomain.User{ID: "a1", Role: userdomain.RoleAdmin, Status: userdomain.UserStatusDisabled}
	got, err := e.EvaluateEligibility(context.Background(), admin, activeUser("u1", userdomain.RoleMember))
	if err != nil {
		t.Fatalf("EvaluateEligibility: %v", err)
	}
	if got.AdminAllowed {
		t.Error("disabled admin should not be allowed")
	}
}

func TestEvaluateEligibility_AdminTarget(t *testing.T) {
	e := newEvaluator(t)
	got, err := e.EvaluateEligibility(context.Background(),
		activeUser("a1", userdomain.RoleAdmin), activeUser("a2", userdomain.RoleAdmin))
	if err != nil {
		t.Fatalf("EvaluateEligibility: %v", err)
	}
	if !got.AdminAllowed {
		t.Error("active admin should be allowed")
	}
	if got.TargetEligible {
		t.Error("admin target should not be eligible")
	}
}

func TestEvaluateEligibility_DisabledTarget(t *testing.T) {
	e := newEvaluator(t)
	target := &userdomain.User{ID: "u1", Role: userdomain.RoleMember, Status: userdomain.UserStatusDisabled}
	got, err := e.EvaluateEligibility(context.Background(), activeUser("a1", userdomain.RoleAdmin), target)
	if err != nil {
		t.Fatalf("EvaluateEligibility: %v", err)
	}
	if got.TargetEligible {
		t.Error("disabled target should not be eligible")
	}
}

func TestEvaluateEligibility_NilPrincipals(t *testing.T) {
	e := newEvaluator(t)
	got, err := e.EvaluateEligibility(context.Background(), nil, nil)
	if err != nil {
		t.Fatalf("EvaluateEligibility: %v", err)
	}
	if got.AdminAllowed || got.TargetEligible {
		t.Error("nil principals should evaluate to deny")
	}
}
