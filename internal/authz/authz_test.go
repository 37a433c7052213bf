package authz

import (
	"testing"
	"time"

	"github.com/signoff-hq/signoff/model"
)

func testRctx(subjectID string, groups ...string) *model.RequestContext {
	return &model.RequestContext{
		SubjectID: subjectID,
		Roles:     groups,
	}
}

// --- StaticRolePolicy tests ---

func TestStaticRolePolicy_ResolveRoles(t *testing.T) {
	p, err := NewStaticRolePolicy("testdata/roles.yaml")
	if err != nil {
		t.Fatalf("NewStaticRolePolicy() error = %v", err)
	}

	roles, err := p.ResolveRoles(testRctx("user-1", "unit-supervisors"))
	if err != nil {
		t.Fatalf("ResolveRoles() error = %v", err)
	}

	if !roles.Has("supervisor") {
		t.Error("unit-supervisors should map to supervisor")
	}
	if roles.Has("director") {
		t.Error("unit-supervisors should not map to director")
	}
}

func TestStaticRolePolicy_MultipleGroups(t *testing.T) {
	p, _ := NewStaticRolePolicy("testdata/roles.yaml")
	roles, _ := p.ResolveRoles(testRctx("user-1", "hr-officers", "directorate"))

	for _, role := range []string{"hr_certifier", "director", "supervisor"} {
		if !roles.Has(role) {
			t.Errorf("combined groups should include %s", role)
		}
	}
}

func TestStaticRolePolicy_UnknownGroup(t *testing.T) {
	p, _ := NewStaticRolePolicy("testdata/roles.yaml")
	roles, _ := p.ResolveRoles(testRctx("user-1", "nonexistent"))
	if len(roles) != 0 {
		t.Errorf("unknown group should resolve to no roles, got %v", roles)
	}
}

func TestStaticRolePolicy_BadFile(t *testing.T) {
	_, err := NewStaticRolePolicy("testdata/nonexistent.yaml")
	if err == nil {
		t.Fatal("expected error for missing policy file")
	}
}

// --- Resolver tests ---

type mockEvaluator struct {
	resolveFunc func(rctx *model.RequestContext) (RoleSet, error)
}

func (m *mockEvaluator) ResolveRoles(rctx *model.RequestContext) (RoleSet, error) {
	return m.resolveFunc(rctx)
}

func (m *mockEvaluator) Sync() error { return nil }

func TestResolver_Resolve_and_Cache(t *testing.T) {
	callCount := 0
	mock := &mockEvaluator{
		resolveFunc: func(*model.RequestContext) (RoleSet, error) {
			callCount++
			return RoleSet{"supervisor": true}, nil
		},
	}
	r := NewResolver(mock, 5*time.Minute)
	rctx := testRctx("user-1")

	roles, err := r.Resolve(rctx)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if !roles.Has("supervisor") {
		t.Error("should have supervisor")
	}

	r.Resolve(rctx)
	if callCount != 1 {
		t.Fatalf("callCount = %d after cache hit, want 1", callCount)
	}
}

func TestResolver_Invalidate(t *testing.T) {
	callCount := 0
	mock := &mockEvaluator{
		resolveFunc: func(*model.RequestContext) (RoleSet, error) {
			callCount++
			return RoleSet{}, nil
		},
	}
	r := NewResolver(mock, 5*time.Minute)
	rctx := testRctx("user-1")

	r.Resolve(rctx)
	r.Invalidate("user-1")
	r.Resolve(rctx)

	if callCount != 2 {
		t.Fatalf("callCount = %d after invalidate, want 2", callCount)
	}
}

func TestResolver_TTLExpiry(t *testing.T) {
	callCount := 0
	mock := &mockEvaluator{
		resolveFunc: func(*model.RequestContext) (RoleSet, error) {
			callCount++
			return RoleSet{}, nil
		},
	}
	r := NewResolver(mock, 1*time.Millisecond)
	rctx := testRctx("user-1")

	r.Resolve(rctx)
	time.Sleep(5 * time.Millisecond)
	r.Resolve(rctx)

	if callCount != 2 {
		t.Fatalf("callCount = %d, want 2 (TTL expired)", callCount)
	}
}

// --- StepAuthorizer tests ---

type staticRoles struct{ roles RoleSet }

func (s staticRoles) Resolve(*model.RequestContext) (RoleSet, error) {
	return s.roles, nil
}

func roleStep(ordinal int, role string) model.StepDefinition {
	return model.StepDefinition{
		Ordinal: ordinal,
		Name:    "Review",
		Actor:   model.ActorRule{Type: model.ActorRuleRole, Role: role},
	}
}

func TestStepAuthorizer_RoleRule(t *testing.T) {
	a := NewStepAuthorizer(staticRoles{RoleSet{"supervisor": true}})
	record := &model.WorkflowRecord{ID: "rec-1"}

	if _, err := a.Authorize(testRctx("user-1"), record, roleStep(1, "supervisor")); err != nil {
		t.Fatalf("Authorize() error = %v, want grant", err)
	}

	_, err := a.Authorize(testRctx("user-1"), record, roleStep(1, "director"))
	if !model.IsCode(err, model.ErrNotAuthorized) {
		t.Fatalf("Authorize() error = %v, want NOT_AUTHORIZED", err)
	}
}

func TestStepAuthorizer_AssignedRule(t *testing.T) {
	a := NewStepAuthorizer(staticRoles{RoleSet{}})
	step := model.StepDefinition{Ordinal: 2, Actor: model.ActorRule{Type: model.ActorRuleAssigned}}
	record := &model.WorkflowRecord{
		ID:             "rec-1",
		AssignedActors: map[int]string{2: "user-2"},
	}

	if _, err := a.Authorize(testRctx("user-2"), record, step); err != nil {
		t.Fatalf("assigned actor should be granted, got %v", err)
	}

	_, err := a.Authorize(testRctx("user-1"), record, step)
	if !model.IsCode(err, model.ErrNotAuthorized) {
		t.Fatalf("non-assigned actor error = %v, want NOT_AUTHORIZED", err)
	}
}

func TestStepAuthorizer_AssignedRule_no_assignment(t *testing.T) {
	a := NewStepAuthorizer(staticRoles{RoleSet{}})
	step := model.StepDefinition{Ordinal: 2, Actor: model.ActorRule{Type: model.ActorRuleAssigned}}
	record := &model.WorkflowRecord{ID: "rec-1"}

	_, err := a.Authorize(testRctx("user-1"), record, step)
	if !model.IsCode(err, model.ErrNotAuthorized) {
		t.Fatalf("unassigned step error = %v, want NOT_AUTHORIZED", err)
	}
}

func TestStepAuthorizer_SelfAssign_claim(t *testing.T) {
	a := NewStepAuthorizer(staticRoles{RoleSet{"analyst": true}})
	step := model.StepDefinition{
		Ordinal: 1,
		Actor:   model.ActorRule{Type: model.ActorRuleSelfAssign, Role: "analyst"},
	}
	record := &model.WorkflowRecord{ID: "rec-1"}

	grant, err := a.Authorize(testRctx("user-1"), record, step)
	if err != nil {
		t.Fatalf("Authorize() error = %v", err)
	}
	if !grant.SelfAssign {
		t.Error("unclaimed self-assign step should grant with SelfAssign set")
	}
}

func TestStepAuthorizer_SelfAssign_requires_role(t *testing.T) {
	a := NewStepAuthorizer(staticRoles{RoleSet{}})
	step := model.StepDefinition{
		Ordinal: 1,
		Actor:   model.ActorRule{Type: model.ActorRuleSelfAssign, Role: "analyst"},
	}
	record := &model.WorkflowRecord{ID: "rec-1"}

	_, err := a.Authorize(testRctx("user-1"), record, step)
	if !model.IsCode(err, model.ErrNotAuthorized) {
		t.Fatalf("claim without role error = %v, want NOT_AUTHORIZED", err)
	}
}

func TestStepAuthorizer_SelfAssign_already_claimed(t *testing.T) {
	a := NewStepAuthorizer(staticRoles{RoleSet{"analyst": true}})
	step := model.StepDefinition{
		Ordinal: 1,
		Actor:   model.ActorRule{Type: model.ActorRuleSelfAssign, Role: "analyst"},
	}
	record := &model.WorkflowRecord{
		ID:             "rec-1",
		AssignedActors: map[int]string{1: "user-2"},
	}

	// The claim holder proceeds without a new claim.
	grant, err := a.Authorize(testRctx("user-2"), record, step)
	if err != nil {
		t.Fatalf("claim holder should be granted, got %v", err)
	}
	if grant.SelfAssign {
		t.Error("claim holder should not re-claim")
	}

	// Everyone else is locked out, role or not.
	_, err = a.Authorize(testRctx("user-1"), record, step)
	if !model.IsCode(err, model.ErrNotAuthorized) {
		t.Fatalf("other analyst error = %v, want NOT_AUTHORIZED", err)
	}
}

func TestStepAuthorizer_UnknownRuleType(t *testing.T) {
	a := NewStepAuthorizer(staticRoles{RoleSet{}})
	step := model.StepDefinition{Ordinal: 1, Actor: model.ActorRule{Type: "committee"}}
	record := &model.WorkflowRecord{ID: "rec-1"}

	_, err := a.Authorize(testRctx("user-1"), record, step)
	if !model.IsCode(err, model.ErrInvalidDefinition) {
		t.Fatalf("unknown rule type error = %v, want INVALID_DEFINITION", err)
	}
}
