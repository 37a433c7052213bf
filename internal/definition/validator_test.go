package definition

import (
	"testing"

	"github.com/signoff-hq/signoff/model"
)

func validWorkflow() model.WorkflowDefinition {
	return model.WorkflowDefinition{
		ID:   "leave.standard",
		Name: "Standard Leave Request",
		Steps: []model.StepDefinition{
			{Ordinal: 1, Name: "Supervisor Review", Actor: model.ActorRule{Type: model.ActorRuleRole, Role: "supervisor"}},
			{Ordinal: 2, Name: "HR Certification", Actor: model.ActorRule{Type: model.ActorRuleAssigned}},
			{Ordinal: 3, Name: "Director Approval", Actor: model.ActorRule{Type: model.ActorRuleRole, Role: "director"}, Terminal: true},
		},
	}
}

func TestValidator_valid(t *testing.T) {
	v := NewValidator()
	errs := v.Validate([]model.WorkflowDefinition{validWorkflow()})
	if len(errs) > 0 {
		for _, e := range errs {
			t.Logf("  %s", e)
		}
		t.Fatalf("Validate() returned %d errors, want 0", len(errs))
	}
}

func TestValidator_missing_id(t *testing.T) {
	v := NewValidator()
	def := validWorkflow()
	def.ID = ""
	errs := v.Validate([]model.WorkflowDefinition{def})
	if !hasCode(errs, "REQUIRED") {
		t.Error("expected REQUIRED error for missing id")
	}
}

func TestValidator_missing_name(t *testing.T) {
	v := NewValidator()
	def := validWorkflow()
	def.Name = ""
	errs := v.Validate([]model.WorkflowDefinition{def})
	if !hasCode(errs, "REQUIRED") {
		t.Error("expected REQUIRED error for missing name")
	}
}

func TestValidator_no_steps(t *testing.T) {
	v := NewValidator()
	def := validWorkflow()
	def.Steps = nil
	errs := v.Validate([]model.WorkflowDefinition{def})
	if !hasCode(errs, "REQUIRED") {
		t.Error("expected REQUIRED error for empty steps")
	}
}

func TestValidator_ordinal_gap(t *testing.T) {
	v := NewValidator()
	def := validWorkflow()
	def.Steps[1].Ordinal = 5
	errs := v.Validate([]model.WorkflowDefinition{def})
	if !hasCode(errs, "ORDINAL_GAP") {
		t.Error("expected ORDINAL_GAP error for non-contiguous ordinals")
	}
}

func TestValidator_ordinal_not_starting_at_one(t *testing.T) {
	v := NewValidator()
	def := validWorkflow()
	def.Steps[0].Ordinal = 0
	errs := v.Validate([]model.WorkflowDefinition{def})
	if !hasCode(errs, "ORDINAL_GAP") {
		t.Error("expected ORDINAL_GAP error when ordinals do not start at 1")
	}
}

func TestValidator_no_terminal(t *testing.T) {
	v := NewValidator()
	def := validWorkflow()
	def.Steps[2].Terminal = false
	errs := v.Validate([]model.WorkflowDefinition{def})
	if !hasCode(errs, "NO_TERMINAL") {
		t.Error("expected NO_TERMINAL error when no step is terminal")
	}
}

func TestValidator_terminal_not_last(t *testing.T) {
	v := NewValidator()
	def := validWorkflow()
	def.Steps[0].Terminal = true
	errs := v.Validate([]model.WorkflowDefinition{def})
	if !hasCode(errs, "TERMINAL_NOT_LAST") {
		t.Error("expected TERMINAL_NOT_LAST error for mid-chain terminal")
	}
}

func TestValidator_invalid_actor_rule_type(t *testing.T) {
	v := NewValidator()
	def := validWorkflow()
	def.Steps[0].Actor.Type = "committee"
	errs := v.Validate([]model.WorkflowDefinition{def})
	if !hasCode(errs, "INVALID_ENUM") {
		t.Error("expected INVALID_ENUM error for invalid actor rule type")
	}
}

func TestValidator_role_rule_without_role(t *testing.T) {
	v := NewValidator()
	def := validWorkflow()
	def.Steps[0].Actor.Role = ""
	errs := v.Validate([]model.WorkflowDefinition{def})
	if !hasCode(errs, "REQUIRED") {
		t.Error("expected REQUIRED error for role rule without role")
	}
}

func TestValidator_self_assign_without_role(t *testing.T) {
	v := NewValidator()
	def := validWorkflow()
	def.Steps[1].Actor = model.ActorRule{Type: model.ActorRuleSelfAssign}
	errs := v.Validate([]model.WorkflowDefinition{def})
	if !hasCode(errs, "REQUIRED") {
		t.Error("expected REQUIRED error for self_assign rule without role")
	}
}

func TestValidator_duplicate_id(t *testing.T) {
	v := NewValidator()
	errs := v.Validate([]model.WorkflowDefinition{validWorkflow(), validWorkflow()})
	if !hasCode(errs, "DUPLICATE_ID") {
		t.Error("expected DUPLICATE_ID error for repeated workflow id")
	}
}

func hasCode(errs []VError, code string) bool {
	for _, e := range errs {
		if e.Code == code {
			return true
		}
	}
	return false
}
