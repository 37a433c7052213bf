package definition

import (
	"fmt"

	"github.com/signoff-hq/signoff/model"
)

// VError describes a single validation error in a definition.
type VError struct {
	Path    string `json:"path"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e VError) Error() string {
	return fmt.Sprintf("%s: %s", e.Path, e.Message)
}

// Validator validates workflow definitions structurally: identity fields,
// ordinal contiguity, terminal placement, and actor rules.
type Validator struct{}

// NewValidator creates a new Validator.
func NewValidator() *Validator {
	return &Validator{}
}

// Validate checks all definitions and cross-definition uniqueness.
func (v *Validator) Validate(defs []model.WorkflowDefinition) []VError {
	var errs []VError

	seen := make(map[string]string)
	for i, def := range defs {
		prefix := fmt.Sprintf("workflows[%d]", i)

		if def.ID != "" {
			if first, dup := seen[def.ID]; dup {
				errs = append(errs, VError{
					Path:    prefix + ".id",
					Code:    "DUPLICATE_ID",
					Message: fmt.Sprintf("workflow id %q already defined in %s", def.ID, first),
				})
			} else {
				seen[def.ID] = def.SourceFile
			}
		}

		errs = append(errs, v.validateWorkflow(prefix, def)...)
	}

	return errs
}

var validActorRuleTypes = map[string]bool{
	model.ActorRuleRole:       true,
	model.ActorRuleAssigned:   true,
	model.ActorRuleSelfAssign: true,
}

func (v *Validator) validateWorkflow(prefix string, def model.WorkflowDefinition) []VError {
	var errs []VError

	if def.ID == "" {
		errs = append(errs, VError{Path: prefix + ".id", Code: "REQUIRED", Message: "id is required"})
	}
	if def.Name == "" {
		errs = append(errs, VError{Path: prefix + ".name", Code: "REQUIRED", Message: "name is required"})
	}
	if len(def.Steps) == 0 {
		errs = append(errs, VError{Path: prefix + ".steps", Code: "REQUIRED", Message: "at least one step is required"})
		return errs
	}

	terminals := 0
	for i, s := range def.Steps {
		sp := fmt.Sprintf("%s.steps[%d]", prefix, i)

		// Ordinals must run 1..N in declaration order.
		if s.Ordinal != i+1 {
			errs = append(errs, VError{
				Path:    sp + ".ordinal",
				Code:    "ORDINAL_GAP",
				Message: fmt.Sprintf("expected ordinal %d, got %d (ordinals must be contiguous from 1)", i+1, s.Ordinal),
			})
		}
		if s.Name == "" {
			errs = append(errs, VError{Path: sp + ".name", Code: "REQUIRED", Message: "step name is required"})
		}

		if s.Actor.Type == "" {
			errs = append(errs, VError{Path: sp + ".actor.type", Code: "REQUIRED", Message: "actor rule type is required"})
		} else if !validActorRuleTypes[s.Actor.Type] {
			errs = append(errs, VError{
				Path:    sp + ".actor.type",
				Code:    "INVALID_ENUM",
				Message: fmt.Sprintf("invalid actor rule type %q", s.Actor.Type),
			})
		}
		if (s.Actor.Type == model.ActorRuleRole || s.Actor.Type == model.ActorRuleSelfAssign) && s.Actor.Role == "" {
			errs = append(errs, VError{
				Path:    sp + ".actor.role",
				Code:    "REQUIRED",
				Message: fmt.Sprintf("role is required for %q actor rules", s.Actor.Type),
			})
		}

		if s.Terminal {
			terminals++
			if i != len(def.Steps)-1 {
				errs = append(errs, VError{
					Path:    sp + ".terminal",
					Code:    "TERMINAL_NOT_LAST",
					Message: "only the final step may be terminal",
				})
			}
		}
	}

	if terminals == 0 {
		errs = append(errs, VError{
			Path:    prefix + ".steps",
			Code:    "NO_TERMINAL",
			Message: "the final step must be marked terminal",
		})
	}

	return errs
}
