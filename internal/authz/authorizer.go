package authz

import (
	"fmt"

	"github.com/signoff-hq/signoff/model"
)

// Grant is the outcome of a successful authorization check. SelfAssign is set
// when the actor is claiming a previously unassigned self-assignment step; the
// caller must persist the claim atomically with the decision.
type Grant struct {
	SelfAssign bool
}

// RoleResolver is the subset of Resolver the authorizer needs.
type RoleResolver interface {
	Resolve(rctx *model.RequestContext) (RoleSet, error)
}

// StepAuthorizer decides whether an actor may decide a workflow step,
// according to the step's declarative actor rule.
type StepAuthorizer struct {
	roles RoleResolver
}

// NewStepAuthorizer creates a StepAuthorizer backed by the given role resolver.
func NewStepAuthorizer(roles RoleResolver) *StepAuthorizer {
	return &StepAuthorizer{roles: roles}
}

// Authorize checks whether the subject in rctx may decide the given step of
// the given record. It returns NOT_AUTHORIZED when the rule denies the actor,
// never NOT_FOUND: existence checks happen before authorization.
func (a *StepAuthorizer) Authorize(rctx *model.RequestContext, record *model.WorkflowRecord, step model.StepDefinition) (Grant, error) {
	switch step.Actor.Type {
	case model.ActorRuleRole:
		held, err := a.roles.Resolve(rctx)
		if err != nil {
			return Grant{}, fmt.Errorf("resolving roles: %w", err)
		}
		if !held.Has(step.Actor.Role) {
			return Grant{}, model.NewNotAuthorizedError(
				fmt.Sprintf("step %d requires role %q", step.Ordinal, step.Actor.Role))
		}
		return Grant{}, nil

	case model.ActorRuleAssigned:
		assigned, ok := record.AssignedActors[step.Ordinal]
		if !ok || assigned == "" {
			return Grant{}, model.NewNotAuthorizedError(
				fmt.Sprintf("step %d has no assigned actor", step.Ordinal))
		}
		if assigned != rctx.SubjectID {
			return Grant{}, model.NewNotAuthorizedError(
				fmt.Sprintf("step %d is assigned to another actor", step.Ordinal))
		}
		return Grant{}, nil

	case model.ActorRuleSelfAssign:
		// Once claimed, the step behaves like an assigned step.
		if assigned, ok := record.AssignedActors[step.Ordinal]; ok && assigned != "" {
			if assigned != rctx.SubjectID {
				return Grant{}, model.NewNotAuthorizedError(
					fmt.Sprintf("step %d was already claimed by another actor", step.Ordinal))
			}
			return Grant{}, nil
		}
		held, err := a.roles.Resolve(rctx)
		if err != nil {
			return Grant{}, fmt.Errorf("resolving roles: %w", err)
		}
		if !held.Has(step.Actor.Role) {
			return Grant{}, model.NewNotAuthorizedError(
				fmt.Sprintf("claiming step %d requires role %q", step.Ordinal, step.Actor.Role))
		}
		return Grant{SelfAssign: true}, nil

	default:
		return Grant{}, model.NewInvalidDefinitionError(
			fmt.Sprintf("step %d has unknown actor rule type %q", step.Ordinal, step.Actor.Type))
	}
}
