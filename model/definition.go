package model

// Actor rule types. The rule type determines how the authorized actor for a
// step is resolved at decision time.
const (
	// ActorRuleRole grants any actor holding the named role.
	ActorRuleRole = "role"
	// ActorRuleAssigned grants only the specific actor stored in the
	// record's AssignedActors map for that ordinal.
	ActorRuleAssigned = "assigned"
	// ActorRuleSelfAssign lets any holder of the named role claim the step
	// (first claim wins); afterwards it behaves like ActorRuleAssigned.
	ActorRuleSelfAssign = "self_assign"
)

// WorkflowDefinition describes the ordered steps of one workflow type, e.g.
// an annual-leave approval chain or the regulatory-assessment lifecycle.
// Definitions are static configuration loaded once at startup.
type WorkflowDefinition struct {
	ID    string           `yaml:"id"    json:"id"`
	Name  string           `yaml:"name"  json:"name"`
	Steps []StepDefinition `yaml:"steps" json:"steps"`

	// Checksum and SourceFile are computed at load time, not part of the YAML.
	Checksum   string `yaml:"-" json:"-"`
	SourceFile string `yaml:"-" json:"-"`
}

// StepDefinition describes a single step in a workflow chain. Ordinals are
// 1-based and contiguous; exactly one step is terminal and it is the last.
type StepDefinition struct {
	Ordinal  int       `yaml:"ordinal"  json:"ordinal"`
	Name     string    `yaml:"name"     json:"name"`
	Actor    ActorRule `yaml:"actor"    json:"actor"`
	Terminal bool      `yaml:"terminal" json:"terminal,omitempty"`
}

// ActorRule is the declarative rule for resolving a step's authorized actor.
// Role is required for the "role" and "self_assign" types.
type ActorRule struct {
	Type string `yaml:"type" json:"type"`
	Role string `yaml:"role" json:"role,omitempty"`
}

// StepCount returns the number of steps in the definition.
func (w WorkflowDefinition) StepCount() int {
	return len(w.Steps)
}

// Step returns the step with the given 1-based ordinal.
func (w WorkflowDefinition) Step(ordinal int) (StepDefinition, bool) {
	if ordinal < 1 || ordinal > len(w.Steps) {
		return StepDefinition{}, false
	}
	return w.Steps[ordinal-1], true
}
