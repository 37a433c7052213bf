// Package authz resolves workflow roles for authenticated subjects and
// decides whether an actor may act on a given workflow step.
package authz

import (
	"fmt"
	"os"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/signoff-hq/signoff/model"
)

// RoleSet is the set of workflow roles held by a subject.
type RoleSet map[string]bool

// Has checks whether the set contains the given role.
func (s RoleSet) Has(role string) bool {
	return s[role]
}

// RoleEvaluator resolves the workflow roles for a request context.
type RoleEvaluator interface {
	ResolveRoles(rctx *model.RequestContext) (RoleSet, error)
	Sync() error
}

type policyFile struct {
	Groups map[string][]string `yaml:"groups"`
}

// StaticRolePolicy resolves workflow roles from a static YAML file mapping
// identity-provider groups to workflow roles.
type StaticRolePolicy struct {
	path   string
	mu     sync.RWMutex
	policy policyFile
}

// NewStaticRolePolicy creates a policy that loads group mappings from path.
func NewStaticRolePolicy(path string) (*StaticRolePolicy, error) {
	p := &StaticRolePolicy{path: path}
	if err := p.Sync(); err != nil {
		return nil, err
	}
	return p, nil
}

// ResolveRoles returns the union of workflow roles mapped from all groups in
// the request context.
func (p *StaticRolePolicy) ResolveRoles(rctx *model.RequestContext) (RoleSet, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	roles := make(RoleSet)
	for _, group := range rctx.Roles {
		for _, role := range p.policy.Groups[group] {
			roles[role] = true
		}
	}
	return roles, nil
}

// Sync reloads the policy file from disk.
func (p *StaticRolePolicy) Sync() error {
	data, err := os.ReadFile(p.path)
	if err != nil {
		return fmt.Errorf("authz: reading policy file %s: %w", p.path, err)
	}

	var pf policyFile
	if err := yaml.Unmarshal(data, &pf); err != nil {
		return fmt.Errorf("authz: parsing policy file %s: %w", p.path, err)
	}

	p.mu.Lock()
	p.policy = pf
	p.mu.Unlock()

	return nil
}

type cacheEntry struct {
	roles   RoleSet
	expires time.Time
}

// Resolver wraps a RoleEvaluator with an in-memory TTL cache keyed by subject.
type Resolver struct {
	evaluator RoleEvaluator
	ttl       time.Duration
	mu        sync.RWMutex
	cache     map[string]cacheEntry
}

// NewResolver creates a new Resolver with the given evaluator and cache TTL.
func NewResolver(evaluator RoleEvaluator, ttl time.Duration) *Resolver {
	return &Resolver{
		evaluator: evaluator,
		ttl:       ttl,
		cache:     make(map[string]cacheEntry),
	}
}

// Resolve returns the role set for the given context. Results are cached for
// the configured TTL.
func (r *Resolver) Resolve(rctx *model.RequestContext) (RoleSet, error) {
	key := rctx.SubjectID

	r.mu.RLock()
	if entry, ok := r.cache[key]; ok && time.Now().Before(entry.expires) {
		r.mu.RUnlock()
		return entry.roles, nil
	}
	r.mu.RUnlock()

	roles, err := r.evaluator.ResolveRoles(rctx)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.cache[key] = cacheEntry{roles: roles, expires: time.Now().Add(r.ttl)}
	r.mu.Unlock()

	return roles, nil
}

// Invalidate clears cached roles for the given subject.
func (r *Resolver) Invalidate(subjectID string) {
	r.mu.Lock()
	delete(r.cache, subjectID)
	r.mu.Unlock()
}
