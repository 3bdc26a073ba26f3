package scope

import (
	"fmt"
	"sort"
)

// requirementKey identifies a protected operation.
type requirementKey struct {
	Target    string
	Operation string
}

// Registry maps every protected (target, operation) pair to the set of scope
// ids that satisfy it. It is assembled once at boot through a Builder and
// immutable afterward, which is what makes concurrent lock-free reads safe.
type Registry struct {
	requirements map[requirementKey][]string
}

// RequirementsFor returns the acceptable scope ids for the operation, or nil
// when the operation was never declared. Callers must treat nil as a
// configuration defect and fail closed.
func (r *Registry) RequirementsFor(target, operation string) []string {
	reqs, ok := r.requirements[requirementKey{Target: target, Operation: operation}]
	if !ok {
		return nil
	}
	// Defensive copy; the registry's own slice must stay immutable.
	out := make([]string, len(reqs))
	copy(out, reqs)
	return out
}

// Operations returns every declared (target, operation) pair, sorted. Useful
// for provisioning tooling and boot-time diagnostics.
func (r *Registry) Operations() []string {
	out := make([]string, 0, len(r.requirements))
	for k := range r.requirements {
		out = append(out, fmt.Sprintf("%s/%s", k.Target, k.Operation))
	}
	sort.Strings(out)
	return out
}

// Len returns the number of declared operations.
func (r *Registry) Len() int {
	return len(r.requirements)
}

// ============================================================================
// Builder
// ============================================================================

// Builder collects the route layer's (target, operation) → scopes
// declarations during startup. Build validates and freezes them.
type Builder struct {
	requirements map[requirementKey][]string
	errs         []error
}

// NewBuilder creates an empty registry builder.
func NewBuilder() *Builder {
	return &Builder{requirements: make(map[requirementKey][]string)}
}

// Declare records the scopes that satisfy an operation. Declaring the same
// operation twice merges the scope sets. Malformed or missing scopes are
// recorded and surface as errors from Build.
func (b *Builder) Declare(target, operation string, scopes ...string) *Builder {
	key := requirementKey{Target: target, Operation: operation}

	if len(scopes) == 0 {
		b.errs = append(b.errs, ErrEmptyRequirement(target, operation))
		return b
	}

	for _, id := range scopes {
		if !IsWellFormed(id) {
			b.errs = append(b.errs, ErrMalformedScope(id).
				WithDetail("target", target).
				WithDetail("operation", operation))
			continue
		}
		if !contains(b.requirements[key], id) {
			b.requirements[key] = append(b.requirements[key], id)
		}
	}
	return b
}

// Build validates every declaration and returns the frozen registry. Any
// empty or malformed declaration fails the build; a protected operation
// without a valid requirement is a deployment bug, not an open endpoint.
func (b *Builder) Build() (*Registry, error) {
	if len(b.errs) > 0 {
		return nil, b.errs[0]
	}

	for key, reqs := range b.requirements {
		if len(reqs) == 0 {
			return nil, ErrEmptyRequirement(key.Target, key.Operation)
		}
	}

	frozen := make(map[requirementKey][]string, len(b.requirements))
	for key, reqs := range b.requirements {
		cp := make([]string, len(reqs))
		copy(cp, reqs)
		frozen[key] = cp
	}

	return &Registry{requirements: frozen}, nil
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
