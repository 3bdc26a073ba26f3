package scope

import (
	"net/http"
	"strings"

	"github.com/Abraxas-365/custodia/pkg/errx"
)

// Separator delimits the segments of a scope id.
const Separator = ":"

// segmentCount is the number of segments in a fully qualified scope id.
const segmentCount = 3

// Scope is a capability string following the "domain:resource:action"
// grammar. A trailing separator denotes a coarse grant covering every action
// under the prefix (e.g. "oauth:client:" covers "oauth:client:create").
type Scope struct {
	ID       string `db:"id" json:"id"`
	Name     string `db:"name" json:"name"`
	Domain   string `db:"domain" json:"domain"`
	Resource string `db:"resource" json:"resource"`
	Action   string `db:"action" json:"action"`
}

// IsCoarse reports whether the scope is a coarse (trailing-separator) grant.
func (s Scope) IsCoarse() bool {
	return strings.HasSuffix(s.ID, Separator)
}

// ============================================================================
// Error Registry
// ============================================================================

var ErrRegistry = errx.NewRegistry("SCOPE")

var (
	CodeMalformedScope   = ErrRegistry.Register("MALFORMED_SCOPE", errx.TypeValidation, http.StatusBadRequest, "Malformed scope id")
	CodeEmptyRequirement = ErrRegistry.Register("EMPTY_REQUIREMENT", errx.TypeConfiguration, http.StatusUnauthorized, "Operation declared with no acceptable scopes")
)

func ErrMalformedScope(id string) *errx.Error {
	return ErrRegistry.New(CodeMalformedScope).WithDetail("scope", id)
}

func ErrEmptyRequirement(target, operation string) *errx.Error {
	return ErrRegistry.New(CodeEmptyRequirement).
		WithDetail("target", target).
		WithDetail("operation", operation)
}

// ============================================================================
// Grammar
// ============================================================================

// Parse splits a scope id into its named segments. Coarse ids leave the
// truncated segments empty.
func Parse(id string) (Scope, error) {
	if !IsWellFormed(id) {
		return Scope{}, ErrMalformedScope(id)
	}

	s := Scope{ID: id}
	parts := strings.Split(strings.TrimSuffix(id, Separator), Separator)
	switch len(parts) {
	case 3:
		s.Action = parts[2]
		fallthrough
	case 2:
		s.Resource = parts[1]
		fallthrough
	case 1:
		s.Domain = parts[0]
	}
	return s, nil
}

// IsWellFormed reports whether id is a valid scope under the grammar: either
// a fully qualified "domain:resource:action" id, or a coarse grant of one or
// two non-empty segments ending in the separator ("domain:",
// "domain:resource:"). Anything else, including the empty string and ids
// with empty segments, is malformed.
func IsWellFormed(id string) bool {
	if id == "" {
		return false
	}

	if strings.HasSuffix(id, Separator) {
		parts := strings.Split(strings.TrimSuffix(id, Separator), Separator)
		if len(parts) >= segmentCount {
			return false
		}
		for _, p := range parts {
			if p == "" {
				return false
			}
		}
		return true
	}

	parts := strings.Split(id, Separator)
	if len(parts) != segmentCount {
		return false
	}
	for _, p := range parts {
		if p == "" {
			return false
		}
	}
	return true
}

// Ancestors returns every coarse grant covering id, from the widest to the
// narrowest, followed by id itself. For "oauth:client:create" it returns
// ["oauth:", "oauth:client:", "oauth:client:create"].
//
// Both the provisioning tooling and the matcher derive coarse grants from
// this single function so the two never disagree on the grammar.
func Ancestors(id string) ([]string, error) {
	if !IsWellFormed(id) {
		return nil, ErrMalformedScope(id)
	}

	trimmed := strings.TrimSuffix(id, Separator)
	parts := strings.Split(trimmed, Separator)

	out := make([]string, 0, len(parts))
	for i := 1; i < len(parts); i++ {
		out = append(out, strings.Join(parts[:i], Separator)+Separator)
	}
	out = append(out, id)
	return out, nil
}
