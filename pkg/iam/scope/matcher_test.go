package scope_test

import (
	"testing"

	"github.com/Abraxas-365/custodia/pkg/iam/scope"
)

func TestSatisfies_ExactMatch(t *testing.T) {
	if !scope.Satisfies([]string{"oauth:user:view"}, "oauth:user:view") {
		t.Fatal("exact match must satisfy")
	}
}

func TestSatisfies_CoarseGrants(t *testing.T) {
	if !scope.Satisfies([]string{"oauth:client:"}, "oauth:client:create") {
		t.Fatal("resource-level coarse grant must satisfy actions under it")
	}
	if !scope.Satisfies([]string{"oauth:"}, "oauth:client:create") {
		t.Fatal("domain-level coarse grant must satisfy everything under the domain")
	}
	if !scope.Satisfies([]string{"oauth:"}, "oauth:token:revoke") {
		t.Fatal("domain-level coarse grant must satisfy every resource")
	}
}

func TestSatisfies_SiblingAction(t *testing.T) {
	if scope.Satisfies([]string{"oauth:client:list"}, "oauth:client:create") {
		t.Fatal("sibling action must not satisfy")
	}
}

func TestSatisfies_NotLooseSubstring(t *testing.T) {
	// "oauth:cli" is a byte prefix of the required scope but not a
	// well-formed grant; prefix matching only applies on segment boundaries.
	if scope.Satisfies([]string{"oauth:cli"}, "oauth:client:create") {
		t.Fatal("non-boundary prefix must not satisfy")
	}
	if scope.Satisfies([]string{"oauth:client"}, "oauth:client:create") {
		t.Fatal("two-segment id without trailing separator is malformed and must not satisfy")
	}
}

func TestSatisfies_CaseSensitive(t *testing.T) {
	if scope.Satisfies([]string{"OAuth:client:"}, "oauth:client:create") {
		t.Fatal("matching must be case-sensitive")
	}
}

func TestSatisfies_EmptyTokenScopes(t *testing.T) {
	if scope.Satisfies(nil, "oauth:client:create") {
		t.Fatal("empty token scopes must never satisfy")
	}
	if scope.Satisfies([]string{}, "oauth:client:create") {
		t.Fatal("empty token scopes must never satisfy")
	}
}

func TestSatisfies_EmptyRequired(t *testing.T) {
	if scope.Satisfies([]string{"oauth:"}, "") {
		t.Fatal("empty required scope must never be satisfied")
	}
}

func TestSatisfies_MalformedTokenScopeIsSkipped(t *testing.T) {
	// The malformed grant neither matches nor blocks the valid one after it.
	scopes := []string{"oauth:cli", "oauth:client:"}
	if !scope.Satisfies(scopes, "oauth:client:create") {
		t.Fatal("valid grant after a malformed one must still satisfy")
	}

	if scope.Satisfies([]string{"not-a-scope"}, "oauth:client:create") {
		t.Fatal("malformed grant alone must not satisfy")
	}
}

func TestSatisfies_Idempotent(t *testing.T) {
	scopes := []string{"oauth:client:", "billing:invoice:read"}
	first := scope.Satisfies(scopes, "oauth:client:delete")
	second := scope.Satisfies(scopes, "oauth:client:delete")
	if first != second || !first {
		t.Fatalf("repeated calls must agree: %v vs %v", first, second)
	}
}

func TestSatisfiesAny(t *testing.T) {
	scopes := []string{"billing:invoice:read"}
	if !scope.SatisfiesAny(scopes, []string{"oauth:client:create", "billing:invoice:read"}) {
		t.Fatal("one satisfied requirement is enough")
	}
	if scope.SatisfiesAny(scopes, []string{"oauth:client:create"}) {
		t.Fatal("no requirement satisfied")
	}
	if scope.SatisfiesAny(scopes, nil) {
		t.Fatal("empty requirement list is never satisfied")
	}
}
