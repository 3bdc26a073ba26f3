package scope_test

import (
	"reflect"
	"testing"

	"github.com/Abraxas-365/custodia/pkg/iam/scope"
)

func TestParse_FullScope(t *testing.T) {
	s, err := scope.Parse("oauth:client:create")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.Domain != "oauth" || s.Resource != "client" || s.Action != "create" {
		t.Fatalf("unexpected segments: %+v", s)
	}
	if s.IsCoarse() {
		t.Fatal("full scope must not be coarse")
	}
}

func TestParse_CoarseScope(t *testing.T) {
	s, err := scope.Parse("oauth:client:")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.Domain != "oauth" || s.Resource != "client" || s.Action != "" {
		t.Fatalf("unexpected segments: %+v", s)
	}
	if !s.IsCoarse() {
		t.Fatal("trailing separator must mark the scope coarse")
	}
}

func TestParse_Malformed(t *testing.T) {
	for _, id := range []string{"", "oauth", "oauth:client", "oauth::create", "oauth:client:create:extra", ":::", "::"} {
		if _, err := scope.Parse(id); err == nil {
			t.Fatalf("expected error for %q", id)
		}
	}
}

func TestIsWellFormed(t *testing.T) {
	valid := []string{"oauth:client:create", "oauth:client:", "oauth:"}
	for _, id := range valid {
		if !scope.IsWellFormed(id) {
			t.Fatalf("%q should be well formed", id)
		}
	}

	invalid := []string{"", "oauth", "oauth:client", "oauth:client:create:", ":", "oauth::", "::create", "oauth::create"}
	for _, id := range invalid {
		if scope.IsWellFormed(id) {
			t.Fatalf("%q should be malformed", id)
		}
	}
}

func TestAncestors(t *testing.T) {
	got, err := scope.Ancestors("oauth:client:create")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []string{"oauth:", "oauth:client:", "oauth:client:create"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestAncestors_CoarseInput(t *testing.T) {
	got, err := scope.Ancestors("oauth:client:")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []string{"oauth:", "oauth:client:"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestAncestors_Malformed(t *testing.T) {
	if _, err := scope.Ancestors("oauth"); err == nil {
		t.Fatal("expected error for malformed id")
	}
}
