package user_test

import (
	"testing"

	"github.com/Abraxas-365/custodia/pkg/iam/user"
)

func TestPasswordRoundTrip(t *testing.T) {
	u := user.User{}
	if err := u.SetPassword("hunter2hunter2"); err != nil {
		t.Fatalf("set password: %v", err)
	}
	if u.PasswordHash == "hunter2hunter2" {
		t.Fatal("password must not be stored in plaintext")
	}
	if !u.VerifyPassword("hunter2hunter2") {
		t.Fatal("correct password must verify")
	}
	if u.VerifyPassword("wrong") {
		t.Fatal("wrong password must not verify")
	}
}

func TestAddTag_Idempotent(t *testing.T) {
	u := user.User{}
	u.AddTag(user.TagWebauthnEnabled)
	u.AddTag(user.TagWebauthnEnabled)

	if len(u.Tags) != 1 {
		t.Fatalf("want one tag, got %v", u.Tags)
	}
	if !u.HasTag(user.TagWebauthnEnabled) {
		t.Fatal("tag must be present")
	}
}

func TestProjection_CopiesState(t *testing.T) {
	u := user.User{
		DisplayName: "Ada",
		Tags:        []string{"webauthn_enabled"},
		Settings:    map[string]string{"theme": "dark"},
	}

	p := u.Projection("Acme")
	if p.DisplayName != "Ada" || p.TenantName != "Acme" {
		t.Fatalf("unexpected projection: %+v", p)
	}

	// Mutating the projection must not leak back into the user.
	p.Tags[0] = "changed"
	p.Settings["theme"] = "light"
	if u.Tags[0] != "webauthn_enabled" || u.Settings["theme"] != "dark" {
		t.Fatal("projection must be a deep copy")
	}
}
