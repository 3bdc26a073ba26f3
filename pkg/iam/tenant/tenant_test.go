package tenant_test

import (
	"testing"

	"github.com/Abraxas-365/custodia/pkg/iam/tenant"
)

func TestAllowsIP_EmptyAllowlist(t *testing.T) {
	tn := tenant.Tenant{Status: tenant.StatusActive}
	if !tn.AllowsIP("203.0.113.7") {
		t.Fatal("empty allowlist must allow everything")
	}
}

func TestAllowsIP_ExactAndCIDR(t *testing.T) {
	tn := tenant.Tenant{IPAllowlist: []string{"203.0.113.7", "10.0.0.0/8"}}

	cases := []struct {
		ip   string
		want bool
	}{
		{"203.0.113.7", true},
		{"203.0.113.8", false},
		{"10.1.2.3", true},
		{"11.0.0.1", false},
		{"not-an-ip", false},
		{"", false},
	}
	for _, tc := range cases {
		if got := tn.AllowsIP(tc.ip); got != tc.want {
			t.Errorf("AllowsIP(%q) = %v, want %v", tc.ip, got, tc.want)
		}
	}
}

func TestHasDomain(t *testing.T) {
	tn := tenant.Tenant{Domains: []string{"acme.test", "acme.example"}}
	if !tn.HasDomain("acme.test") {
		t.Fatal("registered domain must match")
	}
	if tn.HasDomain("other.test") {
		t.Fatal("unregistered domain must not match")
	}
}

func TestIsActive(t *testing.T) {
	tn := tenant.Tenant{Status: tenant.StatusSuspended}
	if tn.IsActive() {
		t.Fatal("suspended tenant must not be active")
	}
}
