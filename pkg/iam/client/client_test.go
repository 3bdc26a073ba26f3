package client_test

import (
	"testing"

	"github.com/Abraxas-365/custodia/pkg/iam/client"
)

func TestVerifySecret(t *testing.T) {
	cl := client.Client{SecretHash: client.HashSecret("s3cret", "pepper")}

	if !cl.VerifySecret("s3cret", "pepper") {
		t.Fatal("correct secret must verify")
	}
	if cl.VerifySecret("wrong", "pepper") {
		t.Fatal("wrong secret must not verify")
	}
	if cl.VerifySecret("s3cret", "other-pepper") {
		t.Fatal("secret hashed under a different pepper must not verify")
	}
}

func TestHashSecret_Deterministic(t *testing.T) {
	a := client.HashSecret("s3cret", "pepper")
	b := client.HashSecret("s3cret", "pepper")
	if a != b {
		t.Fatal("same secret and pepper must hash identically")
	}
	if a == client.HashSecret("s3cret", "pepper2") {
		t.Fatal("pepper must change the hash")
	}
}

func TestAllowsGrant(t *testing.T) {
	cl := client.Client{GrantTypes: []client.GrantType{client.GrantPassword, client.GrantRefreshToken}}

	if !cl.AllowsGrant(client.GrantPassword) {
		t.Fatal("registered grant must be allowed")
	}
	if cl.AllowsGrant(client.GrantClientCredentials) {
		t.Fatal("unregistered grant must not be allowed")
	}
}
