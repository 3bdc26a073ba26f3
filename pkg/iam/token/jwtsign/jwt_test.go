package jwtsign_test

import (
	"reflect"
	"testing"
	"time"

	"github.com/Abraxas-365/custodia/pkg/iam/token"
	"github.com/Abraxas-365/custodia/pkg/iam/token/jwtsign"
	"github.com/Abraxas-365/custodia/pkg/kernel"
)

func TestSignVerifyRoundTrip(t *testing.T) {
	svc := jwtsign.NewJWTService("test-secret", "custodia-test")

	now := time.Now().UTC().Truncate(time.Second)
	claims := token.Claims{
		TokenID:   "tok-123",
		Subject:   kernel.NewUserID("user-1"),
		Audience:  kernel.NewClientID("client-1"),
		TenantID:  kernel.NewTenantID("tenant-1"),
		Scopes:    []string{"oauth:client:", "billing:invoice:read"},
		IssuedAt:  now,
		NotBefore: now,
		ExpiresAt: now.Add(time.Hour),
	}

	signed, err := svc.Sign(claims)
	if err != nil {
		t.Fatalf("sign failed: %v", err)
	}

	verified, err := svc.Verify(signed)
	if err != nil {
		t.Fatalf("verify failed: %v", err)
	}

	if verified.AccessTokenID != "tok-123" {
		t.Fatalf("unexpected token id: %s", verified.AccessTokenID)
	}
	if verified.UserID != claims.Subject || verified.ClientID != claims.Audience || verified.TenantID != claims.TenantID {
		t.Fatalf("identity claims did not round-trip: %+v", verified)
	}
	if !reflect.DeepEqual(verified.Scopes, claims.Scopes) {
		t.Fatalf("scopes did not round-trip: %v", verified.Scopes)
	}
	if !verified.ExpiresAt.Equal(claims.ExpiresAt) {
		t.Fatalf("expiry did not round-trip: %v", verified.ExpiresAt)
	}
}

func TestVerify_WrongKey(t *testing.T) {
	signer := jwtsign.NewJWTService("secret-a", "custodia-test")
	verifier := jwtsign.NewJWTService("secret-b", "custodia-test")

	now := time.Now().UTC()
	signed, err := signer.Sign(token.Claims{
		TokenID:   "tok-123",
		Subject:   kernel.NewUserID("user-1"),
		Audience:  kernel.NewClientID("client-1"),
		TenantID:  kernel.NewTenantID("tenant-1"),
		IssuedAt:  now,
		NotBefore: now,
		ExpiresAt: now.Add(time.Hour),
	})
	if err != nil {
		t.Fatalf("sign failed: %v", err)
	}

	if _, err := verifier.Verify(signed); err == nil {
		t.Fatal("verification with the wrong key must fail")
	}
}

func TestVerify_Expired(t *testing.T) {
	svc := jwtsign.NewJWTService("test-secret", "custodia-test")

	now := time.Now().UTC()
	signed, err := svc.Sign(token.Claims{
		TokenID:   "tok-123",
		Subject:   kernel.NewUserID("user-1"),
		Audience:  kernel.NewClientID("client-1"),
		TenantID:  kernel.NewTenantID("tenant-1"),
		IssuedAt:  now.Add(-2 * time.Hour),
		NotBefore: now.Add(-2 * time.Hour),
		ExpiresAt: now.Add(-time.Hour),
	})
	if err != nil {
		t.Fatalf("sign failed: %v", err)
	}

	if _, err := svc.Verify(signed); err == nil {
		t.Fatal("verification of an expired token must fail")
	}
}

func TestVerify_Garbage(t *testing.T) {
	svc := jwtsign.NewJWTService("test-secret", "custodia-test")
	if _, err := svc.Verify("not.a.jwt"); err == nil {
		t.Fatal("verification of garbage must fail")
	}
}
