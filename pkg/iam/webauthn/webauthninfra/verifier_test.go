package webauthninfra_test

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"crypto/x509"
	"encoding/binary"
	"encoding/json"
	"testing"

	"github.com/Abraxas-365/custodia/pkg/iam/webauthn"
	"github.com/Abraxas-365/custodia/pkg/iam/webauthn/webauthninfra"
)

const (
	rpID   = "acme.test"
	origin = "https://acme.test"
)

func newKey(t *testing.T) (*ecdsa.PrivateKey, []byte) {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	der, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		t.Fatalf("marshal key: %v", err)
	}
	return key, der
}

func clientDataJSON(t *testing.T, typ, challenge string) []byte {
	t.Helper()
	raw, err := json.Marshal(map[string]string{
		"type":      typ,
		"challenge": challenge,
		"origin":    origin,
	})
	if err != nil {
		t.Fatalf("marshal client data: %v", err)
	}
	return raw
}

func authenticatorData(signCount uint32) []byte {
	data := make([]byte, 37)
	hash := sha256.Sum256([]byte(rpID))
	copy(data, hash[:])
	data[32] = 0x01 // user present
	binary.BigEndian.PutUint32(data[33:37], signCount)
	return data
}

func signAssertion(t *testing.T, key *ecdsa.PrivateKey, authData, clientData []byte) []byte {
	t.Helper()
	clientHash := sha256.Sum256(clientData)
	digest := sha256.Sum256(append(append([]byte{}, authData...), clientHash[:]...))
	sig, err := ecdsa.SignASN1(rand.Reader, key, digest[:])
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return sig
}

func TestNoneAttestationVerifier(t *testing.T) {
	_, pub := newKey(t)
	v := webauthninfra.NewNoneAttestationVerifier()

	attested, err := v.VerifyAttestation(context.Background(), "challenge-1", origin, webauthn.AttestationResponse{
		CredentialID:   "cred-1",
		ClientDataJSON: clientDataJSON(t, "webauthn.create", "challenge-1"),
		PublicKey:      pub,
	})
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if attested.ID != "cred-1" {
		t.Fatalf("unexpected credential id %q", attested.ID)
	}
}

func TestNoneAttestationVerifier_ChallengeMismatch(t *testing.T) {
	_, pub := newKey(t)
	v := webauthninfra.NewNoneAttestationVerifier()

	_, err := v.VerifyAttestation(context.Background(), "challenge-1", origin, webauthn.AttestationResponse{
		CredentialID:   "cred-1",
		ClientDataJSON: clientDataJSON(t, "webauthn.create", "challenge-other"),
		PublicKey:      pub,
	})
	if err == nil {
		t.Fatal("challenge mismatch must fail")
	}
}

func TestNoneAttestationVerifier_BadKey(t *testing.T) {
	v := webauthninfra.NewNoneAttestationVerifier()

	_, err := v.VerifyAttestation(context.Background(), "challenge-1", origin, webauthn.AttestationResponse{
		CredentialID:   "cred-1",
		ClientDataJSON: clientDataJSON(t, "webauthn.create", "challenge-1"),
		PublicKey:      []byte("not a key"),
	})
	if err == nil {
		t.Fatal("garbage key must fail")
	}
}

func TestES256AssertionVerifier(t *testing.T) {
	key, pub := newKey(t)
	v := webauthninfra.NewES256AssertionVerifier(rpID)

	cred := &webauthn.Credential{ID: "cred-1", PublicKey: pub, SignCount: 3}
	clientData := clientDataJSON(t, "webauthn.get", "challenge-1")
	authData := authenticatorData(4)

	signCount, err := v.VerifyAssertion(context.Background(), "challenge-1", origin, cred, webauthn.AssertionResponse{
		CredentialID:      "cred-1",
		ClientDataJSON:    clientData,
		AuthenticatorData: authData,
		Signature:         signAssertion(t, key, authData, clientData),
	})
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if signCount != 4 {
		t.Fatalf("want sign count 4, got %d", signCount)
	}
}

func TestES256AssertionVerifier_WrongKey(t *testing.T) {
	_, pub := newKey(t)
	other, _ := newKey(t)
	v := webauthninfra.NewES256AssertionVerifier(rpID)

	cred := &webauthn.Credential{ID: "cred-1", PublicKey: pub}
	clientData := clientDataJSON(t, "webauthn.get", "challenge-1")
	authData := authenticatorData(1)

	_, err := v.VerifyAssertion(context.Background(), "challenge-1", origin, cred, webauthn.AssertionResponse{
		ClientDataJSON:    clientData,
		AuthenticatorData: authData,
		Signature:         signAssertion(t, other, authData, clientData),
	})
	if err == nil {
		t.Fatal("signature from a different key must fail")
	}
}

func TestES256AssertionVerifier_CounterRegression(t *testing.T) {
	key, pub := newKey(t)
	v := webauthninfra.NewES256AssertionVerifier(rpID)

	cred := &webauthn.Credential{ID: "cred-1", PublicKey: pub, SignCount: 10}
	clientData := clientDataJSON(t, "webauthn.get", "challenge-1")
	authData := authenticatorData(10)

	_, err := v.VerifyAssertion(context.Background(), "challenge-1", origin, cred, webauthn.AssertionResponse{
		ClientDataJSON:    clientData,
		AuthenticatorData: authData,
		Signature:         signAssertion(t, key, authData, clientData),
	})
	if err == nil {
		t.Fatal("non-advancing counter must fail")
	}
}

func TestES256AssertionVerifier_WrongRPHash(t *testing.T) {
	key, pub := newKey(t)
	v := webauthninfra.NewES256AssertionVerifier("other.test")

	cred := &webauthn.Credential{ID: "cred-1", PublicKey: pub}
	clientData := clientDataJSON(t, "webauthn.get", "challenge-1")
	authData := authenticatorData(1)

	_, err := v.VerifyAssertion(context.Background(), "challenge-1", origin, cred, webauthn.AssertionResponse{
		ClientDataJSON:    clientData,
		AuthenticatorData: authData,
		Signature:         signAssertion(t, key, authData, clientData),
	})
	if err == nil {
		t.Fatal("rp id hash mismatch must fail")
	}
}
