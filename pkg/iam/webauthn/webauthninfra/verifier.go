package webauthninfra

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Abraxas-365/custodia/pkg/iam/webauthn"
)

// clientData is the browser's clientDataJSON payload.
type clientData struct {
	Type      string `json:"type"`
	Challenge string `json:"challenge"`
	Origin    string `json:"origin"`
}

func parseClientData(raw []byte, wantType, wantChallenge, wantOrigin string) error {
	var cd clientData
	if err := json.Unmarshal(raw, &cd); err != nil {
		return fmt.Errorf("client data: %w", err)
	}
	if cd.Type != wantType {
		return fmt.Errorf("client data: want type %q, got %q", wantType, cd.Type)
	}
	if cd.Challenge != wantChallenge {
		return errors.New("client data: challenge mismatch")
	}
	if cd.Origin != wantOrigin {
		return fmt.Errorf("client data: origin %q not allowed", cd.Origin)
	}
	return nil
}

func parseES256PublicKey(der []byte) (*ecdsa.PublicKey, error) {
	parsed, err := x509.ParsePKIXPublicKey(der)
	if err != nil {
		return nil, fmt.Errorf("public key: %w", err)
	}
	key, ok := parsed.(*ecdsa.PublicKey)
	if !ok {
		return nil, errors.New("public key: not an ECDSA key")
	}
	return key, nil
}

// NoneAttestationVerifier accepts none-attestation registrations: the
// challenge and origin in clientDataJSON must match and the supplied public
// key must parse as ES256, but no authenticator certificate chain is
// checked.
type NoneAttestationVerifier struct{}

func NewNoneAttestationVerifier() *NoneAttestationVerifier {
	return &NoneAttestationVerifier{}
}

func (v *NoneAttestationVerifier) VerifyAttestation(_ context.Context, challenge, origin string, resp webauthn.AttestationResponse) (*webauthn.AttestedCredential, error) {
	if err := parseClientData(resp.ClientDataJSON, "webauthn.create", challenge, origin); err != nil {
		return nil, err
	}
	if len(resp.PublicKey) == 0 {
		return nil, errors.New("attestation: missing public key")
	}
	if _, err := parseES256PublicKey(resp.PublicKey); err != nil {
		return nil, err
	}
	return &webauthn.AttestedCredential{
		ID:        resp.CredentialID,
		PublicKey: resp.PublicKey,
		SignCount: 0,
	}, nil
}

// ES256AssertionVerifier checks authentication assertions: clientDataJSON
// binding, RP ID hash, ES256 signature over authenticatorData plus the
// client data hash, and a strictly increasing signature counter.
type ES256AssertionVerifier struct {
	rpID string
}

func NewES256AssertionVerifier(rpID string) *ES256AssertionVerifier {
	return &ES256AssertionVerifier{rpID: rpID}
}

func (v *ES256AssertionVerifier) VerifyAssertion(_ context.Context, challenge, origin string, cred *webauthn.Credential, resp webauthn.AssertionResponse) (uint32, error) {
	if err := parseClientData(resp.ClientDataJSON, "webauthn.get", challenge, origin); err != nil {
		return 0, err
	}

	// authenticatorData: 32-byte RP ID hash, 1 flag byte, 4-byte counter.
	if len(resp.AuthenticatorData) < 37 {
		return 0, errors.New("assertion: authenticator data too short")
	}
	rpHash := sha256.Sum256([]byte(v.rpID))
	if !bytes.Equal(resp.AuthenticatorData[:32], rpHash[:]) {
		return 0, errors.New("assertion: rp id hash mismatch")
	}

	key, err := parseES256PublicKey(cred.PublicKey)
	if err != nil {
		return 0, err
	}

	clientHash := sha256.Sum256(resp.ClientDataJSON)
	signed := sha256.Sum256(append(append([]byte{}, resp.AuthenticatorData...), clientHash[:]...))
	if !ecdsa.VerifyASN1(key, signed[:], resp.Signature) {
		return 0, errors.New("assertion: signature verification failed")
	}

	signCount := binary.BigEndian.Uint32(resp.AuthenticatorData[33:37])
	// A counter that fails to advance past the stored value points at a
	// cloned authenticator. Authenticators without a counter report zero.
	if signCount != 0 && signCount <= cred.SignCount {
		return 0, errors.New("assertion: signature counter did not advance")
	}
	return signCount, nil
}

