package webauthn

import (
	"context"
	"time"

	"github.com/Abraxas-365/custodia/pkg/kernel"
)

// ChallengeRepository persists ceremony challenges keyed by their encoded
// value. Consumed and expired challenges are hard deleted by the sweeper.
type ChallengeRepository interface {
	Save(ctx context.Context, ch Challenge) error
	FindByValue(ctx context.Context, value string) (*Challenge, error)
	Delete(ctx context.Context, value string) error
	DeleteExpired(ctx context.Context, now time.Time) (int, error)
}

// CredentialRepository persists registered authenticator credentials.
type CredentialRepository interface {
	Save(ctx context.Context, cr Credential) error
	FindByID(ctx context.Context, id string) (*Credential, error)
	FindByUser(ctx context.Context, userID kernel.UserID, tenantID kernel.TenantID) ([]*Credential, error)
}

// AttestationResponse is the browser's answer to a registration challenge,
// opaque to this package.
type AttestationResponse struct {
	CredentialID      string `json:"credential_id"`
	ClientDataJSON    []byte `json:"client_data_json"`
	AttestationObject []byte `json:"attestation_object"`

	// PublicKey is the credential public key in PKIX form, supplied by
	// clients using none-attestation where the browser already unpacked
	// the attestation object.
	PublicKey []byte `json:"public_key"`
}

// AttestedCredential is what attestation verification extracts.
type AttestedCredential struct {
	ID        string
	PublicKey []byte
	SignCount uint32
}

// AttestationVerifier checks a registration response against the challenge
// and expected origin. Cryptographic verification is delegated here; the
// ceremony service owns only lifecycle and persistence.
type AttestationVerifier interface {
	VerifyAttestation(ctx context.Context, challenge, origin string, resp AttestationResponse) (*AttestedCredential, error)
}

// AssertionResponse is the browser's answer to an authentication challenge.
type AssertionResponse struct {
	CredentialID      string `json:"credential_id"`
	ClientDataJSON    []byte `json:"client_data_json"`
	AuthenticatorData []byte `json:"authenticator_data"`
	Signature         []byte `json:"signature"`
}

// AssertionVerifier checks an authentication response against the stored
// credential. It returns the authenticator's new signature counter.
type AssertionVerifier interface {
	VerifyAssertion(ctx context.Context, challenge, origin string, cred *Credential, resp AssertionResponse) (uint32, error)
}
