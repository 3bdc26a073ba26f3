package webauthn

import (
	"crypto/rand"
	"encoding/base64"
	"net/http"
	"time"

	"github.com/Abraxas-365/custodia/pkg/errx"
	"github.com/Abraxas-365/custodia/pkg/kernel"
)

// Ceremony names the two WebAuthn flows.
type Ceremony string

const (
	CeremonyRegistration   Ceremony = "registration"
	CeremonyAuthentication Ceremony = "authentication"
)

// ChallengeStatus tracks single use. A completed challenge is kept until the
// sweeper collects it so replays fail loudly instead of looking like a miss.
type ChallengeStatus string

const (
	ChallengePending   ChallengeStatus = "PENDING"
	ChallengeCompleted ChallengeStatus = "COMPLETED"
)

// CredentialStatus is a soft flag; revoked credentials stay on record.
type CredentialStatus string

const (
	CredentialActive  CredentialStatus = "ACTIVE"
	CredentialRevoked CredentialStatus = "REVOKED"
)

// Challenge is one outstanding ceremony nonce. The encoded challenge value
// is the primary key; a user may hold several pending challenges at once,
// one per device mid-ceremony.
type Challenge struct {
	Value     string          `db:"value" json:"value"`
	UserID    kernel.UserID   `db:"user_id" json:"user_id"`
	TenantID  kernel.TenantID `db:"tenant_id" json:"tenant_id"`
	Ceremony  Ceremony        `db:"ceremony" json:"ceremony"`
	Status    ChallengeStatus `db:"status" json:"status"`
	ExpiresAt time.Time       `db:"expires_at" json:"expires_at"`
	CreatedAt time.Time       `db:"created_at" json:"created_at"`
}

func (c *Challenge) IsExpired(now time.Time) bool {
	return now.After(c.ExpiresAt)
}

// IsUsable reports whether the challenge can still complete a ceremony.
func (c *Challenge) IsUsable(now time.Time) bool {
	return c.Status == ChallengePending && !c.IsExpired(now)
}

// Credential is a registered authenticator public key, bound to the origin
// it was registered from.
type Credential struct {
	ID         string           `db:"id" json:"id"`
	UserID     kernel.UserID    `db:"user_id" json:"user_id"`
	TenantID   kernel.TenantID  `db:"tenant_id" json:"tenant_id"`
	PublicKey  []byte           `db:"public_key" json:"-"`
	SignCount  uint32           `db:"sign_count" json:"sign_count"`
	Origin     string           `db:"origin" json:"origin"`
	Label      string           `db:"label" json:"label"`
	Status     CredentialStatus `db:"status" json:"status"`
	CreatedAt  time.Time        `db:"created_at" json:"created_at"`
	LastUsedAt time.Time        `db:"last_used_at" json:"last_used_at"`
}

func (c *Credential) IsActive() bool {
	return c.Status == CredentialActive
}

// RegistrationOptions is the payload handed to the browser to start a
// registration ceremony.
type RegistrationOptions struct {
	Challenge          string   `json:"challenge"`
	RPID               string   `json:"rp_id"`
	RPName             string   `json:"rp_name"`
	UserID             string   `json:"user_id"`
	UserName           string   `json:"user_name"`
	UserDisplayName    string   `json:"user_display_name"`
	ExcludeCredentials []string `json:"exclude_credentials"`
	TimeoutMillis      int64    `json:"timeout"`
}

// AuthenticationOptions is the payload handed to the browser to start an
// authentication ceremony.
type AuthenticationOptions struct {
	Challenge        string   `json:"challenge"`
	RPID             string   `json:"rp_id"`
	AllowCredentials []string `json:"allow_credentials"`
	TimeoutMillis    int64    `json:"timeout"`
}

// NewChallengeValue returns a fresh base64url challenge nonce.
func NewChallengeValue() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// ============================================================================
// Error Registry
// ============================================================================

var ErrRegistry = errx.NewRegistry("WEBAUTHN")

var (
	CodeMissingParameters      = ErrRegistry.Register("MISSING_PARAMETERS", errx.TypeValidation, http.StatusBadRequest, "Missing required ceremony parameters")
	CodeMissingActiveChallenge = ErrRegistry.Register("MISSING_ACTIVE_CHALLENGE", errx.TypeAuthorization, http.StatusUnauthorized, "No pending challenge for this ceremony")
	CodeInvalidCredential      = ErrRegistry.Register("INVALID_CREDENTIAL", errx.TypeAuthorization, http.StatusUnauthorized, "Credential is unknown, revoked or failed verification")
	CodeNoCredentials          = ErrRegistry.Register("NO_CREDENTIALS", errx.TypeValidation, http.StatusBadRequest, "User has no active credentials")
)

func ErrMissingParameters(field string) *errx.Error {
	return ErrRegistry.New(CodeMissingParameters).WithDetail("field", field)
}

func ErrMissingActiveChallenge() *errx.Error {
	return ErrRegistry.New(CodeMissingActiveChallenge)
}

func ErrInvalidCredential() *errx.Error {
	return ErrRegistry.New(CodeInvalidCredential)
}

func ErrNoCredentials() *errx.Error {
	return ErrRegistry.New(CodeNoCredentials)
}
