package user

import (
	"net/http"
	"time"

	"github.com/Abraxas-365/custodia/pkg/errx"
	"github.com/Abraxas-365/custodia/pkg/kernel"
	"golang.org/x/crypto/bcrypt"
)

// Status of a user within its tenant.
type Status string

const (
	StatusActive   Status = "ACTIVE"
	StatusInactive Status = "INACTIVE"
)

// TagWebauthnEnabled marks a user who completed at least one WebAuthn
// registration ceremony.
const TagWebauthnEnabled = "webauthn_enabled"

// User is an identity scoped to a tenant. Scopes are the tenant-assignment
// level grants; a token's scope snapshot is checked against these on every
// request so a tenant-side revocation takes effect before the token expires.
type User struct {
	ID           kernel.UserID     `db:"id" json:"id"`
	TenantID     kernel.TenantID   `db:"tenant_id" json:"tenant_id"`
	Email        string            `db:"email" json:"email"`
	DisplayName  string            `db:"display_name" json:"display_name"`
	PasswordHash string            `db:"password_hash" json:"-"`
	Scopes       []string          `db:"scopes" json:"scopes"`
	Tags         []string          `db:"tags" json:"tags"`
	Settings     map[string]string `db:"settings" json:"settings"`
	Status       Status            `db:"status" json:"status"`
	CreatedAt    time.Time         `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time         `db:"updated_at" json:"updated_at"`
}

// IsActive reports whether the user may authenticate.
func (u *User) IsActive() bool {
	return u.Status == StatusActive
}

// HasTag reports whether the user carries the given tag.
func (u *User) HasTag(tag string) bool {
	for _, t := range u.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// AddTag adds a tag if not already present.
func (u *User) AddTag(tag string) {
	if !u.HasTag(tag) {
		u.Tags = append(u.Tags, tag)
	}
}

// SetPassword hashes and stores the password.
func (u *User) SetPassword(plaintext string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(plaintext), bcrypt.DefaultCost)
	if err != nil {
		return errx.Wrap(err, "failed to hash password", errx.TypeInternal)
	}
	u.PasswordHash = string(hash)
	return nil
}

// VerifyPassword checks a plaintext password against the stored hash.
func (u *User) VerifyPassword(plaintext string) bool {
	return bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(plaintext)) == nil
}

// Projection builds the session view of the user.
func (u *User) Projection(tenantName string) *kernel.SessionProjection {
	tags := make([]string, len(u.Tags))
	copy(tags, u.Tags)

	settings := make(map[string]string, len(u.Settings))
	for k, v := range u.Settings {
		settings[k] = v
	}

	return &kernel.SessionProjection{
		DisplayName: u.DisplayName,
		TenantName:  tenantName,
		Tags:        tags,
		Settings:    settings,
	}
}

// ============================================================================
// Error Registry
// ============================================================================

var ErrRegistry = errx.NewRegistry("USER")

var (
	CodeUserNotFound = ErrRegistry.Register("NOT_FOUND", errx.TypeNotFound, http.StatusNotFound, "User not found")
	CodeUserInactive = ErrRegistry.Register("INACTIVE", errx.TypeAuthorization, http.StatusUnauthorized, "User is inactive")
)

func ErrUserNotFound() *errx.Error {
	return ErrRegistry.New(CodeUserNotFound)
}

func ErrUserInactive() *errx.Error {
	return ErrRegistry.New(CodeUserInactive)
}
