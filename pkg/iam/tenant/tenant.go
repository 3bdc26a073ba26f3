package tenant

import (
	"net"
	"net/http"
	"time"

	"github.com/Abraxas-365/custodia/pkg/errx"
	"github.com/Abraxas-365/custodia/pkg/kernel"
)

// Status of a tenant.
type Status string

const (
	StatusActive    Status = "ACTIVE"
	StatusSuspended Status = "SUSPENDED"
)

// Tenant is the isolation boundary grouping users, clients and scope grants.
type Tenant struct {
	ID          kernel.TenantID `db:"id" json:"id"`
	Name        string          `db:"name" json:"name"`
	Domains     []string        `db:"domains" json:"domains"`
	IPAllowlist []string        `db:"ip_allowlist" json:"ip_allowlist"`
	Status      Status          `db:"status" json:"status"`
	CreatedAt   time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time       `db:"updated_at" json:"updated_at"`
}

// IsActive reports whether the tenant may serve requests.
func (t *Tenant) IsActive() bool {
	return t.Status == StatusActive
}

// AllowsIP reports whether the remote address passes the tenant's IP
// allowlist. An empty allowlist allows everything. Entries may be single
// addresses or CIDR blocks.
func (t *Tenant) AllowsIP(remote string) bool {
	if len(t.IPAllowlist) == 0 {
		return true
	}

	ip := net.ParseIP(remote)
	if ip == nil {
		return false
	}

	for _, entry := range t.IPAllowlist {
		if _, block, err := net.ParseCIDR(entry); err == nil {
			if block.Contains(ip) {
				return true
			}
			continue
		}
		if allowed := net.ParseIP(entry); allowed != nil && allowed.Equal(ip) {
			return true
		}
	}
	return false
}

// HasDomain reports whether the tenant owns the given domain.
func (t *Tenant) HasDomain(domain string) bool {
	for _, d := range t.Domains {
		if d == domain {
			return true
		}
	}
	return false
}

// ============================================================================
// Error Registry
// ============================================================================

var ErrRegistry = errx.NewRegistry("TENANT")

var (
	CodeTenantNotFound  = ErrRegistry.Register("NOT_FOUND", errx.TypeNotFound, http.StatusNotFound, "Tenant not found")
	CodeTenantSuspended = ErrRegistry.Register("SUSPENDED", errx.TypeAuthorization, http.StatusForbidden, "Tenant is suspended")
)

func ErrTenantNotFound() *errx.Error {
	return ErrRegistry.New(CodeTenantNotFound)
}

func ErrTenantSuspended() *errx.Error {
	return ErrRegistry.New(CodeTenantSuspended)
}
