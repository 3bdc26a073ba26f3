package authinfra

import (
	"context"

	"github.com/Abraxas-365/custodia/pkg/iam/auth"
	"github.com/Abraxas-365/custodia/pkg/logx"
)

// LogxAuditService writes authorization outcomes to the structured log.
// Denials log at Warn with whatever identity the pipeline had resolved so
// operators can trace who was knocking.
type LogxAuditService struct{}

func NewLogxAuditService() *LogxAuditService {
	return &LogxAuditService{}
}

func (s *LogxAuditService) AuthorizationGranted(ctx context.Context, id auth.Identity, target, operation string) {
	logx.WithFields(identityFields(id, target, operation)).
		Debug("authorization granted")
}

func (s *LogxAuditService) AuthorizationDenied(ctx context.Context, id auth.Identity, target, operation, stage string, err error) {
	logx.WithFields(identityFields(id, target, operation)).
		WithField("stage", stage).
		WithError(err).
		Warn("authorization denied")
}

func identityFields(id auth.Identity, target, operation string) logx.Fields {
	fields := logx.Fields{
		"target":    target,
		"operation": operation,
	}
	if id.AccessTokenID != "" {
		fields["access_token_id"] = id.AccessTokenID
	}
	if id.ClientID != "" {
		fields["client_id"] = id.ClientID
	}
	if id.UserID != "" {
		fields["user_id"] = id.UserID
	}
	if id.TenantID != "" {
		fields["tenant_id"] = id.TenantID
	}
	if id.RemoteIP != "" {
		fields["remote_ip"] = id.RemoteIP
	}
	return fields
}
