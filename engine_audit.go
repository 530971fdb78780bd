package loanGuard

import (
	"context"
	"errors"

	"github.com/MrEthical07/loanGuard/autherr"
	"github.com/MrEthical07/loanGuard/internal/logging"
	"github.com/google/uuid"
)

const (
	auditEventLoginSuccess     = "login_success"
	auditEventLoginFailure     = "login_failure"
	auditEventLoginRateLimited = "login_rate_limited"
	auditEventLogout           = "logout"
	auditEventGateDenied       = "gate_denied"
	auditEventAdminGateDenied  = "admin_gate_denied"
)

// AuditErrorCode is the stable error label written into AuditEvent.Error.
type AuditErrorCode string

const (
	auditErrInvalidCredentials AuditErrorCode = "invalid_credentials"
	auditErrRateLimited        AuditErrorCode = "rate_limited"
	auditErrLookupFailed       AuditErrorCode = "lookup_failed"
	auditErrUnauthenticated    AuditErrorCode = "unauthenticated"
	auditErrSessionExpired     AuditErrorCode = "session_expired"
	auditErrForbidden          AuditErrorCode = "forbidden"
	auditErrTimeout            AuditErrorCode = "timeout"
	auditErrUnavailable        AuditErrorCode = "backend_unavailable"
	auditErrInternal           AuditErrorCode = "internal_error"
)

func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	userID string,
	email string,
	err error,
	metadataBuilder func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	event := AuditEvent{
		EventID:   uuid.NewString(),
		Timestamp: e.now().UTC(),
		EventType: eventType,
		UserID:    userID,
		IP:        clientIPFromContext(ctx),
		Success:   success,
		Metadata:  metadata,
	}
	if email != "" {
		event.Email = logging.MaskEmail(email)
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = string(code)
	}

	e.audit.Emit(ctx, event)
}

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return auditErrTimeout
	}

	switch autherr.KindOf(err) {
	case autherr.KindInvalidCredentials:
		return auditErrInvalidCredentials
	case autherr.KindRateLimited:
		return auditErrRateLimited
	case autherr.KindLookupFailed:
		return auditErrLookupFailed
	case autherr.KindUnauthenticated:
		return auditErrUnauthenticated
	case autherr.KindSessionExpired:
		return auditErrSessionExpired
	case autherr.KindUnauthorized:
		return auditErrForbidden
	case autherr.KindTimeout:
		return auditErrTimeout
	case autherr.KindUnavailable:
		return auditErrUnavailable
	default:
		return auditErrInternal
	}
}
