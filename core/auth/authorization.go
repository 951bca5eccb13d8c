package auth

import (
	"errors"
	"strings"
	"time"

	"healthsnap/core/audit"
)

var ErrForbidden = errors.New("forbidden")

type Authorizer struct {
	Verifier    *Verifier
	AuditLogger audit.AuditLogger
}

type AuthorizationResult struct {
	Authorized bool
	Status     int // 401 or 403 when not authorized
	Reason     string
	Claims     *Claims
}

// Authorize checks the bearer header and that its claims carry role.
func (a *Authorizer) Authorize(header, role string) AuthorizationResult {
	claims, err := a.Verifier.VerifyBearer(header)
	if err != nil {
		a.log("", audit.ResultFailure, err.Error(), role)
		return AuthorizationResult{Authorized: false, Status: 401, Reason: err.Error()}
	}
	if !claims.HasRole(role) {
		reason := "missing role " + role
		a.log(claims.Subject, audit.ResultFailure, reason, role)
		return AuthorizationResult{Authorized: false, Status: 403, Reason: reason, Claims: claims}
	}
	a.log(claims.Subject, audit.ResultSuccess, "Authorized", role)
	return AuthorizationResult{Authorized: true, Reason: "Authorized", Claims: claims}
}

func (a *Authorizer) log(subject, result, reason, role string) {
	if a.AuditLogger == nil {
		return
	}
	a.AuditLogger.LogEvent(audit.AuditEvent{
		EventType: audit.EventAuthorization,
		EntityID:  subject,
		Result:    result,
		Reason:    reason,
		Metadata:  map[string]string{"role": strings.ToLower(role)},
		Timestamp: time.Now(),
	})
}
