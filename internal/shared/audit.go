package shared

import (
	"context"
	"time"
)

// Session event actions recorded in the audit trail.
const (
	AuditLogin          = "login"
	AuditLoginFailed    = "login_failed"
	AuditLogout         = "logout"
	AuditRefresh        = "refresh"
	AuditIdleTimeout    = "idle_timeout"
	AuditSessionExpired = "session_expired"
	AuditSessionRevoked = "session_revoked"
	AuditAccessDenied   = "access_denied"
)

// AuditActions lists every recorded action in display order.
func AuditActions() []string {
	return []string{
		AuditLogin,
		AuditLoginFailed,
		AuditLogout,
		AuditRefresh,
		AuditIdleTimeout,
		AuditSessionExpired,
		AuditSessionRevoked,
		AuditAccessDenied,
	}
}

// SessionEvent is one entry of the session audit trail.
type SessionEvent struct {
	Action     string         `json:"action"`
	UserID     string         `json:"user_id,omitempty"`
	Role       string         `json:"role,omitempty"`
	SessionID  string         `json:"session_id,omitempty"`
	Path       string         `json:"path,omitempty"`
	RemoteAddr string         `json:"remote_addr,omitempty"`
	UserAgent  string         `json:"user_agent,omitempty"`
	Meta       map[string]any `json:"meta,omitempty"`
	At         time.Time      `json:"at"`
}

// AuditSink accepts session events. Implementations hand the event off and
// return without waiting on storage.
type AuditSink interface {
	RecordSessionEvent(ctx context.Context, event SessionEvent)
}

// NopAuditSink discards events.
type NopAuditSink struct{}

// RecordSessionEvent implements AuditSink.
func (NopAuditSink) RecordSessionEvent(context.Context, SessionEvent) {}
