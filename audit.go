package goShield

import (
	"context"
	"io"
	"log/slog"

	"github.com/MrEthical07/goShield/internal/audit"
)

// AuditEvent is one authentication outcome. Reason carries the internal
// failure code and must not be shown to clients.
type AuditEvent = audit.Event

// AuditSink receives audit events from the engine's dispatcher goroutine.
type AuditSink = audit.Sink

type NoOpSink = audit.NoOpSink

type ChannelSink = audit.ChannelSink

type JSONWriterSink = audit.JSONWriterSink

type LogSink = audit.LogSink

func NewChannelSink(buffer int) *ChannelSink {
	return audit.NewChannelSink(buffer)
}

func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return audit.NewJSONWriterSink(w)
}

func NewLogSink(logger *slog.Logger) *LogSink {
	return audit.NewLogSink(logger)
}

const (
	auditLoginSuccess    = "login_success"
	auditLoginFailure    = "login_failure"
	auditLoginThrottled  = "login_throttled"
	auditRememberSuccess = "remember_success"
	auditRememberReuse   = "remember_reuse"
	auditTokenSuccess    = "token_success"
	auditTokenFailure    = "token_failure"
	auditLogout          = "logout"
	auditForget          = "forget"
	auditRegister        = "register"
	auditAdmin           = "admin"
)

type auditRecord struct {
	eventType     string
	authenticator string
	userID        string
	ip            string
	success       bool
	reason        Reason
	metadata      map[string]string
}

func (e *Engine) emitAudit(ctx context.Context, r auditRecord) {
	if e.audit == nil {
		return
	}
	e.audit.Emit(ctx, AuditEvent{
		Timestamp:     e.now().UTC(),
		EventType:     r.eventType,
		Authenticator: r.authenticator,
		UserID:        r.userID,
		IP:            r.ip,
		Success:       r.success,
		Reason:        string(r.reason),
		Metadata:      r.metadata,
	})
}
