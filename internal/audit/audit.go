// Package audit records security-relevant authentication events.
//
// Audit logging is best effort: implementations must not block callers and
// must never panic back into them. Use Safe to wrap a Logger whose behavior
// is not under your control.
package audit

import (
	"go.uber.org/zap"

	"github.com/buildplan/buildplan/internal/metrics"
)

// Event names recorded by the audit logger
const (
	EventRateLimitViolation = "rate_limit_violation"
	EventAccountLockout     = "account_lockout"
	EventLoginSuccess       = "login_success"
	EventLoginFailure       = "login_failure"
	EventRegistration       = "registration"
)

// Logger receives authentication audit events
type Logger interface {
	LogRateLimitViolation(clientKey, path string)
	LogAccountLockout(clientKey, reason string)
	LogLoginSuccess(userID, clientKey string)
	LogLoginFailure(email, clientKey, reason string)
	LogRegistration(userID, clientKey string)
}

// ZapLogger writes audit events as structured zap entries
type ZapLogger struct {
	logger  *zap.Logger
	metrics *metrics.Metrics
}

// NewZapLogger creates an audit logger on the "audit" child of logger.
// m may be nil.
func NewZapLogger(logger *zap.Logger, m *metrics.Metrics) *ZapLogger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ZapLogger{
		logger:  logger.Named("audit"),
		metrics: m,
	}
}

// LogRateLimitViolation records a request rejected during an active lockout
func (l *ZapLogger) LogRateLimitViolation(clientKey, path string) {
	l.logger.Warn("rate limit violation",
		zap.String("event", EventRateLimitViolation),
		zap.String("client_key", clientKey),
		zap.String("path", path))
	l.metrics.RecordAuthEvent(EventRateLimitViolation)
}

// LogAccountLockout records a client key entering lockout
func (l *ZapLogger) LogAccountLockout(clientKey, reason string) {
	l.logger.Warn("account lockout",
		zap.String("event", EventAccountLockout),
		zap.String("client_key", clientKey),
		zap.String("reason", reason))
	l.metrics.RecordAuthEvent(EventAccountLockout)
}

// LogLoginSuccess records a successful login
func (l *ZapLogger) LogLoginSuccess(userID, clientKey string) {
	l.logger.Info("login success",
		zap.String("event", EventLoginSuccess),
		zap.String("user_id", userID),
		zap.String("client_key", clientKey))
	l.metrics.RecordAuthEvent(EventLoginSuccess)
}

// LogLoginFailure records a failed login
func (l *ZapLogger) LogLoginFailure(email, clientKey, reason string) {
	l.logger.Info("login failure",
		zap.String("event", EventLoginFailure),
		zap.String("email", email),
		zap.String("client_key", clientKey),
		zap.String("reason", reason))
	l.metrics.RecordAuthEvent(EventLoginFailure)
}

// LogRegistration records a new account
func (l *ZapLogger) LogRegistration(userID, clientKey string) {
	l.logger.Info("registration",
		zap.String("event", EventRegistration),
		zap.String("user_id", userID),
		zap.String("client_key", clientKey))
	l.metrics.RecordAuthEvent(EventRegistration)
}

// Nop discards all events
type Nop struct{}

func (Nop) LogRateLimitViolation(string, string)   {}
func (Nop) LogAccountLockout(string, string)       {}
func (Nop) LogLoginSuccess(string, string)         {}
func (Nop) LogLoginFailure(string, string, string) {}
func (Nop) LogRegistration(string, string)         {}

// safeLogger swallows panics raised by the wrapped logger
type safeLogger struct {
	next Logger
}

// Safe wraps next so that a panicking implementation cannot affect callers.
// A nil next yields a Nop logger.
func Safe(next Logger) Logger {
	if next == nil {
		return Nop{}
	}
	if s, ok := next.(*safeLogger); ok {
		return s
	}
	return &safeLogger{next: next}
}

func (s *safeLogger) LogRateLimitViolation(clientKey, path string) {
	defer func() { _ = recover() }()
	s.next.LogRateLimitViolation(clientKey, path)
}

func (s *safeLogger) LogAccountLockout(clientKey, reason string) {
	defer func() { _ = recover() }()
	s.next.LogAccountLockout(clientKey, reason)
}

func (s *safeLogger) LogLoginSuccess(userID, clientKey string) {
	defer func() { _ = recover() }()
	s.next.LogLoginSuccess(userID, clientKey)
}

func (s *safeLogger) LogLoginFailure(email, clientKey, reason string) {
	defer func() { _ = recover() }()
	s.next.LogLoginFailure(email, clientKey, reason)
}

func (s *safeLogger) LogRegistration(userID, clientKey string) {
	defer func() { _ = recover() }()
	s.next.LogRegistration(userID, clientKey)
}
