package audit

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/buildplan/buildplan/internal/metrics"
)

type panickingLogger struct{}

func (panickingLogger) LogRateLimitViolation(string, string)   { panic("audit sink down") }
func (panickingLogger) LogAccountLockout(string, string)       { panic("audit sink down") }
func (panickingLogger) LogLoginSuccess(string, string)         { panic("audit sink down") }
func (panickingLogger) LogLoginFailure(string, string, string) { panic("audit sink down") }
func (panickingLogger) LogRegistration(string, string)         { panic("audit sink down") }

func TestZapLogger_WritesStructuredEvents(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	m := metrics.New()
	logger := NewZapLogger(zap.New(core), m)

	logger.LogRateLimitViolation("1.2.3.4", "/api/auth/login")
	logger.LogAccountLockout("1.2.3.4", "too many attempts")

	entries := logs.All()
	require.Len(t, entries, 2)

	assert.Equal(t, "rate limit violation", entries[0].Message)
	assert.Equal(t, "audit", entries[0].LoggerName)
	fields := entries[0].ContextMap()
	assert.Equal(t, EventRateLimitViolation, fields["event"])
	assert.Equal(t, "1.2.3.4", fields["client_key"])
	assert.Equal(t, "/api/auth/login", fields["path"])

	assert.Equal(t, "too many attempts", entries[1].ContextMap()["reason"])
	assert.Equal(t, float64(1), testutil.ToFloat64(m.AuthEventsTotal.WithLabelValues(EventAccountLockout)))
}

func TestZapLogger_NilLoggerAndMetrics(t *testing.T) {
	logger := NewZapLogger(nil, nil)

	assert.NotPanics(t, func() {
		logger.LogLoginSuccess("user-1", "1.2.3.4")
		logger.LogLoginFailure("a@example.com", "1.2.3.4", "bad password")
		logger.LogRegistration("user-1", "1.2.3.4")
	})
}

func TestSafe_SwallowsPanics(t *testing.T) {
	logger := Safe(panickingLogger{})

	assert.NotPanics(t, func() {
		logger.LogRateLimitViolation("k", "/p")
		logger.LogAccountLockout("k", "r")
		logger.LogLoginSuccess("u", "k")
		logger.LogLoginFailure("e", "k", "r")
		logger.LogRegistration("u", "k")
	})
}

func TestSafe_NilAndIdempotent(t *testing.T) {
	assert.IsType(t, Nop{}, Safe(nil))

	wrapped := Safe(panickingLogger{})
	assert.Same(t, wrapped, Safe(wrapped))
}
