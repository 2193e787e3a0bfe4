package observability

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want zerolog.Level
	}{
		{"trace", zerolog.TraceLevel},
		{"debug", zerolog.DebugLevel},
		{"info", zerolog.InfoLevel},
		{"warn", zerolog.WarnLevel},
		{"warning", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
		{"fatal", zerolog.FatalLevel},
		{"panic", zerolog.PanicLevel},
		{"ERROR", zerolog.ErrorLevel},
		{"bogus", zerolog.InfoLevel},
		{"", zerolog.InfoLevel},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, parseLevel(tt.in), "level %q", tt.in)
	}
}

func TestNewLoggerLevels(t *testing.T) {
	logger := NewLogger(LoggingConfig{Level: "debug", Format: "json", Output: "stderr"})
	assert.Equal(t, zerolog.DebugLevel, logger.GetLevel())

	logger = NewLogger(DefaultLoggingConfig())
	assert.Equal(t, zerolog.InfoLevel, logger.GetLevel())
}

func TestWithLoanContext(t *testing.T) {
	logger := NewLogger(DefaultLoggingConfig())
	// Context builders must not panic with empty values.
	_ = WithLoanContext(logger, "", "")
	_ = WithOutboxContext(logger, "id", "LoanApproved")
}
