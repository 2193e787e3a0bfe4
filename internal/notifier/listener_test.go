package notifier

import (
	"io"
	"testing"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finlend/loan-service/internal/domain"
)

func newTestLogger() zerolog.Logger {
	return zerolog.New(io.Discard)
}

func loanEventMessage(eventType, payload string) kafka.Message {
	return kafka.Message{
		Key:   []byte("6b1f0f7e-9a47-4c43-8f3d-111111111111"),
		Value: []byte(payload),
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(eventType)},
		},
	}
}

func TestHandleMessage(t *testing.T) {
	listener := &Listener{logger: newTestLogger()}

	t.Run("decodes a well-formed event", func(t *testing.T) {
		msg := loanEventMessage(domain.EventTypeLoanApproved,
			`{"id":"6b1f0f7e-9a47-4c43-8f3d-111111111111","approved_by":"reviewer-7","approved_at":"2025-03-14T12:00:00Z"}`)

		require.NoError(t, listener.handleMessage(msg))
	})

	t.Run("rejects a message without an event type header", func(t *testing.T) {
		msg := kafka.Message{
			Key:   []byte("6b1f0f7e-9a47-4c43-8f3d-111111111111"),
			Value: []byte(`{"id":"6b1f0f7e-9a47-4c43-8f3d-111111111111"}`),
		}

		err := listener.handleMessage(msg)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "no event type")
	})

	t.Run("rejects a malformed payload", func(t *testing.T) {
		msg := loanEventMessage(domain.EventTypeLoanPaymentMade, `{not json`)

		err := listener.handleMessage(msg)
		require.Error(t, err)
		assert.Contains(t, err.Error(), domain.EventTypeLoanPaymentMade)
	})
}

func TestEventTypeOf(t *testing.T) {
	msg := loanEventMessage(domain.EventTypeLoanDisbursed, `{}`)
	assert.Equal(t, domain.EventTypeLoanDisbursed, eventTypeOf(msg))

	assert.Empty(t, eventTypeOf(kafka.Message{}))
}

func TestNotificationFor(t *testing.T) {
	tests := []struct {
		eventType string
		contains  string
	}{
		{domain.EventTypeLoanSimulated, "simulation"},
		{domain.EventTypeLoanPendingApproval, "manual review"},
		{domain.EventTypeLoanApproved, "approved"},
		{domain.EventTypeLoanRejected, "rejected"},
		{domain.EventTypeLoanContracted, "contract"},
		{domain.EventTypeLoanDisbursed, "disbursed"},
		{domain.EventTypeLoanPaymentMade, "payment"},
		{"SomethingElse", "updated"},
	}

	for _, tc := range tests {
		t.Run(tc.eventType, func(t *testing.T) {
			assert.Contains(t, notificationFor(tc.eventType), tc.contains)
		})
	}
}
