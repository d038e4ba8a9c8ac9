package email_filter

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/customeros/mailtriage/internal/enum"
	"github.com/customeros/mailtriage/internal/models"
)

func message(from, subject string) *models.Message {
	return &models.Message{
		ID:      "msg_test",
		Sender:  &models.Address{EmailAddress: from},
		Subject: &models.Subject{Text: subject},
	}
}

func TestScanMessage_Bounce(t *testing.T) {
	svc := NewEmailFilterService()

	result, err := svc.ScanMessage(context.Background(), message("MAILER-DAEMON@mx.example.com", "Hello"))

	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, LabelBounce, result.Label)
	assert.Equal(t, enum.ModelRules, result.Model)
	assert.Equal(t, "low", result.Urgency)
}

func TestScanMessage_BounceSubject(t *testing.T) {
	svc := NewEmailFilterService()

	result, err := svc.ScanMessage(context.Background(), message("ops@example.com", "Undelivered Mail Returned to Sender"))

	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, LabelBounce, result.Label)
}

func TestScanMessage_AutoReply(t *testing.T) {
	svc := NewEmailFilterService()

	result, err := svc.ScanMessage(context.Background(), message("jane@example.com", "Out of Office: back Monday"))

	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, LabelAutoResponse, result.Label)
}

func TestScanMessage_NoReply(t *testing.T) {
	svc := NewEmailFilterService()

	result, err := svc.ScanMessage(context.Background(), message("no-reply@shop.example.com", "Your order shipped"))

	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, LabelNotification, result.Label)
	require.NotNil(t, result.Confidence)
	assert.InDelta(t, rulesConfidence, *result.Confidence, 0.0001)
}

func TestScanMessage_PersonNeedsExternal(t *testing.T) {
	svc := NewEmailFilterService()

	result, err := svc.ScanMessage(context.Background(), message("jane.doe@example.com", "Lunch on Friday?"))

	require.NoError(t, err)
	assert.Nil(t, result)
}

func TestScanMessage_MissingSender(t *testing.T) {
	svc := NewEmailFilterService()

	result, err := svc.ScanMessage(context.Background(), &models.Message{ID: "msg_test"})

	require.NoError(t, err)
	assert.Nil(t, result)
}
