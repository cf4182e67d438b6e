package services

import (
	"bytes"
	"cobranca/config"
	"cobranca/models"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/gomail.v2"
)

type captureSender struct {
	messages []*gomail.Message
	err      error
}

func (c *captureSender) DialAndSend(m ...*gomail.Message) error {
	c.messages = append(c.messages, m...)
	return c.err
}

func testEmailService(sender Sender) *EmailService {
	cfg := &config.Config{}
	cfg.SMTP.From = "cobranca@example.com"
	cfg.Collection.TimeZone = "UTC"
	return NewEmailService(cfg).WithSender(sender)
}

func TestSendPaymentNotification(t *testing.T) {
	sender := &captureSender{}
	svc := testEmailService(sender)

	paidAt := time.Date(2025, time.March, 18, 10, 0, 0, 0, time.UTC)
	rec := &models.CollectionRecord{
		Name:   "Maria <Silva>",
		TaxID:  "11111111111",
		Course: "Medicina",
		Amount: decimal.RequireFromString("1234.56"),
		Payment: models.PaymentInfo{
			PaidAt:     &paidAt,
			Origin:     "Pix",
			RecordedBy: "agent@example.com",
		},
	}

	require.NoError(t, svc.SendPaymentNotification("financeiro@example.com", rec))
	require.Len(t, sender.messages, 1)

	m := sender.messages[0]
	assert.Equal(t, []string{"financeiro@example.com"}, m.GetHeader("To"))
	assert.Equal(t, []string{"cobranca@example.com"}, m.GetHeader("From"))

	var buf bytes.Buffer
	_, err := m.WriteTo(&buf)
	require.NoError(t, err)
	raw := buf.String()
	assert.Contains(t, raw, "Maria &lt;Silva&gt;")
	assert.Contains(t, raw, "18/03/2025")
}

func TestSendEmail_Error(t *testing.T) {
	svc := testEmailService(&captureSender{err: errors.New("smtp down")})

	err := svc.SendEmail("x@example.com", "assunto", "corpo")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "smtp down")
}
