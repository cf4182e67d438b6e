package services

import (
	"cobranca/config"
	"cobranca/models"
	"cobranca/utils"
	"fmt"
	"html"
	"time"

	"gopkg.in/gomail.v2"
)

// Sender отправляет готовое письмо
type Sender interface {
	DialAndSend(m ...*gomail.Message) error
}

// EmailService предоставляет методы для отправки email
type EmailService struct {
	dialer Sender
	from   string
	loc    *time.Location
}

// NewEmailService создает новый экземпляр EmailService
func NewEmailService(cfg *config.Config) *EmailService {
	dialer := gomail.NewDialer(
		cfg.SMTP.Host,
		cfg.SMTP.Port,
		cfg.SMTP.Username,
		cfg.SMTP.Password,
	)

	return &EmailService{
		dialer: dialer,
		from:   cfg.SMTP.From,
		loc:    cfg.Location(),
	}
}

// WithSender подменяет отправителя
func (s *EmailService) WithSender(sender Sender) *EmailService {
	s.dialer = sender
	return s
}

// SendEmail отправляет email
func (s *EmailService) SendEmail(to, subject, body string) error {
	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", to)
	m.SetHeader("Subject", subject)
	m.SetBody("text/html", body)

	if err := s.dialer.DialAndSend(m); err != nil {
		return fmt.Errorf("ошибка отправки email: %v", err)
	}

	return nil
}

// SendPaymentNotification сообщает финансовому отделу о зарегистрированном платеже
func (s *EmailService) SendPaymentNotification(to string, record *models.CollectionRecord) error {
	subject := "Pagamento registrado - 3ª Cobrança: " + record.Name
	body := fmt.Sprintf(`
		<h2>Pagamento registrado</h2>
		<p>Aluno: %s</p>
		<p>CPF: %s</p>
		<p>Curso: %s</p>
		<p>Valor: %s</p>
		<p>Data do pagamento: %s</p>
		<p>Origem: %s</p>
		<p>Registrado por: %s</p>
	`,
		html.EscapeString(record.Name),
		html.EscapeString(record.TaxID),
		html.EscapeString(record.Course),
		utils.FormatBRL(record.Amount),
		utils.FormatDateBR(record.Payment.PaidAt, s.loc),
		html.EscapeString(record.Payment.Origin),
		html.EscapeString(record.Payment.RecordedBy),
	)

	return s.SendEmail(to, subject, body)
}
