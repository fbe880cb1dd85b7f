package notify

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"html/template"
	"time"

	"busline/internal/config"
	"busline/internal/domain"
	"busline/internal/models"
	"busline/internal/worker"

	"github.com/rs/zerolog"
	gomail "gopkg.in/gomail.v2"
)

const (
	confirmationSubject = "Бронь %s подтверждена"
	reminderSubject     = "Напоминание о поездке, бронь %s"
)

var (
	confirmationTmpl = template.Must(template.New("confirmation").Parse(`<p>Здравствуйте, {{.PassengerName}}!</p>
<p>Бронь <b>{{.Code}}</b> подтверждена.</p>
<p>Места: {{range $i, $t := .Tickets}}{{if $i}}, {{end}}{{$t.SeatCode}}{{end}}</p>
<p>Сумма: {{printf "%.2f" .TotalPrice}}</p>
{{if .PickupPoint}}<p>Посадка: {{.PickupPoint}}</p>{{end}}`))

	reminderTmpl = template.Must(template.New("reminder").Parse(`<p>Здравствуйте, {{.PassengerName}}!</p>
<p>Напоминаем о поездке по брони <b>{{.Code}}</b>.</p>
<p>Места: {{range $i, $t := .Tickets}}{{if $i}}, {{end}}{{$t.SeatCode}}{{end}}</p>
{{if .PickupPoint}}<p>Посадка: {{.PickupPoint}}</p>{{end}}`))
)

// sender is satisfied by *gomail.Dialer.
type sender interface {
	DialAndSend(m ...*gomail.Message) error
}

// SMTPMailer delivers booking emails over SMTP, retrying transient failures.
type SMTPMailer struct {
	from   string
	sender sender
	retry  worker.RetryPolicy
	logger *zerolog.Logger
}

func NewSMTPMailer(cfg config.EmailConfig, logger *zerolog.Logger) *SMTPMailer {
	dialer := gomail.NewDialer(cfg.SMTPHost, cfg.SMTPPort, cfg.Username, cfg.Password)
	dialer.TLSConfig = &tls.Config{ServerName: cfg.SMTPHost, MinVersion: tls.VersionTLS12}

	retry := worker.RetryPolicy{
		MaxRetries:    cfg.MaxRetries,
		InitialDelay:  cfg.InitialDelay,
		MaxDelay:      30 * time.Second,
		BackoffFactor: 2,
	}
	return newSMTPMailer(cfg.From, dialer, retry, logger)
}

func newSMTPMailer(from string, s sender, retry worker.RetryPolicy, logger *zerolog.Logger) *SMTPMailer {
	return &SMTPMailer{from: from, sender: s, retry: retry, logger: logger}
}

func (m *SMTPMailer) SendConfirmation(ctx context.Context, booking *models.Booking, recipient string) error {
	return m.send(ctx, recipient, fmt.Sprintf(confirmationSubject, booking.Code), confirmationTmpl, booking)
}

func (m *SMTPMailer) SendReminder(ctx context.Context, booking *models.Booking, recipient string) error {
	return m.send(ctx, recipient, fmt.Sprintf(reminderSubject, booking.Code), reminderTmpl, booking)
}

func (m *SMTPMailer) send(ctx context.Context, to, subject string, tmpl *template.Template, booking *models.Booking) error {
	if to == "" {
		return fmt.Errorf("booking %s has no recipient", booking.Code)
	}

	var body bytes.Buffer
	if err := tmpl.Execute(&body, booking); err != nil {
		return fmt.Errorf("failed to render %s email: %w", tmpl.Name(), err)
	}

	msg := gomail.NewMessage()
	msg.SetHeader("From", m.from)
	msg.SetHeader("To", to)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/html", body.String())

	err := m.retry.Do(ctx, func(attempt int) error {
		if err := m.sender.DialAndSend(msg); err != nil {
			m.logger.Warn().Err(err).Str("code", booking.Code).Int("attempt", attempt).Msg("email delivery failed")
			return err
		}
		return nil
	})
	switch {
	case err == nil:
		m.logger.Info().Str("code", booking.Code).Str("kind", tmpl.Name()).Msg("email sent")
		return nil
	case ctx.Err() != nil && errors.Is(err, ctx.Err()):
		return err
	default:
		return fmt.Errorf("failed to send %s email after %d attempts: %w", tmpl.Name(), m.retry.Attempts(), err)
	}
}

// LogMailer stands in when SMTP is not configured and only records what would be sent.
type LogMailer struct {
	logger *zerolog.Logger
}

func NewLogMailer(logger *zerolog.Logger) *LogMailer {
	return &LogMailer{logger: logger}
}

func (m *LogMailer) SendConfirmation(_ context.Context, booking *models.Booking, recipient string) error {
	m.logger.Info().Str("code", booking.Code).Str("to", recipient).Msg("confirmation email (smtp disabled)")
	return nil
}

func (m *LogMailer) SendReminder(_ context.Context, booking *models.Booking, recipient string) error {
	m.logger.Info().Str("code", booking.Code).Str("to", recipient).Msg("reminder email (smtp disabled)")
	return nil
}

// NewMailer picks SMTP delivery when configured and the logging stub otherwise.
func NewMailer(cfg config.EmailConfig, logger *zerolog.Logger) domain.Mailer {
	if cfg.Enabled() {
		return NewSMTPMailer(cfg, logger)
	}
	return NewLogMailer(logger)
}
