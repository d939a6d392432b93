package notify

import (
	"fmt"
	"net/smtp"

	"github.com/rs/zerolog"
)

// Notifier receives fire-and-forget lifecycle notifications after a state
// mutation has committed. Implementations must never block or fail the
// mutation that triggered them.
type Notifier interface {
	SubscriptionStarted(email, planName string)
	SubscriptionPaused(email, planName string)
	SubscriptionCancelled(email, planName string)
	PaymentFailed(email string, amountCents int64, currency string)
}

// SMTPConfig carries the mail relay settings.
type SMTPConfig struct {
	From     string
	Password string
	Host     string
	Port     string
}

// Mailer sends plain-text notification emails over SMTP. Every send runs in
// its own goroutine; failures are logged and dropped.
type Mailer struct {
	cfg SMTPConfig
	log zerolog.Logger
}

func NewMailer(cfg SMTPConfig, log zerolog.Logger) *Mailer {
	return &Mailer{cfg: cfg, log: log}
}

func (m *Mailer) SubscriptionStarted(email, planName string) {
	m.send(email, "Subscription started", fmt.Sprintf("Your subscription to %s is now active.", planName))
}

func (m *Mailer) SubscriptionPaused(email, planName string) {
	m.send(email, "Subscription paused", fmt.Sprintf("Your subscription to %s has been paused.", planName))
}

func (m *Mailer) SubscriptionCancelled(email, planName string) {
	m.send(email, "Subscription cancelled", fmt.Sprintf("Your subscription to %s has been cancelled.", planName))
}

func (m *Mailer) PaymentFailed(email string, amountCents int64, currency string) {
	m.send(email, "Payment failed", fmt.Sprintf("A payment of %.2f %s could not be processed. Please update your payment method.", float64(amountCents)/100.0, currency))
}

func (m *Mailer) send(to, subject, body string) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				m.log.Error().Interface("panic", r).Msg("notification send panicked")
			}
		}()

		auth := smtp.PlainAuth("", m.cfg.From, m.cfg.Password, m.cfg.Host)
		message := []byte("Subject: " + subject + "\r\n" +
			"From: " + m.cfg.From + "\r\n" +
			"To: " + to + "\r\n" +
			"Content-Type: text/plain; charset=UTF-8\r\n" +
			"\r\n" +
			body + "\r\n")

		if err := smtp.SendMail(m.cfg.Host+":"+m.cfg.Port, auth, m.cfg.From, []string{to}, message); err != nil {
			m.log.Error().Err(err).Str("to", to).Str("subject", subject).Msg("notification send failed")
		}
	}()
}

// Noop discards all notifications. Used in tests and when SMTP is not
// configured.
type Noop struct{}

func (Noop) SubscriptionStarted(string, string)   {}
func (Noop) SubscriptionPaused(string, string)    {}
func (Noop) SubscriptionCancelled(string, string) {}
func (Noop) PaymentFailed(string, int64, string)  {}
