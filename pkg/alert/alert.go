// Package alert delivers operational notifications raised by the refine
// pipeline, such as the generation circuit breaker tripping mid-run.
package alert

import (
	"fmt"
	"net/smtp"
	"strings"
	"time"

	"github.com/soundprediction/refiner/pkg/config"
)

// SubjectPrefix marks every notification sent by this service so operator
// inboxes can filter on it.
const SubjectPrefix = "[refiner]"

// Alerter defines an interface for sending operational alerts.
type Alerter interface {
	Alert(subject, message string) error
}

// EmailAlerter implements Alerter using SMTP
type EmailAlerter struct {
	cfg config.AlertConfig
	now func() time.Time
}

// NewEmailAlerter creates a new email alerter
func NewEmailAlerter(cfg config.AlertConfig) *EmailAlerter {
	return &EmailAlerter{
		cfg: cfg,
		now: time.Now,
	}
}

// Alert sends an email with the given subject and message. Disabled
// configuration short-circuits without touching the network.
func (a *EmailAlerter) Alert(subject, message string) error {
	if !a.cfg.Enabled {
		return nil
	}

	auth := smtp.PlainAuth("", a.cfg.Username, a.cfg.Password, a.cfg.SMTPHost)
	addr := fmt.Sprintf("%s:%d", a.cfg.SMTPHost, a.cfg.SMTPPort)

	if err := smtp.SendMail(addr, auth, a.cfg.From, a.cfg.To, a.buildMessage(subject, message)); err != nil {
		return fmt.Errorf("failed to send alert email: %w", err)
	}

	return nil
}

// buildMessage assembles the mail payload. The timestamp goes in the body
// because operators usually read these long after delivery.
func (a *EmailAlerter) buildMessage(subject, message string) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "To: %s\r\n", strings.Join(a.cfg.To, ","))
	fmt.Fprintf(&b, "Subject: %s %s\r\n", SubjectPrefix, subject)
	b.WriteString("\r\n")
	fmt.Fprintf(&b, "%s\r\n\r\nReported at %s\r\n", message, a.now().UTC().Format(time.RFC3339))
	return []byte(b.String())
}

// NoOpAlerter is a dummy alerter for when alerting is disabled
type NoOpAlerter struct{}

func (n *NoOpAlerter) Alert(subject, message string) error {
	return nil
}
