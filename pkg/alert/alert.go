// Package alert notifies operators when a sweep trips its circuit breaker
// or trials keep failing.
package alert

import (
	"fmt"
	"log/slog"
	"net/smtp"
	"strings"
	"sync"

	"github.com/soundprediction/uniblocker/pkg/config"
)

// Alerter defines an interface for sending alerts
type Alerter interface {
	Alert(subject, message string) error
}

// New returns an EmailAlerter when alerting is enabled and a NoOpAlerter otherwise.
func New(cfg config.AlertConfig) Alerter {
	if !cfg.Enabled || cfg.SMTPHost == "" || len(cfg.To) == 0 {
		return &NoOpAlerter{}
	}
	return NewEmailAlerter(cfg)
}

// EmailAlerter implements Alerter using SMTP
type EmailAlerter struct {
	cfg config.AlertConfig
}

// NewEmailAlerter creates a new email alerter
func NewEmailAlerter(cfg config.AlertConfig) *EmailAlerter {
	return &EmailAlerter{
		cfg: cfg,
	}
}

// Alert sends an email with the given subject and message
func (a *EmailAlerter) Alert(subject, message string) error {
	if !a.cfg.Enabled {
		return nil
	}

	auth := smtp.PlainAuth("", a.cfg.Username, a.cfg.Password, a.cfg.SMTPHost)

	to := a.cfg.To
	msg := []byte(fmt.Sprintf("To: %s\r\n"+
		"Subject: %s\r\n"+
		"\r\n"+
		"%s\r\n", strings.Join(to, ","), subject, message))

	addr := fmt.Sprintf("%s:%d", a.cfg.SMTPHost, a.cfg.SMTPPort)

	err := smtp.SendMail(addr, auth, a.cfg.From, to, msg)
	if err != nil {
		return fmt.Errorf("failed to send alert email: %w", err)
	}

	return nil
}

// NoOpAlerter is a dummy alerter for when alerting is disabled
type NoOpAlerter struct{}

func (n *NoOpAlerter) Alert(subject, message string) error {
	return nil
}

// LogAlerter writes alerts to a logger at warn level.
type LogAlerter struct {
	Logger *slog.Logger
}

func (l *LogAlerter) Alert(subject, message string) error {
	logger := l.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Warn("Alert", "subject", subject, "message", message)
	return nil
}

// Recorder keeps alerts in memory. Tests use it to assert on alerts.
type Recorder struct {
	mu     sync.Mutex
	Alerts []Message
}

// Message is one recorded alert.
type Message struct {
	Subject string
	Body    string
}

func (r *Recorder) Alert(subject, message string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Alerts = append(r.Alerts, Message{Subject: subject, Body: message})
	return nil
}

// Messages returns a copy of the recorded alerts.
func (r *Recorder) Messages() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Message(nil), r.Alerts...)
}

// BreakerTripped formats the alert sent when the sweep breaker opens.
func BreakerTripped(baseline string, failures uint32, skipped int) (subject, message string) {
	subject = fmt.Sprintf("[uniblocker] %s sweep halted", baseline)
	message = fmt.Sprintf("Circuit breaker opened after %d consecutive trial failures. %d remaining trials skipped.", failures, skipped)
	return subject, message
}

// TrialFailed formats the alert sent when a trial exhausts its attempts.
func TrialFailed(trialID string, attempts int, err error) (subject, message string) {
	subject = fmt.Sprintf("[uniblocker] trial %s failed", trialID)
	message = fmt.Sprintf("Trial %s failed after %d attempt(s): %v", trialID, attempts, err)
	return subject, message
}
