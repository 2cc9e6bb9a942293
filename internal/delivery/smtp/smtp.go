// Package smtp mails reports through an SMTP relay using STARTTLS and PLAIN
// authentication.
package smtp

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"
)

// DefaultPort is the submission port.
const DefaultPort = 587

// Config describes the relay and envelope.
type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	To       []string
	Subject  string
}

type sendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// Mailer sends each report as one plain-text message.
type Mailer struct {
	cfg  Config
	now  func() time.Time
	send sendFunc
}

// New validates cfg and creates a Mailer.
func New(cfg Config) (*Mailer, error) {
	if cfg.Host == "" {
		return nil, errors.New("smtp host is required")
	}
	if cfg.Port == 0 {
		cfg.Port = DefaultPort
	}
	if cfg.From == "" {
		cfg.From = cfg.Username
	}
	if cfg.From == "" {
		return nil, errors.New("smtp from address is required")
	}
	if len(cfg.To) == 0 {
		cfg.To = []string{cfg.From}
	}
	return &Mailer{cfg: cfg, now: time.Now, send: smtp.SendMail}, nil
}

// Deliver sends text. net/smtp has no context support, so cancellation
// abandons the send rather than interrupting it.
func (m *Mailer) Deliver(ctx context.Context, text string) error {
	var auth smtp.Auth
	if m.cfg.Username != "" {
		auth = smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)
	}
	addr := net.JoinHostPort(m.cfg.Host, strconv.Itoa(m.cfg.Port))
	msg := m.message(text)

	done := make(chan error, 1)
	go func() {
		done <- m.send(addr, auth, m.cfg.From, m.cfg.To, msg)
	}()
	select {
	case <-ctx.Done():
		return fmt.Errorf("smtp send canceled: %w", ctx.Err())
	case err := <-done:
		if err != nil {
			return fmt.Errorf("smtp send: %w", err)
		}
		return nil
	}
}

func (m *Mailer) message(text string) []byte {
	var sb strings.Builder
	headers := [][2]string{
		{"From", m.cfg.From},
		{"To", strings.Join(m.cfg.To, ", ")},
		{"Subject", mime.QEncoding.Encode("utf-8", m.cfg.Subject)},
		{"Date", m.now().Format(time.RFC1123Z)},
		{"MIME-Version", "1.0"},
		{"Content-Type", `text/plain; charset="utf-8"`},
		{"Content-Transfer-Encoding", "8bit"},
	}
	for _, h := range headers {
		sb.WriteString(h[0] + ": " + h[1] + "\r\n")
	}
	sb.WriteString("\r\n")
	sb.WriteString(strings.ReplaceAll(strings.ReplaceAll(text, "\r\n", "\n"), "\n", "\r\n"))
	sb.WriteString("\r\n")
	return []byte(sb.String())
}
