// Package notify delivers pipeline notifications as HTML mail over SMTP.
package notify

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"net"
	"net/smtp"
	"net/textproto"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// Error describes a failed delivery. Code is the SMTP status when the server
// reported one, zero for connection-level failures.
type Error struct {
	Code int
	Err  error
}

func (e *Error) Error() string {
	if e.Code > 0 {
		return fmt.Sprintf("smtp %d: %v", e.Code, e.Err)
	}
	return fmt.Sprintf("send mail: %v", e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Fatal reports whether the server rejected the message permanently, such as
// an invalid recipient. Connection failures and 4xx responses are not fatal.
func (e *Error) Fatal() bool {
	return e.Code >= 500 && e.Code < 600
}

type sendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// Mailer sends HTML notifications through an SMTP relay with STARTTLS.
type Mailer struct {
	host     string
	port     int
	username string
	password string
	to       string
	send     sendFunc
}

// NewMailer returns a Mailer for the given relay. Messages are sent from
// username to the single configured recipient.
func NewMailer(host string, port int, username, password, to string) *Mailer {
	return &Mailer{
		host:     host,
		port:     port,
		username: username,
		password: password,
		to:       to,
		send:     smtp.SendMail,
	}
}

// newMailerForTests constructs a Mailer with an injectable send function.
func newMailerForTests(host string, port int, username, password, to string, send sendFunc) *Mailer {
	return &Mailer{
		host:     host,
		port:     port,
		username: username,
		password: password,
		to:       to,
		send:     send,
	}
}

// Notify sends one HTML message. Delivery honors context cancellation.
func (m *Mailer) Notify(ctx context.Context, subject, htmlBody string) error {
	if strings.TrimSpace(m.to) == "" {
		return fmt.Errorf("mail recipient is not configured")
	}

	addr := net.JoinHostPort(m.host, strconv.Itoa(m.port))
	auth := smtp.PlainAuth("", m.username, m.password, m.host)
	msg := m.buildMessage(subject, htmlBody)

	done := make(chan error, 1)
	go func() { done <- m.send(addr, auth, m.username, []string{m.to}, msg) }()

	select {
	case <-ctx.Done():
		return fmt.Errorf("mail delivery interrupted: %w", ctx.Err())
	case err := <-done:
		if err == nil {
			return nil
		}
		var protoErr *textproto.Error
		if errors.As(err, &protoErr) {
			return &Error{Code: protoErr.Code, Err: err}
		}
		return &Error{Err: err}
	}
}

func (m *Mailer) buildMessage(subject, htmlBody string) []byte {
	var b bytes.Buffer
	fmt.Fprintf(&b, "From: %s\r\n", m.username)
	fmt.Fprintf(&b, "To: %s\r\n", m.to)
	fmt.Fprintf(&b, "Subject: %s\r\n", mime.QEncoding.Encode("UTF-8", subject))
	fmt.Fprintf(&b, "Message-ID: <%s@%s>\r\n", uuid.New().String(), m.host)
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/html; charset=UTF-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(htmlBody)
	b.WriteString("\r\n")
	return b.Bytes()
}

// LogNotifier records notifications in the log instead of sending mail. Used
// when SMTP is not configured.
type LogNotifier struct{}

func (LogNotifier) Notify(ctx context.Context, subject, htmlBody string) error {
	slog.Info("notification (mail disabled)", "subject", subject, "body_bytes", len(htmlBody))
	return nil
}
