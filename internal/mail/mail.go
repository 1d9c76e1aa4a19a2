// Package mail sends the password-reset email.
package mail

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"html/template"
	"log/slog"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"
)

// Sender delivers a reset link to an account's email address.
type Sender interface {
	SendPasswordReset(ctx context.Context, to, username, link string) error
}

var resetTemplate = template.Must(template.New("reset").Parse(`<!DOCTYPE html>
<html lang="en">
<head><meta charset="UTF-8"><title>Reset your MR BLOGS password</title></head>
<body style="font-family: sans-serif; background: #f4f4f4; margin: 0; padding: 20px;">
  <div style="max-width: 600px; margin: 0 auto; background: #fff; border-radius: 12px; overflow: hidden;">
    <div style="background: #3498db; color: #fff; padding: 24px; text-align: center; font-size: 24px;">MR BLOGS</div>
    <div style="padding: 24px; color: #333;">
      <h1 style="font-size: 20px;">Hi {{.Username}},</h1>
      <p>We received a request to reset your password. The link below is valid for {{.Validity}}.</p>
      <p><a href="{{.Link}}" style="background: #3498db; color: #fff; padding: 12px 24px; border-radius: 5px; text-decoration: none;">Reset password</a></p>
      <p>If you did not ask for this, you can ignore this email.</p>
    </div>
  </div>
</body>
</html>
`))

type resetData struct {
	Username string
	Link     string
	Validity string
}

// RenderReset renders the HTML body of the reset email.
func RenderReset(username, link string, validity time.Duration) (string, error) {
	var buf bytes.Buffer
	err := resetTemplate.Execute(&buf, resetData{
		Username: username,
		Link:     link,
		Validity: validity.String(),
	})
	if err != nil {
		return "", fmt.Errorf("mail: rendering reset email: %w", err)
	}
	return buf.String(), nil
}

// SMTPSender sends through an SMTP relay. Port 465 uses implicit TLS; any
// other port upgrades with STARTTLS when the server offers it.
type SMTPSender struct {
	host     string
	port     int
	username string
	password string
	from     string
	validity time.Duration
}

func NewSMTPSender(host string, port int, username, password, from string, validity time.Duration) *SMTPSender {
	return &SMTPSender{
		host:     host,
		port:     port,
		username: username,
		password: password,
		from:     from,
		validity: validity,
	}
}

func (s *SMTPSender) SendPasswordReset(ctx context.Context, to, username, link string) error {
	body, err := RenderReset(username, link, s.validity)
	if err != nil {
		return err
	}
	msg := buildMessage(s.from, to, "Reset your MR BLOGS password", body)

	addr := net.JoinHostPort(s.host, strconv.Itoa(s.port))
	var auth smtp.Auth
	if s.username != "" {
		auth = smtp.PlainAuth("", s.username, s.password, s.host)
	}

	if s.port != 465 {
		if err := smtp.SendMail(addr, auth, envelopeAddress(s.from), []string{to}, msg); err != nil {
			return fmt.Errorf("mail: sending to %s: %w", to, err)
		}
		return nil
	}

	dialer := &tls.Dialer{Config: &tls.Config{ServerName: s.host}}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("mail: dialing %s: %w", addr, err)
	}
	client, err := smtp.NewClient(conn, s.host)
	if err != nil {
		conn.Close()
		return fmt.Errorf("mail: smtp handshake: %w", err)
	}
	defer client.Close()

	if auth != nil {
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("mail: smtp auth: %w", err)
		}
	}
	if err := client.Mail(envelopeAddress(s.from)); err != nil {
		return fmt.Errorf("mail: MAIL FROM: %w", err)
	}
	if err := client.Rcpt(to); err != nil {
		return fmt.Errorf("mail: RCPT TO %s: %w", to, err)
	}
	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("mail: DATA: %w", err)
	}
	if _, err := w.Write(msg); err != nil {
		return fmt.Errorf("mail: writing message: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("mail: finishing message: %w", err)
	}
	return client.Quit()
}

func buildMessage(from, to, subject, htmlBody string) []byte {
	var b strings.Builder
	b.WriteString("From: " + from + "\r\n")
	b.WriteString("To: " + to + "\r\n")
	b.WriteString("Subject: " + subject + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/html; charset=UTF-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(htmlBody)
	return []byte(b.String())
}

// envelopeAddress extracts "a@b" from "Name <a@b>".
func envelopeAddress(from string) string {
	if i := strings.LastIndex(from, "<"); i >= 0 {
		if j := strings.LastIndex(from, ">"); j > i {
			return from[i+1 : j]
		}
	}
	return from
}

// LogSender writes the reset link to the log instead of sending mail. Used
// when no SMTP host is configured.
type LogSender struct {
	logger *slog.Logger
}

func NewLogSender(logger *slog.Logger) *LogSender {
	return &LogSender{logger: logger}
}

func (s *LogSender) SendPasswordReset(_ context.Context, to, username, link string) error {
	s.logger.Info("password reset requested (mail disabled)",
		slog.String("to", to),
		slog.String("username", username),
		slog.String("link", link),
	)
	return nil
}
