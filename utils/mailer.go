package utils

import (
	"bytes"
	"crypto/tls"
	"errors"
	"fmt"
	"html"
	"mime"
	"mime/multipart"
	"net"
	"net/smtp"
	"net/textproto"
	"strconv"
	"strings"
	"time"

	"github.com/cppla/microblog/config"
)

// ErrMailNotConfigured is returned when no SMTP host or sender is set.
var ErrMailNotConfigured = errors.New("smtp not configured")

// Mail is one outgoing message with a plain-text and an HTML alternative.
type Mail struct {
	From    string
	To      []string
	Subject string
	Text    string
	HTML    string
}

// Transport delivers a single mail.
type Transport interface {
	Send(m Mail) error
}

// SMTPTransport sends through the configured SMTP relay, using STARTTLS when enabled.
type SMTPTransport struct {
	Host     string
	Port     int
	Username string
	Password string
	TLS      bool
}

// NewSMTPTransport builds a transport from configuration.
func NewSMTPTransport(cfg config.AppConfig) *SMTPTransport {
	return &SMTPTransport{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
		TLS:      cfg.SMTPTLS,
	}
}

// Send delivers m. There is no retry.
func (t *SMTPTransport) Send(m Mail) error {
	if t.Host == "" || m.From == "" {
		return ErrMailNotConfigured
	}
	body, err := buildMessage(m)
	if err != nil {
		return err
	}
	addr := net.JoinHostPort(t.Host, strconv.Itoa(t.Port))
	var auth smtp.Auth
	if t.Username != "" {
		auth = smtp.PlainAuth("", t.Username, t.Password, t.Host)
	}
	if !t.TLS {
		return smtp.SendMail(addr, auth, m.From, m.To, body)
	}

	d := net.Dialer{Timeout: 5 * time.Second}
	conn, err := d.Dial("tcp", addr)
	if err != nil {
		return err
	}
	_ = conn.SetDeadline(time.Now().Add(15 * time.Second))
	c, err := smtp.NewClient(conn, t.Host)
	if err != nil {
		_ = conn.Close()
		return err
	}
	defer c.Close()
	if ok, _ := c.Extension("STARTTLS"); ok {
		if err := c.StartTLS(&tls.Config{ServerName: t.Host}); err != nil {
			return err
		}
	}
	if auth != nil {
		if err := c.Auth(auth); err != nil {
			return err
		}
	}
	if err := c.Mail(m.From); err != nil {
		return err
	}
	for _, rcpt := range m.To {
		if err := c.Rcpt(rcpt); err != nil {
			return err
		}
	}
	wc, err := c.Data()
	if err != nil {
		return err
	}
	if _, err := wc.Write(body); err != nil {
		_ = wc.Close()
		return err
	}
	if err := wc.Close(); err != nil {
		return err
	}
	return c.Quit()
}

// buildMessage renders m as a multipart/alternative RFC 5322 message.
func buildMessage(m Mail) ([]byte, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	fmt.Fprintf(&buf, "From: %s\r\n", m.From)
	fmt.Fprintf(&buf, "To: %s\r\n", strings.Join(m.To, ", "))
	fmt.Fprintf(&buf, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", m.Subject))
	fmt.Fprintf(&buf, "Date: %s\r\n", time.Now().UTC().Format(time.RFC1123Z))
	buf.WriteString("MIME-Version: 1.0\r\n")
	fmt.Fprintf(&buf, "Content-Type: multipart/alternative; boundary=%q\r\n\r\n", mw.Boundary())

	parts := []struct{ ctype, body string }{
		{"text/plain; charset=UTF-8", m.Text},
		{"text/html; charset=UTF-8", m.HTML},
	}
	for _, p := range parts {
		if p.body == "" {
			continue
		}
		w, err := mw.CreatePart(textproto.MIMEHeader{"Content-Type": {p.ctype}})
		if err != nil {
			return nil, err
		}
		if _, err := w.Write([]byte(p.body)); err != nil {
			return nil, err
		}
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Mailer composes application mail and hands it to a Transport.
type Mailer struct {
	transport Transport
	sender    string
	appName   string
}

// NewMailer returns a mailer sending as sender over transport.
func NewMailer(transport Transport, sender string) *Mailer {
	return &Mailer{transport: transport, sender: sender, appName: "Microblog"}
}

// SendAsync delivers m on its own goroutine. Failures are logged and otherwise dropped.
func (m *Mailer) SendAsync(mail Mail) {
	if mail.From == "" {
		mail.From = m.sender
	}
	go func() {
		if err := m.transport.Send(mail); err != nil {
			Sugar.Errorw("send mail failed", "to", mail.To, "subject", mail.Subject, "error", err)
			return
		}
		Sugar.Infow("mail sent", "to", mail.To, "subject", mail.Subject)
	}()
}

// PasswordResetMail builds the reset email for username pointing at link.
func (m *Mailer) PasswordResetMail(email, username, link string) Mail {
	text := fmt.Sprintf("Dear %s,\n\nTo reset your password click on the following link:\n\n%s\n\n"+
		"If you have not requested a password reset simply ignore this message.\n\nSincerely,\n\nThe %s Team\n",
		username, link, m.appName)
	htmlBody := fmt.Sprintf("<p>Dear %s,</p><p>To reset your password <a href=\"%s\">click here</a>.</p>"+
		"<p>Alternatively, you can paste the following link in your browser's address bar:</p><p>%s</p>"+
		"<p>If you have not requested a password reset simply ignore this message.</p>"+
		"<p>Sincerely,</p><p>The %s Team</p>",
		html.EscapeString(username), html.EscapeString(link), html.EscapeString(link), m.appName)
	return Mail{
		From:    m.sender,
		To:      []string{email},
		Subject: "[" + m.appName + "] Reset Your Password",
		Text:    text,
		HTML:    htmlBody,
	}
}
