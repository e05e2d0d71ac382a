package notification

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/smtp"
	"time"

	"github.com/sethvargo/go-retry"
)

type EmailConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	From     string
	FromName string

	// Timeout bounds a single delivery attempt.
	Timeout    time.Duration
	MaxRetries uint64
}

// SMTPNotifier sends rendered templates over SMTP.
type SMTPNotifier struct {
	config EmailConfig
	send   func(ctx context.Context, to string, msg []byte) error
}

func NewSMTPNotifier(config EmailConfig) *SMTPNotifier {
	if config.Timeout == 0 {
		config.Timeout = 10 * time.Second
	}
	n := &SMTPNotifier{config: config}
	n.send = n.sendMail
	return n
}

// Send implements Notifier. Transient failures are retried with
// exponential backoff until MaxRetries or ctx expires.
func (n *SMTPNotifier) Send(ctx context.Context, msg Message) error {
	body, err := Render(msg.TemplateID, msg.Params)
	if err != nil {
		return err
	}
	raw := n.buildMessage(msg.To, msg.Subject, body)

	backoff := retry.WithMaxRetries(n.config.MaxRetries, retry.NewExponential(200*time.Millisecond))
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		attemptCtx, cancel := context.WithTimeout(ctx, n.config.Timeout)
		defer cancel()
		if err := n.send(attemptCtx, msg.To, raw); err != nil {
			return retry.RetryableError(err)
		}
		return nil
	})
}

func (n *SMTPNotifier) buildMessage(to, subject, body string) []byte {
	from := n.config.From
	if n.config.FromName != "" {
		from = fmt.Sprintf("%s <%s>", n.config.FromName, n.config.From)
	}
	return []byte(fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\nMIME-Version: 1.0\r\nContent-Type: text/html; charset=UTF-8\r\n\r\n%s",
		from, to, subject, body))
}

func (n *SMTPNotifier) sendMail(ctx context.Context, to string, msg []byte) error {
	addr := net.JoinHostPort(n.config.Host, fmt.Sprint(n.config.Port))

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("dial smtp: %w", err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	c, err := smtp.NewClient(conn, n.config.Host)
	if err != nil {
		conn.Close()
		return fmt.Errorf("smtp handshake: %w", err)
	}
	defer c.Close()

	if ok, _ := c.Extension("STARTTLS"); ok {
		if err := c.StartTLS(&tls.Config{ServerName: n.config.Host}); err != nil {
			return fmt.Errorf("starttls: %w", err)
		}
	}
	if n.config.User != "" {
		auth := smtp.PlainAuth("", n.config.User, n.config.Password, n.config.Host)
		if err := c.Auth(auth); err != nil {
			return fmt.Errorf("smtp auth: %w", err)
		}
	}
	if err := c.Mail(n.config.From); err != nil {
		return err
	}
	if err := c.Rcpt(to); err != nil {
		return err
	}
	w, err := c.Data()
	if err != nil {
		return err
	}
	if _, err := w.Write(msg); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	return c.Quit()
}
