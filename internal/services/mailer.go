package services

import (
	"bytes"
	"context"
	"fmt"
	"html/template"

	"github.com/wneessen/go-mail"
	"go.uber.org/zap"
)

// Message is an outbound HTML mail.
type Message struct {
	To      string
	Subject string
	HTML    string
}

// Mailer delivers mail on a best-effort basis.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

type SMTPMailer struct {
	client *mail.Client
	from   string
}

func NewSMTPMailer(host string, port int, username, password, from string) (*SMTPMailer, error) {
	opts := []mail.Option{
		mail.WithPort(port),
		mail.WithTLSPolicy(mail.TLSOpportunistic),
	}
	if username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(username),
			mail.WithPassword(password),
		)
	}

	client, err := mail.NewClient(host, opts...)
	if err != nil {
		return nil, fmt.Errorf("create smtp client: %w", err)
	}
	return &SMTPMailer{client: client, from: from}, nil
}

func (m *SMTPMailer) Send(ctx context.Context, msg Message) error {
	em := mail.NewMsg()
	if err := em.From(m.from); err != nil {
		return fmt.Errorf("set from: %w", err)
	}
	if err := em.To(msg.To); err != nil {
		return fmt.Errorf("set to: %w", err)
	}
	em.Subject(msg.Subject)
	em.SetBodyString(mail.TypeTextHTML, msg.HTML)

	if err := m.client.DialAndSendWithContext(ctx, em); err != nil {
		return fmt.Errorf("send mail: %w", err)
	}
	return nil
}

// LogMailer stands in when SMTP is not configured: it only logs the recipient.
type LogMailer struct {
	Logger *zap.Logger
}

func (m LogMailer) Send(_ context.Context, msg Message) error {
	m.Logger.Info("mail not configured, dropping message",
		zap.String("to", msg.To),
		zap.String("subject", msg.Subject),
	)
	return nil
}

var resetTemplate = template.Must(template.New("reset").Parse(
	`<p>A password reset was requested for your account.</p>` +
		`<p><a href="{{.Link}}">reset password</a></p>` +
		`<p>If you did not ask for this, ignore this mail.</p>`,
))

// resetMessage renders the reset mail for link.
func resetMessage(to, link string) (Message, error) {
	var buf bytes.Buffer
	if err := resetTemplate.Execute(&buf, struct{ Link string }{link}); err != nil {
		return Message{}, err
	}
	return Message{To: to, Subject: "Reset password", HTML: buf.String()}, nil
}
