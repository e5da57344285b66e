package notifier

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	htmltemplate "html/template"
	texttemplate "text/template"

	"github.com/wneessen/go-mail"
	"go.uber.org/zap"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

type EmailConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

type mailSender interface {
	DialAndSendWithContext(ctx context.Context, messages ...*mail.Msg) error
}

// EmailNotifier mails participants a plain-text body with an HTML alternative.
type EmailNotifier struct {
	sender mailSender
	from   string
	text   *texttemplate.Template
	html   *htmltemplate.Template
	logger *zap.Logger
}

func NewEmailNotifier(cfg EmailConfig, logger *zap.Logger) (*EmailNotifier, error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("smtp host is empty")
	}
	opts := []mail.Option{mail.WithPort(cfg.Port), mail.WithTLSPortPolicy(mail.TLSOpportunistic)}
	if cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(cfg.Username),
			mail.WithPassword(cfg.Password),
		)
	}
	client, err := mail.NewClient(cfg.Host, opts...)
	if err != nil {
		return nil, fmt.Errorf("create smtp client: %w", err)
	}
	return newEmailNotifier(client, cfg.From, logger)
}

func newEmailNotifier(sender mailSender, from string, logger *zap.Logger) (*EmailNotifier, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	text, err := texttemplate.ParseFS(templateFS, "templates/*.txt.tmpl")
	if err != nil {
		return nil, fmt.Errorf("parse text templates: %w", err)
	}
	html, err := htmltemplate.ParseFS(templateFS, "templates/*.html.tmpl")
	if err != nil {
		return nil, fmt.Errorf("parse html templates: %w", err)
	}
	return &EmailNotifier{sender: sender, from: from, text: text, html: html, logger: logger}, nil
}

func (n *EmailNotifier) RegistrationReceived(ctx context.Context, msg Message) error {
	return n.send(ctx, "received", "Registration received: "+msg.Event.Name, msg)
}

func (n *EmailNotifier) RegistrationSelected(ctx context.Context, msg Message) error {
	return n.send(ctx, "selected", "You were selected for "+msg.Event.Name, msg)
}

func (n *EmailNotifier) PaymentConfirmed(ctx context.Context, msg Message) error {
	return n.send(ctx, "confirmed", "Payment confirmed, welcome to "+msg.Event.Name, msg)
}

func (n *EmailNotifier) send(ctx context.Context, name, subject string, msg Message) error {
	m, err := n.build(name, subject, msg)
	if err != nil {
		return err
	}
	if err := n.sender.DialAndSendWithContext(ctx, m); err != nil {
		n.logger.Warn("failed to send email",
			zap.Error(err),
			zap.String("template", name),
			zap.Uint("registration_id", msg.Registration.ID),
		)
		return fmt.Errorf("send %s email: %w", name, err)
	}
	return nil
}

func (n *EmailNotifier) build(name, subject string, msg Message) (*mail.Msg, error) {
	if msg.Participant.Email == "" {
		return nil, fmt.Errorf("participant %d has no email", msg.Participant.ID)
	}

	var text, html bytes.Buffer
	if err := n.text.ExecuteTemplate(&text, name+".txt.tmpl", msg); err != nil {
		return nil, fmt.Errorf("render %s text: %w", name, err)
	}
	if err := n.html.ExecuteTemplate(&html, name+".html.tmpl", msg); err != nil {
		return nil, fmt.Errorf("render %s html: %w", name, err)
	}

	m := mail.NewMsg()
	if err := m.From(n.from); err != nil {
		return nil, fmt.Errorf("invalid sender: %w", err)
	}
	if err := m.To(msg.Participant.Email); err != nil {
		return nil, fmt.Errorf("invalid recipient: %w", err)
	}
	m.Subject(subject)
	m.SetBodyString(mail.TypeTextPlain, text.String())
	m.AddAlternativeString(mail.TypeTextHTML, html.String())
	return m, nil
}
