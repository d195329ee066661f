package notifier

import (
	"context"
	"fmt"

	"github.com/semmidev/pgvault/internal/config"
	"github.com/wneessen/go-mail"
)

// EmailNotifier delivers plain-text mail through the local sendmail binary or an SMTP relay.
type EmailNotifier struct {
	cfg *config.NotifyConfig
}

func NewEmail(cfg *config.NotifyConfig) *EmailNotifier {
	return &EmailNotifier{cfg: cfg}
}

func (e *EmailNotifier) Send(ctx context.Context, recipient, subject, body string) error {
	msg, err := e.buildMessage(recipient, subject, body)
	if err != nil {
		return err
	}

	switch e.cfg.MailTransport {
	case "smtp":
		return e.sendSMTP(ctx, msg)
	default:
		if err := msg.WriteToSendmailWithContext(ctx, e.cfg.SendmailPath); err != nil {
			return fmt.Errorf("sendmail failed: %w", err)
		}
		return nil
	}
}

func (e *EmailNotifier) buildMessage(recipient, subject, body string) (*mail.Msg, error) {
	msg := mail.NewMsg()

	from := e.cfg.MailFrom
	if from == "" {
		from = recipient
	}
	if err := msg.From(from); err != nil {
		return nil, fmt.Errorf("invalid sender %q: %w", from, err)
	}
	if err := msg.To(recipient); err != nil {
		return nil, fmt.Errorf("invalid recipient %q: %w", recipient, err)
	}

	msg.Subject(subject)
	msg.SetDate()
	msg.SetMessageID()
	msg.SetBodyString(mail.TypeTextPlain, body)

	return msg, nil
}

func (e *EmailNotifier) sendSMTP(ctx context.Context, msg *mail.Msg) error {
	opts := []mail.Option{
		mail.WithPort(e.cfg.SMTPPort),
		mail.WithTLSPolicy(tlsPolicy(e.cfg.SMTPTLS)),
	}
	if e.cfg.SMTPUser != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(e.cfg.SMTPUser),
			mail.WithPassword(e.cfg.SMTPPassword),
		)
	}

	client, err := mail.NewClient(e.cfg.SMTPHost, opts...)
	if err != nil {
		return fmt.Errorf("failed to create smtp client: %w", err)
	}

	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("smtp delivery failed: %w", err)
	}

	return nil
}

func tlsPolicy(name string) mail.TLSPolicy {
	switch name {
	case "mandatory":
		return mail.TLSMandatory
	case "none":
		return mail.NoTLS
	default:
		return mail.TLSOpportunistic
	}
}
