package forward

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/wneessen/go-mail"
)

// MailConfig configures MailSink.
type MailConfig struct {
	Host       string
	Port       int
	Username   string
	Password   string
	AuthMethod string // PLAIN, LOGIN or CRAM-MD5
	TLS        bool   // require STARTTLS
	From       string
	To         string
}

// mailSender is the part of *mail.Client used by MailSink.
type mailSender interface {
	DialAndSendWithContext(ctx context.Context, messages ...*mail.Msg) error
}

// MailSink emails received messages. Delivery updates are not mailed.
type MailSink struct {
	from   string
	to     string
	client mailSender
}

// NewMailSink creates a MailSink that sends through the given SMTP server.
func NewMailSink(cfg MailConfig) (*MailSink, error) {
	opts := []mail.Option{mail.WithPort(cfg.Port)}
	if cfg.TLS {
		opts = append(opts, mail.WithTLSPolicy(mail.TLSMandatory))
	} else {
		opts = append(opts, mail.WithTLSPolicy(mail.TLSOpportunistic))
	}
	if cfg.Username != "" {
		auth := mail.SMTPAuthPlain
		switch strings.ToUpper(cfg.AuthMethod) {
		case "LOGIN":
			auth = mail.SMTPAuthLogin
		case "CRAM-MD5":
			auth = mail.SMTPAuthCramMD5
		}
		opts = append(opts,
			mail.WithSMTPAuth(auth),
			mail.WithUsername(cfg.Username),
			mail.WithPassword(cfg.Password),
		)
	}
	client, err := mail.NewClient(cfg.Host, opts...)
	if err != nil {
		return nil, fmt.Errorf("mail: creating client: %w", err)
	}
	return &MailSink{from: cfg.From, to: cfg.To, client: client}, nil
}

func (s *MailSink) Name() string { return "mail" }

func (s *MailSink) Forward(ctx context.Context, e *Event) error {
	if e.Kind == KindDeliveryStatus {
		return nil
	}
	msg, err := s.message(e)
	if err != nil {
		return err
	}
	if err := s.client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("mail: sending: %w", err)
	}
	return nil
}

// message renders a received SMS or MMS as an email. MMS text parts are
// inlined into the body; other parts become attachments.
func (s *MailSink) message(e *Event) (*mail.Msg, error) {
	m := mail.NewMsg()
	if err := m.From(s.from); err != nil {
		return nil, fmt.Errorf("mail: invalid from address: %w", err)
	}
	if err := m.To(s.to); err != nil {
		return nil, fmt.Errorf("mail: invalid to address: %w", err)
	}

	var body strings.Builder
	switch {
	case e.SMS != nil:
		m.Subject(fmt.Sprintf("SMS from %s", e.SMS.From))
		fmt.Fprintf(&body, "From: %s\nTo: %s\nReceived: %s\nId: %s\n\n%s\n",
			e.SMS.From, e.SMS.To, e.SMS.Timestamp.Format("2006-01-02 15:04:05 MST"), e.SMS.ID, e.SMS.Message)
	case e.MMS != nil:
		m.Subject(fmt.Sprintf("MMS from %s: %s", e.MMS.From, e.MMS.Subject))
		fmt.Fprintf(&body, "From: %s\nTo: %s\nReceived: %s\nId: %s\nSubject: %s\n",
			e.MMS.From, e.MMS.To, e.MMS.Timestamp.Format("2006-01-02 15:04:05 MST"), e.MMS.ID, e.MMS.Subject)
		for i, p := range e.MMS.Attachments {
			if p.ContentType == "text/plain" {
				fmt.Fprintf(&body, "\n%s\n", p.Data)
				continue
			}
			name := fmt.Sprintf("%s-%02d%s", e.MMS.ID, i, extensionFor(p.ContentType))
			if err := m.AttachReader(name, bytes.NewReader(p.Data),
				mail.WithFileContentType(mail.ContentType(p.ContentType))); err != nil {
				return nil, fmt.Errorf("mail: attaching %s: %w", name, err)
			}
		}
	default:
		return nil, fmt.Errorf("mail: empty %s event", e.Kind)
	}
	m.SetBodyString(mail.TypeTextPlain, body.String())
	return m, nil
}
