package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Gobusters/ectologger"
	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
	"go.opentelemetry.io/otel/attribute"

	"github.com/Ramsey-B/fern/pkg/report"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

const DefaultSubject = "fern run summary"

var ErrNoRecipients = errors.New("no email recipients configured")

type EmailConfig struct {
	APIKey  string
	From    string
	To      []string
	Subject string
}

type mailSender interface {
	SendWithContext(ctx context.Context, email *mail.SGMailV3) (*rest.Response, error)
}

// EmailNotifier sends the run summary as a plain text email through SendGrid.
type EmailNotifier struct {
	sender  mailSender
	from    *mail.Email
	to      []*mail.Email
	subject string
	logger  ectologger.Logger
}

func NewEmailNotifier(cfg EmailConfig, logger ectologger.Logger) (*EmailNotifier, error) {
	return newEmailNotifier(sendgrid.NewSendClient(cfg.APIKey), cfg, logger)
}

func newEmailNotifier(sender mailSender, cfg EmailConfig, logger ectologger.Logger) (*EmailNotifier, error) {
	var to []*mail.Email
	for _, addr := range cfg.To {
		if addr = strings.TrimSpace(addr); addr != "" {
			to = append(to, mail.NewEmail("", addr))
		}
	}
	if len(to) == 0 {
		return nil, ErrNoRecipients
	}
	if cfg.From == "" {
		return nil, errors.New("email sender address is required")
	}
	if cfg.Subject == "" {
		cfg.Subject = DefaultSubject
	}

	return &EmailNotifier{
		sender:  sender,
		from:    mail.NewEmail("fern", cfg.From),
		to:      to,
		subject: cfg.Subject,
		logger:  logger,
	}, nil
}

func (e *EmailNotifier) Name() string {
	return "email"
}

func (e *EmailNotifier) message(s *report.Summary) *mail.SGMailV3 {
	p := mail.NewPersonalization()
	p.AddTos(e.to...)

	m := mail.NewV3Mail()
	m.SetFrom(e.from)
	m.Subject = s.Subject(e.subject)
	m.AddPersonalizations(p)
	m.AddContent(mail.NewContent("text/plain", s.Text()))
	return m
}

func (e *EmailNotifier) Notify(ctx context.Context, s *report.Summary) error {
	ctx, span := tracing.StartSpan(ctx, "Email.SendSummary", attribute.String("run_id", s.RunID))
	defer span.End()

	resp, err := e.sender.SendWithContext(ctx, e.message(s))
	if err != nil {
		tracing.Fail(span, err, "failed to send summary email")
		return fmt.Errorf("failed to send summary email: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		err := fmt.Errorf("summary email rejected with status %d: %s", resp.StatusCode, resp.Body)
		tracing.Fail(span, err, "summary email rejected")
		return err
	}

	e.logger.WithContext(ctx).WithField("recipients", len(e.to)).Info("Run summary email sent")
	return nil
}
