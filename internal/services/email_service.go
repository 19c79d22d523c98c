package services

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"

	"github.com/BradenHooton/propertyhub/pkg/logger"
)

// Mailer delivers a templated email to one recipient.
type Mailer interface {
	Send(ctx context.Context, recipient string, kind TemplateKind, data map[string]any) error
}

// RenderedEmail is a template expanded for one message.
type RenderedEmail struct {
	Subject string
	Text    string
	HTML    string
}

// RenderEmail expands the named template with data.
func RenderEmail(kind TemplateKind, data map[string]any) (*RenderedEmail, error) {
	tmpl, ok := emailTemplates[kind]
	if !ok {
		return nil, fmt.Errorf("unknown email template %q", kind)
	}

	var subject, text, html bytes.Buffer
	if err := tmpl.subject.Execute(&subject, data); err != nil {
		return nil, fmt.Errorf("render %s subject: %w", kind, err)
	}
	if err := tmpl.text.Execute(&text, data); err != nil {
		return nil, fmt.Errorf("render %s text body: %w", kind, err)
	}
	if err := tmpl.html.Execute(&html, data); err != nil {
		return nil, fmt.Errorf("render %s html body: %w", kind, err)
	}

	return &RenderedEmail{Subject: subject.String(), Text: text.String(), HTML: html.String()}, nil
}

// AWSSESMailer sends emails using AWS SES
type AWSSESMailer struct {
	sesClient   *ses.Client
	fromAddress string
	logger      *slog.Logger
}

// NewAWSSESMailer creates a mailer backed by the SES API in region.
func NewAWSSESMailer(ctx context.Context, region, fromAddress string, logger *slog.Logger) (*AWSSESMailer, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return &AWSSESMailer{
		sesClient:   ses.NewFromConfig(cfg),
		fromAddress: fromAddress,
		logger:      logger,
	}, nil
}

func (m *AWSSESMailer) Send(ctx context.Context, recipient string, kind TemplateKind, data map[string]any) error {
	email, err := RenderEmail(kind, data)
	if err != nil {
		return err
	}

	input := &ses.SendEmailInput{
		Source: aws.String(m.fromAddress),
		Destination: &types.Destination{
			ToAddresses: []string{recipient},
		},
		Message: &types.Message{
			Subject: &types.Content{
				Data:    aws.String(email.Subject),
				Charset: aws.String("UTF-8"),
			},
			Body: &types.Body{
				Html: &types.Content{
					Data:    aws.String(email.HTML),
					Charset: aws.String("UTF-8"),
				},
				Text: &types.Content{
					Data:    aws.String(email.Text),
					Charset: aws.String("UTF-8"),
				},
			},
		},
	}

	result, err := m.sesClient.SendEmail(ctx, input)
	if err != nil {
		m.logger.Error("failed to send email via SES",
			slog.String("recipient", logger.SanitizedEmail(recipient)),
			slog.String("template", string(kind)),
			slog.Any("error", err),
		)
		return fmt.Errorf("failed to send %s email: %w", kind, err)
	}

	m.logger.Info("email sent",
		slog.String("recipient", logger.SanitizedEmail(recipient)),
		slog.String("template", string(kind)),
		slog.String("message_id", aws.ToString(result.MessageId)),
	)
	return nil
}

// LogMailer renders emails and logs them instead of sending. Used in
// development and whenever outbound mail is disabled.
type LogMailer struct {
	logger *slog.Logger
}

func NewLogMailer(logger *slog.Logger) *LogMailer {
	return &LogMailer{logger: logger}
}

func (m *LogMailer) Send(ctx context.Context, recipient string, kind TemplateKind, data map[string]any) error {
	email, err := RenderEmail(kind, data)
	if err != nil {
		return err
	}

	m.logger.InfoContext(ctx, "email not sent (mail disabled)",
		slog.String("recipient", logger.SanitizedEmail(recipient)),
		slog.String("template", string(kind)),
		slog.String("subject", email.Subject),
		slog.String("body", email.Text),
	)
	return nil
}
