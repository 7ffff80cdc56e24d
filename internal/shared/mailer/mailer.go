// Package mailer sends alert emails through Amazon SES.
package mailer

import (
	"context"
	"fmt"
	"html"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"
	"go.uber.org/zap"
)

// SESAPI is the subset of the SES client the mailer calls.
type SESAPI interface {
	SendEmail(ctx context.Context, in *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

type Mailer struct {
	client    SESAPI
	fromEmail string
	fromName  string
	enabled   bool
	logger    *zap.Logger
}

// New builds an SES mailer. With an empty fromEmail the mailer is disabled
// and every send is a logged no-op.
func New(ctx context.Context, region, fromEmail, fromName string, logger *zap.Logger) (*Mailer, error) {
	if fromEmail == "" {
		logger.Info("alert mail disabled: mail.from_email not configured")
		return &Mailer{logger: logger}, nil
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return NewWithClient(sesv2.NewFromConfig(cfg), fromEmail, fromName, logger), nil
}

func NewWithClient(client SESAPI, fromEmail, fromName string, logger *zap.Logger) *Mailer {
	return &Mailer{
		client:    client,
		fromEmail: fromEmail,
		fromName:  fromName,
		enabled:   client != nil && fromEmail != "",
		logger:    logger,
	}
}

func (m *Mailer) Enabled() bool { return m.enabled }

// SendAlert tells a recipient that a respondent triggered an alert.
func (m *Mailer) SendAlert(ctx context.Context, to, appletName, message string) error {
	subject := fmt.Sprintf("Response alert: %s", appletName)
	text := fmt.Sprintf("A response to %s raised an alert:\n\n%s\n\nOpen the admin panel to review it.\n", appletName, message)
	body := fmt.Sprintf("<p>A response to <b>%s</b> raised an alert:</p><blockquote>%s</blockquote><p>Open the admin panel to review it.</p>",
		html.EscapeString(appletName), html.EscapeString(message))
	return m.Send(ctx, to, subject, body, text)
}

func (m *Mailer) Send(ctx context.Context, to, subject, htmlBody, textBody string) error {
	if !m.enabled {
		m.logger.Debug("skipping email (mailer disabled)", zap.String("to", to), zap.String("subject", subject))
		return nil
	}
	from := m.fromEmail
	if m.fromName != "" {
		from = fmt.Sprintf("%s <%s>", m.fromName, m.fromEmail)
	}
	_, err := m.client.SendEmail(ctx, &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(from),
		Destination: &types.Destination{
			ToAddresses: []string{to},
		},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{Data: aws.String(subject), Charset: aws.String("UTF-8")},
				Body: &types.Body{
					Html: &types.Content{Data: aws.String(htmlBody), Charset: aws.String("UTF-8")},
					Text: &types.Content{Data: aws.String(textBody), Charset: aws.String("UTF-8")},
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to send email to %s: %w", to, err)
	}
	m.logger.Info("email sent", zap.String("to", to), zap.String("subject", subject))
	return nil
}
